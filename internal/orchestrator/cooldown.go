// ABOUTME: Cooldown state backends for agent reply throttling
// ABOUTME: In-memory map for single-node runs, redis SetNX when state must be shared

package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore gates how often an agent may act on a given trigger kind.
type CooldownStore interface {
	// TryAcquire reports whether key is outside its cooldown window and, if
	// so, starts a new window. A zero window always acquires.
	TryAcquire(ctx context.Context, key string, window time.Duration) (bool, error)
}

// MemoryCooldowns keeps cooldown state in process memory. This is the
// default backend; state resets on restart, which for cooldowns this short
// is acceptable.
type MemoryCooldowns struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewMemoryCooldowns creates an in-memory cooldown store
func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *MemoryCooldowns) TryAcquire(_ context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if last, ok := m.last[key]; ok && now.Sub(last) < window {
		return false, nil
	}
	m.last[key] = now
	return true, nil
}

// RedisCooldowns keeps cooldown state in redis so multiple node processes
// share one throttle. Each acquisition is a SetNX with the window as TTL.
type RedisCooldowns struct {
	client *redis.Client
}

// NewRedisCooldowns creates a redis-backed cooldown store
func NewRedisCooldowns(addr string) *RedisCooldowns {
	return &RedisCooldowns{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *RedisCooldowns) TryAcquire(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}

	ok, err := r.client.SetNX(ctx, "cooldown:"+key, 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("acquiring cooldown %q: %w", key, err)
	}
	return ok, nil
}

// Close releases the redis connection
func (r *RedisCooldowns) Close() error {
	return r.client.Close()
}
