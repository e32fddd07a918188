// ABOUTME: Tests for the memory and redis cooldown backends
// ABOUTME: Redis behavior is exercised against miniredis

package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCooldowns_WindowBehavior(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	m := NewMemoryCooldowns()
	m.now = func() time.Time { return now }

	ok, err := m.TryAcquire(ctx, "reply:a1", 40*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Inside the window: denied
	now = now.Add(39 * time.Second)
	ok, err = m.TryAcquire(ctx, "reply:a1", 40*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Window elapsed: acquired again
	now = now.Add(2 * time.Second)
	ok, err = m.TryAcquire(ctx, "reply:a1", 40*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCooldowns_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCooldowns()

	ok, err := m.TryAcquire(ctx, "reply:a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// A different agent and a different trigger kind are unaffected
	ok, err = m.TryAcquire(ctx, "reply:a2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.TryAcquire(ctx, "summon:a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCooldowns_ZeroWindowAlwaysAcquires(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryCooldowns()

	for i := 0; i < 3; i++ {
		ok, err := m.TryAcquire(ctx, "vote:a1", 0)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisCooldowns_WindowBehavior(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	r := NewRedisCooldowns(srv.Addr())
	t.Cleanup(func() { r.Close() })

	ok, err := r.TryAcquire(ctx, "reply:a1", 40*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TryAcquire(ctx, "reply:a1", 40*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// TTL expiry releases the cooldown
	srv.FastForward(41 * time.Second)
	ok, err = r.TryAcquire(ctx, "reply:a1", 40*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCooldowns_ErrorSurfaces(t *testing.T) {
	srv := miniredis.RunT(t)
	r := NewRedisCooldowns(srv.Addr())
	t.Cleanup(func() { r.Close() })

	srv.Close()
	_, err := r.TryAcquire(context.Background(), "reply:a1", time.Minute)
	assert.Error(t, err)
}
