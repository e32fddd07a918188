// ABOUTME: In-process publish/subscribe bus fanning JSON events to subscribers
// ABOUTME: Bounded per-subscriber queues; slow consumers are evicted, publishers never block

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberQueueSize bounds each subscriber's queue. A subscriber that
	// falls this far behind is evicted rather than slowing the publisher.
	subscriberQueueSize = 500
)

// keepalive is the first message every subscriber receives.
var keepalive = []byte(`{"type":"keepalive"}`)

// Broker provides in-process pub/sub for JSON-shaped events. Each event is
// serialized once and fanned out to every active subscriber's bounded queue.
// Per-subscriber delivery is FIFO; there is no ordering guarantee across
// subscribers and no backlog for late joiners.
type Broker struct {
	mu          sync.Mutex
	subscribers map[string]chan []byte
	closed      bool
	logger      *slog.Logger
}

// New creates a broker. Pass nil logger for default.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subscribers: make(map[string]chan []byte),
		logger:      logger.With("component", "bus"),
	}
}

// Publish serializes the event once and enqueues it for every active
// subscriber. A subscriber whose queue is full is removed from the active
// set; Publish never blocks on a slow reader.
func (b *Broker) Publish(event any) error {
	msg, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	b.publishRaw(msg)
	return nil
}

func (b *Broker) publishRaw(msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- msg:
		default:
			// Queue full: evict instead of blocking the publisher
			delete(b.subscribers, id)
			close(ch)
			b.logger.Warn("evicted slow subscriber", "sub_id", id)
		}
	}
}

// Subscribe registers a new subscriber and returns its message channel and
// subscription ID. The first message is a keepalive control frame; after
// that the channel blocks until new events arrive. The subscription is
// released when ctx is cancelled, or explicitly via Unsubscribe. Messages
// published before Subscribe are never delivered.
func (b *Broker) Subscribe(ctx context.Context) (<-chan []byte, string) {
	subID := uuid.New().String()
	ch := make(chan []byte, subscriberQueueSize)
	ch <- keepalive

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// for an already-removed (evicted) subscription.
func (b *Broker) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the broker and closes all subscriber channels.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
