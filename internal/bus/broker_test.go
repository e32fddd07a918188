// ABOUTME: Tests for the in-process event broker
// ABOUTME: Validates keepalive framing, FIFO delivery, no backlog, and slow-consumer eviction

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recv pulls the next message or fails the test after a timeout.
func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed unexpectedly")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestSubscribe_KeepaliveFirst(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background())

	msg := recv(t, ch)
	assert.Equal(t, TypeKeepalive, DecodeEnvelope(msg).Type)
}

func TestPublish_FIFOPerSubscriber(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background())
	recv(t, ch) // keepalive

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Publish(map[string]any{"type": "post_created", "seq": i}))
	}

	for i := 0; i < 5; i++ {
		var got struct {
			Seq int `json:"seq"`
		}
		require.NoError(t, json.Unmarshal(recv(t, ch), &got))
		assert.Equal(t, i, got.Seq)
	}
}

func TestSubscribe_NoBacklog(t *testing.T) {
	b := New(nil)
	defer b.Close()

	require.NoError(t, b.Publish(map[string]any{"type": "post_created", "early": true}))

	ch, _ := b.Subscribe(context.Background())
	recv(t, ch) // keepalive

	// The pre-subscription publish must not be delivered
	select {
	case msg := <-ch:
		t.Fatalf("late subscriber received earlier message: %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_EvictsSlowSubscriber(t *testing.T) {
	b := New(nil)
	defer b.Close()

	slow, _ := b.Subscribe(context.Background())
	fast, _ := b.Subscribe(context.Background())
	recv(t, fast) // drain fast's keepalive; slow never reads

	// Overflow the slow subscriber's queue. Its buffer already holds the
	// keepalive, so queueSize more messages fill it and one more evicts.
	for i := 0; i <= subscriberQueueSize; i++ {
		require.NoError(t, b.Publish(map[string]any{"type": "post_created", "seq": i}))
	}

	// The slow subscriber's channel is closed after eviction
	drained := 0
	for range slow {
		drained++
	}
	assert.LessOrEqual(t, drained, subscriberQueueSize+1)

	// The fast subscriber still receives everything, publisher never blocked
	for i := 0; i <= subscriberQueueSize; i++ {
		recv(t, fast)
	}

	// And future publishes still reach the surviving subscriber
	require.NoError(t, b.Publish(map[string]any{"type": "post_created", "after": true}))
	assert.Equal(t, TypePostCreated, DecodeEnvelope(recv(t, fast)).Type)
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ch, id := b.Subscribe(context.Background())
	recv(t, ch)

	b.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	// Unsubscribing again is a no-op
	b.Unsubscribe(id)
}

func TestSubscribe_ContextCancelUnsubscribes(t *testing.T) {
	b := New(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	recv(t, ch)

	cancel()

	// Channel closes once the cancellation is observed
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancel")
		}
	}
}

func TestPublish_ManySubscribersIndependentStreams(t *testing.T) {
	b := New(nil)
	defer b.Close()

	const n = 10
	chans := make([]<-chan []byte, n)
	for i := 0; i < n; i++ {
		ch, _ := b.Subscribe(context.Background())
		recv(t, ch)
		chans[i] = ch
	}

	require.NoError(t, b.Publish(map[string]any{"type": "vote_proposed", "proposal_id": "v1"}))

	for i, ch := range chans {
		env := DecodeEnvelope(recv(t, ch))
		assert.Equal(t, TypeVoteProposed, env.Type, fmt.Sprintf("subscriber %d", i))
	}
}

func TestClose_ShutsDownSubscribers(t *testing.T) {
	b := New(nil)

	ch, _ := b.Subscribe(context.Background())
	recv(t, ch)

	b.Close()
	_, ok := <-ch
	assert.False(t, ok)

	// Subscribing after close yields a closed channel
	ch2, _ := b.Subscribe(context.Background())
	for range ch2 {
	}
}

func TestDecodeEnvelope_Malformed(t *testing.T) {
	assert.Empty(t, DecodeEnvelope([]byte("{not json")).Type)
	assert.Empty(t, DecodeEnvelope(nil).Type)
}
