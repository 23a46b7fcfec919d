package opqueue

import (
	"context"
	"sync"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// RetryBroadcaster fans every MessageRetryRequest out to all subscribed queues.
type RetryBroadcaster struct {
	mu          sync.RWMutex
	subscribers []chan relay.MessageRetryRequest
	capacity    int
}

func NewRetryBroadcaster(capacity int) *RetryBroadcaster {
	return &RetryBroadcaster{capacity: capacity}
}

func (b *RetryBroadcaster) Subscribe() <-chan relay.MessageRetryRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan relay.MessageRetryRequest, b.capacity)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

func (b *RetryBroadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers)
}

// Send delivers req to every subscriber, blocking while a subscriber's buffer is full.
func (b *RetryBroadcaster) Send(ctx context.Context, req relay.MessageRetryRequest) error {
	b.mu.RLock()
	subscribers := append([]chan relay.MessageRetryRequest(nil), b.subscribers...)
	b.mu.RUnlock()

	for _, ch := range subscribers {
		select {
		case ch <- req:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
