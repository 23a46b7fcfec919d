package dispatcher

import (
	"sync"
	"time"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// BuildingQueue is a FIFO of payloads waiting to be built into transactions.
// Requeued payloads go to the front.
type BuildingQueue struct {
	mu     sync.Mutex
	items  []*relay.Payload
	notify chan struct{}
}

func NewBuildingQueue() *BuildingQueue {
	return &BuildingQueue{notify: make(chan struct{}, 1)}
}

func (q *BuildingQueue) PushBack(p *relay.Payload) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	q.wake()
}

func (q *BuildingQueue) PushFront(p *relay.Payload) {
	q.mu.Lock()
	q.items = append([]*relay.Payload{p}, q.items...)
	q.mu.Unlock()
	q.wake()
}

func (q *BuildingQueue) PopFront() (*relay.Payload, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	p := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return p, true
}

func (q *BuildingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// Notify fires after a push.
func (q *BuildingQueue) Notify() <-chan struct{} {
	return q.notify
}

func (q *BuildingQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

const defaultTickPeriod = time.Second

func tickPeriod(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTickPeriod
	}
	return d
}
