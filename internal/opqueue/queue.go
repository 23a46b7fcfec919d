package opqueue

import (
	"container/heap"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/metrics"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

type queueEntry struct {
	op relay.QueueOperation
	// seq is the insertion order, retryStamp orders operations reprioritized by
	// the same or later retry requests: a higher stamp pops first.
	seq        uint64
	retryStamp uint64
	// labels the entry was counted under in the queue length gauge
	status string
}

type entryHeap []*queueEntry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	return entryLess(h[i], h[j])
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *entryHeap) Push(x interface{}) {
	*h = append(*h, x.(*queueEntry))
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[0 : n-1]
	return item
}

func entryLess(a, b *queueEntry) bool {
	ta, tb := a.op.NextAttemptAfter(), b.op.NextAttemptAfter()
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	if a.retryStamp != b.retryStamp {
		return a.retryStamp > b.retryStamp
	}
	if pa, pb := a.op.Priority(), b.op.Priority(); pa != pb {
		return pa < pb
	}
	return a.seq < b.seq
}

// OpQueue is a priority queue of pending operations that can be reprioritized
// by MessageRetryRequests. Every mutation of the underlying heap happens under mu.
type OpQueue struct {
	mu         sync.Mutex
	heap       entryHeap
	seq        uint64
	retryStamp uint64

	name    string
	retryRx <-chan relay.MessageRetryRequest
	logger  *zap.Logger
}

func NewOpQueue(name string, retryRx <-chan relay.MessageRetryRequest, logger *zap.Logger) *OpQueue {
	return &OpQueue{
		heap:    make(entryHeap, 0),
		name:    name,
		retryRx: retryRx,
		logger:  logger.With(zap.String("queue", name)),
	}
}

func (q *OpQueue) Name() string {
	return q.name
}

// Push inserts op. A non-nil newStatus is applied to the operation before it
// is ordered and counted.
func (q *OpQueue) Push(op relay.QueueOperation, newStatus *relay.OperationStatus) {
	if newStatus != nil {
		op.SetStatus(*newStatus)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	entry := &queueEntry{op: op, seq: q.seq, status: string(op.Status().Kind)}
	heap.Push(&q.heap, entry)
	q.incLength(entry)
}

// Pop returns the highest priority operation, or nil if the queue is empty.
func (q *OpQueue) Pop() relay.QueueOperation {
	ops := q.PopMany(1)
	if len(ops) == 0 {
		return nil
	}
	return ops[0]
}

// PopMany processes pending retry requests and then removes and returns up to
// limit operations in priority order.
func (q *OpQueue) PopMany(limit int) []relay.QueueOperation {
	q.ProcessRetryRequests()

	q.mu.Lock()
	defer q.mu.Unlock()

	n := limit
	if n > len(q.heap) {
		n = len(q.heap)
	}
	ops := make([]relay.QueueOperation, 0, n)
	for i := 0; i < n; i++ {
		entry := heap.Pop(&q.heap).(*queueEntry)
		q.decLength(entry)
		ops = append(ops, entry.op)
	}
	return ops
}

func (q *OpQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.heap)
}

// ProcessRetryRequests drains the retry channel without blocking and applies
// every request to the whole queue. Each request gets exactly one response.
func (q *OpQueue) ProcessRetryRequests() {
	requests := q.drainRetryRequests()
	if len(requests) == 0 {
		return
	}

	responses := make([]relay.MessageRetryQueueResponse, 0, len(requests))

	q.mu.Lock()
	// Scan in pop order so stamps follow the current ordering.
	entries := append([]*queueEntry(nil), q.heap...)
	sort.SliceStable(entries, func(i, j int) bool {
		return entryLess(entries[i], entries[j])
	})
	for _, req := range requests {
		resp := relay.MessageRetryQueueResponse{
			UUID:      req.UUID,
			Evaluated: uint32(len(entries)),
		}
		for _, entry := range entries {
			if !req.Pattern.OperationMatches(entry.op) {
				continue
			}
			q.retryStamp++
			entry.retryStamp = q.retryStamp
			entry.op.ResetAttempts()
			entry.op.SetStatus(relay.ManualRetry())
			q.relabel(entry)
			resp.Matched++
		}
		responses = append(responses, resp)
	}
	heap.Init(&q.heap)
	q.mu.Unlock()

	for i, req := range requests {
		q.logger.Info("processed message retry request",
			zap.String("request_uuid", req.UUID.String()),
			zap.Uint32("matched", responses[i].Matched),
			zap.Uint32("evaluated", responses[i].Evaluated),
		)
		if req.Response == nil {
			continue
		}
		select {
		case req.Response <- responses[i]:
		default:
			q.logger.Warn("failed to send retry response, receiver is not listening",
				zap.String("request_uuid", req.UUID.String()))
		}
	}
}

func (q *OpQueue) drainRetryRequests() []relay.MessageRetryRequest {
	if q.retryRx == nil {
		return nil
	}

	var requests []relay.MessageRetryRequest
	for {
		select {
		case req, ok := <-q.retryRx:
			if !ok {
				q.retryRx = nil
				return requests
			}
			requests = append(requests, req)
		default:
			return requests
		}
	}
}

func (q *OpQueue) incLength(entry *queueEntry) {
	metrics.IncOperationQueueLength(destinationLabel(entry.op), q.name, entry.status, entry.op.AppContext())
}

func (q *OpQueue) decLength(entry *queueEntry) {
	metrics.DecOperationQueueLength(destinationLabel(entry.op), q.name, entry.status, entry.op.AppContext())
}

func (q *OpQueue) relabel(entry *queueEntry) {
	status := string(entry.op.Status().Kind)
	if status == entry.status {
		return
	}
	q.decLength(entry)
	entry.status = status
	q.incLength(entry)
}

func destinationLabel(op relay.QueueOperation) string {
	return strconv.FormatUint(uint64(op.DestinationDomain()), 10)
}
