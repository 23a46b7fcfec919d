package opqueue_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/opqueue"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

type testOperation struct {
	id               common.Hash
	destination      uint32
	nonce            uint32
	nextAttemptAfter time.Time
	status           relay.OperationStatus
	resets           int
}

func newTestOperation(n int, delay time.Duration) *testOperation {
	return &testOperation{
		id:               common.BigToHash(big.NewInt(int64(n))),
		destination:      2,
		nonce:            uint32(n),
		nextAttemptAfter: time.Now().Add(delay),
		status:           relay.FirstPrepareAttempt(),
	}
}

func (o *testOperation) ID() common.Hash { return o.id }
func (o *testOperation) OriginDomain() uint32 { return 1 }
func (o *testOperation) DestinationDomain() uint32 { return o.destination }
func (o *testOperation) SenderAddress() common.Hash { return common.Hash{} }
func (o *testOperation) RecipientAddress() common.Hash { return common.Hash{} }
func (o *testOperation) AppContext() string { return "test" }
func (o *testOperation) Priority() uint32 { return o.nonce }
func (o *testOperation) NextAttemptAfter() time.Time { return o.nextAttemptAfter }
func (o *testOperation) Status() relay.OperationStatus { return o.status }
func (o *testOperation) SetStatus(s relay.OperationStatus) { o.status = s }
func (o *testOperation) ResetAttempts() {
	o.resets++
	o.nextAttemptAfter = time.Time{}
}

func ids(ops []relay.QueueOperation) []common.Hash {
	out := make([]common.Hash, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.ID())
	}
	return out
}

func TestPopManyOnEmptyQueue(t *testing.T) {
	q := opqueue.NewOpQueue("prepare_queue", nil, zap.NewNop())
	assert.Empty(t, q.PopMany(10))
	assert.Nil(t, q.Pop())
	assert.Equal(t, 0, q.Len())
}

func TestPopOrderFollowsNextAttempt(t *testing.T) {
	q := opqueue.NewOpQueue("prepare_queue", nil, zap.NewNop())
	late := newTestOperation(1, 3*time.Second)
	early := newTestOperation(2, time.Second)
	q.Push(late, nil)
	q.Push(early, nil)
	assert.Equal(t, 2, q.Len())

	popped := q.PopMany(1)
	require.Len(t, popped, 1)
	assert.Equal(t, early.ID(), popped[0].ID())
	assert.Equal(t, late.ID(), q.Pop().ID())
	assert.Equal(t, 0, q.Len())
}

func TestPushAppliesNewStatus(t *testing.T) {
	q := opqueue.NewOpQueue("confirm_queue", nil, zap.NewNop())
	op := newTestOperation(1, 0)
	status := relay.ConfirmStatus(relay.ReasonAlreadySubmitted)
	q.Push(op, &status)
	assert.Equal(t, status, op.Status())
}

func TestRetryRequestReprioritizesMatchedOperations(t *testing.T) {
	broadcaster := opqueue.NewRetryBroadcaster(10)
	q := opqueue.NewOpQueue("prepare_queue", broadcaster.Subscribe(), zap.NewNop())

	ops := make([]*testOperation, 0, 5)
	for i := 1; i <= 5; i++ {
		op := newTestOperation(i, time.Duration(i)*time.Second)
		ops = append(ops, op)
		q.Push(op, nil)
	}

	responses := make(chan relay.MessageRetryQueueResponse, 1)
	req := relay.MessageRetryRequest{
		UUID: uuid.New(),
		Pattern: relay.MatchingList{
			{MessageID: relay.Enumerated(ops[1].ID(), ops[2].ID())},
		},
		Response: responses,
	}
	require.NoError(t, broadcaster.Send(context.Background(), req))

	popped := q.PopMany(5)
	assert.Equal(t, []common.Hash{ops[2].ID(), ops[1].ID(), ops[0].ID(), ops[3].ID(), ops[4].ID()}, ids(popped))

	resp := <-responses
	assert.Equal(t, req.UUID, resp.UUID)
	assert.Equal(t, uint32(2), resp.Matched)
	assert.Equal(t, uint32(5), resp.Evaluated)

	assert.Equal(t, 1, ops[1].resets)
	assert.Equal(t, 1, ops[2].resets)
	assert.Equal(t, 0, ops[0].resets)
	assert.True(t, ops[1].Status().IsManualRetry())
	assert.Equal(t, relay.OpFirstPrepareAttempt, ops[0].Status().Kind)
}

func TestRetryRequestMatchedBeforeEqualNextAttempt(t *testing.T) {
	broadcaster := opqueue.NewRetryBroadcaster(10)
	q := opqueue.NewOpQueue("prepare_queue", broadcaster.Subscribe(), zap.NewNop())

	fresh := newTestOperation(1, 0)
	fresh.nextAttemptAfter = time.Time{}
	retried := newTestOperation(2, time.Minute)
	q.Push(fresh, nil)
	q.Push(retried, nil)

	req := relay.MessageRetryRequest{
		UUID:    uuid.New(),
		Pattern: relay.MatchingList{{MessageID: relay.Enumerated(retried.ID())}},
	}
	require.NoError(t, broadcaster.Send(context.Background(), req))

	assert.Equal(t, []common.Hash{retried.ID(), fresh.ID()}, ids(q.PopMany(2)))
}

func TestRetryRequestOnEmptyQueueIsAnswered(t *testing.T) {
	broadcaster := opqueue.NewRetryBroadcaster(10)
	prepare := opqueue.NewOpQueue("prepare_queue", broadcaster.Subscribe(), zap.NewNop())
	confirm := opqueue.NewOpQueue("confirm_queue", broadcaster.Subscribe(), zap.NewNop())
	assert.Equal(t, 2, broadcaster.SubscriberCount())

	responses := make(chan relay.MessageRetryQueueResponse, 2)
	req := relay.MessageRetryRequest{
		UUID:     uuid.New(),
		Pattern:  relay.MatchingList{{}},
		Response: responses,
	}
	require.NoError(t, broadcaster.Send(context.Background(), req))

	assert.Empty(t, prepare.PopMany(10))
	assert.Empty(t, confirm.PopMany(10))

	for i := 0; i < 2; i++ {
		resp := <-responses
		assert.Equal(t, req.UUID, resp.UUID)
		assert.Equal(t, uint32(0), resp.Matched)
		assert.Equal(t, uint32(0), resp.Evaluated)
	}
}

func TestEmptyPatternMatchesNothing(t *testing.T) {
	broadcaster := opqueue.NewRetryBroadcaster(10)
	q := opqueue.NewOpQueue("prepare_queue", broadcaster.Subscribe(), zap.NewNop())
	q.Push(newTestOperation(1, time.Second), nil)

	responses := make(chan relay.MessageRetryQueueResponse, 1)
	require.NoError(t, broadcaster.Send(context.Background(), relay.MessageRetryRequest{
		UUID:     uuid.New(),
		Response: responses,
	}))
	q.ProcessRetryRequests()

	resp := <-responses
	assert.Equal(t, uint32(0), resp.Matched)
	assert.Equal(t, uint32(1), resp.Evaluated)
	assert.Equal(t, 1, q.Len())
}
