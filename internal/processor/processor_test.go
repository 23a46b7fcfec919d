package processor

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/config"
	"github.com/neutron-org/neutron-message-relayer/internal/opqueue"
	"github.com/neutron-org/neutron-message-relayer/internal/registry"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
	"github.com/neutron-org/neutron-message-relayer/internal/storage"
	mock_relay "github.com/neutron-org/neutron-message-relayer/testutil/mocks/relay"
)

const testDomain = 2

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

type testProcessor struct {
	*Processor
	store       *storage.MemoryStorage
	entrypoint  *mock_relay.MockEntrypoint
	broadcaster *opqueue.RetryBroadcaster
	clock       *testClock
}

func newTestProcessor(t *testing.T, reg *registry.Registry) *testProcessor {
	ctrl := gomock.NewController(t)
	store := storage.NewMemoryStorage()
	entrypoint := mock_relay.NewMockEntrypoint(ctrl)
	broadcaster := opqueue.NewRetryBroadcaster(4)
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	if reg == nil {
		reg = registry.New(nil, nil)
	}

	p := NewProcessor(config.ProcessorConfig{
		BatchSize:    8,
		ConfirmDelay: 10 * time.Second,
		BaseBackoff:  time.Second,
		MaxBackoff:   4 * time.Second,
	}, testDomain, store, entrypoint, BodyPayloadBuilder{}, reg, broadcaster, zap.NewNop())
	p.now = clock.Now

	return &testProcessor{
		Processor:   p,
		store:       store,
		entrypoint:  entrypoint,
		broadcaster: broadcaster,
		clock:       clock,
	}
}

func testMessage(nonce uint32) relay.Message {
	return relay.Message{
		Nonce:       nonce,
		Origin:      1,
		Sender:      common.HexToHash("0xaa"),
		Destination: testDomain,
		Recipient:   common.HexToHash("0xbb"),
		Body:        []byte{0xde, 0xad, byte(nonce)},
	}
}

func TestEnqueue(t *testing.T) {
	p := newTestProcessor(t, registry.New(nil, relay.MatchingList{{SenderAddress: relay.Enumerated(common.HexToHash("0xcc"))}}))

	id, err := p.Enqueue(testMessage(1), "app")
	require.NoError(t, err)
	assert.Equal(t, testMessage(1).ComputeID(), id)
	assert.Equal(t, 1, p.PrepareQueue().Len())

	records, err := p.store.GetAllUndeliveredMessages()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, id, records[0].Message.ID)
	assert.Equal(t, "app", records[0].AppContext)

	wrong := testMessage(2)
	wrong.Destination = 7
	_, err = p.Enqueue(wrong, "")
	assert.ErrorIs(t, err, ErrWrongDestination)

	blocked := testMessage(3)
	blocked.Sender = common.HexToHash("0xcc")
	_, err = p.Enqueue(blocked, "")
	assert.ErrorIs(t, err, ErrMessageNotAllowed)

	assert.Equal(t, 1, p.PrepareQueue().Len())
}

func TestPrepareStoresMappingBeforeSending(t *testing.T) {
	p := newTestProcessor(t, nil)
	id, err := p.Enqueue(testMessage(1), "")
	require.NoError(t, err)

	var sent *relay.Payload
	p.entrypoint.EXPECT().EstimateGasLimit(gomock.Any(), gomock.Any()).Return(big.NewInt(21000), nil)
	p.entrypoint.EXPECT().SendPayload(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, payload *relay.Payload) error {
		uuids, found, err := p.store.RetrievePayloadUUIDsByMessageID(id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []uuid.UUID{payload.UUID}, uuids)
		sent = payload
		return nil
	})

	p.PrepareTick(context.Background())

	require.NotNil(t, sent)
	assert.Equal(t, id, sent.MessageID)
	assert.Equal(t, []byte{0xde, 0xad, 0x01}, []byte(sent.Data))
	assert.Equal(t, 0, p.PrepareQueue().Len())
	require.Equal(t, 1, p.ConfirmQueue().Len())

	// not eligible before the confirm delay
	assert.Empty(t, p.popEligible(p.ConfirmQueue()))
	p.clock.now = p.clock.now.Add(10 * time.Second)
	ops := p.popEligible(p.ConfirmQueue())
	require.Len(t, ops, 1)
	assert.Equal(t, relay.ConfirmStatus(relay.ReasonSubmittedBySelf), ops[0].Status())
}

func TestPrepareFailuresBackOff(t *testing.T) {
	p := newTestProcessor(t, nil)
	_, err := p.Enqueue(testMessage(1), "")
	require.NoError(t, err)

	p.entrypoint.EXPECT().EstimateGasLimit(gomock.Any(), gomock.Any()).Return(nil, errors.New("rpc down")).Times(2)

	p.PrepareTick(context.Background())
	require.Equal(t, 1, p.PrepareQueue().Len())

	// still backing off, nothing is attempted
	p.PrepareTick(context.Background())

	p.clock.now = p.clock.now.Add(time.Second)
	p.PrepareTick(context.Background())

	op := p.PrepareQueue().Pop().(*PendingMessage)
	assert.Equal(t, relay.RetryStatus(relay.ReasonCouldNotEstimateGas), op.Status())
	assert.Equal(t, uint32(2), op.Attempts())
	assert.Equal(t, p.clock.now.Add(2*time.Second), op.NextAttemptAfter())
}

func TestPrepareSkipsAlreadySubmitted(t *testing.T) {
	p := newTestProcessor(t, nil)
	id, err := p.Enqueue(testMessage(1), "")
	require.NoError(t, err)

	existing := uuid.New()
	require.NoError(t, p.store.StorePayloadUUIDsByMessageID(id, []uuid.UUID{existing}))
	p.entrypoint.EXPECT().PayloadStatus(gomock.Any(), existing).Return(relay.InTransaction(relay.StatusMempool), nil)

	p.PrepareTick(context.Background())

	assert.Equal(t, 0, p.PrepareQueue().Len())
	op := p.ConfirmQueue().Pop()
	require.NotNil(t, op)
	assert.Equal(t, relay.ConfirmStatus(relay.ReasonAlreadySubmitted), op.Status())
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name          string
		status        relay.PayloadStatus
		statusErr     error
		delivered     bool
		prepareLen    int
		confirmLen    int
		wantOpStatus  relay.OperationStatus
		checkOpStatus bool
	}{
		{
			name:      "finalized payload delivers the message",
			status:    relay.InTransaction(relay.StatusFinalized),
			delivered: true,
		},
		{
			name:          "dropped payload goes back to prepare",
			status:        relay.InTransaction(relay.StatusDropped(relay.DropReasonRejectedByChain)),
			prepareLen:    1,
			wantOpStatus:  relay.RetryStatus(relay.ReasonPayloadDropped),
			checkOpStatus: true,
		},
		{
			name:          "missing payload goes back to prepare",
			statusErr:     relay.ErrPayloadNotFound,
			prepareLen:    1,
			wantOpStatus:  relay.RetryStatus(relay.ReasonPayloadMissing),
			checkOpStatus: true,
		},
		{
			name:          "pending payload keeps waiting",
			status:        relay.InTransaction(relay.StatusIncluded),
			confirmLen:    1,
			wantOpStatus:  relay.ConfirmStatus(relay.ReasonAwaitingFinality),
			checkOpStatus: true,
		},
		{
			name:          "status error keeps waiting",
			statusErr:     errors.New("storage closed"),
			confirmLen:    1,
			wantOpStatus:  relay.ConfirmStatus(relay.ReasonErrorCheckingStatus),
			checkOpStatus: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProcessor(t, nil)
			msg := testMessage(1)
			msg.ID = msg.ComputeID()
			record := &relay.MessageRecord{Message: msg}
			require.NoError(t, p.store.StoreMessage(record))

			payloadUUID := uuid.New()
			require.NoError(t, p.store.StorePayloadUUIDsByMessageID(msg.ID, []uuid.UUID{payloadUUID}))
			p.entrypoint.EXPECT().PayloadStatus(gomock.Any(), payloadUUID).Return(tt.status, tt.statusErr)

			op := p.newOperation(record)
			p.ConfirmQueue().Push(op, nil)
			p.ConfirmTick(context.Background())

			assert.Equal(t, tt.prepareLen, p.PrepareQueue().Len())
			assert.Equal(t, tt.confirmLen, p.ConfirmQueue().Len())
			if tt.checkOpStatus {
				assert.Equal(t, tt.wantOpStatus, op.Status())
			}

			undelivered, err := p.store.GetAllUndeliveredMessages()
			require.NoError(t, err)
			assert.Equal(t, tt.delivered, len(undelivered) == 0)
		})
	}
}

func TestConfirmWithoutMappingPreparesAgain(t *testing.T) {
	p := newTestProcessor(t, nil)
	msg := testMessage(1)
	msg.ID = msg.ComputeID()
	op := p.newOperation(&relay.MessageRecord{Message: msg})

	p.ConfirmQueue().Push(op, nil)
	p.ConfirmTick(context.Background())

	assert.Equal(t, 1, p.PrepareQueue().Len())
	assert.Equal(t, relay.RetryStatus(relay.ReasonPayloadMissing), op.Status())
}

func TestLoadSplitsUndeliveredMessages(t *testing.T) {
	p := newTestProcessor(t, nil)

	submitted := testMessage(1)
	submitted.ID = submitted.ComputeID()
	fresh := testMessage(2)
	fresh.ID = fresh.ComputeID()
	other := testMessage(3)
	other.Destination = 9
	other.ID = other.ComputeID()
	delivered := testMessage(4)
	delivered.ID = delivered.ComputeID()

	for _, record := range []*relay.MessageRecord{
		{Message: submitted},
		{Message: fresh},
		{Message: other},
		{Message: delivered, Delivered: true},
	} {
		require.NoError(t, p.store.StoreMessage(record))
	}

	payloadUUID := uuid.New()
	require.NoError(t, p.store.StorePayloadUUIDsByMessageID(submitted.ID, []uuid.UUID{payloadUUID}))
	p.entrypoint.EXPECT().PayloadStatus(gomock.Any(), payloadUUID).Return(relay.InTransaction(relay.StatusMempool), nil)

	require.NoError(t, p.Load(context.Background()))

	require.Equal(t, 1, p.PrepareQueue().Len())
	require.Equal(t, 1, p.ConfirmQueue().Len())
	assert.Equal(t, fresh.ID, p.PrepareQueue().Pop().ID())
	assert.Equal(t, submitted.ID, p.ConfirmQueue().Pop().ID())
}

func TestManualRetryOfConfirmingMessage(t *testing.T) {
	p := newTestProcessor(t, nil)
	msg := testMessage(1)
	msg.ID = msg.ComputeID()
	record := &relay.MessageRecord{Message: msg}
	require.NoError(t, p.store.StoreMessage(record))

	oldUUID := uuid.New()
	require.NoError(t, p.store.StorePayloadUUIDsByMessageID(msg.ID, []uuid.UUID{oldUUID}))

	op := p.newOperation(record)
	op.Delay(time.Hour)
	p.ConfirmQueue().Push(op, nil)

	responses := make(chan relay.MessageRetryQueueResponse, 2)
	require.NoError(t, p.broadcaster.Send(context.Background(), relay.MessageRetryRequest{
		UUID:     uuid.New(),
		Pattern:  relay.MatchingList{{MessageID: relay.Enumerated(msg.ID)}},
		Response: responses,
	}))

	p.ConfirmTick(context.Background())
	require.Len(t, responses, 1)
	assert.Equal(t, uint32(1), (<-responses).Matched)
	assert.Equal(t, 0, p.ConfirmQueue().Len())
	assert.Equal(t, 1, p.PrepareQueue().Len())
	assert.True(t, op.Status().IsManualRetry())

	var sent *relay.Payload
	p.entrypoint.EXPECT().EstimateGasLimit(gomock.Any(), gomock.Any()).Return(big.NewInt(21000), nil)
	p.entrypoint.EXPECT().SendPayload(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, payload *relay.Payload) error {
		sent = payload
		return nil
	})

	p.PrepareTick(context.Background())
	require.NotNil(t, sent)

	uuids, found, err := p.store.RetrievePayloadUUIDsByMessageID(msg.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []uuid.UUID{sent.UUID}, uuids)
	assert.Equal(t, 1, p.ConfirmQueue().Len())
}

func TestPendingMessageBackoff(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	msg := NewPendingMessage(&relay.MessageRecord{Message: testMessage(5)}, time.Second, 4*time.Second)
	msg.now = clock.Now

	assert.Equal(t, uint32(5), msg.Priority())
	assert.True(t, msg.NextAttemptAfter().IsZero())
	assert.Equal(t, relay.FirstPrepareAttempt(), msg.Status())

	for _, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second} {
		msg.OnRetry(relay.ReasonErrorSubmitting)
		assert.Equal(t, clock.now.Add(want), msg.NextAttemptAfter())
	}
	assert.Equal(t, uint32(4), msg.Attempts())
	assert.Equal(t, relay.RetryStatus(relay.ReasonErrorSubmitting), msg.Status())

	msg.ResetAttempts()
	assert.Equal(t, uint32(0), msg.Attempts())
	assert.True(t, msg.NextAttemptAfter().IsZero())

	msg.OnRetry(relay.ReasonErrorSubmitting)
	assert.Equal(t, clock.now.Add(time.Second), msg.NextAttemptAfter())
}

func TestBodyPayloadBuilder(t *testing.T) {
	msg := testMessage(1)
	msg.ID = msg.ComputeID()

	payload, err := BodyPayloadBuilder{}.BuildPayload(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, payload.MessageID)
	assert.Equal(t, msg.Recipient, payload.Destination)
	assert.Equal(t, uint32(testDomain), payload.DestinationDomain)
	assert.Equal(t, relay.ReadyToSubmit(), payload.Status)

	msg.Body = nil
	_, err = BodyPayloadBuilder{}.BuildPayload(context.Background(), msg)
	assert.Error(t, err)
}
