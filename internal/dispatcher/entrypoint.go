package dispatcher

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// Entrypoint accepts payloads into the dispatcher and reports their status
// from the store.
type Entrypoint struct {
	storage relay.PayloadStore
	queue   *BuildingQueue
	adapter relay.ChainAdapter
	logger  *zap.Logger
}

var _ relay.Entrypoint = (*Entrypoint)(nil)

func NewEntrypoint(storage relay.PayloadStore, queue *BuildingQueue, adapter relay.ChainAdapter, logger *zap.Logger) *Entrypoint {
	return &Entrypoint{
		storage: storage,
		queue:   queue,
		adapter: adapter,
		logger:  logger,
	}
}

func (e *Entrypoint) SendPayload(_ context.Context, payload *relay.Payload) error {
	p := *payload
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
		payload.UUID = p.UUID
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.Status = relay.ReadyToSubmit()
	p.TransactionUUID = uuid.Nil

	if err := e.storage.StorePayloadByUUID(&p); err != nil {
		return fmt.Errorf("failed to store payload %s: %w", p.UUID, err)
	}
	e.queue.PushBack(&p)

	e.logger.Debug("accepted payload",
		zap.String("payload_uuid", p.UUID.String()),
		zap.String("message_id", p.MessageID.Hex()))
	return nil
}

func (e *Entrypoint) PayloadStatus(_ context.Context, id uuid.UUID) (relay.PayloadStatus, error) {
	payload, found, err := e.storage.RetrievePayloadByUUID(id)
	if err != nil {
		return relay.PayloadStatus{}, fmt.Errorf("failed to retrieve payload %s: %w", id, err)
	}
	if !found {
		return relay.PayloadStatus{}, fmt.Errorf("%w: %s", relay.ErrPayloadNotFound, id)
	}
	return payload.Status, nil
}

func (e *Entrypoint) EstimateGasLimit(ctx context.Context, payload *relay.Payload) (*big.Int, error) {
	return e.adapter.EstimateGasLimit(ctx, payload)
}
