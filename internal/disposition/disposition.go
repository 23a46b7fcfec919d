package disposition

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// Disposition is the verdict for a pending operation: build and submit it
// again, or only track the submission that is already in flight.
type Disposition int

const (
	Prepare Disposition = iota
	Confirm
)

func (d Disposition) String() string {
	if d == Confirm {
		return "confirm"
	}
	return "prepare"
}

// ConfirmQueue receives operations that no longer need preparation.
type ConfirmQueue interface {
	Push(op relay.QueueOperation, newStatus *relay.OperationStatus)
}

type Resolver struct {
	entrypoint relay.Entrypoint
	store      relay.PayloadUUIDStore
	logger     *zap.Logger
}

func NewResolver(entrypoint relay.Entrypoint, store relay.PayloadUUIDStore, logger *zap.Logger) *Resolver {
	return &Resolver{
		entrypoint: entrypoint,
		store:      store,
		logger:     logger,
	}
}

// Resolve decides whether op must be prepared. Every read failure resolves to
// Prepare.
func (r *Resolver) Resolve(ctx context.Context, op relay.QueueOperation) Disposition {
	messageID := op.ID()
	logger := r.logger.With(zap.String("message_id", messageID.Hex()))

	if op.Status().IsManualRetry() {
		if err := r.store.StorePayloadUUIDsByMessageID(messageID, []uuid.UUID{}); err != nil {
			logger.Warn("failed to clear payload uuids for manually retried message", zap.Error(err))
		}
		return Prepare
	}

	uuids, found, err := r.store.RetrievePayloadUUIDsByMessageID(messageID)
	if err != nil {
		logger.Warn("failed to retrieve payload uuids, preparing message", zap.Error(err))
		return Prepare
	}
	if !found || len(uuids) == 0 {
		logger.Debug("no payloads stored for message, preparing", zap.Bool("mapping_found", found))
		return Prepare
	}

	payloadUUID := uuids[0]
	status, err := r.entrypoint.PayloadStatus(ctx, payloadUUID)
	if err != nil {
		logger.Warn("failed to get payload status, preparing message",
			zap.String("payload_uuid", payloadUUID.String()),
			zap.Error(err))
		return Prepare
	}
	if status.IsDropped() {
		logger.Info("payload was dropped, preparing message again",
			zap.String("payload_uuid", payloadUUID.String()),
			zap.Stringer("status", status))
		return Prepare
	}

	logger.Debug("message is already submitted",
		zap.String("payload_uuid", payloadUUID.String()),
		zap.Stringer("status", status))
	return Confirm
}

// ConfirmAlreadySubmittedOperations pushes every operation of batch that is
// already in flight to confirmQueue and returns the rest in batch order.
func (r *Resolver) ConfirmAlreadySubmittedOperations(ctx context.Context, confirmQueue ConfirmQueue, batch []relay.QueueOperation) []relay.QueueOperation {
	return r.partition(ctx, confirmQueue, batch)
}

// FilterOperationsForPreparation is run on every batch popped from the prepare
// queue. Operations that were submitted in the meantime move to confirmQueue.
func (r *Resolver) FilterOperationsForPreparation(ctx context.Context, confirmQueue ConfirmQueue, batch []relay.QueueOperation) []relay.QueueOperation {
	return r.partition(ctx, confirmQueue, batch)
}

func (r *Resolver) partition(ctx context.Context, confirmQueue ConfirmQueue, batch []relay.QueueOperation) []relay.QueueOperation {
	prepare := make([]relay.QueueOperation, 0, len(batch))
	for _, op := range batch {
		switch r.Resolve(ctx, op) {
		case Confirm:
			status := relay.ConfirmStatus(relay.ReasonAlreadySubmitted)
			confirmQueue.Push(op, &status)
		default:
			prepare = append(prepare, op)
		}
	}
	return prepare
}
