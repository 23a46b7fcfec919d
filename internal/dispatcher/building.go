package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/metrics"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const buildingStageName = "building"

var errBuildLater = errors.New("payload requeued")

// BuildingStage turns ready payloads into transactions, one transaction per
// payload, and hands them over to the inclusion stage.
type BuildingStage struct {
	queue        *BuildingQueue
	inclusion    chan<- *relay.Transaction
	state        *State
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewBuildingStage(queue *BuildingQueue, inclusion chan<- *relay.Transaction, state *State, pollInterval time.Duration, logger *zap.Logger) *BuildingStage {
	return &BuildingStage{
		queue:        queue,
		inclusion:    inclusion,
		state:        state,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run returns a non-nil error only on a consistency violation.
func (s *BuildingStage) Run(ctx context.Context) error {
	ticker := time.NewTicker(tickPeriod(s.pollInterval))
	defer ticker.Stop()

	for {
		if err := s.drain(ctx); err != nil {
			return err
		}
		metrics.SetStagePoolLength(buildingStageName, s.state.domain, s.queue.Len())

		select {
		case <-ctx.Done():
			s.logger.Info("context cancelled, shutting down building stage")
			return nil
		case <-s.queue.Notify():
		case <-ticker.C:
		}
	}
}

func (s *BuildingStage) drain(ctx context.Context) error {
	for ctx.Err() == nil {
		payload, ok := s.queue.PopFront()
		if !ok {
			return nil
		}
		err := s.build(ctx, payload)
		if errors.Is(err, errBuildLater) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *BuildingStage) build(ctx context.Context, payload *relay.Payload) error {
	logger := s.logger.With(
		zap.String("payload_uuid", payload.UUID.String()),
		zap.String("message_id", payload.MessageID.Hex()))

	if err := s.checkNotInFlight(payload); err != nil {
		metrics.IncConsistencyViolations(s.state.domain)
		logger.Error("payload is already part of a live transaction", zap.Error(err))
		return err
	}

	precursor, err := s.state.adapter.BuildPrecursor(ctx, payload)
	if err != nil {
		logger.Warn("failed to build transaction for payload, dropping it", zap.Error(err))
		payload.Status = relay.PayloadDroppedStatus(relay.DropReasonFailedToBuild)
		metrics.IncDroppedTx(s.state.domain, string(relay.DropReasonFailedToBuild))
		if err := s.state.storage.StorePayloadByUUID(payload); err != nil {
			logger.Error("failed to persist dropped payload", zap.Error(err))
		}
		return nil
	}

	tx := relay.NewTransaction(precursor, []*relay.Payload{payload})
	payload.TransactionUUID = tx.UUID
	payload.Status = relay.InTransaction(relay.StatusPendingInclusion)
	if err := s.state.storage.StoreTransactionWithPayloads(tx, []*relay.Payload{payload}); err != nil {
		logger.Error("failed to store built transaction, requeueing payload", zap.Error(err))
		payload.TransactionUUID = uuid.Nil
		payload.Status = relay.ReadyToSubmit()
		s.queue.PushFront(payload)
		return errBuildLater
	}

	logger.Info("built transaction", zap.String("tx_uuid", tx.UUID.String()))
	select {
	case s.inclusion <- tx:
	case <-ctx.Done():
	}
	return nil
}

// checkNotInFlight fails when payload still points to a transaction that is
// neither dropped nor missing.
func (s *BuildingStage) checkNotInFlight(payload *relay.Payload) error {
	if payload.TransactionUUID == uuid.Nil {
		return nil
	}
	tx, found, err := s.state.storage.RetrieveTransactionByUUID(payload.TransactionUUID)
	if err != nil {
		s.logger.Warn("failed to look up previous transaction of payload",
			zap.String("payload_uuid", payload.UUID.String()),
			zap.Error(err))
		return nil
	}
	if !found || tx.Status.IsDropped() {
		return nil
	}
	return fmt.Errorf("%w: payload %s is linked to transaction %s with status %s",
		relay.ErrConsistencyViolation, payload.UUID, tx.UUID, tx.Status)
}
