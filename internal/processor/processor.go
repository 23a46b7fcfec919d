package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neutron-org/neutron-message-relayer/internal/config"
	"github.com/neutron-org/neutron-message-relayer/internal/disposition"
	"github.com/neutron-org/neutron-message-relayer/internal/metrics"
	"github.com/neutron-org/neutron-message-relayer/internal/opqueue"
	"github.com/neutron-org/neutron-message-relayer/internal/registry"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const (
	PrepareQueueName = "prepare"
	ConfirmQueueName = "confirm"
)

var (
	ErrMessageNotAllowed = errors.New("message is not allowed by the registry")
	ErrWrongDestination  = errors.New("message is addressed to another domain")
)

// Processor moves messages of one destination domain through the prepare
// and confirm queues. Preparing a message builds its payload and sends it to
// the dispatcher, confirming it waits for the payload to finalize.
type Processor struct {
	domain     uint32
	cfg        config.ProcessorConfig
	store      relay.MessageStore
	entrypoint relay.Entrypoint
	resolver   *disposition.Resolver
	builder    PayloadBuilder
	registry   *registry.Registry

	prepareQueue *opqueue.OpQueue
	confirmQueue *opqueue.OpQueue

	now    func() time.Time
	logger *zap.Logger
}

func NewProcessor(
	cfg config.ProcessorConfig,
	domain uint32,
	store relay.MessageStore,
	entrypoint relay.Entrypoint,
	builder PayloadBuilder,
	registry *registry.Registry,
	broadcaster *opqueue.RetryBroadcaster,
	logger *zap.Logger,
) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	return &Processor{
		domain:       domain,
		cfg:          cfg,
		store:        store,
		entrypoint:   entrypoint,
		resolver:     disposition.NewResolver(entrypoint, store, logger.Named("disposition")),
		builder:      builder,
		registry:     registry,
		prepareQueue: opqueue.NewOpQueue(PrepareQueueName, broadcaster.Subscribe(), logger),
		confirmQueue: opqueue.NewOpQueue(ConfirmQueueName, broadcaster.Subscribe(), logger),
		now:          time.Now,
		logger:       logger,
	}
}

func (p *Processor) PrepareQueue() *opqueue.OpQueue {
	return p.prepareQueue
}

func (p *Processor) ConfirmQueue() *opqueue.OpQueue {
	return p.confirmQueue
}

// Enqueue persists msg and schedules it for preparation. A zero message id is
// computed from the message fields.
func (p *Processor) Enqueue(msg relay.Message, appContext string) (common.Hash, error) {
	if msg.ID == (common.Hash{}) {
		msg.ID = msg.ComputeID()
	}
	if msg.Destination != p.domain {
		return msg.ID, fmt.Errorf("%w: %d", ErrWrongDestination, msg.Destination)
	}
	if !p.registry.Allows(msg) {
		return msg.ID, ErrMessageNotAllowed
	}

	record := &relay.MessageRecord{
		Message:    msg,
		AppContext: appContext,
		CreatedAt:  p.now(),
	}
	if err := p.store.StoreMessage(record); err != nil {
		return msg.ID, fmt.Errorf("failed to store message %s: %w", msg.ID.Hex(), err)
	}

	p.prepareQueue.Push(p.newOperation(record), nil)
	p.logger.Debug("enqueued message", zap.String("message_id", msg.ID.Hex()), zap.Uint32("nonce", msg.Nonce))
	return msg.ID, nil
}

// Load reloads undelivered messages. Messages that already have a payload in
// flight go straight to the confirm queue.
func (p *Processor) Load(ctx context.Context) error {
	records, err := p.store.GetAllUndeliveredMessages()
	if err != nil {
		return fmt.Errorf("failed to load undelivered messages: %w", err)
	}

	ops := make([]relay.QueueOperation, 0, len(records))
	for _, record := range records {
		if record.Message.Destination != p.domain {
			continue
		}
		ops = append(ops, p.newOperation(record))
	}

	prepare := p.resolver.ConfirmAlreadySubmittedOperations(ctx, p.confirmQueue, ops)
	for _, op := range prepare {
		p.prepareQueue.Push(op, nil)
	}

	p.logger.Info("loaded undelivered messages",
		zap.Int("messages", len(ops)),
		zap.Int("to_prepare", len(prepare)),
		zap.Int("to_confirm", len(ops)-len(prepare)))
	return nil
}

func (p *Processor) Run(ctx context.Context) error {
	if err := p.Load(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.loop(ctx, p.cfg.PrepareInterval, p.PrepareTick)
	})
	g.Go(func() error {
		return p.loop(ctx, p.cfg.ConfirmInterval, p.ConfirmTick)
	})
	return g.Wait()
}

func (p *Processor) loop(ctx context.Context, interval time.Duration, tick func(ctx context.Context)) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tick(ctx)
		case <-ctx.Done():
			p.logger.Info("context cancelled, shutting down processor loop")
			return nil
		}
	}
}

// PrepareTick prepares one batch of eligible operations.
func (p *Processor) PrepareTick(ctx context.Context) {
	batch := p.popEligible(p.prepareQueue)
	if len(batch) == 0 {
		return
	}

	for _, op := range p.resolver.FilterOperationsForPreparation(ctx, p.confirmQueue, batch) {
		if ctx.Err() != nil {
			p.prepareQueue.Push(op, nil)
			continue
		}
		p.prepare(ctx, op.(*PendingMessage))
	}
}

func (p *Processor) prepare(ctx context.Context, msg *PendingMessage) {
	logger := p.logger.With(zap.String("message_id", msg.ID().Hex()))

	payload, err := p.builder.BuildPayload(ctx, msg.Message())
	if err != nil {
		logger.Warn("failed to build payload", zap.Error(err))
		p.retry(msg, relay.ReasonCouldNotBuildPayload)
		return
	}

	gasLimit, err := p.entrypoint.EstimateGasLimit(ctx, payload)
	if err != nil {
		logger.Warn("failed to estimate gas limit", zap.Error(err))
		p.retry(msg, relay.ReasonCouldNotEstimateGas)
		return
	}

	payload.UUID = uuid.New()
	// the mapping is written first: a uuid without a payload resolves to Prepare
	if err := p.prependPayloadUUID(msg.ID(), payload.UUID); err != nil {
		logger.Warn("failed to store payload mapping", zap.Error(err))
		p.retry(msg, relay.ReasonErrorStoringMapping)
		return
	}

	if err := p.entrypoint.SendPayload(ctx, payload); err != nil {
		logger.Warn("failed to send payload", zap.String("payload_uuid", payload.UUID.String()), zap.Error(err))
		p.retry(msg, relay.ReasonErrorSubmitting)
		return
	}

	logger.Info("sent payload to dispatcher",
		zap.String("payload_uuid", payload.UUID.String()),
		zap.Stringer("gas_limit", gasLimit))
	msg.Delay(p.cfg.ConfirmDelay)
	status := relay.ConfirmStatus(relay.ReasonSubmittedBySelf)
	p.confirmQueue.Push(msg, &status)
}

func (p *Processor) prependPayloadUUID(messageID common.Hash, id uuid.UUID) error {
	uuids, _, err := p.store.RetrievePayloadUUIDsByMessageID(messageID)
	if err != nil {
		return fmt.Errorf("failed to retrieve payload uuids: %w", err)
	}
	uuids = append([]uuid.UUID{id}, uuids...)
	if err := p.store.StorePayloadUUIDsByMessageID(messageID, uuids); err != nil {
		return fmt.Errorf("failed to store payload uuids: %w", err)
	}
	return nil
}

// ConfirmTick checks one batch of eligible operations of the confirm queue.
func (p *Processor) ConfirmTick(ctx context.Context) {
	for _, op := range p.popEligible(p.confirmQueue) {
		if ctx.Err() != nil {
			p.confirmQueue.Push(op, nil)
			continue
		}
		p.confirm(ctx, op.(*PendingMessage))
	}
}

func (p *Processor) confirm(ctx context.Context, msg *PendingMessage) {
	logger := p.logger.With(zap.String("message_id", msg.ID().Hex()))

	if msg.Status().IsManualRetry() {
		logger.Info("message was manually retried, preparing it again")
		p.prepareQueue.Push(msg, nil)
		return
	}

	uuids, found, err := p.store.RetrievePayloadUUIDsByMessageID(msg.ID())
	if err != nil {
		logger.Warn("failed to retrieve payload uuids", zap.Error(err))
		p.awaitConfirmation(msg, relay.ReasonErrorCheckingStatus)
		return
	}
	if !found || len(uuids) == 0 {
		logger.Warn("message has no payloads, preparing it again")
		p.retry(msg, relay.ReasonPayloadMissing)
		return
	}

	status, err := p.entrypoint.PayloadStatus(ctx, uuids[0])
	switch {
	case errors.Is(err, relay.ErrPayloadNotFound):
		logger.Warn("payload is missing, preparing message again", zap.String("payload_uuid", uuids[0].String()))
		p.retry(msg, relay.ReasonPayloadMissing)
	case err != nil:
		logger.Warn("failed to get payload status", zap.String("payload_uuid", uuids[0].String()), zap.Error(err))
		p.awaitConfirmation(msg, relay.ReasonErrorCheckingStatus)
	case status.IsFinalized():
		p.delivered(msg)
	case status.IsDropped():
		logger.Info("payload was dropped, preparing message again",
			zap.String("payload_uuid", uuids[0].String()),
			zap.Stringer("status", status))
		p.retry(msg, relay.ReasonPayloadDropped)
	default:
		logger.Debug("payload is not finalized yet",
			zap.String("payload_uuid", uuids[0].String()),
			zap.Stringer("status", status))
		p.awaitConfirmation(msg, relay.ReasonAwaitingFinality)
	}
}

func (p *Processor) delivered(msg *PendingMessage) {
	record := *msg.Record()
	record.Delivered = true
	if err := p.store.StoreMessage(&record); err != nil {
		p.logger.Error("failed to mark message delivered", zap.String("message_id", msg.ID().Hex()), zap.Error(err))
		p.awaitConfirmation(msg, relay.ReasonErrorCheckingStatus)
		return
	}
	metrics.IncDeliveredMessages(strconv.FormatUint(uint64(p.domain), 10))
	p.logger.Info("message delivered", zap.String("message_id", msg.ID().Hex()))
}

func (p *Processor) retry(msg *PendingMessage, reason string) {
	msg.OnRetry(reason)
	p.prepareQueue.Push(msg, nil)
}

func (p *Processor) awaitConfirmation(msg *PendingMessage, reason string) {
	msg.Delay(p.cfg.ConfirmDelay)
	status := relay.ConfirmStatus(reason)
	p.confirmQueue.Push(msg, &status)
}

// popEligible pops a batch and pushes back every operation whose next
// attempt is still in the future.
func (p *Processor) popEligible(q *opqueue.OpQueue) []relay.QueueOperation {
	now := p.now()
	batch := q.PopMany(p.cfg.BatchSize)
	eligible := make([]relay.QueueOperation, 0, len(batch))
	for _, op := range batch {
		if op.NextAttemptAfter().After(now) {
			q.Push(op, nil)
			continue
		}
		eligible = append(eligible, op)
	}
	return eligible
}

func (p *Processor) newOperation(record *relay.MessageRecord) *PendingMessage {
	msg := NewPendingMessage(record, p.cfg.BaseBackoff, p.cfg.MaxBackoff)
	msg.now = p.now
	return msg
}
