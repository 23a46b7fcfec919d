package dispatcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neutron-org/neutron-message-relayer/internal/config"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// Dispatcher wires the building, inclusion and finality stages of one
// destination chain.
type Dispatcher struct {
	state      *State
	queue      *BuildingQueue
	building   *BuildingStage
	inclusion  *InclusionStage
	finality   *FinalityStage
	entrypoint *Entrypoint
	logger     *zap.Logger
}

func NewDispatcher(cfg config.DispatcherConfig, domain string, storage relay.Storage, adapter relay.ChainAdapter, logger *zap.Logger) *Dispatcher {
	logger = logger.With(zap.String("domain", domain))
	state := NewState(storage, adapter, domain, logger)
	queue := NewBuildingQueue()

	toInclusion := make(chan *relay.Transaction, cfg.ChannelCapacity)
	toFinality := make(chan *relay.Transaction, cfg.ChannelCapacity)

	return &Dispatcher{
		state:    state,
		queue:    queue,
		building: NewBuildingStage(queue, toInclusion, state, cfg.BuildingPollInterval, logger.Named("building_stage")),
		inclusion: NewInclusionStage(toInclusion, toFinality, state, InclusionConfig{
			TickPeriod:    cfg.InclusionTickPeriod,
			Concurrency:   cfg.InclusionConcurrency,
			RetryAttempts: cfg.RetryAttempts,
			RetryDelay:    cfg.RetryDelay,
		}, logger.Named("inclusion_stage")),
		finality:   NewFinalityStage(toFinality, queue, state, cfg.FinalityTickPeriod, cfg.ReorgMissThreshold, logger.Named("finality_stage")),
		entrypoint: NewEntrypoint(storage, queue, adapter, logger),
		logger:     logger,
	}
}

func (d *Dispatcher) Entrypoint() *Entrypoint {
	return d.entrypoint
}

// Run rebuilds the stage pools from the store and runs the stages until ctx
// is done or a stage fails.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.Recover(); err != nil {
		return fmt.Errorf("failed to recover dispatcher state: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.building.Run(ctx) })
	g.Go(func() error { return d.inclusion.Run(ctx) })
	g.Go(func() error { return d.finality.Run(ctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("dispatcher stopped: %w", err)
	}
	return nil
}

// Recover loads ready payloads and unfinished transactions from the store.
func (d *Dispatcher) Recover() error {
	payloads, err := d.state.storage.GetAllReadyPayloads()
	if err != nil {
		return fmt.Errorf("failed to load ready payloads: %w", err)
	}
	for _, p := range payloads {
		d.queue.PushBack(p)
	}

	txs, err := d.state.storage.GetAllUnfinishedTransactions()
	if err != nil {
		return fmt.Errorf("failed to load unfinished transactions: %w", err)
	}
	var inFlight, included int
	for _, tx := range txs {
		switch {
		case tx.Status.IsInFlight():
			d.inclusion.Add(tx)
			inFlight++
		case tx.Status.Kind == relay.TxIncluded:
			d.finality.Add(tx)
			included++
		default:
			d.logger.Warn("skipping finished transaction", zap.String("tx_uuid", tx.UUID.String()), zap.Stringer("status", tx.Status))
		}
	}

	d.logger.Info("recovered dispatcher state",
		zap.Int("ready_payloads", len(payloads)),
		zap.Int("in_flight_txs", inFlight),
		zap.Int("included_txs", included))
	return nil
}
