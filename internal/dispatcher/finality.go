package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neutron-org/neutron-message-relayer/internal/metrics"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const finalityStageName = "finality"

// FinalityStage waits for included transactions to finalize. A transaction
// that disappears from the chain for reorgMissThreshold consecutive checks is
// treated as reorged out and its payloads are built again.
type FinalityStage struct {
	mu     sync.Mutex
	pool   map[uuid.UUID]*relay.Transaction
	misses map[uuid.UUID]int

	incoming           <-chan *relay.Transaction
	buildingQueue      *BuildingQueue
	state              *State
	tickPeriod         time.Duration
	reorgMissThreshold int
	logger             *zap.Logger
}

func NewFinalityStage(incoming <-chan *relay.Transaction, buildingQueue *BuildingQueue, state *State, tickPeriod time.Duration, reorgMissThreshold int, logger *zap.Logger) *FinalityStage {
	if reorgMissThreshold <= 0 {
		reorgMissThreshold = 1
	}
	return &FinalityStage{
		pool:               make(map[uuid.UUID]*relay.Transaction),
		misses:             make(map[uuid.UUID]int),
		incoming:           incoming,
		buildingQueue:      buildingQueue,
		state:              state,
		tickPeriod:         tickPeriod,
		reorgMissThreshold: reorgMissThreshold,
		logger:             logger,
	}
}

// Add accepts a transaction handed over by the inclusion stage.
func (s *FinalityStage) Add(tx *relay.Transaction) {
	logger := s.logger.With(zap.String("tx_uuid", tx.UUID.String()))
	switch tx.Status.Kind {
	case relay.TxFinalized:
		s.finalized(tx)
	case relay.TxIncluded:
		s.mu.Lock()
		s.pool[tx.UUID] = tx
		n := len(s.pool)
		s.mu.Unlock()
		metrics.SetStagePoolLength(finalityStageName, s.state.domain, n)
		logger.Debug("tracking included transaction")
	default:
		logger.Error("unexpected transaction status in finality stage", zap.Stringer("status", tx.Status))
	}
}

func (s *FinalityStage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pool)
}

func (s *FinalityStage) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case tx := <-s.incoming:
				s.Add(tx)
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(tickPeriod(s.tickPeriod))
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ProcessTick(ctx)
			case <-ctx.Done():
				s.logger.Info("context cancelled, shutting down finality stage")
				return nil
			}
		}
	})

	return g.Wait()
}

func (s *FinalityStage) ProcessTick(ctx context.Context) {
	s.mu.Lock()
	snapshot := make([]*relay.Transaction, 0, len(s.pool))
	for _, tx := range s.pool {
		snapshot = append(snapshot, tx.Clone())
	}
	s.mu.Unlock()

	for _, tx := range snapshot {
		if ctx.Err() != nil {
			return
		}
		s.check(ctx, tx)
	}

	metrics.SetStagePoolLength(finalityStageName, s.state.domain, s.Len())
}

func (s *FinalityStage) check(ctx context.Context, tx *relay.Transaction) {
	status, found, pollErr := s.poll(ctx, tx)

	switch {
	case found && status.Kind == relay.TxFinalized:
		s.state.UpdateTransactionStatus(tx, relay.StatusFinalized)
		s.remove(tx.UUID)
		s.finalized(tx)
	case found:
		s.mu.Lock()
		s.misses[tx.UUID] = 0
		s.mu.Unlock()
	case pollErr:
		// unknown, neither a hit nor a miss
	default:
		s.mu.Lock()
		s.misses[tx.UUID]++
		misses := s.misses[tx.UUID]
		s.mu.Unlock()
		if misses >= s.reorgMissThreshold {
			s.reorged(tx)
		}
	}
}

// poll returns the strictest level any hash reached. pollErr is set when
// nothing was found and at least one poll failed.
func (s *FinalityStage) poll(ctx context.Context, tx *relay.Transaction) (relay.TransactionStatus, bool, bool) {
	failed := false
	for _, level := range s.state.adapter.CommitmentLevels() {
		for _, hash := range tx.TxHashes {
			found, err := s.state.adapter.Poll(ctx, hash, level)
			if err != nil {
				failed = true
				s.logger.Debug("failed to poll transaction hash",
					zap.String("tx_uuid", tx.UUID.String()),
					zap.String("tx_hash", hash),
					zap.Error(err))
				continue
			}
			if found {
				return level.TransactionStatus(), true, false
			}
		}
	}
	return relay.TransactionStatus{}, false, failed
}

func (s *FinalityStage) reorged(tx *relay.Transaction) {
	logger := s.logger.With(zap.String("tx_uuid", tx.UUID.String()), zap.Strings("tx_hashes", tx.TxHashes))
	metrics.IncConsistencyViolations(s.state.domain)
	metrics.IncDroppedTx(s.state.domain, string(relay.DropReasonDroppedByChain))
	logger.Error("included transaction is no longer on chain, rebuilding its payloads")

	payloads, err := s.state.ResetPayloads(tx)
	if err != nil {
		logger.Error("failed to reset payloads of reorged transaction", zap.Error(err))
		return
	}

	s.remove(tx.UUID)
	for _, p := range payloads {
		s.buildingQueue.PushFront(p)
	}
}

func (s *FinalityStage) finalized(tx *relay.Transaction) {
	metrics.IncFinalizedTx(s.state.domain)
	s.logger.Info("transaction finalized",
		zap.String("tx_uuid", tx.UUID.String()),
		zap.Uint32("submission_attempts", tx.SubmissionAttempts))
}

func (s *FinalityStage) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.pool, id)
	delete(s.misses, id)
	s.mu.Unlock()
}
