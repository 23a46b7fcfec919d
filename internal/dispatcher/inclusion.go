package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/neutron-org/neutron-message-relayer/internal/metrics"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const inclusionStageName = "inclusion"

type InclusionConfig struct {
	TickPeriod    time.Duration
	Concurrency   int
	RetryAttempts uint
	RetryDelay    time.Duration
}

// InclusionStage drives in-flight transactions until one of their hashes is
// included or the transaction is dropped.
type InclusionStage struct {
	mu   sync.Mutex
	pool map[uuid.UUID]*relay.Transaction

	incoming <-chan *relay.Transaction
	finality chan<- *relay.Transaction
	state    *State
	cfg      InclusionConfig
	now      func() time.Time
	logger   *zap.Logger
}

func NewInclusionStage(incoming <-chan *relay.Transaction, finality chan<- *relay.Transaction, state *State, cfg InclusionConfig, logger *zap.Logger) *InclusionStage {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	// zero attempts would make retry-go retry forever
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 1
	}
	return &InclusionStage{
		pool:     make(map[uuid.UUID]*relay.Transaction),
		incoming: incoming,
		finality: finality,
		state:    state,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger,
	}
}

func (s *InclusionStage) Add(tx *relay.Transaction) {
	s.mu.Lock()
	s.pool[tx.UUID] = tx
	n := len(s.pool)
	s.mu.Unlock()

	metrics.SetStagePoolLength(inclusionStageName, s.state.domain, n)
}

func (s *InclusionStage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.pool)
}

func (s *InclusionStage) Run(ctx context.Context) error {
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
		ticker := time.NewTicker(tickPeriod(s.cfg.TickPeriod))
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ProcessTick(ctx)
			case <-ctx.Done():
				s.logger.Info("context cancelled, shutting down inclusion stage")
				return nil
			}
		}
	})

	return g.Wait()
}

// ProcessTick runs one inclusion step for every transaction in the pool. Each
// transaction is handled by exactly one goroutine per tick.
func (s *InclusionStage) ProcessTick(ctx context.Context) {
	s.mu.Lock()
	snapshot := make([]*relay.Transaction, 0, len(s.pool))
	for _, tx := range s.pool {
		snapshot = append(snapshot, tx.Clone())
	}
	s.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, tx := range snapshot {
		tx := tx
		g.Go(func() error {
			s.processTx(ctx, tx)
			return nil
		})
	}
	_ = g.Wait()

	metrics.SetStagePoolLength(inclusionStageName, s.state.domain, s.Len())
}

func (s *InclusionStage) processTx(ctx context.Context, tx *relay.Transaction) {
	if len(tx.TxHashes) > 0 {
		status, found := s.pollStatus(ctx, tx)
		now := s.now()
		tx.LastStatusCheck = &now

		if found && (status.Kind == relay.TxFinalized || status.Kind == relay.TxIncluded) {
			s.state.UpdateTransactionStatus(tx, status)
			s.remove(tx.UUID)
			select {
			case s.finality <- tx:
			case <-ctx.Done():
			}
			return
		}
	}

	if !s.readyForSubmission(tx) {
		s.keep(tx)
		return
	}
	s.submit(ctx, tx)
}

// pollStatus checks every hash at every level, strictest level first. Any
// single hash reaching a level is enough.
func (s *InclusionStage) pollStatus(ctx context.Context, tx *relay.Transaction) (relay.TransactionStatus, bool) {
	for _, level := range s.state.adapter.CommitmentLevels() {
		for _, hash := range tx.TxHashes {
			found, err := s.state.adapter.Poll(ctx, hash, level)
			if err != nil {
				s.logger.Debug("failed to poll transaction hash",
					zap.String("tx_uuid", tx.UUID.String()),
					zap.String("tx_hash", hash),
					zap.String("level", string(level)),
					zap.Error(err))
				continue
			}
			if found {
				return level.TransactionStatus(), true
			}
		}
	}
	return relay.TransactionStatus{}, false
}

func (s *InclusionStage) readyForSubmission(tx *relay.Transaction) bool {
	if len(tx.TxHashes) == 0 || tx.LastSubmissionAttempt == nil {
		return true
	}
	return s.now().Sub(*tx.LastSubmissionAttempt) >= s.state.adapter.EstimatedBlockTime()
}

func (s *InclusionStage) submit(ctx context.Context, tx *relay.Transaction) {
	logger := s.logger.With(zap.String("tx_uuid", tx.UUID.String()))

	estimate, err := s.estimateCost(ctx, tx)
	if err != nil {
		if relay.IsRetryable(err) {
			logger.Warn("failed to estimate transaction cost, will retry", zap.Error(err))
			s.keep(tx)
			return
		}
		logger.Warn("transaction failed simulation", zap.Error(err))
		s.drop(tx, relay.DropReasonFailedSimulation)
		return
	}

	hash, err := s.state.adapter.Submit(ctx, tx)
	if err != nil {
		c := relay.ClassifySubmitError(err)
		switch c.Kind {
		case relay.KindAlreadyExists:
			logger.Info("transaction already exists on chain", zap.String("tx_hash", hash), zap.Error(err))
		case relay.KindRetryable:
			metrics.IncFailedTxSubmit(s.state.domain)
			logger.Warn("failed to submit transaction, will retry", zap.String("tx_hash", hash), zap.Error(err))
			s.keep(tx)
			return
		default:
			metrics.IncFailedTxSubmit(s.state.domain)
			logger.Error("transaction rejected", zap.String("tx_hash", hash), zap.String("reason", string(c.Reason)), zap.Error(err))
			s.drop(tx, c.Reason)
			return
		}
	}

	if hash != "" && !tx.HasHash(hash) {
		tx.TxHashes = append(tx.TxHashes, hash)
	}
	tx.SubmissionAttempts++
	now := s.now()
	tx.LastSubmissionAttempt = &now

	metrics.IncSuccessTxSubmit(s.state.domain)
	metrics.SetSubmittedPrice(s.state.domain, estimate.Price)
	logger.Info("submitted transaction",
		zap.String("tx_hash", hash),
		zap.Uint32("submission_attempts", tx.SubmissionAttempts),
		zap.Stringer("price", estimate.Price))

	s.state.UpdateTransactionStatus(tx, relay.StatusMempool)
	s.update(tx)
}

func (s *InclusionStage) estimateCost(ctx context.Context, tx *relay.Transaction) (*relay.CostEstimate, error) {
	var estimate *relay.CostEstimate
	err := retry.Do(func() error {
		var err error
		estimate, err = s.state.adapter.EstimateCost(ctx, tx)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(s.cfg.RetryAttempts),
		retry.Delay(s.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(relay.IsRetryable),
	)
	return estimate, err
}

func (s *InclusionStage) drop(tx *relay.Transaction, reason relay.DropReason) {
	metrics.IncDroppedTx(s.state.domain, string(reason))
	s.state.UpdateTransactionStatus(tx, relay.StatusDropped(reason))
	s.remove(tx.UUID)
}

// keep persists a transaction whose status did not change this step, along
// with its status check time and precursor.
func (s *InclusionStage) keep(tx *relay.Transaction) {
	s.state.StoreTransaction(tx)
	s.update(tx)
}

// update stores tx back into the pool unless it left the pool meanwhile.
func (s *InclusionStage) update(tx *relay.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pool[tx.UUID]; ok {
		s.pool[tx.UUID] = tx
	}
}

func (s *InclusionStage) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.pool, id)
	s.mu.Unlock()
}
