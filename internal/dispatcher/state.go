package dispatcher

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// State is shared by the stages: the store, the adapter and the domain label.
type State struct {
	storage relay.Storage
	adapter relay.ChainAdapter
	domain  string
	logger  *zap.Logger
}

func NewState(storage relay.Storage, adapter relay.ChainAdapter, domain string, logger *zap.Logger) *State {
	return &State{
		storage: storage,
		adapter: adapter,
		domain:  domain,
		logger:  logger,
	}
}

// UpdateTransactionStatus moves tx and all of its payloads to status and
// persists them. Store failures are logged, the in-memory transition stands.
func (s *State) UpdateTransactionStatus(tx *relay.Transaction, status relay.TransactionStatus) {
	tx.Status = status
	payloads := s.loadPayloads(tx)
	for _, p := range payloads {
		p.Status = relay.InTransaction(status)
	}

	if err := s.storage.StoreTransactionWithPayloads(tx, payloads); err != nil {
		s.logger.Error("failed to persist transaction status",
			zap.String("tx_uuid", tx.UUID.String()),
			zap.Stringer("status", status),
			zap.Error(err))
		return
	}
	s.logger.Info("updated transaction status",
		zap.String("tx_uuid", tx.UUID.String()),
		zap.Stringer("status", status),
		zap.Int("payloads", len(payloads)))
}

// StoreTransaction persists tx without touching its payloads.
func (s *State) StoreTransaction(tx *relay.Transaction) {
	if err := s.storage.StoreTransactionByUUID(tx); err != nil {
		s.logger.Error("failed to persist transaction",
			zap.String("tx_uuid", tx.UUID.String()),
			zap.Error(err))
	}
}

// ResetPayloads marks tx dropped by the chain and its payloads ready to be
// built again. The reset payloads are returned.
func (s *State) ResetPayloads(tx *relay.Transaction) ([]*relay.Payload, error) {
	tx.Status = relay.StatusDropped(relay.DropReasonDroppedByChain)
	payloads := s.loadPayloads(tx)
	for _, p := range payloads {
		p.Status = relay.ReadyToSubmit()
	}

	if err := s.storage.StoreTransactionWithPayloads(tx, payloads); err != nil {
		return nil, fmt.Errorf("failed to reset payloads of transaction %s: %w", tx.UUID, err)
	}
	return payloads, nil
}

func (s *State) loadPayloads(tx *relay.Transaction) []*relay.Payload {
	payloads := make([]*relay.Payload, 0, len(tx.PayloadDetails))
	for _, id := range tx.PayloadUUIDs() {
		p, found, err := s.storage.RetrievePayloadByUUID(id)
		if err != nil {
			s.logger.Error("failed to retrieve payload",
				zap.String("tx_uuid", tx.UUID.String()),
				zap.String("payload_uuid", id.String()),
				zap.Error(err))
			continue
		}
		if !found {
			s.logger.Warn("payload of transaction is missing from storage",
				zap.String("tx_uuid", tx.UUID.String()),
				zap.String("payload_uuid", id.String()))
			continue
		}
		payloads = append(payloads, p)
	}
	return payloads
}
