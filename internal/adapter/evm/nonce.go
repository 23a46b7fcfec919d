package evm

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// NonceStore is the part of relay.Storage the nonce manager reads and writes.
type NonceStore interface {
	relay.NonceStore
	RetrieveTransactionByUUID(id uuid.UUID) (tx *relay.Transaction, found bool, err error)
}

// NonceManager hands out the nonces of one signer. Every transaction owns at
// most one nonce and a nonce has at most one live owner. Assignments are
// serialized, so concurrent inclusion steps never share a nonce.
type NonceManager struct {
	mu     sync.Mutex
	client Client
	store  NonceStore
	signer common.Address
	logger *zap.Logger
}

func NewNonceManager(client Client, store NonceStore, signer common.Address, logger *zap.Logger) *NonceManager {
	return &NonceManager{
		client: client,
		store:  store,
		signer: signer,
		logger: logger,
	}
}

// Assign returns the nonce owned by txUUID. A transaction without one gets the
// lowest free nonce between the account nonce and the upper nonce, or the
// upper nonce itself, which is then moved up. A nonce is free when it has no
// owner or its owner was dropped. An owner missing from the store keeps its
// nonce.
func (m *NonceManager) Assign(ctx context.Context, txUUID uuid.UUID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lower, err := m.client.NonceAt(ctx, m.signer, nil)
	if err != nil {
		return 0, relay.NewRetryableError(fmt.Errorf("failed to fetch account nonce: %w", err))
	}

	upper, _, err := m.store.RetrieveUpperNonce(m.signer)
	if err != nil {
		return 0, fmt.Errorf("failed to retrieve upper nonce: %w", err)
	}
	if upper < lower {
		upper = lower
	}

	var (
		free    uint64
		hasFree bool
	)
	for nonce := lower; nonce < upper; nonce++ {
		owner, found, err := m.store.RetrieveNonceOwner(m.signer, nonce)
		if err != nil {
			return 0, fmt.Errorf("failed to retrieve owner of nonce %d: %w", nonce, err)
		}
		if found && owner == txUUID {
			return nonce, nil
		}
		if hasFree {
			continue
		}
		isFree, err := m.isFree(owner, found)
		if err != nil {
			return 0, err
		}
		if isFree {
			free, hasFree = nonce, true
		}
	}

	nonce := upper
	if hasFree {
		nonce = free
	} else {
		upper++
	}

	if err := m.store.StoreNonceOwner(m.signer, nonce, txUUID); err != nil {
		return 0, fmt.Errorf("failed to store owner of nonce %d: %w", nonce, err)
	}
	if err := m.store.StoreUpperNonce(m.signer, upper); err != nil {
		return 0, fmt.Errorf("failed to store upper nonce: %w", err)
	}

	m.logger.Debug("assigned nonce",
		zap.String("tx_uuid", txUUID.String()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("account_nonce", lower),
		zap.Uint64("upper_nonce", upper),
		zap.Bool("reused", hasFree))
	return nonce, nil
}

func (m *NonceManager) isFree(owner uuid.UUID, found bool) (bool, error) {
	if !found || owner == uuid.Nil {
		return true, nil
	}
	tx, found, err := m.store.RetrieveTransactionByUUID(owner)
	if err != nil {
		return false, fmt.Errorf("failed to retrieve nonce owner %s: %w", owner, err)
	}
	return found && tx.Status.IsDropped(), nil
}
