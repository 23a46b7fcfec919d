package relay

import (
	"context"
	"encoding/json"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Entrypoint is the external facing interface of the dispatcher.
type Entrypoint interface {
	SendPayload(ctx context.Context, payload *Payload) error
	// PayloadStatus returns ErrPayloadNotFound for an unknown uuid
	PayloadStatus(ctx context.Context, id uuid.UUID) (PayloadStatus, error)
	// EstimateGasLimit returns nil when the chain has no gas limit notion
	EstimateGasLimit(ctx context.Context, payload *Payload) (*big.Int, error)
}

type CommitmentLevel string

const (
	LevelFinalized CommitmentLevel = "finalized"
	LevelConfirmed CommitmentLevel = "confirmed"
	LevelProcessed CommitmentLevel = "processed"
)

// TransactionStatus is the status a transaction reaches once one of its hashes
// is seen at this level.
func (l CommitmentLevel) TransactionStatus() TransactionStatus {
	switch l {
	case LevelFinalized:
		return StatusFinalized
	case LevelConfirmed:
		return StatusIncluded
	default:
		return StatusMempool
	}
}

type CostEstimate struct {
	GasLimit uint64
	// Price is the per unit fee bid of the (possibly escalated) estimate
	Price *big.Int
}

// ChainAdapter hides everything VM specific from the dispatcher stages.
type ChainAdapter interface {
	// BuildPrecursor returns the adapter's serialized, unsigned precursor for payload
	BuildPrecursor(ctx context.Context, payload *Payload) (json.RawMessage, error)
	// EstimateCost gets a fresh estimate, escalates it against the previous
	// one and writes the result into tx.Precursor.
	EstimateCost(ctx context.Context, tx *Transaction) (*CostEstimate, error)
	// Submit broadcasts tx. The hash is returned whenever it is known, even on error.
	Submit(ctx context.Context, tx *Transaction) (string, error)
	// Poll reports whether hash has reached level. An unknown hash is (false, nil).
	Poll(ctx context.Context, hash string, level CommitmentLevel) (bool, error)
	// CommitmentLevels lists the levels the chain supports, most strict first
	CommitmentLevels() []CommitmentLevel
	EstimatedBlockTime() time.Duration
	EstimateGasLimit(ctx context.Context, payload *Payload) (*big.Int, error)
}
