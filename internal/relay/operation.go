package relay

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type OperationStatusKind string

const (
	OpFirstPrepareAttempt OperationStatusKind = "first_prepare_attempt"
	OpRetry               OperationStatusKind = "retry"
	OpManualRetry         OperationStatusKind = "manual_retry"
	OpConfirm             OperationStatusKind = "confirm"
)

// Retry and confirm reasons
const (
	ReasonCouldNotBuildPayload = "could_not_build_payload"
	ReasonCouldNotEstimateGas  = "could_not_estimate_gas"
	ReasonErrorStoringMapping  = "error_storing_payload_mapping"
	ReasonErrorSubmitting      = "error_submitting"
	ReasonPayloadDropped       = "payload_dropped"
	ReasonPayloadMissing       = "payload_missing"
	ReasonErrorCheckingStatus  = "error_checking_status"

	ReasonAlreadySubmitted = "already_submitted"
	ReasonSubmittedBySelf  = "submitted_by_self"
	ReasonAwaitingFinality = "awaiting_finality"
)

type OperationStatus struct {
	Kind   OperationStatusKind `json:"kind"`
	Reason string              `json:"reason,omitempty"`
}

func FirstPrepareAttempt() OperationStatus {
	return OperationStatus{Kind: OpFirstPrepareAttempt}
}

func RetryStatus(reason string) OperationStatus {
	return OperationStatus{Kind: OpRetry, Reason: reason}
}

func ManualRetry() OperationStatus {
	return OperationStatus{Kind: OpManualRetry}
}

func ConfirmStatus(reason string) OperationStatus {
	return OperationStatus{Kind: OpConfirm, Reason: reason}
}

func (s OperationStatus) IsManualRetry() bool {
	return s.Kind == OpManualRetry
}

func (s OperationStatus) String() string {
	if s.Reason == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + "(" + s.Reason + ")"
}

// QueueOperation is a unit of work scheduled by an operation queue.
// NextAttemptAfter returns the zero time when the operation is eligible now.
type QueueOperation interface {
	ID() common.Hash
	OriginDomain() uint32
	DestinationDomain() uint32
	SenderAddress() common.Hash
	RecipientAddress() common.Hash
	AppContext() string
	Priority() uint32
	NextAttemptAfter() time.Time
	ResetAttempts()
	Status() OperationStatus
	SetStatus(status OperationStatus)
}
