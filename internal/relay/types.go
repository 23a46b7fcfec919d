package relay

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

type TransactionStatusKind string

const (
	TxPendingInclusion TransactionStatusKind = "pending_inclusion"
	TxMempool          TransactionStatusKind = "mempool"
	TxIncluded         TransactionStatusKind = "included"
	TxFinalized        TransactionStatusKind = "finalized"
	TxDropped          TransactionStatusKind = "dropped"
)

// DropReason explains why a transaction (and its payloads) left the pipeline for good
type DropReason string

const (
	DropReasonFailedSimulation  DropReason = "failed_simulation"
	DropReasonFailedToBuild     DropReason = "failed_to_build_as_transaction"
	DropReasonDuplicateInput    DropReason = "duplicate_input"
	DropReasonSizeLimitExceeded DropReason = "size_limit_exceeded"
	DropReasonRejectedByChain   DropReason = "rejected_by_chain"
	DropReasonDroppedByChain    DropReason = "dropped_by_chain"
)

// TransactionStatus is the value of the inclusion state machine.
// DropReason is only set for TxDropped.
type TransactionStatus struct {
	Kind       TransactionStatusKind `json:"kind"`
	DropReason DropReason            `json:"drop_reason,omitempty"`
}

var (
	StatusPendingInclusion = TransactionStatus{Kind: TxPendingInclusion}
	StatusMempool          = TransactionStatus{Kind: TxMempool}
	StatusIncluded         = TransactionStatus{Kind: TxIncluded}
	StatusFinalized        = TransactionStatus{Kind: TxFinalized}
)

func StatusDropped(reason DropReason) TransactionStatus {
	return TransactionStatus{Kind: TxDropped, DropReason: reason}
}

func (s TransactionStatus) IsDropped() bool {
	return s.Kind == TxDropped
}

// IsInFlight reports whether the transaction still needs the inclusion stage.
func (s TransactionStatus) IsInFlight() bool {
	return s.Kind == TxPendingInclusion || s.Kind == TxMempool
}

func (s TransactionStatus) String() string {
	if s.Kind == TxDropped {
		return string(s.Kind) + "(" + string(s.DropReason) + ")"
	}
	return string(s.Kind)
}

type PayloadStatusKind string

const (
	PayloadReadyToSubmit PayloadStatusKind = "ready_to_submit"
	PayloadRetry         PayloadStatusKind = "retry"
	PayloadDropped       PayloadStatusKind = "dropped"
	PayloadInTransaction PayloadStatusKind = "in_transaction"
)

// PayloadStatus is what the entrypoint reports for a payload. Transaction is
// set only for PayloadInTransaction.
type PayloadStatus struct {
	Kind        PayloadStatusKind  `json:"kind"`
	Reason      string             `json:"reason,omitempty"`
	Transaction *TransactionStatus `json:"transaction,omitempty"`
}

func ReadyToSubmit() PayloadStatus {
	return PayloadStatus{Kind: PayloadReadyToSubmit}
}

func PayloadRetryStatus(reason string) PayloadStatus {
	return PayloadStatus{Kind: PayloadRetry, Reason: reason}
}

func PayloadDroppedStatus(reason DropReason) PayloadStatus {
	return PayloadStatus{Kind: PayloadDropped, Reason: string(reason)}
}

func InTransaction(status TransactionStatus) PayloadStatus {
	return PayloadStatus{Kind: PayloadInTransaction, Transaction: &status}
}

// IsDropped is true both for a payload-level drop and for a payload whose
// transaction was dropped.
func (s PayloadStatus) IsDropped() bool {
	if s.Kind == PayloadDropped {
		return true
	}
	return s.Kind == PayloadInTransaction && s.Transaction != nil && s.Transaction.IsDropped()
}

func (s PayloadStatus) IsFinalized() bool {
	return s.Kind == PayloadInTransaction && s.Transaction != nil && s.Transaction.Kind == TxFinalized
}

func (s PayloadStatus) String() string {
	switch s.Kind {
	case PayloadInTransaction:
		if s.Transaction == nil {
			return string(s.Kind)
		}
		return string(s.Kind) + "(" + s.Transaction.String() + ")"
	case PayloadRetry, PayloadDropped:
		return string(s.Kind) + "(" + s.Reason + ")"
	default:
		return string(s.Kind)
	}
}

// Payload is the chain agnostic unit of work. Destination is the recipient
// account on the destination chain, DestinationDomain the chain itself.
type Payload struct {
	UUID                  uuid.UUID     `json:"uuid"`
	MessageID             common.Hash   `json:"message_id"`
	DestinationDomain     uint32        `json:"destination_domain"`
	Destination           common.Hash   `json:"destination"`
	Data                  hexutil.Bytes `json:"data"`
	SuccessCriteria       hexutil.Bytes `json:"success_criteria,omitempty"`
	Status                PayloadStatus `json:"status"`
	InclusionSoftDeadline *time.Time    `json:"inclusion_soft_deadline,omitempty"`
	TransactionUUID       uuid.UUID     `json:"transaction_uuid"`
	CreatedAt             time.Time     `json:"created_at"`
}

type PayloadDetails struct {
	PayloadUUID     uuid.UUID     `json:"payload_uuid"`
	MessageID       common.Hash   `json:"message_id"`
	Metadata        string        `json:"metadata"`
	SuccessCriteria hexutil.Bytes `json:"success_criteria,omitempty"`
}

// Transaction is one VM specific broadcast artifact. TxHashes grows by one per
// broadcast, SubmissionAttempts counts broadcasts only.
type Transaction struct {
	UUID                  uuid.UUID         `json:"uuid"`
	Precursor             json.RawMessage   `json:"precursor"`
	TxHashes              []string          `json:"tx_hashes"`
	PayloadDetails        []PayloadDetails  `json:"payload_details"`
	Status                TransactionStatus `json:"status"`
	SubmissionAttempts    uint32            `json:"submission_attempts"`
	CreatedAt             time.Time         `json:"created_at"`
	LastSubmissionAttempt *time.Time        `json:"last_submission_attempt,omitempty"`
	LastStatusCheck       *time.Time        `json:"last_status_check,omitempty"`
}

func NewTransaction(precursor json.RawMessage, payloads []*Payload) *Transaction {
	details := make([]PayloadDetails, 0, len(payloads))
	for _, p := range payloads {
		details = append(details, PayloadDetails{
			PayloadUUID:     p.UUID,
			MessageID:       p.MessageID,
			Metadata:        p.MessageID.Hex(),
			SuccessCriteria: p.SuccessCriteria,
		})
	}

	return &Transaction{
		UUID:           uuid.New(),
		Precursor:      precursor,
		TxHashes:       []string{},
		PayloadDetails: details,
		Status:         StatusPendingInclusion,
		CreatedAt:      time.Now(),
	}
}

func (t *Transaction) PayloadUUIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(t.PayloadDetails))
	for _, d := range t.PayloadDetails {
		ids = append(ids, d.PayloadUUID)
	}
	return ids
}

// HasHash reports whether hash was already recorded for this transaction
func (t *Transaction) HasHash(hash string) bool {
	for _, h := range t.TxHashes {
		if h == hash {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so pool snapshots can be mutated outside the pool lock.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Precursor = append(json.RawMessage(nil), t.Precursor...)
	c.TxHashes = append([]string(nil), t.TxHashes...)
	c.PayloadDetails = append([]PayloadDetails(nil), t.PayloadDetails...)
	if t.LastSubmissionAttempt != nil {
		v := *t.LastSubmissionAttempt
		c.LastSubmissionAttempt = &v
	}
	if t.LastStatusCheck != nil {
		v := *t.LastStatusCheck
		c.LastStatusCheck = &v
	}
	return &c
}

// Message is a cross-chain message as handed over by the upstream producer.
type Message struct {
	ID          common.Hash   `json:"id"`
	Nonce       uint32        `json:"nonce"`
	Origin      uint32        `json:"origin"`
	Sender      common.Hash   `json:"sender"`
	Destination uint32        `json:"destination"`
	Recipient   common.Hash   `json:"recipient"`
	Body        hexutil.Bytes `json:"body"`
}

// ComputeID hashes the packed message: nonce, origin, sender, destination,
// recipient and body.
func (m Message) ComputeID() common.Hash {
	buf := make([]byte, 0, 4+4+32+4+32+len(m.Body))
	buf = binary.BigEndian.AppendUint32(buf, m.Nonce)
	buf = binary.BigEndian.AppendUint32(buf, m.Origin)
	buf = append(buf, m.Sender.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, m.Destination)
	buf = append(buf, m.Recipient.Bytes()...)
	buf = append(buf, m.Body...)
	return crypto.Keccak256Hash(buf)
}

// MessageRecord is the persisted form of a message accepted for relaying.
type MessageRecord struct {
	Message    Message   `json:"message"`
	Delivered  bool      `json:"delivered"`
	AppContext string    `json:"app_context,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
