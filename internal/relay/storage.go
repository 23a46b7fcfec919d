package relay

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// PayloadUUIDStore keeps the message id -> payload uuids mapping. The first
// uuid in the list is the latest submission for the message.
type PayloadUUIDStore interface {
	StorePayloadUUIDsByMessageID(messageID common.Hash, uuids []uuid.UUID) error
	// RetrievePayloadUUIDsByMessageID distinguishes a missing mapping
	// (found == false) from an empty one.
	RetrievePayloadUUIDsByMessageID(messageID common.Hash) (uuids []uuid.UUID, found bool, err error)
}

type PayloadStore interface {
	StorePayloadByUUID(payload *Payload) error
	RetrievePayloadByUUID(id uuid.UUID) (payload *Payload, found bool, err error)
	GetAllReadyPayloads() ([]*Payload, error)
}

type TransactionStore interface {
	StoreTransactionByUUID(tx *Transaction) error
	RetrieveTransactionByUUID(id uuid.UUID) (tx *Transaction, found bool, err error)
	// StoreTransactionWithPayloads writes the transaction and its payloads atomically
	StoreTransactionWithPayloads(tx *Transaction, payloads []*Payload) error
	// GetAllUnfinishedTransactions returns every transaction that is neither finalized nor dropped
	GetAllUnfinishedTransactions() ([]*Transaction, error)
}

type MessageStore interface {
	PayloadUUIDStore
	StoreMessage(record *MessageRecord) error
	GetAllUndeliveredMessages() ([]*MessageRecord, error)
}

// NonceStore records which transaction owns each nonce of a signer and the
// lowest nonce never handed out.
type NonceStore interface {
	StoreNonceOwner(signer common.Address, nonce uint64, txUUID uuid.UUID) error
	RetrieveNonceOwner(signer common.Address, nonce uint64) (txUUID uuid.UUID, found bool, err error)
	StoreUpperNonce(signer common.Address, nonce uint64) error
	RetrieveUpperNonce(signer common.Address) (nonce uint64, found bool, err error)
}

// Storage is the single source of truth across restarts
type Storage interface {
	PayloadStore
	TransactionStore
	MessageStore
	NonceStore
	Close() error
}
