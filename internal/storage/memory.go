package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// MemoryStorage is a non-persistent relay.Storage with the same encoding as
// LevelDBStorage. It is used when no storage path is configured and in tests.
type MemoryStorage struct {
	sync.Mutex
	kv memoryKV
}

type memoryKV map[string][]byte

func (m memoryKV) Put(key, value []byte, _ *opt.WriteOptions) error {
	m[string(key)] = value
	return nil
}

func (m memoryKV) get(key []byte, value interface{}) (bool, error) {
	data, ok := m[string(key)]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("failed to unmarshal %T: %w", value, err)
	}
	return true, nil
}

func (m memoryKV) values(prefix string) [][]byte {
	var out [][]byte
	for k, v := range m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, v)
		}
	}
	return out
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{kv: memoryKV{}}
}

func (s *MemoryStorage) StorePayloadByUUID(payload *relay.Payload) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.kv, payloadKey(payload.UUID), payload)
}

func (s *MemoryStorage) RetrievePayloadByUUID(id uuid.UUID) (*relay.Payload, bool, error) {
	s.Lock()
	defer s.Unlock()

	var payload relay.Payload
	found, err := s.kv.get(payloadKey(id), &payload)
	if err != nil || !found {
		return nil, found, err
	}
	return &payload, true, nil
}

func (s *MemoryStorage) GetAllReadyPayloads() ([]*relay.Payload, error) {
	s.Lock()
	defer s.Unlock()

	var payloads []*relay.Payload
	for _, data := range s.kv.values(PayloadPrefix) {
		var payload relay.Payload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data into Payload: %w", err)
		}
		if payload.Status.Kind == relay.PayloadReadyToSubmit {
			payloads = append(payloads, &payload)
		}
	}
	return payloads, nil
}

func (s *MemoryStorage) StoreTransactionByUUID(tx *relay.Transaction) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.kv, transactionKey(tx.UUID), tx)
}

func (s *MemoryStorage) RetrieveTransactionByUUID(id uuid.UUID) (*relay.Transaction, bool, error) {
	s.Lock()
	defer s.Unlock()

	var tx relay.Transaction
	found, err := s.kv.get(transactionKey(id), &tx)
	if err != nil || !found {
		return nil, found, err
	}
	return &tx, true, nil
}

func (s *MemoryStorage) StoreTransactionWithPayloads(tx *relay.Transaction, payloads []*relay.Payload) error {
	s.Lock()
	defer s.Unlock()

	batch := memoryKV{}
	if err := putJSON(batch, transactionKey(tx.UUID), tx); err != nil {
		return err
	}
	for _, payload := range payloads {
		if err := putJSON(batch, payloadKey(payload.UUID), payload); err != nil {
			return err
		}
	}
	for k, v := range batch {
		s.kv[k] = v
	}
	return nil
}

func (s *MemoryStorage) GetAllUnfinishedTransactions() ([]*relay.Transaction, error) {
	s.Lock()
	defer s.Unlock()

	var txs []*relay.Transaction
	for _, data := range s.kv.values(TransactionPrefix) {
		var tx relay.Transaction
		if err := json.Unmarshal(data, &tx); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data into Transaction: %w", err)
		}
		if tx.Status.IsInFlight() || tx.Status.Kind == relay.TxIncluded {
			txs = append(txs, &tx)
		}
	}
	return txs, nil
}

func (s *MemoryStorage) StorePayloadUUIDsByMessageID(messageID common.Hash, uuids []uuid.UUID) error {
	s.Lock()
	defer s.Unlock()

	if uuids == nil {
		uuids = []uuid.UUID{}
	}
	return putJSON(s.kv, messagePayloadsKey(messageID), uuids)
}

func (s *MemoryStorage) RetrievePayloadUUIDsByMessageID(messageID common.Hash) ([]uuid.UUID, bool, error) {
	s.Lock()
	defer s.Unlock()

	var uuids []uuid.UUID
	found, err := s.kv.get(messagePayloadsKey(messageID), &uuids)
	if err != nil || !found {
		return nil, found, err
	}
	if uuids == nil {
		uuids = []uuid.UUID{}
	}
	return uuids, true, nil
}

func (s *MemoryStorage) StoreMessage(record *relay.MessageRecord) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.kv, messageKey(record.Message.ID), record)
}

func (s *MemoryStorage) GetAllUndeliveredMessages() ([]*relay.MessageRecord, error) {
	s.Lock()
	defer s.Unlock()

	var records []*relay.MessageRecord
	for _, data := range s.kv.values(MessagePrefix) {
		var record relay.MessageRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data into MessageRecord: %w", err)
		}
		if !record.Delivered {
			records = append(records, &record)
		}
	}
	return records, nil
}

func (s *MemoryStorage) StoreNonceOwner(signer common.Address, nonce uint64, txUUID uuid.UUID) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.kv, nonceOwnerKey(signer, nonce), txUUID)
}

func (s *MemoryStorage) RetrieveNonceOwner(signer common.Address, nonce uint64) (uuid.UUID, bool, error) {
	s.Lock()
	defer s.Unlock()

	var txUUID uuid.UUID
	found, err := s.kv.get(nonceOwnerKey(signer, nonce), &txUUID)
	return txUUID, found, err
}

func (s *MemoryStorage) StoreUpperNonce(signer common.Address, nonce uint64) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.kv, upperNonceKey(signer), nonce)
}

func (s *MemoryStorage) RetrieveUpperNonce(signer common.Address) (uint64, bool, error) {
	s.Lock()
	defer s.Unlock()

	var nonce uint64
	found, err := s.kv.get(upperNonceKey(signer), &nonce)
	return nonce, found, err
}

func (s *MemoryStorage) Close() error {
	return nil
}
