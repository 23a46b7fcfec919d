package storage

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

const (
	PayloadPrefix         = "payload/"
	TransactionPrefix     = "tx/"
	MessagePayloadsPrefix = "msg_payloads/"
	MessagePrefix         = "msg/"
	NonceOwnerPrefix      = "nonce_owner/"
	UpperNoncePrefix      = "upper_nonce/"
)

// LevelDBStorage keeps every record as JSON under its own key prefix:
// payload/<uuid> -> Payload
// tx/<uuid> -> Transaction
// msg_payloads/<message id> -> []uuid
// msg/<message id> -> MessageRecord
// nonce_owner/<signer>/<nonce> -> transaction uuid
// upper_nonce/<signer> -> uint64
type LevelDBStorage struct {
	sync.Mutex
	db *leveldb.DB
}

func NewLevelDBStorage(path string) (*LevelDBStorage, error) {
	database, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	return &LevelDBStorage{db: database}, nil
}

func (s *LevelDBStorage) StorePayloadByUUID(payload *relay.Payload) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.db, payloadKey(payload.UUID), payload)
}

func (s *LevelDBStorage) RetrievePayloadByUUID(id uuid.UUID) (*relay.Payload, bool, error) {
	s.Lock()
	defer s.Unlock()

	var payload relay.Payload
	found, err := getJSON(s.db, payloadKey(id), &payload)
	if err != nil || !found {
		return nil, found, err
	}

	return &payload, true, nil
}

// GetAllReadyPayloads returns payloads that were accepted but never built into a transaction
func (s *LevelDBStorage) GetAllReadyPayloads() ([]*relay.Payload, error) {
	s.Lock()
	defer s.Unlock()

	iterator := s.db.NewIterator(util.BytesPrefix([]byte(PayloadPrefix)), nil)
	defer iterator.Release()
	var payloads []*relay.Payload
	for iterator.Next() {
		var payload relay.Payload
		if err := json.Unmarshal(iterator.Value(), &payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data into Payload: %w", err)
		}

		if payload.Status.Kind == relay.PayloadReadyToSubmit {
			payloads = append(payloads, &payload)
		}
	}
	if err := iterator.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate over payloads: %w", err)
	}

	return payloads, nil
}

func (s *LevelDBStorage) StoreTransactionByUUID(tx *relay.Transaction) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.db, transactionKey(tx.UUID), tx)
}

func (s *LevelDBStorage) RetrieveTransactionByUUID(id uuid.UUID) (*relay.Transaction, bool, error) {
	s.Lock()
	defer s.Unlock()

	var tx relay.Transaction
	found, err := getJSON(s.db, transactionKey(id), &tx)
	if err != nil || !found {
		return nil, found, err
	}

	return &tx, true, nil
}

// StoreTransactionWithPayloads saves tx and every payload in a single leveldb transaction
func (s *LevelDBStorage) StoreTransactionWithPayloads(tx *relay.Transaction, payloads []*relay.Payload) error {
	s.Lock()
	defer s.Unlock()

	t, err := s.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("failed to open leveldb transaction: %w", err)
	}
	defer t.Discard()

	if err := putJSON(t, transactionKey(tx.UUID), tx); err != nil {
		return err
	}
	for _, payload := range payloads {
		if err := putJSON(t, payloadKey(payload.UUID), payload); err != nil {
			return err
		}
	}

	if err := t.Commit(); err != nil {
		return fmt.Errorf("failed to commit leveldb transaction: %w", err)
	}
	return nil
}

func (s *LevelDBStorage) GetAllUnfinishedTransactions() ([]*relay.Transaction, error) {
	s.Lock()
	defer s.Unlock()

	iterator := s.db.NewIterator(util.BytesPrefix([]byte(TransactionPrefix)), nil)
	defer iterator.Release()
	var txs []*relay.Transaction
	for iterator.Next() {
		var tx relay.Transaction
		if err := json.Unmarshal(iterator.Value(), &tx); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data into Transaction: %w", err)
		}

		if tx.Status.IsInFlight() || tx.Status.Kind == relay.TxIncluded {
			txs = append(txs, &tx)
		}
	}
	if err := iterator.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate over transactions: %w", err)
	}

	return txs, nil
}

func (s *LevelDBStorage) StorePayloadUUIDsByMessageID(messageID common.Hash, uuids []uuid.UUID) error {
	s.Lock()
	defer s.Unlock()

	if uuids == nil {
		uuids = []uuid.UUID{}
	}
	return putJSON(s.db, messagePayloadsKey(messageID), uuids)
}

func (s *LevelDBStorage) RetrievePayloadUUIDsByMessageID(messageID common.Hash) ([]uuid.UUID, bool, error) {
	s.Lock()
	defer s.Unlock()

	var uuids []uuid.UUID
	found, err := getJSON(s.db, messagePayloadsKey(messageID), &uuids)
	if err != nil || !found {
		return nil, found, err
	}
	if uuids == nil {
		uuids = []uuid.UUID{}
	}

	return uuids, true, nil
}

func (s *LevelDBStorage) StoreMessage(record *relay.MessageRecord) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.db, messageKey(record.Message.ID), record)
}

func (s *LevelDBStorage) GetAllUndeliveredMessages() ([]*relay.MessageRecord, error) {
	s.Lock()
	defer s.Unlock()

	iterator := s.db.NewIterator(util.BytesPrefix([]byte(MessagePrefix)), nil)
	defer iterator.Release()
	var records []*relay.MessageRecord
	for iterator.Next() {
		var record relay.MessageRecord
		if err := json.Unmarshal(iterator.Value(), &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal data into MessageRecord: %w", err)
		}

		if !record.Delivered {
			records = append(records, &record)
		}
	}
	if err := iterator.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate over messages: %w", err)
	}

	return records, nil
}

func (s *LevelDBStorage) StoreNonceOwner(signer common.Address, nonce uint64, txUUID uuid.UUID) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.db, nonceOwnerKey(signer, nonce), txUUID)
}

func (s *LevelDBStorage) RetrieveNonceOwner(signer common.Address, nonce uint64) (uuid.UUID, bool, error) {
	s.Lock()
	defer s.Unlock()

	var txUUID uuid.UUID
	found, err := getJSON(s.db, nonceOwnerKey(signer, nonce), &txUUID)
	return txUUID, found, err
}

func (s *LevelDBStorage) StoreUpperNonce(signer common.Address, nonce uint64) error {
	s.Lock()
	defer s.Unlock()

	return putJSON(s.db, upperNonceKey(signer), nonce)
}

func (s *LevelDBStorage) RetrieveUpperNonce(signer common.Address) (uint64, bool, error) {
	s.Lock()
	defer s.Unlock()

	var nonce uint64
	found, err := getJSON(s.db, upperNonceKey(signer), &nonce)
	return nonce, found, err
}

func (s *LevelDBStorage) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}

type putter interface {
	Put(key, value []byte, wo *opt.WriteOptions) error
}

func putJSON(db putter, key []byte, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", value, err)
	}

	if err := db.Put(key, data, nil); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func getJSON(db *leveldb.DB, key []byte, value interface{}) (bool, error) {
	data, err := db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("failed getting data from db: %w", err)
	}

	if err := json.Unmarshal(data, value); err != nil {
		return false, fmt.Errorf("failed to unmarshal %T: %w", value, err)
	}
	return true, nil
}

func payloadKey(id uuid.UUID) []byte {
	return []byte(PayloadPrefix + id.String())
}

func transactionKey(id uuid.UUID) []byte {
	return []byte(TransactionPrefix + id.String())
}

func messagePayloadsKey(id common.Hash) []byte {
	return []byte(MessagePayloadsPrefix + id.Hex())
}

func messageKey(id common.Hash) []byte {
	return []byte(MessagePrefix + id.Hex())
}

func nonceOwnerKey(signer common.Address, nonce uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", NonceOwnerPrefix, signer.Hex(), nonce))
}

func upperNonceKey(signer common.Address) []byte {
	return []byte(UpperNoncePrefix + signer.Hex())
}
