package processor

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// PendingMessage is a message waiting to be delivered. It moves between the
// prepare and confirm queues until its payload is finalized.
type PendingMessage struct {
	mu sync.Mutex

	record           *relay.MessageRecord
	status           relay.OperationStatus
	attempts         uint32
	nextAttemptAfter time.Time
	backoff          *backoff.ExponentialBackOff
	now              func() time.Time
}

var _ relay.QueueOperation = (*PendingMessage)(nil)

// NewPendingMessage creates an operation that is eligible right away. Retries
// back off exponentially from baseBackoff up to maxBackoff.
func NewPendingMessage(record *relay.MessageRecord, baseBackoff, maxBackoff time.Duration) *PendingMessage {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseBackoff
	b.MaxInterval = maxBackoff
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.Reset()

	return &PendingMessage{
		record:  record,
		status:  relay.FirstPrepareAttempt(),
		backoff: b,
		now:     time.Now,
	}
}

func (m *PendingMessage) Message() relay.Message {
	return m.record.Message
}

func (m *PendingMessage) Record() *relay.MessageRecord {
	return m.record
}

func (m *PendingMessage) ID() common.Hash               { return m.record.Message.ID }
func (m *PendingMessage) OriginDomain() uint32          { return m.record.Message.Origin }
func (m *PendingMessage) DestinationDomain() uint32     { return m.record.Message.Destination }
func (m *PendingMessage) SenderAddress() common.Hash    { return m.record.Message.Sender }
func (m *PendingMessage) RecipientAddress() common.Hash { return m.record.Message.Recipient }
func (m *PendingMessage) AppContext() string            { return m.record.AppContext }

// Priority is the message nonce: older messages go first.
func (m *PendingMessage) Priority() uint32 {
	return m.record.Message.Nonce
}

func (m *PendingMessage) NextAttemptAfter() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.nextAttemptAfter
}

func (m *PendingMessage) Attempts() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.attempts
}

func (m *PendingMessage) Status() relay.OperationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.status
}

func (m *PendingMessage) SetStatus(status relay.OperationStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.status = status
}

// ResetAttempts makes the message eligible immediately and restarts its backoff.
func (m *PendingMessage) ResetAttempts() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts = 0
	m.nextAttemptAfter = time.Time{}
	m.backoff.Reset()
}

// OnRetry records a failed attempt and schedules the next one.
func (m *PendingMessage) OnRetry(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	m.status = relay.RetryStatus(reason)
	m.nextAttemptAfter = m.now().Add(m.backoff.NextBackOff())
}

// Delay postpones the next attempt by d without counting a failure.
func (m *PendingMessage) Delay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAttemptAfter = m.now().Add(d)
}
