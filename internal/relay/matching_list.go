package relay

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

const wildcard = "*"

// Filter is either a wildcard (the zero value) or an enumerated allow-set.
// In JSON it is "*", a single value or an array of values.
type Filter[T comparable] struct {
	Enumerated bool
	Values     []T
}

func Wildcard[T comparable]() Filter[T] {
	return Filter[T]{}
}

func Enumerated[T comparable](values ...T) Filter[T] {
	return Filter[T]{Enumerated: true, Values: values}
}

func (f Filter[T]) Matches(v T) bool {
	if !f.Enumerated {
		return true
	}
	for _, allowed := range f.Values {
		if allowed == v {
			return true
		}
	}
	return false
}

func (f Filter[T]) MarshalJSON() ([]byte, error) {
	if !f.Enumerated {
		return json.Marshal(wildcard)
	}
	if f.Values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f.Values)
}

func (f *Filter[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte(`"*"`)), bytes.Equal(data, []byte("null")):
		*f = Wildcard[T]()
		return nil
	case len(data) > 0 && data[0] == '[':
		var values []T
		if err := json.Unmarshal(data, &values); err != nil {
			return fmt.Errorf("failed to unmarshal filter values: %w", err)
		}
		*f = Enumerated(values...)
		return nil
	default:
		var value T
		if err := json.Unmarshal(data, &value); err != nil {
			return fmt.Errorf("failed to unmarshal filter value: %w", err)
		}
		*f = Enumerated(value)
		return nil
	}
}

// ListElement matches when every one of its filters matches.
type ListElement struct {
	MessageID         Filter[common.Hash] `json:"messageid"`
	OriginDomain      Filter[uint32]      `json:"origindomain"`
	SenderAddress     Filter[common.Hash] `json:"senderaddress"`
	DestinationDomain Filter[uint32]      `json:"destinationdomain"`
	RecipientAddress  Filter[common.Hash] `json:"recipientaddress"`
}

func (e ListElement) Matches(info MatchInfo) bool {
	return e.MessageID.Matches(info.MessageID) &&
		e.OriginDomain.Matches(info.OriginDomain) &&
		e.SenderAddress.Matches(info.Sender) &&
		e.DestinationDomain.Matches(info.DestinationDomain) &&
		e.RecipientAddress.Matches(info.Recipient)
}

// MatchingList matches when any of its elements matches.
type MatchingList []ListElement

type MatchInfo struct {
	MessageID         common.Hash
	OriginDomain      uint32
	Sender            common.Hash
	DestinationDomain uint32
	Recipient         common.Hash
}

func MatchInfoFromOperation(op QueueOperation) MatchInfo {
	return MatchInfo{
		MessageID:         op.ID(),
		OriginDomain:      op.OriginDomain(),
		Sender:            op.SenderAddress(),
		DestinationDomain: op.DestinationDomain(),
		Recipient:         op.RecipientAddress(),
	}
}

// Matches returns defaultValue for an empty list.
func (l MatchingList) Matches(info MatchInfo, defaultValue bool) bool {
	if len(l) == 0 {
		return defaultValue
	}
	for _, e := range l {
		if e.Matches(info) {
			return true
		}
	}
	return false
}

// OperationMatches is the retry flavour of Matches: an empty list matches nothing.
func (l MatchingList) OperationMatches(op QueueOperation) bool {
	return l.Matches(MatchInfoFromOperation(op), false)
}

// MessageRetryRequest asks every operation queue to reset the backoff of the
// operations matching Pattern. Each queue answers on Response.
type MessageRetryRequest struct {
	UUID     uuid.UUID
	Pattern  MatchingList
	Response chan<- MessageRetryQueueResponse
}

type MessageRetryQueueResponse struct {
	UUID      uuid.UUID `json:"uuid"`
	Matched   uint32    `json:"matched"`
	Evaluated uint32    `json:"evaluated"`
}
