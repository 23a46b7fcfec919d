package registry_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/neutron-org/neutron-message-relayer/internal/registry"
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

var (
	senderA = common.HexToHash("0xaa")
	senderB = common.HexToHash("0xbb")
)

func message(origin uint32, sender common.Hash) relay.Message {
	msg := relay.Message{Origin: origin, Sender: sender, Destination: 2, Recipient: common.HexToHash("0x01")}
	msg.ID = msg.ComputeID()
	return msg
}

func TestRegistryWithEmptyLists(t *testing.T) {
	r := registry.New(nil, nil)
	assert.True(t, r.IsEmpty())
	assert.True(t, r.Allows(message(1, senderA)))
	assert.True(t, r.Allows(message(7, senderB)))
}

func TestRegistryWithWhitelist(t *testing.T) {
	r := registry.New(relay.MatchingList{
		{OriginDomain: relay.Enumerated[uint32](1), SenderAddress: relay.Enumerated(senderA)},
	}, nil)
	assert.False(t, r.IsEmpty())
	assert.True(t, r.Allows(message(1, senderA)))
	assert.False(t, r.Allows(message(1, senderB)))
	assert.False(t, r.Allows(message(2, senderA)))
}

func TestRegistryWithBlacklist(t *testing.T) {
	r := registry.New(nil, relay.MatchingList{
		{SenderAddress: relay.Enumerated(senderB)},
	})
	assert.True(t, r.Allows(message(1, senderA)))
	assert.False(t, r.Allows(message(1, senderB)))
}

func TestRegistryBlacklistWins(t *testing.T) {
	r := registry.New(
		relay.MatchingList{{OriginDomain: relay.Enumerated[uint32](1)}},
		relay.MatchingList{{SenderAddress: relay.Enumerated(senderB)}},
	)
	assert.True(t, r.Allows(message(1, senderA)))
	assert.False(t, r.Allows(message(1, senderB)))
	assert.False(t, r.Allows(message(3, senderA)))
}
