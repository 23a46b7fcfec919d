package registry

import (
	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// New instantiates a new *Registry from the whitelist and blacklist.
func New(whitelist, blacklist relay.MatchingList) *Registry {
	return &Registry{
		whitelist: whitelist,
		blacklist: blacklist,
	}
}

// Registry is the relayer's watch list registry. The relayer only works with
// messages matched by the whitelist (an empty whitelist allows everything) and
// not matched by the blacklist.
type Registry struct {
	whitelist relay.MatchingList
	blacklist relay.MatchingList
}

// IsEmpty returns true if neither list has any elements.
func (r *Registry) IsEmpty() bool {
	return len(r.whitelist) == 0 && len(r.blacklist) == 0
}

// Allows returns true if the message should be relayed.
func (r *Registry) Allows(msg relay.Message) bool {
	info := relay.MatchInfo{
		MessageID:         msg.ID,
		OriginDomain:      msg.Origin,
		Sender:            msg.Sender,
		DestinationDomain: msg.Destination,
		Recipient:         msg.Recipient,
	}
	return r.whitelist.Matches(info, true) && !r.blacklist.Matches(info, false)
}
