package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/neutron-org/neutron-message-relayer/internal/relay"
)

// PayloadBuilder turns a message into the chain agnostic payload handed to
// the dispatcher.
type PayloadBuilder interface {
	BuildPayload(ctx context.Context, msg relay.Message) (*relay.Payload, error)
}

// BodyPayloadBuilder uses the message body as the payload data as is. It fits
// destinations where the body already is the call data (EVM) or a signed
// transaction (Cosmos).
type BodyPayloadBuilder struct{}

func (BodyPayloadBuilder) BuildPayload(_ context.Context, msg relay.Message) (*relay.Payload, error) {
	if len(msg.Body) == 0 {
		return nil, fmt.Errorf("message %s has an empty body", msg.ID.Hex())
	}
	return &relay.Payload{
		MessageID:         msg.ID,
		DestinationDomain: msg.Destination,
		Destination:       msg.Recipient,
		Data:              append([]byte(nil), msg.Body...),
		Status:            relay.ReadyToSubmit(),
		CreatedAt:         time.Now(),
	}, nil
}
