package push

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSNotifier publishes offline notifications on a core NATS subject with
// the receiver in the User-Id header.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
}

func NewNATSNotifier(nc *nats.Conn, subject string) *NATSNotifier {
	return &NATSNotifier{nc: nc, subject: subject}
}

func (n *NATSNotifier) PushOffline(_ context.Context, userID string, p Payload) error {
	msg, err := natsMsg(n.subject, userID, p)
	if err != nil {
		return err
	}
	if err := n.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats offline push: %w", err)
	}
	return nil
}

func natsMsg(subject, userID string, p Payload) (*nats.Msg, error) {
	data, err := encode(userID, p)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("User-Id", userID)
	return msg, nil
}
