package broadcast

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/hammamikhairi/turnocall/internal/logger"
)

// Compile-time interface check.
var _ Backend = (*NATSBackend)(nil)

// NATSBackend carries announcements on a NATS subject named after the
// channel.
type NATSBackend struct {
	conn *nats.Conn
	log  *logger.Logger
}

// NewNATSBackend connects to the NATS server at url.
func NewNATSBackend(url string, log *logger.Logger) (*NATSBackend, error) {
	conn, err := nats.Connect(url, nats.Name("turnocall"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Debug("nats backend: connected to %s", conn.ConnectedUrl())
	return &NATSBackend{conn: conn, log: log}, nil
}

// Send publishes payload on the channel subject.
func (n *NATSBackend) Send(_ context.Context, channel string, payload []byte) error {
	if err := n.conn.Publish(channel, payload); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Listen subscribes fn to the channel subject.
func (n *NATSBackend) Listen(_ context.Context, channel string, fn func([]byte)) (func(), error) {
	sub, err := n.conn.Subscribe(channel, func(msg *nats.Msg) {
		fn(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			n.log.Debug("nats backend: unsubscribe: %v", err)
		}
	}, nil
}

// Close drains pending messages and closes the connection.
func (n *NATSBackend) Close() error {
	return n.conn.Drain()
}
