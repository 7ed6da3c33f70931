package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/okian/siege/internal/domain/model"

	"github.com/nats-io/nats.go"
)

// Publisher is the slice of *nats.Conn the messenger uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSMessenger publishes each message as JSON on
// <prefix>.<siege id>.<recipient>.
type NATSMessenger struct {
	pub    Publisher
	prefix string
}

// NewNATSMessenger wraps a connection or any other Publisher.
func NewNATSMessenger(pub Publisher, prefix string) *NATSMessenger {
	if prefix == "" {
		prefix = "siege"
	}
	return &NATSMessenger{pub: pub, prefix: prefix}
}

// DialNATS connects with reconnects enabled.
func DialNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("siege-coordinator"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject a recipient listens on.
func (m *NATSMessenger) Subject(siegeID, recipient string) string {
	return m.prefix + "." + token(siegeID) + "." + token(recipient)
}

// Send implements Messenger.
func (m *NATSMessenger) Send(ctx context.Context, recipient string, msg model.Message) error {
	if m.pub == nil {
		return ErrNoConnection
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Recipient: recipient, Message: msg})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodeMessage, err)
	}
	return m.pub.Publish(m.Subject(msg.SiegeID, recipient), data)
}

type envelope struct {
	Recipient string `json:"recipient"`
	model.Message
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
