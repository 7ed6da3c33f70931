package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/siege/internal/domain/model"
)

// Multi sends every message through each messenger in turn.
type Multi []Messenger

// Send implements Messenger. All messengers are tried; their errors are
// joined.
func (m Multi) Send(ctx context.Context, recipient string, msg model.Message) error {
	var errs []error
	for _, inner := range m {
		if err := inner.Send(ctx, recipient, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Delivery is one message received by the Recorder.
type Delivery struct {
	Recipient string
	Message   model.Message
}

// Recorder keeps every message in memory. The simulator and tests read
// from it.
type Recorder struct {
	mu   sync.Mutex
	sent []Delivery
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Send implements Messenger.
func (r *Recorder) Send(_ context.Context, recipient string, msg model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Delivery{Recipient: recipient, Message: msg})
	return nil
}

// Deliveries returns a copy of everything recorded.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.sent))
	copy(out, r.sent)
	return out
}

// Count returns how many messages of kind were recorded.
func (r *Recorder) Count(kind model.MessageKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.sent {
		if d.Message.Kind == kind {
			n++
		}
	}
	return n
}

// For returns the messages recorded for recipient.
func (r *Recorder) For(recipient string) []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Message
	for _, d := range r.sent {
		if d.Recipient == recipient {
			out = append(out, d.Message)
		}
	}
	return out
}
