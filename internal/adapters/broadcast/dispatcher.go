// Package broadcast fans siege messages out to participants. The
// Dispatcher runs every per-recipient send on its own goroutine so a slow
// or failing recipient never reaches the state machine that emitted the
// message.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/pkg/logger"
	"github.com/okian/siege/pkg/metrics"
)

const defaultTimeout = 2 * time.Second

// Messenger delivers one message to one recipient.
type Messenger interface {
	Send(ctx context.Context, recipient string, msg model.Message) error
}

// Dispatcher implements the siege broadcaster on top of a Messenger.
type Dispatcher struct {
	messenger Messenger
	timeout   time.Duration
	logger    logger.Logger
	wg        sync.WaitGroup
}

// NewDispatcher returns a dispatcher over m.
func NewDispatcher(m Messenger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		messenger: m,
		timeout:   defaultTimeout,
		logger:    logger.Get().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Broadcast sends msg to every recipient without waiting.
func (d *Dispatcher) Broadcast(ctx context.Context, recipients []string, msg model.Message) {
	for _, r := range recipients {
		d.spawn(ctx, r, msg)
	}
}

// Direct sends msg to one recipient without waiting.
func (d *Dispatcher) Direct(ctx context.Context, recipient string, msg model.Message) {
	d.spawn(ctx, recipient, msg)
}

// Wait blocks until every in-flight send returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) spawn(ctx context.Context, recipient string, msg model.Message) {
	metrics.RecordBroadcast(string(msg.Kind))
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		start := time.Now()
		err := d.send(ctx, recipient, msg)
		metrics.RecordBroadcastLatency(float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.RecordBroadcastFailure(string(msg.Kind))
			d.logger.Warn(ctx, "broadcast send failed",
				logger.String("siege_id", msg.SiegeID),
				logger.String("recipient", recipient),
				logger.String("kind", string(msg.Kind)),
				logger.Error(err),
			)
		}
	}()
}

func (d *Dispatcher) send(ctx context.Context, recipient string, msg model.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSendPanicked, r)
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.messenger.Send(ctx, recipient, msg)
}
