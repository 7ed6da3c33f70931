// Package countdown implements the cancellable periodic timer that bounds
// a siege.
package countdown

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/siege/pkg/logger"
	"github.com/okian/siege/pkg/metrics"
)

// Reason tells the stop hook why the loop ended.
type Reason int

const (
	Expired Reason = iota
	Cancelled
	Failed
)

func (r Reason) String() string {
	switch r {
	case Expired:
		return "expired"
	case Cancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// TickFunc runs on every tick with the ticks left after it.
type TickFunc func(ctx context.Context, remaining int)

// StopFunc runs exactly once when the loop ends, whatever the reason.
type StopFunc func(ctx context.Context, reason Reason)

// Clock counts a fixed number of ticks down to zero on one goroutine.
type Clock struct {
	period   time.Duration
	max      int
	left     atomic.Int64
	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	logger   logger.Logger
}

// New returns a stopped clock of maxTicks ticks of period each.
func New(period time.Duration, maxTicks int, opts ...Option) *Clock {
	c := &Clock{
		period: period,
		max:    maxTicks,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.Get().Named("countdown"),
	}
	c.left.Store(int64(maxTicks))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the loop. onStop is guaranteed to run once the loop ends,
// including when onTick panics.
func (c *Clock) Start(ctx context.Context, onTick TickFunc, onStop StopFunc) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	go func() {
		defer close(c.done)
		reason := c.run(ctx, onTick)
		c.stop(ctx, onStop, reason)
	}()
	return nil
}

func (c *Clock) run(ctx context.Context, onTick TickFunc) Reason {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Cancelled
		case <-c.stopCh:
			return Cancelled
		case <-ticker.C:
			left := int(c.left.Add(-1))
			if err := c.tick(ctx, onTick, left); err != nil {
				metrics.RecordCountdownFailure()
				c.logger.Error(ctx, "countdown loop failed", logger.Error(err), logger.Int("remaining", left))
				return Failed
			}
			if left <= 0 {
				return Expired
			}
		}
	}
}

func (c *Clock) tick(ctx context.Context, onTick TickFunc, left int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTickPanicked, r)
		}
	}()
	onTick(ctx, left)
	return nil
}

func (c *Clock) stop(ctx context.Context, onStop StopFunc, reason Reason) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(ctx, "countdown stop hook panicked", logger.Any("panic", r))
		}
	}()
	c.logger.Debug(ctx, "countdown stopped", logger.String("reason", reason.String()))
	onStop(ctx, reason)
}

// Stop requests cancellation. It never blocks; the loop observes it within
// one period.
func (c *Clock) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Done is closed after the stop hook returned.
func (c *Clock) Done() <-chan struct{} {
	return c.done
}

// RemainingTicks returns the ticks left.
func (c *Clock) RemainingTicks() int {
	return int(max(c.left.Load(), 0))
}

// Remaining returns the time left.
func (c *Clock) Remaining() time.Duration {
	return time.Duration(c.RemainingTicks()) * c.period
}

// MaxTicks returns the configured duration in ticks.
func (c *Clock) MaxTicks() int {
	return c.max
}

// Period returns the tick period.
func (c *Clock) Period() time.Duration {
	return c.period
}
