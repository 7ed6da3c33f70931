package broadcast

import (
	"time"

	"github.com/okian/siege/pkg/logger"
)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout bounds a single per-recipient send.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}
