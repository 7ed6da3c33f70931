package countdown

import "github.com/okian/siege/pkg/logger"

// Option configures a Clock.
type Option func(*Clock)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Clock) {
		if l != nil {
			c.logger = l
		}
	}
}
