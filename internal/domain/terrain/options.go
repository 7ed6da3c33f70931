package terrain

import "github.com/okian/siege/pkg/logger"

// Option configures a Controller.
type Option func(*Controller)

// WithAnnouncer sets the callback that publishes a change for client
// rendering once the authority has applied it.
func WithAnnouncer(a Announcer) Option {
	return func(c *Controller) {
		if a != nil {
			c.announce = a
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}
