package siege

import (
	"github.com/okian/siege/internal/domain/reward"
	"github.com/okian/siege/internal/domain/terrain"
	"github.com/okian/siege/pkg/logger"
)

// Option configures an Event.
type Option func(*Event)

// WithBroadcaster sets the message fan-out.
func WithBroadcaster(b Broadcaster) Option {
	return func(e *Event) {
		if b != nil {
			e.broadcaster = b
		}
	}
}

// WithArena sets the host map adapter.
func WithArena(a Arena) Option {
	return func(e *Event) {
		if a != nil {
			e.arena = a
		}
	}
}

// WithAuthority sets the server-side terrain authority.
func WithAuthority(a terrain.Authority) Option {
	return func(e *Event) {
		if a != nil {
			e.authority = a
		}
	}
}

// WithRankingSink sets where the final rank list is sent.
func WithRankingSink(s RankingSink) Option {
	return func(e *Event) {
		if s != nil {
			e.sink = s
		}
	}
}

// WithMultiplier sets the experience multiplier used at finalization.
func WithMultiplier(m reward.Multiplier) Option {
	return func(e *Event) {
		if m != nil {
			e.multiplier = m
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Event) {
		if l != nil {
			e.logger = l
		}
	}
}
