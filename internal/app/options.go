package service

import (
	"github.com/okian/siege/internal/adapters/broadcast"
	"github.com/okian/siege/internal/adapters/repository"
	"github.com/okian/siege/internal/domain/reward"
	"github.com/okian/siege/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithMessenger adds a delivery channel for broadcasts. Every messenger
// receives every message.
func WithMessenger(m broadcast.Messenger) Option {
	return func(s *Service) {
		if m != nil {
			s.messengers = append(s.messengers, m)
		}
	}
}

// WithLeaderboard replaces the in-memory leaderboard used for reads. The
// store also receives every final ranking.
func WithLeaderboard(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.leaderboard = store
		}
	}
}

// WithRankingSink adds a write-only destination for final rankings.
func WithRankingSink(name string, sink repository.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sinks = append(s.sinks, namedSink{name: name, sink: sink})
		}
	}
}

// WithMultiplier sets the experience multiplier applied at finalization.
func WithMultiplier(m reward.Multiplier) Option {
	return func(s *Service) {
		if m != nil {
			s.multiplier = m
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
