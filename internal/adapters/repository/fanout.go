package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/pkg/logger"
)

// Fanout records every rank list into several sinks. A failing sink never
// keeps the others from recording.
type Fanout struct {
	names  []string
	sinks  []Sink
	logger logger.Logger
}

// NewFanout returns an empty fan-out.
func NewFanout() *Fanout {
	return &Fanout{logger: logger.Get().Named("ranking_fanout")}
}

// Add appends a named sink.
func (f *Fanout) Add(name string, s Sink) *Fanout {
	f.names = append(f.names, name)
	f.sinks = append(f.sinks, s)
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Record writes entries to each sink.
func (f *Fanout) Record(ctx context.Context, siegeID string, entries []model.RankEntry) error {
	var errs []error
	for i, s := range f.sinks {
		if err := s.Record(ctx, siegeID, entries); err != nil {
			f.logger.Error(ctx, "ranking sink failed",
				logger.String("sink", f.names[i]),
				logger.String("siege_id", siegeID),
				logger.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", f.names[i], err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrSinkFailed, errors.Join(errs...))
	}
	return nil
}
