// Package terrain toggles passability of the arena's fixed region sets.
// The server-side change is always applied before it is announced to
// clients.
package terrain

import (
	"context"
	"fmt"

	"github.com/okian/siege/pkg/logger"
	"github.com/okian/siege/pkg/metrics"
)

// Region names one of the arena's fixed region sets.
type Region string

const (
	Entrance    Region = "entrance"
	Bridge      Region = "bridge"
	GatePassage Region = "gate_passage"
)

// Rect is an inclusive rectangle of arena cells.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// Authority applies server-side passability.
type Authority interface {
	SetPassable(ctx context.Context, r Rect, passable bool) error
}

// Announcer publishes an applied change for client rendering.
type Announcer func(ctx context.Context, region Region, rects []Rect, passable bool)

// Controller applies region changes through an Authority.
type Controller struct {
	authority Authority
	regions   map[Region][]Rect
	announce  Announcer
	logger    logger.Logger
}

// NewController builds a controller over the given region sets.
func NewController(authority Authority, regions map[Region][]Rect, opts ...Option) *Controller {
	c := &Controller{
		authority: authority,
		regions:   regions,
		announce:  func(context.Context, Region, []Rect, bool) {},
		logger:    logger.Get().Named("terrain"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply sets every rectangle of region to passable and, once all of them
// succeeded, announces the change. An authority failure aborts before the
// announcement.
func (c *Controller) Apply(ctx context.Context, region Region, passable bool) error {
	rects, ok := c.regions[region]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRegion, region)
	}
	for _, r := range rects {
		if err := c.authority.SetPassable(ctx, r, passable); err != nil {
			metrics.RecordErrorByComponent("terrain", "authority")
			c.logger.Error(ctx, "terrain change failed",
				logger.String("region", string(region)),
				logger.Bool("passable", passable),
				logger.Error(err),
			)
			return fmt.Errorf("%w: %s: %w", ErrAuthority, region, err)
		}
	}
	metrics.RecordTerrainChange(string(region), passable)
	c.logger.Debug(ctx, "terrain changed",
		logger.String("region", string(region)),
		logger.Bool("passable", passable),
		logger.Int("rects", len(rects)),
	)
	c.announce(ctx, region, rects, passable)
	return nil
}
