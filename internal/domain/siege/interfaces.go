package siege

import (
	"context"

	"github.com/okian/siege/internal/domain/model"
)

// Broadcaster delivers messages without blocking the caller. Delivery
// failures are the broadcaster's concern.
type Broadcaster interface {
	Broadcast(ctx context.Context, recipients []string, msg model.Message)
	Direct(ctx context.Context, recipient string, msg model.Message)
}

// Arena is the host's map: it spawns the boss and the quest item entity.
type Arena interface {
	SummonBoss(ctx context.Context, bossID int) error
	PlaceQuestItem(ctx context.Context, itemID int, pos model.Position) error
	RemoveQuestItem(ctx context.Context, itemID int, holder string) error
}

// RankingSink receives the final rank list of a siege.
type RankingSink interface {
	Record(ctx context.Context, siegeID string, entries []model.RankEntry) error
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(context.Context, []string, model.Message) {}
func (nopBroadcaster) Direct(context.Context, string, model.Message)      {}

type nopArena struct{}

func (nopArena) SummonBoss(context.Context, int) error                     { return nil }
func (nopArena) PlaceQuestItem(context.Context, int, model.Position) error { return nil }
func (nopArena) RemoveQuestItem(context.Context, int, string) error        { return nil }

type nopSink struct{}

func (nopSink) Record(context.Context, string, []model.RankEntry) error { return nil }
