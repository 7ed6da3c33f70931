// Package repository holds the cross-siege leaderboard and the ranking
// sinks that receive the rank list of every finalized siege.
package repository

import (
	"context"

	"github.com/okian/siege/internal/domain/model"
)

// Entry represents a leaderboard row.
type Entry struct {
	Rank    int    `json:"rank"`
	Name    string `json:"name"`
	Score   int64  `json:"score"`
	SiegeID string `json:"siege_id"`
}

// Sink receives the final rank list of a siege.
type Sink interface {
	Record(ctx context.Context, siegeID string, entries []model.RankEntry) error
}

// Store is a Sink that can also be queried.
type Store interface {
	Sink

	// UpdateBest sets a new best score for name if higher than the existing one.
	// Returns true if the store updated the score, false otherwise.
	UpdateBest(ctx context.Context, name string, score int64, siegeID string) (bool, error)

	// Rank returns the current rank and best score for name.
	// Returns ErrNotFound if name is unknown.
	Rank(ctx context.Context, name string) (Entry, error)

	// TopN returns the top-N entries ordered by score desc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of participants tracked.
	Count(ctx context.Context) int
}
