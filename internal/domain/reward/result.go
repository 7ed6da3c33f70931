package reward

import (
	"slices"

	"github.com/okian/siege/internal/domain/model"
)

// Result is the frozen outcome of one siege. It is safe for concurrent
// reads.
type Result struct {
	outcome model.Outcome
	winner  string
	records []model.RewardRecord
	byName  map[string]int
}

func newResult(outcome model.Outcome, winner string, records []model.RewardRecord) *Result {
	byName := make(map[string]int, len(records))
	for i, r := range records {
		byName[r.Name] = i
	}
	return &Result{outcome: outcome, winner: winner, records: records, byName: byName}
}

// Outcome returns how the siege ended.
func (r *Result) Outcome() model.Outcome { return r.outcome }

// Winner returns the delivering participant, if any.
func (r *Result) Winner() string { return r.winner }

// Len returns the number of ranked participants.
func (r *Result) Len() int { return len(r.records) }

// Records returns a copy of every record ordered by rank.
func (r *Result) Records() []model.RewardRecord {
	return slices.Clone(r.records)
}

// Lookup returns the record of name.
func (r *Result) Lookup(name string) (model.RewardRecord, bool) {
	i, ok := r.byName[name]
	if !ok {
		return model.RewardRecord{}, false
	}
	return r.records[i], true
}

// Ranking returns the (rank, name, score) rows handed to ranking sinks.
func (r *Result) Ranking() []model.RankEntry {
	out := make([]model.RankEntry, len(r.records))
	for i, rec := range r.records {
		out[i] = model.RankEntry{Rank: rec.Rank, Name: rec.Name, Score: rec.Score}
	}
	return out
}
