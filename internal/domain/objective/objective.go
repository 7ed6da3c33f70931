// Package objective implements the threshold-gated kill counter that gates
// each siege phase transition.
package objective

import (
	"sync/atomic"
)

// round is one armed objective. Reset swaps in a fresh round, so late
// counts against the old one never leak into the next phase.
type round struct {
	gen       uint64
	required  int64
	countable map[int]struct{}
	current   atomic.Int64
	fired     atomic.Bool
}

// Tracker counts qualifying kills toward the active objective.
type Tracker struct {
	active atomic.Pointer[round]
	gens   atomic.Uint64
}

// NewTracker returns a tracker with no armed objective; every TryCount is
// rejected until Reset is called.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.active.Store(&round{})
	return t
}

// Reset arms a new objective requiring required kills among the countable
// source ids. It returns the round number reported by TryCountRound.
func (t *Tracker) Reset(required int64, countable []int) uint64 {
	r := &round{
		gen:       t.gens.Add(1),
		required:  required,
		countable: make(map[int]struct{}, len(countable)),
	}
	for _, id := range countable {
		r.countable[id] = struct{}{}
	}
	t.active.Store(r)
	return r.gen
}

// TryCount counts one kill of sourceID. counted reports whether the kill
// was applied; crossed is true for exactly one caller per round, the one
// whose increment reached the requirement.
func (t *Tracker) TryCount(sourceID int) (counted, crossed bool) {
	counted, crossed, _ = t.TryCountRound(sourceID)
	return counted, crossed
}

// TryCountRound is TryCount that also reports which round the kill was
// counted against. A kill racing with Reset may land in the previous round.
func (t *Tracker) TryCountRound(sourceID int) (counted, crossed bool, gen uint64) {
	r := t.active.Load()
	if _, ok := r.countable[sourceID]; !ok {
		return false, false, r.gen
	}
	for {
		cur := r.current.Load()
		if cur >= r.required {
			return false, false, r.gen
		}
		if r.current.CompareAndSwap(cur, cur+1) {
			if cur+1 == r.required {
				return true, r.fired.CompareAndSwap(false, true), r.gen
			}
			return true, false, r.gen
		}
	}
}

// Progress returns the active objective's current and required counts.
func (t *Tracker) Progress() (current, required int64) {
	r := t.active.Load()
	return r.current.Load(), r.required
}

// Countable reports whether sourceID counts toward the active objective.
func (t *Tracker) Countable(sourceID int) bool {
	_, ok := t.active.Load().countable[sourceID]
	return ok
}
