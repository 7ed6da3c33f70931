// Package participant tracks the per-player records of one siege: score,
// liveness and presence on the map.
package participant

import (
	"sync"
	"sync/atomic"
)

// Participant is a value copy of one registry entry.
type Participant struct {
	Name    string
	Party   string
	Score   int64
	Alive   bool
	Present bool
	// Order is the registration position, used to break score ties.
	Order int
}

type entry struct {
	name    string
	party   string
	order   int
	score   atomic.Int64
	alive   atomic.Bool
	present atomic.Bool
}

// Registry holds the participants of one siege. Entries are never removed;
// a participant who leaves stays scorable until finalization.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*entry
	ordered []*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*entry)}
}

// Register adds name if absent. It reports whether a new entry was created.
func (r *Registry) Register(name, party string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		return false
	}
	e := &entry{name: name, party: party, order: len(r.ordered)}
	e.alive.Store(true)
	e.present.Store(true)
	r.byName[name] = e
	r.ordered = append(r.ordered, e)
	return true
}

func (r *Registry) get(name string) *entry {
	r.mu.RLock()
	e := r.byName[name]
	r.mu.RUnlock()
	return e
}

// AddScore credits delta to name. Unknown names are ignored and reported
// with false.
func (r *Registry) AddScore(name string, delta int64) bool {
	e := r.get(name)
	if e == nil {
		return false
	}
	e.score.Add(delta)
	return true
}

// Count returns how many participants were registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// SetAlive records a death or a revival.
func (r *Registry) SetAlive(name string, alive bool) bool {
	e := r.get(name)
	if e == nil {
		return false
	}
	e.alive.Store(alive)
	return true
}

// MarkAbsent records that name left the map. It reports whether the
// participant was present before the call.
func (r *Registry) MarkAbsent(name string) bool {
	e := r.get(name)
	if e == nil {
		return false
	}
	return e.present.Swap(false)
}

// Get returns a copy of one participant.
func (r *Registry) Get(name string) (Participant, bool) {
	e := r.get(name)
	if e == nil {
		return Participant{}, false
	}
	return e.snapshot(), true
}

// Snapshot returns every participant in registration order.
func (r *Registry) Snapshot() []Participant {
	return r.collect(false)
}

// Present returns the participants still on the map, in registration order.
func (r *Registry) Present() []Participant {
	return r.collect(true)
}

// PresentCount returns how many participants are still on the map.
func (r *Registry) PresentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.ordered {
		if e.present.Load() {
			n++
		}
	}
	return n
}

func (r *Registry) collect(presentOnly bool) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Participant, 0, len(r.ordered))
	for _, e := range r.ordered {
		if presentOnly && !e.present.Load() {
			continue
		}
		out = append(out, e.snapshot())
	}
	return out
}

func (e *entry) snapshot() Participant {
	return Participant{
		Name:    e.name,
		Party:   e.party,
		Score:   e.score.Load(),
		Alive:   e.alive.Load(),
		Present: e.present.Load(),
		Order:   e.order,
	}
}

// Names returns the names of the given participants.
func Names(ps []Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}
