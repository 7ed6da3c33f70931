// Package arena provides an in-memory stand-in for the host map: cell
// passability, the boss and the quest item entity. The simulator and the
// HTTP service use it when no game server is attached.
package arena

import (
	"context"
	"sync"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/terrain"
)

type cell struct{ x, y int }

// Item describes the quest item entity on the map.
type Item struct {
	ID       int
	Pos      model.Position
	OnGround bool
	// Holder is set when the item was removed from a participant's inventory.
	Holder string
}

// Memory implements terrain.Authority and the siege arena.
type Memory struct {
	mu      sync.RWMutex
	blocked map[cell]bool
	summons []int
	item    *Item
	removed []Item
}

// NewMemory returns a map whose cells are passable except those in blocked.
func NewMemory(blocked ...terrain.Rect) *Memory {
	m := &Memory{blocked: make(map[cell]bool)}
	for _, r := range blocked {
		m.fill(r, true)
	}
	return m
}

func (m *Memory) fill(r terrain.Rect, blocked bool) {
	for x := min(r.X1, r.X2); x <= max(r.X1, r.X2); x++ {
		for y := min(r.Y1, r.Y2); y <= max(r.Y1, r.Y2); y++ {
			if blocked {
				m.blocked[cell{x, y}] = true
			} else {
				delete(m.blocked, cell{x, y})
			}
		}
	}
}

// SetPassable implements terrain.Authority.
func (m *Memory) SetPassable(ctx context.Context, r terrain.Rect, passable bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fill(r, !passable)
	return nil
}

// Passable reports whether a cell can be walked on.
func (m *Memory) Passable(x, y int) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.blocked[cell{x, y}]
}

// SummonBoss records a boss spawn.
func (m *Memory) SummonBoss(_ context.Context, bossID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summons = append(m.summons, bossID)
	return nil
}

// PlaceQuestItem puts the item on the ground at pos.
func (m *Memory) PlaceQuestItem(_ context.Context, itemID int, pos model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.item = &Item{ID: itemID, Pos: pos, OnGround: true}
	return nil
}

// RemoveQuestItem deletes the item from the ground or from holder.
func (m *Memory) RemoveQuestItem(_ context.Context, itemID int, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := Item{ID: itemID, Holder: holder}
	if m.item != nil {
		it.Pos = m.item.Pos
	}
	m.removed = append(m.removed, it)
	m.item = nil
	return nil
}

// BossSummons returns how many times the boss was summoned.
func (m *Memory) BossSummons() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.summons)
}

// QuestItem returns the item on the ground, if any.
func (m *Memory) QuestItem() (Item, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.item == nil {
		return Item{}, false
	}
	return *m.item, true
}

// Removed returns every quest item removal.
func (m *Memory) Removed() []Item {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, len(m.removed))
	copy(out, m.removed)
	return out
}
