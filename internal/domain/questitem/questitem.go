// Package questitem manages custody of the single quest item of a siege.
package questitem

import (
	"sync"

	"github.com/okian/siege/internal/domain/model"
)

// State is where the quest item currently is.
type State int

const (
	Absent State = iota
	OnGround
	HeldBy
	Delivered
	Removed
)

func (s State) String() string {
	switch s {
	case OnGround:
		return "on_ground"
	case HeldBy:
		return "held"
	case Delivered:
		return "delivered"
	case Removed:
		return "removed"
	default:
		return "absent"
	}
}

// Transition reports what ParticipantRemoved did.
type Transition int

const (
	NoChange Transition = iota
	Dropped
	Deleted
)

// Snapshot is a copy of the custody state.
type Snapshot struct {
	State  State
	Holder string
	Pos    model.Position
}

// Custodian serializes every transition of the quest item.
type Custodian struct {
	mu     sync.Mutex
	state  State
	holder string
	pos    model.Position
}

// NewCustodian returns a custodian whose item does not exist yet.
func NewCustodian() *Custodian {
	return &Custodian{}
}

// Spawn creates the item on the ground. The item can only ever be created
// once.
func (c *Custodian) Spawn(pos model.Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Absent {
		return ErrAlreadySpawned
	}
	c.state, c.pos = OnGround, pos
	return nil
}

// Pickup gives the grounded item to name.
func (c *Custodian) Pickup(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != OnGround {
		return ErrItemNotAvailable
	}
	c.state, c.holder = HeldBy, name
	return nil
}

// Deliver hands the item in on behalf of name, who must be holding it.
func (c *Custodian) Deliver(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != HeldBy || c.holder != name {
		return ErrNotHoldingItem
	}
	c.state = Delivered
	return nil
}

// ParticipantRemoved handles the holder leaving the map. While the siege is
// active the item drops at lastPos; afterwards it is deleted. Participants
// not holding the item are ignored.
func (c *Custodian) ParticipantRemoved(name string, lastPos model.Position, active bool) Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != HeldBy || c.holder != name {
		return NoChange
	}
	c.holder = ""
	if active {
		c.state, c.pos = OnGround, lastPos
		return Dropped
	}
	c.state = Removed
	return Deleted
}

// Clear removes the item wherever it is, unless it was delivered. It
// returns the former holder, if any, and whether anything was removed.
func (c *Custodian) Clear() (holder string, cleared bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case OnGround, HeldBy:
		holder = c.holder
		c.state, c.holder = Removed, ""
		return holder, true
	default:
		return "", false
	}
}

// Snapshot returns the current custody state.
func (c *Custodian) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, Holder: c.holder, Pos: c.pos}
}
