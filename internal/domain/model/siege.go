// Package model contains domain models passed between layers.
package model

import "time"

// Phase is one stage of a siege's one-directional progression.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseBridgeClosed
	PhaseBridgeOpen
	PhaseGateDestroyed
	PhaseBossSummoned
	PhaseEnded
)

var phaseNames = [...]string{
	PhaseNotStarted:    "not_started",
	PhaseBridgeClosed:  "bridge_closed",
	PhaseBridgeOpen:    "bridge_open",
	PhaseGateDestroyed: "gate_destroyed",
	PhaseBossSummoned:  "boss_summoned",
	PhaseEnded:         "ended",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Outcome is how an ended siege finished.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeWon
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWon:
		return "won"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "none"
	}
}

// SourceKind classifies a killed entity. It is resolved once when a kill
// enters the event and never re-inspected downstream.
type SourceKind int

const (
	SourceMonster SourceKind = iota
	SourceGate
	SourceBoss
	SourceUnknownStructure
)

func (k SourceKind) String() string {
	switch k {
	case SourceMonster:
		return "monster"
	case SourceGate:
		return "gate"
	case SourceBoss:
		return "boss"
	default:
		return "unknown_structure"
	}
}

// Position is an arena cell.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Member is one roster entry handed to a siege at start.
type Member struct {
	Name  string `json:"name"`
	Party string `json:"party,omitempty"`
}

// Kill is a death notification. EntityID is the killed entity's definition
// id; Structure is set when the entity is a destructible structure rather
// than a monster.
type Kill struct {
	Killer    string   `json:"killer"`
	EntityID  int      `json:"entity_id"`
	Structure bool     `json:"structure,omitempty"`
	Pos       Position `json:"pos"`
}

// RankEntry is one row of a finalized siege ranking, sent to ranking sinks.
type RankEntry struct {
	Rank  int    `json:"rank"`
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// RewardRecord is the immutable per-participant result of a siege.
type RewardRecord struct {
	Name       string `json:"name"`
	Party      string `json:"party,omitempty"`
	Rank       int    `json:"rank"`
	Score      int64  `json:"score"`
	Experience int64  `json:"experience"`
	Money      int64  `json:"money"`
}

// Status is a point-in-time projection of a siege.
type Status struct {
	ID            string        `json:"id"`
	Level         int           `json:"level"`
	Phase         string        `json:"phase"`
	Outcome       string        `json:"outcome"`
	Winner        string        `json:"winner,omitempty"`
	GateDestroyed bool          `json:"gate_destroyed"`
	Remaining     time.Duration `json:"remaining_ns"`
	Kills         int64         `json:"objective_kills"`
	Required      int64         `json:"objective_required"`
	Present       []string      `json:"present"`
	QuestItem     string        `json:"quest_item"`
	Holder        string        `json:"holder,omitempty"`
}
