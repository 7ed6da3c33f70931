// Package reward ranks the participants of a finalized siege and computes
// their score, money and experience rewards.
package reward

import (
	"slices"

	"github.com/okian/siege/internal/config"
	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/participant"
)

// Multiplier scales a participant's experience bonus, e.g. for map or seal
// bonuses owned by the host.
type Multiplier interface {
	Experience(name string, base int64) int64
}

type identity struct{}

func (identity) Experience(_ string, base int64) int64 { return base }

// Input is everything the engine needs from the finished siege.
type Input struct {
	Level            int
	Outcome          model.Outcome
	Winner           string
	RemainingSeconds int64
	GateDestroyer    string
	BossKiller       string
	// Participants are those present at finalization, in any order.
	Participants []participant.Participant
	// Parties maps every registered name to its party, including those who
	// left, so a credited player's party is known after they are gone.
	Parties map[string]string
}

// Engine computes siege results from the reward tables.
type Engine struct {
	tables     config.RewardConfig
	multiplier Multiplier
}

// NewEngine returns an engine over tables.
func NewEngine(tables config.RewardConfig, opts ...Option) *Engine {
	e := &Engine{tables: tables, multiplier: identity{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute ranks in.Participants and returns the immutable result.
func (e *Engine) Compute(in Input) *Result {
	ps := slices.Clone(in.Participants)
	slices.SortStableFunc(ps, func(a, b participant.Participant) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return a.Order - b.Order
	})

	won := in.Outcome == model.OutcomeWon
	parties := partyIndex(in.Parties, ps)
	records := make([]model.RewardRecord, len(ps))
	for i, p := range ps {
		rank := i + 1
		rec := model.RewardRecord{Name: p.Name, Party: p.Party, Rank: rank}
		if won {
			rec.Score = p.Score + at(e.tables.SuccessRankBonus, rank)
			rec.Money = e.money(in, p, parties)
			rec.Experience = e.multiplier.Experience(p.Name, e.experience(in, p, parties))
		} else {
			rec.Score = p.Score + at(e.tables.FailureRankBonus, rank) - e.tables.TimeoutPenalty
			if rec.Score < 0 && !e.tables.AllowNegativeScore {
				rec.Score = 0
			}
			rec.Money = at(e.tables.FailedMoney, in.Level)
			rec.Experience = at(e.tables.FailedExperience, in.Level)
		}
		records[i] = rec
	}
	return newResult(in.Outcome, in.Winner, records)
}

func (e *Engine) money(in Input, p participant.Participant, parties map[string]string) int64 {
	base := at(e.tables.Money, in.Level)
	if sameSide(p, in.Winner, parties) {
		return base * e.tables.WinnerMoneyFactor
	}
	return base
}

func (e *Engine) experience(in Input, p participant.Participant, parties map[string]string) int64 {
	exp := in.RemainingSeconds * at(e.tables.TimeBonusPerSecond, in.Level)
	if sameSide(p, in.GateDestroyer, parties) {
		gate := at(e.tables.GateBonus, in.Level)
		if p.Name != in.GateDestroyer && !p.Alive {
			gate = gate * e.tables.DeadMemberGatePercent / 100
		}
		exp += gate
	}
	if sameSide(p, in.BossKiller, parties) {
		exp += at(e.tables.BossBonus, in.Level)
	}
	if sameSide(p, in.Winner, parties) {
		exp += at(e.tables.QuestBonus, in.Level)
	}
	return exp
}

// sameSide reports whether p is who or in who's party.
func sameSide(p participant.Participant, who string, parties map[string]string) bool {
	if who == "" {
		return false
	}
	if p.Name == who {
		return true
	}
	party := parties[who]
	return party != "" && p.Party == party
}

func partyIndex(known map[string]string, ps []participant.Participant) map[string]string {
	out := make(map[string]string, len(known)+len(ps))
	for name, party := range known {
		out[name] = party
	}
	for _, p := range ps {
		out[p.Name] = p.Party
	}
	return out
}

// at returns table[n-1], or 0 when n is outside the table.
func at(table []int64, n int) int64 {
	if n < 1 || n > len(table) {
		return 0
	}
	return table[n-1]
}
