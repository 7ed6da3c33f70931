package siege

import (
	"time"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/participant"
	"github.com/okian/siege/internal/domain/reward"
)

// ID returns the run id.
func (e *Event) ID() string { return e.id }

// Level returns the siege level.
func (e *Event) Level() int { return e.settings.Level }

// RemainingTime returns the time left on the countdown.
func (e *Event) RemainingTime() time.Duration { return e.clock.Remaining() }

// Done is closed once the run is finalized.
func (e *Event) Done() <-chan struct{} { return e.done }

// Winner returns the declared winner, if any.
func (e *Event) Winner() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.winner
}

// Phase returns the current phase.
func (e *Event) Phase() model.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.phase
}

// Status returns a projection of the run for status readers.
func (e *Event) Status() model.Status {
	e.mu.Lock()
	st := e.st
	e.mu.Unlock()
	cur, req := e.tracker.Progress()
	item := e.custody.Snapshot()
	return model.Status{
		ID:            e.id,
		Level:         e.settings.Level,
		Phase:         st.phase.String(),
		Outcome:       st.outcome.String(),
		Winner:        st.winner,
		GateDestroyed: st.gateDestroyed,
		Remaining:     e.clock.Remaining(),
		Kills:         cur,
		Required:      req,
		Present:       participant.Names(e.registry.Present()),
		QuestItem:     item.State.String(),
		Holder:        item.Holder,
	}
}

// Result returns the frozen result, or ErrNotFinalized.
func (e *Event) Result() (*reward.Result, error) {
	res := e.result.Load()
	if res == nil {
		return nil, ErrNotFinalized
	}
	return res, nil
}

// FinalScore returns the final score of name. It is only valid after
// finalization.
func (e *Event) FinalScore(name string) (int64, error) {
	rec, err := e.Record(name)
	if err != nil {
		return 0, err
	}
	return rec.Score, nil
}

// Record returns the reward record of name after finalization.
func (e *Event) Record(name string) (model.RewardRecord, error) {
	res, err := e.Result()
	if err != nil {
		return model.RewardRecord{}, err
	}
	rec, ok := res.Lookup(name)
	if !ok {
		return model.RewardRecord{}, ErrUnknownParticipant
	}
	return rec, nil
}

// Ranking returns the final rank list, or nil before finalization.
func (e *Event) Ranking() []model.RankEntry {
	res := e.result.Load()
	if res == nil {
		return nil
	}
	return res.Ranking()
}

// Participants returns every registered participant.
func (e *Event) Participants() []participant.Participant {
	return e.registry.Snapshot()
}
