package siege

import (
	"context"
	"time"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/participant"
	"github.com/okian/siege/internal/domain/reward"
	"github.com/okian/siege/pkg/logger"
	"github.com/okian/siege/pkg/metrics"
)

// Finalize ends the run. Only the first call has any effect. A declared
// winner always yields OutcomeWon; otherwise the run times out.
func (e *Event) Finalize(ctx context.Context, outcome model.Outcome) {
	e.mu.Lock()
	if e.st.phase == model.PhaseEnded {
		e.mu.Unlock()
		return
	}
	wasRunning := e.st.running()
	switch {
	case e.st.winner != "":
		outcome = model.OutcomeWon
	case outcome != model.OutcomeTimedOut:
		e.logger.Warn(ctx, "finalize without a winner, ending by time-out", logger.String("requested", outcome.String()))
		outcome = model.OutcomeTimedOut
	}
	e.st.advance(model.PhaseEnded)
	e.st.outcome = outcome
	e.st.endedAt = time.Now()
	holder, cleared := e.custody.Clear()
	in := reward.Input{
		Level:            e.settings.Level,
		Outcome:          outcome,
		Winner:           e.st.winner,
		RemainingSeconds: int64(e.clock.Remaining().Seconds()),
		GateDestroyer:    e.st.destroyer,
		BossKiller:       e.st.bossKiller,
		Participants:     e.registry.Present(),
		Parties:          partiesOf(e.registry.Snapshot()),
	}
	startedAt := e.st.startedAt
	e.mu.Unlock()

	e.clock.Stop()
	if cleared {
		metrics.RecordQuestItemTransition("removed")
		if err := e.arena.RemoveQuestItem(ctx, e.settings.Event.QuestItemID, holder); err != nil {
			e.logger.Error(ctx, "removing quest item failed", logger.Error(err))
		}
	}

	res := e.engine.Compute(in)
	e.result.Store(res)
	close(e.done)

	metrics.RecordFinalization(outcome.String())
	if wasRunning {
		metrics.DecActiveSieges()
		metrics.RecordSiegeDuration(time.Since(startedAt))
	}
	e.logger.Info(ctx, "siege finalized",
		logger.String("outcome", outcome.String()),
		logger.String("winner", in.Winner),
		logger.Int("ranked", res.Len()),
	)

	e.publish(ctx, res)
}

func partiesOf(ps []participant.Participant) map[string]string {
	out := make(map[string]string, len(ps))
	for _, p := range ps {
		out[p.Name] = p.Party
	}
	return out
}

// publish sends the rank list to the sink and every participant their
// result.
func (e *Event) publish(ctx context.Context, res *reward.Result) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	if err := e.sink.Record(ctx, e.id, res.Ranking()); err != nil {
		metrics.RecordErrorByComponent("siege", "ranking_sink")
		e.logger.Error(ctx, "recording ranking failed", logger.Error(err))
	}
	metrics.RecordRankingSinkLatency("siege", float64(time.Since(start).Milliseconds()))

	e.broadcast(ctx, model.MsgSiegeEnded, map[string]any{
		"outcome": res.Outcome().String(),
		"winner":  res.Winner(),
	})
	for _, rec := range res.Records() {
		e.direct(ctx, rec.Name, model.MsgResult, map[string]any{
			"rank":       rec.Rank,
			"score":      rec.Score,
			"experience": rec.Experience,
			"money":      rec.Money,
		})
	}
}
