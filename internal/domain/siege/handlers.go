package siege

import (
	"context"
	"errors"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/participant"
	"github.com/okian/siege/internal/domain/questitem"
	"github.com/okian/siege/internal/domain/terrain"
	"github.com/okian/siege/pkg/logger"
	"github.com/okian/siege/pkg/metrics"
)

// resolve classifies the killed entity once.
func (e *Event) resolve(k model.Kill) model.SourceKind {
	switch {
	case k.EntityID == e.settings.Event.GateID:
		return model.SourceGate
	case k.EntityID == e.settings.Event.BossID:
		return model.SourceBoss
	case k.Structure:
		return model.SourceUnknownStructure
	default:
		return model.SourceMonster
	}
}

// OnKill credits the killer and drives the objective, gate and boss
// transitions.
func (e *Event) OnKill(ctx context.Context, k model.Kill) error {
	kind := e.resolve(k)
	if kind == model.SourceUnknownStructure {
		metrics.RecordNotificationRejected("unknown_structure")
		metrics.RecordErrorByComponent("siege", "unknown_structure")
		e.logger.Error(ctx, "unknown structure killed",
			logger.Int("entity_id", k.EntityID),
			logger.String("killer", k.Killer),
		)
		return ErrUnknownStructure
	}

	e.mu.Lock()
	running := e.st.running()
	e.mu.Unlock()
	if !running {
		metrics.RecordNotificationRejected("not_running")
		return ErrNotRunning
	}
	if !e.registry.AddScore(k.Killer, e.killScore) {
		e.logger.Debug(ctx, "kill score for unknown participant ignored", logger.String("killer", k.Killer))
	}
	metrics.RecordKill(kind.String())

	switch kind {
	case model.SourceGate:
		e.onGateDestroyed(ctx, k.Killer)
	case model.SourceBoss:
		return e.onBossKilled(ctx, k.Killer, k.Pos)
	default:
		if _, crossed, round := e.tracker.TryCountRound(k.EntityID); crossed {
			e.onObjectiveCrossed(ctx, round)
		}
	}
	return nil
}

func (e *Event) onObjectiveCrossed(ctx context.Context, round uint64) {
	e.mu.Lock()
	if !e.st.running() {
		e.mu.Unlock()
		return
	}
	switch round {
	case e.st.preGateRound:
		metrics.RecordObjectiveCrossing("pre_gate")
		openBridge := !e.st.bridgeOpen
		e.st.bridgeOpen = true
		if e.st.advance(model.PhaseBridgeOpen) {
			e.st.postGateRound = e.tracker.Reset(e.postGateRequired(), e.settings.Event.PostGateMonsters)
		}
		e.mu.Unlock()
		if openBridge {
			e.openBridge(ctx)
		}
	case e.st.postGateRound:
		metrics.RecordObjectiveCrossing("post_gate")
		if e.st.bossSummoned {
			e.mu.Unlock()
			return
		}
		e.st.bossSummoned = true
		e.st.advance(model.PhaseBossSummoned)
		e.mu.Unlock()
		e.summonBoss(ctx)
	default:
		e.mu.Unlock()
	}
}

func (e *Event) postGateRequired() int64 {
	return int64(e.registry.Count()) * int64(e.settings.Event.PostGatePerParticipant)
}

func (e *Event) openBridge(ctx context.Context) {
	if err := e.terrain.Apply(ctx, terrain.Bridge, true); err != nil {
		e.logger.Error(ctx, "opening bridge failed", logger.Error(err))
	}
	e.logger.Info(ctx, "bridge opened")
	e.broadcast(ctx, model.MsgBridgeOpened, nil)
}

func (e *Event) summonBoss(ctx context.Context) {
	if err := e.arena.SummonBoss(ctx, e.settings.Event.BossID); err != nil {
		metrics.RecordErrorByComponent("siege", "summon_boss")
		e.logger.Error(ctx, "summoning boss failed", logger.Error(err))
	}
	e.logger.Info(ctx, "boss summoned")
	e.broadcast(ctx, model.MsgBossSummoned, nil)
}

// onGateDestroyed handles the gate regardless of objective ordering: it
// re-arms the post-gate objective and opens the passage, and the bridge
// too if it is still closed.
func (e *Event) onGateDestroyed(ctx context.Context, killer string) {
	e.mu.Lock()
	if e.st.gateDestroyed || !e.st.running() {
		e.mu.Unlock()
		return
	}
	e.st.gateDestroyed = true
	e.st.destroyer = killer
	openBridge := !e.st.bridgeOpen
	e.st.bridgeOpen = true
	e.st.advance(model.PhaseGateDestroyed)
	e.st.postGateRound = e.tracker.Reset(e.postGateRequired(), e.settings.Event.PostGateMonsters)
	e.mu.Unlock()

	if openBridge {
		e.openBridge(ctx)
	}
	if err := e.terrain.Apply(ctx, terrain.GatePassage, true); err != nil {
		e.logger.Error(ctx, "opening gate passage failed", logger.Error(err))
	}
	e.logger.Info(ctx, "gate destroyed", logger.String("destroyer", killer))
	e.broadcast(ctx, model.MsgGateDestroyed, map[string]any{"destroyer": killer})
}

func (e *Event) onBossKilled(ctx context.Context, killer string, pos model.Position) error {
	e.mu.Lock()
	if e.st.bossKilled || !e.st.running() {
		e.mu.Unlock()
		return nil
	}
	e.st.bossKilled = true
	e.st.bossKiller = killer
	e.st.advance(model.PhaseBossSummoned)
	err := e.custody.Spawn(pos)
	e.mu.Unlock()
	if err != nil {
		metrics.RecordErrorByComponent("siege", "quest_item_spawn")
		e.logger.Error(ctx, "quest item spawn failed", logger.Error(err))
		return err
	}
	metrics.RecordQuestItemTransition("spawned")
	if err := e.arena.PlaceQuestItem(ctx, e.settings.Event.QuestItemID, pos); err != nil {
		e.logger.Error(ctx, "placing quest item failed", logger.Error(err))
	}
	e.logger.Info(ctx, "boss killed", logger.String("killer", killer))
	e.broadcast(ctx, model.MsgQuestItemSpawned, map[string]any{"killer": killer, "pos": pos})
	return nil
}

// OnPickup handles an item pickup. Only the quest item is of interest.
func (e *Event) OnPickup(ctx context.Context, name string, itemID int) error {
	if itemID != e.settings.Event.QuestItemID {
		return nil
	}
	e.mu.Lock()
	if !e.st.running() {
		e.mu.Unlock()
		return ErrNotRunning
	}
	err := e.custody.Pickup(name)
	e.mu.Unlock()
	if err != nil {
		metrics.RecordQuestItemTransition("pickup_rejected")
		return err
	}
	metrics.RecordQuestItemTransition("picked_up")
	e.broadcast(ctx, model.MsgQuestItemTaken, map[string]any{"name": name})
	return nil
}

// OnDeliver is the delivery trigger. Success declares name the winner and
// ends the run; a refusal leaves state untouched and tells name why.
func (e *Event) OnDeliver(ctx context.Context, name string) error {
	e.mu.Lock()
	var err error
	switch {
	case !e.st.running():
		err = ErrNotRunning
	case e.st.winner != "":
		err = ErrAlreadyWon
	default:
		err = e.custody.Deliver(name)
	}
	if err == nil {
		e.st.winner = name
	}
	e.mu.Unlock()

	if err != nil {
		reason := deliveryReason(err)
		metrics.RecordDeliveryRejection(reason)
		e.direct(ctx, name, model.MsgDeliveryRefused, map[string]any{"reason": reason})
		return err
	}
	metrics.RecordQuestItemTransition("delivered")
	e.logger.Info(ctx, "quest item delivered", logger.String("winner", name))
	e.Finalize(ctx, model.OutcomeWon)
	return nil
}

func deliveryReason(err error) string {
	switch {
	case errors.Is(err, ErrNotRunning):
		return "not_running"
	case errors.Is(err, ErrAlreadyWon):
		return "already_won"
	case errors.Is(err, questitem.ErrNotHoldingItem):
		return "not_holding_item"
	default:
		return "unknown"
	}
}

// OnParticipantRemoved handles a participant leaving the map. The quest
// item drops at lastPos while the run is active and is deleted after it
// ended. When the last participant leaves a running siege it ends by
// time-out.
func (e *Event) OnParticipantRemoved(ctx context.Context, name string, lastPos model.Position) error {
	e.mu.Lock()
	active := e.st.running()
	tr := e.custody.ParticipantRemoved(name, lastPos, active)
	wasPresent := e.registry.MarkAbsent(name)
	left := e.registry.PresentCount()
	e.mu.Unlock()

	switch tr {
	case questitem.Dropped:
		metrics.RecordQuestItemTransition("dropped")
		if err := e.arena.PlaceQuestItem(ctx, e.settings.Event.QuestItemID, lastPos); err != nil {
			e.logger.Error(ctx, "placing dropped quest item failed", logger.Error(err))
		}
		e.broadcast(ctx, model.MsgQuestItemDrop, map[string]any{"name": name, "pos": lastPos})
	case questitem.Deleted:
		metrics.RecordQuestItemTransition("removed")
		if err := e.arena.RemoveQuestItem(ctx, e.settings.Event.QuestItemID, name); err != nil {
			e.logger.Error(ctx, "removing quest item failed", logger.Error(err))
		}
	}

	e.broadcast(ctx, model.MsgParticipantLeft, map[string]any{
		"name":    name,
		"present": participant.Names(e.registry.Present()),
	})

	if active && wasPresent && left == 0 {
		e.logger.Info(ctx, "siege abandoned")
		e.Finalize(ctx, model.OutcomeTimedOut)
	}
	return nil
}

// OnParticipantDied records a death; dead party members get a reduced gate
// bonus.
func (e *Event) OnParticipantDied(_ context.Context, name string) error {
	if !e.registry.SetAlive(name, false) {
		return ErrUnknownParticipant
	}
	return nil
}

// OnParticipantRevived records a revival.
func (e *Event) OnParticipantRevived(_ context.Context, name string) error {
	if !e.registry.SetAlive(name, true) {
		return ErrUnknownParticipant
	}
	return nil
}

// OnTimeExpired ends the run by time-out unless a winner was declared.
func (e *Event) OnTimeExpired(ctx context.Context) {
	e.Finalize(ctx, model.OutcomeTimedOut)
}
