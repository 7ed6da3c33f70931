// Package siege implements the castle-siege state machine. One Event owns
// the phase of one run and wires the participant registry, the objective
// tracker, quest item custody, terrain, the countdown and the reward engine.
//
// Mutable run state lives in a single value guarded by Event.mu. Only the
// kill, pickup, delivery, removal, timeout and finalize paths write it.
package siege

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/siege/internal/config"
	"github.com/okian/siege/internal/domain/countdown"
	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/objective"
	"github.com/okian/siege/internal/domain/participant"
	"github.com/okian/siege/internal/domain/questitem"
	"github.com/okian/siege/internal/domain/reward"
	"github.com/okian/siege/internal/domain/terrain"
	"github.com/okian/siege/pkg/logger"
	"github.com/okian/siege/pkg/metrics"
)

// Settings is the static configuration of one run.
type Settings struct {
	Level   int
	Event   config.EventConfig
	Rewards config.RewardConfig
}

// state is the consolidated mutable state of a run.
type state struct {
	phase         model.Phase
	outcome       model.Outcome
	bridgeOpen    bool
	gateDestroyed bool
	bossSummoned  bool
	bossKilled    bool
	destroyer     string
	bossKiller    string
	winner        string
	preGateRound  uint64
	postGateRound uint64
	startedAt     time.Time
	endedAt       time.Time
}

func (s *state) running() bool {
	return s.phase != model.PhaseNotStarted && s.phase != model.PhaseEnded
}

// advance moves the phase forward only.
func (s *state) advance(to model.Phase) bool {
	if to <= s.phase {
		return false
	}
	s.phase = to
	metrics.RecordPhaseTransition(to.String())
	return true
}

// Event is one siege run.
type Event struct {
	id       string
	settings Settings

	registry  *participant.Registry
	tracker   *objective.Tracker
	custody   *questitem.Custodian
	terrain   *terrain.Controller
	clock     *countdown.Clock
	engine    *reward.Engine
	killScore int64

	broadcaster Broadcaster
	arena       Arena
	authority   terrain.Authority
	sink        RankingSink
	multiplier  reward.Multiplier
	logger      logger.Logger

	mu sync.Mutex
	st state

	entranceClosed atomic.Bool
	result         atomic.Pointer[reward.Result]
	done           chan struct{}
}

// New builds a run that has not started yet.
func New(id string, settings Settings, opts ...Option) (*Event, error) {
	ev := settings.Event
	switch {
	case ev.QuestItemID <= 0:
		return nil, ErrMissingQuestItem
	case ev.BossID <= 0:
		return nil, ErrMissingBoss
	case settings.Level < 1 || settings.Level > len(ev.KillScore):
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, settings.Level)
	}

	e := &Event{
		id:          id,
		settings:    settings,
		registry:    participant.NewRegistry(),
		tracker:     objective.NewTracker(),
		custody:     questitem.NewCustodian(),
		killScore:   ev.KillScore[settings.Level-1],
		broadcaster: nopBroadcaster{},
		arena:       nopArena{},
		authority:   nopAuthority{},
		sink:        nopSink{},
		logger:      logger.Get().Named("siege"),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.String("siege_id", id))

	engineOpts := []reward.Option{}
	if e.multiplier != nil {
		engineOpts = append(engineOpts, reward.WithMultiplier(e.multiplier))
	}
	e.engine = reward.NewEngine(settings.Rewards, engineOpts...)
	e.terrain = terrain.NewController(e.authority, regionsFrom(ev),
		terrain.WithAnnouncer(e.announceTerrain),
		terrain.WithLogger(e.logger),
	)
	e.clock = countdown.New(time.Duration(ev.TickIntervalMS)*time.Millisecond, ev.DurationTicks,
		countdown.WithLogger(e.logger),
	)
	return e, nil
}

type nopAuthority struct{}

func (nopAuthority) SetPassable(context.Context, terrain.Rect, bool) error { return nil }

func regionsFrom(ev config.EventConfig) map[terrain.Region][]terrain.Rect {
	conv := func(rs []config.Rect) []terrain.Rect {
		out := make([]terrain.Rect, len(rs))
		for i, r := range rs {
			out[i] = terrain.Rect{X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2}
		}
		return out
	}
	return map[terrain.Region][]terrain.Rect{
		terrain.Entrance:    conv(ev.Entrance),
		terrain.Bridge:      conv(ev.Bridge),
		terrain.GatePassage: conv(ev.GatePassage),
	}
}

// Start registers the roster, arms the pre-gate objective, opens the
// entrance and launches the countdown.
func (e *Event) Start(ctx context.Context, roster []model.Member) error {
	switch {
	case len(roster) == 0:
		return ErrEmptyRoster
	case len(roster) > e.settings.Event.MaxParticipants:
		return fmt.Errorf("%w: %d > %d", ErrRosterTooLarge, len(roster), e.settings.Event.MaxParticipants)
	}

	e.mu.Lock()
	if e.st.phase != model.PhaseNotStarted {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	for _, m := range roster {
		e.registry.Register(m.Name, m.Party)
	}
	runCtx := context.WithoutCancel(ctx)
	n := int64(e.registry.Count())
	e.st.preGateRound = e.tracker.Reset(n*int64(e.settings.Event.PreGatePerParticipant), e.settings.Event.PreGateMonsters)
	if err := e.terrain.Apply(runCtx, terrain.Entrance, true); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("open entrance: %w", err)
	}
	e.st.advance(model.PhaseBridgeClosed)
	e.st.startedAt = time.Now()
	e.mu.Unlock()

	metrics.IncActiveSieges()
	e.logger.Info(ctx, "siege started",
		logger.Int("level", e.settings.Level),
		logger.Int("participants", int(n)),
		logger.Duration("duration", e.clock.Remaining()),
	)
	return e.clock.Start(runCtx, e.onTick, e.onClockStop)
}

// onTick closes the entrance on the first tick and emits the periodic
// status broadcast.
func (e *Event) onTick(ctx context.Context, remaining int) {
	if e.entranceClosed.CompareAndSwap(false, true) {
		if err := e.terrain.Apply(ctx, terrain.Entrance, false); err != nil {
			e.logger.Error(ctx, "closing entrance failed", logger.Error(err))
		}
	}

	e.mu.Lock()
	running, gateDown := e.st.running(), e.st.gateDestroyed
	e.mu.Unlock()
	if !running || remaining >= e.clock.MaxTicks() {
		return
	}
	kind := model.MsgGatePending
	if gateDown {
		kind = model.MsgGateDestroyed
	}
	cur, req := e.tracker.Progress()
	e.broadcast(ctx, kind, map[string]any{
		"remaining_seconds": e.clock.Remaining().Seconds(),
		"kills":             cur,
		"required":          req,
	})
}

// onClockStop always reaches finalize; it is a no-op when the run already
// ended.
func (e *Event) onClockStop(ctx context.Context, reason countdown.Reason) {
	if reason == countdown.Failed {
		e.logger.Warn(ctx, "countdown failed, ending siege by time-out")
	}
	e.Finalize(ctx, model.OutcomeTimedOut)
}

func (e *Event) message(kind model.MessageKind, data map[string]any) model.Message {
	return model.Message{SiegeID: e.id, Kind: kind, At: time.Now(), Data: data}
}

// broadcast sends to every participant still on the map.
func (e *Event) broadcast(ctx context.Context, kind model.MessageKind, data map[string]any) {
	e.broadcaster.Broadcast(ctx, participant.Names(e.registry.Present()), e.message(kind, data))
}

func (e *Event) direct(ctx context.Context, name string, kind model.MessageKind, data map[string]any) {
	e.broadcaster.Direct(ctx, name, e.message(kind, data))
}

func (e *Event) announceTerrain(ctx context.Context, region terrain.Region, rects []terrain.Rect, passable bool) {
	e.broadcast(ctx, model.MsgTerrainChanged, map[string]any{
		"region":   string(region),
		"passable": passable,
		"rects":    rects,
	})
}
