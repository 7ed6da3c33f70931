// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/siege/internal/adapters/arena"
	"github.com/okian/siege/internal/adapters/broadcast"
	eventqueue "github.com/okian/siege/internal/adapters/mq/queue"
	workerpool "github.com/okian/siege/internal/adapters/mq/worker"
	"github.com/okian/siege/internal/adapters/repository"
	"github.com/okian/siege/internal/config"
	"github.com/okian/siege/internal/domain/dedupe"
	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/reward"
	"github.com/okian/siege/internal/domain/siege"
	"github.com/okian/siege/internal/domain/terrain"
	"github.com/okian/siege/pkg/logger"
	"github.com/okian/siege/pkg/metrics"

	"github.com/google/uuid"
)

type namedSink struct {
	name string
	sink repository.Sink
}

// run is one siege with the arena it plays on.
type run struct {
	event *siege.Event
	arena *arena.Memory
}

// Service owns every siege of the process and the notification pipeline
// feeding them.
type Service struct {
	mu sync.RWMutex

	cfg *config.Config

	// Core components
	leaderboard repository.Store
	ownsBoard   bool
	sinks       []namedSink
	fanout      *repository.Fanout
	messengers  []broadcast.Messenger
	dispatcher  *broadcast.Dispatcher
	deduper     dedupe.Deduper
	queue       eventqueue.Queue
	workerPool  *workerpool.Pool
	multiplier  reward.Multiplier

	sieges map[string]*run
	order  []string

	// State
	started bool

	logger logger.Logger
}

// New constructs a Service for cfg. Components are built by Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:    cfg,
		sieges: make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting siege service...")

	if s.leaderboard == nil {
		s.leaderboard = repository.NewTreapStore(ctx)
		s.ownsBoard = true
		s.logger.Info(ctx, "using treap leaderboard")
	}
	s.fanout = repository.NewFanout().Add("leaderboard", s.leaderboard)
	for _, ns := range s.sinks {
		s.fanout.Add(ns.name, ns.sink)
	}

	s.dispatcher = broadcast.NewDispatcher(broadcast.Multi(s.messengers),
		broadcast.WithTimeout(time.Duration(s.cfg.BroadcastTimeoutMS)*time.Millisecond),
	)
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.cfg.DedupeSize),
	)
	// One partition per worker keeps each siege's notifications in order.
	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.cfg.QueueSize),
		eventqueue.WithPartitions(workerCount(s.cfg.WorkerCount)),
	)
	s.workerPool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, s,
		workerpool.WithApplyTimeout(time.Duration(s.cfg.ApplyTimeoutMS)*time.Millisecond),
	)
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "siege service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
		logger.Int("sinks", s.fanout.Len()),
		logger.Int("messengers", len(s.messengers)),
	)
	return nil
}

// Stop drains pending notifications, ends every running siege by time-out
// and waits for in-flight broadcasts.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	running := make([]*siege.Event, 0, len(s.sieges))
	for _, r := range s.sieges {
		running = append(running, r.event)
	}
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping siege service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown incomplete", logger.Error(err))
	}
	for _, ev := range running {
		ev.OnTimeExpired(ctx)
	}
	s.dispatcher.Wait()

	if s.ownsBoard {
		if closer, ok := s.leaderboard.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	s.logger.Info(ctx, "siege service stopped", logger.Int("sieges", len(running)))
}

// CreateSiege builds and starts a siege for roster. A zero level selects
// the configured default.
func (s *Service) CreateSiege(ctx context.Context, level int, roster []model.Member) (string, error) {
	if level == 0 {
		level = s.cfg.Event.Level
	}

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return "", ErrNotStarted
	}

	id := uuid.NewString()
	a := arena.NewMemory(closedRegions(s.cfg.Event)...)
	opts := []siege.Option{
		siege.WithBroadcaster(s.dispatcher),
		siege.WithArena(a),
		siege.WithAuthority(a),
		siege.WithRankingSink(s.fanout),
	}
	if s.multiplier != nil {
		opts = append(opts, siege.WithMultiplier(s.multiplier))
	}
	ev, err := siege.New(id, siege.Settings{
		Level:   level,
		Event:   s.cfg.Event,
		Rewards: s.cfg.Rewards,
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("create siege: %w", err)
	}

	if err := ev.Start(ctx, roster); err != nil {
		return "", fmt.Errorf("start siege: %w", err)
	}
	s.mu.Lock()
	s.sieges[id] = &run{event: ev, arena: a}
	s.order = append(s.order, id)
	s.mu.Unlock()

	s.logger.Info(ctx, "siege created",
		logger.String("siege_id", id),
		logger.Int("level", level),
		logger.Int("participants", len(roster)),
	)
	return id, nil
}

// closedRegions lists the rectangles that are walls before the siege opens
// them.
func closedRegions(ev config.EventConfig) []terrain.Rect {
	var out []terrain.Rect
	for _, set := range [][]config.Rect{ev.Entrance, ev.Bridge, ev.GatePassage} {
		for _, r := range set {
			out = append(out, terrain.Rect{X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2})
		}
	}
	return out
}

func workerCount(n int) int {
	if n < 1 {
		return runtime.NumCPU() * 2
	}
	return n
}

func (s *Service) lookup(id string) (*run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.sieges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSiegeNotFound, id)
	}
	return r, nil
}

func validNotification(n model.Notification) error { //nolint:gocritic // hugeParam: value type shared with the queue
	switch {
	case n.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidNotification)
	case n.Name == "":
		return fmt.Errorf("%w: missing name", ErrInvalidNotification)
	}
	switch n.Kind {
	case model.NotifyKill, model.NotifyPickup, model.NotifyDeath, model.NotifyRevive, model.NotifyLeave:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidNotification, n.Kind)
	}
}

// Submit deduplicates n by id and queues it for a worker. duplicate is true
// when the id was already accepted; the notification is then dropped.
func (s *Service) Submit(ctx context.Context, n model.Notification) (duplicate bool, err error) { //nolint:gocritic // hugeParam: value type shared with the queue
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return false, ErrNotStarted
	}
	if err := validNotification(n); err != nil {
		metrics.RecordNotificationRejected("invalid")
		return false, err
	}
	if _, err := s.lookup(n.SiegeID); err != nil {
		metrics.RecordNotificationRejected("unknown_siege")
		return false, err
	}

	if s.deduper.SeenAndRecord(ctx, n.ID) {
		metrics.RecordNotificationDuplicate()
		s.logger.Debug(ctx, "duplicate notification detected, skipping",
			logger.String("id", n.ID),
			logger.String("siege_id", n.SiegeID),
		)
		return true, nil
	}
	if !s.queue.Enqueue(ctx, n) {
		// Rollback so the host can retry the same id.
		s.deduper.Unrecord(ctx, n.ID)
		metrics.RecordNotificationRejected("queue_full")
		return false, ErrBackpressure
	}
	s.logger.Debug(ctx, "notification queued",
		logger.String("id", n.ID),
		logger.String("siege_id", n.SiegeID),
		logger.String("kind", string(n.Kind)),
	)
	return false, nil
}

// Apply routes one notification to its siege. It is the worker handler. A
// notification that fails is forgotten by the deduper so the host can
// resend it under the same id.
func (s *Service) Apply(ctx context.Context, n model.Notification) error { //nolint:gocritic // hugeParam: value type shared with the queue
	err := s.apply(ctx, n)
	if err != nil && s.deduper != nil {
		s.deduper.Unrecord(ctx, n.ID)
	}
	return err
}

func (s *Service) apply(ctx context.Context, n model.Notification) error { //nolint:gocritic // hugeParam: value type shared with the queue
	r, err := s.lookup(n.SiegeID)
	if err != nil {
		return err
	}
	ev := r.event
	switch n.Kind {
	case model.NotifyKill:
		return ev.OnKill(ctx, model.Kill{
			Killer:    n.Name,
			EntityID:  n.EntityID,
			Structure: n.Structure,
			Pos:       n.Pos,
		})
	case model.NotifyPickup:
		return ev.OnPickup(ctx, n.Name, n.ItemID)
	case model.NotifyDeath:
		return ev.OnParticipantDied(ctx, n.Name)
	case model.NotifyRevive:
		return ev.OnParticipantRevived(ctx, n.Name)
	case model.NotifyLeave:
		return ev.OnParticipantRemoved(ctx, n.Name, n.Pos)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidNotification, n.Kind)
	}
}

// Deliver is the delivery point trigger for name.
func (s *Service) Deliver(ctx context.Context, id, name string) error {
	r, err := s.lookup(id)
	if err != nil {
		return err
	}
	return r.event.OnDeliver(ctx, name)
}

// Status returns the live projection of a siege.
func (s *Service) Status(id string) (model.Status, error) {
	r, err := s.lookup(id)
	if err != nil {
		return model.Status{}, err
	}
	return r.event.Status(), nil
}

// Sieges returns the status of every siege in creation order.
func (s *Service) Sieges() []model.Status {
	s.mu.RLock()
	runs := make([]*run, 0, len(s.order))
	for _, id := range s.order {
		runs = append(runs, s.sieges[id])
	}
	s.mu.RUnlock()

	out := make([]model.Status, len(runs))
	for i, r := range runs {
		out[i] = r.event.Status()
	}
	return out
}

// Results returns the reward records of a finalized siege in rank order.
func (s *Service) Results(id string) ([]model.RewardRecord, error) {
	r, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	res, err := r.event.Result()
	if err != nil {
		return nil, err
	}
	return res.Records(), nil
}

// Record returns the reward record of name in a finalized siege.
func (s *Service) Record(id, name string) (model.RewardRecord, error) {
	r, err := s.lookup(id)
	if err != nil {
		return model.RewardRecord{}, err
	}
	return r.event.Record(name)
}

// FinalScore returns the final score of name in a finalized siege.
func (s *Service) FinalScore(id, name string) (int64, error) {
	r, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	return r.event.FinalScore(name)
}

// Done is closed when the siege is finalized.
func (s *Service) Done(id string) (<-chan struct{}, error) {
	r, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.event.Done(), nil
}

// Arena returns the in-memory map of a siege.
func (s *Service) Arena(id string) (*arena.Memory, error) {
	r, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.arena, nil
}

// Leaderboard returns the top n best scores across sieges.
func (s *Service) Leaderboard(ctx context.Context, n int) ([]repository.Entry, error) {
	s.mu.RLock()
	board := s.leaderboard
	s.mu.RUnlock()
	if board == nil {
		return nil, ErrNotStarted
	}
	return board.TopN(ctx, n)
}

// Rank returns the best score and rank of name.
func (s *Service) Rank(ctx context.Context, name string) (repository.Entry, error) {
	s.mu.RLock()
	board := s.leaderboard
	s.mu.RUnlock()
	if board == nil {
		return repository.Entry{}, ErrNotStarted
	}
	return board.Rank(ctx, name)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	active := 0
	for _, r := range s.sieges {
		select {
		case <-r.event.Done():
		default:
			active++
		}
	}
	stats := map[string]interface{}{
		"started":      s.started,
		"queueSize":    s.cfg.QueueSize,
		"dedupeSize":   s.cfg.DedupeSize,
		"sieges":       len(s.sieges),
		"activeSieges": active,
	}
	if s.workerPool != nil {
		stats["workerCount"] = s.workerPool.Size()
	}
	if s.queue != nil {
		stats["queueLength"] = s.queue.Len(ctx)
	}
	if s.deduper != nil {
		stats["dedupeEntries"] = s.deduper.Size()
	}
	if s.leaderboard != nil {
		n := s.leaderboard.Count(ctx)
		stats["leaderboardEntries"] = n
		metrics.UpdateLeaderboardEntries(n)
	}
	return stats
}
