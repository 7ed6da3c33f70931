package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/siege/internal/config"
	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/pkg/logger"
)

// Run plays one siege from creation to delivery against the service at
// cfg.BaseURL, or against an in-process service when BaseURL is empty.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	cfg = withDefaults(cfg)
	log := logger.Named("simulate")
	stats := Stats{StartTime: time.Now()}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		local, err := startLocal(ctx, cfg.Service)
		if err != nil {
			return nil, fmt.Errorf("start local service: %w", err)
		}
		defer local.Close(ctx)
		baseURL = local.URL
	}

	log.Info(ctx, "starting siege simulation",
		logger.String("baseURL", baseURL),
		logger.Int("participants", cfg.Participants),
		logger.Int("level", cfg.Level),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	r := &runner{
		cfg:    cfg,
		client: newHTTPClient(baseURL, cfg.Timeout),
		log:    log,
		stats:  &stats,
	}

	// Step 1: Check service health
	if err := r.client.get(ctx, "/healthz", nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	// Step 2: Create the siege
	roster := make([]model.Member, cfg.Participants)
	for i := range roster {
		roster[i] = model.Member{Name: "p" + strconv.Itoa(i+1)}
	}
	id, err := r.create(ctx, roster)
	if err != nil {
		return nil, err
	}
	r.id = id

	// Step 3: Fill the pre-gate objective
	st, err := r.status(ctx)
	if err != nil {
		return nil, err
	}
	ev := cfg.Service.Event
	if err := r.killPhase(ctx, roster, ev.PreGateMonsters, int(st.Required), cfg.Duplicates); err != nil {
		return nil, err
	}
	if _, err := r.waitFor(ctx, "bridge open", phaseIs(model.PhaseBridgeOpen)); err != nil {
		return nil, err
	}

	// Step 4: Break the gate
	gate := model.Notification{Kind: model.NotifyKill, Name: pick(roster), EntityID: ev.GateID, Structure: true}
	if err := r.submitAll(ctx, []model.Notification{r.stamp(gate)}); err != nil {
		return nil, err
	}
	if st, err = r.waitFor(ctx, "gate destroyed", phaseIs(model.PhaseGateDestroyed)); err != nil {
		return nil, err
	}

	// Step 5: Fill the post-gate objective
	if err := r.killPhase(ctx, roster, ev.PostGateMonsters, int(st.Required), 0); err != nil {
		return nil, err
	}
	if _, err := r.waitFor(ctx, "boss summoned", phaseIs(model.PhaseBossSummoned)); err != nil {
		return nil, err
	}

	// Step 6: Kill the boss, then pick up its quest item
	boss := model.Notification{Kind: model.NotifyKill, Name: pick(roster), EntityID: ev.BossID, Pos: bossPos}
	if err := r.submitAll(ctx, []model.Notification{r.stamp(boss)}); err != nil {
		return nil, err
	}
	if _, err := r.waitFor(ctx, "quest item dropped", itemIs("on_ground", "")); err != nil {
		return nil, err
	}
	carrier := pick(roster)
	pickup := model.Notification{Kind: model.NotifyPickup, Name: carrier, ItemID: ev.QuestItemID, Pos: bossPos}
	if err := r.submitAll(ctx, []model.Notification{r.stamp(pickup)}); err != nil {
		return nil, err
	}
	if _, err := r.waitFor(ctx, "quest item held", itemIs("held", carrier)); err != nil {
		return nil, err
	}

	// Step 7: Deliver
	if err := r.deliver(ctx, carrier); err != nil {
		return nil, err
	}

	// Step 8: Fetch and verify the final ranking
	report := &Report{SiegeID: id, Winner: carrier}
	if err := r.client.get(ctx, "/sieges/"+id+"/results", &report.Results); err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	if err := r.client.get(ctx, "/leaderboard?limit="+strconv.Itoa(cfg.TopN), &report.Leaderboard); err != nil {
		return nil, fmt.Errorf("fetch leaderboard: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	report.Stats = stats

	if err := verify(cfg, report); err != nil {
		return report, err
	}
	displayFinalStats(ctx, log, report)
	if cfg.Out != nil {
		if err := PrintTable(cfg.Out, report); err != nil {
			return report, fmt.Errorf("print table: %w", err)
		}
	}
	return report, nil
}

// bossPos is where the simulated boss falls; the quest item drops there.
var bossPos = model.Position{X: 40, Y: 95}

func withDefaults(in *Config) *Config {
	cfg := *in
	if cfg.Participants <= 0 {
		cfg.Participants = defaultParticipants
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.TopN <= 0 {
		cfg.TopN = defaultTopN
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.PhaseTimeout <= 0 {
		cfg.PhaseTimeout = defaultPhaseTimeout
	}
	if cfg.Service == nil {
		cfg.Service = config.New()
	}
	return &cfg
}

type runner struct {
	cfg    *Config
	client *HTTPClient
	log    logger.Logger
	stats  *Stats
	id     string
	seq    atomic.Int64
}

func pick(roster []model.Member) string {
	return roster[rand.IntN(len(roster))].Name
}

// stamp assigns the next notification id.
func (r *runner) stamp(n model.Notification) model.Notification {
	n.ID = r.id + "-" + strconv.FormatInt(r.seq.Add(1), 10)
	return n
}

type createRequest struct {
	Level  int            `json:"level"`
	Roster []model.Member `json:"roster"`
}

func (r *runner) create(ctx context.Context, roster []model.Member) (string, error) {
	status, body, err := r.client.post(ctx, "/sieges", createRequest{Level: r.cfg.Level, Roster: roster})
	if err != nil {
		return "", fmt.Errorf("create siege: %w", err)
	}
	if status != http.StatusCreated {
		return "", replyError("POST", "/sieges", status, body)
	}
	var out createResponse
	if err := unmarshalJSON(body, &out); err != nil {
		return "", fmt.Errorf("create siege: %w", err)
	}
	r.log.Info(ctx, "siege created", logger.String("siege", out.ID), logger.Int("participants", len(roster)))
	return out.ID, nil
}

func (r *runner) status(ctx context.Context) (model.Status, error) {
	var st model.Status
	if err := r.client.get(ctx, "/sieges/"+r.id, &st); err != nil {
		return st, fmt.Errorf("fetch status: %w", err)
	}
	return st, nil
}

func phaseIs(p model.Phase) func(model.Status) bool {
	want := p.String()
	return func(st model.Status) bool { return st.Phase == want }
}

func itemIs(state, holder string) func(model.Status) bool {
	return func(st model.Status) bool { return st.QuestItem == state && st.Holder == holder }
}

// waitFor polls the siege status until cond holds. A siege that ends first
// fails the wait.
func (r *runner) waitFor(ctx context.Context, what string, cond func(model.Status) bool) (model.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PhaseTimeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		st, err := r.status(ctx)
		if err != nil {
			return st, err
		}
		if cond(st) {
			if r.cfg.Verbose {
				r.log.Info(ctx, "siege progressed",
					logger.String("siege", r.id),
					logger.String("step", what),
					logger.String("phase", st.Phase))
			}
			return st, nil
		}
		if st.Phase == model.PhaseEnded.String() {
			return st, fmt.Errorf("%w: siege ended (%s) waiting for %s", ErrPhaseTimeout, st.Outcome, what)
		}
		select {
		case <-ctx.Done():
			return st, fmt.Errorf("%w: %s: last phase %s", ErrPhaseTimeout, what, st.Phase)
		case <-ticker.C:
		}
	}
}

// killPhase submits required kills of the given monsters spread randomly
// across the roster, plus dups re-sent notifications.
func (r *runner) killPhase(ctx context.Context, roster []model.Member, monsters []int, required, dups int) error {
	if len(monsters) == 0 {
		return fmt.Errorf("%w: no monsters configured for objective", ErrUnexpectedReply)
	}
	notes := make([]model.Notification, 0, required+dups)
	for range required {
		notes = append(notes, r.stamp(model.Notification{
			Kind:     model.NotifyKill,
			Name:     pick(roster),
			EntityID: monsters[rand.IntN(len(monsters))],
		}))
	}
	for i := 0; i < dups && len(notes) > 0; i++ {
		notes = append(notes, notes[rand.IntN(required)])
	}
	rand.Shuffle(len(notes), func(i, j int) { notes[i], notes[j] = notes[j], notes[i] })
	return r.submitAll(ctx, notes)
}

// submitAll posts notifications concurrently using a worker pool.
func (r *runner) submitAll(ctx context.Context, notes []model.Notification) error {
	var (
		accepted   atomic.Int64
		duplicates atomic.Int64
		failed     atomic.Int64
		wg         sync.WaitGroup
	)
	path := "/sieges/" + r.id + "/notifications"
	ch := make(chan model.Notification, r.cfg.Workers*channelMultiplier)

	for range r.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range ch {
				status, body, err := r.client.post(ctx, path, n)
				switch {
				case err != nil:
					failed.Add(1)
					r.log.Warn(ctx, "notification failed", logger.String("id", n.ID), logger.Error(err))
				case status == http.StatusAccepted:
					accepted.Add(1)
				case status == http.StatusConflict && isDuplicate(body):
					duplicates.Add(1)
				default:
					failed.Add(1)
					r.log.Warn(ctx, "notification rejected",
						logger.String("id", n.ID),
						logger.Error(replyError("POST", path, status, body)))
				}
			}
		}()
	}

	go func() {
		defer close(ch)
		for _, n := range notes {
			select {
			case <-ctx.Done():
				return
			case ch <- n:
			}
		}
	}()
	wg.Wait()

	r.stats.Submitted += len(notes)
	r.stats.Accepted += int(accepted.Load())
	r.stats.Duplicates += int(duplicates.Load())
	r.stats.Failed += int(failed.Load())

	if err := ctx.Err(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%w: %d of %d notifications failed", ErrUnexpectedReply, n, len(notes))
	}
	return nil
}

func isDuplicate(body []byte) bool {
	var ack ackResponse
	return unmarshalJSON(body, &ack) == nil && ack.Duplicate
}

func (r *runner) deliver(ctx context.Context, name string) error {
	path := "/sieges/" + r.id + "/deliveries"
	status, body, err := r.client.post(ctx, path, map[string]string{"name": name})
	if err != nil {
		return fmt.Errorf("deliver: %w", err)
	}
	if status != http.StatusOK {
		return replyError("POST", path, status, body)
	}
	r.log.Info(ctx, "quest item delivered", logger.String("siege", r.id), logger.String("winner", name))
	return nil
}
