// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load(ctx) layers file and env on top.
// - Per-level tables are indexed by siege level - 1.
// - Validation errors wrap ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogJSON switches log output to JSON.
	LogJSON bool `koanf:"log_json"`
	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// QueueSize bounds the in-memory notification queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of notification workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the notification id cache.
	DedupeSize int `koanf:"dedupe_size"`
	// BroadcastTimeoutMS bounds a single per-recipient send.
	BroadcastTimeoutMS int `koanf:"broadcast_timeout_ms"`
	// ApplyTimeoutMS bounds applying one notification, terrain calls included.
	ApplyTimeoutMS int `koanf:"apply_timeout_ms"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	Event   EventConfig  `koanf:"event"`
	Rewards RewardConfig `koanf:"rewards"`
	NATS    NATSConfig   `koanf:"nats"`
	Redis   RedisConfig  `koanf:"redis"`
	SQLite  SQLiteConfig `koanf:"sqlite"`
}

// Rect is an inclusive rectangle of arena cells.
type Rect struct {
	X1 int `koanf:"x1"`
	Y1 int `koanf:"y1"`
	X2 int `koanf:"x2"`
	Y2 int `koanf:"y2"`
}

// EventConfig describes the arena content and the event pacing.
type EventConfig struct {
	// Level is used when a siege is created without one.
	Level           int `koanf:"level"`
	MaxParticipants int `koanf:"max_participants"`
	// TickIntervalMS is the countdown period; DurationTicks the number of ticks.
	TickIntervalMS int `koanf:"tick_interval_ms"`
	DurationTicks  int `koanf:"duration_ticks"`

	PreGatePerParticipant  int `koanf:"pre_gate_per_participant"`
	PostGatePerParticipant int `koanf:"post_gate_per_participant"`

	GateID      int `koanf:"gate_id"`
	BossID      int `koanf:"boss_id"`
	QuestItemID int `koanf:"quest_item_id"`

	PreGateMonsters  []int `koanf:"pre_gate_monsters"`
	PostGateMonsters []int `koanf:"post_gate_monsters"`

	// KillScore is the score credited per kill, by level.
	KillScore []int64 `koanf:"kill_score"`

	Entrance    []Rect `koanf:"entrance"`
	Bridge      []Rect `koanf:"bridge"`
	GatePassage []Rect `koanf:"gate_passage"`
}

// RewardConfig holds the reward tables.
type RewardConfig struct {
	// SuccessRankBonus and FailureRankBonus are indexed by rank - 1.
	SuccessRankBonus []int64 `koanf:"success_rank_bonus"`
	FailureRankBonus []int64 `koanf:"failure_rank_bonus"`

	TimeoutPenalty     int64 `koanf:"timeout_penalty"`
	AllowNegativeScore bool  `koanf:"allow_negative_score"`

	Money             []int64 `koanf:"money"`
	WinnerMoneyFactor int64   `koanf:"winner_money_factor"`
	FailedMoney       []int64 `koanf:"failed_money"`
	FailedExperience  []int64 `koanf:"failed_experience"`

	TimeBonusPerSecond []int64 `koanf:"time_bonus_per_second"`
	GateBonus          []int64 `koanf:"gate_bonus"`
	BossBonus          []int64 `koanf:"boss_bonus"`
	QuestBonus         []int64 `koanf:"quest_bonus"`

	// DeadMemberGatePercent is the share of the gate bonus paid to dead party members.
	DeadMemberGatePercent int64 `koanf:"dead_member_gate_percent"`
}

// NATSConfig enables the NATS broadcast messenger when URL is set.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// RedisConfig enables the Redis ranking sink when Addr is set.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Key      string `koanf:"key"`
}

// SQLiteConfig enables the SQLite ranking sink when Path is set.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// Levels returns how many siege levels the tables describe.
func (c *Config) Levels() int {
	return len(c.Event.KillScore)
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		QueueSize:           10_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          100_000,
		BroadcastTimeoutMS:  2_000,
		ApplyTimeoutMS:      5_000,
		MaxLeaderboardLimit: 100,
		Event: EventConfig{
			Level:                  1,
			MaxParticipants:        10,
			TickIntervalMS:         1_000,
			DurationTicks:          1_200,
			PreGatePerParticipant:  10,
			PostGatePerParticipant: 2,
			GateID:                 131,
			BossID:                 132,
			QuestItemID:            1219,
			PreGateMonsters:        []int{84, 85, 86, 87},
			PostGateMonsters:       []int{88, 89},
			KillScore:              []int64{2, 2, 3, 3, 4, 4, 5, 5},
			Entrance:               []Rect{{X1: 13, Y1: 15, X2: 15, Y2: 23}},
			Bridge:                 []Rect{{X1: 13, Y1: 70, X2: 15, Y2: 75}},
			GatePassage:            []Rect{{X1: 11, Y1: 80, X2: 25, Y2: 89}, {X1: 8, Y1: 80, X2: 10, Y2: 83}},
		},
		Rewards: RewardConfig{
			SuccessRankBonus:      []int64{50, 30, 20, 10, 5},
			FailureRankBonus:      []int64{10, 5},
			TimeoutPenalty:        50,
			Money:                 []int64{20_000, 50_000, 100_000, 150_000, 200_000, 250_000, 250_000, 250_000},
			WinnerMoneyFactor:     2,
			FailedMoney:           []int64{1_000, 2_000, 3_000, 4_000, 5_000, 6_000, 7_000, 8_000},
			FailedExperience:      []int64{1_000, 2_000, 3_000, 4_000, 5_000, 6_000, 7_000, 8_000},
			TimeBonusPerSecond:    []int64{5, 10, 15, 20, 25, 30, 35, 40},
			GateBonus:             []int64{20_000, 30_000, 40_000, 50_000, 60_000, 70_000, 80_000, 90_000},
			BossBonus:             []int64{5_000, 10_000, 15_000, 20_000, 25_000, 30_000, 35_000, 40_000},
			QuestBonus:            []int64{20_000, 30_000, 40_000, 50_000, 60_000, 70_000, 80_000, 90_000},
			DeadMemberGatePercent: 50,
		},
		NATS:  NATSConfig{SubjectPrefix: "siege"},
		Redis: RedisConfig{Key: "siege:leaderboard"},
	}
}

// Validate checks the settings the service relies on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Event.TickIntervalMS <= 0:
		return fmt.Errorf("%w: event.tick_interval_ms must be positive", ErrInvalidConfig)
	case c.Event.DurationTicks <= 0:
		return fmt.Errorf("%w: event.duration_ticks must be positive", ErrInvalidConfig)
	case c.Event.MaxParticipants <= 0:
		return fmt.Errorf("%w: event.max_participants must be positive", ErrInvalidConfig)
	case c.Event.PreGatePerParticipant <= 0 || c.Event.PostGatePerParticipant <= 0:
		return fmt.Errorf("%w: objective constants must be positive", ErrInvalidConfig)
	case c.Levels() == 0:
		return fmt.Errorf("%w: event.kill_score must describe at least one level", ErrInvalidConfig)
	case c.Event.Level < 1 || c.Event.Level > c.Levels():
		return fmt.Errorf("%w: event.level must be within 1..%d", ErrInvalidConfig, c.Levels())
	case c.Rewards.WinnerMoneyFactor <= 0:
		return fmt.Errorf("%w: rewards.winner_money_factor must be positive", ErrInvalidConfig)
	}
	if err := nonNegative("event.kill_score", c.Event.KillScore); err != nil {
		return err
	}
	levelTables := map[string][]int64{
		"rewards.money":                 c.Rewards.Money,
		"rewards.failed_money":          c.Rewards.FailedMoney,
		"rewards.failed_experience":     c.Rewards.FailedExperience,
		"rewards.time_bonus_per_second": c.Rewards.TimeBonusPerSecond,
		"rewards.gate_bonus":            c.Rewards.GateBonus,
		"rewards.boss_bonus":            c.Rewards.BossBonus,
		"rewards.quest_bonus":           c.Rewards.QuestBonus,
	}
	for name, table := range levelTables {
		if len(table) < c.Levels() {
			return fmt.Errorf("%w: %s has %d entries, need %d", ErrInvalidConfig, name, len(table), c.Levels())
		}
		if err := nonNegative(name, table); err != nil {
			return err
		}
	}
	if c.Rewards.DeadMemberGatePercent < 0 || c.Rewards.DeadMemberGatePercent > 100 {
		return fmt.Errorf("%w: rewards.dead_member_gate_percent must be within 0..100", ErrInvalidConfig)
	}
	return nil
}

func nonNegative(name string, table []int64) error {
	for i, v := range table {
		if v < 0 {
			return fmt.Errorf("%w: %s[%d] is negative", ErrInvalidConfig, name, i)
		}
	}
	return nil
}
