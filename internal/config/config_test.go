package config_test

import (
	"errors"
	"testing"

	"github.com/okian/siege/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Event.PreGatePerParticipant, convey.ShouldEqual, 10)
			convey.So(cfg.Event.PostGatePerParticipant, convey.ShouldEqual, 2)
			convey.So(cfg.Event.MaxParticipants, convey.ShouldEqual, 10)
			convey.So(cfg.Event.Level, convey.ShouldEqual, 1)
			convey.So(cfg.Levels(), convey.ShouldEqual, 8)
			convey.So(cfg.Rewards.WinnerMoneyFactor, convey.ShouldEqual, 2)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New()

		convey.Convey("When a per-level table is shorter than the level count", func() {
			cfg.Rewards.GateBonus = cfg.Rewards.GateBonus[:3]

			convey.Convey("Then validation fails with ErrInvalidConfig", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "rewards.gate_bonus")
			})
		})

		convey.Convey("When the countdown has no duration", func() {
			cfg.Event.DurationTicks = 0

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the default level exceeds the level tables", func() {
			cfg.Event.Level = 9

			convey.Convey("Then validation fails", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "event.level")
			})
		})

		convey.Convey("When the winner money factor is not positive", func() {
			for _, f := range []int64{0, -2} {
				cfg.Rewards.WinnerMoneyFactor = f
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "rewards.winner_money_factor")
			}
		})

		convey.Convey("When a level's kill score is negative", func() {
			cfg.Event.KillScore[4] = -1

			convey.Convey("Then validation names the entry", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "event.kill_score[4]")
			})
		})

		convey.Convey("When a reward table holds a negative amount", func() {
			cfg.Rewards.QuestBonus[0] = -20_000

			convey.Convey("Then validation fails", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "rewards.quest_bonus[0]")
			})
		})

		convey.Convey("When a level's kill score is zero", func() {
			cfg.Event.KillScore[0] = 0

			convey.Convey("Then the config is still valid", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the dead member percent is out of range", func() {
			cfg.Rewards.DeadMemberGatePercent = 150

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
