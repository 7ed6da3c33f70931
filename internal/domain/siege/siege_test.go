package siege_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/siege/internal/config"
	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/questitem"
	"github.com/okian/siege/internal/domain/siege"
	"github.com/okian/siege/internal/domain/terrain"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	gateID  = 131
	bossID  = 132
	questID = 1219
)

type harness struct {
	ev    *siege.Event
	bc    *recordingBroadcaster
	arena *fakeArena
	auth  *fakeAuthority
	sink  *fakeSink
	cfg   *config.Config
}

func newHarness(mutate func(*config.Config)) *harness {
	cfg := config.New()
	cfg.Rewards.GateBonus[0] = 7_000
	if mutate != nil {
		mutate(cfg)
	}
	h := &harness{
		bc:    &recordingBroadcaster{},
		arena: &fakeArena{},
		auth:  &fakeAuthority{},
		sink:  &fakeSink{},
		cfg:   cfg,
	}
	ev, err := siege.New("siege-1", siege.Settings{Level: 1, Event: cfg.Event, Rewards: cfg.Rewards},
		siege.WithBroadcaster(h.bc),
		siege.WithArena(h.arena),
		siege.WithAuthority(h.auth),
		siege.WithRankingSink(h.sink),
	)
	if err != nil {
		panic(err)
	}
	h.ev = ev
	return h
}

func roster(names ...string) []model.Member {
	out := make([]model.Member, len(names))
	for i, n := range names {
		out[i] = model.Member{Name: n}
	}
	return out
}

func monster(killer string, id int) model.Kill {
	return model.Kill{Killer: killer, EntityID: id}
}

// killConcurrently spreads kills of entity id over the killers.
func killConcurrently(ctx context.Context, ev *siege.Event, killers []string, id, n int) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = ev.OnKill(ctx, monster(killers[i%len(killers)], id))
		}(i)
	}
	wg.Wait()
}

// toQuestItem drives a started siege up to the spawned quest item.
func toQuestItem(ctx context.Context, h *harness, killer string) {
	So(h.ev.OnKill(ctx, model.Kill{Killer: killer, EntityID: gateID, Structure: true}), ShouldBeNil)
	for i := int64(0); i < h.ev.Status().Required; i++ {
		So(h.ev.OnKill(ctx, monster(killer, 88)), ShouldBeNil)
	}
	So(h.ev.Phase(), ShouldEqual, model.PhaseBossSummoned)
	So(h.ev.OnKill(ctx, model.Kill{Killer: killer, EntityID: bossID, Structure: true, Pos: model.Position{X: 40, Y: 95}}), ShouldBeNil)
}

func TestNew(t *testing.T) {
	Convey("Given event settings", t, func() {
		cfg := config.New()

		Convey("When the quest item is not defined", func() {
			cfg.Event.QuestItemID = 0
			_, err := siege.New("x", siege.Settings{Level: 1, Event: cfg.Event, Rewards: cfg.Rewards})
			So(err, ShouldEqual, siege.ErrMissingQuestItem)
		})

		Convey("When the boss is not defined", func() {
			cfg.Event.BossID = 0
			_, err := siege.New("x", siege.Settings{Level: 1, Event: cfg.Event, Rewards: cfg.Rewards})
			So(err, ShouldEqual, siege.ErrMissingBoss)
		})

		Convey("When the level has no table entry", func() {
			_, err := siege.New("x", siege.Settings{Level: 9, Event: cfg.Event, Rewards: cfg.Rewards})
			So(errors.Is(err, siege.ErrInvalidLevel), ShouldBeTrue)
		})
	})
}

func TestStart(t *testing.T) {
	Convey("Given a new siege", t, func() {
		ctx := context.Background()
		h := newHarness(nil)

		Convey("When started with an empty or oversized roster", func() {
			So(h.ev.Start(ctx, nil), ShouldEqual, siege.ErrEmptyRoster)
			big := make([]string, 11)
			for i := range big {
				big[i] = string(rune('a' + i))
			}
			So(errors.Is(h.ev.Start(ctx, roster(big...)), siege.ErrRosterTooLarge), ShouldBeTrue)
			So(h.ev.Phase(), ShouldEqual, model.PhaseNotStarted)
		})

		Convey("When started with 4 participants", func() {
			So(h.ev.Start(ctx, roster("a", "b", "c", "d")), ShouldBeNil)
			defer h.ev.OnTimeExpired(ctx)

			Convey("Then the pre-gate objective requires 10 kills each and the entrance is open", func() {
				st := h.ev.Status()
				So(st.Phase, ShouldEqual, model.PhaseBridgeClosed.String())
				So(st.Required, ShouldEqual, 40)
				So(st.Present, ShouldResemble, []string{"a", "b", "c", "d"})
				So(h.auth.has(terrain.Rect{X1: 13, Y1: 15, X2: 15, Y2: 23}, true), ShouldBeTrue)
				So(h.bc.count(model.MsgTerrainChanged), ShouldEqual, 1)
			})

			Convey("Then a second start is refused", func() {
				So(h.ev.Start(ctx, roster("a")), ShouldEqual, siege.ErrAlreadyStarted)
			})
		})
	})
}

func TestObjectives(t *testing.T) {
	Convey("Given a running siege with 3 participants", t, func() {
		ctx := context.Background()
		h := newHarness(nil)
		names := []string{"a", "b", "c"}
		So(h.ev.Start(ctx, roster(names...)), ShouldBeNil)
		defer h.ev.OnTimeExpired(ctx)

		Convey("When 120 pre-gate kills race in", func() {
			killConcurrently(ctx, h.ev, names, 84, 120)

			Convey("Then the bridge opens exactly once and the post-gate objective is 2N", func() {
				So(h.ev.Phase(), ShouldEqual, model.PhaseBridgeOpen)
				So(h.bc.count(model.MsgBridgeOpened), ShouldEqual, 1)
				st := h.ev.Status()
				So(st.Required, ShouldEqual, 6)
				So(st.Kills, ShouldEqual, 0)
				So(h.auth.has(terrain.Rect{X1: 13, Y1: 70, X2: 15, Y2: 75}, true), ShouldBeTrue)
			})

			Convey("Then every kill was credited", func() {
				total := int64(0)
				for _, p := range h.ev.Participants() {
					total += p.Score
				}
				So(total, ShouldEqual, 240)
			})

			Convey("When 50 post-gate kills race in", func() {
				killConcurrently(ctx, h.ev, names, 88, 50)

				Convey("Then the boss is summoned exactly once", func() {
					So(h.ev.Phase(), ShouldEqual, model.PhaseBossSummoned)
					So(h.arena.summons, ShouldEqual, 1)
					So(h.bc.count(model.MsgBossSummoned), ShouldEqual, 1)
				})
			})
		})

		Convey("When the gate falls before the bridge opened", func() {
			So(h.ev.OnKill(ctx, model.Kill{Killer: "a", EntityID: gateID, Structure: true}), ShouldBeNil)

			Convey("Then the gate passage and the bridge open and the post-gate objective is armed", func() {
				So(h.ev.Phase(), ShouldEqual, model.PhaseGateDestroyed)
				So(h.ev.Status().Required, ShouldEqual, 6)
				So(h.bc.count(model.MsgBridgeOpened), ShouldEqual, 1)
				So(h.bc.count(model.MsgGateDestroyed), ShouldEqual, 1)
				So(h.auth.has(terrain.Rect{X1: 11, Y1: 80, X2: 25, Y2: 89}, true), ShouldBeTrue)
				So(h.auth.has(terrain.Rect{X1: 8, Y1: 80, X2: 10, Y2: 83}, true), ShouldBeTrue)
			})

			Convey("Then late pre-gate kills never move the phase back", func() {
				killConcurrently(ctx, h.ev, names, 84, 40)
				So(h.ev.Phase(), ShouldEqual, model.PhaseGateDestroyed)
			})

			Convey("Then a second gate kill changes nothing", func() {
				So(h.ev.OnKill(ctx, model.Kill{Killer: "b", EntityID: gateID, Structure: true}), ShouldBeNil)
				So(h.bc.count(model.MsgGateDestroyed), ShouldEqual, 1)
			})
		})

		Convey("When an unknown structure is killed", func() {
			err := h.ev.OnKill(ctx, model.Kill{Killer: "a", EntityID: 999, Structure: true})

			Convey("Then it is rejected without score", func() {
				So(err, ShouldEqual, siege.ErrUnknownStructure)
				for _, p := range h.ev.Participants() {
					So(p.Score, ShouldEqual, 0)
				}
			})
		})

		Convey("When a stranger gets a kill", func() {
			err := h.ev.OnKill(ctx, monster("stranger", 84))

			Convey("Then the score is ignored but the kill still counts", func() {
				So(err, ShouldBeNil)
				So(h.ev.Status().Kills, ShouldEqual, 1)
			})
		})
	})
}

func TestWinScenario(t *testing.T) {
	Convey("Given 3 participants playing a level-1 siege to the end", t, func() {
		ctx := context.Background()
		h := newHarness(nil)
		So(h.ev.Start(ctx, roster("alice", "bob", "carol")), ShouldBeNil)

		killConcurrently(ctx, h.ev, []string{"alice", "bob", "carol"}, 85, 30)
		So(h.ev.Phase(), ShouldEqual, model.PhaseBridgeOpen)

		So(h.ev.OnKill(ctx, model.Kill{Killer: "alice", EntityID: gateID, Structure: true}), ShouldBeNil)
		So(h.ev.Phase(), ShouldEqual, model.PhaseGateDestroyed)

		for i := 0; i < 6; i++ {
			So(h.ev.OnKill(ctx, monster("bob", 89)), ShouldBeNil)
		}
		So(h.ev.Phase(), ShouldEqual, model.PhaseBossSummoned)

		So(h.ev.OnKill(ctx, model.Kill{Killer: "carol", EntityID: bossID, Structure: true, Pos: model.Position{X: 40, Y: 95}}), ShouldBeNil)
		So(h.arena.placed, ShouldResemble, []model.Position{{X: 40, Y: 95}})

		Convey("When carol tries to deliver without the item", func() {
			err := h.ev.OnDeliver(ctx, "carol")

			Convey("Then the delivery is refused with a direct message", func() {
				So(err, ShouldEqual, questitem.ErrNotHoldingItem)
				msg, ok := h.bc.last(model.MsgDeliveryRefused)
				So(ok, ShouldBeTrue)
				So(msg.to, ShouldResemble, []string{"carol"})
				So(h.ev.Winner(), ShouldBeEmpty)
				h.ev.OnTimeExpired(ctx)
			})
		})

		Convey("When bob picks up and delivers the item", func() {
			So(h.ev.OnPickup(ctx, "bob", questID), ShouldBeNil)
			So(h.ev.OnPickup(ctx, "alice", questID), ShouldEqual, questitem.ErrItemNotAvailable)
			st := h.ev.Status()
			So(st.QuestItem, ShouldEqual, "held")
			So(st.Holder, ShouldEqual, "bob")
			So(h.ev.OnDeliver(ctx, "bob"), ShouldBeNil)
			So(h.ev.Status().QuestItem, ShouldEqual, "delivered")

			Convey("Then bob wins and the run ends", func() {
				So(h.ev.Winner(), ShouldEqual, "bob")
				So(h.ev.Phase(), ShouldEqual, model.PhaseEnded)
				select {
				case <-h.ev.Done():
				default:
					So("siege not done", ShouldBeEmpty)
				}
			})

			Convey("Then the rank table has 3 entries by descending score", func() {
				rows := h.ev.Ranking()
				So(rows, ShouldHaveLength, 3)
				So(rows[0].Name, ShouldEqual, "bob")
				So(rows[0].Score, ShouldEqual, 20+12+50)
				So(rows[0].Score, ShouldBeGreaterThanOrEqualTo, rows[1].Score)
				So(rows[1].Score, ShouldBeGreaterThanOrEqualTo, rows[2].Score)
				So(h.sink.calls, ShouldEqual, 1)
				So(h.sink.rows, ShouldResemble, rows)
			})

			Convey("Then the gate bonus went to alice and not to bob", func() {
				alice, err := h.ev.Record("alice")
				So(err, ShouldBeNil)
				bob, _ := h.ev.Record("bob")
				carol, _ := h.ev.Record("carol")
				So(bob.Experience-alice.Experience, ShouldEqual, 20_000-7_000)
				So(alice.Experience-carol.Experience, ShouldEqual, 7_000-5_000)
				So(bob.Money, ShouldEqual, 40_000)
				So(alice.Money, ShouldEqual, 20_000)
			})

			Convey("Then every participant got their result", func() {
				So(h.bc.count(model.MsgResult), ShouldEqual, 3)
				So(h.bc.count(model.MsgSiegeEnded), ShouldEqual, 1)
			})

			Convey("Then a second delivery fails and finalize is a no-op", func() {
				So(h.ev.OnDeliver(ctx, "bob"), ShouldEqual, siege.ErrNotRunning)
				h.ev.Finalize(ctx, model.OutcomeTimedOut)
				So(h.sink.calls, ShouldEqual, 1)
				res, err := h.ev.Result()
				So(err, ShouldBeNil)
				So(res.Outcome(), ShouldEqual, model.OutcomeWon)
			})
		})
	})
}

func TestTimeoutScenario(t *testing.T) {
	Convey("Given a short siege that nobody finishes", t, func() {
		ctx := context.Background()
		h := newHarness(func(c *config.Config) {
			c.Event.TickIntervalMS = 5
			c.Event.DurationTicks = 4
			c.Rewards.AllowNegativeScore = true
		})
		So(h.ev.Start(ctx, roster("a", "b", "c")), ShouldBeNil)
		_, err := h.ev.FinalScore("a")
		So(err, ShouldEqual, siege.ErrNotFinalized)
		So(h.ev.OnKill(ctx, monster("a", 84)), ShouldBeNil)

		select {
		case <-h.ev.Done():
		case <-time.After(2 * time.Second):
		}

		Convey("Then the countdown ends it by time-out", func() {
			So(h.ev.Phase(), ShouldEqual, model.PhaseEnded)
			So(h.ev.Winner(), ShouldBeEmpty)
			So(h.ev.RemainingTime(), ShouldEqual, 0)
			res, err := h.ev.Result()
			So(err, ShouldBeNil)
			So(res.Outcome(), ShouldEqual, model.OutcomeTimedOut)
		})

		Convey("Then everybody is ranked and penalized", func() {
			So(h.ev.Ranking(), ShouldHaveLength, 3)
			a, _ := h.ev.FinalScore("a")
			b, _ := h.ev.FinalScore("b")
			c, _ := h.ev.FinalScore("c")
			So(a, ShouldEqual, 2+10-50)
			So(b, ShouldEqual, 0+5-50)
			So(c, ShouldEqual, -50)
			_, err := h.ev.FinalScore("zed")
			So(err, ShouldEqual, siege.ErrUnknownParticipant)
		})

		Convey("Then status ticks reported the standing gate and the entrance closed", func() {
			So(h.bc.count(model.MsgGatePending), ShouldBeGreaterThan, 0)
			So(h.bc.count(model.MsgGateDestroyed), ShouldEqual, 0)
			So(h.auth.has(terrain.Rect{X1: 13, Y1: 15, X2: 15, Y2: 23}, false), ShouldBeTrue)
		})

		Convey("Then later notifications are refused", func() {
			So(h.ev.OnKill(ctx, monster("a", 84)), ShouldEqual, siege.ErrNotRunning)
			So(h.ev.OnPickup(ctx, "a", questID), ShouldEqual, siege.ErrNotRunning)
		})
	})
}

func TestCustodyOnLeave(t *testing.T) {
	Convey("Given a siege where alice holds the quest item", t, func() {
		ctx := context.Background()
		h := newHarness(nil)
		So(h.ev.Start(ctx, roster("alice", "bob")), ShouldBeNil)
		toQuestItem(ctx, h, "alice")
		So(h.ev.OnPickup(ctx, "alice", questID), ShouldBeNil)

		Convey("When alice leaves while the siege runs", func() {
			So(h.ev.OnParticipantRemoved(ctx, "alice", model.Position{X: 12, Y: 34}), ShouldBeNil)

			Convey("Then the item drops where alice stood and bob can finish", func() {
				So(h.arena.placed[len(h.arena.placed)-1], ShouldResemble, model.Position{X: 12, Y: 34})
				So(h.bc.count(model.MsgQuestItemDrop), ShouldEqual, 1)
				msg, _ := h.bc.last(model.MsgParticipantLeft)
				So(msg.data["present"], ShouldResemble, []string{"bob"})
				So(h.ev.OnPickup(ctx, "bob", questID), ShouldBeNil)
				So(h.ev.OnDeliver(ctx, "bob"), ShouldBeNil)
				So(h.ev.Winner(), ShouldEqual, "bob")
			})

			Convey("Then alice is no longer ranked", func() {
				h.ev.OnTimeExpired(ctx)
				So(h.ev.Ranking(), ShouldHaveLength, 1)
			})
		})

		Convey("When the siege ends while alice holds the item", func() {
			h.ev.OnTimeExpired(ctx)

			Convey("Then the item is removed, not dropped", func() {
				So(h.arena.removed, ShouldResemble, []string{"alice"})
				So(h.ev.OnParticipantRemoved(ctx, "alice", model.Position{X: 1, Y: 1}), ShouldBeNil)
				So(h.bc.count(model.MsgQuestItemDrop), ShouldEqual, 0)
				So(h.ev.OnPickup(ctx, "bob", questID), ShouldEqual, siege.ErrNotRunning)
			})
		})
	})
}

func TestAbandonAndDeath(t *testing.T) {
	Convey("Given a running siege with two participants", t, func() {
		ctx := context.Background()
		h := newHarness(nil)
		So(h.ev.Start(ctx, roster("a", "b")), ShouldBeNil)

		Convey("When both leave", func() {
			So(h.ev.OnParticipantRemoved(ctx, "a", model.Position{}), ShouldBeNil)
			So(h.ev.Phase(), ShouldNotEqual, model.PhaseEnded)
			So(h.ev.OnParticipantRemoved(ctx, "b", model.Position{}), ShouldBeNil)

			Convey("Then the siege ends by time-out with nobody ranked", func() {
				So(h.ev.Phase(), ShouldEqual, model.PhaseEnded)
				So(h.ev.Ranking(), ShouldBeEmpty)
				So(h.sink.calls, ShouldEqual, 1)
			})
		})

		Convey("When a participant dies and revives", func() {
			So(h.ev.OnParticipantDied(ctx, "a"), ShouldBeNil)
			So(h.ev.Participants()[0].Alive, ShouldBeFalse)
			So(h.ev.OnParticipantRevived(ctx, "a"), ShouldBeNil)
			So(h.ev.Participants()[0].Alive, ShouldBeTrue)
			So(h.ev.OnParticipantDied(ctx, "ghost"), ShouldEqual, siege.ErrUnknownParticipant)
			h.ev.OnTimeExpired(ctx)
		})
	})
}

func TestPartyBonusAfterCreditedPlayerLeft(t *testing.T) {
	Convey("Given alice of party red breaking the gate and killing the boss", t, func() {
		ctx := context.Background()
		h := newHarness(nil)
		So(h.ev.Start(ctx, []model.Member{
			{Name: "alice", Party: "red"},
			{Name: "bob", Party: "red"},
			{Name: "carol", Party: "blue"},
		}), ShouldBeNil)
		toQuestItem(ctx, h, "alice")
		So(h.ev.OnPickup(ctx, "bob", questID), ShouldBeNil)

		Convey("When alice leaves and bob delivers", func() {
			So(h.ev.OnParticipantRemoved(ctx, "alice", model.Position{X: 3, Y: 3}), ShouldBeNil)
			So(h.ev.OnDeliver(ctx, "bob"), ShouldBeNil)

			Convey("Then bob still gets the gate, boss and quest bonuses of their party", func() {
				So(h.ev.Ranking(), ShouldHaveLength, 2)
				bob, err := h.ev.Record("bob")
				So(err, ShouldBeNil)
				carol, _ := h.ev.Record("carol")
				So(bob.Experience-carol.Experience, ShouldEqual, 7_000+5_000+20_000)
			})
		})
	})
}

func TestDeliveryRacingTimeout(t *testing.T) {
	Convey("Given sieges where bob holds the item as time runs out", t, func() {
		ctx := context.Background()

		Convey("When delivery and expiry run concurrently", func() {
			for i := 0; i < 50; i++ {
				h := newHarness(nil)
				So(h.ev.Start(ctx, roster("alice", "bob")), ShouldBeNil)
				toQuestItem(ctx, h, "alice")
				So(h.ev.OnPickup(ctx, "bob", questID), ShouldBeNil)

				var (
					wg      sync.WaitGroup
					gate    = make(chan struct{})
					deliver error
				)
				wg.Add(2)
				go func() {
					defer wg.Done()
					<-gate
					deliver = h.ev.OnDeliver(ctx, "bob")
				}()
				go func() {
					defer wg.Done()
					<-gate
					h.ev.OnTimeExpired(ctx)
				}()
				close(gate)
				wg.Wait()

				res, err := h.ev.Result()
				So(err, ShouldBeNil)
				So(h.sink.calls, ShouldEqual, 1)
				So(res.Len(), ShouldEqual, 2)
				if deliver == nil {
					So(res.Outcome(), ShouldEqual, model.OutcomeWon)
					So(res.Winner(), ShouldEqual, "bob")
				} else {
					So(deliver, ShouldEqual, siege.ErrNotRunning)
					So(res.Outcome(), ShouldEqual, model.OutcomeTimedOut)
					So(res.Winner(), ShouldBeEmpty)
					So(h.arena.removed, ShouldResemble, []string{"bob"})
				}
			}
		})

		Convey("When the delivery lands on the last tick", func() {
			h := newHarness(func(c *config.Config) {
				c.Event.TickIntervalMS = 5
				c.Event.DurationTicks = 40
			})
			So(h.ev.Start(ctx, roster("alice", "bob")), ShouldBeNil)
			toQuestItem(ctx, h, "alice")
			So(h.ev.OnPickup(ctx, "bob", questID), ShouldBeNil)
			for h.ev.RemainingTime() > 5*time.Millisecond {
				time.Sleep(time.Millisecond)
			}
			err := h.ev.OnDeliver(ctx, "bob")

			select {
			case <-h.ev.Done():
			case <-time.After(2 * time.Second):
			}

			Convey("Then the siege ends exactly once with the outcome the delivery saw", func() {
				res, rerr := h.ev.Result()
				So(rerr, ShouldBeNil)
				So(h.sink.calls, ShouldEqual, 1)
				if err == nil {
					So(res.Outcome(), ShouldEqual, model.OutcomeWon)
				} else {
					So(res.Outcome(), ShouldEqual, model.OutcomeTimedOut)
				}
			})
		})
	})
}
