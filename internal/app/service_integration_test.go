package service_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/siege/internal/adapters/broadcast"
	"github.com/okian/siege/internal/adapters/repository"
	service "github.com/okian/siege/internal/app"
	"github.com/okian/siege/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service with a recorder and a sqlite sink", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "siege.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		rec := broadcast.NewRecorder()
		svc := service.New(testConfig(),
			service.WithMessenger(rec),
			service.WithRankingSink("sqlite", store),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		id, err := svc.CreateSiege(ctx, 1, roster("alice", "bob", "carol"))
		So(err, ShouldBeNil)

		var seq int
		var seqMu sync.Mutex
		submit := func(n model.Notification) {
			seqMu.Lock()
			seq++
			n.ID = fmt.Sprintf("n-%d", seq)
			seqMu.Unlock()
			n.SiegeID = id
			dup, err := svc.Submit(ctx, n)
			So(err, ShouldBeNil)
			So(dup, ShouldBeFalse)
		}
		phase := func(want string) func() bool {
			return func() bool {
				st, err := svc.Status(id)
				return err == nil && st.Phase == want
			}
		}

		Convey("When the siege is played through notifications", func() {
			// Pre-gate quota is 3 x 10; a few extra kills must not overshoot.
			for i := 0; i < 36; i++ {
				submit(model.Notification{Kind: model.NotifyKill, Name: "alice", EntityID: 84 + i%4})
			}
			So(waitFor(phase("bridge_open")), ShouldBeTrue)

			submit(model.Notification{Kind: model.NotifyKill, Name: "bob", EntityID: 131, Structure: true})
			So(waitFor(phase("gate_destroyed")), ShouldBeTrue)

			st, _ := svc.Status(id)
			So(st.Required, ShouldEqual, 6)

			for i := 0; i < 6; i++ {
				submit(model.Notification{Kind: model.NotifyKill, Name: "carol", EntityID: 88})
			}
			So(waitFor(phase("boss_summoned")), ShouldBeTrue)

			ar, err := svc.Arena(id)
			So(err, ShouldBeNil)
			So(ar.BossSummons(), ShouldEqual, 1)
			So(ar.Passable(14, 72), ShouldBeTrue)
			So(ar.Passable(20, 85), ShouldBeTrue)

			submit(model.Notification{Kind: model.NotifyKill, Name: "carol", EntityID: 132, Pos: model.Position{X: 40, Y: 95}})
			So(waitFor(func() bool { _, ok := ar.QuestItem(); return ok }), ShouldBeTrue)

			submit(model.Notification{Kind: model.NotifyPickup, Name: "bob", ItemID: 1219})
			So(waitFor(func() bool { return rec.Count(model.MsgQuestItemTaken) > 0 }), ShouldBeTrue)

			Convey("Then a non-holder cannot deliver", func() {
				So(svc.Deliver(ctx, id, "alice"), ShouldNotBeNil)
				So(waitFor(func() bool {
					for _, m := range rec.For("alice") {
						if m.Kind == model.MsgDeliveryRefused {
							return true
						}
					}
					return false
				}), ShouldBeTrue)
				st, _ := svc.Status(id)
				So(st.Phase, ShouldEqual, "boss_summoned")
			})

			Convey("Then the holder wins and the ranking is published everywhere", func() {
				So(svc.Deliver(ctx, id, "bob"), ShouldBeNil)

				st, err := svc.Status(id)
				So(err, ShouldBeNil)
				So(st.Outcome, ShouldEqual, "won")
				So(st.Winner, ShouldEqual, "bob")

				recs, err := svc.Results(id)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 3)
				for i := 1; i < len(recs); i++ {
					So(recs[i].Score, ShouldBeLessThanOrEqualTo, recs[i-1].Score)
				}

				score, err := svc.FinalScore(id, "bob")
				So(err, ShouldBeNil)
				bob, err := svc.Record(id, "bob")
				So(err, ShouldBeNil)
				So(bob.Score, ShouldEqual, score)

				board, err := svc.Leaderboard(ctx, 10)
				So(err, ShouldBeNil)
				So(board, ShouldHaveLength, 3)
				So(board[0].SiegeID, ShouldEqual, id)

				entry, err := svc.Rank(ctx, "bob")
				So(err, ShouldBeNil)
				So(entry.Score, ShouldEqual, score)

				rows, err := store.SiegeRanking(ctx, id)
				So(err, ShouldBeNil)
				So(rows, ShouldHaveLength, 3)

				So(waitFor(func() bool { return rec.Count(model.MsgResult) == 3 }), ShouldBeTrue)
				So(waitFor(func() bool { return rec.Count(model.MsgSiegeEnded) == 3 }), ShouldBeTrue)
			})
		})
	})
}
