package arena_test

import (
	"context"
	"testing"

	"github.com/okian/siege/internal/adapters/arena"
	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/terrain"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMemory(t *testing.T) {
	Convey("Given a map with a blocked bridge", t, func() {
		ctx := context.Background()
		bridge := terrain.Rect{X1: 13, Y1: 70, X2: 15, Y2: 75}
		m := arena.NewMemory(bridge)

		So(m.Passable(14, 72), ShouldBeFalse)
		So(m.Passable(0, 0), ShouldBeTrue)

		Convey("When the bridge is opened", func() {
			So(m.SetPassable(ctx, bridge, true), ShouldBeNil)

			Convey("Then every cell of it is passable", func() {
				So(m.Passable(13, 70), ShouldBeTrue)
				So(m.Passable(15, 75), ShouldBeTrue)
			})
		})

		Convey("When a reversed rectangle is blocked", func() {
			So(m.SetPassable(ctx, terrain.Rect{X1: 3, Y1: 3, X2: 1, Y2: 1}, false), ShouldBeNil)
			So(m.Passable(2, 2), ShouldBeFalse)
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			So(m.SetPassable(cctx, bridge, true), ShouldNotBeNil)
			So(m.Passable(14, 72), ShouldBeFalse)
		})
	})

	Convey("Given the quest item lifecycle", t, func() {
		ctx := context.Background()
		m := arena.NewMemory()

		So(m.SummonBoss(ctx, 132), ShouldBeNil)
		So(m.BossSummons(), ShouldEqual, 1)

		So(m.PlaceQuestItem(ctx, 1219, model.Position{X: 4, Y: 9}), ShouldBeNil)
		it, ok := m.QuestItem()
		So(ok, ShouldBeTrue)
		So(it.OnGround, ShouldBeTrue)
		So(it.Pos, ShouldResemble, model.Position{X: 4, Y: 9})

		So(m.RemoveQuestItem(ctx, 1219, "alice"), ShouldBeNil)
		_, ok = m.QuestItem()
		So(ok, ShouldBeFalse)
		So(m.Removed(), ShouldHaveLength, 1)
		So(m.Removed()[0].Holder, ShouldEqual, "alice")
	})
}
