package broadcast_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/siege/internal/adapters/broadcast"
	"github.com/okian/siege/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// flakyMessenger fails, panics or stalls for chosen recipients.
type flakyMessenger struct {
	rec    *broadcast.Recorder
	fail   string
	panics string
	stall  string
	calls  atomic.Int32
}

func (f *flakyMessenger) Send(ctx context.Context, recipient string, msg model.Message) error {
	f.calls.Add(1)
	switch recipient {
	case f.fail:
		return errors.New("unreachable")
	case f.panics:
		panic("boom")
	case f.stall:
		<-ctx.Done()
		return ctx.Err()
	}
	return f.rec.Send(ctx, recipient, msg)
}

func msg(kind model.MessageKind) model.Message {
	return model.Message{SiegeID: "s1", Kind: kind, At: time.Now()}
}

func TestDispatcher(t *testing.T) {
	Convey("Given a dispatcher over a messenger with bad recipients", t, func() {
		rec := broadcast.NewRecorder()
		m := &flakyMessenger{rec: rec, fail: "bad", panics: "panicky", stall: "slow"}
		d := broadcast.NewDispatcher(m, broadcast.WithTimeout(200*time.Millisecond))

		Convey("When broadcasting to everyone", func() {
			start := time.Now()
			d.Broadcast(context.Background(), []string{"alice", "bad", "panicky", "slow", "bob"}, msg(model.MsgGatePending))
			returned := time.Since(start)
			d.Wait()

			Convey("Then the call does not wait for the slow recipient", func() {
				So(returned, ShouldBeLessThan, 100*time.Millisecond)
			})

			Convey("Then healthy recipients still get the message", func() {
				So(m.calls.Load(), ShouldEqual, 5)
				So(rec.For("alice"), ShouldHaveLength, 1)
				So(rec.For("bob"), ShouldHaveLength, 1)
				So(rec.Count(model.MsgGatePending), ShouldEqual, 2)
			})
		})

		Convey("When the caller's context is already cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			d.Direct(ctx, "alice", msg(model.MsgResult))
			d.Wait()

			Convey("Then the send still happens", func() {
				So(rec.For("alice"), ShouldHaveLength, 1)
			})
		})
	})
}

func TestMulti(t *testing.T) {
	Convey("Given two recorders and a failing messenger", t, func() {
		a, b := broadcast.NewRecorder(), broadcast.NewRecorder()
		multi := broadcast.Multi{a, &flakyMessenger{rec: broadcast.NewRecorder(), fail: "alice"}, b}

		Convey("When sending", func() {
			err := multi.Send(context.Background(), "alice", msg(model.MsgSiegeEnded))

			Convey("Then every messenger is tried and the failure is reported", func() {
				So(err, ShouldNotBeNil)
				So(a.Deliveries(), ShouldHaveLength, 1)
				So(b.Deliveries(), ShouldHaveLength, 1)
			})
		})
	})
}

func TestRecorderConcurrent(t *testing.T) {
	Convey("Given a recorder under concurrent sends", t, func() {
		rec := broadcast.NewRecorder()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = rec.Send(context.Background(), "alice", msg(model.MsgGatePending))
			}()
		}
		wg.Wait()
		So(rec.Count(model.MsgGatePending), ShouldEqual, 50)
	})
}
