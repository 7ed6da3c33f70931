package siege_test

import (
	"context"
	"sync"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/internal/domain/terrain"
)

type sent struct {
	to   []string
	kind model.MessageKind
	data map[string]any
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	msgs []sent
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, recipients []string, msg model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, sent{to: recipients, kind: msg.Kind, data: msg.Data})
}

func (b *recordingBroadcaster) Direct(_ context.Context, recipient string, msg model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, sent{to: []string{recipient}, kind: msg.Kind, data: msg.Data})
}

func (b *recordingBroadcaster) count(kind model.MessageKind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, m := range b.msgs {
		if m.kind == kind {
			n++
		}
	}
	return n
}

func (b *recordingBroadcaster) last(kind model.MessageKind) (sent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.msgs) - 1; i >= 0; i-- {
		if b.msgs[i].kind == kind {
			return b.msgs[i], true
		}
	}
	return sent{}, false
}

type fakeArena struct {
	mu      sync.Mutex
	summons int
	placed  []model.Position
	removed []string
}

func (a *fakeArena) SummonBoss(context.Context, int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summons++
	return nil
}

func (a *fakeArena) PlaceQuestItem(_ context.Context, _ int, pos model.Position) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.placed = append(a.placed, pos)
	return nil
}

func (a *fakeArena) RemoveQuestItem(_ context.Context, _ int, holder string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removed = append(a.removed, holder)
	return nil
}

type terrainCall struct {
	rect     terrain.Rect
	passable bool
}

type fakeAuthority struct {
	mu    sync.Mutex
	calls []terrainCall
}

func (f *fakeAuthority) SetPassable(_ context.Context, r terrain.Rect, passable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, terrainCall{rect: r, passable: passable})
	return nil
}

func (f *fakeAuthority) has(r terrain.Rect, passable bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.rect == r && c.passable == passable {
			return true
		}
	}
	return false
}

type fakeSink struct {
	mu    sync.Mutex
	calls int
	rows  []model.RankEntry
}

func (s *fakeSink) Record(_ context.Context, _ string, entries []model.RankEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.rows = entries
	return nil
}
