package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/siege/internal/domain/model"
)

func kill(id string) model.Notification {
	return model.Notification{ID: id, SiegeID: "s1", Kind: model.NotifyKill, Name: "alice", EntityID: 84}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, kill("n1")) {
		t.Error("expected enqueue to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	n := <-q.Dequeue(ctx)
	if n.ID != "n1" || n.Kind != model.NotifyKill {
		t.Errorf("unexpected notification %+v", n)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, kill("n1")) || !q.Enqueue(ctx, kill("n2")) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, kill("n3")) {
		t.Error("expected enqueue to fail when full")
	}
	<-q.Dequeue(ctx)
	if !q.Enqueue(ctx, kill("n3")) {
		t.Error("expected enqueue to succeed after a dequeue")
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4))
	ctx := context.Background()

	_ = q.Enqueue(ctx, kill("n1"))
	if err := q.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if q.Enqueue(ctx, kill("n2")) {
		t.Error("expected enqueue to fail after close")
	}

	var got []string
	for n := range q.Dequeue(ctx) {
		got = append(got, n.ID)
	}
	if len(got) != 1 || got[0] != "n1" {
		t.Errorf("expected the queued notification to drain, got %v", got)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	_ = q.Enqueue(context.Background(), kill("n1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if q.Enqueue(ctx, kill("n2")) {
		t.Error("expected enqueue to fail")
	}
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()

	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if !q.Enqueue(ctx, kill(fmt.Sprintf("n-%d-%d", p, i))) {
					t.Errorf("enqueue %d-%d failed", p, i)
				}
			}
		}(p)
	}
	wg.Wait()
	if l := q.Len(ctx); l != 1000 {
		t.Errorf("expected 1000 queued, got %d", l)
	}
}

func TestInMemoryQueue_PartitionsBySiege(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(400), WithPartitions(4))
	ctx := context.Background()

	if p := q.Partitions(); p != 4 {
		t.Fatalf("expected 4 partitions, got %d", p)
	}

	sieges := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"}
	for i := 0; i < 10; i++ {
		for _, s := range sieges {
			n := model.Notification{ID: fmt.Sprintf("%s-%d", s, i), SiegeID: s, Kind: model.NotifyKill, Name: "alice"}
			if !q.Enqueue(ctx, n) {
				t.Fatalf("enqueue %s failed", n.ID)
			}
		}
	}
	if l := q.Len(ctx); l != 80 {
		t.Errorf("expected 80 queued over all partitions, got %d", l)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	home := map[string]int{}
	next := map[string]int{}
	for i := 0; i < q.Partitions(); i++ {
		for n := range q.Partition(i) {
			if p, ok := home[n.SiegeID]; ok && p != i {
				t.Errorf("siege %s split over partitions %d and %d", n.SiegeID, p, i)
			}
			home[n.SiegeID] = i
			if want := fmt.Sprintf("%s-%d", n.SiegeID, next[n.SiegeID]); n.ID != want {
				t.Errorf("expected %s, got %s", want, n.ID)
			}
			next[n.SiegeID]++
		}
	}
	for _, s := range sieges {
		if next[s] != 10 {
			t.Errorf("expected 10 notifications for %s, got %d", s, next[s])
		}
	}
}

func TestInMemoryQueue_NonPositivePartitions(t *testing.T) {
	q := NewInMemoryQueue(WithPartitions(0))
	if p := q.Partitions(); p != 1 {
		t.Errorf("expected a single partition, got %d", p)
	}
}
