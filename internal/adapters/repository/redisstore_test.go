package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/okian/siege/internal/domain/model"
)

// testRedis returns a store on SIEGE_TEST_REDIS_ADDR under a unique key, or
// skips the test.
func testRedis(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("SIEGE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SIEGE_TEST_REDIS_ADDR not set")
	}
	key := "siege:test:" + uuid.NewString()
	s, err := DialRedis(context.Background(), addr, "", 0, WithRedisKey(key))
	if err != nil {
		t.Fatalf("dial redis: %v", err)
	}
	t.Cleanup(func() {
		_ = s.rdb.Del(context.Background(), key, s.siegeKey()).Err()
		_ = s.Close()
	})
	return s
}

func TestDialRedis_Unreachable(t *testing.T) {
	_, err := DialRedis(context.Background(), "127.0.0.1:1", "", 0)
	if err == nil {
		t.Fatal("expected a dial error")
	}
}

func TestRedisStore_RecordAndQuery(t *testing.T) {
	ctx := context.Background()
	s := testRedis(t)

	if err := s.Record(ctx, "s1", []model.RankEntry{
		{Rank: 1, Name: "bob", Score: 82},
		{Rank: 2, Name: "alice", Score: 52},
		{Rank: 3, Name: "carol", Score: 52},
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if ok, _ := s.UpdateBest(ctx, "bob", 10, "s2"); ok {
		t.Error("expected lower score to be ignored")
	}

	if s.Count(ctx) != 3 {
		t.Errorf("expected 3, got %d", s.Count(ctx))
	}
	bob, err := s.Rank(ctx, "bob")
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	if bob.Rank != 1 || bob.Score != 82 || bob.SiegeID != "s1" {
		t.Errorf("unexpected bob %+v", bob)
	}
	carol, _ := s.Rank(ctx, "carol")
	if carol.Rank != 2 {
		t.Errorf("expected tied rank 2, got %d", carol.Rank)
	}
	if _, err := s.Rank(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	top, err := s.TopN(ctx, 3)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 3 || top[0].Name != "bob" || top[1].Rank != 2 || top[2].Rank != 2 {
		t.Errorf("unexpected top %+v", top)
	}
}
