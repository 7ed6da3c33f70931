package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/pkg/logger"
	"github.com/okian/siege/pkg/metrics"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "siege:leaderboard"

// RedisStore keeps the leaderboard in a sorted set so several coordinator
// processes share one ranking. The siege that produced each best score
// lives in a companion hash.
type RedisStore struct {
	rdb    redis.UniversalClient
	key    string
	logger logger.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb, key: defaultRedisKey, logger: logger.Get().Named("redis_store")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 2 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedisStore(rdb, opts...), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) siegeKey() string { return s.key + ":siege" }

// Record folds a siege's final rank list into the sorted set.
func (s *RedisStore) Record(ctx context.Context, siegeID string, entries []model.RankEntry) error {
	start := time.Now()
	defer func() {
		metrics.RecordRankingSinkLatency("redis", float64(time.Since(start).Milliseconds()))
	}()
	for _, e := range entries {
		if _, err := s.UpdateBest(ctx, e.Name, e.Score, siegeID); err != nil {
			metrics.RecordRankingSinkError("redis")
			return err
		}
	}
	return nil
}

// UpdateBest raises name's score with ZADD GT.
func (s *RedisStore) UpdateBest(ctx context.Context, name string, score int64, siegeID string) (bool, error) {
	changed, err := s.rdb.ZAddArgs(ctx, s.key, redis.ZAddArgs{
		GT:      true,
		Ch:      true,
		Members: []redis.Z{{Score: float64(score), Member: name}},
	}).Result()
	if err != nil {
		return false, fmt.Errorf("%w: zadd %s: %w", ErrSinkFailed, name, err)
	}
	if changed == 0 {
		return false, nil
	}
	if err := s.rdb.HSet(ctx, s.siegeKey(), name, siegeID).Err(); err != nil {
		return true, fmt.Errorf("%w: hset %s: %w", ErrSinkFailed, name, err)
	}
	return true, nil
}

// Rank returns name's rank: one more than the number of strictly higher scores.
func (s *RedisStore) Rank(ctx context.Context, name string) (Entry, error) {
	score, err := s.rdb.ZScore(ctx, s.key, name).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("zscore %s: %w", name, err)
	}
	higher, err := s.rdb.ZCount(ctx, s.key, "("+strconv.FormatFloat(score, 'f', -1, 64), "+inf").Result()
	if err != nil {
		return Entry{}, fmt.Errorf("zcount: %w", err)
	}
	siegeID, err := s.rdb.HGet(ctx, s.siegeKey(), name).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Entry{}, fmt.Errorf("hget %s: %w", name, err)
	}
	return Entry{Rank: int(higher) + 1, Name: name, Score: int64(score), SiegeID: siegeID}, nil
}

// TopN returns the top N entries ordered by score desc.
func (s *RedisStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	zs, err := s.rdb.ZRevRangeWithScores(ctx, s.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange: %w", err)
	}
	if len(zs) == 0 {
		return []Entry{}, nil
	}
	names := make([]string, len(zs))
	out := make([]Entry, len(zs))
	for i, z := range zs {
		name, _ := z.Member.(string)
		names[i] = name
		out[i] = Entry{Name: name, Score: int64(z.Score)}
	}
	ids, err := s.rdb.HMGet(ctx, s.siegeKey(), names...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget: %w", err)
	}
	for i, id := range ids {
		if v, ok := id.(string); ok {
			out[i].SiegeID = v
		}
	}
	assignRanks(out)
	return out, nil
}

// Count returns the sorted set cardinality, or 0 when Redis is unreachable.
func (s *RedisStore) Count(ctx context.Context) int {
	n, err := s.rdb.ZCard(ctx, s.key).Result()
	if err != nil {
		metrics.RecordErrorByComponent("repository", "redis_count")
		s.logger.Warn(ctx, "counting leaderboard failed", logger.Error(err))
		return 0
	}
	return int(n)
}
