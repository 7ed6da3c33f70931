package repository

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: score DESC, then name ASC (deterministic).
// "less" means ranks earlier, so in-order traversal produces the
// leaderboard from best to worst. Subtree sizes give rank in O(log n).

// record stores a participant's best score and the siege it came from.
type record struct {
	score   int64
	siegeID string
}

// treap node
type node struct {
	id    string
	score int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) should appear before (bScore, bID).
func less(aScore int64, aID string, bScore int64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score int64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64(), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score int64) *node {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		// Rotate the higher priority child up until n is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	} else if less(score, id, n.score, n.id) {
		n.left = deleteNode(n.left, id, score)
	} else {
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countHigher returns how many nodes hold a strictly higher score.
func countHigher(n *node, score int64) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += nsize(n.left) + 1
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, byID map[string]record, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, byID, out)
	if len(*out) < limit {
		*out = append(*out, Entry{Name: n.id, Score: n.score, SiegeID: byID[n.id].siegeID})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, byID, out)
	}
}

// assignRanks gives tied scores the same rank; the next distinct score
// skips the tied positions, matching Rank.
func assignRanks(entries []Entry) {
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}

// TreapStore keeps every participant's best final score across sieges.
type TreapStore struct {
	mu                    sync.RWMutex
	root                  *node
	byID                  map[string]record
	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:                  make(map[string]record),
		metricsUpdateInterval: metrics.RefreshInterval(),
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *TreapStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Record folds a siege's final rank list into the leaderboard.
func (s *TreapStore) Record(ctx context.Context, siegeID string, entries []model.RankEntry) error {
	start := time.Now()
	for _, e := range entries {
		if _, err := s.UpdateBest(ctx, e.Name, e.Score, siegeID); err != nil {
			metrics.RecordRankingSinkError("memory")
			return err
		}
	}
	metrics.RecordRankingSinkLatency("memory", float64(time.Since(start).Milliseconds()))
	return nil
}

// UpdateBest implements Store.UpdateBest with O(log n) expected time.
func (s *TreapStore) UpdateBest(_ context.Context, name string, score int64, siegeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[name]; ok {
		if score <= old.score {
			return false, nil
		}
		s.root = deleteNode(s.root, name, old.score)
	}
	s.byID[name] = record{score: score, siegeID: siegeID}
	s.root = insert(s.root, name, score)
	return true, nil
}

// Rank returns the current rank and score for name in O(log n).
func (s *TreapStore) Rank(_ context.Context, name string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[name]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:    countHigher(s.root, rec.score) + 1,
		Name:    name,
		Score:   rec.score,
		SiegeID: rec.siegeID,
	}, nil
}

// TopN returns the top N entries ordered by score desc.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, s.byID, &out)
	assignRanks(out)
	return out, nil
}

// Count returns the number of participants tracked.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateLeaderboardEntries(s.Count(ctx))
			}
		}
	}()
}
