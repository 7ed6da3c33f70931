package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/pkg/metrics"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists every siege's rank list and the best score of
// each participant.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS siege_rankings (
			siege_id TEXT NOT NULL,
			rank INTEGER NOT NULL,
			name TEXT NOT NULL,
			score INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (siege_id, name)
		);`,
		`CREATE TABLE IF NOT EXISTS best_scores (
			name TEXT PRIMARY KEY,
			score INTEGER NOT NULL,
			siege_id TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_best_scores_score ON best_scores(score DESC, name);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores the rank list and raises best scores in one transaction.
func (s *SQLiteStore) Record(ctx context.Context, siegeID string, entries []model.RankEntry) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordRankingSinkLatency("sqlite", float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.RecordRankingSinkError("sqlite")
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrSinkFailed, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		if _, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO siege_rankings(siege_id, rank, name, score, recorded_at) VALUES(?, ?, ?, ?, ?)`,
			siegeID, e.Rank, e.Name, e.Score, now,
		); err != nil {
			return fmt.Errorf("%w: insert ranking: %w", ErrSinkFailed, err)
		}
		if _, err = upsertBest(ctx, tx, e.Name, e.Score, siegeID); err != nil {
			return fmt.Errorf("%w: upsert best: %w", ErrSinkFailed, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrSinkFailed, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertBest(ctx context.Context, db execer, name string, score int64, siegeID string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO best_scores(name, score, siege_id) VALUES(?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET score = excluded.score, siege_id = excluded.siege_id
		 WHERE excluded.score > best_scores.score`,
		name, score, siegeID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateBest raises name's best score.
func (s *SQLiteStore) UpdateBest(ctx context.Context, name string, score int64, siegeID string) (bool, error) {
	ok, err := upsertBest(ctx, s.db, name, score, siegeID)
	if err != nil {
		return false, fmt.Errorf("%w: upsert best: %w", ErrSinkFailed, err)
	}
	return ok, nil
}

// Rank returns name's rank among best scores.
func (s *SQLiteStore) Rank(ctx context.Context, name string) (Entry, error) {
	e := Entry{Name: name}
	err := s.db.QueryRowContext(ctx,
		`SELECT score, siege_id, (SELECT COUNT(*) FROM best_scores b WHERE b.score > best_scores.score)
		 FROM best_scores WHERE name = ?`, name,
	).Scan(&e.Score, &e.SiegeID, &e.Rank)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("rank %s: %w", name, err)
	}
	e.Rank++
	return e, nil
}

// TopN returns the top N best scores.
func (s *SQLiteStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, score, siege_id FROM best_scores ORDER BY score DESC, name ASC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("top n: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.Score, &e.SiegeID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	assignRanks(out)
	return out, nil
}

// Count returns the number of participants with a best score.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM best_scores`).Scan(&n); err != nil {
		metrics.RecordErrorByComponent("repository", "sqlite_count")
		return 0
	}
	return n
}

// SiegeRanking returns the stored rank list of one siege.
func (s *SQLiteStore) SiegeRanking(ctx context.Context, siegeID string) ([]model.RankEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rank, name, score FROM siege_rankings WHERE siege_id = ? ORDER BY rank ASC`, siegeID)
	if err != nil {
		return nil, fmt.Errorf("siege ranking %s: %w", siegeID, err)
	}
	defer rows.Close()

	var out []model.RankEntry
	for rows.Next() {
		var e model.RankEntry
		if err := rows.Scan(&e.Rank, &e.Name, &e.Score); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
