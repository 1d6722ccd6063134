package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/elocute/pkg/pronunciation"
)

// DB is the subset of *pgxpool.Pool and pgx.Tx the store issues queries
// through.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var (
	_ pronunciation.Store           = (*Store)(nil)
	_ pronunciation.AttemptRecorder = (*Store)(nil)
)

// Store persists analyses and progress in PostgreSQL. It is safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and runs [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks connectivity. It backs the readiness probe.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// SaveAnalysis inserts a. Saving the same ID twice is a no-op.
func (s *Store) SaveAnalysis(ctx context.Context, a *pronunciation.Analysis) error {
	_, err := insertAnalysis(ctx, s.pool, a)
	return err
}

// insertAnalysis reports whether a row was written; false means a.ID was
// already stored.
func insertAnalysis(ctx context.Context, db DB, a *pronunciation.Analysis) (bool, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("postgres store: marshal analysis: %w", err)
	}
	const q = `
		INSERT INTO pronunciation_analyses (id, user_id, word, overall_score, degraded, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`
	tag, err := db.Exec(ctx, q, a.ID, a.UserID, a.Word, a.OverallScore, a.Degraded, payload, a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("postgres store: save analysis: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// LoadRecentAnalyses returns the user's analyses since the given time,
// oldest first.
func (s *Store) LoadRecentAnalyses(ctx context.Context, userID string, since time.Time) ([]*pronunciation.Analysis, error) {
	const q = `
		SELECT payload FROM pronunciation_analyses
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at, id`
	rows, err := s.pool.Query(ctx, q, userID, since)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load analyses: %w", err)
	}
	defer rows.Close()

	var out []*pronunciation.Analysis
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres store: scan analysis: %w", err)
		}
		a := new(pronunciation.Analysis)
		if err := json.Unmarshal(payload, a); err != nil {
			return nil, fmt.Errorf("postgres store: decode analysis: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: load analyses: %w", err)
	}
	return out, nil
}

const selectProgress = `
	SELECT user_id, word, attempts, best_score, latest_score, average_score,
	       difficulty, mastery, first_attempt_at, last_attempt_at
	FROM pronunciation_progress
	WHERE user_id = $1 AND word = $2`

// LoadProgress returns (nil, nil) for an unseen key.
func (s *Store) LoadProgress(ctx context.Context, userID, word string) (*pronunciation.Progress, error) {
	return loadProgress(ctx, s.pool, userID, word)
}

// SaveProgress upserts p.
func (s *Store) SaveProgress(ctx context.Context, p *pronunciation.Progress) error {
	return saveProgress(ctx, s.pool, p)
}

// RecordAttempt inserts a and folds its progress record in one transaction
// that holds a transaction-scoped advisory lock on the (user, word) key.
func (s *Store) RecordAttempt(ctx context.Context, a *pronunciation.Analysis, fold func(prev *pronunciation.Progress) pronunciation.Progress) (*pronunciation.Progress, error) {
	userID, word := a.UserID, pronunciation.WordKey(a.Word)
	var out *pronunciation.Progress
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`, userID, word); err != nil {
			return fmt.Errorf("lock: %w", err)
		}
		prev, err := loadProgress(ctx, tx, userID, word)
		if err != nil {
			return err
		}
		inserted, err := insertAnalysis(ctx, tx, a)
		if err != nil {
			return err
		}
		if !inserted {
			out = prev
			return nil
		}
		next := fold(prev)
		if err := saveProgress(ctx, tx, &next); err != nil {
			return err
		}
		out = &next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: record attempt: %w", err)
	}
	return out, nil
}

func loadProgress(ctx context.Context, db DB, userID, word string) (*pronunciation.Progress, error) {
	var p pronunciation.Progress
	err := db.QueryRow(ctx, selectProgress, userID, word).Scan(
		&p.UserID, &p.Word, &p.Attempts, &p.BestScore, &p.LatestScore, &p.AverageScore,
		&p.Difficulty, &p.Mastery, &p.FirstAttemptAt, &p.LastAttemptAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: load progress: %w", err)
	}
	return &p, nil
}

func saveProgress(ctx context.Context, db DB, p *pronunciation.Progress) error {
	const q = `
		INSERT INTO pronunciation_progress (
			user_id, word, attempts, best_score, latest_score, average_score,
			difficulty, mastery, first_attempt_at, last_attempt_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (user_id, word) DO UPDATE SET
			attempts = EXCLUDED.attempts,
			best_score = EXCLUDED.best_score,
			latest_score = EXCLUDED.latest_score,
			average_score = EXCLUDED.average_score,
			difficulty = EXCLUDED.difficulty,
			mastery = EXCLUDED.mastery,
			first_attempt_at = EXCLUDED.first_attempt_at,
			last_attempt_at = EXCLUDED.last_attempt_at`
	_, err := db.Exec(ctx, q,
		p.UserID, p.Word, p.Attempts, p.BestScore, p.LatestScore, p.AverageScore,
		string(p.Difficulty), string(p.Mastery), p.FirstAttemptAt, p.LastAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: save progress: %w", err)
	}
	return nil
}
