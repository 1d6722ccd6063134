// Package sqlite provides a single-file [pronunciation.Store] for local use
// (the CLI) and small deployments. It uses the pure-Go modernc.org/sqlite
// driver through sqlx.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver.

	"github.com/MrWong99/elocute/pkg/pronunciation"
)

var (
	_ pronunciation.Store           = (*Store)(nil)
	_ pronunciation.AttemptRecorder = (*Store)(nil)
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS analyses (
		id               TEXT PRIMARY KEY,
		user_id          TEXT NOT NULL,
		word             TEXT NOT NULL,
		transcript       TEXT NOT NULL,
		confidence       REAL NOT NULL,
		duration_ms      REAL NOT NULL,
		word_count       INTEGER NOT NULL,
		words_per_minute REAL NOT NULL,
		average_pitch_hz REAL NOT NULL,
		pitch_measured   INTEGER NOT NULL,
		pitch_range_hz   REAL NOT NULL,
		volume_db        REAL,
		phoneme_accuracy TEXT NOT NULL,
		errors           TEXT NOT NULL,
		speaking_rate    TEXT NOT NULL,
		clarity          REAL NOT NULL,
		fluency          REAL NOT NULL,
		intonation       REAL NOT NULL,
		overall_score    REAL NOT NULL,
		suggestions      TEXT NOT NULL,
		difficulty       TEXT NOT NULL,
		mastery          TEXT NOT NULL,
		degraded         INTEGER NOT NULL,
		degraded_reasons TEXT NOT NULL,
		created_at       INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_analyses_user_created ON analyses(user_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS progress (
		user_id          TEXT NOT NULL,
		word             TEXT NOT NULL,
		attempts         INTEGER NOT NULL,
		best_score       REAL NOT NULL,
		latest_score     REAL NOT NULL,
		average_score    REAL NOT NULL,
		difficulty       TEXT NOT NULL,
		mastery          TEXT NOT NULL,
		first_attempt_at INTEGER NOT NULL,
		last_attempt_at  INTEGER NOT NULL,
		PRIMARY KEY (user_id, word)
	);`,
}

// Store persists analyses and progress in a SQLite file. Timestamps are
// stored as Unix nanoseconds (UTC); a silent recording's -Inf volume is
// stored as NULL.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create dir: %w", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open %s: %w", path, err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite store: migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

type analysisRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Word            string          `db:"word"`
	Transcript      string          `db:"transcript"`
	Confidence      float64         `db:"confidence"`
	DurationMs      float64         `db:"duration_ms"`
	WordCount       int             `db:"word_count"`
	WordsPerMinute  float64         `db:"words_per_minute"`
	AveragePitch    float64         `db:"average_pitch_hz"`
	PitchMeasured   bool            `db:"pitch_measured"`
	PitchRange      float64         `db:"pitch_range_hz"`
	Volume          sql.NullFloat64 `db:"volume_db"`
	PhonemeAccuracy string          `db:"phoneme_accuracy"`
	Errors          string          `db:"errors"`
	SpeakingRate    string          `db:"speaking_rate"`
	Clarity         float64         `db:"clarity"`
	Fluency         float64         `db:"fluency"`
	Intonation      float64         `db:"intonation"`
	OverallScore    float64         `db:"overall_score"`
	Suggestions     string          `db:"suggestions"`
	Difficulty      string          `db:"difficulty"`
	Mastery         string          `db:"mastery"`
	Degraded        bool            `db:"degraded"`
	DegradedReasons string          `db:"degraded_reasons"`
	CreatedAt       int64           `db:"created_at"`
}

func toAnalysisRow(a *pronunciation.Analysis) (analysisRow, error) {
	r := analysisRow{
		ID:             a.ID,
		UserID:         a.UserID,
		Word:           a.Word,
		Transcript:     a.Transcript,
		Confidence:     a.Confidence,
		DurationMs:     a.DurationMs,
		WordCount:      a.WordCount,
		WordsPerMinute: a.WordsPerMinute,
		AveragePitch:   a.AveragePitch,
		PitchMeasured:  a.PitchMeasured,
		PitchRange:     a.PitchRange,
		SpeakingRate:   string(a.SpeakingRate),
		Clarity:        a.Clarity,
		Fluency:        a.Fluency,
		Intonation:     a.Intonation,
		OverallScore:   a.OverallScore,
		Difficulty:     string(a.Difficulty),
		Mastery:        string(a.Mastery),
		Degraded:       a.Degraded,
		CreatedAt:      a.CreatedAt.UnixNano(),
	}
	if v := float64(a.Volume); !math.IsInf(v, 0) && !math.IsNaN(v) {
		r.Volume = sql.NullFloat64{Float64: v, Valid: true}
	}
	var err error
	if r.PhonemeAccuracy, err = jsonText(a.PhonemeAccuracy); err != nil {
		return r, err
	}
	if r.Errors, err = jsonText(a.Errors); err != nil {
		return r, err
	}
	if r.Suggestions, err = jsonText(a.Suggestions); err != nil {
		return r, err
	}
	r.DegradedReasons, err = jsonText(a.DegradedReasons)
	return r, err
}

func (r analysisRow) analysis() (*pronunciation.Analysis, error) {
	a := &pronunciation.Analysis{
		ID:             r.ID,
		UserID:         r.UserID,
		Word:           r.Word,
		Transcript:     r.Transcript,
		Confidence:     r.Confidence,
		DurationMs:     r.DurationMs,
		WordCount:      r.WordCount,
		WordsPerMinute: r.WordsPerMinute,
		AveragePitch:   r.AveragePitch,
		PitchMeasured:  r.PitchMeasured,
		PitchRange:     r.PitchRange,
		Volume:         pronunciation.Decibels(math.Inf(-1)),
		SpeakingRate:   pronunciation.SpeakingRate(r.SpeakingRate),
		Clarity:        r.Clarity,
		Fluency:        r.Fluency,
		Intonation:     r.Intonation,
		OverallScore:   r.OverallScore,
		Difficulty:     pronunciation.Difficulty(r.Difficulty),
		Mastery:        pronunciation.Mastery(r.Mastery),
		Degraded:       r.Degraded,
		CreatedAt:      time.Unix(0, r.CreatedAt).UTC(),
	}
	if r.Volume.Valid {
		a.Volume = pronunciation.Decibels(r.Volume.Float64)
	}
	err := errors.Join(
		json.Unmarshal([]byte(r.PhonemeAccuracy), &a.PhonemeAccuracy),
		json.Unmarshal([]byte(r.Errors), &a.Errors),
		json.Unmarshal([]byte(r.Suggestions), &a.Suggestions),
		json.Unmarshal([]byte(r.DegradedReasons), &a.DegradedReasons),
	)
	if err != nil {
		return nil, fmt.Errorf("decode analysis %s: %w", r.ID, err)
	}
	return a, nil
}

func jsonText(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return string(b), nil
}

// SaveAnalysis inserts a. Saving the same ID twice is a no-op.
func (s *Store) SaveAnalysis(ctx context.Context, a *pronunciation.Analysis) error {
	_, err := insertAnalysis(ctx, s.db, a)
	return err
}

// insertAnalysis reports whether a row was written; false means a.ID was
// already stored.
func insertAnalysis(ctx context.Context, q queryer, a *pronunciation.Analysis) (bool, error) {
	row, err := toAnalysisRow(a)
	if err != nil {
		return false, fmt.Errorf("sqlite store: save analysis: %w", err)
	}
	const stmt = `INSERT OR IGNORE INTO analyses (
		id, user_id, word, transcript, confidence, duration_ms, word_count, words_per_minute,
		average_pitch_hz, pitch_measured, pitch_range_hz, volume_db, phoneme_accuracy, errors,
		speaking_rate, clarity, fluency, intonation, overall_score, suggestions, difficulty,
		mastery, degraded, degraded_reasons, created_at
	) VALUES (
		:id, :user_id, :word, :transcript, :confidence, :duration_ms, :word_count, :words_per_minute,
		:average_pitch_hz, :pitch_measured, :pitch_range_hz, :volume_db, :phoneme_accuracy, :errors,
		:speaking_rate, :clarity, :fluency, :intonation, :overall_score, :suggestions, :difficulty,
		:mastery, :degraded, :degraded_reasons, :created_at
	)`
	res, err := q.NamedExecContext(ctx, stmt, row)
	if err != nil {
		return false, fmt.Errorf("sqlite store: save analysis: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite store: save analysis: %w", err)
	}
	return n > 0, nil
}

// LoadRecentAnalyses returns the user's analyses since the given time,
// oldest first.
func (s *Store) LoadRecentAnalyses(ctx context.Context, userID string, since time.Time) ([]*pronunciation.Analysis, error) {
	var rows []analysisRow
	const q = `SELECT * FROM analyses WHERE user_id = ? AND created_at >= ? ORDER BY created_at, id`
	if err := s.db.SelectContext(ctx, &rows, q, userID, since.UnixNano()); err != nil {
		return nil, fmt.Errorf("sqlite store: load analyses: %w", err)
	}
	out := make([]*pronunciation.Analysis, 0, len(rows))
	for _, r := range rows {
		a, err := r.analysis()
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

type progressRow struct {
	UserID         string  `db:"user_id"`
	Word           string  `db:"word"`
	Attempts       int     `db:"attempts"`
	BestScore      float64 `db:"best_score"`
	LatestScore    float64 `db:"latest_score"`
	AverageScore   float64 `db:"average_score"`
	Difficulty     string  `db:"difficulty"`
	Mastery        string  `db:"mastery"`
	FirstAttemptAt int64   `db:"first_attempt_at"`
	LastAttemptAt  int64   `db:"last_attempt_at"`
}

func (r progressRow) progress() *pronunciation.Progress {
	return &pronunciation.Progress{
		UserID:         r.UserID,
		Word:           r.Word,
		Attempts:       r.Attempts,
		BestScore:      r.BestScore,
		LatestScore:    r.LatestScore,
		AverageScore:   r.AverageScore,
		Difficulty:     pronunciation.Difficulty(r.Difficulty),
		Mastery:        pronunciation.Mastery(r.Mastery),
		FirstAttemptAt: time.Unix(0, r.FirstAttemptAt).UTC(),
		LastAttemptAt:  time.Unix(0, r.LastAttemptAt).UTC(),
	}
}

// LoadProgress returns (nil, nil) for an unseen key.
func (s *Store) LoadProgress(ctx context.Context, userID, word string) (*pronunciation.Progress, error) {
	return loadProgress(ctx, s.db, userID, word)
}

// SaveProgress upserts p.
func (s *Store) SaveProgress(ctx context.Context, p *pronunciation.Progress) error {
	return saveProgress(ctx, s.db, p)
}

// RecordAttempt inserts a and folds its progress record in one
// transaction.
func (s *Store) RecordAttempt(ctx context.Context, a *pronunciation.Analysis, fold func(prev *pronunciation.Progress) pronunciation.Progress) (*pronunciation.Progress, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prev, err := loadProgress(ctx, tx, a.UserID, pronunciation.WordKey(a.Word))
	if err != nil {
		return nil, err
	}
	inserted, err := insertAnalysis(ctx, tx, a)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return prev, nil
	}
	next := fold(prev)
	if err := saveProgress(ctx, tx, &next); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite store: commit: %w", err)
	}
	return &next, nil
}

// queryer is satisfied by *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
}

func loadProgress(ctx context.Context, q queryer, userID, word string) (*pronunciation.Progress, error) {
	var r progressRow
	err := sqlx.GetContext(ctx, q, &r, `SELECT * FROM progress WHERE user_id = ? AND word = ?`, userID, word)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: load progress: %w", err)
	}
	return r.progress(), nil
}

func saveProgress(ctx context.Context, q queryer, p *pronunciation.Progress) error {
	row := progressRow{
		UserID:         p.UserID,
		Word:           p.Word,
		Attempts:       p.Attempts,
		BestScore:      p.BestScore,
		LatestScore:    p.LatestScore,
		AverageScore:   p.AverageScore,
		Difficulty:     string(p.Difficulty),
		Mastery:        string(p.Mastery),
		FirstAttemptAt: p.FirstAttemptAt.UnixNano(),
		LastAttemptAt:  p.LastAttemptAt.UnixNano(),
	}
	const stmt = `INSERT INTO progress (
		user_id, word, attempts, best_score, latest_score, average_score,
		difficulty, mastery, first_attempt_at, last_attempt_at
	) VALUES (
		:user_id, :word, :attempts, :best_score, :latest_score, :average_score,
		:difficulty, :mastery, :first_attempt_at, :last_attempt_at
	) ON CONFLICT (user_id, word) DO UPDATE SET
		attempts = excluded.attempts,
		best_score = excluded.best_score,
		latest_score = excluded.latest_score,
		average_score = excluded.average_score,
		difficulty = excluded.difficulty,
		mastery = excluded.mastery,
		first_attempt_at = excluded.first_attempt_at,
		last_attempt_at = excluded.last_attempt_at`
	if _, err := q.NamedExecContext(ctx, stmt, row); err != nil {
		return fmt.Errorf("sqlite store: save progress: %w", err)
	}
	return nil
}
