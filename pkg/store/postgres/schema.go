// Package postgres provides a PostgreSQL-backed [pronunciation.Store].
//
// Analyses are append-only rows carrying the full record as JSONB next to
// the columns the engine filters on. Progress rows are keyed by
// (user_id, word) and updated inside a transaction holding an advisory lock
// on the key, so several engine processes may share one database.
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//	tracker := pronunciation.NewTracker(store, pronunciation.DefaultTunables())
package postgres

import (
	"context"
	"fmt"
)

const ddlAnalyses = `
CREATE TABLE IF NOT EXISTS pronunciation_analyses (
    id             TEXT         PRIMARY KEY,
    user_id        TEXT         NOT NULL,
    word           TEXT         NOT NULL,
    overall_score  DOUBLE PRECISION NOT NULL,
    degraded       BOOLEAN      NOT NULL DEFAULT false,
    payload        JSONB        NOT NULL,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pronunciation_analyses_user_created
    ON pronunciation_analyses (user_id, created_at);
`

const ddlProgress = `
CREATE TABLE IF NOT EXISTS pronunciation_progress (
    user_id           TEXT         NOT NULL,
    word              TEXT         NOT NULL,
    attempts          INTEGER      NOT NULL,
    best_score        DOUBLE PRECISION NOT NULL,
    latest_score      DOUBLE PRECISION NOT NULL,
    average_score     DOUBLE PRECISION NOT NULL,
    difficulty        TEXT         NOT NULL,
    mastery           TEXT         NOT NULL,
    first_attempt_at  TIMESTAMPTZ  NOT NULL,
    last_attempt_at   TIMESTAMPTZ  NOT NULL,
    PRIMARY KEY (user_id, word)
);
`

// Migrate creates the tables if they do not exist. It is idempotent and safe
// to call on every start.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range []string{ddlAnalyses, ddlProgress} {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
