package pronunciation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// WordKey normalises a target word into the progress key: trimmed and
// lower-cased, so "Cat" and " cat" share one record.
func WordKey(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// Fold applies analysis a to prev and returns the new progress record.
// prev == nil means the word is unseen. Fold is pure.
func Fold(prev *Progress, a *Analysis) Progress {
	score := a.OverallScore
	if prev == nil || prev.Attempts <= 0 {
		return Progress{
			UserID:         a.UserID,
			Word:           WordKey(a.Word),
			Attempts:       1,
			BestScore:      score,
			LatestScore:    score,
			AverageScore:   score,
			Difficulty:     a.Difficulty,
			Mastery:        a.Mastery,
			FirstAttemptAt: a.CreatedAt,
			LastAttemptAt:  a.CreatedAt,
		}
	}

	next := *prev
	next.Attempts = prev.Attempts + 1
	next.AverageScore = (prev.AverageScore*float64(prev.Attempts) + score) / float64(next.Attempts)
	next.BestScore = max(prev.BestScore, score)
	next.LatestScore = score
	next.Difficulty = a.Difficulty
	next.Mastery = a.Mastery
	if a.CreatedAt.After(next.LastAttemptAt) {
		next.LastAttemptAt = a.CreatedAt
	}
	if next.FirstAttemptAt.IsZero() {
		next.FirstAttemptAt = a.CreatedAt
	}
	return next
}

// Tracker is the progress aggregator. Updates for one (user, word) key are
// serialised; different keys proceed in parallel.
type Tracker struct {
	store    Store
	tunables Tunables
	now      func() time.Time

	mu    sync.Mutex
	locks map[progressKey]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store, tun Tunables) *Tracker {
	return &Tracker{
		store:    store,
		tunables: tun.withDefaults(),
		now:      time.Now,
		locks:    make(map[progressKey]*keyLock),
	}
}

// Record persists a and folds it into the (a.UserID, a.Word) progress
// record, returning the updated record.
//
// With an [AttemptRecorder] store both writes commit together, and calling
// Record again with the same a.ID after a failure is safe. Other stores get
// SaveAnalysis followed by a load/fold/save; if the progress write fails
// there, the analysis stays in the history without being counted.
func (t *Tracker) Record(ctx context.Context, a *Analysis) (*Progress, error) {
	if a == nil {
		return nil, errors.New("pronunciation: record: nil analysis")
	}

	key := progressKey{a.UserID, WordKey(a.Word)}
	unlock := t.lock(key)
	defer unlock()

	if r, ok := t.store.(AttemptRecorder); ok {
		p, err := r.RecordAttempt(ctx, a, func(prev *Progress) Progress {
			return Fold(prev, a)
		})
		if err != nil {
			return nil, fmt.Errorf("pronunciation: record attempt: %w", err)
		}
		return p, nil
	}

	if err := t.store.SaveAnalysis(ctx, a); err != nil {
		return nil, fmt.Errorf("pronunciation: save analysis: %w", err)
	}

	prev, err := t.store.LoadProgress(ctx, key.user, key.word)
	if err != nil {
		return nil, fmt.Errorf("pronunciation: load progress: %w", err)
	}
	next := Fold(prev, a)
	if err := t.store.SaveProgress(ctx, &next); err != nil {
		return nil, fmt.Errorf("pronunciation: save progress: %w", err)
	}
	return &next, nil
}

// Progress returns the record for (userID, word), or [ErrNotFound].
func (t *Tracker) Progress(ctx context.Context, userID, word string) (*Progress, error) {
	p, err := t.store.LoadProgress(ctx, userID, WordKey(word))
	if err != nil {
		return nil, fmt.Errorf("pronunciation: load progress: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// lock acquires the per-key mutex and returns its release function. Entries
// are reference counted and removed when unused.
func (t *Tracker) lock(key progressKey) func() {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &keyLock{}
		t.locks[key] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}
