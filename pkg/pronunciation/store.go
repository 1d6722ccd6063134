package pronunciation

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrNotFound is returned by stores for lookups that must exist.
var ErrNotFound = errors.New("pronunciation: not found")

// Store is the persistence collaborator. The engine computes records; the
// store owns them.
type Store interface {
	// SaveAnalysis appends a to the user's analysis history. Saving an ID
	// that is already stored is a no-op.
	SaveAnalysis(ctx context.Context, a *Analysis) error

	// LoadProgress returns the progress record for (userID, word), or
	// (nil, nil) if the user never attempted the word. word is a [WordKey].
	LoadProgress(ctx context.Context, userID, word string) (*Progress, error)

	// SaveProgress upserts p keyed by (p.UserID, p.Word).
	SaveProgress(ctx context.Context, p *Progress) error

	// LoadRecentAnalyses returns the user's analyses created at or after
	// since, oldest first.
	LoadRecentAnalyses(ctx context.Context, userID string, since time.Time) ([]*Analysis, error)
}

// AttemptRecorder is implemented by stores that can append an analysis and
// fold it into its progress record in one atomic step, for example inside a
// database transaction holding a lock on the progress key. Either both
// writes happen or neither does.
//
// If a.ID is already stored, RecordAttempt changes nothing and returns the
// current progress record, so retrying a failed attempt never counts it
// twice. [Tracker] prefers this over the separate Store calls.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a *Analysis, fold func(prev *Progress) Progress) (*Progress, error)
}

// MemStore is an in-memory [Store]. It is safe for concurrent use and keeps
// everything until the process exits.
type MemStore struct {
	mu       sync.RWMutex
	analyses map[string][]*Analysis
	ids      map[string]struct{}
	progress map[progressKey]Progress
}

type progressKey struct{ user, word string }

var (
	_ Store           = (*MemStore)(nil)
	_ AttemptRecorder = (*MemStore)(nil)
)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		analyses: make(map[string][]*Analysis),
		ids:      make(map[string]struct{}),
		progress: make(map[progressKey]Progress),
	}
}

func (s *MemStore) SaveAnalysis(_ context.Context, a *Analysis) error {
	if a == nil {
		return errors.New("pronunciation: nil analysis")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(a)
	return nil
}

// appendLocked stores a copy of a unless its ID is known and reports
// whether it did. s.mu must be held.
func (s *MemStore) appendLocked(a *Analysis) bool {
	if _, dup := s.ids[a.ID]; dup {
		return false
	}
	s.ids[a.ID] = struct{}{}
	cp := cloneAnalysis(a)
	list := s.analyses[a.UserID]
	// Keep the history sorted by creation time.
	i, _ := slices.BinarySearchFunc(list, cp.CreatedAt, func(x *Analysis, t time.Time) int {
		if x.CreatedAt.After(t) {
			return 1
		}
		return -1
	})
	s.analyses[a.UserID] = slices.Insert(list, i, cp)
	return true
}

func (s *MemStore) LoadProgress(_ context.Context, userID, word string) (*Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[progressKey{userID, word}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemStore) SaveProgress(_ context.Context, p *Progress) error {
	if p == nil {
		return errors.New("pronunciation: nil progress")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[progressKey{p.UserID, p.Word}] = *p
	return nil
}

// RecordAttempt appends a and applies fold under the store lock.
func (s *MemStore) RecordAttempt(_ context.Context, a *Analysis, fold func(prev *Progress) Progress) (*Progress, error) {
	if a == nil {
		return nil, errors.New("pronunciation: nil analysis")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := progressKey{a.UserID, WordKey(a.Word)}
	var prev *Progress
	if p, ok := s.progress[key]; ok {
		prev = &p
	}
	if !s.appendLocked(a) {
		return prev, nil
	}
	next := fold(prev)
	s.progress[key] = next
	return &next, nil
}

func (s *MemStore) LoadRecentAnalyses(_ context.Context, userID string, since time.Time) ([]*Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Analysis
	for _, a := range s.analyses[userID] {
		if a.CreatedAt.Before(since) {
			continue
		}
		out = append(out, cloneAnalysis(a))
	}
	return out, nil
}

// Ping always succeeds; it lets MemStore back a readiness check.
func (s *MemStore) Ping(context.Context) error { return nil }

func cloneAnalysis(a *Analysis) *Analysis {
	cp := *a
	if a.PhonemeAccuracy != nil {
		cp.PhonemeAccuracy = make(map[string]float64, len(a.PhonemeAccuracy))
		for k, v := range a.PhonemeAccuracy {
			cp.PhonemeAccuracy[k] = v
		}
	}
	cp.Errors = slices.Clone(a.Errors)
	cp.Suggestions = slices.Clone(a.Suggestions)
	cp.DegradedReasons = slices.Clone(a.DegradedReasons)
	return &cp
}
