package sqlite_test

import (
	"context"
	"math"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/elocute/pkg/pronunciation"
	"github.com/MrWong99/elocute/pkg/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "data", "elocute.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestAnalyses_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	full := &pronunciation.Analysis{
		ID: "a1", UserID: "u1", Word: "cat",
		Transcript: "cat", Confidence: 0.95,
		DurationMs: 1000, WordCount: 1, WordsPerMinute: 60,
		AveragePitch: 200, PitchMeasured: true, PitchRange: 12,
		Volume:          -9.5,
		PhonemeAccuracy: map[string]float64{"k": 1, "t": 0.3},
		Errors:          []string{"Expected the \"t\" sound"},
		SpeakingRate:    pronunciation.RateSlow,
		Clarity:         0.6, Fluency: 0.5, Intonation: 0.12,
		OverallScore:    0.81,
		Suggestions:     []string{pronunciation.SuggestSpeedUp},
		Difficulty:      pronunciation.DifficultyEasy,
		Mastery:         pronunciation.MasteryPracticing,
		DegradedReasons: []string{},
		CreatedAt:       base,
	}
	silent := &pronunciation.Analysis{
		ID: "a2", UserID: "u1", Word: "dog",
		Volume:          pronunciation.Decibels(math.Inf(-1)),
		Degraded:        true,
		DegradedReasons: []string{pronunciation.ReasonNoVoicedFrames},
		CreatedAt:       base.Add(500 * time.Millisecond),
	}
	old := &pronunciation.Analysis{ID: "a0", UserID: "u1", Word: "cat", CreatedAt: base.Add(-24 * time.Hour)}
	other := &pronunciation.Analysis{ID: "b1", UserID: "u2", Word: "cat", CreatedAt: base}

	for _, a := range []*pronunciation.Analysis{silent, full, old, other, full} {
		if err := s.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("SaveAnalysis(%s): %v", a.ID, err)
		}
	}

	got, err := s.LoadRecentAnalyses(ctx, "u1", base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LoadRecentAnalyses: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a2" {
		t.Fatalf("got %d analyses, want [a1 a2]", len(got))
	}

	g := got[0]
	if g.Transcript != "cat" || g.Confidence != 0.95 || !g.PitchMeasured || g.Volume != -9.5 {
		t.Errorf("scalars = %+v", g)
	}
	if g.PhonemeAccuracy["t"] != 0.3 || len(g.PhonemeAccuracy) != 2 {
		t.Errorf("PhonemeAccuracy = %v", g.PhonemeAccuracy)
	}
	if !slices.Equal(g.Suggestions, full.Suggestions) || !slices.Equal(g.Errors, full.Errors) {
		t.Errorf("lists = %v %v", g.Suggestions, g.Errors)
	}
	if g.SpeakingRate != pronunciation.RateSlow || g.Mastery != pronunciation.MasteryPracticing {
		t.Errorf("enums = %q %q", g.SpeakingRate, g.Mastery)
	}
	if !g.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", g.CreatedAt, base)
	}

	if !math.IsInf(float64(got[1].Volume), -1) {
		t.Errorf("silent Volume = %v, want -Inf", got[1].Volume)
	}
	if !got[1].Degraded || !slices.Equal(got[1].DegradedReasons, silent.DegradedReasons) {
		t.Errorf("degraded = %v %v", got[1].Degraded, got[1].DegradedReasons)
	}
}

func TestProgress_LoadSave(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.LoadProgress(ctx, "u1", "cat")
	if err != nil || p != nil {
		t.Fatalf("LoadProgress(unseen) = %+v, %v; want nil, nil", p, err)
	}

	want := pronunciation.Progress{
		UserID: "u1", Word: "cat", Attempts: 1,
		BestScore: 0.5, LatestScore: 0.5, AverageScore: 0.5,
		Difficulty: pronunciation.DifficultyEasy, Mastery: pronunciation.MasteryLearning,
		FirstAttemptAt: base, LastAttemptAt: base,
	}
	if err := s.SaveProgress(ctx, &want); err != nil {
		t.Fatalf("SaveProgress: %v", err)
	}
	want.Attempts, want.LastAttemptAt = 2, base.Add(time.Minute)
	if err := s.SaveProgress(ctx, &want); err != nil {
		t.Fatalf("SaveProgress (upsert): %v", err)
	}

	got, err := s.LoadProgress(ctx, "u1", "cat")
	if err != nil {
		t.Fatalf("LoadProgress: %v", err)
	}
	if got.Attempts != 2 || got.AverageScore != 0.5 || got.Mastery != pronunciation.MasteryLearning {
		t.Errorf("got %+v", got)
	}
	if !got.FirstAttemptAt.Equal(base) || !got.LastAttemptAt.Equal(want.LastAttemptAt) {
		t.Errorf("attempt times = %v .. %v", got.FirstAttemptAt, got.LastAttemptAt)
	}
}

func TestTracker_OverSQLite(t *testing.T) {
	s := newTestStore(t)
	tr := pronunciation.NewTracker(s, pronunciation.DefaultTunables())
	ctx := context.Background()

	const n = 12
	var wg sync.WaitGroup
	for i := range n {
		wg.Go(func() {
			a := &pronunciation.Analysis{
				ID:           "a" + time.Duration(i).String(),
				UserID:       "u1",
				Word:         "Cat",
				OverallScore: []float64{0.5, 0.9, 0.7}[i%3],
				CreatedAt:    base.Add(time.Duration(i) * time.Second),
			}
			if _, err := tr.Record(ctx, a); err != nil {
				t.Errorf("Record: %v", err)
			}
		})
	}
	wg.Wait()

	p, err := tr.Progress(ctx, "u1", "cat")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Attempts != n || p.BestScore != 0.9 || math.Abs(p.AverageScore-0.7) > 1e-9 {
		t.Errorf("progress = %+v", p)
	}

	ins, err := tr.Insights(ctx, "u1", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	if ins.RecordingCount != n || ins.WordCount != 1 {
		t.Errorf("insights = %+v", ins)
	}
}

func TestRecordAttempt_Atomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := &pronunciation.Analysis{ID: "a1", UserID: "u1", Word: " Cat", OverallScore: 0.6, CreatedAt: base}

	folds := 0
	fold := func(prev *pronunciation.Progress) pronunciation.Progress {
		folds++
		return pronunciation.Fold(prev, a)
	}
	p, err := s.RecordAttempt(ctx, a, fold)
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if p.Word != "cat" || p.Attempts != 1 {
		t.Errorf("progress = %+v", p)
	}

	again, err := s.RecordAttempt(ctx, a, fold)
	if err != nil {
		t.Fatalf("RecordAttempt (same id): %v", err)
	}
	if folds != 1 || again == nil || again.Attempts != 1 {
		t.Errorf("same id: folds = %d, progress = %+v; want 1 fold, 1 attempt", folds, again)
	}

	// A cancelled context rolls back both writes.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	b := &pronunciation.Analysis{ID: "a2", UserID: "u1", Word: "cat", OverallScore: 1, CreatedAt: base.Add(time.Minute)}
	if _, err := s.RecordAttempt(cancelled, b, func(prev *pronunciation.Progress) pronunciation.Progress {
		return pronunciation.Fold(prev, b)
	}); err == nil {
		t.Fatal("RecordAttempt with cancelled context succeeded")
	}
	hist, err := s.LoadRecentAnalyses(ctx, "u1", time.Time{})
	if err != nil {
		t.Fatalf("LoadRecentAnalyses: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("stored analyses = %d, want 1", len(hist))
	}
	got, err := s.LoadProgress(ctx, "u1", "cat")
	if err != nil || got.Attempts != 1 {
		t.Errorf("progress after rollback = %+v, %v", got, err)
	}
}
