package pronunciation

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/elocute/pkg/assess"
)

// NoDataSummary is the insights summary for an empty window.
const NoDataSummary = "No practice session data available."

// Focus area tags, in report order.
const (
	FocusConfidence      = "confidence"
	FocusPhonemeAccuracy = "phoneme_accuracy"
	FocusClarity         = "clarity"
	FocusFluency         = "fluency"
	FocusIntonation      = "intonation"
)

// Achievement tags. Per-word mastery is reported as AchievementMastered+word.
const (
	AchievementMastered = "mastered:"
	AchievementStreak   = "streak"
	AchievementExplorer = "explorer"
)

// SessionStart returns the start of the calendar day containing now, in
// now's location.
func SessionStart(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// Insights recomputes the session insights of userID for the calendar day
// containing now.
func (t *Tracker) Insights(ctx context.Context, userID string, now time.Time) (SessionInsights, error) {
	if now.IsZero() {
		now = t.now()
	}
	start := SessionStart(now)
	list, err := t.store.LoadRecentAnalyses(ctx, userID, start)
	if err != nil {
		return SessionInsights{}, fmt.Errorf("pronunciation: load analyses: %w", err)
	}
	return BuildInsights(userID, start, now, list, t.tunables), nil
}

// BuildInsights aggregates the analyses created in [start, end]. Analyses
// outside the window are ignored. It is a pure function.
func BuildInsights(userID string, start, end time.Time, analyses []*Analysis, tun Tunables) SessionInsights {
	tun = tun.withDefaults()
	out := SessionInsights{
		UserID:       userID,
		WindowStart:  start,
		WindowEnd:    end,
		FocusAreas:   []string{},
		Achievements: []string{},
	}

	var (
		scores   []float64
		words    = make(map[string]float64)
		low      = make(map[string]int)
		mastered int
		spent    float64
	)
	for _, a := range analyses {
		if a == nil || a.CreatedAt.Before(start) || a.CreatedAt.After(end) {
			continue
		}
		scores = append(scores, a.OverallScore)
		key := WordKey(a.Word)
		words[key] = max(words[key], a.OverallScore)
		spent += a.DurationMs
		if a.OverallScore >= tun.AchievementAt {
			mastered++
		}

		sub := map[string]float64{
			FocusConfidence:      a.Confidence,
			FocusPhonemeAccuracy: assess.Assessment{PhonemeAccuracy: a.PhonemeAccuracy}.MeanAccuracy(),
			FocusClarity:         a.Clarity,
			FocusFluency:         a.Fluency,
			FocusIntonation:      a.Intonation,
		}
		for tag, v := range sub {
			if v < tun.FocusBelow {
				low[tag]++
			}
		}
	}

	if len(scores) == 0 {
		out.Summary = NoDataSummary
		return out
	}

	out.RecordingCount = len(scores)
	out.WordCount = len(words)
	out.AverageScore = stat.Mean(scores, nil)
	out.TimeSpent = time.Duration(spent * float64(time.Millisecond))

	for _, tag := range []string{FocusConfidence, FocusPhonemeAccuracy, FocusClarity, FocusFluency, FocusIntonation} {
		if low[tag] >= tun.FocusMinCount {
			out.FocusAreas = append(out.FocusAreas, tag)
		}
	}

	keys := make([]string, 0, len(words))
	for w, best := range words {
		if best >= tun.AchievementAt {
			keys = append(keys, w)
		}
	}
	slices.Sort(keys)
	for _, w := range keys {
		out.Achievements = append(out.Achievements, AchievementMastered+w)
	}
	if mastered >= tun.StreakCount {
		out.Achievements = append(out.Achievements, AchievementStreak)
	}
	if len(words) >= tun.ExplorerWords {
		out.Achievements = append(out.Achievements, AchievementExplorer)
	}

	out.Summary = summarize(out)
	return out
}

func summarize(in SessionInsights) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Practiced %d %s across %d %s with an average score of %.0f%%.",
		in.WordCount, plural(in.WordCount, "word", "words"),
		in.RecordingCount, plural(in.RecordingCount, "recording", "recordings"),
		in.AverageScore*100)
	if len(in.FocusAreas) > 0 {
		fmt.Fprintf(&b, " Focus on: %s.", strings.ReplaceAll(strings.Join(in.FocusAreas, ", "), "_", " "))
	}
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
