package pronunciation

import (
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/elocute/pkg/assess"
)

// Suggestion texts, in the order they are emitted.
const (
	SuggestSpeakClearly = "Try to speak more clearly"
	SuggestSlowDown     = "Try to slow down a bit"
	SuggestSpeedUp      = "Try to speak a bit faster"
	SuggestVaryPitch    = "Try to vary your pitch more"
)

// ScoreInputs are the terms of the overall score.
type ScoreInputs struct {
	Confidence      float64
	PhonemeAccuracy float64
	Clarity         float64
	Fluency         float64
}

// OverallScore is the weighted sum of in, clamped to [0, 1]. It is a pure
// function of its arguments.
func (t Tunables) OverallScore(in ScoreInputs) float64 {
	return clamp01(t.ConfidenceWeight*in.Confidence +
		t.PhonemeWeight*in.PhonemeAccuracy +
		t.ClarityWeight*in.Clarity +
		t.FluencyWeight*in.Fluency)
}

// Suggestions returns the rule-based advice for an attempt. When the
// assessment fell back, its notes ("Analysis unavailable") are appended.
// The result is never nil.
func (t Tunables) Suggestions(confidence float64, rate SpeakingRate, intonation float64, assessment assess.Result) []string {
	out := make([]string, 0, 4)
	if confidence < t.LowConfidence {
		out = append(out, SuggestSpeakClearly)
	}
	switch rate {
	case RateFast:
		out = append(out, SuggestSlowDown)
	case RateSlow:
		out = append(out, SuggestSpeedUp)
	}
	if intonation < t.LowIntonation {
		out = append(out, SuggestVaryPitch)
	}
	if assessment.Degraded() {
		out = append(out, assessment.Assessment.Errors...)
	}
	return out
}

// ClassifyDifficulty grades word by its trimmed rune length.
func (t Tunables) ClassifyDifficulty(word string) Difficulty {
	n := utf8.RuneCountInString(strings.TrimSpace(word))
	switch {
	case n <= t.EasyMaxLen:
		return DifficultyEasy
	case n > t.HardAboveLen:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// ClassifyMastery grades a score.
func (t Tunables) ClassifyMastery(score float64) Mastery {
	switch {
	case score >= t.MasteredAt:
		return MasteryMastered
	case score < t.LearningBelow:
		return MasteryLearning
	default:
		return MasteryPracticing
	}
}
