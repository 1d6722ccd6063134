package pronunciation

import (
	"math"
	"strings"
	"unicode/utf8"
)

// Style is the communication-style part of an analysis.
type Style struct {
	WordsPerMinute float64
	SpeakingRate   SpeakingRate
	Clarity        float64
	Fluency        float64
	Intonation     float64
}

// WordsPerMinute returns wordCount per minute of speech, or 0 for a
// non-positive duration.
func WordsPerMinute(wordCount int, durationMs float64) float64 {
	if durationMs <= 0 {
		return 0
	}
	return float64(wordCount) / (durationMs / 1000) * 60
}

// ClassifyRate returns slow below SlowBelowWPM, fast above FastAboveWPM and
// normal otherwise.
func (t Tunables) ClassifyRate(wpm float64) SpeakingRate {
	switch {
	case wpm < t.SlowBelowWPM:
		return RateSlow
	case wpm > t.FastAboveWPM:
		return RateFast
	default:
		return RateNormal
	}
}

// Clarity is min(1, len(transcript) / (wordCount*CharsPerWord)), with
// EmptyClarity for an empty transcript. Length is counted in runes of the
// trimmed text.
func (t Tunables) Clarity(transcript string, wordCount int) float64 {
	text := strings.TrimSpace(transcript)
	if text == "" || wordCount <= 0 {
		return t.EmptyClarity
	}
	return clamp01(float64(utf8.RuneCountInString(text)) / (float64(wordCount) * t.CharsPerWord))
}

// Fluency is (FluencySpan - |wpm - IdealWPM|) / FluencySpan clamped to [0, 1].
func (t Tunables) Fluency(wpm float64) float64 {
	return clamp01((t.FluencySpan - math.Abs(wpm-t.IdealWPM)) / t.FluencySpan)
}

// Intonation is min(1, pitchRange / FullIntonationHz).
func (t Tunables) Intonation(pitchRangeHz float64) float64 {
	return clamp01(pitchRangeHz / t.FullIntonationHz)
}

// AnalyzeStyle derives the style scores. transcript may be empty, in which
// case wordCount should be the duration-based prior.
func (t Tunables) AnalyzeStyle(transcript string, wordCount int, durationMs, pitchRangeHz float64) Style {
	wpm := WordsPerMinute(wordCount, durationMs)
	return Style{
		WordsPerMinute: wpm,
		SpeakingRate:   t.ClassifyRate(wpm),
		Clarity:        t.Clarity(transcript, wordCount),
		Fluency:        t.Fluency(wpm),
		Intonation:     t.Intonation(pitchRangeHz),
	}
}
