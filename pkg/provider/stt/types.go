package stt

import (
	"strings"
	"time"
)

// Transcript is a speech-to-text result.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0).
	Confidence float64

	// HasConfidence is false when the backend does not report a confidence
	// figure (whisper.cpp). Callers then derive one themselves.
	HasConfidence bool

	// Words contains per-word detail when available (Deepgram).
	Words []WordDetail
}

// WordDetail holds timing and confidence for a single recognised word.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// WordCount returns the number of whitespace-separated words in t.Text.
func (t Transcript) WordCount() int {
	return len(strings.Fields(t.Text))
}
