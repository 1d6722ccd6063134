// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server,
// whisper.cpp linked in-process, or Deepgram) and exposes a uniform batch
// interface: one decoded utterance in, one Transcript out. Utterances are
// short single-word or single-phrase recordings, so no streaming surface is
// needed.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"

	"github.com/MrWong99/elocute/pkg/audio"
)

// Request describes one transcription call.
type Request struct {
	// Clip is the decoded utterance. Providers resample it as their backend
	// requires.
	Clip *audio.Clip

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string selects the provider default.
	Language string

	// Prompt is an optional hint for backends that accept an initial prompt
	// or keyword list. The analysis engine leaves it empty unless target
	// hinting is enabled.
	Prompt string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe returns the recognised text for req.Clip. Providers that do
	// not report a confidence figure return Confidence 0 and set
	// HasConfidence to false.
	//
	// Returns an error on transport failure, non-success responses, or when
	// ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
