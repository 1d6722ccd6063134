package pronunciation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/elocute/internal/observe"
	"github.com/MrWong99/elocute/pkg/assess"
	"github.com/MrWong99/elocute/pkg/audio"
	"github.com/MrWong99/elocute/pkg/provider/stt"
)

// UnavailableTranscript is the text reported when transcription failed.
const UnavailableTranscript = "[transcription unavailable]"

// RawTranscript is the normalised transcription of one attempt.
type RawTranscript struct {
	Text string
	// Confidence is in [0, 1]. Exactly 0 together with FailureReason means
	// the collaborator failed.
	Confidence float64
	// DerivedConfidence is true when the backend reported no confidence and
	// it was estimated from the similarity of Text to the target word.
	DerivedConfidence bool
	// FailureReason is empty on success.
	FailureReason string
}

// Failed reports whether the transcript is the failure sentinel.
func (r RawTranscript) Failed() bool { return r.FailureReason != "" }

// WordCount returns the number of words in Text, 0 on failure.
func (r RawTranscript) WordCount() int {
	if r.Failed() {
		return 0
	}
	return len(strings.Fields(r.Text))
}

// Transcriber adapts an [stt.Provider] to the engine: it bounds the call
// with a timeout, normalises confidence and replaces every failure with the
// sentinel transcript. It never returns an error.
type Transcriber struct {
	provider stt.Provider
	name     string
	language string
	timeout  time.Duration
	hint     bool
	metrics  *observe.Metrics
}

// TranscriberConfig configures a [Transcriber].
type TranscriberConfig struct {
	// Name labels the provider in logs and metrics. Default: "transcriber".
	Name string
	// Language is passed to the provider; empty selects its default.
	Language string
	// Timeout bounds each call. Zero or negative disables the bound.
	Timeout time.Duration
	// HintTarget sends the target word to the provider as a prompt or
	// keyword boost. It biases recognition towards the target, so a
	// mispronunciation can come back as the correct word; off by default.
	HintTarget bool
	// Metrics may be nil.
	Metrics *observe.Metrics
}

// NewTranscriber wraps p.
func NewTranscriber(p stt.Provider, cfg TranscriberConfig) *Transcriber {
	if cfg.Name == "" {
		cfg.Name = "transcriber"
	}
	return &Transcriber{
		provider: p,
		name:     cfg.Name,
		language: cfg.Language,
		timeout:  cfg.Timeout,
		hint:     cfg.HintTarget,
		metrics:  cfg.Metrics,
	}
}

// Transcribe returns the transcript of clip. target is used to derive a
// confidence when the provider reports none, and is passed to the provider
// as a hint only when HintTarget is set.
func (t *Transcriber) Transcribe(ctx context.Context, clip *audio.Clip, target string) RawTranscript {
	if t.provider == nil {
		return failed("no transcription provider configured")
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	req := stt.Request{Clip: clip, Language: t.language}
	if t.hint {
		req.Prompt = target
	}
	res, err := t.provider.Transcribe(ctx, req)
	if t.metrics != nil {
		t.metrics.RecordCollaborator(ctx, observe.KindTranscriber, t.name, err)
	}
	if err != nil {
		observe.Logger(ctx).Warn("transcription failed, using fallback", "provider", t.name, "err", err)
		return failed(fmt.Sprintf("%s: %v", t.name, err))
	}

	out := RawTranscript{Text: strings.TrimSpace(res.Text)}
	if res.HasConfidence {
		out.Confidence = clamp01(res.Confidence)
	} else {
		out.Confidence = assess.Similarity(out.Text, target)
		out.DerivedConfidence = true
	}
	return out
}

func failed(reason string) RawTranscript {
	return RawTranscript{Text: UnavailableTranscript, FailureReason: reason}
}
