package resilience

import (
	"context"

	"github.com/MrWong99/elocute/pkg/provider/llm"
	"github.com/MrWong99/elocute/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Provider] over a [Chain] of
// transcription backends.
type TranscriberFallback struct {
	chain *Chain[stt.Provider]
}

var _ stt.Provider = (*TranscriberFallback)(nil)

// NewTranscriberFallback returns a TranscriberFallback with primary as its
// first backend.
func NewTranscriberFallback(primary stt.Provider, primaryName string, cfg BreakerConfig) *TranscriberFallback {
	return &TranscriberFallback{chain: NewChain[stt.Provider](cfg).Add(primaryName, primary)}
}

// AddFallback appends a backend tried after the ones already registered.
func (f *TranscriberFallback) AddFallback(name string, p stt.Provider) {
	f.chain.Add(name, p)
}

// Chain exposes the underlying chain for observers and health checks.
func (f *TranscriberFallback) Chain() *Chain[stt.Provider] { return f.chain }

// Transcribe returns the first successful transcript.
func (f *TranscriberFallback) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	t, _, err := Call(ctx, f.chain, func(ctx context.Context, p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
	return t, err
}

// LLMFallback implements [llm.Provider] over a [Chain] of LLM backends.
type LLMFallback struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback returns an LLMFallback with primary as its first backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg BreakerConfig) *LLMFallback {
	return &LLMFallback{chain: NewChain[llm.Provider](cfg).Add(primaryName, primary)}
}

// AddFallback appends a backend tried after the ones already registered.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.chain.Add(name, p)
}

// Chain exposes the underlying chain for observers and health checks.
func (f *LLMFallback) Chain() *Chain[llm.Provider] { return f.chain }

// Complete returns the first successful completion.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, _, err := Call(ctx, f.chain, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	return resp, err
}
