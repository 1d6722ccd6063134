package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/elocute/pkg/provider/llm"
	llmmock "github.com/MrWong99/elocute/pkg/provider/llm/mock"
	"github.com/MrWong99/elocute/pkg/provider/stt"
	sttmock "github.com/MrWong99/elocute/pkg/provider/stt/mock"
)

func TestTranscriberFallback_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Result: stt.Transcript{Text: "cat", Confidence: 0.9, HasConfidence: true}}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "cut"}}

	fb := NewTranscriberFallback(primary, "whisper", BreakerConfig{MaxFailures: 3})
	fb.AddFallback("deepgram", secondary)

	got, err := fb.Transcribe(context.Background(), stt.Request{Prompt: "cat"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "cat" {
		t.Errorf("Text = %q, want cat", got.Text)
	}
	if secondary.CallCount() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.CallCount())
	}
	if primary.Calls[0].Req.Prompt != "cat" {
		t.Errorf("prompt not forwarded: %+v", primary.Calls[0].Req)
	}
}

func TestTranscriberFallback_Failover(t *testing.T) {
	primary := &sttmock.Provider{Err: errors.New("whisper down")}
	secondary := &sttmock.Provider{Result: stt.Transcript{Text: "cat"}}

	fb := NewTranscriberFallback(primary, "whisper", BreakerConfig{MaxFailures: 3})
	fb.AddFallback("deepgram", secondary)

	got, err := fb.Transcribe(context.Background(), stt.Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Text != "cat" {
		t.Errorf("Text = %q, want cat", got.Text)
	}
	if names := fb.Chain().Names(); len(names) != 2 {
		t.Errorf("Names() = %v", names)
	}
}

func TestTranscriberFallback_AllFail(t *testing.T) {
	fb := NewTranscriberFallback(&sttmock.Provider{Err: errTest}, "whisper", BreakerConfig{})
	if _, err := fb.Transcribe(context.Background(), stt.Request{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestLLMFallback_Failover(t *testing.T) {
	primary := &llmmock.Provider{Err: errors.New("primary down")}
	secondary := &llmmock.Provider{Response: &llm.CompletionResponse{Content: `{"overall":0.8}`}}

	fb := NewLLMFallback(primary, "openai", BreakerConfig{MaxFailures: 3})
	fb.AddFallback("ollama", secondary)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{JSONMode: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != `{"overall":0.8}` {
		t.Errorf("Content = %q", resp.Content)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
	if !secondary.CompleteCalls[0].Req.JSONMode {
		t.Error("request not forwarded to fallback")
	}
}

func TestLLMFallback_AllFail(t *testing.T) {
	fb := NewLLMFallback(&llmmock.Provider{Err: errTest}, "openai", BreakerConfig{})
	fb.AddFallback("ollama", &llmmock.Provider{Err: errTest})
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
