package anyllm

import (
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/elocute/pkg/provider/llm"
)

// TestBuildParams_SystemAndMessages checks prompt and message ordering.
func TestBuildParams_SystemAndMessages(t *testing.T) {
	p := &Provider{model: "llama3"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You grade pronunciation.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "cat"}},
		Temperature:  0.1,
		MaxTokens:    256,
	})

	if params.Model != "llama3" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].ContentString() != "cat" {
		t.Errorf("user content = %q", params.Messages[1].ContentString())
	}
	if params.Temperature == nil || *params.Temperature != 0.1 {
		t.Errorf("Temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Errorf("MaxTokens = %v", params.MaxTokens)
	}
}

// TestBuildParams_JSONModeAppendsInstruction checks that JSON mode is
// expressed through the system prompt.
func TestBuildParams_JSONModeAppendsInstruction(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{JSONMode: true})
	if len(params.Messages) != 1 {
		t.Fatalf("expected a synthesised system message, got %d messages", len(params.Messages))
	}
	if !strings.Contains(params.Messages[0].ContentString(), "JSON") {
		t.Errorf("system prompt %q lacks JSON instruction", params.Messages[0].ContentString())
	}
}

// TestBuildParams_OmitsZeroOptionals checks that zero temperature and max
// tokens are left to the backend default.
func TestBuildParams_OmitsZeroOptionals(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("expected nil Temperature and MaxTokens")
	}
}

// TestNew_EmptyProviderName checks that an empty backend name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty backend name")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_WithAPIKey checks that OpenAI provider constructs successfully with an API key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("OpenAI", "gpt-4o", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.model != "gpt-4o" || p.name != "openai" {
		t.Errorf("model/name = %q/%q", p.model, p.name)
	}
}

// TestNew_OpenAI_MissingAPIKey checks that OpenAI returns an error when no API key is available.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New("openai", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// TestNew_Backends checks that keyless and keyed backends construct.
func TestNew_Backends(t *testing.T) {
	tests := []struct {
		backend string
		model   string
		opts    []anyllmlib.Option
	}{
		{"anthropic", "claude-3-5-haiku-latest", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"Ollama", "llama3", nil},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := New(tt.backend, tt.model, tt.opts...)
			if err != nil {
				t.Fatalf("New(%q): %v", tt.backend, err)
			}
			if p.Name() != strings.ToLower(tt.backend) {
				t.Errorf("Name() = %q", p.Name())
			}
		})
	}
}

func TestSupportedProviders(t *testing.T) {
	if !slices.IsSorted(SupportedProviders) {
		t.Errorf("SupportedProviders not sorted: %v", SupportedProviders)
	}
	for _, want := range []string{"anthropic", "ollama", "openai"} {
		if !slices.Contains(SupportedProviders, want) {
			t.Errorf("SupportedProviders lacks %q", want)
		}
	}
}
