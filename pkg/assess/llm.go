package assess

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/elocute/pkg/provider/llm"
)

const systemPrompt = `You are a pronunciation coach grading a language learner.
You receive the word or phrase the learner tried to say and what a speech
recogniser heard. Estimate how accurately each phoneme of the target was
produced, from 0 (absent or wrong) to 1 (native-like), and list concrete
mistakes in short plain sentences.

Answer with one JSON object of this shape and nothing else:
{"phoneme_accuracy": {"<phoneme>": <number>}, "errors": ["<mistake>"]}`

// LLMAssessor grades attempts with a language model.
type LLMAssessor struct {
	provider    llm.Provider
	timeout     time.Duration
	temperature float64
	maxTokens   int
	language    string
}

var _ Assessor = (*LLMAssessor)(nil)

// LLMOption configures an LLMAssessor.
type LLMOption func(*LLMAssessor)

// WithTimeout bounds each completion call. Default: 20s.
func WithTimeout(d time.Duration) LLMOption {
	return func(a *LLMAssessor) { a.timeout = d }
}

// WithTemperature sets the sampling temperature. Default: 0.
func WithTemperature(t float64) LLMOption {
	return func(a *LLMAssessor) { a.temperature = t }
}

// WithMaxTokens caps the completion length. Default: 512.
func WithMaxTokens(n int) LLMOption {
	return func(a *LLMAssessor) { a.maxTokens = n }
}

// WithLanguage names the target language in the prompt (e.g. "English").
func WithLanguage(lang string) LLMOption {
	return func(a *LLMAssessor) { a.language = lang }
}

// NewLLM returns an LLMAssessor backed by p.
func NewLLM(p llm.Provider, opts ...LLMOption) *LLMAssessor {
	a := &LLMAssessor{provider: p, timeout: 20 * time.Second, maxTokens: 512}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assess asks the model to grade transcript against target.
func (a *LLMAssessor) Assess(ctx context.Context, transcript, target string) (Assessment, error) {
	if strings.TrimSpace(transcript) == "" {
		return Assessment{}, ErrNoTranscript
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: a.userPrompt(transcript, target)}},
		Temperature:  a.temperature,
		MaxTokens:    a.maxTokens,
		JSONMode:     true,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("assess: llm: %w", err)
	}
	return ParseAssessment(resp.Content)
}

func (a *LLMAssessor) userPrompt(transcript, target string) string {
	var b strings.Builder
	if a.language != "" {
		fmt.Fprintf(&b, "Language: %s\n", a.language)
	}
	fmt.Fprintf(&b, "Target: %q\nHeard: %q", target, transcript)
	return b.String()
}

// wirePayload accepts both snake_case and camelCase keys since models do not
// reliably follow the requested casing.
type wirePayload struct {
	PhonemeAccuracy      map[string]float64 `json:"phoneme_accuracy"`
	PhonemeAccuracyCamel map[string]float64 `json:"phonemeAccuracy"`
	Errors               []string           `json:"errors"`
}

// ParseAssessment extracts the JSON object from a model answer, tolerating
// Markdown code fences and surrounding prose, and validates it.
func ParseAssessment(content string) (Assessment, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return Assessment{}, fmt.Errorf("%w: no JSON object in answer", ErrMalformed)
	}

	var p wirePayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &p); err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	scores := p.PhonemeAccuracy
	if len(scores) == 0 {
		scores = p.PhonemeAccuracyCamel
	}

	errs := make([]string, 0, len(p.Errors))
	for _, e := range p.Errors {
		if e = strings.TrimSpace(e); e != "" {
			errs = append(errs, e)
		}
	}
	return Assessment{PhonemeAccuracy: scores, Errors: errs}.validate()
}
