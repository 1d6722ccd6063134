package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/elocute/internal/config"
	"github.com/MrWong99/elocute/internal/observe"
	"github.com/MrWong99/elocute/internal/resilience"
	"github.com/MrWong99/elocute/pkg/assess"
	"github.com/MrWong99/elocute/pkg/provider/llm"
	"github.com/MrWong99/elocute/pkg/provider/llm/anyllm"
	"github.com/MrWong99/elocute/pkg/provider/llm/openai"
	"github.com/MrWong99/elocute/pkg/provider/stt"
	"github.com/MrWong99/elocute/pkg/provider/stt/deepgram"
	"github.com/MrWong99/elocute/pkg/provider/stt/whisper"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai goes through the official SDK; the other hosted and local
	// backends share the any-llm adapter.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		return openai.New(entry.APIKey, entry.Model,
			openai.WithBaseURL(entry.BaseURL),
			openai.WithOrganization(optString(entry.Options, "organization")),
			openai.WithTimeout(optDuration(entry.Options, "timeout")),
		)
	})

	for _, providerName := range anyllm.SupportedProviders {
		if providerName == "openai" {
			continue
		}
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is addressed by BaseURL and takes no key.
			if entry.APIKey != "" && providerName != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	for _, kind := range []string{"llm", "stt"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// collaborator is a built provider chain together with what the host needs
// to observe and shut it down.
type collaborator[T any] struct {
	provider T
	name     string
	breakers []*resilience.Breaker
	closers  []io.Closer
}

// breakerConfig returns the breaker template for every chain. Transitions
// are logged and counted.
func breakerConfig(rc config.ResilienceConfig, m *observe.Metrics) resilience.BreakerConfig {
	bc := rc.Breaker("")
	bc.OnStateChange = func(name string, from, to resilience.State) {
		slog.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		if m != nil {
			m.RecordBreakerTransition(context.Background(), name, to.String())
		}
	}
	return bc
}

// chainObserver records the latency of each backend attempt as the stage
// "<kind>/<provider>".
func chainObserver(kind string, m *observe.Metrics) resilience.Observer {
	return func(ctx context.Context, provider string, elapsed time.Duration, err error) {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return
		}
		if m != nil {
			m.RecordStage(ctx, kind+"/"+provider, elapsed)
		}
		observe.Logger(ctx).Debug("backend attempt", "kind", kind, "provider", provider, "elapsed", elapsed, "err", err)
	}
}

// buildTranscriber creates the configured transcriber and its fallbacks
// behind a breaker chain.
func buildTranscriber(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*collaborator[stt.Provider], error) {
	entry := cfg.Providers.Transcriber
	if entry.Name == "" {
		return nil, errors.New("providers.transcriber is required")
	}

	c := &collaborator[stt.Provider]{name: entry.Name}
	create := func(e config.ProviderEntry) (stt.Provider, error) {
		p, err := reg.CreateSTT(e)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", e.Name, err)
		}
		if cl, ok := p.(io.Closer); ok {
			c.closers = append(c.closers, cl)
		}
		slog.Info("provider created", "kind", "stt", "name", e.Name)
		return p, nil
	}

	primary, err := create(entry)
	if err != nil {
		return nil, err
	}
	fb := resilience.NewTranscriberFallback(primary, entry.Name, breakerConfig(cfg.Resilience, m))
	for _, e := range cfg.Providers.TranscriberFallbacks {
		p, err := create(e)
		if err != nil {
			closeAll(c.closers)
			return nil, err
		}
		fb.AddFallback(e.Name, p)
	}
	fb.Chain().Observe(chainObserver(observe.KindTranscriber, m))

	for _, name := range fb.Chain().Names() {
		c.breakers = append(c.breakers, fb.Chain().Breaker(name))
	}
	c.provider = fb
	return c, nil
}

// buildAssessor returns the heuristic assessor, or an LLM chain that falls
// back to it.
func buildAssessor(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*collaborator[assess.Assessor], error) {
	ac := cfg.Providers.Assessor
	if ac.Mode != config.AssessorLLM {
		return &collaborator[assess.Assessor]{provider: assess.Heuristic{}, name: "heuristic"}, nil
	}

	primary, err := reg.CreateLLM(ac.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", ac.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", ac.LLM.Name)
	fb := resilience.NewLLMFallback(primary, ac.LLM.Name, breakerConfig(cfg.Resilience, m))
	for _, e := range ac.LLMFallbacks {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", e.Name, err)
		}
		slog.Info("provider created", "kind", "llm", "name", e.Name)
		fb.AddFallback(e.Name, p)
	}
	fb.Chain().Observe(chainObserver(observe.KindAssessor, m))

	var opts []assess.LLMOption
	if ac.Timeout > 0 {
		opts = append(opts, assess.WithTimeout(ac.Timeout))
	}
	if lang := cfg.Analysis.Language; lang != "" {
		opts = append(opts, assess.WithLanguage(lang))
	}

	c := &collaborator[assess.Assessor]{
		provider: assess.WithFallback(assess.NewLLM(fb, opts...), assess.Heuristic{}),
		name:     "llm/" + ac.LLM.Name,
	}
	for _, name := range fb.Chain().Names() {
		c.breakers = append(c.breakers, fb.Chain().Breaker(name))
	}
	return c, nil
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration string ("30s") from a provider Options map.
// Returns 0 when absent or malformed.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
