package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper", "whisper-native"},
}

// envRef matches ${NAME}. A bare $NAME is left alone so DSNs and API keys
// containing '$' survive.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${NAME} in s with the value of the environment
// variable NAME. Unset variables expand to the empty string.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		return os.Getenv(ref[2 : len(ref)-1])
	})
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes the YAML in r, applies
// defaults and validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("stt", cfg.Providers.Transcriber.Name)
	for i, fb := range cfg.Providers.TranscriberFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.transcriber_fallbacks[%d].name is required", i))
		}
		if cfg.Providers.Transcriber.Name == "" {
			errs = append(errs, fmt.Errorf("providers.transcriber_fallbacks[%d] requires providers.transcriber", i))
		}
		validateProviderName("stt", fb.Name)
	}

	as := cfg.Providers.Assessor
	if as.Mode != "" && !as.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("providers.assessor.mode %q is invalid; valid values: heuristic, llm", as.Mode))
	}
	if as.Mode == AssessorLLM && as.LLM.Name == "" {
		errs = append(errs, errors.New("providers.assessor.mode is llm but providers.assessor.llm.name is empty"))
	}
	validateProviderName("llm", as.LLM.Name)
	for i, fb := range as.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.assessor.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	if as.Mode != AssessorLLM && (as.LLM.Name != "" || len(as.LLMFallbacks) > 0) {
		slog.Warn("providers.assessor.llm is configured but mode is not llm; it will be ignored")
	}

	if cfg.Providers.Transcriber.Name == "" {
		slog.Warn("providers.transcriber is not configured; analyze and serve need one")
	}

	a := cfg.Analysis
	if _, err := a.DecoderConfig(); err != nil {
		errs = append(errs, fmt.Errorf("analysis.channel_policy %q is invalid; valid values: first, downmix", a.ChannelPolicy))
	}
	if a.FrameDuration < 0 {
		errs = append(errs, fmt.Errorf("analysis.frame_duration %s must not be negative", a.FrameDuration))
	}
	if a.MinPitchHz < 0 || a.MaxPitchHz < 0 || a.FallbackPitchHz < 0 {
		errs = append(errs, errors.New("analysis pitch settings must not be negative"))
	}
	if a.MinPitchHz > 0 && a.MaxPitchHz > 0 && a.MinPitchHz >= a.MaxPitchHz {
		errs = append(errs, fmt.Errorf("analysis.min_pitch_hz %.1f must be below max_pitch_hz %.1f", a.MinPitchHz, a.MaxPitchHz))
	}
	if a.MsPerWord < 0 {
		errs = append(errs, fmt.Errorf("analysis.ms_per_word %.1f must not be negative", a.MsPerWord))
	}
	tun := a.Tunables()
	if tun.SlowBelowWPM >= tun.FastAboveWPM {
		errs = append(errs, fmt.Errorf("analysis.slow_below_wpm %.1f must be below fast_above_wpm %.1f", tun.SlowBelowWPM, tun.FastAboveWPM))
	}
	if tun.EasyMaxLen >= tun.HardAboveLen {
		errs = append(errs, fmt.Errorf("analysis.easy_max_len %d must be below hard_above_len %d", tun.EasyMaxLen, tun.HardAboveLen))
	}
	if tun.LearningBelow >= tun.MasteredAt || tun.MasteredAt > 1 {
		errs = append(errs, fmt.Errorf("analysis.learning_below %.2f must be below mastered_at %.2f, which must not exceed 1", tun.LearningBelow, tun.MasteredAt))
	}
	if a.TranscriptionTimeout < 0 || a.AssessmentTimeout < 0 {
		errs = append(errs, errors.New("analysis timeouts must not be negative"))
	}

	r := cfg.Resilience
	if r.MaxFailures < 0 || r.HalfOpenProbes < 0 || r.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience settings must not be negative"))
	}

	if cfg.Storage.Driver != "" && !cfg.Storage.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: memory, sqlite, postgres", cfg.Storage.Driver))
	}
	if (cfg.Storage.Driver == StorageSQLite || cfg.Storage.Driver == StoragePostgres) && cfg.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", cfg.Storage.Driver))
	}

	if p := cfg.Telemetry.MetricsPath; p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("telemetry.metrics_path %q must start with /", p))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
