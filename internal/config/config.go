// Package config provides the configuration schema, loader, watcher and
// provider registry for the elocute pronunciation service.
package config

import (
	"time"

	"github.com/MrWong99/elocute/internal/resilience"
	"github.com/MrWong99/elocute/pkg/audio"
	"github.com/MrWong99/elocute/pkg/features"
	"github.com/MrWong99/elocute/pkg/pronunciation"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageDriver selects the persistence backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
)

// IsValid reports whether d is a recognised driver.
func (d StorageDriver) IsValid() bool {
	switch d {
	case StorageMemory, StorageSQLite, StoragePostgres:
		return true
	}
	return false
}

// AssessorMode selects how phoneme accuracy is graded.
type AssessorMode string

const (
	// AssessorHeuristic grades locally with phonetic codes. It needs no
	// network access.
	AssessorHeuristic AssessorMode = "heuristic"

	// AssessorLLM asks a language model and falls back to the heuristic.
	AssessorLLM AssessorMode = "llm"
)

// IsValid reports whether m is a recognised mode.
func (m AssessorMode) IsValid() bool {
	return m == AssessorHeuristic || m == AssessorLLM
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Storage    StorageConfig    `yaml:"storage"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings for the HTTP host.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8080".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	// MaxUploadBytes caps the size of an uploaded recording. Default 10 MiB.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig declares the collaborators. Each entry names a provider
// registered in the [Registry].
type ProvidersConfig struct {
	// Transcriber is the primary speech-to-text provider.
	Transcriber ProviderEntry `yaml:"transcriber"`

	// TranscriberFallbacks are tried in order when the primary fails or its
	// circuit is open.
	TranscriberFallbacks []ProviderEntry `yaml:"transcriber_fallbacks"`

	// Assessor configures phoneme assessment.
	Assessor AssessorConfig `yaml:"assessor"`
}

// AssessorConfig configures phoneme assessment.
type AssessorConfig struct {
	// Mode is "heuristic" (default) or "llm".
	Mode AssessorMode `yaml:"mode"`

	// LLM is the primary language model when Mode is "llm".
	LLM ProviderEntry `yaml:"llm"`

	// LLMFallbacks are tried in order after LLM.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	// Timeout bounds a single completion. Zero uses the assessor default.
	Timeout time.Duration `yaml:"timeout"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g. "whisper", "openai").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g. "nova-3", "gpt-4o-mini").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AnalysisConfig tunes decoding, feature extraction and scoring. Zero values
// select the calibrated defaults.
type AnalysisConfig struct {
	// Language is the recognition language passed to the transcriber.
	Language string `yaml:"language"`

	// HintTarget sends the target word to the transcriber as an initial
	// prompt or keyword boost. Off by default: the hint biases recognition
	// towards the target word.
	HintTarget bool `yaml:"hint_target"`

	// ChannelPolicy is "first" (default) or "downmix".
	ChannelPolicy string `yaml:"channel_policy"`

	// FFmpegPath enables decoding of containers other than WAV and Ogg/Opus.
	FFmpegPath string `yaml:"ffmpeg_path"`

	FrameDuration   time.Duration `yaml:"frame_duration"`
	MinPitchHz      float64       `yaml:"min_pitch_hz"`
	MaxPitchHz      float64       `yaml:"max_pitch_hz"`
	FallbackPitchHz float64       `yaml:"fallback_pitch_hz"`
	MsPerWord       float64       `yaml:"ms_per_word"`

	// ClampVolume reports silence as VolumeFloorDB instead of -Inf.
	ClampVolume   bool    `yaml:"clamp_volume"`
	VolumeFloorDB float64 `yaml:"volume_floor_db"`

	SlowBelowWPM  float64 `yaml:"slow_below_wpm"`
	FastAboveWPM  float64 `yaml:"fast_above_wpm"`
	EasyMaxLen    int     `yaml:"easy_max_len"`
	HardAboveLen  int     `yaml:"hard_above_len"`
	MasteredAt    float64 `yaml:"mastered_at"`
	LearningBelow float64 `yaml:"learning_below"`

	TranscriptionTimeout time.Duration `yaml:"transcription_timeout"`
	AssessmentTimeout    time.Duration `yaml:"assessment_timeout"`
}

// ResilienceConfig tunes the circuit breakers guarding each collaborator.
type ResilienceConfig struct {
	MaxFailures    int           `yaml:"max_failures"`
	ResetTimeout   time.Duration `yaml:"reset_timeout"`
	HalfOpenProbes int           `yaml:"half_open_probes"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Driver is "memory" (default), "sqlite" or "postgres".
	Driver StorageDriver `yaml:"driver"`

	// DSN is the SQLite file path or the PostgreSQL connection string.
	DSN string `yaml:"dsn"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	// ServiceName is reported as service.name. Default "elocute".
	ServiceName string `yaml:"service_name"`

	// MetricsPath is where the server exposes Prometheus metrics. Default
	// "/metrics".
	MetricsPath string `yaml:"metrics_path"`
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.MaxUploadBytes <= 0 {
		c.Server.MaxUploadBytes = 10 << 20
	}
	if c.Providers.Assessor.Mode == "" {
		c.Providers.Assessor.Mode = AssessorHeuristic
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = StorageMemory
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "elocute"
	}
	if c.Telemetry.MetricsPath == "" {
		c.Telemetry.MetricsPath = "/metrics"
	}
}

// DecoderConfig returns the audio decoder settings.
func (a AnalysisConfig) DecoderConfig() (audio.DecoderConfig, error) {
	policy, err := audio.ParseChannelPolicy(a.ChannelPolicy)
	if err != nil {
		return audio.DecoderConfig{}, err
	}
	return audio.DecoderConfig{ChannelPolicy: policy, FFmpegPath: a.FFmpegPath}, nil
}

// FeatureParams returns the extractor parameters. Zero fields are filled by
// features.NewExtractor.
func (a AnalysisConfig) FeatureParams() features.Params {
	return features.Params{
		FrameDuration:   a.FrameDuration,
		MinPitchHz:      a.MinPitchHz,
		MaxPitchHz:      a.MaxPitchHz,
		FallbackPitchHz: a.FallbackPitchHz,
		MsPerWord:       a.MsPerWord,
		ClampVolume:     a.ClampVolume,
		VolumeFloorDB:   a.VolumeFloorDB,
	}
}

// Tunables returns the default tunables with the configured overrides.
func (a AnalysisConfig) Tunables() pronunciation.Tunables {
	t := pronunciation.DefaultTunables()
	set := func(dst *float64, v float64) {
		if v != 0 {
			*dst = v
		}
	}
	setInt := func(dst *int, v int) {
		if v != 0 {
			*dst = v
		}
	}
	set(&t.SlowBelowWPM, a.SlowBelowWPM)
	set(&t.FastAboveWPM, a.FastAboveWPM)
	set(&t.MasteredAt, a.MasteredAt)
	set(&t.LearningBelow, a.LearningBelow)
	setInt(&t.EasyMaxLen, a.EasyMaxLen)
	setInt(&t.HardAboveLen, a.HardAboveLen)
	if a.TranscriptionTimeout > 0 {
		t.TranscriptionTimeout = a.TranscriptionTimeout
	}
	if a.AssessmentTimeout > 0 {
		t.AssessmentTimeout = a.AssessmentTimeout
	}
	return t
}

// Breaker returns the breaker settings for the collaborator called name.
func (r ResilienceConfig) Breaker(name string) resilience.BreakerConfig {
	return resilience.BreakerConfig{
		Name:           name,
		MaxFailures:    r.MaxFailures,
		ResetTimeout:   r.ResetTimeout,
		HalfOpenProbes: r.HalfOpenProbes,
	}
}
