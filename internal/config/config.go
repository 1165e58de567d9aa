// Package config provides the configuration schema, loader, backend registry
// and file watcher for the streamscribe server.
package config

import (
	"fmt"
	"strconv"
	"time"
)

// LogLevel controls log verbosity for the streamscribe server.
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

// Defaults applied by [Config.ApplyDefaults].
const (
	DefaultListenAddr        = ":8080"
	DefaultReadLimitBytes    = 1 << 20
	DefaultSampleRate        = 16000
	DefaultMinChunkSeconds   = 1.0
	DefaultBufferTrimSeconds = 30.0
	DefaultPromptChars       = 200
	DefaultQueueSize         = 64
	DefaultLanguage          = "en"
	DefaultSegmenterEngine   = "auto"
	DefaultServiceName       = "streamscribe"
	DefaultTraceSampleRatio  = 1.0
)

// Config is the root configuration structure for streamscribe.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    ProviderEntry    `yaml:"backend"`
	Fallbacks  []ProviderEntry  `yaml:"fallbacks"`
	Stream     StreamConfig     `yaml:"stream"`
	Segmenter  SegmenterConfig  `yaml:"segmenter"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Vocabulary VocabularyConfig `yaml:"vocabulary"`
	Store      StoreConfig      `yaml:"store"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// ReadLimitBytes caps a single WebSocket message from a client.
	ReadLimitBytes int64 `yaml:"read_limit_bytes"`
}

// ProviderEntry configures one transcription backend. The Name field is used
// to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered backend ("whisper-native", "whisper",
	// "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the backend's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL is the server endpoint for remote backends.
	BaseURL string `yaml:"base_url"`

	// Model is the model name, or the model file path for whisper-native.
	Model string `yaml:"model"`

	// Options holds backend-specific values: language, translate,
	// beam_size, vad_filter, threads, timeout, max_retries.
	Options map[string]any `yaml:"options"`
}

// StreamConfig tunes the per-stream consolidation engine.
type StreamConfig struct {
	// SampleRate is the input rate assumed when a client does not send one.
	SampleRate int `yaml:"sample_rate"`

	// MinChunkSeconds is the new audio needed before an iteration runs.
	MinChunkSeconds float64 `yaml:"min_chunk_seconds"`

	// BufferTrimSeconds is the window length past which segment boundaries
	// are used to trim audio.
	BufferTrimSeconds float64 `yaml:"buffer_trim_seconds"`

	// PromptChars is the character budget of the continuity prompt.
	// Negative disables the prompt built from confirmed text.
	PromptChars int `yaml:"prompt_chars"`

	// InitialPrompt is used while a stream has no confirmed history. A
	// client may override it per stream.
	InitialPrompt string `yaml:"initial_prompt"`

	// EmitPartials sends tentative text after every iteration by default.
	EmitPartials bool `yaml:"emit_partials"`

	// WarmupFile is an audio file transcribed once at startup.
	WarmupFile string `yaml:"warmup_file"`
}

// SegmenterConfig selects the sentence rules.
type SegmenterConfig struct {
	// Engine is "auto" (default), "punkt" or "rules". Auto uses a trained
	// Punkt model when one exists for Language and the rule set otherwise.
	Engine string `yaml:"engine"`

	// Language is an ISO-639-1 code selecting the Punkt model or the
	// abbreviation table.
	Language string `yaml:"language"`
}

// SessionsConfig limits concurrent streams.
type SessionsConfig struct {
	// MaxConcurrent is the number of live streams; 0 means unlimited.
	MaxConcurrent int `yaml:"max_concurrent"`

	// QueueSize is the number of audio messages buffered per stream before
	// the reader blocks.
	QueueSize int `yaml:"queue_size"`
}

// VocabularyConfig configures hot-word correction of outgoing text.
type VocabularyConfig struct {
	HotWords          []string `yaml:"hot_words"`
	PhoneticThreshold float64  `yaml:"phonetic_threshold"`
	FuzzyThreshold    float64  `yaml:"fuzzy_threshold"`
}

// StoreConfig selects the transcript store.
type StoreConfig struct {
	// PostgresDSN enables the PostgreSQL store. Empty keeps transcripts in
	// memory.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`

	// TraceSampleRatio is the fraction of root spans recorded, in (0, 1].
	// Every iteration of every stream is a span, so busy servers may want
	// less than the default of 1.
	TraceSampleRatio float64 `yaml:"trace_sample_ratio"`
}

// ApplyDefaults fills zero values with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = DefaultListenAddr
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Server.ReadLimitBytes == 0 {
		c.Server.ReadLimitBytes = DefaultReadLimitBytes
	}
	if c.Stream.SampleRate == 0 {
		c.Stream.SampleRate = DefaultSampleRate
	}
	if c.Stream.MinChunkSeconds == 0 {
		c.Stream.MinChunkSeconds = DefaultMinChunkSeconds
	}
	if c.Stream.BufferTrimSeconds == 0 {
		c.Stream.BufferTrimSeconds = DefaultBufferTrimSeconds
	}
	if c.Stream.PromptChars == 0 {
		c.Stream.PromptChars = DefaultPromptChars
	}
	if c.Sessions.QueueSize == 0 {
		c.Sessions.QueueSize = DefaultQueueSize
	}
	if c.Segmenter.Language == "" {
		c.Segmenter.Language = DefaultLanguage
	}
	if c.Segmenter.Engine == "" {
		c.Segmenter.Engine = DefaultSegmenterEngine
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
	if c.Telemetry.TraceSampleRatio == 0 {
		c.Telemetry.TraceSampleRatio = DefaultTraceSampleRatio
	}
}

// OptString returns the string option key, or def when unset.
func (e ProviderEntry) OptString(key, def string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// OptInt returns the integer option key, or def when unset or not a number.
func (e ProviderEntry) OptInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// OptBool returns the boolean option key, or def when unset.
func (e ProviderEntry) OptBool(key string, def bool) bool {
	switch v := e.Options[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// OptDuration returns the duration option key, given as a Go duration
// string ("30s") or a number of seconds, or def when unset.
func (e ProviderEntry) OptDuration(key string, def time.Duration) time.Duration {
	switch v := e.Options[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return def
}
