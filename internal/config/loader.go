package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidBackendNames lists the built-in backend names. Used by [Validate] to
// warn about unrecognised names.
var ValidBackendNames = []string{"whisper-native", "whisper", "openai"}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
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

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ReadLimitBytes < 0 {
		errs = append(errs, fmt.Errorf("server.read_limit_bytes %d must not be negative", cfg.Server.ReadLimitBytes))
	}

	// Backends
	if cfg.Backend.Name == "" {
		errs = append(errs, errors.New("backend.name is required"))
	}
	errs = append(errs, validateEntry("backend", cfg.Backend)...)
	for i, fb := range cfg.Fallbacks {
		prefix := fmt.Sprintf("fallbacks[%d]", i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		errs = append(errs, validateEntry(prefix, fb)...)
	}

	// Stream
	if sr := cfg.Stream.SampleRate; sr < 0 || sr > 192000 {
		errs = append(errs, fmt.Errorf("stream.sample_rate %d is out of range (0, 192000]", sr))
	}
	if cfg.Stream.MinChunkSeconds < 0 {
		errs = append(errs, fmt.Errorf("stream.min_chunk_seconds %.2f must not be negative", cfg.Stream.MinChunkSeconds))
	}
	if cfg.Stream.BufferTrimSeconds < 0 {
		errs = append(errs, fmt.Errorf("stream.buffer_trim_seconds %.2f must not be negative", cfg.Stream.BufferTrimSeconds))
	}
	if cfg.Stream.MinChunkSeconds > 0 && cfg.Stream.BufferTrimSeconds > 0 && cfg.Stream.MinChunkSeconds >= cfg.Stream.BufferTrimSeconds {
		errs = append(errs, fmt.Errorf("stream.min_chunk_seconds %.2f must be below stream.buffer_trim_seconds %.2f",
			cfg.Stream.MinChunkSeconds, cfg.Stream.BufferTrimSeconds))
	}
	if cfg.Stream.WarmupFile != "" {
		if _, err := os.Stat(cfg.Stream.WarmupFile); err != nil {
			errs = append(errs, fmt.Errorf("stream.warmup_file: %w", err))
		}
	}

	// Segmenter
	switch cfg.Segmenter.Engine {
	case "", "auto", "punkt", "rules":
	default:
		errs = append(errs, fmt.Errorf("segmenter.engine %q is invalid; valid values: auto, punkt, rules", cfg.Segmenter.Engine))
	}

	// Sessions
	if cfg.Sessions.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("sessions.max_concurrent %d must not be negative", cfg.Sessions.MaxConcurrent))
	}
	if cfg.Sessions.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("sessions.queue_size %d must not be negative", cfg.Sessions.QueueSize))
	}

	// Vocabulary
	for name, v := range map[string]float64{
		"vocabulary.phonetic_threshold": cfg.Vocabulary.PhoneticThreshold,
		"vocabulary.fuzzy_threshold":    cfg.Vocabulary.FuzzyThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", name, v))
		}
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range (0, 1]", r))
	}

	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; transcripts are kept in memory only")
	}

	return errors.Join(errs...)
}

// validateEntry checks the fields each built-in backend needs.
func validateEntry(prefix string, e ProviderEntry) []error {
	var errs []error
	switch e.Name {
	case "":
		return nil
	case "whisper-native":
		if e.Model == "" {
			errs = append(errs, fmt.Errorf("%s.model (model file path) is required for whisper-native", prefix))
		}
	case "whisper":
		if e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s.base_url is required for whisper", prefix))
		}
	case "openai":
		if e.APIKey == "" && e.BaseURL == "" {
			errs = append(errs, fmt.Errorf("%s: openai requires api_key or base_url", prefix))
		}
		if e.OptBool("translate", false) {
			errs = append(errs, fmt.Errorf("%s: openai does not support translate", prefix))
		}
	}
	if !slices.Contains(ValidBackendNames, e.Name) {
		slog.Warn("unknown backend name; may be a typo or a third-party backend",
			"entry", prefix,
			"name", e.Name,
			"known", ValidBackendNames,
		)
	}
	if b := e.OptInt("beam_size", 0); b < 0 {
		errs = append(errs, fmt.Errorf("%s.options.beam_size %d must not be negative", prefix, b))
	}
	return errs
}
