package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Hot-reloadable fields are reported with their new value; fields that need
// a restart are listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	HotWordsChanged bool
	NewHotWords     []string

	InitialPromptChanged bool
	NewInitialPrompt     string

	MaxConcurrentChanged bool
	NewMaxConcurrent     int

	EmitPartialsChanged bool
	NewEmitPartials     bool

	// RestartRequired names changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// Changed reports whether d holds any change.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.HotWordsChanged || d.InitialPromptChanged ||
		d.MaxConcurrentChanged || d.EmitPartialsChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if !slices.Equal(old.Vocabulary.HotWords, new.Vocabulary.HotWords) {
		d.HotWordsChanged = true
		d.NewHotWords = slices.Clone(new.Vocabulary.HotWords)
	}
	if old.Stream.InitialPrompt != new.Stream.InitialPrompt {
		d.InitialPromptChanged = true
		d.NewInitialPrompt = new.Stream.InitialPrompt
	}
	if old.Sessions.MaxConcurrent != new.Sessions.MaxConcurrent {
		d.MaxConcurrentChanged = true
		d.NewMaxConcurrent = new.Sessions.MaxConcurrent
	}
	if old.Stream.EmitPartials != new.Stream.EmitPartials {
		d.EmitPartialsChanged = true
		d.NewEmitPartials = new.Stream.EmitPartials
	}

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.ReadLimitBytes != new.Server.ReadLimitBytes {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !entryEqual(old.Backend, new.Backend) || !slices.EqualFunc(old.Fallbacks, new.Fallbacks, entryEqual) {
		d.RestartRequired = append(d.RestartRequired, "backend")
	}
	if old.Stream.SampleRate != new.Stream.SampleRate ||
		old.Stream.MinChunkSeconds != new.Stream.MinChunkSeconds ||
		old.Stream.BufferTrimSeconds != new.Stream.BufferTrimSeconds ||
		old.Stream.PromptChars != new.Stream.PromptChars ||
		old.Stream.WarmupFile != new.Stream.WarmupFile ||
		old.Segmenter != new.Segmenter ||
		old.Sessions.QueueSize != new.Sessions.QueueSize ||
		old.Vocabulary.PhoneticThreshold != new.Vocabulary.PhoneticThreshold ||
		old.Vocabulary.FuzzyThreshold != new.Vocabulary.FuzzyThreshold {
		d.RestartRequired = append(d.RestartRequired, "stream")
	}
	if old.Store != new.Store {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

// entryEqual compares two provider entries including their options.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !scalarEqual(av, bv) {
			return false
		}
	}
	return true
}

// scalarEqual compares option values decoded from YAML. Non-comparable
// values (lists, maps) are treated as changed.
func scalarEqual(a, b any) bool {
	switch a.(type) {
	case []any, map[string]any:
		return false
	}
	switch b.(type) {
	case []any, map[string]any:
		return false
	}
	return a == b
}
