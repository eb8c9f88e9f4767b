// Package config provides configuration management for sox-chain.
package config

import "time"

// Config holds all configuration options for a sox-chain invocation.
type Config struct {
	// sox
	SoxPath       string   `json:"sox_path"`
	SinkType      string   `json:"sink_type"`
	GlobalOptions []string `json:"global_options"`

	// Chain (single-run mode; ignored when ChainFile is set)
	ChainFile    string   `json:"chain_file"`
	InPath       string   `json:"in"`  // "-" = stdin into memory
	InMemory     bool     `json:"in_memory"`
	OutPath      string   `json:"out"` // "-" = memory sink, copied to stdout
	SinkCapacity int      `json:"sink_capacity"`
	Overwrite    bool     `json:"overwrite"`
	Effects      []string `json:"effects"`

	// Generated sine source, used instead of InPath when ToneDuration > 0
	ToneDuration  time.Duration `json:"tone"`
	ToneFrequency float64       `json:"tone_frequency"`

	// Execution
	Timeout     time.Duration `json:"timeout"`
	Grace       time.Duration `json:"grace"`
	StderrLimit int           `json:"stderr_limit"`
	Concurrency int           `json:"concurrency"`
	Runs        int           `json:"runs"` // repetitions of each job

	// Observability
	MetricsAddr string `json:"metrics_addr"` // "" = disabled
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`
	TUIEnabled  bool   `json:"tui"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	Check         bool `json:"check"`
	Inspect       bool `json:"inspect"`
	SkipPreflight bool `json:"skip_preflight"`
	VerifyEffects bool `json:"verify_effects"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SoxPath:  "sox",
		SinkType: "wav",

		ToneFrequency: 440,

		Timeout:     10 * time.Minute,
		Grace:       500 * time.Millisecond,
		StderrLimit: 64 * 1024,
		Concurrency: 1,
		Runs:        1,

		LogFormat: "text",
		LogLevel:  "info",
	}
}

// IsBatch reports whether more than one run will execute.
func (c *Config) IsBatch() bool {
	return c.ChainFile != "" || c.Runs > 1
}

// ApplyCheckMode modifies config for -check mode: validate everything, query
// sox, run nothing.
func ApplyCheckMode(cfg *Config) {
	cfg.Verbose = true
	cfg.VerifyEffects = true
	cfg.TUIEnabled = false
	cfg.Runs = 1
}
