package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error joining every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.SoxPath == "" {
		errs = append(errs, ValidationError{Field: "sox_path", Message: "must not be empty"})
	}
	if cfg.SinkType == "" {
		errs = append(errs, ValidationError{Field: "sink_type", Message: "must not be empty"})
	}

	if cfg.ChainFile != "" {
		if cfg.InPath != "" || cfg.ToneDuration != 0 || cfg.OutPath != "" || len(cfg.Effects) > 0 {
			errs = append(errs, ValidationError{
				Field:   "chain",
				Message: "-chain cannot be combined with -in, -tone, -out or -effect",
			})
		}
	} else {
		switch {
		case cfg.ToneDuration < 0:
			errs = append(errs, ValidationError{Field: "tone", Message: "must not be negative"})
		case cfg.ToneDuration > 0 && cfg.InPath != "":
			errs = append(errs, ValidationError{Field: "tone", Message: "-tone cannot be combined with -in"})
		case cfg.ToneDuration == 0 && cfg.InPath == "":
			errs = append(errs, ValidationError{Field: "in", Message: "source is required (-in, -tone or -chain)"})
		}
		if cfg.ToneDuration > 0 && cfg.InMemory {
			errs = append(errs, ValidationError{Field: "in_memory", Message: "not valid with a -tone source"})
		}
		if (cfg.OutPath == "" || cfg.OutPath == StdioPath) && cfg.SinkCapacity <= 0 {
			errs = append(errs, ValidationError{
				Field:   "sink_capacity",
				Message: "a memory sink needs -sink-capacity > 0 (or give -out a file)",
			})
		}
		if cfg.OutPath == StdioPath && cfg.Runs > 1 {
			errs = append(errs, ValidationError{Field: "out", Message: "stdout sink cannot be used with -runs > 1"})
		}
		if cfg.InPath == StdioPath && cfg.Runs > 1 {
			errs = append(errs, ValidationError{Field: "in", Message: "stdin source cannot be used with -runs > 1"})
		}
		for _, e := range cfg.Effects {
			if strings.TrimSpace(e) == "" {
				errs = append(errs, ValidationError{Field: "effect", Message: "must not be empty"})
			}
		}
	}

	if cfg.SinkCapacity < 0 {
		errs = append(errs, ValidationError{Field: "sink_capacity", Message: "must not be negative"})
	}

	if cfg.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "timeout", Message: "must be positive"})
	}
	if cfg.Grace < 0 {
		errs = append(errs, ValidationError{Field: "grace", Message: "must not be negative"})
	}
	if cfg.StderrLimit < 1 {
		errs = append(errs, ValidationError{Field: "stderr_limit", Message: "must be at least 1"})
	}
	if cfg.Concurrency < 1 {
		errs = append(errs, ValidationError{Field: "concurrency", Message: "must be at least 1"})
	}
	if cfg.Runs < 1 {
		errs = append(errs, ValidationError{Field: "runs", Message: "must be at least 1"})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "log_level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.LogLevel),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateJobs checks each job's endpoints and renders its effects.
func ValidateJobs(jobs []Job) error {
	if len(jobs) == 0 {
		return ValidationError{Field: "jobs", Message: "at least one job is required"}
	}

	var errs []error
	seen := make(map[string]bool, len(jobs))

	for i, j := range jobs {
		field := fmt.Sprintf("jobs[%d]", i)
		if j.Name != "" {
			field = fmt.Sprintf("jobs[%d] (%s)", i, j.Name)
			if seen[j.Name] {
				errs = append(errs, ValidationError{Field: field, Message: "duplicate job name"})
			}
			seen[j.Name] = true
		}

		switch {
		case j.Tone != nil && (j.In != "" || j.InMemory):
			errs = append(errs, ValidationError{Field: field + ".tone", Message: "cannot be combined with in or in_memory"})
		case j.Tone != nil:
			if _, err := j.Tone.Tone(); err != nil {
				errs = append(errs, ValidationError{Field: field + ".tone", Message: err.Error()})
			}
		case j.In == "":
			errs = append(errs, ValidationError{Field: field + ".in", Message: "source is required (in or tone)"})
		}
		if j.In == StdioPath && j.InMemory {
			errs = append(errs, ValidationError{Field: field + ".in_memory", Message: "not valid with a stdin source"})
		}
		if j.MemorySink() && j.SinkCapacity <= 0 {
			errs = append(errs, ValidationError{Field: field + ".sink_capacity", Message: "memory sink needs a positive capacity"})
		}

		for k, e := range j.Effects {
			spec, err := e.Spec()
			if err == nil {
				_, err = spec.Options()
			}
			if err != nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.effects[%d]", field, k),
					Message: err.Error(),
				})
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
