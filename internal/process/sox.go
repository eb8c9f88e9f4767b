package process

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

// SoxConfig holds configuration for rendering sox command lines.
type SoxConfig struct {
	// BinaryPath is the sox binary. It becomes argv[0].
	BinaryPath string

	// SinkType is the container sox writes to stdout for in-memory sinks.
	SinkType string

	// GlobalOptions are inserted before the source argument, e.g. "-V1".
	GlobalOptions []string
}

// DefaultSoxConfig returns a SoxConfig with sensible defaults.
func DefaultSoxConfig() *SoxConfig {
	return &SoxConfig{
		BinaryPath: "sox",
		SinkType:   "wav",
	}
}

// SoxRunner implements Runner for sox.
type SoxRunner struct {
	config *SoxConfig
}

// NewSoxRunner creates a runner. A nil config uses DefaultSoxConfig.
func NewSoxRunner(cfg *SoxConfig) *SoxRunner {
	if cfg == nil {
		cfg = DefaultSoxConfig()
	}
	return &SoxRunner{config: cfg}
}

// Name returns "sox".
func (r *SoxRunner) Name() string {
	return "sox"
}

// Config returns the runner configuration.
func (r *SoxRunner) Config() *SoxConfig {
	return r.config
}

// BuildArgs renders
//
//	binary [global options] source sink [effect [options...]]...
//
// A memory source renders as "-" and a memory sink as "-t <type> -".
// File paths are made absolute. The same descriptor always yields the same
// argv for a given working directory.
func (r *SoxRunner) BuildArgs(d chain.Descriptor) ([]string, error) {
	src, err := r.sourceArgs(d.Source())
	if err != nil {
		return nil, err
	}
	dst, err := r.sinkArgs(d.Sink())
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, 1+len(r.config.GlobalOptions)+len(src)+len(dst)+estimateEffects(d))
	args = append(args, r.binary())
	args = append(args, r.config.GlobalOptions...)
	args = append(args, src...)
	args = append(args, dst...)

	for _, e := range d.Effects() {
		args = append(args, e.Name)
		args = append(args, e.Options...)
	}
	return args, nil
}

// BuildCommand creates an exec.Cmd for d. The command is not bound to a
// context: its lifetime is governed by the executor's watchdog.
func (r *SoxRunner) BuildCommand(d chain.Descriptor) (*exec.Cmd, []string, error) {
	argv, err := r.BuildArgs(d)
	if err != nil {
		return nil, nil, err
	}
	return exec.Command(argv[0], argv[1:]...), argv, nil
}

// CommandString returns the command that would be executed (for debugging).
func (r *SoxRunner) CommandString(d chain.Descriptor) (string, error) {
	argv, err := r.BuildArgs(d)
	if err != nil {
		return "", err
	}
	return strings.Join(argv, " "), nil
}

func (r *SoxRunner) binary() string {
	if r.config.BinaryPath == "" {
		return "sox"
	}
	return r.config.BinaryPath
}

func (r *SoxRunner) sourceArgs(e chain.Endpoint) ([]string, error) {
	switch src := e.(type) {
	case nil:
		return nil, outcome.ErrMissingSource
	case chain.File:
		p, err := absPath(src.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", outcome.ErrMissingSource, err)
		}
		return []string{p}, nil
	case chain.Memory:
		return []string{"-"}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported endpoint %T", outcome.ErrMissingSource, src)
	}
}

func (r *SoxRunner) sinkArgs(e chain.Endpoint) ([]string, error) {
	switch dst := e.(type) {
	case nil:
		return nil, outcome.ErrMissingSink
	case chain.File:
		p, err := absPath(dst.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", outcome.ErrMissingSink, err)
		}
		return []string{p}, nil
	case chain.Memory:
		sinkType := r.config.SinkType
		if sinkType == "" {
			sinkType = "wav"
		}
		return []string{"-t", sinkType, "-"}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported endpoint %T", outcome.ErrMissingSink, dst)
	}
}

func absPath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	return filepath.Abs(p)
}

func estimateEffects(d chain.Descriptor) int {
	n := 0
	for _, e := range d.Effects() {
		n += 1 + len(e.Options)
	}
	return n
}
