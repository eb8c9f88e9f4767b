package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/effects"
	"github.com/randomizedcoder/go-sox-chain/internal/membuf"
	"github.com/randomizedcoder/go-sox-chain/internal/wavinfo"
)

// StdioPath selects stdin as a source or stdout as a sink.
const StdioPath = "-"

// ChainFile is a batch of jobs loaded from TOML or YAML.
type ChainFile struct {
	Jobs []Job `toml:"jobs" yaml:"jobs"`
}

// Job describes one effects chain.
type Job struct {
	Name         string         `toml:"name" yaml:"name"`
	In           string         `toml:"in" yaml:"in"`
	InMemory     bool           `toml:"in_memory" yaml:"in_memory"`
	Tone         *ToneConfig    `toml:"tone" yaml:"tone"` // generated source, instead of In
	Out          string         `toml:"out" yaml:"out"`
	SinkCapacity int            `toml:"sink_capacity" yaml:"sink_capacity"`
	Overwrite    bool           `toml:"overwrite" yaml:"overwrite"`
	Effects      []EffectConfig `toml:"effects" yaml:"effects"`
}

// ToneConfig generates a sine WAV in memory and feeds it to sox's stdin.
// Zero fields take wavinfo.DefaultTone's values; Duration is required.
type ToneConfig struct {
	Frequency  float64 `toml:"frequency" yaml:"frequency"`
	Duration   string  `toml:"duration" yaml:"duration"`
	SampleRate int     `toml:"sample_rate" yaml:"sample_rate"`
	Channels   int     `toml:"channels" yaml:"channels"`
}

// Tone resolves the config to a wavinfo.Tone.
func (t ToneConfig) Tone() (wavinfo.Tone, error) {
	tone := wavinfo.DefaultTone()

	d, err := time.ParseDuration(t.Duration)
	if err != nil {
		return wavinfo.Tone{}, fmt.Errorf("duration: %w", err)
	}
	if d <= 0 {
		return wavinfo.Tone{}, errors.New("duration must be positive")
	}
	tone.Duration = d

	if t.Frequency < 0 || t.SampleRate < 0 || t.Channels < 0 {
		return wavinfo.Tone{}, errors.New("frequency, sample_rate and channels must not be negative")
	}
	if t.Frequency > 0 {
		tone.Frequency = t.Frequency
	}
	if t.SampleRate > 0 {
		tone.SampleRate = t.SampleRate
	}
	if t.Channels > 0 {
		tone.NumChannels = t.Channels
	}
	if tone.Frequency*2 > float64(tone.SampleRate) {
		return wavinfo.Tone{}, fmt.Errorf("frequency %g Hz is above the Nyquist limit of %d Hz", tone.Frequency, tone.SampleRate/2)
	}
	return tone, nil
}

// EffectConfig is one effect. Exactly one of Name, Filter, Flanger or Compand
// must be set; Args only applies to Name.
type EffectConfig struct {
	Name    string         `toml:"name" yaml:"name"`
	Args    []string       `toml:"args" yaml:"args"`
	Filter  *FilterConfig  `toml:"filter" yaml:"filter"`
	Flanger *FlangerConfig `toml:"flanger" yaml:"flanger"`
	Compand *CompandConfig `toml:"compand" yaml:"compand"`
}

// FilterConfig maps to effects.Filter.
type FilterConfig struct {
	Type      string `toml:"type" yaml:"type"`
	Poles     int    `toml:"poles" yaml:"poles"` // 0 = sox default
	Frequency string `toml:"frequency" yaml:"frequency"`
	Width     string `toml:"width" yaml:"width"`
}

// FlangerConfig maps to effects.Flanger.
type FlangerConfig struct {
	Delay  string `toml:"delay" yaml:"delay"`
	Depth  string `toml:"depth" yaml:"depth"`
	Regen  string `toml:"regen" yaml:"regen"`
	Width  string `toml:"width" yaml:"width"`
	Speed  string `toml:"speed" yaml:"speed"`
	Shape  string `toml:"shape" yaml:"shape"`
	Phase  string `toml:"phase" yaml:"phase"`
	Interp string `toml:"interp" yaml:"interp"`
}

// CompandConfig maps to effects.Compand.
type CompandConfig struct {
	AttackDecay   [][]float32     `toml:"attack_decay" yaml:"attack_decay"`
	Transfer      []TransferPoint `toml:"transfer" yaml:"transfer"`
	SoftKnee      *float32        `toml:"soft_knee" yaml:"soft_knee"`
	Gain          *float32        `toml:"gain" yaml:"gain"`
	InitialVolume *float32        `toml:"initial_volume" yaml:"initial_volume"`
	Delay         *float32        `toml:"delay" yaml:"delay"`
}

// TransferPoint is one compand transfer point; Out is optional.
type TransferPoint struct {
	In  float32  `toml:"in" yaml:"in"`
	Out *float32 `toml:"out" yaml:"out"`
}

// =============================================================================
// Loading
// =============================================================================

// LoadChainFile reads a chain file. The format is chosen by extension:
// .toml, or .yaml/.yml. Unknown keys are rejected.
func LoadChainFile(path string) (*ChainFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("chain file %s: unsupported extension (want .toml, .yaml or .yml)", path)
	}
}

// ParseTOML decodes a TOML chain file.
func ParseTOML(data []byte) (*ChainFile, error) {
	var cf ChainFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cf); err != nil {
		return nil, fmt.Errorf("parse toml chain file: %w", err)
	}
	return &cf, nil
}

// ParseYAML decodes a YAML chain file.
func ParseYAML(data []byte) (*ChainFile, error) {
	var cf ChainFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse yaml chain file: %w", err)
	}
	return &cf, nil
}

// =============================================================================
// Jobs from flags
// =============================================================================

// Jobs returns the jobs to run: the chain file's, or a single job built from
// the chain flags.
func (c *Config) Jobs() ([]Job, error) {
	if c.ChainFile != "" {
		cf, err := LoadChainFile(c.ChainFile)
		if err != nil {
			return nil, err
		}
		for i := range cf.Jobs {
			if cf.Jobs[i].Name == "" {
				cf.Jobs[i].Name = fmt.Sprintf("job-%d", i+1)
			}
		}
		return cf.Jobs, nil
	}

	job := Job{
		Name:         "cli",
		In:           c.InPath,
		InMemory:     c.InMemory,
		Out:          c.OutPath,
		SinkCapacity: c.SinkCapacity,
		Overwrite:    c.Overwrite,
	}
	if c.ToneDuration > 0 {
		job.Tone = &ToneConfig{Frequency: c.ToneFrequency, Duration: c.ToneDuration.String()}
	}
	for _, e := range c.Effects {
		fields := strings.Fields(e)
		if len(fields) == 0 {
			return nil, errors.New("empty -effect")
		}
		job.Effects = append(job.Effects, EffectConfig{Name: fields[0], Args: fields[1:]})
	}
	return []Job{job}, nil
}

// =============================================================================
// Descriptor construction
// =============================================================================

// MemorySink reports whether the job collects output in memory.
func (j Job) MemorySink() bool {
	return j.Out == "" || j.Out == StdioPath
}

// Descriptor builds the chain descriptor. stdin is read when In is "-".
// A memory sink, and a tone source, get a fresh buffer on every call.
func (j Job) Descriptor(stdin io.Reader) (chain.Descriptor, error) {
	b := chain.NewBuilder()

	switch {
	case j.Tone != nil:
		tone, err := j.Tone.Tone()
		if err != nil {
			return chain.Descriptor{}, fmt.Errorf("tone: %w", err)
		}
		payload, err := tone.Bytes()
		if err != nil {
			return chain.Descriptor{}, fmt.Errorf("generate tone: %w", err)
		}
		b.Source(chain.Memory{Buffer: membuf.From(payload)})
	case j.In == StdioPath:
		if stdin == nil {
			return chain.Descriptor{}, errors.New("stdin source is not available")
		}
		payload, err := io.ReadAll(stdin)
		if err != nil {
			return chain.Descriptor{}, fmt.Errorf("read stdin: %w", err)
		}
		b.Source(chain.Memory{Buffer: membuf.From(payload)})
	case j.InMemory:
		payload, err := os.ReadFile(j.In)
		if err != nil {
			return chain.Descriptor{}, fmt.Errorf("load source: %w", err)
		}
		b.Source(chain.Memory{Buffer: membuf.From(payload)})
	default:
		b.Source(chain.File{Path: j.In})
	}

	if j.MemorySink() {
		b.Sink(chain.Memory{Buffer: membuf.New(j.SinkCapacity)})
	} else {
		b.Sink(chain.File{Path: j.Out, AllowOverwrite: j.Overwrite})
	}

	for i, e := range j.Effects {
		spec, err := e.Spec()
		if err != nil {
			return chain.Descriptor{}, fmt.Errorf("effect %d: %w", i+1, err)
		}
		b.Apply(spec)
	}

	return b.Build()
}

// rawEffect is an effect given as a name and literal arguments.
type rawEffect struct {
	name string
	args []string
}

func (r rawEffect) Name() string               { return r.name }
func (r rawEffect) Options() ([]string, error) { return r.args, nil }

// Spec resolves the configured effect into a renderable spec.
func (e EffectConfig) Spec() (chain.EffectSpec, error) {
	set := 0
	for _, ok := range []bool{e.Name != "", e.Filter != nil, e.Flanger != nil, e.Compand != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return nil, errors.New("exactly one of name, filter, flanger or compand must be set")
	}
	if len(e.Args) > 0 && e.Name == "" {
		return nil, errors.New("args require name")
	}

	switch {
	case e.Name != "":
		return rawEffect{name: e.Name, args: e.Args}, nil
	case e.Filter != nil:
		return e.Filter.spec()
	case e.Flanger != nil:
		return effects.Flanger(*e.Flanger), nil
	default:
		return e.Compand.spec()
	}
}

func (f *FilterConfig) spec() (chain.EffectSpec, error) {
	filter := effects.Filter{
		Type:      effects.FilterType(f.Type),
		Frequency: f.Frequency,
		Width:     f.Width,
	}
	switch f.Poles {
	case 0:
	case 1:
		filter.Pole = effects.SinglePole
	case 2:
		filter.Pole = effects.DoublePole
	default:
		return nil, fmt.Errorf("filter poles must be 1 or 2 (got %d)", f.Poles)
	}
	return filter, nil
}

func (c *CompandConfig) spec() (chain.EffectSpec, error) {
	comp := effects.NewCompand()
	for _, pair := range c.AttackDecay {
		if len(pair) != 2 {
			return nil, fmt.Errorf("compand attack_decay entries need 2 values (got %d)", len(pair))
		}
		comp.AttackDecay(pair[0], pair[1])
	}
	for _, p := range c.Transfer {
		if p.Out != nil {
			comp.TransferTo(p.In, *p.Out)
		} else {
			comp.Transfer(p.In)
		}
	}
	if c.SoftKnee != nil {
		comp.SoftKnee(*c.SoftKnee)
	}
	if c.Gain != nil {
		comp.Gain(*c.Gain)
	}
	if c.InitialVolume != nil {
		comp.InitialVolume(*c.InitialVolume)
	}
	if c.Delay != nil {
		comp.Delay(*c.Delay)
	}
	return comp, nil
}
