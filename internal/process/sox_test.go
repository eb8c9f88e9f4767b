package process

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/membuf"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

// =============================================================================
// BuildArgs
// =============================================================================

func TestBuildArgs_EffectOrder(t *testing.T) {
	r := NewSoxRunner(nil)
	d := chain.New(
		chain.File{Path: "/audio/in.wav"},
		chain.File{Path: "/audio/out.wav"},
		chain.Effect{Name: "highpass", Options: []string{"1000"}},
		chain.Effect{Name: "flanger"},
	)

	got, err := r.BuildArgs(d)
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}
	want := []string{"sox", "/audio/in.wav", "/audio/out.wav", "highpass", "1000", "flanger"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildArgs() = %q, want %q", got, want)
	}
}

func TestBuildArgs_MemoryEndpoints(t *testing.T) {
	r := NewSoxRunner(nil)
	d := chain.New(chain.Memory{Buffer: membuf.New(0)}, chain.Memory{Buffer: membuf.New(0)})

	got, err := r.BuildArgs(d)
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}
	want := []string{"sox", "-", "-t", "wav", "-"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildArgs() = %q, want %q", got, want)
	}
}

func TestBuildArgs_Config(t *testing.T) {
	r := NewSoxRunner(&SoxConfig{
		BinaryPath:    "/opt/sox/bin/sox",
		SinkType:      "flac",
		GlobalOptions: []string{"-V1"},
	})
	d := chain.New(chain.Memory{Buffer: membuf.New(0)}, chain.Memory{Buffer: membuf.New(0)},
		chain.Effect{Name: "gain", Options: []string{"-n"}})

	got, err := r.BuildArgs(d)
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}
	want := []string{"/opt/sox/bin/sox", "-V1", "-", "-t", "flac", "-", "gain", "-n"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildArgs() = %q, want %q", got, want)
	}
}

func TestBuildArgs_RelativePathMadeAbsolute(t *testing.T) {
	r := NewSoxRunner(nil)
	d := chain.New(chain.File{Path: "in.wav"}, chain.Memory{Buffer: membuf.New(0)})

	got, err := r.BuildArgs(d)
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}
	if !filepath.IsAbs(got[1]) {
		t.Errorf("source argument %q is not absolute", got[1])
	}
}

func TestBuildArgs_OptionsAreSingleTokens(t *testing.T) {
	r := NewSoxRunner(nil)
	d := chain.New(chain.File{Path: "/in.wav"}, chain.File{Path: "/out.wav"},
		chain.Effect{Name: "compand", Options: []string{"0.3,1", "6:-70,-60,-20", "$(rm -rf /)"}})

	got, _ := r.BuildArgs(d)
	if got[len(got)-1] != "$(rm -rf /)" {
		t.Errorf("option was split or altered: %q", got)
	}
}

func TestBuildArgs_PointerEndpoints(t *testing.T) {
	r := NewSoxRunner(nil)
	d := chain.New(&chain.File{Path: "/audio/in.wav"}, &chain.Memory{Buffer: membuf.New(0)})

	got, err := r.BuildArgs(d)
	if err != nil {
		t.Fatalf("BuildArgs() error = %v", err)
	}
	want := []string{"sox", "/audio/in.wav", "-t", "wav", "-"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildArgs() = %q, want %q", got, want)
	}
}

func TestBuildArgs_MissingEndpoints(t *testing.T) {
	r := NewSoxRunner(nil)
	mem := chain.Memory{Buffer: membuf.New(0)}

	tests := []struct {
		name string
		desc chain.Descriptor
		want error
	}{
		{"no source", chain.New(nil, mem), outcome.ErrMissingSource},
		{"no sink", chain.New(mem, nil), outcome.ErrMissingSink},
		{"neither reports source first", chain.New(nil, nil), outcome.ErrMissingSource},
		{"empty source path", chain.New(chain.File{}, mem), outcome.ErrMissingSource},
		{"nil *File source", chain.New((*chain.File)(nil), mem), outcome.ErrMissingSource},
		{"nil *Memory sink", chain.New(mem, (*chain.Memory)(nil)), outcome.ErrMissingSink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.BuildArgs(tt.desc); !errors.Is(err, tt.want) {
				t.Errorf("BuildArgs() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBuildArgs_Pure(t *testing.T) {
	r := NewSoxRunner(nil)
	d := chain.New(chain.File{Path: "/in.wav"}, chain.File{Path: "/out.wav"},
		chain.Effect{Name: "rate", Options: []string{"16k"}})

	first, _ := r.BuildArgs(d)
	first[3] = "mutated"
	second, _ := r.BuildArgs(d)
	if second[3] != "rate" {
		t.Error("BuildArgs shares state between calls")
	}
}

func TestBuildCommand(t *testing.T) {
	r := NewSoxRunner(&SoxConfig{BinaryPath: "sox-test-binary"})
	d := chain.New(chain.File{Path: "/in.wav"}, chain.File{Path: "/out.wav"})

	cmd, argv, err := r.BuildCommand(d)
	if err != nil {
		t.Fatalf("BuildCommand() error = %v", err)
	}
	if !reflect.DeepEqual(cmd.Args, argv) {
		t.Errorf("cmd.Args = %q, argv = %q", cmd.Args, argv)
	}
}

func TestCommandString(t *testing.T) {
	r := NewSoxRunner(nil)
	d := chain.New(chain.Memory{Buffer: membuf.New(0)}, chain.Memory{Buffer: membuf.New(0)},
		chain.Effect{Name: "highpass", Options: []string{"1000"}})

	got, err := r.CommandString(d)
	if err != nil {
		t.Fatal(err)
	}
	if got != "sox - -t wav - highpass 1000" {
		t.Errorf("CommandString() = %q", got)
	}
}

// =============================================================================
// Effect listing
// =============================================================================

const helpSample = `sox:      SoX v14.4.2

Usage summary: [gopts] [[fopts] infile]... [fopts] outfile [effect [effopt]]...

AUDIO FILE FORMATS: 8svx aif aifc aiff wav
PLAYLIST FORMATS: m3u pls
AUDIO DEVICE DRIVERS: alsa

EFFECTS: allpass band bandpass flanger highpass compand
`

func TestParseEffectsList(t *testing.T) {
	got := ParseEffectsList([]byte(helpSample))
	want := []string{"allpass", "band", "bandpass", "compand", "flanger", "highpass"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseEffectsList() = %q, want %q", got, want)
	}

	if got := ParseEffectsList([]byte("no effects here")); got != nil {
		t.Errorf("ParseEffectsList() without EFFECTS line = %q, want nil", got)
	}
}

func TestUnknownEffects(t *testing.T) {
	d := chain.New(chain.File{Path: "/in.wav"}, chain.File{Path: "/out.wav"},
		chain.Effect{Name: "highpass"}, chain.Effect{Name: "warp"}, chain.Effect{Name: "flanger"})

	got := UnknownEffects(d, ParseEffectsList([]byte(helpSample)))
	if !reflect.DeepEqual(got, []string{"warp"}) {
		t.Errorf("UnknownEffects() = %q, want [warp]", got)
	}
}

func TestListEffects_FakeBinary(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	script := filepath.Join(t.TempDir(), "fakesox")
	writeScript(t, script, "#!/bin/sh\necho 'EFFECTS: rate gain vol'\n")

	r := NewSoxRunner(&SoxConfig{BinaryPath: script})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := r.ListEffects(ctx)
	if err != nil {
		t.Fatalf("ListEffects() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"gain", "rate", "vol"}) {
		t.Errorf("ListEffects() = %q", got)
	}
}

func TestListEffects_MissingBinary(t *testing.T) {
	r := NewSoxRunner(&SoxConfig{BinaryPath: "/nonexistent/sox"})
	if _, err := r.ListEffects(context.Background()); err == nil {
		t.Error("ListEffects() with missing binary should fail")
	}
	if r.Available() {
		t.Error("Available() = true for missing binary")
	}
}
