// Package stream binds chain endpoints to sox's standard streams: it decides
// which sides need pumping and provides the writers and readers that do it.
package stream

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/randomizedcoder/go-sox-chain/internal/chain"
	"github.com/randomizedcoder/go-sox-chain/internal/membuf"
	"github.com/randomizedcoder/go-sox-chain/internal/outcome"
)

// Plan says how each side of a run is connected. A nil SourcePayload means
// the source is a file and stdin is not used; a nil Sink means the sink is a
// file and stdout is not read.
type Plan struct {
	SourcePayload []byte
	Sink          *membuf.Buffer
}

// PumpsStdin reports whether the source must be written to stdin.
func (p Plan) PumpsStdin() bool { return p.SourcePayload != nil }

// PumpsStdout reports whether stdout must be collected into the sink.
func (p Plan) PumpsStdout() bool { return p.Sink != nil }

// Resolve validates the endpoints of d and returns the pumping plan.
// The source is checked before the sink.
func Resolve(d chain.Descriptor) (Plan, error) {
	var p Plan

	switch src := d.Source().(type) {
	case nil:
		return Plan{}, outcome.ErrMissingSource
	case chain.File:
		if src.Path == "" {
			return Plan{}, fmt.Errorf("%w: empty path", outcome.ErrMissingSource)
		}
	case chain.Memory:
		if src.Buffer == nil {
			return Plan{}, fmt.Errorf("%w: memory endpoint has no buffer", outcome.ErrMissingSource)
		}
		p.SourcePayload = src.Buffer.Bytes()
	default:
		return Plan{}, fmt.Errorf("%w: unsupported endpoint %T", outcome.ErrMissingSource, src)
	}

	switch dst := d.Sink().(type) {
	case nil:
		return Plan{}, outcome.ErrMissingSink
	case chain.File:
		if dst.Path == "" {
			return Plan{}, fmt.Errorf("%w: empty path", outcome.ErrMissingSink)
		}
		if !dst.AllowOverwrite {
			if err := checkNotExists(dst.Path); err != nil {
				return Plan{}, err
			}
		}
	case chain.Memory:
		if dst.Buffer == nil {
			return Plan{}, fmt.Errorf("%w: memory endpoint has no buffer", outcome.ErrMissingSink)
		}
		p.Sink = dst.Buffer
	default:
		return Plan{}, fmt.Errorf("%w: unsupported endpoint %T", outcome.ErrMissingSink, dst)
	}

	return p, nil
}

func checkNotExists(path string) error {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", outcome.ErrSinkExists, path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("checking sink %s: %w", path, err)
	}
}
