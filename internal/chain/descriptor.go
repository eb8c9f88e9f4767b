// Package chain describes one sox effects-chain execution: a source, an
// ordered list of effects and a sink.
package chain

import (
	"github.com/randomizedcoder/go-sox-chain/internal/membuf"
)

// Endpoint is a source or sink. It is either a File or a Memory buffer;
// *File and *Memory are accepted too and stored as values by New.
type Endpoint interface {
	// Kind returns "file" or "memory".
	Kind() string

	isEndpoint()
}

// File is an endpoint backed by a filesystem path. The path is passed to sox
// as an argument and no stream pumping is needed for it.
type File struct {
	Path string

	// AllowOverwrite permits an existing file at Path to be replaced when the
	// endpoint is used as a sink.
	AllowOverwrite bool
}

// Kind returns "file".
func (File) Kind() string { return "file" }

func (File) isEndpoint() {}

// Memory is an endpoint backed by an in-memory buffer. As a source the whole
// buffer is written to sox's stdin; as a sink sox's stdout is collected into
// the buffer up to its capacity.
type Memory struct {
	Buffer *membuf.Buffer
}

// Kind returns "memory".
func (Memory) Kind() string { return "memory" }

func (Memory) isEndpoint() {}

// Effect is one named sox effect with its options, each passed as a single
// argument.
type Effect struct {
	Name    string
	Options []string
}

func (e Effect) clone() Effect {
	opts := make([]string, len(e.Options))
	copy(opts, e.Options)
	return Effect{Name: e.Name, Options: opts}
}

// Descriptor is an immutable chain description. Create one with a Builder
// or New.
type Descriptor struct {
	source  Endpoint
	sink    Endpoint
	effects []Effect
}

// New creates a descriptor. The effects are copied.
func New(source, sink Endpoint, effects ...Effect) Descriptor {
	d := Descriptor{
		source:  deref(source),
		sink:    deref(sink),
		effects: make([]Effect, 0, len(effects)),
	}
	for _, e := range effects {
		d.effects = append(d.effects, e.clone())
	}
	return d
}

// deref stores pointer endpoints as values. A nil pointer means no endpoint.
func deref(e Endpoint) Endpoint {
	switch v := e.(type) {
	case *File:
		if v == nil {
			return nil
		}
		return *v
	case *Memory:
		if v == nil {
			return nil
		}
		return *v
	}
	return e
}

// Source returns the source endpoint, which may be nil.
func (d Descriptor) Source() Endpoint { return d.source }

// Sink returns the sink endpoint, which may be nil.
func (d Descriptor) Sink() Endpoint { return d.sink }

// Effects returns a copy of the effect list in order.
func (d Descriptor) Effects() []Effect {
	out := make([]Effect, 0, len(d.effects))
	for _, e := range d.effects {
		out = append(out, e.clone())
	}
	return out
}

// NumEffects returns the number of effects.
func (d Descriptor) NumEffects() int { return len(d.effects) }
