package chain

import (
	"errors"
	"fmt"
)

// EffectSpec renders a typed effect into its sox name and option list.
type EffectSpec interface {
	Name() string
	Options() ([]string, error)
}

// Builder accumulates a chain description. It is a transient helper: call
// Build to obtain the immutable Descriptor.
type Builder struct {
	source  Endpoint
	sink    Endpoint
	effects []Effect
	errs    []error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Source sets the source endpoint.
func (b *Builder) Source(e Endpoint) *Builder {
	b.source = e
	return b
}

// Sink sets the sink endpoint.
func (b *Builder) Sink(e Endpoint) *Builder {
	b.sink = e
	return b
}

// Effect appends a named effect with literal options.
func (b *Builder) Effect(name string, options ...string) *Builder {
	opts := make([]string, len(options))
	copy(opts, options)
	b.effects = append(b.effects, Effect{Name: name, Options: opts})
	return b
}

// Apply appends a typed effect. Rendering errors are reported by Build.
func (b *Builder) Apply(spec EffectSpec) *Builder {
	opts, err := spec.Options()
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("effect %s: %w", spec.Name(), err))
		return b
	}
	b.effects = append(b.effects, Effect{Name: spec.Name(), Options: opts})
	return b
}

// Build returns the descriptor. Missing endpoints are not an error here;
// they are rejected when the command line is rendered.
func (b *Builder) Build() (Descriptor, error) {
	if len(b.errs) > 0 {
		return Descriptor{}, errors.Join(b.errs...)
	}
	return New(b.source, b.sink, b.effects...), nil
}
