package effects

import (
	"errors"
	"fmt"
)

// Pole selects single- or double-pole mode for highpass and lowpass.
type Pole string

const (
	// DefaultPole lets sox pick (double pole).
	DefaultPole Pole = ""
	// SinglePole renders as "-1".
	SinglePole Pole = "-1"
	// DoublePole renders as "-2".
	DoublePole Pole = "-2"
)

// FilterType is the sox effect name of a filter.
type FilterType string

// Filter types supported by Filter.
const (
	Highpass   FilterType = "highpass"
	Lowpass    FilterType = "lowpass"
	Bandpass   FilterType = "bandpass"
	Bandreject FilterType = "bandreject"
	Allpass    FilterType = "allpass"
)

// ErrFrequencyRequired is returned when a filter has no frequency.
var ErrFrequencyRequired = errors.New("frequency must be specified")

// Filter renders "<type> [pole] frequency [width]".
type Filter struct {
	Type      FilterType
	Pole      Pole
	Frequency string
	Width     string
}

// NewHighpass returns a highpass filter at frequency.
func NewHighpass(frequency string) Filter {
	return Filter{Type: Highpass, Frequency: frequency}
}

// NewLowpass returns a lowpass filter at frequency.
func NewLowpass(frequency string) Filter {
	return Filter{Type: Lowpass, Frequency: frequency}
}

// Name returns the sox effect name.
func (f Filter) Name() string {
	return string(f.Type)
}

// Options renders the filter arguments.
func (f Filter) Options() ([]string, error) {
	if f.Type == "" {
		return nil, errors.New("filter type must be specified")
	}
	if f.Pole != DefaultPole && f.Type != Highpass && f.Type != Lowpass {
		return nil, fmt.Errorf("%s does not take a pole option", f.Type)
	}

	var l OptList
	l.Add(string(f.Pole))
	if !l.Add(f.Frequency) {
		return nil, ErrFrequencyRequired
	}
	l.Add(f.Width)
	return l.Strings(), nil
}
