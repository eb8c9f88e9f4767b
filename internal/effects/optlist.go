// Package effects renders typed sox effects into argument lists.
//
// Each effect implements chain.EffectSpec so it can be passed to
// chain.Builder.Apply. Rendering only produces argument text; it never checks
// the DSP meaning of the values.
package effects

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// OptList is an ordered list of option tokens. Empty and whitespace-only
// options are skipped and every option is trimmed.
type OptList struct {
	opts []string
}

// Add appends opt if it is not blank. It reports whether opt was added.
func (l *OptList) Add(opt string) bool {
	opt = strings.TrimSpace(opt)
	if opt == "" {
		return false
	}
	l.opts = append(l.opts, opt)
	return true
}

// AddList appends items joined by commas as a single option.
func (l *OptList) AddList(items []string) bool {
	if len(items) == 0 {
		return false
	}
	return l.Add(strings.Join(items, ","))
}

// AddOrdered appends positional optional arguments. sox cannot skip a
// positional argument, so once one value is blank every later value must be
// blank too.
func (l *OptList) AddOrdered(names []string, values ...string) error {
	if len(names) != len(values) {
		return fmt.Errorf("argument names list (%d) must match the number of options given (%d)", len(names), len(values))
	}

	added := true
	for i, v := range values {
		if !added {
			if strings.TrimSpace(v) != "" {
				return fmt.Errorf("option '%s' requires the previous option '%s' to be set", names[i], names[i-1])
			}
			continue
		}
		added = l.Add(v)
	}
	return nil
}

// Strings returns a copy of the accumulated options.
func (l *OptList) Strings() []string {
	out := make([]string, len(l.opts))
	copy(out, l.opts)
	return out
}

// Len returns the number of options.
func (l *OptList) Len() int {
	return len(l.opts)
}

// FormatFloat renders v with at most three decimals and no trailing zeros,
// using "inf" and "-inf" for infinities.
func FormatFloat(v float32) string {
	f := float64(v)
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}

	s := strconv.FormatFloat(f, 'f', 3, 32)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}

func formatOptional(v *float32) string {
	if v == nil {
		return ""
	}
	return FormatFloat(*v)
}
