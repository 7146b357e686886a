// Package model describes the tunable inputs of a simulation model:
// parameters, piecewise-constant input signals and valuations assigning
// values to them.
package model

import (
	"fmt"
	"strconv"
)

// Parameter is a named scalar input of a model.
type Parameter interface {
	Name() string
	// Default returns a value for which Validate holds.
	Default() float64
	Validate(value float64) bool
}

// StaticParameter is fixed to a single value.
type StaticParameter struct {
	name  string
	value float64
}

// NewStaticParameter returns a parameter only accepting value.
func NewStaticParameter(name string, value float64) *StaticParameter {
	return &StaticParameter{name: name, value: value}
}

func (p *StaticParameter) Name() string {
	return p.name
}

// Value returns the fixed value.
func (p *StaticParameter) Value() float64 {
	return p.value
}

func (p *StaticParameter) Default() float64 {
	return p.value
}

// Validate reports whether v equals the fixed value.
func (p *StaticParameter) Validate(v float64) bool {
	return v == p.value
}

func (p *StaticParameter) String() string {
	return fmt.Sprintf("StaticParameter(%s=%s)", p.name, formatFloat(p.value))
}

// RangeParameter accepts any value in the closed interval [Lower, Upper].
type RangeParameter struct {
	name         string
	lower, upper float64
	def          float64
}

// NewRangeParameter returns a range parameter defaulting to the midpoint.
func NewRangeParameter(name string, lower, upper float64) (*RangeParameter, error) {
	return NewRangeParameterWithDefault(name, lower, upper, (lower+upper)/2)
}

// NewRangeParameterWithDefault returns a range parameter with an explicit
// default, which must lie inside the range.
func NewRangeParameterWithDefault(name string, lower, upper, def float64) (*RangeParameter, error) {
	if lower > upper {
		return nil, fmt.Errorf("parameter %s: lower bound %s exceeds upper bound %s",
			name, formatFloat(lower), formatFloat(upper))
	}
	if def < lower || def > upper {
		return nil, fmt.Errorf("parameter %s: default %s outside [%s, %s]",
			name, formatFloat(def), formatFloat(lower), formatFloat(upper))
	}
	return &RangeParameter{name: name, lower: lower, upper: upper, def: def}, nil
}

func (p *RangeParameter) Name() string {
	return p.name
}

func (p *RangeParameter) Default() float64 {
	return p.def
}

// Lower returns the lower bound.
func (p *RangeParameter) Lower() float64 {
	return p.lower
}

// Upper returns the upper bound.
func (p *RangeParameter) Upper() float64 {
	return p.upper
}

// Validate reports whether v lies within the bounds, inclusive.
func (p *RangeParameter) Validate(v float64) bool {
	return p.lower <= v && v <= p.upper
}

func (p *RangeParameter) String() string {
	return fmt.Sprintf("RangeParameter(%s in [%s, %s])", p.name, formatFloat(p.lower), formatFloat(p.upper))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
