package model

import (
	"fmt"
	"math"
)

// InputSignal is a piecewise-constant signal over [0, TimeHorizon]. It is
// parameterized by ControlPoints values, one per equal-length interval, each
// bounded by [Min, Max].
type InputSignal struct {
	Name          string  `yaml:"name"`
	Min           float64 `yaml:"min"`
	Max           float64 `yaml:"max"`
	ControlPoints int     `yaml:"control_points"`
	TimeHorizon   float64 `yaml:"time_horizon,omitempty"`
}

// Validate checks the signal's shape.
func (s InputSignal) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("input signal has no name")
	}
	if s.Min > s.Max {
		return fmt.Errorf("input %s: min %s exceeds max %s", s.Name, formatFloat(s.Min), formatFloat(s.Max))
	}
	if s.ControlPoints < 1 {
		return fmt.Errorf("input %s: control_points must be at least 1", s.Name)
	}
	if s.TimeHorizon <= 0 {
		return fmt.Errorf("input %s: time horizon must be positive", s.Name)
	}
	return nil
}

// ControlParameterName returns the name of the i-th control parameter.
func (s InputSignal) ControlParameterName(i int) string {
	return fmt.Sprintf("%s_u%d", s.Name, i)
}

// ControlParameters returns one range parameter per control point, named
// {signal}_u0 ... {signal}_u{n-1}.
func (s InputSignal) ControlParameters() []Parameter {
	params := make([]Parameter, s.ControlPoints)
	for i := range params {
		params[i] = &RangeParameter{
			name:  s.ControlParameterName(i),
			lower: s.Min,
			upper: s.Max,
			def:   (s.Min + s.Max) / 2,
		}
	}
	return params
}

// TimePoints returns the start time of each interval: T*i/n for i < n.
func (s InputSignal) TimePoints() []float64 {
	points := make([]float64, s.ControlPoints)
	for i := range points {
		points[i] = s.TimeHorizon * float64(i) / float64(s.ControlPoints)
	}
	return points
}

// Sample evaluates the signal at each of times using the control values in
// v. A time takes the value of the interval containing it; times before 0 or
// past the horizon take the first or last value. A nil times samples at
// TimePoints.
func (s InputSignal) Sample(v *Valuation, times []float64) ([]float64, error) {
	controls := make([]float64, s.ControlPoints)
	for i := range controls {
		val, err := v.Get(s.ControlParameterName(i))
		if err != nil {
			return nil, err
		}
		controls[i] = val
	}
	if times == nil {
		times = s.TimePoints()
	}

	out := make([]float64, len(times))
	for i, t := range times {
		out[i] = controls[s.interval(t)]
	}
	return out, nil
}

// interval returns the index of the control interval containing t.
func (s InputSignal) interval(t float64) int {
	n := s.ControlPoints
	if n <= 1 || s.TimeHorizon <= 0 {
		return 0
	}
	idx := int(math.Floor(t * float64(n) / s.TimeHorizon))
	// Guard against t*n/T rounding just below an interval start.
	for idx+1 < n && s.TimeHorizon*float64(idx+1)/float64(n) <= t {
		idx++
	}
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}
