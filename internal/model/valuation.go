package model

import (
	"fmt"
	"sort"
	"strings"

	"github.com/matlock-dev/matlock/internal/errors"
)

// Valuation assigns one value to each of an ordered list of parameters.
// The order of Parameters and Values always matches.
type Valuation struct {
	params []Parameter
	values []float64
	index  map[string]int
}

// NewValuation pairs params with values. A nil values slice selects every
// parameter's default. Values are not validated; see Valid.
func NewValuation(params []Parameter, values []float64) (*Valuation, error) {
	if values == nil {
		values = make([]float64, len(params))
		for i, p := range params {
			values[i] = p.Default()
		}
	}
	if len(values) != len(params) {
		return nil, fmt.Errorf("valuation has %d values for %d parameters", len(values), len(params))
	}

	index := make(map[string]int, len(params))
	for i, p := range params {
		if _, dup := index[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", p.Name())
		}
		index[p.Name()] = i
	}

	return &Valuation{
		params: append([]Parameter(nil), params...),
		values: append([]float64(nil), values...),
		index:  index,
	}, nil
}

// DefaultValuation returns the valuation of params at their defaults.
func DefaultValuation(params []Parameter) (*Valuation, error) {
	return NewValuation(params, nil)
}

// Parameters returns the parameters in order.
func (v *Valuation) Parameters() []Parameter {
	return append([]Parameter(nil), v.params...)
}

// Values returns the values in parameter order.
func (v *Valuation) Values() []float64 {
	return append([]float64(nil), v.values...)
}

// Names returns the parameter names in order.
func (v *Valuation) Names() []string {
	names := make([]string, len(v.params))
	for i, p := range v.params {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of parameters.
func (v *Valuation) Len() int {
	return len(v.params)
}

// Parameter returns the parameter called name.
func (v *Valuation) Parameter(name string) (Parameter, error) {
	i, ok := v.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownParameter, name)
	}
	return v.params[i], nil
}

// Get returns the value of the parameter called name.
func (v *Valuation) Get(name string) (float64, error) {
	i, ok := v.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", errors.ErrUnknownParameter, name)
	}
	return v.values[i], nil
}

// Set assigns value to the parameter called name if the parameter accepts it.
func (v *Valuation) Set(name string, value float64) error {
	i, ok := v.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownParameter, name)
	}
	if !v.params[i].Validate(value) {
		return fmt.Errorf("%w: %s=%s", errors.ErrInvalidValue, name, formatFloat(value))
	}
	v.values[i] = value
	return nil
}

// Assign sets every name in values, in name order, stopping at the first
// failure.
func (v *Valuation) Assign(values map[string]float64) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := v.Set(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

// Filter returns a valuation restricted to params, in their order.
func (v *Valuation) Filter(params []Parameter) (*Valuation, error) {
	values := make([]float64, len(params))
	for i, p := range params {
		val, err := v.Get(p.Name())
		if err != nil {
			return nil, err
		}
		values[i] = val
	}
	return NewValuation(params, values)
}

// Patch returns a copy of v with every value of other written over it.
// other's parameters must be a subset of v's.
func (v *Valuation) Patch(other *Valuation) (*Valuation, error) {
	patched := v.Clone()
	for i, p := range other.params {
		if err := patched.Set(p.Name(), other.values[i]); err != nil {
			return nil, err
		}
	}
	return patched, nil
}

// Clone returns an independent copy. Parameters are shared.
func (v *Valuation) Clone() *Valuation {
	index := make(map[string]int, len(v.index))
	for k, i := range v.index {
		index[k] = i
	}
	return &Valuation{
		params: append([]Parameter(nil), v.params...),
		values: append([]float64(nil), v.values...),
		index:  index,
	}
}

// Valid reports whether every value is accepted by its parameter.
func (v *Valuation) Valid() bool {
	for i, p := range v.params {
		if !p.Validate(v.values[i]) {
			return false
		}
	}
	return true
}

// Map returns the valuation as a name to value map.
func (v *Valuation) Map() map[string]float64 {
	m := make(map[string]float64, len(v.params))
	for i, p := range v.params {
		m[p.Name()] = v.values[i]
	}
	return m
}

func (v *Valuation) String() string {
	parts := make([]string, len(v.params))
	for i, p := range v.params {
		parts[i] = p.Name() + "=" + formatFloat(v.values[i])
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
