package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/matlock-dev/matlock/internal/errors"
)

// DefaultTimeStep is the sampling step used when a definition sets none.
const DefaultTimeStep = 0.1

// ParameterSpec is the YAML form of a model parameter. Exactly one of Value
// (static) or Min and Max (range) must be set.
type ParameterSpec struct {
	Name    string   `yaml:"name"`
	Value   *float64 `yaml:"value,omitempty"`
	Min     *float64 `yaml:"min,omitempty"`
	Max     *float64 `yaml:"max,omitempty"`
	Default *float64 `yaml:"default,omitempty"`
}

// Parameter builds the parameter p describes.
func (p ParameterSpec) Parameter() (Parameter, error) {
	if p.Name == "" {
		return nil, fmt.Errorf("parameter has no name")
	}
	switch {
	case p.Value != nil:
		if p.Min != nil || p.Max != nil {
			return nil, fmt.Errorf("parameter %s: value cannot be combined with min/max", p.Name)
		}
		return NewStaticParameter(p.Name, *p.Value), nil
	case p.Min != nil && p.Max != nil:
		if p.Default != nil {
			return NewRangeParameterWithDefault(p.Name, *p.Min, *p.Max, *p.Default)
		}
		return NewRangeParameter(p.Name, *p.Min, *p.Max)
	default:
		return nil, fmt.Errorf("parameter %s: set either value or both min and max", p.Name)
	}
}

// Definition describes a simulation model: its engine-side name, default
// horizon and step, tunable parameters, input signals and output variables.
type Definition struct {
	Name        string          `yaml:"name"`
	TimeHorizon float64         `yaml:"time_horizon"`
	TimeStep    float64         `yaml:"time_step,omitempty"`
	Parameters  []ParameterSpec `yaml:"parameters,omitempty"`
	Inputs      []InputSignal   `yaml:"inputs,omitempty"`
	Outputs     []string        `yaml:"outputs"`
}

// LoadDefinition reads and validates a YAML model definition.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model definition: %w", err)
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseDefinition decodes and validates a YAML model definition. Missing
// time steps and control point counts take their defaults, and every input
// signal inherits the model's time horizon.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse model definition: %w", err)
	}

	if def.TimeStep == 0 {
		def.TimeStep = DefaultTimeStep
	}
	for i := range def.Inputs {
		if def.Inputs[i].ControlPoints == 0 {
			def.Inputs[i].ControlPoints = 1
		}
		def.Inputs[i].TimeHorizon = def.TimeHorizon
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate reports every problem with the definition.
func (d *Definition) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, fmt.Errorf("model name is required"))
	}
	if d.TimeHorizon <= 0 {
		errs = append(errs, fmt.Errorf("time_horizon must be positive"))
	}
	if d.TimeStep <= 0 {
		errs = append(errs, fmt.Errorf("time_step must be positive"))
	}
	if len(d.Outputs) == 0 {
		errs = append(errs, fmt.Errorf("at least one output is required"))
	}
	for _, p := range d.Parameters {
		if _, err := p.Parameter(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, in := range d.Inputs {
		if err := in.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		if _, err := d.ControlParameters(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ModelParameters returns the model's own parameters, excluding the
// control parameters of its input signals.
func (d *Definition) ModelParameters() ([]Parameter, error) {
	params := make([]Parameter, 0, len(d.Parameters))
	for _, spec := range d.Parameters {
		p, err := spec.Parameter()
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

// ControlParameters returns the model parameters followed by each input
// signal's control parameters. Names must be unique.
func (d *Definition) ControlParameters() ([]Parameter, error) {
	params, err := d.ModelParameters()
	if err != nil {
		return nil, err
	}
	for _, in := range d.Inputs {
		params = append(params, in.ControlParameters()...)
	}

	seen := make(map[string]bool, len(params))
	for _, p := range params {
		if seen[p.Name()] {
			return nil, fmt.Errorf("duplicate parameter name %q", p.Name())
		}
		seen[p.Name()] = true
	}
	return params, nil
}

// DefaultValuation returns every control parameter at its default.
func (d *Definition) DefaultValuation() (*Valuation, error) {
	params, err := d.ControlParameters()
	if err != nil {
		return nil, err
	}
	return DefaultValuation(params)
}

// Input returns the input signal called name.
func (d *Definition) Input(name string) (InputSignal, error) {
	for _, in := range d.Inputs {
		if in.Name == name {
			return in, nil
		}
	}
	return InputSignal{}, fmt.Errorf("input signal %s not found", name)
}
