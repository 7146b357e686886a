// Package simulation runs simulation models through an engine handle.
package simulation

import (
	"context"
	"fmt"
	"math"

	"github.com/matlock-dev/matlock/internal/engine"
	"github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/logging"
	"github.com/matlock-dev/matlock/internal/model"
)

// simNargout is the number of values requested from sim: time vector, final
// state and output matrix.
const simNargout = 3

// Model is a simulation model loaded in an engine session. A Model must not
// outlive the connection its handle belongs to.
type Model struct {
	handle   engine.Handle
	def      *model.Definition
	logger   *logging.Logger
	opts     any
	defaults *model.Valuation
}

// NewModel binds def to h and fetches the model's simulation options from
// the engine once.
func NewModel(ctx context.Context, h engine.Handle, def *model.Definition, logger *logging.Logger) (*Model, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	defaults, err := def.DefaultValuation()
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", def.Name, err)
	}

	res, err := h.Call(ctx, "simget", []any{def.Name}, 1)
	if err != nil {
		return nil, errors.NewSimulationError(def.Name, errors.Wrap(err, "failed to read simulation options"))
	}
	var opts any
	if len(res.Outputs) > 0 {
		opts = res.Outputs[0]
	}

	return &Model{
		handle:   h,
		def:      def,
		logger:   logger.WithComponent("simulation").With("model", def.Name),
		opts:     opts,
		defaults: defaults,
	}, nil
}

// Definition returns the model definition.
func (m *Model) Definition() *model.Definition {
	return m.def
}

// DefaultValuation returns a fresh copy of the default valuation of every
// control parameter.
func (m *Model) DefaultValuation() *model.Valuation {
	return m.defaults.Clone()
}

// Simulate runs the model over [0, horizon] with v written over the default
// valuation; v may be nil or cover only some parameters. A horizon <= 0
// selects the definition's time horizon.
func (m *Model) Simulate(ctx context.Context, v *model.Valuation, horizon float64) (*Trace, error) {
	if math.IsNaN(horizon) || math.IsInf(horizon, 0) {
		return nil, fmt.Errorf("horizon %v is not a finite number: %w", horizon, errors.ErrInvalidValue)
	}
	if horizon <= 0 {
		horizon = m.def.TimeHorizon
	}

	full := m.defaults
	if v != nil {
		patched, err := m.defaults.Patch(v)
		if err != nil {
			return nil, err
		}
		full = patched
	}

	times := linspace(0, horizon, int(math.Floor(horizon/m.def.TimeStep)))
	input, err := m.inputMatrix(full, times)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("running simulation", "horizon", horizon, "samples", len(times))
	res, err := m.handle.Call(ctx, "sim", []any{m.def.Name, []float64{0, horizon}, m.opts, input}, simNargout)
	if err != nil {
		simErr := errors.NewSimulationError(m.def.Name, err)
		var callErr *engine.CallError
		if errors.As(err, &callErr) {
			m.logStdout(callErr.Stdout)
			simErr = simErr.WithStdout(callErr.Stdout)
		}
		return nil, simErr
	}
	m.logStdout(res.Stdout)

	return m.trace(res)
}

// inputMatrix builds one row [t, u1(t), u2(t), ...] per sample time.
func (m *Model) inputMatrix(v *model.Valuation, times []float64) ([][]float64, error) {
	rows := make([][]float64, len(times))
	for i, t := range times {
		rows[i] = make([]float64, 1+len(m.def.Inputs))
		rows[i][0] = t
	}

	for j, signal := range m.def.Inputs {
		values, err := signal.Sample(v, times)
		if err != nil {
			return nil, err
		}
		for i, u := range values {
			rows[i][j+1] = u
		}
	}
	return rows, nil
}

func (m *Model) trace(res engine.Result) (*Trace, error) {
	if len(res.Outputs) < simNargout {
		return nil, errors.NewSimulationError(m.def.Name,
			fmt.Errorf("engine returned %d outputs, want %d", len(res.Outputs), simNargout))
	}

	times, err := engine.Float64s(res.Outputs[0])
	if err != nil {
		return nil, errors.NewSimulationError(m.def.Name, errors.Wrap(err, "malformed time vector"))
	}
	rows, err := engine.Matrix(res.Outputs[2])
	if err != nil {
		return nil, errors.NewSimulationError(m.def.Name, errors.Wrap(err, "malformed output matrix"))
	}

	trace, err := NewTrace(times, m.def.Outputs, rows)
	if err != nil {
		return nil, errors.NewSimulationError(m.def.Name, err)
	}
	return trace, nil
}

func (m *Model) logStdout(out string) {
	if out != "" {
		m.logger.Debug("engine stdout", "stdout", out)
	}
}

// linspace returns n evenly spaced values from start to stop inclusive.
func linspace(start, stop float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
