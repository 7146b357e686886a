package simulation

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Trace is the output of one simulation: a value per output variable at
// each time step.
type Trace struct {
	TimeSteps []float64
	Variables []string
	columns   [][]float64
}

// NewTrace builds a trace from row-major data with one row per time step and
// one column per variable.
func NewTrace(times []float64, variables []string, rows [][]float64) (*Trace, error) {
	if len(rows) != len(times) {
		return nil, fmt.Errorf("trace has %d rows for %d time steps", len(rows), len(times))
	}

	columns := make([][]float64, len(variables))
	for j := range columns {
		columns[j] = make([]float64, len(times))
	}
	for i, row := range rows {
		if len(row) != len(variables) {
			return nil, fmt.Errorf("trace row %d has %d values for %d variables", i, len(row), len(variables))
		}
		for j, v := range row {
			columns[j][i] = v
		}
	}

	return &Trace{
		TimeSteps: times,
		Variables: variables,
		columns:   columns,
	}, nil
}

// Len returns the number of time steps.
func (t *Trace) Len() int {
	return len(t.TimeSteps)
}

// Column returns the values of variable name over time.
func (t *Trace) Column(name string) ([]float64, error) {
	for j, v := range t.Variables {
		if v == name {
			return t.columns[j], nil
		}
	}
	return nil, fmt.Errorf("variable %s not found in trace", name)
}

// WriteCSV writes a header row ("time" followed by the variable names) and
// one row per time step.
func (t *Trace) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := append([]string{"time"}, t.Variables...)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for i, ts := range t.TimeSteps {
		record[0] = formatFloat(ts)
		for j := range t.Variables {
			record[j+1] = formatFloat(t.columns[j][i])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
