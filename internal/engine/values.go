package engine

import (
	"encoding/json"
	"fmt"
)

// Float64s converts an engine output holding a numeric vector into a slice.
// Row vectors, column vectors (n x 1 matrices) and scalars are accepted.
func Float64s(v any) ([]float64, error) {
	switch x := v.(type) {
	case []float64:
		return x, nil
	case [][]float64:
		out := make([]float64, 0, len(x))
		for i, row := range x {
			if len(row) != 1 {
				return nil, fmt.Errorf("row %d has %d columns, want a vector", i, len(row))
			}
			out = append(out, row[0])
		}
		return out, nil
	case []any:
		out := make([]float64, 0, len(x))
		for i, elem := range x {
			if row, ok := elem.([]any); ok {
				if len(row) != 1 {
					return nil, fmt.Errorf("row %d has %d columns, want a vector", i, len(row))
				}
				elem = row[0]
			}
			f, err := toFloat64(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out = append(out, f)
		}
		return out, nil
	default:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	}
}

// Matrix converts an engine output holding a rows x cols numeric matrix.
// A flat vector is treated as a single column.
func Matrix(v any) ([][]float64, error) {
	switch x := v.(type) {
	case [][]float64:
		return x, nil
	case []float64:
		out := make([][]float64, len(x))
		for i, f := range x {
			out[i] = []float64{f}
		}
		return out, nil
	case []any:
		out := make([][]float64, len(x))
		for i, elem := range x {
			row, ok := elem.([]any)
			if !ok {
				f, err := toFloat64(elem)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", i, err)
				}
				out[i] = []float64{f}
				continue
			}
			out[i] = make([]float64, len(row))
			for j, cell := range row {
				f, err := toFloat64(cell)
				if err != nil {
					return nil, fmt.Errorf("row %d column %d: %w", i, j, err)
				}
				out[i][j] = f
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported matrix value %T", v)
	}
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}
