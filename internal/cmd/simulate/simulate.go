package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/matlock-dev/matlock/internal/cmd/output"
	"github.com/matlock-dev/matlock/internal/config"
	"github.com/matlock-dev/matlock/internal/engine"
	"github.com/matlock-dev/matlock/internal/errors"
	"github.com/matlock-dev/matlock/internal/model"
	"github.com/matlock-dev/matlock/internal/simulation"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <model>",
	Short: "Run a model simulation on a reserved session",
	Long: `Reserve an engine session, run one simulation of the model and release
the session again.

<model> is the path of a YAML model definition, or the name of a definition
in simulation.model_dir (e.g. "plant" for {model_dir}/plant.yaml).

Parameters and input control points ({input}_u0, {input}_u1, ...) keep their
defaults unless set:
  matlock simulate plant --set gain=2.5 --set u_u1=0.3 --horizon 20

The trace is written as CSV or YAML to stdout, or to --output.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

var (
	simSet     []string
	simHorizon float64
	simSession string
	simOutput  string
	simFormat  string
)

func init() {
	simulateCmd.Flags().StringArrayVar(&simSet, "set", nil, "Set a parameter as name=value (repeatable)")
	simulateCmd.Flags().Float64Var(&simHorizon, "horizon", 0, "Simulation horizon (default: the model's time_horizon)")
	simulateCmd.Flags().StringVarP(&simSession, "session", "s", "", "Session to reserve (default: first available)")
	simulateCmd.Flags().StringVarP(&simOutput, "output", "o", "", "Write the trace to a file instead of stdout")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "", "Trace format: csv or yaml (default: simulation.output_format)")
}

// resolveModel maps a model argument to a definition file. Arguments that
// look like paths are used as given; bare names are looked up in modelDir.
func resolveModel(arg, modelDir string) string {
	ext := filepath.Ext(arg)
	if strings.ContainsRune(arg, filepath.Separator) || ext == ".yaml" || ext == ".yml" {
		return arg
	}
	if modelDir == "" {
		modelDir = "."
	}
	return filepath.Join(modelDir, arg+".yaml")
}

// parseAssignments parses name=value pairs.
func parseAssignments(pairs []string) (map[string]float64, error) {
	values := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q: expected name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --set %q: %w", pair, err)
		}
		values[name] = v
	}
	return values, nil
}

// traceDocument is the YAML form of a simulation result.
type traceDocument struct {
	Model      string             `yaml:"model"`
	Session    string             `yaml:"session"`
	Parameters map[string]float64 `yaml:"parameters,omitempty"`
	Time       []float64          `yaml:"time"`
	Outputs    []traceOutput      `yaml:"outputs"`
}

type traceOutput struct {
	Name   string    `yaml:"name"`
	Values []float64 `yaml:"values"`
}

func writeTrace(w io.Writer, format string, doc traceDocument, trace *simulation.Trace) error {
	if format == "csv" {
		return trace.WriteCSV(w)
	}

	doc.Time = trace.TimeSteps
	for _, name := range trace.Variables {
		values, err := trace.Column(name)
		if err != nil {
			return err
		}
		doc.Outputs = append(doc.Outputs, traceOutput{Name: name, Values: values})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func runSimulate(cmd *cobra.Command, args []string) (err error) {
	app, err := loadApp()
	if err != nil {
		return err
	}
	defer app.Close()

	format := simFormat
	if format == "" {
		format = app.Config.Simulation.OutputFormat
	}
	if !slices.Contains(config.ValidOutputFormats(), format) {
		return fmt.Errorf("invalid format %q: must be one of: %s", format, strings.Join(config.ValidOutputFormats(), ", "))
	}

	def, err := model.LoadDefinition(resolveModel(args[0], app.Config.Simulation.ModelDir))
	if err != nil {
		return err
	}
	values, err := parseAssignments(simSet)
	if err != nil {
		return err
	}
	valuation, err := def.DefaultValuation()
	if err != nil {
		return err
	}
	if err := valuation.Assign(values); err != nil {
		return fmt.Errorf("model %s: %w", def.Name, err)
	}

	reserveCtx, cancel := app.Context(cmd.Context())
	mgr := app.Manager()
	err = mgr.UseSession(reserveCtx, simSession)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		if relErr := mgr.Release(context.Background()); relErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to release %s: %w", mgr.Session(), relErr))
		}
	}()

	var trace *simulation.Trace
	err = mgr.WithConnection(cmd.Context(), func(ctx context.Context, h engine.Handle) error {
		m, err := simulation.NewModel(ctx, h, def, app.Logger.WithSession(mgr.Session()))
		if err != nil {
			return err
		}
		trace, err = m.Simulate(ctx, valuation, simHorizon)
		return err
	})
	if err != nil {
		return err
	}

	doc := traceDocument{
		Model:      def.Name,
		Session:    mgr.Session(),
		Parameters: valuation.Map(),
	}
	if simOutput == "" {
		return writeTrace(cmd.OutOrStdout(), format, doc, trace)
	}

	f, err := os.Create(simOutput)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writeTrace(f, format, doc, trace); err != nil {
		f.Close()
		return fmt.Errorf("failed to write trace: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	output.NewPrinter(cmd.ErrOrStderr()).Successf("Wrote %d time steps to %s", trace.Len(), simOutput)
	return nil
}
