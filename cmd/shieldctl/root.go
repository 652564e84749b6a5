// Command shieldctl stages, validates and commits changes to a shielding
// configuration document.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"shieldcore/internal/core"
	"shieldcore/internal/platform/logger"
)

// app holds the global flags and the collaborators opened for one command.
type app struct {
	format  string
	trace   bool
	metrics bool

	out    io.Writer
	errOut io.Writer

	// opts are appended after the defaults; tests inject a solver runner here.
	opts []core.ServiceOption
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shieldctl",
		Short: "Stage and validate radiation shielding configurations",
		Long: `shieldctl edits a shielding configuration through a pending change log.

Changes are proposed, updated or deleted against the staged view and only
reach the committed document on apply. Validation, collision detection and
daughter nuclide completion run before a calculation is handed to the solver.

Configuration is read from SHIELDCORE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)

	rootCmd.PersistentFlags().StringVar(&a.format, "format", "yaml", "Output format: yaml, json")
	rootCmd.PersistentFlags().BoolVar(&a.trace, "trace", false, "Write JSON trace spans to stderr")
	rootCmd.PersistentFlags().BoolVar(&a.metrics, "metrics", false, "Dump Prometheus metrics to stderr on exit")

	rootCmd.AddCommand(
		newProposeCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newUnitsCmd(a),
		newBuildupCmd(a),
		newPendingCmd(a),
		newDiscardCmd(a),
		newApplyCmd(a),
		newShowCmd(a),
		newBackupsCmd(a),
		newValidateCmd(a),
		newCollisionsCmd(a),
		newDaughtersCmd(a),
		newCalculateCmd(a),
	)
	return rootCmd
}

// withService opens the configured backend, runs fn and closes everything.
func (a *app) withService(ctx context.Context, fn func(context.Context, *core.Service) error) (err error) {
	cfg, err := core.LoadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	backend, err := core.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	backups, err := core.OpenBackups(ctx, cfg)
	if err != nil {
		_ = backend.Close()
		return err
	}

	reg := prometheus.NewRegistry()
	opts := []core.ServiceOption{
		core.WithLogger(log),
		core.WithAuditRecorder(core.LogAuditRecorder{Logger: log}),
		core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(reg)),
		core.WithBackups(backups),
	}
	if a.trace {
		opts = append(opts, core.WithTracer(core.NewJSONTracer(a.errOut)))
	}
	opts = append(opts, a.opts...)

	svc, err := core.NewService(ctx, backend, cfg, opts...)
	if err != nil {
		_ = backend.Close()
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if a.metrics {
			if merr := dumpMetrics(a.errOut, reg); merr != nil && err == nil {
				err = merr
			}
		}
	}()
	return fn(ctx, svc)
}

func dumpMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// print renders v in the selected output format.
func (a *app) print(v any) error {
	switch a.format {
	case "json":
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "":
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", a.format)
	}
}

// exitError carries a non-zero exit status for outcomes that are not failures
// of the command itself, such as a blocked verdict.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func execute(args []string, stdout, stderr io.Writer, opts ...core.ServiceOption) int {
	a := &app{out: stdout, errOut: stderr, opts: opts}
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
