package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shieldcore/internal/core"
	"shieldcore/internal/solver"
	"shieldcore/pkg/domain"
)

// exitBlocked is returned when a verdict does not pass.
const exitBlocked = 2

func verdictError(v core.Verdict) error {
	if v.Status == core.VerdictPassed {
		return nil
	}
	return &exitError{code: exitBlocked, msg: fmt.Sprintf("validation %s: %d must-resolve finding(s)", v.Status, len(v.MustResolve))}
}

func newValidateCmd(a *app) *cobra.Command {
	var calculation bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the validation rules",
		Long: `Without flags the staged document is validated as it would be committed.
With --calculation the committed document is checked for everything the
solver needs: rules, zone collisions and unconfirmed daughter nuclides.

The command exits with status 2 when the verdict is blocked or failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				var (
					v   core.Verdict
					err error
				)
				if calculation {
					v, err = svc.PreCalculationValidation(ctx)
				} else {
					v, err = svc.PreCommitValidation(ctx)
				}
				if err != nil {
					return err
				}
				if err := a.print(v); err != nil {
					return err
				}
				return verdictError(v)
			})
		},
	}
	cmd.Flags().BoolVar(&calculation, "calculation", false, "Validate the committed document for a calculation")
	return cmd
}

func newCollisionsCmd(a *app) *cobra.Command {
	var resolve int
	cmd := &cobra.Command{
		Use:   "collisions",
		Short: "Detect overlapping zones and optionally stage a resolution",
		Long: `List colliding, touching and unclassified zone pairs of the committed
document together with resolution proposals. --resolve N stages proposal N
(zero based) as pending changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				report, err := svc.DetectCollisions(ctx)
				if err != nil {
					return err
				}
				if resolve < 0 {
					return a.print(report)
				}
				if resolve >= len(report.Proposals) {
					return fmt.Errorf("proposal %d out of range (%d available)", resolve, len(report.Proposals))
				}
				changes, err := svc.ApplyResolution(ctx, report.Proposals[resolve])
				if err != nil {
					return err
				}
				return a.print(changes)
			})
		},
	}
	cmd.Flags().IntVar(&resolve, "resolve", -1, "Stage the proposal with this index")
	return cmd
}

func newDaughtersCmd(a *app) *cobra.Command {
	var (
		confirm []string
		reject  []string
		modify  []string
	)
	cmd := &cobra.Command{
		Use:   "daughters <source>",
		Short: "Review or resolve daughter nuclides of a source",
		Example: `  shieldctl daughters cs
  shieldctl daughters cs --confirm Ba137m
  shieldctl daughters cs --modify Ba137m=3.4e10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			decisions, err := daughterDecisions(confirm, reject, modify)
			if err != nil {
				return err
			}
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				if len(decisions) == 0 {
					review, err := svc.CompleteDaughters(ctx, args[0])
					if err != nil {
						return err
					}
					return a.print(review)
				}
				res, err := svc.ResolveDaughters(ctx, args[0], decisions)
				if err != nil {
					return err
				}
				return a.print(res)
			})
		},
	}
	cmd.Flags().StringSliceVar(&confirm, "confirm", nil, "Confirm proposed daughters")
	cmd.Flags().StringSliceVar(&reject, "reject", nil, "Reject proposed daughters")
	cmd.Flags().StringSliceVar(&modify, "modify", nil, "Confirm a daughter with another activity (nuclide=Bq)")
	return cmd
}

func daughterDecisions(confirm, reject, modify []string) ([]core.DaughterDecision, error) {
	out := make([]core.DaughterDecision, 0, len(confirm)+len(reject)+len(modify))
	for _, n := range confirm {
		out = append(out, core.DaughterDecision{Nuclide: n, Action: core.DaughterConfirm})
	}
	for _, n := range reject {
		out = append(out, core.DaughterDecision{Nuclide: n, Action: core.DaughterReject})
	}
	for _, m := range modify {
		n, raw, ok := strings.Cut(m, "=")
		if !ok {
			return nil, fmt.Errorf("expected nuclide=activity, got %q", m)
		}
		activity, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("activity of %s: %w", n, err)
		}
		out = append(out, core.DaughterDecision{Nuclide: n, Action: core.DaughterModify, Activity: activity})
	}
	return out, nil
}

func newCalculateCmd(a *app) *cobra.Command {
	var (
		opts            solver.Options
		rejectDaughters bool
	)
	cmd := &cobra.Command{
		Use:   "calculate [-- solver-args...]",
		Short: "Validate the committed document and run the solver",
		Long: `Run pre-calculation validation and start the solver only when it passes.
Arguments after -- are passed to the solver unchanged. The command exits
with status 2 when validation blocks, and with the solver's exit code when
it fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Extra = args
			return a.withService(cmd.Context(), func(ctx context.Context, svc *core.Service) error {
				if rejectDaughters {
					if err := rejectAllDaughters(ctx, svc); err != nil {
						return err
					}
				}
				res, err := svc.Calculate(ctx, opts)
				if err != nil {
					return err
				}
				if err := a.print(res); err != nil {
					return err
				}
				if !res.Ran {
					return verdictError(res.Verdict)
				}
				if res.Solver.ExitCode != 0 {
					return &exitError{code: res.Solver.ExitCode, msg: res.String()}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.Summary, "summary", false, "Ask the solver for a summary")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Solver output file")
	cmd.Flags().BoolVar(&rejectDaughters, "reject-daughters", false, "Reject every proposed daughter nuclide before validating")
	return cmd
}

// rejectAllDaughters rejects the outstanding additions of every committed
// source. Rejections only last for the current process.
func rejectAllDaughters(ctx context.Context, svc *core.Service) error {
	for _, src := range svc.Document().Sources {
		review, err := svc.CompleteDaughters(ctx, src.Name)
		if errors.Is(err, domain.ErrNotFound) {
			// deleted by a pending change
			continue
		}
		if err != nil {
			return err
		}
		if len(review.Additions) == 0 {
			continue
		}
		decisions := make([]core.DaughterDecision, 0, len(review.Additions))
		for _, add := range review.Additions {
			decisions = append(decisions, core.DaughterDecision{Nuclide: add.Nuclide, Action: core.DaughterReject})
		}
		if _, err := svc.ResolveDaughters(ctx, src.Name, decisions); err != nil {
			return err
		}
	}
	return nil
}
