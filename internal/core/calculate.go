package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"shieldcore/internal/solver"
	"shieldcore/pkg/domain"
)

// CalculationResult reports a Calculate call. Solver is nil when the
// verdict did not pass and the solver was not started.
type CalculationResult struct {
	Verdict Verdict        `json:"verdict" yaml:"verdict"`
	Ran     bool           `json:"ran" yaml:"ran"`
	Solver  *solver.Result `json:"solver,omitempty" yaml:"solver,omitempty"`
}

// Calculate runs pre-calculation validation and, only when it passes, hands
// the committed document to the external solver. A blocked or failed verdict
// is returned without an error.
func (s *Service) Calculate(ctx context.Context, opts solver.Options) (CalculationResult, error) {
	var out CalculationResult
	err := s.run(ctx, "calculate", "", "", func(ctx context.Context) error {
		out.Verdict = s.preCalculation(ctx)
		if out.Verdict.Status != VerdictPassed {
			s.logger.Info("calculation not started", "status", out.Verdict.Status, "must_resolve", len(out.Verdict.MustResolve))
			return nil
		}
		path, cleanup, err := s.solverDocument(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		args, err := solver.Args(path, opts)
		if err != nil {
			return domain.Validationf(domain.CodeInvalidInput, "document", path, "%v", err)
		}
		s.logger.Info("solver started", "binary", s.cfg.SolverBinary, "args", args)
		res, err := s.solver.Run(ctx, s.cfg.SolverBinary, args)
		if err != nil {
			return domain.DataError(domain.CodeData, err, "run solver")
		}
		s.logger.Info("solver finished", "exit_code", res.ExitCode)
		out.Ran = true
		out.Solver = &res
		return nil
	})
	return out, err
}

// solverDocument returns a readable path to the committed document. Backends
// that keep the document in a file hand out that file; others get a
// temporary copy removed by cleanup.
func (s *Service) solverDocument(ctx context.Context) (string, func(), error) {
	doc := s.store.ExportDocument()
	if loc, ok := s.backend.(domain.DocumentLocator); ok && loc.DocumentPath() != "" {
		path := loc.DocumentPath()
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := s.backend.SaveDocument(ctx, doc); err != nil {
				return "", nil, domain.DataError(domain.CodePersistence, err, "write committed document")
			}
		} else if err != nil {
			return "", nil, domain.DataError(domain.CodePersistence, err, "stat committed document")
		}
		return path, func() {}, nil
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return "", nil, domain.DataError(domain.CodeData, err, "encode committed document")
	}
	f, err := os.CreateTemp("", "shieldcore-*.yaml")
	if err != nil {
		return "", nil, domain.DataError(domain.CodePersistence, err, "create solver document")
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, domain.DataError(domain.CodePersistence, err, "write solver document")
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, domain.DataError(domain.CodePersistence, err, "close solver document")
	}
	return f.Name(), cleanup, nil
}

// String summarises the calculation outcome.
func (r CalculationResult) String() string {
	if !r.Ran {
		return fmt.Sprintf("not started (%s)", r.Verdict.Status)
	}
	return fmt.Sprintf("solver exited with code %d", r.Solver.ExitCode)
}
