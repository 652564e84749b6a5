// Package solver formats arguments for the external calculation engine and
// runs it as an opaque subprocess. Its output is never parsed.
package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Options are the flags passed after the document path.
type Options struct {
	Summary bool
	Output  string
	Extra   []string
}

// Result is the outcome of one solver run. A non-zero exit code is a result,
// not an error.
type Result struct {
	Args     []string `json:"args" yaml:"args"`
	ExitCode int      `json:"exit_code" yaml:"exit_code"`
	Stdout   string   `json:"stdout" yaml:"stdout"`
	Stderr   string   `json:"stderr" yaml:"stderr"`
}

// Runner executes a binary with arguments.
type Runner interface {
	Run(ctx context.Context, binary string, args []string) (Result, error)
}

// Args builds the solver command line for a document path.
func Args(docPath string, opts Options) ([]string, error) {
	if strings.TrimSpace(docPath) == "" {
		return nil, fmt.Errorf("document path required")
	}
	args := []string{docPath}
	if opts.Summary {
		args = append(args, "--summary")
	}
	if opts.Output != "" {
		args = append(args, "--output", opts.Output)
	}
	return append(args, opts.Extra...), nil
}

// ExecRunner runs the solver with os/exec.
type ExecRunner struct{}

// Run starts binary and waits for it. Failing to start is an error; a
// process that exits non-zero is reported through Result.ExitCode.
func (ExecRunner) Run(ctx context.Context, binary string, args []string) (Result, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{Args: append([]string(nil), args...), Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("run solver %s: %w", binary, err)
	}
}
