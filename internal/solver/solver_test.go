package solver

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	args, err := Args("/tmp/shield.yaml", Options{Summary: true, Output: "out.txt", Extra: []string{"--quiet"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/tmp/shield.yaml", "--summary", "--output", "out.txt", "--quiet"}, args)

	args, err = Args("doc.yaml", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc.yaml"}, args)

	_, err = Args(" ", Options{})
	assert.Error(t, err)
}

func TestExecRunnerReportsExitCode(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("sh unavailable: %v", err)
	}
	res, err := ExecRunner{}.Run(context.Background(), sh, []string{"-c", "echo out; echo err 1>&2; exit 3"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "/nonexistent/shield-solver", nil)
	assert.Error(t, err)
}
