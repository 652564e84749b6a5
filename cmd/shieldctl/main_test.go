package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"shieldcore/internal/core"
	"shieldcore/internal/solver"
	"shieldcore/pkg/domain"
)

type stubSolver struct {
	calls int
	args  []string
	exit  int
}

func (s *stubSolver) Run(_ context.Context, _ string, args []string) (solver.Result, error) {
	s.calls++
	s.args = args
	return solver.Result{Args: args, ExitCode: s.exit}, nil
}

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SHIELDCORE_STORAGE_DRIVER", "file")
	t.Setenv("SHIELDCORE_DOCUMENT_PATH", filepath.Join(dir, "shield.yaml"))
	t.Setenv("SHIELDCORE_BLOB_DRIVER", "fs")
	t.Setenv("SHIELDCORE_BLOB_ROOT", filepath.Join(dir, "blobs"))
	t.Setenv("SHIELDCORE_LOG_MODE", "prod")
	return dir
}

func run(t *testing.T, opts []core.ServiceOption, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(args, &stdout, &stderr, opts...)
	return code, stdout.String(), stderr.String()
}

func TestProposeApplyRoundTrip(t *testing.T) {
	setupEnv(t)

	code, out, errOut := run(t, nil, "propose", "body", "-d", `{name: wall, type: SPH, center: "0 0 0", radius: 50}`)
	require.Equal(t, 0, code, errOut)
	var change domain.PendingChange
	require.NoError(t, yaml.Unmarshal([]byte(out), &change))
	assert.Equal(t, domain.ActionPropose, change.Action)
	assert.Equal(t, "wall", change.Name)

	code, _, errOut = run(t, nil, "propose", "zone", "-d", `{body_name: wall, material: CONCRETE, density: 2.3}`)
	require.Equal(t, 0, code, errOut)

	code, out, _ = run(t, nil, "pending", "--format", "json")
	require.Equal(t, 0, code)
	var pending []domain.PendingChange
	require.NoError(t, json.Unmarshal([]byte(out), &pending))
	require.Len(t, pending, 2)
	assert.Equal(t, domain.EntityZone, pending[1].Entity)

	code, out, errOut = run(t, nil, "apply")
	require.Equal(t, 0, code, errOut)
	var applied core.ApplyResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &applied))
	assert.Equal(t, core.ApplyStatusApplied, applied.Status)
	assert.Equal(t, 2, applied.Applied)

	code, out, _ = run(t, nil, "show")
	require.Equal(t, 0, code)
	var doc domain.Document
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Bodies, 1)
	require.Len(t, doc.Zones, 2)
	assert.Equal(t, domain.AtmosphereZone, doc.Zones[0].BodyName)
	assert.Equal(t, "wall", doc.Zones[1].BodyName)
	assert.Equal(t, "CONCRETE", doc.Zones[1].Material)

	code, out, _ = run(t, nil, "pending")
	require.Equal(t, 0, code)
	assert.Equal(t, "[]\n", out)
}

func TestBackupsListAndShow(t *testing.T) {
	setupEnv(t)
	run(t, nil, "propose", "body", "-d", `{name: wall, type: SPH, center: "0 0 0", radius: 50}`)
	code, _, errOut := run(t, nil, "apply")
	require.Equal(t, 0, code, errOut)
	run(t, nil, "propose", "body", "-d", `{name: door, type: SPH, center: "200 0 0", radius: 10}`)
	code, _, errOut = run(t, nil, "apply")
	require.Equal(t, 0, code, errOut)

	code, out, errOut := run(t, nil, "backups", "--format", "json")
	require.Equal(t, 0, code, errOut)
	var objs []struct {
		Key    string `json:"key"`
		SHA256 string `json:"sha256"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &objs))
	require.Len(t, objs, 2)
	assert.NotEmpty(t, objs[0].SHA256)

	code, out, errOut = run(t, nil, "backups", "--latest")
	require.Equal(t, 0, code, errOut)
	var doc domain.Document
	require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Bodies, 1)
	assert.Equal(t, "wall", doc.Bodies[0].Name)

	code, _, errOut = run(t, nil, "backups", "--show", objs[1].Key)
	require.Equal(t, 0, code, errOut)

	code, _, errOut = run(t, nil, "backups", "--show", "backups/nope.yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "not found")
}

func TestDeleteReferencedBodyFails(t *testing.T) {
	setupEnv(t)
	run(t, nil, "propose", "body", "-d", `{name: wall, type: SPH, center: "0 0 0", radius: 50}`)
	run(t, nil, "propose", "zone", "-d", `{body_name: wall, material: CONCRETE, density: 2.3}`)

	code, _, errOut := run(t, nil, "delete", "body", "wall")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "zone:wall")
}

func TestPayloadArguments(t *testing.T) {
	setupEnv(t)

	code, _, errOut := run(t, nil, "propose", "reactor", "-d", "{name: x}")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown entity type")

	code, _, errOut = run(t, nil, "propose", "body")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "payload is required")

	code, _, errOut = run(t, nil, "units", "length")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "key=unit")
}

func TestUnitsPrintsConversionFactors(t *testing.T) {
	setupEnv(t)
	code, out, errOut := run(t, nil, "units", "length=m")
	require.Equal(t, 0, code, errOut)
	var factors struct {
		Factors map[string]float64 `yaml:"factors"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &factors))
	assert.InDelta(t, 0.01, factors.Factors["length"], 1e-12)
}

func TestCalculateBlocksOnDaughters(t *testing.T) {
	setupEnv(t)
	stub := &stubSolver{}
	opts := []core.ServiceOption{core.WithSolver(stub)}

	code, _, errOut := run(t, opts, "propose", "source", "-d",
		`{name: cs, type: POINT, position: "0 0 0", cutoff_rate: 0.01, inventory: [{nuclide: Cs137, radioactivity: 1.0e9}]}`)
	require.Equal(t, 0, code, errOut)
	code, _, errOut = run(t, opts, "apply")
	require.Equal(t, 0, code, errOut)

	code, out, _ := run(t, opts, "calculate")
	assert.Equal(t, exitBlocked, code)
	assert.Contains(t, out, "blocked")
	assert.Zero(t, stub.calls)

	code, _, errOut = run(t, opts, "calculate", "--reject-daughters", "--summary", "--", "--threads", "4")
	require.Equal(t, 0, code, errOut)
	require.Equal(t, 1, stub.calls)
	assert.Equal(t, []string{"--summary", "--threads", "4"}, stub.args[1:])
}

func TestCalculatePropagatesSolverExitCode(t *testing.T) {
	setupEnv(t)
	stub := &stubSolver{exit: 3}
	code, _, _ := run(t, []core.ServiceOption{core.WithSolver(stub)}, "calculate")
	assert.Equal(t, 3, code)
	assert.Equal(t, 1, stub.calls)
}

func TestDaughtersConfirmStagesInventory(t *testing.T) {
	setupEnv(t)
	run(t, nil, "propose", "source", "-d",
		`{name: cs, type: POINT, position: "0 0 0", cutoff_rate: 0.01, inventory: [{nuclide: Cs137, radioactivity: 1.0e9}]}`)

	code, out, errOut := run(t, nil, "daughters", "cs")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Ba137m")

	code, _, errOut = run(t, nil, "daughters", "cs", "--modify", "Ba137m=5e8")
	require.Equal(t, 0, code, errOut)

	code, out, _ = run(t, nil, "show", "--staged", "--format", "json")
	require.Equal(t, 0, code)
	var doc domain.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Sources, 1)
	require.Len(t, doc.Sources[0].Inventory, 2)
	assert.Equal(t, 5e8, doc.Sources[0].Inventory[1].Activity)

	_, _, errOut = run(t, nil, "daughters", "cs", "--modify", "Ba137m")
	assert.Contains(t, errOut, "nuclide=activity")
}

func TestCollisionResolutionStagesChanges(t *testing.T) {
	setupEnv(t)
	for _, args := range [][]string{
		{"propose", "body", "-d", `{name: a, type: SPH, center: "0 0 0", radius: 10}`},
		{"propose", "body", "-d", `{name: b, type: SPH, center: "5 0 0", radius: 10}`},
		{"propose", "zone", "-d", `{body_name: a, material: CONCRETE, density: 2.3}`},
		{"propose", "zone", "-d", `{body_name: b, material: WATER, density: 1.0}`},
		{"apply"},
	} {
		code, _, errOut := run(t, nil, args...)
		require.Equal(t, 0, code, errOut)
	}

	code, _, _ := run(t, nil, "validate", "--calculation")
	assert.Equal(t, exitBlocked, code)

	code, out, errOut := run(t, nil, "collisions", "--format", "json")
	require.Equal(t, 0, code, errOut)
	var report struct {
		Collisions []json.RawMessage `json:"collisions"`
		Proposals  []json.RawMessage `json:"proposals"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Collisions, 1)
	require.NotEmpty(t, report.Proposals)

	code, _, errOut = run(t, nil, "collisions", "--resolve", "99")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "out of range")

	code, _, errOut = run(t, nil, "collisions", "--resolve", "0")
	require.Equal(t, 0, code, errOut)
	code, out, _ = run(t, nil, "pending", "--format", "json")
	require.Equal(t, 0, code)
	var pending []domain.PendingChange
	require.NoError(t, json.Unmarshal([]byte(out), &pending))
	assert.Len(t, pending, 2)
}

func TestMetricsAndTraceGoToStderr(t *testing.T) {
	setupEnv(t)
	code, _, errOut := run(t, nil, "--metrics", "--trace", "discard")
	require.Equal(t, 0, code)
	assert.Contains(t, errOut, `"operation":"discard_pending"`)
	assert.Contains(t, errOut, "shieldcore_service_operations_total")
	assert.Contains(t, errOut, "shieldcore_changelog_pending_changes")
}

func TestUnknownFormat(t *testing.T) {
	setupEnv(t)
	code, _, errOut := run(t, nil, "--format", "xml", "pending")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown output format")
}
