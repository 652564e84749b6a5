package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldcore/internal/backup"
	"shieldcore/internal/blob"
	"shieldcore/internal/infra/persistence/memory"
	"shieldcore/pkg/domain"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("chg-%03d", n)
	}
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memory.Backend) {
	t.Helper()
	backend := memory.NewBackend()
	base := []ServiceOption{
		WithIDGenerator(sequentialIDs()),
		WithClock(ClockFunc(func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) })),
	}
	svc, err := NewService(context.Background(), backend, DefaultConfig(), append(base, opts...)...)
	require.NoError(t, err)
	return svc, backend
}

func sphere(name, center string, radius float64) map[string]any {
	return map[string]any{"name": name, "type": "SPH", "center": center, "radius": radius}
}

func zone(body, material string, density float64) map[string]any {
	return map[string]any{"body_name": body, "material": material, "density": density}
}

func pointSource(name, position, nuclide string, activity float64) map[string]any {
	return map[string]any{
		"name":        name,
		"type":        "POINT",
		"position":    position,
		"inventory":   []any{map[string]any{"nuclide": nuclide, "radioactivity": activity}},
		"cutoff_rate": 0.01,
	}
}

func detector(name, origin string) map[string]any {
	return map[string]any{"name": name, "origin": origin, "show_path_trace": false}
}

func mustPropose(t *testing.T, svc *Service, entity domain.EntityType, payload map[string]any) {
	t.Helper()
	_, err := svc.Propose(context.Background(), entity, payload)
	require.NoError(t, err)
}

func mustApply(t *testing.T, svc *Service) ApplyResult {
	t.Helper()
	res, err := svc.Apply(context.Background())
	require.NoError(t, err)
	return res
}

func TestNewServiceStartsFromDefaultDocument(t *testing.T) {
	svc, _ := newTestService(t)
	doc := svc.Document()
	assert.Equal(t, domain.DefaultUnits(), doc.Unit)
	require.Len(t, doc.Zones, 1)
	assert.Equal(t, domain.AtmosphereZone, doc.Zones[0].BodyName)
	assert.Empty(t, svc.Pending())
}

func TestNewServiceRequiresBackend(t *testing.T) {
	_, err := NewService(context.Background(), nil, DefaultConfig())
	require.Error(t, err)
}

func TestApplyEmptyLogIsNoop(t *testing.T) {
	rotator := backup.New(blob.NewMemory(), "shield.yaml", 3)
	svc, backend := newTestService(t, WithBackups(rotator))
	before := svc.Document()

	res := mustApply(t, svc)
	assert.Equal(t, ApplyStatusNothing, res.Status)
	assert.Zero(t, res.Applied)
	assert.Equal(t, before, svc.Document())
	assert.Zero(t, backend.DocumentSaves())

	infos, err := rotator.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestProposePersistsBeforeApply(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	change, err := svc.Propose(ctx, domain.EntitySolid, sphere("core", "0 0 0", 5))
	require.NoError(t, err)
	assert.Equal(t, "chg-001", change.ID)
	assert.Equal(t, domain.ActionPropose, change.Action)
	assert.Equal(t, "core", change.Name)

	logged, err := backend.LoadPending(ctx)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, change.ID, logged[0].ID)

	assert.Empty(t, svc.Document().Bodies, "committed document changes only on apply")
	staged, err := svc.StagedDocument()
	require.NoError(t, err)
	require.Len(t, staged.Bodies, 1)
}

func TestProposeRejectsNameTakenByPendingChange(t *testing.T) {
	svc, _ := newTestService(t)
	mustPropose(t, svc, domain.EntitySolid, sphere("core", "0 0 0", 5))

	_, err := svc.Propose(context.Background(), domain.EntitySolid, sphere("core", "1 0 0", 2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDuplicateName))
	assert.Len(t, svc.Pending(), 1)
}

func TestPendingDeleteFreesName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustPropose(t, svc, domain.EntitySolid, sphere("core", "0 0 0", 5))
	mustApply(t, svc)

	_, err := svc.Delete(ctx, domain.EntitySolid, "core")
	require.NoError(t, err)
	_, err = svc.Propose(ctx, domain.EntitySolid, sphere("core", "0 0 0", 7))
	require.NoError(t, err)

	mustApply(t, svc)
	doc := svc.Document()
	require.Len(t, doc.Bodies, 1)
	assert.Equal(t, 7.0, *doc.Bodies[0].Radius)
}

func TestUpdateRequiresExistingEntity(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Update(context.Background(), domain.EntitySolid, "ghost", map[string]any{"radius": 3.0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLaterChangesOverrideEarlierOnes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustPropose(t, svc, domain.EntitySolid, sphere("core", "0 0 0", 5))
	_, err := svc.Update(ctx, domain.EntitySolid, "core", map[string]any{"radius": 6.0})
	require.NoError(t, err)
	_, err = svc.Update(ctx, domain.EntitySolid, "core", map[string]any{"radius": 8.0})
	require.NoError(t, err)

	res := mustApply(t, svc)
	assert.Equal(t, ApplyStatusApplied, res.Status)
	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, 8.0, *svc.Document().Bodies[0].Radius)
	assert.Empty(t, svc.Pending())
}

func TestUpdateCannotRename(t *testing.T) {
	svc, _ := newTestService(t)
	mustPropose(t, svc, domain.EntitySolid, sphere("core", "0 0 0", 5))
	_, err := svc.Update(context.Background(), domain.EntitySolid, "core", map[string]any{"name": "other"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestDeleteSolidBlockedByZoneThenAllowed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustPropose(t, svc, domain.EntitySolid, sphere("wall", "0 0 0", 50))
	mustPropose(t, svc, domain.EntityZone, zone("wall", "CONCRETE", 2.3))
	mustApply(t, svc)

	_, err := svc.Delete(ctx, domain.EntitySolid, "wall")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDependency))
	derr, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Contains(t, derr.Dependents, "zone:wall")
	assert.Empty(t, svc.Pending())

	_, err = svc.Delete(ctx, domain.EntityZone, "wall")
	require.NoError(t, err)
	mustApply(t, svc)
	_, err = svc.Delete(ctx, domain.EntitySolid, "wall")
	require.NoError(t, err)
	mustApply(t, svc)
	assert.Empty(t, svc.Document().Bodies)
}

func TestZoneDensityCoupling(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustPropose(t, svc, domain.EntitySolid, sphere("wall", "0 0 0", 50))

	_, err := svc.Propose(ctx, domain.EntityZone, zone("wall", domain.MaterialVoid, 5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.Propose(ctx, domain.EntityZone, map[string]any{"body_name": "wall", "material": "CONCRETE"})
	require.Error(t, err)

	_, err = svc.Propose(ctx, domain.EntityZone, zone("wall", "CONCRETE", 2.3))
	require.NoError(t, err)
}

func TestProposeRejectsUnknownFields(t *testing.T) {
	svc, _ := newTestService(t)
	payload := sphere("core", "0 0 0", 5)
	payload["colour"] = "red"
	_, err := svc.Propose(context.Background(), domain.EntitySolid, payload)
	require.Error(t, err)
	derr, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidInput, derr.Code)
}

func TestZoneBodyRebind(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	mustPropose(t, svc, domain.EntitySolid, sphere("a", "0 0 0", 5))
	mustPropose(t, svc, domain.EntitySolid, sphere("b", "100 0 0", 5))
	mustPropose(t, svc, domain.EntityZone, zone("a", "LEAD", 11.3))
	_, err := svc.Update(ctx, domain.EntityZone, "a", map[string]any{"body_name": "b", "density": 11.2})
	require.NoError(t, err)
	mustApply(t, svc)

	doc := svc.Document()
	var found *domain.Zone
	for i := range doc.Zones {
		if doc.Zones[i].BodyName == "b" {
			found = &doc.Zones[i]
		}
		assert.NotEqual(t, "a", doc.Zones[i].BodyName)
	}
	require.NotNil(t, found)
	assert.Equal(t, 11.2, *found.Density)
}

func TestUpdateUnitsReturnsFactors(t *testing.T) {
	svc, _ := newTestService(t)
	factors, err := svc.UpdateUnits(context.Background(), map[string]string{"length": "m"})
	require.NoError(t, err)
	assert.False(t, factors.Identity)
	assert.InDelta(t, 0.01, factors.Factors["length"], 1e-12)

	staged, err := svc.StagedDocument()
	require.NoError(t, err)
	assert.Len(t, staged.Unit, 4)
	assert.Equal(t, "m", staged.Unit["length"])
	assert.Equal(t, "degree", staged.Unit["angle"])

	_, err = svc.UpdateUnits(context.Background(), map[string]string{"speed": "m/s"})
	require.Error(t, err)
	assert.Len(t, svc.Pending(), 1)
}

func TestBuildupFactorOrdering(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	for _, m := range []string{"LEAD", "CONCRETE"} {
		mustPropose(t, svc, domain.EntityBuildupFactor, map[string]any{"material": m, "use_slant_correction": true, "use_finite_medium_correction": false})
	}
	_, err := svc.InsertBuildupFactor(ctx, 0, map[string]any{"material": "WATER", "use_slant_correction": false, "use_finite_medium_correction": false})
	require.NoError(t, err)
	change, err := svc.MoveBuildupFactor(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "CONCRETE", change.Name)

	_, err = svc.MoveBuildupFactor(ctx, 5, 0)
	require.Error(t, err)
	derr, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeIndexOutOfRange, derr.Code)
	_, err = svc.InsertBuildupFactor(ctx, 9, map[string]any{"material": "IRON"})
	require.Error(t, err)

	mustApply(t, svc)
	var order []string
	for _, b := range svc.Document().BuildupFactors {
		order = append(order, b.Material)
	}
	assert.Equal(t, []string{"CONCRETE", "WATER", "LEAD"}, order)
}

func TestDiscardPending(t *testing.T) {
	svc, backend := newTestService(t)
	mustPropose(t, svc, domain.EntitySolid, sphere("core", "0 0 0", 5))
	mustPropose(t, svc, domain.EntitySolid, sphere("rim", "0 0 0", 9))

	n, err := svc.DiscardPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, svc.Pending())
	logged, err := backend.LoadPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, logged)
}

func TestServiceReloadsPendingLog(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	first, err := NewService(ctx, backend, DefaultConfig())
	require.NoError(t, err)
	_, err = first.Propose(ctx, domain.EntitySolid, sphere("core", "0 0 0", 5))
	require.NoError(t, err)

	second, err := NewService(ctx, backend, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, second.Pending(), 1)
	_, err = second.Apply(ctx)
	require.NoError(t, err)
	assert.Len(t, second.Document().Bodies, 1)
}

func TestApplyReplayFailureLeavesCommittedDocument(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewBackend()
	svc, err := NewService(ctx, backend, DefaultConfig())
	require.NoError(t, err)
	mustPropose(t, svc, domain.EntitySolid, sphere("core", "0 0 0", 5))
	mustApply(t, svc)
	before := svc.Document()

	// A log written by another process that no longer replays.
	require.NoError(t, backend.SavePending(ctx, []domain.PendingChange{
		{ID: "ok", Action: domain.ActionPropose, Entity: domain.EntitySolid, Name: "rim", Payload: sphere("rim", "0 0 0", 9)},
		{ID: "bad", Action: domain.ActionDelete, Entity: domain.EntitySolid, Name: "ghost"},
	}))
	reloaded, err := NewService(ctx, backend, DefaultConfig())
	require.NoError(t, err)
	saves := backend.DocumentSaves()

	_, err = reloaded.Apply(ctx)
	require.Error(t, err)
	derr, ok := domain.AsError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeReplay, derr.Code)
	assert.Equal(t, before, reloaded.Document())
	assert.Equal(t, saves, backend.DocumentSaves())
	assert.Len(t, reloaded.Pending(), 2)
}

func TestApplyRotatesBackups(t *testing.T) {
	ctx := context.Background()
	tick := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rotator := backup.New(blob.NewMemory(), "shield.yaml", 2).WithClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	})
	svc, _ := newTestService(t, WithBackups(rotator))

	var keys []string
	for i := 0; i < 3; i++ {
		mustPropose(t, svc, domain.EntitySolid, sphere(fmt.Sprintf("s%d", i), fmt.Sprintf("%d 0 0", i*100), 5))
		res := mustApply(t, svc)
		require.NotEmpty(t, res.BackupKey)
		keys = append(keys, res.BackupKey)
	}
	infos, err := rotator.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, keys[2], infos[0].Key)

	data, err := rotator.Read(ctx, keys[2])
	require.NoError(t, err)
	assert.Contains(t, string(data), "s1")
	assert.NotContains(t, string(data), "s2")
}

func TestApplyReportIsAdvisory(t *testing.T) {
	svc, _ := newTestService(t)
	mustPropose(t, svc, domain.EntitySolid, sphere("wall", "0 0 0", 50))
	mustPropose(t, svc, domain.EntityZone, zone("wall", "CONCRETE", 5.0))

	res := mustApply(t, svc)
	assert.Equal(t, ApplyStatusApplied, res.Status)
	require.NotEmpty(t, res.Report.Errors())
	assert.Equal(t, CodeDensityOutOfRange, res.Report.Errors()[0].Code)
}
