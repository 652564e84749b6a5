package memory

import (
	"context"
	"errors"
	"testing"

	"shieldcore/pkg/domain"
)

func fp(v float64) *float64 { return &v }

func sphere(name string) domain.Solid {
	return domain.Solid{Name: name, Kind: domain.SolidSPH, Shape: domain.Shape{Center: "0 0 0", Radius: fp(1)}}
}

func mustRun(t *testing.T, store *Store, fn func(tx domain.Transaction) error) []domain.Change {
	t.Helper()
	changes, err := store.RunInTransaction(context.Background(), fn)
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	return changes
}

func TestRunInTransactionSwapsOnlyOnSuccess(t *testing.T) {
	store := NewStore()
	changes := mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.CreateSolid(sphere("A"))
		return err
	})
	if len(changes) != 1 || changes[0].Action != domain.ActionPropose {
		t.Fatalf("unexpected changes: %+v", changes)
	}

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateSolid(sphere("B")); err != nil {
			return err
		}
		_, err := tx.CreateSolid(sphere("A"))
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
	doc := store.ExportDocument()
	if len(doc.Bodies) != 1 || doc.Bodies[0].Name != "A" {
		t.Fatalf("failed transaction leaked state: %+v", doc.Bodies)
	}
}

func TestDeleteSolidBlockedByZoneAndExpression(t *testing.T) {
	store := NewStore()
	mustRun(t, store, func(tx domain.Transaction) error {
		for _, s := range []domain.Solid{sphere("A"), sphere("B")} {
			if _, err := tx.CreateSolid(s); err != nil {
				return err
			}
		}
		if _, err := tx.CreateSolid(domain.Solid{Name: "C", Kind: domain.SolidCMB, Expression: "A - B"}); err != nil {
			return err
		}
		_, err := tx.CreateZone(domain.Zone{BodyName: "A", Material: "CONCRETE", Density: fp(2.3)})
		return err
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteSolid("A")
	})
	e, ok := domain.AsError(err)
	if !ok || e.Kind != domain.KindDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(e.Dependents) != 2 || e.Dependents[0] != "zone:A" || e.Dependents[1] != "body:C" {
		t.Fatalf("unexpected dependents: %v", e.Dependents)
	}
}

func TestZoneRules(t *testing.T) {
	store := NewStore()
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.CreateSolid(sphere("A"))
		return err
	})
	cases := []struct {
		name string
		zone domain.Zone
		code domain.Code
	}{
		{"void with density", domain.Zone{BodyName: "A", Material: "VOID", Density: fp(5)}, domain.CodeUnexpectedField},
		{"missing density", domain.Zone{BodyName: "A", Material: "CONCRETE"}, domain.CodeMissingField},
		{"density range", domain.Zone{BodyName: "A", Material: "LEAD", Density: fp(31)}, domain.CodeDensityRange},
		{"unknown body", domain.Zone{BodyName: "ghost", Material: "VOID"}, domain.CodeNotFound},
		{"atmosphere exists", domain.Zone{BodyName: domain.AtmosphereZone, Material: "VOID"}, domain.CodeDuplicateName},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
				_, err := tx.CreateZone(tc.zone)
				return err
			})
			e, ok := domain.AsError(err)
			if !ok || e.Code != tc.code {
				t.Fatalf("expected code %d, got %v", tc.code, err)
			}
		})
	}
	mustRun(t, store, func(tx domain.Transaction) error {
		_, err := tx.CreateZone(domain.Zone{BodyName: "A", Material: "CONCRETE", Density: fp(2.3)})
		return err
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteZone(domain.AtmosphereZone)
	})
	if e, ok := domain.AsError(err); !ok || e.Code != domain.CodeReservedName {
		t.Fatalf("expected reserved name error, got %v", err)
	}
}

func TestSolidReferencesAndReservedName(t *testing.T) {
	store := NewStore()
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		s := sphere("A")
		s.Transform = "missing"
		_, err := tx.CreateSolid(s)
		return err
	})
	if e, ok := domain.AsError(err); !ok || e.Field != "transform" {
		t.Fatalf("expected transform reference error, got %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateSolid(sphere(domain.AtmosphereZone))
		return err
	})
	if e, ok := domain.AsError(err); !ok || e.Code != domain.CodeReservedName {
		t.Fatalf("expected reserved name error, got %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateSolid(domain.Solid{Name: "C", Kind: domain.SolidCMB, Expression: "A + B"})
		return err
	})
	if e, ok := domain.AsError(err); !ok || e.Code != domain.CodeMissingSolid {
		t.Fatalf("expected missing solid error, got %v", err)
	}
}

func TestUpdateSolidRejectsCycle(t *testing.T) {
	store := NewStore()
	mustRun(t, store, func(tx domain.Transaction) error {
		for _, s := range []domain.Solid{sphere("A"), sphere("B")} {
			if _, err := tx.CreateSolid(s); err != nil {
				return err
			}
		}
		if _, err := tx.CreateSolid(domain.Solid{Name: "X", Kind: domain.SolidCMB, Expression: "A + B"}); err != nil {
			return err
		}
		_, err := tx.CreateSolid(domain.Solid{Name: "Y", Kind: domain.SolidCMB, Expression: "X - B"})
		return err
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateSolid("X", func(s *domain.Solid) error {
			s.Expression = "Y & A"
			return nil
		})
		return err
	})
	if e, ok := domain.AsError(err); !ok || e.Code != domain.CodeExpressionCycle {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestDeleteTransformListsDependents(t *testing.T) {
	store := NewStore()
	trace := true
	mustRun(t, store, func(tx domain.Transaction) error {
		if _, err := tx.CreateTransform(domain.Transform{Name: "t1", Operations: []domain.TransformOp{{Translate: "1 0 0"}}}); err != nil {
			return err
		}
		s := sphere("A")
		s.Transform = "t1"
		if _, err := tx.CreateSolid(s); err != nil {
			return err
		}
		_, err := tx.CreateDetector(domain.Detector{Name: "d1", Origin: "0 0 0", Transform: "t1", ShowPathTrace: &trace})
		return err
	})
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.DeleteTransform("t1")
	})
	e, ok := domain.AsError(err)
	if !ok || len(e.Dependents) != 2 {
		t.Fatalf("expected two dependents, got %v", err)
	}
}

func TestBuildupFactorOrdering(t *testing.T) {
	store := NewStore()
	mustRun(t, store, func(tx domain.Transaction) error {
		for _, m := range []string{"WATER", "IRON", "LEAD"} {
			if _, err := tx.CreateBuildupFactor(domain.BuildupFactor{Material: m}); err != nil {
				return err
			}
		}
		if _, err := tx.InsertBuildupFactor(0, domain.BuildupFactor{Material: "CONCRETE"}); err != nil {
			return err
		}
		return tx.MoveBuildupFactor(3, 1)
	})
	got := store.ExportDocument().BuildupFactors
	want := []string{"CONCRETE", "LEAD", "WATER", "IRON"}
	for i, m := range want {
		if got[i].Material != m {
			t.Fatalf("position %d: want %s, got %+v", i, m, got)
		}
	}

	for _, fn := range []func(tx domain.Transaction) error{
		func(tx domain.Transaction) error { return tx.MoveBuildupFactor(0, 4) },
		func(tx domain.Transaction) error { return tx.MoveBuildupFactor(-1, 0) },
		func(tx domain.Transaction) error {
			_, err := tx.InsertBuildupFactor(9, domain.BuildupFactor{Material: "AIR"})
			return err
		},
	} {
		_, err := store.RunInTransaction(context.Background(), fn)
		if e, ok := domain.AsError(err); !ok || e.Code != domain.CodeIndexOutOfRange {
			t.Fatalf("expected index error, got %v", err)
		}
	}
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBuildupFactor(domain.BuildupFactor{Material: "lead"})
		return err
	})
	if !errors.Is(err, domain.ErrDuplicateName) {
		t.Fatalf("expected case-insensitive duplicate, got %v", err)
	}
}

func TestUpdateUnitsKeepsFourKeys(t *testing.T) {
	store := NewStore()
	mustRun(t, store, func(tx domain.Transaction) error {
		merged, err := tx.UpdateUnits(map[string]string{domain.UnitLength: "mm"})
		if err != nil {
			return err
		}
		if len(merged) != 4 {
			t.Fatalf("expected four keys, got %v", merged)
		}
		return nil
	})
	if store.ExportDocument().Unit[domain.UnitLength] != "mm" {
		t.Fatalf("unit update not applied")
	}
}

func TestRebindZoneAndDryRun(t *testing.T) {
	doc := domain.NewDocument()
	out, changes, err := DryRun(doc, func(tx domain.Transaction) error {
		for _, s := range []domain.Solid{sphere("A"), sphere("B")} {
			if _, err := tx.CreateSolid(s); err != nil {
				return err
			}
		}
		if _, err := tx.CreateZone(domain.Zone{BodyName: "A", Material: "WATER", Density: fp(1)}); err != nil {
			return err
		}
		_, err := RebindZone(tx, "A", "B")
		return err
	})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(doc.Bodies) != 0 {
		t.Fatalf("dry run mutated its input")
	}
	if len(changes) != 5 {
		t.Fatalf("expected 5 changes, got %d", len(changes))
	}
	if _, ok := (transactionView{state: &out}).FindZone("B"); !ok {
		t.Fatalf("zone not rebound")
	}
}
