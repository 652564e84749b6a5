package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type staticRule struct {
	id       RuleID
	category Category
	out      []Violation
}

func (r staticRule) ID() RuleID         { return r.id }
func (r staticRule) Category() Category { return r.category }
func (r staticRule) Evaluate(context.Context, Document) (Result, error) {
	return Result{Violations: r.out}, nil
}

type failingRule struct{ staticRule }

func (r failingRule) Evaluate(context.Context, Document) (Result, error) {
	return Result{}, errors.New("boom")
}

type panickingRule struct{ staticRule }

func (r panickingRule) Evaluate(context.Context, Document) (Result, error) {
	panic("index out of range")
}

func TestResultSeverityFilters(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	if result.HasErrors() {
		t.Fatalf("expected no errors")
	}
	result.Add(Violation{Rule: "b", Severity: SeverityError})
	result.Add(Violation{Rule: "c", Severity: SeverityRecommend})
	if !result.HasErrors() {
		t.Fatalf("expected error finding")
	}
	if len(result.Errors()) != 1 || len(result.Warnings()) != 1 || len(result.Recommendations()) != 1 {
		t.Fatalf("unexpected split: %+v", result.Violations)
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestRulesEngineRunsCategoriesInOrder(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(staticRule{id: "material", category: CategoryMaterial, out: []Violation{{Rule: "material", Severity: SeverityWarn}}})
	engine.Register(staticRule{id: "physics", category: CategoryPhysics, out: []Violation{{Rule: "physics", Severity: SeverityError}}})
	engine.Register(staticRule{id: "units", category: CategoryUnits, out: []Violation{{Rule: "units", Severity: SeverityRecommend}}})

	ids := engine.Rules()
	if len(ids) != 3 || ids[0] != "material" {
		t.Fatalf("expected registration order, got %v", ids)
	}
	res := engine.Evaluate(context.Background(), NewDocument())
	var got []RuleID
	for _, v := range res.Violations {
		got = append(got, v.Rule)
	}
	want := []RuleID{"physics", "units", "material"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	only := engine.EvaluateCategory(context.Background(), CategoryUnits, NewDocument())
	if len(only.Violations) != 1 || only.Violations[0].Rule != "units" {
		t.Fatalf("expected only the units rule, got %+v", only.Violations)
	}
}

func TestRulesEngineContainsFailingRules(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(failingRule{staticRule{id: "fails", category: CategoryPhysics}})
	engine.Register(panickingRule{staticRule{id: "panics", category: CategoryPhysics}})
	engine.Register(staticRule{id: "ok", category: CategoryPhysics, out: []Violation{{Rule: "ok", Severity: SeverityWarn}}})

	res := engine.Evaluate(context.Background(), NewDocument())
	if len(res.Violations) != 3 {
		t.Fatalf("expected every rule to report, got %+v", res.Violations)
	}
	for _, v := range res.Violations[:2] {
		if v.Severity != SeverityError || v.Code != "rule_error" {
			t.Fatalf("expected rule_error finding, got %+v", v)
		}
	}
	if !strings.Contains(res.Violations[1].Message, "panic") {
		t.Fatalf("expected panic message, got %q", res.Violations[1].Message)
	}
	if res.Violations[2].Rule != "ok" {
		t.Fatalf("expected remaining rule to run, got %+v", res.Violations[2])
	}
}
