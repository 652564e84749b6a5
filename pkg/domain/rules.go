package domain

import (
	"context"
	"fmt"
)

// RuleID identifies a validation rule.
type RuleID string

// Built-in rule identifiers.
const (
	RuleZoneReference      RuleID = "zone_reference"
	RuleAtmosphereZone     RuleID = "atmosphere_zone"
	RuleTransformReference RuleID = "transform_reference"
	RuleDetectorPlacement  RuleID = "detector_placement"
	RuleSourceInventory    RuleID = "source_inventory"
	RuleUnitSection        RuleID = "unit_section"
	RuleUnitScale          RuleID = "unit_scale"
	RuleZoneDensity        RuleID = "zone_density"
	RuleBuildupCoverage    RuleID = "buildup_coverage"
	// RuleCollision tags findings produced by the collision detector.
	RuleCollision RuleID = "collision"
	// RuleDaughterNuclides tags findings produced by daughter completion.
	RuleDaughterNuclides RuleID = "daughter_nuclides"
)

// Category groups rules that run as an independent list.
type Category string

// Rule categories evaluated before commit.
const (
	CategoryPhysics  Category = "physics_consistency"
	CategoryUnits    Category = "units_compatibility"
	CategoryMaterial Category = "material_property"
)

// Categories lists the pre-commit categories in evaluation order.
var Categories = []Category{CategoryPhysics, CategoryUnits, CategoryMaterial}

// Severity captures rule outcomes.
type Severity string

// Finding severities.
const (
	// SeverityError is a hard finding.
	SeverityError Severity = "error"
	// SeverityWarn is advisory.
	SeverityWarn Severity = "warning"
	// SeverityRecommend suggests an improvement.
	SeverityRecommend Severity = "recommendation"
)

// Violation reports one finding of a rule evaluation.
type Violation struct {
	Rule        RuleID     `json:"rule" yaml:"rule"`
	Code        string     `json:"code" yaml:"code"`
	Severity    Severity   `json:"severity" yaml:"severity"`
	Message     string     `json:"message" yaml:"message"`
	Entity      EntityType `json:"entity,omitempty" yaml:"entity,omitempty"`
	EntityName  string     `json:"entity_name,omitempty" yaml:"entity_name,omitempty"`
	MustResolve bool       `json:"must_resolve,omitempty" yaml:"must_resolve,omitempty"`
}

// Result aggregates violations from rule evaluation.
type Result struct {
	Violations []Violation `json:"violations" yaml:"violations"`
}

// Add appends a violation.
func (r *Result) Add(v Violation) {
	r.Violations = append(r.Violations, v)
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// Errors returns error-severity findings.
func (r Result) Errors() []Violation { return r.bySeverity(SeverityError) }

// Warnings returns warning findings.
func (r Result) Warnings() []Violation { return r.bySeverity(SeverityWarn) }

// Recommendations returns recommendation findings.
func (r Result) Recommendations() []Violation { return r.bySeverity(SeverityRecommend) }

func (r Result) bySeverity(sev Severity) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

// HasErrors reports whether any error-severity finding is present.
func (r Result) HasErrors() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Rule is a statically typed check over a document.
type Rule interface {
	ID() RuleID
	Category() Category
	Evaluate(ctx context.Context, doc Document) (Result, error)
}

// RulesEngine dispatches registered rules by category.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule identifiers in registration order.
func (e *RulesEngine) Rules() []RuleID {
	out := make([]RuleID, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.ID())
	}
	return out
}

// EvaluateCategory runs every rule of one category. A failing or panicking
// rule becomes an error finding; the remaining rules still run.
func (e *RulesEngine) EvaluateCategory(ctx context.Context, category Category, doc Document) Result {
	var combined Result
	for _, rule := range e.rules {
		if rule.Category() != category {
			continue
		}
		combined.Merge(evaluateGuarded(ctx, rule, doc))
	}
	return combined
}

// Evaluate runs every category in order without short-circuiting.
func (e *RulesEngine) Evaluate(ctx context.Context, doc Document) Result {
	var combined Result
	for _, category := range Categories {
		combined.Merge(e.EvaluateCategory(ctx, category, doc))
	}
	return combined
}

func evaluateGuarded(ctx context.Context, rule Rule, doc Document) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Violations: []Violation{ruleFailure(rule, fmt.Errorf("panic: %v", r))}}
		}
	}()
	out, err := rule.Evaluate(ctx, doc)
	if err != nil {
		return Result{Violations: []Violation{ruleFailure(rule, err)}}
	}
	return out
}

func ruleFailure(rule Rule, err error) Violation {
	return Violation{
		Rule:     rule.ID(),
		Code:     "rule_error",
		Severity: SeverityError,
		Message:  fmt.Sprintf("rule %s failed: %v", rule.ID(), err),
	}
}
