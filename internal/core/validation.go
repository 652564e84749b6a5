package core

import (
	"context"
	"fmt"
	"sort"

	"shieldcore/internal/collision"
	"shieldcore/pkg/domain"
)

// RulePendingChanges tags the unapplied-changes finding of pre-calculation runs.
const RulePendingChanges domain.RuleID = "pending_changes"

// VerdictStatus is the outcome of a validation run.
type VerdictStatus string

// Verdict outcomes. Blocked means the caller must act before calculating;
// it is not an error.
const (
	VerdictPassed  VerdictStatus = "passed"
	VerdictBlocked VerdictStatus = "blocked"
	VerdictFailed  VerdictStatus = "failed"
)

// RuleFindings groups one rule's findings by severity.
type RuleFindings struct {
	Errors          []domain.Violation `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings        []domain.Violation `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Recommendations []domain.Violation `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
}

// Verdict is the machine-readable result of a validation run.
type Verdict struct {
	Status      VerdictStatus                   `json:"status" yaml:"status"`
	Result      domain.Result                   `json:"result" yaml:"result"`
	Rules       map[domain.RuleID]*RuleFindings `json:"rules" yaml:"rules"`
	MustResolve []domain.Violation              `json:"must_resolve,omitempty" yaml:"must_resolve,omitempty"`
	Collisions  *collision.Report               `json:"collisions,omitempty" yaml:"collisions,omitempty"`
	Daughters   []DaughterReview                `json:"daughters,omitempty" yaml:"daughters,omitempty"`
	NextSteps   []string                        `json:"next_steps,omitempty" yaml:"next_steps,omitempty"`
}

// PreCommitValidation runs every rule category over the staged document.
// Findings never block staging; a verdict with errors is failed.
func (s *Service) PreCommitValidation(ctx context.Context) (Verdict, error) {
	var v Verdict
	err := s.run(ctx, "pre_commit_validation", "", "", func(ctx context.Context) error {
		s.mu.Lock()
		doc, err := s.stagedLocked()
		s.mu.Unlock()
		if err != nil {
			return err
		}
		v = s.verdict(s.rules.Evaluate(ctx, doc))
		return nil
	})
	return v, err
}

// PreCalculationValidation checks the committed document before it is handed
// to the solver. On top of the rule categories it runs collision detection
// and daughter completion. Must-resolve findings and unconfirmed daughter
// additions block calculation.
func (s *Service) PreCalculationValidation(ctx context.Context) (Verdict, error) {
	var v Verdict
	err := s.run(ctx, "pre_calculation_validation", "", "", func(ctx context.Context) error {
		v = s.preCalculation(ctx)
		return nil
	})
	return v, err
}

func (s *Service) preCalculation(ctx context.Context) Verdict {
	doc := s.store.ExportDocument()
	res := s.rules.Evaluate(ctx, doc)

	report := s.detector.Detect(doc)
	s.observeCollisions(report)
	for _, p := range report.Collisions {
		res.Add(finding(domain.RuleCollision, CodeCollision, domain.SeverityError, domain.EntityZone, p.BodyA,
			"zones %s and %s overlap by %.6g cm3 (%s)", p.BodyA, p.BodyB, p.OverlapVolume, p.Severity))
	}
	for _, p := range report.Unknown {
		res.Add(finding(domain.RuleCollision, CodeCollisionUnknown, domain.SeverityWarn, domain.EntityZone, p.BodyA,
			"overlap of %s and %s could not be determined: %s", p.BodyA, p.BodyB, p.Reason))
	}

	s.mu.Lock()
	daughters := s.reviewLocked(doc)
	pending := len(s.pending)
	s.mu.Unlock()
	for _, d := range daughters {
		for _, w := range d.Warnings {
			res.Add(finding(domain.RuleDaughterNuclides, CodeNuclideDatabase, domain.SeverityWarn, domain.EntitySource, d.Source, "%s", w))
		}
		if d.RequiresConfirmation {
			res.Add(finding(domain.RuleDaughterNuclides, CodeDaughtersPending, domain.SeverityWarn, domain.EntitySource, d.Source,
				"source %s has %d daughter nuclide(s) awaiting confirmation", d.Source, len(d.Additions)))
		}
	}
	if pending > 0 {
		res.Add(finding(RulePendingChanges, CodePendingChanges, domain.SeverityWarn, "", "",
			"%d pending change(s) are not applied and will not be calculated", pending))
	}

	v := s.verdict(res)
	v.Collisions = &report
	for _, d := range daughters {
		if d.RequiresConfirmation {
			v.Daughters = append(v.Daughters, d)
		}
	}
	if len(v.MustResolve) > 0 || len(v.Daughters) > 0 {
		v.Status = VerdictBlocked
	}
	return v
}

// verdict groups findings per rule and derives the status and next steps.
func (s *Service) verdict(res domain.Result) Verdict {
	v := Verdict{Status: VerdictPassed, Result: res, Rules: make(map[domain.RuleID]*RuleFindings)}
	for _, rule := range s.rules.Rules() {
		v.Rules[rule] = &RuleFindings{}
	}
	for _, f := range res.Violations {
		group, ok := v.Rules[f.Rule]
		if !ok {
			group = &RuleFindings{}
			v.Rules[f.Rule] = group
		}
		switch f.Severity {
		case domain.SeverityError:
			group.Errors = append(group.Errors, f)
		case domain.SeverityWarn:
			group.Warnings = append(group.Warnings, f)
		default:
			group.Recommendations = append(group.Recommendations, f)
		}
		if f.MustResolve {
			v.MustResolve = append(v.MustResolve, f)
		}
	}
	switch {
	case len(v.MustResolve) > 0:
		v.Status = VerdictBlocked
	case res.HasErrors():
		v.Status = VerdictFailed
	}
	v.NextSteps = nextSteps(res.Violations)
	if m, ok := s.metrics.(domainMetrics); ok {
		m.ObserveFindings(res.Violations)
	}
	return v
}

var nextStepByCode = map[string]string{
	CodeCollision:          "resolve overlapping zones: run collisions and apply a proposed resolution",
	CodeCollisionUnknown:   "check the geometry of bodies whose overlap could not be determined",
	CodeDensityOutOfRange:  "update the zone density to the material's reference range",
	CodeDetectorTooClose:   "move the detector further from the source",
	CodeMissingUnitSection: "add every unit key (length, angle, density, radioactivity)",
	CodeInvalidUnits:       "fix the unit values",
	CodeDaughtersPending:   "confirm, reject or modify the proposed daughter nuclides",
	CodePendingChanges:     "apply or discard pending changes before calculating",
	CodeZoneBodyMissing:    "propose the missing body or delete the zone",
	CodeMissingAtmosphere:  "propose the ATMOSPHERE zone",
	CodeTransformMissing:   "propose the missing transform or clear the reference",
}

func nextSteps(violations []domain.Violation) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range violations {
		step, ok := nextStepByCode[v.Code]
		if !ok {
			continue
		}
		if _, dup := seen[step]; dup {
			continue
		}
		seen[step] = struct{}{}
		out = append(out, step)
	}
	sort.Strings(out)
	return out
}

func (s *Service) observeCollisions(report collision.Report) {
	if m, ok := s.metrics.(domainMetrics); ok {
		m.ObserveCollisions(report)
	}
}

// String renders a one-line summary of the verdict.
func (v Verdict) String() string {
	return fmt.Sprintf("%s: %d error(s), %d warning(s), %d recommendation(s), %d must-resolve",
		v.Status, len(v.Result.Errors()), len(v.Result.Warnings()), len(v.Result.Recommendations()), len(v.MustResolve))
}
