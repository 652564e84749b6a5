package core

import (
	"context"

	"shieldcore/internal/units"
	"shieldcore/pkg/domain"
)

// UnitSectionRule requires a complete, valid unit section.
func UnitSectionRule() domain.Rule {
	return unitSectionRule{}
}

type unitSectionRule struct{}

func (unitSectionRule) ID() domain.RuleID { return domain.RuleUnitSection }

func (unitSectionRule) Category() domain.Category { return domain.CategoryUnits }

func (unitSectionRule) Evaluate(_ context.Context, doc domain.Document) (domain.Result, error) {
	res := domain.Result{}
	err := units.ValidateCompleteness(doc.Unit)
	if err == nil {
		return res, nil
	}
	code := CodeInvalidUnits
	if e, ok := domain.AsError(err); ok && e.Code == domain.CodeInvalidUnits && e.Field == "unit" {
		code = CodeMissingUnitSection
	}
	res.Add(finding(domain.RuleUnitSection, code, domain.SeverityError, domain.EntityUnit, "", "%v", err))
	return res, nil
}
