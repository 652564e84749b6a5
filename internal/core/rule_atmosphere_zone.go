package core

import (
	"context"

	"shieldcore/pkg/domain"
)

// AtmosphereZoneRule requires exactly one ATMOSPHERE zone.
func AtmosphereZoneRule() domain.Rule {
	return atmosphereZoneRule{}
}

type atmosphereZoneRule struct{}

func (atmosphereZoneRule) ID() domain.RuleID { return domain.RuleAtmosphereZone }

func (atmosphereZoneRule) Category() domain.Category { return domain.CategoryPhysics }

func (atmosphereZoneRule) Evaluate(_ context.Context, doc domain.Document) (domain.Result, error) {
	res := domain.Result{}
	count := 0
	for _, z := range doc.Zones {
		if z.BodyName == domain.AtmosphereZone {
			count++
		}
	}
	switch {
	case count == 0:
		res.Add(finding(domain.RuleAtmosphereZone, CodeMissingAtmosphere, domain.SeverityError, domain.EntityZone, domain.AtmosphereZone,
			"the %s zone is missing", domain.AtmosphereZone))
	case count > 1:
		res.Add(finding(domain.RuleAtmosphereZone, CodeDuplicateAtmosphere, domain.SeverityError, domain.EntityZone, domain.AtmosphereZone,
			"the %s zone is defined %d times", domain.AtmosphereZone, count))
	}
	return res, nil
}
