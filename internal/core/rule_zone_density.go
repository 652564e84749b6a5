package core

import (
	"context"
	"strings"

	"shieldcore/pkg/domain"
)

// densityRange is a plausible density interval in g/cm3.
type densityRange struct {
	min, max float64
}

// referenceDensities covers common shielding materials.
var referenceDensities = map[string]densityRange{
	"AIR":          {0.001, 0.0015},
	"WATER":        {0.9, 1.1},
	"CONCRETE":     {1.8, 3.6},
	"LEAD":         {11.0, 11.5},
	"IRON":         {7.5, 7.9},
	"STEEL":        {7.7, 8.1},
	"ALUMINUM":     {2.6, 2.8},
	"COPPER":       {8.8, 9.0},
	"TUNGSTEN":     {17.0, 19.4},
	"POLYETHYLENE": {0.89, 0.98},
	"PARAFFIN":     {0.85, 0.95},
	"GLASS":        {2.2, 2.6},
	"SOIL":         {1.2, 2.2},
}

// ZoneDensityRule compares zone densities with reference ranges of known
// materials.
func ZoneDensityRule() domain.Rule {
	return zoneDensityRule{}
}

type zoneDensityRule struct{}

func (zoneDensityRule) ID() domain.RuleID { return domain.RuleZoneDensity }

func (zoneDensityRule) Category() domain.Category { return domain.CategoryMaterial }

func (zoneDensityRule) Evaluate(_ context.Context, doc domain.Document) (domain.Result, error) {
	res := domain.Result{}
	for _, z := range doc.Zones {
		material := strings.ToUpper(strings.TrimSpace(z.Material))
		if material == domain.MaterialVoid || z.Density == nil {
			continue
		}
		ref, ok := referenceDensities[material]
		if !ok {
			res.Add(finding(domain.RuleZoneDensity, CodeUnknownMaterial, domain.SeverityRecommend, domain.EntityZone, z.BodyName,
				"material %s has no reference density; check %g g/cm3 by hand", z.Material, *z.Density))
			continue
		}
		if d := *z.Density; d < ref.min || d > ref.max {
			res.Add(finding(domain.RuleZoneDensity, CodeDensityOutOfRange, domain.SeverityError, domain.EntityZone, z.BodyName,
				"density %g g/cm3 of %s in zone %s is outside [%g, %g]", d, material, z.BodyName, ref.min, ref.max))
		}
	}
	return res, nil
}
