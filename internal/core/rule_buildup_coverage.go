package core

import (
	"context"
	"strings"

	"shieldcore/pkg/domain"
)

// BuildupCoverageRule expects a buildup factor entry for every material in
// use and none for materials no zone uses.
func BuildupCoverageRule() domain.Rule {
	return buildupCoverageRule{}
}

type buildupCoverageRule struct{}

func (buildupCoverageRule) ID() domain.RuleID { return domain.RuleBuildupCoverage }

func (buildupCoverageRule) Category() domain.Category { return domain.CategoryMaterial }

func (buildupCoverageRule) Evaluate(_ context.Context, doc domain.Document) (domain.Result, error) {
	res := domain.Result{}
	configured := make(map[string]struct{}, len(doc.BuildupFactors))
	for _, b := range doc.BuildupFactors {
		configured[strings.ToUpper(b.Material)] = struct{}{}
	}
	used := make(map[string]struct{})
	for _, z := range doc.Zones {
		material := strings.ToUpper(strings.TrimSpace(z.Material))
		if material == domain.MaterialVoid {
			continue
		}
		if _, seen := used[material]; seen {
			continue
		}
		used[material] = struct{}{}
		if _, ok := configured[material]; !ok {
			res.Add(finding(domain.RuleBuildupCoverage, CodeBuildupMissing, domain.SeverityWarn, domain.EntityBuildupFactor, material,
				"material %s has no buildup factor entry", material))
		}
	}
	for _, b := range doc.BuildupFactors {
		if _, ok := used[strings.ToUpper(b.Material)]; !ok {
			res.Add(finding(domain.RuleBuildupCoverage, CodeBuildupUnused, domain.SeverityRecommend, domain.EntityBuildupFactor, b.Material,
				"buildup factor %s is not used by any zone", b.Material))
		}
	}
	return res, nil
}
