package core

import (
	"context"

	"shieldcore/internal/geometry"
	"shieldcore/internal/units"
	"shieldcore/pkg/domain"
)

// TransformReferenceRule checks transform references from bodies, source
// geometries and detectors, and flags transforms nothing uses.
func TransformReferenceRule() domain.Rule {
	return transformReferenceRule{}
}

type transformReferenceRule struct{}

func (transformReferenceRule) ID() domain.RuleID { return domain.RuleTransformReference }

func (transformReferenceRule) Category() domain.Category { return domain.CategoryPhysics }

func (transformReferenceRule) Evaluate(_ context.Context, doc domain.Document) (domain.Result, error) {
	res := domain.Result{}
	defined := make(map[string]domain.Transform, len(doc.Transforms))
	for _, t := range doc.Transforms {
		defined[t.Name] = t
	}
	used := make(map[string]struct{})
	check := func(entity domain.EntityType, name, transform string) {
		if transform == "" {
			return
		}
		used[transform] = struct{}{}
		if _, ok := defined[transform]; !ok {
			res.Add(finding(domain.RuleTransformReference, CodeTransformMissing, domain.SeverityError, entity, name,
				"%s %s references missing transform %s", entity, name, transform))
		}
	}
	for _, b := range doc.Bodies {
		check(domain.EntitySolid, b.Name, b.Transform)
	}
	for _, s := range doc.Sources {
		if s.Geometry != nil {
			check(domain.EntitySource, s.Name, s.Geometry.Transform)
		}
	}
	for _, d := range doc.Detectors {
		check(domain.EntityDetector, d.Name, d.Transform)
	}
	angle := units.AngleToRadians(doc.Unit)
	for _, t := range doc.Transforms {
		if _, err := geometry.Compile(t, angle); err != nil {
			res.Add(finding(domain.RuleTransformReference, CodeTransformInvalid, domain.SeverityError, domain.EntityTransform, t.Name,
				"%v", err))
		}
		if _, ok := used[t.Name]; !ok {
			res.Add(finding(domain.RuleTransformReference, CodeUnusedTransform, domain.SeverityRecommend, domain.EntityTransform, t.Name,
				"transform %s is not used", t.Name))
		}
	}
	return res, nil
}
