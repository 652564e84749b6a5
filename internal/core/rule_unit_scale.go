package core

import (
	"context"
	"math"

	"shieldcore/internal/geometry"
	"shieldcore/internal/units"
	"shieldcore/pkg/domain"
)

// Model extents outside these bounds, in cm, usually mean the length unit
// does not match the numbers entered.
const (
	maxPlausibleExtentCM = 1e5
	minPlausibleExtentCM = 0.1
)

// UnitScaleRule checks that the geometry magnitudes are plausible for the
// declared length and angle units.
func UnitScaleRule() domain.Rule {
	return unitScaleRule{}
}

type unitScaleRule struct{}

func (unitScaleRule) ID() domain.RuleID { return domain.RuleUnitScale }

func (unitScaleRule) Category() domain.Category { return domain.CategoryUnits }

func (unitScaleRule) Evaluate(_ context.Context, doc domain.Document) (domain.Result, error) {
	res := domain.Result{}
	if units.ValidateCompleteness(doc.Unit) != nil {
		return res, nil
	}
	place := newPlacement(doc)
	var extent geometry.Box
	found := false
	for _, b := range doc.Bodies {
		if b.Kind == domain.SolidCMB {
			continue
		}
		box, err := place.solid(b)
		if err != nil {
			continue
		}
		if !found {
			extent, found = box, true
			continue
		}
		extent = extent.Union(box)
	}
	if found {
		size := math.Max(extent.Max.X-extent.Min.X, math.Max(extent.Max.Y-extent.Min.Y, extent.Max.Z-extent.Min.Z))
		switch {
		case size > maxPlausibleExtentCM:
			res.Add(finding(domain.RuleUnitScale, CodeGeometryExtent, domain.SeverityWarn, domain.EntityUnit, "",
				"model spans %.4g cm with length unit %s; check the length unit", size, doc.Unit[domain.UnitLength]))
		case size < minPlausibleExtentCM:
			res.Add(finding(domain.RuleUnitScale, CodeGeometryExtent, domain.SeverityWarn, domain.EntityUnit, "",
				"model spans only %.4g cm with length unit %s; check the length unit", size, doc.Unit[domain.UnitLength]))
		}
	}
	if doc.Unit[domain.UnitAngle] != "radian" {
		return res, nil
	}
	for _, t := range doc.Transforms {
		for _, op := range t.Operations {
			for _, angle := range []*float64{op.RotateAroundX, op.RotateAroundY, op.RotateAroundZ} {
				if angle != nil && math.Abs(*angle) > 2*math.Pi {
					res.Add(finding(domain.RuleUnitScale, CodeAngleUnit, domain.SeverityWarn, domain.EntityTransform, t.Name,
						"transform %s rotates by %g radian; the value looks like degrees", t.Name, *angle))
				}
			}
		}
	}
	return res, nil
}
