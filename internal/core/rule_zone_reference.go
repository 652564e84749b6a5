package core

import (
	"context"

	"shieldcore/internal/expression"
	"shieldcore/pkg/domain"
)

// ZoneReferenceRule checks that every zone is bound to an existing body and
// flags bodies that neither carry a zone nor take part in a CMB expression.
func ZoneReferenceRule() domain.Rule {
	return zoneReferenceRule{}
}

type zoneReferenceRule struct{}

func (zoneReferenceRule) ID() domain.RuleID { return domain.RuleZoneReference }

func (zoneReferenceRule) Category() domain.Category { return domain.CategoryPhysics }

func (zoneReferenceRule) Evaluate(_ context.Context, doc domain.Document) (domain.Result, error) {
	res := domain.Result{}
	bodies := expression.IndexBodies(doc.Bodies)
	zoned := make(map[string]struct{}, len(doc.Zones))
	for _, z := range doc.Zones {
		zoned[z.BodyName] = struct{}{}
		if z.BodyName == domain.AtmosphereZone {
			continue
		}
		if _, ok := bodies.Lookup(z.BodyName); !ok {
			res.Add(finding(domain.RuleZoneReference, CodeZoneBodyMissing, domain.SeverityError, domain.EntityZone, z.BodyName,
				"zone references missing body %s", z.BodyName))
		}
	}
	operands := make(map[string]struct{})
	for _, b := range doc.Bodies {
		if b.Kind != domain.SolidCMB {
			continue
		}
		for _, name := range expression.Operands(b.Expression) {
			operands[name] = struct{}{}
		}
	}
	for _, b := range doc.Bodies {
		if _, ok := zoned[b.Name]; ok {
			continue
		}
		if _, ok := operands[b.Name]; ok {
			continue
		}
		res.Add(finding(domain.RuleZoneReference, CodeUnassignedBody, domain.SeverityRecommend, domain.EntitySolid, b.Name,
			"body %s has no zone and is not used by any CMB body", b.Name))
	}
	return res, nil
}
