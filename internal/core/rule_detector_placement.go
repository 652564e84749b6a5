package core

import (
	"context"
	"strings"

	"shieldcore/pkg/domain"
)

// DetectorPlacementRule keeps detector origins at least minDistance cm away
// from every source region and warns when an origin sits inside material.
func DetectorPlacementRule(minDistance float64) domain.Rule {
	return detectorPlacementRule{minDistance: minDistance}
}

type detectorPlacementRule struct {
	minDistance float64
}

func (detectorPlacementRule) ID() domain.RuleID { return domain.RuleDetectorPlacement }

func (detectorPlacementRule) Category() domain.Category { return domain.CategoryPhysics }

func (r detectorPlacementRule) Evaluate(_ context.Context, doc domain.Document) (domain.Result, error) {
	res := domain.Result{}
	if len(doc.Detectors) == 0 {
		res.Add(finding(domain.RuleDetectorPlacement, CodeNoDetectors, domain.SeverityWarn, domain.EntityDetector, "",
			"no detectors are defined"))
		return res, nil
	}
	place := newPlacement(doc)
	bodies := make(map[string]domain.Solid, len(doc.Bodies))
	for _, b := range doc.Bodies {
		bodies[b.Name] = b
	}
	for _, d := range doc.Detectors {
		origin, err := place.point(d.Origin, d.Transform)
		if err != nil {
			// Broken transforms are reported by transform_reference.
			continue
		}
		for _, s := range doc.Sources {
			region, err := place.source(s)
			if err != nil {
				continue
			}
			if dist := region.Distance(origin); dist < r.minDistance {
				res.Add(finding(domain.RuleDetectorPlacement, CodeDetectorTooClose, domain.SeverityError, domain.EntityDetector, d.Name,
					"detector %s is %.4g cm from source %s (minimum %.4g cm)", d.Name, dist, s.Name, r.minDistance))
			}
		}
		for _, z := range doc.Zones {
			if z.BodyName == domain.AtmosphereZone || strings.EqualFold(z.Material, domain.MaterialVoid) {
				continue
			}
			b, ok := bodies[z.BodyName]
			if !ok || b.Kind == domain.SolidCMB {
				continue
			}
			box, err := place.solid(b)
			if err != nil {
				continue
			}
			if box.Contains(origin) {
				res.Add(finding(domain.RuleDetectorPlacement, CodeDetectorInMaterial, domain.SeverityWarn, domain.EntityDetector, d.Name,
					"detector %s may lie inside %s zone %s", d.Name, z.Material, z.BodyName))
			}
		}
	}
	return res, nil
}
