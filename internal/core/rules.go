package core

import (
	"fmt"

	"shieldcore/internal/geometry"
	"shieldcore/internal/nuclide"
	"shieldcore/internal/units"
	"shieldcore/pkg/domain"
)

// Finding codes emitted by the built-in rules and the pre-calculation checks.
const (
	CodeZoneBodyMissing     = "zone_body_missing"
	CodeUnassignedBody      = "unassigned_body"
	CodeMissingAtmosphere   = "missing_atmosphere"
	CodeDuplicateAtmosphere = "duplicate_atmosphere"
	CodeTransformMissing    = "transform_missing"
	CodeTransformInvalid    = "transform_invalid"
	CodeUnusedTransform     = "unused_transform"
	CodeDetectorTooClose    = "detector_too_close"
	CodeDetectorInMaterial  = "detector_inside_material"
	CodeNoSources           = "no_sources"
	CodeNoDetectors         = "no_detectors"
	CodeUnknownNuclide      = "unknown_nuclide"
	CodeDuplicateNuclide    = "duplicate_nuclide"
	CodeMissingUnitSection  = "missing_unit_section"
	CodeInvalidUnits        = "invalid_units"
	CodeGeometryExtent      = "geometry_extent"
	CodeAngleUnit           = "angle_unit_suspect"
	CodeDensityOutOfRange   = "density_out_of_range"
	CodeUnknownMaterial     = "unknown_material"
	CodeBuildupMissing      = "buildup_missing"
	CodeBuildupUnused       = "buildup_unused"
	CodeCollision           = "collision"
	CodeCollisionUnknown    = "collision_unknown"
	CodeDaughtersPending    = "daughter_nuclides_pending"
	CodeNuclideDatabase     = "nuclide_database"
	CodePendingChanges      = "pending_changes"
)

// mustResolveCodes block calculation until cleared.
var mustResolveCodes = map[string]struct{}{
	CodeDensityOutOfRange:  {},
	CodeDetectorTooClose:   {},
	CodeMissingUnitSection: {},
	CodeCollision:          {},
}

// IsMustResolve reports whether a finding code blocks calculation.
func IsMustResolve(code string) bool {
	_, ok := mustResolveCodes[code]
	return ok
}

// NewDefaultRulesEngine builds the pre-commit rule set. resolver may be nil,
// in which case nuclide names are not checked against the catalog.
func NewDefaultRulesEngine(cfg Config, resolver *nuclide.Resolver) *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(ZoneReferenceRule())
	engine.Register(AtmosphereZoneRule())
	engine.Register(TransformReferenceRule())
	engine.Register(DetectorPlacementRule(cfg.MinDetectorDistance))
	engine.Register(SourceInventoryRule(resolver))
	engine.Register(UnitSectionRule())
	engine.Register(UnitScaleRule())
	engine.Register(ZoneDensityRule())
	engine.Register(BuildupCoverageRule())
	return engine
}

func finding(rule domain.RuleID, code string, sev domain.Severity, entity domain.EntityType, name, format string, args ...any) domain.Violation {
	return domain.Violation{
		Rule:        rule,
		Code:        code,
		Severity:    sev,
		Message:     fmt.Sprintf(format, args...),
		Entity:      entity,
		EntityName:  name,
		MustResolve: IsMustResolve(code),
	}
}

// placement resolves document coordinates, including transforms, in cm.
type placement struct {
	transforms map[string]domain.Transform
	angle      float64
	scale      float64
}

func newPlacement(doc domain.Document) placement {
	idx := make(map[string]domain.Transform, len(doc.Transforms))
	for _, t := range doc.Transforms {
		idx[t.Name] = t
	}
	return placement{transforms: idx, angle: units.AngleToRadians(doc.Unit), scale: units.LengthToCM(doc.Unit)}
}

func (p placement) mapper(name string) (geometry.PointMapper, error) {
	if name == "" {
		return geometry.Identity, nil
	}
	t, ok := p.transforms[name]
	if !ok {
		return nil, fmt.Errorf("transform %q not found", name)
	}
	return geometry.Compile(t, p.angle)
}

func (p placement) point(raw, transform string) (domain.Vector, error) {
	v, err := domain.ParseVector(raw)
	if err != nil {
		return domain.Vector{}, err
	}
	m, err := p.mapper(transform)
	if err != nil {
		return domain.Vector{}, err
	}
	return m(v).Scale(p.scale), nil
}

func (p placement) solid(s domain.Solid) (geometry.Box, error) {
	box, err := geometry.SolidBounds(s, p.transforms, p.angle)
	if err != nil {
		return geometry.Box{}, err
	}
	return box.Map(func(v domain.Vector) domain.Vector { return v.Scale(p.scale) }), nil
}

// source returns the region a source occupies: a degenerate box for points.
func (p placement) source(s domain.Source) (geometry.Box, error) {
	if s.Kind == domain.SourcePoint || s.Geometry == nil {
		v, err := p.point(s.Position, "")
		if err != nil {
			return geometry.Box{}, err
		}
		return geometry.Box{Min: v, Max: v}, nil
	}
	box, err := geometry.Bounds(domain.SolidKind(s.Kind), s.Geometry.Shape)
	if err != nil {
		return geometry.Box{}, err
	}
	m, err := p.mapper(s.Geometry.Transform)
	if err != nil {
		return geometry.Box{}, err
	}
	return box.Map(func(v domain.Vector) domain.Vector { return m(v).Scale(p.scale) }), nil
}
