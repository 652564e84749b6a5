// Package domain defines the configuration entities, staged change records,
// structured errors and rule evaluation primitives used by shieldcore.
package domain

import "time"

// EntityType identifies a top-level collection of the configuration document.
type EntityType string

// Supported entity types. The values double as the document collection keys.
const (
	// EntitySolid identifies a geometric body.
	EntitySolid EntityType = "body"
	// EntityZone identifies a material assignment bound to one body.
	EntityZone EntityType = "zone"
	// EntityTransform identifies a named coordinate transform.
	EntityTransform EntityType = "transform"
	// EntityBuildupFactor identifies an ordered buildup factor setting.
	EntityBuildupFactor EntityType = "buildup_factor"
	// EntitySource identifies a radiation source.
	EntitySource EntityType = "source"
	// EntityDetector identifies a detector.
	EntityDetector EntityType = "detector"
	// EntityUnit identifies the unit system section.
	EntityUnit EntityType = "unit"
)

// EntityTypes lists the collections in document order.
var EntityTypes = []EntityType{EntityUnit, EntitySolid, EntityZone, EntityTransform, EntityBuildupFactor, EntitySource, EntityDetector}

// ParseEntityType resolves a collection key, accepting "solid" as an alias for "body".
func ParseEntityType(raw string) (EntityType, bool) {
	if raw == "solid" {
		return EntitySolid, true
	}
	for _, t := range EntityTypes {
		if string(t) == raw {
			return t, true
		}
	}
	return "", false
}

// SolidKind enumerates the supported body primitives.
type SolidKind string

// Body primitives. CMB is a boolean combination of other bodies.
const (
	SolidSPH SolidKind = "SPH"
	SolidRCC SolidKind = "RCC"
	SolidRPP SolidKind = "RPP"
	SolidBOX SolidKind = "BOX"
	SolidCMB SolidKind = "CMB"
	SolidTOR SolidKind = "TOR"
	SolidELL SolidKind = "ELL"
	SolidREC SolidKind = "REC"
	SolidTRC SolidKind = "TRC"
	SolidWED SolidKind = "WED"
)

// SolidKinds lists every accepted body kind.
var SolidKinds = []SolidKind{SolidSPH, SolidRCC, SolidRPP, SolidBOX, SolidCMB, SolidTOR, SolidELL, SolidREC, SolidTRC, SolidWED}

// AtmosphereZone is the reserved, mandatory zone that fills space outside every body.
const AtmosphereZone = "ATMOSPHERE"

// MaterialVoid marks a zone without matter; such zones carry no density.
const MaterialVoid = "VOID"

// Shape carries the kind-specific geometric fields shared by bodies and
// volumetric source geometries. Vectors are "x y z" strings.
type Shape struct {
	Center        string   `yaml:"center,omitempty" json:"center,omitempty"`
	Radius        *float64 `yaml:"radius,omitempty" json:"radius,omitempty"`
	Min           string   `yaml:"min,omitempty" json:"min,omitempty"`
	Max           string   `yaml:"max,omitempty" json:"max,omitempty"`
	Vertex        string   `yaml:"vertex,omitempty" json:"vertex,omitempty"`
	Edge1         string   `yaml:"edge_1,omitempty" json:"edge_1,omitempty"`
	Edge2         string   `yaml:"edge_2,omitempty" json:"edge_2,omitempty"`
	Edge3         string   `yaml:"edge_3,omitempty" json:"edge_3,omitempty"`
	BottomCenter  string   `yaml:"bottom_center,omitempty" json:"bottom_center,omitempty"`
	HeightVector  string   `yaml:"height_vector,omitempty" json:"height_vector,omitempty"`
	BottomRadius  *float64 `yaml:"bottom_radius,omitempty" json:"bottom_radius,omitempty"`
	TopRadius     *float64 `yaml:"top_radius,omitempty" json:"top_radius,omitempty"`
	Axis          string   `yaml:"axis,omitempty" json:"axis,omitempty"`
	MajorRadius   *float64 `yaml:"major_radius,omitempty" json:"major_radius,omitempty"`
	MinorRadius   *float64 `yaml:"minor_radius,omitempty" json:"minor_radius,omitempty"`
	RadiusVector1 string   `yaml:"radius_vector_1,omitempty" json:"radius_vector_1,omitempty"`
	RadiusVector2 string   `yaml:"radius_vector_2,omitempty" json:"radius_vector_2,omitempty"`
	RadiusVector3 string   `yaml:"radius_vector_3,omitempty" json:"radius_vector_3,omitempty"`
}

// Solid is a geometric primitive or a CMB boolean combination of other solids.
type Solid struct {
	Name       string    `yaml:"name" json:"name"`
	Kind       SolidKind `yaml:"type" json:"type"`
	Shape      `yaml:",inline"`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
	Transform  string `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// Zone binds a material to exactly one solid.
type Zone struct {
	BodyName string   `yaml:"body_name" json:"body_name"`
	Material string   `yaml:"material" json:"material"`
	Density  *float64 `yaml:"density,omitempty" json:"density,omitempty"`
}

// TransformOp is a single step of a transform: exactly one field is set.
type TransformOp struct {
	Translate     string   `yaml:"translate,omitempty" json:"translate,omitempty"`
	RotateAroundX *float64 `yaml:"rotate_around_x,omitempty" json:"rotate_around_x,omitempty"`
	RotateAroundY *float64 `yaml:"rotate_around_y,omitempty" json:"rotate_around_y,omitempty"`
	RotateAroundZ *float64 `yaml:"rotate_around_z,omitempty" json:"rotate_around_z,omitempty"`
}

// Transform is a named, ordered list of operations.
type Transform struct {
	Name       string        `yaml:"name" json:"name"`
	Operations []TransformOp `yaml:"operations" json:"operations"`
}

// BuildupFactor configures buildup corrections for one material. The order
// of the buildup factor list is significant.
type BuildupFactor struct {
	Material               string `yaml:"material" json:"material"`
	SlantCorrection        bool   `yaml:"use_slant_correction" json:"use_slant_correction"`
	FiniteMediumCorrection bool   `yaml:"use_finite_medium_correction" json:"use_finite_medium_correction"`
}

// SourceKind enumerates radiation source geometries.
type SourceKind string

// Source geometries: a point or one of the volumetric primitives.
const (
	SourcePoint SourceKind = "POINT"
	SourceSPH   SourceKind = "SPH"
	SourceRCC   SourceKind = "RCC"
	SourceRPP   SourceKind = "RPP"
	SourceBOX   SourceKind = "BOX"
)

// DivisionType enumerates the mesh spacing of a volumetric source axis.
type DivisionType string

// Supported division spacings.
const (
	DivisionUniform     DivisionType = "UNIFORM"
	DivisionGaussFirst  DivisionType = "GAUSS_FIRST"
	DivisionGaussLast   DivisionType = "GAUSS_LAST"
	DivisionGaussBoth   DivisionType = "GAUSS_BOTH"
	DivisionGaussCenter DivisionType = "GAUSS_CENTER"
)

// AxisDivision describes how one axis of a volumetric source is meshed.
type AxisDivision struct {
	Type   DivisionType `yaml:"type" json:"type" validate:"oneof=UNIFORM GAUSS_FIRST GAUSS_LAST GAUSS_BOTH GAUSS_CENTER"`
	Number int          `yaml:"number" json:"number" validate:"gte=2,lte=1000"`
	Min    float64      `yaml:"min" json:"min" validate:"gte=0,lte=1,ltfield=Max"`
	Max    float64      `yaml:"max" json:"max" validate:"gte=0,lte=1"`
}

// SourceGeometry is the volume of a volumetric source.
type SourceGeometry struct {
	Shape     `yaml:",inline"`
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`
}

// InventoryEntry is one nuclide and its activity in Bq.
type InventoryEntry struct {
	Nuclide  string  `yaml:"nuclide" json:"nuclide" validate:"required"`
	Activity float64 `yaml:"radioactivity" json:"radioactivity" validate:"gte=0.001,lte=1e15"`
}

// Source is a named radiation source.
type Source struct {
	Name       string                  `yaml:"name" json:"name"`
	Kind       SourceKind              `yaml:"type" json:"type"`
	Position   string                  `yaml:"position,omitempty" json:"position,omitempty"`
	Geometry   *SourceGeometry         `yaml:"geometry,omitempty" json:"geometry,omitempty"`
	Division   map[string]AxisDivision `yaml:"division,omitempty" json:"division,omitempty" validate:"omitempty,dive"`
	Inventory  []InventoryEntry        `yaml:"inventory" json:"inventory" validate:"required,min=1,dive"`
	CutoffRate float64                 `yaml:"cutoff_rate" json:"cutoff_rate" validate:"gte=0.0001,lte=1"`
}

// GridAxis is one edge of a detector grid.
type GridAxis struct {
	Edge   string `yaml:"edge" json:"edge"`
	Number int    `yaml:"number" json:"number" validate:"gte=1,lte=10000"`
}

// Detector is a named scoring point or grid.
type Detector struct {
	Name          string     `yaml:"name" json:"name"`
	Origin        string     `yaml:"origin" json:"origin"`
	Grid          []GridAxis `yaml:"grid,omitempty" json:"grid,omitempty" validate:"omitempty,min=1,max=3,dive"`
	Transform     string     `yaml:"transform,omitempty" json:"transform,omitempty"`
	ShowPathTrace *bool      `yaml:"show_path_trace" json:"show_path_trace" validate:"required"`
}

// UnitSystem maps each of the four unit keys to its value. It is a map so a
// malformed document (missing or extra keys) can be represented and rejected.
type UnitSystem map[string]string

// Unit keys.
const (
	UnitLength        = "length"
	UnitAngle         = "angle"
	UnitDensity       = "density"
	UnitRadioactivity = "radioactivity"
)

// DefaultUnits returns the unit system of a new document.
func DefaultUnits() UnitSystem {
	return UnitSystem{UnitLength: "cm", UnitAngle: "degree", UnitDensity: "g/cm3", UnitRadioactivity: "Bq"}
}

// Clone copies the unit map.
func (u UnitSystem) Clone() UnitSystem {
	if u == nil {
		return nil
	}
	out := make(UnitSystem, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}

// Document is the committed configuration handed to the external solver.
type Document struct {
	Unit           UnitSystem      `yaml:"unit" json:"unit"`
	Bodies         []Solid         `yaml:"body" json:"body"`
	Zones          []Zone          `yaml:"zone" json:"zone"`
	Transforms     []Transform     `yaml:"transform" json:"transform"`
	BuildupFactors []BuildupFactor `yaml:"buildup_factor" json:"buildup_factor"`
	Sources        []Source        `yaml:"source" json:"source"`
	Detectors      []Detector      `yaml:"detector" json:"detector"`
}

// NewDocument returns an empty document with default units and the ATMOSPHERE zone.
func NewDocument() Document {
	return Document{
		Unit:  DefaultUnits(),
		Zones: []Zone{{BodyName: AtmosphereZone, Material: MaterialVoid}},
	}
}

// Action tags a pending change.
type Action string

// Pending change actions.
const (
	// ActionPropose adds a new entity.
	ActionPropose Action = "propose"
	// ActionUpdate merges a partial payload into an existing entity.
	ActionUpdate Action = "update"
	// ActionDelete removes an entity.
	ActionDelete Action = "delete"
	// ActionInsert adds a buildup factor at an index.
	ActionInsert Action = "insert"
	// ActionReorder moves a buildup factor from Index to To.
	ActionReorder Action = "reorder"
)

// PendingChange is a queued, not yet committed edit. Records are immutable
// once appended to the change log.
type PendingChange struct {
	ID        string         `yaml:"id" json:"id"`
	Action    Action         `yaml:"action" json:"action"`
	Entity    EntityType     `yaml:"entity" json:"entity"`
	Name      string         `yaml:"name,omitempty" json:"name,omitempty"`
	Index     *int           `yaml:"index,omitempty" json:"index,omitempty"`
	To        *int           `yaml:"to,omitempty" json:"to,omitempty"`
	Payload   map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
	Timestamp time.Time      `yaml:"timestamp" json:"timestamp"`
}

// Clone deep-copies the change so callers cannot mutate logged payloads.
func (c PendingChange) Clone() PendingChange {
	cp := c
	if c.Index != nil {
		v := *c.Index
		cp.Index = &v
	}
	if c.To != nil {
		v := *c.To
		cp.To = &v
	}
	cp.Payload = ClonePayload(c.Payload)
	return cp
}

// ClonePayload deep-copies a decoded YAML/JSON payload.
func ClonePayload(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return ClonePayload(t)
	case []any:
		cp := make([]any, len(t))
		for i, item := range t {
			cp[i] = cloneValue(item)
		}
		return cp
	default:
		return v
	}
}
