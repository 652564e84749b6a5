package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,50}$`)

// Density bounds accepted for any non-void zone, in g/cm3.
const (
	MinDensity = 0.001
	MaxDensity = 30.0
)

// Activity bounds of one inventory entry, in Bq. They match the
// InventoryEntry validate tag.
const (
	MinActivity = 0.001
	MaxActivity = 1e15
)

// Detector grid point limits keyed by grid dimension.
var maxGridPoints = map[int]int{1: 10000, 2: 250000, 3: 1000000}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs struct-tag checks and maps the first failure onto *Error.
func validateStruct(v any) error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return Validationf(CodeInvalidInput, "", nil, "invalid input: %v", err)
	}
	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return Validationf(CodeMissingField, field, nil, "%s is required", field)
	case "oneof":
		return Validationf(CodeInvalidInput, field, fe.Value(), "%s must be one of [%s]", field, fe.Param())
	case "ltfield":
		return Validationf(CodeOutOfRange, field, fe.Value(), "%s must be less than %s", field, strings.ToLower(fe.Param()))
	default:
		return Validationf(CodeOutOfRange, field, fe.Value(), "%s violates %s=%s", field, fe.Tag(), fe.Param())
	}
}

// ValidateName checks the shared entity name pattern.
func ValidateName(field, name string) error {
	if !namePattern.MatchString(name) {
		return Validationf(CodeInvalidName, field, name, "%s must match [A-Za-z0-9_]{1,50}", field)
	}
	return nil
}

func validateVector(field, raw string) (Vector, error) {
	v, err := ParseVector(raw)
	if err != nil {
		return Vector{}, Validationf(CodeInvalidVector, field, raw, "%v", err)
	}
	return v, nil
}

type shapeField struct {
	name   string
	vector *string
	scalar **float64
}

func (f shapeField) present() bool {
	if f.vector != nil {
		return strings.TrimSpace(*f.vector) != ""
	}
	return *f.scalar != nil
}

func (s *Shape) fields() []shapeField {
	return []shapeField{
		{name: "center", vector: &s.Center},
		{name: "radius", scalar: &s.Radius},
		{name: "min", vector: &s.Min},
		{name: "max", vector: &s.Max},
		{name: "vertex", vector: &s.Vertex},
		{name: "edge_1", vector: &s.Edge1},
		{name: "edge_2", vector: &s.Edge2},
		{name: "edge_3", vector: &s.Edge3},
		{name: "bottom_center", vector: &s.BottomCenter},
		{name: "height_vector", vector: &s.HeightVector},
		{name: "bottom_radius", scalar: &s.BottomRadius},
		{name: "top_radius", scalar: &s.TopRadius},
		{name: "axis", vector: &s.Axis},
		{name: "major_radius", scalar: &s.MajorRadius},
		{name: "minor_radius", scalar: &s.MinorRadius},
		{name: "radius_vector_1", vector: &s.RadiusVector1},
		{name: "radius_vector_2", vector: &s.RadiusVector2},
		{name: "radius_vector_3", vector: &s.RadiusVector3},
	}
}

// ShapeFields lists the geometric fields each primitive kind requires.
var ShapeFields = map[SolidKind][]string{
	SolidSPH: {"center", "radius"},
	SolidRPP: {"min", "max"},
	SolidBOX: {"vertex", "edge_1", "edge_2", "edge_3"},
	SolidRCC: {"bottom_center", "height_vector", "radius"},
	SolidTRC: {"bottom_center", "height_vector", "bottom_radius", "top_radius"},
	SolidTOR: {"center", "axis", "major_radius", "minor_radius"},
	SolidELL: {"center", "radius_vector_1", "radius_vector_2", "radius_vector_3"},
	SolidREC: {"bottom_center", "height_vector", "radius_vector_1", "radius_vector_2"},
	SolidWED: {"vertex", "edge_1", "edge_2", "edge_3"},
	SolidCMB: {},
}

// validateShape requires exactly the fields of kind, parses vectors and
// checks scalar positivity.
func validateShape(prefix string, kind SolidKind, s Shape) error {
	required, ok := ShapeFields[kind]
	if !ok {
		return Validationf(CodeUnknownKind, prefix+"type", kind, "unknown type %s", kind)
	}
	want := make(map[string]bool, len(required))
	for _, name := range required {
		want[name] = true
	}
	for _, f := range s.fields() {
		field := prefix + f.name
		switch {
		case want[f.name] && !f.present():
			return Validationf(CodeMissingField, field, nil, "%s is required for %s", field, kind)
		case !want[f.name] && f.present():
			return Validationf(CodeUnexpectedField, field, nil, "%s is not allowed for %s", field, kind)
		case !f.present():
			continue
		}
		if f.vector != nil {
			if _, err := validateVector(field, *f.vector); err != nil {
				return err
			}
			continue
		}
		v := **f.scalar
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return Validationf(CodeOutOfRange, field, v, "%s must be a positive finite number", field)
		}
	}
	return validateShapePhysics(prefix, kind, s)
}

func validateShapePhysics(prefix string, kind SolidKind, s Shape) error {
	switch kind {
	case SolidRPP:
		lo, _ := ParseVector(s.Min)
		hi, _ := ParseVector(s.Max)
		for i := 0; i < 3; i++ {
			if lo.Component(i) >= hi.Component(i) {
				return Physicsf(CodeDegenerate, prefix+"max", s.Max, "max must exceed min on every axis")
			}
		}
	case SolidBOX, SolidWED:
		e1, _ := ParseVector(s.Edge1)
		e2, _ := ParseVector(s.Edge2)
		e3, _ := ParseVector(s.Edge3)
		if math.Abs(e1.Dot(e2.Cross(e3))) == 0 {
			return Physicsf(CodeDegenerate, prefix+"edge_3", s.Edge3, "edges span no volume")
		}
	case SolidRCC, SolidTRC, SolidREC:
		h, _ := ParseVector(s.HeightVector)
		if h.Norm() == 0 {
			return Physicsf(CodeDegenerate, prefix+"height_vector", s.HeightVector, "height vector must be non-zero")
		}
	case SolidTOR:
		a, _ := ParseVector(s.Axis)
		if a.Norm() == 0 {
			return Physicsf(CodeDegenerate, prefix+"axis", s.Axis, "axis must be non-zero")
		}
		if *s.MinorRadius >= *s.MajorRadius {
			return Physicsf(CodeDegenerate, prefix+"minor_radius", *s.MinorRadius, "minor radius must be smaller than major radius")
		}
	case SolidELL:
		for _, raw := range []string{s.RadiusVector1, s.RadiusVector2, s.RadiusVector3} {
			if v, _ := ParseVector(raw); v.Norm() == 0 {
				return Physicsf(CodeDegenerate, prefix+"radius_vector", raw, "radius vectors must be non-zero")
			}
		}
	}
	return nil
}

// Validate checks the body definition in isolation. Expression grammar and
// references are checked by the store against the other bodies.
func (s Solid) Validate() error {
	if err := ValidateName("name", s.Name); err != nil {
		return err
	}
	if err := validateShape("", s.Kind, s.Shape); err != nil {
		return err
	}
	if s.Kind == SolidCMB {
		if strings.TrimSpace(s.Expression) == "" {
			return Validationf(CodeExpressionEmpty, "expression", s.Expression, "CMB body requires an expression")
		}
	} else if s.Expression != "" {
		return Validationf(CodeUnexpectedField, "expression", s.Expression, "expression is only allowed for CMB")
	}
	if s.Transform != "" {
		return ValidateName("transform", s.Transform)
	}
	return nil
}

// Validate enforces the void/density coupling and the global density range.
func (z Zone) Validate() error {
	if strings.TrimSpace(z.BodyName) == "" {
		return Validationf(CodeMissingField, "body_name", nil, "body_name is required")
	}
	if strings.TrimSpace(z.Material) == "" {
		return Validationf(CodeMissingField, "material", nil, "material is required")
	}
	if strings.EqualFold(z.Material, MaterialVoid) {
		if z.Density != nil {
			return Validationf(CodeUnexpectedField, "density", *z.Density, "density is not allowed for material VOID")
		}
		return nil
	}
	if z.Density == nil {
		return Validationf(CodeMissingField, "density", nil, "density is required for material %s", z.Material)
	}
	d := *z.Density
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return Validationf(CodeOutOfRange, "density", d, "density must be a finite number")
	}
	if d < MinDensity || d > MaxDensity {
		return Physicsf(CodeDensityRange, "density", d, "density must be within [%g, %g] g/cm3", MinDensity, MaxDensity)
	}
	return nil
}

// Validate checks that every operation sets exactly one field.
func (t Transform) Validate() error {
	if err := ValidateName("name", t.Name); err != nil {
		return err
	}
	if len(t.Operations) == 0 {
		return Validationf(CodeMissingField, "operations", nil, "transform requires at least one operation")
	}
	for i, op := range t.Operations {
		field := fmt.Sprintf("operations[%d]", i)
		set := 0
		if op.Translate != "" {
			set++
			if _, err := validateVector(field+".translate", op.Translate); err != nil {
				return err
			}
		}
		for _, angle := range []*float64{op.RotateAroundX, op.RotateAroundY, op.RotateAroundZ} {
			if angle == nil {
				continue
			}
			set++
			if math.IsNaN(*angle) || math.IsInf(*angle, 0) {
				return Validationf(CodeOutOfRange, field, *angle, "rotation angle must be finite")
			}
		}
		if set != 1 {
			return Validationf(CodeInvalidInput, field, set, "each operation must set exactly one of translate, rotate_around_x, rotate_around_y, rotate_around_z")
		}
	}
	return nil
}

// Validate checks the buildup factor key.
func (b BuildupFactor) Validate() error {
	if strings.TrimSpace(b.Material) == "" {
		return Validationf(CodeMissingField, "material", nil, "material is required")
	}
	return nil
}

// DivisionAxes lists the required division axes of each volumetric source kind.
var DivisionAxes = map[SourceKind][]string{
	SourceSPH: {"r", "theta", "phi"},
	SourceRCC: {"r", "phi", "z"},
	SourceRPP: {"x", "y", "z"},
	SourceBOX: {"edge_1", "edge_2", "edge_3"},
}

// Validate checks the point/volumetric field split, geometry, division and inventory.
func (s Source) Validate() error {
	if err := ValidateName("name", s.Name); err != nil {
		return err
	}
	if s.Kind == SourcePoint {
		if s.Geometry != nil {
			return Validationf(CodeUnexpectedField, "geometry", nil, "geometry is not allowed for POINT sources")
		}
		if len(s.Division) > 0 {
			return Validationf(CodeUnexpectedField, "division", nil, "division is not allowed for POINT sources")
		}
		if s.Position == "" {
			return Validationf(CodeMissingField, "position", nil, "position is required for POINT sources")
		}
		if _, err := validateVector("position", s.Position); err != nil {
			return err
		}
		return validateStruct(s)
	}
	axes, ok := DivisionAxes[s.Kind]
	if !ok {
		return Validationf(CodeUnknownKind, "type", s.Kind, "unknown source type %s", s.Kind)
	}
	if s.Position != "" {
		return Validationf(CodeUnexpectedField, "position", s.Position, "position is only allowed for POINT sources")
	}
	if s.Geometry == nil {
		return Validationf(CodeMissingField, "geometry", nil, "geometry is required for %s sources", s.Kind)
	}
	if err := validateShape("geometry.", SolidKind(s.Kind), s.Geometry.Shape); err != nil {
		return err
	}
	if s.Geometry.Transform != "" {
		if err := ValidateName("geometry.transform", s.Geometry.Transform); err != nil {
			return err
		}
	}
	for _, axis := range axes {
		if _, ok := s.Division[axis]; !ok {
			return Validationf(CodeMissingField, "division."+axis, nil, "division.%s is required for %s sources", axis, s.Kind)
		}
	}
	if len(s.Division) != len(axes) {
		extra := make([]string, 0)
		for axis := range s.Division {
			if !containsString(axes, axis) {
				extra = append(extra, axis)
			}
		}
		sort.Strings(extra)
		return Validationf(CodeUnexpectedField, "division", extra, "unexpected division axes for %s", s.Kind)
	}
	return validateStruct(s)
}

// Validate checks origin, grid edges and the grid point budget.
func (d Detector) Validate() error {
	if err := ValidateName("name", d.Name); err != nil {
		return err
	}
	if _, err := validateVector("origin", d.Origin); err != nil {
		return err
	}
	if err := validateStruct(d); err != nil {
		return err
	}
	points := 1
	for i, axis := range d.Grid {
		if _, err := validateVector(fmt.Sprintf("grid[%d].edge", i), axis.Edge); err != nil {
			return err
		}
		points *= axis.Number
	}
	if limit := maxGridPoints[len(d.Grid)]; len(d.Grid) > 0 && points > limit {
		return Validationf(CodeOutOfRange, "grid", points, "grid of %d dimensions allows at most %d points", len(d.Grid), limit)
	}
	if d.Transform != "" {
		return ValidateName("transform", d.Transform)
	}
	return nil
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
