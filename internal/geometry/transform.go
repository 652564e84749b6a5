package geometry

import (
	"fmt"
	"math"

	"shieldcore/pkg/domain"
)

// PointMapper maps a point through a transform.
type PointMapper func(domain.Vector) domain.Vector

// Identity leaves points unchanged.
func Identity(v domain.Vector) domain.Vector { return v }

// Compile turns a transform into a point mapper. Operations apply in list
// order; angles are multiplied by angleToRad before use.
func Compile(t domain.Transform, angleToRad float64) (PointMapper, error) {
	steps := make([]PointMapper, 0, len(t.Operations))
	for i, op := range t.Operations {
		switch {
		case op.Translate != "":
			d, err := domain.ParseVector(op.Translate)
			if err != nil {
				return nil, fmt.Errorf("transform %s operation %d: %w", t.Name, i, err)
			}
			steps = append(steps, func(v domain.Vector) domain.Vector { return v.Add(d) })
		case op.RotateAroundX != nil:
			steps = append(steps, rotation(0, *op.RotateAroundX*angleToRad))
		case op.RotateAroundY != nil:
			steps = append(steps, rotation(1, *op.RotateAroundY*angleToRad))
		case op.RotateAroundZ != nil:
			steps = append(steps, rotation(2, *op.RotateAroundZ*angleToRad))
		default:
			return nil, fmt.Errorf("transform %s operation %d is empty", t.Name, i)
		}
	}
	return func(v domain.Vector) domain.Vector {
		for _, step := range steps {
			v = step(v)
		}
		return v
	}, nil
}

func rotation(axis int, theta float64) PointMapper {
	c, s := math.Cos(theta), math.Sin(theta)
	return func(v domain.Vector) domain.Vector {
		switch axis {
		case 0:
			return domain.Vector{X: v.X, Y: v.Y*c - v.Z*s, Z: v.Y*s + v.Z*c}
		case 1:
			return domain.Vector{X: v.X*c + v.Z*s, Y: v.Y, Z: -v.X*s + v.Z*c}
		default:
			return domain.Vector{X: v.X*c - v.Y*s, Y: v.X*s + v.Y*c, Z: v.Z}
		}
	}
}

// SolidBounds returns the bounding box of a body after its transform, if
// any. transforms is keyed by name.
func SolidBounds(s domain.Solid, transforms map[string]domain.Transform, angleToRad float64) (Box, error) {
	box, err := Bounds(s.Kind, s.Shape)
	if err != nil {
		return Box{}, err
	}
	if s.Transform == "" {
		return box, nil
	}
	t, ok := transforms[s.Transform]
	if !ok {
		return Box{}, fmt.Errorf("transform %q not found", s.Transform)
	}
	mapper, err := Compile(t, angleToRad)
	if err != nil {
		return Box{}, err
	}
	return box.Map(mapper), nil
}
