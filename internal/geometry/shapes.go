package geometry

import (
	"errors"
	"fmt"
	"math"

	"shieldcore/pkg/domain"
)

// ErrUnsupported is returned for kinds without closed-form bounds (CMB).
var ErrUnsupported = errors.New("geometry: unsupported kind")

// Bounds returns the untransformed bounding box of a primitive.
func Bounds(kind domain.SolidKind, s domain.Shape) (Box, error) {
	p, err := parse(kind, s)
	if err != nil {
		return Box{}, err
	}
	switch kind {
	case domain.SolidSPH:
		r := domain.Vector{X: p.r, Y: p.r, Z: p.r}
		return Box{Min: p.center.Sub(r), Max: p.center.Add(r)}, nil
	case domain.SolidRPP:
		return FromPoints(p.min, p.max), nil
	case domain.SolidBOX:
		return FromPoints(parallelepiped(p.vertex, p.e1, p.e2, p.e3)...), nil
	case domain.SolidWED:
		v := p.vertex
		return FromPoints(v, v.Add(p.e1), v.Add(p.e2), v.Add(p.e3), v.Add(p.e1).Add(p.e3), v.Add(p.e2).Add(p.e3)), nil
	case domain.SolidRCC:
		top := p.base.Add(p.height)
		return diskBox(p.base, p.height, p.r).Union(diskBox(top, p.height, p.r)), nil
	case domain.SolidTRC:
		top := p.base.Add(p.height)
		return diskBox(p.base, p.height, p.r).Union(diskBox(top, p.height, p.r2)), nil
	case domain.SolidREC:
		ext := ellipseExtent(p.a1, p.a2, domain.Vector{})
		top := p.base.Add(p.height)
		return Box{Min: p.base.Sub(ext), Max: p.base.Add(ext)}.Union(Box{Min: top.Sub(ext), Max: top.Add(ext)}), nil
	case domain.SolidELL:
		ext := ellipseExtent(p.a1, p.a2, p.a3)
		return Box{Min: p.center.Sub(ext), Max: p.center.Add(ext)}, nil
	case domain.SolidTOR:
		n := p.axis.Scale(1 / p.axis.Norm())
		ext := domain.Vector{
			X: p.r*math.Sqrt(math.Max(0, 1-n.X*n.X)) + p.r2,
			Y: p.r*math.Sqrt(math.Max(0, 1-n.Y*n.Y)) + p.r2,
			Z: p.r*math.Sqrt(math.Max(0, 1-n.Z*n.Z)) + p.r2,
		}
		return Box{Min: p.center.Sub(ext), Max: p.center.Add(ext)}, nil
	}
	return Box{}, fmt.Errorf("%w: %s", ErrUnsupported, kind)
}

// Volume returns the exact volume of a primitive.
func Volume(kind domain.SolidKind, s domain.Shape) (float64, error) {
	p, err := parse(kind, s)
	if err != nil {
		return 0, err
	}
	switch kind {
	case domain.SolidSPH:
		return 4.0 / 3.0 * math.Pi * p.r * p.r * p.r, nil
	case domain.SolidRPP:
		d := p.max.Sub(p.min)
		return math.Abs(d.X * d.Y * d.Z), nil
	case domain.SolidBOX:
		return math.Abs(p.e1.Dot(p.e2.Cross(p.e3))), nil
	case domain.SolidWED:
		return math.Abs(p.e1.Dot(p.e2.Cross(p.e3))) / 2, nil
	case domain.SolidRCC:
		return math.Pi * p.r * p.r * p.height.Norm(), nil
	case domain.SolidTRC:
		return math.Pi * p.height.Norm() * (p.r*p.r + p.r*p.r2 + p.r2*p.r2) / 3, nil
	case domain.SolidREC:
		return math.Pi * p.a1.Norm() * p.a2.Norm() * p.height.Norm(), nil
	case domain.SolidELL:
		return 4.0 / 3.0 * math.Pi * p.a1.Norm() * p.a2.Norm() * p.a3.Norm(), nil
	case domain.SolidTOR:
		return 2 * math.Pi * math.Pi * p.r * p.r2 * p.r2, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupported, kind)
}

type parsed struct {
	center, min, max, vertex, e1, e2, e3 domain.Vector
	base, height, axis, a1, a2, a3       domain.Vector
	r, r2                                float64
}

func parse(kind domain.SolidKind, s domain.Shape) (parsed, error) {
	var p parsed
	var err error
	vec := func(dst *domain.Vector, raw string) {
		if err != nil {
			return
		}
		*dst, err = domain.ParseVector(raw)
	}
	num := func(dst *float64, v *float64, field string) {
		if err != nil {
			return
		}
		if v == nil {
			err = fmt.Errorf("%s is required for %s", field, kind)
			return
		}
		*dst = *v
	}
	switch kind {
	case domain.SolidSPH:
		vec(&p.center, s.Center)
		num(&p.r, s.Radius, "radius")
	case domain.SolidRPP:
		vec(&p.min, s.Min)
		vec(&p.max, s.Max)
	case domain.SolidBOX, domain.SolidWED:
		vec(&p.vertex, s.Vertex)
		vec(&p.e1, s.Edge1)
		vec(&p.e2, s.Edge2)
		vec(&p.e3, s.Edge3)
	case domain.SolidRCC:
		vec(&p.base, s.BottomCenter)
		vec(&p.height, s.HeightVector)
		num(&p.r, s.Radius, "radius")
	case domain.SolidTRC:
		vec(&p.base, s.BottomCenter)
		vec(&p.height, s.HeightVector)
		num(&p.r, s.BottomRadius, "bottom_radius")
		num(&p.r2, s.TopRadius, "top_radius")
	case domain.SolidREC:
		vec(&p.base, s.BottomCenter)
		vec(&p.height, s.HeightVector)
		vec(&p.a1, s.RadiusVector1)
		vec(&p.a2, s.RadiusVector2)
	case domain.SolidELL:
		vec(&p.center, s.Center)
		vec(&p.a1, s.RadiusVector1)
		vec(&p.a2, s.RadiusVector2)
		vec(&p.a3, s.RadiusVector3)
	case domain.SolidTOR:
		vec(&p.center, s.Center)
		vec(&p.axis, s.Axis)
		num(&p.r, s.MajorRadius, "major_radius")
		num(&p.r2, s.MinorRadius, "minor_radius")
		if err == nil && p.axis.Norm() == 0 {
			err = errors.New("axis must be non-zero")
		}
	default:
		return p, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	switch kind {
	case domain.SolidRCC, domain.SolidTRC, domain.SolidREC:
		if err == nil && p.height.Norm() == 0 {
			err = errors.New("height_vector must be non-zero")
		}
	}
	return p, err
}

func parallelepiped(v, e1, e2, e3 domain.Vector) []domain.Vector {
	out := make([]domain.Vector, 0, 8)
	for _, a := range []float64{0, 1} {
		for _, b := range []float64{0, 1} {
			for _, c := range []float64{0, 1} {
				out = append(out, v.Add(e1.Scale(a)).Add(e2.Scale(b)).Add(e3.Scale(c)))
			}
		}
	}
	return out
}

// diskBox bounds a disk of radius r centred at c with normal h.
func diskBox(c, h domain.Vector, r float64) Box {
	n := h.Scale(1 / h.Norm())
	ext := domain.Vector{
		X: r * math.Sqrt(math.Max(0, 1-n.X*n.X)),
		Y: r * math.Sqrt(math.Max(0, 1-n.Y*n.Y)),
		Z: r * math.Sqrt(math.Max(0, 1-n.Z*n.Z)),
	}
	return Box{Min: c.Sub(ext), Max: c.Add(ext)}
}

// ellipseExtent is the half-width per axis of an ellipse/ellipsoid spanned by
// orthogonal semi-axis vectors.
func ellipseExtent(a1, a2, a3 domain.Vector) domain.Vector {
	return domain.Vector{
		X: math.Sqrt(a1.X*a1.X + a2.X*a2.X + a3.X*a3.X),
		Y: math.Sqrt(a1.Y*a1.Y + a2.Y*a2.Y + a3.Y*a3.Y),
		Z: math.Sqrt(a1.Z*a1.Z + a2.Z*a2.Z + a3.Z*a3.Z),
	}
}
