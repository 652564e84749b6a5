// Package geometry computes axis-aligned bounding boxes and volumes of body
// primitives and applies coordinate transforms to them.
package geometry

import (
	"math"

	"shieldcore/pkg/domain"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min domain.Vector `json:"min" yaml:"min"`
	Max domain.Vector `json:"max" yaml:"max"`
}

// FromPoints returns the smallest box containing pts.
func FromPoints(pts ...domain.Vector) Box {
	if len(pts) == 0 {
		return Box{}
	}
	b := Box{Min: pts[0], Max: pts[0]}
	for _, p := range pts[1:] {
		b.Min = domain.Vector{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
		b.Max = domain.Vector{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
	}
	return b
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(o Box) Box {
	return FromPoints(b.Min, b.Max, o.Min, o.Max)
}

// Volume returns the box volume.
func (b Box) Volume() float64 {
	return (b.Max.X - b.Min.X) * (b.Max.Y - b.Min.Y) * (b.Max.Z - b.Min.Z)
}

// Corners returns the eight box vertices.
func (b Box) Corners() []domain.Vector {
	out := make([]domain.Vector, 0, 8)
	for _, x := range []float64{b.Min.X, b.Max.X} {
		for _, y := range []float64{b.Min.Y, b.Max.Y} {
			for _, z := range []float64{b.Min.Z, b.Max.Z} {
				out = append(out, domain.Vector{X: x, Y: y, Z: z})
			}
		}
	}
	return out
}

// Intersect returns the overlap of two boxes. ok is false when the boxes are
// separated on any axis; touching boxes yield a zero-volume overlap.
func (b Box) Intersect(o Box) (Box, bool) {
	lo := domain.Vector{X: math.Max(b.Min.X, o.Min.X), Y: math.Max(b.Min.Y, o.Min.Y), Z: math.Max(b.Min.Z, o.Min.Z)}
	hi := domain.Vector{X: math.Min(b.Max.X, o.Max.X), Y: math.Min(b.Max.Y, o.Max.Y), Z: math.Min(b.Max.Z, o.Max.Z)}
	if lo.X > hi.X || lo.Y > hi.Y || lo.Z > hi.Z {
		return Box{}, false
	}
	return Box{Min: lo, Max: hi}, true
}

// Map applies fn to every corner and returns the bounding box of the result.
func (b Box) Map(fn func(domain.Vector) domain.Vector) Box {
	corners := b.Corners()
	for i, c := range corners {
		corners[i] = fn(c)
	}
	return FromPoints(corners...)
}

// Contains reports whether p lies inside or on the box.
func (b Box) Contains(p domain.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Distance returns the Euclidean distance from p to the box; zero inside.
func (b Box) Distance(p domain.Vector) float64 {
	d := domain.Vector{
		X: math.Max(math.Max(b.Min.X-p.X, 0), p.X-b.Max.X),
		Y: math.Max(math.Max(b.Min.Y-p.Y, 0), p.Y-b.Max.Y),
		Z: math.Max(math.Max(b.Min.Z-p.Z, 0), p.Z-b.Max.Z),
	}
	return d.Norm()
}
