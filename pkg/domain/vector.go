package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Vector is a parsed "x y z" coordinate triple.
type Vector struct {
	X, Y, Z float64
}

// ParseVector parses a whitespace separated triple of finite numbers.
func ParseVector(raw string) (Vector, error) {
	parts := strings.Fields(raw)
	if len(parts) != 3 {
		return Vector{}, fmt.Errorf("vector %q must have exactly 3 components", raw)
	}
	var out [3]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return Vector{}, fmt.Errorf("vector %q component %d is not a number", raw, i+1)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Vector{}, fmt.Errorf("vector %q component %d is not finite", raw, i+1)
		}
		out[i] = v
	}
	return Vector{X: out[0], Y: out[1], Z: out[2]}, nil
}

// String formats the vector in document notation.
func (v Vector) String() string {
	return strconv.FormatFloat(v.X, 'g', -1, 64) + " " +
		strconv.FormatFloat(v.Y, 'g', -1, 64) + " " +
		strconv.FormatFloat(v.Z, 'g', -1, 64)
}

// Add returns v+o.
func (v Vector) Add(o Vector) Vector { return Vector{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vector) Sub(o Vector) Vector { return Vector{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v*k.
func (v Vector) Scale(k float64) Vector { return Vector{v.X * k, v.Y * k, v.Z * k} }

// Dot returns the scalar product.
func (v Vector) Dot(o Vector) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Cross returns the vector product.
func (v Vector) Cross(o Vector) Vector {
	return Vector{v.Y*o.Z - v.Z*o.Y, v.Z*o.X - v.X*o.Z, v.X*o.Y - v.Y*o.X}
}

// Norm returns the Euclidean length.
func (v Vector) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Component returns the i-th coordinate (0=x, 1=y, 2=z).
func (v Vector) Component(i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
