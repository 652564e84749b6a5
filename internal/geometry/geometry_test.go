package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shieldcore/pkg/domain"
)

func f(v float64) *float64 { return &v }

func assertVec(t *testing.T, want, got domain.Vector) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-9, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-9, "z")
}

func TestBoundsPrimitives(t *testing.T) {
	cases := []struct {
		name     string
		kind     domain.SolidKind
		shape    domain.Shape
		min, max domain.Vector
	}{
		{"sphere", domain.SolidSPH, domain.Shape{Center: "1 2 3", Radius: f(2)},
			domain.Vector{X: -1, Y: 0, Z: 1}, domain.Vector{X: 3, Y: 4, Z: 5}},
		{"rpp", domain.SolidRPP, domain.Shape{Min: "0 0 0", Max: "1 2 3"},
			domain.Vector{}, domain.Vector{X: 1, Y: 2, Z: 3}},
		{"box", domain.SolidBOX, domain.Shape{Vertex: "0 0 0", Edge1: "2 0 0", Edge2: "0 3 0", Edge3: "0 0 4"},
			domain.Vector{}, domain.Vector{X: 2, Y: 3, Z: 4}},
		{"rcc along z", domain.SolidRCC, domain.Shape{BottomCenter: "0 0 0", HeightVector: "0 0 10", Radius: f(1)},
			domain.Vector{X: -1, Y: -1, Z: 0}, domain.Vector{X: 1, Y: 1, Z: 10}},
		{"trc", domain.SolidTRC, domain.Shape{BottomCenter: "0 0 0", HeightVector: "0 0 5", BottomRadius: f(3), TopRadius: f(1)},
			domain.Vector{X: -3, Y: -3, Z: 0}, domain.Vector{X: 3, Y: 3, Z: 5}},
		{"ellipsoid", domain.SolidELL, domain.Shape{Center: "0 0 0", RadiusVector1: "1 0 0", RadiusVector2: "0 2 0", RadiusVector3: "0 0 3"},
			domain.Vector{X: -1, Y: -2, Z: -3}, domain.Vector{X: 1, Y: 2, Z: 3}},
		{"torus", domain.SolidTOR, domain.Shape{Center: "0 0 0", Axis: "0 0 1", MajorRadius: f(5), MinorRadius: f(1)},
			domain.Vector{X: -6, Y: -6, Z: -1}, domain.Vector{X: 6, Y: 6, Z: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			box, err := Bounds(tc.kind, tc.shape)
			require.NoError(t, err)
			assertVec(t, tc.min, box.Min)
			assertVec(t, tc.max, box.Max)
		})
	}
}

func TestBoundsCombinationUnsupported(t *testing.T) {
	_, err := Bounds(domain.SolidCMB, domain.Shape{})
	assert.True(t, errors.Is(err, ErrUnsupported))
}

func TestVolume(t *testing.T) {
	v, err := Volume(domain.SolidSPH, domain.Shape{Center: "0 0 0", Radius: f(1)})
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0*math.Pi, v, 1e-9)

	v, err = Volume(domain.SolidRPP, domain.Shape{Min: "0 0 0", Max: "2 3 4"})
	require.NoError(t, err)
	assert.InDelta(t, 24, v, 1e-9)

	v, err = Volume(domain.SolidWED, domain.Shape{Vertex: "0 0 0", Edge1: "2 0 0", Edge2: "0 2 0", Edge3: "0 0 2"})
	require.NoError(t, err)
	assert.InDelta(t, 4, v, 1e-9)
}

func TestIntersect(t *testing.T) {
	a := Box{Min: domain.Vector{}, Max: domain.Vector{X: 2, Y: 2, Z: 2}}
	b := Box{Min: domain.Vector{X: 1, Y: 1, Z: 1}, Max: domain.Vector{X: 3, Y: 3, Z: 3}}
	o, ok := a.Intersect(b)
	require.True(t, ok)
	assert.InDelta(t, 1, o.Volume(), 1e-12)

	touching := Box{Min: domain.Vector{X: 2}, Max: domain.Vector{X: 4, Y: 2, Z: 2}}
	o, ok = a.Intersect(touching)
	require.True(t, ok)
	assert.Zero(t, o.Volume())

	far := Box{Min: domain.Vector{X: 5, Y: 5, Z: 5}, Max: domain.Vector{X: 6, Y: 6, Z: 6}}
	_, ok = a.Intersect(far)
	assert.False(t, ok)
}

func TestCompileTransform(t *testing.T) {
	tr := domain.Transform{Name: "t1", Operations: []domain.TransformOp{
		{RotateAroundZ: f(90)},
		{Translate: "10 0 0"},
	}}
	mapper, err := Compile(tr, math.Pi/180)
	require.NoError(t, err)
	assertVec(t, domain.Vector{X: 10, Y: 1}, mapper(domain.Vector{X: 1}))

	_, err = Compile(domain.Transform{Name: "bad", Operations: []domain.TransformOp{{Translate: "1 2"}}}, 1)
	assert.Error(t, err)
}

func TestSolidBoundsAppliesTransform(t *testing.T) {
	s := domain.Solid{Name: "s", Kind: domain.SolidSPH, Shape: domain.Shape{Center: "0 0 0", Radius: f(1)}, Transform: "shift"}
	transforms := map[string]domain.Transform{"shift": {Name: "shift", Operations: []domain.TransformOp{{Translate: "5 0 0"}}}}
	box, err := SolidBounds(s, transforms, 1)
	require.NoError(t, err)
	assertVec(t, domain.Vector{X: 4, Y: -1, Z: -1}, box.Min)

	s.Transform = "missing"
	_, err = SolidBounds(s, transforms, 1)
	assert.Error(t, err)
}

func TestBoxContainsAndDistance(t *testing.T) {
	b := Box{Min: domain.Vector{}, Max: domain.Vector{X: 2, Y: 2, Z: 2}}
	assert.True(t, b.Contains(domain.Vector{X: 1, Y: 1, Z: 1}))
	assert.True(t, b.Contains(domain.Vector{X: 2, Y: 0, Z: 2}))
	assert.False(t, b.Contains(domain.Vector{X: 3, Y: 1, Z: 1}))

	assert.Zero(t, b.Distance(domain.Vector{X: 1, Y: 1, Z: 1}))
	assert.InDelta(t, 1, b.Distance(domain.Vector{X: 3, Y: 1, Z: 1}), 1e-12)
	assert.InDelta(t, math.Sqrt(3), b.Distance(domain.Vector{X: -1, Y: -1, Z: -1}), 1e-12)
}
