package parting

import (
	"context"
	"errors"
	"testing"

	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/chazu/fabprep/pkg/progress"
	"github.com/chazu/fabprep/pkg/solid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func model() *mesh.Mesh {
	// 4 x 6 x 2 box with its centroid at (1, 2, 3).
	return mesh.Box(r3.Vec{X: 4, Y: 6, Z: 2}).Translate(r3.Vec{X: 1, Y: 2, Z: 3})
}

func TestPlanDefaultSlab(t *testing.T) {
	slab, err := NewPlanner(DefaultOptions(), nil).Plan(context.Background(), model(), nil)
	require.NoError(t, err)
	require.True(t, slab.Volumetric)

	bb := slab.Mesh.Bounds()
	assert.InDelta(t, -1.0, bb.Min.X, 1e-12)
	assert.InDelta(t, 3.0, bb.Max.X, 1e-12)
	assert.InDelta(t, -1.0, bb.Min.Y, 1e-12)
	assert.InDelta(t, 5.0, bb.Max.Y, 1e-12)
	// Offset downward by half the thickness: spans [2.9, 3.0] around
	// a center of 2.95.
	assert.InDelta(t, 2.9, bb.Min.Z, 1e-12)
	assert.InDelta(t, 3.0, bb.Max.Z, 1e-12)
	assert.InDelta(t, 4*6*0.1, slab.Volume, 1e-9)
}

func TestPlanAxisAndMargin(t *testing.T) {
	opts := Options{Thickness: 0.2, Axis: AxisX, Margin: 0.5}
	slab, err := NewPlanner(opts, nil).Plan(context.Background(), model(), nil)
	require.NoError(t, err)

	bb := slab.Mesh.Bounds()
	assert.InDelta(t, 0.8, bb.Min.X, 1e-12)
	assert.InDelta(t, 1.0, bb.Max.X, 1e-12)
	assert.InDelta(t, -1.5, bb.Min.Y, 1e-12)
	assert.InDelta(t, 5.5, bb.Max.Y, 1e-12)
	assert.InDelta(t, 1.5, bb.Min.Z, 1e-12)
	assert.InDelta(t, 4.5, bb.Max.Z, 1e-12)
}

func TestSlabFootprintCoversLopsidedModel(t *testing.T) {
	// The footprint follows the bounding box, not the centroid, so a
	// model with most of its area on one side is still cut through.
	m := mesh.Merge("lopsided",
		mesh.Box(r3.Vec{X: 4, Y: 4, Z: 4}).Translate(r3.Vec{X: 2, Z: 2}),
		mesh.Box(r3.Vec{X: 1, Y: 1, Z: 1}).Translate(r3.Vec{X: 10.5, Z: 0.5}),
	)
	c := m.Centroid()
	require.Less(t, c.X, 4.0)

	slab := NewPlanner(DefaultOptions(), nil).Slab(m)
	bb := slab.Bounds()
	assert.InDelta(t, 0.0, bb.Min.X, 1e-12)
	assert.InDelta(t, 11.0, bb.Max.X, 1e-12)
	assert.InDelta(t, -2.0, bb.Min.Y, 1e-12)
	assert.InDelta(t, 2.0, bb.Max.Y, 1e-12)
	assert.InDelta(t, c.Z, bb.Max.Z, 1e-12)
}

func TestZeroThicknessFailsValidation(t *testing.T) {
	for _, thickness := range []float64{0, -0.1} {
		opts := DefaultOptions()
		opts.Thickness = thickness
		slab, err := NewPlanner(opts, nil).Plan(context.Background(), model(), nil)
		require.Error(t, err)
		assert.Nil(t, slab)

		var gerr *solid.GeometryError
		require.True(t, errors.As(err, &gerr), "thickness %v: %v", thickness, err)
		assert.Equal(t, "parting surface", gerr.Role)
	}
}

func TestPlanEmptyModel(t *testing.T) {
	_, err := NewPlanner(DefaultOptions(), nil).Plan(context.Background(), &mesh.Mesh{}, nil)
	var gerr *solid.GeometryError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "model", gerr.Role)
}

type fixedPaths struct {
	paths *EscapePaths
	err   error
	calls int
}

func (f *fixedPaths) EscapePaths(context.Context, *mesh.Mesh) (*EscapePaths, error) {
	f.calls++
	return f.paths, f.err
}

func TestPlanWith(t *testing.T) {
	m := model()
	p := NewPlanner(DefaultOptions(), nil)
	baseline, err := p.Plan(context.Background(), m, nil)
	require.NoError(t, err)

	t.Run("nil planner", func(t *testing.T) {
		slab, err := PlanWith(context.Background(), p, nil, m)
		require.NoError(t, err)
		assert.Equal(t, baseline.Mesh.Bounds(), slab.Mesh.Bounds())
	})

	t.Run("planner with nothing", func(t *testing.T) {
		ep := &fixedPaths{}
		slab, err := PlanWith(context.Background(), p, ep, m)
		require.NoError(t, err)
		assert.Equal(t, 1, ep.calls)
		assert.Equal(t, baseline.Mesh.Bounds(), slab.Mesh.Bounds())
	})

	t.Run("paths are reported", func(t *testing.T) {
		rec := &progress.Recorder{}
		ep := &fixedPaths{paths: &EscapePaths{Paths: [][]r3.Vec{{{}, {Z: 1}}}}}
		slab, err := PlanWith(context.Background(), NewPlanner(DefaultOptions(), rec), ep, m)
		require.NoError(t, err)
		assert.Equal(t, baseline.Mesh.Bounds(), slab.Mesh.Bounds())
		require.Len(t, rec.Warnings(), 1)
	})

	t.Run("planner error", func(t *testing.T) {
		ep := &fixedPaths{err: errors.New("solver offline")}
		_, err := PlanWith(context.Background(), p, ep, m)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "solver offline")
	})
}

func TestParseAxis(t *testing.T) {
	tests := []struct {
		in   string
		want Axis
		ok   bool
	}{
		{"x", AxisX, true},
		{"Y", AxisY, true},
		{"", AxisZ, true},
		{"z", AxisZ, true},
		{"w", AxisZ, false},
	}
	for _, tt := range tests {
		got, err := ParseAxis(tt.in)
		if tt.ok {
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, must(ParseAxis(got.String())))
		} else {
			assert.Error(t, err)
		}
	}
}

func must(a Axis, err error) Axis {
	if err != nil {
		panic(err)
	}
	return a
}
