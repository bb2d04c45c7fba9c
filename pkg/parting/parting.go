// Package parting places the slab that splits a model into two mold
// halves.
//
// The slab spans the model's bounding extents in the two in-plane axes and
// sits at the model centroid along the split axis, offset by half its
// thickness. Escape paths are accepted for future placement strategies but
// do not move the slab.
package parting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/chazu/fabprep/pkg/progress"
	"github.com/chazu/fabprep/pkg/solid"
	"gonum.org/v1/gonum/spatial/r3"
)

const component = "parting"

// Axis is the split axis, the normal of the parting slab.
type Axis int

const (
	AxisZ Axis = iota
	AxisX
	AxisY
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	default:
		return "z"
	}
}

// ParseAxis accepts "x", "y" or "z" in either case.
func ParseAxis(s string) (Axis, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x":
		return AxisX, nil
	case "y":
		return AxisY, nil
	case "z", "":
		return AxisZ, nil
	}
	return AxisZ, fmt.Errorf("parting: unknown axis %q", s)
}

func (a Axis) component(v r3.Vec) float64 {
	switch a {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

func (a Axis) with(v r3.Vec, x float64) r3.Vec {
	switch a {
	case AxisX:
		v.X = x
	case AxisY:
		v.Y = x
	default:
		v.Z = x
	}
	return v
}

// EscapePaths are polylines along which material can leave internal
// cavities of the model.
type EscapePaths struct {
	Paths [][]r3.Vec
}

// Len returns the number of paths; nil-safe.
func (e *EscapePaths) Len() int {
	if e == nil {
		return 0
	}
	return len(e.Paths)
}

// EscapePathPlanner computes escape paths for a model. No implementation
// ships with this package; a planner may return (nil, nil) to report that
// it has nothing to offer.
type EscapePathPlanner interface {
	EscapePaths(ctx context.Context, m *mesh.Mesh) (*EscapePaths, error)
}

// Options controls slab geometry.
type Options struct {
	Thickness float64
	Axis      Axis
	// Margin widens the footprint on every in-plane side.
	Margin float64
}

// DefaultOptions returns a 0.1 unit horizontal slab.
func DefaultOptions() Options {
	return Options{Thickness: 0.1, Axis: AxisZ}
}

// Planner builds parting slabs.
type Planner struct {
	opts Options
	sink progress.Sink
}

// NewPlanner returns a Planner. sink may be nil.
func NewPlanner(opts Options, sink progress.Sink) *Planner {
	return &Planner{opts: opts, sink: progress.OrNop(sink)}
}

// Plan returns the parting slab for m. paths may be nil, which is the
// normal case. The slab is checked to be a closed volume; a degenerate
// slab (for example zero thickness) fails with a *solid.GeometryError.
func (p *Planner) Plan(ctx context.Context, m *mesh.Mesh, paths *EscapePaths) (slab *solid.Solid, err error) {
	done := progress.Start(p.sink, component, "plan",
		slog.String("axis", p.opts.Axis.String()), slog.Float64("thickness", p.opts.Thickness))
	defer func() { done(err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.IsEmpty() {
		return nil, &solid.GeometryError{Role: "model", Reason: "mesh has no faces"}
	}
	if n := paths.Len(); n > 0 {
		progress.Warn(p.sink, component, "escape paths do not affect slab placement", nil, slog.Int("paths", n))
	}

	s := solid.New("parting-slab", p.Slab(m))
	if err := s.RequireVolume("parting surface"); err != nil {
		return nil, err
	}
	return s, nil
}

// Slab returns the slab mesh without validating it.
func (p *Planner) Slab(m *mesh.Mesh) *mesh.Mesh {
	bb := m.Bounds()
	ext := m.Extents()
	center := r3.Scale(0.5, r3.Add(bb.Min, bb.Max))
	t := p.opts.Thickness
	axis := p.opts.Axis

	size := r3.Add(ext, r3.Vec{X: 2 * p.opts.Margin, Y: 2 * p.opts.Margin, Z: 2 * p.opts.Margin})
	size = axis.with(size, t)
	center = axis.with(center, axis.component(m.Centroid())-t/2)

	slab := mesh.Box(size).Translate(center)
	slab.Name = "parting-slab"
	return slab
}

// PlanWith asks ep for escape paths, when ep is not nil, and plans the
// slab. A planner that returns no paths is treated as absent.
func PlanWith(ctx context.Context, p *Planner, ep EscapePathPlanner, m *mesh.Mesh) (*solid.Solid, error) {
	var paths *EscapePaths
	if ep != nil {
		var err error
		paths, err = ep.EscapePaths(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("parting: escape paths: %w", err)
		}
	}
	return p.Plan(ctx, m, paths)
}
