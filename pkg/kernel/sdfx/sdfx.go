// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
//
// Operand meshes are wrapped as signed distance fields, combined with
// sdfx's CSG operations and tessellated back into an indexed mesh on a
// uniform grid.
package sdfx

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/fabprep/pkg/kernel"
	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/chazu/fabprep/pkg/solid"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	"github.com/unixpickle/model3d/model3d"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

const (
	// DefaultMeshCells is the number of grid cells along the longest side
	// of the operands' combined bounding box.
	DefaultMeshCells = 96
	// DefaultMaxCells caps the grid along the longest side after it has
	// been refined for thin operands.
	DefaultMaxCells = 512

	// minSpan is the fewest cells the thinnest side of any operand may
	// cover. Thinner operands are lost between samples.
	minSpan = 4
	// searchIters is the bisection depth for vertex placement.
	searchIters = 8
)

// ErrUnresolvable reports an operand too thin to sample within the cell
// budget.
var ErrUnresolvable = errors.New("operand too thin for the cell budget")

// Mesher selects how a combined field is turned back into triangles.
type Mesher string

const (
	// Search uses model3d's marching cubes with bisection along crossing
	// edges. Its output is indexed and closed, so results can be fed
	// straight back into further booleans.
	Search Mesher = "search"
	// MarchingCubes uses sdfx's uniform marching cubes renderer. Its
	// triangle soup is welded, which can leave open edges, so results may
	// not qualify as operands of a later boolean.
	MarchingCubes Mesher = "marching-cubes"
)

// Options configures an SdfxKernel.
type Options struct {
	Cells    int    // DefaultMeshCells when zero
	MaxCells int    // DefaultMaxCells when zero, never below Cells
	Mesher   Mesher // Search when empty
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	opts Options
}

// New returns a new SdfxKernel.
func New(opts Options) *SdfxKernel {
	if opts.Cells <= 0 {
		opts.Cells = DefaultMeshCells
	}
	if opts.MaxCells <= 0 {
		opts.MaxCells = DefaultMaxCells
	}
	opts.MaxCells = max(opts.MaxCells, opts.Cells)
	if opts.Mesher == "" {
		opts.Mesher = Search
	}
	return &SdfxKernel{opts: opts}
}

// Name returns "sdfx".
func (k *SdfxKernel) Name() string {
	return "sdfx"
}

// Union returns the union of one or more solids.
func (k *SdfxKernel) Union(ctx context.Context, solids ...*solid.Solid) (*solid.Solid, error) {
	if len(solids) == 0 {
		return nil, fmt.Errorf("sdfx: union needs at least one operand")
	}
	step, err := k.cellSize(solids...)
	if err != nil {
		return nil, err
	}
	fields, err := fieldsOf(solids...)
	if err != nil {
		return nil, err
	}
	return k.realize(ctx, "union", sdf.Union3D(fields...), step)
}

// Difference returns the difference a - b.
func (k *SdfxKernel) Difference(ctx context.Context, a, b *solid.Solid) (*solid.Solid, error) {
	step, err := k.cellSize(a, b)
	if err != nil {
		return nil, err
	}
	fields, err := fieldsOf(a, b)
	if err != nil {
		return nil, err
	}
	return k.realize(ctx, a.Name+"-difference", sdf.Difference3D(fields[0], fields[1]), step)
}

// Intersection returns the intersection of two solids.
func (k *SdfxKernel) Intersection(ctx context.Context, a, b *solid.Solid) (*solid.Solid, error) {
	step, err := k.cellSize(a, b)
	if err != nil {
		return nil, err
	}
	fields, err := fieldsOf(a, b)
	if err != nil {
		return nil, err
	}
	return k.realize(ctx, a.Name+"-intersection", sdf.Intersect3D(fields[0], fields[1]), step)
}

// cellSize divides the longest side of the operands' combined bounding box
// into the configured number of cells, then shrinks the step until the
// thinnest side of every operand spans minSpan cells. It fails when that
// needs more than MaxCells along the longest side.
func (k *SdfxKernel) cellSize(solids ...*solid.Solid) (float64, error) {
	var bb r3.Box
	for i, s := range solids {
		b := s.Mesh.Bounds()
		if i == 0 {
			bb = b
			continue
		}
		bb = r3.Box{
			Min: r3.Vec{X: min(bb.Min.X, b.Min.X), Y: min(bb.Min.Y, b.Min.Y), Z: min(bb.Min.Z, b.Min.Z)},
			Max: r3.Vec{X: max(bb.Max.X, b.Max.X), Y: max(bb.Max.Y, b.Max.Y), Z: max(bb.Max.Z, b.Max.Z)},
		}
	}
	size := r3.Sub(bb.Max, bb.Min)
	longest := max(size.X, size.Y, size.Z)
	step := longest / float64(k.opts.Cells)

	thinnest, thickness := solids[0], math.Inf(1)
	for _, s := range solids {
		e := s.Mesh.Extents()
		if t := min(e.X, e.Y, e.Z); t < thickness {
			thinnest, thickness = s, t
		}
	}
	step = min(step, thickness/minSpan)

	if cells := longest / step; !(cells <= float64(k.opts.MaxCells)) {
		return 0, fmt.Errorf("sdfx: %w: %s is %.4g thick, needs %.0f cells along %.4g, limit %d",
			ErrUnresolvable, thinnest.Label(), thickness, math.Ceil(cells), longest, k.opts.MaxCells)
	}
	return step, nil
}

func fieldsOf(solids ...*solid.Solid) ([]sdf.SDF3, error) {
	fields := make([]sdf.SDF3, len(solids))
	for i, s := range solids {
		f, err := newMeshField(s.Mesh)
		if err != nil {
			return nil, fmt.Errorf("sdfx: operand %s: %w", s.Label(), err)
		}
		fields[i] = f
	}
	return fields, nil
}

// realize tessellates a combined field into a solid.
func (k *SdfxKernel) realize(ctx context.Context, name string, s sdf.SDF3, step float64) (*solid.Solid, error) {
	bb := s.BoundingBox()
	if bb.Max.X < bb.Min.X || bb.Max.Y < bb.Min.Y || bb.Max.Z < bb.Min.Z {
		return solid.Empty(name), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		m   *mesh.Mesh
		err error
	)
	switch k.opts.Mesher {
	case MarchingCubes:
		m, err = k.marchingCubes(ctx, s, step)
	case Search:
		m, err = k.search(ctx, s, step)
	default:
		return nil, fmt.Errorf("sdfx: unknown mesher %q", k.opts.Mesher)
	}
	if err != nil {
		return nil, err
	}
	m.Name = name
	if m.IsEmpty() {
		return solid.Empty(name), nil
	}
	return solid.New(name, m), nil
}

// search meshes with model3d. The padding is a whole number of cells plus
// a half, so faces on the combined bounding box never pass through grid
// points. The call cannot be interrupted; a canceled context is noticed
// once it returns.
func (k *SdfxKernel) search(ctx context.Context, s sdf.SDF3, step float64) (*mesh.Mesh, error) {
	out := model3d.MarchingCubesSearch(newFieldSolid(s, 2.5*step), step, searchIters)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return fromModel3D(out, ""), nil
}

// marchingCubes renders with sdfx and welds the triangle soup.
func (k *SdfxKernel) marchingCubes(ctx context.Context, s sdf.SDF3, step float64) (*mesh.Mesh, error) {
	bb := s.BoundingBox()
	size := r3.Sub(toR3(bb.Max), toR3(bb.Min))
	cells := int(math.Ceil(max(size.X, size.Y, size.Z) / step))

	renderer := render.NewMarchingCubesUniform(cells)
	triangles := render.ToTriangles(s, renderer)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	soup := &mesh.Mesh{
		Vertices: make([]r3.Vec, 0, 3*len(triangles)),
		Faces:    make([][3]int, 0, len(triangles)),
	}
	for _, tri := range triangles {
		base := len(soup.Vertices)
		for j := 0; j < 3; j++ {
			soup.Vertices = append(soup.Vertices, toR3(tri[j]))
		}
		soup.Faces = append(soup.Faces, [3]int{base, base + 1, base + 2})
	}
	return soup.Weld(step * 1e-6), nil
}
