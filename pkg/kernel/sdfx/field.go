package sdfx

import (
	"fmt"

	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/unixpickle/model3d/model3d"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compile-time interface checks.
var (
	_ sdf.SDF3      = (*meshField)(nil)
	_ model3d.Solid = (*fieldSolid)(nil)
)

// meshField evaluates a closed mesh as an sdfx distance field, negative
// inside. model3d measures the distance; its sign convention is the
// opposite of sdfx's.
type meshField struct {
	dist   model3d.SDF
	bounds sdf.Box3
}

func newMeshField(m *mesh.Mesh) (*meshField, error) {
	if m.IsEmpty() {
		return nil, fmt.Errorf("mesh %q has no faces", m.Name)
	}
	bb := m.Bounds()
	return &meshField{
		dist:   model3d.MeshToSDF(toModel3D(m)),
		bounds: sdf.Box3{Min: toV3(bb.Min), Max: toV3(bb.Max)},
	}, nil
}

// Evaluate returns the signed distance from p to the surface.
func (f *meshField) Evaluate(p v3.Vec) float64 {
	return -f.dist.SDF(model3d.Coord3D{X: p.X, Y: p.Y, Z: p.Z})
}

// BoundingBox returns the bounds of the source mesh.
func (f *meshField) BoundingBox() sdf.Box3 {
	return f.bounds
}

// fieldSolid exposes a combined sdfx field to model3d's meshers. The box
// is padded so the surface never touches its sides.
type fieldSolid struct {
	field    sdf.SDF3
	min, max model3d.Coord3D
}

func newFieldSolid(s sdf.SDF3, pad float64) *fieldSolid {
	bb := s.BoundingBox()
	return &fieldSolid{
		field: s,
		min:   model3d.Coord3D{X: bb.Min.X - pad, Y: bb.Min.Y - pad, Z: bb.Min.Z - pad},
		max:   model3d.Coord3D{X: bb.Max.X + pad, Y: bb.Max.Y + pad, Z: bb.Max.Z + pad},
	}
}

func (s *fieldSolid) Min() model3d.Coord3D { return s.min }
func (s *fieldSolid) Max() model3d.Coord3D { return s.max }

// Contains treats the zero level set as outside, so faces shared by two
// operands do not leave zero-thickness slivers.
func (s *fieldSolid) Contains(c model3d.Coord3D) bool {
	if c.X < s.min.X || c.Y < s.min.Y || c.Z < s.min.Z ||
		c.X > s.max.X || c.Y > s.max.Y || c.Z > s.max.Z {
		return false
	}
	return s.field.Evaluate(v3.Vec{X: c.X, Y: c.Y, Z: c.Z}) < 0
}

func toModel3D(m *mesh.Mesh) *model3d.Mesh {
	tris := make([]*model3d.Triangle, m.FaceCount())
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		tris[i] = &model3d.Triangle{coord(a), coord(b), coord(c)}
	}
	return model3d.NewMeshTriangles(tris)
}

// fromModel3D indexes a model3d mesh. Marching cubes emits identical
// coordinates for shared vertices, so exact matching closes the mesh.
func fromModel3D(m *model3d.Mesh, name string) *mesh.Mesh {
	out := &mesh.Mesh{Name: name}
	index := make(map[model3d.Coord3D]int)
	vertex := func(c model3d.Coord3D) int {
		if i, ok := index[c]; ok {
			return i
		}
		i := len(out.Vertices)
		index[c] = i
		out.Vertices = append(out.Vertices, r3.Vec{X: c.X, Y: c.Y, Z: c.Z})
		return i
	}
	for _, t := range m.TriangleSlice() {
		f := [3]int{vertex(t[0]), vertex(t[1]), vertex(t[2])}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		out.Faces = append(out.Faces, f)
	}
	return out
}

func coord(v r3.Vec) model3d.Coord3D {
	return model3d.Coord3D{X: v.X, Y: v.Y, Z: v.Z}
}

func toV3(v r3.Vec) v3.Vec {
	return v3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

func toR3(v v3.Vec) r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}
