// Package mesh holds the in-memory triangulated solid that every fabprep
// stage reads. Vertices are shared between faces; each face is an ordered
// triple of vertex indices whose counter-clockwise winding (seen from
// outside) defines the outward normal.
//
// A Mesh is treated as immutable once loaded. Operations that change
// geometry (Translate, Scale) return new meshes.
package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is an indexed triangle mesh.
type Mesh struct {
	Name     string
	Vertices []r3.Vec
	Faces    [][3]int
}

// New returns a mesh over the given buffers. The slices are not copied.
func New(name string, vertices []r3.Vec, faces [][3]int) *Mesh {
	return &Mesh{Name: name, Vertices: vertices, Faces: faces}
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices)
}

// FaceCount returns the number of triangles.
func (m *Mesh) FaceCount() int {
	return len(m.Faces)
}

// IsEmpty returns true if the mesh has no triangles.
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Faces) == 0
}

// String reports the counts used in load diagnostics.
func (m *Mesh) String() string {
	name := m.Name
	if name == "" {
		name = "mesh"
	}
	return fmt.Sprintf("%s (%d vertices, %d faces)", name, m.VertexCount(), m.FaceCount())
}

// Validate checks that every face references existing vertices.
func (m *Mesh) Validate() error {
	n := len(m.Vertices)
	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= n {
				return fmt.Errorf("mesh: face %d references vertex %d, have %d vertices", i, idx, n)
			}
		}
	}
	return nil
}

// Triangle returns the three corner positions of face i.
func (m *Mesh) Triangle(i int) (a, b, c r3.Vec) {
	f := m.Faces[i]
	return m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	verts := make([]r3.Vec, len(m.Vertices))
	copy(verts, m.Vertices)
	faces := make([][3]int, len(m.Faces))
	copy(faces, m.Faces)
	return &Mesh{Name: m.Name, Vertices: verts, Faces: faces}
}

// Merge concatenates meshes into one buffer without any boolean
// resolution. Overlapping inputs produce overlapping (non-manifold) output.
func Merge(name string, parts ...*Mesh) *Mesh {
	out := &Mesh{Name: name}
	for _, p := range parts {
		if p == nil {
			continue
		}
		base := len(out.Vertices)
		out.Vertices = append(out.Vertices, p.Vertices...)
		for _, f := range p.Faces {
			out.Faces = append(out.Faces, [3]int{f[0] + base, f[1] + base, f[2] + base})
		}
	}
	return out
}
