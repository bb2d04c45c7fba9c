package kernel

import (
	"fmt"

	"github.com/chazu/fabprep/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// Buffers is a triangle mesh in the flat layout native kernels consume.
// Positions has 3 floats per vertex (x,y,z) and Indices has 3 uint32s per
// triangle.
type Buffers struct {
	Positions []float32 // [x0,y0,z0, x1,y1,z1, ...]
	Indices   []uint32  // [i0,i1,i2, ...] triangles
}

// Flatten copies m into flat buffers.
func Flatten(m *mesh.Mesh) *Buffers {
	b := &Buffers{
		Positions: make([]float32, 0, 3*m.VertexCount()),
		Indices:   make([]uint32, 0, 3*m.FaceCount()),
	}
	for _, v := range m.Vertices {
		b.Positions = append(b.Positions, float32(v.X), float32(v.Y), float32(v.Z))
	}
	for _, f := range m.Faces {
		b.Indices = append(b.Indices, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}
	return b
}

// VertexCount returns the number of vertices.
func (b *Buffers) VertexCount() int {
	return len(b.Positions) / 3
}

// TriangleCount returns the number of triangles.
func (b *Buffers) TriangleCount() int {
	return len(b.Indices) / 3
}

// Mesh converts the buffers back to an indexed mesh.
func (b *Buffers) Mesh(name string) (*mesh.Mesh, error) {
	if len(b.Positions)%3 != 0 {
		return nil, fmt.Errorf("position buffer length %d is not a multiple of 3", len(b.Positions))
	}
	if len(b.Indices)%3 != 0 {
		return nil, fmt.Errorf("index buffer length %d is not a multiple of 3", len(b.Indices))
	}
	m := &mesh.Mesh{
		Name:     name,
		Vertices: make([]r3.Vec, 0, b.VertexCount()),
		Faces:    make([][3]int, 0, b.TriangleCount()),
	}
	for i := 0; i+2 < len(b.Positions); i += 3 {
		m.Vertices = append(m.Vertices, r3.Vec{
			X: float64(b.Positions[i]),
			Y: float64(b.Positions[i+1]),
			Z: float64(b.Positions[i+2]),
		})
	}
	for i := 0; i+2 < len(b.Indices); i += 3 {
		m.Faces = append(m.Faces, [3]int{int(b.Indices[i]), int(b.Indices[i+1]), int(b.Indices[i+2])})
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
