package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// VolumeEpsilon is the smallest enclosed volume accepted by IsVolume.
const VolumeEpsilon = 1e-9

// areaEpsilon is the squared cross-product length below which a face is
// treated as degenerate.
const areaEpsilon = 1e-24

// FaceNormal returns the unit outward normal of face i. The second result
// is false for zero-area faces, whose normal is undefined.
func (m *Mesh) FaceNormal(i int) (r3.Vec, bool) {
	a, b, c := m.Triangle(i)
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if r3.Norm2(n) <= areaEpsilon {
		return r3.Vec{}, false
	}
	return r3.Unit(n), true
}

// FaceArea returns the area of face i.
func (m *Mesh) FaceArea(i int) float64 {
	a, b, c := m.Triangle(i)
	return r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a))) / 2
}

// FaceCenter returns the centroid of face i's three corners.
func (m *Mesh) FaceCenter(i int) r3.Vec {
	a, b, c := m.Triangle(i)
	return r3.Scale(1.0/3.0, r3.Add(r3.Add(a, b), c))
}

// Centroid returns the area-weighted mean of the face centers. Meshes with
// no surface area fall back to the mean vertex position.
func (m *Mesh) Centroid() r3.Vec {
	var sum r3.Vec
	var total float64
	for i := range m.Faces {
		area := m.FaceArea(i)
		sum = r3.Add(sum, r3.Scale(area, m.FaceCenter(i)))
		total += area
	}
	if total > 0 {
		return r3.Scale(1/total, sum)
	}
	if len(m.Vertices) == 0 {
		return r3.Vec{}
	}
	for _, v := range m.Vertices {
		sum = r3.Add(sum, v)
	}
	return r3.Scale(1/float64(len(m.Vertices)), sum)
}

// Bounds returns the axis-aligned bounding box of the referenced vertices.
// Flat meshes produce a box with a zero-length side.
func (m *Mesh) Bounds() r3.Box {
	if len(m.Vertices) == 0 {
		return r3.Box{}
	}
	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, v := range m.Vertices {
		lo = r3.Vec{X: math.Min(lo.X, v.X), Y: math.Min(lo.Y, v.Y), Z: math.Min(lo.Z, v.Z)}
		hi = r3.Vec{X: math.Max(hi.X, v.X), Y: math.Max(hi.Y, v.Y), Z: math.Max(hi.Z, v.Z)}
	}
	return r3.Box{Min: lo, Max: hi}
}

// Extents returns the size of the bounding box along each axis.
func (m *Mesh) Extents() r3.Vec {
	return m.Bounds().Size()
}

// SurfaceArea returns the summed area of all faces.
func (m *Mesh) SurfaceArea() float64 {
	var total float64
	for i := range m.Faces {
		total += m.FaceArea(i)
	}
	return total
}

// SignedVolume returns the enclosed volume by the divergence theorem.
// Outward-wound closed meshes give a positive value; the result is
// meaningless for open meshes.
func (m *Mesh) SignedVolume() float64 {
	var v float64
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		v += r3.Dot(a, r3.Cross(b, c))
	}
	return v / 6
}

type edge struct{ from, to int }

// OpenEdges counts directed edges that are not matched by exactly one
// opposite edge on a neighbouring face. A closed, consistently oriented
// surface has none.
func (m *Mesh) OpenEdges() int {
	count := make(map[edge]int, len(m.Faces)*3)
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			count[edge{f[k], f[(k+1)%3]}]++
		}
	}
	open := 0
	for e, n := range count {
		if n != 1 || count[edge{e.to, e.from}] != 1 {
			open++
		}
	}
	return open
}

// IsWatertight reports whether every edge is shared by exactly two faces
// with opposite orientation.
func (m *Mesh) IsWatertight() bool {
	return !m.IsEmpty() && m.OpenEdges() == 0
}

// IsVolume reports whether the mesh encloses a positive volume: valid
// indices, watertight, outward wound and larger than VolumeEpsilon.
func (m *Mesh) IsVolume() bool {
	if m.IsEmpty() || m.Validate() != nil {
		return false
	}
	return m.IsWatertight() && m.SignedVolume() > VolumeEpsilon
}

// Components returns the number of face-connected pieces of m. Faces
// sharing a vertex belong to the same piece.
func (m *Mesh) Components() int {
	parent := make([]int, len(m.Vertices))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for _, f := range m.Faces {
		a := find(f[0])
		parent[find(f[1])] = a
		parent[find(f[2])] = a
	}
	roots := make(map[int]struct{})
	for _, f := range m.Faces {
		roots[find(f[0])] = struct{}{}
	}
	return len(roots)
}
