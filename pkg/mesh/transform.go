package mesh

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"gonum.org/v1/gonum/spatial/r3"
)

// Translate returns a copy of m moved by d.
func (m *Mesh) Translate(d r3.Vec) *Mesh {
	out := m.Clone()
	for i, v := range out.Vertices {
		out.Vertices[i] = r3.Add(v, d)
	}
	return out
}

// Scale returns a copy of m scaled uniformly by k about the origin of its
// own coordinate frame. Negative factors would invert the winding and are
// not supported.
func (m *Mesh) Scale(k float64) *Mesh {
	out := m.Clone()
	for i, v := range out.Vertices {
		out.Vertices[i] = r3.Scale(k, v)
	}
	return out
}

// MirrorZ returns a copy of m reflected through the z=0 plane. Face winding
// is reversed so normals still point outward.
func (m *Mesh) MirrorZ() *Mesh {
	out := m.Clone()
	for i, v := range out.Vertices {
		out.Vertices[i] = r3.Vec{X: v.X, Y: v.Y, Z: -v.Z}
	}
	for i, f := range out.Faces {
		out.Faces[i] = [3]int{f[0], f[2], f[1]}
	}
	return out
}

// Weld merges vertices lying within tolerance of each other on every axis
// and drops faces that collapse to fewer than three distinct vertices. A
// tolerance of 0 merges exact duplicates only.
//
// Kept vertices are indexed in an R-tree; a vertex merges into the
// lowest-numbered kept vertex inside its tolerance box.
func (m *Mesh) Weld(tolerance float64) *Mesh {
	out := &Mesh{Name: m.Name}
	remap := make([]int, len(m.Vertices))

	if tolerance <= 0 {
		index := make(map[r3.Vec]int, len(m.Vertices))
		for i, v := range m.Vertices {
			j, ok := index[v]
			if !ok {
				j = len(out.Vertices)
				index[v] = j
				out.Vertices = append(out.Vertices, v)
			}
			remap[i] = j
		}
	} else {
		tree := rtreego.NewTree(3, 25, 50)
		for i, v := range m.Vertices {
			j, ok := nearest(tree, out.Vertices, v, tolerance)
			if !ok {
				j = len(out.Vertices)
				tree.Insert(&weldPoint{id: j, rect: pointOf(v).ToRect(tolerance / 2)})
				out.Vertices = append(out.Vertices, v)
			}
			remap[i] = j
		}
	}

	for _, f := range m.Faces {
		a, b, c := remap[f[0]], remap[f[1]], remap[f[2]]
		if a == b || b == c || a == c {
			continue
		}
		out.Faces = append(out.Faces, [3]int{a, b, c})
	}
	return out
}

// weldPoint is a kept vertex in the weld index.
type weldPoint struct {
	id   int
	rect rtreego.Rect
}

func (p *weldPoint) Bounds() rtreego.Rect {
	return p.rect
}

func pointOf(v r3.Vec) rtreego.Point {
	return rtreego.Point{v.X, v.Y, v.Z}
}

func nearest(tree *rtreego.Rtree, verts []r3.Vec, v r3.Vec, tol float64) (int, bool) {
	best := -1
	for _, obj := range tree.SearchIntersect(pointOf(v).ToRect(tol)) {
		j := obj.(*weldPoint).id
		w := verts[j]
		if math.Abs(w.X-v.X) > tol || math.Abs(w.Y-v.Y) > tol || math.Abs(w.Z-v.Z) > tol {
			continue
		}
		if best < 0 || j < best {
			best = j
		}
	}
	return best, best >= 0
}
