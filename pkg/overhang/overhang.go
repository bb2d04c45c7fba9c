// Package overhang classifies mesh faces whose outward normal leans away
// from the build axis (+Z) by more than a printable angle.
package overhang

import (
	"math"
	"slices"

	"github.com/chazu/fabprep/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultThreshold is the overhang angle in degrees above which a face
// needs support.
const DefaultThreshold = 45.0

// Up is the build axis.
var Up = r3.Vec{Z: 1}

// Set is an immutable set of face indices in ascending order.
type Set struct {
	faces []int
}

// NewSet builds a set from arbitrary face indices. Duplicates are dropped.
func NewSet(faces ...int) Set {
	s := slices.Clone(faces)
	slices.Sort(s)
	return Set{faces: slices.Compact(s)}
}

// Len returns the number of faces in the set.
func (s Set) Len() int {
	return len(s.faces)
}

// Contains reports whether face i is in the set.
func (s Set) Contains(i int) bool {
	_, ok := slices.BinarySearch(s.faces, i)
	return ok
}

// Indices returns the face indices in ascending order. The slice is a copy.
func (s Set) Indices() []int {
	return slices.Clone(s.faces)
}

// Truncate returns the first n indices of the set. The result is the same
// subset on every call.
func (s Set) Truncate(n int) Set {
	if n < 0 {
		n = 0
	}
	if n >= len(s.faces) {
		return s
	}
	return Set{faces: s.faces[:n:n]}
}

// Angle returns the angle in radians between the unit normal n and Up. The
// dot product is clamped so rounding cannot push acos out of its domain.
func Angle(n r3.Vec) float64 {
	return math.Acos(max(-1, min(1, r3.Dot(n, Up))))
}

// Classify returns the faces of m whose normal makes an angle greater than
// thresholdDeg with the build axis. Zero-area faces have no normal and are
// never included.
func Classify(m *mesh.Mesh, thresholdDeg float64) Set {
	limit := thresholdDeg / 180 * math.Pi
	var faces []int
	for i := 0; i < m.FaceCount(); i++ {
		n, ok := m.FaceNormal(i)
		if !ok {
			continue
		}
		if Angle(n) > limit {
			faces = append(faces, i)
		}
	}
	return Set{faces: faces}
}

// Angles returns every face's angle to the build axis in degrees. Zero-area
// faces report NaN.
func Angles(m *mesh.Mesh) []float64 {
	out := make([]float64, m.FaceCount())
	for i := range out {
		n, ok := m.FaceNormal(i)
		if !ok {
			out[i] = math.NaN()
			continue
		}
		out[i] = Angle(n) * 180 / math.Pi
	}
	return out
}
