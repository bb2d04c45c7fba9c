package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultSegments is the number of sides used to approximate a circle.
const DefaultSegments = 16

// Box returns a closed box with the given extents, centered at the origin.
// Zero or negative extents still produce the 12-triangle topology, so the
// caller can detect the degenerate result through IsVolume.
func Box(extents r3.Vec) *Mesh {
	b := r3.Box{Min: r3.Scale(-0.5, extents), Max: r3.Scale(0.5, extents)}
	verts := b.Vertices()
	// Corner numbering follows r3.Box.Vertices: 0-3 bottom CCW, 4-7 top CCW.
	faces := [][3]int{
		{0, 2, 1}, {0, 3, 2}, // bottom (-Z)
		{4, 5, 6}, {4, 6, 7}, // top (+Z)
		{0, 1, 5}, {0, 5, 4}, // front (-Y)
		{2, 3, 7}, {2, 7, 6}, // back (+Y)
		{1, 2, 6}, {1, 6, 5}, // right (+X)
		{3, 0, 4}, {3, 4, 7}, // left (-X)
	}
	return &Mesh{Name: "box", Vertices: verts, Faces: faces}
}

// Cylinder returns a closed cylinder along Z, centered at the origin,
// approximated by a regular prism with the given number of sides.
func Cylinder(radius, height float64, segments int) *Mesh {
	if segments < 3 {
		segments = 3
	}
	h := height / 2
	verts := make([]r3.Vec, 0, 2*segments+2)
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		x, y := radius*math.Cos(theta), radius*math.Sin(theta)
		verts = append(verts, r3.Vec{X: x, Y: y, Z: -h}, r3.Vec{X: x, Y: y, Z: h})
	}
	bottom := len(verts)
	top := bottom + 1
	verts = append(verts, r3.Vec{Z: -h}, r3.Vec{Z: h})

	faces := make([][3]int, 0, 4*segments)
	for i := 0; i < segments; i++ {
		j := (i + 1) % segments
		b0, t0 := 2*i, 2*i+1
		b1, t1 := 2*j, 2*j+1
		faces = append(faces,
			[3]int{b0, b1, t1},
			[3]int{b0, t1, t0},
			[3]int{bottom, b1, b0},
			[3]int{top, t0, t1},
		)
	}
	return &Mesh{Name: "cylinder", Vertices: verts, Faces: faces}
}

// Cone returns a closed cone along Z, centered at the origin, with its base
// disc at -height/2 and its apex at +height/2.
func Cone(radius, height float64, segments int) *Mesh {
	if segments < 3 {
		segments = 3
	}
	h := height / 2
	verts := make([]r3.Vec, 0, segments+2)
	for i := 0; i < segments; i++ {
		theta := 2 * math.Pi * float64(i) / float64(segments)
		verts = append(verts, r3.Vec{X: radius * math.Cos(theta), Y: radius * math.Sin(theta), Z: -h})
	}
	bottom := len(verts)
	apex := bottom + 1
	verts = append(verts, r3.Vec{Z: -h}, r3.Vec{Z: h})

	faces := make([][3]int, 0, 2*segments)
	for i := 0; i < segments; i++ {
		j := (i + 1) % segments
		faces = append(faces,
			[3]int{i, j, apex},
			[3]int{bottom, j, i},
		)
	}
	return &Mesh{Name: "cone", Vertices: verts, Faces: faces}
}
