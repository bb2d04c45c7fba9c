package overhang

import (
	"math"
	"testing"

	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestCubeFaces(t *testing.T) {
	cube := mesh.Box(r3.Vec{X: 1, Y: 1, Z: 1})

	// Bottom faces sit at 180 degrees, sides at 90, top at 0.
	set := Classify(cube, DefaultThreshold)
	assert.Equal(t, []int{0, 1, 4, 5, 6, 7, 8, 9, 10, 11}, set.Indices())

	// Vertical walls are not beyond 90 degrees; at 180 nothing is.
	assert.Equal(t, []int{0, 1}, Classify(cube, 90).Indices())
	assert.Equal(t, 2, Classify(cube, 135).Len())
	assert.Equal(t, 0, Classify(cube, 180).Len())
}

func TestUpFacingFaceNeverOverhangs(t *testing.T) {
	cube := mesh.Box(r3.Vec{X: 1, Y: 1, Z: 1})
	for _, threshold := range []float64{0, 1, 45, 89.9} {
		set := Classify(cube, threshold)
		// Faces 2 and 3 are the top.
		assert.False(t, set.Contains(2), "threshold %v", threshold)
		assert.False(t, set.Contains(3), "threshold %v", threshold)
	}
}

func TestDownFacingFaceAlwaysOverhangs(t *testing.T) {
	cube := mesh.Box(r3.Vec{X: 1, Y: 1, Z: 1})
	for _, threshold := range []float64{0, 45, 90, 179.9} {
		set := Classify(cube, threshold)
		assert.True(t, set.Contains(0), "threshold %v", threshold)
		assert.True(t, set.Contains(1), "threshold %v", threshold)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	cone := mesh.Cone(2, 3, 24).MirrorZ()
	first := Classify(cone, 30)
	second := Classify(cone, 30)
	assert.Equal(t, first.Indices(), second.Indices())
}

func TestApexDownConeSides(t *testing.T) {
	// A flat cone standing on its apex: every side face looks almost
	// straight down, the base disc looks straight up.
	cone := mesh.Cone(10, 1, 16).MirrorZ()
	set := Classify(cone, DefaultThreshold)
	require.Equal(t, 16, set.Len())
	for i := 0; i < cone.FaceCount(); i += 2 {
		assert.True(t, set.Contains(i), "side face %d", i)
		assert.False(t, set.Contains(i+1), "base face %d", i+1)
	}
	angles := Angles(cone)
	assert.Greater(t, angles[0], 170.0)
	assert.InDelta(t, 0.0, angles[1], 1e-5)
}

func TestDegenerateFacesAreExcluded(t *testing.T) {
	m := mesh.New("sliver",
		[]r3.Vec{{}, {X: 1}, {X: 2}, {Y: 1}},
		[][3]int{{0, 1, 2}, {0, 3, 1}},
	)
	set := Classify(m, 0)
	assert.Equal(t, []int{1}, set.Indices())
	assert.True(t, math.IsNaN(Angles(m)[0]))
}

func TestSet(t *testing.T) {
	s := NewSet(9, 3, 3, 7, 1)
	assert.Equal(t, []int{1, 3, 7, 9}, s.Indices())
	assert.True(t, s.Contains(7))
	assert.False(t, s.Contains(2))

	trunc := s.Truncate(2)
	assert.Equal(t, []int{1, 3}, trunc.Indices())
	assert.Equal(t, 4, s.Truncate(10).Len())
	assert.Equal(t, 0, s.Truncate(-1).Len())

	// Indices returns a copy.
	idx := s.Indices()
	idx[0] = 100
	assert.Equal(t, 1, s.Indices()[0])
}
