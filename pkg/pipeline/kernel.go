package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/chazu/fabprep/pkg/config"
	"github.com/chazu/fabprep/pkg/kernel"
	"github.com/chazu/fabprep/pkg/kernel/manifold"
	"github.com/chazu/fabprep/pkg/kernel/sdfx"
	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/chazu/fabprep/pkg/overhang"
	"github.com/chazu/fabprep/pkg/progress"
	"gonum.org/v1/gonum/spatial/r3"
)

// NewKernel builds the backend named by cfg.Kernel.Backend. When the
// manifold backend was not compiled in, it falls back to sdfx and reports
// a warning.
func NewKernel(cfg *config.Config, sink progress.Sink) (kernel.Kernel, error) {
	switch cfg.Kernel.Backend {
	case config.BackendSdfx:
		return sdfx.New(cfg.SdfxOptions()), nil
	case config.BackendManifold:
		k, err := manifold.New()
		if errors.Is(err, manifold.ErrUnavailable) {
			progress.Warn(sink, component, "falling back to sdfx", err, slog.String("requested", config.BackendManifold))
			return sdfx.New(cfg.SdfxOptions()), nil
		}
		if err != nil {
			return nil, fmt.Errorf("pipeline: manifold kernel: %w", err)
		}
		return k, nil
	}
	return nil, fmt.Errorf("pipeline: unknown kernel backend %q", cfg.Kernel.Backend)
}

// Stats summarizes a mesh for the info command.
type Stats struct {
	Name        string
	Vertices    int
	Faces       int
	Bounds      r3.Box
	Extents     r3.Vec
	SurfaceArea float64
	Volume      float64
	OpenEdges   int
	Volumetric  bool
	Angle       float64
	Overhangs   int
	Steepest    float64 // largest face angle from +Z in degrees, NaN with no valid faces
}

// Inspect measures m and counts its overhangs at angle degrees.
func Inspect(m *mesh.Mesh, angle float64) Stats {
	return Stats{
		Name:        m.Name,
		Vertices:    m.VertexCount(),
		Faces:       m.FaceCount(),
		Bounds:      m.Bounds(),
		Extents:     m.Extents(),
		SurfaceArea: m.SurfaceArea(),
		Volume:      m.SignedVolume(),
		OpenEdges:   m.OpenEdges(),
		Volumetric:  m.IsVolume(),
		Angle:       angle,
		Overhangs:   overhang.Classify(m, angle).Len(),
		Steepest:    steepest(m),
	}
}

func steepest(m *mesh.Mesh) float64 {
	top := math.NaN()
	for _, a := range overhang.Angles(m) {
		if math.IsNaN(a) {
			continue
		}
		if math.IsNaN(top) || a > top {
			top = a
		}
	}
	return top
}
