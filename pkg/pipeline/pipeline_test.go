package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/chazu/fabprep/pkg/config"
	"github.com/chazu/fabprep/pkg/kernel"
	"github.com/chazu/fabprep/pkg/kernel/sdfx"
	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/chazu/fabprep/pkg/meshio"
	"github.com/chazu/fabprep/pkg/progress"
	"github.com/chazu/fabprep/pkg/solid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

type fakeLoader struct {
	m   *mesh.Mesh
	err error
}

func (l fakeLoader) Load(path string) (*mesh.Mesh, error) {
	if l.err != nil {
		return nil, &meshio.LoadError{Path: path, Err: l.err}
	}
	return l.m, nil
}

// memExporter records exported solids by path. Paths listed in fail are
// refused.
type memExporter struct {
	mu   sync.Mutex
	out  map[string]*solid.Solid
	fail map[string]bool
}

func (x *memExporter) Export(s *solid.Solid, path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.fail[path] {
		return &meshio.ExportError{Path: path, Solid: s.Label(), Err: errors.New("disk full")}
	}
	if x.out == nil {
		x.out = make(map[string]*solid.Solid)
	}
	x.out[path] = s
	return nil
}

// firstKernel answers every boolean with its first operand. Difference
// fails when failDifference is set.
type firstKernel struct {
	failDifference bool
}

func (k *firstKernel) Name() string { return "first" }

func (k *firstKernel) Union(_ context.Context, solids ...*solid.Solid) (*solid.Solid, error) {
	return solids[0], nil
}

func (k *firstKernel) Difference(_ context.Context, a, _ *solid.Solid) (*solid.Solid, error) {
	if k.failDifference {
		return nil, errors.New("degenerate intersection")
	}
	return a, nil
}

func (k *firstKernel) Intersection(_ context.Context, a, _ *solid.Solid) (*solid.Solid, error) {
	return a, nil
}

var _ kernel.Kernel = (*firstKernel)(nil)

// raisedCube is a 2-unit cube floating 2 units above the plate.
func raisedCube() *mesh.Mesh {
	m := mesh.Box(r3.Vec{X: 2, Y: 2, Z: 2}).Translate(r3.Vec{Z: 3})
	m.Name = "cube"
	return m
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Output.Dir = "out"
	return cfg
}

func newPipeline(t *testing.T, cfg *config.Config, k kernel.Kernel, l meshio.Loader, x meshio.Exporter, sink progress.Sink) *Pipeline {
	t.Helper()
	p, err := New(cfg, k, sink, WithLoader(l), WithExporter(x))
	require.NoError(t, err)
	return p
}

func TestRunBothBranches(t *testing.T) {
	x := &memExporter{}
	rec := &progress.Recorder{}
	p := newPipeline(t, testConfig(), &firstKernel{}, fakeLoader{m: raisedCube()}, x, rec)

	rep, err := p.Run(context.Background(), filepath.Join("parts", "cube.stl"), AllBranches)
	require.NoError(t, err)
	require.NoError(t, rep.Err())

	assert.Equal(t, 10, rep.Overhang)
	assert.Equal(t, Exported, rep.Supports.Reached)
	assert.Equal(t, Exported, rep.Mold.Reached)

	supportPath := filepath.Join("parts", "cube_support.stl")
	shellPath := filepath.Join("out", "hard_shell_mold.stl")
	linerPath := filepath.Join("out", "silicone_mold.stl")
	assert.Contains(t, x.out, supportPath)
	assert.Contains(t, x.out, shellPath)
	assert.Contains(t, x.out, linerPath)

	require.Len(t, rep.Mold.Outputs, 2)
	assert.Equal(t, "shell", rep.Mold.Outputs[0].Piece)
	assert.Equal(t, "liner", rep.Mold.Outputs[1].Piece)

	var notes int
	for _, e := range rec.Events() {
		if e.Kind == progress.Info && e.Component == component {
			notes++
		}
	}
	assert.Equal(t, 1, notes, "overhang classification is reported once")
}

func TestLoadFailureStopsBothBranches(t *testing.T) {
	p := newPipeline(t, testConfig(), &firstKernel{}, fakeLoader{err: os.ErrNotExist}, &memExporter{}, nil)

	rep, err := p.Run(context.Background(), "missing.stl", AllBranches)
	var lerr *meshio.LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, StageNone, rep.Supports.Reached)
	assert.Equal(t, StageNone, rep.Mold.Reached)
}

func TestBranchesDoNotShareFate(t *testing.T) {
	x := &memExporter{}
	p := newPipeline(t, testConfig(), &firstKernel{failDifference: true}, fakeLoader{m: raisedCube()}, x, nil)

	rep, err := p.Run(context.Background(), "cube.stl", AllBranches)
	require.NoError(t, err)

	assert.Equal(t, Exported, rep.Supports.Reached)
	assert.NoError(t, rep.Supports.Err)

	assert.Equal(t, PartingPlanned, rep.Mold.Reached)
	var berr *kernel.BooleanError
	require.ErrorAs(t, rep.Mold.Err, &berr)
	assert.Equal(t, kernel.OpDifference, berr.Op)
	assert.ErrorContains(t, rep.Err(), "mold:")
	assert.Len(t, x.out, 1)
}

func TestPartialMoldIsReportedPerPiece(t *testing.T) {
	cfg := testConfig()
	linerPath := meshio.LinerPath(cfg.Output.Dir, cfg.Format())
	x := &memExporter{fail: map[string]bool{linerPath: true}}
	p := newPipeline(t, cfg, &firstKernel{}, fakeLoader{m: raisedCube()}, x, nil)

	rep, err := p.Run(context.Background(), "cube.stl", MoldBranch)
	require.NoError(t, err)

	assert.Equal(t, Exported, rep.Mold.Reached)
	require.Len(t, rep.Mold.Outputs, 2)
	assert.NoError(t, rep.Mold.Outputs[0].Err)
	var xerr *meshio.ExportError
	require.ErrorAs(t, rep.Mold.Outputs[1].Err, &xerr)
	assert.ErrorContains(t, rep.Mold.Err, "liner:")
	assert.Contains(t, x.out, meshio.ShellPath(cfg.Output.Dir, cfg.Format()))
}

func TestOpenMeshFailsMoldOnly(t *testing.T) {
	open := raisedCube()
	open.Faces = open.Faces[:len(open.Faces)-1]
	p := newPipeline(t, testConfig(), &firstKernel{}, fakeLoader{m: open}, &memExporter{}, nil)

	rep, err := p.Run(context.Background(), "open.stl", AllBranches)
	require.NoError(t, err)

	assert.NoError(t, rep.Supports.Err)
	assert.Equal(t, Exported, rep.Supports.Reached)

	var gerr *solid.GeometryError
	require.ErrorAs(t, rep.Mold.Err, &gerr)
	assert.Equal(t, "model", gerr.Role)
	assert.Equal(t, PartingPlanned, rep.Mold.Reached)
}

func TestNoSupportsNeeded(t *testing.T) {
	cfg := testConfig()
	cfg.Overhang.Angle = 90
	onPlate := mesh.Box(r3.Vec{X: 2, Y: 2, Z: 2}).Translate(r3.Vec{Z: 1})
	x := &memExporter{}
	p := newPipeline(t, cfg, &firstKernel{}, fakeLoader{m: onPlate}, x, nil)

	rep, err := p.Run(context.Background(), "cube.stl", SupportBranch)
	require.NoError(t, err)
	assert.NoError(t, rep.Supports.Err)
	assert.Equal(t, Synthesized, rep.Supports.Reached)
	assert.Equal(t, 2, rep.Overhang)
	assert.Empty(t, rep.Supports.Outputs)
	assert.Empty(t, x.out)

	assert.False(t, rep.Mold.Ran)
	assert.Equal(t, StageNone, rep.Mold.Reached)
}

func TestTruncationWarningReachesReport(t *testing.T) {
	cfg := testConfig()
	cfg.Supports.MaxSupports = 3
	p := newPipeline(t, cfg, &firstKernel{}, fakeLoader{m: raisedCube()}, &memExporter{}, nil)

	rep, err := p.Run(context.Background(), "cube.stl", SupportBranch)
	require.NoError(t, err)
	require.Len(t, rep.Supports.Warnings, 1)
	assert.ErrorContains(t, rep.Supports.Warnings[0], "3")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Mold.LinerScale = 1
	_, err := New(cfg, &firstKernel{}, nil)
	assert.ErrorContains(t, err, "liner_scale")
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "parting-planned", PartingPlanned.String())
	assert.Equal(t, "none", StageNone.String())
	assert.Equal(t, "exported", Exported.String())
}

func TestNewKernel(t *testing.T) {
	cfg := config.Default()
	k, err := NewKernel(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "sdfx", k.Name())

	cfg.Kernel.Backend = config.BackendManifold
	rec := &progress.Recorder{}
	k, err = NewKernel(cfg, rec)
	require.NoError(t, err)
	if k.Name() == "sdfx" {
		assert.Len(t, rec.Warnings(), 1, "fallback must be reported")
	}

	cfg.Kernel.Backend = "cgal"
	_, err = NewKernel(cfg, nil)
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	s := Inspect(raisedCube(), 45)
	assert.Equal(t, "cube", s.Name)
	assert.Equal(t, 8, s.Vertices)
	assert.Equal(t, 12, s.Faces)
	assert.True(t, s.Volumetric)
	assert.Zero(t, s.OpenEdges)
	assert.InDelta(t, 8.0, s.Volume, 1e-9)
	assert.InDelta(t, 24.0, s.SurfaceArea, 1e-9)
	assert.Equal(t, 10, s.Overhangs)
	assert.InDelta(t, 180.0, s.Steepest, 1e-9)
	assert.InDelta(t, 2.0, s.Bounds.Min.Z, 1e-12)
}

func TestEndToEndWithSdfx(t *testing.T) {
	if testing.Short() {
		t.Skip("tessellates several solids")
	}
	dir := t.TempDir()
	input := filepath.Join(dir, "cube.obj")
	require.NoError(t, meshio.NewFileExporter(nil).Export(solid.New("cube", raisedCube()), input))

	cfg := config.Default()
	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Kernel.MeshCells = 24
	cfg.Mold.SlabThickness = 0.5
	cfg.Mold.SlabMargin = 0.5
	p, err := New(cfg, sdfx.New(cfg.SdfxOptions()), nil)
	require.NoError(t, err)

	rep, err := p.Run(context.Background(), input, AllBranches)
	require.NoError(t, err)
	require.NoError(t, rep.Err())
	assert.Equal(t, Exported, rep.Supports.Reached)
	assert.Equal(t, Exported, rep.Mold.Reached)

	for _, path := range []string{
		filepath.Join(dir, "cube_support.stl"),
		filepath.Join(dir, "out", "hard_shell_mold.stl"),
		filepath.Join(dir, "out", "silicone_mold.stl"),
	} {
		info, err := os.Stat(path)
		require.NoError(t, err, path)
		assert.Greater(t, info.Size(), int64(84), path)
	}
}
