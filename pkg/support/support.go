// Package support builds support pillars under overhanging faces and
// unions them into a single support solid.
//
// Pillars are unioned in bounded batches: each batch is one kernel union
// over at most BatchSize pillars, and the batch solids are then unioned
// into the final result. Both reductions run in ascending face order, so
// the same input always produces the same sequence of kernel calls.
package support

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	"github.com/chazu/fabprep/pkg/kernel"
	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/chazu/fabprep/pkg/overhang"
	"github.com/chazu/fabprep/pkg/progress"
	"github.com/chazu/fabprep/pkg/solid"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/spatial/r3"
)

const component = "support"

// PlateEpsilon is the height at or below which a face counts as resting on
// the build plate. Such faces cannot carry a pillar.
const PlateEpsilon = 1e-9

// Options controls pillar geometry and the resource bounds.
type Options struct {
	Radius      float64
	Segments    int
	MaxSupports int // overhang sets larger than this are truncated
	BatchSize   int
	Workers     int // pillar construction goroutines, GOMAXPROCS when zero
}

// DefaultOptions returns the stock settings.
func DefaultOptions() Options {
	return Options{
		Radius:      0.5,
		Segments:    mesh.DefaultSegments,
		MaxSupports: 1000,
		BatchSize:   100,
	}
}

// Validate reports options that cannot produce pillars.
func (o Options) Validate() error {
	switch {
	case o.Radius <= 0:
		return fmt.Errorf("support: radius must be positive, got %g", o.Radius)
	case o.MaxSupports <= 0:
		return fmt.Errorf("support: max supports must be positive, got %d", o.MaxSupports)
	case o.BatchSize <= 0:
		return fmt.Errorf("support: batch size must be positive, got %d", o.BatchSize)
	}
	return nil
}

// ResourceLimitError reports that the overhang set was truncated. It is a
// warning: synthesis continues with the first Limit faces.
type ResourceLimitError struct {
	Limit     int
	Requested int
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("support: %d overhang faces exceed the limit of %d; only the first %d (by face index) get pillars",
		e.Requested, e.Limit, e.Limit)
}

// Result is the outcome of one synthesis.
type Result struct {
	// Solid is the union of every pillar, or an empty solid when no pillar
	// was needed.
	Solid    *solid.Solid
	Faces    []int // faces that received a pillar, ascending
	Skipped  []int // faces at or below the plate or whose pillar has no volume, ascending
	Pillars  int
	Batches  int
	Warnings []error
}

// Empty reports whether no supports were needed. This is a normal result,
// not a failure.
func (r *Result) Empty() bool {
	return r.Pillars == 0
}

// Synthesizer turns overhang sets into support solids.
type Synthesizer struct {
	kernel kernel.Kernel
	opts   Options
	sink   progress.Sink
}

// New returns a Synthesizer that unions through k. sink may be nil.
func New(k kernel.Kernel, opts Options, sink progress.Sink) *Synthesizer {
	if opts.Segments < 3 {
		opts.Segments = mesh.DefaultSegments
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Synthesizer{kernel: k, opts: opts, sink: progress.OrNop(sink)}
}

// Synthesize builds one pillar per overhang face and unions them.
func (s *Synthesizer) Synthesize(ctx context.Context, m *mesh.Mesh, faces overhang.Set) (res *Result, err error) {
	done := progress.Start(s.sink, component, "synthesize", slog.Int("overhangs", faces.Len()))
	defer func() { done(err) }()

	if err := s.opts.Validate(); err != nil {
		return nil, err
	}

	res = &Result{}
	if faces.Len() > s.opts.MaxSupports {
		warn := &ResourceLimitError{Limit: s.opts.MaxSupports, Requested: faces.Len()}
		res.Warnings = append(res.Warnings, warn)
		progress.Warn(s.sink, component, "overhang set truncated", warn,
			slog.Int("limit", warn.Limit), slog.Int("requested", warn.Requested))
		faces = faces.Truncate(s.opts.MaxSupports)
	}

	var candidates []int
	for _, f := range faces.Indices() {
		if m.FaceCenter(f).Z <= PlateEpsilon {
			res.Skipped = append(res.Skipped, f)
			continue
		}
		candidates = append(candidates, f)
	}
	if len(res.Skipped) > 0 {
		progress.Warn(s.sink, component, "faces on the build plate skipped", nil, slog.Int("skipped", len(res.Skipped)))
	}

	built, err := s.pillars(ctx, m, candidates)
	if err != nil {
		return nil, err
	}
	var (
		pillars []*solid.Solid
		flat    []int
	)
	for i, p := range built {
		if !p.Volumetric {
			flat = append(flat, candidates[i])
			continue
		}
		pillars = append(pillars, p)
		res.Faces = append(res.Faces, candidates[i])
	}
	if len(flat) > 0 {
		res.Skipped = append(res.Skipped, flat...)
		slices.Sort(res.Skipped)
		progress.Warn(s.sink, component, "pillars enclosing no volume skipped", nil, slog.Int("skipped", len(flat)))
	}
	if len(res.Faces) == 0 {
		res.Solid = solid.Empty("supports")
		return res, nil
	}

	var batches []*solid.Solid
	for i, chunk := range lo.Chunk(pillars, s.opts.BatchSize) {
		b, err := s.batch(ctx, i, chunk)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
		res.Pillars += len(chunk)
	}
	res.Batches = len(batches)

	if len(batches) == 1 {
		res.Solid = batches[0]
		return res, nil
	}
	mergeDone := progress.Start(s.sink, component, "merge", slog.Int("batches", len(batches)))
	res.Solid, err = s.kernel.Union(ctx, batches...)
	mergeDone(err)
	if err != nil {
		return nil, fmt.Errorf("support: merge batches: %w", err)
	}
	return res, nil
}

func (s *Synthesizer) batch(ctx context.Context, i int, pillars []*solid.Solid) (*solid.Solid, error) {
	done := progress.Start(s.sink, component, "batch", slog.Int("batch", i), slog.Int("pillars", len(pillars)))
	b, err := s.kernel.Union(ctx, pillars...)
	done(err)
	if err != nil {
		return nil, fmt.Errorf("support: batch %d: %w", i, err)
	}
	return b, nil
}

// pillars builds the pillar solids in parallel. The output order matches
// faces.
func (s *Synthesizer) pillars(ctx context.Context, m *mesh.Mesh, faces []int) ([]*solid.Solid, error) {
	out := make([]*solid.Solid, len(faces))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(s.opts.Workers, len(faces)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := Pillar(m.FaceCenter(faces[i]), s.opts.Radius, s.opts.Segments)
				out[i] = solid.New(fmt.Sprintf("pillar-%d", faces[i]), p)
			}
		}()
	}

	var err error
feed:
	for i := range faces {
		select {
		case jobs <- i:
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Pillar returns a cylinder standing on the build plate with its axis
// through top's (x, y) and its top face at top's height.
func Pillar(top r3.Vec, radius float64, segments int) *mesh.Mesh {
	p := mesh.Cylinder(radius, top.Z, segments).Translate(r3.Vec{X: top.X, Y: top.Y, Z: top.Z / 2})
	p.Name = "pillar"
	return p
}
