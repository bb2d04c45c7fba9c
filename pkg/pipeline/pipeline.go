// Package pipeline runs a fabprep job: load a mesh, then synthesize
// supports and composite the mold pieces on two independent branches.
//
// The branches share only read access to the loaded mesh. A failure in one
// branch never stops the other.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chazu/fabprep/pkg/config"
	"github.com/chazu/fabprep/pkg/kernel"
	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/chazu/fabprep/pkg/meshio"
	"github.com/chazu/fabprep/pkg/mold"
	"github.com/chazu/fabprep/pkg/overhang"
	"github.com/chazu/fabprep/pkg/parting"
	"github.com/chazu/fabprep/pkg/progress"
	"github.com/chazu/fabprep/pkg/solid"
	"github.com/chazu/fabprep/pkg/support"
)

const component = "pipeline"

// Stage is the last step a branch completed.
type Stage int

const (
	StageNone Stage = iota
	Loaded
	Classified
	Synthesized
	PartingPlanned
	Composited
	Exported
)

func (s Stage) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Classified:
		return "classified"
	case Synthesized:
		return "synthesized"
	case PartingPlanned:
		return "parting-planned"
	case Composited:
		return "composited"
	case Exported:
		return "exported"
	default:
		return "none"
	}
}

// Branches selects which branches a run executes.
type Branches uint8

const (
	SupportBranch Branches = 1 << iota
	MoldBranch
	AllBranches = SupportBranch | MoldBranch
)

// Output is one exported (or not exported) piece.
type Output struct {
	Piece string // "supports", "shell", "liner"
	Path  string
	Err   error
}

// BranchReport is the outcome of one branch.
type BranchReport struct {
	Name     string
	Ran      bool
	Reached  Stage
	Err      error
	Outputs  []Output
	Warnings []error
}

// Report is the outcome of a run.
type Report struct {
	Input    string
	Mesh     *mesh.Mesh
	Overhang int // faces classified as overhangs, before truncation
	Supports BranchReport
	Mold     BranchReport
}

// Err joins the branch errors; nil when every branch that ran succeeded.
func (r *Report) Err() error {
	var errs []error
	if r.Supports.Err != nil {
		errs = append(errs, fmt.Errorf("supports: %w", r.Supports.Err))
	}
	if r.Mold.Err != nil {
		errs = append(errs, fmt.Errorf("mold: %w", r.Mold.Err))
	}
	return errors.Join(errs...)
}

// Pipeline wires the components of a run together.
type Pipeline struct {
	cfg      *config.Config
	kernel   kernel.Kernel
	loader   meshio.Loader
	exporter meshio.Exporter
	escape   parting.EscapePathPlanner
	sink     progress.Sink
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLoader replaces the file loader.
func WithLoader(l meshio.Loader) Option {
	return func(p *Pipeline) { p.loader = l }
}

// WithExporter replaces the file exporter.
func WithExporter(x meshio.Exporter) Option {
	return func(p *Pipeline) { p.exporter = x }
}

// WithEscapePlanner consults ep before planning the parting slab.
func WithEscapePlanner(ep parting.EscapePathPlanner) Option {
	return func(p *Pipeline) { p.escape = ep }
}

// New returns a pipeline running cfg through k. Every kernel call is
// guarded with cfg.Kernel.Timeout. sink may be nil.
func New(cfg *config.Config, k kernel.Kernel, sink progress.Sink, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sink = progress.OrNop(sink)
	p := &Pipeline{
		cfg:      cfg,
		kernel:   kernel.NewGuard(k, cfg.Kernel.Timeout),
		loader:   meshio.NewFileLoader(sink),
		exporter: meshio.NewFileExporter(sink),
		sink:     sink,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run loads input and executes the selected branches concurrently. The
// returned error is set only when the input could not be loaded; branch
// failures are carried in the report.
func (p *Pipeline) Run(ctx context.Context, input string, branches Branches) (*Report, error) {
	rep := &Report{
		Input:    input,
		Supports: BranchReport{Name: "supports", Ran: branches&SupportBranch != 0},
		Mold:     BranchReport{Name: "mold", Ran: branches&MoldBranch != 0},
	}

	m, err := p.loader.Load(input)
	if err != nil {
		return rep, err
	}
	rep.Mesh = m

	var wg sync.WaitGroup
	if rep.Supports.Ran {
		rep.Supports.Reached = Loaded
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep.Overhang = p.supports(ctx, input, m, &rep.Supports)
		}()
	}
	if rep.Mold.Ran {
		rep.Mold.Reached = Loaded
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.mold(ctx, m, &rep.Mold)
		}()
	}
	wg.Wait()
	return rep, nil
}

// supports runs Loaded → Classified → Synthesized → Exported and returns
// the size of the overhang set.
func (p *Pipeline) supports(ctx context.Context, input string, m *mesh.Mesh, br *BranchReport) int {
	done := progress.Start(p.sink, component, "supports")
	defer func() { done(br.Err) }()

	faces := overhang.Classify(m, p.cfg.Overhang.Angle)
	br.Reached = Classified
	progress.Note(p.sink, component, "overhangs classified",
		slog.Int("faces", faces.Len()), slog.Float64("angle", p.cfg.Overhang.Angle))

	res, err := support.New(p.kernel, p.cfg.SupportOptions(), p.sink).Synthesize(ctx, m, faces)
	if err != nil {
		br.Err = err
		return faces.Len()
	}
	br.Reached = Synthesized
	br.Warnings = append(br.Warnings, res.Warnings...)
	if res.Empty() {
		progress.Note(p.sink, component, "no supports needed")
		return faces.Len()
	}

	out := Output{Piece: "supports", Path: p.cfg.SupportsPath(input)}
	out.Err = p.exporter.Export(res.Solid, out.Path)
	br.Outputs = append(br.Outputs, out)
	if out.Err != nil {
		br.Err = out.Err
		return faces.Len()
	}
	br.Reached = Exported
	return faces.Len()
}

// mold runs Loaded → PartingPlanned → Composited → Exported. A piece that
// fails does not stop the other piece from being exported.
func (p *Pipeline) mold(ctx context.Context, m *mesh.Mesh, br *BranchReport) {
	done := progress.Start(p.sink, component, "mold")
	defer func() { done(br.Err) }()

	slab, err := parting.PlanWith(ctx, parting.NewPlanner(p.cfg.PartingOptions(), p.sink), p.escape, m)
	if err != nil {
		br.Err = err
		return
	}
	br.Reached = PartingPlanned

	model := solid.New(m.Name, m)
	res := mold.New(p.kernel, p.cfg.MoldOptions(), p.sink).Composite(ctx, model, slab)
	if res.Shell == nil && res.Liner == nil {
		br.Err = res.Err()
		return
	}
	br.Reached = Composited

	dir, format := p.cfg.Output.Dir, p.cfg.Format()
	pieces := []struct {
		name  string
		path  string
		solid *solid.Solid
		err   error
	}{
		{"shell", meshio.ShellPath(dir, format), res.Shell, res.ShellErr},
		{"liner", meshio.LinerPath(dir, format), res.Liner, res.LinerErr},
	}
	var errs []error
	exported := 0
	for _, pc := range pieces {
		out := Output{Piece: pc.name, Path: pc.path, Err: pc.err}
		if pc.err == nil {
			out.Err = p.exporter.Export(pc.solid, pc.path)
			if out.Err == nil {
				exported++
			}
		}
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pc.name, out.Err))
		}
		br.Outputs = append(br.Outputs, out)
	}
	br.Err = errors.Join(errs...)
	if exported > 0 {
		br.Reached = Exported
	}
}
