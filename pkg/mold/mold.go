// Package mold derives the two mold pieces from a model and its parting
// slab: a rigid shell and a flexible liner.
package mold

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chazu/fabprep/pkg/kernel"
	"github.com/chazu/fabprep/pkg/progress"
	"github.com/chazu/fabprep/pkg/solid"
)

const component = "mold"

// DefaultLinerScale is the uniform growth applied to the liner for a small
// clearance fit inside the shell.
const DefaultLinerScale = 1.02

// Options configures a Compositor.
type Options struct {
	LinerScale float64 // must be greater than 1
}

// DefaultOptions returns the stock liner scale.
func DefaultOptions() Options {
	return Options{LinerScale: DefaultLinerScale}
}

// Compositor runs the boolean derivations of the mold pieces.
type Compositor struct {
	kernel kernel.Kernel
	opts   Options
	sink   progress.Sink
}

// New returns a Compositor using k. sink may be nil.
func New(k kernel.Kernel, opts Options, sink progress.Sink) *Compositor {
	return &Compositor{kernel: k, opts: opts, sink: progress.OrNop(sink)}
}

// DeriveShell returns model minus slab.
func (c *Compositor) DeriveShell(ctx context.Context, model, slab *solid.Solid) (shell *solid.Solid, err error) {
	done := progress.Start(c.sink, component, "shell")
	defer func() { done(err) }()

	if err := preconditions(model, slab); err != nil {
		return nil, err
	}
	shell, err = c.kernel.Difference(ctx, model, slab)
	if err != nil {
		return nil, fmt.Errorf("mold: shell: %w", err)
	}
	if err := requirePiece("shell", shell); err != nil {
		return nil, err
	}
	return shell, nil
}

// DeriveLiner returns model minus slab, scaled uniformly by the liner
// scale about the origin of the model's frame. The liner is computed from
// the model, never from the shell.
func (c *Compositor) DeriveLiner(ctx context.Context, model, slab *solid.Solid) (liner *solid.Solid, err error) {
	done := progress.Start(c.sink, component, "liner", slog.Float64("scale", c.opts.LinerScale))
	defer func() { done(err) }()

	if c.opts.LinerScale <= 1 {
		return nil, fmt.Errorf("mold: liner scale must be greater than 1, got %g", c.opts.LinerScale)
	}
	if err := preconditions(model, slab); err != nil {
		return nil, err
	}
	cut, err := c.kernel.Difference(ctx, model, slab)
	if err != nil {
		return nil, fmt.Errorf("mold: liner: %w", err)
	}
	if err := requirePiece("liner", cut); err != nil {
		return nil, err
	}
	return solid.New("liner", cut.Mesh.Scale(c.opts.LinerScale)), nil
}

// requirePiece rejects a kernel result that is empty or not a closed
// volume.
func requirePiece(piece string, s *solid.Solid) error {
	if err := s.RequireVolume(piece); err != nil {
		return fmt.Errorf("mold: %s: %w", piece, err)
	}
	return nil
}

func preconditions(model, slab *solid.Solid) error {
	if err := model.RequireVolume("model"); err != nil {
		return err
	}
	return slab.RequireVolume("parting surface")
}

// Result carries both mold pieces. A failed piece leaves its solid nil and
// its error set; the other piece is unaffected.
type Result struct {
	Shell    *solid.Solid
	ShellErr error
	Liner    *solid.Solid
	LinerErr error
}

// Err joins the per-piece errors, nil when both pieces succeeded.
func (r *Result) Err() error {
	switch {
	case r.ShellErr != nil && r.LinerErr != nil:
		return fmt.Errorf("%w; %w", r.ShellErr, r.LinerErr)
	case r.ShellErr != nil:
		return r.ShellErr
	default:
		return r.LinerErr
	}
}

// Composite derives the shell and the liner concurrently.
func (c *Compositor) Composite(ctx context.Context, model, slab *solid.Solid) *Result {
	var (
		res Result
		wg  sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		res.Shell, res.ShellErr = c.DeriveShell(ctx, model, slab)
	}()
	go func() {
		defer wg.Done()
		res.Liner, res.LinerErr = c.DeriveLiner(ctx, model, slab)
	}()
	wg.Wait()
	return &res
}
