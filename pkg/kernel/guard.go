package kernel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chazu/fabprep/pkg/solid"
)

// DefaultTimeout is the hard limit for a single guarded kernel call.
const DefaultTimeout = 2 * time.Minute

// Compile-time interface check.
var _ Kernel = (*Guard)(nil)

// Guard wraps a Kernel with the checks every call needs: operands must be
// closed volumes, the call is bounded by a timeout and the caller's
// context, and panics inside the backend become errors.
//
// On timeout the backend goroutine may still be running; its result is
// discarded when it eventually completes.
type Guard struct {
	inner   Kernel
	timeout time.Duration
}

// NewGuard wraps k. A non-positive timeout selects DefaultTimeout.
func NewGuard(k Kernel, timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{inner: k, timeout: timeout}
}

// Name returns the wrapped kernel's name.
func (g *Guard) Name() string {
	return g.inner.Name()
}

// Union checks every operand, then unions them through the wrapped kernel.
func (g *Guard) Union(ctx context.Context, solids ...*solid.Solid) (*solid.Solid, error) {
	if len(solids) == 0 {
		return nil, &BooleanError{Op: OpUnion, Kernel: g.Name(), Err: errors.New("no operands")}
	}
	for i, s := range solids {
		if err := s.RequireVolume(fmt.Sprintf("union operand %d", i)); err != nil {
			return nil, &BooleanError{Op: OpUnion, Kernel: g.Name(), Operands: labels(solids), Err: err}
		}
	}
	return g.call(ctx, OpUnion, solids, func(ctx context.Context) (*solid.Solid, error) {
		return g.inner.Union(ctx, solids...)
	})
}

// Difference checks both operands, then computes a - b.
func (g *Guard) Difference(ctx context.Context, a, b *solid.Solid) (*solid.Solid, error) {
	ops := []*solid.Solid{a, b}
	if err := requirePair(a, b); err != nil {
		return nil, &BooleanError{Op: OpDifference, Kernel: g.Name(), Operands: labels(ops), Err: err}
	}
	return g.call(ctx, OpDifference, ops, func(ctx context.Context) (*solid.Solid, error) {
		return g.inner.Difference(ctx, a, b)
	})
}

// Intersection checks both operands, then intersects them.
func (g *Guard) Intersection(ctx context.Context, a, b *solid.Solid) (*solid.Solid, error) {
	ops := []*solid.Solid{a, b}
	if err := requirePair(a, b); err != nil {
		return nil, &BooleanError{Op: OpIntersection, Kernel: g.Name(), Operands: labels(ops), Err: err}
	}
	return g.call(ctx, OpIntersection, ops, func(ctx context.Context) (*solid.Solid, error) {
		return g.inner.Intersection(ctx, a, b)
	})
}

func requirePair(a, b *solid.Solid) error {
	if err := a.RequireVolume("left operand"); err != nil {
		return err
	}
	return b.RequireVolume("right operand")
}

type callResult struct {
	s   *solid.Solid
	err error
}

// call runs fn on its own goroutine and waits for it, the timeout or ctx.
func (g *Guard) call(ctx context.Context, op Op, operands []*solid.Solid, fn func(context.Context) (*solid.Solid, error)) (*solid.Solid, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ch := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- callResult{err: fmt.Errorf("panic in kernel: %v", r)}
			}
		}()
		s, err := fn(ctx)
		ch <- callResult{s: s, err: err}
	}()

	fail := func(err error) error {
		var berr *BooleanError
		if errors.As(err, &berr) {
			return err
		}
		return &BooleanError{Op: op, Kernel: g.Name(), Operands: labels(operands), Err: err}
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fail(res.err)
		}
		if res.s == nil {
			return nil, fail(errors.New("kernel returned no solid"))
		}
		return res.s, nil
	case <-ctx.Done():
		return nil, fail(ctx.Err())
	}
}
