// Package kernel defines the abstract solid boolean kernel interface.
// Implementations (sdfx, manifold) provide union, difference and
// intersection of closed volumes behind this interface. The kernel
// abstraction allows swapping backends without changing the rest of the
// system.
package kernel

import (
	"context"
	"fmt"
	"strings"

	"github.com/chazu/fabprep/pkg/solid"
)

// Kernel is the abstract geometry kernel interface.
//
// Every operand must be a closed volume. Implementations may assume the
// precondition holds; wrap them in a Guard to have it enforced.
type Kernel interface {
	Name() string

	// Union returns the union of one or more solids, combined left to right.
	Union(ctx context.Context, solids ...*solid.Solid) (*solid.Solid, error)
	// Difference returns a - b.
	Difference(ctx context.Context, a, b *solid.Solid) (*solid.Solid, error)
	// Intersection returns the volume shared by a and b.
	Intersection(ctx context.Context, a, b *solid.Solid) (*solid.Solid, error)
}

// Op names a boolean operation.
type Op string

const (
	OpUnion        Op = "union"
	OpDifference   Op = "difference"
	OpIntersection Op = "intersection"
)

// BooleanError reports a boolean operation the kernel could not compute.
// Err is a *solid.GeometryError when an operand failed the volume
// precondition and context.DeadlineExceeded when the call timed out.
type BooleanError struct {
	Op       Op
	Kernel   string
	Operands []string
	Err      error
}

func (e *BooleanError) Error() string {
	return fmt.Sprintf("kernel %s: %s(%s): %v", e.Kernel, e.Op, strings.Join(e.Operands, ", "), e.Err)
}

func (e *BooleanError) Unwrap() error {
	return e.Err
}

func labels(solids []*solid.Solid) []string {
	out := make([]string, len(solids))
	for i, s := range solids {
		out[i] = s.Label()
	}
	return out
}
