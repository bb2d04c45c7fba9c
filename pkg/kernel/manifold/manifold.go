//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold provides
// guaranteed-manifold mesh boolean operations on exact triangle meshes.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/chazu/fabprep/pkg/kernel"
	"github.com/chazu/fabprep/pkg/solid"
)

// Compile-time interface check.
var _ kernel.Kernel = (*ManifoldKernel)(nil)

// ManifoldKernel implements kernel.Kernel using the Manifold C library.
// Operands are copied into Manifold for each call and the result is copied
// back; no C memory outlives a call.
type ManifoldKernel struct{}

// New creates a new ManifoldKernel.
func New() (kernel.Kernel, error) {
	return &ManifoldKernel{}, nil
}

// Name returns "manifold".
func (k *ManifoldKernel) Name() string {
	return "manifold"
}

// Union returns the union of one or more solids, folded left to right.
func (k *ManifoldKernel) Union(ctx context.Context, solids ...*solid.Solid) (*solid.Solid, error) {
	if len(solids) == 0 {
		return nil, fmt.Errorf("manifold: union needs at least one operand")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc, err := toManifold(solids[0])
	if err != nil {
		return nil, err
	}
	for _, s := range solids[1:] {
		if err := ctx.Err(); err != nil {
			C.manifold_delete_manifold(acc)
			return nil, err
		}
		next, err := toManifold(s)
		if err != nil {
			C.manifold_delete_manifold(acc)
			return nil, err
		}
		u := C.manifold_union(unsafe.Pointer(C.manifold_alloc_manifold()), acc, next)
		C.manifold_delete_manifold(acc)
		C.manifold_delete_manifold(next)
		acc = u
	}
	defer C.manifold_delete_manifold(acc)
	return fromManifold(acc, "union")
}

// Difference returns the boolean difference (a minus b).
func (k *ManifoldKernel) Difference(ctx context.Context, a, b *solid.Solid) (*solid.Solid, error) {
	return binary(ctx, a, b, a.Name+"-difference", func(mem unsafe.Pointer, x, y *C.ManifoldManifold) *C.ManifoldManifold {
		return C.manifold_difference(mem, x, y)
	})
}

// Intersection returns the boolean intersection of two solids.
func (k *ManifoldKernel) Intersection(ctx context.Context, a, b *solid.Solid) (*solid.Solid, error) {
	return binary(ctx, a, b, a.Name+"-intersection", func(mem unsafe.Pointer, x, y *C.ManifoldManifold) *C.ManifoldManifold {
		return C.manifold_intersection(mem, x, y)
	})
}

func binary(ctx context.Context, a, b *solid.Solid, name string, op func(unsafe.Pointer, *C.ManifoldManifold, *C.ManifoldManifold) *C.ManifoldManifold) (*solid.Solid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ma, err := toManifold(a)
	if err != nil {
		return nil, err
	}
	defer C.manifold_delete_manifold(ma)
	mb, err := toManifold(b)
	if err != nil {
		return nil, err
	}
	defer C.manifold_delete_manifold(mb)

	out := op(unsafe.Pointer(C.manifold_alloc_manifold()), ma, mb)
	defer C.manifold_delete_manifold(out)
	return fromManifold(out, name)
}

// toManifold copies a solid's mesh into a Manifold. The caller owns the
// returned pointer.
func toManifold(s *solid.Solid) (*C.ManifoldManifold, error) {
	b := kernel.Flatten(s.Mesh)
	if b.TriangleCount() == 0 {
		return nil, fmt.Errorf("manifold: operand %s has no triangles", s.Label())
	}
	gl := C.manifold_meshgl(unsafe.Pointer(C.manifold_alloc_meshgl()),
		(*C.float)(unsafe.Pointer(&b.Positions[0])),
		C.size_t(b.VertexCount()),
		C.size_t(3),
		(*C.uint32_t)(unsafe.Pointer(&b.Indices[0])),
		C.size_t(b.TriangleCount()),
	)
	defer C.manifold_delete_meshgl(gl)

	m := C.manifold_of_meshgl(unsafe.Pointer(C.manifold_alloc_manifold()), gl)
	if status := C.manifold_status(m); status != C.MANIFOLD_NO_ERROR {
		C.manifold_delete_manifold(m)
		return nil, fmt.Errorf("manifold: operand %s rejected (status %d)", s.Label(), int(status))
	}
	return m, nil
}

// fromManifold copies a Manifold back into a solid. MeshGL stores vertex
// properties in a flat float array whose first three entries per vertex
// are the position.
func fromManifold(m *C.ManifoldManifold, name string) (*solid.Solid, error) {
	if status := C.manifold_status(m); status != C.MANIFOLD_NO_ERROR {
		return nil, fmt.Errorf("manifold: %s failed (status %d)", name, int(status))
	}
	gl := C.manifold_get_meshgl(unsafe.Pointer(C.manifold_alloc_meshgl()), m)
	defer C.manifold_delete_meshgl(gl)

	numVert := int(C.manifold_meshgl_num_vert(gl))
	numTri := int(C.manifold_meshgl_num_tri(gl))
	if numVert == 0 || numTri == 0 {
		return solid.Empty(name), nil
	}
	numProp := int(C.manifold_meshgl_num_prop(gl))

	props := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(unsafe.Pointer(&props[0]), gl)
	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(unsafe.Pointer(&indices[0]), gl)

	b := &kernel.Buffers{Positions: make([]float32, 0, numVert*3), Indices: indices}
	for i := 0; i < numVert; i++ {
		base := i * numProp
		b.Positions = append(b.Positions, props[base], props[base+1], props[base+2])
	}
	out, err := b.Mesh(name)
	if err != nil {
		return nil, fmt.Errorf("manifold: %s: %w", name, err)
	}
	return solid.New(name, out), nil
}
