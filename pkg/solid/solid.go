// Package solid defines the value handed to and returned from boolean
// operations: a mesh together with its identity and its validity as a
// closed volume, evaluated once when the solid is created.
package solid

import (
	"fmt"

	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/google/uuid"
)

// Solid is a triangle mesh with an explicit volumetric validity state.
// A Solid is immutable after construction.
type Solid struct {
	ID         uuid.UUID
	Name       string
	Mesh       *mesh.Mesh
	Volumetric bool
	Volume     float64
}

// New wraps m as a solid and records whether it encloses a volume.
func New(name string, m *mesh.Mesh) *Solid {
	s := &Solid{ID: uuid.New(), Name: name, Mesh: m}
	if m != nil {
		s.Volumetric = m.IsVolume()
		s.Volume = m.SignedVolume()
	}
	return s
}

// Empty returns the explicit "no geometry" solid. It is not volumetric and
// must not be fed to a boolean operation.
func Empty(name string) *Solid {
	return &Solid{ID: uuid.New(), Name: name, Mesh: &mesh.Mesh{Name: name}}
}

// IsEmpty reports whether the solid carries no triangles.
func (s *Solid) IsEmpty() bool {
	return s == nil || s.Mesh.IsEmpty()
}

// Label identifies the solid in errors and events.
func (s *Solid) Label() string {
	if s == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s[%s]", s.Name, s.ID.String()[:8])
}

// RequireVolume returns a *GeometryError unless s is a closed volume.
// role names the operand ("model", "parting surface", ...).
func (s *Solid) RequireVolume(role string) error {
	switch {
	case s == nil:
		return &GeometryError{Role: role, Reason: "solid is missing"}
	case s.IsEmpty():
		return &GeometryError{Role: role, Solid: s.Label(), Reason: "solid has no faces"}
	case !s.Volumetric:
		return &GeometryError{Role: role, Solid: s.Label(), Reason: s.diagnose()}
	}
	return nil
}

// diagnose names the first volume precondition the mesh fails.
func (s *Solid) diagnose() string {
	m := s.Mesh
	if err := m.Validate(); err != nil {
		return err.Error()
	}
	if n := m.OpenEdges(); n > 0 {
		return fmt.Sprintf("surface is not closed (%d open or non-manifold edges)", n)
	}
	if v := m.SignedVolume(); v <= mesh.VolumeEpsilon {
		return fmt.Sprintf("enclosed volume %.3g is not positive", v)
	}
	return "not a closed volume"
}

// GeometryError reports a solid that fails a volume precondition.
type GeometryError struct {
	Role   string
	Solid  string
	Reason string
}

func (e *GeometryError) Error() string {
	if e.Solid != "" {
		return fmt.Sprintf("geometry: %s %s: %s", e.Role, e.Solid, e.Reason)
	}
	return fmt.Sprintf("geometry: %s: %s", e.Role, e.Reason)
}
