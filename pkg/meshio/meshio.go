// Package meshio reads triangle meshes from disk and writes solids back out.
package meshio

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/chazu/fabprep/pkg/mesh"
	"github.com/chazu/fabprep/pkg/progress"
	"github.com/chazu/fabprep/pkg/solid"
)

const component = "meshio"

// DefaultWeldTolerance merges STL corners closer than this. STL stores
// every triangle with its own copy of each corner.
const DefaultWeldTolerance = 1e-6

// Output file names of the two mold pieces, without extension.
const (
	ShellName = "hard_shell_mold"
	LinerName = "silicone_mold"
)

// Format is a mesh file format, named by its extension without the dot.
type Format string

const (
	STL Format = "stl"
	OBJ Format = "obj"
)

// ParseFormat accepts "stl", ".stl", "obj" or ".obj" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(s), ".")); f {
	case STL, OBJ:
		return f, nil
	}
	return "", fmt.Errorf("unsupported mesh format %q", s)
}

// FormatOf returns the format implied by path's extension.
func FormatOf(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// ShellPath returns the shell output path inside dir.
func ShellPath(dir string, f Format) string {
	return filepath.Join(dir, ShellName+"."+string(f))
}

// LinerPath returns the liner output path inside dir.
func LinerPath(dir string, f Format) string {
	return filepath.Join(dir, LinerName+"."+string(f))
}

// SupportPath returns the default support output path for input:
// "part.stl" becomes "part_support.<f>" next to it.
func SupportPath(input string, f Format) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + "_support." + string(f)
}

// Loader reads a mesh from a path.
type Loader interface {
	Load(path string) (*mesh.Mesh, error)
}

// Exporter writes a solid to a path.
type Exporter interface {
	Export(s *solid.Solid, path string) error
}

// LoadError reports an unreadable or malformed input file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ExportError reports a solid that could not be written.
type ExportError struct {
	Path  string
	Solid string
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s to %s: %v", e.Solid, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// FileLoader loads STL and OBJ files by extension.
type FileLoader struct {
	// WeldTolerance is passed to mesh.Weld after STL parsing. Zero merges
	// only bit-identical corners.
	WeldTolerance float64
	Sink          progress.Sink
}

// NewFileLoader returns a loader with the default weld tolerance.
func NewFileLoader(sink progress.Sink) *FileLoader {
	return &FileLoader{WeldTolerance: DefaultWeldTolerance, Sink: sink}
}

// Load reads path and validates the result. The mesh name is the file's
// base name without extension.
func (l *FileLoader) Load(path string) (m *mesh.Mesh, err error) {
	done := progress.Start(l.Sink, component, "load", slog.String("path", path))
	defer func() { done(err) }()

	f, err := FormatOf(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	switch f {
	case STL:
		m, err = readSTL(path)
		if err == nil {
			m = m.Weld(l.WeldTolerance)
		}
	case OBJ:
		m, err = readOBJ(path)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if m.IsEmpty() {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("no triangles")}
	}
	if err := m.Validate(); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	progress.Note(l.Sink, component, "mesh loaded",
		slog.String("path", path),
		slog.Int("vertices", m.VertexCount()),
		slog.Int("faces", m.FaceCount()),
		slog.Bool("watertight", m.IsWatertight()),
	)
	return m, nil
}
