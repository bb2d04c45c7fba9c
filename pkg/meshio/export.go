package meshio

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chazu/fabprep/pkg/progress"
	"github.com/chazu/fabprep/pkg/solid"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// FileExporter writes solids as STL or OBJ, chosen by the path's
// extension. Missing parent directories are created.
type FileExporter struct {
	Sink progress.Sink
}

// NewFileExporter returns an exporter reporting to sink, which may be nil.
func NewFileExporter(sink progress.Sink) *FileExporter {
	return &FileExporter{Sink: sink}
}

// Export writes s to path. Empty solids are refused.
func (x *FileExporter) Export(s *solid.Solid, path string) (err error) {
	done := progress.Start(x.Sink, component, "export",
		slog.String("path", path), slog.String("solid", s.Label()))
	defer func() { done(err) }()

	fail := func(err error) error {
		return &ExportError{Path: path, Solid: s.Label(), Err: err}
	}
	if s.IsEmpty() {
		return fail(fmt.Errorf("solid has no faces"))
	}
	f, err := FormatOf(path)
	if err != nil {
		return fail(err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail(err)
		}
	}
	switch f {
	case STL:
		err = writeSTL(s, path)
	case OBJ:
		err = writeOBJ(s, path)
	}
	if err != nil {
		return fail(err)
	}
	return nil
}

// writeSTL hands the faces to sdfx's binary STL writer.
func writeSTL(s *solid.Solid, path string) error {
	m := s.Mesh
	tris := make([]*sdf.Triangle3, m.FaceCount())
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		tris[i] = &sdf.Triangle3{
			v3.Vec{X: a.X, Y: a.Y, Z: a.Z},
			v3.Vec{X: b.X, Y: b.Y, Z: b.Z},
			v3.Vec{X: c.X, Y: c.Y, Z: c.Z},
		}
	}
	return render.SaveSTL(path, tris)
}

func writeOBJ(s *solid.Solid, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "o %s\n", s.Name)
	for _, v := range s.Mesh.Vertices {
		fmt.Fprintf(w, "v %g %g %g\n", v.X, v.Y, v.Z)
	}
	for _, f := range s.Mesh.Faces {
		fmt.Fprintf(w, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
