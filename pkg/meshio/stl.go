package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/fabprep/pkg/mesh"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	stlHeaderSize = 80
	stlRecordSize = 50 // normal, three corners, attribute byte count
)

// readSTL parses an ASCII or binary STL file into an unwelded mesh: every
// triangle gets three fresh vertices.
func readSTL(path string) (*mesh.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if isBinarySTL(data) {
		return parseBinarySTL(data)
	}
	return parseASCIISTL(bytes.NewReader(data))
}

// isBinarySTL decides the encoding. Some exporters start binary headers
// with "solid", so a size that matches the declared triangle count wins
// over the keyword.
func isBinarySTL(data []byte) bool {
	if len(data) >= stlHeaderSize+4 {
		n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
		if uint64(len(data)) == stlHeaderSize+4+uint64(n)*stlRecordSize {
			return true
		}
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return !bytes.HasPrefix(trimmed, []byte("solid"))
}

func parseASCIISTL(r io.Reader) (*mesh.Mesh, error) {
	scanner := bufio.NewScanner(r)
	m := &mesh.Mesh{}
	var corners []r3.Vec
	line := 0

	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "solid":
			if len(fields) > 1 {
				m.Name = strings.Join(fields[1:], " ")
			}
		case "facet":
			corners = corners[:0]
		case "vertex":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs three coordinates", line)
			}
			v, err := parseVec(fields[1:4])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			corners = append(corners, v)
		case "endfacet":
			if len(corners) != 3 {
				return nil, fmt.Errorf("line %d: facet has %d vertices, want 3", line, len(corners))
			}
			appendTriangle(m, corners[0], corners[1], corners[2])
			corners = corners[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading ASCII STL: %w", err)
	}
	return m, nil
}

// parseBinarySTL checks the declared triangle count against the data
// length before allocating for it.
func parseBinarySTL(data []byte) (*mesh.Mesh, error) {
	r := bytes.NewReader(data)
	header := make([]byte, stlHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	m := &mesh.Mesh{Name: strings.TrimSpace(string(bytes.TrimRight(header, "\x00")))}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read triangle count: %w", err)
	}
	if held := (len(data) - stlHeaderSize - 4) / stlRecordSize; uint64(count) > uint64(held) {
		return nil, fmt.Errorf("header declares %d triangles but the file holds %d", count, held)
	}

	var rec struct {
		Normal  [3]float32
		Corners [3][3]float32
		Attr    uint16
	}
	m.Vertices = make([]r3.Vec, 0, 3*int(count))
	m.Faces = make([][3]int, 0, int(count))
	for i := uint32(0); i < count; i++ {
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("failed to read triangle %d: %w", i, err)
		}
		var v [3]r3.Vec
		for j, c := range rec.Corners {
			v[j] = r3.Vec{X: float64(c[0]), Y: float64(c[1]), Z: float64(c[2])}
		}
		appendTriangle(m, v[0], v[1], v[2])
	}
	return m, nil
}

func appendTriangle(m *mesh.Mesh, a, b, c r3.Vec) {
	base := len(m.Vertices)
	m.Vertices = append(m.Vertices, a, b, c)
	m.Faces = append(m.Faces, [3]int{base, base + 1, base + 2})
}

func parseVec(fields []string) (r3.Vec, error) {
	var xyz [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("bad coordinate %q", f)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r3.Vec{}, fmt.Errorf("coordinate %q is not finite", f)
		}
		xyz[i] = v
	}
	return r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}
