package meshio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chazu/fabprep/pkg/mesh"
)

// readOBJ parses the geometry records of a Wavefront OBJ file. Only "v"
// and "f" are read; polygons are fan triangulated from their first corner.
func readOBJ(path string) (*mesh.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return parseOBJ(f)
}

func parseOBJ(r io.Reader) (*mesh.Mesh, error) {
	scanner := bufio.NewScanner(r)
	m := &mesh.Mesh{}
	line := 0

	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "o":
			if len(fields) > 1 && m.Name == "" {
				m.Name = fields[1]
			}
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs three coordinates", line)
			}
			v, err := parseVec(fields[1:4])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			m.Vertices = append(m.Vertices, v)
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least three corners", line)
			}
			corners := make([]int, len(fields)-1)
			for i, ref := range fields[1:] {
				idx, err := objIndex(ref, len(m.Vertices))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				corners[i] = idx
			}
			for i := 1; i+1 < len(corners); i++ {
				m.Faces = append(m.Faces, [3]int{corners[0], corners[i], corners[i+1]})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading OBJ: %w", err)
	}
	return m, nil
}

// objIndex resolves a face corner reference ("7", "7/1/3", "-1//2") to a
// zero-based vertex index. Negative references count back from the last
// vertex defined so far.
func objIndex(ref string, defined int) (int, error) {
	head, _, _ := strings.Cut(ref, "/")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0, fmt.Errorf("bad face corner %q", ref)
	}
	var idx int
	switch {
	case n > 0:
		idx = n - 1
	case n < 0:
		idx = defined + n
	default:
		return 0, fmt.Errorf("face corner %q: indices start at 1", ref)
	}
	if idx < 0 || idx >= defined {
		return 0, fmt.Errorf("face corner %q refers to undefined vertex", ref)
	}
	return idx, nil
}
