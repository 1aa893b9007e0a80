package geometry

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadOBJ reads a Wavefront .obj file into a snapshot. Only vertex and face
// statements are honored; faces with more than three vertices are fanned
// into triangles.
func LoadOBJ(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s := &Snapshot{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj %s:%d: vertex needs 3 coordinates", path, line)
			}
			for i := 1; i <= 3; i++ {
				v, err := strconv.ParseFloat(fields[i], 32)
				if err != nil {
					return nil, fmt.Errorf("obj %s:%d: %w", path, line, err)
				}
				s.Verts = append(s.Verts, float32(v))
			}
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj %s:%d: face needs 3 vertices", path, line)
			}
			idx := make([]int32, 0, len(fields)-1)
			for _, fv := range fields[1:] {
				i, err := parseFaceIndex(fv, s.VertCount())
				if err != nil {
					return nil, fmt.Errorf("obj %s:%d: %w", path, line, err)
				}
				idx = append(idx, i)
			}
			for i := 2; i < len(idx); i++ {
				s.Tris = append(s.Tris, idx[0], idx[i-1], idx[i])
				s.Flags = append(s.Flags, TriFlagNone)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseFaceIndex(field string, vertCount int) (int32, error) {
	// "i", "i/t", "i/t/n" and "i//n" forms all start with the position index.
	if slash := strings.IndexByte(field, '/'); slash >= 0 {
		field = field[:slash]
	}
	v, err := strconv.Atoi(field)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		v = vertCount + 1 + v
	}
	if v < 1 || v > vertCount {
		return 0, fmt.Errorf("face index %d out of range", v)
	}
	return int32(v - 1), nil
}
