package geometry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func assertTrue(t *testing.T, value bool, msg string) {
	t.Helper()
	if !value {
		t.Errorf(msg)
	}
}

func writeOBJ(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.obj")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write obj: %v", err)
	}
	return path
}

func TestLoadOBJTrianglesAndQuads(t *testing.T) {
	path := writeOBJ(t, `# unit square, one triangle and one quad fan
v 0 0 0
v 1 0 0
v 1 0 1
v 0 0 1
f 1 2 3
f 1 2 3 4
`)
	s, err := LoadOBJ(path)
	if err != nil {
		t.Fatalf("LoadOBJ: %v", err)
	}
	assertTrue(t, s.VertCount() == 4, "four vertices parse")
	assertTrue(t, s.TriCount() == 3, "a quad fans into two triangles")
	assertTrue(t, s.Tris[0] == 0 && s.Tris[1] == 1 && s.Tris[2] == 2, "face indices are zero-based")
	assertTrue(t, s.Tris[6] == 0 && s.Tris[7] == 2 && s.Tris[8] == 3, "the fan pivots on the first vertex")
}

func TestLoadOBJFaceIndexForms(t *testing.T) {
	path := writeOBJ(t, `v 0 0 0
v 1 0 0
v 0 0 1
f 1/5 2/6/7 -1//8
`)
	s, err := LoadOBJ(path)
	if err != nil {
		t.Fatalf("LoadOBJ: %v", err)
	}
	assertTrue(t, s.TriCount() == 1, "one face parses")
	assertTrue(t, s.Tris[0] == 0 && s.Tris[1] == 1 && s.Tris[2] == 2,
		"texture, normal and negative forms resolve to position indices")
}

func TestLoadOBJRejectsBadInput(t *testing.T) {
	for name, body := range map[string]string{
		"short vertex":       "v 1 2\n",
		"short face":         "v 0 0 0\nv 1 0 0\nf 1 2\n",
		"index out of range": "v 0 0 0\nv 1 0 0\nv 0 0 1\nf 1 2 9\n",
	} {
		path := writeOBJ(t, body)
		if _, err := LoadOBJ(path); err == nil {
			t.Errorf("%s: error expected", name)
		}
	}
}

func TestMergeBakesInstanceTransforms(t *testing.T) {
	tri := Instance{
		Verts:     []float32{0, 0, 0, 1, 0, 0, 0, 0, 1},
		Tris:      []int32{0, 1, 2},
		Flags:     []TriFlags{TriFlagWater},
		Transform: mgl32.Translate3D(10, 0, 0),
	}
	s := Merge(tri, tri)
	assertTrue(t, s.VertCount() == 6, "both instances contribute vertices")
	assertTrue(t, s.TriCount() == 2, "both instances contribute triangles")
	assertTrue(t, s.Verts[0] == 10, "the transform bakes into vertex positions")
	assertTrue(t, s.Tris[3] == 3, "the second instance's indices are rebased")
	assertTrue(t, s.TriFlagsAt(1) == TriFlagWater, "per-triangle flags carry over")
}

func TestSnapshotBounds(t *testing.T) {
	empty := &Snapshot{}
	if _, _, ok := empty.Bounds(); ok {
		t.Error("empty snapshots have no bounds")
	}

	s := &Snapshot{Verts: []float32{-1, 2, 3, 4, -5, 6}}
	bmin, bmax, ok := s.Bounds()
	assertTrue(t, ok, "bounds exist for non-empty snapshots")
	assertTrue(t, bmin == mgl32.Vec3{-1, -5, 3}, "minimum corner is per-axis")
	assertTrue(t, bmax == mgl32.Vec3{4, 2, 6}, "maximum corner is per-axis")
}
