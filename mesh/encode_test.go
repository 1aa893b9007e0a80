package mesh

import (
	"errors"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// richTile decorates a square tile with detail data, a BV node and an
// off-mesh connection so every serialized section carries content.
func richTile(tx, tz int32, org mgl32.Vec3, size float32) *Tile {
	t := squareTile(tx, tz, org, size)

	t.DetailMeshes = []PolyDetail{{VertBase: 0, TriBase: 0, VertCount: 1, TriCount: 2}}
	t.DetailVerts = []float32{org.X() + 1, 0, org.Z() + 1}
	t.DetailTris = []uint16{0, 1, 2, 0, 0, 2, 3, 0}
	t.BVTree = []BVNode{{BMin: [3]uint16{0, 0, 0}, BMax: [3]uint16{33, 1, 33}, I: 0}}
	t.BVQuantScale = 1.0 / 0.3

	con := OffMeshConnection{
		Start:         mgl32.Vec3{org.X() + 2, 0, org.Z() + 2},
		End:           mgl32.Vec3{org.X() + 8, 0, org.Z() + 8},
		Radius:        0.5,
		Bidirectional: true,
		Area:          AreaJump,
		Kind:          ConnJumpDown,
		UserID:        42,
		Poly:          1,
	}
	t.Verts = append(t.Verts,
		con.Start.X(), con.Start.Y(), con.Start.Z(),
		con.End.X(), con.End.Y(), con.End.Z())
	standIn := Poly{VertCount: 2, Flags: FlagWalk, Area: AreaJump, Type: PolyTypeOffMesh}
	standIn.Verts = [VertsPerPolygon]uint16{4, 5}
	t.Polys = append(t.Polys, standIn)
	t.OffMeshCons = []OffMeshConnection{con}
	return t
}

func sameTile(t *testing.T, a, b *Tile) {
	t.Helper()
	assertTrue(t, a.X == b.X && a.Z == b.Z && a.Layer == b.Layer, "grid location survives")
	assertTrue(t, a.WalkableHeight == b.WalkableHeight &&
		a.WalkableRadius == b.WalkableRadius &&
		a.WalkableClimb == b.WalkableClimb, "agent parameters survive")
	assertTrue(t, a.BMin == b.BMin && a.BMax == b.BMax, "bounds survive")
	assertTrue(t, reflect.DeepEqual(a.Verts, b.Verts), "vertices survive")
	assertTrue(t, reflect.DeepEqual(a.Polys, b.Polys), "polygons survive")
	assertTrue(t, reflect.DeepEqual(a.DetailMeshes, b.DetailMeshes), "detail index table survives")
	assertTrue(t, reflect.DeepEqual(a.DetailVerts, b.DetailVerts), "detail vertices survive")
	assertTrue(t, reflect.DeepEqual(a.DetailTris, b.DetailTris), "detail triangles survive")
	assertTrue(t, reflect.DeepEqual(a.BVTree, b.BVTree), "bv tree survives")
	assertTrue(t, a.BVQuantScale == b.BVQuantScale, "bv quantization scale survives")
	assertTrue(t, reflect.DeepEqual(a.OffMeshCons, b.OffMeshCons), "off-mesh connections survive")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	org := mgl32.Vec3{-5, 0, -5}
	size := float32(10)
	nm := NewNavMesh(Params{Origin: org, TileWidth: size, TileHeight: size, MaxTiles: 4})

	a := richTile(0, 0, org, size)
	a.Polys[0].Neis[1] = ExtLink | 2
	b := squareTile(1, 0, org, size)
	b.Polys[0].Neis[3] = ExtLink | 0
	if _, err := nm.AddTile(a); err != nil {
		t.Fatalf("AddTile a: %v", err)
	}
	if _, err := nm.AddTile(b); err != nil {
		t.Fatalf("AddTile b: %v", err)
	}

	const contentVersion = 7
	data, err := Encode(nm, contentVersion)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data, contentVersion)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	assertTrue(t, got.Params() == nm.Params(), "mesh parameters survive")
	assertTrue(t, got.TileCount() == nm.TileCount(), "tile count survives")
	for i := int32(0); i < int32(nm.TileCount()); i++ {
		sameTile(t, nm.TileByIndex(i), got.TileByIndex(i))
	}

	// Decoding re-runs the append sequence, so adjacency comes back too.
	ga := got.TileByIndex(0)
	assertTrue(t, len(ga.Links[0]) >= 1, "cross-tile links are rebuilt on decode")
}

func TestEncodeSkipsEmptyTiles(t *testing.T) {
	org := mgl32.Vec3{}
	size := float32(10)
	nm := NewNavMesh(Params{Origin: org, TileWidth: size, TileHeight: size, MaxTiles: 8})

	if _, err := nm.AddTile(squareTile(0, 0, org, size)); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	if _, err := nm.AddTile(&Tile{X: 1, Z: 0}); err != nil {
		t.Fatalf("AddTile empty: %v", err)
	}
	if _, err := nm.AddTile(squareTile(2, 1, org, size)); err != nil {
		t.Fatalf("AddTile: %v", err)
	}

	data, err := Encode(nm, 1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data, 1)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	assertTrue(t, got.TileCount() == 2, "only non-empty tiles serialize")
	assertTrue(t, got.TileByIndex(1).X == 2 && got.TileByIndex(1).Z == 1,
		"tile order is preserved")
}

func TestDecodeRejectsContentVersionMismatch(t *testing.T) {
	nm := NewNavMesh(Params{TileWidth: 10, TileHeight: 10, MaxTiles: 1})
	if _, err := nm.AddTile(squareTile(0, 0, mgl32.Vec3{}, 10)); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	data, err := Encode(nm, 3)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = Decode(data, 4)
	assertTrue(t, errors.Is(err, ErrIncompatibleCache), "content version mismatch is an incompatible cache")
}

func TestDecodeRejectsBadMagicAndFormat(t *testing.T) {
	nm := NewNavMesh(Params{TileWidth: 10, TileHeight: 10, MaxTiles: 1})
	if _, err := nm.AddTile(squareTile(0, 0, mgl32.Vec3{}, 10)); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	data, err := Encode(nm, 1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	bad := append([]byte(nil), data...)
	bad[0] ^= 0xff
	_, err = Decode(bad, 1)
	assertTrue(t, errors.Is(err, ErrIncompatibleCache), "bad magic is an incompatible cache")

	bad = append([]byte(nil), data...)
	bad[4] ^= 0xff
	_, err = Decode(bad, 1)
	assertTrue(t, errors.Is(err, ErrIncompatibleCache), "bad format version is an incompatible cache")

	_, err = Decode(data[:8], 1)
	assertTrue(t, errors.Is(err, ErrIncompatibleCache), "truncated header is an incompatible cache")
}

func TestDecodeMalformedPayloadFailsCleanly(t *testing.T) {
	nm := NewNavMesh(Params{TileWidth: 10, TileHeight: 10, MaxTiles: 1})
	if _, err := nm.AddTile(squareTile(0, 0, mgl32.Vec3{}, 10)); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	data, err := Encode(nm, 1)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err = Decode(data[:14], 1)
	assertTrue(t, err != nil, "truncated payload yields an error")
	assertTrue(t, !errors.Is(err, ErrIncompatibleCache), "truncated payload is a parse failure, not incompatibility")
}
