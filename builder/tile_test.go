package builder

import (
	"math"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"navtile/common"
	"navtile/geometry"
	"navtile/mesh"
)

func assertTrue(t *testing.T, value bool, msg string) {
	t.Helper()
	if !value {
		t.Errorf(msg)
	}
}

// planeSnapshot builds a horizontal rectangle at the given height, wound
// so the face normal points up.
func planeSnapshot(x0, z0, x1, z1, y float32) *geometry.Snapshot {
	return &geometry.Snapshot{
		Verts: []float32{
			x0, y, z0,
			x1, y, z0,
			x1, y, z1,
			x0, y, z1,
		},
		Tris: []int32{0, 3, 1, 1, 3, 2},
	}
}

func testSettings() Settings {
	s := DefaultSettings()
	s.TileSize = 32
	return s
}

func TestBuildTileEmptySnapshot(t *testing.T) {
	b := NewTileBuilder(&geometry.Snapshot{}, testSettings(), nil, mgl32.Vec3{}, nil)
	tile, err := b.BuildTile(0, 0)
	if err != nil {
		t.Fatalf("BuildTile: %v", err)
	}
	assertTrue(t, tile.IsEmpty(), "no geometry yields an empty tile")
	assertTrue(t, tile.X == 0 && tile.Z == 0, "empty tiles keep their grid location")
}

func TestBuildTileFlatPlane(t *testing.T) {
	s := testSettings()
	snap := planeSnapshot(-5, -5, 15, 15, 0)
	b := NewTileBuilder(snap, s, nil, mgl32.Vec3{}, nil)

	tile, err := b.BuildTile(0, 0)
	if err != nil {
		t.Fatalf("BuildTile: %v", err)
	}
	assertTrue(t, !tile.IsEmpty(), "a flat plane yields walkable polygons")
	assertTrue(t, len(tile.DetailMeshes) == len(tile.Polys), "every polygon carries a detail mesh")
	assertTrue(t, len(tile.BVTree) > 0, "the tile carries a bv tree")
	assertTrue(t, tile.BVQuantScale > 0, "bv quantization scale is set")

	for i := range tile.Polys {
		p := &tile.Polys[i]
		assertTrue(t, p.Type == mesh.PolyTypeGround, "plane polygons are ground polygons")
		assertTrue(t, p.Flags == mesh.FlagWalk, "plane polygons are walkable")
		assertTrue(t, p.Area == mesh.AreaWalkable, "plane polygons keep the walkable area")
		assertTrue(t, p.VertCount >= 3, "polygons have at least three vertices")
	}

	ts := s.TileWorldSize()
	for i := 0; i < len(tile.Verts); i += 3 {
		x, y, z := tile.Verts[i], tile.Verts[i+1], tile.Verts[i+2]
		assertTrue(t, x >= -0.001 && x <= ts+0.001, "vertices stay inside the tile in x")
		assertTrue(t, z >= -0.001 && z <= ts+0.001, "vertices stay inside the tile in z")
		assertTrue(t, math.Abs(float64(y)) <= 0.5, "vertices sit near the plane height")
	}
}

func TestBuildTileDeterministic(t *testing.T) {
	s := testSettings()
	snap := planeSnapshot(-5, -5, 15, 15, 0)

	first, err := NewTileBuilder(snap, s, nil, mgl32.Vec3{}, nil).BuildTile(0, 0)
	if err != nil {
		t.Fatalf("BuildTile: %v", err)
	}
	second, err := NewTileBuilder(snap, s, nil, mgl32.Vec3{}, nil).BuildTile(0, 0)
	if err != nil {
		t.Fatalf("BuildTile: %v", err)
	}
	assertTrue(t, reflect.DeepEqual(first, second), "identical inputs build identical tiles")
}

func TestBuildTileBakesTouchingConnections(t *testing.T) {
	s := testSettings()
	snap := planeSnapshot(-5, -5, 25, 15, 0)
	cons := mesh.NewOffMeshConnectionSet()
	cons.Add(mesh.OffMeshConnection{
		Start:  mgl32.Vec3{3, 0, 3},
		End:    mgl32.Vec3{20, 0, 3},
		Radius: 0.5,
		Area:   mesh.AreaJump,
		Kind:   mesh.ConnJumpDown,
		UserID: 1,
	})
	// Starts in the neighbouring tile; the end point landing here is
	// enough to bake a copy.
	cons.Add(mesh.OffMeshConnection{
		Start:  mgl32.Vec3{20, 0, 5},
		End:    mgl32.Vec3{3, 0, 5},
		Radius: 0.5,
		Area:   mesh.AreaJump,
		Kind:   mesh.ConnJumpDown,
		UserID: 2,
	})
	// Entirely inside the neighbouring tile, stays out of this one.
	cons.Add(mesh.OffMeshConnection{
		Start:  mgl32.Vec3{20, 0, 7},
		End:    mgl32.Vec3{23, 0, 7},
		Radius: 0.5,
		Area:   mesh.AreaJump,
		Kind:   mesh.ConnJumpDown,
		UserID: 3,
	})

	tile, err := NewTileBuilder(snap, s, cons, mgl32.Vec3{}, nil).BuildTile(0, 0)
	if err != nil {
		t.Fatalf("BuildTile: %v", err)
	}
	assertTrue(t, len(tile.OffMeshCons) == 2, "connections touching the padded bounds bake into the tile")
	if len(tile.OffMeshCons) != 2 {
		return
	}
	for _, c := range tile.OffMeshCons {
		assertTrue(t, c.UserID == 1 || c.UserID == 2, "the distant connection stays out")
	}

	con := tile.OffMeshCons[0]
	assertTrue(t, con.UserID == 1, "connection order is stable")

	standIn := &tile.Polys[con.Poly]
	assertTrue(t, standIn.Type == mesh.PolyTypeOffMesh, "the stand-in polygon is off-mesh")
	assertTrue(t, standIn.VertCount == 2, "the stand-in polygon spans two vertices")
	assertTrue(t, standIn.Flags == mesh.FlagWalk, "jump connections are walk-traversable")

	sv := standIn.Verts[0]
	ev := standIn.Verts[1]
	start := mgl32.Vec3{tile.Verts[sv*3], tile.Verts[sv*3+1], tile.Verts[sv*3+2]}
	end := mgl32.Vec3{tile.Verts[ev*3], tile.Verts[ev*3+1], tile.Verts[ev*3+2]}
	assertTrue(t, start.ApproxEqual(con.Start), "the first stand-in vertex is the start point")
	assertTrue(t, end.ApproxEqual(con.End), "the second stand-in vertex is the end point")
}

// appendQuad adds a horizontal rectangle at the given height, wound so
// the face normal points up.
func appendQuad(snap *geometry.Snapshot, x0, z0, x1, z1, y float32) {
	base := int32(len(snap.Verts) / 3)
	snap.Verts = append(snap.Verts,
		x0, y, z0,
		x1, y, z0,
		x1, y, z1,
		x0, y, z1)
	snap.Tris = append(snap.Tris, base, base+3, base+1, base+1, base+3, base+2)
}

func TestBuildTileKeepsHoleOpen(t *testing.T) {
	// A flat plane with a square pit cut out of the middle. The pit must
	// stay unpaved even though the surrounding region encircles it.
	snap := &geometry.Snapshot{}
	appendQuad(snap, 0, 0, 4, 10, 0)
	appendQuad(snap, 6, 0, 10, 10, 0)
	appendQuad(snap, 4, 0, 6, 4, 0)
	appendQuad(snap, 4, 6, 6, 10, 0)

	tile, err := NewTileBuilder(snap, testSettings(), nil, mgl32.Vec3{}, nil).BuildTile(0, 0)
	if err != nil {
		t.Fatalf("BuildTile: %v", err)
	}
	assertTrue(t, !tile.IsEmpty(), "the ring around the pit is walkable")

	pit := []float32{5, 0, 5}
	var poly2D []float32
	for i := range tile.Polys {
		p := &tile.Polys[i]
		if p.Type != mesh.PolyTypeGround {
			continue
		}
		poly2D = poly2D[:0]
		for j := 0; j < int(p.VertCount); j++ {
			poly2D = append(poly2D, common.GetVert(tile.Verts, p.Verts[j])...)
		}
		assertTrue(t, !common.PointInPoly2D(pit, poly2D, int(p.VertCount)),
			"no polygon covers the pit centre")
	}
}

func TestBuildTileClampsVertsPerPoly(t *testing.T) {
	s := testSettings()
	s.VertsPerPoly = 8
	b := NewTileBuilder(planeSnapshot(-5, -5, 15, 15, 0), s, nil, mgl32.Vec3{}, nil)
	assertTrue(t, b.settings.VertsPerPoly == mesh.VertsPerPolygon,
		"oversized vertsPerPoly clamps to the polygon capacity")

	tile, err := b.BuildTile(0, 0)
	if err != nil {
		t.Fatalf("BuildTile: %v", err)
	}
	assertTrue(t, !tile.IsEmpty(), "the clamped builder still produces polygons")
	for i := range tile.Polys {
		assertTrue(t, int(tile.Polys[i].VertCount) <= mesh.VertsPerPolygon,
			"polygons fit their vertex capacity")
	}
}

func TestTrimConnectionsKeepsWhatFits(t *testing.T) {
	cons := []mesh.OffMeshConnection{{UserID: 1}, {UserID: 2}, {UserID: 3}}

	kept := trimConnections(cons, 5)
	assertTrue(t, len(kept) == 3, "connections under the budget all stay")

	kept = trimConnections(cons, mesh.MaxPolysPerTile-2)
	assertTrue(t, len(kept) == 2, "overflow drops only the connections past the budget")
	assertTrue(t, kept[0].UserID == 1 && kept[1].UserID == 2, "the leading connections survive")

	kept = trimConnections(cons, mesh.MaxPolysPerTile)
	assertTrue(t, len(kept) == 0, "a full tile has no room for connections")
}

func TestBuildTilesJoinIntoMesh(t *testing.T) {
	s := testSettings()
	ts := s.TileWorldSize()
	snap := planeSnapshot(-5, -5, 2*ts+5, ts+5, 0)
	b := NewTileBuilder(snap, s, nil, mgl32.Vec3{}, nil)

	nm := mesh.NewNavMesh(mesh.Params{TileWidth: ts, TileHeight: ts, MaxTiles: 4})
	for tx := int32(0); tx < 2; tx++ {
		tile, err := b.BuildTile(tx, 0)
		if err != nil {
			t.Fatalf("BuildTile %d: %v", tx, err)
		}
		assertTrue(t, !tile.IsEmpty(), "both cells hold geometry")
		if _, err := nm.AddTile(tile); err != nil {
			t.Fatalf("AddTile %d: %v", tx, err)
		}
	}

	// Portal edges must line up across the seam: at least one polygon of
	// the first tile links into the second.
	first := nm.TileByIndex(0)
	linked := false
	for pi := range first.Polys {
		for _, l := range first.Links[pi] {
			if ti, _ := mesh.DecodePolyRef(l.Ref); ti == 1 {
				linked = true
			}
		}
	}
	assertTrue(t, linked, "tiles connect across the shared edge")
}

func TestContentHashTracksSettings(t *testing.T) {
	a := DefaultSettings()
	b := DefaultSettings()
	assertTrue(t, a.ContentHash() == b.ContentHash(), "identical settings hash identically")

	b.CellSize = 0.25
	assertTrue(t, a.ContentHash() != b.ContentHash(), "changing a setting changes the hash")
}
