package mesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func assertTrue(t *testing.T, value bool, msg string) {
	t.Helper()
	if !value {
		t.Errorf(msg)
	}
}

// squareTile builds a tile holding one square polygon covering the whole
// cell at y=0. Portal edges are wired by the caller.
func squareTile(tx, tz int32, org mgl32.Vec3, size float32) *Tile {
	x0 := org.X() + float32(tx)*size
	z0 := org.Z() + float32(tz)*size
	t := &Tile{
		X: tx, Z: tz,
		WalkableHeight: 2,
		WalkableRadius: 0.6,
		WalkableClimb:  0.9,
		BMin:           mgl32.Vec3{x0, -1, z0},
		BMax:           mgl32.Vec3{x0 + size, 1, z0 + size},
		Verts: []float32{
			x0, 0, z0,
			x0 + size, 0, z0,
			x0 + size, 0, z0 + size,
			x0, 0, z0 + size,
		},
	}
	p := Poly{
		VertCount: 4,
		Flags:     FlagWalk,
		Area:      AreaWalkable,
		Type:      PolyTypeGround,
	}
	p.Verts = [VertsPerPolygon]uint16{0, 1, 2, 3}
	t.Polys = []Poly{p}
	return t
}

func testParams(org mgl32.Vec3, size float32) Params {
	return Params{Origin: org, TileWidth: size, TileHeight: size, MaxTiles: 8}
}

func TestPolyRefRoundTrip(t *testing.T) {
	ref := EncodePolyRef(4, 123)
	ti, pi := DecodePolyRef(ref)
	assertTrue(t, ti == 4, "tile index survives the ref encoding")
	assertTrue(t, pi == 123, "poly index survives the ref encoding")
	assertTrue(t, EncodePolyRef(0, 0) != 0, "ref zero stays reserved")
}

func TestAddTileWiresInternalLinks(t *testing.T) {
	org := mgl32.Vec3{}
	nm := NewNavMesh(testParams(org, 10))

	// Two polygons sharing the x=5 edge.
	tile := &Tile{
		X: 0, Z: 0,
		WalkableClimb: 0.9,
		BMin:          mgl32.Vec3{0, -1, 0},
		BMax:          mgl32.Vec3{10, 1, 10},
		Verts: []float32{
			0, 0, 0,
			5, 0, 0,
			5, 0, 10,
			0, 0, 10,
			10, 0, 0,
			10, 0, 10,
		},
	}
	a := Poly{VertCount: 4, Flags: FlagWalk, Area: AreaWalkable}
	a.Verts = [VertsPerPolygon]uint16{0, 1, 2, 3}
	a.Neis[1] = 2 // polygon b across edge 1
	b := Poly{VertCount: 4, Flags: FlagWalk, Area: AreaWalkable}
	b.Verts = [VertsPerPolygon]uint16{1, 4, 5, 2}
	b.Neis[3] = 1
	tile.Polys = []Poly{a, b}

	ref, err := nm.AddTile(tile)
	if err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	assertTrue(t, ref != 0, "AddTile returns a base ref")

	tt := nm.TileByIndex(0)
	assertTrue(t, len(tt.Links[0]) == 1, "polygon a links to one neighbour")
	assertTrue(t, len(tt.Links[1]) == 1, "polygon b links to one neighbour")
	if len(tt.Links[0]) == 1 {
		assertTrue(t, tt.Links[0][0].Ref == EncodePolyRef(0, 1), "a links to b")
		assertTrue(t, tt.Links[0][0].Edge == 1, "a links across edge 1")
	}
}

func TestAddTileConnectsNeighbourTiles(t *testing.T) {
	org := mgl32.Vec3{}
	size := float32(10)
	nm := NewNavMesh(testParams(org, size))

	a := squareTile(0, 0, org, size)
	a.Polys[0].Neis[1] = ExtLink | 2 // +x edge
	b := squareTile(1, 0, org, size)
	b.Polys[0].Neis[3] = ExtLink | 0 // -x edge

	if _, err := nm.AddTile(a); err != nil {
		t.Fatalf("AddTile a: %v", err)
	}
	if _, err := nm.AddTile(b); err != nil {
		t.Fatalf("AddTile b: %v", err)
	}

	ta := nm.TileByIndex(0)
	tb := nm.TileByIndex(1)
	assertTrue(t, len(ta.Links[0]) == 1, "tile a polygon gains a cross-tile link")
	assertTrue(t, len(tb.Links[0]) == 1, "tile b polygon gains a cross-tile link")
	if len(ta.Links[0]) == 1 {
		assertTrue(t, ta.Links[0][0].Ref == EncodePolyRef(1, 0), "a links into tile b")
		assertTrue(t, ta.Links[0][0].Side == 2, "a link faces +x")
	}
	if len(tb.Links[0]) == 1 {
		assertTrue(t, tb.Links[0][0].Ref == EncodePolyRef(0, 0), "b links back into tile a")
		assertTrue(t, tb.Links[0][0].Side == 0, "b link faces -x")
	}
}

func TestAddTileRejectsDuplicateLocation(t *testing.T) {
	org := mgl32.Vec3{}
	nm := NewNavMesh(testParams(org, 10))
	if _, err := nm.AddTile(squareTile(0, 0, org, 10)); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	_, err := nm.AddTile(squareTile(0, 0, org, 10))
	assertTrue(t, err != nil, "second tile at the same location is rejected")
}

func TestOffMeshConnectionWiring(t *testing.T) {
	org := mgl32.Vec3{}
	size := float32(10)
	nm := NewNavMesh(testParams(org, size))

	tile := squareTile(0, 0, org, size)
	con := OffMeshConnection{
		Start:         mgl32.Vec3{2, 0, 2},
		End:           mgl32.Vec3{8, 0, 8},
		Radius:        0.5,
		Bidirectional: true,
		Area:          AreaJump,
		Kind:          ConnJumpDown,
		Poly:          1,
	}
	tile.Verts = append(tile.Verts,
		con.Start.X(), con.Start.Y(), con.Start.Z(),
		con.End.X(), con.End.Y(), con.End.Z())
	standIn := Poly{VertCount: 2, Flags: FlagWalk, Area: AreaJump, Type: PolyTypeOffMesh}
	standIn.Verts = [VertsPerPolygon]uint16{4, 5}
	tile.Polys = append(tile.Polys, standIn)
	tile.OffMeshCons = []OffMeshConnection{con}

	if _, err := nm.AddTile(tile); err != nil {
		t.Fatalf("AddTile: %v", err)
	}

	tt := nm.TileByIndex(0)
	assertTrue(t, len(tt.Links[1]) == 2, "stand-in polygon links to both endpoints")
	groundRef := EncodePolyRef(0, 0)
	conRef := EncodePolyRef(0, 1)
	for _, l := range tt.Links[1] {
		assertTrue(t, l.Ref == groundRef, "stand-in links target the ground polygon")
	}
	back := false
	for _, l := range tt.Links[0] {
		if l.Ref == conRef {
			back = true
		}
	}
	assertTrue(t, back, "ground polygon links back to the stand-in")

	c := nm.OffMeshConnectionByRef(conRef)
	assertTrue(t, c != nil, "stand-in resolves to its connection")

	s, e, ok := nm.GetOffMeshConnectionEndpoints(groundRef, conRef)
	assertTrue(t, ok, "endpoints resolve for a linked connection")
	assertTrue(t, s.ApproxEqual(con.Start) && e.ApproxEqual(con.End), "endpoints keep bake order from the start side")
}

func TestClosestPointOnPolyClampsToEdge(t *testing.T) {
	org := mgl32.Vec3{}
	nm := NewNavMesh(testParams(org, 10))
	if _, err := nm.AddTile(squareTile(0, 0, org, 10)); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	ref := EncodePolyRef(0, 0)
	pt, _ := nm.ClosestPointOnPoly(ref, mgl32.Vec3{-5, 0, 5})
	assertTrue(t, pt.X() >= 0, "outside points clamp onto the polygon boundary")
	assertTrue(t, pt.Z() > 4 && pt.Z() < 6, "clamped point stays near the query z")
}

func TestQueryPolygonsInTileLinearFallback(t *testing.T) {
	org := mgl32.Vec3{}
	nm := NewNavMesh(testParams(org, 10))
	tile := squareTile(0, 0, org, 10)
	if _, err := nm.AddTile(tile); err != nil {
		t.Fatalf("AddTile: %v", err)
	}
	tt := nm.TileByIndex(0)
	got := nm.QueryPolygonsInTile(tt, []float32{4, -1, 4}, []float32{6, 1, 6})
	assertTrue(t, len(got) == 1 && got[0] == 0, "box over the square hits its polygon")
	got = nm.QueryPolygonsInTile(tt, []float32{40, -1, 40}, []float32{60, 1, 60})
	assertTrue(t, len(got) == 0, "box away from the square misses")
}
