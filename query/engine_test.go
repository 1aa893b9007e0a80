package query

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"navtile/mesh"
)

// flatTile builds a tile holding one square polygon at the given height,
// complete with the two detail triangles height queries need.
func flatTile(tx, tz int32, org mgl32.Vec3, size, y float32) *mesh.Tile {
	x0 := org.X() + float32(tx)*size
	z0 := org.Z() + float32(tz)*size
	t := &mesh.Tile{
		X: tx, Z: tz,
		WalkableHeight: 2,
		WalkableRadius: 0.6,
		WalkableClimb:  0.9,
		BMin:           mgl32.Vec3{x0, y - 1, z0},
		BMax:           mgl32.Vec3{x0 + size, y + 1, z0 + size},
		Verts: []float32{
			x0, y, z0,
			x0 + size, y, z0,
			x0 + size, y, z0 + size,
			x0, y, z0 + size,
		},
	}
	p := mesh.Poly{
		VertCount: 4,
		Flags:     mesh.FlagWalk,
		Area:      mesh.AreaWalkable,
		Type:      mesh.PolyTypeGround,
	}
	p.Verts = [mesh.VertsPerPolygon]uint16{0, 1, 2, 3}
	t.Polys = []mesh.Poly{p}
	t.DetailMeshes = []mesh.PolyDetail{{VertBase: 0, TriBase: 0, VertCount: 0, TriCount: 2}}
	t.DetailTris = []uint16{0, 1, 2, 0, 0, 2, 3, 0}
	return t
}

// stripMesh lays out n flat tiles in a row along +x, portal edges wired.
func stripMesh(t *testing.T, n int, size float32) *mesh.NavMesh {
	t.Helper()
	org := mgl32.Vec3{}
	nm := mesh.NewNavMesh(mesh.Params{TileWidth: size, TileHeight: size, MaxTiles: int32(n)})
	for i := 0; i < n; i++ {
		tt := flatTile(int32(i), 0, org, size, 0)
		if i > 0 {
			tt.Polys[0].Neis[3] = mesh.ExtLink | 0
		}
		if i+1 < n {
			tt.Polys[0].Neis[1] = mesh.ExtLink | 2
		}
		if _, err := nm.AddTile(tt); err != nil {
			t.Fatalf("AddTile %d: %v", i, err)
		}
	}
	return nm
}

func TestFindNearestPoly(t *testing.T) {
	e := NewEngine(stripMesh(t, 1, 10), nil)

	ref, pt, err := e.FindNearestPoly(mgl32.Vec3{5, 0.5, 5}, e.HalfExtents, NewFilter())
	if err != nil {
		t.Fatalf("FindNearestPoly: %v", err)
	}
	assertTrue(t, ref == mesh.EncodePolyRef(0, 0), "the only polygon is nearest")
	assertTrue(t, pt.ApproxEqual(mgl32.Vec3{5, 0, 5}), "position snaps to the surface")

	_, _, err = e.FindNearestPoly(mgl32.Vec3{100, 0, 100}, e.HalfExtents, NewFilter())
	assertTrue(t, errors.Is(err, ErrNoPolyNear), "far off positions find nothing")
}

func TestFindPathWithinOnePolygon(t *testing.T) {
	e := NewEngine(stripMesh(t, 1, 10), nil)

	path, err := e.FindPath(mgl32.Vec3{2, 0, 2}, mgl32.Vec3{8, 0, 8}, NewFilter(), PathOptions{})
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	assertTrue(t, len(path) == 1, "same polygon yields a single-step corridor")
	assertTrue(t, path[0] == mesh.EncodePolyRef(0, 0), "corridor holds the shared polygon")
}

func TestFindPathAcrossTiles(t *testing.T) {
	e := NewEngine(stripMesh(t, 3, 10), nil)

	path, err := e.FindPath(mgl32.Vec3{2, 0, 5}, mgl32.Vec3{28, 0, 5}, NewFilter(), PathOptions{})
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	assertTrue(t, len(path) == 3, "corridor crosses all three tiles")
	assertTrue(t, path[0] == mesh.EncodePolyRef(0, 0), "corridor starts at the start polygon")
	assertTrue(t, path[len(path)-1] == mesh.EncodePolyRef(2, 0), "corridor ends at the end polygon")
}

func TestFindPathBlockedByFilter(t *testing.T) {
	nm := stripMesh(t, 3, 10)
	middle := nm.TileByIndex(1)
	middle.Polys[0].Area = mesh.AreaHazard
	e := NewEngine(nm, nil)

	_, err := e.FindPath(mgl32.Vec3{2, 0, 5}, mgl32.Vec3{28, 0, 5}, NewStandardFilter(false, false), PathOptions{})
	assertTrue(t, errors.Is(err, ErrNoPath), "an impassable middle polygon severs the corridor")

	path, err := e.FindPath(mgl32.Vec3{2, 0, 5}, mgl32.Vec3{28, 0, 5}, NewStandardFilter(false, true), PathOptions{})
	if err != nil {
		t.Fatalf("FindPath tolerating hazards: %v", err)
	}
	assertTrue(t, len(path) == 3, "tolerating hazards restores the corridor")
}

func TestFindPathUsesOffMeshConnection(t *testing.T) {
	org := mgl32.Vec3{}
	size := float32(10)
	nm := mesh.NewNavMesh(mesh.Params{TileWidth: size, TileHeight: size, MaxTiles: 4})

	// Two tiles separated by an empty cell, joined only by a baked
	// connection owned by the first tile.
	a := flatTile(0, 0, org, size, 0)
	con := mesh.OffMeshConnection{
		Start:         mgl32.Vec3{5, 0, 5},
		End:           mgl32.Vec3{25, 0, 5},
		Radius:        0.5,
		Bidirectional: true,
		Area:          mesh.AreaJump,
		Kind:          mesh.ConnJumpDown,
		UserID:        1,
		Poly:          1,
	}
	a.Verts = append(a.Verts,
		con.Start.X(), con.Start.Y(), con.Start.Z(),
		con.End.X(), con.End.Y(), con.End.Z())
	standIn := mesh.Poly{VertCount: 2, Flags: mesh.FlagWalk, Area: mesh.AreaJump, Type: mesh.PolyTypeOffMesh}
	standIn.Verts = [mesh.VertsPerPolygon]uint16{4, 5}
	a.Polys = append(a.Polys, standIn)
	a.OffMeshCons = []mesh.OffMeshConnection{con}

	b := flatTile(2, 0, org, size, 0)
	if _, err := nm.AddTile(a); err != nil {
		t.Fatalf("AddTile a: %v", err)
	}
	if _, err := nm.AddTile(b); err != nil {
		t.Fatalf("AddTile b: %v", err)
	}

	e := NewEngine(nm, nil)
	path, err := e.FindPath(mgl32.Vec3{2, 0, 5}, mgl32.Vec3{27, 0, 5}, NewFilter(), PathOptions{})
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	assertTrue(t, len(path) == 3, "corridor passes through the connection stand-in")
	assertTrue(t, path[1] == mesh.EncodePolyRef(0, 1), "the stand-in polygon bridges the gap")
	assertTrue(t, path[2] == mesh.EncodePolyRef(1, 0), "corridor reaches the far tile")
}

func TestFindStraightPathOnOpenGround(t *testing.T) {
	e := NewEngine(stripMesh(t, 2, 10), nil)

	pts, err := e.FindPathPoints(mgl32.Vec3{2, 0, 5}, mgl32.Vec3{18, 0, 5}, NewFilter(), PathOptions{Smooth: true})
	if err != nil {
		t.Fatalf("FindPathPoints: %v", err)
	}
	assertTrue(t, len(pts) == 2, "an unobstructed line pulls straight")
	assertTrue(t, pts[0].ApproxEqual(mgl32.Vec3{2, 0, 5}), "path starts at the start point")
	assertTrue(t, pts[len(pts)-1].ApproxEqual(mgl32.Vec3{18, 0, 5}), "path ends at the end point")
}

func TestFindPathPointsCoarse(t *testing.T) {
	e := NewEngine(stripMesh(t, 2, 10), nil)

	pts, err := e.FindPathPoints(mgl32.Vec3{2, 0, 5}, mgl32.Vec3{18, 0, 5}, NewFilter(), PathOptions{})
	if err != nil {
		t.Fatalf("FindPathPoints: %v", err)
	}
	assertTrue(t, len(pts) == 3, "coarse path visits the second polygon center")
	assertTrue(t, pts[0].ApproxEqual(mgl32.Vec3{2, 0, 5}), "coarse path starts at the start point")
	assertTrue(t, pts[1].ApproxEqual(mgl32.Vec3{15, 0, 5}), "middle point is the polygon center")
	assertTrue(t, pts[2].ApproxEqual(mgl32.Vec3{18, 0, 5}), "coarse path ends at the end point")
}

func TestRaycast(t *testing.T) {
	e := NewEngine(stripMesh(t, 2, 10), nil)

	clear, err := e.Raycast(mgl32.Vec3{2, 0, 5}, mgl32.Vec3{18, 0, 5}, NewFilter())
	if err != nil {
		t.Fatalf("Raycast: %v", err)
	}
	assertTrue(t, clear, "the portal edge does not block line of sight")

	blocked, err := e.Raycast(mgl32.Vec3{2, 0, 5}, mgl32.Vec3{5, 0, 15}, NewFilter())
	if err != nil {
		t.Fatalf("Raycast: %v", err)
	}
	assertTrue(t, !blocked, "a wall edge blocks line of sight")
}

func TestFindReachablePolys(t *testing.T) {
	org := mgl32.Vec3{}
	size := float32(10)
	nm := mesh.NewNavMesh(mesh.Params{TileWidth: size, TileHeight: size, MaxTiles: 4})

	a := flatTile(0, 0, org, size, 0)
	a.Polys[0].Neis[1] = mesh.ExtLink | 2
	b := flatTile(1, 0, org, size, 0)
	b.Polys[0].Neis[3] = mesh.ExtLink | 0
	island := flatTile(3, 0, org, size, 0)
	for _, tt := range []*mesh.Tile{a, b, island} {
		if _, err := nm.AddTile(tt); err != nil {
			t.Fatalf("AddTile: %v", err)
		}
	}

	e := NewEngine(nm, nil)
	reach, err := e.FindReachablePolys(mgl32.Vec3{5, 0, 5}, NewFilter())
	if err != nil {
		t.Fatalf("FindReachablePolys: %v", err)
	}
	assertTrue(t, len(reach) == 2, "the island stays outside the component")
	assertTrue(t, reach[0] == mesh.EncodePolyRef(0, 0), "component starts at the start polygon")
	for _, ref := range reach {
		assertTrue(t, ref != mesh.EncodePolyRef(2, 0), "the island polygon is never reached")
	}
}

func TestFindFloorPoint(t *testing.T) {
	e := NewEngine(stripMesh(t, 1, 10), nil)

	pt, ref, err := e.FindFloorPoint(mgl32.Vec3{5, 3, 5}, 1, 5, NewFilter())
	if err != nil {
		t.Fatalf("FindFloorPoint: %v", err)
	}
	assertTrue(t, ref == mesh.EncodePolyRef(0, 0), "the floor polygon is found")
	assertTrue(t, math.Abs(float64(pt.Y())) < 1e-4, "the landing point sits on the surface")

	_, _, err = e.FindFloorPoint(mgl32.Vec3{5, 3, 5}, 1, 1, NewFilter())
	assertTrue(t, errors.Is(err, ErrNoPolyNear), "a too-shallow probe finds no floor")
}

func TestFindFloorPointIgnoresSurfacesAbove(t *testing.T) {
	e := NewEngine(stripMesh(t, 1, 10), nil)

	// The surface sits 0.3 above the reference height; that is a wall
	// base or a step up, not a floor to land on.
	_, _, err := e.FindFloorPoint(mgl32.Vec3{5, -0.3, 5}, 1, 5, NewFilter())
	assertTrue(t, errors.Is(err, ErrNoPolyNear), "surfaces above the reference are not floors")
}
