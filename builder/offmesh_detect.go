package builder

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"navtile/common"
	"navtile/mesh"
)

// FloorFinder locates a walkable surface point within radius of center,
// searching down. Ok is false when nothing walkable is there.
type FloorFinder func(center mgl32.Vec3, radius, down float32) (mgl32.Vec3, bool)

// DetectJumpDownConnections walks the unlinked border edges of a built
// mesh and proposes one-way jump-down connections wherever a walkable
// surface lies below within the configured height band and horizontal
// gap. Intended as a second pass: the affected tiles are rebuilt with
// the returned connections baked in.
func DetectJumpDownConnections(nm *mesh.NavMesh, s Settings, findFloor FloorFinder) []mesh.OffMeshConnection {
	if !s.DetectJumpDownLinks || findFloor == nil {
		return nil
	}

	var out []mesh.OffMeshConnection
	var poly2D []float32

	for ti := int32(0); ti < int32(nm.TileCount()); ti++ {
		t := nm.TileByIndex(ti)
		if t == nil {
			continue
		}
		for pi := range t.Polys {
			p := &t.Polys[pi]
			if p.Type != mesh.PolyTypeGround {
				continue
			}

			poly2D = poly2D[:0]
			for j := 0; j < int(p.VertCount); j++ {
				poly2D = append(poly2D, common.GetVert(t.Verts, p.Verts[j])...)
			}

			for j := 0; j < int(p.VertCount); j++ {
				if p.Neis[j] != 0 {
					continue
				}
				va := common.GetVert(t.Verts, p.Verts[j])
				vb := common.GetVert(t.Verts, p.Verts[(j+1)%int(p.VertCount)])

				mid := mgl32.Vec3{
					(va[0] + vb[0]) * 0.5,
					(va[1] + vb[1]) * 0.5,
					(va[2] + vb[2]) * 0.5,
				}
				n := edgeOutwardNormal(va, vb, poly2D, int(p.VertCount))
				if n == (mgl32.Vec3{}) {
					continue
				}

				if con, ok := probeJumpDown(mid, n, s, findFloor); ok {
					if !nearDuplicate(out, con) {
						out = append(out, con)
					}
				}
			}
		}
	}
	return out
}

// edgeOutwardNormal returns the horizontal unit normal of edge va-vb
// pointing away from the polygon interior.
func edgeOutwardNormal(va, vb, poly2D []float32, nverts int) mgl32.Vec3 {
	dx := vb[0] - va[0]
	dz := vb[2] - va[2]
	l := dx*dx + dz*dz
	if l <= 1e-6 {
		return mgl32.Vec3{}
	}
	inv := 1.0 / float32(math.Sqrt(float64(l)))
	n := mgl32.Vec3{dz * inv, 0, -dx * inv}

	mx := (va[0] + vb[0]) * 0.5
	mz := (va[2] + vb[2]) * 0.5
	probe := []float32{mx + n.X()*0.05, 0, mz + n.Z()*0.05}
	if common.PointInPoly2D(probe, poly2D, nverts) {
		return mgl32.Vec3{-n.X(), 0, -n.Z()}
	}
	return n
}

func probeJumpDown(mid, n mgl32.Vec3, s Settings, findFloor FloorFinder) (mesh.OffMeshConnection, bool) {
	step := s.CellSize
	for d := s.AgentRadius; d <= s.MaxJumpHorizontalGap; d += step {
		probe := mgl32.Vec3{
			mid.X() + n.X()*d,
			mid.Y(),
			mid.Z() + n.Z()*d,
		}
		pt, ok := findFloor(probe, s.JumpDownConnectionRadius, s.MaxJumpDownHeight)
		if !ok {
			continue
		}
		drop := mid.Y() - pt.Y()
		if drop < s.MinJumpDownHeight || drop > s.MaxJumpDownHeight {
			continue
		}
		return mesh.OffMeshConnection{
			Start:         mid,
			End:           pt,
			Radius:        s.JumpDownConnectionRadius,
			Bidirectional: false,
			Area:          mesh.AreaJump,
			Kind:          mesh.ConnJumpDown,
		}, true
	}
	return mesh.OffMeshConnection{}, false
}

func nearDuplicate(cons []mesh.OffMeshConnection, con mesh.OffMeshConnection) bool {
	for i := range cons {
		ds := cons[i].Start.Sub(con.Start).LenSqr()
		de := cons[i].End.Sub(con.End).LenSqr()
		if ds < common.Sqr(con.Radius) && de < common.Sqr(con.Radius) {
			return true
		}
	}
	return false
}
