package mesh

import (
	"fmt"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"navtile/common"
)

// NavMesh is the assembled grid of navigation tiles. Tiles are appended
// while the mesh is being built (the only mutation, mutex guarded) and the
// mesh is treated as immutable afterwards.
type NavMesh struct {
	params Params

	mu     sync.Mutex
	tiles  []*Tile
	lookup map[tileKey]int32
}

type tileKey struct{ x, z, layer int32 }

func NewNavMesh(params Params) *NavMesh {
	return &NavMesh{
		params: params,
		lookup: make(map[tileKey]int32),
	}
}

func (m *NavMesh) Params() Params { return m.params }

func (m *NavMesh) TileCount() int { return len(m.tiles) }

func (m *NavMesh) TileByIndex(i int32) *Tile {
	if i < 0 || int(i) >= len(m.tiles) {
		return nil
	}
	return m.tiles[i]
}

// TileAt returns the tile at grid location (x, z, layer), or nil.
func (m *NavMesh) TileAt(x, z, layer int32) *Tile {
	if i, ok := m.lookup[tileKey{x, z, layer}]; ok {
		return m.tiles[i]
	}
	return nil
}

func (m *NavMesh) tileIndexAt(x, z, layer int32) int32 {
	if i, ok := m.lookup[tileKey{x, z, layer}]; ok {
		return i
	}
	return -1
}

// CalcTileLoc returns the grid location containing the world position.
func (m *NavMesh) CalcTileLoc(pos mgl32.Vec3) (x, z int32) {
	x = int32(math.Floor(float64((pos.X() - m.params.Origin.X()) / m.params.TileWidth)))
	z = int32(math.Floor(float64((pos.Z() - m.params.Origin.Z()) / m.params.TileHeight)))
	return x, z
}

// PolyRefBase returns the reference of polygon 0 of the given tile.
func (m *NavMesh) PolyRefBase(t *Tile) PolyRef {
	for i, cand := range m.tiles {
		if cand == t {
			return EncodePolyRef(int32(i), 0)
		}
	}
	return 0
}

// AddTile appends a built tile and wires its adjacency links against the
// tiles already present. Safe for concurrent use during construction.
func (m *NavMesh) AddTile(t *Tile) (PolyRef, error) {
	if t == nil {
		return 0, fmt.Errorf("nil tile")
	}
	if t.X < 0 || t.Z < 0 {
		return 0, fmt.Errorf("tile location (%d,%d) out of grid", t.X, t.Z)
	}
	if len(t.Polys) > MaxPolysPerTile {
		return 0, fmt.Errorf("tile (%d,%d): %d polys exceeds per-tile limit", t.X, t.Z, len(t.Polys))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := tileKey{t.X, t.Z, t.Layer}
	if _, dup := m.lookup[key]; dup {
		return 0, fmt.Errorf("tile (%d,%d) layer %d already added", t.X, t.Z, t.Layer)
	}
	if m.params.MaxTiles > 0 && int32(len(m.tiles)) >= m.params.MaxTiles {
		return 0, fmt.Errorf("tile limit %d reached", m.params.MaxTiles)
	}

	idx := int32(len(m.tiles))
	m.tiles = append(m.tiles, t)
	m.lookup[key] = idx

	m.connectIntLinks(idx)
	for side := int32(0); side < 4; side++ {
		nx := t.X + common.GetDirOffsetX(side)
		nz := t.Z + common.GetDirOffsetZ(side)
		ni := m.tileIndexAt(nx, nz, t.Layer)
		if ni < 0 {
			continue
		}
		m.connectExtLinks(idx, ni, side)
		m.connectExtLinks(ni, idx, (side+2)&3)
	}
	m.connectOffMeshLinks()

	return EncodePolyRef(idx, 0), nil
}

// connectIntLinks turns the in-tile neighbour indices baked into each
// polygon into explicit adjacency links.
func (m *NavMesh) connectIntLinks(idx int32) {
	t := m.tiles[idx]
	t.Links = make([][]Link, len(t.Polys))
	for i := range t.Polys {
		p := &t.Polys[i]
		if p.Type == PolyTypeOffMesh {
			continue
		}
		for j := 0; j < int(p.VertCount); j++ {
			nei := p.Neis[j]
			if nei == 0 || nei&ExtLink != 0 {
				continue
			}
			t.Links[i] = append(t.Links[i], Link{
				Ref:  EncodePolyRef(idx, int32(nei-1)),
				Edge: uint8(j),
				Side: 0xff,
			})
		}
	}
}

// connectExtLinks wires portal edges of tile idx against tile ni, which
// lies on the given side of it.
func (m *NavMesh) connectExtLinks(idx, ni, side int32) {
	t := m.tiles[idx]
	target := m.tiles[ni]
	oppo := (side + 2) & 3
	for i := range t.Polys {
		p := &t.Polys[i]
		if p.Type == PolyTypeOffMesh {
			continue
		}
		for j := 0; j < int(p.VertCount); j++ {
			if p.Neis[j] != uint16(ExtLink|side) {
				continue
			}
			va := common.GetVert(t.Verts, p.Verts[j])
			vb := common.GetVert(t.Verts, p.Verts[(j+1)%int(p.VertCount)])
			for _, np := range m.findConnectingPolys(va, vb, target, oppo, t.WalkableClimb) {
				t.Links[i] = append(t.Links[i], Link{
					Ref:  EncodePolyRef(ni, np),
					Edge: uint8(j),
					Side: uint8(side),
				})
			}
		}
	}
}

// findConnectingPolys returns the polygons of target whose portal edges on
// the given side overlap segment va-vb.
func (m *NavMesh) findConnectingPolys(va, vb []float32, target *Tile, side int32, climb float32) []int32 {
	// Portals on sides 0/2 run along z, sides 1/3 along x.
	axis := 2
	if side == 1 || side == 3 {
		axis = 0
	}
	amin := min(va[axis], vb[axis])
	amax := max(va[axis], vb[axis])
	ay := (va[1] + vb[1]) * 0.5

	var out []int32
	for i := range target.Polys {
		p := &target.Polys[i]
		if p.Type == PolyTypeOffMesh {
			continue
		}
		for j := 0; j < int(p.VertCount); j++ {
			if p.Neis[j] != uint16(ExtLink|side) {
				continue
			}
			ua := common.GetVert(target.Verts, p.Verts[j])
			ub := common.GetVert(target.Verts, p.Verts[(j+1)%int(p.VertCount)])
			bmin := min(ua[axis], ub[axis])
			bmax := max(ua[axis], ub[axis])
			if min(amax, bmax)-max(amin, bmin) < 1e-4 {
				continue
			}
			by := (ua[1] + ub[1]) * 0.5
			if common.Abs(ay-by) > climb {
				continue
			}
			out = append(out, int32(i))
			break
		}
	}
	return out
}

// connectOffMeshLinks attempts to wire every still-unlinked baked
// connection in the mesh; endpoints may land in tiles added later, so this
// runs after each append.
func (m *NavMesh) connectOffMeshLinks() {
	for ti, t := range m.tiles {
		for ci := range t.OffMeshCons {
			con := &t.OffMeshCons[ci]
			if t.Links[con.Poly] != nil {
				continue
			}
			ext := mgl32.Vec3{con.Radius, t.WalkableClimb, con.Radius}
			startRef, _, okS := m.findNearestPoly(con.Start, ext)
			endRef, _, okE := m.findNearestPoly(con.End, ext)
			if !okS || !okE {
				continue
			}
			conRef := EncodePolyRef(int32(ti), int32(con.Poly))
			t.Links[con.Poly] = []Link{
				{Ref: startRef, Edge: 0, Side: 0xff},
				{Ref: endRef, Edge: 1, Side: 0xff},
			}
			// Ground polygons link into the connection; traversal out of
			// the end side only when bidirectional.
			sTile, sPoly := DecodePolyRef(startRef)
			m.tiles[sTile].Links[sPoly] = append(m.tiles[sTile].Links[sPoly], Link{Ref: conRef, Edge: 0xff, Side: 0xff})
			if con.Bidirectional {
				eTile, ePoly := DecodePolyRef(endRef)
				m.tiles[eTile].Links[ePoly] = append(m.tiles[eTile].Links[ePoly], Link{Ref: conRef, Edge: 0xff, Side: 0xff})
			}
		}
	}
}

// GetTileAndPolyByRef resolves a polygon reference.
func (m *NavMesh) GetTileAndPolyByRef(ref PolyRef) (*Tile, *Poly, bool) {
	if ref == 0 {
		return nil, nil, false
	}
	ti, pi := DecodePolyRef(ref)
	if ti < 0 || int(ti) >= len(m.tiles) {
		return nil, nil, false
	}
	t := m.tiles[ti]
	if int(pi) >= len(t.Polys) {
		return nil, nil, false
	}
	return t, &t.Polys[pi], true
}

func (m *NavMesh) IsValidPolyRef(ref PolyRef) bool {
	_, _, ok := m.GetTileAndPolyByRef(ref)
	return ok
}

// PolyCenter returns the centroid of a polygon.
func (m *NavMesh) PolyCenter(ref PolyRef) mgl32.Vec3 {
	t, p, ok := m.GetTileAndPolyByRef(ref)
	if !ok {
		return mgl32.Vec3{}
	}
	var c [3]float32
	for i := 0; i < int(p.VertCount); i++ {
		v := common.GetVert(t.Verts, p.Verts[i])
		c[0] += v[0]
		c[1] += v[1]
		c[2] += v[2]
	}
	s := 1.0 / float32(p.VertCount)
	return mgl32.Vec3{c[0] * s, c[1] * s, c[2] * s}
}

// PolyHeight returns the detail-mesh surface height under pos, which must
// lie within the polygon's xz projection.
func (m *NavMesh) PolyHeight(t *Tile, polyIdx int32, pos []float32) (float32, bool) {
	p := &t.Polys[polyIdx]
	if p.Type == PolyTypeOffMesh {
		return 0, false
	}
	if int(polyIdx) >= len(t.DetailMeshes) {
		return 0, false
	}
	pd := &t.DetailMeshes[polyIdx]
	for ti := uint32(0); ti < uint32(pd.TriCount); ti++ {
		tri := t.DetailTris[(pd.TriBase+ti)*4 : (pd.TriBase+ti)*4+3]
		var v [3][]float32
		for k := 0; k < 3; k++ {
			if int(tri[k]) < int(p.VertCount) {
				v[k] = common.GetVert(t.Verts, p.Verts[tri[k]])
			} else {
				v[k] = common.GetVert(t.DetailVerts, pd.VertBase+uint32(tri[k])-uint32(p.VertCount))
			}
		}
		if h, ok := common.ClosestHeightPointTriangle(pos, v[0], v[1], v[2]); ok {
			return h, true
		}
	}
	return 0, false
}

// ClosestPointOnPoly returns the point on the polygon closest to pos and
// whether pos projects onto the polygon surface.
func (m *NavMesh) ClosestPointOnPoly(ref PolyRef, pos mgl32.Vec3) (mgl32.Vec3, bool) {
	t, p, ok := m.GetTileAndPolyByRef(ref)
	if !ok {
		return pos, false
	}
	_, pi := DecodePolyRef(ref)
	pt := common.Slice(pos)

	if p.Type == PolyTypeOffMesh {
		v0 := common.GetVert(t.Verts, p.Verts[0])
		v1 := common.GetVert(t.Verts, p.Verts[1])
		if common.VdistSqr(pt, v0) < common.VdistSqr(pt, v1) {
			return common.ToVec3(v0), false
		}
		return common.ToVec3(v1), false
	}

	if h, over := m.PolyHeight(t, pi, pt); over {
		return mgl32.Vec3{pos.X(), h, pos.Z()}, true
	}

	// Outside the polygon: clamp to the nearest boundary edge.
	best := float32(math.MaxFloat32)
	closest := pt
	for j := 0; j < int(p.VertCount); j++ {
		va := common.GetVert(t.Verts, p.Verts[j])
		vb := common.GetVert(t.Verts, p.Verts[(j+1)%int(p.VertCount)])
		d, tt := common.DistancePtSegSqr2D(pt, va, vb)
		if d < best {
			best = d
			c := make([]float32, 3)
			common.Vlerp(c, va, vb, tt)
			closest = c
		}
	}
	return common.ToVec3(closest), false
}

// QueryPolygonsInTile collects polygon indices of t whose bounds overlap
// the query box, using the tile BV-tree when present.
func (m *NavMesh) QueryPolygonsInTile(t *Tile, qmin, qmax []float32) []int32 {
	var out []int32
	if len(t.BVTree) > 0 {
		tbmin := common.Slice(t.BMin)
		tbmax := common.Slice(t.BMax)
		qfac := t.BVQuantScale
		var bmin, bmax [3]uint16
		for k := 0; k < 3; k++ {
			mn := common.Clamp(qmin[k], tbmin[k], tbmax[k]) - tbmin[k]
			mx := common.Clamp(qmax[k], tbmin[k], tbmax[k]) - tbmin[k]
			bmin[k] = uint16(uint32(qfac*mn) & 0xfffe)
			bmax[k] = uint16(uint32(qfac*mx+1) | 1)
		}
		for i := 0; i < len(t.BVTree); {
			node := &t.BVTree[i]
			overlap := common.OverlapQuantBounds(bmin[:], bmax[:], node.BMin[:], node.BMax[:])
			if overlap && node.I >= 0 {
				out = append(out, node.I)
			}
			if overlap || node.I >= 0 {
				i++
			} else {
				i += int(-node.I)
			}
		}
		return out
	}
	for i := range t.Polys {
		p := &t.Polys[i]
		if p.Type == PolyTypeOffMesh {
			continue
		}
		var pmin, pmax [3]float32
		v0 := common.GetVert(t.Verts, p.Verts[0])
		common.Vcopy(pmin[:], v0)
		common.Vcopy(pmax[:], v0)
		for j := 1; j < int(p.VertCount); j++ {
			v := common.GetVert(t.Verts, p.Verts[j])
			common.Vmin(pmin[:], v)
			common.Vmax(pmax[:], v)
		}
		if common.OverlapBounds(qmin, qmax, pmin[:], pmax[:]) {
			out = append(out, int32(i))
		}
	}
	return out
}

// findNearestPoly is the internal nearest-polygon lookup used for wiring
// off-mesh endpoints; the query package exposes the public variant.
func (m *NavMesh) findNearestPoly(center mgl32.Vec3, halfExtents mgl32.Vec3) (PolyRef, mgl32.Vec3, bool) {
	qmin := []float32{center.X() - halfExtents.X(), center.Y() - halfExtents.Y(), center.Z() - halfExtents.Z()}
	qmax := []float32{center.X() + halfExtents.X(), center.Y() + halfExtents.Y(), center.Z() + halfExtents.Z()}

	var bestRef PolyRef
	bestPt := center
	best := float32(math.MaxFloat32)
	for ti, t := range m.tiles {
		if t.IsEmpty() {
			continue
		}
		tmin := common.Slice(t.BMin)
		tmax := common.Slice(t.BMax)
		if !common.OverlapBounds(qmin, qmax, tmin, tmax) {
			continue
		}
		for _, pi := range m.QueryPolygonsInTile(t, qmin, qmax) {
			ref := EncodePolyRef(int32(ti), pi)
			pt, _ := m.ClosestPointOnPoly(ref, center)
			d := pt.Sub(center).LenSqr()
			if d < best {
				best = d
				bestRef = ref
				bestPt = pt
			}
		}
	}
	return bestRef, bestPt, bestRef != 0
}

// OffMeshConnectionByRef returns the connection backing an off-mesh
// stand-in polygon.
func (m *NavMesh) OffMeshConnectionByRef(ref PolyRef) *OffMeshConnection {
	t, p, ok := m.GetTileAndPolyByRef(ref)
	if !ok || p.Type != PolyTypeOffMesh {
		return nil
	}
	_, pi := DecodePolyRef(ref)
	for i := range t.OffMeshCons {
		if int32(t.OffMeshCons[i].Poly) == pi {
			return &t.OffMeshCons[i]
		}
	}
	return nil
}

// GetOffMeshConnectionEndpoints orders a connection's endpoints for an
// agent arriving from prevRef.
func (m *NavMesh) GetOffMeshConnectionEndpoints(prevRef, conRef PolyRef) (start, end mgl32.Vec3, ok bool) {
	t, p, valid := m.GetTileAndPolyByRef(conRef)
	if !valid || p.Type != PolyTypeOffMesh {
		return start, end, false
	}
	_, pi := DecodePolyRef(conRef)
	idx := 0
	for _, l := range t.Links[pi] {
		if l.Ref == prevRef {
			idx = int(l.Edge)
			break
		}
	}
	v0 := common.GetVert(t.Verts, p.Verts[idx])
	v1 := common.GetVert(t.Verts, p.Verts[1-idx])
	return common.ToVec3(v0), common.ToVec3(v1), true
}
