package query

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"navtile/common"
	"navtile/mesh"
)

var (
	// ErrNoPolyNear means no polygon was found near a query position.
	ErrNoPolyNear = errors.New("no polygon near position")
	// ErrNoPath means start and end polygons are not connected under the
	// active filter.
	ErrNoPath = errors.New("no path between positions")
)

// heuristicScale keeps the A* heuristic slightly admissible.
const heuristicScale = 0.999

// defaultLookAhead bounds the raycast shortcut in any-angle searches.
const defaultLookAhead = 8

// PathOptions tunes a path search.
type PathOptions struct {
	// AnyAngle enables opportunistic raycast shortcuts across corridor
	// polygons when a direct line of sight exists.
	AnyAngle bool
	// LookAhead caps how many polygons a shortcut raycast may cross;
	// zero means the default.
	LookAhead int
	// TargetRadius, when positive, treats the destination as reached
	// once the search is within this distance of it.
	TargetRadius float32
	// Smooth selects funnel string pulling for point paths; when false a
	// coarse polygon-center path is returned.
	Smooth bool
}

// Engine answers queries against one immutable navigation mesh.
type Engine struct {
	nav *mesh.NavMesh
	log *zap.Logger

	// HalfExtents is the default nearest-polygon search box.
	HalfExtents mgl32.Vec3
}

func NewEngine(nav *mesh.NavMesh, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		nav:         nav,
		log:         log,
		HalfExtents: mgl32.Vec3{2, 4, 2},
	}
}

func (e *Engine) NavMesh() *mesh.NavMesh { return e.nav }

// FindNearestPoly finds the polygon closest to center within the given
// search box, honoring the filter when one is supplied.
func (e *Engine) FindNearestPoly(center, halfExtents mgl32.Vec3, filter *Filter) (mesh.PolyRef, mgl32.Vec3, error) {
	qmin := common.Slice(center.Sub(halfExtents))
	qmax := common.Slice(center.Add(halfExtents))

	var bestRef mesh.PolyRef
	bestPt := center
	best := float32(math.MaxFloat32)
	for ti := int32(0); ti < int32(e.nav.TileCount()); ti++ {
		t := e.nav.TileByIndex(ti)
		if t.IsEmpty() {
			continue
		}
		if !common.OverlapBounds(qmin, qmax, common.Slice(t.BMin), common.Slice(t.BMax)) {
			continue
		}
		for _, pi := range e.nav.QueryPolygonsInTile(t, qmin, qmax) {
			if filter != nil && !filter.PassFilter(&t.Polys[pi]) {
				continue
			}
			ref := mesh.EncodePolyRef(ti, pi)
			pt, _ := e.nav.ClosestPointOnPoly(ref, center)
			d := pt.Sub(center).LenSqr()
			if d < best {
				best = d
				bestRef = ref
				bestPt = pt
			}
		}
	}
	if bestRef == 0 {
		return 0, center, ErrNoPolyNear
	}
	return bestRef, bestPt, nil
}

// FindPath searches the polygon adjacency graph for a corridor from the
// polygon nearest start to the polygon nearest end.
func (e *Engine) FindPath(start, end mgl32.Vec3, filter *Filter, opts PathOptions) ([]mesh.PolyRef, error) {
	if filter == nil {
		filter = NewFilter()
	}
	startRef, startPt, err := e.FindNearestPoly(start, e.HalfExtents, filter)
	if err != nil {
		e.log.Debug("path query: no polygon near start", zap.Any("pos", start))
		return nil, ErrNoPolyNear
	}
	endRef, endPt, err := e.FindNearestPoly(end, e.HalfExtents, filter)
	if err != nil {
		e.log.Debug("path query: no polygon near end", zap.Any("pos", end))
		return nil, ErrNoPolyNear
	}
	if startRef == endRef {
		return []mesh.PolyRef{startRef}, nil
	}

	lookAhead := opts.LookAhead
	if lookAhead <= 0 {
		lookAhead = defaultLookAhead
	}

	pool := newNodePool()
	open := &nodeQueue{}

	startNode := pool.get(startRef)
	startNode.pos = startPt
	startNode.total = startPt.Sub(endPt).Len() * heuristicScale
	startNode.flags = nodeOpen
	open.push(startNode)

	var lastBest *node
	for !open.empty() {
		cur := open.pop()
		cur.flags = nodeClosed

		if cur.ref == endRef {
			lastBest = cur
			break
		}
		if opts.TargetRadius > 0 && cur.pos.Sub(endPt).Len() <= opts.TargetRadius {
			lastBest = cur
			break
		}

		curTile, _, _ := e.nav.GetTileAndPolyByRef(cur.ref)
		_, curPoly := mesh.DecodePolyRef(cur.ref)

		var parent *node
		if cur.parent != 0 {
			parent = pool.get(cur.parent)
		}

		for _, link := range curTile.Links[curPoly] {
			neiRef := link.Ref
			if neiRef == cur.parent {
				continue
			}
			_, neiPoly, ok := e.nav.GetTileAndPolyByRef(neiRef)
			if !ok || !filter.PassFilter(neiPoly) {
				continue
			}

			nn := pool.get(neiRef)
			neiPos := e.edgeMidPoint(cur.ref, neiRef)

			cost := cur.cost + filter.Cost(cur.pos, neiPos, neiPoly)
			par := cur.ref
			if opts.AnyAngle && parent != nil {
				// Shortcut past the current polygon when the grand
				// parent has line of sight to the neighbour.
				if t, _, hitWall := e.raycast(cur.parent, parent.pos, neiPos, filter, lookAhead); !hitWall && t >= 1 {
					_, curP, _ := e.nav.GetTileAndPolyByRef(cur.ref)
					cost = parent.cost + filter.Cost(parent.pos, neiPos, curP)
					par = cur.parent
				}
			}
			total := cost + neiPos.Sub(endPt).Len()*heuristicScale

			if nn.flags&nodeClosed != 0 && total >= nn.total {
				continue
			}
			if nn.flags&nodeOpen != 0 && total >= nn.total {
				continue
			}

			nn.pos = neiPos
			nn.cost = cost
			nn.total = total
			nn.parent = par
			if nn.flags&nodeOpen != 0 {
				open.update(nn)
			} else {
				nn.flags = nodeOpen
				open.push(nn)
			}
		}
	}

	if lastBest == nil {
		e.log.Debug("path query: polygons not connected",
			zap.Uint64("start", uint64(startRef)), zap.Uint64("end", uint64(endRef)))
		return nil, ErrNoPath
	}

	var path []mesh.PolyRef
	for n := lastBest; ; {
		path = append(path, n.ref)
		if n.parent == 0 {
			break
		}
		n = pool.get(n.parent)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// FindPathPoints runs FindPath and converts the corridor into an ordered
// point list, string-pulled when opts.Smooth is set.
func (e *Engine) FindPathPoints(start, end mgl32.Vec3, filter *Filter, opts PathOptions) ([]mgl32.Vec3, error) {
	corridor, err := e.FindPath(start, end, filter, opts)
	if err != nil {
		return nil, err
	}
	if opts.Smooth {
		return e.FindStraightPath(start, end, corridor), nil
	}
	pts := make([]mgl32.Vec3, 0, len(corridor)+2)
	pts = append(pts, start)
	for _, ref := range corridor[1:] {
		pts = append(pts, e.nav.PolyCenter(ref))
	}
	pts = append(pts, end)
	return pts, nil
}

// FindStraightPath string-pulls a corridor with the funnel algorithm,
// producing the minimal vertex path hugging shared-edge boundaries.
func (e *Engine) FindStraightPath(start, end mgl32.Vec3, corridor []mesh.PolyRef) []mgl32.Vec3 {
	if len(corridor) == 0 {
		return nil
	}
	startPt, _ := e.nav.ClosestPointOnPoly(corridor[0], start)
	endPt, _ := e.nav.ClosestPointOnPoly(corridor[len(corridor)-1], end)

	out := []mgl32.Vec3{startPt}
	if len(corridor) == 1 {
		if !startPt.ApproxEqual(endPt) {
			out = append(out, endPt)
		}
		return out
	}

	portalLeft := make([][]float32, 0, len(corridor))
	portalRight := make([][]float32, 0, len(corridor))
	for i := 0; i+1 < len(corridor); i++ {
		left, right, ok := e.getPortalPoints(corridor[i], corridor[i+1])
		if !ok {
			// Corridor broken; fall back to what has been gathered.
			break
		}
		portalLeft = append(portalLeft, left)
		portalRight = append(portalRight, right)
	}
	ep := common.Slice(endPt)
	portalLeft = append(portalLeft, ep)
	portalRight = append(portalRight, ep)

	apex := common.Slice(startPt)
	left := portalLeft[0]
	right := portalRight[0]
	apexIdx, leftIdx, rightIdx := 0, 0, 0

	for i := 1; i < len(portalLeft); i++ {
		pl := portalLeft[i]
		pr := portalRight[i]

		if common.TriArea2D(apex, right, pr) <= 0 {
			if common.Vequal(apex, right) || common.TriArea2D(apex, left, pr) > 0 {
				right = pr
				rightIdx = i
			} else {
				// Right crossed over left: the left vertex becomes the
				// new apex and the funnel restarts from it.
				out = appendPoint(out, left)
				apex = append([]float32(nil), left...)
				apexIdx = leftIdx
				left, right = apex, apex
				leftIdx, rightIdx = apexIdx, apexIdx
				i = apexIdx
				continue
			}
		}
		if common.TriArea2D(apex, left, pl) >= 0 {
			if common.Vequal(apex, left) || common.TriArea2D(apex, right, pl) < 0 {
				left = pl
				leftIdx = i
			} else {
				out = appendPoint(out, right)
				apex = append([]float32(nil), right...)
				apexIdx = rightIdx
				left, right = apex, apex
				leftIdx, rightIdx = apexIdx, apexIdx
				i = apexIdx
				continue
			}
		}
	}
	return appendPoint(out, ep)
}

func appendPoint(pts []mgl32.Vec3, p []float32) []mgl32.Vec3 {
	v := common.ToVec3(p)
	if len(pts) > 0 && pts[len(pts)-1].ApproxEqual(v) {
		return pts
	}
	return append(pts, v)
}

// getPortalPoints returns the shared boundary between two adjacent
// corridor polygons. Off-mesh stand-ins collapse the portal to a point.
func (e *Engine) getPortalPoints(from, to mesh.PolyRef) (left, right []float32, ok bool) {
	fromTile, fromPoly, valid := e.nav.GetTileAndPolyByRef(from)
	if !valid {
		return nil, nil, false
	}
	_, fromIdx := mesh.DecodePolyRef(from)
	var link *mesh.Link
	for i := range fromTile.Links[fromIdx] {
		if fromTile.Links[fromIdx][i].Ref == to {
			link = &fromTile.Links[fromIdx][i]
			break
		}
	}
	if link == nil {
		return nil, nil, false
	}

	if fromPoly.Type == mesh.PolyTypeOffMesh {
		v := common.GetVert(fromTile.Verts, fromPoly.Verts[link.Edge])
		return v, v, true
	}
	toTile, toPoly, valid := e.nav.GetTileAndPolyByRef(to)
	if !valid {
		return nil, nil, false
	}
	if toPoly.Type == mesh.PolyTypeOffMesh {
		_, toIdx := mesh.DecodePolyRef(to)
		for _, back := range toTile.Links[toIdx] {
			if back.Ref == from {
				v := common.GetVert(toTile.Verts, toPoly.Verts[back.Edge])
				return v, v, true
			}
		}
		return nil, nil, false
	}

	va := common.GetVert(fromTile.Verts, fromPoly.Verts[link.Edge])
	vb := common.GetVert(fromTile.Verts, fromPoly.Verts[(int(link.Edge)+1)%int(fromPoly.VertCount)])
	return va, vb, true
}

func (e *Engine) edgeMidPoint(from, to mesh.PolyRef) mgl32.Vec3 {
	left, right, ok := e.getPortalPoints(from, to)
	if !ok {
		return e.nav.PolyCenter(to)
	}
	return mgl32.Vec3{
		(left[0] + right[0]) * 0.5,
		(left[1] + right[1]) * 0.5,
		(left[2] + right[2]) * 0.5,
	}
}

// raycast walks the polygon graph along the segment fromPos-toPos and
// returns how far it got before hitting a wall or the polygon budget.
func (e *Engine) raycast(startRef mesh.PolyRef, fromPos, toPos mgl32.Vec3, filter *Filter, maxPolys int) (t float32, visited []mesh.PolyRef, hitWall bool) {
	p0 := common.Slice(fromPos)
	p1 := common.Slice(toPos)

	cur := startRef
	for steps := 0; steps < maxPolys; steps++ {
		tile, poly, ok := e.nav.GetTileAndPolyByRef(cur)
		if !ok || poly.Type == mesh.PolyTypeOffMesh {
			return 0, visited, true
		}
		visited = append(visited, cur)

		nv := int(poly.VertCount)
		verts := make([]float32, nv*3)
		for i := 0; i < nv; i++ {
			common.Vcopy(verts[i*3:i*3+3], common.GetVert(tile.Verts, poly.Verts[i]))
		}
		_, tmax, _, segMax, hit := intersectSegmentPoly2D(p0, p1, verts, nv)
		if !hit {
			// Start point is off this polygon; treat as blocked.
			return 0, visited, true
		}
		if tmax >= 1 {
			return 1, visited, false
		}

		// Follow the link across the exit edge.
		_, curIdx := mesh.DecodePolyRef(cur)
		var next mesh.PolyRef
		for _, link := range tile.Links[curIdx] {
			if int32(link.Edge) != int32(segMax) {
				continue
			}
			_, neiPoly, ok := e.nav.GetTileAndPolyByRef(link.Ref)
			if !ok || neiPoly.Type == mesh.PolyTypeOffMesh || !filter.PassFilter(neiPoly) {
				continue
			}
			next = link.Ref
			break
		}
		if next == 0 {
			return tmax, visited, true
		}
		cur = next
	}
	return 0, visited, true
}

// Raycast is the public line-of-sight query: it reports whether toPos is
// directly reachable from fromPos across walkable polygons.
func (e *Engine) Raycast(fromPos, toPos mgl32.Vec3, filter *Filter) (bool, error) {
	if filter == nil {
		filter = NewFilter()
	}
	startRef, _, err := e.FindNearestPoly(fromPos, e.HalfExtents, filter)
	if err != nil {
		return false, ErrNoPolyNear
	}
	t, _, hitWall := e.raycast(startRef, fromPos, toPos, filter, 256)
	return !hitWall && t >= 1, nil
}

// FindReachablePolys flood-fills the adjacency graph from the polygon
// nearest start and returns the connected component, start polygon
// included. The walk is iterative and deterministic.
func (e *Engine) FindReachablePolys(start mgl32.Vec3, filter *Filter) ([]mesh.PolyRef, error) {
	if filter == nil {
		filter = NewFilter()
	}
	startRef, _, err := e.FindNearestPoly(start, e.HalfExtents, filter)
	if err != nil {
		e.log.Debug("reachability query: no polygon near start", zap.Any("pos", start))
		return nil, ErrNoPolyNear
	}

	seen := map[mesh.PolyRef]struct{}{startRef: {}}
	queue := []mesh.PolyRef{startRef}
	var out []mesh.PolyRef
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)

		tile, _, _ := e.nav.GetTileAndPolyByRef(cur)
		_, curIdx := mesh.DecodePolyRef(cur)
		for _, link := range tile.Links[curIdx] {
			if _, dup := seen[link.Ref]; dup {
				continue
			}
			_, poly, ok := e.nav.GetTileAndPolyByRef(link.Ref)
			if !ok || !filter.PassFilter(poly) {
				continue
			}
			seen[link.Ref] = struct{}{}
			queue = append(queue, link.Ref)
		}
	}
	return out, nil
}

// FindFloorPoint searches a cylinder of the given horizontal radius and
// vertical extent for the highest surface point at or below the reference
// height. It is used to find landing spots under a ledge. The slack
// absorbs detail mesh interpolation error only; anything meaningfully
// above the reference is not a floor.
func (e *Engine) FindFloorPoint(center mgl32.Vec3, radius, down float32, filter *Filter) (mgl32.Vec3, mesh.PolyRef, error) {
	const aboveSlack = 0.05
	qmin := []float32{center.X() - radius, center.Y() - down, center.Z() - radius}
	qmax := []float32{center.X() + radius, center.Y() + aboveSlack, center.Z() + radius}

	var bestRef mesh.PolyRef
	var bestPt mgl32.Vec3
	bestY := float32(math.Inf(-1))
	for ti := int32(0); ti < int32(e.nav.TileCount()); ti++ {
		t := e.nav.TileByIndex(ti)
		if t.IsEmpty() || !common.OverlapBounds(qmin, qmax, common.Slice(t.BMin), common.Slice(t.BMax)) {
			continue
		}
		for _, pi := range e.nav.QueryPolygonsInTile(t, qmin, qmax) {
			if filter != nil && !filter.PassFilter(&t.Polys[pi]) {
				continue
			}
			ref := mesh.EncodePolyRef(ti, pi)
			pt, _ := e.nav.ClosestPointOnPoly(ref, center)
			dx := pt.X() - center.X()
			dz := pt.Z() - center.Z()
			if dx*dx+dz*dz > radius*radius {
				continue
			}
			if pt.Y() > center.Y()+aboveSlack || pt.Y() < center.Y()-down {
				continue
			}
			if pt.Y() > bestY {
				bestY = pt.Y()
				bestRef = ref
				bestPt = pt
			}
		}
	}
	if bestRef == 0 {
		return center, 0, ErrNoPolyNear
	}
	return bestPt, bestRef, nil
}

// intersectSegmentPoly2D clips segment p0-p1 against a convex polygon in
// the xz plane, returning entry/exit parameters and edges.
func intersectSegmentPoly2D(p0, p1, verts []float32, nverts int) (tmin, tmax float32, segMin, segMax int32, ok bool) {
	const eps = 1e-6
	tmin, tmax = 0, 1
	segMin, segMax = -1, -1
	dir := make([]float32, 3)
	common.Vsub(dir, p1, p0)

	j := nverts - 1
	for i := 0; i < nverts; i++ {
		edge := make([]float32, 3)
		diff := make([]float32, 3)
		common.Vsub(edge, common.GetVert(verts, i), common.GetVert(verts, j))
		common.Vsub(diff, p0, common.GetVert(verts, j))
		n := common.Vperp2D(edge, diff)
		d := common.Vperp2D(dir, edge)
		if common.Abs(d) < eps {
			if n < 0 {
				return tmin, tmax, segMin, segMax, false
			}
			j = i
			continue
		}
		t := n / d
		if d < 0 {
			if t > tmin {
				tmin = t
				segMin = int32(j)
				if tmin > tmax {
					return tmin, tmax, segMin, segMax, false
				}
			}
		} else {
			if t < tmax {
				tmax = t
				segMax = int32(j)
				if tmax < tmin {
					return tmin, tmax, segMin, segMax, false
				}
			}
		}
		j = i
	}
	return tmin, tmax, segMin, segMax, true
}
