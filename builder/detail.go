package builder

import (
	"math"

	"navtile/common"
	"navtile/mesh"
)

const (
	detailUnsetHeight uint16 = 0xffff
	maxDetailVerts           = 127
	maxVertsPerEdge          = 32
	evUndef                  = int32(-1)
	evHull                   = int32(-2)
)

// polyMeshDetail carries the per-polygon height detail triangulation.
// Triangle entries are 4 uint16s: three vertex indices and an edge flag
// byte marking which edges lie on the polygon hull. Indices below the
// polygon vertex count refer to polygon vertices.
type polyMeshDetail struct {
	meshes []mesh.PolyDetail
	verts  []float32
	tris   []uint16
}

type heightPatch struct {
	data          []uint16
	xmin, zmin    int32
	width, height int32
}

// buildPolyMeshDetail samples the compact heightfield under every
// polygon and produces a triangulation that tracks the real surface
// within sampleMaxError.
func buildPolyMeshDetail(pm *polyMesh, chf *compactHeightfield, sampleDist, sampleMaxError float32) (*polyMeshDetail, error) {
	dmesh := &polyMeshDetail{}
	if pm.npolys == 0 {
		return dmesh, nil
	}

	nvp := pm.nvp
	cs := pm.cs
	ch := pm.ch
	orig := pm.bmin
	borderSize := pm.borderSize

	var hp heightPatch
	poly := make([]float32, nvp*3)
	verts := make([]float32, 256*3)
	var tris []uint16
	var samples []int32

	// Patch bounds per polygon, in heightfield cells.
	bounds := make([]int32, pm.npolys*4)
	maxhw, maxhh := int32(0), int32(0)
	for i := int32(0); i < pm.npolys; i++ {
		p := pm.polys[i*nvp*2:]
		xmin, xmax := chf.width, int32(0)
		zmin, zmax := chf.height, int32(0)
		for j := int32(0); j < nvp; j++ {
			if p[j] == meshNullIdx {
				break
			}
			v := pm.verts[p[j]*3:]
			xmin = min(xmin, int32(v[0])+borderSize)
			xmax = max(xmax, int32(v[0])+borderSize)
			zmin = min(zmin, int32(v[2])+borderSize)
			zmax = max(zmax, int32(v[2])+borderSize)
		}
		xmin = max(0, xmin-1)
		xmax = min(chf.width, xmax+1)
		zmin = max(0, zmin-1)
		zmax = min(chf.height, zmax+1)
		bounds[i*4], bounds[i*4+1], bounds[i*4+2], bounds[i*4+3] = xmin, xmax, zmin, zmax
		if xmin < xmax && zmin < zmax {
			maxhw = max(maxhw, xmax-xmin)
			maxhh = max(maxhh, zmax-zmin)
		}
	}
	hp.data = make([]uint16, maxhw*maxhh)

	for i := int32(0); i < pm.npolys; i++ {
		p := pm.polys[i*nvp*2:]

		npoly := int32(0)
		for j := int32(0); j < nvp; j++ {
			if p[j] == meshNullIdx {
				break
			}
			v := pm.verts[p[j]*3:]
			poly[j*3] = float32(v[0]) * cs
			poly[j*3+1] = float32(v[1]) * ch
			poly[j*3+2] = float32(v[2]) * cs
			npoly++
		}

		hp.xmin = bounds[i*4]
		hp.zmin = bounds[i*4+2]
		hp.width = bounds[i*4+1] - bounds[i*4]
		hp.height = bounds[i*4+3] - bounds[i*4+2]
		getHeightData(chf, p, npoly, pm.verts, borderSize, &hp)

		nverts, err := buildPolyDetail(poly[:npoly*3], sampleDist, sampleMaxError,
			chf, &hp, verts, &tris, &samples)
		if err != nil {
			return nil, err
		}

		// Back to world space.
		for j := int32(0); j < nverts; j++ {
			verts[j*3] += orig[0]
			verts[j*3+1] += orig[1] + chf.ch
			verts[j*3+2] += orig[2]
		}
		for j := int32(0); j < npoly; j++ {
			poly[j*3] += orig[0]
			poly[j*3+1] += orig[1]
			poly[j*3+2] += orig[2]
		}

		// Only the vertices beyond the polygon's own are stored; triangle
		// indices below the polygon vertex count resolve to polygon
		// vertices at query time.
		dmesh.meshes = append(dmesh.meshes, mesh.PolyDetail{
			VertBase:  uint32(len(dmesh.verts) / 3),
			VertCount: uint8(nverts - npoly),
			TriBase:   uint32(len(dmesh.tris) / 4),
			TriCount:  uint8(len(tris) / 4),
		})
		dmesh.verts = append(dmesh.verts, verts[npoly*3:nverts*3]...)
		dmesh.tris = append(dmesh.tris, tris...)
	}
	return dmesh, nil
}

// getHeightData floods span heights outward from the polygon centre so
// overlapping floors pick the surface the polygon actually sits on.
func getHeightData(chf *compactHeightfield, poly []uint16, npoly int32, verts []uint16, borderSize int32, hp *heightPatch) {
	for i := range hp.data[:hp.width*hp.height] {
		hp.data[i] = detailUnsetHeight
	}

	// Seed at the cell under the polygon centroid, on the span closest
	// to the polygon height.
	cx, cz, cy := int32(0), int32(0), int32(0)
	for j := int32(0); j < npoly; j++ {
		v := verts[poly[j]*3:]
		cx += int32(v[0]) + borderSize
		cy += int32(v[1])
		cz += int32(v[2]) + borderSize
	}
	cx /= npoly
	cy /= npoly
	cz /= npoly
	cx = common.Clamp(cx, hp.xmin, hp.xmin+hp.width-1)
	cz = common.Clamp(cz, hp.zmin, hp.zmin+hp.height-1)

	type cell struct{ x, z, i int32 }
	var queue []cell

	c := &chf.cells[cx+cz*chf.width]
	seed := int32(-1)
	bestDist := int32(math.MaxInt32)
	for i := int32(c.index); i < int32(c.index+c.count); i++ {
		d := common.Abs(int32(chf.spans[i].y) - cy)
		if d < bestDist {
			bestDist = d
			seed = i
		}
	}
	if seed < 0 {
		return
	}
	hp.data[(cx-hp.xmin)+(cz-hp.zmin)*hp.width] = chf.spans[seed].y
	queue = append(queue, cell{cx, cz, seed})

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		s := &chf.spans[cur.i]
		for dir := int32(0); dir < 4; dir++ {
			ai := chf.conIndex(cur.x, cur.z, dir, s)
			if ai < 0 {
				continue
			}
			ax := cur.x + common.GetDirOffsetX(dir)
			az := cur.z + common.GetDirOffsetZ(dir)
			hx := ax - hp.xmin
			hz := az - hp.zmin
			if hx < 0 || hz < 0 || hx >= hp.width || hz >= hp.height {
				continue
			}
			if hp.data[hx+hz*hp.width] != detailUnsetHeight {
				continue
			}
			hp.data[hx+hz*hp.width] = chf.spans[ai].y
			queue = append(queue, cell{ax, az, ai})
		}
	}
}

func getHeight(fx, fy, fz, cs, ics, ch float32, radius int32, hp *heightPatch) uint16 {
	ix := int32(math.Floor(float64(fx*ics + 0.01)))
	iz := int32(math.Floor(float64(fz*ics + 0.01)))
	ix = common.Clamp(ix-hp.xmin, 0, hp.width-1)
	iz = common.Clamp(iz-hp.zmin, 0, hp.height-1)
	h := hp.data[ix+iz*hp.width]
	if h != detailUnsetHeight {
		return h
	}

	// Spiral outward for the nearest sampled cell, preferring the one
	// whose height is closest to the query.
	x, z := int32(1), int32(0)
	dx, dz := int32(1), int32(0)
	maxSize := radius*2 + 1
	maxIter := maxSize*maxSize - 1
	nextRingIterStart := int32(8)
	nextRingIters := int32(16)
	dmin := float32(math.MaxFloat32)
	for i := int32(0); i < maxIter; i++ {
		nx := ix + x
		nz := iz + z
		if nx >= 0 && nz >= 0 && nx < hp.width && nz < hp.height {
			nh := hp.data[nx+nz*hp.width]
			if nh != detailUnsetHeight {
				d := float32(math.Abs(float64(float32(nh)*ch - fy)))
				if d < dmin {
					h = nh
					dmin = d
				}
			}
		}
		// Stop one ring past the first hit.
		if i+1 == nextRingIterStart {
			if h != detailUnsetHeight {
				break
			}
			nextRingIterStart += nextRingIters
			nextRingIters += 8
		}
		if (x == z) || (x < 0 && x == -z) || (x > 0 && x == 1-z) {
			dx, dz = -dz, dx
		}
		x += dx
		z += dz
	}
	return h
}

func vdot2(a, b []float32) float32    { return a[0]*b[0] + a[2]*b[2] }
func vdistSq2(p, q []float32) float32 { dx := q[0] - p[0]; dz := q[2] - p[2]; return dx*dx + dz*dz }
func vdist2(p, q []float32) float32   { return float32(math.Sqrt(float64(vdistSq2(p, q)))) }
func vcross2(p1, p2, p3 []float32) float32 {
	u1 := p2[0] - p1[0]
	v1 := p2[2] - p1[2]
	u2 := p3[0] - p1[0]
	v2 := p3[2] - p1[2]
	return u1*v2 - v1*u2
}

func circumCircle(p1, p2, p3, c []float32) (float32, bool) {
	const eps = 1e-6
	// Compute relative to p1 to dodge precision loss.
	v1 := []float32{0, 0, 0}
	v2 := make([]float32, 3)
	v3 := make([]float32, 3)
	common.Vsub(v2, p2, p1)
	common.Vsub(v3, p3, p1)

	cp := vcross2(v1, v2, v3)
	if float32(math.Abs(float64(cp))) <= eps {
		common.Vcopy(c, p1)
		return 0, false
	}
	v1Sq := vdot2(v1, v1)
	v2Sq := vdot2(v2, v2)
	v3Sq := vdot2(v3, v3)
	c[0] = (v1Sq*(v2[2]-v3[2]) + v2Sq*(v3[2]-v1[2]) + v3Sq*(v1[2]-v2[2])) / (2 * cp)
	c[1] = 0
	c[2] = (v1Sq*(v3[0]-v2[0]) + v2Sq*(v1[0]-v3[0]) + v3Sq*(v2[0]-v1[0])) / (2 * cp)
	r := vdist2(c, v1)
	common.Vadd(c, c, p1)
	return r, true
}

func distPtTri(p, a, b, c []float32) float32 {
	v0 := make([]float32, 3)
	v1 := make([]float32, 3)
	v2 := make([]float32, 3)
	common.Vsub(v0, c, a)
	common.Vsub(v1, b, a)
	common.Vsub(v2, p, a)

	dot00 := vdot2(v0, v0)
	dot01 := vdot2(v0, v1)
	dot02 := vdot2(v0, v2)
	dot11 := vdot2(v1, v1)
	dot12 := vdot2(v1, v2)

	invDenom := 1.0 / (dot00*dot11 - dot01*dot01)
	u := (dot11*dot02 - dot01*dot12) * invDenom
	v := (dot00*dot12 - dot01*dot02) * invDenom

	const eps = 1e-4
	if u >= -eps && v >= -eps && (u+v) <= 1+eps {
		y := a[1] + v0[1]*u + v1[1]*v
		return float32(math.Abs(float64(y - p[1])))
	}
	return math.MaxFloat32
}

func distancePtSeg(pt, p, q []float32) float32 {
	pqx := q[0] - p[0]
	pqy := q[1] - p[1]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dy := pt[1] - p[1]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqy*pqy + pqz*pqz
	t := pqx*dx + pqy*dy + pqz*dz
	if d > 0 {
		t /= d
	}
	t = common.Clamp(t, 0, 1)
	dx = p[0] + t*pqx - pt[0]
	dy = p[1] + t*pqy - pt[1]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dy*dy + dz*dz
}

func distToTriMesh(p, verts []float32, tris []uint16, ntris int32) float32 {
	dmin := float32(math.MaxFloat32)
	for i := int32(0); i < ntris; i++ {
		va := verts[tris[i*4]*3:]
		vb := verts[tris[i*4+1]*3:]
		vc := verts[tris[i*4+2]*3:]
		d := distPtTri(p, va, vb, vc)
		if d < dmin {
			dmin = d
		}
	}
	if dmin == math.MaxFloat32 {
		return -1
	}
	return dmin
}

func distToPoly(nvert int32, verts []float32, p []float32) float32 {
	dmin := float32(math.MaxFloat32)
	c := false
	for i, j := int32(0), nvert-1; i < nvert; j, i = i, i+1 {
		vi := verts[i*3:]
		vj := verts[j*3:]
		if (vi[2] > p[2]) != (vj[2] > p[2]) &&
			p[0] < (vj[0]-vi[0])*(p[2]-vi[2])/(vj[2]-vi[2])+vi[0] {
			c = !c
		}
		d, _ := common.DistancePtSegSqr2D(p, vj, vi)
		dmin = min(dmin, d)
	}
	if c {
		return -dmin
	}
	return dmin
}

func getJitterX(i int32) float32 {
	return (float32((uint32(i)*0x8da6b343)&0xffff) / 65535.0 * 2.0) - 1.0
}

func getJitterY(i int32) float32 {
	return (float32((uint32(i)*0xd8163841)&0xffff) / 65535.0 * 2.0) - 1.0
}

type detailEdge struct {
	s, t, l, r int32
}

func findEdge(edges []detailEdge, s, t int32) int32 {
	for i := range edges {
		e := &edges[i]
		if (e.s == s && e.t == t) || (e.s == t && e.t == s) {
			return int32(i)
		}
	}
	return evUndef
}

func addEdge(edges *[]detailEdge, s, t, l, r int32) {
	if findEdge(*edges, s, t) == evUndef {
		*edges = append(*edges, detailEdge{s, t, l, r})
	}
}

func updateLeftFace(e *detailEdge, s, t, f int32) {
	if e.s == s && e.t == t && e.l == evUndef {
		e.l = f
	} else if e.t == s && e.s == t && e.r == evUndef {
		e.r = f
	}
}

func overlapSegSeg2d(a, b, c, d []float32) bool {
	a1 := vcross2(a, b, d)
	a2 := vcross2(a, b, c)
	if a1*a2 < 0 {
		a3 := vcross2(c, d, a)
		a4 := a3 + a2 - a1
		if a3*a4 < 0 {
			return true
		}
	}
	return false
}

func overlapEdges(pts []float32, edges []detailEdge, s1, t1 int32) bool {
	for i := range edges {
		s0 := edges[i].s
		t0 := edges[i].t
		if s0 == s1 || s0 == t1 || t0 == s1 || t0 == t1 {
			continue
		}
		if overlapSegSeg2d(pts[s0*3:], pts[t0*3:], pts[s1*3:], pts[t1*3:]) {
			return true
		}
	}
	return false
}

func completeFacet(pts []float32, npts int32, edges *[]detailEdge, nfaces *int32, e int32) {
	const eps = 1e-5

	edge := &(*edges)[e]
	var s, t int32
	if edge.l == evUndef {
		s, t = edge.s, edge.t
	} else if edge.r == evUndef {
		s, t = edge.t, edge.s
	} else {
		return
	}

	// Find the point with the smallest circumcircle on the left side.
	pt := npts
	c := []float32{0, 0, 0}
	r := float32(-1)
	for u := int32(0); u < npts; u++ {
		if u == s || u == t {
			continue
		}
		if vcross2(pts[s*3:], pts[t*3:], pts[u*3:]) <= eps {
			continue
		}
		if r < 0 {
			pt = u
			r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c)
			continue
		}
		d := vdist2(c, pts[u*3:])
		tol := float32(0.001)
		if d > r*(1+tol) {
			continue
		}
		if d < r*(1-tol) ||
			(!overlapEdges(pts, *edges, s, u) && !overlapEdges(pts, *edges, t, u)) {
			pt = u
			r, _ = circumCircle(pts[s*3:], pts[t*3:], pts[u*3:], c)
		}
	}

	if pt < npts {
		updateLeftFace(&(*edges)[e], s, t, *nfaces)
		if ei := findEdge(*edges, pt, s); ei == evUndef {
			addEdge(edges, pt, s, *nfaces, evUndef)
		} else {
			updateLeftFace(&(*edges)[ei], pt, s, *nfaces)
		}
		if ei := findEdge(*edges, t, pt); ei == evUndef {
			addEdge(edges, t, pt, *nfaces, evUndef)
		} else {
			updateLeftFace(&(*edges)[ei], t, pt, *nfaces)
		}
		*nfaces++
	} else {
		updateLeftFace(&(*edges)[e], s, t, evHull)
	}
}

func delaunayHull(npts int32, pts []float32, nhull int32, hull []int32, tris *[]uint16) {
	nfaces := int32(0)
	var edges []detailEdge

	for i, j := int32(0), nhull-1; i < nhull; j, i = i, i+1 {
		addEdge(&edges, hull[j], hull[i], evHull, evUndef)
	}
	for e := int32(0); e < int32(len(edges)); e++ {
		if edges[e].l == evUndef {
			completeFacet(pts, npts, &edges, &nfaces, e)
		}
		if edges[e].r == evUndef {
			completeFacet(pts, npts, &edges, &nfaces, e)
		}
	}

	*tris = (*tris)[:0]
	for i := int32(0); i < nfaces; i++ {
		*tris = append(*tris, 0xffff, 0xffff, 0xffff, 0)
	}
	for i := range edges {
		e := &edges[i]
		if e.r >= 0 {
			t := (*tris)[e.r*4:]
			if t[0] == 0xffff {
				t[0] = uint16(e.s)
				t[1] = uint16(e.t)
			} else if t[0] == uint16(e.t) {
				t[2] = uint16(e.s)
			} else if t[1] == uint16(e.s) {
				t[2] = uint16(e.t)
			}
		}
		if e.l >= 0 {
			t := (*tris)[e.l*4:]
			if t[0] == 0xffff {
				t[0] = uint16(e.t)
				t[1] = uint16(e.s)
			} else if t[0] == uint16(e.s) {
				t[2] = uint16(e.t)
			} else if t[1] == uint16(e.t) {
				t[2] = uint16(e.s)
			}
		}
	}

	// Drop dangling faces.
	for i := 0; i < len(*tris)/4; i++ {
		t := (*tris)[i*4:]
		if t[0] == 0xffff || t[1] == 0xffff || t[2] == 0xffff {
			n := len(*tris)/4 - 1
			copy(t[:4], (*tris)[n*4:])
			*tris = (*tris)[:n*4]
			i--
		}
	}
}

// triangulateHull fans the hull from the ear with the shortest
// perimeter, used when no interior samples were added.
func triangulateHull(verts []float32, nhull int32, hull []int32, nin int32, tris *[]uint16) {
	start, left, right := int32(0), int32(1), nhull-1

	dmin := float32(math.MaxFloat32)
	for i := int32(0); i < nhull; i++ {
		if hull[i] >= nin {
			continue // detail vertices cannot start the fan
		}
		pi := (i + nhull - 1) % nhull
		ni := (i + 1) % nhull
		pv := verts[hull[pi]*3:]
		cv := verts[hull[i]*3:]
		nv := verts[hull[ni]*3:]
		d := vdist2(pv, cv) + vdist2(cv, nv) + vdist2(nv, pv)
		if d < dmin {
			start = i
			left = ni
			right = pi
			dmin = d
		}
	}

	*tris = append(*tris, uint16(hull[start]), uint16(hull[left]), uint16(hull[right]), 0)

	for (left+1)%nhull != right {
		nleft := (left + 1) % nhull
		nright := (right + nhull - 1) % nhull

		cvleft := verts[hull[left]*3:]
		nvleft := verts[hull[nleft]*3:]
		cvright := verts[hull[right]*3:]
		nvright := verts[hull[nright]*3:]
		dleft := vdist2(cvleft, nvleft) + vdist2(nvleft, cvright)
		dright := vdist2(cvright, nvright) + vdist2(cvleft, nvright)

		if dleft < dright {
			*tris = append(*tris, uint16(hull[left]), uint16(hull[nleft]), uint16(hull[right]), 0)
			left = nleft
		} else {
			*tris = append(*tris, uint16(hull[left]), uint16(hull[nright]), uint16(hull[right]), 0)
			right = nright
		}
	}
}

func buildPolyDetail(in []float32, sampleDist, sampleMaxError float32,
	chf *compactHeightfield, hp *heightPatch,
	verts []float32, tris *[]uint16, samples *[]int32) (int32, error) {

	nin := int32(len(in) / 3)
	var edge [(maxVertsPerEdge + 1) * 3]float32
	var hull [maxDetailVerts]int32
	nhull := int32(0)

	nverts := nin
	copy(verts, in)
	*tris = (*tris)[:0]

	cs := chf.cs
	ics := 1.0 / cs
	heightSearchRadius := max(1, chf.walkableClimb)

	// Tessellate the hull edges so long borders follow the terrain.
	if sampleDist > 0 {
		for i, j := int32(0), nin-1; i < nin; j, i = i, i+1 {
			vj := in[j*3:]
			vi := in[i*3:]
			swapped := false
			// Consistent ordering keeps the seam identical from both sides.
			if float32(math.Abs(float64(vj[0]-vi[0]))) < 1e-6 {
				if vj[2] > vi[2] {
					vj, vi = vi, vj
					swapped = true
				}
			} else if vj[0] > vi[0] {
				vj, vi = vi, vj
				swapped = true
			}
			dx := vi[0] - vj[0]
			dy := vi[1] - vj[1]
			dz := vi[2] - vj[2]
			d := float32(math.Sqrt(float64(dx*dx + dz*dz)))
			nn := int32(1 + math.Floor(float64(d/sampleDist)))
			nn = min(nn, maxVertsPerEdge-1)
			if nverts+nn >= maxDetailVerts {
				nn = maxDetailVerts - 1 - nverts
			}
			if nn < 1 {
				hull[nhull] = j
				nhull++
				continue
			}
			for k := int32(0); k <= nn; k++ {
				u := float32(k) / float32(nn)
				pos := edge[k*3:]
				pos[0] = vj[0] + dx*u
				pos[1] = vj[1] + dy*u
				pos[2] = vj[2] + dz*u
				pos[1] = float32(getHeight(pos[0], pos[1], pos[2], cs, ics, chf.ch, heightSearchRadius, hp)) * chf.ch
			}
			// Simplify the samples.
			var idx [maxVertsPerEdge]int32
			idx[0], idx[1] = 0, nn
			nidx := int32(2)
			for k := int32(0); k < nidx-1; {
				a := idx[k]
				b := idx[k+1]
				va := edge[a*3:]
				vb := edge[b*3:]
				maxd := float32(0)
				maxi := int32(-1)
				for m := a + 1; m < b; m++ {
					dev := distancePtSeg(edge[m*3:], va, vb)
					if dev > maxd {
						maxd = dev
						maxi = m
					}
				}
				if maxi != -1 && maxd > common.Sqr(sampleMaxError) {
					copy(idx[k+2:nidx+1], idx[k+1:nidx])
					idx[k+1] = maxi
					nidx++
				} else {
					k++
				}
			}

			hull[nhull] = j
			nhull++
			if swapped {
				for k := nidx - 2; k > 0; k-- {
					common.Vcopy(verts[nverts*3:], edge[idx[k]*3:])
					hull[nhull] = nverts
					nhull++
					nverts++
				}
			} else {
				for k := int32(1); k < nidx-1; k++ {
					common.Vcopy(verts[nverts*3:], edge[idx[k]*3:])
					hull[nhull] = nverts
					nhull++
					nverts++
				}
			}
		}
	} else {
		for i := int32(0); i < nin; i++ {
			hull[i] = i
		}
		nhull = nin
	}

	// Interior sampling: add the worst-error sample until the surface
	// is tracked within tolerance.
	if sampleDist > 0 {
		bmin := []float32{in[0], in[1], in[2]}
		bmax := []float32{in[0], in[1], in[2]}
		for i := int32(1); i < nin; i++ {
			common.Vmin(bmin, in[i*3:])
			common.Vmax(bmax, in[i*3:])
		}
		x0 := int32(math.Floor(float64(bmin[0] / sampleDist)))
		x1 := int32(math.Ceil(float64(bmax[0] / sampleDist)))
		z0 := int32(math.Floor(float64(bmin[2] / sampleDist)))
		z1 := int32(math.Ceil(float64(bmax[2] / sampleDist)))

		*samples = (*samples)[:0]
		for z := z0; z < z1; z++ {
			for x := x0; x < x1; x++ {
				pt := []float32{
					float32(x) * sampleDist,
					(bmax[1] + bmin[1]) * 0.5,
					float32(z) * sampleDist,
				}
				// Stay clear of the hull to avoid sliver triangles.
				if distToPoly(nin, in, pt) > -sampleDist/2 {
					continue
				}
				y := getHeight(pt[0], pt[1], pt[2], cs, ics, chf.ch, heightSearchRadius, hp)
				*samples = append(*samples, x, int32(y), z, 0)
			}
		}

		nsamples := int32(len(*samples) / 4)
		for iter := int32(0); iter < nsamples; iter++ {
			if nverts >= maxDetailVerts {
				break
			}
			bestpt := []float32{0, 0, 0}
			bestd := float32(0)
			besti := int32(-1)
			for i := int32(0); i < nsamples; i++ {
				s := (*samples)[i*4:]
				if s[3] != 0 {
					continue
				}
				// Jitter so equal-error samples do not form grid lines.
				pt := []float32{
					float32(s[0])*sampleDist + getJitterX(i)*cs*0.1,
					float32(s[1]) * chf.ch,
					float32(s[2])*sampleDist + getJitterY(i)*cs*0.1,
				}
				d := distToTriMesh(pt, verts, *tris, int32(len(*tris)/4))
				if d < 0 {
					continue
				}
				if d > bestd {
					bestd = d
					besti = i
					common.Vcopy(bestpt, pt)
				}
			}
			if bestd <= sampleMaxError || besti == -1 {
				break
			}
			(*samples)[besti*4+3] = 1
			common.Vcopy(verts[nverts*3:], bestpt)
			nverts++

			delaunayHull(nverts, verts, nhull, hull[:], tris)
		}
	}

	if len(*tris) == 0 {
		if nverts == nhull {
			triangulateHull(verts, nhull, hull[:], nin, tris)
		} else {
			delaunayHull(nverts, verts, nhull, hull[:], tris)
		}
	}

	ntris := int32(len(*tris) / 4)
	if ntris > 0 {
		setTriFlags(*tris, verts, in, nin)
	}
	return nverts, nil
}

func onHull(va, vb []float32, poly []float32, npoly int32) bool {
	const thrSqr = 0.001 * 0.001
	for i, j := int32(0), npoly-1; i < npoly; j, i = i, i+1 {
		da, _ := common.DistancePtSegSqr2D(va, poly[j*3:], poly[i*3:])
		db, _ := common.DistancePtSegSqr2D(vb, poly[j*3:], poly[i*3:])
		if da < thrSqr && db < thrSqr {
			return true
		}
	}
	return false
}

func setTriFlags(tris []uint16, verts []float32, poly []float32, npoly int32) {
	for i := 0; i < len(tris)/4; i++ {
		t := tris[i*4:]
		var flags uint16
		for e := uint16(0); e < 3; e++ {
			va := verts[t[e]*3:]
			vb := verts[t[(e+1)%3]*3:]
			if onHull(va, vb, poly, npoly) {
				flags |= 1 << (e * 2)
			}
		}
		t[3] = flags
	}
}
