package builder

import (
	"fmt"

	"navtile/common"
)

// meshNullIdx marks an unused vertex slot or a wall edge in a polygon.
const meshNullIdx uint16 = 0xffff

const vertexBucketCount = 1 << 12

// polyMesh is the welded convex polygon mesh produced from contours.
// Vertices are in voxel units relative to bmin. Each polygon occupies
// 2*nvp entries in polys: nvp vertex indices followed by nvp neighbour
// entries (meshNullIdx wall, 0x8000|side tile portal, else poly index).
type polyMesh struct {
	verts      []uint16
	polys      []uint16
	regs       []uint16
	flags      []uint16
	areas      []uint8
	npolys     int32
	nvp        int32
	bmin, bmax [3]float32
	cs, ch     float32
	borderSize int32
}

// buildPolyMesh welds contour vertices, triangulates each contour and
// merges triangles into convex polygons of up to nvp vertices.
func buildPolyMesh(cset *contourSet, nvp int32) (*polyMesh, error) {
	pm := &polyMesh{
		nvp:        nvp,
		bmin:       cset.bmin,
		bmax:       cset.bmax,
		cs:         cset.cs,
		ch:         cset.ch,
		borderSize: cset.borderSize,
	}

	maxVertices := int32(0)
	maxTris := int32(0)
	maxVertsPerCont := int32(0)
	for i := range cset.conts {
		nv := int32(len(cset.conts[i].verts) / 4)
		if nv < 3 {
			continue
		}
		maxVertices += nv
		maxTris += nv - 2
		maxVertsPerCont = max(maxVertsPerCont, nv)
	}
	if maxVertices >= 0xfffe {
		return nil, fmt.Errorf("too many vertices: %d", maxVertices)
	}
	if maxVertices == 0 {
		return pm, nil
	}

	firstVert := make([]uint16, vertexBucketCount)
	for i := range firstVert {
		firstVert[i] = meshNullIdx
	}
	nextVert := make([]uint16, maxVertices)

	pm.verts = make([]uint16, 0, maxVertices*3)
	pm.polys = make([]uint16, maxTris*nvp*2)
	for i := range pm.polys {
		pm.polys[i] = meshNullIdx
	}
	pm.regs = make([]uint16, maxTris)
	pm.areas = make([]uint8, maxTris)

	indices := make([]int32, maxVertsPerCont)
	tris := make([]int32, maxVertsPerCont*3)
	polys := make([]uint16, (maxVertsPerCont+1)*nvp)
	tmpPoly := polys[maxVertsPerCont*nvp:]

	for ci := range cset.conts {
		cont := &cset.conts[ci]
		nv := int32(len(cont.verts) / 4)
		if nv < 3 {
			continue
		}

		for j := int32(0); j < nv; j++ {
			indices[j] = j
		}
		ntris := triangulate(nv, cont.verts, indices[:nv], tris)
		if ntris <= 0 {
			// Bad input geometry; keep what could be triangulated.
			ntris = -ntris
		}

		// Weld the contour vertices into the mesh.
		for j := int32(0); j < nv; j++ {
			v := cont.verts[j*4:]
			indices[j] = int32(pm.addVertex(uint16(v[0]), uint16(v[1]), uint16(v[2]), firstVert, nextVert))
		}

		npolys := int32(0)
		for j := int32(0); j < ntris; j++ {
			t := tris[j*3:]
			if t[0] != t[1] && t[0] != t[2] && t[1] != t[2] {
				polys[npolys*nvp] = uint16(indices[t[0]])
				polys[npolys*nvp+1] = uint16(indices[t[1]])
				polys[npolys*nvp+2] = uint16(indices[t[2]])
				for k := int32(3); k < nvp; k++ {
					polys[npolys*nvp+k] = meshNullIdx
				}
				npolys++
			}
		}
		if npolys == 0 {
			continue
		}

		// Greedily merge the pair sharing the longest edge while the
		// result stays convex.
		if nvp > 3 {
			for {
				bestLen := int32(0)
				bestPa, bestPb := int32(-1), int32(-1)
				bestEa, bestEb := int32(0), int32(0)
				for j := int32(0); j < npolys-1; j++ {
					pj := polys[j*nvp:]
					for k := j + 1; k < npolys; k++ {
						pk := polys[k*nvp:]
						l, ea, eb := getPolyMergeValue(pj, pk, pm.verts, nvp)
						if l > bestLen {
							bestLen = l
							bestPa, bestPb = j, k
							bestEa, bestEb = ea, eb
						}
					}
				}
				if bestLen <= 0 {
					break
				}
				mergePolys(polys[bestPa*nvp:(bestPa+1)*nvp], polys[bestPb*nvp:(bestPb+1)*nvp], bestEa, bestEb, tmpPoly, nvp)
				copy(polys[bestPb*nvp:(bestPb+1)*nvp], polys[(npolys-1)*nvp:npolys*nvp])
				npolys--
			}
		}

		for j := int32(0); j < npolys; j++ {
			p := pm.polys[pm.npolys*nvp*2:]
			copy(p[:nvp], polys[j*nvp:(j+1)*nvp])
			pm.regs[pm.npolys] = cont.reg
			pm.areas[pm.npolys] = cont.area
			pm.npolys++
			if pm.npolys > maxTris {
				return nil, fmt.Errorf("too many polygons: %d (max %d)", pm.npolys, maxTris)
			}
		}
	}

	pm.polys = pm.polys[:pm.npolys*nvp*2]
	pm.regs = pm.regs[:pm.npolys]
	pm.areas = pm.areas[:pm.npolys]
	pm.flags = make([]uint16, pm.npolys)

	if err := pm.buildAdjacency(); err != nil {
		return nil, err
	}
	pm.markPortalEdges(cset.width, cset.height)
	return pm, nil
}

func computeVertexHash(x, y, z int32) int32 {
	const h1 = 0x8da6b343
	const h2 = 0xd8163841
	const h3 = 0xcb1ab31f
	n := uint32(h1*uint32(x) + h2*uint32(y) + h3*uint32(z))
	return int32(n & (vertexBucketCount - 1))
}

func (pm *polyMesh) addVertex(x, y, z uint16, firstVert, nextVert []uint16) uint16 {
	bucket := computeVertexHash(int32(x), 0, int32(z))
	for i := firstVert[bucket]; i != meshNullIdx; i = nextVert[i] {
		v := pm.verts[i*3:]
		if v[0] == x && common.Abs(int32(v[1])-int32(y)) <= 2 && v[2] == z {
			return i
		}
	}
	i := uint16(len(pm.verts) / 3)
	pm.verts = append(pm.verts, x, y, z)
	nextVert[i] = firstVert[bucket]
	firstVert[bucket] = i
	return i
}

// Signed area helpers operating on contour-style x,y,z,r vertices.

func area2(a, b, c []int32) int32 {
	return (b[0]-a[0])*(c[2]-a[2]) - (c[0]-a[0])*(b[2]-a[2])
}

func left(a, b, c []int32) bool { return area2(a, b, c) < 0 }

func leftOn(a, b, c []int32) bool { return area2(a, b, c) <= 0 }

func collinear(a, b, c []int32) bool { return area2(a, b, c) == 0 }

func intersectProp(a, b, c, d []int32) bool {
	if collinear(a, b, c) || collinear(a, b, d) || collinear(c, d, a) || collinear(c, d, b) {
		return false
	}
	return (left(a, b, c) != left(a, b, d)) && (left(c, d, a) != left(c, d, b))
}

func between(a, b, c []int32) bool {
	if !collinear(a, b, c) {
		return false
	}
	if a[0] != b[0] {
		return (a[0] <= c[0] && c[0] <= b[0]) || (a[0] >= c[0] && c[0] >= b[0])
	}
	return (a[2] <= c[2] && c[2] <= b[2]) || (a[2] >= c[2] && c[2] >= b[2])
}

func intersect(a, b, c, d []int32) bool {
	if intersectProp(a, b, c, d) {
		return true
	}
	return between(a, b, c) || between(a, b, d) || between(c, d, a) || between(c, d, b)
}

func vequal2(a, b []int32) bool { return a[0] == b[0] && a[2] == b[2] }

func diagonalie(i, j, n int32, verts []int32, indices []int32) bool {
	d0 := verts[(indices[i]&0x0fffffff)*4:]
	d1 := verts[(indices[j]&0x0fffffff)*4:]
	for k := int32(0); k < n; k++ {
		k1 := (k + 1) % n
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := verts[(indices[k]&0x0fffffff)*4:]
		p1 := verts[(indices[k1]&0x0fffffff)*4:]
		if vequal2(d0, p0) || vequal2(d1, p0) || vequal2(d0, p1) || vequal2(d1, p1) {
			continue
		}
		if intersect(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

func inCone(i, j, n int32, verts []int32, indices []int32) bool {
	pi := verts[(indices[i]&0x0fffffff)*4:]
	pj := verts[(indices[j]&0x0fffffff)*4:]
	pi1 := verts[(indices[(i+1)%n]&0x0fffffff)*4:]
	pin1 := verts[(indices[(i+n-1)%n]&0x0fffffff)*4:]
	if leftOn(pin1, pi, pi1) {
		return left(pi, pj, pin1) && left(pj, pi, pi1)
	}
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

func diagonal(i, j, n int32, verts []int32, indices []int32) bool {
	return inCone(i, j, n, verts, indices) && diagonalie(i, j, n, verts, indices)
}

// Loose variants tolerate segments that touch without properly
// crossing, which happens along the seam of a contour with a merged
// hole.

func diagonalieLoose(i, j, n int32, verts []int32, indices []int32) bool {
	d0 := verts[(indices[i]&0x0fffffff)*4:]
	d1 := verts[(indices[j]&0x0fffffff)*4:]
	for k := int32(0); k < n; k++ {
		k1 := (k + 1) % n
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := verts[(indices[k]&0x0fffffff)*4:]
		p1 := verts[(indices[k1]&0x0fffffff)*4:]
		if vequal2(d0, p0) || vequal2(d1, p0) || vequal2(d0, p1) || vequal2(d1, p1) {
			continue
		}
		if intersectProp(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

func inConeLoose(i, j, n int32, verts []int32, indices []int32) bool {
	pi := verts[(indices[i]&0x0fffffff)*4:]
	pj := verts[(indices[j]&0x0fffffff)*4:]
	pi1 := verts[(indices[(i+1)%n]&0x0fffffff)*4:]
	pin1 := verts[(indices[(i+n-1)%n]&0x0fffffff)*4:]
	if leftOn(pin1, pi, pi1) {
		return leftOn(pi, pj, pin1) && leftOn(pj, pi, pi1)
	}
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

func diagonalLoose(i, j, n int32, verts []int32, indices []int32) bool {
	return inConeLoose(i, j, n, verts, indices) && diagonalieLoose(i, j, n, verts, indices)
}

// triangulate ear-clips a simple polygon. Returns the triangle count,
// negated if the input was degenerate and some triangles were dropped.
func triangulate(n int32, verts []int32, indices []int32, tris []int32) int32 {
	ntris := int32(0)
	dst := tris

	// Mark removable ears up front.
	for i := int32(0); i < n; i++ {
		i1 := (i + 1) % n
		i2 := (i1 + 1) % n
		if diagonal(i, i2, n, verts, indices) {
			indices[i1] |= 0x40000000
		}
	}

	for n > 3 {
		minLen := int32(-1)
		mini := int32(-1)
		for i := int32(0); i < n; i++ {
			i1 := (i + 1) % n
			if indices[i1]&0x40000000 != 0 {
				p0 := verts[(indices[i]&0x0fffffff)*4:]
				p2 := verts[(indices[(i1+1)%n]&0x0fffffff)*4:]
				dx := p2[0] - p0[0]
				dz := p2[2] - p0[2]
				l := dx*dx + dz*dz
				if minLen < 0 || l < minLen {
					minLen = l
					mini = i
				}
			}
		}
		if mini == -1 {
			// No ear found. Contours with holes spliced in contain
			// overlapping segments along the join, which the strict
			// diagonal test rejects. Retry with the loose test.
			minLen = -1
			for i := int32(0); i < n; i++ {
				i1 := (i + 1) % n
				i2 := (i1 + 1) % n
				if diagonalLoose(i, i2, n, verts, indices) {
					p0 := verts[(indices[i]&0x0fffffff)*4:]
					p2 := verts[(indices[i2]&0x0fffffff)*4:]
					dx := p2[0] - p0[0]
					dz := p2[2] - p0[2]
					l := dx*dx + dz*dz
					if minLen < 0 || l < minLen {
						minLen = l
						mini = i
					}
				}
			}
			if mini == -1 {
				// Genuinely messed up contour, keep what we have.
				return -ntris
			}
		}

		i := mini
		i1 := (i + 1) % n
		i2 := (i1 + 1) % n

		dst[0] = indices[i] & 0x0fffffff
		dst[1] = indices[i1] & 0x0fffffff
		dst[2] = indices[i2] & 0x0fffffff
		dst = dst[3:]
		ntris++

		// Remove i1 by shifting the rest down.
		n--
		for k := i1; k < n; k++ {
			indices[k] = indices[k+1]
		}
		if i1 >= n {
			i1 = 0
		}
		i = (i1 + n - 1) % n

		// Update ear status of the changed corners.
		if diagonal((i+n-1)%n, i1, n, verts, indices) {
			indices[i] |= 0x40000000
		} else {
			indices[i] &= 0x0fffffff
		}
		if diagonal(i, (i1+1)%n, n, verts, indices) {
			indices[i1] |= 0x40000000
		} else {
			indices[i1] &= 0x0fffffff
		}
	}

	dst[0] = indices[0] & 0x0fffffff
	dst[1] = indices[1] & 0x0fffffff
	dst[2] = indices[2] & 0x0fffffff
	ntris++
	return ntris
}

func countPolyVerts(p []uint16, nvp int32) int32 {
	for i := int32(0); i < nvp; i++ {
		if p[i] == meshNullIdx {
			return i
		}
	}
	return nvp
}

func uleft(a, b, c []uint16) bool {
	return (int32(b[0])-int32(a[0]))*(int32(c[2])-int32(a[2]))-
		(int32(c[0])-int32(a[0]))*(int32(b[2])-int32(a[2])) < 0
}

// getPolyMergeValue returns the squared length of the shared edge if pa
// and pb can merge into one convex polygon, or -1.
func getPolyMergeValue(pa, pb []uint16, verts []uint16, nvp int32) (int32, int32, int32) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)
	if na+nb-2 > nvp {
		return -1, 0, 0
	}

	// Find the shared edge.
	ea, eb := int32(-1), int32(-1)
	for i := int32(0); i < na; i++ {
		va0 := pa[i]
		va1 := pa[(i+1)%na]
		if va0 > va1 {
			va0, va1 = va1, va0
		}
		for j := int32(0); j < nb; j++ {
			vb0 := pb[j]
			vb1 := pb[(j+1)%nb]
			if vb0 > vb1 {
				vb0, vb1 = vb1, vb0
			}
			if va0 == vb0 && va1 == vb1 {
				ea, eb = i, j
				break
			}
		}
	}
	if ea == -1 || eb == -1 {
		return -1, 0, 0
	}

	// The merged polygon must stay convex at both seam corners.
	va := pa[(ea+na-1)%na]
	vb := pa[ea]
	vc := pb[(eb+2)%nb]
	if !uleft(verts[va*3:], verts[vb*3:], verts[vc*3:]) {
		return -1, 0, 0
	}
	va = pb[(eb+nb-1)%nb]
	vb = pb[eb]
	vc = pa[(ea+2)%na]
	if !uleft(verts[va*3:], verts[vb*3:], verts[vc*3:]) {
		return -1, 0, 0
	}

	va = pa[ea]
	vb = pa[(ea+1)%na]
	dx := int32(verts[va*3]) - int32(verts[vb*3])
	dz := int32(verts[va*3+2]) - int32(verts[vb*3+2])
	return dx*dx + dz*dz, ea, eb
}

func mergePolys(pa, pb []uint16, ea, eb int32, tmp []uint16, nvp int32) {
	na := countPolyVerts(pa, nvp)
	nb := countPolyVerts(pb, nvp)

	for i := range tmp[:nvp] {
		tmp[i] = meshNullIdx
	}
	n := int32(0)
	for i := int32(0); i < na-1; i++ {
		tmp[n] = pa[(ea+1+i)%na]
		n++
	}
	for i := int32(0); i < nb-1; i++ {
		tmp[n] = pb[(eb+1+i)%nb]
		n++
	}
	copy(pa[:nvp], tmp[:nvp])
}

type meshEdge struct {
	vert     [2]uint16
	polyEdge [2]uint16
	poly     [2]uint16
}

// buildAdjacency fills the neighbour half of each polygon from shared
// edges. Unmatched edges stay meshNullIdx walls.
func (pm *polyMesh) buildAdjacency() error {
	nverts := int32(len(pm.verts) / 3)
	nvp := pm.nvp

	maxEdgeCount := pm.npolys * nvp
	firstEdge := make([]uint16, nverts)
	nextEdge := make([]uint16, maxEdgeCount)
	for i := range firstEdge {
		firstEdge[i] = meshNullIdx
	}
	edges := make([]meshEdge, 0, maxEdgeCount)

	for i := int32(0); i < pm.npolys; i++ {
		t := pm.polys[i*nvp*2:]
		for j := int32(0); j < nvp; j++ {
			if t[j] == meshNullIdx {
				break
			}
			v0 := t[j]
			v1 := t[0]
			if j+1 < nvp && t[j+1] != meshNullIdx {
				v1 = t[j+1]
			}
			if v0 < v1 {
				edges = append(edges, meshEdge{
					vert:     [2]uint16{v0, v1},
					poly:     [2]uint16{uint16(i), uint16(i)},
					polyEdge: [2]uint16{uint16(j), 0},
				})
				nextEdge[len(edges)-1] = firstEdge[v0]
				firstEdge[v0] = uint16(len(edges) - 1)
			}
		}
	}

	for i := int32(0); i < pm.npolys; i++ {
		t := pm.polys[i*nvp*2:]
		for j := int32(0); j < nvp; j++ {
			if t[j] == meshNullIdx {
				break
			}
			v0 := t[j]
			v1 := t[0]
			if j+1 < nvp && t[j+1] != meshNullIdx {
				v1 = t[j+1]
			}
			if v0 > v1 {
				for e := firstEdge[v1]; e != meshNullIdx; e = nextEdge[e] {
					edge := &edges[e]
					if edge.vert[1] == v0 && edge.poly[0] == edge.poly[1] {
						edge.poly[1] = uint16(i)
						edge.polyEdge[1] = uint16(j)
						break
					}
				}
			}
		}
	}

	for i := range edges {
		e := &edges[i]
		if e.poly[0] != e.poly[1] {
			p0 := pm.polys[int32(e.poly[0])*nvp*2:]
			p1 := pm.polys[int32(e.poly[1])*nvp*2:]
			p0[nvp+int32(e.polyEdge[0])] = e.poly[1]
			p1[nvp+int32(e.polyEdge[1])] = e.poly[0]
		}
	}
	return nil
}

// markPortalEdges tags wall edges lying on the tile boundary with the
// side they face so adjacent tiles can be stitched at load time.
func (pm *polyMesh) markPortalEdges(w, h int32) {
	if pm.borderSize <= 0 {
		return
	}
	nvp := pm.nvp
	for i := int32(0); i < pm.npolys; i++ {
		p := pm.polys[i*nvp*2:]
		for j := int32(0); j < nvp; j++ {
			if p[j] == meshNullIdx {
				break
			}
			if p[nvp+j] != meshNullIdx {
				continue
			}
			nj := j + 1
			if nj >= nvp || p[nj] == meshNullIdx {
				nj = 0
			}
			va := pm.verts[p[j]*3:]
			vb := pm.verts[p[nj]*3:]
			switch {
			case int32(va[0]) == 0 && int32(vb[0]) == 0:
				p[nvp+j] = 0x8000 | 0
			case int32(va[2]) == h && int32(vb[2]) == h:
				p[nvp+j] = 0x8000 | 1
			case int32(va[0]) == w && int32(vb[0]) == w:
				p[nvp+j] = 0x8000 | 2
			case int32(va[2]) == 0 && int32(vb[2]) == 0:
				p[nvp+j] = 0x8000 | 3
			}
		}
	}
}
