package builder

import (
	"sort"

	"navtile/common"
)

const (
	contourRegMask = 0xffff
	areaBorderFlag = 0x10000
)

type contour struct {
	verts  []int32 // x, y, z, neighbour-region per vertex
	rverts []int32 // raw, pre-simplification
	reg    uint16
	area   uint8
}

type contourSet struct {
	conts      []contour
	bmin, bmax [3]float32
	cs, ch     float32
	width      int32
	height     int32
	borderSize int32
}

// buildContours traces region boundaries into simplified polylines.
func buildContours(chf *compactHeightfield, maxError float32, maxEdgeLen int32) *contourSet {
	cset := &contourSet{
		bmin:       chf.bmin,
		bmax:       chf.bmax,
		cs:         chf.cs,
		ch:         chf.ch,
		width:      chf.width - chf.borderSize*2,
		height:     chf.height - chf.borderSize*2,
		borderSize: chf.borderSize,
	}
	if chf.borderSize > 0 {
		pad := float32(chf.borderSize) * chf.cs
		cset.bmin[0] += pad
		cset.bmin[2] += pad
		cset.bmax[0] -= pad
		cset.bmax[2] -= pad
	}

	// Per-span bitmask of directions whose neighbour belongs to another
	// region; these edges form the contours.
	flags := make([]uint8, chf.spanCount)
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := int32(c.index); i < int32(c.index+c.count); i++ {
				s := &chf.spans[i]
				if s.reg == 0 || s.reg&borderReg != 0 {
					continue
				}
				var res uint8
				for dir := int32(0); dir < 4; dir++ {
					var nr uint16
					if ai := chf.conIndex(x, z, dir, s); ai >= 0 {
						nr = chf.spans[ai].reg
					}
					if s.reg == nr {
						res |= 1 << dir
					}
				}
				flags[i] = res ^ 0xf // flag non-connected edges
			}
		}
	}

	var raw []int32
	var simplified []int32
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := int32(c.index); i < int32(c.index+c.count); i++ {
				if flags[i] == 0 || flags[i] == 0xf {
					flags[i] = 0
					continue
				}
				s := &chf.spans[i]
				reg := s.reg
				if reg == 0 || reg&borderReg != 0 {
					continue
				}
				area := chf.areas[i]

				raw = raw[:0]
				simplified = simplified[:0]
				walkContour(chf, x, z, i, flags, &raw)
				simplifyContour(raw, &simplified, maxError, maxEdgeLen)
				removeDegenerateSegments(&simplified)

				if len(simplified)/4 >= 3 {
					cont := contour{
						verts:  append([]int32(nil), simplified...),
						rverts: append([]int32(nil), raw...),
						reg:    reg,
						area:   area,
					}
					if chf.borderSize > 0 {
						// Rebase onto the kept area so portal edges land
						// exactly on the tile boundary.
						for v := 0; v < len(cont.verts)/4; v++ {
							cont.verts[v*4] -= chf.borderSize
							cont.verts[v*4+2] -= chf.borderSize
						}
						for v := 0; v < len(cont.rverts)/4; v++ {
							cont.rverts[v*4] -= chf.borderSize
							cont.rverts[v*4+2] -= chf.borderSize
						}
					}
					cset.conts = append(cset.conts, cont)
				}
			}
		}
	}

	mergeHolesIntoOutlines(cset, chf.maxRegions)
	return cset
}

// mergeHolesIntoOutlines splices hole contours into their region
// outline. Holes trace out wound backwards, and a hole left on its own
// would be paved over when the enclosing region is polygonized.
func mergeHolesIntoOutlines(cset *contourSet, maxRegions uint16) {
	nholes := 0
	for i := range cset.conts {
		if calcPolyArea2D(cset.conts[i].verts) < 0 {
			nholes++
		}
	}
	if nholes == 0 {
		return
	}

	outlines := make([]*contour, maxRegions+1)
	holes := make([][]contourHole, maxRegions+1)
	for i := range cset.conts {
		cont := &cset.conts[i]
		if calcPolyArea2D(cont.verts) < 0 {
			minx, minz, leftmost := leftMostVertex(cont)
			holes[cont.reg] = append(holes[cont.reg], contourHole{
				cont: cont, minx: minx, minz: minz, leftmost: leftmost,
			})
		} else if outlines[cont.reg] == nil {
			outlines[cont.reg] = cont
		}
	}
	for reg, hs := range holes {
		if len(hs) == 0 {
			continue
		}
		if outlines[reg] == nil {
			// Overly aggressive simplification can leave a region with
			// only backwards-wound contours. Nothing to splice into.
			continue
		}
		mergeRegionHoles(outlines[reg], hs)
	}

	// Drop the contours that were emptied by merging.
	kept := cset.conts[:0]
	for i := range cset.conts {
		if len(cset.conts[i].verts) != 0 {
			kept = append(kept, cset.conts[i])
		}
	}
	cset.conts = kept
}

type contourHole struct {
	cont       *contour
	minx, minz int32
	leftmost   int
}

type potentialDiagonal struct {
	vert int
	dist int32
}

// mergeRegionHoles joins every hole to the region outline through the
// shortest diagonal that crosses neither the outline nor another hole.
func mergeRegionHoles(outline *contour, holes []contourHole) {
	sort.Slice(holes, func(i, j int) bool {
		if holes[i].minx == holes[j].minx {
			return holes[i].minz < holes[j].minz
		}
		return holes[i].minx < holes[j].minx
	})

	for hi := range holes {
		hole := holes[hi].cont
		nhole := len(hole.verts) / 4

		index := -1
		bestVertex := holes[hi].leftmost
		for iter := 0; iter < nhole; iter++ {
			// Collect outline vertices whose cone contains the hole
			// vertex, nearest first.
			var diags []potentialDiagonal
			corner := hole.verts[bestVertex*4:]
			nout := len(outline.verts) / 4
			for j := 0; j < nout; j++ {
				if contourInCone(j, nout, outline.verts, corner) {
					dx := outline.verts[j*4] - corner[0]
					dz := outline.verts[j*4+2] - corner[2]
					diags = append(diags, potentialDiagonal{vert: j, dist: dx*dx + dz*dz})
				}
			}
			sort.Slice(diags, func(a, b int) bool { return diags[a].dist < diags[b].dist })

			index = -1
			for j := range diags {
				pt := outline.verts[diags[j].vert*4:]
				hit := intersectSegContour(pt, corner, diags[j].vert, nout, outline.verts)
				for k := hi; k < len(holes) && !hit; k++ {
					hit = intersectSegContour(pt, corner, -1, len(holes[k].cont.verts)/4, holes[k].cont.verts)
				}
				if !hit {
					index = diags[j].vert
					break
				}
			}
			if index != -1 {
				break
			}
			// All diagonals from this vertex were blocked, try the next.
			bestVertex = (bestVertex + 1) % nhole
		}
		if index == -1 {
			continue
		}
		mergeContours(outline, hole, index, bestVertex)
	}
}

// mergeContours splices contour b into contour a along the diagonal
// between vertex ia of a and vertex ib of b, emptying b.
func mergeContours(ca, cb *contour, ia, ib int) {
	na := len(ca.verts) / 4
	nb := len(cb.verts) / 4
	verts := make([]int32, 0, (na+nb+2)*4)
	for i := 0; i <= na; i++ {
		src := ca.verts[((ia+i)%na)*4:]
		verts = append(verts, src[0], src[1], src[2], src[3])
	}
	for i := 0; i <= nb; i++ {
		src := cb.verts[((ib+i)%nb)*4:]
		verts = append(verts, src[0], src[1], src[2], src[3])
	}
	ca.verts = verts
	cb.verts = nil
	cb.rverts = nil
}

func calcPolyArea2D(verts []int32) int32 {
	nv := len(verts) / 4
	var area int32
	for i, j := 0, nv-1; i < nv; j, i = i, i+1 {
		vi := verts[i*4:]
		vj := verts[j*4:]
		area += vi[0]*vj[2] - vj[0]*vi[2]
	}
	return (area + 1) / 2
}

func leftMostVertex(cont *contour) (minx, minz int32, idx int) {
	minx, minz = cont.verts[0], cont.verts[2]
	for i := 1; i < len(cont.verts)/4; i++ {
		x := cont.verts[i*4]
		z := cont.verts[i*4+2]
		if x < minx || (x == minx && z < minz) {
			minx, minz = x, z
			idx = i
		}
	}
	return minx, minz, idx
}

// contourInCone reports whether pj lies inside the cone spanned at
// vertex i of the contour.
func contourInCone(i, n int, verts []int32, pj []int32) bool {
	pi := verts[i*4:]
	pi1 := verts[((i+1)%n)*4:]
	pin1 := verts[((i+n-1)%n)*4:]
	if leftOn(pin1, pi, pi1) {
		return left(pi, pj, pin1) && left(pj, pi, pi1)
	}
	return !(leftOn(pi, pj, pi1) && leftOn(pj, pi, pin1))
}

// intersectSegContour checks the segment d0-d1 against every contour
// edge not incident to vertex i.
func intersectSegContour(d0, d1 []int32, i, n int, verts []int32) bool {
	for k := 0; k < n; k++ {
		k1 := (k + 1) % n
		if i == k || i == k1 {
			continue
		}
		p0 := verts[k*4:]
		p1 := verts[k1*4:]
		if vequal2(d0, p0) || vequal2(d1, p0) || vequal2(d0, p1) || vequal2(d1, p1) {
			continue
		}
		if intersect(d0, d1, p0, p1) {
			return true
		}
	}
	return false
}

func walkContour(chf *compactHeightfield, x, z, i int32, flags []uint8, points *[]int32) {
	// Start from any flagged direction.
	dir := int32(0)
	for flags[i]&(1<<dir) == 0 {
		dir++
	}
	startDir := dir
	startI := i

	for iter := 0; iter < 40000; iter++ {
		if flags[i]&(1<<dir) != 0 {
			// Emit the corner of this edge.
			py := getCornerHeight(chf, x, z, i, dir)
			px, pz := x, z
			switch dir {
			case 0:
				pz++
			case 1:
				px++
				pz++
			case 2:
				px++
			}
			var r int32
			s := &chf.spans[i]
			if ai := chf.conIndex(x, z, dir, s); ai >= 0 {
				r = int32(chf.spans[ai].reg)
				if chf.areas[i] != chf.areas[ai] {
					r |= areaBorderFlag
				}
			}
			*points = append(*points, px, py, pz, r)

			flags[i] &^= 1 << dir
			dir = (dir + 1) & 3
		} else {
			ni := chf.conIndex(x, z, dir, &chf.spans[i])
			if ni < 0 {
				// Should not happen: the edge would have been flagged.
				return
			}
			x += common.GetDirOffsetX(dir)
			z += common.GetDirOffsetZ(dir)
			i = ni
			dir = (dir + 3) & 3
		}
		if i == startI && dir == startDir && iter > 0 {
			break
		}
	}
}

func getCornerHeight(chf *compactHeightfield, x, z, i, dir int32) int32 {
	s := &chf.spans[i]
	ch := int32(s.y)
	dirp := (dir + 1) & 3

	if ai := chf.conIndex(x, z, dir, s); ai >= 0 {
		as := &chf.spans[ai]
		ch = max(ch, int32(as.y))
		ax := x + common.GetDirOffsetX(dir)
		az := z + common.GetDirOffsetZ(dir)
		if ai2 := chf.conIndex(ax, az, dirp, as); ai2 >= 0 {
			ch = max(ch, int32(chf.spans[ai2].y))
		}
	}
	if ai := chf.conIndex(x, z, dirp, s); ai >= 0 {
		as := &chf.spans[ai]
		ch = max(ch, int32(as.y))
		ax := x + common.GetDirOffsetX(dirp)
		az := z + common.GetDirOffsetZ(dirp)
		if ai2 := chf.conIndex(ax, az, dir, as); ai2 >= 0 {
			ch = max(ch, int32(chf.spans[ai2].y))
		}
	}
	return ch
}

func simplifyContour(points []int32, simplified *[]int32, maxError float32, maxEdgeLen int32) {
	n := int32(len(points) / 4)

	// Portal edges (a neighbour region on the other side) must keep their
	// end vertices so the seams stitch; pure walls start from extremes.
	hasConnections := false
	for i := int32(0); i < n; i++ {
		if points[i*4+3]&contourRegMask != 0 {
			hasConnections = true
			break
		}
	}

	if hasConnections {
		for i := int32(0); i < n; i++ {
			ii := (i + 1) % n
			differentRegs := points[i*4+3]&contourRegMask != points[ii*4+3]&contourRegMask
			areaBorders := points[i*4+3]&areaBorderFlag != points[ii*4+3]&areaBorderFlag
			if differentRegs || areaBorders {
				*simplified = append(*simplified, points[i*4], points[i*4+1], points[i*4+2], i)
			}
		}
	}
	if len(*simplified) == 0 {
		// Closed wall loop: seed with lower-left and upper-right vertices.
		llx, lly, llz, lli := points[0], points[1], points[2], int32(0)
		urx, ury, urz, uri := points[0], points[1], points[2], int32(0)
		for i := int32(0); i < n; i++ {
			x, y, z := points[i*4], points[i*4+1], points[i*4+2]
			if x < llx || (x == llx && z < llz) {
				llx, lly, llz, lli = x, y, z, i
			}
			if x > urx || (x == urx && z > urz) {
				urx, ury, urz, uri = x, y, z, i
			}
		}
		*simplified = append(*simplified, llx, lly, llz, lli, urx, ury, urz, uri)
	}

	// Add points until all raw points are within maxError of the
	// simplified shape.
	for i := 0; i < len(*simplified)/4; {
		ii := (i + 1) % (len(*simplified) / 4)
		ax := (*simplified)[i*4]
		az := (*simplified)[i*4+2]
		ai := (*simplified)[i*4+3]
		bx := (*simplified)[ii*4]
		bz := (*simplified)[ii*4+2]
		bi := (*simplified)[ii*4+3]

		var maxd float32
		maxi := int32(-1)
		ci, cinc, endi := int32(0), int32(0), int32(0)
		if bx > ax || (bx == ax && bz > az) {
			cinc = 1
			ci = (ai + cinc) % n
			endi = bi
		} else {
			cinc = n - 1
			ci = (bi + cinc) % n
			endi = ai
			ax, bx = bx, ax
			az, bz = bz, az
		}
		// Tessellate only outer wall edges.
		if points[ci*4+3]&contourRegMask == 0 {
			for ci != endi {
				d := distancePtSeg2D(points[ci*4], points[ci*4+2], ax, az, bx, bz)
				if d > maxd {
					maxd = d
					maxi = ci
				}
				ci = (ci + cinc) % n
			}
		}

		if maxi != -1 && maxd > maxError*maxError {
			*simplified = append(*simplified, 0, 0, 0, 0)
			ns := len(*simplified) / 4
			copy((*simplified)[(i+2)*4:], (*simplified)[(i+1)*4:(ns-1)*4])
			(*simplified)[(i+1)*4] = points[maxi*4]
			(*simplified)[(i+1)*4+1] = points[maxi*4+1]
			(*simplified)[(i+1)*4+2] = points[maxi*4+2]
			(*simplified)[(i+1)*4+3] = maxi
		} else {
			i++
		}
	}

	// Split long wall edges.
	if maxEdgeLen > 0 {
		for i := 0; i < len(*simplified)/4; {
			ii := (i + 1) % (len(*simplified) / 4)
			ax := (*simplified)[i*4]
			az := (*simplified)[i*4+2]
			ai := (*simplified)[i*4+3]
			bx := (*simplified)[ii*4]
			bz := (*simplified)[ii*4+2]
			bi := (*simplified)[ii*4+3]

			maxi := int32(-1)
			ci := (ai + 1) % n
			if points[ci*4+3]&contourRegMask == 0 {
				dx := bx - ax
				dz := bz - az
				if dx*dx+dz*dz > maxEdgeLen*maxEdgeLen {
					d := bi - ai
					if bi < ai {
						d = bi + (n - ai)
					}
					if d > 1 {
						if bx > ax || (bx == ax && bz > az) {
							maxi = (ai + d/2) % n
						} else {
							maxi = (ai + (d+1)/2) % n
						}
					}
				}
			}
			if maxi != -1 {
				*simplified = append(*simplified, 0, 0, 0, 0)
				ns := len(*simplified) / 4
				copy((*simplified)[(i+2)*4:], (*simplified)[(i+1)*4:(ns-1)*4])
				(*simplified)[(i+1)*4] = points[maxi*4]
				(*simplified)[(i+1)*4+1] = points[maxi*4+1]
				(*simplified)[(i+1)*4+2] = points[maxi*4+2]
				(*simplified)[(i+1)*4+3] = maxi
			} else {
				i++
			}
		}
	}

	// Swap the stored raw index for the neighbour region of the edge.
	for i := 0; i < len(*simplified)/4; i++ {
		ai := ((*simplified)[i*4+3] + 1) % n
		(*simplified)[i*4+3] = points[ai*4+3]
	}
}

func distancePtSeg2D(x, z, px, pz, qx, qz int32) float32 {
	pqx := float32(qx - px)
	pqz := float32(qz - pz)
	dx := float32(x - px)
	dz := float32(z - pz)
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = common.Clamp(t, 0, 1)
	dx = float32(px) + t*pqx - float32(x)
	dz = float32(pz) + t*pqz - float32(z)
	return dx*dx + dz*dz
}

func removeDegenerateSegments(simplified *[]int32) {
	for i := 0; i < len(*simplified)/4; i++ {
		ni := (i + 1) % (len(*simplified) / 4)
		if (*simplified)[i*4] == (*simplified)[ni*4] &&
			(*simplified)[i*4+2] == (*simplified)[ni*4+2] {
			nv := len(*simplified) / 4
			copy((*simplified)[i*4:], (*simplified)[(i+1)*4:nv*4])
			*simplified = (*simplified)[:(nv-1)*4]
			i--
		}
	}
}
