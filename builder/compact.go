package builder

import (
	"navtile/common"
)

const notConnected uint8 = 0xff

// borderReg flags spans belonging to the tile border margin.
const borderReg uint16 = 0x8000

type compactCell struct {
	index uint32
	count uint32
}

type compactSpan struct {
	y   uint16
	reg uint16
	h   uint16
	con [4]uint8
}

// compactHeightfield keeps only walkable spans with open space above,
// laid out per cell for constant-time neighbour access.
type compactHeightfield struct {
	width, height  int32
	spanCount      int32
	walkableHeight int32
	walkableClimb  int32
	borderSize     int32
	maxDistance    uint16
	maxRegions     uint16
	bmin, bmax     [3]float32
	cs, ch         float32
	cells          []compactCell
	spans          []compactSpan
	dist           []uint16
	areas          []uint8
}

// buildCompactHeightfield converts the sparse heightfield into the compact
// representation, dropping everything but walkable spans with clearance.
func buildCompactHeightfield(hf *heightfield, walkableHeight, walkableClimb int32) *compactHeightfield {
	chf := &compactHeightfield{
		width:          hf.width,
		height:         hf.height,
		walkableHeight: walkableHeight,
		walkableClimb:  walkableClimb,
		bmin:           hf.bmin,
		bmax:           hf.bmax,
		cs:             hf.cs,
		ch:             hf.ch,
		cells:          make([]compactCell, hf.width*hf.height),
	}
	chf.bmax[1] += float32(walkableHeight) * hf.ch

	for i := range hf.spans {
		for s := hf.spans[i]; s != nil; s = s.next {
			if s.area != nullArea {
				chf.spanCount++
			}
		}
	}
	chf.spans = make([]compactSpan, chf.spanCount)
	chf.areas = make([]uint8, chf.spanCount)

	idx := uint32(0)
	for z := int32(0); z < hf.height; z++ {
		for x := int32(0); x < hf.width; x++ {
			c := &chf.cells[x+z*hf.width]
			c.index = idx
			for s := hf.spans[x+z*hf.width]; s != nil; s = s.next {
				if s.area == nullArea {
					continue
				}
				bot := s.smax
				top := uint16(maxSpanHeight)
				if s.next != nil {
					top = s.next.smin
				}
				cs := &chf.spans[idx]
				cs.y = bot
				cs.h = uint16(common.Clamp(int32(top)-int32(bot), 0, maxSpanHeight))
				cs.con = [4]uint8{notConnected, notConnected, notConnected, notConnected}
				chf.areas[idx] = s.area
				c.count++
				idx++
			}
		}
	}

	chf.connectNeighbours()
	return chf
}

// connectNeighbours links each span to the vertically reachable span in
// every cardinal neighbour cell.
func (chf *compactHeightfield) connectNeighbours() {
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := c.index; i < c.index+c.count; i++ {
				s := &chf.spans[i]
				for dir := int32(0); dir < 4; dir++ {
					nx := x + common.GetDirOffsetX(dir)
					nz := z + common.GetDirOffsetZ(dir)
					if nx < 0 || nz < 0 || nx >= chf.width || nz >= chf.height {
						continue
					}
					nc := &chf.cells[nx+nz*chf.width]
					for k := nc.index; k < nc.index+nc.count; k++ {
						ns := &chf.spans[k]
						bot := max(int32(s.y), int32(ns.y))
						top := min(int32(s.y)+int32(s.h), int32(ns.y)+int32(ns.h))
						if top-bot >= chf.walkableHeight &&
							common.Abs(int32(ns.y)-int32(s.y)) <= chf.walkableClimb {
							layer := int32(k - nc.index)
							if layer < int32(notConnected) {
								s.con[dir] = uint8(layer)
							}
							break
						}
					}
				}
			}
		}
	}
}

func (chf *compactHeightfield) conIndex(x, z, dir int32, s *compactSpan) int32 {
	if s.con[dir] == notConnected {
		return -1
	}
	nx := x + common.GetDirOffsetX(dir)
	nz := z + common.GetDirOffsetZ(dir)
	return int32(chf.cells[nx+nz*chf.width].index) + int32(s.con[dir])
}

// erodeWalkableArea shrinks the walkable area inward by radius voxels so
// the agent footprint never clips walls.
func erodeWalkableArea(chf *compactHeightfield, radius int32) {
	dist := make([]uint8, chf.spanCount)
	for i := range dist {
		dist[i] = 0xff
	}
	// Boundary seeds: spans missing a connection or bordering null area.
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := c.index; i < c.index+c.count; i++ {
				if chf.areas[i] == nullArea {
					dist[i] = 0
					continue
				}
				s := &chf.spans[i]
				boundary := false
				for dir := int32(0); dir < 4; dir++ {
					ni := chf.conIndex(x, z, dir, s)
					if ni < 0 || chf.areas[ni] == nullArea {
						boundary = true
						break
					}
				}
				if boundary {
					dist[i] = 0
				}
			}
		}
	}

	// Two-pass chamfer distance transform.
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := c.index; i < c.index+c.count; i++ {
				s := &chf.spans[i]
				erodeStep(chf, dist, int32(i), x, z, s, 0, 3)
			}
		}
	}
	for z := chf.height - 1; z >= 0; z-- {
		for x := chf.width - 1; x >= 0; x-- {
			c := &chf.cells[x+z*chf.width]
			for i := c.index; i < c.index+c.count; i++ {
				s := &chf.spans[i]
				erodeStep(chf, dist, int32(i), x, z, s, 2, 1)
			}
		}
	}

	thr := uint8(radius * 2)
	for i := int32(0); i < chf.spanCount; i++ {
		if dist[i] < thr {
			chf.areas[i] = nullArea
		}
	}
}

// erodeStep relaxes the chamfer distance of span i from two directions:
// straight dirA plus the diagonal through dirB.
func erodeStep(chf *compactHeightfield, dist []uint8, i, x, z int32, s *compactSpan, dirA, dirB int32) {
	for _, dir := range [2]int32{dirA, dirB} {
		ni := chf.conIndex(x, z, dir, s)
		if ni < 0 {
			continue
		}
		if nd := satAdd(dist[ni], 2); nd < dist[i] {
			dist[i] = nd
		}
		nx := x + common.GetDirOffsetX(dir)
		nz := z + common.GetDirOffsetZ(dir)
		ns := &chf.spans[ni]
		diagDir := (dir + 3) & 3
		nni := chf.conIndex(nx, nz, diagDir, ns)
		if nni < 0 {
			continue
		}
		if nd := satAdd(dist[nni], 3); nd < dist[i] {
			dist[i] = nd
		}
	}
}

func satAdd(a uint8, b uint8) uint8 {
	if int32(a)+int32(b) > 0xff {
		return 0xff
	}
	return a + b
}

// buildDistanceField computes the distance-to-boundary field used by the
// watershed partitioning, smoothed with a box blur.
func buildDistanceField(chf *compactHeightfield) {
	src := make([]uint16, chf.spanCount)
	for i := range src {
		src[i] = 0xffff
	}
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := c.index; i < c.index+c.count; i++ {
				s := &chf.spans[i]
				area := chf.areas[i]
				nc := 0
				for dir := int32(0); dir < 4; dir++ {
					ni := chf.conIndex(x, z, dir, s)
					if ni >= 0 && chf.areas[ni] == area {
						nc++
					}
				}
				if nc != 4 {
					src[i] = 0
				}
			}
		}
	}

	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := c.index; i < c.index+c.count; i++ {
				distStep(chf, src, int32(i), x, z, 0, 3)
			}
		}
	}
	for z := chf.height - 1; z >= 0; z-- {
		for x := chf.width - 1; x >= 0; x-- {
			c := &chf.cells[x+z*chf.width]
			for i := c.index; i < c.index+c.count; i++ {
				distStep(chf, src, int32(i), x, z, 2, 1)
			}
		}
	}

	var maxDist uint16
	for i := int32(0); i < chf.spanCount; i++ {
		maxDist = max(maxDist, src[i])
	}
	chf.maxDistance = maxDist
	chf.dist = boxBlur(chf, src)
}

func distStep(chf *compactHeightfield, src []uint16, i, x, z, dirA, dirB int32) {
	s := &chf.spans[i]
	for _, dir := range [2]int32{dirA, dirB} {
		ni := chf.conIndex(x, z, dir, s)
		if ni < 0 {
			continue
		}
		if src[ni]+2 < src[i] {
			src[i] = src[ni] + 2
		}
		nx := x + common.GetDirOffsetX(dir)
		nz := z + common.GetDirOffsetZ(dir)
		ns := &chf.spans[ni]
		diagDir := (dir + 3) & 3
		nni := chf.conIndex(nx, nz, diagDir, ns)
		if nni < 0 {
			continue
		}
		if src[nni]+3 < src[i] {
			src[i] = src[nni] + 3
		}
	}
}

func boxBlur(chf *compactHeightfield, src []uint16) []uint16 {
	const thr = 2
	dst := make([]uint16, chf.spanCount)
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := c.index; i < c.index+c.count; i++ {
				s := &chf.spans[i]
				cd := src[i]
				if cd <= thr {
					dst[i] = cd
					continue
				}
				d := int32(cd)
				for dir := int32(0); dir < 4; dir++ {
					ni := chf.conIndex(x, z, dir, s)
					if ni < 0 {
						d += int32(cd) * 2
						continue
					}
					d += int32(src[ni])
					nx := x + common.GetDirOffsetX(dir)
					nz := z + common.GetDirOffsetZ(dir)
					ns := &chf.spans[ni]
					nni := chf.conIndex(nx, nz, (dir+1)&3, ns)
					if nni < 0 {
						d += int32(src[ni])
					} else {
						d += int32(src[nni])
					}
				}
				dst[i] = uint16((d + 5) / 9)
			}
		}
	}
	return dst
}
