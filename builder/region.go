package builder

import (
	"navtile/common"
)

type levelStackEntry struct {
	x, z, index int32
}

// buildRegions partitions the walkable spans of the compact heightfield
// into regions using the configured algorithm. Returns false when no
// region could be formed.
func buildRegions(chf *compactHeightfield, kind PartitionKind, borderSize, minArea, mergeArea int32) bool {
	switch kind {
	case PartitionMonotone:
		return buildSweepRegions(chf, borderSize, minArea, mergeArea, false)
	case PartitionLayers:
		return buildSweepRegions(chf, borderSize, minArea, 0, true)
	default:
		buildDistanceField(chf)
		return buildWatershedRegions(chf, borderSize, minArea, mergeArea)
	}
}

// buildWatershedRegions grows regions from distance-field maxima, the
// highest quality partitioning.
func buildWatershedRegions(chf *compactHeightfield, borderSize, minArea, mergeArea int32) bool {
	srcReg := make([]uint16, chf.spanCount)
	srcDist := make([]uint16, chf.spanCount)
	paintBorder(chf, borderSize, srcReg)

	const expandIters = 8
	regionID := uint16(1)
	level := (chf.maxDistance + 1) &^ 1

	for level > 0 {
		if level >= 2 {
			level -= 2
		} else {
			level = 0
		}

		expandRegions(chf, expandIters, level, srcReg, srcDist)

		// Flood new basins from yet unclaimed spans at this water level.
		for z := int32(0); z < chf.height; z++ {
			for x := int32(0); x < chf.width; x++ {
				c := &chf.cells[x+z*chf.width]
				for i := int32(c.index); i < int32(c.index+c.count); i++ {
					if chf.dist[i] < level || srcReg[i] != 0 || chf.areas[i] == nullArea {
						continue
					}
					if floodRegion(chf, x, z, i, level, regionID, srcReg, srcDist) {
						regionID++
					}
				}
			}
		}
	}
	expandRegions(chf, expandIters*8, 0, srcReg, srcDist)

	regionID = mergeAndFilterRegions(chf, srcReg, regionID, minArea, mergeArea, true)
	for i := int32(0); i < chf.spanCount; i++ {
		chf.spans[i].reg = srcReg[i]
	}
	chf.maxRegions = regionID
	return regionID > 1
}

func paintBorder(chf *compactHeightfield, borderSize int32, srcReg []uint16) {
	if borderSize <= 0 {
		return
	}
	w, h := chf.width, chf.height
	bs := min(borderSize, min(w, h))
	paint := func(x0, z0, x1, z1 int32) {
		for z := z0; z < z1; z++ {
			for x := x0; x < x1; x++ {
				c := &chf.cells[x+z*w]
				for i := c.index; i < c.index+c.count; i++ {
					srcReg[i] = borderReg
				}
			}
		}
	}
	paint(0, 0, bs, h)
	paint(w-bs, 0, w, h)
	paint(0, 0, w, bs)
	paint(0, h-bs, w, h)
}

func floodRegion(chf *compactHeightfield, x, z, i int32, level uint16, r uint16, srcReg, srcDist []uint16) bool {
	area := chf.areas[i]
	srcReg[i] = r
	srcDist[i] = 0
	stack := []levelStackEntry{{x, z, i}}
	count := 0

	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cs := &chf.spans[e.index]

		// Abort cells already bordering another region.
		var ar uint16
		for dir := int32(0); dir < 4; dir++ {
			ai := chf.conIndex(e.x, e.z, dir, cs)
			if ai < 0 || chf.areas[ai] != area {
				continue
			}
			nr := srcReg[ai]
			if nr&borderReg != 0 {
				continue
			}
			if nr != 0 && nr != r {
				ar = nr
				break
			}
			ax := e.x + common.GetDirOffsetX(dir)
			az := e.z + common.GetDirOffsetZ(dir)
			as := &chf.spans[ai]
			dir2 := (dir + 1) & 3
			ai2 := chf.conIndex(ax, az, dir2, as)
			if ai2 >= 0 && chf.areas[ai2] == area {
				nr2 := srcReg[ai2]
				if nr2&borderReg == 0 && nr2 != 0 && nr2 != r {
					ar = nr2
					break
				}
			}
		}
		if ar != 0 {
			srcReg[e.index] = 0
			continue
		}
		count++

		for dir := int32(0); dir < 4; dir++ {
			ai := chf.conIndex(e.x, e.z, dir, cs)
			if ai < 0 || chf.areas[ai] != area {
				continue
			}
			if chf.dist[ai] >= level && srcReg[ai] == 0 {
				srcReg[ai] = r
				srcDist[ai] = 0
				stack = append(stack, levelStackEntry{
					e.x + common.GetDirOffsetX(dir),
					e.z + common.GetDirOffsetZ(dir),
					ai,
				})
			}
		}
	}
	return count > 0
}

func expandRegions(chf *compactHeightfield, maxIter int, level uint16, srcReg, srcDist []uint16) {
	var stack []levelStackEntry
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := int32(c.index); i < int32(c.index+c.count); i++ {
				if chf.dist[i] >= level && srcReg[i] == 0 && chf.areas[i] != nullArea {
					stack = append(stack, levelStackEntry{x, z, i})
				}
			}
		}
	}

	iter := 0
	for len(stack) > 0 {
		failed := 0
		type change struct {
			index int32
			reg   uint16
			dist  uint16
		}
		var dirty []change

		for si := range stack {
			e := &stack[si]
			if e.index < 0 {
				failed++
				continue
			}
			r := uint16(0)
			d2 := uint16(0xffff)
			area := chf.areas[e.index]
			cs := &chf.spans[e.index]
			for dir := int32(0); dir < 4; dir++ {
				ai := chf.conIndex(e.x, e.z, dir, cs)
				if ai < 0 || chf.areas[ai] != area {
					continue
				}
				if srcReg[ai] > 0 && srcReg[ai]&borderReg == 0 && srcDist[ai]+2 < d2 {
					r = srcReg[ai]
					d2 = srcDist[ai] + 2
				}
			}
			if r != 0 {
				dirty = append(dirty, change{e.index, r, d2})
				e.index = -1
			} else {
				failed++
			}
		}
		for _, ch := range dirty {
			srcReg[ch.index] = ch.reg
			srcDist[ch.index] = ch.dist
		}

		if failed == len(stack) {
			break
		}
		if level > 0 {
			iter++
			if iter >= maxIter {
				break
			}
		}
	}
}

// buildSweepRegions is the monotone partitioning: each row is swept into
// runs which adopt the previous row's region when the connection is
// unambiguous. In layered mode the sweeps are then flood-merged into 2D
// layers that never overlap vertically, instead of the plain area merge.
func buildSweepRegions(chf *compactHeightfield, borderSize, minArea, mergeArea int32, layered bool) bool {
	srcReg := make([]uint16, chf.spanCount)
	paintBorder(chf, borderSize, srcReg)

	regionID := uint16(1)
	w := chf.width

	type sweepSpan struct {
		rid uint16 // row id
		id  uint16 // region id
		ns  int32  // number of samples
		nei uint16 // neighbour region, 0xffff when ambiguous
	}

	prev := make([]int32, 256)
	for z := int32(0); z < chf.height; z++ {
		if int(regionID)+1 >= len(prev) {
			grown := make([]int32, common.NextPow2(uint32(regionID)+2))
			copy(grown, prev)
			prev = grown
		}
		for i := range prev[:regionID+1] {
			prev[i] = 0
		}
		sweeps := make([]sweepSpan, 0, w)
		rid := uint16(1)

		for x := int32(0); x < w; x++ {
			c := &chf.cells[x+z*w]
			for i := int32(c.index); i < int32(c.index+c.count); i++ {
				s := &chf.spans[i]
				if chf.areas[i] == nullArea || srcReg[i] == borderReg {
					continue
				}

				sid := uint16(0xffff)
				// -x neighbour continues the current sweep.
				if ai := chf.conIndex(x, z, 0, s); ai >= 0 &&
					srcReg[ai] != borderReg && chf.areas[ai] == chf.areas[i] {
					if srcReg[ai] != 0 {
						sid = srcReg[ai]
					}
				}
				if sid == 0xffff {
					sid = rid
					rid++
					sweeps = append(sweeps, sweepSpan{rid: sid})
				}

				// Sample the -z neighbour's region.
				if ai := chf.conIndex(x, z, 3, s); ai >= 0 &&
					srcReg[ai] != borderReg && chf.areas[ai] == chf.areas[i] {
					nr := chf.spans[ai].reg
					if nr > 0 && nr&borderReg == 0 {
						sw := &sweeps[sid-1]
						if sw.ns == 0 {
							sw.nei = nr
						}
						if sw.nei == nr {
							sw.ns++
							prev[nr]++
						} else {
							sw.nei = 0xffff
						}
					}
				}

				srcReg[i] = sid
			}
		}

		// Resolve sweep ids into region ids.
		for i := range sweeps {
			sw := &sweeps[i]
			if sw.nei != 0xffff && sw.nei != 0 && prev[sw.nei] == sw.ns {
				sw.id = sw.nei
			} else {
				sw.id = regionID
				regionID++
			}
		}
		for x := int32(0); x < w; x++ {
			c := &chf.cells[x+z*w]
			for i := c.index; i < c.index+c.count; i++ {
				if srcReg[i] > 0 && srcReg[i] != borderReg && int(srcReg[i]) <= len(sweeps) {
					srcReg[i] = sweeps[srcReg[i]-1].id
				}
				// Commit row results so the next row can sample them.
				chf.spans[i].reg = srcReg[i]
			}
		}
	}

	if layered {
		regionID = mergeLayerRegions(chf, srcReg, regionID, minArea)
	} else {
		regionID = mergeAndFilterRegions(chf, srcReg, regionID, minArea, mergeArea, true)
	}
	for i := int32(0); i < chf.spanCount; i++ {
		chf.spans[i].reg = srcReg[i]
	}
	chf.maxRegions = regionID
	return regionID > 1
}

// mergeLayerRegions coalesces the monotone sweeps into 2D layers. Two
// sweeps stacked in the same column overlap vertically and must never
// share an id, so the flood over the neighbour graph refuses to absorb
// any region that overlaps what the layer already covers.
func mergeLayerRegions(chf *compactHeightfield, srcReg []uint16, nreg uint16, minArea int32) uint16 {
	count := make([]int32, nreg)
	neighbours := make([][]uint16, nreg)
	floors := make([][]uint16, nreg)
	connectsBorder := make([]bool, nreg)

	addUnique := func(list []uint16, v uint16) []uint16 {
		for _, have := range list {
			if have == v {
				return list
			}
		}
		return append(list, v)
	}

	lregs := make([]uint16, 0, 32)
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			lregs = lregs[:0]
			for i := int32(c.index); i < int32(c.index+c.count); i++ {
				r := srcReg[i]
				if r == 0 || r >= nreg {
					continue
				}
				count[r]++
				lregs = append(lregs, r)

				s := &chf.spans[i]
				for dir := int32(0); dir < 4; dir++ {
					ai := chf.conIndex(x, z, dir, s)
					if ai < 0 {
						continue
					}
					nr := srcReg[ai]
					if nr&borderReg != 0 {
						connectsBorder[r] = true
						continue
					}
					if nr != 0 && nr != r && nr < nreg {
						neighbours[r] = addUnique(neighbours[r], nr)
					}
				}
			}

			// Every pair of regions stacked in this column overlaps.
			for i := 0; i < len(lregs)-1; i++ {
				for j := i + 1; j < len(lregs); j++ {
					if lregs[i] != lregs[j] {
						floors[lregs[i]] = addUnique(floors[lregs[i]], lregs[j])
						floors[lregs[j]] = addUnique(floors[lregs[j]], lregs[i])
					}
				}
			}
		}
	}

	// Flood connected, non-overlapping regions into shared layers.
	layer := make([]uint16, nreg)
	layerID := uint16(1)
	var stack []uint16
	for root := uint16(1); root < nreg; root++ {
		if layer[root] != 0 {
			continue
		}
		layer[root] = layerID
		rootFloors := floors[root]

		stack = append(stack[:0], root)
		for len(stack) > 0 {
			r := stack[0]
			stack = stack[1:]
			for _, nei := range neighbours[r] {
				if layer[nei] != 0 {
					continue
				}
				overlaps := false
				for _, f := range rootFloors {
					if f == nei {
						overlaps = true
						break
					}
				}
				if overlaps {
					continue
				}

				stack = append(stack, nei)
				layer[nei] = layerID
				for _, f := range floors[nei] {
					rootFloors = addUnique(rootFloors, f)
				}
				count[root] += count[nei]
				count[nei] = 0
				connectsBorder[root] = connectsBorder[root] || connectsBorder[nei]
			}
		}
		floors[root] = rootFloors
		layerID++
	}

	// Drop layers below the minimum area unless they touch the border.
	for r := uint16(1); r < nreg; r++ {
		if count[r] > 0 && count[r] < minArea && !connectsBorder[r] {
			id := layer[r]
			for j := uint16(1); j < nreg; j++ {
				if layer[j] == id {
					layer[j] = 0
				}
			}
		}
	}

	// Compact layer ids.
	next := uint16(1)
	final := make([]uint16, layerID+1)
	for r := uint16(1); r < nreg; r++ {
		if layer[r] == 0 {
			continue
		}
		if final[layer[r]] == 0 {
			final[layer[r]] = next
			next++
		}
	}
	for i := range srcReg {
		r := srcReg[i]
		if r == 0 || r&borderReg != 0 || r >= nreg {
			continue
		}
		srcReg[i] = final[layer[r]]
	}
	return next
}

// mergeAndFilterRegions prunes regions below the minimum area, optionally
// coalesces regions below the merge threshold into their largest
// neighbour, and compacts region ids.
func mergeAndFilterRegions(chf *compactHeightfield, srcReg []uint16, nreg uint16, minArea, mergeArea int32, merge bool) uint16 {
	count := make([]int32, nreg)
	neighbours := make([][]uint16, nreg)
	connectsBorder := make([]bool, nreg)
	addNei := func(r, nr uint16) {
		for _, have := range neighbours[r] {
			if have == nr {
				return
			}
		}
		neighbours[r] = append(neighbours[r], nr)
	}

	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := int32(c.index); i < int32(c.index+c.count); i++ {
				r := srcReg[i]
				if r == 0 || r&borderReg != 0 {
					continue
				}
				count[r]++
				s := &chf.spans[i]
				for dir := int32(0); dir < 4; dir++ {
					ai := chf.conIndex(x, z, dir, s)
					if ai < 0 {
						continue
					}
					nr := srcReg[ai]
					if nr == r {
						continue
					}
					if nr&borderReg != 0 {
						connectsBorder[r] = true
						continue
					}
					if nr == 0 {
						continue
					}
					addNei(r, nr)
				}
			}
		}
	}

	remap := make([]uint16, nreg)
	for r := uint16(1); r < nreg; r++ {
		remap[r] = r
	}
	resolve := func(r uint16) uint16 {
		for remap[r] != r {
			r = remap[r]
		}
		return r
	}

	// Drop isolated small regions.
	for r := uint16(1); r < nreg; r++ {
		if count[r] > 0 && count[r] < minArea && !connectsBorder[r] {
			remap[r] = 0
			count[r] = 0
		}
	}

	if merge && mergeArea > 0 {
		for changed := true; changed; {
			changed = false
			for r := uint16(1); r < nreg; r++ {
				rr := resolve(r)
				if rr == 0 || rr != r || count[r] == 0 || count[r] >= mergeArea {
					continue
				}
				var target uint16
				var targetCount int32 = -1
				for _, n := range neighbours[r] {
					nn := resolve(n)
					if nn == 0 || nn == r {
						continue
					}
					if count[nn] > targetCount || (count[nn] == targetCount && nn < target) {
						targetCount = count[nn]
						target = nn
					}
				}
				if target != 0 {
					remap[r] = target
					count[target] += count[r]
					count[r] = 0
					changed = true
				}
			}
		}
	}

	// Compact ids.
	next := uint16(1)
	final := make([]uint16, nreg)
	for r := uint16(1); r < nreg; r++ {
		rr := resolve(r)
		if rr == 0 {
			continue
		}
		if final[rr] == 0 {
			final[rr] = next
			next++
		}
		final[r] = final[rr]
	}
	for i := range srcReg {
		r := srcReg[i]
		if r == 0 || r&borderReg != 0 {
			continue
		}
		srcReg[i] = final[r]
	}
	return next
}
