package builder

import (
	"navtile/common"
)

// filterLowHangingWalkableObstacles re-tags unwalkable spans sitting less
// than walkableClimb above a walkable span, so curbs and low debris stay
// traversable.
func filterLowHangingWalkableObstacles(hf *heightfield, walkableClimb int32) {
	for z := int32(0); z < hf.height; z++ {
		for x := int32(0); x < hf.width; x++ {
			var prev *span
			prevWalkable := false
			prevArea := nullArea
			for s := hf.spans[x+z*hf.width]; s != nil; s = s.next {
				walkable := s.area != nullArea
				// Previous span floor is climbable from this one.
				if !walkable && prevWalkable &&
					common.Abs(int32(s.smax)-int32(prev.smax)) <= walkableClimb {
					s.area = prevArea
				}
				// Copy the original walkability so multiple stacked
				// obstacles do not chain.
				prevWalkable = walkable
				prevArea = s.area
				prev = s
			}
		}
	}
}

// filterLedgeSpans removes walkable spans at ledges: spans whose drop to a
// neighbour exceeds walkableClimb, or whose neighbour floors differ by
// more than walkableClimb between themselves.
func filterLedgeSpans(hf *heightfield, walkableHeight, walkableClimb int32) {
	for z := int32(0); z < hf.height; z++ {
		for x := int32(0); x < hf.width; x++ {
			for s := hf.spans[x+z*hf.width]; s != nil; s = s.next {
				if s.area == nullArea {
					continue
				}
				bot := int32(s.smax)
				top := int32(maxSpanHeight)
				if s.next != nil {
					top = int32(s.next.smin)
				}

				minNeiDrop := int32(maxSpanHeight)
				neiMinFloor := int32(maxSpanHeight)
				neiMaxFloor := int32(-maxSpanHeight)
				for dir := int32(0); dir < 4; dir++ {
					nx := x + common.GetDirOffsetX(dir)
					nz := z + common.GetDirOffsetZ(dir)
					if nx < 0 || nz < 0 || nx >= hf.width || nz >= hf.height {
						minNeiDrop = min(minNeiDrop, -walkableClimb-1)
						continue
					}

					// Gap from this floor to the first neighbour ceiling.
					neiBot := int32(-walkableClimb - 1)
					neiTop := int32(maxSpanHeight)
					ns := hf.spans[nx+nz*hf.width]
					if ns != nil {
						neiTop = int32(ns.smin)
					}
					if min(top, neiTop)-bot > walkableHeight {
						minNeiDrop = min(minNeiDrop, neiBot-bot)
					}
					for ; ns != nil; ns = ns.next {
						neiBot = int32(ns.smax)
						neiTop = int32(maxSpanHeight)
						if ns.next != nil {
							neiTop = int32(ns.next.smin)
						}
						if min(top, neiTop)-max(bot, neiBot) > walkableHeight {
							minNeiDrop = min(minNeiDrop, neiBot-bot)
							if common.Abs(neiBot-bot) <= walkableClimb {
								neiMinFloor = min(neiMinFloor, neiBot)
								neiMaxFloor = max(neiMaxFloor, neiBot)
							}
						}
					}
				}

				if minNeiDrop < -walkableClimb {
					s.area = nullArea
				} else if neiMaxFloor-neiMinFloor > walkableClimb &&
					neiMinFloor != int32(maxSpanHeight) {
					s.area = nullArea
				}
			}
		}
	}
}

// filterWalkableLowHeightSpans removes walkable spans whose clearance to
// the span above is below the agent height.
func filterWalkableLowHeightSpans(hf *heightfield, walkableHeight int32) {
	for z := int32(0); z < hf.height; z++ {
		for x := int32(0); x < hf.width; x++ {
			for s := hf.spans[x+z*hf.width]; s != nil; s = s.next {
				if s.area == nullArea || s.next == nil {
					continue
				}
				if int32(s.next.smin)-int32(s.smax) <= walkableHeight {
					s.area = nullArea
				}
			}
		}
	}
}
