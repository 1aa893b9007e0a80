package builder

import (
	"testing"

	"navtile/geometry"
)

// stackedHeightfield voxelizes two full-size floors on top of each
// other and runs the pipeline up to the point where regions form.
func stackedHeightfield(t *testing.T, s Settings) *compactHeightfield {
	t.Helper()
	snap := &geometry.Snapshot{}
	appendQuad(snap, -5, -5, 15, 15, 0)
	appendQuad(snap, -5, -5, 15, 15, 3)

	cs := s.CellSize
	borderSize := s.borderSizeVx()
	pad := float32(borderSize) * cs
	ts := s.TileWorldSize()
	pbmin := []float32{-pad, 0, -pad}
	pbmax := []float32{ts + pad, 3, ts + pad}
	width := s.TileSize + borderSize*2

	hf := newHeightfield(width, width, pbmin, pbmax, cs, s.CellHeight)
	areas := make([]uint8, snap.TriCount())
	markWalkableTriangles(snap, s.AgentMaxSlope, areas)
	rasterizeTriangles(snap, areas, hf, s.walkableClimbVx())

	chf := buildCompactHeightfield(hf, s.walkableHeightVx(), s.walkableClimbVx())
	chf.borderSize = borderSize
	erodeWalkableArea(chf, s.walkableRadiusVx())
	return chf
}

func TestLayerPartitionSeparatesStackedFloors(t *testing.T) {
	s := testSettings()
	chf := stackedHeightfield(t, s)

	assertTrue(t, buildRegions(chf, PartitionLayers, chf.borderSize, s.minRegionArea(), 0),
		"stacked floors partition into regions")

	// Spans stacked in one column belong to vertically separated
	// walkable layers and must never share a region.
	for z := int32(0); z < chf.height; z++ {
		for x := int32(0); x < chf.width; x++ {
			c := &chf.cells[x+z*chf.width]
			for i := int32(c.index); i < int32(c.index+c.count); i++ {
				ri := chf.spans[i].reg
				if ri == 0 || ri&borderReg != 0 {
					continue
				}
				for j := i + 1; j < int32(c.index+c.count); j++ {
					rj := chf.spans[j].reg
					if rj == 0 || rj&borderReg != 0 {
						continue
					}
					assertTrue(t, ri != rj, "stacked spans land in separate regions")
				}
			}
		}
	}
}

func TestLayerPartitionCoalescesSweeps(t *testing.T) {
	s := testSettings()
	chf := stackedHeightfield(t, s)

	assertTrue(t, buildRegions(chf, PartitionLayers, chf.borderSize, s.minRegionArea(), 0),
		"stacked floors partition into regions")

	// Each floor is one connected layer, so the row sweeps must merge
	// into a handful of regions instead of one per row.
	assertTrue(t, chf.maxRegions >= 3, "both floors keep a region of their own")
	assertTrue(t, chf.maxRegions <= 6, "sweeps within one layer coalesce")
}
