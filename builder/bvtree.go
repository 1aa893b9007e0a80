package builder

import (
	"math"
	"sort"

	"navtile/mesh"
)

type bvItem struct {
	bmin [3]uint16
	bmax [3]uint16
	i    int32
}

// buildBVTree builds the quantized bounding-volume tree over the mesh
// polygons. Bounds are in cell units relative to the tile minimum; the
// matching query-side scale is 1/cs.
func buildBVTree(pm *polyMesh) []mesh.BVNode {
	if pm.npolys == 0 {
		return nil
	}
	nvp := pm.nvp
	items := make([]bvItem, pm.npolys)
	for i := int32(0); i < pm.npolys; i++ {
		it := &items[i]
		it.i = i
		p := pm.polys[i*nvp*2:]
		it.bmin = [3]uint16{pm.verts[p[0]*3], pm.verts[p[0]*3+1], pm.verts[p[0]*3+2]}
		it.bmax = it.bmin
		for j := int32(1); j < nvp; j++ {
			if p[j] == meshNullIdx {
				break
			}
			v := pm.verts[p[j]*3:]
			it.bmin[0] = min(it.bmin[0], v[0])
			it.bmin[1] = min(it.bmin[1], v[1])
			it.bmin[2] = min(it.bmin[2], v[2])
			it.bmax[0] = max(it.bmax[0], v[0])
			it.bmax[1] = max(it.bmax[1], v[1])
			it.bmax[2] = max(it.bmax[2], v[2])
		}
		// Height is quantized with the horizontal cell size.
		r := pm.ch / pm.cs
		it.bmin[1] = uint16(math.Floor(float64(float32(it.bmin[1]) * r)))
		it.bmax[1] = uint16(math.Ceil(float64(float32(it.bmax[1]) * r)))
	}

	nodes := make([]mesh.BVNode, 0, pm.npolys*2)
	return subdivide(items, &nodes)
}

func subdivide(items []bvItem, nodes *[]mesh.BVNode) []mesh.BVNode {
	var rec func(imin, imax int32)
	rec = func(imin, imax int32) {
		inum := imax - imin
		icur := int32(len(*nodes))
		*nodes = append(*nodes, mesh.BVNode{})
		node := icur

		if inum == 1 {
			(*nodes)[node].BMin = items[imin].bmin
			(*nodes)[node].BMax = items[imin].bmax
			(*nodes)[node].I = items[imin].i
			return
		}

		bmin, bmax := calcExtends(items[imin:imax])
		(*nodes)[node].BMin = bmin
		(*nodes)[node].BMax = bmax

		axis := longestAxis(
			int32(bmax[0])-int32(bmin[0]),
			int32(bmax[1])-int32(bmin[1]),
			int32(bmax[2])-int32(bmin[2]))
		sub := items[imin:imax]
		sort.Slice(sub, func(a, b int) bool {
			if sub[a].bmin[axis] != sub[b].bmin[axis] {
				return sub[a].bmin[axis] < sub[b].bmin[axis]
			}
			return sub[a].i < sub[b].i
		})

		isplit := imin + inum/2
		rec(imin, isplit)
		rec(isplit, imax)

		iescape := int32(len(*nodes)) - icur
		(*nodes)[node].I = -iescape
	}
	rec(0, int32(len(items)))
	return *nodes
}

func calcExtends(items []bvItem) (bmin, bmax [3]uint16) {
	bmin = items[0].bmin
	bmax = items[0].bmax
	for i := 1; i < len(items); i++ {
		it := &items[i]
		bmin[0] = min(bmin[0], it.bmin[0])
		bmin[1] = min(bmin[1], it.bmin[1])
		bmin[2] = min(bmin[2], it.bmin[2])
		bmax[0] = max(bmax[0], it.bmax[0])
		bmax[1] = max(bmax[1], it.bmax[1])
		bmax[2] = max(bmax[2], it.bmax[2])
	}
	return
}

func longestAxis(x, y, z int32) int {
	axis := 0
	maxVal := x
	if y > maxVal {
		axis = 1
		maxVal = y
	}
	if z > maxVal {
		axis = 2
	}
	return axis
}
