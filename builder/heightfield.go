package builder

import (
	"math"

	"navtile/common"
	"navtile/geometry"
	"navtile/mesh"
)

const (
	// maxSpanHeight is the voxel height ceiling of a span.
	maxSpanHeight = 0xffff

	// nullArea marks unwalkable voxels.
	nullArea uint8 = 0

	// walkableArea is the build-time area id for walkable voxels; polygons
	// may be re-tagged afterwards.
	walkableArea uint8 = mesh.AreaWalkable
)

type span struct {
	smin, smax uint16
	area       uint8
	next       *span
}

// heightfield is the sparse voxel field a tile is rasterized into.
type heightfield struct {
	width, height int32
	bmin, bmax    [3]float32
	cs, ch        float32
	spans         []*span
}

func newHeightfield(width, height int32, bmin, bmax []float32, cs, ch float32) *heightfield {
	hf := &heightfield{
		width:  width,
		height: height,
		cs:     cs,
		ch:     ch,
		spans:  make([]*span, width*height),
	}
	copy(hf.bmin[:], bmin)
	copy(hf.bmax[:], bmax)
	return hf
}

// addSpan inserts a span into column (x, z), merging overlapping spans.
// Area ids merge to the higher one when the span tops are within
// mergeThreshold voxels.
func (hf *heightfield) addSpan(x, z int32, smin, smax uint16, area uint8, mergeThreshold int32) {
	s := &span{smin: smin, smax: smax, area: area}

	idx := x + z*hf.width
	var prev *span
	cur := hf.spans[idx]
	for cur != nil {
		if cur.smin > s.smax {
			break
		}
		if cur.smax < s.smin {
			prev = cur
			cur = cur.next
			continue
		}
		// Overlap: merge.
		s.smin = min(s.smin, cur.smin)
		if cur.smax > s.smax {
			s.smax = cur.smax
		}
		if common.Abs(int32(s.smax)-int32(cur.smax)) <= mergeThreshold {
			s.area = max(s.area, cur.area)
		}
		next := cur.next
		if prev != nil {
			prev.next = next
		} else {
			hf.spans[idx] = next
		}
		cur = next
	}
	if prev != nil {
		s.next = prev.next
		prev.next = s
	} else {
		s.next = hf.spans[idx]
		hf.spans[idx] = s
	}
}

// markWalkableTriangles tags each triangle's area: fly-through geometry is
// dropped, force-flagged triangles are unwalkable, and otherwise the slope
// decides. The snapshot's water and hazard flags re-tag the walkable area.
func markWalkableTriangles(snap *geometry.Snapshot, maxSlopeDeg float32, areas []uint8) {
	walkableThr := float32(math.Cos(float64(maxSlopeDeg) / 180.0 * math.Pi))
	norm := make([]float32, 3)
	for i := 0; i < snap.TriCount(); i++ {
		flags := snap.TriFlagsAt(i)
		if flags&geometry.TriFlagFlyThrough != 0 {
			areas[i] = nullArea
			continue
		}
		if flags&geometry.TriFlagForceUnwalkable != 0 {
			areas[i] = nullArea
			continue
		}
		v0 := common.GetVert(snap.Verts, snap.Tris[i*3])
		v1 := common.GetVert(snap.Verts, snap.Tris[i*3+1])
		v2 := common.GetVert(snap.Verts, snap.Tris[i*3+2])
		calcTriNormal(v0, v1, v2, norm)
		if norm[1] <= walkableThr {
			areas[i] = nullArea
			continue
		}
		switch {
		case flags&geometry.TriFlagWater != 0:
			areas[i] = mesh.AreaWater
		case flags&geometry.TriFlagHazard != 0:
			areas[i] = mesh.AreaHazard
		default:
			areas[i] = walkableArea
		}
	}
}

func calcTriNormal(v0, v1, v2, n []float32) {
	e0 := make([]float32, 3)
	e1 := make([]float32, 3)
	common.Vsub(e0, v1, v0)
	common.Vsub(e1, v2, v0)
	common.Vcross(n, e0, e1)
	common.Vnormalize(n)
}

// rasterizeTriangles voxelizes every triangle that can overlap the
// heightfield bounds. Triangles with a null area are still rasterized so
// they occlude walkable space below them.
func rasterizeTriangles(snap *geometry.Snapshot, areas []uint8, hf *heightfield, mergeThreshold int32) {
	ics := 1.0 / hf.cs
	ich := 1.0 / hf.ch
	for i := 0; i < snap.TriCount(); i++ {
		if snap.TriFlagsAt(i)&geometry.TriFlagFlyThrough != 0 {
			continue
		}
		v0 := common.GetVert(snap.Verts, snap.Tris[i*3])
		v1 := common.GetVert(snap.Verts, snap.Tris[i*3+1])
		v2 := common.GetVert(snap.Verts, snap.Tris[i*3+2])
		rasterizeTri(v0, v1, v2, areas[i], hf, ics, ich, mergeThreshold)
	}
}

func rasterizeTri(v0, v1, v2 []float32, area uint8, hf *heightfield, ics, ich float32, mergeThreshold int32) {
	triMin := make([]float32, 3)
	triMax := make([]float32, 3)
	common.Vcopy(triMin, v0)
	common.Vcopy(triMax, v0)
	common.Vmin(triMin, v1)
	common.Vmin(triMin, v2)
	common.Vmax(triMax, v1)
	common.Vmax(triMax, v2)
	if !common.OverlapBounds(triMin, triMax, hf.bmin[:], hf.bmax[:]) {
		return
	}

	w := hf.width
	h := hf.height
	by := hf.bmax[1] - hf.bmin[1]

	z0 := int32((triMin[2] - hf.bmin[2]) * ics)
	z1 := int32((triMax[2] - hf.bmin[2]) * ics)
	// -1 keeps the first row clipping the polygon at the tile edge.
	z0 = common.Clamp(z0, -1, h-1)
	z1 = common.Clamp(z1, 0, h-1)

	// Clip the triangle into all grid cells it touches.
	buf := make([]float32, 7*3*4)
	in := buf[:7*3]
	inRow := buf[7*3 : 7*3*2]
	p1 := buf[7*3*2 : 7*3*3]
	p2 := buf[7*3*3:]

	common.Vcopy(in, v0)
	common.Vcopy(in[3:], v1)
	common.Vcopy(in[6:], v2)
	nvIn := int32(3)

	for z := z0; z <= z1; z++ {
		cellZ := hf.bmin[2] + float32(z)*hf.cs
		var nvRow int32
		dividePoly(in, nvIn, inRow, &nvRow, p1, &nvIn, cellZ+hf.cs, 2)
		in, p1 = p1, in
		if nvRow < 3 || z < 0 {
			continue
		}

		minX := inRow[0]
		maxX := inRow[0]
		for v := int32(1); v < nvRow; v++ {
			minX = min(minX, inRow[v*3])
			maxX = max(maxX, inRow[v*3])
		}
		x0 := common.Clamp(int32((minX-hf.bmin[0])*ics), -1, w-1)
		x1 := int32((maxX - hf.bmin[0]) * ics)
		if x1 < 0 || x0 >= w {
			continue
		}
		x1 = common.Clamp(x1, 0, w-1)

		nv2 := nvRow
		for x := x0; x <= x1; x++ {
			cellX := hf.bmin[0] + float32(x)*hf.cs
			var nv int32
			dividePoly(inRow, nv2, p1, &nv, p2, &nv2, cellX+hf.cs, 0)
			inRow, p2 = p2, inRow
			if nv < 3 || x < 0 {
				continue
			}

			smin := p1[1]
			smax := p1[1]
			for v := int32(1); v < nv; v++ {
				smin = min(smin, p1[v*3+1])
				smax = max(smax, p1[v*3+1])
			}
			smin -= hf.bmin[1]
			smax -= hf.bmin[1]
			if smax < 0 || smin > by {
				continue
			}
			smin = max(smin, 0)
			smax = min(smax, by)

			cellMin := common.Clamp(uint16(math.Floor(float64(smin*ich))), 0, maxSpanHeight-1)
			cellMax := common.Clamp(uint16(math.Ceil(float64(smax*ich))), cellMin+1, maxSpanHeight)
			hf.addSpan(x, z, cellMin, cellMax, area, mergeThreshold)
		}
	}
}

// dividePoly splits a convex polygon by the plane axis=axisOffset; out1
// receives the part below the offset, out2 the rest.
func dividePoly(in []float32, nin int32, out1 []float32, nout1 *int32, out2 []float32, nout2 *int32, axisOffset float32, axis int32) {
	var delta [12]float32
	for i := int32(0); i < nin; i++ {
		delta[i] = axisOffset - in[i*3+axis]
	}

	var n1, n2 int32
	b := nin - 1
	for a := int32(0); a < nin; a++ {
		sameSide := (delta[a] >= 0) == (delta[b] >= 0)
		if !sameSide {
			s := delta[b] / (delta[b] - delta[a])
			out1[n1*3+0] = in[b*3+0] + (in[a*3+0]-in[b*3+0])*s
			out1[n1*3+1] = in[b*3+1] + (in[a*3+1]-in[b*3+1])*s
			out1[n1*3+2] = in[b*3+2] + (in[a*3+2]-in[b*3+2])*s
			common.Vcopy(out2[n2*3:n2*3+3], out1[n1*3:n1*3+3])
			n1++
			n2++
			if delta[a] > 0 {
				common.Vcopy(out1[n1*3:n1*3+3], in[a*3:a*3+3])
				n1++
			} else if delta[a] < 0 {
				common.Vcopy(out2[n2*3:n2*3+3], in[a*3:a*3+3])
				n2++
			}
		} else {
			if delta[a] >= 0 {
				common.Vcopy(out1[n1*3:n1*3+3], in[a*3:a*3+3])
				n1++
				if delta[a] != 0 {
					b = a
					continue
				}
			}
			common.Vcopy(out2[n2*3:n2*3+3], in[a*3:a*3+3])
			n2++
		}
		b = a
	}
	*nout1 = n1
	*nout2 = n2
}
