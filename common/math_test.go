package common

import (
	"math"
	"testing"
)

func assertTrue(t *testing.T, value bool, msg string) {
	t.Helper()
	if !value {
		t.Errorf(msg)
	}
}

func TestDirOffsets(t *testing.T) {
	for dir := int32(0); dir < 4; dir++ {
		x := GetDirOffsetX(dir)
		z := GetDirOffsetZ(dir)
		assertTrue(t, Abs(x)+Abs(z) == 1, "direction offsets are unit steps")
		assertTrue(t, GetDirForOffset(x, z) == dir, "offset and direction round trip")
	}
}

func TestNextPow2AndIlog2(t *testing.T) {
	cases := [][2]uint32{{1, 1}, {2, 2}, {3, 4}, {5, 8}, {1023, 1024}, {1024, 1024}}
	for _, c := range cases {
		assertTrue(t, NextPow2(c[0]) == c[1], "next power of two")
	}
	assertTrue(t, Ilog2(1) == 0, "log2 of 1")
	assertTrue(t, Ilog2(2) == 1, "log2 of 2")
	assertTrue(t, Ilog2(1024) == 10, "log2 of 1024")
	assertTrue(t, Ilog2(1025) == 10, "log2 truncates")
}

func TestTriArea2DSign(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 0, 1}
	cw := TriArea2D(a, b, c)
	ccw := TriArea2D(a, c, b)
	assertTrue(t, cw == -ccw, "swapping two vertices flips the sign")
	assertTrue(t, Abs(cw) == 1, "twice the unit half-triangle area")
}

func TestDistancePtSegSqr2D(t *testing.T) {
	p := []float32{0, 0, 0}
	q := []float32{10, 0, 0}

	d, tt := DistancePtSegSqr2D([]float32{5, 7, 3}, p, q)
	assertTrue(t, d == 9, "distance ignores y")
	assertTrue(t, tt == 0.5, "closest point at the segment middle")

	d, tt = DistancePtSegSqr2D([]float32{-5, 0, 0}, p, q)
	assertTrue(t, d == 25, "points beyond the start clamp to it")
	assertTrue(t, tt == 0, "parameter clamps to zero")
}

func TestClosestHeightPointTriangle(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{10, 10, 0}
	c := []float32{0, 0, 10}

	h, ok := ClosestHeightPointTriangle([]float32{5, 99, 2}, a, b, c)
	assertTrue(t, ok, "the point projects onto the triangle")
	assertTrue(t, math.Abs(float64(h-5)) < 1e-4, "height interpolates across the slope")

	_, ok = ClosestHeightPointTriangle([]float32{20, 0, 20}, a, b, c)
	assertTrue(t, !ok, "points outside the triangle find no height")
}

func TestPointInPoly2D(t *testing.T) {
	square := []float32{
		0, 0, 0,
		10, 0, 0,
		10, 0, 10,
		0, 0, 10,
	}
	assertTrue(t, PointInPoly2D([]float32{5, 3, 5}, square, 4), "interior point is inside")
	assertTrue(t, !PointInPoly2D([]float32{15, 0, 5}, square, 4), "exterior point is outside")
}

func TestIntersectSegSeg2D(t *testing.T) {
	s, tt, hit := IntersectSegSeg2D(
		[]float32{0, 0, 0}, []float32{10, 0, 0},
		[]float32{5, 0, -5}, []float32{5, 0, 5})
	assertTrue(t, hit, "crossing segments intersect")
	assertTrue(t, s == 0.5 && tt == 0.5, "both segments cross at their middle")

	_, _, hit = IntersectSegSeg2D(
		[]float32{0, 0, 0}, []float32{10, 0, 0},
		[]float32{0, 0, 1}, []float32{10, 0, 1})
	assertTrue(t, !hit, "parallel segments never intersect")
}
