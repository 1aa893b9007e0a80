package common

import (
	"cmp"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Vec3 = mgl32.Vec3

// Slice returns v as a flat [x, y, z] slice.
func Slice(v Vec3) []float32 { return []float32{v.X(), v.Y(), v.Z()} }

// ToVec3 builds a Vec3 from the first three components of v.
func ToVec3(v []float32) Vec3 { return Vec3{v[0], v[1], v[2]} }

type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func Sqr[T Number](a T) T { return a * a }

func Abs[T Number](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

func Clamp[T cmp.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// GetVert returns the i-th 3-component vertex of a flat vertex array.
func GetVert[T Number, I Number](verts []T, i I) []T {
	return verts[int(i)*3 : int(i)*3+3]
}

func Vcopy(dst, src []float32) {
	dst[0], dst[1], dst[2] = src[0], src[1], src[2]
}

func Vset(dst []float32, x, y, z float32) {
	dst[0], dst[1], dst[2] = x, y, z
}

func Vadd(dst, a, b []float32) {
	dst[0] = a[0] + b[0]
	dst[1] = a[1] + b[1]
	dst[2] = a[2] + b[2]
}

func Vsub(dst, a, b []float32) {
	dst[0] = a[0] - b[0]
	dst[1] = a[1] - b[1]
	dst[2] = a[2] - b[2]
}

// Vmad computes dst = a + b*s.
func Vmad(dst, a, b []float32, s float32) {
	dst[0] = a[0] + b[0]*s
	dst[1] = a[1] + b[1]*s
	dst[2] = a[2] + b[2]*s
}

func Vscale(dst, v []float32, s float32) {
	dst[0] = v[0] * s
	dst[1] = v[1] * s
	dst[2] = v[2] * s
}

func Vmin(mn, v []float32) {
	mn[0] = min(mn[0], v[0])
	mn[1] = min(mn[1], v[1])
	mn[2] = min(mn[2], v[2])
}

func Vmax(mx, v []float32) {
	mx[0] = max(mx[0], v[0])
	mx[1] = max(mx[1], v[1])
	mx[2] = max(mx[2], v[2])
}

func Vlerp(dst, a, b []float32, t float32) {
	dst[0] = a[0] + (b[0]-a[0])*t
	dst[1] = a[1] + (b[1]-a[1])*t
	dst[2] = a[2] + (b[2]-a[2])*t
}

func Vdot(a, b []float32) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

func Vcross(dst, a, b []float32) {
	dst[0] = a[1]*b[2] - a[2]*b[1]
	dst[1] = a[2]*b[0] - a[0]*b[2]
	dst[2] = a[0]*b[1] - a[1]*b[0]
}

func Vlen(v []float32) float32 {
	return float32(math.Sqrt(float64(Vdot(v, v))))
}

func Vnormalize(v []float32) {
	d := Vlen(v)
	if d == 0 {
		return
	}
	Vscale(v, v, 1.0/d)
}

func Vdist(a, b []float32) float32 {
	return float32(math.Sqrt(float64(VdistSqr(a, b))))
}

func VdistSqr(a, b []float32) float32 {
	dx := b[0] - a[0]
	dy := b[1] - a[1]
	dz := b[2] - a[2]
	return dx*dx + dy*dy + dz*dz
}

func Vdist2D(a, b []float32) float32 {
	return float32(math.Sqrt(float64(Vdist2DSqr(a, b))))
}

func Vdist2DSqr(a, b []float32) float32 {
	dx := b[0] - a[0]
	dz := b[2] - a[2]
	return dx*dx + dz*dz
}

func Vequal(a, b []float32) bool {
	thr := Sqr(float32(1.0 / 16384.0))
	return VdistSqr(a, b) < thr
}

// Vperp2D returns the xz-plane perpendicular dot product of u and v.
func Vperp2D(u, v []float32) float32 {
	return u[2]*v[0] - u[0]*v[2]
}

// TriArea2D returns twice the signed xz-plane area of triangle abc.
func TriArea2D(a, b, c []float32) float32 {
	abx := b[0] - a[0]
	abz := b[2] - a[2]
	acx := c[0] - a[0]
	acz := c[2] - a[2]
	return acx*abz - abx*acz
}

// OverlapBounds reports whether the AABBs [amin,amax] and [bmin,bmax] overlap.
func OverlapBounds(amin, amax, bmin, bmax []float32) bool {
	return amin[0] <= bmax[0] && amax[0] >= bmin[0] &&
		amin[1] <= bmax[1] && amax[1] >= bmin[1] &&
		amin[2] <= bmax[2] && amax[2] >= bmin[2]
}

// OverlapQuantBounds is OverlapBounds over quantized uint16 boxes.
func OverlapQuantBounds(amin, amax, bmin, bmax []uint16) bool {
	return amin[0] <= bmax[0] && amax[0] >= bmin[0] &&
		amin[1] <= bmax[1] && amax[1] >= bmin[1] &&
		amin[2] <= bmax[2] && amax[2] >= bmin[2]
}

// CalcBounds computes the AABB of a flat vertex array.
func CalcBounds(verts []float32, bmin, bmax []float32) {
	copy(bmin, verts[:3])
	copy(bmax, verts[:3])
	for i := 1; i < len(verts)/3; i++ {
		v := GetVert(verts, i)
		Vmin(bmin, v)
		Vmax(bmax, v)
	}
}

// Grid neighbour direction helpers; dir is 0..3 for -x, +z, +x, -z.

func GetDirOffsetX(dir int32) int32 {
	offset := [4]int32{-1, 0, 1, 0}
	return offset[dir&3]
}

func GetDirOffsetZ(dir int32) int32 {
	offset := [4]int32{0, 1, 0, -1}
	return offset[dir&3]
}

func GetDirForOffset(offsetX, offsetZ int32) int32 {
	dirs := [5]int32{3, 0, -1, 2, 1}
	return dirs[((offsetZ+1)<<1)+offsetX]
}

func NextPow2(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

func Ilog2(v uint32) uint32 {
	var r, shift uint32
	if v > 0xffff {
		r = 1 << 4
	}
	v >>= r
	if v > 0xff {
		shift = 1 << 3
	}
	v >>= shift
	r |= shift
	if v > 0xf {
		shift = 1 << 2
	} else {
		shift = 0
	}
	v >>= shift
	r |= shift
	if v > 0x3 {
		shift = 1 << 1
	} else {
		shift = 0
	}
	v >>= shift
	r |= shift
	r |= v >> 1
	return r
}

// DistancePtSegSqr2D returns the squared xz distance from pt to segment pq
// and the parameter t of the closest point on the segment.
func DistancePtSegSqr2D(pt, p, q []float32) (dist, t float32) {
	pqx := q[0] - p[0]
	pqz := q[2] - p[2]
	dx := pt[0] - p[0]
	dz := pt[2] - p[2]
	d := pqx*pqx + pqz*pqz
	t = pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = Clamp(t, 0, 1)
	dx = p[0] + t*pqx - pt[0]
	dz = p[2] + t*pqz - pt[2]
	return dx*dx + dz*dz, t
}

// ClosestHeightPointTriangle projects p onto triangle abc along y and
// returns the interpolated height, or false if p is outside the triangle.
func ClosestHeightPointTriangle(p, a, b, c []float32) (float32, bool) {
	const eps = 1e-6
	v0 := []float32{c[0] - a[0], c[1] - a[1], c[2] - a[2]}
	v1 := []float32{b[0] - a[0], b[1] - a[1], b[2] - a[2]}
	v2 := []float32{p[0] - a[0], p[1] - a[1], p[2] - a[2]}

	dot00 := v0[0]*v0[0] + v0[2]*v0[2]
	dot01 := v0[0]*v1[0] + v0[2]*v1[2]
	dot02 := v0[0]*v2[0] + v0[2]*v2[2]
	dot11 := v1[0]*v1[0] + v1[2]*v1[2]
	dot12 := v1[0]*v2[0] + v1[2]*v2[2]

	denom := dot00*dot11 - dot01*dot01
	if Abs(denom) < eps {
		return 0, false
	}
	u := (dot11*dot02 - dot01*dot12) / denom
	v := (dot00*dot12 - dot01*dot02) / denom

	if u >= -eps && v >= -eps && u+v <= 1+eps {
		return a[1] + v0[1]*u + v1[1]*v, true
	}
	return 0, false
}

// PointInPoly2D reports whether pt lies inside the xz projection of the
// polygon given as a flat vertex array.
func PointInPoly2D(pt []float32, verts []float32, nverts int) bool {
	c := false
	j := nverts - 1
	for i := 0; i < nverts; i++ {
		vi := GetVert(verts, i)
		vj := GetVert(verts, j)
		if (vi[2] > pt[2]) != (vj[2] > pt[2]) &&
			pt[0] < (vj[0]-vi[0])*(pt[2]-vi[2])/(vj[2]-vi[2])+vi[0] {
			c = !c
		}
		j = i
	}
	return c
}

// IntersectSegSeg2D intersects segments ap-aq and bp-bq in the xz plane.
func IntersectSegSeg2D(ap, aq, bp, bq []float32) (s, t float32, hit bool) {
	u := []float32{aq[0] - ap[0], aq[1] - ap[1], aq[2] - ap[2]}
	v := []float32{bq[0] - bp[0], bq[1] - bp[1], bq[2] - bp[2]}
	w := []float32{ap[0] - bp[0], ap[1] - bp[1], ap[2] - bp[2]}
	d := Vperp2D(u, v)
	if Abs(d) < 1e-6 {
		return 0, 0, false
	}
	s = Vperp2D(v, w) / d
	t = Vperp2D(u, w) / d
	return s, t, true
}
