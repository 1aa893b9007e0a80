// Package geometry holds the immutable triangle-soup input consumed by the
// navigation mesh builder. A Snapshot is handed off by the embedding host
// and never mutated afterwards.
package geometry

import (
	"github.com/go-gl/mathgl/mgl32"

	"navtile/common"
)

// TriFlags carries per-triangle walkability attributes from the host scene.
type TriFlags uint8

const (
	TriFlagNone TriFlags = 0
	// TriFlagForceUnwalkable marks a triangle unwalkable regardless of slope.
	TriFlagForceUnwalkable TriFlags = 1 << 0
	// TriFlagFlyThrough marks decoration geometry that is skipped entirely.
	TriFlagFlyThrough TriFlags = 1 << 1
	// TriFlagWater marks a liquid surface triangle.
	TriFlagWater TriFlags = 1 << 2
	// TriFlagHazard marks damaging ground (lava, slime).
	TriFlagHazard TriFlags = 1 << 3
)

// Snapshot is an immutable triangle list with per-triangle attributes.
// Verts is a flat x,y,z array; Tris holds three vertex indices per triangle.
type Snapshot struct {
	Verts []float32
	Tris  []int32
	Flags []TriFlags
}

// Instance is one transformed occurrence of a shared triangle list, the way
// hosts express doodads and map objects placed multiple times.
type Instance struct {
	Verts     []float32
	Tris      []int32
	Flags     []TriFlags
	Transform mgl32.Mat4
}

func (s *Snapshot) TriCount() int { return len(s.Tris) / 3 }

func (s *Snapshot) VertCount() int { return len(s.Verts) / 3 }

// TriFlagsAt returns the flags of triangle i, or TriFlagNone when the
// snapshot carries no flag array.
func (s *Snapshot) TriFlagsAt(i int) TriFlags {
	if i < len(s.Flags) {
		return s.Flags[i]
	}
	return TriFlagNone
}

// Bounds returns the AABB of the snapshot, or ok=false for empty geometry.
func (s *Snapshot) Bounds() (bmin, bmax common.Vec3, ok bool) {
	if len(s.Verts) < 3 {
		return bmin, bmax, false
	}
	mn := make([]float32, 3)
	mx := make([]float32, 3)
	common.CalcBounds(s.Verts, mn, mx)
	return common.ToVec3(mn), common.ToVec3(mx), true
}

// Merge flattens instances into a single snapshot, baking each instance
// transform into world-space vertices.
func Merge(instances ...Instance) *Snapshot {
	out := &Snapshot{}
	for _, inst := range instances {
		base := int32(out.VertCount())
		for i := 0; i < len(inst.Verts); i += 3 {
			v := inst.Transform.Mul4x1(mgl32.Vec4{inst.Verts[i], inst.Verts[i+1], inst.Verts[i+2], 1})
			out.Verts = append(out.Verts, v.X(), v.Y(), v.Z())
		}
		for _, idx := range inst.Tris {
			out.Tris = append(out.Tris, base+idx)
		}
		for i := 0; i < len(inst.Tris)/3; i++ {
			var f TriFlags
			if i < len(inst.Flags) {
				f = inst.Flags[i]
			}
			out.Flags = append(out.Flags, f)
		}
	}
	return out
}

// Provider hands an immutable snapshot of the active scene to the build
// worker. Implementations run on the host's privileged thread; the returned
// snapshot must not alias live host memory.
type Provider interface {
	// Key identifies the active environment; it is used verbatim as the
	// cache key. An empty key means no environment is loaded.
	Key() string
	// Snapshot captures the current scene geometry.
	Snapshot() (*Snapshot, error)
}
