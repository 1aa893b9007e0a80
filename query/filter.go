// Package query answers spatial and pathfinding queries against a built
// navigation mesh under cost- and flag-based traversal rules.
package query

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"navtile/mesh"
)

// Filter weighs and gates polygon traversal: a fixed-size per-area cost
// table plus include/exclude capability masks. An area with cost +Inf is
// never traversable.
type Filter struct {
	AreaCost     [mesh.MaxAreas]float32
	IncludeFlags uint16
	ExcludeFlags uint16
}

// NewFilter returns a filter that traverses every walkable area at cost 1.
func NewFilter() *Filter {
	f := &Filter{
		IncludeFlags: mesh.FlagAll,
		ExcludeFlags: mesh.FlagDisabled,
	}
	for i := range f.AreaCost {
		f.AreaCost[i] = 1.0
	}
	f.AreaCost[mesh.AreaUnwalkable] = float32(math.Inf(1))
	return f
}

// NewStandardFilter applies the default traversal policy: water costs
// double when swimming is allowed and is off limits otherwise, jumps are
// discouraged, teleports preferred, hazards tolerated only on request.
func NewStandardFilter(allowSwim, allowHazard bool) *Filter {
	inf := float32(math.Inf(1))
	f := NewFilter()
	f.AreaCost[mesh.AreaWater] = 2.0
	if !allowSwim {
		f.AreaCost[mesh.AreaWater] = inf
	}
	f.AreaCost[mesh.AreaJump] = 3.0
	f.AreaCost[mesh.AreaTeleport] = 0.5
	f.AreaCost[mesh.AreaHazard] = 10.0
	if !allowHazard {
		f.AreaCost[mesh.AreaHazard] = inf
	}
	f.IncludeFlags = mesh.FlagWalk | mesh.FlagSwim
	if !allowSwim {
		f.IncludeFlags = mesh.FlagWalk
	}
	return f
}

// PassFilter reports whether a polygon may be traversed at all.
func (f *Filter) PassFilter(p *mesh.Poly) bool {
	if p.Flags&f.IncludeFlags == 0 {
		return false
	}
	if p.Flags&f.ExcludeFlags != 0 {
		return false
	}
	return !math.IsInf(float64(f.AreaCost[p.Area]), 1)
}

// Cost returns the traversal cost of moving from a to b across the
// polygon: Euclidean distance scaled by the polygon's area cost.
func (f *Filter) Cost(a, b mgl32.Vec3, p *mesh.Poly) float32 {
	return a.Sub(b).Len() * f.AreaCost[p.Area]
}
