package query

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"navtile/mesh"
)

func assertTrue(t *testing.T, value bool, msg string) {
	t.Helper()
	if !value {
		t.Errorf(msg)
	}
}

func TestDefaultFilterTraversesWalkable(t *testing.T) {
	f := NewFilter()
	ground := &mesh.Poly{Flags: mesh.FlagWalk, Area: mesh.AreaWalkable}
	assertTrue(t, f.PassFilter(ground), "walkable ground passes the default filter")

	blocked := &mesh.Poly{Flags: mesh.FlagWalk, Area: mesh.AreaUnwalkable}
	assertTrue(t, !f.PassFilter(blocked), "unwalkable area never passes")

	disabled := &mesh.Poly{Flags: mesh.FlagWalk | mesh.FlagDisabled, Area: mesh.AreaWalkable}
	assertTrue(t, !f.PassFilter(disabled), "disabled polygons never pass")
}

func TestStandardFilterPolicy(t *testing.T) {
	water := &mesh.Poly{Flags: mesh.FlagSwim, Area: mesh.AreaWater}
	hazard := &mesh.Poly{Flags: mesh.FlagWalk, Area: mesh.AreaHazard}

	strict := NewStandardFilter(false, false)
	assertTrue(t, !strict.PassFilter(water), "water is off limits without swimming")
	assertTrue(t, !strict.PassFilter(hazard), "hazards are off limits by default")

	permissive := NewStandardFilter(true, true)
	assertTrue(t, permissive.PassFilter(water), "water passes when swimming is allowed")
	assertTrue(t, permissive.PassFilter(hazard), "hazards pass on request")
	assertTrue(t, permissive.AreaCost[mesh.AreaWater] == 2.0, "water costs double")
	assertTrue(t, permissive.AreaCost[mesh.AreaHazard] == 10.0, "hazards are strongly discouraged")
	assertTrue(t, permissive.AreaCost[mesh.AreaJump] == 3.0, "jumps are discouraged")
	assertTrue(t, permissive.AreaCost[mesh.AreaTeleport] == 0.5, "teleports are preferred")
}

func TestFilterCostScalesDistance(t *testing.T) {
	f := NewFilter()
	f.AreaCost[mesh.AreaWater] = 2.0
	water := &mesh.Poly{Flags: mesh.FlagSwim, Area: mesh.AreaWater}

	a := mgl32.Vec3{0, 0, 0}
	b := mgl32.Vec3{3, 0, 4}
	got := f.Cost(a, b, water)
	assertTrue(t, math.Abs(float64(got-10)) < 1e-5, "cost is distance scaled by area cost")
}
