package mesh

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// OffMeshConnectionSet collects manually declared and heuristically
// detected connections before they are partitioned into tiles at bake
// time. Safe for concurrent adds.
type OffMeshConnectionSet struct {
	mu   sync.Mutex
	cons []OffMeshConnection
}

func NewOffMeshConnectionSet() *OffMeshConnectionSet {
	return &OffMeshConnectionSet{}
}

func (s *OffMeshConnectionSet) Add(con OffMeshConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cons = append(s.cons, con)
}

func (s *OffMeshConnectionSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cons)
}

// All returns a copy of the current connection list.
func (s *OffMeshConnectionSet) All() []OffMeshConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OffMeshConnection, len(s.cons))
	copy(out, s.cons)
	return out
}

// ForTile returns the connections attributed to a tile: those with either
// endpoint, inflated by the connection radius, inside the padded bounds.
func (s *OffMeshConnectionSet) ForTile(bmin, bmax mgl32.Vec3) []OffMeshConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OffMeshConnection
	for _, con := range s.cons {
		if pointInBounds(con.Start, con.Radius, bmin, bmax) ||
			pointInBounds(con.End, con.Radius, bmin, bmax) {
			out = append(out, con)
		}
	}
	return out
}

func pointInBounds(p mgl32.Vec3, radius float32, bmin, bmax mgl32.Vec3) bool {
	return p.X()+radius >= bmin.X() && p.X()-radius <= bmax.X() &&
		p.Y()+radius >= bmin.Y() && p.Y()-radius <= bmax.Y() &&
		p.Z()+radius >= bmin.Z() && p.Z()-radius <= bmax.Z()
}
