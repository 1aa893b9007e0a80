// Package mesh defines the navigation mesh data model: tiles of convex
// polygons with detail surfaces, off-mesh connections bridging them, and
// the versioned binary cache format.
package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// VertsPerPolygon is the maximum number of vertices per navigation polygon.
	VertsPerPolygon = 6

	// MaxAreas is the number of user defined area ids.
	MaxAreas = 64

	// Magic identifies a navigation mesh cache blob.
	Magic = 'N'<<24 | 'A'<<16 | 'V'<<8 | 'T'

	// FormatVersion is the cache layout version. Version 2 widened detail
	// triangle indices from uint8 to uint16.
	FormatVersion = 2

	// ExtLink flags a polygon edge as a portal to a neighbouring tile.
	// The low bits carry the portal side.
	ExtLink = 0x8000

	// NullIdx marks an unset uint16 index.
	NullIdx = 0xffff

	// polyBits is the per-reference bit budget for the polygon index;
	// the remaining bits of a PolyRef address the tile.
	polyBits = 20
)

// Polygon traversal capability flags.
const (
	FlagWalk     = 0x01
	FlagSwim     = 0x02
	FlagFly      = 0x04
	FlagDisabled = 0x08
	FlagAll      = 0xffff
)

// Well-known area types.
const (
	AreaUnwalkable = 0
	AreaWater      = 9
	AreaJump       = 10
	AreaTeleport   = 11
	AreaHazard     = 12
	AreaWalkable   = 63
)

// Polygon types.
const (
	PolyTypeGround = 0
	// PolyTypeOffMesh is a two-vertex polygon standing in for an off-mesh
	// connection baked into the tile.
	PolyTypeOffMesh = 1
)

// PolyRef identifies a polygon: tile index (plus one) in the high bits,
// polygon index in the low polyBits bits. Zero is never a valid reference.
type PolyRef uint64

// MaxPolysPerTile is the largest polygon index a PolyRef can carry.
const MaxPolysPerTile = 1<<polyBits - 1

func EncodePolyRef(tileIdx int32, polyIdx int32) PolyRef {
	return PolyRef(uint64(tileIdx+1)<<polyBits | uint64(polyIdx))
}

func DecodePolyRef(ref PolyRef) (tileIdx, polyIdx int32) {
	return int32(uint64(ref)>>polyBits) - 1, int32(uint64(ref) & MaxPolysPerTile)
}

// Poly is one convex navigation polygon.
type Poly struct {
	// Verts indexes the owning tile's vertex arena; only the first
	// VertCount entries are meaningful.
	Verts     [VertsPerPolygon]uint16
	VertCount uint8
	// Neis holds per-edge neighbour links: 0 for a border edge,
	// ExtLink|side for a cross-tile portal, otherwise neighbour poly
	// index plus one within the same tile.
	Neis  [VertsPerPolygon]uint16
	Flags uint16
	Area  uint8
	Type  uint8
}

// PolyDetail indexes one polygon's slice of the tile detail arenas.
type PolyDetail struct {
	VertBase  uint32
	TriBase   uint32
	VertCount uint8
	TriCount  uint8
}

// BVNode is one node of a tile's bounding-volume tree. Bounds are
// quantized to the tile's cell size. A negative index is an escape offset.
type BVNode struct {
	BMin [3]uint16
	BMax [3]uint16
	I    int32
}

// ConnectionKind classifies how an off-mesh connection is traversed.
type ConnectionKind uint8

const (
	ConnWalk ConnectionKind = iota
	ConnJumpDown
	ConnJumpUp
	ConnTeleport
	ConnSwim
	ConnFlight
)

func (k ConnectionKind) String() string {
	switch k {
	case ConnWalk:
		return "walk"
	case ConnJumpDown:
		return "jump-down"
	case ConnJumpUp:
		return "jump-up"
	case ConnTeleport:
		return "teleport"
	case ConnSwim:
		return "swim"
	case ConnFlight:
		return "flight"
	}
	return "unknown"
}

// OffMeshConnection is a traversal edge between two points that are not
// joined by shared polygon edges.
type OffMeshConnection struct {
	Start         mgl32.Vec3
	End           mgl32.Vec3
	Radius        float32
	Bidirectional bool
	Area          uint8
	Kind          ConnectionKind
	UserID        uint32

	// Poly is the index of the stand-in polygon within the owning tile,
	// set when the connection is baked.
	Poly uint16
}

// Link joins a polygon edge (or an off-mesh endpoint) to another polygon.
type Link struct {
	Ref  PolyRef
	Edge uint8
	// Side is the portal side for cross-tile links, 0xff otherwise.
	Side uint8
}

// Tile is one build-once cell of the navigation grid.
type Tile struct {
	X, Z  int32
	Layer int32

	WalkableHeight float32
	WalkableRadius float32
	WalkableClimb  float32

	BMin mgl32.Vec3
	BMax mgl32.Vec3

	// Verts is the vertex arena: mesh vertices first, then two vertices
	// per baked off-mesh connection.
	Verts []float32
	Polys []Poly

	DetailMeshes []PolyDetail
	DetailVerts  []float32
	// DetailTris holds 4 entries per triangle: three vertex indices and
	// an edge-boundary flag byte. Indices below the polygon vertex count
	// refer to polygon vertices, the rest to DetailVerts.
	DetailTris []uint16

	BVTree       []BVNode
	BVQuantScale float32

	OffMeshCons []OffMeshConnection

	// Links is the adjacency arena, one slice per polygon, rebuilt when
	// the tile is added to a mesh. Not serialized.
	Links [][]Link
}

// IsEmpty reports whether the tile carries no polygons at all.
func (t *Tile) IsEmpty() bool { return len(t.Polys) == 0 }

// Params configures the layout of a navigation mesh grid.
type Params struct {
	Origin     mgl32.Vec3
	TileWidth  float32
	TileHeight float32
	MaxTiles   int32
}

// MaxPolys returns the per-tile polygon limit implied by the PolyRef bit
// layout.
func (p Params) MaxPolys() int32 { return MaxPolysPerTile }
