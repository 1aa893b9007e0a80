// Package builder turns immutable geometry snapshots into navigation mesh
// tiles through the voxelization pipeline: rasterize, filter, compact,
// erode, partition, trace contours, build polygon and detail meshes, bake
// off-mesh connections and assemble the tile.
package builder

import (
	"math"
)

// PartitionKind selects the region partitioning algorithm.
type PartitionKind int32

const (
	// PartitionWatershed grows regions from a distance field; highest
	// quality, most expensive.
	PartitionWatershed PartitionKind = iota
	// PartitionMonotone sweeps rows into monotone regions; fast, lower
	// quality.
	PartitionMonotone
	// PartitionLayers splits overlapping walkable layers first, then
	// sweeps each layer; handles bridges and stacked floors.
	PartitionLayers
)

// Settings is the immutable voxelization configuration. World units
// throughout; the builder derives voxel units internally.
type Settings struct {
	CellSize   float32 `json:"cellSize"`
	CellHeight float32 `json:"cellHeight"`

	AgentRadius   float32 `json:"agentRadius"`
	AgentHeight   float32 `json:"agentHeight"`
	AgentMaxClimb float32 `json:"agentMaxClimb"`
	// AgentMaxSlope is in degrees.
	AgentMaxSlope float32 `json:"agentMaxSlope"`

	// TileSize is the tile edge length in voxels.
	TileSize int32 `json:"tileSize"`

	Partition PartitionKind `json:"partition"`

	// RegionMinSize and RegionMergeSize are edge lengths in voxels;
	// their squares are the area thresholds.
	RegionMinSize   int32 `json:"regionMinSize"`
	RegionMergeSize int32 `json:"regionMergeSize"`

	EdgeMaxLen   float32 `json:"edgeMaxLen"`
	EdgeMaxError float32 `json:"edgeMaxError"`

	VertsPerPoly int32 `json:"vertsPerPoly"`

	DetailSampleDist     float32 `json:"detailSampleDist"`
	DetailSampleMaxError float32 `json:"detailSampleMaxError"`

	// Pipeline filter toggles.
	FilterLowHangingObstacles bool `json:"filterLowHangingObstacles"`
	FilterLedgeSpans          bool `json:"filterLedgeSpans"`
	FilterWalkableLowHeight   bool `json:"filterWalkableLowHeight"`

	// Jump-down connection detection thresholds.
	MinJumpDownHeight        float32 `json:"minJumpDownHeight"`
	MaxJumpDownHeight        float32 `json:"maxJumpDownHeight"`
	MaxJumpHorizontalGap     float32 `json:"maxJumpHorizontalGap"`
	DetectJumpDownLinks      bool    `json:"detectJumpDownLinks"`
	JumpDownConnectionRadius float32 `json:"jumpDownConnectionRadius"`
}

// DefaultSettings mirrors the agent dimensions of a human-sized walker.
func DefaultSettings() Settings {
	return Settings{
		CellSize:      0.3,
		CellHeight:    0.2,
		AgentRadius:   0.6,
		AgentHeight:   2.0,
		AgentMaxClimb: 0.9,
		AgentMaxSlope: 45.0,

		TileSize: 64,

		Partition:       PartitionWatershed,
		RegionMinSize:   8,
		RegionMergeSize: 20,

		EdgeMaxLen:   12.0,
		EdgeMaxError: 1.3,

		VertsPerPoly: 6,

		DetailSampleDist:     6.0,
		DetailSampleMaxError: 1.0,

		FilterLowHangingObstacles: true,
		FilterLedgeSpans:          true,
		FilterWalkableLowHeight:   true,

		MinJumpDownHeight:        1.0,
		MaxJumpDownHeight:        4.0,
		MaxJumpHorizontalGap:     1.5,
		DetectJumpDownLinks:      true,
		JumpDownConnectionRadius: 0.5,
	}
}

// Voxel unit conversions.

func (s Settings) walkableHeightVx() int32 {
	return int32(math.Ceil(float64(s.AgentHeight / s.CellHeight)))
}

func (s Settings) walkableClimbVx() int32 {
	return int32(math.Floor(float64(s.AgentMaxClimb / s.CellHeight)))
}

func (s Settings) walkableRadiusVx() int32 {
	return int32(math.Ceil(float64(s.AgentRadius / s.CellSize)))
}

// borderSizeVx is the non-navigable margin rasterized around each tile so
// erosion and region growth behave identically at tile seams.
func (s Settings) borderSizeVx() int32 {
	return s.walkableRadiusVx() + 3
}

func (s Settings) minRegionArea() int32 {
	return s.RegionMinSize * s.RegionMinSize
}

func (s Settings) mergeRegionArea() int32 {
	return s.RegionMergeSize * s.RegionMergeSize
}

// TileWorldSize is the tile edge length in world units.
func (s Settings) TileWorldSize() float32 {
	return float32(s.TileSize) * s.CellSize
}

// ContentHash folds the build-relevant fields into a value suitable as a
// cache content version; changing any setting invalidates cached meshes.
func (s Settings) ContentHash() uint32 {
	h := uint32(2166136261)
	mix := func(v uint32) {
		h ^= v
		h *= 16777619
	}
	mixf := func(v float32) { mix(math.Float32bits(v)) }
	mixf(s.CellSize)
	mixf(s.CellHeight)
	mixf(s.AgentRadius)
	mixf(s.AgentHeight)
	mixf(s.AgentMaxClimb)
	mixf(s.AgentMaxSlope)
	mix(uint32(s.TileSize))
	mix(uint32(s.Partition))
	mix(uint32(s.RegionMinSize))
	mix(uint32(s.RegionMergeSize))
	mixf(s.EdgeMaxLen)
	mixf(s.EdgeMaxError)
	mix(uint32(s.VertsPerPoly))
	mixf(s.DetailSampleDist)
	mixf(s.DetailSampleMaxError)
	return h
}
