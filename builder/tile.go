package builder

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"navtile/geometry"
	"navtile/mesh"
)

// TileBuilder converts a geometry snapshot into navigation tiles, one
// grid cell at a time. Safe for concurrent BuildTile calls; only the
// final append to the shared mesh needs external serialization.
type TileBuilder struct {
	settings Settings
	snap     *geometry.Snapshot
	cons     *mesh.OffMeshConnectionSet
	origin   mgl32.Vec3
	ymin     float32
	ymax     float32
	log      *zap.Logger
}

func NewTileBuilder(snap *geometry.Snapshot, settings Settings, cons *mesh.OffMeshConnectionSet, origin mgl32.Vec3, log *zap.Logger) *TileBuilder {
	if log == nil {
		log = zap.NewNop()
	}
	// Tile polygons hold at most mesh.VertsPerPolygon vertices, so a
	// larger setting would overrun them during assembly.
	if settings.VertsPerPoly < 3 || settings.VertsPerPoly > mesh.VertsPerPolygon {
		clamped := min(max(settings.VertsPerPoly, 3), mesh.VertsPerPolygon)
		log.Warn("vertsPerPoly out of range, clamping",
			zap.Int32("requested", settings.VertsPerPoly),
			zap.Int32("clamped", clamped))
		settings.VertsPerPoly = clamped
	}
	ymin, ymax := float32(0), float32(0)
	if bmin, bmax, ok := snap.Bounds(); ok {
		ymin, ymax = bmin.Y(), bmax.Y()
	}
	return &TileBuilder{
		settings: settings,
		snap:     snap,
		cons:     cons,
		origin:   origin,
		ymin:     ymin,
		ymax:     ymax,
		log:      log,
	}
}

// BuildTile runs the full voxelization pipeline for one grid cell. A
// cell with no walkable geometry yields an empty tile, not an error.
func (b *TileBuilder) BuildTile(tx, tz int32) (*mesh.Tile, error) {
	started := time.Now()
	s := b.settings
	cs := s.CellSize
	ch := s.CellHeight
	ts := s.TileWorldSize()
	borderSize := s.borderSizeVx()
	pad := float32(borderSize) * cs

	bmin := []float32{
		b.origin.X() + float32(tx)*ts,
		b.ymin,
		b.origin.Z() + float32(tz)*ts,
	}
	bmax := []float32{
		bmin[0] + ts,
		b.ymax,
		bmin[2] + ts,
	}
	pbmin := []float32{bmin[0] - pad, bmin[1], bmin[2] - pad}
	pbmax := []float32{bmax[0] + pad, bmax[1], bmax[2] + pad}

	width := s.TileSize + borderSize*2
	height := s.TileSize + borderSize*2

	empty := &mesh.Tile{
		X: tx, Z: tz,
		WalkableHeight: s.AgentHeight,
		WalkableRadius: s.AgentRadius,
		WalkableClimb:  s.AgentMaxClimb,
		BMin:           mgl32.Vec3{bmin[0], bmin[1], bmin[2]},
		BMax:           mgl32.Vec3{bmax[0], bmax[1], bmax[2]},
	}
	if b.snap.TriCount() == 0 {
		return empty, nil
	}

	hf := newHeightfield(width, height, pbmin, pbmax, cs, ch)
	areas := make([]uint8, b.snap.TriCount())
	markWalkableTriangles(b.snap, s.AgentMaxSlope, areas)
	rasterizeTriangles(b.snap, areas, hf, s.walkableClimbVx())

	if s.FilterLowHangingObstacles {
		filterLowHangingWalkableObstacles(hf, s.walkableClimbVx())
	}
	if s.FilterLedgeSpans {
		filterLedgeSpans(hf, s.walkableHeightVx(), s.walkableClimbVx())
	}
	if s.FilterWalkableLowHeight {
		filterWalkableLowHeightSpans(hf, s.walkableHeightVx())
	}

	chf := buildCompactHeightfield(hf, s.walkableHeightVx(), s.walkableClimbVx())
	chf.borderSize = borderSize
	if chf.spanCount == 0 {
		return empty, nil
	}
	erodeWalkableArea(chf, s.walkableRadiusVx())
	if !buildRegions(chf, s.Partition, borderSize, s.minRegionArea(), s.mergeRegionArea()) {
		b.log.Debug("no regions in tile", zap.Int32("tx", tx), zap.Int32("tz", tz))
		return empty, nil
	}

	cset := buildContours(chf, s.EdgeMaxError, int32(s.EdgeMaxLen/cs))
	if len(cset.conts) == 0 {
		return empty, nil
	}

	pm, err := buildPolyMesh(cset, s.VertsPerPoly)
	if err != nil {
		return nil, err
	}
	if pm.npolys == 0 {
		return empty, nil
	}

	sampleDist := float32(0)
	if s.DetailSampleDist >= 0.9 {
		sampleDist = cs * s.DetailSampleDist
	}
	dm, err := buildPolyMeshDetail(pm, chf, sampleDist, ch*s.DetailSampleMaxError)
	if err != nil {
		return nil, err
	}

	t, err := b.assemble(tx, tz, pbmin, pbmax, pm, dm)
	if err == nil {
		b.log.Debug("tile built",
			zap.Int32("tx", tx), zap.Int32("tz", tz),
			zap.Int("polys", len(t.Polys)),
			zap.Duration("elapsed", time.Since(started)))
	}
	return t, err
}

// polyFlagsForArea maps build areas onto traversal flag bits.
func polyFlagsForArea(area uint8) uint16 {
	switch area {
	case mesh.AreaWater:
		return mesh.FlagSwim
	case mesh.AreaUnwalkable:
		return 0
	default:
		return mesh.FlagWalk
	}
}

func connFlags(kind mesh.ConnectionKind) uint16 {
	switch kind {
	case mesh.ConnSwim:
		return mesh.FlagSwim
	case mesh.ConnFlight:
		return mesh.FlagFly
	default:
		return mesh.FlagWalk
	}
}

func (b *TileBuilder) assemble(tx, tz int32, pbmin, pbmax []float32, pm *polyMesh, dm *polyMeshDetail) (*mesh.Tile, error) {
	s := b.settings
	nvp := pm.nvp

	// Bake every connection whose endpoint sphere touches the padded
	// tile bounds. Tiles near a seam bake the same connection twice;
	// each copy links through that tile's own stand-in polygon.
	var cons []mesh.OffMeshConnection
	if b.cons != nil {
		cons = b.cons.ForTile(
			mgl32.Vec3{pbmin[0], pbmin[1], pbmin[2]},
			mgl32.Vec3{pbmax[0], pbmax[1], pbmax[2]})
	}

	npolys := pm.npolys + int32(len(cons))
	if npolys > mesh.MaxPolysPerTile {
		b.log.Warn("tile polygon budget exceeded, dropping overflow connections",
			zap.Int32("tx", tx), zap.Int32("tz", tz), zap.Int32("polys", npolys))
		cons = trimConnections(cons, pm.npolys)
		npolys = pm.npolys + int32(len(cons))
	}

	t := &mesh.Tile{
		X: tx, Z: tz,
		WalkableHeight: s.AgentHeight,
		WalkableRadius: s.AgentRadius,
		WalkableClimb:  s.AgentMaxClimb,
		BMin:           mgl32.Vec3{pm.bmin[0], pm.bmin[1], pm.bmin[2]},
		BMax:           mgl32.Vec3{pm.bmax[0], pm.bmax[1], pm.bmax[2]},
	}

	// Vertex arena: mesh vertices first, then two per connection.
	nverts := int32(len(pm.verts) / 3)
	t.Verts = make([]float32, 0, (nverts+int32(len(cons))*2)*3)
	for i := int32(0); i < nverts; i++ {
		v := pm.verts[i*3:]
		t.Verts = append(t.Verts,
			pm.bmin[0]+float32(v[0])*pm.cs,
			pm.bmin[1]+float32(v[1])*pm.ch,
			pm.bmin[2]+float32(v[2])*pm.cs)
	}

	t.Polys = make([]mesh.Poly, npolys)
	for i := int32(0); i < pm.npolys; i++ {
		src := pm.polys[i*nvp*2:]
		p := &t.Polys[i]
		p.Area = pm.areas[i]
		p.Type = mesh.PolyTypeGround
		p.Flags = polyFlagsForArea(pm.areas[i])
		for j := int32(0); j < nvp; j++ {
			if src[j] == meshNullIdx {
				break
			}
			p.Verts[j] = src[j]
			switch nei := src[nvp+j]; {
			case nei == meshNullIdx:
				p.Neis[j] = 0
			case nei&0x8000 != 0:
				p.Neis[j] = mesh.ExtLink | nei&0xf
			default:
				p.Neis[j] = nei + 1
			}
			p.VertCount++
		}
	}

	for ci, con := range cons {
		pi := pm.npolys + int32(ci)
		vi := uint16(nverts) + uint16(ci)*2
		t.Verts = append(t.Verts,
			con.Start.X(), con.Start.Y(), con.Start.Z(),
			con.End.X(), con.End.Y(), con.End.Z())

		p := &t.Polys[pi]
		p.Verts[0] = vi
		p.Verts[1] = vi + 1
		p.VertCount = 2
		p.Area = con.Area
		p.Type = mesh.PolyTypeOffMesh
		p.Flags = connFlags(con.Kind)

		con.Poly = uint16(pi)
		t.OffMeshCons = append(t.OffMeshCons, con)
	}

	t.DetailMeshes = dm.meshes
	t.DetailVerts = dm.verts
	t.DetailTris = dm.tris

	t.BVTree = buildBVTree(pm)
	t.BVQuantScale = 1.0 / pm.cs
	return t, nil
}

// trimConnections keeps as many connections as still fit next to the
// tile's ground polygons.
func trimConnections(cons []mesh.OffMeshConnection, npolys int32) []mesh.OffMeshConnection {
	room := mesh.MaxPolysPerTile - npolys
	if room < 0 {
		room = 0
	}
	if int32(len(cons)) > room {
		cons = cons[:room]
	}
	return cons
}
