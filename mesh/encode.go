package mesh

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"navtile/common/rw"
)

// ErrIncompatibleCache marks a cache blob whose magic, format version or
// content version does not match. It is a recoverable "no cache"
// condition, never a reason to attempt repair.
var ErrIncompatibleCache = errors.New("incompatible navigation mesh cache")

// Encode serializes the mesh into a self-describing blob:
// [magic][format_version][content_version][gzip payload]. contentVersion
// is supplied by the caller to invalidate caches when build settings
// change independently of geometry.
func Encode(m *NavMesh, contentVersion uint32) ([]byte, error) {
	head := rw.NewWriter()
	head.WriteUInt32(Magic)
	head.WriteUInt32(FormatVersion)
	head.WriteUInt32(contentVersion)

	w := rw.NewWriter()
	var nonEmpty []int32
	for i := int32(0); i < int32(m.TileCount()); i++ {
		if !m.TileByIndex(i).IsEmpty() {
			nonEmpty = append(nonEmpty, i)
		}
	}
	w.WriteUInt32(uint32(len(nonEmpty)))
	writeVec3(w, m.params.Origin)
	w.WriteFloat32(m.params.TileWidth)
	w.WriteFloat32(m.params.TileHeight)
	w.WriteInt32(m.params.MaxTiles)
	w.WriteInt32(m.params.MaxPolys())
	w.WriteUInt32(VertsPerPolygon)

	for _, i := range nonEmpty {
		writeTile(w, int64(EncodePolyRef(i, 0)), m.TileByIndex(i))
	}

	payload, err := rw.Compress(w.GetWriteBytes())
	if err != nil {
		return nil, fmt.Errorf("compress navmesh payload: %w", err)
	}
	return append(head.GetWriteBytes(), payload...), nil
}

// Decode reverses Encode. A magic, format or content version mismatch
// yields ErrIncompatibleCache; malformed payloads yield a decode error.
func Decode(data []byte, contentVersion uint32) (m *NavMesh, err error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("%w: truncated header", ErrIncompatibleCache)
	}
	head := rw.NewReader(data[:12])
	if head.ReadUInt32() != Magic {
		return nil, fmt.Errorf("%w: bad magic", ErrIncompatibleCache)
	}
	if v := head.ReadUInt32(); v != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrIncompatibleCache, v, FormatVersion)
	}
	if v := head.ReadUInt32(); v != contentVersion {
		return nil, fmt.Errorf("%w: content version %d, want %d", ErrIncompatibleCache, v, contentVersion)
	}

	raw, err := rw.Uncompress(data[12:])
	if err != nil {
		return nil, fmt.Errorf("uncompress navmesh payload: %w", err)
	}

	// The reader panics on short reads; surface that as a decode error.
	defer func() {
		if rec := recover(); rec != nil {
			m = nil
			err = fmt.Errorf("malformed navmesh payload: %v", rec)
		}
	}()

	r := rw.NewReader(raw)
	tileCount := r.ReadUInt32()
	var params Params
	params.Origin = readVec3(r)
	params.TileWidth = r.ReadFloat32()
	params.TileHeight = r.ReadFloat32()
	params.MaxTiles = r.ReadInt32()
	r.ReadInt32() // max polys, implied by the PolyRef bit layout
	if n := r.ReadUInt32(); n != VertsPerPolygon {
		return nil, fmt.Errorf("%w: %d verts per polygon, want %d", ErrIncompatibleCache, n, VertsPerPolygon)
	}

	m = NewNavMesh(params)
	for i := uint32(0); i < tileCount; i++ {
		r.ReadInt64() // tile ref, implied by append order
		t := readTile(r)
		if _, err := m.AddTile(t); err != nil {
			return nil, fmt.Errorf("decode tile %d: %w", i, err)
		}
	}
	return m, nil
}

func writeTile(w *rw.ReaderWriter, ref int64, t *Tile) {
	w.WriteInt64(ref)
	w.WriteInt32(t.X)
	w.WriteInt32(t.Z)
	w.WriteInt32(t.Layer)
	w.WriteFloat32(t.WalkableHeight)
	w.WriteFloat32(t.WalkableRadius)
	w.WriteFloat32(t.WalkableClimb)
	writeVec3(w, t.BMin)
	writeVec3(w, t.BMax)
	w.WriteUInt32(uint32(len(t.Verts) / 3))
	w.WriteUInt32(uint32(len(t.Polys)))
	w.WriteUInt32(uint32(len(t.DetailMeshes)))
	w.WriteUInt32(uint32(len(t.DetailVerts) / 3))
	w.WriteUInt32(uint32(len(t.DetailTris) / 4))
	w.WriteUInt32(uint32(len(t.BVTree)))
	w.WriteUInt32(uint32(len(t.OffMeshCons)))
	w.WriteFloat32(t.BVQuantScale)

	w.WriteFloat32s(t.Verts)
	for i := range t.Polys {
		p := &t.Polys[i]
		w.WriteUInt8(p.VertCount)
		w.WriteUInt8(p.Area<<2 | p.Type&0x3)
		w.WriteUInt16(p.Flags)
		w.WriteUInt16s(p.Verts[:])
		w.WriteUInt16s(p.Neis[:])
	}
	for i := range t.DetailMeshes {
		pd := &t.DetailMeshes[i]
		w.WriteUInt32(pd.VertBase)
		w.WriteUInt32(pd.TriBase)
		w.WriteUInt8(pd.VertCount)
		w.WriteUInt8(pd.TriCount)
	}
	w.WriteFloat32s(t.DetailVerts)
	w.WriteUInt16s(t.DetailTris)
	for i := range t.BVTree {
		n := &t.BVTree[i]
		w.WriteUInt16s(n.BMin[:])
		w.WriteUInt16s(n.BMax[:])
		w.WriteInt32(n.I)
	}
	for i := range t.OffMeshCons {
		con := &t.OffMeshCons[i]
		writeVec3(w, con.Start)
		writeVec3(w, con.End)
		w.WriteFloat32(con.Radius)
		w.WriteUInt16(con.Poly)
		flags := uint8(0)
		if con.Bidirectional {
			flags = 1
		}
		w.WriteUInt8(flags)
		w.WriteUInt8(con.Area)
		w.WriteUInt8(uint8(con.Kind))
		w.WriteUInt32(con.UserID)
	}
}

func readTile(r *rw.ReaderWriter) *Tile {
	t := &Tile{}
	t.X = r.ReadInt32()
	t.Z = r.ReadInt32()
	t.Layer = r.ReadInt32()
	t.WalkableHeight = r.ReadFloat32()
	t.WalkableRadius = r.ReadFloat32()
	t.WalkableClimb = r.ReadFloat32()
	t.BMin = readVec3(r)
	t.BMax = readVec3(r)
	vertCount := r.ReadUInt32()
	polyCount := r.ReadUInt32()
	detailMeshCount := r.ReadUInt32()
	detailVertCount := r.ReadUInt32()
	detailTriCount := r.ReadUInt32()
	bvNodeCount := r.ReadUInt32()
	conCount := r.ReadUInt32()
	t.BVQuantScale = r.ReadFloat32()

	t.Verts = make([]float32, vertCount*3)
	r.ReadFloat32s(t.Verts)
	t.Polys = make([]Poly, polyCount)
	for i := range t.Polys {
		p := &t.Polys[i]
		p.VertCount = r.ReadUInt8()
		areaType := r.ReadUInt8()
		p.Area = areaType >> 2
		p.Type = areaType & 0x3
		p.Flags = r.ReadUInt16()
		r.ReadUInt16s(p.Verts[:])
		r.ReadUInt16s(p.Neis[:])
	}
	t.DetailMeshes = make([]PolyDetail, detailMeshCount)
	for i := range t.DetailMeshes {
		pd := &t.DetailMeshes[i]
		pd.VertBase = r.ReadUInt32()
		pd.TriBase = r.ReadUInt32()
		pd.VertCount = r.ReadUInt8()
		pd.TriCount = r.ReadUInt8()
	}
	t.DetailVerts = make([]float32, detailVertCount*3)
	r.ReadFloat32s(t.DetailVerts)
	t.DetailTris = make([]uint16, detailTriCount*4)
	r.ReadUInt16s(t.DetailTris)
	t.BVTree = make([]BVNode, bvNodeCount)
	for i := range t.BVTree {
		n := &t.BVTree[i]
		r.ReadUInt16s(n.BMin[:])
		r.ReadUInt16s(n.BMax[:])
		n.I = r.ReadInt32()
	}
	t.OffMeshCons = make([]OffMeshConnection, conCount)
	for i := range t.OffMeshCons {
		con := &t.OffMeshCons[i]
		con.Start = readVec3(r)
		con.End = readVec3(r)
		con.Radius = r.ReadFloat32()
		con.Poly = r.ReadUInt16()
		con.Bidirectional = r.ReadUInt8() != 0
		con.Area = r.ReadUInt8()
		con.Kind = ConnectionKind(r.ReadUInt8())
		con.UserID = r.ReadUInt32()
	}
	return t
}

func writeVec3(w *rw.ReaderWriter, v mgl32.Vec3) {
	w.WriteFloat32(v.X())
	w.WriteFloat32(v.Y())
	w.WriteFloat32(v.Z())
}

func readVec3(r *rw.ReaderWriter) mgl32.Vec3 {
	return mgl32.Vec3{r.ReadFloat32(), r.ReadFloat32(), r.ReadFloat32()}
}
