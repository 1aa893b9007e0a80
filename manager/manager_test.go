package manager

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"navtile/builder"
	"navtile/geometry"
	"navtile/mesh"
)

func assertTrue(t *testing.T, value bool, msg string) {
	t.Helper()
	if !value {
		t.Errorf(msg)
	}
}

type stubProvider struct {
	key  string
	snap *geometry.Snapshot
}

func (p *stubProvider) Key() string { return p.key }

func (p *stubProvider) Snapshot() (*geometry.Snapshot, error) { return p.snap, nil }

// plane returns an upward-facing rectangle at the given height.
func plane(x0, z0, x1, z1, y float32) geometry.Instance {
	return geometry.Instance{
		Verts: []float32{
			x0, y, z0,
			x1, y, z0,
			x1, y, z1,
			x0, y, z1,
		},
		Tris:      []int32{0, 3, 1, 1, 3, 2},
		Transform: mgl32.Ident4(),
	}
}

func testBuildSettings() builder.Settings {
	s := builder.DefaultSettings()
	s.TileSize = 32
	s.DetectJumpDownLinks = false
	return s
}

func flatProvider(key string) *stubProvider {
	return &stubProvider{
		key:  key,
		snap: geometry.Merge(plane(-5, -5, 15, 15, 0)),
	}
}

func TestManagerBuildsAndPublishes(t *testing.T) {
	dir := t.TempDir()
	var changes int
	m := New(testBuildSettings(), Options{
		CacheDir: dir,
		OnChange: func(r *Result) { changes++ },
	}, nil)

	m.SetEnvironment("plains", flatProvider("plains"), nil)
	m.Wait()

	assertTrue(t, m.Ready(), "the manager reaches ready")
	assertTrue(t, m.Progress() == -1, "progress resets after the build")
	res := m.Current()
	if res == nil {
		t.Fatal("no result published")
	}
	assertTrue(t, res.Key == "plains", "the result carries the environment key")
	assertTrue(t, res.Mesh.TileCount() > 0, "the mesh holds tiles")
	assertTrue(t, res.Engine != nil, "a query engine accompanies the mesh")
	assertTrue(t, changes == 1, "publish notifies once")

	if _, err := os.Stat(filepath.Join(dir, "plains.navtile")); err != nil {
		t.Errorf("cache blob missing: %v", err)
	}
}

func TestManagerLoadsFromCache(t *testing.T) {
	dir := t.TempDir()
	s := testBuildSettings()

	first := New(s, Options{CacheDir: dir}, nil)
	first.SetEnvironment("plains", flatProvider("plains"), nil)
	first.Wait()
	assertTrue(t, first.Ready(), "the first manager builds")

	second := New(s, Options{CacheDir: dir}, nil)
	second.SetEnvironment("plains", flatProvider("plains"), nil)
	second.Wait()
	assertTrue(t, second.Ready(), "the second manager reaches ready")
	assertTrue(t, strings.HasPrefix(second.Status(), "loaded from cache"),
		"the second manager serves the cached mesh")

	a, b := first.Current().Mesh, second.Current().Mesh
	assertTrue(t, a.TileCount() == b.TileCount(), "cached mesh matches the built one")
}

func TestManagerRebuildsWhenSettingsChange(t *testing.T) {
	dir := t.TempDir()

	first := New(testBuildSettings(), Options{CacheDir: dir}, nil)
	first.SetEnvironment("plains", flatProvider("plains"), nil)
	first.Wait()
	assertTrue(t, first.Ready(), "the first manager builds")

	changed := testBuildSettings()
	changed.CellSize = 0.25
	second := New(changed, Options{CacheDir: dir}, nil)
	second.SetEnvironment("plains", flatProvider("plains"), nil)
	second.Wait()
	assertTrue(t, second.Ready(), "the second manager reaches ready")
	assertTrue(t, strings.HasPrefix(second.Status(), "built"),
		"changed settings invalidate the cache")
}

func TestManagerUnloadCancelsHeldBuild(t *testing.T) {
	m := New(testBuildSettings(), Options{
		Hold:             func() bool { return true },
		HoldPollInterval: 5 * time.Millisecond,
	}, nil)

	m.SetEnvironment("plains", flatProvider("plains"), nil)
	assertTrue(t, m.State() == StateLoading, "a held build stays in loading")

	m.Unload()
	m.Wait()
	assertTrue(t, m.State() == StateIdle, "unload returns the manager to idle")
	assertTrue(t, m.Current() == nil, "unload drops the published result")
	assertTrue(t, m.Progress() == -1, "unload resets progress")
}

func TestManagerDetectsJumpDownConnections(t *testing.T) {
	s := testBuildSettings()
	s.DetectJumpDownLinks = true

	// A raised platform over open floor: its rim should grow one-way
	// drop-down connections onto the floor below.
	provider := &stubProvider{
		key: "ledge",
		snap: geometry.Merge(
			plane(-5, -5, 15, 15, 0),
			plane(2, 2, 8, 8, 2.5),
		),
	}

	m := New(s, Options{}, nil)
	m.SetEnvironment("ledge", provider, nil)
	m.Wait()
	assertTrue(t, m.Ready(), "the manager reaches ready")

	res := m.Current()
	if res == nil {
		t.Fatal("no result published")
	}
	var found []mesh.OffMeshConnection
	for i := int32(0); i < int32(res.Mesh.TileCount()); i++ {
		found = append(found, res.Mesh.TileByIndex(i).OffMeshCons...)
	}
	if len(found) == 0 {
		t.Fatal("no jump-down connections detected")
	}
	for _, con := range found {
		drop := con.Start.Y() - con.End.Y()
		assertTrue(t, con.Kind == mesh.ConnJumpDown, "detected connections are jump-downs")
		assertTrue(t, con.Area == mesh.AreaJump, "detected connections use the jump area")
		assertTrue(t, !con.Bidirectional, "drop-downs are one way")
		assertTrue(t, drop >= s.MinJumpDownHeight-0.5 && drop <= s.MaxJumpDownHeight+0.5,
			"the drop stays within the configured window")
	}
}
