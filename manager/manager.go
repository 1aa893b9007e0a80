// Package manager orchestrates the navigation mesh lifecycle: waiting
// out environment transitions, loading cached meshes or rebuilding them
// tile by tile, reporting progress and publishing the result.
package manager

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"navtile/builder"
	"navtile/common"
	"navtile/geometry"
	"navtile/mesh"
	"navtile/query"
)

// ErrBuildCancelled marks a build abandoned through its context. The
// result is discarded silently; the previous published state stays
// authoritative.
var ErrBuildCancelled = errors.New("navigation mesh build cancelled")

// State is the manager lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Result is the published mesh and its query engine, swapped atomically
// so readers never observe a half-built pair.
type Result struct {
	Key    string
	Mesh   *mesh.NavMesh
	Engine *query.Engine
}

// Options configures a Manager.
type Options struct {
	// CacheDir holds one <key>.navtile blob per environment. Empty
	// disables caching.
	CacheDir string
	// Hold, when set, is polled before building; the build waits while it
	// returns true (an environment transition is still in progress).
	Hold func() bool
	// HoldPollInterval defaults to 100ms.
	HoldPollInterval time.Duration
	// OnChange is invoked after every publish, with nil on unload.
	OnChange func(*Result)
	// Workers caps concurrent tile builds; defaults to GOMAXPROCS.
	Workers int
}

// Manager drives Idle -> Loading -> Ready (or Error). A new environment
// key cancels any in-flight build and starts over.
type Manager struct {
	settings builder.Settings
	opts     Options
	log      *zap.Logger

	state    atomic.Int32
	progress atomic.Uint32 // math.Float32bits; notBuilding when idle
	current  atomic.Pointer[Result]

	mu     sync.Mutex
	cancel context.CancelFunc
	key    string
	status string

	wg sync.WaitGroup
}

const notBuilding = float32(-1)

func New(settings builder.Settings, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.HoldPollInterval <= 0 {
		opts.HoldPollInterval = 100 * time.Millisecond
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	m := &Manager{
		settings: settings,
		opts:     opts,
		log:      log,
	}
	m.progress.Store(math.Float32bits(notBuilding))
	return m
}

func (m *Manager) State() State { return State(m.state.Load()) }

// Progress is the build fraction in [0,1], or -1 when no build runs.
func (m *Manager) Progress() float32 {
	return math.Float32frombits(m.progress.Load())
}

func (m *Manager) Ready() bool { return m.State() == StateReady }

// Current returns the last published result, nil before the first
// publish or after Unload.
func (m *Manager) Current() *Result { return m.current.Load() }

// Status is a human-readable account of the last state change.
func (m *Manager) Status() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) setStatus(s string) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// SetEnvironment switches to a new environment. key doubles verbatim as
// the cache key. Any in-flight build for a previous key is cancelled.
func (m *Manager) SetEnvironment(key string, provider geometry.Provider, cons *mesh.OffMeshConnectionSet) {
	m.mu.Lock()
	if m.key == key && State(m.state.Load()) != StateIdle && State(m.state.Load()) != StateError {
		m.mu.Unlock()
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.key = key
	m.mu.Unlock()

	m.state.Store(int32(StateLoading))
	m.progress.Store(math.Float32bits(0))
	m.setStatus("loading " + key)
	m.log.Info("environment changed", zap.String("key", key))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := m.run(ctx, key, provider, cons)
		switch {
		case err == nil:
		case errors.Is(err, ErrBuildCancelled):
			m.log.Info("build cancelled", zap.String("key", key))
		default:
			m.state.Store(int32(StateError))
			m.progress.Store(math.Float32bits(notBuilding))
			m.setStatus("build failed: " + err.Error())
			m.log.Error("build failed", zap.String("key", key), zap.Error(err))
		}
	}()
}

// Unload cancels any build and drops the published result.
func (m *Manager) Unload() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.key = ""
	m.mu.Unlock()

	m.current.Store(nil)
	m.state.Store(int32(StateIdle))
	m.progress.Store(math.Float32bits(notBuilding))
	m.setStatus("unloaded")
	if m.opts.OnChange != nil {
		m.opts.OnChange(nil)
	}
}

// Wait blocks until all background work has finished. Test helper.
func (m *Manager) Wait() { m.wg.Wait() }

func (m *Manager) run(ctx context.Context, key string, provider geometry.Provider, cons *mesh.OffMeshConnectionSet) error {
	if err := m.waitHold(ctx); err != nil {
		return err
	}

	snap, err := provider.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot geometry: %w", err)
	}

	contentVersion := m.settings.ContentHash()
	if nm, ok := m.loadCache(key, contentVersion); ok {
		if err := ctx.Err(); err != nil {
			return ErrBuildCancelled
		}
		m.publish(key, nm)
		m.setStatus("loaded from cache: " + key)
		return nil
	}

	nm, err := m.buildMesh(ctx, snap, cons)
	if err != nil {
		return err
	}

	// Second pass: detect jump-down links from the built mesh, then
	// rebuild with them baked in so they serialize with their tiles.
	if m.settings.DetectJumpDownLinks {
		detected := m.detectConnections(nm, cons)
		if len(detected) > 0 {
			m.log.Info("detected off-mesh connections", zap.Int("count", len(detected)))
			augmented := mesh.NewOffMeshConnectionSet()
			if cons != nil {
				for _, c := range cons.All() {
					augmented.Add(c)
				}
			}
			for _, c := range detected {
				augmented.Add(c)
			}
			nm, err = m.buildMesh(ctx, snap, augmented)
			if err != nil {
				return err
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return ErrBuildCancelled
	}
	m.persistCache(key, contentVersion, nm)
	m.publish(key, nm)
	m.setStatus("built " + key)
	return nil
}

func (m *Manager) waitHold(ctx context.Context) error {
	if m.opts.Hold == nil {
		return nil
	}
	ticker := time.NewTicker(m.opts.HoldPollInterval)
	defer ticker.Stop()
	for m.opts.Hold() {
		select {
		case <-ctx.Done():
			return ErrBuildCancelled
		case <-ticker.C:
		}
	}
	return nil
}

func (m *Manager) cachePath(key string) string {
	return filepath.Join(m.opts.CacheDir, key+".navtile")
}

func (m *Manager) loadCache(key string, contentVersion uint32) (*mesh.NavMesh, bool) {
	if m.opts.CacheDir == "" {
		return nil, false
	}
	data, err := os.ReadFile(m.cachePath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	nm, err := mesh.Decode(data, contentVersion)
	if err != nil {
		if errors.Is(err, mesh.ErrIncompatibleCache) {
			m.log.Info("cache incompatible, rebuilding", zap.String("key", key), zap.Error(err))
		} else {
			m.log.Warn("cache decode failed, rebuilding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return nm, true
}

// persistCache writes through a temp file so a failed write never
// leaves a truncated blob behind. Failure is logged, not fatal.
func (m *Manager) persistCache(key string, contentVersion uint32, nm *mesh.NavMesh) {
	if m.opts.CacheDir == "" {
		return
	}
	data, err := mesh.Encode(nm, contentVersion)
	if err != nil {
		m.log.Warn("cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := os.MkdirAll(m.opts.CacheDir, 0o755); err != nil {
		m.log.Warn("cache dir create failed", zap.String("dir", m.opts.CacheDir), zap.Error(err))
		return
	}
	tmp := m.cachePath(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		m.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, m.cachePath(key)); err != nil {
		os.Remove(tmp)
		m.log.Warn("cache rename failed", zap.String("key", key), zap.Error(err))
	}
}

func (m *Manager) publish(key string, nm *mesh.NavMesh) {
	res := &Result{
		Key:    key,
		Mesh:   nm,
		Engine: query.NewEngine(nm, m.log),
	}
	m.current.Store(res)
	m.state.Store(int32(StateReady))
	m.progress.Store(math.Float32bits(notBuilding))
	m.log.Info("navigation mesh published",
		zap.String("key", key), zap.Int("tiles", nm.TileCount()))
	if m.opts.OnChange != nil {
		m.opts.OnChange(res)
	}
}

// buildMesh runs the tile pipeline over the snapshot's grid. Tiles are
// computed concurrently but appended in grid order so polygon references
// are reproducible.
func (m *Manager) buildMesh(ctx context.Context, snap *geometry.Snapshot, cons *mesh.OffMeshConnectionSet) (*mesh.NavMesh, error) {
	s := m.settings
	ts := s.TileWorldSize()

	bmin, bmax, ok := snap.Bounds()
	if !ok {
		// Nothing to build; an empty mesh is still a valid publish.
		return mesh.NewNavMesh(mesh.Params{TileWidth: ts, TileHeight: ts, MaxTiles: 1}), nil
	}

	tw := int32(math.Ceil(float64((bmax.X() - bmin.X()) / ts)))
	th := int32(math.Ceil(float64((bmax.Z() - bmin.Z()) / ts)))
	tw = max(tw, 1)
	th = max(th, 1)

	params := mesh.Params{
		Origin:     mgl32.Vec3{bmin.X(), bmin.Y(), bmin.Z()},
		TileWidth:  ts,
		TileHeight: ts,
		MaxTiles:   tw * th,
	}
	nm := mesh.NewNavMesh(params)
	tb := builder.NewTileBuilder(snap, s, cons, params.Origin, m.log)

	total := tw * th
	tiles := make([]*mesh.Tile, total)
	errs := make([]error, total)
	var done atomic.Int32

	jobs := make(chan int32)
	var wg sync.WaitGroup
	for w := 0; w < m.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				tiles[i], errs[i] = tb.BuildTile(i%tw, i/tw)
				n := done.Add(1)
				m.progress.Store(math.Float32bits(float32(n) / float32(total)))
			}
		}()
	}

	cancelled := false
feed:
	for i := int32(0); i < total; i++ {
		select {
		case <-ctx.Done():
			cancelled = true
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled {
		return nil, ErrBuildCancelled
	}
	for i := int32(0); i < total; i++ {
		if errs[i] != nil {
			return nil, fmt.Errorf("build tile (%d,%d): %w", i%tw, i/tw, errs[i])
		}
		if tiles[i].IsEmpty() {
			continue
		}
		if _, err := nm.AddTile(tiles[i]); err != nil {
			return nil, fmt.Errorf("add tile (%d,%d): %w", i%tw, i/tw, err)
		}
	}
	return nm, nil
}

func (m *Manager) detectConnections(nm *mesh.NavMesh, cons *mesh.OffMeshConnectionSet) []mesh.OffMeshConnection {
	eng := query.NewEngine(nm, m.log)
	found := builder.DetectJumpDownConnections(nm, m.settings, func(center mgl32.Vec3, radius, down float32) (mgl32.Vec3, bool) {
		pt, _, err := eng.FindFloorPoint(center, radius, down, nil)
		return pt, err == nil
	})
	if cons == nil {
		return found
	}
	// Manual connections already cover some detected spots.
	existing := cons.All()
	var fresh []mesh.OffMeshConnection
	for _, c := range found {
		dup := false
		for i := range existing {
			if existing[i].Start.Sub(c.Start).LenSqr() < common.Sqr(c.Radius) {
				dup = true
				break
			}
		}
		if !dup {
			fresh = append(fresh, c)
		}
	}
	return fresh
}
