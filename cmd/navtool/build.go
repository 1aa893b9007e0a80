package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"navtile/geometry"
	"navtile/manager"
	"navtile/mesh"
)

var (
	buildObj string
	buildKey string
	buildOut string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "build a navigation mesh from an OBJ file and persist it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if buildObj == "" {
			return fmt.Errorf("--obj is required")
		}
		key := buildKey
		if key == "" {
			key = strings.TrimSuffix(filepath.Base(buildObj), filepath.Ext(buildObj))
		}
		cacheDir := cfg.CacheDir
		if buildOut != "" {
			cacheDir = buildOut
		}

		mgr := manager.New(cfg.Settings, manager.Options{CacheDir: cacheDir}, log)
		mgr.SetEnvironment(key, &objProvider{key: key, path: buildObj}, mesh.NewOffMeshConnectionSet())
		mgr.Wait()

		if mgr.State() != manager.StateReady {
			return fmt.Errorf("build failed: %s", mgr.Status())
		}
		res := mgr.Current()
		fmt.Printf("built %s: %d tiles -> %s\n",
			key, res.Mesh.TileCount(), filepath.Join(cacheDir, key+".navtile"))
		return nil
	},
}

func init() {
	buildCmd.Flags().StringVar(&buildObj, "obj", "", "input OBJ file")
	buildCmd.Flags().StringVar(&buildKey, "key", "", "environment key (defaults to the OBJ base name)")
	buildCmd.Flags().StringVar(&buildOut, "out", "", "cache directory override")
}

type objProvider struct {
	key  string
	path string
}

func (p *objProvider) Key() string { return p.key }

func (p *objProvider) Snapshot() (*geometry.Snapshot, error) {
	return geometry.LoadOBJ(p.path)
}
