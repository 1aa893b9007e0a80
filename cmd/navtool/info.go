package main

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"navtile/mesh"
)

var infoCmd = &cobra.Command{
	Use:   "info <cache-file>",
	Short: "inspect a navigation mesh cache blob",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if len(data) < 12 {
			return fmt.Errorf("%s: not a navigation mesh cache", args[0])
		}
		magic := binary.LittleEndian.Uint32(data[0:4])
		format := binary.LittleEndian.Uint32(data[4:8])
		content := binary.LittleEndian.Uint32(data[8:12])
		fmt.Printf("magic:           0x%08x\n", magic)
		fmt.Printf("format version:  %d\n", format)
		fmt.Printf("content version: 0x%08x\n", content)

		nm, err := mesh.Decode(data, content)
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}

		polys, verts, cons := 0, 0, 0
		for i := int32(0); i < int32(nm.TileCount()); i++ {
			t := nm.TileByIndex(i)
			polys += len(t.Polys)
			verts += len(t.Verts) / 3
			cons += len(t.OffMeshCons)
		}
		p := nm.Params()
		fmt.Printf("origin:          (%.2f, %.2f, %.2f)\n", p.Origin.X(), p.Origin.Y(), p.Origin.Z())
		fmt.Printf("tile size:       %.2f x %.2f\n", p.TileWidth, p.TileHeight)
		fmt.Printf("tiles:           %d\n", nm.TileCount())
		fmt.Printf("polygons:        %d\n", polys)
		fmt.Printf("vertices:        %d\n", verts)
		fmt.Printf("offmesh links:   %d\n", cons)
		return nil
	},
}
