package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"navtile/mesh"
	"navtile/query"
)

var (
	pathFrom     string
	pathTo       string
	pathAnyAngle bool
	pathNoSmooth bool
)

var pathCmd = &cobra.Command{
	Use:   "path <cache-file>",
	Short: "find a path between two points on a cached mesh",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseVec3(pathFrom)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		end, err := parseVec3(pathTo)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if len(data) < 12 {
			return fmt.Errorf("%s: not a navigation mesh cache", args[0])
		}
		content := binary.LittleEndian.Uint32(data[8:12])
		nm, err := mesh.Decode(data, content)
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}

		eng := query.NewEngine(nm, log)
		filter := query.NewStandardFilter(false, false)
		points, err := eng.FindPathPoints(start, end, filter, query.PathOptions{
			AnyAngle: pathAnyAngle,
			Smooth:   !pathNoSmooth,
		})
		if err != nil {
			return err
		}
		for _, p := range points {
			fmt.Printf("%.3f %.3f %.3f\n", p.X(), p.Y(), p.Z())
		}
		return nil
	},
}

func init() {
	pathCmd.Flags().StringVar(&pathFrom, "from", "", "start point as x,y,z")
	pathCmd.Flags().StringVar(&pathTo, "to", "", "end point as x,y,z")
	pathCmd.Flags().BoolVar(&pathAnyAngle, "any-angle", false, "enable raycast shortcuts")
	pathCmd.Flags().BoolVar(&pathNoSmooth, "no-smooth", false, "return polygon centers instead of a pulled string")
	pathCmd.MarkFlagRequired("from")
	pathCmd.MarkFlagRequired("to")
}

func parseVec3(s string) (mgl32.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl32.Vec3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v mgl32.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return mgl32.Vec3{}, err
		}
		v[i] = float32(f)
	}
	return v, nil
}
