package main

import (
	"fmt"
	"math"

	"github.com/chazu/fabprep/pkg/meshio"
	"github.com/chazu/fabprep/pkg/pipeline"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/spatial/r3"
)

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Display mesh statistics and the overhang count",
	Long:  "Show vertex and face counts, bounds, volume, watertightness and how many faces overhang at the configured angle.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	s, err := resolve(cmd, args)
	if err != nil {
		return err
	}
	m, err := meshio.NewFileLoader(sink()).Load(s.input)
	if err != nil {
		return err
	}
	st := pipeline.Inspect(m, s.cfg.Overhang.Angle)

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Mesh Information")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "Name: %s\n", st.Name)
	fmt.Fprintf(w, "File: %s\n\n", s.input)

	fmt.Fprintln(w, "Topology:")
	fmt.Fprintf(w, "  Vertices: %d\n", st.Vertices)
	fmt.Fprintf(w, "  Faces: %d\n", st.Faces)
	fmt.Fprintf(w, "  Open edges: %d\n", st.OpenEdges)
	fmt.Fprintf(w, "  Closed volume: %t\n\n", st.Volumetric)

	fmt.Fprintln(w, "Bounding Box:")
	fmt.Fprintf(w, "  Min: %s\n", formatVec(st.Bounds.Min))
	fmt.Fprintf(w, "  Max: %s\n", formatVec(st.Bounds.Max))
	fmt.Fprintf(w, "  Size: %s\n\n", formatVec(st.Extents))

	fmt.Fprintln(w, "Measurements:")
	fmt.Fprintf(w, "  Surface Area: %.6f square units\n", st.SurfaceArea)
	fmt.Fprintf(w, "  Volume: %.6f cubic units\n\n", st.Volume)

	fmt.Fprintln(w, "Overhangs:")
	fmt.Fprintf(w, "  Threshold: %.1f degrees\n", st.Angle)
	fmt.Fprintf(w, "  Faces: %d\n", st.Overhangs)
	if !math.IsNaN(st.Steepest) {
		fmt.Fprintf(w, "  Steepest face: %.1f degrees\n", st.Steepest)
	}
	if st.Overhangs > s.cfg.Supports.MaxSupports {
		fmt.Fprintf(w, "  Only the first %d would get pillars (max supports)\n", s.cfg.Supports.MaxSupports)
	}
	return nil
}

func formatVec(v r3.Vec) string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", v.X, v.Y, v.Z)
}
