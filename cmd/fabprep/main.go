package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chazu/fabprep/pkg/config"
	"github.com/chazu/fabprep/pkg/progress"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "fabprep",
	Short: "Prepare closed meshes for fabrication: print supports and two-piece molds",
	Long: `fabprep reads an STL or OBJ model and derives the parts needed to make it:
support pillars under every overhanging face for additive printing, and a
two-piece mold (a rigid shell and a slightly larger flexible liner) split by
a parting slab.

Settings come from defaults, an optional YAML config file, command-line
flags and finally an optional recipe file, in that order.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(flags.logLevel, flags.logJSON)
	},
}

// cliFlags holds every flag value. Overrides are applied only for flags
// that were set on the command line.
type cliFlags struct {
	configPath string
	recipePath string
	logLevel   string
	logJSON    bool

	angle         float64
	radius        float64
	segments      int
	maxSupports   int
	batchSize     int
	workers       int
	slabThickness float64
	slabMargin    float64
	axis          string
	linerScale    float64
	backend       string
	meshCells     int
	maxCells      int
	mesher        string
	timeout       time.Duration
	outDir        string
	format        string
	supportsPath  string
}

var flags cliFlags

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "YAML config file")
	pf.StringVarP(&flags.recipePath, "recipe", "r", "", "recipe file applied after flags")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.BoolVar(&flags.logJSON, "log-json", false, "log as JSON")

	def := config.Default()
	pf.Float64Var(&flags.angle, "angle", def.Overhang.Angle, "overhang threshold in degrees from the build direction")
	pf.Float64Var(&flags.radius, "radius", def.Supports.Radius, "support pillar radius")
	pf.IntVar(&flags.segments, "segments", def.Supports.Segments, "sides of each support pillar")
	pf.IntVar(&flags.maxSupports, "max-supports", def.Supports.MaxSupports, "overhang faces beyond this count get no pillar")
	pf.IntVar(&flags.batchSize, "batch-size", def.Supports.BatchSize, "pillars per union batch")
	pf.IntVar(&flags.workers, "workers", def.Supports.Workers, "worker goroutines, 0 for one per CPU")
	pf.Float64Var(&flags.slabThickness, "slab-thickness", def.Mold.SlabThickness, "parting slab thickness")
	pf.Float64Var(&flags.slabMargin, "slab-margin", def.Mold.SlabMargin, "parting slab overhang past the model on each side")
	pf.StringVar(&flags.axis, "axis", def.Mold.Axis, "parting split axis: x, y or z")
	pf.Float64Var(&flags.linerScale, "liner-scale", def.Mold.LinerScale, "uniform liner growth, greater than 1")
	pf.StringVar(&flags.backend, "backend", def.Kernel.Backend, "boolean kernel: sdfx or manifold")
	pf.IntVar(&flags.meshCells, "mesh-cells", def.Kernel.MeshCells, "sdfx cells along the longest side")
	pf.IntVar(&flags.maxCells, "max-cells", def.Kernel.MaxCells, "sdfx cell limit along the longest side after refining for thin parts")
	pf.StringVar(&flags.mesher, "mesher", def.Kernel.Mesher, "sdfx mesher: search or marching-cubes")
	pf.DurationVar(&flags.timeout, "timeout", def.Kernel.Timeout, "limit for a single boolean operation")
	pf.StringVarP(&flags.outDir, "out", "o", def.Output.Dir, "directory for the mold pieces")
	pf.StringVar(&flags.format, "format", def.Output.Format, "output format: stl or obj")
	pf.StringVar(&flags.supportsPath, "supports-out", "", "support output path (default <input>_support.<format>)")
}

// applyFlags copies every flag the user set into cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("angle", func() { cfg.Overhang.Angle = flags.angle })
	set("radius", func() { cfg.Supports.Radius = flags.radius })
	set("segments", func() { cfg.Supports.Segments = flags.segments })
	set("max-supports", func() { cfg.Supports.MaxSupports = flags.maxSupports })
	set("batch-size", func() { cfg.Supports.BatchSize = flags.batchSize })
	set("workers", func() { cfg.Supports.Workers = flags.workers })
	set("slab-thickness", func() { cfg.Mold.SlabThickness = flags.slabThickness })
	set("slab-margin", func() { cfg.Mold.SlabMargin = flags.slabMargin })
	set("axis", func() { cfg.Mold.Axis = flags.axis })
	set("liner-scale", func() { cfg.Mold.LinerScale = flags.linerScale })
	set("backend", func() { cfg.Kernel.Backend = flags.backend })
	set("mesh-cells", func() { cfg.Kernel.MeshCells = flags.meshCells })
	set("max-cells", func() { cfg.Kernel.MaxCells = flags.maxCells })
	set("mesher", func() { cfg.Kernel.Mesher = flags.mesher })
	set("timeout", func() { cfg.Kernel.Timeout = flags.timeout })
	set("out", func() { cfg.Output.Dir = flags.outDir })
	set("format", func() { cfg.Output.Format = flags.format })
	set("supports-out", func() { cfg.Output.Supports = flags.supportsPath })
}

var logger = slog.Default()

func setupLogging(level string, json bool) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if json {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger = slog.New(h)
	slog.SetDefault(logger)
	return nil
}

func sink() progress.Sink {
	return progress.NewSlog(logger)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
