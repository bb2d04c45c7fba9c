// Package config holds the tunables of a fabprep run and reads them from
// YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chazu/fabprep/pkg/kernel"
	"github.com/chazu/fabprep/pkg/kernel/sdfx"
	"github.com/chazu/fabprep/pkg/meshio"
	"github.com/chazu/fabprep/pkg/mold"
	"github.com/chazu/fabprep/pkg/overhang"
	"github.com/chazu/fabprep/pkg/parting"
	"github.com/chazu/fabprep/pkg/support"
	"gopkg.in/yaml.v3"
)

// Kernel backends.
const (
	BackendSdfx     = "sdfx"
	BackendManifold = "manifold"
)

// Config is the complete run configuration.
type Config struct {
	Overhang OverhangConfig `yaml:"overhang"`
	Supports SupportsConfig `yaml:"supports"`
	Mold     MoldConfig     `yaml:"mold"`
	Kernel   KernelConfig   `yaml:"kernel"`
	Output   OutputConfig   `yaml:"output"`
}

// OverhangConfig controls face classification.
type OverhangConfig struct {
	Angle float64 `yaml:"angle"` // degrees from build direction
}

// SupportsConfig controls pillar synthesis.
type SupportsConfig struct {
	Radius      float64 `yaml:"radius"`
	Segments    int     `yaml:"segments"`
	MaxSupports int     `yaml:"max_supports"`
	BatchSize   int     `yaml:"batch_size"`
	Workers     int     `yaml:"workers"` // 0 uses GOMAXPROCS
}

// MoldConfig controls the parting slab and the liner.
type MoldConfig struct {
	SlabThickness float64 `yaml:"slab_thickness"`
	SlabMargin    float64 `yaml:"slab_margin"`
	Axis          string  `yaml:"axis"` // x, y or z
	LinerScale    float64 `yaml:"liner_scale"`
}

// KernelConfig selects and tunes the boolean backend.
type KernelConfig struct {
	Backend   string        `yaml:"backend"` // sdfx or manifold
	MeshCells int           `yaml:"mesh_cells"`
	MaxCells  int           `yaml:"max_cells"` // grid cap after refining for thin operands
	Mesher    string        `yaml:"mesher"`    // search or marching-cubes
	Timeout   time.Duration `yaml:"timeout"`
}

// OutputConfig controls where results go.
type OutputConfig struct {
	Dir      string `yaml:"dir"`
	Format   string `yaml:"format"`   // stl or obj
	Supports string `yaml:"supports"` // empty derives <input>_support.<format>
}

// Default returns the stock configuration.
func Default() *Config {
	so := support.DefaultOptions()
	po := parting.DefaultOptions()
	return &Config{
		Overhang: OverhangConfig{Angle: overhang.DefaultThreshold},
		Supports: SupportsConfig{
			Radius:      so.Radius,
			Segments:    so.Segments,
			MaxSupports: so.MaxSupports,
			BatchSize:   so.BatchSize,
		},
		Mold: MoldConfig{
			SlabThickness: po.Thickness,
			SlabMargin:    po.Margin,
			Axis:          po.Axis.String(),
			LinerScale:    mold.DefaultLinerScale,
		},
		Kernel: KernelConfig{
			Backend:   BackendSdfx,
			MeshCells: sdfx.DefaultMeshCells,
			MaxCells:  sdfx.DefaultMaxCells,
			Mesher:    string(sdfx.Search),
			Timeout:   kernel.DefaultTimeout,
		},
		Output: OutputConfig{
			Dir:    ".",
			Format: string(meshio.STL),
		},
	}
}

// Load reads a YAML file on top of the defaults. Unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Clone returns an independent copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate reports the first setting that cannot produce a run.
func (c *Config) Validate() error {
	if c.Overhang.Angle < 0 || c.Overhang.Angle > 180 {
		return fmt.Errorf("overhang.angle must be within [0, 180], got %g", c.Overhang.Angle)
	}
	if err := c.SupportOptions().Validate(); err != nil {
		return err
	}
	if c.Supports.Segments < 3 {
		return fmt.Errorf("supports.segments must be at least 3, got %d", c.Supports.Segments)
	}
	if c.Supports.Workers < 0 {
		return fmt.Errorf("supports.workers must not be negative, got %d", c.Supports.Workers)
	}
	if c.Mold.SlabThickness <= 0 {
		return fmt.Errorf("mold.slab_thickness must be positive, got %g", c.Mold.SlabThickness)
	}
	if c.Mold.SlabMargin < 0 {
		return fmt.Errorf("mold.slab_margin must not be negative, got %g", c.Mold.SlabMargin)
	}
	if _, err := parting.ParseAxis(c.Mold.Axis); err != nil {
		return fmt.Errorf("mold.axis: %w", err)
	}
	if c.Mold.LinerScale <= 1 {
		return fmt.Errorf("mold.liner_scale must be greater than 1, got %g", c.Mold.LinerScale)
	}
	switch c.Kernel.Backend {
	case BackendSdfx, BackendManifold:
	default:
		return fmt.Errorf("kernel.backend must be %s or %s, got %q", BackendSdfx, BackendManifold, c.Kernel.Backend)
	}
	if c.Kernel.MeshCells <= 0 {
		return fmt.Errorf("kernel.mesh_cells must be positive, got %d", c.Kernel.MeshCells)
	}
	if c.Kernel.MaxCells < c.Kernel.MeshCells {
		return fmt.Errorf("kernel.max_cells must be at least kernel.mesh_cells (%d), got %d", c.Kernel.MeshCells, c.Kernel.MaxCells)
	}
	switch sdfx.Mesher(c.Kernel.Mesher) {
	case sdfx.Search, sdfx.MarchingCubes:
	default:
		return fmt.Errorf("kernel.mesher must be %s or %s, got %q", sdfx.Search, sdfx.MarchingCubes, c.Kernel.Mesher)
	}
	if c.Kernel.Timeout < 0 {
		return fmt.Errorf("kernel.timeout must not be negative, got %s", c.Kernel.Timeout)
	}
	if _, err := meshio.ParseFormat(c.Output.Format); err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if c.Output.Supports != "" {
		if _, err := meshio.FormatOf(c.Output.Supports); err != nil {
			return fmt.Errorf("output.supports: %w", err)
		}
	}
	return nil
}

// SupportOptions converts the supports section.
func (c *Config) SupportOptions() support.Options {
	return support.Options{
		Radius:      c.Supports.Radius,
		Segments:    c.Supports.Segments,
		MaxSupports: c.Supports.MaxSupports,
		BatchSize:   c.Supports.BatchSize,
		Workers:     c.Supports.Workers,
	}
}

// PartingOptions converts the slab settings. The axis must already be
// valid.
func (c *Config) PartingOptions() parting.Options {
	axis, _ := parting.ParseAxis(c.Mold.Axis)
	return parting.Options{
		Thickness: c.Mold.SlabThickness,
		Axis:      axis,
		Margin:    c.Mold.SlabMargin,
	}
}

// MoldOptions converts the liner settings.
func (c *Config) MoldOptions() mold.Options {
	return mold.Options{LinerScale: c.Mold.LinerScale}
}

// SdfxOptions converts the kernel settings for the sdfx backend.
func (c *Config) SdfxOptions() sdfx.Options {
	return sdfx.Options{
		Cells:    c.Kernel.MeshCells,
		MaxCells: c.Kernel.MaxCells,
		Mesher:   sdfx.Mesher(c.Kernel.Mesher),
	}
}

// Format returns the output format. The format must already be valid.
func (c *Config) Format() meshio.Format {
	f, _ := meshio.ParseFormat(c.Output.Format)
	return f
}

// SupportsPath returns the support output path for input.
func (c *Config) SupportsPath(input string) string {
	if c.Output.Supports != "" {
		return c.Output.Supports
	}
	return meshio.SupportPath(input, c.Format())
}
