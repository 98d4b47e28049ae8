// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/transitflow/engine"
	"github.com/pthm-cable/transitflow/solver"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Grid      GridConfig      `yaml:"grid"`
	Solver    SolverConfig    `yaml:"solver"`
	Emitters  EmittersConfig  `yaml:"emitters"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// GridConfig holds the interior grid size. Fixed for the lifetime of an engine.
type GridConfig struct {
	M int `yaml:"m"` // Interior columns
	N int `yaml:"n"` // Interior rows
}

// SolverConfig holds the numerical parameters of the fluid solver.
type SolverConfig struct {
	DT              float64 `yaml:"dt"`
	Diffusivity     float64 `yaml:"diffusivity"`
	Viscosity       float64 `yaml:"viscosity"`
	Dissipation     float64 `yaml:"dissipation"`      // Density retained per step, (0,1]
	DissipationMode string  `yaml:"dissipation_mode"` // decay | folded
	SourceScale     float64 `yaml:"source_scale"`
	// Multiply sources by sqrt(M*N)/100 so visual magnitude is resolution independent
	ResolutionScaledSources bool `yaml:"resolution_scaled_sources"`

	DiffusionSweeps int    `yaml:"diffusion_sweeps"`
	ViscositySweeps int    `yaml:"viscosity_sweeps"`
	PressureSweeps  int    `yaml:"pressure_sweeps"`
	Boundary        string `yaml:"boundary"` // open | wall | zero
	Workers         int    `yaml:"workers"`  // 0 = GOMAXPROCS
}

// EmittersConfig holds point-source parameters.
type EmittersConfig struct {
	Count           int     `yaml:"count"`
	Seed            int64   `yaml:"seed"`
	Density         float64 `yaml:"density"`          // Density source per emitter cell
	VelocityGain    float64 `yaml:"velocity_gain"`    // Velocity source = emitter velocity (domain units) * gain
	Speed           float64 `yaml:"speed"`            // Cells per frame in live mode
	NoiseScale      float64 `yaml:"noise_scale"`      // Heading noise frequency
	RefreshInterval int     `yaml:"refresh_interval"` // Frames between source rebuilds
	TrackFile       string  `yaml:"track_file"`       // CSV replay (empty = live wander)
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow int `yaml:"stats_window"` // Frames per stats record
	PerfWindow  int `yaml:"perf_window"`  // Frames averaged by the perf collector
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	Cells                int     // (M+2)*(N+2)
	SourceScaleEffective float64 // SourceScale with resolution scaling applied
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	// Start with embedded defaults
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	// Load user config if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// Compute derived values
	cfg.computeDerived()

	return cfg, nil
}

// Validate checks every parameter the solver trusts without rechecking.
// All violations are reported together.
func (c *Config) Validate() error {
	var errs []error
	finite := func(name string, v float64) bool {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("%s must be finite, got %v", name, v))
			return false
		}
		return true
	}

	if c.Grid.M <= 0 || c.Grid.N <= 0 {
		errs = append(errs, fmt.Errorf("grid must be positive, got %dx%d", c.Grid.M, c.Grid.N))
	}

	s := c.Solver
	finite("solver.dt", s.DT)
	if finite("solver.diffusivity", s.Diffusivity) && s.Diffusivity <= 0 {
		errs = append(errs, fmt.Errorf("solver.diffusivity must be positive, got %v", s.Diffusivity))
	}
	if finite("solver.viscosity", s.Viscosity) && s.Viscosity <= 0 {
		errs = append(errs, fmt.Errorf("solver.viscosity must be positive, got %v", s.Viscosity))
	}
	if finite("solver.dissipation", s.Dissipation) && (s.Dissipation <= 0 || s.Dissipation > 1) {
		errs = append(errs, fmt.Errorf("solver.dissipation must be in (0,1], got %v", s.Dissipation))
	}
	if finite("solver.source_scale", s.SourceScale) && s.SourceScale <= 0 {
		errs = append(errs, fmt.Errorf("solver.source_scale must be positive, got %v", s.SourceScale))
	}
	if s.DiffusionSweeps < 0 || s.ViscositySweeps < 0 || s.PressureSweeps <= 0 {
		errs = append(errs, fmt.Errorf("sweep counts must be non-negative and pressure_sweeps positive, got %d/%d/%d",
			s.DiffusionSweeps, s.ViscositySweeps, s.PressureSweeps))
	}
	if _, err := solver.ParseBoundaryMode(s.Boundary); err != nil {
		errs = append(errs, fmt.Errorf("solver.boundary: %w", err))
	}
	if _, err := engine.ParseDissipationMode(s.DissipationMode); err != nil {
		errs = append(errs, fmt.Errorf("solver.dissipation_mode: %w", err))
	}

	if c.Emitters.Count < 0 {
		errs = append(errs, fmt.Errorf("emitters.count must be non-negative, got %d", c.Emitters.Count))
	}
	if c.Emitters.RefreshInterval <= 0 {
		errs = append(errs, fmt.Errorf("emitters.refresh_interval must be positive, got %d", c.Emitters.RefreshInterval))
	}

	return errors.Join(errs...)
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.Cells = (c.Grid.M + 2) * (c.Grid.N + 2)

	c.Derived.SourceScaleEffective = c.Solver.SourceScale
	if c.Solver.ResolutionScaledSources {
		c.Derived.SourceScaleEffective *= math.Sqrt(float64(c.Grid.M)*float64(c.Grid.N)) / 100
	}
}

// EngineParams converts the solver section into engine parameters.
// The config must have passed Validate.
func (c *Config) EngineParams() engine.Params {
	bnd, _ := solver.ParseBoundaryMode(c.Solver.Boundary)
	mode, _ := engine.ParseDissipationMode(c.Solver.DissipationMode)
	return engine.Params{
		DT:              float32(c.Solver.DT),
		Diffusivity:     float32(c.Solver.Diffusivity),
		Viscosity:       float32(c.Solver.Viscosity),
		Dissipation:     float32(c.Solver.Dissipation),
		SourceScale:     float32(c.Derived.SourceScaleEffective),
		DissipationMode: mode,
		DiffusionSweeps: c.Solver.DiffusionSweeps,
		ViscositySweeps: c.Solver.ViscositySweeps,
		PressureSweeps:  c.Solver.PressureSweeps,
		Boundary:        bnd,
		Workers:         c.Solver.Workers,
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
