// Package config handles the YAML-backed simulation configuration.
// It supports viper-based loading with defaults and environment overrides,
// plus the deep-copy and sanitization steps applied before a configuration
// is handed to a background worker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/betric/simmer/pkg/models"
)

// SimConfig holds a complete simulation configuration.
type SimConfig struct {
	// RunName labels the run in logs, status output and run history.
	RunName string `yaml:"run_name" mapstructure:"run_name"`
	// World holds the spatial environment settings.
	World WorldConfig `yaml:"world" mapstructure:"world"`
	// Seed holds the cluster-seeding phase settings.
	Seed PhaseSettings `yaml:"seed" mapstructure:"seed"`
	// Init holds the initialization phase settings.
	Init PhaseSettings `yaml:"init" mapstructure:"init"`
	// Sim holds the main simulation phase settings.
	Sim PhaseSettings `yaml:"sim" mapstructure:"sim"`
	// Results holds export and display options.
	Results ResultsConfig `yaml:"results" mapstructure:"results"`
}

// WorldConfig holds the spatial environment settings.
type WorldConfig struct {
	// SizeMicrons is the world edge length in micrometers.
	SizeMicrons float64 `yaml:"size_microns" mapstructure:"size_microns"`
	// CellRadiusMicrons is the nominal cell radius in micrometers.
	CellRadiusMicrons float64 `yaml:"cell_radius_microns" mapstructure:"cell_radius_microns"`
}

// PhaseSettings holds the time-stepping settings for one phase.
type PhaseSettings struct {
	// TimeStep is the solver time step in seconds.
	TimeStep float64 `yaml:"time_step" mapstructure:"time_step"`
	// TotalTime is the simulated duration in seconds.
	TotalTime float64 `yaml:"total_time" mapstructure:"total_time"`
	// SampleEvery controls how often a sample is kept, in steps.
	SampleEvery int `yaml:"sample_every" mapstructure:"sample_every"`
}

// Steps returns the number of solver steps the settings imply.
func (p PhaseSettings) Steps() int {
	if p.TimeStep <= 0 || p.TotalTime <= 0 {
		return 0
	}
	return int(p.TotalTime / p.TimeStep)
}

// ResultsConfig holds export and display options.
type ResultsConfig struct {
	// OutputDir is the directory exported results are written to.
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	// SaveToDisk controls whether exports are written to disk.
	SaveToDisk bool `yaml:"save_to_disk" mapstructure:"save_to_disk"`
	// PlotAfterSolving controls interactive plot display after a phase.
	PlotAfterSolving bool `yaml:"plot_after_solving" mapstructure:"plot_after_solving"`
	// AnimWhileSolving controls interactive animation during solving.
	AnimWhileSolving bool `yaml:"anim_while_solving" mapstructure:"anim_while_solving"`
	// ExportFormats lists the file formats written by exporting workers.
	ExportFormats []string `yaml:"export_formats" mapstructure:"export_formats"`
}

// Load reads a simulation configuration from the given YAML file, applying
// defaults for any unset fields and SIMMER_* environment overrides.
func Load(path string) (*SimConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	v.SetEnvPrefix("SIMMER")
	v.AutomaticEnv()

	cfg := &SimConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to the given path as YAML.
func Save(cfg *SimConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the run controller cannot
// work with.
func (c *SimConfig) Validate() error {
	for _, p := range []struct {
		kind     models.PhaseKind
		settings PhaseSettings
	}{
		{models.PhaseSeed, c.Seed},
		{models.PhaseInit, c.Init},
		{models.PhaseMain, c.Sim},
	} {
		if p.settings.TimeStep <= 0 {
			return fmt.Errorf("%s: time_step must be positive, got %g", p.kind, p.settings.TimeStep)
		}
		if p.settings.TotalTime < p.settings.TimeStep {
			return fmt.Errorf("%s: total_time %g shorter than time_step %g", p.kind, p.settings.TotalTime, p.settings.TimeStep)
		}
	}
	if c.World.SizeMicrons <= 0 {
		return fmt.Errorf("world: size_microns must be positive, got %g", c.World.SizeMicrons)
	}
	return nil
}

// PhaseSettingsFor returns the time-stepping settings for the given phase.
func (c *SimConfig) PhaseSettingsFor(kind models.PhaseKind) PhaseSettings {
	switch kind {
	case models.PhaseSeed:
		return c.Seed
	case models.PhaseInit:
		return c.Init
	default:
		return c.Sim
	}
}

// Clone returns a deep copy of the configuration. The copy shares no
// mutable state with the source, so a worker can consume it while the
// source is concurrently edited.
func (c *SimConfig) Clone() (*SimConfig, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("cloning config: %w", err)
	}
	out := &SimConfig{}
	if err := yaml.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("cloning config: %w", err)
	}
	return out, nil
}

// Sanitize adjusts the configuration for unattended background execution:
// interactive display options are disabled and disk writing is forced, so
// an exporting worker always leaves results on disk and never blocks on a
// display.
func (c *SimConfig) Sanitize() {
	c.Results.PlotAfterSolving = false
	c.Results.AnimWhileSolving = false
	c.Results.SaveToDisk = true
}

// setDefaults configures default values for a fresh configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("run_name", "simulation")

	v.SetDefault("world.size_microns", 150.0)
	v.SetDefault("world.cell_radius_microns", 5.0)

	v.SetDefault("seed.time_step", 1.0)
	v.SetDefault("seed.total_time", 10.0)
	v.SetDefault("seed.sample_every", 1)

	v.SetDefault("init.time_step", 0.01)
	v.SetDefault("init.total_time", 5.0)
	v.SetDefault("init.sample_every", 10)

	v.SetDefault("sim.time_step", 0.001)
	v.SetDefault("sim.total_time", 1.0)
	v.SetDefault("sim.sample_every", 100)

	v.SetDefault("results.output_dir", "results")
	v.SetDefault("results.save_to_disk", true)
	v.SetDefault("results.plot_after_solving", false)
	v.SetDefault("results.anim_while_solving", false)
	v.SetDefault("results.export_formats", []string{"csv"})
}

// Default returns a configuration populated with default values.
func Default() *SimConfig {
	return &SimConfig{
		RunName: "simulation",
		World: WorldConfig{
			SizeMicrons:       150.0,
			CellRadiusMicrons: 5.0,
		},
		Seed: PhaseSettings{TimeStep: 1.0, TotalTime: 10.0, SampleEvery: 1},
		Init: PhaseSettings{TimeStep: 0.01, TotalTime: 5.0, SampleEvery: 10},
		Sim:  PhaseSettings{TimeStep: 0.001, TotalTime: 1.0, SampleEvery: 100},
		Results: ResultsConfig{
			OutputDir:     "results",
			SaveToDisk:    true,
			ExportFormats: []string{"csv"},
		},
	}
}

// WriteDefault writes a default configuration file to the given path,
// refusing to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	return Save(Default(), path)
}

// ModTime returns the modification time of the config file, or the zero
// time if it cannot be read.
func ModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
