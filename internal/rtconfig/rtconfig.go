// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package rtconfig implements a typed configuration object
// replacing the original's findArgument string-keyed
// argument table (shaderKernelPath, exposure, bdptFlag=...,
// etc). Values are populated from cobra flags in cmd/vkpt
// and, optionally, merged from a YAML scene/render-settings
// file.
package rtconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Integrator selects which light-transport estimator the
// transport package's compile-time-style flags should
// configure.
type Integrator string

// Supported integrators (spec §6's CLI option).
const (
	IntegratorPT   Integrator = "pt"
	IntegratorLT   Integrator = "lt"
	IntegratorPPM  Integrator = "ppm"
	IntegratorBPM  Integrator = "bpm"
	IntegratorBDPT Integrator = "bdpt"
	IntegratorVCM  Integrator = "vcm"
)

// Config is the complete set of tunables a render session
// needs, merged from CLI flags and an optional YAML file.
type Config struct {
	// Scene/output.
	ScenePath  string `yaml:"scene"`
	OutputPath string `yaml:"output,omitempty"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`

	// Transport.
	Integrator      Integrator `yaml:"integrator"`
	MaxPathLength   int        `yaml:"maxPathLength"`
	MinPathLength   int        `yaml:"minPathLength"`
	RussianRoulette bool       `yaml:"russianRoulette"`
	RadiusInitial   float32    `yaml:"radiusInitial"`
	RadiusAlpha     float32    `yaml:"radiusAlpha"`

	// Reservoir reuse.
	ReservoirEnabled bool    `yaml:"reservoirEnabled"`
	TemporalReuse    bool    `yaml:"temporalReuse"`
	SpatialReuse     bool    `yaml:"spatialReuse"`
	SpatialNeighbors int     `yaml:"spatialNeighbors"`
	MaxReservoirM    float32 `yaml:"maxReservoirM"`

	// Hash grid.
	HashGridCapacity   int     `yaml:"hashGridCapacity"`
	HashGridCellRadius float32 `yaml:"hashGridCellRadius"`
	HashGridJitter     bool    `yaml:"hashGridJitter"`

	// Denoiser.
	DenoiseEnabled      bool   `yaml:"denoiseEnabled"`
	VarianceBoostLength int    `yaml:"varianceBoostLength"`
	AtrousIterations    int    `yaml:"atrousIterations"`
	FilterKernel        string `yaml:"filterKernel"`

	// Tonemap.
	ToneCurve  string  `yaml:"toneCurve"`
	Exposure   float32 `yaml:"exposure"`
	Gamma      float32 `yaml:"gamma"`
	Demodulate bool    `yaml:"demodulate"`

	// Environment.
	EnvironmentMap string `yaml:"environmentMap,omitempty"`

	// Ambient.
	ShaderKernelPath string `yaml:"shaderKernelPath"`
	LogLevel         string `yaml:"logLevel"`
}

// Default returns a Config populated with the renderer's
// built-in defaults, overridable by CLI flags or a YAML
// file.
func Default() Config {
	return Config{
		Width:               1920,
		Height:              1080,
		Integrator:          IntegratorVCM,
		MaxPathLength:       16,
		MinPathLength:       1,
		RussianRoulette:     true,
		RadiusInitial:       0.003,
		RadiusAlpha:         0.75,
		ReservoirEnabled:    true,
		TemporalReuse:       true,
		SpatialReuse:        true,
		SpatialNeighbors:    5,
		MaxReservoirM:       30,
		HashGridCapacity:    1 << 20,
		HashGridCellRadius:  1.5,
		DenoiseEnabled:      true,
		VarianceBoostLength: 4,
		AtrousIterations:    4,
		FilterKernel:        "atrous",
		ToneCurve:           "aces-fitted",
		Exposure:            0,
		Gamma:               2.2,
		LogLevel:            "info",
	}
}

// MergeYAML overlays fields set in the YAML file at path
// onto c. Only fields present in the file are overwritten:
// yaml.Unmarshal decodes into c itself, which leaves fields
// absent from the file at their current values.
func (c *Config) MergeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("rtconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("rtconfig: parsing %s: %w", path, err)
	}
	return nil
}

// Validate checks invariants the CLI flag parser alone can't
// enforce (cross-field constraints).
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("rtconfig: invalid resolution %dx%d", c.Width, c.Height)
	}
	if c.MinPathLength < 0 || c.MaxPathLength < c.MinPathLength {
		return fmt.Errorf("rtconfig: invalid path length bounds [%d, %d]", c.MinPathLength, c.MaxPathLength)
	}
	switch c.Integrator {
	case IntegratorPT, IntegratorLT, IntegratorPPM, IntegratorBPM, IntegratorBDPT, IntegratorVCM:
	default:
		return fmt.Errorf("rtconfig: unknown integrator %q", c.Integrator)
	}
	return nil
}
