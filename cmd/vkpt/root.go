// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/lumenforge/vkpt/engine"
	"github.com/lumenforge/vkpt/internal/rtconfig"
)

// cfg is populated from rootCmd's flags and, when cfgFile is set,
// overlaid by rtconfig.Config.MergeYAML per rtconfig's own doc
// comment ("values are populated from cobra flags in cmd/vkpt and,
// optionally, merged from a YAML scene/render-settings file").
var cfg = rtconfig.Default()

var (
	cfgFile    string
	iterations int
)

var rootCmd = &cobra.Command{
	Use:   "vkpt",
	Short: "Render a scene with the unified PT/LT/PPM/BPM/BDPT/VCM estimator",
	Long: `vkpt is a reference offline renderer exercising the unified
light-transport estimator: unidirectional and light path tracing,
progressive/bidirectional photon mapping, bidirectional path tracing
and vertex connection and merging, optionally composited with ReSTIR
direct-lighting reuse and denoised with an SVGF-style a-trous filter.`,
	RunE: runRender,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.ScenePath, "scene", "", "scene description file (required)")
	flags.StringVar(&cfg.OutputPath, "out", "out.png", "output image path")
	flags.IntVar(&cfg.Width, "width", cfg.Width, "output width")
	flags.IntVar(&cfg.Height, "height", cfg.Height, "output height")
	flags.StringVar((*string)(&cfg.Integrator), "integrator", string(cfg.Integrator), "pt|lt|ppm|bpm|bdpt|vcm")
	flags.IntVar(&cfg.MaxPathLength, "max-path-length", cfg.MaxPathLength, "maximum path length")
	flags.IntVar(&cfg.MinPathLength, "min-path-length", cfg.MinPathLength, "length Russian roulette kicks in at")
	flags.BoolVar(&cfg.RussianRoulette, "russian-roulette", cfg.RussianRoulette, "enable Russian roulette termination")
	flags.Float32Var(&cfg.RadiusInitial, "radius-initial", cfg.RadiusInitial, "initial VCM merge radius factor")
	flags.Float32Var(&cfg.RadiusAlpha, "radius-alpha", cfg.RadiusAlpha, "VCM progressive radius reduction rate")
	flags.BoolVar(&cfg.ReservoirEnabled, "restir", cfg.ReservoirEnabled, "enable ReSTIR direct-lighting reuse")
	flags.BoolVar(&cfg.TemporalReuse, "restir-temporal", cfg.TemporalReuse, "enable ReSTIR temporal reuse")
	flags.BoolVar(&cfg.SpatialReuse, "restir-spatial", cfg.SpatialReuse, "enable ReSTIR spatial reuse")
	flags.IntVar(&cfg.SpatialNeighbors, "restir-neighbors", cfg.SpatialNeighbors, "ReSTIR spatial reuse neighbor count")
	flags.Float32Var(&cfg.MaxReservoirM, "restir-max-m", cfg.MaxReservoirM, "ReSTIR reservoir confidence cap")
	flags.IntVar(&cfg.HashGridCapacity, "hashgrid-capacity", cfg.HashGridCapacity, "photon hash grid capacity")
	flags.Float32Var(&cfg.HashGridCellRadius, "hashgrid-cell-radius", cfg.HashGridCellRadius, "hash grid cell radius, in pixels")
	flags.BoolVar(&cfg.HashGridJitter, "hashgrid-jitter", cfg.HashGridJitter, "record the hash grid jitter setting in hashgrid.Params (cell lookups are not jittered)")
	flags.BoolVar(&cfg.DenoiseEnabled, "denoise", cfg.DenoiseEnabled, "enable the SVGF-style denoiser")
	flags.IntVar(&cfg.VarianceBoostLength, "denoise-variance-boost", cfg.VarianceBoostLength, "denoiser variance-boost sample count")
	flags.IntVar(&cfg.AtrousIterations, "denoise-atrous-iterations", cfg.AtrousIterations, "a-trous filter iteration count")
	flags.StringVar(&cfg.FilterKernel, "denoise-kernel", cfg.FilterKernel, "a-trous kernel name")
	flags.StringVar(&cfg.ToneCurve, "tonemap-curve", cfg.ToneCurve, "tonemap curve name")
	flags.Float32Var(&cfg.Exposure, "exposure", cfg.Exposure, "exposure, in stops")
	flags.Float32Var(&cfg.Gamma, "gamma", cfg.Gamma, "display gamma")
	flags.BoolVar(&cfg.Demodulate, "demodulate", cfg.Demodulate, "demodulate albedo before tonemapping")
	flags.StringVar(&cfg.EnvironmentMap, "environment", "", "equirectangular environment map (TIFF) path")
	flags.StringVar(&cfg.ShaderKernelPath, "shader-kernel", "", "kernel source file to async-compile (optional)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	flags.IntVar(&iterations, "iterations", 64, "progressive render iterations to accumulate")
	flags.StringVar(&cfgFile, "config", "", "YAML render-settings file overlaying these flags")
}

func runRender(cmd *cobra.Command, args []string) error {
	if cfgFile != "" {
		if err := cfg.MergeYAML(cfgFile); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	if cfg.ScenePath == "" {
		return fmt.Errorf("vkpt: --scene is required")
	}
	aspect := float32(cfg.Width) / float32(cfg.Height)
	scn, cam, err := loadScene(cfg.ScenePath, cfg.EnvironmentMap, aspect)
	if err != nil {
		return fmt.Errorf("vkpt: loading scene: %w", err)
	}

	rend, err := engine.NewOffscreen(cfg.Width, cfg.Height)
	if err != nil {
		return fmt.Errorf("vkpt: creating renderer: %w", err)
	}
	defer rend.Free()

	rend.Configure(cfg)
	rend.SetReferenceScene(scn)
	rend.SetCamera(cam)

	start := time.Now()
	for i := 0; i < iterations; i++ {
		if err := rend.Render(float32(time.Since(start).Seconds())); err != nil {
			return fmt.Errorf("vkpt: rendering iteration %d: %w", i, err)
		}
		log.Info("iteration complete", "iteration", i+1, "of", iterations, "integrator", cfg.Integrator)
	}

	if err := writePNG(cfg.OutputPath, rend.Pixels(), rend.Width(), rend.Height()); err != nil {
		return fmt.Errorf("vkpt: writing %s: %w", cfg.OutputPath, err)
	}
	log.Info("wrote output", "path", cfg.OutputPath)
	return nil
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

func writePNG(path string, pixels []byte, width, height int) error {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, pixels)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
