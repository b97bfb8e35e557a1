// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine drives the CPU reference light-transport
// pipeline and presents its output through the driver package.
// Per-render tunables (integrator choice, path length bounds,
// reservoir/hash-grid/denoiser/tonemap parameters) live in
// internal/rtconfig.Config, passed to Renderer.Configure; this
// file only keeps the engine-wide constant that is not a render
// setting: how many frames may be in flight at once.
package engine

// MaxFrame is the maximum number of frames in flight, sizing the
// Renderer's driver.CmdBuffer ring; the onscreen swapchain is
// created with MaxFrame+1 images.
const MaxFrame = 3
