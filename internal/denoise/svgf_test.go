// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package svgf

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetAccumulationClearsHistory(t *testing.T) {
	d := New(4, 4, Params{VarianceBoostLength: 4, Iterations: 2})
	d.history[0] = Texel{HistLen: 10}
	d.ResetAccumulation()
	assert.Zero(t, d.history[0].HistLen)
}

func TestAccumulateBuildsUpHistoryLength(t *testing.T) {
	d := New(2, 2, Params{VarianceBoostLength: 0})
	tex := Texel{Color: [3]float32{1, 1, 1}, Normal: mgl32.Vec3{0, 0, 1}, Depth: 5, MeshID: 1}

	_, _ = d.Accumulate(0, 0, tex, 0, 0, false)
	require.Equal(t, float32(1), d.history[0].HistLen)

	_, _ = d.Accumulate(0, 0, tex, 0, 0, true)
	assert.Equal(t, float32(2), d.history[0].HistLen)
}

func TestAccumulateRejectsOnMeshIDMismatch(t *testing.T) {
	d := New(2, 2, Params{})
	first := Texel{Color: [3]float32{1, 0, 0}, Normal: mgl32.Vec3{0, 0, 1}, Depth: 5, MeshID: 1}
	d.Accumulate(0, 0, first, 0, 0, false)

	second := Texel{Color: [3]float32{0, 1, 0}, Normal: mgl32.Vec3{0, 0, 1}, Depth: 5, MeshID: 2}
	_, _ = d.Accumulate(0, 0, second, 0, 0, true)
	assert.Equal(t, float32(1), d.history[0].HistLen, "mismatched mesh ID must reject reprojection and restart history")
}

func TestAtrousFilterPreservesFlatRegion(t *testing.T) {
	d := New(8, 8, Params{Iterations: 2, Kernel: KernelAtrous})
	in := make([]Texel, 64)
	scratch := make([]Texel, 64)
	for i := range in {
		in[i] = Texel{Color: [3]float32{0.5, 0.5, 0.5}, Normal: mgl32.Vec3{0, 0, 1}, Depth: 2, MeshID: 1}
	}
	out := d.Filter(in, scratch)
	for _, texel := range out {
		assert.InDelta(t, 0.5, texel.Color[0], 1e-4)
	}
}
