// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package envmap

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func uniformImage(w, h int, r, g, b float32) *Image {
	pix := make([]float32, w*h*3)
	for i := 0; i < w*h; i++ {
		pix[i*3], pix[i*3+1], pix[i*3+2] = r, g, b
	}
	return &Image{Width: w, Height: h, Pix: pix}
}

func TestSphericalRoundTrip(t *testing.T) {
	dirs := []mgl32.Vec3{
		{0, 1, 0}, {0, -1, 0}, {1, 0, 0}, {0, 0, 1}, {0.5, 0.5, 0.707}.Normalize(),
	}
	for _, d := range dirs {
		u, v := CartesianToSpherical(d)
		got := SphericalToCartesian(u, v)
		assert.InDelta(t, d[0], got[0], 1e-3)
		assert.InDelta(t, d[1], got[1], 1e-3)
		assert.InDelta(t, d[2], got[2], 1e-3)
	}
}

func TestTableSampleConcentratesOnBrightHemisphere(t *testing.T) {
	w, h := 64, 32
	pix := make([]float32, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 3
			if x < w/2 {
				pix[i], pix[i+1], pix[i+2] = 10, 10, 10
			} else {
				pix[i], pix[i+1], pix[i+2] = 0.01, 0.01, 0.01
			}
		}
	}
	img := &Image{Width: w, Height: h, Pix: pix}
	table := Build(img)

	leftCount := 0
	const n = 2000
	for i := 0; i < n; i++ {
		u1 := (float32(i) + 0.5) / n
		u2 := float32(math.Mod(float64(i)*0.61803398875, 1))
		u, _, pdf := table.Sample(u1, u2)
		assert.Greater(t, pdf, float32(0))
		if u < 0.5 {
			leftCount++
		}
	}
	assert.Greater(t, leftCount, n*9/10, "importance sampling must concentrate draws on the brighter hemisphere")
}

func TestTableUniformImageGivesUniformPdf(t *testing.T) {
	img := uniformImage(16, 8, 1, 1, 1)
	table := Build(img)
	// Rows are weighted by sin(theta), so a uniform image gives
	// the image-space pdf of a uniform solid-angle density:
	// 2*pi^2*sin(theta)/(4*pi) = (pi/2)*sin(pi*v).
	_, v, pdf := table.Sample(0.3, 0.6)
	assert.InDelta(t, math.Pi/2*math.Sin(math.Pi*float64(v)), pdf, 0.05)
}

func TestEnvironmentConstantSampleIsUniformSphere(t *testing.T) {
	env := &Environment{Value: mgl32.Vec3{1, 2, 3}}
	dir, pdf, radiance := env.Sample(0.2, 0.7)
	assert.InDelta(t, 1, dir.Len(), 1e-4)
	assert.InDelta(t, 1/(4*math.Pi), float64(pdf), 1e-6)
	assert.Equal(t, mgl32.Vec3{1, 2, 3}, radiance)
}

func TestEnvironmentImageEvaluateMatchesSampledTexel(t *testing.T) {
	img := uniformImage(8, 4, 2, 4, 6)
	env := &Environment{Image: img, Table: Build(img)}
	r := env.Evaluate(mgl32.Vec3{0, 1, 0})
	assert.Equal(t, mgl32.Vec3{2, 4, 6}, r)
}

func TestEnvironmentPdfWIsPositiveForImage(t *testing.T) {
	img := uniformImage(8, 4, 1, 1, 1)
	env := &Environment{Image: img, Table: Build(img)}
	pdf := env.PdfW(mgl32.Vec3{0, 0, 1})
	assert.Greater(t, pdf, float32(0))
}
