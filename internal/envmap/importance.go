// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package envmap

import "sort"

// Table is a piecewise-constant 2-D importance-sampling
// distribution over an environment image: one marginal CDF over
// rows (weighted by each row's total luminance × its
// solid-angle compression factor) and one conditional CDF per
// row over columns. This is the host-side construction the
// original's sampleTexel/sampleTexelPdf (environment.h) assume
// already exists as a precomputed table; no concrete source for
// that construction was retrieved (it lives in a shader-support
// file outside the code/build-file filter), so this follows the
// standard 2-D piecewise-constant marginal/conditional
// importance-sampling algorithm (Pharr/Jakob/Humphreys,
// "Physically Based Rendering", §13.6.7) applied to Image's
// per-pixel luminance.
type Table struct {
	width, height int
	// marginalCDF has height+1 entries; marginalCDF[height] == 1.
	marginalCDF []float32
	// conditionalCDF holds height rows of width+1 entries each.
	conditionalCDF []float32
	// rowFuncInt is the per-row average luminance (after
	// solid-angle weighting), used to recover the conditional
	// pdf during Sample/Pdf.
	rowFuncInt []float32
	funcInt    float32
}

// Build constructs the importance table for img.
func Build(img *Image) *Table {
	w, h := img.Width, img.Height
	t := &Table{width: w, height: h}
	t.conditionalCDF = make([]float32, h*(w+1))
	t.rowFuncInt = make([]float32, h)
	t.marginalCDF = make([]float32, h+1)

	var marginalSum float32
	for y := 0; y < h; y++ {
		v := (float32(y) + 0.5) / float32(h)
		weight := solidAngleWeight(v)
		row := t.conditionalCDF[y*(w+1) : y*(w+1)+w+1]
		var sum float32
		row[0] = 0
		for x := 0; x < w; x++ {
			sum += img.luminance(x, y) * weight
			row[x+1] = sum
		}
		if sum > 0 {
			for x := 1; x <= w; x++ {
				row[x] /= sum
			}
		} else {
			for x := 1; x <= w; x++ {
				row[x] = float32(x) / float32(w)
			}
		}
		rowAvg := sum / float32(w)
		t.rowFuncInt[y] = rowAvg
		marginalSum += rowAvg
		t.marginalCDF[y+1] = marginalSum
	}
	t.funcInt = marginalSum / float32(h)
	if marginalSum > 0 {
		for y := 1; y <= h; y++ {
			t.marginalCDF[y] /= marginalSum
		}
	} else {
		for y := 1; y <= h; y++ {
			t.marginalCDF[y] = float32(y) / float32(h)
		}
	}
	return t
}

// sampleCDF finds the interval [cdf[i], cdf[i+1]) containing u
// and returns i plus the fractional offset within it.
func sampleCDF(cdf []float32, u float32) (index int, frac float32) {
	n := len(cdf) - 1
	i := sort.Search(n, func(i int) bool { return cdf[i+1] > u })
	if i >= n {
		i = n - 1
	}
	span := cdf[i+1] - cdf[i]
	if span <= 0 {
		return i, 0
	}
	return i, (u - cdf[i]) / span
}

// Sample draws a texel (u,v) in [0,1)² from (u1,u2) and returns
// its image-space pdf (probability per unit uv-area, matching
// sampleTexel's return convention in environment.h — the caller
// converts this to a solid-angle pdf via the same
// 2·π²·sqrt(1-dirY²) factor the shader uses).
func (t *Table) Sample(u1, u2 float32) (u, v, pdf float32) {
	y, dy := sampleCDF(t.marginalCDF, u2)
	row := t.conditionalCDF[y*(t.width+1) : y*(t.width+1)+t.width+1]
	x, dx := sampleCDF(row, u1)

	u = (float32(x) + dx) / float32(t.width)
	v = (float32(y) + dy) / float32(t.height)

	if t.funcInt <= 0 {
		return u, v, 1
	}
	condPdf := (row[x+1] - row[x]) * float32(t.width)
	marginalPdf := t.rowFuncInt[y] / t.funcInt
	pdf = condPdf * marginalPdf
	return u, v, pdf
}

// Pdf returns the image-space pdf Table.Sample would assign to
// texel (u, v), used by evaluatePdfW when a path hits the
// environment by BSDF sampling rather than by NEE.
func (t *Table) Pdf(u, v float32) float32 {
	if t.funcInt <= 0 {
		return 1
	}
	x := clampIndex(int(u*float32(t.width)), t.width)
	y := clampIndex(int(v*float32(t.height)), t.height)
	row := t.conditionalCDF[y*(t.width+1) : y*(t.width+1)+t.width+1]
	condPdf := (row[x+1] - row[x]) * float32(t.width)
	marginalPdf := t.rowFuncInt[y] / t.funcInt
	return condPdf * marginalPdf
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
