// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package svgf implements a spatiotemporal variance-guided
// filtering (SVGF) denoiser: temporal accumulation with
// reprojection and normal/depth rejection, an online
// variance estimate boosted by a spatial 7x7 pass while the
// temporal history is young, and an edge-stopping à-trous
// wavelet filter.
//
// Grounded on original_source/src/App/Denoiser.cpp/hpp.
package svgf

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

func sqrt32(x float32) float32 { return float32(math.Sqrt(float64(x))) }
func expNeg(x float32) float32 { return float32(math.Exp(-float64(x))) }
func powf(x, y float32) float32 {
	if x <= 0 {
		return 0
	}
	return float32(math.Pow(float64(x), float64(y)))
}

// FilterKernel selects the spatial filter shape used by
// Denoiser.Filter.
type FilterKernel int

// Supported filter kernels, matching Denoiser.cpp's options.
const (
	KernelBox3x3 FilterKernel = iota
	KernelGaussian3x3
	KernelGaussian5x5
	KernelAtrous
)

// Params configures the denoiser.
type Params struct {
	// VarianceBoostLength is the number of accumulated
	// frames below which the 7x7 spatial variance estimate
	// is blended in to compensate for a still-thin temporal
	// history.
	VarianceBoostLength int
	Iterations          int
	Kernel              FilterKernel
	PhiColor            float32
	PhiNormal           float32
	PhiDepth            float32
}

// Texel is a single G-buffer sample: the quantities the
// reprojection/rejection tests and the edge-stopping filter
// need.
type Texel struct {
	Color    [3]float32
	Normal   mgl32.Vec3
	Depth    float32
	MeshID   uint32
	HistLen  float32
	Moments  [2]float32 // (first moment, second moment) of luminance
	Variance float32
}

// Denoiser holds the per-pixel history buffers for a single
// render target resolution.
type Denoiser struct {
	width, height int
	history       []Texel
	params        Params
}

// New creates a Denoiser for the given resolution.
func New(width, height int, p Params) *Denoiser {
	return &Denoiser{
		width:   width,
		height:  height,
		history: make([]Texel, width*height),
		params:  p,
	}
}

// ResetAccumulation clears all temporal history, forcing the
// next frame to start from a history length of zero. Called
// by the frame loop when view.Frame.Moved reports camera
// motion, or on a resize.
func (d *Denoiser) ResetAccumulation() {
	for i := range d.history {
		d.history[i] = Texel{}
	}
}

func (d *Denoiser) idx(x, y int) int { return y*d.width + x }

func luminance(c [3]float32) float32 {
	return 0.2126*c[0] + 0.7152*c[1] + 0.0722*c[2]
}

// reject reports whether the reprojected history sample hist
// must be discarded as a temporal match for the current
// frame's sample cur, using mesh-id, normal and depth
// rejection heuristics.
func reject(hist, cur Texel) bool {
	if hist.MeshID != cur.MeshID {
		return true
	}
	if hist.Normal.Dot(cur.Normal) < 0.9 {
		return true
	}
	if cur.Depth <= 0 {
		return true
	}
	relDepth := abs32(hist.Depth-cur.Depth) / cur.Depth
	return relDepth > 0.1
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// Accumulate performs temporal reprojection + integration
// for a single pixel: current is the new noisy G-buffer
// sample at (x, y); reprojX/reprojY is the integer
// reprojected history coordinate (computed by the caller
// from motion vectors / view.Frame.InvViewProj); reprojValid
// reports whether the reprojected coordinate even lands
// inside the image.
//
// It returns the accumulated color and its estimated
// variance for this pixel, and updates the history buffer
// in place.
func (d *Denoiser) Accumulate(x, y int, current Texel, reprojX, reprojY int, reprojValid bool) (color [3]float32, variance float32) {
	idx := d.idx(x, y)
	var hist Texel
	valid := reprojValid && reprojX >= 0 && reprojX < d.width && reprojY >= 0 && reprojY < d.height
	if valid {
		hist = d.history[d.idx(reprojX, reprojY)]
		if hist.HistLen == 0 || reject(hist, current) {
			valid = false
		}
	}

	const maxHistLen = 32.0
	var histLen float32 = 1
	var alpha float32 = 1
	if valid {
		histLen = hist.HistLen + 1
		if histLen > maxHistLen {
			histLen = maxHistLen
		}
		alpha = 1 / histLen
	}

	lum := luminance(current.Color)
	var m1, m2 float32
	if valid {
		m1 = lerp(hist.Moments[0], lum, alpha)
		m2 = lerp(hist.Moments[1], lum*lum, alpha)
	} else {
		m1, m2 = lum, lum*lum
	}
	variance = m2 - m1*m1
	if variance < 0 {
		variance = 0
	}

	if histLen < float32(d.params.VarianceBoostLength) {
		variance += d.spatialVarianceBoost(x, y, current)
	}

	for i := range color {
		if valid {
			color[i] = lerp(hist.Color[i], current.Color[i], alpha)
		} else {
			color[i] = current.Color[i]
		}
	}

	d.history[idx] = Texel{
		Color: color, Normal: current.Normal, Depth: current.Depth,
		MeshID: current.MeshID, HistLen: histLen,
		Moments: [2]float32{m1, m2}, Variance: variance,
	}
	return color, variance
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }

// spatialVarianceBoost estimates additional variance from a
// 7x7 neighborhood around (x, y), for use while the temporal
// history is still thin. The neighbors are read from
// d.history: pixels already passed to Accumulate this frame
// hold their new accumulated Texel, the others still hold the
// previous frame's (or a zero Texel after ResetAccumulation).
// Neighbors whose MeshID differs from center's are skipped.
func (d *Denoiser) spatialVarianceBoost(x, y int, center Texel) float32 {
	var sum, sumSq float32
	var n float32
	for dy := -3; dy <= 3; dy++ {
		for dx := -3; dx <= 3; dx++ {
			nx, ny := x+dx, y+dy
			if nx < 0 || nx >= d.width || ny < 0 || ny >= d.height {
				continue
			}
			t := d.history[d.idx(nx, ny)]
			if t.MeshID != center.MeshID {
				continue
			}
			l := luminance(t.Color)
			sum += l
			sumSq += l * l
			n++
		}
	}
	if n < 2 {
		return 0
	}
	mean := sum / n
	v := sumSq/n - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

// Filter applies the edge-stopping wavelet filter to the
// accumulated color buffer, running Params.Iterations
// passes with doubling step sizes (the à-trous scheme), or a
// single fixed-radius pass for the Box/Gaussian kernels.
// colorIn must be in scanline order, width*height long, and
// scratch a distinct buffer of the same length. The filtered
// result is returned: the Box/Gaussian kernels write it into
// scratch; à-trous ping-pongs between colorIn and scratch, so
// colorIn is overwritten from the second iteration on, and the
// result is whichever buffer the last pass wrote (colorIn when
// Iterations is 0).
func (d *Denoiser) Filter(colorIn []Texel, scratch []Texel) []Texel {
	switch d.params.Kernel {
	case KernelBox3x3:
		return filterFixed(colorIn, scratch, d.width, d.height, 1, boxWeights3x3())
	case KernelGaussian3x3:
		return filterFixed(colorIn, scratch, d.width, d.height, 1, gaussianWeights3x3())
	case KernelGaussian5x5:
		return filterFixed(colorIn, scratch, d.width, d.height, 2, gaussianWeights5x5())
	default:
		return d.filterAtrous(colorIn, scratch)
	}
}

func boxWeights3x3() [][]float32 {
	w := make([][]float32, 3)
	for i := range w {
		w[i] = []float32{1, 1, 1}
	}
	return w
}

func gaussianWeights3x3() [][]float32 {
	return [][]float32{{1, 2, 1}, {2, 4, 2}, {1, 2, 1}}
}

func gaussianWeights5x5() [][]float32 {
	row := []float32{1, 4, 6, 4, 1}
	w := make([][]float32, 5)
	for i, r := range row {
		w[i] = make([]float32, 5)
		for j, c := range row {
			w[i][j] = r * c
		}
	}
	return w
}

func filterFixed(in, out []Texel, width, height, radius int, weights [][]float32) []Texel {
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var sum [3]float32
			var wsum float32
			center := in[y*width+x]
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					n := in[ny*width+nx]
					if n.MeshID != center.MeshID {
						continue
					}
					w := weights[dy+radius][dx+radius]
					sum[0] += n.Color[0] * w
					sum[1] += n.Color[1] * w
					sum[2] += n.Color[2] * w
					wsum += w
				}
			}
			t := center
			if wsum > 0 {
				t.Color = [3]float32{sum[0] / wsum, sum[1] / wsum, sum[2] / wsum}
			}
			out[y*width+x] = t
		}
	}
	return out
}

var atrousKernel = [5]float32{1.0 / 16, 1.0 / 4, 3.0 / 8, 1.0 / 4, 1.0 / 16}

func (d *Denoiser) filterAtrous(in, scratch []Texel) []Texel {
	src, dst := in, scratch
	step := 1
	for i := 0; i < d.params.Iterations; i++ {
		d.atrousPass(src, dst, step)
		src, dst = dst, src
		step *= 2
	}
	return src
}

func (d *Denoiser) atrousPass(in, out []Texel, step int) {
	width, height := d.width, d.height
	phiColor := d.params.PhiColor
	if phiColor <= 0 {
		phiColor = 4
	}
	phiNormal := d.params.PhiNormal
	if phiNormal <= 0 {
		phiNormal = 128
	}
	phiDepth := d.params.PhiDepth
	if phiDepth <= 0 {
		phiDepth = 1
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			center := in[y*width+x]
			cLum := luminance(center.Color)
			sigma := float32(0)
			if center.Variance > 0 {
				sigma = sqrt32(center.Variance)
			}

			var sum [3]float32
			var wsum float32
			for j := -2; j <= 2; j++ {
				for i := -2; i <= 2; i++ {
					nx, ny := x+i*step, y+j*step
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					n := in[ny*width+nx]
					if n.MeshID != center.MeshID {
						continue
					}
					kw := atrousKernel[i+2] * atrousKernel[j+2]

					dLum := luminance(n.Color) - cLum
					wColor := expNeg((dLum * dLum) / (phiColor*phiColor*sigma*sigma + 1e-6))

					dNormal := center.Normal.Dot(n.Normal)
					wNormal := powf(maxf(dNormal, 0), phiNormal)

					dDepth := abs32(n.Depth - center.Depth)
					wDepth := expNeg(dDepth / (phiDepth + 1e-6))

					w := kw * wColor * wNormal * wDepth
					sum[0] += n.Color[0] * w
					sum[1] += n.Color[1] * w
					sum[2] += n.Color[2] * w
					wsum += w
				}
			}
			t := center
			if wsum > 1e-6 {
				t.Color = [3]float32{sum[0] / wsum, sum[1] / wsum, sum[2] / wsum}
			}
			out[y*width+x] = t
		}
	}
}

func maxf(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
