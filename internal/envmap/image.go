// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package envmap builds the marginal/conditional CDF
// importance-sampling tables used to draw directions from an
// equirectangular environment map, and evaluates the matching
// emission/pdf queries the light-transport core needs when a
// camera or light sub-path escapes the scene. It generalizes
// the original's Environment/EnvironmentImage shader structs
// (Shaders/compat/environment.h, environment_image.h) to
// host-side code: Build constructs the CDF tables, and
// Environment's Evaluate, Sample and PdfW perform the texel
// lookup, direction sampling and solid-angle pdf conversion
// those headers describe (evaluate/sampleTexel/evaluatePdfW).
package envmap

import (
	"io"
	"math"

	"golang.org/x/image/tiff"
)

// Image is a decoded equirectangular HDR environment map:
// width×height RGB float32 texels in row-major order, row 0 at
// the top (v=0, the +Y pole) per the spherical UV convention
// cartesianToSphericalUv/sphericalUvToCartesian use.
type Image struct {
	Width, Height int
	Pix           []float32 // len == Width*Height*3
}

// Load decodes an equirectangular environment map from a TIFF
// stream r with golang.org/x/image/tiff. Each texel is
// converted through color.Color.RGBA and scaled to [0, 1], so
// the loaded image holds 16-bit values no greater than 1;
// radiance above 1 is not preserved.
func Load(r io.Reader) (*Image, error) {
	img, err := tiff.Decode(r)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]float32, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r16, g16, b16, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := (y*w + x) * 3
			pix[i+0] = float32(r16) / 65535
			pix[i+1] = float32(g16) / 65535
			pix[i+2] = float32(b16) / 65535
		}
	}
	return &Image{Width: w, Height: h, Pix: pix}, nil
}

// At returns the RGB emission at pixel (x, y).
func (img *Image) At(x, y int) (r, g, b float32) {
	i := (y*img.Width + x) * 3
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2]
}

// luminance returns the pixel's scalar importance weight.
func (img *Image) luminance(x, y int) float32 {
	r, g, b := img.At(x, y)
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// solidAngleWeight returns the relative solid angle a row at
// normalized v = (y+0.5)/height subtends, compensating for the
// equirectangular projection's pole compression — rows near the
// poles (v near 0 or 1) cover far less solid angle per pixel
// than rows near the equator.
func solidAngleWeight(v float32) float32 {
	theta := float64(v) * math.Pi
	return float32(math.Sin(theta))
}
