// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package envmap

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Environment is the host-side counterpart of the original's
// Environment shader struct (Shaders/compat/environment.h): a
// constant emission color when no image is bound, or an
// importance-sampled equirectangular image. CartesianToSpherical
// and SphericalToCartesian use the same convention as the
// original's cartesianToSphericalUv/sphericalUvToCartesian: y is
// the up axis, v=0 is the +y pole.
type Environment struct {
	Image *Image
	Table *Table
	// Value is the constant emission used when Image is nil.
	Value mgl32.Vec3
}

// HasImage reports whether e samples a textured environment
// rather than returning a constant value.
func (e *Environment) HasImage() bool { return e.Image != nil }

// CartesianToSpherical converts a unit direction to the
// equirectangular (u,v) coordinate sampled by Image/Table.
func CartesianToSpherical(dir mgl32.Vec3) (u, v float32) {
	phi := math.Atan2(float64(dir[2]), float64(dir[0]))
	if phi < 0 {
		phi += 2 * math.Pi
	}
	u = float32(phi / (2 * math.Pi))
	v = float32(math.Acos(clampUnit(float64(dir[1]))) / math.Pi)
	return
}

// SphericalToCartesian is CartesianToSpherical's inverse.
func SphericalToCartesian(u, v float32) mgl32.Vec3 {
	phi := float64(u) * 2 * math.Pi
	theta := float64(v) * math.Pi
	sinTheta := math.Sin(theta)
	return mgl32.Vec3{
		float32(sinTheta * math.Cos(phi)),
		float32(math.Cos(theta)),
		float32(sinTheta * math.Sin(phi)),
	}
}

func clampUnit(x float64) float64 {
	if x < -1 {
		return -1
	}
	if x > 1 {
		return 1
	}
	return x
}

// Evaluate returns the emitted radiance along -dirOut (the
// original's evaluate(dirOut)).
func (e *Environment) Evaluate(dirOut mgl32.Vec3) mgl32.Vec3 {
	if !e.HasImage() {
		return e.Value
	}
	u, v := CartesianToSpherical(dirOut)
	x := clampIndex(int(u*float32(e.Image.Width)), e.Image.Width)
	y := clampIndex(int(v*float32(e.Image.Height)), e.Image.Height)
	r, g, b := e.Image.At(x, y)
	return mgl32.Vec3{r, g, b}
}

// jacobian converts an image-space (u,v) pdf to a solid-angle
// pdf, matching environment.h's
// `pdf /= (2 * M_PI * M_PI * sqrt(1 - dirOut.y*dirOut.y))`.
func jacobian(dirY float32) float32 {
	s := float32(1) - dirY*dirY
	if s < 1e-6 {
		s = 1e-6
	}
	return float32(2*math.Pi*math.Pi) * float32(math.Sqrt(float64(s)))
}

// Sample draws an emission direction from (u1,u2), returning the
// direction, its solid-angle pdf, and the emitted radiance
// (the original's sample(rnd, out dirOut, out pdf)).
func (e *Environment) Sample(u1, u2 float32) (dirOut mgl32.Vec3, pdfW float32, radiance mgl32.Vec3) {
	if !e.HasImage() {
		dirOut = uniformSphere(u1, u2)
		pdfW = 1 / (4 * math.Pi)
		radiance = e.Value
		return
	}
	u, v, imgPdf := e.Table.Sample(u1, u2)
	dirOut = SphericalToCartesian(u, v)
	pdfW = imgPdf / jacobian(dirOut[1])
	x := clampIndex(int(u*float32(e.Image.Width)), e.Image.Width)
	y := clampIndex(int(v*float32(e.Image.Height)), e.Image.Height)
	r, g, b := e.Image.At(x, y)
	radiance = mgl32.Vec3{r, g, b}
	return
}

// PdfW returns the solid-angle pdf Sample would assign to
// dirOut (the original's evaluatePdfW), used by the unified
// MIS weight when a camera sub-path escapes the scene and the
// environment must be weighted against NEE.
func (e *Environment) PdfW(dirOut mgl32.Vec3) float32 {
	if !e.HasImage() {
		return 1 / (4 * math.Pi)
	}
	u, v := CartesianToSpherical(dirOut)
	return e.Table.Pdf(u, v) / jacobian(dirOut[1])
}

func uniformSphere(u1, u2 float32) mgl32.Vec3 {
	z := 1 - 2*u1
	r := float32(math.Sqrt(math.Max(0, float64(1-z*z))))
	phi := 2 * math.Pi * float64(u2)
	return mgl32.Vec3{r * float32(math.Cos(phi)), z, r * float32(math.Sin(phi))}
}
