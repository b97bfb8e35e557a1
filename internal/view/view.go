// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package view implements the camera and projection math
// shared by the transport, reservoir and denoiser stages:
// view/projection matrix composition and the octahedral
// normal encoding used by internal/scene's packed vertex
// records to keep per-vertex bandwidth small.
package view

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Camera describes the pinhole camera used to generate the
// primary rays of a frame.
type Camera struct {
	Eye, Center, Up mgl32.Vec3
	// VFOV is the vertical field of view, in radians.
	VFOV      float32
	Aspect    float32
	Near, Far float32
}

// View returns the camera's view matrix.
func (c *Camera) View() mgl32.Mat4 {
	return mgl32.LookAtV(c.Eye, c.Center, c.Up)
}

// Proj returns the camera's projection matrix: a reversed-Z
// perspective projection (near maps to depth 1, far to depth 0,
// trading the textbook convention for the precision distribution a
// real Vulkan depth buffer relies on at long view distances) unless
// VFOV is negative, in which case -VFOV is read as the vertical
// extent, in world units, of an orthographic view instead of an
// angle.
func (c *Camera) Proj() mgl32.Mat4 {
	if c.VFOV < 0 {
		halfH := -c.VFOV * 0.5
		return orthoReversedZ(halfH*c.Aspect, halfH, c.Near, c.Far)
	}
	return perspectiveReversedZ(c.VFOV, c.Aspect, c.Near, c.Far)
}

// perspectiveReversedZ builds a right-handed reversed-Z perspective
// matrix (depth range [0, 1], near at 1, far at 0).
func perspectiveReversedZ(fovy, aspect, near, far float32) mgl32.Mat4 {
	f := float32(1 / math.Tan(float64(fovy)*0.5))
	var m mgl32.Mat4
	m[0] = f / aspect
	m[5] = f
	m[10] = near / (far - near)
	m[11] = -1
	m[14] = far * near / (far - near)
	return m
}

// orthoReversedZ builds a right-handed reversed-Z orthographic
// matrix over [-halfW, halfW] x [-halfH, halfH] x [near, far].
func orthoReversedZ(halfW, halfH, near, far float32) mgl32.Mat4 {
	var m mgl32.Mat4
	m[0] = 1 / halfW
	m[5] = 1 / halfH
	m[10] = 1 / (far - near)
	m[14] = far / (far - near)
	m[15] = 1
	return m
}

// ViewProj returns Proj() * View().
func (c *Camera) ViewProj() mgl32.Mat4 {
	return c.Proj().Mul4(c.View())
}

// View is the camera/image-plane bridge used to build primary rays
// and, in the reverse direction, to splat a light-trace vertex back
// onto a pixel: the world-space basis a Camera implies plus the
// image-plane half-extents and pixel resolution needed to go
// between a screen-space pixel and a world-space point on the
// (unit-distance) image plane.
type View struct {
	Eye, Forward, Right, Up mgl32.Vec3
	HalfW, HalfH            float32
	Width, Height           int
}

// NewView builds the projection entity for c rendered at a
// width x height resolution.
func NewView(c *Camera, width, height int) View {
	forward := c.Center.Sub(c.Eye).Normalize()
	right := forward.Cross(c.Up).Normalize()
	up := right.Cross(forward)
	halfH := float32(math.Tan(float64(c.VFOV) * 0.5))
	if c.VFOV < 0 {
		// Orthographic: -VFOV is a world-space extent, matching
		// Camera.Proj's convention, not an angle to take the
		// tangent of.
		halfH = -c.VFOV * 0.5
	}
	return View{
		Eye: c.Eye, Forward: forward, Right: right, Up: up,
		HalfW: halfH * c.Aspect, HalfH: halfH,
		Width: width, Height: height,
	}
}

// ImageMin and ImageMax bound v's image plane in pixel coordinates:
// every in-frame pixel center p satisfies ImageMin() <= p < ImageMax().
func (v *View) ImageMin() (x, y float32) { return 0, 0 }
func (v *View) ImageMax() (x, y float32) { return float32(v.Width), float32(v.Height) }

// SensorArea returns the area, in world units squared, of v's image
// plane at unit distance from Eye — the normalization term
// bidirectional light tracing needs to turn the lens' solid-angle
// sampling pdf into an area-measure importance when splatting a
// light sub-path vertex (spec §4.3's light-image splat, §8's LT/PT/
// BPT convergence invariant).
func (v *View) SensorArea() float32 { return 4 * v.HalfW * v.HalfH }

// ProjectPoint maps a world-space point onto v's image plane,
// returning the pixel coordinates it falls on and whether it is
// both in front of Eye and within the image bounds. The light-trace
// splat path drops a vertex when ok is false.
func (v *View) ProjectPoint(p mgl32.Vec3) (x, y float32, ok bool) {
	rel := p.Sub(v.Eye)
	depth := rel.Dot(v.Forward)
	if depth <= 1e-6 {
		return 0, 0, false
	}
	u := rel.Dot(v.Right) / depth
	w := rel.Dot(v.Up) / depth
	if u < -v.HalfW || u > v.HalfW || w < -v.HalfH || w > v.HalfH {
		return 0, 0, false
	}
	x = (u/v.HalfW*0.5 + 0.5) * float32(v.Width)
	y = (1 - (w/v.HalfH*0.5 + 0.5)) * float32(v.Height)
	minX, minY := v.ImageMin()
	maxX, maxY := v.ImageMax()
	if x < minX || x >= maxX || y < minY || y >= maxY {
		return 0, 0, false
	}
	return x, y, true
}

// BackProject is ProjectPoint's inverse: given a pixel coordinate,
// it returns the world-space point on v's image plane (at unit
// distance from Eye) that pixel maps to. Used by primaryRay to
// build camera rays, and by spec §8 invariant 5's round-trip check
// (BackProject(ProjectPoint(p)) recovers the direction toward p,
// since ProjectPoint collapses depth).
func (v *View) BackProject(x, y float32) mgl32.Vec3 {
	u := (x/float32(v.Width)*2 - 1) * v.HalfW
	w := (1 - y/float32(v.Height)*2) * v.HalfH
	dir := v.Forward.Add(v.Right.Mul(u)).Add(v.Up.Mul(w))
	return v.Eye.Add(dir)
}

// Frame bundles the per-frame matrices and scalar state
// threaded through push-constant blocks (VcmPushConstants,
// PathTracerPushConstants, etc). It mirrors the layout that
// engine/internal/shader.FrameLayout built for the raster
// engine, generalized to a non-rasterizing pipeline that
// still needs view/projection/elapsed-time/random-seed data
// uploaded once per frame.
type Frame struct {
	View, Proj, ViewProj mgl32.Mat4
	// InvViewProj is used to reconstruct world-space
	// positions from a reprojected screen UV during
	// temporal reservoir/denoiser reuse.
	InvViewProj mgl32.Mat4
	ElapsedSec  float32
	FrameIndex  uint64
	Width       int
	Height      int
}

// NewFrame builds a Frame from a Camera.
func NewFrame(c *Camera, elapsedSec float32, frameIndex uint64, width, height int) Frame {
	view := c.View()
	proj := c.Proj()
	vp := proj.Mul4(view)
	return Frame{
		View:        view,
		Proj:        proj,
		ViewProj:    vp,
		InvViewProj: vp.Inv(),
		ElapsedSec:  elapsedSec,
		FrameIndex:  frameIndex,
		Width:       width,
		Height:      height,
	}
}

// Moved reports whether this frame's camera state differs
// enough from prev to require Denoiser.ResetAccumulation
// (spec §4.6's reset-on-camera-motion rule).
func (f *Frame) Moved(prev *Frame) bool {
	if f.Width != prev.Width || f.Height != prev.Height {
		return true
	}
	const eps = 1e-5
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if abs32(f.ViewProj.At(i, j)-prev.ViewProj.At(i, j)) > eps {
				return true
			}
		}
	}
	return false
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// signNotZero returns 1.0 for v >= 0 and -1.0 otherwise,
// matching the convention used by the octahedral encoding
// in Meyer et al., "A Survey of Efficient Representations
// for Independent Unit Vectors".
func signNotZero(v float32) float32 {
	if v >= 0 {
		return 1
	}
	return -1
}

// PackOctUnorm16 encodes a unit normal n into two 16-bit
// UNORM channels using the octahedral mapping. The packed
// form is what internal/scene's VertexLayout stores instead
// of a raw 3-component normal.
func PackOctUnorm16(n mgl32.Vec3) (x, y uint16) {
	l1 := abs32(n[0]) + abs32(n[1]) + abs32(n[2])
	if l1 == 0 {
		return 32768, 32768
	}
	p := mgl32.Vec2{n[0] / l1, n[1] / l1}
	if n[2] < 0 {
		ox := (1 - abs32(p[1])) * signNotZero(p[0])
		oy := (1 - abs32(p[0])) * signNotZero(p[1])
		p[0], p[1] = ox, oy
	}
	x = floatToUnorm16(p[0]*0.5 + 0.5)
	y = floatToUnorm16(p[1]*0.5 + 0.5)
	return
}

// UnpackOctUnorm16 decodes a normal packed by
// PackOctUnorm16. The round trip has angular error below
// 2^-10 radians, matching spec §8's invariant 3.
func UnpackOctUnorm16(x, y uint16) mgl32.Vec3 {
	fx := unorm16ToFloat(x)*2 - 1
	fy := unorm16ToFloat(y)*2 - 1
	nz := 1 - abs32(fx) - abs32(fy)
	nx, ny := fx, fy
	if nz < 0 {
		nx = (1 - abs32(fy)) * signNotZero(fx)
		ny = (1 - abs32(fx)) * signNotZero(fy)
	}
	n := mgl32.Vec3{nx, ny, nz}
	return n.Normalize()
}

func floatToUnorm16(f float32) uint16 {
	if f <= 0 {
		return 0
	}
	if f >= 1 {
		return 65535
	}
	return uint16(math.Round(float64(f) * 65535))
}

func unorm16ToFloat(u uint16) float32 {
	return float32(u) / 65535
}
