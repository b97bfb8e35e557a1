// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package scene flattens a host-side scene graph (instances,
// triangle meshes, materials, lights) into the packed GPU
// records the transport/reservoir kernels read, replacing the
// original's per-frame scene data builder.
//
// Records follow the fixed-size, offset-documented float32
// array convention of engine/internal/shader.MaterialLayout
// and friends: one Go array type per GPU record, with Set*
// methods writing at the documented offsets and integer/bit
// fields bit-cast through unsafe.Pointer rather than truncated
// to float.
package scene

import (
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/lumenforge/vkpt/internal/view"
)

func copyM4(dst []float32, m *mgl32.Mat4) { copy(dst, m[:]) }

func asFloat32(u uint32) float32 { return *(*float32)(unsafe.Pointer(&u)) }

// VertexLayout is the GPU-side ShadingData record (spec §3):
//
//	[0:3]   | position
//	[3]     | shapeArea
//	[4:6]   | packed geometry normal (oct, unorm16x2 bit-cast to one float32)
//	[6:8]   | packed shading normal
//	[8:10]  | packed tangent (xy) + [10] sign
//	[11:13] | texcoord (UV set 0)
//	[13]    | texcoordScreenSize
//	[14]    | meanCurvature
//	[15]    | flags | materialAddress (packed uint32)
type VertexLayout [16]float32

func packOct(n mgl32.Vec3) float32 {
	x, y := view.PackOctUnorm16(n)
	return asFloat32(uint32(x) | uint32(y)<<16)
}

// SetPosition sets the vertex's world-space position.
func (l *VertexLayout) SetPosition(p mgl32.Vec3) { copy(l[0:3], p[:]) }

// SetShapeArea sets the differential area the vertex represents
// (used to convert an area pdf to a solid-angle pdf).
func (l *VertexLayout) SetShapeArea(a float32) { l[3] = a }

// SetGeometryNormal packs and sets the geometric normal.
func (l *VertexLayout) SetGeometryNormal(n mgl32.Vec3) { l[4] = packOct(n) }

// SetShadingNormal packs and sets the shading normal.
func (l *VertexLayout) SetShadingNormal(n mgl32.Vec3) { l[6] = packOct(n) }

// SetTangent packs and sets the tangent, plus its handedness sign.
func (l *VertexLayout) SetTangent(t mgl32.Vec3, sign float32) {
	l[8] = packOct(t)
	l[10] = sign
}

// SetTexcoord sets the primary UV set.
func (l *VertexLayout) SetTexcoord(uv mgl32.Vec2) { copy(l[11:13], uv[:]) }

// SetTexcoordScreenSize sets the texcoord's footprint in screen
// space, used by the denoiser's mip-selection heuristic.
func (l *VertexLayout) SetTexcoordScreenSize(s float32) { l[13] = s }

// SetMeanCurvature sets the local mean curvature estimate.
func (l *VertexLayout) SetMeanCurvature(c float32) { l[14] = c }

// SetFlagsMaterial packs the material index and per-vertex
// flags into a single uint32 field.
func (l *VertexLayout) SetFlagsMaterial(flags uint16, materialIndex uint16) {
	l[15] = asFloat32(uint32(flags)<<16 | uint32(materialIndex))
}

// InstanceLayout is the GPU-side instance record (generalizes
// engine/internal/shader.DrawableLayout with a material-table
// base index and the previous frame's world matrix needed for
// motion-vector reprojection):
//
//	[0:16]  | world matrix
//	[16:32] | normal matrix
//	[32:48] | previous frame's world matrix
//	[48]    | first-vertex offset into the vertex buffer
//	[49]    | vertex count
//	[50]    | material index
//	[51]    | instance ID
//	[52:64] | (unused)
type InstanceLayout [64]float32

// SetWorld sets the instance's world matrix.
func (l *InstanceLayout) SetWorld(m *mgl32.Mat4) { copyM4(l[0:16], m) }

// SetNormal sets the instance's normal matrix (inverse-transpose of world).
func (l *InstanceLayout) SetNormal(m *mgl32.Mat4) { copyM4(l[16:32], m) }

// SetPrevWorld sets the previous frame's world matrix.
func (l *InstanceLayout) SetPrevWorld(m *mgl32.Mat4) { copyM4(l[32:48], m) }

// SetGeometry sets the instance's vertex-buffer span and material index.
func (l *InstanceLayout) SetGeometry(firstVertex, vertexCount, materialIndex uint32) {
	l[48] = asFloat32(firstVertex)
	l[49] = asFloat32(vertexCount)
	l[50] = asFloat32(materialIndex)
}

// SetID sets the instance's stable ID (used as the reservoir
// similarity-test key across frames).
func (l *InstanceLayout) SetID(id uint32) { l[51] = asFloat32(id) }

// MaterialLayout is the GPU-side packed material record (spec
// §6): base color and emission are quantised to 8 bits per
// channel, the three channels packed into one float32 via bit-casting, following
// the quantization spec line "quantised to 8 bits per channel".
//
//	[0]     | baseColor.rgb packed (8:8:8, top byte unused)
//	[1]     | emission.rgb packed (8:8:8) | [2] emission scale
//	[3]     | metallic | [4] roughness
//	[5]     | anisotropic | [6] subsurface
//	[7]     | clearcoat | [8] clearcoatGloss
//	[9]     | transmission | [10] eta (index of refraction)
//	[11]    | baseColor texture index
//	[12]    | metalRough texture index
//	[13]    | normal texture index
//	[14]    | emission texture index
//	[15]    | alphaMode<<24 | alphaCutoff quantised to 8 bits
type MaterialLayout [16]float32

func quantize8(x float32) uint32 {
	if x < 0 {
		x = 0
	}
	if x > 1 {
		x = 1
	}
	return uint32(x*255 + 0.5)
}

func dequantize8(u uint32) float32 { return float32(u) / 255 }

func packRGB8(c mgl32.Vec3) uint32 {
	return quantize8(c[0]) | quantize8(c[1])<<8 | quantize8(c[2])<<16
}

func unpackRGB8(u uint32) mgl32.Vec3 {
	return mgl32.Vec3{
		dequantize8(u & 0xff),
		dequantize8((u >> 8) & 0xff),
		dequantize8((u >> 16) & 0xff),
	}
}

// SetBaseColor quantises and sets the base-color factor.
func (l *MaterialLayout) SetBaseColor(c mgl32.Vec3) { l[0] = asFloat32(packRGB8(c)) }

// BaseColor dequantises the base-color factor.
func (l *MaterialLayout) BaseColor() mgl32.Vec3 {
	return unpackRGB8(*(*uint32)(unsafe.Pointer(&l[0])))
}

// SetEmission quantises and sets the emission color and its
// HDR scale (emission·scale is the radiance actually emitted).
func (l *MaterialLayout) SetEmission(c mgl32.Vec3, scale float32) {
	l[1] = asFloat32(packRGB8(c))
	l[2] = scale
}

// SetScalars sets every scalar BSDF parameter in one call.
func (l *MaterialLayout) SetScalars(metallic, roughness, anisotropic, subsurface, clearcoat, clearcoatGloss, transmission, eta float32) {
	l[3], l[4] = metallic, roughness
	l[5], l[6] = anisotropic, subsurface
	l[7], l[8] = clearcoat, clearcoatGloss
	l[9], l[10] = transmission, eta
}

// SetTextures sets the image-table indices referenced by this
// material; an index of ^uint32(0) marks "no texture".
func (l *MaterialLayout) SetTextures(baseColor, metalRough, normal, emission uint32) {
	l[11] = asFloat32(baseColor)
	l[12] = asFloat32(metalRough)
	l[13] = asFloat32(normal)
	l[14] = asFloat32(emission)
}

// Alpha modes, mirroring engine/material.go's AlphaOpaque/AlphaBlend/AlphaMask.
const (
	AlphaOpaque = iota
	AlphaBlend
	AlphaMask
)

// SetAlpha sets the alpha mode and, for AlphaMask, its cutoff.
func (l *MaterialLayout) SetAlpha(mode int, cutoff float32) {
	l[15] = asFloat32(uint32(mode)<<24 | quantize8(cutoff))
}

// NoTexture marks an unset texture-table slot.
const NoTexture = ^uint32(0)

// LightLayout is the GPU-side light-table record, generalizing
// engine/internal/shader.LightLayout (point/spot/direct lights
// for the raster engine) to the emissive-surface and
// environment lights the light-transport core samples:
//
//	[0]     | light kind
//	[1:4]   | position (sphere/point center)
//	[4]     | radius (sphere light) or (unused)
//	[5:8]   | emission.rgb
//	[8]     | surface area
//	[9]     | instance index (triangle-mesh light) or (unused)
//	[10]    | power (unnormalised selection weight)
//	[11:16] | (unused)
type LightLayout [16]float32

// Light kinds.
const (
	LightSphere = iota
	LightTriangleMesh
	LightEnvironment
)

// SetKind sets the light's kind.
func (l *LightLayout) SetKind(kind uint32) { l[0] = asFloat32(kind) }

// SetPosition sets the light's reference position.
func (l *LightLayout) SetPosition(p mgl32.Vec3) { copy(l[1:4], p[:]) }

// SetRadius sets the light's radius, for LightSphere.
func (l *LightLayout) SetRadius(r float32) { l[4] = r }

// SetEmission sets the light's emitted radiance.
func (l *LightLayout) SetEmission(c mgl32.Vec3) { copy(l[5:8], c[:]) }

// SetArea sets the light's surface area (used to convert
// between area-measure and solid-angle pdfs, spec §4.3).
func (l *LightLayout) SetArea(a float32) { l[8] = a }

// SetInstance sets the owning instance index, for LightTriangleMesh.
func (l *LightLayout) SetInstance(idx uint32) { l[9] = asFloat32(idx) }

// SetPower sets the light's unnormalised selection weight.
func (l *LightLayout) SetPower(p float32) { l[10] = p }
