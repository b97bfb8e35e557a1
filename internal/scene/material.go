// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"
)

const matPrefix = "scene: material: "

func newMatErr(reason string) error { return errors.New(matPrefix + reason) }

// Material is the host-side description of a surface's BSDF
// parameters, generalizing engine/material.go's PBR struct with
// the disney-style lobes the transport core's abstract
// sampleDirection/evaluate/pdf routines need (spec §6's packed
// material record).
type Material struct {
	BaseColor      mgl32.Vec3
	Emission       mgl32.Vec3
	EmissionScale  float32
	Metallic       float32
	Roughness      float32
	Anisotropic    float32
	Subsurface     float32
	Clearcoat      float32
	ClearcoatGloss float32
	Transmission   float32
	Eta            float32
	AlphaMode      int
	AlphaCutoff    float32

	// Texture-table indices; NoTexture if unused. Texture
	// decode/upload itself stays the engine's Texture/TexRef
	// concern (engine/texture.go) — scene only threads the
	// resolved index through to the packed record.
	BaseColorTex, MetalRoughTex, NormalTex, EmissionTex uint32
}

// IsEmissive reports whether m emits light.
func (m *Material) IsEmissive() bool {
	return m.EmissionScale > 0 && (m.Emission[0] > 0 || m.Emission[1] > 0 || m.Emission[2] > 0)
}

func (m *Material) validate() error {
	switch {
	case m.Metallic < 0 || m.Metallic > 1:
		return newMatErr("Metallic outside [0.0, 1.0] interval")
	case m.Roughness < 0 || m.Roughness > 1:
		return newMatErr("Roughness outside [0.0, 1.0] interval")
	case m.Transmission < 0 || m.Transmission > 1:
		return newMatErr("Transmission outside [0.0, 1.0] interval")
	case m.Eta <= 0:
		return newMatErr("Eta must be positive")
	}
	switch m.AlphaMode {
	case AlphaOpaque, AlphaBlend, AlphaMask:
	default:
		return newMatErr("undefined alpha mode constant")
	}
	return nil
}

// pack writes m's packed GPU record.
func (m *Material) pack() MaterialLayout {
	var l MaterialLayout
	l.SetBaseColor(m.BaseColor)
	l.SetEmission(m.Emission, m.EmissionScale)
	l.SetScalars(m.Metallic, m.Roughness, m.Anisotropic, m.Subsurface, m.Clearcoat, m.ClearcoatGloss, m.Transmission, m.Eta)
	l.SetTextures(m.BaseColorTex, m.MetalRoughTex, m.NormalTex, m.EmissionTex)
	l.SetAlpha(m.AlphaMode, m.AlphaCutoff)
	return l
}
