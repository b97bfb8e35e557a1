// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import "github.com/go-gl/mathgl/mgl32"

// Light is a host-side emitter: either a standalone analytic
// sphere light, a reference to an emissive instance's triangle
// mesh, or the environment map; every kind's selection weight is
// power(), its emitted luminance times Area. This
// generalizes the single-light-per-draw assumption of
// engine/internal/shader.LightLayout to the light table the
// unified transport kernel samples from (spec §4.3's "first
// light sub-path vertex is sampled from a light source using a
// power-weighted distribution").
type Light struct {
	Kind     int
	Position mgl32.Vec3
	Radius   float32
	Emission mgl32.Vec3
	Area     float32
	Instance uint32
}

// power returns the light's unnormalised selection weight:
// total emitted power, approximated as emitted-radiance ×
// surface area (ignoring the cosine-weighted solid-angle
// integral, which every candidate light shares the same order
// of magnitude for).
func (lt *Light) power() float32 {
	luminance := 0.2126*lt.Emission[0] + 0.7152*lt.Emission[1] + 0.0722*lt.Emission[2]
	return luminance * lt.Area
}

func (lt *Light) pack() LightLayout {
	var l LightLayout
	l.SetKind(uint32(lt.Kind))
	l.SetPosition(lt.Position)
	l.SetRadius(lt.Radius)
	l.SetEmission(lt.Emission)
	l.SetArea(lt.Area)
	l.SetInstance(lt.Instance)
	l.SetPower(lt.power())
	return l
}

// LightTable holds the flattened light array plus the
// piecewise-constant CDF used for power-weighted selection
// (spec §4.3), grounded on the marginal/conditional CDF
// construction internal/envmap uses for the environment map,
// generalized here to a 1-D discrete distribution over lights.
type LightTable struct {
	Lights []Light
	cdf    []float32
	total  float32
}

// Build (re)computes the selection CDF from Lights. Must be
// called whenever Lights changes before Sample is used.
func (t *LightTable) Build() {
	t.cdf = make([]float32, len(t.Lights))
	var sum float32
	for i := range t.Lights {
		sum += t.Lights[i].power()
		t.cdf[i] = sum
	}
	t.total = sum
}

// Sample draws a light index using u ∈ [0,1) and returns it
// along with its selection pdf (power/total). Returns ok=false
// if the table is empty or carries zero total power, in which
// case the caller must fall back to uniform selection.
func (t *LightTable) Sample(u float32) (index int, pdf float32, ok bool) {
	if len(t.Lights) == 0 || t.total <= 0 {
		return 0, 0, false
	}
	target := u * t.total
	lo, hi := 0, len(t.cdf)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cdf[mid] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	pdf = t.Lights[lo].power() / t.total
	return lo, pdf, true
}
