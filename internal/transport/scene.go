// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package transport

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lumenforge/vkpt/internal/envmap"
)

// Material is a reduced ShadingData: a Lambertian (or perfectly
// specular, for Specular materials) surface description. Full
// microfacet/layered shading is a shader-side concern out of scope
// for this host-side reference path; this is enough to drive the
// MIS weight formulas with real pdfs.
type Material struct {
	Albedo   mgl32.Vec3
	Emission mgl32.Vec3
	Specular bool
}

// IsEmissive reports whether m emits light.
func (m *Material) IsEmissive() bool {
	return m.Emission[0] > 0 || m.Emission[1] > 0 || m.Emission[2] > 0
}

// Sphere is the only primitive this reference scene models — enough
// to exercise the unified transport kernel's MIS math against an
// analytically tractable geometry (testable property 7's Cornell-box
// agreement check, reduced to a sphere light over a diffuse sphere).
type Sphere struct {
	Center mgl32.Vec3
	Radius float32
	Mat    *Material
}

// Ray is a parametric ray, Origin + t*Dir.
type Ray struct {
	Origin, Dir mgl32.Vec3
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float32) mgl32.Vec3 { return r.Origin.Add(r.Dir.Mul(t)) }

// Hit describes a ray/sphere intersection.
type Hit struct {
	Dist     float32
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	Sphere   *Sphere
}

// Scene is an unordered collection of spheres, at least one of
// which should be emissive to produce non-zero radiance. A nil
// Environment means a camera ray that escapes every sphere simply
// contributes no radiance (spec §4.3's scene-miss default); a
// non-nil one is evaluated/sampled as an additional, infinitely
// distant light (spec §6's "Environment only" scenario).
type Scene struct {
	Spheres     []*Sphere
	Environment *envmap.Environment
}

// BoundingSphere returns a sphere enclosing every primitive,
// supplying VcmConstants.mSceneSphere.
func (s *Scene) BoundingSphere() (center mgl32.Vec3, radius float32) {
	if len(s.Spheres) == 0 {
		return mgl32.Vec3{}, 1
	}
	var sum mgl32.Vec3
	for _, sp := range s.Spheres {
		sum = sum.Add(sp.Center)
	}
	center = sum.Mul(1 / float32(len(s.Spheres)))
	for _, sp := range s.Spheres {
		d := sp.Center.Sub(center).Len() + sp.Radius
		if d > radius {
			radius = d
		}
	}
	return
}

// Lights returns every emissive sphere in the scene.
func (s *Scene) Lights() []*Sphere {
	var out []*Sphere
	for _, sp := range s.Spheres {
		if sp.Mat.IsEmissive() {
			out = append(out, sp)
		}
	}
	return out
}

// Intersect finds the closest hit along r, if any.
func (s *Scene) Intersect(r Ray) (Hit, bool) {
	var best Hit
	found := false
	for _, sp := range s.Spheres {
		if t, ok := intersectSphere(r, sp); ok {
			if !found || t < best.Dist {
				pos := r.At(t)
				best = Hit{
					Dist:     t,
					Position: pos,
					Normal:   pos.Sub(sp.Center).Normalize(),
					Sphere:   sp,
				}
				found = true
			}
		}
	}
	return best, found
}

func intersectSphere(r Ray, sp *Sphere) (float32, bool) {
	oc := r.Origin.Sub(sp.Center)
	a := r.Dir.Dot(r.Dir)
	b := 2 * oc.Dot(r.Dir)
	c := oc.Dot(oc) - sp.Radius*sp.Radius
	disc := b*b - 4*a*c
	if disc < 0 {
		return 0, false
	}
	sq := float32(math.Sqrt(float64(disc)))
	t := (-b - sq) / (2 * a)
	if t < 1e-4 {
		t = (-b + sq) / (2 * a)
		if t < 1e-4 {
			return 0, false
		}
	}
	return t, true
}

// cosineSampleHemisphere draws a cosine-weighted direction about n,
// returning the direction and its solid-angle pdf (cosTheta/π).
func cosineSampleHemisphere(n mgl32.Vec3, rng *rand.Rand) (mgl32.Vec3, float32) {
	u1, u2 := rng.Float32(), rng.Float32()
	r := float32(math.Sqrt(float64(u1)))
	theta := 2 * math.Pi * float64(u2)
	x := r * float32(math.Cos(theta))
	y := r * float32(math.Sin(theta))
	z := float32(math.Sqrt(math.Max(0, float64(1-u1))))

	t, b := orthoBasis(n)
	dir := t.Mul(x).Add(b.Mul(y)).Add(n.Mul(z)).Normalize()
	cosTheta := z
	pdf := cosTheta / math.Pi
	return dir, float32(pdf)
}

func orthoBasis(n mgl32.Vec3) (mgl32.Vec3, mgl32.Vec3) {
	var up mgl32.Vec3
	if math.Abs(float64(n[1])) < 0.99 {
		up = mgl32.Vec3{0, 1, 0}
	} else {
		up = mgl32.Vec3{1, 0, 0}
	}
	t := up.Cross(n).Normalize()
	b := n.Cross(t)
	return t, b
}

// sampleSphereLight draws a uniform point over a light's whole
// surface, returning the position, its area-measure pdf
// (1/surfaceArea), and the solid-angle pdf as seen from
// shadingPoint, which is 0 when the point faces away from it.
func sampleSphereLight(light *Sphere, shadingPoint mgl32.Vec3, rng *rand.Rand) (pos mgl32.Vec3, pdfA, pdfW float32) {
	u1, u2 := rng.Float32(), rng.Float32()
	z := 1 - 2*u1
	r := float32(math.Sqrt(math.Max(0, float64(1-z*z))))
	phi := 2 * math.Pi * float64(u2)
	localN := mgl32.Vec3{r * float32(math.Cos(phi)), r * float32(math.Sin(phi)), z}
	pos = light.Center.Add(localN.Mul(light.Radius))

	area := 4 * math.Pi * float64(light.Radius) * float64(light.Radius)
	pdfA = float32(1 / area)

	toLight := pos.Sub(shadingPoint)
	dist2 := toLight.Dot(toLight)
	dist := float32(math.Sqrt(float64(dist2)))
	if dist < 1e-6 {
		return pos, pdfA, 0
	}
	dir := toLight.Mul(1 / dist)
	cosLight := localN.Dot(dir.Mul(-1))
	if cosLight <= 0 {
		return pos, pdfA, 0
	}
	pdfW = pdfA * dist2 / cosLight
	return
}
