// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package transport

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// TraceLight runs a single light sub-path starting from a uniformly
// chosen emissive sphere, per spec §4.3's "first light sub-path
// vertex is sampled from a light source using a power-weighted
// distribution" (reduced here to uniform selection, since every
// light in the reference scene carries equal power).
func TraceLight(scene *Scene, rng *rand.Rand, minLen, maxLen int, algo Algorithm, c Constants) []Vertex {
	lights := scene.Lights()
	if len(lights) == 0 {
		return nil
	}
	light := lights[rng.Intn(len(lights))]
	selectPdf := 1 / float32(len(lights))

	u1, u2 := rng.Float32(), rng.Float32()
	z := 1 - 2*u1
	r := float32(math.Sqrt(math.Max(0, float64(1-z*z))))
	phi := 2 * math.Pi * float64(u2)
	n := mgl32.Vec3{r * float32(math.Cos(phi)), r * float32(math.Sin(phi)), z}
	pos := light.Center.Add(n.Mul(light.Radius))

	area := 4 * math.Pi * float64(light.Radius) * float64(light.Radius)
	pdfA := float32(1/area) * selectPdf

	dir, pdfDirW := cosineSampleHemisphere(n, rng)
	if pdfDirW <= 0 {
		return nil
	}

	dVCM := FirstLightDVCM(pdfA)
	// dVC for an area-light first vertex carries the
	// cosine-sampling pdf ratio per the Georgiev recurrence's base
	// case (no incoming dVC/dVM to propagate yet). dVM starts at 0:
	// there is no earlier vertex for a merge event to have occurred
	// at.
	dVC := Mis(n.Dot(dir) / pdfDirW)
	dVM := float32(0)

	throughput := light.Mat.Emission.Mul(n.Dot(dir) / (pdfA * pdfDirW))

	var vertices []Vertex
	cur := Ray{Origin: pos.Add(n.Mul(1e-4)), Dir: dir}
	specular := false

	for length := 1; length <= maxLen; length++ {
		hit, ok := scene.Intersect(cur)
		if !ok {
			break
		}
		if hit.Sphere.Mat.Specular {
			cur = Ray{Origin: hit.Position, Dir: reflect(cur.Dir, hit.Normal)}
			specular = true
			continue
		}

		v := Vertex{
			Position: hit.Position, Normal: hit.Normal, Throughput: throughput,
			Material: hit.Sphere.Mat, PathLength: length, DVCM: dVCM, DVC: dVC, DVM: dVM, Specular: specular,
		}
		vertices = append(vertices, v)

		if length >= maxLen {
			break
		}
		survive, factor := RussianRoulette(rng.Float32(), length, minLen, maxRRContinueProb)
		if !survive {
			break
		}

		ndir, npdfW := cosineSampleHemisphere(hit.Normal, rng)
		if npdfW <= 0 {
			break
		}
		cosTheta := ndir.Dot(hit.Normal)
		brdf := hit.Sphere.Mat.Albedo.Mul(float32(1 / math.Pi))
		throughput = mulVec3(throughput, brdf).Mul(cosTheta / npdfW * factor)

		dVCM, dVC, dVM = Extend(v, npdfW, npdfW, cosTheta, c.MisVcWeightFactor, c.MisVmWeightFactor)
		specular = false
		cur = Ray{Origin: hit.Position, Dir: ndir}
	}
	return vertices
}

// Connect evaluates the deterministic BPT/VCM connection between
// every camera vertex and every light vertex (spec §4.3 event 3),
// shadow-testing each pair and weighting by ConnectWeight.
func Connect(scene *Scene, cameraVertices, lightVertices []Vertex) mgl32.Vec3 {
	var sum mgl32.Vec3
	for _, cv := range cameraVertices {
		if cv.Specular {
			continue
		}
		for _, lv := range lightVertices {
			if lv.Specular {
				continue
			}
			seg := lv.Position.Sub(cv.Position)
			dist2 := seg.Dot(seg)
			dist := float32(math.Sqrt(float64(dist2)))
			if dist < 1e-5 {
				continue
			}
			dir := seg.Mul(1 / dist)

			cosCamera := dir.Dot(cv.Normal)
			cosLight := dir.Mul(-1).Dot(lv.Normal)
			if cosCamera <= 0 || cosLight <= 0 {
				continue
			}

			shadowRay := Ray{Origin: cv.Position.Add(cv.Normal.Mul(1e-4)), Dir: dir}
			if hit, ok := scene.Intersect(shadowRay); ok && hit.Dist < dist-2e-3 {
				continue
			}

			cameraBsdf := cv.Material.Albedo.Mul(float32(1 / math.Pi))
			lightBsdf := lv.Material.Albedo.Mul(float32(1 / math.Pi))
			geom := cosCamera * cosLight / dist2

			pdfCameraToLightW := cosLight / float32(math.Pi)
			pdfLightToCameraW := cosCamera / float32(math.Pi)
			w := ConnectWeight(cv, lv, pdfCameraToLightW, pdfLightToCameraW)

			contrib := mulVec3(mulVec3(cv.Throughput, cameraBsdf), mulVec3(lv.Throughput, lightBsdf)).
				Mul(geom * w)
			sum = sum.Add(contrib)
		}
	}
	return sum
}

// RenderPixel evaluates the unified estimator for a single camera
// ray, combining the camera-path emission/NEE pass with a
// connection pass against one light sub-path when algo is Bpt or
// Vcm (PathTrace's only connection is the NEE inside TraceCamera;
// LightTrace is covered below). Merging (UsesMerging) is left to the caller, which
// must maintain the hash grid of light vertices across many pixels
// (a single pixel has no neighbourhood to merge against).
//
// Pure light tracing (LightTrace) has no camera-side connection or
// emission-hit contribution of its own kind that belongs here: its
// only technique is splatting light sub-path vertices onto the view's
// light image, which needs a shared per-frame image rather than a
// per-pixel return value, so the caller drives it directly instead of
// through RenderPixel (see engine.Renderer.renderLightTrace).
func RenderPixel(scene *Scene, ray Ray, rng *rand.Rand, minLen, maxLen int, algo Algorithm, c Constants) mgl32.Vec3 {
	radiance, cameraVertices := TraceCamera(scene, ray, rng, minLen, maxLen, algo, c)
	if algo.UsesConnection() && algo != PathTrace && algo != LightTrace {
		lightVertices := TraceLight(scene, rng, minLen, maxLen, algo, c)
		radiance = radiance.Add(Connect(scene, cameraVertices, lightVertices))
	}
	return radiance
}
