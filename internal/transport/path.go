// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package transport

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lumenforge/vkpt/internal/envmap"
)

// maxRRContinueProb bounds Russian-roulette survival probability so a
// near-white throughput never forces unbounded path length.
const maxRRContinueProb = 0.95

// mulVec3 returns the component-wise product of a and b; mgl32
// only provides scalar Mul, so tinting throughput by an albedo or
// emission color needs this explicitly.
func mulVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

// TraceCamera runs a single camera sub-path through scene starting
// at ray, accumulating emission hits and next-event-estimation
// samples. It implements the PathTrace/Bpt/Vcm camera-side loop
// described in spec §4.3 (events 1 and 2; event 3/4 — connect and
// merge against stored light vertices — are applied by the caller
// when algo.UsesConnection()/UsesMerging(), via ConnectWeight/Merge
// using the returned vertex chain).
//
// It returns the accumulated radiance from emission hits and NEE,
// plus every non-specular vertex visited (for BPT/VCM connection and
// merging passes).
func TraceCamera(scene *Scene, ray Ray, rng *rand.Rand, minLen, maxLen int, algo Algorithm, c Constants) (radiance mgl32.Vec3, vertices []Vertex) {
	throughput := mgl32.Vec3{1, 1, 1}
	dVCM, dVC, dVM := float32(0), float32(0), float32(0)
	specular := true // the camera lens is a delta sampler
	cur := ray

	for length := 1; length <= maxLen; length++ {
		hit, ok := scene.Intersect(cur)
		if !ok {
			if scene.Environment != nil {
				radiance = radiance.Add(environmentEmission(scene.Environment, cur.Dir, throughput, dVCM, dVC, c, algo, length))
			}
			break
		}

		if hit.Sphere.Mat.IsEmissive() {
			area := 4 * math.Pi * float64(hit.Sphere.Radius) * float64(hit.Sphere.Radius)
			pdfA := float32(1 / area)
			toHit := hit.Position.Sub(cur.Origin)
			dist2 := toHit.Dot(toHit)
			cosLight := hit.Normal.Dot(toHit.Mul(-1 / float32(math.Sqrt(float64(dist2)))))
			var w float32 = 1
			if algo.UsesMIS() && length > 1 && cosLight > 0 {
				pdfLightW := pdfA * dist2 / cosLight
				w = EmissionWeight(dVCM, dVC, pdfA, pdfLightW)
			}
			radiance = radiance.Add(mulVec3(throughput.Mul(w), hit.Sphere.Mat.Emission))
		}

		if hit.Sphere.Mat.Specular {
			// Perfect mirrors don't carry a vertex usable for
			// connection/merging or NEE.
			cur = Ray{Origin: hit.Position, Dir: reflect(cur.Dir, hit.Normal)}
			specular = true
			continue
		}

		v := Vertex{
			Position: hit.Position, Normal: hit.Normal, Throughput: throughput,
			Material: hit.Sphere.Mat, PathLength: length, DVCM: dVCM, DVC: dVC, DVM: dVM, Specular: specular,
		}
		vertices = append(vertices, v)

		if algo.UsesConnection() {
			radiance = radiance.Add(neeSample(scene, hit, throughput, dVCM, dVC, c, rng))
		}

		if length >= maxLen {
			break
		}
		survive, factor := RussianRoulette(rng.Float32(), length, minLen, maxRRContinueProb)
		if !survive {
			break
		}

		dir, pdfW := cosineSampleHemisphere(hit.Normal, rng)
		if pdfW <= 0 {
			break
		}
		cosTheta := dir.Dot(hit.Normal)
		brdf := hit.Sphere.Mat.Albedo.Mul(float32(1 / math.Pi))
		throughput = mulVec3(throughput, brdf).Mul(cosTheta / pdfW * factor)

		dVCM, dVC, dVM = Extend(v, pdfW, pdfW, cosTheta, c.MisVcWeightFactor, c.MisVmWeightFactor)
		specular = false
		cur = Ray{Origin: hit.Position, Dir: dir}
	}
	return
}

// environmentEmission weights a camera ray's escape into an
// environment map by the same emission-hit MIS rule TraceCamera
// applies to a sphere light, per spec §4.3 event 1 generalized to
// spec §6's environment-lighting scenario. Environment directions
// carry no area measure (the map sits at infinite distance), so
// this treats it as though it were painted on the scene's bounding
// sphere: the solid-angle pdf Environment.PdfW returns is converted
// to a pseudo-area pdf over that sphere's great-circle disc. No
// concrete source for the original's environment MIS conversion was
// retrieved, so this conversion is a documented
// simplification rather than a byte-exact port.
func environmentEmission(env *envmap.Environment, dir mgl32.Vec3, throughput mgl32.Vec3, dVCM, dVC float32, c Constants, algo Algorithm, length int) mgl32.Vec3 {
	emitted := env.Evaluate(dir)
	w := float32(1)
	if algo.UsesMIS() && length > 1 {
		if pdfW := env.PdfW(dir); pdfW > 0 && c.SceneSphereRadius > 0 {
			pdfA := pdfW / (float32(math.Pi) * c.SceneSphereRadius * c.SceneSphereRadius)
			w = EmissionWeight(dVCM, dVC, pdfA, pdfW)
		}
	}
	return mulVec3(throughput.Mul(w), emitted)
}

// neeSample samples one light point from hit and returns its
// weighted shadow-tested contribution, per spec §4.3 event 2. When
// scene carries an Environment, it is folded into the same light
// list as one more uniformly-selectable candidate (spec §6's
// "Environment only" scenario, where it is the only candidate).
func neeSample(scene *Scene, hit Hit, throughput mgl32.Vec3, camDVCM, camDVC float32, c Constants, rng *rand.Rand) mgl32.Vec3 {
	lights := scene.Lights()
	hasEnv := scene.Environment != nil
	n := len(lights)
	if hasEnv {
		n++
	}
	if n == 0 {
		return mgl32.Vec3{}
	}
	selectPdf := 1 / float32(n)
	idx := rng.Intn(n)

	if hasEnv && idx == len(lights) {
		return neeEnvironment(scene, hit, throughput, camDVCM, camDVC, c, rng, selectPdf)
	}

	light := lights[idx]
	pos, pdfA, pdfW := sampleSphereLight(light, hit.Position, rng)
	if pdfW <= 0 {
		return mgl32.Vec3{}
	}
	pdfA *= selectPdf
	pdfW *= selectPdf

	toLight := pos.Sub(hit.Position)
	dist := toLight.Len()
	dir := toLight.Mul(1 / dist)
	cosSurface := dir.Dot(hit.Normal)
	if cosSurface <= 0 {
		return mgl32.Vec3{}
	}

	shadowRay := Ray{Origin: hit.Position.Add(hit.Normal.Mul(1e-4)), Dir: dir}
	if shadow, ok := scene.Intersect(shadowRay); ok && shadow.Dist < dist-2e-3 {
		return mgl32.Vec3{}
	}

	f := hit.Sphere.Mat.Albedo.Mul(float32(1/math.Pi) * cosSurface)

	bsdfPdfW := cosSurface / float32(math.Pi)
	w := NEEWeight(camDVCM, camDVC, pdfA, pdfW, bsdfPdfW, c.MisVcWeightFactor)

	contrib := mulVec3(mulVec3(throughput, f), light.Mat.Emission).Mul(w / pdfW)
	return contrib
}

// neeEnvironment is neeSample's environment-sampling branch: it
// draws a direction from the environment's importance table instead
// of a point on a sphere light, shadow-tests it against the scene,
// and weights it the same way, using the bounding-sphere pdfA
// approximation environmentEmission documents.
func neeEnvironment(scene *Scene, hit Hit, throughput mgl32.Vec3, camDVCM, camDVC float32, c Constants, rng *rand.Rand, selectPdf float32) mgl32.Vec3 {
	dir, pdfW, radiance := scene.Environment.Sample(rng.Float32(), rng.Float32())
	if pdfW <= 0 {
		return mgl32.Vec3{}
	}
	pdfW *= selectPdf
	cosSurface := dir.Dot(hit.Normal)
	if cosSurface <= 0 {
		return mgl32.Vec3{}
	}

	shadowRay := Ray{Origin: hit.Position.Add(hit.Normal.Mul(1e-4)), Dir: dir}
	if _, ok := scene.Intersect(shadowRay); ok {
		return mgl32.Vec3{}
	}

	f := hit.Sphere.Mat.Albedo.Mul(float32(1/math.Pi) * cosSurface)
	bsdfPdfW := cosSurface / float32(math.Pi)

	var pdfA float32
	if c.SceneSphereRadius > 0 {
		pdfA = pdfW / (float32(math.Pi) * c.SceneSphereRadius * c.SceneSphereRadius)
	}
	w := NEEWeight(camDVCM, camDVC, pdfA, pdfW, bsdfPdfW, c.MisVcWeightFactor)

	return mulVec3(mulVec3(throughput, f), radiance).Mul(w / pdfW)
}

func reflect(d, n mgl32.Vec3) mgl32.Vec3 {
	return d.Sub(n.Mul(2 * d.Dot(n)))
}
