// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package reservoir implements ReSTIR-style streaming
// weighted reservoir resampling for direct-illumination (DI)
// and generalized-illumination (GI) candidates, plus
// temporal and spatial reuse with Jacobian-based validity
// rejection.
//
// Grounded on Shaders/compat/reservoir.h and
// original_source/src/App/ReSTIRPT.cpp.
package reservoir

import "math/rand"

// Sample is the payload carried by a Reservoir. It never
// stores the sampled direction/light index directly;
// instead it stores the RNG seed that reproduces the
// original sampling decisions, so replay regenerates the
// same path rather than reusing a cached direction (see
// DESIGN.md's Open Question decision on reservoir replay).
type Sample struct {
	// Seed reproduces the light/BSDF sampling decisions
	// that produced this candidate.
	Seed uint64
	// TargetPdf is the (possibly unnormalized) target
	// function value p-hat used to weigh this sample when
	// it was streamed in.
	TargetPdf float32
}

// Reservoir is a single-sample weighted reservoir.
type Reservoir struct {
	Sample      Sample
	WeightSum   float32
	M           float32
	// W is the unbiased contribution weight:
	// W = WeightSum / (M * Sample.TargetPdf).
	W float32
}

// Reset empties the reservoir.
func (r *Reservoir) Reset() { *r = Reservoir{} }

// Update performs a single streaming-update step: candidate
// s was drawn with source pdf sourcePdf and has target
// function value targetPdf (both with respect to the same
// measure). weight = targetPdf/sourcePdf. rnd must be a
// uniform random value in [0, 1).
//
// This implements the resampled-importance-sampling
// streaming RIS update: accept s with probability
// weight / (r.WeightSum after adding weight).
func (r *Reservoir) Update(s Sample, sourcePdf float32, rnd float32) bool {
	if sourcePdf <= 0 {
		return false
	}
	weight := s.TargetPdf / sourcePdf
	if weight <= 0 {
		r.M++
		return false
	}
	r.WeightSum += weight
	r.M++
	accepted := rnd*r.WeightSum < weight
	if accepted {
		r.Sample = s
	}
	return accepted
}

// Finalize computes W from the accumulated WeightSum/M and
// the current sample's target pdf. It must be called once
// after all Update calls for the frame, and again after any
// combine, since MaxM clamping changes M.
func (r *Reservoir) Finalize() {
	if r.M <= 0 || r.Sample.TargetPdf <= 0 {
		r.W = 0
		return
	}
	r.W = r.WeightSum / (r.M * r.Sample.TargetPdf)
}

// ClampM caps M at maxM, rescaling WeightSum proportionally
// so that W (computed by a subsequent Finalize) is
// unaffected. This bounds the history a reservoir can carry
// across temporal reuse (spec's "M clamp").
func (r *Reservoir) ClampM(maxM float32) {
	if r.M <= maxM || r.M <= 0 {
		return
	}
	scale := maxM / r.M
	r.WeightSum *= scale
	r.M = maxM
}

// Combine merges other into r using unbiased RIS combination
// (the two-reservoir special case of streaming resampling):
// other is resampled into r with weight
// other.W * other.M * other.Sample.TargetPdf, i.e. treating
// other as a single candidate whose source pdf already
// accounts for everything that went into it.
func (r *Reservoir) Combine(other *Reservoir, rnd float32) bool {
	if other.M <= 0 || other.Sample.TargetPdf <= 0 {
		return false
	}
	weight := other.Sample.TargetPdf * other.W * other.M
	if weight <= 0 {
		r.M += other.M
		return false
	}
	r.WeightSum += weight
	r.M += other.M
	accepted := rnd*r.WeightSum < weight
	if accepted {
		r.Sample = other.Sample
	}
	return accepted
}

// PairwiseCombine implements pairwise MIS combination across
// a list of neighbor reservoirs (spatial reuse), following
// Bitterli's "Generalized Resampled Importance Sampling"
// pairwise-MIS estimator. targetPdfAt evaluates the target
// function of candidate s at the domain of reservoir i
// (i.e., re-evaluates visibility/BSDF as seen from neighbor
// i's shading point); it is supplied by the caller since it
// is transport-specific (DI vs GI).
func PairwiseCombine(center *Reservoir, neighbors []*Reservoir, targetPdfAt func(i int, s Sample) float32, rng *rand.Rand) {
	if len(neighbors) == 0 {
		return
	}
	k := float32(len(neighbors))
	canonicalM := center.M
	result := Reservoir{}

	mi := func(targetAtNeighbor, targetAtCanonical float32, mCount float32) float32 {
		denom := targetAtNeighbor*mCount + targetAtCanonical*canonicalM/k
		if denom <= 0 {
			return 0
		}
		return targetAtCanonical * mCount / denom
	}

	for i, nb := range neighbors {
		if nb.M <= 0 || nb.Sample.TargetPdf <= 0 {
			continue
		}
		targetAtCanonical := targetPdfAt(i, nb.Sample)
		weight := mi(nb.Sample.TargetPdf, targetAtCanonical, nb.M) * targetAtCanonical * nb.W
		if weight <= 0 {
			continue
		}
		result.WeightSum += weight
		result.M += nb.M / k
		if rng.Float32()*result.WeightSum < weight {
			result.Sample = nb.Sample
		}
	}

	// Canonical sample's own contribution, with its MIS
	// weight against the pooled neighbors.
	if center.M > 0 && center.Sample.TargetPdf > 0 {
		selfWeight := center.Sample.TargetPdf * center.W * canonicalM
		result.WeightSum += selfWeight
		result.M += canonicalM
		if selfWeight > 0 && rng.Float32()*result.WeightSum < selfWeight {
			result.Sample = center.Sample
		}
	}

	*center = result
	center.Finalize()
}

// Jacobian returns the Jacobian determinant of the shift
// map from a neighbor's reconstructed GI sample back to the
// center pixel's domain, following Bitterli's ReSTIR GI
// reconnection shift: |cos(theta_2') * d1^2| / |cos(theta_2) * d1'^2|.
// Reuse must be rejected (treated as invalid, weight 0) when
// the result is non-finite, non-positive, or exceeds a
// configured maximum (guards against fireflies from
// near-degenerate shifts).
func Jacobian(cosAtNeighbor, cosAtCenter, distNeighbor, distCenter float32) float32 {
	if cosAtCenter <= 0 || distNeighbor <= 0 {
		return 0
	}
	num := cosAtNeighbor * distCenter * distCenter
	den := cosAtCenter * distNeighbor * distNeighbor
	if den <= 0 {
		return 0
	}
	j := num / den
	if j < 0 {
		return 0
	}
	return j
}
