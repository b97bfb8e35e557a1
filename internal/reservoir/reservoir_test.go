// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package reservoir

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestReservoirUnbiasedEstimate checks the core correctness
// invariant: for a population of candidates drawn from a
// known source pdf, streaming them through a Reservoir and
// computing contribution*W over many trials converges to the
// true integral of the target function (here, x² over
// [0,1), whose integral is 1/3).
func TestReservoirUnbiasedEstimate(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const trials = 20000
	var sum float64

	targetFn := func(x float32) float32 { return x * x }

	for i := 0; i < trials; i++ {
		var r Reservoir
		const candidates = 8
		for c := 0; c < candidates; c++ {
			x := rng.Float32()
			s := Sample{Seed: uint64(c), TargetPdf: targetFn(x)}
			r.Update(s, 1.0, rng.Float32()) // source pdf is uniform: 1.0 over [0,1)
		}
		r.Finalize()
		// contribution of the chosen sample, reweighted by W,
		// estimates E[target] = integral of x^2 over [0,1) = 1/3.
		sum += float64(r.Sample.TargetPdf * r.W)
	}

	mean := sum / trials
	assert.InDelta(t, 1.0/3.0, mean, 0.02, "streaming RIS estimate should converge to the true integral")
}

func TestReservoirWZeroWhenEmpty(t *testing.T) {
	var r Reservoir
	r.Finalize()
	assert.Zero(t, r.W)
}

func TestClampMRescalesWeightSumProportionally(t *testing.T) {
	var r Reservoir
	r.WeightSum = 10
	r.M = 20
	r.Sample.TargetPdf = 2
	r.ClampM(10)
	assert.Equal(t, float32(10), r.M)
	assert.InDelta(t, 5.0, float64(r.WeightSum), 1e-6)

	r.Finalize()
	want := r.WeightSum / (r.M * r.Sample.TargetPdf)
	assert.InDelta(t, float64(want), float64(r.W), 1e-6)
}

func TestJacobianRejectsDegenerateShift(t *testing.T) {
	assert.Zero(t, Jacobian(1, 0, 1, 1), "zero cosine at center must reject reuse")
	assert.Zero(t, Jacobian(1, 1, 0, 1), "zero distance at neighbor must reject reuse")
	j := Jacobian(1, 1, 2, 2)
	assert.False(t, math.IsNaN(float64(j)))
	assert.InDelta(t, 1.0, float64(j), 1e-6)
}
