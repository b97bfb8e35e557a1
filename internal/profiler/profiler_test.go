// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBeginEndRecordsLastDuration(t *testing.T) {
	p := New(nil)
	end := p.Begin("dispatch")
	time.Sleep(time.Millisecond)
	end()
	assert.Greater(t, p.Last("dispatch"), time.Duration(0))
}

func TestAverageIsZeroForUnknownScope(t *testing.T) {
	p := New(nil)
	assert.Zero(t, p.Average("never-run"))
	assert.Zero(t, p.Last("never-run"))
}

func TestFirstSampleSetsAverageToLast(t *testing.T) {
	p := New(nil)
	p.Begin("scope")()
	assert.Equal(t, p.Last("scope"), p.Average("scope"))
}

func TestAverageSmoothsAcrossSamples(t *testing.T) {
	p := New(nil)
	s := &Scope{Name: "scope"}
	p.scopes["scope"] = s
	p.order = append(p.order, "scope")

	s.start = time.Now().Add(-10 * time.Millisecond)
	p.end(s)
	assert.Equal(t, s.last, s.avg)

	s.start = time.Now().Add(-20 * time.Millisecond)
	p.end(s)
	// The moving average must land strictly between the two
	// samples, neither jumping straight to the new sample nor
	// staying pinned to the first one.
	assert.Greater(t, s.avg, 10*time.Millisecond)
	assert.Less(t, s.avg, 20*time.Millisecond)
}

func TestReportDoesNotPanicWithNoScopes(t *testing.T) {
	p := New(nil)
	assert.NotPanics(t, func() { p.Report() })
}
