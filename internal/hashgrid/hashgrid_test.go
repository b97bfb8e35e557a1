// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package hashgrid

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExactlyOneCellContainsInvariant(t *testing.T) {
	g := NewGrid(64)
	g.Insert([3]int32{1, 2, 3}, 10)
	g.Insert([3]int32{4, 5, 6}, 11)
	g.Build()

	cell, found, count := g.ExactlyOneCellContains(10)
	require.True(t, found)
	assert.Equal(t, 1, count)
	assert.Equal(t, [3]int32{1, 2, 3}, cell)
}

func TestQueryFindsInsertedValue(t *testing.T) {
	g := NewGrid(32)
	cellSize := float32(0.5)
	pos := mgl32.Vec3{1.2, 3.4, -0.1}
	cell := CellOf(pos, cellSize)
	g.Insert(cell, 7)
	g.Build()

	var found bool
	g.Query(cell, func(value uint32, storedCell [3]int32) {
		if value == 7 && storedCell == cell {
			found = true
		}
	})
	assert.True(t, found, "query on the insertion cell must find the stored value")
}

func TestDistanceScaleMatchesAdaptiveFormula(t *testing.T) {
	p := Params{CellPixelRadius: 2, VFOV: mgl32.DegToRad(60), Width: 1920, Height: 1080}
	ds := DistanceScale(p)
	assert.Greater(t, ds, float32(0))
	// widening the vertical FOV increases the adaptive cell scale
	p2 := p
	p2.VFOV = mgl32.DegToRad(90)
	assert.Greater(t, DistanceScale(p2), ds)
}

func TestBuildResetClearsEntries(t *testing.T) {
	g := NewGrid(8)
	g.Insert([3]int32{0, 0, 0}, 1)
	g.Build()
	g.Reset()
	_, found, _ := g.ExactlyOneCellContains(1)
	assert.False(t, found)
}
