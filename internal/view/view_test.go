// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package view

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestOctRoundTrip(t *testing.T) {
	dirs := []mgl32.Vec3{
		{0, 0, 1}, {0, 0, -1}, {1, 0, 0}, {-1, 0, 0},
		{0, 1, 0}, {0, -1, 0}, {1, 1, 1}, {-1, -1, -1},
		{0.3, 0.7, -0.2}, {0.99, 0.01, 0.05},
	}
	const maxAngErr = 1.0 / 1024 // 2^-10 radians

	for _, d := range dirs {
		n := d.Normalize()
		x, y := PackOctUnorm16(n)
		got := UnpackOctUnorm16(x, y)

		cos := n.Dot(got)
		if cos > 1 {
			cos = 1
		} else if cos < -1 {
			cos = -1
		}
		angle := float32(math.Acos(float64(cos)))
		assert.LessOrEqualf(t, angle, float32(maxAngErr),
			"angular error too large for %v: got %v, angle %v", n, got, angle)
	}
}

func TestFrameMoved(t *testing.T) {
	cam := Camera{
		Eye: mgl32.Vec3{0, 0, 5}, Center: mgl32.Vec3{0, 0, 0}, Up: mgl32.Vec3{0, 1, 0},
		VFOV: mgl32.DegToRad(60), Aspect: 16.0 / 9.0, Near: 0.1, Far: 100,
	}
	f0 := NewFrame(&cam, 0, 0, 1920, 1080)
	f1 := NewFrame(&cam, 1.0/60, 1, 1920, 1080)
	assert.False(t, f1.Moved(&f0), "identical camera state should not be flagged as moved")

	cam.Eye = mgl32.Vec3{1, 0, 5}
	f2 := NewFrame(&cam, 2.0/60, 2, 1920, 1080)
	assert.True(t, f2.Moved(&f1), "camera translation should be flagged as moved")
}
