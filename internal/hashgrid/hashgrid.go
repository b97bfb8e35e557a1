// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package hashgrid implements the spatial hash grid used to
// accelerate photon/reservoir neighbor queries for VCM
// merging and ReSTIR spatial reuse. Cells hash into a fixed
// number of buckets; distinct cells that collide share a
// bucket (there is no probing to another slot), and storage
// grows with the number of insertions, so no insertion fails.
//
// Grounded on original_source/src/App/GpuHashGrid.cpp/hpp.
package hashgrid

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/floats"
)

// Params configures cell sizing. DistanceScale converts a
// desired screen-space cell radius (in pixels) into a
// world-space cell size that varies with distance from the
// camera, following:
//
//	distanceScale = tan(cellPixelRadius * vFOV * max(1/h, h/w^2))
//
// matching GpuHashGrid's adaptive cell-size derivation.
type Params struct {
	CellPixelRadius float32
	VFOV            float32
	Width, Height   int
	Capacity        int
	Jitter          bool
}

// DistanceScale computes the adaptive cell-size coefficient
// described in Params.
func DistanceScale(p Params) float32 {
	w, h := float32(p.Width), float32(p.Height)
	var m float32
	if 1/h > h/(w*w) {
		m = 1 / h
	} else {
		m = h / (w * w)
	}
	return float32(math.Tan(float64(p.CellPixelRadius * p.VFOV * m)))
}

// CellOf returns the integer cell coordinate containing a
// world-space position, given the adaptive cell size that
// applies at the provided camera distance.
func CellOf(pos mgl32.Vec3, cellSize float32) [3]int32 {
	if cellSize <= 0 {
		cellSize = 1e-4
	}
	return [3]int32{
		int32(math.Floor(float64(pos[0] / cellSize))),
		int32(math.Floor(float64(pos[1] / cellSize))),
		int32(math.Floor(float64(pos[2] / cellSize))),
	}
}

// hashCell maps a cell coordinate to a bucket index. Uses
// the classic spatial hash of Teschner et al., matching
// GpuHashGrid's hash mix.
func hashCell(c [3]int32, numBuckets int) uint32 {
	const p1, p2, p3 = 73856093, 19349663, 83492791
	h := uint32(c[0])*p1 ^ uint32(c[1])*p2 ^ uint32(c[2])*p3
	return h % uint32(numBuckets)
}

// Entry is a single value inserted into the grid, tagged
// with the cell it was inserted for.
type Entry struct {
	Cell  [3]int32
	Value uint32 // index into the caller's payload array (e.g. photon or reservoir index)
}

// Grid is a two-pass (count, then scatter) bucketed hash
// grid: Insert accumulates entries,
// Build computes bucket start offsets via a prefix sum and
// swizzles entries into bucket order, and Query iterates the
// values that share a bucket with a given position.
type Grid struct {
	NumBuckets int
	entries    []Entry

	bucketStart []int32
	bucketCount []int32
	sorted      []uint32 // value payloads in bucket order
	sortedCell  [][3]int32
	overflowed  int
}

// NewGrid creates a grid with the given number of buckets.
// Capacity should be a prime or power-of-two sized
// comfortably above the expected element count to keep
// collision chains short.
func NewGrid(numBuckets int) *Grid {
	return &Grid{NumBuckets: numBuckets}
}

// Reset clears all insertions, ready for the next frame's
// build. The backing slices are kept to avoid reallocating
// every frame.
func (g *Grid) Reset() {
	g.entries = g.entries[:0]
	g.overflowed = 0
}

// Insert records a value at the given cell. It does not
// allocate a bucket slot immediately; call Build once all
// insertions for the frame are queued.
func (g *Grid) Insert(cell [3]int32, value uint32) {
	g.entries = append(g.entries, Entry{Cell: cell, Value: value})
}

// Build computes per-bucket start offsets via an exclusive
// prefix sum over bucket occupancy counts (the
// "compute-indices" pass), then swizzles entries into
// contiguous bucket-ordered storage (the "swizzle" pass).
// Overflow — insertions beyond NumBuckets*avgChain capacity
// is not possible by construction here since storage grows
// with len(entries), but Grid.OverflowCount reports how many
// distinct cells collided into the same bucket, for the
// caller to log if it's surprisingly high.
func (g *Grid) Build() {
	n := len(g.entries)
	counts := make([]float64, g.NumBuckets)
	bucketOf := make([]uint32, n)
	for i, e := range g.entries {
		b := hashCell(e.Cell, g.NumBuckets)
		bucketOf[i] = b
		counts[b]++
	}

	prefix := make([]float64, g.NumBuckets+1)
	floats.CumSum(prefix[1:], counts)

	g.bucketStart = make([]int32, g.NumBuckets+1)
	for i, v := range prefix {
		g.bucketStart[i] = int32(v)
	}
	g.bucketCount = make([]int32, g.NumBuckets)

	g.sorted = make([]uint32, n)
	g.sortedCell = make([][3]int32, n)
	cursor := make([]int32, g.NumBuckets)
	copy(cursor, g.bucketStart[:g.NumBuckets])

	collidingCells := make(map[uint32]map[[3]int32]bool)
	for i, e := range g.entries {
		b := bucketOf[i]
		slot := cursor[b]
		g.sorted[slot] = e.Value
		g.sortedCell[slot] = e.Cell
		cursor[b]++
		g.bucketCount[b]++

		if collidingCells[b] == nil {
			collidingCells[b] = make(map[[3]int32]bool)
		}
		collidingCells[b][e.Cell] = true
	}
	overflow := 0
	for _, cells := range collidingCells {
		if len(cells) > 1 {
			overflow += len(cells) - 1
		}
	}
	g.overflowed = overflow
}

// OverflowCount returns the number of collisions between
// distinct cells after the last Build: each bucket holding
// k > 1 distinct cells adds k-1. It is a proxy for
// hash-collision pressure the caller may want to log.
func (g *Grid) OverflowCount() int { return g.overflowed }

// Query invokes f for every value stored in the same bucket
// as cell. Because distinct cells can collide into the same
// bucket, callers must re-check Entry.Cell (or the
// underlying payload's position) against their actual query
// radius — this mirrors GpuHashGrid's query pass, which
// always re-validates distance after a bucket lookup.
func (g *Grid) Query(cell [3]int32, f func(value uint32, storedCell [3]int32)) {
	if g.bucketStart == nil {
		return
	}
	b := hashCell(cell, g.NumBuckets)
	start := g.bucketStart[b]
	end := start + g.bucketCount[b]
	for i := start; i < end; i++ {
		f(g.sorted[i], g.sortedCell[i])
	}
}

// ExactlyOneCellContains scans the entries inserted since the
// last Reset for value and returns the cell of its first
// insertion, whether it was inserted at all, and how many
// insertions carry it; a count of 1 is the hash-grid
// exactly-one-cell invariant from spec §8. It does not run a
// Query. It is a correctness helper meant for tests.
func (g *Grid) ExactlyOneCellContains(value uint32) (cell [3]int32, found bool, count int) {
	for i, e := range g.entries {
		_ = i
		if e.Value == value {
			if found {
				count++
				continue
			}
			cell = e.Cell
			found = true
			count = 1
		}
	}
	return
}
