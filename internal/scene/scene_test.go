// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"testing"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenforge/vkpt/driver"
	"github.com/lumenforge/vkpt/internal/respool"
)

type fakeBuffer struct {
	data []byte
	cap  int64
	usg  driver.Usage
}

func (b *fakeBuffer) Destroy()            {}
func (b *fakeBuffer) Visible() bool       { return true }
func (b *fakeBuffer) Bytes() []byte       { return b.data }
func (b *fakeBuffer) Cap() int64          { return b.cap }
func (b *fakeBuffer) Usage() driver.Usage { return b.usg }

type fakeGPU struct {
	driver.GPU
	frame uint64
}

func (g *fakeGPU) FrameIndex() uint64 { return g.frame }

func (g *fakeGPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	return &fakeBuffer{data: make([]byte, size), cap: size, usg: usg}, nil
}

func triangleInstance() Instance {
	return Instance{
		Transform:     mgl32.Ident4(),
		PrevTransform: mgl32.Ident4(),
		MaterialIndex: 0,
		ID:            1,
		Vertices: []Vertex{
			{Position: mgl32.Vec3{0, 0, 0}, GeometryNormal: mgl32.Vec3{0, 1, 0}, ShadingNormal: mgl32.Vec3{0, 1, 0}},
			{Position: mgl32.Vec3{1, 0, 0}, GeometryNormal: mgl32.Vec3{0, 1, 0}, ShadingNormal: mgl32.Vec3{0, 1, 0}},
			{Position: mgl32.Vec3{0, 1, 0}, GeometryNormal: mgl32.Vec3{0, 1, 0}, ShadingNormal: mgl32.Vec3{0, 1, 0}},
		},
	}
}

func TestBuildUploadsInstanceVertexMaterialAndLightTables(t *testing.T) {
	s := &Scene{
		Instances: []Instance{triangleInstance()},
		Materials: []Material{{BaseColor: mgl32.Vec3{0.8, 0.2, 0.2}, Roughness: 0.5, Eta: 1.5}},
		Dirty:     true,
	}
	s.AddSphereLight(mgl32.Vec3{0, 5, 0}, 0.5, mgl32.Vec3{10, 10, 10})

	pool := respool.New(&fakeGPU{}, 2)
	data, err := s.Build(pool)
	require.NoError(t, err)

	assert.Equal(t, 3, data.VertexCount)
	assert.Equal(t, 1, data.InstanceCount)
	assert.Equal(t, 1, data.LightCount)
	assert.False(t, s.Dirty, "Build must clear the dirty flag")

	var instRec InstanceLayout
	instBytes := data.Instances.Bytes()[:unsafe.Sizeof(instRec)]
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&instRec)), unsafe.Sizeof(instRec)), instBytes)
	assert.Equal(t, uint32(1), *(*uint32)(unsafe.Pointer(&instRec[51])), "InstanceLayout.ID must round-trip")
}

func TestTriangleAreaSumsToOneHalfForUnitRightTriangle(t *testing.T) {
	inst := triangleInstance()
	area := inst.triangleArea(0)
	assert.InDelta(t, 0.5, area, 1e-6)
}

func TestPackInstanceVerticesDistributesAreaAcrossVertices(t *testing.T) {
	s := &Scene{}
	inst := triangleInstance()
	records := s.packInstanceVertices(&inst)
	require.Len(t, records, 3)
	var total float32
	for _, r := range records {
		total += r[3]
	}
	assert.InDelta(t, 0.5, total, 1e-6, "sum of per-vertex shapeArea thirds must recover the triangle's area")
}

func TestLightTableSampleIsPowerWeighted(t *testing.T) {
	table := LightTable{Lights: []Light{
		{Kind: LightSphere, Emission: mgl32.Vec3{1, 1, 1}, Area: 1},
		{Kind: LightSphere, Emission: mgl32.Vec3{1, 1, 1}, Area: 9},
	}}
	table.Build()

	idxLow, _, ok := table.Sample(0)
	require.True(t, ok)
	assert.Equal(t, 0, idxLow)

	idxHigh, pdfHigh, ok := table.Sample(0.99)
	require.True(t, ok)
	assert.Equal(t, 1, idxHigh)
	assert.InDelta(t, 0.9, pdfHigh, 1e-6)
}

func TestLightTableSampleEmptyIsNotOK(t *testing.T) {
	var table LightTable
	table.Build()
	_, _, ok := table.Sample(0.5)
	assert.False(t, ok)
}

func TestMaterialLayoutQuantizationRoundTrips(t *testing.T) {
	var l MaterialLayout
	l.SetBaseColor(mgl32.Vec3{0.5, 0.25, 0.75})
	got := l.BaseColor()
	assert.InDelta(t, 0.5, got[0], 1.0/255)
	assert.InDelta(t, 0.25, got[1], 1.0/255)
	assert.InDelta(t, 0.75, got[2], 1.0/255)
}
