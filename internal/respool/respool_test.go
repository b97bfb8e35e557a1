// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package respool

import (
	"testing"

	"github.com/lumenforge/vkpt/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuffer struct {
	data      []byte
	cap       int64
	usg       driver.Usage
	destroyed bool
}

func (b *fakeBuffer) Destroy()            { b.destroyed = true }
func (b *fakeBuffer) Visible() bool       { return true }
func (b *fakeBuffer) Bytes() []byte       { return b.data }
func (b *fakeBuffer) Cap() int64          { return b.cap }
func (b *fakeBuffer) Usage() driver.Usage { return b.usg }

type fakeImage struct {
	driver.Image
	destroyed bool
	pf        driver.PixelFmt
	extent    driver.Dim3D
}

func (i *fakeImage) Destroy()               { i.destroyed = true }
func (i *fakeImage) Format() driver.PixelFmt { return i.pf }
func (i *fakeImage) Extent() driver.Dim3D    { return i.extent }
func (i *fakeImage) Layers() int             { return 1 }
func (i *fakeImage) Levels() int             { return 1 }
func (i *fakeImage) Usage() driver.Usage     { return 0 }

type fakeGPU struct {
	driver.GPU
	frame   uint64
	buffers []*fakeBuffer
	images  []*fakeImage
}

func (g *fakeGPU) FrameIndex() uint64 { return g.frame }

func (g *fakeGPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	b := &fakeBuffer{data: make([]byte, size), cap: size, usg: usg}
	g.buffers = append(g.buffers, b)
	return b, nil
}

func (g *fakeGPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	img := &fakeImage{pf: pf, extent: size}
	g.images = append(g.images, img)
	return img, nil
}

func TestGetBufferReusesSameSlotWithinFrame(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 2)
	b1, err := p.GetBuffer("scratch", 1024, driver.UShaderRead)
	require.NoError(t, err)
	b2, err := p.GetBuffer("scratch", 1024, driver.UShaderRead)
	require.NoError(t, err)
	assert.Same(t, b1, b2)
}

func TestGetBufferAllocatesSeparateSlotsAcrossFrames(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 2)
	b0, err := p.GetBuffer("accum", 1024, driver.UShaderRead)
	require.NoError(t, err)
	gpu.frame = 1
	b1, err := p.GetBuffer("accum", 1024, driver.UShaderRead)
	require.NoError(t, err)
	assert.NotSame(t, b0, b1, "frame 0 and frame 1 must use distinct slots when slotCount=2")
}

func TestCleanDestroysSlotsAgedPastSlotCount(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 2)
	b0, err := p.GetBuffer("history", 1024, driver.UShaderRead)
	require.NoError(t, err)
	fb0 := b0.(*fakeBuffer)

	gpu.frame = 2
	p.Clean()
	assert.True(t, fb0.destroyed, "slot last used at frame 0 must be destroyed once frame-2-0 >= slotCount")
}

func TestCleanKeepsRecentlyUsedSlots(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 2)
	b0, err := p.GetBuffer("history", 1024, driver.UShaderRead)
	require.NoError(t, err)
	fb0 := b0.(*fakeBuffer)

	gpu.frame = 1
	p.Clean()
	assert.False(t, fb0.destroyed, "slot last used one frame ago must survive when slotCount=2")
}

func TestGetLastBufferReturnsMostRecentSlot(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 2)
	_, err := p.GetBuffer("reservoir", 512, driver.UShaderRead)
	require.NoError(t, err)
	gpu.frame = 1
	b1, err := p.GetBuffer("reservoir", 512, driver.UShaderRead)
	require.NoError(t, err)

	last := p.GetLastBuffer("reservoir", 512, driver.UShaderRead)
	assert.Same(t, b1, last)
}

func TestUploadDataCopiesBytesIntoBuffer(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 2)
	values := []float32{1, 2, 3, 4}
	buf, err := UploadData(p, "lights", driver.UShaderRead, values)
	require.NoError(t, err)
	assert.Equal(t, int64(16), buf.Cap())
}

func TestClearDestroysAllSlots(t *testing.T) {
	gpu := &fakeGPU{}
	p := New(gpu, 2)
	b0, err := p.GetBuffer("tmp", 128, driver.UShaderRead)
	require.NoError(t, err)
	fb0 := b0.(*fakeBuffer)
	p.Clear()
	assert.True(t, fb0.destroyed)
}
