// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package barrier

import (
	"testing"

	"github.com/lumenforge/vkpt/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeImage struct{ driver.Image }

type fakeBuffer struct{ id int }

func (*fakeBuffer) Destroy()            {}
func (*fakeBuffer) Visible() bool       { return true }
func (*fakeBuffer) Bytes() []byte       { return nil }
func (*fakeBuffer) Cap() int64          { return 0 }
func (*fakeBuffer) Usage() driver.Usage { return driver.UGeneric }

type fakeCmdBuffer struct {
	driver.CmdBuffer
	transitions [][]driver.Transition
	barriers    [][]driver.Barrier
}

func (f *fakeCmdBuffer) Transition(t []driver.Transition) {
	cp := make([]driver.Transition, len(t))
	copy(cp, t)
	f.transitions = append(f.transitions, cp)
}

func (f *fakeCmdBuffer) Barrier(b []driver.Barrier) {
	cp := make([]driver.Barrier, len(b))
	copy(cp, b)
	f.barriers = append(f.barriers, cp)
}

func TestBarrierSkippedWhenStateUnchanged(t *testing.T) {
	s := NewScheduler()
	buf := &fakeBuffer{id: 1}
	r := Range{Buffer: buf}

	st := State{Stage: driver.SComputeShading, Access: driver.AShaderRead}
	s.UpdateState(r, st)

	cb := &fakeCmdBuffer{}
	s.Barrier(r, st)
	s.Flush(cb)

	assert.Empty(t, cb.barriers, "no barrier should be emitted when state is unchanged and read-only")
}

func TestBarrierEmittedOnWriteEvenIfStateIdentical(t *testing.T) {
	s := NewScheduler()
	buf := &fakeBuffer{id: 1}
	r := Range{Buffer: buf}

	st := State{Stage: driver.SComputeShading, Access: driver.AShaderWrite}
	s.UpdateState(r, st)

	cb := &fakeCmdBuffer{}
	s.Barrier(r, st)
	s.Flush(cb)

	require.Len(t, cb.barriers, 1)
	assert.Len(t, cb.barriers[0], 1, "a write access always requires a barrier even without a state change")
}

func TestBarrierCoalescesMultipleRequestsIntoOneEmission(t *testing.T) {
	s := NewScheduler()
	buf1 := &fakeBuffer{id: 1}
	buf2 := &fakeBuffer{id: 2}

	s.UpdateState(Range{Buffer: buf1}, State{Access: driver.AShaderRead})
	s.UpdateState(Range{Buffer: buf2}, State{Access: driver.AShaderRead})

	cb := &fakeCmdBuffer{}
	s.Barrier(Range{Buffer: buf1}, State{Access: driver.AShaderWrite})
	s.Barrier(Range{Buffer: buf2}, State{Access: driver.AShaderWrite})
	s.Flush(cb)

	require.Len(t, cb.barriers, 1, "Flush must coalesce all queued barriers into a single CmdBuffer.Barrier call")
	assert.Len(t, cb.barriers[0], 2)
}

func TestUntrackedImageWithNonUndefinedLayoutPanics(t *testing.T) {
	s := NewScheduler()
	img := fakeImage{}
	r := Range{Image: img, Layers: 1, Levels: 1}

	assert.Panics(t, func() {
		s.Barrier(r, State{Layout: driver.LShaderRead})
	}, "requesting a defined layout for an untracked image is a layout violation")
}
