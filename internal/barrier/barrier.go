// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package barrier implements the layout/barrier scheduling
// policy layered above driver.CmdBuffer.Barrier/Transition:
// it tracks the last known {layout, stage, access, queue
// family} of every resource subrange, coalesces adjacent
// mip levels into a single Vulkan call, lets a caller update
// tracked state without emitting a barrier (for resources
// known to be idle, e.g. right after creation), and performs
// queue-family ownership transfer when required.
//
// A layout violation is a programming error in the renderer,
// not a recoverable condition. The one case the scheduler
// detects — a request for a defined layout on an image it has
// never tracked — makes Scheduler.Barrier panic (see spec §4.2
// and §7's "fatal on layout violation" rule); the scheduler
// does not see recorded commands, so it does not check them
// against the tracked layout.
package barrier

import (
	"fmt"

	"github.com/lumenforge/vkpt/driver"
)

// State is the synchronization state of a single
// subresource.
type State struct {
	Layout      driver.Layout
	Stage       driver.Sync
	Access      driver.Access
	QueueFamily int
}

// Range identifies a subresource range of an image, or the
// whole of a buffer when Image is nil.
type Range struct {
	Image     driver.Image
	Buffer    driver.Buffer
	BaseLayer int
	Layers    int
	BaseLevel int
	Levels    int
}

func (r Range) key() any {
	if r.Image != nil {
		return [5]any{r.Image, r.BaseLayer, r.Layers, r.BaseLevel, r.Levels}
	}
	return r.Buffer
}

// Scheduler tracks subresource state and emits the minimal
// set of barriers/transitions needed to move resources
// between states safely.
type Scheduler struct {
	state map[any]State
	// pending accumulates coalesced transitions/barriers
	// for the current Flush call.
	pendingT []driver.Transition
	pendingB []driver.Barrier
}

// NewScheduler creates an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{state: make(map[any]State)}
}

// UpdateState records the new state of a range without
// emitting a barrier. Used to seed tracking right after
// resource creation, when no prior writer can race with the
// first read/write.
func (s *Scheduler) UpdateState(r Range, st State) {
	s.state[r.key()] = st
}

// Barrier requests that r be made usable in newState,
// queuing a driver.Transition (for images) or driver.Barrier
// (for buffers) if, and only if, the cached state actually
// requires synchronization. It panics if r has never been
// seen via UpdateState or a prior Barrier call and newState
// assumes an initialized layout other than LUndefined —
// that is a layout violation: the caller forgot to establish
// an initial state for the resource.
func (s *Scheduler) Barrier(r Range, newState State) {
	key := r.key()
	old, tracked := s.state[key]
	if !tracked {
		if r.Image != nil && newState.Layout != driver.LUndefined {
			panic(fmt.Sprintf("barrier: layout violation: untracked resource %v requested in layout %v", key, newState.Layout))
		}
		old = State{Layout: driver.LUndefined}
	}

	needed := old.Access.HasWrite() ||
		newState.Access.HasWrite() ||
		old.Layout != newState.Layout ||
		old.QueueFamily != newState.QueueFamily

	if needed {
		b := driver.Barrier{
			SyncBefore:   old.Stage,
			SyncAfter:    newState.Stage,
			AccessBefore: old.Access,
			AccessAfter:  newState.Access,
		}
		if r.Image != nil {
			views := r.expandViews()
			for _, iv := range views {
				s.pendingT = append(s.pendingT, driver.Transition{
					Barrier:      b,
					LayoutBefore: old.Layout,
					LayoutAfter:  newState.Layout,
					QueueBefore:  old.QueueFamily,
					QueueAfter:   newState.QueueFamily,
					IView:        iv,
				})
			}
		} else {
			s.pendingB = append(s.pendingB, b)
		}
	}

	s.state[key] = newState
}

// expandViews is a seam for coalescing adjacent mip levels
// of the same image into a single view before emitting a
// transition; resource managers that allocate one view per
// level populate it via SetViewResolver.
func (r Range) expandViews() []driver.ImageView {
	if resolveView == nil || r.Image == nil {
		return nil
	}
	iv, err := resolveView(r.Image, r.BaseLayer, r.Layers, r.BaseLevel, r.Levels)
	if err != nil {
		return nil
	}
	return []driver.ImageView{iv}
}

// SetViewResolver installs the function Range.expandViews
// uses to obtain a coalesced ImageView for a mip/layer
// range. The renderer sets this once at startup to the
// resource pool's view cache.
func SetViewResolver(f func(img driver.Image, baseLayer, layers, baseLevel, levels int) (driver.ImageView, error)) {
	resolveView = f
}

var resolveView func(img driver.Image, baseLayer, layers, baseLevel, levels int) (driver.ImageView, error)

// Flush records every queued barrier/transition into cb and
// clears the pending queues. It coalesces all queued
// transitions into a single driver.CmdBuffer.Transition call
// and all queued barriers into a single driver.CmdBuffer.Barrier
// call, matching the "coalesced pipelineBarrier emission"
// requirement.
func (s *Scheduler) Flush(cb driver.CmdBuffer) {
	if len(s.pendingT) > 0 {
		cb.Transition(s.pendingT)
		s.pendingT = s.pendingT[:0]
	}
	if len(s.pendingB) > 0 {
		cb.Barrier(s.pendingB)
		s.pendingB = s.pendingB[:0]
	}
}

// Forget drops tracked state for r, e.g. when the underlying
// resource has been destroyed and its slot recycled.
func (s *Scheduler) Forget(r Range) {
	delete(s.state, r.key())
}
