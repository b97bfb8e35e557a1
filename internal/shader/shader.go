// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package shader implements a non-blocking handle over an
// external shader-compile step, and a filesystem watch that
// triggers recompilation when shader source changes. The
// compilation itself (parsing/compiling kernel source to
// SPIR-V) is out of scope; this package only models the
// asynchronous handle the renderer polls, matching spec
// §5's concurrency note, and hands the compiled binary to
// driver.GPU.NewShaderCode once ready.
//
// Grounded on the original's Core/Shader.cpp (described, not
// ported, since compilation internals are out of scope) and
// driver/vk/shader.go's NewShaderCode entry point.
package shader

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/lumenforge/vkpt/driver"
	"golang.org/x/sync/errgroup"
)

// Compiler is implemented by whatever turns kernel source
// into a SPIR-V (or equivalent) binary. The renderer supplies
// a concrete Compiler; this package never compiles anything
// itself.
type Compiler interface {
	Compile(ctx context.Context, path string) ([]byte, error)
}

// Status is the state of a Handle.
type Status int

// Handle states.
const (
	StatusPending Status = iota
	StatusReady
	StatusFailed
)

// Handle is a poll-only handle to a background shader
// compile. The renderer calls Poll once per frame; while not
// StatusReady, the caller should skip dispatching the
// pipeline that needs this shader and clear its output
// instead of stalling the frame loop waiting on it.
type Handle struct {
	status Status
	code   driver.ShaderCode
	err    error
	done   chan struct{}
}

// Poll reports the handle's current status. If the
// underlying goroutine has finished, it is safe to call Poll
// repeatedly; the terminal state remains cached.
func (h *Handle) Poll() Status {
	select {
	case <-h.done:
	default:
	}
	return h.status
}

// Result returns the compiled ShaderCode and any error, once
// Poll reports StatusReady or StatusFailed. Calling it while
// still StatusPending returns (nil, nil).
func (h *Handle) Result() (driver.ShaderCode, error) {
	return h.code, h.err
}

// Pool manages a bounded set of background compile
// goroutines, so a scene with many shader variants does not
// spawn unbounded concurrent compiles.
type Pool struct {
	gpu      driver.GPU
	compiler Compiler
	group    *errgroup.Group
	ctx      context.Context
}

// NewPool creates a Pool bounded to maxConcurrent in-flight
// compiles.
func NewPool(ctx context.Context, gpu driver.GPU, compiler Compiler, maxConcurrent int) *Pool {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	return &Pool{gpu: gpu, compiler: compiler, group: g, ctx: gctx}
}

// GetAsync begins compiling the kernel at path and returns a
// Handle the caller polls. While maxConcurrent compiles are in
// flight it blocks until one of them finishes.
func (p *Pool) GetAsync(path string) *Handle {
	h := &Handle{status: StatusPending, done: make(chan struct{})}
	p.group.Go(func() error {
		defer close(h.done)
		data, err := p.compiler.Compile(p.ctx, path)
		if err != nil {
			h.err = fmt.Errorf("shader: compiling %s: %w", path, err)
			h.status = StatusFailed
			log.Error("shader compile failed", "path", path, "err", err)
			return nil // failures are local to the handle, not fatal to the pool
		}
		code, err := p.gpu.NewShaderCode(data)
		if err != nil {
			h.err = fmt.Errorf("shader: registering %s: %w", path, err)
			h.status = StatusFailed
			log.Error("shader code registration failed", "path", path, "err", err)
			return nil
		}
		h.code = code
		h.status = StatusReady
		return nil
	})
	return h
}

// Wait blocks until every in-flight compile started via
// GetAsync has finished. Used at startup to avoid rendering
// the first frames with every pipeline missing.
func (p *Pool) Wait() error {
	return p.group.Wait()
}

// Watcher triggers a callback when a shader kernel file
// directly in the watched directory changes on disk
// (subdirectories are not watched), so the renderer can re-issue
// GetAsync for the affected pipeline (hot reload).
type Watcher struct {
	fsw *fsnotify.Watcher
}

// NewWatcher creates a Watcher rooted at dir.
func NewWatcher(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("shader: creating watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("shader: watching %s: %w", dir, err)
	}
	return &Watcher{fsw: fsw}, nil
}

// Run dispatches onChange for every write/create event until
// ctx is canceled, then closes the underlying watcher.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				onChange(ev.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn("shader watch error", "err", err)
		}
	}
}
