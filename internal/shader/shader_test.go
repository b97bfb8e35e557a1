// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package shader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenforge/vkpt/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCode struct{ destroyed bool }

func (f *fakeCode) Destroy() { f.destroyed = true }

type fakeGPU struct {
	driver.GPU
	fail bool
}

func (g *fakeGPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	if g.fail {
		return nil, errors.New("boom")
	}
	return &fakeCode{}, nil
}

type fakeCompiler struct {
	data []byte
	err  error
}

func (c *fakeCompiler) Compile(ctx context.Context, path string) ([]byte, error) {
	return c.data, c.err
}

func waitReady(t *testing.T, h *Handle) Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := h.Poll(); s != StatusPending {
			return s
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("handle never left pending state")
	return StatusPending
}

func TestGetAsyncSucceeds(t *testing.T) {
	pool := NewPool(context.Background(), &fakeGPU{}, &fakeCompiler{data: []byte{1, 2, 3, 4}}, 2)
	h := pool.GetAsync("shader.spv")
	require.Equal(t, StatusReady, waitReady(t, h))
	code, err := h.Result()
	require.NoError(t, err)
	assert.NotNil(t, code)
}

func TestGetAsyncCompileFailure(t *testing.T) {
	pool := NewPool(context.Background(), &fakeGPU{}, &fakeCompiler{err: errors.New("syntax error")}, 2)
	h := pool.GetAsync("broken.spv")
	require.Equal(t, StatusFailed, waitReady(t, h))
	_, err := h.Result()
	assert.Error(t, err)
}

func TestGetAsyncRegistrationFailure(t *testing.T) {
	pool := NewPool(context.Background(), &fakeGPU{fail: true}, &fakeCompiler{data: []byte{1, 2, 3, 4}}, 2)
	h := pool.GetAsync("shader.spv")
	require.Equal(t, StatusFailed, waitReady(t, h))
}

func TestPoolWaitBlocksUntilAllDone(t *testing.T) {
	pool := NewPool(context.Background(), &fakeGPU{}, &fakeCompiler{data: []byte{1, 2, 3, 4}}, 2)
	h1 := pool.GetAsync("a.spv")
	h2 := pool.GetAsync("b.spv")
	require.NoError(t, pool.Wait())
	assert.Equal(t, StatusReady, h1.Poll())
	assert.Equal(t, StatusReady, h2.Poll())
}
