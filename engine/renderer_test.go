// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"strings"
	"testing"

	"github.com/lumenforge/vkpt/wsi"
)

// checkInit checks whether r.init worked.
func (r *Renderer) checkInit(width, height int, t *testing.T) {
	if r.width != width || r.height != height {
		t.Fatalf("Renderer.init: width/height\nhave %d/%d\nwant %d/%d", r.width, r.height, width, height)
	}
	if r.prof == nil {
		t.Fatal("Renderer.init: prof should not be nil")
	}
	if r.pool == nil {
		t.Fatal("Renderer.init: pool should not be nil")
	}
	if r.scn == nil || r.tscn == nil {
		t.Fatal("Renderer.init: scn/tscn should not be nil")
	}
	if r.rt == nil {
		t.Fatal("Renderer.init: rt should not be nil")
	}
	r.rt.check(t)
	if r.rt.Width() != width || r.rt.Height() != height {
		t.Fatalf("Renderer.init: rt size\nhave %d/%d\nwant %d/%d", r.rt.Width(), r.rt.Height(), width, height)
	}
	if r.rt.Layers() != 1 {
		t.Fatal("Renderer.init: rt should have exactly 1 layer")
	}
	if r.rt.Levels() != 1 {
		t.Fatal("Renderer.init: rt should have exactly 1 level")
	}
	if len(r.curTexel) != width*height || len(r.scratchTexel) != width*height {
		t.Fatal("Renderer.init: curTexel/scratchTexel length should match width*height")
	}
	if len(r.reservoirs) != width*height || len(r.prevReservoir) != width*height {
		t.Fatal("Renderer.init: reservoirs/prevReservoir length should match width*height")
	}
	if len(r.pixels) != width*height*4 {
		t.Fatal("Renderer.init: pixels length should match width*height*4")
	}
	if cap(r.avail) != MaxFrame || len(r.avail) != MaxFrame {
		t.Fatal("Renderer.init: avail should start full with capacity MaxFrame")
	}
	for i, cb := range r.cb {
		if cb == nil {
			t.Fatalf("Renderer.init: cb[%d] should not be nil", i)
		}
		if cb.IsRecording() {
			t.Fatalf("Renderer.init: cb[%d] should not have begun", i)
		}
	}
	if r.denoiser == nil {
		t.Fatal("Renderer.init: denoiser should not be nil")
	}
	if r.grid == nil {
		t.Fatal("Renderer.init: grid should not be nil")
	}
	if r.rng == nil {
		t.Fatal("Renderer.init: rng should not be nil")
	}
}

// checkFree checks whether r.free worked.
func (r *Renderer) checkFree(t *testing.T) {
	for i, cb := range r.cb {
		if cb != nil {
			t.Fatalf("Renderer.free: cb[%d] should be nil", i)
		}
	}
	if r.avail != nil {
		t.Fatal("Renderer.free: avail should be nil")
	}
	if r.rt != nil {
		t.Fatal("Renderer.free: rt should be nil")
	}
	if r.pool != nil {
		t.Fatal("Renderer.free: pool should be nil")
	}
	if r.scn != nil || r.tscn != nil {
		t.Fatal("Renderer.free: scn/tscn should be nil")
	}
	if r.pixels != nil {
		t.Fatal("Renderer.free: pixels should be nil")
	}
}

// checkNew checks whether NewOnscreen worked.
func (r *Onscreen) checkNew(err error, win wsi.Window, t *testing.T) {
	if err != nil {
		if win == nil && strings.HasPrefix(err.Error(), rendPrefix) {
			return
		}
		t.Fatalf("NewOnscreen: unexpected error:\n%v", err)
	}
	if win != r.Window() {
		t.Fatal("Onscreen.Window: windows differ")
	}
	if r.sc == nil {
		t.Fatal("Onscreen: sc should not be nil")
	}
	r.checkInit(r.Window().Width(), r.Window().Height(), t)
}

// checkFree checks whether r.Free worked.
func (r *Onscreen) checkFree(t *testing.T) {
	if r.Window() != nil {
		t.Fatal("Onscreen.Window: window should be nil")
	}
	if r.sc != nil {
		t.Fatal("Onscreen: sc should be nil")
	}
	r.Renderer.checkFree(t)
}

// checkNew checks whether NewOffscreen worked.
func (r *Offscreen) checkNew(err error, width, height int, t *testing.T) {
	if err != nil {
		if (width < 1 || height < 1) && strings.HasPrefix(err.Error(), texPrefix) {
			return
		}
		t.Fatalf("NewOffscreen: unexpected error:\n%v", err)
	}
	rt := r.Target()
	if width != rt.Width() || height != rt.Height() {
		t.Fatal("Offscreen.Target: target size mismatch")
	}
	if rt.Layers() != 1 {
		t.Fatal("Offscreen.Target: target should have exactly 1 layer")
	}
	if rt.Levels() != 1 {
		t.Fatal("Offscreen.Target: target should have exactly 1 level")
	}
	r.checkInit(width, height, t)
}

// checkFree checks whether r.Free worked.
func (r *Offscreen) checkFree(t *testing.T) {
	if r.Target() != nil {
		t.Fatal("Offscreen.Target: target should be nil")
	}
	r.Renderer.checkFree(t)
}

func TestOnscreen(t *testing.T) {
	width := 480
	height := 270
	win, err := wsi.NewWindow(width, height, "TestOnscreen")
	if err != nil {
		t.Fatalf("Onscreen: wsi.NewWindow failed:\n%v", err)
	}
	defer win.Close()
	for range 2 {
		rend, err := NewOnscreen(win)
		rend.checkNew(err, win, t)
		rend.Free()
		rend.checkFree(t)
	}

	var nilWin wsi.Window
	rend, err := NewOnscreen(nilWin)
	rend.checkNew(err, nilWin, t)
}

func TestOffscreen(t *testing.T) {
	width := 800
	height := 600
	for range 2 {
		rend, err := NewOffscreen(width, height)
		rend.checkNew(err, width, height, t)
		rend.Free()
		rend.checkFree(t)
	}
	width2 := 256
	height2 := 256
	for range 2 {
		rend, err := NewOffscreen(width, height)
		rend2, err2 := NewOffscreen(width2, height2)
		rend.checkNew(err, width, height, t)
		rend2.checkNew(err2, width2, height2, t)
		rend.Free()
		rend2.Free()
		rend.checkFree(t)
		rend2.checkFree(t)
	}
	var widthZ, heightZ int
	rend, err := NewOffscreen(widthZ, heightZ)
	rend.checkNew(err, widthZ, heightZ, t)
}

func TestOnscreenOffscreen(t *testing.T) {
	width := [2]int{960, 600}
	height := [2]int{540, 360}
	for i := range 2 {
		ofw, ofh := width[i%2], height[i%2]
		onw, onh := width[(i+1)%2], height[(i+1)%2]
		win, err := wsi.NewWindow(onw, onh, "TestOnscreenOffscreen")
		if err != nil {
			t.Fatalf("OnscreenOffscreen: wsi.NewWindow failed:\n%v", err)
		}
		defer win.Close()
		ofs, ofe := NewOffscreen(ofw, ofh)
		ons, one := NewOnscreen(win)
		ofs.checkNew(ofe, ofw, ofh, t)
		ons.checkNew(one, win, t)
		ofs.Free()
		ons.Free()
		ofs.checkFree(t)
		ons.checkFree(t)
	}
}

func TestQuantize(t *testing.T) {
	cases := []struct {
		in   float32
		want byte
	}{
		{-1, 0},
		{0, 0},
		{1, 255},
		{2, 255},
	}
	for _, c := range cases {
		if got := quantize(c.in); got != c.want {
			t.Errorf("quantize(%v)\nhave %d\nwant %d", c.in, got, c.want)
		}
	}
}
