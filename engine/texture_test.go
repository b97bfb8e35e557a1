// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"strings"
	"testing"

	"github.com/lumenforge/vkpt/driver"
	"github.com/lumenforge/vkpt/engine/internal/ctxt"
)

// check checks that tex is valid.
func (tex *Texture) check(t *testing.T) {
	if len(tex.views) < 1 {
		t.Fatal("Texture.views: unexpected len < 1")
	}
	img := tex.views[0].Image()
	for i := 1; i < len(tex.views); i++ {
		// Should be comparable in any case.
		if x := tex.views[i].Image(); x != img {
			t.Fatalf("Texture.views[%d].Image: differs from [0]\nhave %v\nwant %v", i, x, img)
		}
	}
	usg := ^(driver.UCopySrc | driver.UCopyDst | driver.UShaderRead | driver.UShaderWrite | driver.UShaderSample)
	if tex.usage == 0 || tex.usage&usg != 0 {
		t.Fatalf("Texture.usage: unexpected flag(s) set:\n0x%x", tex.usage&usg)
	}
	if len(tex.layouts) != len(tex.views) {
		t.Fatal("Texture.layouts: length must match Texture.views")
	}
}

func Test2D(t *testing.T) {
	tex, err := New2D(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 1024, Height: 1024},
		Layers:   1,
		Levels:   1,
	})
	if err != nil {
		t.Fatalf("New2D: unexpected error:\n%#v", err)
	}
	tex.check(t)
	tex.Free()

	// An arrayed 2D texture gets one view per layer plus a
	// view of the whole array.
	tex, err = New2D(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 256, Height: 256},
		Layers:   4,
		Levels:   1,
	})
	if err != nil {
		t.Fatalf("New2D: unexpected error:\n%#v", err)
	}
	tex.check(t)
	if n := len(tex.views); n != 5 {
		t.Fatalf("New2D: len(views)\nhave %d\nwant 5", n)
	}
	tex.Free()

	// param must not be nil.
	if _, err = New2D(nil); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("New2D: unexpected error:\n%#v", err)
	}

	// Depth must be 0.
	if _, err = New2D(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 1024, Height: 1024, Depth: 1},
		Layers:   1,
		Levels:   1,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("New2D: unexpected error:\n%#v", err)
	}

	// Layers must be greater than 0.
	if _, err = New2D(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 1024, Height: 1024},
		Layers:   0,
		Levels:   1,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("New2D: unexpected error:\n%#v", err)
	}

	// Levels must be valid.
	if _, err = New2D(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 1024, Height: 1024},
		Layers:   1,
		Levels:   0,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("New2D: unexpected error:\n%#v", err)
	}

	// Size must not exceed the driver's limits.
	limits := ctxt.Limits()
	if _, err = New2D(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 1 + limits.MaxImage2D, Height: 1024},
		Layers:   1,
		Levels:   1,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("New2D: unexpected error:\n%#v", err)
	}
	if _, err = New2D(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 1024, Height: 1024},
		Layers:   1 + limits.MaxLayers,
		Levels:   1,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("New2D: unexpected error:\n%#v", err)
	}
}

func TestCube(t *testing.T) {
	tex, err := NewCube(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 512, Height: 512},
		Layers:   6,
		Levels:   1,
	})
	if err != nil {
		t.Fatalf("NewCube: unexpected error:\n%#v", err)
	}
	tex.check(t)
	if n := len(tex.views); n != 1 {
		t.Fatalf("NewCube: len(views)\nhave %d\nwant 1", n)
	}
	tex.Free()

	// Width and height must match.
	if _, err = NewCube(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 512, Height: 256},
		Layers:   6,
		Levels:   1,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("NewCube: unexpected error:\n%#v", err)
	}

	// Layers must be exactly 6: cube arrays are not supported.
	for _, n := range [...]int{1, 5, 12} {
		if _, err = NewCube(&TexParam{
			PixelFmt: driver.RGBA8un,
			Dim3D:    driver.Dim3D{Width: 512, Height: 512},
			Layers:   n,
			Levels:   1,
		}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
			t.Fatalf("NewCube(Layers: %d): unexpected error:\n%#v", n, err)
		}
	}
}

func TestTarget(t *testing.T) {
	tex, err := NewTarget(&TexParam{
		PixelFmt: driver.RGBA16f,
		Dim3D:    driver.Dim3D{Width: 1920, Height: 1080},
		Layers:   1,
		Levels:   1,
	})
	if err != nil {
		t.Fatalf("NewTarget: unexpected error:\n%#v", err)
	}
	tex.check(t)
	if tex.usage&(driver.UShaderRead|driver.UShaderWrite) == 0 {
		t.Fatal("NewTarget: render targets must be readable/writable by compute shaders")
	}
	tex.Free()

	limits := ctxt.Limits()
	if _, err = NewTarget(&TexParam{
		PixelFmt: driver.RGBA16f,
		Dim3D:    driver.Dim3D{Width: 1 + limits.MaxImage2D, Height: 1080},
		Layers:   1,
		Levels:   1,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("NewTarget: unexpected error:\n%#v", err)
	}
}

func TestSampler(t *testing.T) {
	s, err := NewSampler(&SplrParam{
		Min:    driver.FNearest,
		Mag:    driver.FNearest,
		Mipmap: driver.FNoMipmap,
		AddrU:  driver.AWrap,
		AddrV:  driver.AWrap,
		AddrW:  driver.AWrap,
		MinLOD: 0,
		MaxLOD: 0.25,
	})
	if err != nil {
		t.Fatalf("NewSampler: unexpected error:\n%#v", err)
	}
	s.Free()

	// param must not be nil.
	if _, err = NewSampler(nil); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("NewSampler: unexpected error:\n%#v", err)
	}

	// MinLOD must be greater than or equal to 0.0.
	if _, err = NewSampler(&SplrParam{
		Min: driver.FNearest, Mag: driver.FNearest, Mipmap: driver.FNoMipmap,
		AddrU: driver.AWrap, AddrV: driver.AWrap, AddrW: driver.AWrap,
		MinLOD: -1, MaxLOD: 0.25,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("NewSampler: unexpected error:\n%#v", err)
	}

	// MaxLOD must be greater than or equal to 0.0.
	if _, err = NewSampler(&SplrParam{
		Min: driver.FNearest, Mag: driver.FNearest, Mipmap: driver.FNoMipmap,
		AddrU: driver.AWrap, AddrV: driver.AWrap, AddrW: driver.AWrap,
		MinLOD: 0, MaxLOD: -1,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("NewSampler: unexpected error:\n%#v", err)
	}

	// MinLOD must be no greater than MaxLOD.
	if _, err = NewSampler(&SplrParam{
		Min: driver.FNearest, Mag: driver.FNearest, Mipmap: driver.FNoMipmap,
		AddrU: driver.AWrap, AddrV: driver.AWrap, AddrW: driver.AWrap,
		MinLOD: 1, MaxLOD: 0.25,
	}); err == nil || !strings.HasPrefix(err.Error(), texPrefix) {
		t.Fatalf("NewSampler: unexpected error:\n%#v", err)
	}
}

func TestTextureFree(t *testing.T) {
	texs := make([]*Texture, 0, 3)
	for i, x := range [3]TexParam{
		{PixelFmt: driver.RGBA8un, Dim3D: driver.Dim3D{Width: 1024, Height: 1024}, Layers: 1, Levels: 1},
		{PixelFmt: driver.RGBA8un, Dim3D: driver.Dim3D{Width: 512, Height: 512}, Layers: 3, Levels: 1},
		{PixelFmt: driver.RGBA8un, Dim3D: driver.Dim3D{Width: 256, Height: 256}, Layers: 6, Levels: 1},
	} {
		var tex *Texture
		var err error
		switch i {
		case 0, 1:
			tex, err = New2D(&x)
		default:
			tex, err = NewCube(&x)
		}
		if err != nil {
			t.Fatalf("case %d: unexpected error:\n%#v", i, err)
		}
		texs = append(texs, tex)
	}

	for _, x := range texs {
		x.check(t)
		x.Free()
		if x.views != nil || x.usage != 0 || x.param != (TexParam{}) {
			t.Fatal("Texture.Free: unexpected non-zero value:\n", *x)
		}
	}
}

func TestSamplerFree(t *testing.T) {
	splr, err := NewSampler(&SplrParam{
		Min: driver.FLinear, Mag: driver.FLinear, Mipmap: driver.FLinear,
		AddrU: driver.AClamp, AddrV: driver.AClamp, AddrW: driver.AClamp,
		MinLOD: 0, MaxLOD: 8,
	})
	if err != nil {
		t.Fatalf("NewSampler failed:\n%#v", err)
	}
	splr.Free()
	if splr.sampler != nil || splr.param != (SplrParam{}) {
		t.Fatal("Sampler.Free: unexpected non-zero value:\n", *splr)
	}
}

func TestViewCopy(t *testing.T) {
	tex, err := NewTarget(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 4, Height: 4},
		Layers:   1,
		Levels:   1,
	})
	if err != nil {
		t.Fatalf("NewTarget failed:\n%#v", err)
	}
	defer tex.Free()

	n := tex.ViewSize(0)
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	if err := tex.CopyToView(0, data, true); err != nil {
		t.Fatalf("CopyToView failed:\n%#v", err)
	}

	got := make([]byte, n)
	if m, err := tex.CopyFromView(0, got); err != nil {
		t.Fatalf("CopyFromView failed:\n%#v", err)
	} else if m != n {
		t.Fatalf("CopyFromView: n\nhave %d\nwant %d", m, n)
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("CopyFromView: byte %d\nhave %d\nwant %d", i, got[i], data[i])
		}
	}
}

func TestTransitionPanic(t *testing.T) {
	tex, err := New2D(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 4, Height: 4},
		Layers:   1,
		Levels:   1,
	})
	if err != nil {
		t.Fatalf("New2D failed:\n%#v", err)
	}
	defer tex.Free()

	defer func() {
		if recover() == nil {
			t.Fatal("transition: expected panic for undefined layout")
		}
	}()
	cb, err := ctxt.GPU().NewCmdBuffer()
	if err != nil {
		t.Fatalf("NewCmdBuffer failed:\n%#v", err)
	}
	defer cb.Destroy()
	if err := cb.Begin(); err != nil {
		t.Fatalf("CmdBuffer.Begin failed:\n%#v", err)
	}
	tex.transition(0, cb, driver.LUndefined, driver.Barrier{})
}

func TestSetLayoutPanic(t *testing.T) {
	tex, err := New2D(&TexParam{
		PixelFmt: driver.RGBA8un,
		Dim3D:    driver.Dim3D{Width: 4, Height: 4},
		Layers:   1,
		Levels:   1,
	})
	if err != nil {
		t.Fatalf("New2D failed:\n%#v", err)
	}
	defer tex.Free()

	defer func() {
		if recover() == nil {
			t.Fatal("setLayout: expected panic with no pending transition")
		}
	}()
	tex.setLayout(0, driver.LShaderRead)
}
