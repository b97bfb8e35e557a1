// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lumenforge/vkpt/driver"
	"github.com/lumenforge/vkpt/engine/internal/ctxt"
	"github.com/lumenforge/vkpt/internal/barrier"
)

const texPrefix = "texture: "

// wholeViews maps a driver.Image to the driver.ImageView that
// spans its entire subresource range (every layer and every
// mip level). internal/barrier's Scheduler only ever transitions
// whole resources in this renderer (there is no partial mip/layer
// aliasing), so this is the resolver installed via
// barrier.SetViewResolver: Scheduler.Barrier looks up the view to
// put in a driver.Transition through it instead of the renderer
// threading an ImageView through every Range it builds.
var wholeViews sync.Map

func init() {
	barrier.SetViewResolver(resolveWholeView)
}

func resolveWholeView(img driver.Image, baseLayer, layers, baseLevel, levels int) (driver.ImageView, error) {
	v, ok := wholeViews.Load(img)
	if !ok {
		return nil, errors.New(texPrefix + "no registered view for image")
	}
	return v.(driver.ImageView), nil
}

// registerWholeView records t's whole-resource view so the
// barrier package's Scheduler can transition it. Swapchain images
// are not Texture-wrapped and register themselves directly.
func registerWholeView(t *Texture) { wholeViews.Store(t.views[0].Image(), t.wholeView()) }

// unregisterWholeView drops t's entry prior to destroying it.
func unregisterWholeView(t *Texture) { wholeViews.Delete(t.views[0].Image()) }

// Texture wraps a driver.Image.
type Texture struct {
	// One view per layer (or every 6th, in case
	// of cube textures). If the image is arrayed,
	// then there will be an additional view of
	// the whole array at the end.
	views []driver.ImageView
	usage driver.Usage
	param TexParam
	// The driver.Layout currently associated with
	// each view. A given layouts element will
	// contain an invalid layout value while there
	// is an uncommitted copy or ongoing transition
	// targeting that view.
	layouts []atomic.Int64
}

// TexParam describes parameters of a texture.
type TexParam struct {
	driver.PixelFmt
	driver.Dim3D
	Layers int
	Levels int
}

const (
	tex2D = iota
	texCube
	texTarget
)

// makeViews creates a driver.Image from param/usage and
// makes the driver.ImageView slice that Texture expects.
// It assumes that the parameters are valid.
func makeViews(param *TexParam, usage driver.Usage, texType int) (v []driver.ImageView, err error) {
	img, err := ctxt.GPU().NewImage(
		param.PixelFmt, param.Dim3D, param.Layers, param.Levels, 1, usage)
	if err != nil {
		return
	}

	var typ driver.ViewType
	// Non-arrayed cube views take six layers.
	var nl int

	switch texType {
	case tex2D, texTarget:
		typ = driver.IView2D
		if param.Layers > 1 {
			view, err := img.NewView(driver.IView2DArray, 0, param.Layers, 0, param.Levels)
			if err != nil {
				img.Destroy()
				return nil, err
			}
			v = make([]driver.ImageView, param.Layers+1)
			v[param.Layers] = view
		} else {
			v = []driver.ImageView{nil}
		}
		nl = 1
	case texCube:
		// Cube arrays are not supported; every cube
		// texture has exactly six layers (one face
		// view per call, no whole-array view).
		typ = driver.IViewCube
		v = []driver.ImageView{nil}
		nl = 6
	default:
		panic("undefined texture type")
	}

	// Create non-arrayed views.
	for i := 0; i < param.Layers/nl; i++ {
		v[i], err = img.NewView(typ, i*nl, nl, 0, param.Levels)
		if err != nil {
			for j := 0; j < i; j++ {
				v[j].Destroy()
			}
			if param.Layers > nl {
				v[param.Layers/nl].Destroy()
			}
			img.Destroy()
			v = nil
			break
		}
	}
	return
}

// makeLayouts makes the initial layouts slice that
// Texture expects, one entry per view.
// All layouts are set to driver.LUndefined.
func makeLayouts(nview int) []atomic.Int64 {
	layouts := make([]atomic.Int64, nview)
	for i := range layouts {
		layouts[i].Store(int64(driver.LUndefined))
	}
	return layouts
}

// New2D creates a 2D texture.
func New2D(param *TexParam) (t *Texture, err error) {
	limits := ctxt.Limits()
	var reason string
	switch {
	case param == nil:
		reason = "nil param"
	case param.Dim3D.Width < 1, param.Dim3D.Height < 1, param.Dim3D.Depth != 0:
		reason = "invalid size"
	case param.Dim3D.Width > limits.MaxImage2D, param.Dim3D.Height > limits.MaxImage2D:
		reason = "size too big"
	case param.Layers < 1:
		reason = "invalid layer count"
	case param.Layers > limits.MaxLayers:
		reason = "too many layers"
	case param.Levels < 1, param.Levels > ComputeLevels(param.Dim3D):
		reason = "invalid level count"
	default:
		goto validParam
	}
	err = errors.New(texPrefix + reason)
	return
validParam:
	// TODO: Consider removing driver.UCopySrc and
	// disallowing CopyFromView calls instead.
	usage := driver.UCopySrc | driver.UCopyDst | driver.UShaderSample
	views, err := makeViews(param, usage, tex2D)
	if err == nil {
		// TODO: Should destroy driver resources
		// when unreachable (unless Texture.Free
		// is called first).
		t = &Texture{views, usage, *param, makeLayouts(len(views))}
		registerWholeView(t)
	}
	return
}

// NewCube creates a new cube texture.
func NewCube(param *TexParam) (t *Texture, err error) {
	limits := ctxt.Limits()
	var reason string
	switch {
	case param == nil:
		reason = "nil param"
	case param.Dim3D.Width < 1, param.Dim3D.Height < 1, param.Dim3D.Depth != 0:
		reason = "invalid size"
	case param.Dim3D.Width != param.Dim3D.Height:
		reason = "cube's width and height differs"
	case param.Dim3D.Width > limits.MaxImageCube:
		reason = "size too big"
	case param.Layers != 6:
		reason = "cube texture must have exactly six layers"
	case param.Levels < 1, param.Levels > ComputeLevels(param.Dim3D):
		reason = "invalid level count"
	default:
		goto validParam
	}
	err = errors.New(texPrefix + reason)
	return
validParam:
	// TODO: Consider removing driver.UCopySrc and
	// disallowing CopyFromView calls instead.
	usage := driver.UCopySrc | driver.UCopyDst | driver.UShaderSample
	views, err := makeViews(param, usage, texCube)
	if err == nil {
		// TODO: Should destroy driver resources
		// when unreachable (unless Texture.Free
		// is called first).
		t = &Texture{views, usage, *param, makeLayouts(len(views))}
		registerWholeView(t)
	}
	return
}

// NewTarget creates a new render target texture.
// Render targets are written by compute dispatches
// (there is no rasterization pass in this driver), so
// they are backed by a storage image rather than a
// traditional color/depth attachment.
func NewTarget(param *TexParam) (t *Texture, err error) {
	limits := ctxt.Limits()
	var reason string
	switch {
	case param == nil:
		reason = "nil param"
	case param.Dim3D.Width < 1, param.Dim3D.Height < 1, param.Dim3D.Depth != 0:
		reason = "invalid size"
	case param.Width > limits.MaxImage2D, param.Height > limits.MaxImage2D:
		reason = "size too big"
	case param.Layers < 1:
		reason = "invalid layer count"
	case param.Layers > limits.MaxLayers:
		reason = "too many layers"
	case param.Levels < 1, param.Levels > ComputeLevels(param.Dim3D):
		reason = "invalid level count"
	default:
		goto validParam
	}
	err = errors.New(texPrefix + reason)
	return
validParam:
	// TODO: Consider removing driver.UCopyDst and
	// disallowing CopyToView calls instead.
	usage := driver.UCopySrc | driver.UCopyDst | driver.UShaderRead | driver.UShaderWrite
	views, err := makeViews(param, usage, texTarget)
	if err == nil {
		// TODO: Should destroy driver resources
		// when unreachable (unless Texture.Free
		// is called first).
		t = &Texture{views, usage, *param, makeLayouts(len(views))}
		registerWholeView(t)
	}
	return
}

// wholeView returns the view spanning every layer of t: the
// trailing array view for an arrayed 2D/target texture, or view 0
// for a non-arrayed 2D/target texture and for a cube texture
// (whose single view already covers all six faces).
func (t *Texture) wholeView() driver.ImageView {
	if t.param.Layers > 1 && len(t.views) > t.param.Layers {
		return t.views[t.param.Layers]
	}
	return t.views[0]
}

// currentLayout returns view's last committed driver.Layout, or
// driver.LUndefined while a copy targeting it is still pending.
func (t *Texture) currentLayout(view int) driver.Layout {
	if l := t.layouts[view].Load(); l >= 0 {
		return driver.Layout(l)
	}
	return driver.LUndefined
}

// IsValidView checks whether view identifies a valid
// driver.ImageView of t.
//
// For non-arrayed (single-layer) textures, or cube
// textures, only view 0 is valid. This view represents
// the one layer in a 2D/target texture, and each of the
// six faces in a cube texture.
//
// For arrayed (two layers or more) 2D/target textures
// there is one view per layer, each representing the
// given layer, and one extra view encompassing the
// whole array.
//
// Non-arrayed textures:
//
//	2D/Target | one layer  | one view [0]
//	Cube      | six layers | one view [0]
//
// Arrayed textures:
//
//	2D/Target | N layers   | N+1 views [0, N]
//
// In the case of 2D/target textures, the arrayed view
// is identified by t.Layers().
func (t *Texture) IsValidView(view int) bool { return view >= 0 && view < len(t.views) }

// ViewLayers returns the number of layers in the
// given view.
func (t *Texture) ViewLayers(view int) int {
	if !t.IsValidView(view) {
		panic("not a valid view of Texture")
	}
	if t.param.Layers > 1 && view == t.param.Layers {
		// Entire array.
		return t.param.Layers
	}
	if len(t.views) < t.param.Layers {
		// Cube faces.
		return 6
	}
	return 1
}

// ViewSize returns the size in bytes of the given
// view's memory.
// It does not consider the memory consumed by
// additional mip levels.
//
// TODO: Provide a method that actually considers
// the whole mip chain.
func (t *Texture) ViewSize(view int) int {
	nl := t.ViewLayers(view)
	n := t.param.Size() * t.param.Width * t.param.Height
	return nl * n
}

// viewRange returns the first underlying layer and the
// layer count that the given view covers.
func (t *Texture) viewRange(view int) (first, n int) {
	if t.param.Layers > 1 {
		switch {
		case view == t.param.Layers:
			return 0, t.param.Layers
		case len(t.views) < t.param.Layers:
			return view * 6, 6
		}
	}
	return view, 1
}

// CopyToView copies CPU data to the given view of t.
// Only the first mip level must be provided.
// If t is arrayed and view is the last view, then
// data must contain the first level of every layer,
// in order and tightly packed.
// Unless commit is true, the copy may be delayed.
//
// TODO: Allow copying data to any mip level.
func (t *Texture) CopyToView(view int, data []byte, commit bool) error {
	if x := t.ViewSize(view); x < len(data) {
		data = data[:x]
	}
	s := <-staging
	off, err := s.stage(data)
	if err == nil {
		err = s.copyToView(t, view, off)
		if commit && err == nil {
			err = s.commit()
		}
	}
	staging <- s
	return err
}

// CopyFromView copies t's view to a given CPU buffer.
// It returns the number of bytes written to dst.
// This method does not grow the dst buffer, so data
// may be lost.
// It implicitly commits the staging buffer.
func (t *Texture) CopyFromView(view int, dst []byte) (int, error) {
	if x := t.ViewSize(view); x < len(dst) {
		dst = dst[:x]
	}
	s := <-staging
	var n int
	off, err := s.reserve(len(dst))
	if err == nil {
		if err = s.copyFromView(t, view, off); err == nil {
			// TODO: Try to defer this call.
			if err = s.commit(); err == nil {
				n = s.unstage(off, dst)
			}
		}
	}
	staging <- s
	return n, err
}

const invalLayout = -1

// setPending stores invalLayout in t.layouts[view] and
// returns the replaced layout.
// It panics if the current layout is invalid.
func (t *Texture) setPending(view int) driver.Layout {
	if layout := t.layouts[view].Swap(invalLayout); layout != invalLayout {
		return driver.Layout(layout)
	}
	panic("layout already pending")
}

// unsetPending stores layout in t.layouts[view].
// It panics if the current layout is valid.
func (t *Texture) unsetPending(view int, layout driver.Layout) {
	if !t.layouts[view].CompareAndSwap(invalLayout, int64(layout)) {
		panic("layout not pending")
	}
}

// transition records a layout transition for view in
// the given command buffer.
// The caller must ensure that no copies targeting
// this particular view of t happen until the command
// completes execution.
// The caller is also responsible for calling
// t.setLayout after the transition executes to
// update t's state.
func (t *Texture) transition(view int, cb driver.CmdBuffer, layout driver.Layout, barrier driver.Barrier) {
	if !t.IsValidView(view) {
		panic("not a valid view of Texture")
	}
	if !cb.IsRecording() {
		panic("driver.CmdBuffer is not recording")
	}
	if layout == driver.LUndefined {
		panic("layout is driver.LUndefined")
	}
	before := t.setPending(view)
	cb.Transition([]driver.Transition{{
		Barrier:      barrier,
		LayoutBefore: before,
		LayoutAfter:  layout,
		IView:        t.views[view],
	}})
}

// setLayout sets the layout of view.
// It must be called, exactly once, after the preceding
// t.transition command executes to update t's state.
// layout must either match the transition's layout, or
// be driver.LUndefined (in case of failure to execute
// the layout transition command).
// Calling this method with no preceding transition is
// not allowed.
func (t *Texture) setLayout(view int, layout driver.Layout) {
	if !t.IsValidView(view) {
		panic("not a valid view of Texture")
	}
	t.unsetPending(view, layout)
}

// PixelFmt returns the driver.PixelFmt of t.
func (t *Texture) PixelFmt() driver.PixelFmt { return t.param.PixelFmt }

// Width returns the width of t's first mip level.
func (t *Texture) Width() int { return t.param.Width }

// Height returns the height of t's first mip level.
func (t *Texture) Height() int { return t.param.Height }

// Layers returns the number of layers in t.
func (t *Texture) Layers() int { return t.param.Layers }

// Levels returns the number of levels in t.
func (t *Texture) Levels() int { return t.param.Levels }

// Free invalidates t and destroys the driver.Image and
// the driver.ImageView(s).
// The caller is responsible for ensuring that there
// are no pending copies targeting any view of t, and
// that none is issued during the call.
func (t *Texture) Free() {
	if len(t.views) > 0 {
		unregisterWholeView(t)
		img := t.views[0].Image()
		for _, v := range t.views {
			v.Destroy()
		}
		img.Destroy()
	}
	*t = Texture{}
}

// ComputeLevels returns the maximum number of mip levels
// for a given driver.Dim3D.
// It assumes that size is valid (i.e., neither negative
// nor the zero value).
func ComputeLevels(size driver.Dim3D) int {
	x := size.Width
	if x < size.Height {
		x = size.Height
	}
	if x < size.Depth {
		x = size.Depth
	}
	var l int
	for ; x > 0; l++ {
		x /= 2
	}
	return l
}

// Sampler wraps a driver.Sampler.
type Sampler struct {
	sampler driver.Sampler
	param   SplrParam
}

// SplrParam describes parameters of a sampler.
type SplrParam = driver.Sampling

// NewSampler creates a new sampler.
func NewSampler(param *SplrParam) (s *Sampler, err error) {
	var reason string
	switch {
	case param == nil:
		reason = "nil param"
	case param.MinLOD < 0:
		reason = "invalid min LOD"
	case param.MaxLOD < 0:
		reason = "invalid max LOD"
	case param.MinLOD > param.MaxLOD:
		reason = "min LOD greater than max LOD"
	default:
		goto validParam
	}
	err = errors.New(texPrefix + reason)
	return
validParam:
	splr, err := ctxt.GPU().NewSampler(param)
	if err == nil {
		// TODO: Should destroy driver resource
		// when unreachable (unless Sampler.Free
		// is called first).
		s = &Sampler{splr, *param}
	}
	return
}

// Min returns the driver.Filter of s that is used
// for minification.
func (s *Sampler) Min() driver.Filter { return s.param.Min }

// Mag returns the driver.Filter of s that is used
// for magnification.
func (s *Sampler) Mag() driver.Filter { return s.param.Mag }

// Mipmap returns the driver.Filter of s that is used
// for mip level selection.
func (s *Sampler) Mipmap() driver.Filter { return s.param.Mipmap }

// AddrU returns the driver.AddrMode of s that is used
// for u coordinate addressing.
func (s *Sampler) AddrU() driver.AddrMode { return s.param.AddrU }

// AddrV returns the driver.AddrMode of s that is used
// for v coordinate addressing.
func (s *Sampler) AddrV() driver.AddrMode { return s.param.AddrV }

// AddrW returns the driver.AddrMode of s that is used
// for w coordinate addressing.
func (s *Sampler) AddrW() driver.AddrMode { return s.param.AddrW }

// MinLOD returns the minimum level of detail of s.
func (s *Sampler) MinLOD() float32 { return s.param.MinLOD }

// MaxLOD returns the maximum level of detail of s.
func (s *Sampler) MaxLOD() float32 { return s.param.MaxLOD }

// Free invalidates s and destroys the driver.Sampler.
func (s *Sampler) Free() {
	if s.sampler != nil {
		s.sampler.Destroy()
	}
	*s = Sampler{}
}
