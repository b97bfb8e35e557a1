// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"errors"

	"github.com/lumenforge/vkpt/wsi"
)

// ErrCannotPresent means that the driver and/or device do
// not support presentation.
var ErrCannotPresent = errors.New("presentation not supported")

// ErrSwapchain represents an error related to a specific
// swapchain. It usually indicates that changes to the
// window or compositor made the swapchain unusable.
var ErrSwapchain = errors.New("swapchain-related error")

// Presenter is the interface that a GPU may implement to
// enable presentation on a display. Window/surface/swap-
// chain management is otherwise external to this module;
// the renderer only needs a place to hand off the final
// tonemapped image for each frame.
type Presenter interface {
	// NewSwapchain creates a new swapchain for win.
	// Only one swapchain can be associated with a given
	// wsi.Window at a time.
	NewSwapchain(win wsi.Window, imageCount int) (Swapchain, error)
}

// Swapchain is the interface that defines an n-buffered
// swapchain for presentation. As with other commands,
// presentation only takes effect after GPU.Commit.
type Swapchain interface {
	Destroyer

	// Views returns the list of image views that comprise
	// the swapchain. It is stable until Destroy or Recreate.
	Views() []ImageView

	// Next returns the index of the next writable image
	// view. cb must be the first command buffer that will
	// write to the image.
	Next(cb CmdBuffer) (int, error)

	// Present presents the image view identified by index.
	// cb must be the last command buffer that wrote to it.
	Present(index int, cb CmdBuffer) error

	// Recreate recreates the swapchain in response to an
	// ErrSwapchain error, e.g. after a window resize.
	Recreate() error

	// Format returns the image views' PixelFmt.
	Format() PixelFmt
}
