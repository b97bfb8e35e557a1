// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package wsi

// Window-system integration is an external collaborator of this
// renderer (scope note: window/surface/swap-chain management is
// not part of the light-transport core). This build only wires
// the dummy, headless backend; a real windowing backend is
// expected to call the same registration points (newWindow,
// dispatch, setAppName) from its own platform-specific init.
func init() { initDummy() }
