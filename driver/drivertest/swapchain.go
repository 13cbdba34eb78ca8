// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"sync"

	"hybridrender.dev/hri/driver"
)

// Swapchain implements driver.Swapchain over a fixed set of
// in-memory images. Tests drive the scenarios in spec §8 by
// calling SetExtent/ForceInvalid before StartFrame observes
// the result through Next/Present.
type Swapchain struct {
	gpu   *GPU
	vsync driver.VSyncMode
	desc  driver.SwapchainDesc

	mu         sync.Mutex
	views      []driver.ImageView
	acquired   map[int]bool
	nextInvalid bool // forces the next Next/Present call to report ErrSwapchain
	recreateCount int
}

func (sc *Swapchain) Destroy() {}

func (sc *Swapchain) rebuildViews() {
	views := make([]driver.ImageView, sc.desc.ImageCount)
	for i := range views {
		img := &Image{format: sc.desc.Format, dim: sc.desc.Extent, layers: 1, levels: 1, samples: 1, usage: driver.URenderTarget}
		v, _ := img.NewView(driver.IView2D, 0, 1, 0, 1)
		views[i] = v
	}
	sc.views = views
	sc.acquired = make(map[int]bool, len(views))
}

func (sc *Swapchain) Views() []driver.ImageView {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.views
}

func (sc *Swapchain) Next(cb driver.CmdBuffer) (int, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.nextInvalid {
		sc.nextInvalid = false
		return -1, driver.ErrSwapchain
	}
	if sc.desc.Extent.Width == 0 || sc.desc.Extent.Height == 0 {
		return -1, driver.ErrSwapchain
	}
	for i := range sc.views {
		if !sc.acquired[i] {
			sc.acquired[i] = true
			return i, nil
		}
	}
	return -1, driver.ErrNoBackbuffer
}

func (sc *Swapchain) Present(index int, cb driver.CmdBuffer) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.acquired, index)
	if sc.nextInvalid {
		sc.nextInvalid = false
		return driver.ErrSwapchain
	}
	return nil
}

func (sc *Swapchain) Recreate() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.recreateCount++
	sc.rebuildViews()
	return nil
}

func (sc *Swapchain) Format() driver.PixelFmt { return sc.desc.Format }

func (sc *Swapchain) Desc() driver.SwapchainDesc {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.desc
}

// SetExtent changes the simulated surface extent. A 0x0
// extent models a minimized window (spec §8 scenario S3).
func (sc *Swapchain) SetExtent(width, height int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.desc.Extent = driver.Dim3D{Width: width, Height: height, Depth: 1}
}

// ForceInvalid makes the next Next or Present call return
// driver.ErrSwapchain, simulating an OUT_OF_DATE/SUBOPTIMAL
// result (spec §8 scenario S2).
func (sc *Swapchain) ForceInvalid() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.nextInvalid = true
}

// RecreateCount returns how many times Recreate has run.
func (sc *Swapchain) RecreateCount() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.recreateCount
}
