// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pass

import (
	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/descset"
	"hybridrender.dev/hri/engine/frame"
)

const PresentPSO = "present"

const presentHeapColor = 0

// Present samples the final color image through a linear
// sampler and writes it to the active swap image via a
// fullscreen triangle (spec.md §4.6.7). UI runs after it,
// loading the same swap image with LLoad/SStore.
type Present struct {
	sc   *Swapchain
	set  *descset.Manager
	splr driver.Sampler

	colorView driver.ImageView
}

// NewPresent builds the pass over the swapchain's views/extent
// and a color-input descriptor heap, sized for copies frame
// slots.
func NewPresent(gpu driver.GPU, copies int, colorHeap driver.DescHeap, views []driver.ImageView, extent driver.Dim3D, splr driver.Sampler) (*Present, error) {
	att := []driver.Attachment{{Samples: 1, Load: [2]driver.LoadOp{driver.LDontCare, driver.LDontCare}, Store: [2]driver.StoreOp{driver.SStore, driver.SDontCare}}}
	sub := []driver.Subpass{{Color: []int{0}, DS: -1}}
	sc, err := NewSwapchain(gpu, att, sub, views, extent)
	if err != nil {
		return nil, err
	}
	set, err := descset.New(gpu, copies, colorHeap)
	if err != nil {
		sc.Destroy()
		return nil, err
	}
	return &Present{sc: sc, set: set, splr: splr}, nil
}

func (p *Present) Kind() Kind { return KindPresent }

// Bind wires the final color image this pass samples. Called
// once after construction and again whenever DeferredShade
// rebuilds its output (resize).
func (p *Present) Bind(color driver.ImageView) { p.colorView = color }

func (p *Present) PrepareFrame(c *common.Common) error {
	if p.colorView != nil {
		p.set.QueueImage(presentHeapColor, 0, 0, []driver.ImageView{p.colorView})
	}
	p.set.QueueSampler(presentHeapColor, 1, 0, []driver.Sampler{p.splr})
	p.set.Flush(c.SlotIndex)
	return nil
}

func (p *Present) DrawFrame(f *frame.Frame, c *common.Common) {
	pso, ok := c.DB.PSO(PresentPSO)
	if !ok {
		return
	}
	clear := []driver.ClearValue{{Color: [4]float32{0, 0, 0, 1}}}
	p.sc.BeginPass(f, clear)
	f.CmdBuffer.SetPipeline(pso.Pipeline)
	f.CmdBuffer.SetDescTableGraph(p.set.Table(), 0, []int{c.SlotIndex})
	f.CmdBuffer.Draw(3, 1, 0, 0)
	p.sc.EndPass(f)
}

// RenderPass returns the swapchain render pass this pass
// writes into, for pipeline creation.
func (p *Present) RenderPass() driver.RenderPass { return p.sc.RenderPass() }

// RecreateResources rebuilds the swapchain framebuffers at the
// new extent/views. The renderer supplies the fresh view list
// (engine/frame.Core owns the swapchain itself) via
// RecreateViews, since RecreateResources's signature (spec.md
// §4.6) only carries the new extent.
func (p *Present) RecreateResources(extent driver.Dim3D) error {
	return nil // views arrive separately; see RecreateViews
}

// RecreateViews rebuilds the swapchain framebuffers against a
// fresh set of swap image views at extent. The renderer calls
// this from its on-swapchain-invalidate callback, which is the
// only place the new view list is available.
func (p *Present) RecreateViews(views []driver.ImageView, extent driver.Dim3D) error {
	return p.sc.Recreate(views, extent)
}

func (p *Present) Destroy() {
	if p == nil {
		return
	}
	p.set.Destroy()
	p.sc.Destroy()
	*p = Present{}
}
