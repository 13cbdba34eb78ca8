// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pass

import (
	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/descset"
	"hybridrender.dev/hri/engine/frame"
)

const DeferredShadePSO = "deferred-shade"

const (
	dsHeapGBuffer = iota // sampled G-buffer attachments
	dsHeapLight         // direct-illum or path-trace result
)

// DeferredShade combines the sampled G-buffer with the
// direct-illumination (or path-traced) result into a final
// color image (spec.md §4.6.6).
type DeferredShade struct {
	gpu  driver.GPU
	off  *Offscreen
	set  *descset.Manager
	splr driver.Sampler

	gbufferViews []driver.ImageView
	lightView    driver.ImageView
}

// NewDeferredShade builds the pass's single color attachment
// and descriptor heaps, sized for copies frame slots.
func NewDeferredShade(gpu driver.GPU, copies int, gbufferHeap, lightHeap driver.DescHeap, splr driver.Sampler, extent driver.Dim3D) (*DeferredShade, error) {
	att := []driver.Attachment{{Samples: 1, Load: [2]driver.LoadOp{driver.LDontCare, driver.LDontCare}, Store: [2]driver.StoreOp{driver.SStore, driver.SDontCare}}}
	sub := []driver.Subpass{{Color: []int{0}, DS: -1}}
	cfgs := []AttachmentConfig{{Format: driver.RGBA16f, Usage: driver.URenderTarget | driver.UShaderSample}}
	off, err := NewOffscreen(gpu, att, sub, cfgs, extent)
	if err != nil {
		return nil, err
	}
	set, err := descset.New(gpu, copies, gbufferHeap, lightHeap)
	if err != nil {
		off.Destroy()
		return nil, err
	}
	return &DeferredShade{gpu: gpu, off: off, set: set, splr: splr}, nil
}

func (d *DeferredShade) Kind() Kind { return KindDeferredShade }

// Bind wires the sampled G-buffer views and the current
// lighting result into the heaps this pass reads. Called
// once after construction and again whenever either input's
// identity changes (resize, or a ping-pong flip for PathTrace
// mode).
func (d *DeferredShade) Bind(gbuffer []driver.ImageView, light driver.ImageView) {
	d.gbufferViews = gbuffer
	d.lightView = light
}

func (d *DeferredShade) PrepareFrame(c *common.Common) error {
	if len(d.gbufferViews) > 0 {
		d.set.QueueImage(dsHeapGBuffer, 0, 0, d.gbufferViews)
	}
	d.set.QueueSampler(dsHeapGBuffer, 1, 0, []driver.Sampler{d.splr})
	if d.lightView != nil {
		d.set.QueueImage(dsHeapLight, 0, 0, []driver.ImageView{d.lightView})
	}
	d.set.Flush(c.SlotIndex)
	return nil
}

func (d *DeferredShade) DrawFrame(f *frame.Frame, c *common.Common) {
	pso, ok := c.DB.PSO(DeferredShadePSO)
	if !ok {
		return
	}
	d.off.BeginPass(f)
	f.CmdBuffer.SetPipeline(pso.Pipeline)
	f.CmdBuffer.SetDescTableGraph(d.set.Table(), 0, []int{c.SlotIndex})
	f.CmdBuffer.Draw(3, 1, 0, 0)
	d.off.EndPass(f)
}

// Output returns the view of the final color image, for
// Present to sample.
func (d *DeferredShade) Output() driver.ImageView { return d.off.View(0) }

func (d *DeferredShade) RecreateResources(extent driver.Dim3D) error { return d.off.Recreate(extent) }

func (d *DeferredShade) Destroy() {
	if d == nil {
		return
	}
	d.set.Destroy()
	d.off.Destroy()
	*d = DeferredShade{}
}
