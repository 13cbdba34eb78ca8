// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pass

import (
	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/descset"
	"hybridrender.dev/hri/engine/frame"
)

const DirectIllumPSO = "direct-illum"

const (
	diHeapScene = iota // camera/instance/material (shared with path tracing)
	diHeapRT           // TLAS, output
)

// DirectIllum traces rays against the scene's TLAS and writes
// a single-bounce illumination result (spec.md §4.6.4). Its
// descriptor tables bind the scene buffers, the TLAS and the
// output image; no G-buffer image is bound to it. It is
// mutually exclusive with PathTrace: exactly one of the two
// is present in the pass list for a given RenderMode.
type DirectIllum struct {
	gpu    driver.GPU
	rt     driver.RTPipeliner
	tbl    driver.ShaderTable
	set    *descset.Manager
	output driver.Image
	view   driver.ImageView
	extent driver.Dim3D
}

// NewDirectIllum builds the pass over the given scene/RT
// descriptor heaps, sized for copies frame slots.
func NewDirectIllum(gpu driver.GPU, rt driver.RTPipeliner, copies int, sceneHeap, rtHeap driver.DescHeap, extent driver.Dim3D) (*DirectIllum, error) {
	set, err := descset.New(gpu, copies, sceneHeap, rtHeap)
	if err != nil {
		return nil, err
	}
	d := &DirectIllum{gpu: gpu, rt: rt, set: set}
	if err := d.RecreateResources(extent); err != nil {
		set.Destroy()
		return nil, err
	}
	return d, nil
}

func (d *DirectIllum) Kind() Kind { return KindDirectIllum }

// BindTable wires the shader binding table built from the
// registered ray-generation/miss/hit groups. The renderer
// calls this once, after registering DirectIllumPSO's groups
// with the shader database.
func (d *DirectIllum) BindTable(tbl driver.ShaderTable) { d.tbl = tbl }

func (d *DirectIllum) PrepareFrame(c *common.Common) error {
	queueWholeBuffer(d.set, diHeapScene, 0, c.CameraBuffer())
	queueWholeBuffer(d.set, diHeapScene, 1, c.InstanceBuffer())
	queueWholeBuffer(d.set, diHeapScene, 2, c.MaterialBuffer())
	if tlas := c.Scene.TLAS(); tlas != nil {
		d.set.QueueAccelStruct(diHeapRT, 0, 0, []driver.AccelStruct{tlas})
	}
	d.set.QueueImage(diHeapRT, 1, 0, []driver.ImageView{d.view})
	d.set.Flush(c.SlotIndex)
	return nil
}

func (d *DirectIllum) DrawFrame(f *frame.Frame, c *common.Common) {
	pso, ok := c.DB.PSO(DirectIllumPSO)
	if !ok || d.tbl == nil {
		return
	}
	cb := f.CmdBuffer
	cb.Transition([]driver.Transition{{
		Barrier:      driver.Barrier{SyncBefore: driver.SNone, SyncAfter: driver.SRayTracing, AccessBefore: driver.ANone, AccessAfter: driver.AShaderWrite},
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LCommon,
		Img:          d.output,
		Layers:       1,
		Levels:       1,
	}})
	cb.SetPipeline(pso.Pipeline)
	cb.SetDescTableComp(d.set.Table(), 0, []int{c.SlotIndex})
	cb.BeginWork(true)
	d.rt.TraceRays(cb, d.tbl, d.extent.Width, d.extent.Height, 1)
	cb.EndWork()
	cb.Transition([]driver.Transition{{
		Barrier:      driver.Barrier{SyncBefore: driver.SRayTracing, SyncAfter: driver.SFragmentShading, AccessBefore: driver.AShaderWrite, AccessAfter: driver.AShaderRead},
		LayoutBefore: driver.LCommon,
		LayoutAfter:  driver.LShaderRead,
		Img:          d.output,
		Layers:       1,
		Levels:       1,
	}})
}

// Output returns the view of the illumination result, for
// DeferredShade to bind as a sampled input.
func (d *DirectIllum) Output() driver.ImageView { return d.view }

func (d *DirectIllum) RecreateResources(extent driver.Dim3D) error {
	if d.view != nil {
		d.view.Destroy()
	}
	if d.output != nil {
		d.output.Destroy()
	}
	img, err := d.gpu.NewImage(driver.RGBA16f, extent, 1, 1, 1, driver.UShaderRead|driver.UShaderWrite)
	if err != nil {
		return err
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		img.Destroy()
		return err
	}
	d.output, d.view, d.extent = img, view, extent
	return nil
}

func (d *DirectIllum) Destroy() {
	if d == nil {
		return
	}
	if d.view != nil {
		d.view.Destroy()
	}
	if d.output != nil {
		d.output.Destroy()
	}
	if d.tbl != nil {
		d.tbl.Destroy()
	}
	d.set.Destroy()
	*d = DirectIllum{}
}
