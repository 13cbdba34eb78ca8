// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pass

import (
	"unsafe"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/descset"
	"hybridrender.dev/hri/engine/frame"
)

const PathTracePSO = "path-trace"

// pingPongPush is the {frame_index, subframe_index} pair
// spec.md §4.6.5 calls a push constant; see
// GBufferLayout.drawGeometry's comment for why this travels
// in a constant buffer instead.
type pingPongPush struct {
	frameIndex, subFrameIndex uint32
	_                         [8]byte
}

const (
	ptHeapScene = iota // camera (current+previous), instance, material
	ptHeapRT           // TLAS, result[2], reprojection history
)

// PathTrace is the reference/alternative rendering mode
// (spec.md §4.6.5): it binds the scene and RT descriptor
// heaps and traces against two accumulation images in a
// ping-pong arrangement, selecting the write target from
// common.Common.PingPong and flipping it after every
// DrawFrame. It is mutually exclusive with DirectIllum.
type PathTrace struct {
	gpu      driver.GPU
	rt       driver.RTPipeliner
	tbl      driver.ShaderTable
	set      *descset.Manager
	pushBuf  driver.Buffer
	result   [2]driver.Image
	views    [2]driver.ImageView
	history  driver.Image
	histView driver.ImageView
	extent   driver.Dim3D
}

// NewPathTrace builds the pass over the given scene/RT
// descriptor heaps, sized for copies frame slots.
func NewPathTrace(gpu driver.GPU, rt driver.RTPipeliner, copies int, sceneHeap, rtHeap driver.DescHeap, extent driver.Dim3D) (*PathTrace, error) {
	set, err := descset.New(gpu, copies, sceneHeap, rtHeap)
	if err != nil {
		return nil, err
	}
	pushBuf, err := gpu.NewBuffer(int64(unsafe.Sizeof(pingPongPush{})), true, driver.UShaderConst)
	if err != nil {
		set.Destroy()
		return nil, err
	}
	p := &PathTrace{gpu: gpu, rt: rt, set: set, pushBuf: pushBuf}
	if err := p.RecreateResources(extent); err != nil {
		pushBuf.Destroy()
		set.Destroy()
		return nil, err
	}
	return p, nil
}

func (p *PathTrace) Kind() Kind { return KindPathTrace }

// BindTable wires the shader binding table built from the
// registered ray-generation/miss/hit groups.
func (p *PathTrace) BindTable(tbl driver.ShaderTable) { p.tbl = tbl }

func (p *PathTrace) PrepareFrame(c *common.Common) error {
	push := pingPongPush{frameIndex: c.FrameIndex, subFrameIndex: c.SubFrameIndex}
	copy(p.pushBuf.Bytes(), unsafe.Slice((*byte)(unsafe.Pointer(&push)), unsafe.Sizeof(push)))

	queueWholeBuffer(p.set, ptHeapScene, 0, c.CameraBuffer())
	queueWholeBuffer(p.set, ptHeapScene, 1, c.InstanceBuffer())
	queueWholeBuffer(p.set, ptHeapScene, 2, c.MaterialBuffer())
	queueWholeBuffer(p.set, ptHeapRT, 3, p.pushBuf)

	if tlas := c.Scene.TLAS(); tlas != nil {
		p.set.QueueAccelStruct(ptHeapRT, 0, 0, []driver.AccelStruct{tlas})
	}
	write, read := c.PingPong, 1-c.PingPong
	p.set.QueueImage(ptHeapRT, 1, 0, []driver.ImageView{p.views[write]})
	p.set.QueueImage(ptHeapRT, 2, 0, []driver.ImageView{p.views[read]})
	p.set.QueueImage(ptHeapRT, 4, 0, []driver.ImageView{p.histView})
	p.set.Flush(c.SlotIndex)
	return nil
}

func (p *PathTrace) DrawFrame(f *frame.Frame, c *common.Common) {
	pso, ok := c.DB.PSO(PathTracePSO)
	if !ok || p.tbl == nil {
		return
	}
	write := c.PingPong
	cb := f.CmdBuffer
	cb.Transition([]driver.Transition{{
		Barrier:      driver.Barrier{SyncBefore: driver.SNone, SyncAfter: driver.SRayTracing, AccessBefore: driver.ANone, AccessAfter: driver.AShaderWrite},
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LCommon,
		Img:          p.result[write],
		Layers:       1,
		Levels:       1,
	}})
	cb.SetPipeline(pso.Pipeline)
	cb.SetDescTableComp(p.set.Table(), 0, []int{c.SlotIndex})
	cb.BeginWork(true)
	p.rt.TraceRays(cb, p.tbl, p.extent.Width, p.extent.Height, 1)
	cb.EndWork()
	cb.Transition([]driver.Transition{{
		Barrier:      driver.Barrier{SyncBefore: driver.SRayTracing, SyncAfter: driver.SFragmentShading, AccessBefore: driver.AShaderWrite, AccessAfter: driver.AShaderRead},
		LayoutBefore: driver.LCommon,
		LayoutAfter:  driver.LShaderRead,
		Img:          p.result[write],
		Layers:       1,
		Levels:       1,
	}})
	// Flip the write target after tracing, per invariant 3:
	// the image read as "previous" in frame N must be the one
	// written in frame N-1.
	c.PingPong = 1 - c.PingPong
}

// Output returns the view of the current write target (the
// image this frame just traced into), for DeferredShade to
// bind as a sampled input.
func (p *PathTrace) Output(c *common.Common) driver.ImageView { return p.views[1-c.PingPong] }

func (p *PathTrace) RecreateResources(extent driver.Dim3D) error {
	for i := range p.result {
		if p.views[i] != nil {
			p.views[i].Destroy()
		}
		if p.result[i] != nil {
			p.result[i].Destroy()
		}
		img, err := p.gpu.NewImage(driver.RGBA16f, extent, 1, 1, 1, driver.UShaderRead|driver.UShaderWrite)
		if err != nil {
			return err
		}
		view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
		if err != nil {
			img.Destroy()
			return err
		}
		p.result[i], p.views[i] = img, view
	}
	if p.histView != nil {
		p.histView.Destroy()
	}
	if p.history != nil {
		p.history.Destroy()
	}
	hist, err := p.gpu.NewImage(driver.RGBA16f, extent, 1, 1, 1, driver.UShaderRead|driver.UShaderWrite)
	if err != nil {
		return err
	}
	histView, err := hist.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		hist.Destroy()
		return err
	}
	p.history, p.histView, p.extent = hist, histView, extent
	return nil
}

func (p *PathTrace) Destroy() {
	if p == nil {
		return
	}
	for i := range p.result {
		if p.views[i] != nil {
			p.views[i].Destroy()
		}
		if p.result[i] != nil {
			p.result[i].Destroy()
		}
	}
	if p.histView != nil {
		p.histView.Destroy()
	}
	if p.history != nil {
		p.history.Destroy()
	}
	p.pushBuf.Destroy()
	if p.tbl != nil {
		p.tbl.Destroy()
	}
	p.set.Destroy()
	*p = PathTrace{}
}
