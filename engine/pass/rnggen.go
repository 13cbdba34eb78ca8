// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pass

import (
	"unsafe"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/descset"
	"hybridrender.dev/hri/engine/frame"
)

// RngGenPSO is the compute PSO name RngGen looks up in
// common.Common.DB.
const RngGenPSO = "rng-gen"

// seedLayout is the constant-buffer layout the RNG shader
// reads its dispatch seed from. driver.CmdBuffer has no
// push-constant call, so the frame index that would otherwise
// be a push constant travels in a one-element constant buffer
// instead, updated in PrepareFrame the same way
// common.Common.UpdateCamera updates the camera buffer.
type seedLayout struct {
	frameIndex uint32
	_          [12]byte // pad to 16 bytes, a common.UBO alignment requirement
}

const (
	rngHeapSeed = iota
	rngHeapOutput
)

// RngGen fills a screen-sized R32_SFLOAT storage image with
// white noise seeded by the frame index (spec.md §4.6.1). Its
// output is read by GBufferSample to stochastically blend the
// far/near G-buffer copies.
type RngGen struct {
	gpu     driver.GPU
	heaps   []driver.DescHeap
	set     *descset.Manager
	seedBuf driver.Buffer
	output  driver.Image
	view    driver.ImageView
	extent  driver.Dim3D
}

// NewRngGen builds the RNG pass over the given descriptor
// heaps (seed constant buffer at index rngHeapSeed, output
// storage image at index rngHeapOutput), sized for copies
// frame slots.
func NewRngGen(gpu driver.GPU, copies int, seedHeap, outputHeap driver.DescHeap, extent driver.Dim3D) (*RngGen, error) {
	set, err := descset.New(gpu, copies, seedHeap, outputHeap)
	if err != nil {
		return nil, err
	}
	seedBuf, err := gpu.NewBuffer(int64(unsafe.Sizeof(seedLayout{})), true, driver.UShaderConst)
	if err != nil {
		set.Destroy()
		return nil, err
	}
	r := &RngGen{gpu: gpu, heaps: []driver.DescHeap{seedHeap, outputHeap}, set: set, seedBuf: seedBuf}
	if err := r.RecreateResources(extent); err != nil {
		seedBuf.Destroy()
		set.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *RngGen) Kind() Kind { return KindRngGen }

func (r *RngGen) PrepareFrame(c *common.Common) error {
	l := seedLayout{frameIndex: c.FrameIndex}
	copy(r.seedBuf.Bytes(), unsafe.Slice((*byte)(unsafe.Pointer(&l)), unsafe.Sizeof(l)))
	r.set.QueueBuffer(rngHeapSeed, 0, 0, []driver.Buffer{r.seedBuf}, []int64{0}, []int64{int64(unsafe.Sizeof(l))})
	r.set.QueueImage(rngHeapOutput, 0, 0, []driver.ImageView{r.view})
	r.set.Flush(c.SlotIndex)
	return nil
}

func (r *RngGen) DrawFrame(f *frame.Frame, c *common.Common) {
	pso, ok := c.DB.PSO(RngGenPSO)
	if !ok {
		return
	}
	cb := f.CmdBuffer
	cb.Transition([]driver.Transition{{
		Barrier:      driver.Barrier{SyncBefore: driver.SNone, SyncAfter: driver.SComputeShading, AccessBefore: driver.ANone, AccessAfter: driver.AShaderWrite},
		LayoutBefore: driver.LUndefined,
		LayoutAfter:  driver.LCommon,
		Img:          r.output,
		Layers:       1,
		Levels:       1,
	}})
	cb.SetPipeline(pso.Pipeline)
	cb.SetDescTableComp(r.set.Table(), 0, []int{c.SlotIndex})
	cb.BeginWork(true)
	const group = 8
	cb.Dispatch((r.extent.Width+group-1)/group, (r.extent.Height+group-1)/group, 1)
	cb.EndWork()
	cb.Transition([]driver.Transition{{
		Barrier:      driver.Barrier{SyncBefore: driver.SComputeShading, SyncAfter: driver.SFragmentShading, AccessBefore: driver.AShaderWrite, AccessAfter: driver.AShaderRead},
		LayoutBefore: driver.LCommon,
		LayoutAfter:  driver.LShaderRead,
		Img:          r.output,
		Layers:       1,
		Levels:       1,
	}})
}

func (r *RngGen) RecreateResources(extent driver.Dim3D) error {
	if r.view != nil {
		r.view.Destroy()
	}
	if r.output != nil {
		r.output.Destroy()
	}
	img, err := r.gpu.NewImage(driver.R32f, extent, 1, 1, 1, driver.UShaderRead|driver.UShaderWrite)
	if err != nil {
		return err
	}
	view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	if err != nil {
		img.Destroy()
		return err
	}
	r.output, r.view, r.extent = img, view, extent
	return nil
}

// Output returns the view of the generated noise image, for
// GBufferSample to bind as a sampled input.
func (r *RngGen) Output() driver.ImageView { return r.view }

func (r *RngGen) Destroy() {
	if r == nil {
		return
	}
	if r.view != nil {
		r.view.Destroy()
	}
	if r.output != nil {
		r.output.Destroy()
	}
	r.seedBuf.Destroy()
	r.set.Destroy()
	*r = RngGen{}
}
