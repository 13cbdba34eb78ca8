// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pass

import (
	"unsafe"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/descset"
	"hybridrender.dev/hri/engine/frame"
)

const GBufferSamplePSO = "gbuffer-sample"

// Resolved attachment indices, matching GBAlbedo..GBNormal's
// order (GBLODMask/depth have no resolved counterpart).
const (
	gbsColorCount = GBLODMask // albedo, emission, specular, transmittance, normal
)

// sampleParams is the resolution spec.md §4.6.3 calls a push
// constant; see GBufferLayout's drawGeometry comment for why
// this travels in a constant buffer instead.
type sampleParams struct {
	width, height uint32
	_             [8]byte
}

const (
	gbsHeapFar = iota
	gbsHeapNear
	gbsHeapNoise
	gbsHeapParams
)

// GBufferSample is the single fragment pass that reads both
// G-buffer copies and the RNG noise image via combined
// samplers and stochastically interpolates them, producing
// one sampled G-buffer (spec.md §4.6.3).
type GBufferSample struct {
	gpu      driver.GPU
	off      *Offscreen
	set      *descset.Manager
	splr     driver.Sampler
	paramBuf driver.Buffer

	farViews, nearViews []driver.ImageView
	noiseView           driver.ImageView
}

// NewGBufferSample builds the pass over far/near/noise input
// heaps and a params constant-buffer heap, sized for copies
// frame slots.
func NewGBufferSample(gpu driver.GPU, copies int, farHeap, nearHeap, noiseHeap, paramsHeap driver.DescHeap, splr driver.Sampler, extent driver.Dim3D) (*GBufferSample, error) {
	att := make([]driver.Attachment, gbsColorCount)
	for i := range att {
		att[i] = driver.Attachment{Samples: 1, Load: [2]driver.LoadOp{driver.LDontCare, driver.LDontCare}, Store: [2]driver.StoreOp{driver.SStore, driver.SDontCare}}
	}
	sub := []driver.Subpass{{Color: []int{0, 1, 2, 3, 4}, DS: -1}}
	cfgs := make([]AttachmentConfig, gbsColorCount)
	formats := [gbsColorCount]driver.PixelFmt{
		GBAlbedo:        driver.RGBA8un,
		GBEmission:      driver.RGBA16f,
		GBSpecular:      driver.RGBA8un,
		GBTransmittance: driver.RGBA8un,
		GBNormal:        driver.RGBA16f,
	}
	for i, f := range formats {
		cfgs[i] = AttachmentConfig{Format: f, Usage: driver.URenderTarget | driver.UShaderSample}
	}
	off, err := NewOffscreen(gpu, att, sub, cfgs, extent)
	if err != nil {
		return nil, err
	}
	set, err := descset.New(gpu, copies, farHeap, nearHeap, noiseHeap, paramsHeap)
	if err != nil {
		off.Destroy()
		return nil, err
	}
	paramBuf, err := gpu.NewBuffer(int64(unsafe.Sizeof(sampleParams{})), true, driver.UShaderConst)
	if err != nil {
		set.Destroy()
		off.Destroy()
		return nil, err
	}
	return &GBufferSample{gpu: gpu, off: off, set: set, splr: splr, paramBuf: paramBuf}, nil
}

func (s *GBufferSample) Kind() Kind { return KindGBufferSample }

// Bind wires the far/near G-buffer views and the RNG noise
// view into the descriptor heaps this pass reads. The
// renderer calls it once after construction and again after
// every RecreateResources, since those views change identity
// on resize.
func (s *GBufferSample) Bind(layout *GBufferLayout, noise driver.ImageView) {
	s.farViews = gbufferViews(layout.Far())
	s.nearViews = gbufferViews(layout.Near())
	s.noiseView = noise
}

// gbufferViews collects the sampled color attachments (not
// depth/LOD-mask) of a GBufferLayout copy, in GBAlbedo order.
func gbufferViews(off *Offscreen) []driver.ImageView {
	views := make([]driver.ImageView, gbsColorCount)
	for i := range views {
		views[i] = off.View(i)
	}
	return views
}

func (s *GBufferSample) PrepareFrame(c *common.Common) error {
	p := sampleParams{width: uint32(s.off.set.extent.Width), height: uint32(s.off.set.extent.Height)}
	copy(s.paramBuf.Bytes(), unsafe.Slice((*byte)(unsafe.Pointer(&p)), unsafe.Sizeof(p)))
	s.set.QueueBuffer(gbsHeapParams, 0, 0, []driver.Buffer{s.paramBuf}, []int64{0}, []int64{int64(unsafe.Sizeof(p))})
	if len(s.farViews) > 0 {
		s.set.QueueImage(gbsHeapFar, 0, 0, s.farViews)
	}
	if len(s.nearViews) > 0 {
		s.set.QueueImage(gbsHeapNear, 0, 0, s.nearViews)
	}
	if s.noiseView != nil {
		s.set.QueueImage(gbsHeapNoise, 0, 0, []driver.ImageView{s.noiseView})
	}
	s.set.QueueSampler(gbsHeapNoise, 1, 0, []driver.Sampler{s.splr})
	s.set.Flush(c.SlotIndex)
	return nil
}

func (s *GBufferSample) DrawFrame(f *frame.Frame, c *common.Common) {
	pso, ok := c.DB.PSO(GBufferSamplePSO)
	if !ok {
		return
	}
	s.off.BeginPass(f)
	f.CmdBuffer.SetPipeline(pso.Pipeline)
	f.CmdBuffer.SetDescTableGraph(s.set.Table(), 0, []int{c.SlotIndex})
	f.CmdBuffer.Draw(3, 1, 0, 0) // fullscreen triangle
	s.off.EndPass(f)
}

// Output returns the view of resolved attachment i, for
// DirectIllum/PathTrace to bind as sampled inputs.
func (s *GBufferSample) Output(i int) driver.ImageView { return s.off.View(i) }

func (s *GBufferSample) RecreateResources(extent driver.Dim3D) error { return s.off.Recreate(extent) }

func (s *GBufferSample) Destroy() {
	if s == nil {
		return
	}
	s.paramBuf.Destroy()
	s.set.Destroy()
	s.off.Destroy()
	*s = GBufferSample{}
}
