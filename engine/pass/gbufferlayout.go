// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pass

import (
	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/descset"
	"hybridrender.dev/hri/engine/frame"
	"hybridrender.dev/hri/engine/scene"
)

// GBuffer attachment indices, shared by both the far and near
// LOD copies (spec.md §4.6.2): albedo, emission, specular,
// transmittance, normal, LOD-mask, plus depth.
const (
	GBAlbedo = iota
	GBEmission
	GBSpecular
	GBTransmittance
	GBNormal
	GBLODMask
	gbColorCount
)

const GBufferLayoutPSO = "gbuffer-layout"

// Heap index of the shared camera/instance/material scene
// descriptor set, bound identically for both LOD copies.
const glHeapScene = 0

func gbufferAttachmentConfigs() []AttachmentConfig {
	clear := driver.ClearValue{Color: [4]float32{0, 0, 0, 0}}
	cfgs := make([]AttachmentConfig, gbColorCount+1)
	formats := [gbColorCount]driver.PixelFmt{
		GBAlbedo:        driver.RGBA8un,
		GBEmission:      driver.RGBA16f,
		GBSpecular:      driver.RGBA8un,
		GBTransmittance: driver.RGBA8un,
		GBNormal:        driver.RGBA16f,
		GBLODMask:       driver.R8un,
	}
	for i, f := range formats {
		cfgs[i] = AttachmentConfig{Format: f, Usage: driver.URenderTarget | driver.UShaderSample, Load: driver.LClear, Clear: clear}
	}
	cfgs[gbColorCount] = AttachmentConfig{
		Format: driver.D32f, Usage: driver.URenderTarget, Load: driver.LClear,
		Clear: driver.ClearValue{Depth: 1},
	}
	return cfgs
}

func gbufferRenderPassDesc() ([]driver.Attachment, []driver.Subpass) {
	att := make([]driver.Attachment, gbColorCount+1)
	for i := range att {
		att[i] = driver.Attachment{Samples: 1, Load: [2]driver.LoadOp{driver.LClear, driver.LDontCare}, Store: [2]driver.StoreOp{driver.SStore, driver.SDontCare}}
	}
	sub := []driver.Subpass{{Color: []int{0, 1, 2, 3, 4, 5}, DS: gbColorCount}}
	return att, sub
}

// lodCopy is one of GBufferLayout's two render targets: a
// full G-buffer attachment set drawn from either the far-LOD
// or the near-LOD instance subset.
type lodCopy struct {
	off *Offscreen
}

// GBufferLayout rasterizes the scene's opaque geometry twice,
// once per LOD tier, into two independent attachment sets
// sharing an identical layout (spec.md §4.6.2). The instance
// shader consults InstanceLayout's LOD mask to decide whether
// to write or discard for a given copy.
type GBufferLayout struct {
	gpu       driver.GPU
	set       *descset.Manager
	far, near lodCopy
}

// NewGBufferLayout builds both LOD copies at extent, plus the
// scene descriptor set (camera, instance, material buffers)
// both copies' draws read from.
func NewGBufferLayout(gpu driver.GPU, copies int, sceneHeap driver.DescHeap, extent driver.Dim3D) (*GBufferLayout, error) {
	att, sub := gbufferRenderPassDesc()
	cfgs := gbufferAttachmentConfigs()
	far, err := NewOffscreen(gpu, att, sub, cfgs, extent)
	if err != nil {
		return nil, err
	}
	near, err := NewOffscreen(gpu, att, sub, cfgs, extent)
	if err != nil {
		far.Destroy()
		return nil, err
	}
	set, err := descset.New(gpu, copies, sceneHeap)
	if err != nil {
		near.Destroy()
		far.Destroy()
		return nil, err
	}
	return &GBufferLayout{gpu: gpu, set: set, far: lodCopy{far}, near: lodCopy{near}}, nil
}

func (g *GBufferLayout) Kind() Kind { return KindGBufferLayout }

func (g *GBufferLayout) PrepareFrame(c *common.Common) error {
	queueWholeBuffer(g.set, glHeapScene, 0, c.CameraBuffer())
	queueWholeBuffer(g.set, glHeapScene, 1, c.InstanceBuffer())
	queueWholeBuffer(g.set, glHeapScene, 2, c.MaterialBuffer())
	g.set.Flush(c.SlotIndex)
	return nil
}

// Far returns the far-LOD copy's attachment set, for
// GBufferSample to bind as sampled inputs.
func (g *GBufferLayout) Far() *Offscreen { return g.far.off }

// Near returns the near-LOD copy's attachment set.
func (g *GBufferLayout) Near() *Offscreen { return g.near.off }

func (g *GBufferLayout) DrawFrame(f *frame.Frame, c *common.Common) {
	pso, ok := c.DB.PSO(GBufferLayoutPSO)
	if !ok {
		return
	}
	g.drawCopy(f, c, pso.Pipeline, g.far.off, false)
	g.drawCopy(f, c, pso.Pipeline, g.near.off, true)

	// A single memory barrier covers both copies: neither is
	// sampled until GBufferSample runs, after this pass
	// returns.
	f.CmdBuffer.Barrier([]driver.Barrier{{
		SyncBefore: driver.SColorOutput, SyncAfter: driver.SFragmentShading,
		AccessBefore: driver.AColorWrite, AccessAfter: driver.AShaderRead,
	}})
}

func (g *GBufferLayout) drawCopy(f *frame.Frame, c *common.Common, pso driver.Pipeline, off *Offscreen, near bool) {
	cb := f.CmdBuffer
	off.BeginPass(f)
	cb.SetPipeline(pso)
	cb.SetDescTableGraph(g.set.Table(), 0, []int{c.SlotIndex})
	for i := 0; i < c.Scene.InstanceCount(); i++ {
		inst, ok := c.Scene.Instance(scene.InstanceID(i))
		if !ok {
			continue
		}
		const nearBit = uint32(1)
		isNear := inst.LODMask&nearBit != 0
		if isNear != near {
			continue
		}
		drawGeometry(cb, &inst.Geom, i)
	}
	off.EndPass(f)
}

// drawGeometry binds a scene.DrawGeometry's vertex/index
// streams and issues the draw call for instance slot baseInst.
// driver.CmdBuffer has no push-constant call, so the
// {instance id, lod mask, model matrix} spec.md §4.6.2 calls a
// push constant already lives in the instance storage buffer
// (shader.InstanceLayout, packed by common.Common.UpdateScene);
// the shader reads its own slot back via
// gl_InstanceIndex/SV_InstanceID, which baseInst sets here.
func drawGeometry(cb driver.CmdBuffer, g *scene.DrawGeometry, baseInst int) {
	if len(g.VertexBuf) > 0 {
		cb.SetVertexBuf(0, g.VertexBuf, g.VertexOff)
	}
	if g.IndexBuf != nil {
		cb.SetIndexBuf(g.IndexFmt, g.IndexBuf, g.IndexOff)
		cb.DrawIndexed(g.IndexCount, 1, 0, 0, baseInst)
		return
	}
	cb.Draw(g.VertexCount, 1, 0, baseInst)
}

func (g *GBufferLayout) RecreateResources(extent driver.Dim3D) error {
	if err := g.far.off.Recreate(extent); err != nil {
		return err
	}
	return g.near.off.Recreate(extent)
}

func (g *GBufferLayout) Destroy() {
	if g == nil {
		return
	}
	g.set.Destroy()
	g.far.off.Destroy()
	g.near.off.Destroy()
	*g = GBufferLayout{}
}
