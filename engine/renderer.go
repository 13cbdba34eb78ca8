// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements the core of a hybrid real-time
// renderer: rasterized and ray-traced G-buffer passes, ray
// traced direct illumination, an offline-quality path-traced
// reference mode, deferred shading and presentation.
//
// Engine-wide tuning knobs (frames in flight, ray recursion
// depth, descriptor pool capacity, render mode selection) live
// in package config, not here.
package engine

import (
	"math/rand"

	"github.com/pkg/errors"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/frame"
	"hybridrender.dev/hri/engine/internal/ctxt"
	"hybridrender.dev/hri/engine/internal/shader"
	"hybridrender.dev/hri/engine/pass"
	"hybridrender.dev/hri/engine/scene"
	"hybridrender.dev/hri/engine/shaderdb"
	"hybridrender.dev/hri/internal/config"
	"hybridrender.dev/hri/wsi"
)

const rendPrefix = "engine: "

func newRendErr(reason string) error { return errors.New(rendPrefix + reason) }

// GPU returns the driver.GPU the package selected at
// initialization (see engine/internal/ctxt). cmd/hrictl uses
// it to open a shaderdb.DB before constructing a Renderer.
func GPU() driver.GPU { return ctxt.GPU() }

// Renderer sequences the eight-stage hybrid frame: RNG
// generation, the two-LOD G-buffer layout pass, G-buffer
// sampling, direct illumination or path tracing (mutually
// exclusive, chosen by config.RenderMode), deferred shading,
// and, for an Onscreen instance, presentation and the UI
// overlay. Onscreen and Offscreen embed a Renderer (call
// either NewOnscreen or NewOffscreen to create a valid one).
type Renderer struct {
	gpu  driver.GPU
	ab   driver.AccelStructBuilder
	core *frame.Core
	cmn  *Common
	cfg  config.Config
	splr driver.Sampler

	rng      *pass.RngGen
	gbuf     *pass.GBufferLayout
	smpl     *pass.GBufferSample
	di       *pass.DirectIllum
	pt       *pass.PathTrace
	deferred *pass.DeferredShade
	present  *pass.Present // nil for Offscreen
	ui       *pass.UI      // nil for Offscreen

	// passes holds every pass in the fixed recording order
	// spec.md §4.5 requires: RNG, G-buffer layout, G-buffer
	// sample, direct-illum-or-path-trace, deferred shade, and
	// (Onscreen only) present, UI. PrepareFrame and DrawFrame
	// both walk it in this order, since no pass here depends
	// on another pass having already recorded commands, only
	// on the views/buffers wired up at construction time.
	passes []pass.Pass
}

// newRenderer builds every pass but present/UI, which only
// NewOnscreen wires (they write directly into swap images).
// extent is the initial target size: swapchain extent for an
// Onscreen renderer, the requested offscreen resolution
// otherwise.
func newRenderer(gpu driver.GPU, core *frame.Core, cfg config.Config, db *shaderdb.DB, scn *scene.Scene, extent driver.Dim3D) (*Renderer, error) {
	ab, ok := gpu.(driver.AccelStructBuilder)
	if !ok {
		return nil, newRendErr("GPU does not support acceleration structure building")
	}
	rt, ok := gpu.(driver.RTPipeliner)
	if !ok {
		return nil, newRendErr("GPU does not support ray-tracing pipelines")
	}

	cmn, err := common.New(gpu, db, scn)
	if err != nil {
		return nil, err
	}
	splr, err := gpu.NewSampler(&driver.Sampling{
		Min: driver.FLinear, Mag: driver.FLinear, Mipmap: driver.FNoMipmap,
		AddrU: driver.AClamp, AddrV: driver.AClamp, AddrW: driver.AClamp,
		MaxLOD: 1,
	})
	if err != nil {
		cmn.Destroy()
		return nil, err
	}

	r := &Renderer{gpu: gpu, ab: ab, core: core, cmn: cmn, cfg: cfg, splr: splr}
	if err := r.buildCorePasses(rt, extent); err != nil {
		r.Destroy()
		return nil, err
	}
	return r, nil
}

func (r *Renderer) buildCorePasses(rt driver.RTPipeliner, extent driver.Dim3D) error {
	gpu, copies := r.gpu, r.cfg.FramesInFlight

	seedHeap, err := shader.NewRngSeedHeap(gpu)
	if err != nil {
		return errors.Wrap(err, "engine: building RNG seed heap")
	}
	outputHeap, err := shader.NewRngOutputHeap(gpu)
	if err != nil {
		return errors.Wrap(err, "engine: building RNG output heap")
	}
	r.rng, err = pass.NewRngGen(gpu, copies, seedHeap, outputHeap, extent)
	if err != nil {
		return err
	}

	glHeap, err := shader.NewSceneHeap(gpu)
	if err != nil {
		return errors.Wrap(err, "engine: building G-buffer layout scene heap")
	}
	r.gbuf, err = pass.NewGBufferLayout(gpu, copies, glHeap, extent)
	if err != nil {
		return err
	}

	farHeap, err := shader.NewGBufferColorHeap(gpu)
	if err != nil {
		return errors.Wrap(err, "engine: building far-LOD color heap")
	}
	nearHeap, err := shader.NewGBufferColorHeap(gpu)
	if err != nil {
		return errors.Wrap(err, "engine: building near-LOD color heap")
	}
	noiseHeap, err := shader.NewNoiseHeap(gpu)
	if err != nil {
		return errors.Wrap(err, "engine: building noise heap")
	}
	paramsHeap, err := shader.NewParamsHeap(gpu)
	if err != nil {
		return errors.Wrap(err, "engine: building sample params heap")
	}
	r.smpl, err = pass.NewGBufferSample(gpu, copies, farHeap, nearHeap, noiseHeap, paramsHeap, r.splr, extent)
	if err != nil {
		return err
	}
	r.smpl.Bind(r.gbuf, r.rng.Output())

	if err := r.buildLightingPass(rt, extent); err != nil {
		return err
	}

	gbHeap, err := shader.NewGBufferColorHeap(gpu)
	if err != nil {
		return errors.Wrap(err, "engine: building deferred-shade G-buffer heap")
	}
	lightHeap, err := shader.NewLightHeap(gpu)
	if err != nil {
		return errors.Wrap(err, "engine: building deferred-shade light heap")
	}
	r.deferred, err = pass.NewDeferredShade(gpu, copies, gbHeap, lightHeap, r.splr, extent)
	if err != nil {
		return err
	}
	r.bindDeferredInputs()

	r.passes = []pass.Pass{r.rng, r.gbuf, r.smpl, r.lightingPass(), r.deferred}
	return nil
}

// buildLightingPass constructs exactly one of DirectIllum
// (ModeRealtime) or PathTrace (ModeReference), per
// config.RenderMode: the two are mutually exclusive for a
// given Renderer.
func (r *Renderer) buildLightingPass(rt driver.RTPipeliner, extent driver.Dim3D) error {
	gpu, copies := r.gpu, r.cfg.FramesInFlight
	switch r.cfg.RenderMode {
	case config.ModeReference:
		sceneHeap, err := shader.NewSceneHeap(gpu)
		if err != nil {
			return errors.Wrap(err, "engine: building path-trace scene heap")
		}
		rtHeap, err := shader.NewPathTraceRTHeap(gpu)
		if err != nil {
			return errors.Wrap(err, "engine: building path-trace RT heap")
		}
		pt, err := pass.NewPathTrace(gpu, rt, copies, sceneHeap, rtHeap, extent)
		if err != nil {
			return err
		}
		r.pt = pt
		return nil
	default:
		sceneHeap, err := shader.NewSceneHeap(gpu)
		if err != nil {
			return errors.Wrap(err, "engine: building direct-illum scene heap")
		}
		rtHeap, err := shader.NewDirectIllumRTHeap(gpu)
		if err != nil {
			return errors.Wrap(err, "engine: building direct-illum RT heap")
		}
		di, err := pass.NewDirectIllum(gpu, rt, copies, sceneHeap, rtHeap, extent)
		if err != nil {
			return err
		}
		r.di = di
		return nil
	}
}

// lightingPass returns whichever of DirectIllum/PathTrace this
// Renderer built, as a pass.Pass.
func (r *Renderer) lightingPass() pass.Pass {
	if r.di != nil {
		return r.di
	}
	return r.pt
}

// bindDeferredInputs wires DeferredShade's G-buffer and
// lighting inputs to the sampled G-buffer and whichever
// lighting pass is active. Called once after construction and
// again from RecreateResources/the ping-pong flip, since both
// inputs' view identities can change.
func (r *Renderer) bindDeferredInputs() {
	views := make([]driver.ImageView, pass.GBLODMask)
	for i := range views {
		views[i] = r.smpl.Output(i)
	}
	var light driver.ImageView
	if r.di != nil {
		light = r.di.Output()
	} else {
		light = r.pt.Output(r.cmn)
	}
	r.deferred.Bind(views, light)
}

// BindShaderTable wires the shader binding table built from
// the active lighting pass's registered ray-generation/miss/
// hit groups. Callers register PSOs and build this table after
// construction, once shader code is available; DrawFrame
// records a no-op for the lighting pass until this is called.
func (r *Renderer) BindShaderTable(tbl driver.ShaderTable) {
	if r.di != nil {
		r.di.BindTable(tbl)
	} else {
		r.pt.BindTable(tbl)
	}
}

// DrawFrame records and submits one frame, implementing the
// eight-step sequence spec.md §4.5 defines: acquire, update the
// shared per-frame state (camera, TLAS, sub-frame index), run
// every pass's PrepareFrame in dependency order, record every
// pass's DrawFrame in the fixed order above, submit/present,
// then advance the frame counters. lists carries this frame's
// UI draw lists (nil for an Offscreen renderer, or a renderer
// with no UI library wired up).
func (r *Renderer) DrawFrame(lists []pass.DrawList) error {
	f, err := r.core.StartFrame()
	if err != nil {
		return errors.Wrap(err, "engine: starting frame")
	}

	r.cmn.SlotIndex = f.Slot
	r.cmn.Seed = rand.Float32()
	r.cmn.UpdateCamera()
	if err := r.cmn.Scene.BuildTLAS(r.ab); err != nil {
		return errors.Wrap(err, "engine: building TLAS")
	}
	if err := r.cmn.UpdateScene(); err != nil {
		return errors.Wrap(err, "engine: updating scene buffers")
	}
	if r.ui != nil {
		r.ui.SetDrawLists(lists)
	}

	for _, p := range r.passes {
		if err := p.PrepareFrame(r.cmn); err != nil {
			return errors.Wrapf(err, "engine: preparing pass %s", p.Kind())
		}
	}
	for _, p := range r.passes {
		p.DrawFrame(f, r.cmn)
	}

	if err := r.core.EndFrame(f); err != nil {
		return errors.Wrap(err, "engine: ending frame")
	}
	r.cmn.AdvanceFrame()

	// PathTrace flipped PingPong while recording; DeferredShade's
	// bound light view must track the new read target for the
	// frame that is about to start.
	if r.pt != nil {
		r.bindDeferredInputs()
	}
	return nil
}

// Common returns the per-frame state this Renderer shares with
// its passes, for callers that edit the scene or register PSOs
// against common.Common.DB between frames.
func (r *Renderer) Common() *Common { return r.cmn }

// recreateCore rebuilds every size-dependent pass resource at
// extent, in the same dependency order Renderer.passes walks.
func (r *Renderer) recreateCore(extent driver.Dim3D) error {
	for _, p := range r.passes {
		if err := p.RecreateResources(extent); err != nil {
			return errors.Wrapf(err, "engine: recreating pass %s", p.Kind())
		}
	}
	r.smpl.Bind(r.gbuf, r.rng.Output())
	r.bindDeferredInputs()
	return nil
}

// Destroy releases every pass, the shared sampler, Common's
// buffers and the frame scheduler. It does not destroy a
// swapchain or close a window; Onscreen.Destroy handles those.
func (r *Renderer) Destroy() {
	if r == nil {
		return
	}
	for _, p := range r.passes {
		p.Destroy()
	}
	if r.splr != nil {
		r.splr.Destroy()
	}
	r.cmn.Destroy()
	if r.core != nil {
		r.core.Destroy()
	}
	*r = Renderer{}
}

// Onscreen is a Renderer that presents to a wsi.Window.
type Onscreen struct {
	Renderer
	win wsi.Window
	sc  driver.Swapchain
}

// NewOnscreen creates a renderer that presents into win,
// running config.FramesInFlight frames pipelined concurrently
// and config.RenderMode's pass graph.
func NewOnscreen(win wsi.Window, cfg config.Config, db *shaderdb.DB, scn *scene.Scene) (*Onscreen, error) {
	if win == nil {
		return nil, newRendErr("nil wsi.Window in call to NewOnscreen")
	}
	gpu := ctxt.GPU()
	pres, ok := gpu.(driver.Presenter)
	if !ok {
		return nil, newRendErr("NewOnscreen requires driver.Presenter")
	}
	sc, err := pres.NewSwapchain(win, cfg.VSyncMode)
	if err != nil {
		return nil, err
	}
	core, err := frame.NewCore(gpu, sc, cfg.FramesInFlight)
	if err != nil {
		sc.Destroy()
		return nil, err
	}
	extent := sc.Desc().Extent
	rend, err := newRenderer(gpu, core, cfg, db, scn, extent)
	if err != nil {
		core.Destroy()
		sc.Destroy()
		return nil, err
	}

	colorHeap, err := shader.NewColorHeap(gpu)
	if err != nil {
		rend.Destroy()
		sc.Destroy()
		return nil, errors.Wrap(err, "engine: building present color heap")
	}
	present, err := pass.NewPresent(gpu, cfg.FramesInFlight, colorHeap, sc.Views(), extent, rend.splr)
	if err != nil {
		rend.Destroy()
		sc.Destroy()
		return nil, err
	}
	present.Bind(rend.deferred.Output())

	ui, err := pass.NewUI(gpu, sc.Views(), extent)
	if err != nil {
		present.Destroy()
		rend.Destroy()
		sc.Destroy()
		return nil, err
	}

	rend.present = present
	rend.ui = ui
	rend.passes = append(rend.passes, present, ui)

	o := &Onscreen{Renderer: *rend, win: win, sc: sc}
	core.SetOnSwapchainInvalidate(o.onInvalidate)
	return o, nil
}

// Window returns the wsi.Window this renderer presents into.
func (o *Onscreen) Window() wsi.Window { return o.win }

// onInvalidate is registered with frame.Core and runs whenever
// the swapchain is recreated (window resize, or a stale
// swapchain reported by Next/Present): it resizes every
// offscreen pass's attachments and rebuilds Present/UI's
// framebuffers against the fresh swap image views.
func (o *Onscreen) onInvalidate(desc driver.SwapchainDesc) {
	if err := o.recreateCore(desc.Extent); err != nil {
		return
	}
	if err := o.present.RecreateViews(o.sc.Views(), desc.Extent); err != nil {
		return
	}
	o.present.Bind(o.deferred.Output())
	if err := o.ui.RecreateViews(o.sc.Views(), desc.Extent); err != nil {
		return
	}
}

// Destroy releases o's passes and buffers, then its swapchain.
// It does not close the wsi.Window.
func (o *Onscreen) Destroy() {
	if o == nil {
		return
	}
	o.Renderer.Destroy()
	if o.sc != nil {
		o.sc.Destroy()
	}
	o.win = nil
	o.sc = nil
}

// Offscreen is a Renderer that targets an internally managed
// color image rather than a window's swap chain. It runs no
// Present or UI pass; DeferredShade's output is the final
// image.
type Offscreen struct {
	Renderer
}

// NewOffscreen creates a renderer targeting a width x height
// image, running config.FramesInFlight frames pipelined
// concurrently and config.RenderMode's pass graph.
func NewOffscreen(width, height int, cfg config.Config, db *shaderdb.DB, scn *scene.Scene) (*Offscreen, error) {
	gpu := ctxt.GPU()
	core, err := frame.NewCore(gpu, nil, cfg.FramesInFlight)
	if err != nil {
		return nil, err
	}
	extent := driver.Dim3D{Width: width, Height: height, Depth: 1}
	rend, err := newRenderer(gpu, core, cfg, db, scn, extent)
	if err != nil {
		core.Destroy()
		return nil, err
	}
	return &Offscreen{Renderer: *rend}, nil
}

// Target returns the view of the final shaded image, valid
// until the next RecreateResources-triggering resize.
func (o *Offscreen) Target() driver.ImageView { return o.deferred.Output() }

// Resize rebuilds every pass's attachments at the new
// resolution. Unlike Onscreen, nothing drives this
// automatically: callers own the offscreen target's size.
func (o *Offscreen) Resize(width, height int) error {
	return o.recreateCore(driver.Dim3D{Width: width, Height: height, Depth: 1})
}
