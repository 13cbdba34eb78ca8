// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package pass implements the render passes that make up a
// frame: RNG generation, the two-LOD G-buffer layout pass,
// G-buffer sampling, direct illumination, path tracing,
// deferred shading, present and UI.
//
// A Pass never imports package engine: engine.Renderer holds
// a []Pass, so the reverse import would form a cycle. Instead
// every Pass method takes the leaf types engine/common.Common
// and engine/frame.Frame, which engine re-exports as
// engine.Common for callers outside this package.
package pass

import (
	"fmt"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/descset"
	"hybridrender.dev/hri/engine/frame"
)

// queueWholeBuffer queues a descriptor write covering buf's
// entire range at descriptor nr of heap, the binding pattern
// every pass uses for the shared camera/instance/material
// storage buffers common.Common owns.
func queueWholeBuffer(set *descset.Manager, heap, nr int, buf driver.Buffer) {
	set.QueueBuffer(heap, nr, 0, []driver.Buffer{buf}, []int64{0}, []int64{buf.Cap()})
}

// Kind tags a Pass with its role in the frame, in recording
// order (see Renderer.DrawFrame). It replaces a vtable: a
// single interface plus this tag lets the renderer special-case
// the two passes the active RenderMode can pick between
// (DirectIllum/PathTrace) without a type switch on the
// concrete pass type.
type Kind int

const (
	KindRngGen Kind = iota
	KindGBufferLayout
	KindGBufferSample
	KindDirectIllum
	KindPathTrace
	KindDeferredShade
	KindPresent
	KindUI
)

func (k Kind) String() string {
	switch k {
	case KindRngGen:
		return "rng-gen"
	case KindGBufferLayout:
		return "gbuffer-layout"
	case KindGBufferSample:
		return "gbuffer-sample"
	case KindDirectIllum:
		return "direct-illum"
	case KindPathTrace:
		return "path-trace"
	case KindDeferredShade:
		return "deferred-shade"
	case KindPresent:
		return "present"
	case KindUI:
		return "ui"
	default:
		return fmt.Sprintf("pass.Kind(%d)", int(k))
	}
}

// Pass is a single stage of the frame. Implementations do not
// share mutable state directly with one another: all
// cross-pass information flows through the common.Common a
// pass is given, or through image layout transitions the
// next pass can observe.
type Pass interface {
	Kind() Kind

	// PrepareFrame runs once per frame before command
	// recording begins. Implementations queue descriptor
	// writes against their engine.DescSetManager here and
	// flush them for the current frame slot.
	PrepareFrame(c *common.Common) error

	// DrawFrame records commands into f's command buffer.
	// It is responsible for any barriers/transitions its
	// own inputs and outputs require.
	DrawFrame(f *frame.Frame, c *common.Common)

	// RecreateResources rebuilds any size-dependent
	// resources (attachments, framebuffers) at extent.
	// Passes with no size-dependent state return nil.
	RecreateResources(extent driver.Dim3D) error
}

// AttachmentConfig describes one render target an
// attachmentSet allocates, grounded in the teacher's
// engine.TexParam/makeViews pair but narrowed to the single
// 2D, single-layer, single-sample render target every pass in
// this package needs — the teacher's full arrayed/cube/
// multisample texture generality has no consumer here.
type AttachmentConfig struct {
	Format driver.PixelFmt
	Usage  driver.Usage
	Load   driver.LoadOp // load op applied on begin; store is always SStore
	Clear  driver.ClearValue
}

// attachment is one allocated render target: the backing
// image, its single 2D view, and the clear/load parameters
// from the AttachmentConfig it was built from.
type attachment struct {
	img driver.Image
	cfg AttachmentConfig
}

// attachmentSet owns the images and views for a set of render
// targets at a given extent, rebuilding them on Recreate. It
// does not own a driver.RenderPass: callers create that once
// (the attachment formats/sample counts are fixed for the
// process lifetime) and only ask attachmentSet to rebuild the
// framebuffer-backing images/views when the extent changes.
//
// This plays the role the teacher's texture allocator would
// for this package, narrowed down: its full generality
// (arrays, cube maps, multisampling) is unused by any pass
// here, so a minimal, self-contained allocator was written
// instead of carrying that generality over unused.
type attachmentSet struct {
	gpu    driver.GPU
	extent driver.Dim3D
	atts   []attachment
	views  []driver.ImageView
}

func newAttachmentSet(gpu driver.GPU, extent driver.Dim3D, cfgs []AttachmentConfig) (*attachmentSet, error) {
	s := &attachmentSet{gpu: gpu}
	if err := s.Recreate(extent, cfgs); err != nil {
		return nil, err
	}
	return s, nil
}

// Recreate drops the previous images/views (if any) and
// builds new ones at extent for each cfg in cfgs. cfgs may
// differ in length/format from the previous call only when
// called from newAttachmentSet; later calls (from
// Pass.RecreateResources) must pass the same cfgs shape.
func (s *attachmentSet) Recreate(extent driver.Dim3D, cfgs []AttachmentConfig) error {
	s.destroyImages()
	atts := make([]attachment, len(cfgs))
	views := make([]driver.ImageView, len(cfgs))
	for i, cfg := range cfgs {
		img, err := s.gpu.NewImage(cfg.Format, extent, 1, 1, 1, cfg.Usage)
		if err != nil {
			for j := 0; j < i; j++ {
				atts[j].img.Destroy()
			}
			return fmt.Errorf("pass: attachment %d: %w", i, err)
		}
		view, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
		if err != nil {
			img.Destroy()
			for j := 0; j < i; j++ {
				atts[j].img.Destroy()
			}
			return fmt.Errorf("pass: attachment %d view: %w", i, err)
		}
		atts[i] = attachment{img: img, cfg: cfg}
		views[i] = view
	}
	s.extent = extent
	s.atts = atts
	s.views = views
	return nil
}

func (s *attachmentSet) destroyImages() {
	for i := range s.views {
		if s.views[i] != nil {
			s.views[i].Destroy()
		}
	}
	for i := range s.atts {
		if s.atts[i].img != nil {
			s.atts[i].img.Destroy()
		}
	}
	s.views = nil
	s.atts = nil
}

// View returns the single 2D view of attachment i.
func (s *attachmentSet) View(i int) driver.ImageView { return s.views[i] }

// Image returns the backing image of attachment i, for
// transitions.
func (s *attachmentSet) Image(i int) driver.Image { return s.atts[i].img }

// Clear returns the clear values for every attachment, in
// order, for use in CmdBuffer.BeginPass.
func (s *attachmentSet) Clear() []driver.ClearValue {
	c := make([]driver.ClearValue, len(s.atts))
	for i := range s.atts {
		c[i] = s.atts[i].cfg.Clear
	}
	return c
}

func (s *attachmentSet) Destroy() { s.destroyImages() }

// Offscreen is the pass resource manager for render passes
// that target their own attachments (every pass but Present
// and UI, which write into the swapchain image instead).
// It owns a fixed driver.RenderPass plus one attachmentSet and
// one driver.Framebuf, rebuilt together on resize.
type Offscreen struct {
	gpu  driver.GPU
	rp   driver.RenderPass
	set  *attachmentSet
	fb   driver.Framebuf
	cfgs []AttachmentConfig
}

// NewOffscreen builds the render pass described by att/sub and
// an initial attachmentSet/framebuffer at extent.
func NewOffscreen(gpu driver.GPU, att []driver.Attachment, sub []driver.Subpass, cfgs []AttachmentConfig, extent driver.Dim3D) (*Offscreen, error) {
	rp, err := gpu.NewRenderPass(att, sub)
	if err != nil {
		return nil, err
	}
	set, err := newAttachmentSet(gpu, extent, cfgs)
	if err != nil {
		rp.Destroy()
		return nil, err
	}
	o := &Offscreen{gpu: gpu, rp: rp, set: set, cfgs: cfgs}
	if err := o.buildFB(extent); err != nil {
		set.Destroy()
		rp.Destroy()
		return nil, err
	}
	return o, nil
}

func (o *Offscreen) buildFB(extent driver.Dim3D) error {
	fb, err := o.rp.NewFB(o.set.views, extent.Width, extent.Height, 1)
	if err != nil {
		return err
	}
	o.fb = fb
	return nil
}

// RenderPass returns the underlying driver.RenderPass, for
// pipeline creation.
func (o *Offscreen) RenderPass() driver.RenderPass { return o.rp }

// View returns the view of attachment i, for binding as a
// sampled input in a later pass.
func (o *Offscreen) View(i int) driver.ImageView { return o.set.View(i) }

// Image returns the backing image of attachment i, for
// transitions.
func (o *Offscreen) Image(i int) driver.Image { return o.set.Image(i) }

// BeginPass binds the framebuffer and issues the stored clear
// values. Viewport/scissor are set to the attachment extent;
// callers that need a different viewport set it afterward.
func (o *Offscreen) BeginPass(f *frame.Frame) {
	f.CmdBuffer.BeginPass(o.rp, o.fb, o.set.Clear())
	extent := o.set.extent
	f.CmdBuffer.SetViewport([]driver.Viewport{{
		Width: float32(extent.Width), Height: float32(extent.Height), Zfar: 1,
	}})
	f.CmdBuffer.SetScissor([]driver.Scissor{{Width: int(extent.Width), Height: int(extent.Height)}})
}

// EndPass ends the render pass begun by BeginPass.
func (o *Offscreen) EndPass(f *frame.Frame) { f.CmdBuffer.EndPass() }

// Recreate drops and rebuilds the images, views and
// framebuffer at the new extent. The render pass itself is
// preserved, per spec.md §4.4.
func (o *Offscreen) Recreate(extent driver.Dim3D) error {
	if o.fb != nil {
		o.fb.Destroy()
		o.fb = nil
	}
	if err := o.set.Recreate(extent, o.cfgs); err != nil {
		return err
	}
	return o.buildFB(extent)
}

func (o *Offscreen) Destroy() {
	if o == nil {
		return
	}
	if o.fb != nil {
		o.fb.Destroy()
	}
	o.set.Destroy()
	o.rp.Destroy()
	*o = Offscreen{}
}

// Swapchain is the pass resource manager for passes that
// write directly into the swap image (Present, UI): one
// framebuffer per swap image, sharing a single render pass.
type Swapchain struct {
	gpu driver.GPU
	rp  driver.RenderPass
	fbs []driver.Framebuf
}

// NewSwapchain builds the render pass described by att/sub and
// one framebuffer per view in views, each sized extent.
func NewSwapchain(gpu driver.GPU, att []driver.Attachment, sub []driver.Subpass, views []driver.ImageView, extent driver.Dim3D) (*Swapchain, error) {
	rp, err := gpu.NewRenderPass(att, sub)
	if err != nil {
		return nil, err
	}
	s := &Swapchain{gpu: gpu, rp: rp}
	if err := s.buildFBs(views, extent); err != nil {
		rp.Destroy()
		return nil, err
	}
	return s, nil
}

func (s *Swapchain) buildFBs(views []driver.ImageView, extent driver.Dim3D) error {
	fbs := make([]driver.Framebuf, len(views))
	for i, v := range views {
		fb, err := s.rp.NewFB([]driver.ImageView{v}, extent.Width, extent.Height, 1)
		if err != nil {
			for j := 0; j < i; j++ {
				fbs[j].Destroy()
			}
			return err
		}
		fbs[i] = fb
	}
	s.fbs = fbs
	return nil
}

// RenderPass returns the underlying driver.RenderPass.
func (s *Swapchain) RenderPass() driver.RenderPass { return s.rp }

// BeginPass binds the framebuffer for f.ImageIndex and issues
// the given clear values.
func (s *Swapchain) BeginPass(f *frame.Frame, clear []driver.ClearValue) {
	f.CmdBuffer.BeginPass(s.rp, s.fbs[f.ImageIndex], clear)
	f.CmdBuffer.SetViewport([]driver.Viewport{{
		Width: float32(f.Extent.Width), Height: float32(f.Extent.Height), Zfar: 1,
	}})
	f.CmdBuffer.SetScissor([]driver.Scissor{{Width: int(f.Extent.Width), Height: int(f.Extent.Height)}})
}

func (s *Swapchain) EndPass(f *frame.Frame) { f.CmdBuffer.EndPass() }

// Recreate rebuilds the framebuffers against the new set of
// swap image views/extent. The render pass itself is
// preserved.
func (s *Swapchain) Recreate(views []driver.ImageView, extent driver.Dim3D) error {
	for _, fb := range s.fbs {
		fb.Destroy()
	}
	s.fbs = nil
	return s.buildFBs(views, extent)
}

func (s *Swapchain) Destroy() {
	if s == nil {
		return
	}
	for _, fb := range s.fbs {
		fb.Destroy()
	}
	s.rp.Destroy()
	*s = Swapchain{}
}
