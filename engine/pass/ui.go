// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pass

import (
	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/frame"
)

const UIPSO = "ui"

// DrawList is the minimal vertex-buffer-per-draw-call UI
// payload this pass consumes: an immediate-mode UI library
// (e.g. a Dear ImGui binding) fills one per frame; this
// package only knows how to replay it.
type DrawList struct {
	VertexBuf  driver.Buffer
	VertexOff  int64
	IndexBuf   driver.Buffer
	IndexOff   int64
	IndexFmt   driver.IndexFmt
	IndexCount int
	Scissor    driver.Scissor
}

// UI loads the swap image (load-op LOAD, store-op STORE) and
// records the UI draw list over it (spec.md §4.6.8). It owns
// its own driver.RenderPass/framebuffer set over the same
// swap image views Present uses: the two passes cannot share
// a single driver.RenderPass, since Present's attachment uses
// LDontCare (it overwrites the whole image with a fullscreen
// triangle) while UI's must use LLoad, and a driver.Attachment's
// load op is fixed for the render pass's lifetime.
type UI struct {
	sc    *Swapchain
	lists []DrawList
}

// NewUI builds the pass over the swapchain's views/extent,
// with LLoad/SStore so it preserves whatever Present already
// wrote into the same image this frame.
func NewUI(gpu driver.GPU, views []driver.ImageView, extent driver.Dim3D) (*UI, error) {
	att := []driver.Attachment{{Samples: 1, Load: [2]driver.LoadOp{driver.LLoad, driver.LDontCare}, Store: [2]driver.StoreOp{driver.SStore, driver.SDontCare}}}
	sub := []driver.Subpass{{Color: []int{0}, DS: -1}}
	sc, err := NewSwapchain(gpu, att, sub, views, extent)
	if err != nil {
		return nil, err
	}
	return &UI{sc: sc}, nil
}

func (u *UI) Kind() Kind { return KindUI }

// SetDrawLists replaces the draw lists UI records this frame.
// The renderer calls this once per frame, after its UI
// library has finished building the frame's widgets.
func (u *UI) SetDrawLists(lists []DrawList) { u.lists = lists }

func (u *UI) PrepareFrame(c *common.Common) error { return nil }

func (u *UI) DrawFrame(f *frame.Frame, c *common.Common) {
	pso, ok := c.DB.PSO(UIPSO)
	if !ok || len(u.lists) == 0 {
		return
	}
	cb := f.CmdBuffer
	u.sc.BeginPass(f, nil) // LLoad ignores clear values
	cb.SetPipeline(pso.Pipeline)
	for _, l := range u.lists {
		cb.SetScissor([]driver.Scissor{l.Scissor})
		cb.SetVertexBuf(0, []driver.Buffer{l.VertexBuf}, []int64{l.VertexOff})
		cb.SetIndexBuf(l.IndexFmt, l.IndexBuf, l.IndexOff)
		cb.DrawIndexed(l.IndexCount, 1, 0, 0, 0)
	}
	u.sc.EndPass(f)
}

// RecreateResources rebuilds UI's framebuffers against a
// fresh set of swap image views at extent. Like Present, the
// new view list only arrives through the renderer's
// on-swapchain-invalidate callback, so the real work happens
// in RecreateViews; this satisfies the Pass interface.
func (u *UI) RecreateResources(extent driver.Dim3D) error { return nil }

// RecreateViews rebuilds UI's framebuffers against a fresh
// set of swap image views at extent.
func (u *UI) RecreateViews(views []driver.ImageView, extent driver.Dim3D) error {
	return u.sc.Recreate(views, extent)
}

func (u *UI) Destroy() {
	if u == nil {
		return
	}
	u.sc.Destroy()
	*u = UI{}
}
