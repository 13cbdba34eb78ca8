// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package scene holds the minimal per-frame scene data the
// renderer core consumes: a camera, an instance list, a
// material list and the acceleration structures built over
// them. Scene editing, asset loading and animation remain
// external collaborators; this package only owns the data
// the pass graph reads and the handles spec.md's ownership
// rule assigns to it (BLAS/TLAS).
package scene

import (
	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/internal/shader"
	"hybridrender.dev/hri/linear"
)

// Camera holds the current and previous frame's view and
// projection state. Keeping both is what lets the
// path-tracing pass reproject accumulated radiance
// (shader.CameraLayout.SetPrevVP) and what lets the
// deferred-shade pass compute motion vectors from the
// G-buffer.
type Camera struct {
	View, Proj         linear.M4
	PrevView, PrevProj linear.M4
	Eye                linear.V3
	Viewport           driver.Viewport
}

// Advance copies the camera's current matrices into its
// previous-frame slot. Call it once per frame, after the
// previous frame's layout has been flushed and before
// updating View/Proj for the new frame.
func (c *Camera) Advance() {
	c.PrevView = c.View
	c.PrevProj = c.Proj
}

// Layout builds the shader.CameraLayout for the current
// frame's constant buffer.
func (c *Camera) Layout(frameIndex uint32, seed float32) shader.CameraLayout {
	var l shader.CameraLayout
	var vp, prevVP, inv linear.M4
	vp.Mul(&c.View, &c.Proj)
	prevVP.Mul(&c.PrevView, &c.PrevProj)
	inv.Invert(&vp)
	l.SetVP(&vp)
	l.SetInvVP(&inv)
	l.SetPrevVP(&prevVP)
	l.SetEye(&c.Eye)
	l.SetFrameIndex(frameIndex)
	l.SetSeed(seed)
	l.SetViewport(&c.Viewport)
	return l
}
