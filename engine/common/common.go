// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package common implements the per-frame state every
// engine/pass.Pass reads or writes: the live scene, the
// shader database passes pull pipelines from, and the
// constant/storage buffers the camera, instance and material
// layouts get packed into before a pass binds them.
//
// It is its own leaf package, rather than living on
// engine.Renderer directly, so that engine/pass can depend on
// it without engine/pass and package engine importing each
// other: engine.Renderer holds a []pass.Pass, and pass.Pass's
// methods take a *common.Common, so common must sit below
// both. Package engine re-exports the type spec.md's pass
// protocol calls engine.Common via a type alias.
package common

import (
	"unsafe"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/internal/shader"
	"hybridrender.dev/hri/engine/scene"
	"hybridrender.dev/hri/engine/shaderdb"
)

// Initial instance/material storage buffer capacities, in
// element count. Grown by doubling as the scene outgrows
// them (see growInstances/growMaterials).
const (
	minInstanceCapacity = 256
	minMaterialCapacity = 64
)

// Common is the per-frame state shared across the pass
// graph. Nothing here is safe for concurrent use: a
// Renderer serializes scene edits and UpdateCamera/
// UpdateScene calls against frame recording the same way
// engine/frame.Core serializes everything else.
type Common struct {
	GPU   driver.GPU
	DB    *shaderdb.DB
	Scene *scene.Scene

	// FrameIndex is the monotonic frame counter fed to
	// shader.CameraLayout.SetFrameIndex and the
	// ray-generation pass's seed derivation.
	FrameIndex uint32

	// SubFrameIndex counts progressive path-tracing
	// accumulation steps since the last ResetAccumulation.
	SubFrameIndex uint32

	// PingPong selects which of the path-tracing pass's two
	// accumulation images is the current write target.
	PingPong int

	// Seed is the normalized random seed handed to
	// shader.CameraLayout.SetSeed for the current frame.
	Seed float32

	// SlotIndex is the frame.Core slot the frame about to be
	// recorded occupies. PrepareFrame implementations pass it
	// to their engine/descset.Manager.Flush so writes land on
	// the heap copy the GPU is not currently reading, without
	// PrepareFrame needing a *frame.Frame of its own.
	SlotIndex int

	cameraBuf driver.Buffer

	instanceBuf driver.Buffer
	instanceCap int

	materialBuf driver.Buffer
	materialCap int
}

// New creates a Common backed by gpu, reading pipelines from
// db and scene data from sc. The camera, instance and
// material buffers are allocated up front, the latter two
// sized for minInstanceCapacity/minMaterialCapacity entries
// and grown on demand by UpdateScene.
func New(gpu driver.GPU, db *shaderdb.DB, sc *scene.Scene) (*Common, error) {
	cameraBuf, err := gpu.NewBuffer(layoutSize[shader.CameraLayout](), true, driver.UShaderConst)
	if err != nil {
		return nil, err
	}
	c := &Common{GPU: gpu, DB: db, Scene: sc, cameraBuf: cameraBuf}
	if err := c.growInstances(minInstanceCapacity); err != nil {
		c.Destroy()
		return nil, err
	}
	if err := c.growMaterials(minMaterialCapacity); err != nil {
		c.Destroy()
		return nil, err
	}
	return c, nil
}

// CameraBuffer returns the constant buffer holding the
// current frame's shader.CameraLayout.
func (c *Common) CameraBuffer() driver.Buffer { return c.cameraBuf }

// InstanceBuffer returns the storage buffer holding every
// live instance's shader.InstanceLayout, in Scene's
// InstanceID slot order.
func (c *Common) InstanceBuffer() driver.Buffer { return c.instanceBuf }

// MaterialBuffer returns the storage buffer holding every
// live material's shader.MaterialLayout, in MaterialID order.
func (c *Common) MaterialBuffer() driver.Buffer { return c.materialBuf }

func layoutSize[T any]() int64 {
	var z T
	return int64(unsafe.Sizeof(z))
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (c *Common) growInstances(n int) error {
	if n <= c.instanceCap {
		return nil
	}
	buf, err := c.GPU.NewBuffer(int64(n)*layoutSize[shader.InstanceLayout](), true,
		driver.UShaderRead|driver.UShaderWrite)
	if err != nil {
		return err
	}
	if c.instanceBuf != nil {
		c.instanceBuf.Destroy()
	}
	c.instanceBuf, c.instanceCap = buf, n
	return nil
}

func (c *Common) growMaterials(n int) error {
	if n <= c.materialCap {
		return nil
	}
	buf, err := c.GPU.NewBuffer(int64(n)*layoutSize[shader.MaterialLayout](), true,
		driver.UShaderRead)
	if err != nil {
		return err
	}
	if c.materialBuf != nil {
		c.materialBuf.Destroy()
	}
	c.materialBuf, c.materialCap = buf, n
	return nil
}

// UpdateCamera packs Scene.Camera's current state into the
// camera constant buffer for the frame about to be recorded.
// Callers must have set FrameIndex and Seed for the frame
// first.
func (c *Common) UpdateCamera() {
	l := c.Scene.Camera.Layout(c.FrameIndex, c.Seed)
	copy(c.cameraBuf.Bytes(), unsafe.Slice((*byte)(unsafe.Pointer(&l)), unsafe.Sizeof(l)))
}

// UpdateScene packs every live instance and material into
// the instance/material storage buffers, growing either one
// first if the scene has outgrown its current capacity.
func (c *Common) UpdateScene() error {
	if n := c.Scene.InstanceCount(); n > c.instanceCap {
		if err := c.growInstances(nextPow2(n)); err != nil {
			return err
		}
	}
	instLayouts := c.Scene.InstanceLayouts(make([]shader.InstanceLayout, 0, c.Scene.InstanceCount()))
	if len(instLayouts) > 0 {
		dst := unsafe.Slice((*shader.InstanceLayout)(unsafe.Pointer(&c.instanceBuf.Bytes()[0])), len(instLayouts))
		copy(dst, instLayouts)
	}

	matLayouts := c.Scene.MaterialLayouts(nil)
	if n := len(matLayouts); n > c.materialCap {
		if err := c.growMaterials(nextPow2(n)); err != nil {
			return err
		}
	}
	if len(matLayouts) > 0 {
		dst := unsafe.Slice((*shader.MaterialLayout)(unsafe.Pointer(&c.materialBuf.Bytes()[0])), len(matLayouts))
		copy(dst, matLayouts)
	}
	return nil
}

// AdvanceFrame is called once per frame, after the frame's
// command buffer has been submitted: it snapshots the
// current camera into Scene.Camera's previous-frame slot and
// advances the monotonic frame and path-tracing sub-frame
// counters.
func (c *Common) AdvanceFrame() {
	c.Scene.Camera.Advance()
	c.FrameIndex++
	c.SubFrameIndex++
}

// ResetAccumulation restarts the path-tracing reference
// mode's progressive accumulation (e.g. after a camera cut
// or a scene edit), discarding whichever ping-pong image
// held the prior accumulation.
func (c *Common) ResetAccumulation() {
	c.SubFrameIndex = 0
	c.PingPong = 0
}

// Destroy releases the camera, instance and material
// buffers. It does not touch Scene or DB, since Common does
// not own either.
func (c *Common) Destroy() {
	if c == nil {
		return
	}
	if c.cameraBuf != nil {
		c.cameraBuf.Destroy()
	}
	if c.instanceBuf != nil {
		c.instanceBuf.Destroy()
	}
	if c.materialBuf != nil {
		c.materialBuf.Destroy()
	}
	*c = Common{}
}
