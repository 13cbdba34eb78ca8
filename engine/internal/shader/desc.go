// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Descriptor management.
//
// For portability, the following restrictions apply:
//
//	DescHeap per DescTable           | 4 (max)
//	DTexture/DSampler descriptors    | 16 (max)
//	DConstant descriptors            | 12 (max)
//	DImage/DBuffer descriptors       | 4 (max)
//	DConstant/DBuffer data alignment | 256 bytes (min)
//	DConstant/DBuffer data size      | 16 KiB (max)
//
// (the above names refer to the driver package).

package shader

import (
	"hybridrender.dev/hri/driver"
)

// GBufferColorCount is the number of sampled color channels a
// single G-buffer LOD copy exposes (albedo, emission,
// specular, transmittance, normal — the LOD mask and depth
// attachments have no sampled counterpart). engine/pass keeps
// its own copy of this count under the GBLODMask name; both
// must agree on the heap shapes below.
const GBufferColorCount = 5

func constantDesc(nr, stages int) driver.Descriptor {
	return driver.Descriptor{Type: driver.DConstant, Stages: driver.Stage(stages), Nr: nr, Len: 1}
}

func bufferDesc(nr, stages int) driver.Descriptor {
	return driver.Descriptor{Type: driver.DBuffer, Stages: driver.Stage(stages), Nr: nr, Len: 1}
}

func imageDesc(nr, stages int) driver.Descriptor {
	return driver.Descriptor{Type: driver.DImage, Stages: driver.Stage(stages), Nr: nr, Len: 1}
}

func accelStructDesc(nr, stages int) driver.Descriptor {
	return driver.Descriptor{Type: driver.DAccelStruct, Stages: driver.Stage(stages), Nr: nr, Len: 1}
}

func textureDesc(nr, stages, length int) driver.Descriptor {
	return driver.Descriptor{Type: driver.DTexture, Stages: driver.Stage(stages), Nr: nr, Len: length}
}

func samplerDesc(nr, stages int) driver.Descriptor {
	return driver.Descriptor{Type: driver.DSampler, Stages: driver.Stage(stages), Nr: nr, Len: 1}
}

const allStages = int(driver.SVertex | driver.SFragment | driver.SCompute)

// NewSceneHeap creates the heap shared by every pass that
// needs the per-frame camera constant plus the instance and
// material storage buffers: GBufferLayout (rasterizing) and
// DirectIllum/PathTrace (ray-tracing the same scene). All
// three descriptors carry every stage mask a consumer might
// need, since the heap's shape — not its stage visibility — is
// what must stay identical across those passes.
func NewSceneHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{
		constantDesc(0, allStages), // camera
		bufferDesc(1, allStages),   // instances
		bufferDesc(2, allStages),   // materials
	})
}

// NewRngSeedHeap creates RngGen's one-descriptor seed-constant
// heap.
func NewRngSeedHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{constantDesc(0, int(driver.SCompute))})
}

// NewRngOutputHeap creates RngGen's one-descriptor noise
// storage-image heap.
func NewRngOutputHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{imageDesc(0, int(driver.SCompute))})
}

// NewGBufferColorHeap creates a heap exposing one LOD copy's
// sampled color channels as a single array-bound texture
// descriptor. GBufferSample binds one per LOD tier (far, near);
// DeferredShade binds the sampled copy GBufferSample produced.
func NewGBufferColorHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{
		textureDesc(0, int(driver.SFragment), GBufferColorCount),
	})
}

// NewNoiseHeap creates GBufferSample's noise-input heap: the
// RngGen output bound as a sampled texture, plus the linear
// sampler used to read both it and the G-buffer copies.
func NewNoiseHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{
		textureDesc(0, int(driver.SFragment), 1),
		samplerDesc(1, int(driver.SFragment)),
	})
}

// NewParamsHeap creates GBufferSample's one-descriptor
// resolution-constant heap.
func NewParamsHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{constantDesc(0, int(driver.SFragment))})
}

// NewDirectIllumRTHeap creates DirectIllum's ray-tracing heap:
// the scene's TLAS and the single illumination-result storage
// image its ray-generation shader writes.
func NewDirectIllumRTHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{
		accelStructDesc(0, int(driver.SCompute)),
		imageDesc(1, int(driver.SCompute)),
	})
}

// NewPathTraceRTHeap creates PathTrace's ray-tracing heap: the
// scene's TLAS, the ping-pong write/read accumulation images,
// the {frame index, subframe index} constant, and the
// reprojection history image.
func NewPathTraceRTHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{
		accelStructDesc(0, int(driver.SCompute)),
		imageDesc(1, int(driver.SCompute)),
		imageDesc(2, int(driver.SCompute)),
		constantDesc(3, int(driver.SCompute)),
		imageDesc(4, int(driver.SCompute)),
	})
}

// NewLightHeap creates DeferredShade's single-descriptor
// lighting-input heap, bound to whichever of
// DirectIllum.Output/PathTrace.Output the active RenderMode
// selected.
func NewLightHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{textureDesc(0, int(driver.SFragment), 1)})
}

// NewColorHeap creates Present's color-input heap: the final
// shaded image as a sampled texture, plus the sampler used to
// read it.
func NewColorHeap(gpu driver.GPU) (driver.DescHeap, error) {
	return gpu.NewDescHeap([]driver.Descriptor{
		textureDesc(0, int(driver.SFragment), 1),
		samplerDesc(1, int(driver.SFragment)),
	})
}

// NewDescTable creates a new driver.DescTable combining the
// heaps a pass needs, in the given order. Every concrete pass
// in engine/pass calls this (via engine/descset.New) with the
// subset of New*Heap results it actually binds.
func NewDescTable(gpu driver.GPU, heaps ...driver.DescHeap) (driver.DescTable, error) {
	return gpu.NewDescTable(heaps)
}
