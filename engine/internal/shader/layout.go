// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Data as presented to shader programs.
//
// The data layouts defined here represent exactly what
// will be fed to shaders as constant/storage buffers.
// One should use the Set* methods of a given *Layout
// type to update constant data.
//
// Constants that are updated using vector and matrices
// (i.e., linear.V*/linear.M* types) will be defined in
// the shaders as equivalent types. These data will be
// aligned to 16 bytes for portability.

package shader

import (
	"time"
	"unsafe"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/linear"
)

func copyM4(dst []float32, m *linear.M4) {
	copy(dst, unsafe.Slice((*float32)(unsafe.Pointer(m)), 16))
}

// CameraLayout is the layout of per-frame camera data
// (the current camera plus the matrices needed to
// reproject the previous frame for temporal accumulation
// in the path-traced reference mode).
// It is defined as follows:
//
//	[0:16]  | view-projection matrix
//	[16:32] | inverse view-projection matrix
//	[32:48] | previous frame's view-projection matrix
//	[48:51] | world-space eye position
//	[51]    | elapsed time in seconds
//	[52]    | frame index (monotonic, wraps at 2^24)
//	[53]    | normalized random seed
//	[54]    | viewport width
//	[55]    | viewport height
//	[56]    | near plane
//	[57]    | far plane
//	[58:64] | (unused)
type CameraLayout [64]float32

// SetVP sets the current view-projection matrix.
func (l *CameraLayout) SetVP(m *linear.M4) { copyM4(l[:16], m) }

// SetInvVP sets the inverse view-projection matrix.
func (l *CameraLayout) SetInvVP(m *linear.M4) { copyM4(l[16:32], m) }

// SetPrevVP sets the previous frame's view-projection
// matrix, used by the path-tracing pass to reproject
// accumulated radiance.
func (l *CameraLayout) SetPrevVP(m *linear.M4) { copyM4(l[32:48], m) }

// SetEye sets the world-space eye position.
func (l *CameraLayout) SetEye(p *linear.V3) { copy(l[48:51], p[:]) }

// SetTime sets the elapsed time.
func (l *CameraLayout) SetTime(d time.Duration) { l[51] = float32(d.Seconds()) }

// SetFrameIndex sets the monotonic frame counter.
func (l *CameraLayout) SetFrameIndex(i uint32) { l[52] = *(*float32)(unsafe.Pointer(&i)) }

// SetSeed sets the normalized random seed consumed by
// the ray-generation and sampling passes.
func (l *CameraLayout) SetSeed(seed float32) { l[53] = seed }

// SetViewport sets the viewport bounds.
func (l *CameraLayout) SetViewport(v *driver.Viewport) {
	l[54] = v.Width
	l[55] = v.Height
	l[56] = v.Znear
	l[57] = v.Zfar
}

// InstanceLayout is one element of the instance storage
// buffer: the per-instance transform and the indices that
// tie an instance back to its mesh and material, plus the
// LOD mask the near/far G-buffer layout passes consult
// (spec.md §4.6.2).
// It is defined as follows:
//
//	[0:16]  | world matrix
//	[16:32] | normal matrix (inverse-transpose of world, upper 3x3)
//	[32]    | instance ID
//	[33]    | material index
//	[34]    | LOD mask (bit 0 = near, bit 1 = far)
//	[35]    | hit-group index (TLAS instance binding)
//	[36:48] | (unused)
type InstanceLayout [48]float32

// SetWorld sets the world matrix.
func (l *InstanceLayout) SetWorld(m *linear.M4) { copyM4(l[:16], m) }

// SetNormal sets the normal matrix.
func (l *InstanceLayout) SetNormal(m *linear.M4) { copyM4(l[16:32], m) }

// SetID sets the instance's ID.
func (l *InstanceLayout) SetID(id uint32) { l[32] = *(*float32)(unsafe.Pointer(&id)) }

// SetMaterial sets the index into the material storage
// buffer.
func (l *InstanceLayout) SetMaterial(index uint32) { l[33] = *(*float32)(unsafe.Pointer(&index)) }

// LOD bits consulted by the G-buffer layout passes.
const (
	LODNear uint32 = 1 << iota
	LODFar
)

// SetLODMask sets which G-buffer layout invocations
// (near, far, or both) should rasterize this instance.
func (l *InstanceLayout) SetLODMask(mask uint32) { l[34] = *(*float32)(unsafe.Pointer(&mask)) }

// SetHitGroup sets the shader-binding-table hit-group
// index this instance's TLAS entry is bound to.
func (l *InstanceLayout) SetHitGroup(group uint32) { l[35] = *(*float32)(unsafe.Pointer(&group)) }

// MaterialLayout is one element of the material storage
// buffer, read by both the deferred shading pass and the
// ray-traced direct-illumination/path-tracing hit shaders.
// It is defined as follows:
//
//	[0:4]   | base color factor
//	[4]     | metalness
//	[5]     | roughness
//	[6]     | emissive strength
//	[7]     | flags
//	[8:11]  | emissive factor
//	[11]    | alpha cutoff
//	[12:16] | (unused)
type MaterialLayout [16]float32

// Material flags.
const (
	MatAOpaque uint32 = 1 << iota
	MatABlend
	MatAMask
	MatDoubleSided
)

// SetColorFactor sets the base color factor.
func (l *MaterialLayout) SetColorFactor(fac *linear.V4) { copy(l[:4], fac[:]) }

// SetMetalRough sets the metalness and roughness.
func (l *MaterialLayout) SetMetalRough(metal, rough float32) { l[4], l[5] = metal, rough }

// SetEmisStrength sets the emissive strength multiplier.
func (l *MaterialLayout) SetEmisStrength(s float32) { l[6] = s }

// SetFlags sets the material flags.
func (l *MaterialLayout) SetFlags(flg uint32) { l[7] = *(*float32)(unsafe.Pointer(&flg)) }

// SetEmisFactor sets the emissive factor.
func (l *MaterialLayout) SetEmisFactor(fac *linear.V3) { copy(l[8:11], fac[:]) }

// SetAlphaCutoff sets the alpha cutoff value, used when
// MatAMask is set.
func (l *MaterialLayout) SetAlphaCutoff(c float32) { l[11] = c }
