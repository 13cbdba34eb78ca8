// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/internal/shader"
	"hybridrender.dev/hri/internal/bitm"
	"hybridrender.dev/hri/linear"
)

// InstanceID identifies an instance within a Scene.
type InstanceID int

// DrawGeometry describes how the G-buffer layout pass binds
// and draws an instance's mesh: its vertex buffer bindings,
// input layout and primitive count. It is the
// rasterization-oriented counterpart to driver.GeometryTriangles
// (the single position-stream view BLAS construction needs).
type DrawGeometry struct {
	VertexBuf []driver.Buffer
	VertexOff []int64
	VertexIn  []driver.VertexIn

	IndexBuf  driver.Buffer
	IndexOff  int64
	IndexFmt  driver.IndexFmt
	IndexCount int

	VertexCount int
}

// Instance is an entity to be rendered: a world transform
// tying a mesh's acceleration structure and vertex data to a
// material, with the LOD mask the near/far G-buffer layout
// passes consult (spec.md §4.6.2).
type Instance struct {
	World    linear.M4
	Mesh     driver.AccelStruct // BLAS this instance's TLAS entry refers to
	Geom     DrawGeometry       // vertex/index bindings for rasterization
	Material MaterialID
	LODMask  uint32
	HitGroup uint32
}

const instanceMapNBit = 32

// instances manages the set of live instances, assigning
// each a stable InstanceID (reused once freed) so that an
// instance's slot in the storage buffer survives additions
// and removals elsewhere in the list.
type instances struct {
	idMap bitm.Bitm[uint32]
	data  []Instance
}

func (s *instances) add(inst Instance) InstanceID {
	i, ok := s.idMap.Search()
	if !ok {
		var z [instanceMapNBit]Instance
		s.data = append(s.data, z[:]...)
		i = s.idMap.Grow(1)
	}
	s.idMap.Set(i)
	s.data[i] = inst
	return InstanceID(i)
}

func (s *instances) remove(id InstanceID) {
	if _, ok := s.get(id); !ok {
		return
	}
	s.idMap.Unset(int(id))
	s.data[id] = Instance{}
}

func (s *instances) get(id InstanceID) (*Instance, bool) {
	if int(id) < 0 || int(id) >= len(s.data) || !s.idMap.IsSet(int(id)) {
		return nil, false
	}
	return &s.data[id], true
}

// len returns how many instance slots currently exist
// (including the capacity of freed-but-not-reused slots);
// callers iterate [0, len) and consult get's ok return.
func (s *instances) len() int { return len(s.data) }

// layout builds the shader.InstanceLayout for the instance
// at the given slot. The caller has already resolved the
// world-space normal matrix (the upper-left 3x3, inverse
// transposed) since that computation belongs to whatever
// produced the transform, not to the storage layer.
func layout(inst *Instance, normal *linear.M4, id InstanceID) shader.InstanceLayout {
	var l shader.InstanceLayout
	l.SetWorld(&inst.World)
	l.SetNormal(normal)
	l.SetID(uint32(id))
	l.SetMaterial(uint32(inst.Material))
	l.SetLODMask(inst.LODMask)
	l.SetHitGroup(inst.HitGroup)
	return l
}
