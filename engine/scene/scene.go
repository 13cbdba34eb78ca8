// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/engine/internal/shader"
	"hybridrender.dev/hri/linear"
)

// Scene is the minimal per-frame scene data the renderer
// reads: a camera, the live instance and material lists, and
// the TLAS built over them. Nothing here is safe for
// concurrent use; the caller serializes scene edits against
// frame recording the same way it serializes everything else
// touching a single engine.Common.
type Scene struct {
	Camera Camera

	inst instances
	mat  materials
	tlas driver.AccelStruct
}

// AddInstance inserts inst into the scene and returns the
// stable ID the instance storage buffer will index it by.
func (s *Scene) AddInstance(inst Instance) InstanceID {
	return s.inst.add(inst)
}

// RemoveInstance drops the instance identified by id. It is
// a no-op if id does not name a live instance.
func (s *Scene) RemoveInstance(id InstanceID) {
	s.inst.remove(id)
}

// Instance returns the instance identified by id, or
// ok == false if id does not name a live instance.
func (s *Scene) Instance(id InstanceID) (inst *Instance, ok bool) {
	return s.inst.get(id)
}

// InstanceCount returns the number of instance slots, live or
// freed, currently allocated. Callers building the instance
// storage buffer iterate [0, InstanceCount) and skip the ids
// for which Instance reports ok == false.
func (s *Scene) InstanceCount() int { return s.inst.len() }

// AddMaterial inserts mat into the scene after validating its
// parameters, returning the stable ID the material storage
// buffer will index it by.
func (s *Scene) AddMaterial(mat Material) (MaterialID, error) {
	return s.mat.add(mat)
}

// RemoveMaterial frees the material identified by id for
// reuse by a future AddMaterial call.
func (s *Scene) RemoveMaterial(id MaterialID) {
	s.mat.remove(id)
}

// Material returns the material identified by id, or
// ok == false if id does not name a live material.
func (s *Scene) Material(id MaterialID) (mat *Material, ok bool) {
	return s.mat.get(id)
}

// InstanceLayouts appends the shader.InstanceLayout of every
// live instance to dst and returns the extended slice, in
// the same [0, InstanceCount) slot order the TLAS instance
// list and BuildTLAS use, so the storage buffer a pass binds
// lines up with the InstanceID a hit shader reads back.
func (s *Scene) InstanceLayouts(dst []shader.InstanceLayout) []shader.InstanceLayout {
	for i := 0; i < s.inst.len(); i++ {
		id := InstanceID(i)
		inst, ok := s.inst.get(id)
		if !ok {
			dst = append(dst, shader.InstanceLayout{})
			continue
		}
		var normal linear.M4
		normal.Invert(&inst.World)
		normal.Transpose(&normal)
		dst = append(dst, layout(inst, &normal, id))
	}
	return dst
}

// MaterialLayouts appends the shader.MaterialLayout of every
// live material to dst and returns the extended slice, in
// MaterialID order.
func (s *Scene) MaterialLayouts(dst []shader.MaterialLayout) []shader.MaterialLayout {
	for i := range s.mat.data {
		dst = append(dst, s.mat.data[i].shaderLayout())
	}
	return dst
}

// Destroy releases the scene's TLAS, if any. It does not
// touch the BLAS handles stored in individual instances —
// those are owned by whichever caller built them and passed
// them into AddInstance, not by Scene.
func (s *Scene) Destroy() {
	if s.tlas != nil {
		s.tlas.Destroy()
		s.tlas = nil
	}
}
