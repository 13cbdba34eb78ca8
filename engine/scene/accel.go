// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/linear"
)

// BuildTLAS creates a fresh top-level acceleration structure
// over every live instance in s, for the given GPU. Per
// spec.md's ownership rule, the TLAS belongs to Scene: the
// pass graph only ever reads the handle through Scene.TLAS,
// it never builds or destroys one itself.
//
// Rebuilding means creating a new TLAS and discarding the
// old one (driver.AccelStructBuilder.NewTLAS's contract);
// the caller must not call this again before the frame(s)
// still referencing the previous TLAS have completed.
func (s *Scene) BuildTLAS(gpu driver.AccelStructBuilder) error {
	inst := make([]driver.Instance, 0, len(s.inst.data))
	for id := range s.inst.data {
		live, ok := s.inst.get(InstanceID(id))
		if !ok || live.Mesh == nil {
			continue
		}
		inst = append(inst, driver.Instance{
			Transform: rowMajor3x4(&live.World),
			ID:        uint32(id),
			Mask:      0xFF,
			HitGroup:  live.HitGroup,
			BLAS:      live.Mesh,
		})
	}
	tlas, err := gpu.NewTLAS(inst)
	if err != nil {
		return err
	}
	if s.tlas != nil {
		s.tlas.Destroy()
	}
	s.tlas = tlas
	return nil
}

// TLAS returns the current top-level acceleration structure,
// or nil if BuildTLAS has not been called yet.
func (s *Scene) TLAS() driver.AccelStruct { return s.tlas }

// rowMajor3x4 extracts the row-major 3x4 affine transform
// driver.Instance expects from a column-major linear.M4.
func rowMajor3x4(m *linear.M4) [12]float32 {
	return [12]float32{
		m[0][0], m[1][0], m[2][0], m[3][0],
		m[0][1], m[1][1], m[2][1], m[3][1],
		m[0][2], m[1][2], m[2][2], m[3][2],
	}
}
