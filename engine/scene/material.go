// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package scene

import (
	"errors"

	"hybridrender.dev/hri/engine/internal/shader"
	"hybridrender.dev/hri/linear"
)

const matPrefix = "scene: "

func newMatErr(reason string) error { return errors.New(matPrefix + reason) }

// MaterialID identifies a material within a Scene. It is
// the index every Instance.Material refers to, and the
// index the material storage buffer is built from, so it
// must remain stable for the material's lifetime.
type MaterialID int

// Alpha modes.
const (
	AlphaOpaque = iota
	AlphaBlend
	AlphaMask
)

// Material describes the surface properties the deferred
// shading and ray-traced hit shaders read out of the
// material storage buffer. Texture maps are out of scope
// here (asset loading is an external collaborator per
// spec.md §1); only the factor-based PBR parameters that a
// hybrid renderer's G-buffer/hit-shader lookup actually
// needs travel with an instance.
type Material struct {
	BaseColor      linear.V4
	Metalness      float32
	Roughness      float32
	Emissive       linear.V3
	EmissiveStrength float32
	AlphaMode      int
	AlphaCutoff    float32
	DoubleSided    bool
}

func (m *Material) validate() error {
	for _, x := range m.BaseColor {
		if x < 0 {
			return newMatErr("Material.BaseColor has a negative component")
		}
	}
	if m.Metalness < 0 || m.Metalness > 1 {
		return newMatErr("Material.Metalness outside [0.0, 1.0] interval")
	}
	if m.Roughness < 0 || m.Roughness > 1 {
		return newMatErr("Material.Roughness outside [0.0, 1.0] interval")
	}
	switch m.AlphaMode {
	case AlphaOpaque, AlphaBlend, AlphaMask:
	default:
		return newMatErr("undefined alpha mode constant")
	}
	return nil
}

// shaderLayout builds the shader.MaterialLayout for m.
func (m *Material) shaderLayout() shader.MaterialLayout {
	var l shader.MaterialLayout
	l.SetColorFactor(&m.BaseColor)
	l.SetMetalRough(m.Metalness, m.Roughness)
	l.SetEmisStrength(m.EmissiveStrength)
	l.SetEmisFactor(&m.Emissive)
	l.SetAlphaCutoff(m.AlphaCutoff)
	var flags uint32
	switch m.AlphaMode {
	case AlphaOpaque:
		flags |= shader.MatAOpaque
	case AlphaBlend:
		flags |= shader.MatABlend
	case AlphaMask:
		flags |= shader.MatAMask
	}
	if m.DoubleSided {
		flags |= shader.MatDoubleSided
	}
	l.SetFlags(flags)
	return l
}

// materials manages the set of live materials, analogous to
// instances but indexed by MaterialID.
type materials struct {
	data []Material
	free []MaterialID
}

func (s *materials) add(mat Material) (MaterialID, error) {
	if err := mat.validate(); err != nil {
		return 0, err
	}
	if n := len(s.free); n > 0 {
		id := s.free[n-1]
		s.free = s.free[:n-1]
		s.data[id] = mat
		return id, nil
	}
	s.data = append(s.data, mat)
	return MaterialID(len(s.data) - 1), nil
}

func (s *materials) remove(id MaterialID) {
	s.free = append(s.free, id)
}

func (s *materials) get(id MaterialID) (*Material, bool) {
	if int(id) < 0 || int(id) >= len(s.data) {
		return nil, false
	}
	for _, f := range s.free {
		if f == id {
			return nil, false
		}
	}
	return &s.data[id], true
}
