// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

// Sampler implements driver.Sampler.
type Sampler struct {
	d    *Driver
	splr vk.Sampler
}

func toVkFilter(f driver.Filter) vk.Filter {
	if f == driver.FNearest {
		return vk.FilterNearest
	}
	return vk.FilterLinear
}

func toVkMipmapMode(f driver.Filter) vk.SamplerMipmapMode {
	if f == driver.FNearest {
		return vk.SamplerMipmapModeNearest
	}
	return vk.SamplerMipmapModeLinear
}

func toVkAddrMode(a driver.AddrMode) vk.SamplerAddressMode {
	switch a {
	case driver.AMirror:
		return vk.SamplerAddressModeMirroredRepeat
	case driver.AClamp:
		return vk.SamplerAddressModeClampToEdge
	default:
		return vk.SamplerAddressModeRepeat
	}
}

func toVkCmpOp(c driver.CmpFunc) vk.CompareOp {
	switch c {
	case driver.CNever:
		return vk.CompareOpNever
	case driver.CLess:
		return vk.CompareOpLess
	case driver.CEqual:
		return vk.CompareOpEqual
	case driver.CLessEqual:
		return vk.CompareOpLessOrEqual
	case driver.CGreater:
		return vk.CompareOpGreater
	case driver.CNotEqual:
		return vk.CompareOpNotEqual
	case driver.CGreaterEqual:
		return vk.CompareOpGreaterOrEqual
	default:
		return vk.CompareOpAlways
	}
}

// NewSampler creates a new Sampler.
func (d *Driver) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	info := vk.SamplerCreateInfo{
		SType:            vk.StructureTypeSamplerCreateInfo,
		MagFilter:        toVkFilter(spln.Mag),
		MinFilter:        toVkFilter(spln.Min),
		MipmapMode:       toVkMipmapMode(spln.Mipmap),
		AddressModeU:     toVkAddrMode(spln.AddrU),
		AddressModeV:     toVkAddrMode(spln.AddrV),
		AddressModeW:     toVkAddrMode(spln.AddrW),
		MinLod:           spln.MinLOD,
		MaxLod:           spln.MaxLOD,
		CompareEnable:    vk.Bool32(boolToVk(spln.Cmp != driver.CAlways)),
		CompareOp:        toVkCmpOp(spln.Cmp),
		AnisotropyEnable: vk.Bool32(boolToVk(spln.MaxAniso > 1)),
		MaxAnisotropy:    float32(spln.MaxAniso),
	}
	var s vk.Sampler
	if err := vkResult(vk.CreateSampler(d.dev, &info, nil, &s)); err != nil {
		return nil, err
	}
	return &Sampler{d: d, splr: s}, nil
}

func boolToVk(b bool) uint32 {
	if b {
		return vk.True
	}
	return vk.False
}

func (s *Sampler) handle() vk.Sampler { return s.splr }

func (s *Sampler) Destroy() {
	if s == nil {
		return
	}
	vk.DestroySampler(s.d.dev, s.splr, nil)
	*s = Sampler{}
}
