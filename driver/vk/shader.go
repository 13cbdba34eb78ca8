// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

// ShaderCode implements driver.ShaderCode.
type ShaderCode struct {
	d   *Driver
	mod vk.ShaderModule
}

// NewShaderCode creates a new shader code from SPIR-V bytecode.
func (d *Driver) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(data)),
		PCode:    repackUint32(data),
	}
	var mod vk.ShaderModule
	if err := vkResult(vk.CreateShaderModule(d.dev, &info, nil, &mod)); err != nil {
		return nil, err
	}
	return &ShaderCode{d: d, mod: mod}, nil
}

// repackUint32 reinterprets a SPIR-V byte slice (little-endian,
// as produced by every SPIR-V compiler) as the uint32 words
// VkShaderModuleCreateInfo.pCode expects.
func repackUint32(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
	}
	return out
}

func (s *ShaderCode) handle() vk.ShaderModule { return s.mod }

func (s *ShaderCode) Destroy() {
	if s == nil {
		return
	}
	vk.DestroyShaderModule(s.d.dev, s.mod, nil)
	*s = ShaderCode{}
}
