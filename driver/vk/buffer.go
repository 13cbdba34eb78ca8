// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

// Buffer implements driver.Buffer.
type Buffer struct {
	d       *Driver
	buf     vk.Buffer
	mem     vk.DeviceMemory
	heap    int
	size    int64
	visible bool
	mapped  []byte
}

func usageToBufferUsage(usg driver.Usage) vk.BufferUsageFlags {
	var f vk.BufferUsageFlagBits
	if usg&driver.UShaderRead != 0 || usg&driver.UShaderWrite != 0 {
		f |= vk.BufferUsageStorageBufferBit
	}
	if usg&driver.UShaderConst != 0 {
		f |= vk.BufferUsageUniformBufferBit
	}
	if usg&driver.UVertexData != 0 {
		f |= vk.BufferUsageVertexBufferBit
	}
	if usg&driver.UIndexData != 0 {
		f |= vk.BufferUsageIndexBufferBit
	}
	return vk.BufferUsageFlags(f) | vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit) | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)
}

// NewBuffer creates a new buffer.
func (d *Driver) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usageToBufferUsage(usg),
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if err := vkResult(vk.CreateBuffer(d.dev, &info, nil, &buf)); err != nil {
		return nil, err
	}
	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.dev, buf, &req)
	mem, heap, err := d.allocMemory(req, visible)
	if err != nil {
		vk.DestroyBuffer(d.dev, buf, nil)
		return nil, err
	}
	if err := vkResult(vk.BindBufferMemory(d.dev, buf, mem, 0)); err != nil {
		d.freeMemory(mem, heap, int64(req.Size))
		vk.DestroyBuffer(d.dev, buf, nil)
		return nil, err
	}
	b := &Buffer{d: d, buf: buf, mem: mem, heap: heap, size: int64(req.Size), visible: visible}
	if visible {
		var p unsafe.Pointer
		if err := vkResult(vk.MapMemory(d.dev, mem, 0, vk.DeviceSize(vk.WholeSize), 0, &p)); err != nil {
			b.Destroy()
			return nil, err
		}
		b.mapped = ptrToBytes(p, int(b.size))
	}
	return b, nil
}

func (b *Buffer) Visible() bool   { return b.visible }
func (b *Buffer) Bytes() []byte   { return b.mapped }
func (b *Buffer) Cap() int64      { return b.size }
func (b *Buffer) handle() vk.Buffer { return b.buf }

func (b *Buffer) Destroy() {
	if b == nil {
		return
	}
	if b.visible && b.mapped != nil {
		vk.UnmapMemory(b.d.dev, b.mem)
	}
	vk.DestroyBuffer(b.d.dev, b.buf, nil)
	b.d.freeMemory(b.mem, b.heap, b.size)
	*b = Buffer{}
}
