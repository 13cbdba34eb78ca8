// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

// DescHeap implements driver.DescHeap. Each driver.DescHeap
// maps to a single VkDescriptorSetLayout; a "copy" (the unit
// New(n) allocates) maps to one VkDescriptorSet drawn from the
// heap's own VkDescriptorPool, so heap copies can be updated
// and bound independently (e.g. one per frame slot).
type DescHeap struct {
	d       *Driver
	descs   []driver.Descriptor
	layout  vk.DescriptorSetLayout
	pool    vk.DescriptorPool
	sets    []vk.DescriptorSet
}

func toVkDescType(t driver.DescType) vk.DescriptorType {
	switch t {
	case driver.DBuffer:
		return vk.DescriptorTypeStorageBuffer
	case driver.DImage:
		return vk.DescriptorTypeStorageImage
	case driver.DConstant:
		return vk.DescriptorTypeUniformBuffer
	case driver.DTexture:
		return vk.DescriptorTypeSampledImage
	case driver.DSampler:
		return vk.DescriptorTypeSampler
	case driver.DAccelStruct:
		return vk.DescriptorTypeAccelerationStructureKhr
	default:
		return vk.DescriptorTypeStorageBuffer
	}
}

func toVkStageFlags(s driver.Stage) vk.ShaderStageFlags {
	var f vk.ShaderStageFlagBits
	if s&driver.SVertex != 0 {
		f |= vk.ShaderStageVertexBit
	}
	if s&driver.SFragment != 0 {
		f |= vk.ShaderStageFragmentBit
	}
	if s&driver.SCompute != 0 {
		f |= vk.ShaderStageComputeBit
	}
	return vk.ShaderStageFlags(f)
}

// NewDescHeap creates a new descriptor heap.
func (d *Driver) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	binds := make([]vk.DescriptorSetLayoutBinding, len(ds))
	for i, desc := range ds {
		binds[i] = vk.DescriptorSetLayoutBinding{
			Binding:         uint32(desc.Nr),
			DescriptorType:  toVkDescType(desc.Type),
			DescriptorCount: uint32(desc.Len),
			StageFlags:      toVkStageFlags(desc.Stages),
		}
	}
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
		PBindings:    binds,
	}
	var layout vk.DescriptorSetLayout
	if err := vkResult(vk.CreateDescriptorSetLayout(d.dev, &info, nil, &layout)); err != nil {
		return nil, err
	}
	h := &DescHeap{d: d, descs: append([]driver.Descriptor(nil), ds...), layout: layout}
	return h, nil
}

// New creates enough storage for n copies of each descriptor.
func (h *DescHeap) New(n int) error {
	if h.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(h.d.dev, h.pool, nil)
		h.pool = vk.NullDescriptorPool
		h.sets = nil
	}
	if n == 0 {
		return nil
	}
	sizeMap := map[vk.DescriptorType]uint32{}
	for _, desc := range h.descs {
		sizeMap[toVkDescType(desc.Type)] += uint32(desc.Len * n)
	}
	sizes := make([]vk.DescriptorPoolSize, 0, len(sizeMap))
	for t, c := range sizeMap {
		sizes = append(sizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: c})
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(n),
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	var pool vk.DescriptorPool
	if err := vkResult(vk.CreateDescriptorPool(h.d.dev, &poolInfo, nil, &pool)); err != nil {
		return err
	}
	layouts := make([]vk.DescriptorSetLayout, n)
	for i := range layouts {
		layouts[i] = h.layout
	}
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: uint32(n),
		PSetLayouts:        layouts,
	}
	sets := make([]vk.DescriptorSet, n)
	if err := vkResult(vk.AllocateDescriptorSets(h.d.dev, &allocInfo, &sets[0])); err != nil {
		vk.DestroyDescriptorPool(h.d.dev, pool, nil)
		return err
	}
	h.pool = pool
	h.sets = sets
	return nil
}

func (h *DescHeap) descNr(nr int) driver.Descriptor {
	for _, d := range h.descs {
		if d.Nr == nr {
			return d
		}
	}
	return driver.Descriptor{}
}

// SetBuffer updates the buffer ranges referred by the given
// descriptor of the given heap copy.
func (h *DescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	infos := make([]vk.DescriptorBufferInfo, len(buf))
	for i := range buf {
		infos[i] = vk.DescriptorBufferInfo{
			Buffer: buf[i].(*Buffer).handle(),
			Offset: vk.DeviceSize(off[i]),
			Range:  vk.DeviceSize(size[i]),
		}
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(buf)),
		DescriptorType:  toVkDescType(h.descNr(nr).Type),
		PBufferInfo:     infos,
	}
	vk.UpdateDescriptorSets(h.d.dev, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// SetImage updates the image views referred by the given
// descriptor of the given heap copy.
func (h *DescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	desc := h.descNr(nr)
	layout := vk.ImageLayoutShaderReadOnlyOptimal
	if desc.Type == driver.DImage {
		layout = vk.ImageLayoutGeneral
	}
	infos := make([]vk.DescriptorImageInfo, len(iv))
	for i := range iv {
		infos[i] = vk.DescriptorImageInfo{
			ImageView:   iv[i].(*ImageView).handle(),
			ImageLayout: layout,
		}
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(iv)),
		DescriptorType:  toVkDescType(desc.Type),
		PImageInfo:      infos,
	}
	vk.UpdateDescriptorSets(h.d.dev, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// SetSampler updates the samplers referred by the given
// descriptor of the given heap copy.
func (h *DescHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	infos := make([]vk.DescriptorImageInfo, len(splr))
	for i := range splr {
		infos[i] = vk.DescriptorImageInfo{Sampler: splr[i].(*Sampler).handle()}
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(splr)),
		DescriptorType:  vk.DescriptorTypeSampler,
		PImageInfo:      infos,
	}
	vk.UpdateDescriptorSets(h.d.dev, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// SetAccelStruct updates the top-level acceleration structures
// referred by the given descriptor of the given heap copy.
// The VkWriteDescriptorSetAccelerationStructureKHR extension
// struct is chained through pNext, as VkWriteDescriptorSet has
// no dedicated field for it.
func (h *DescHeap) SetAccelStruct(cpy, nr, start int, as []driver.AccelStruct) {
	handles := make([]vk.AccelerationStructureKHR, len(as))
	for i := range as {
		handles[i] = as[i].(*AccelStruct).handle()
	}
	ext := vk.WriteDescriptorSetAccelerationStructureKHR{
		SType:                      vk.StructureTypeWriteDescriptorSetAccelerationStructureKhr,
		AccelerationStructureCount: uint32(len(handles)),
		PAccelerationStructures:    handles,
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		PNext:           unsafe.Pointer(&ext),
		DstSet:          h.sets[cpy],
		DstBinding:      uint32(nr),
		DstArrayElement: uint32(start),
		DescriptorCount: uint32(len(handles)),
		DescriptorType:  vk.DescriptorTypeAccelerationStructureKhr,
	}
	vk.UpdateDescriptorSets(h.d.dev, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

// Count returns the number of heap copies created by New.
func (h *DescHeap) Count() int { return len(h.sets) }

func (h *DescHeap) handle() vk.DescriptorSetLayout { return h.layout }
func (h *DescHeap) set(cpy int) vk.DescriptorSet    { return h.sets[cpy] }

func (h *DescHeap) Destroy() {
	if h == nil {
		return
	}
	if h.pool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(h.d.dev, h.pool, nil)
	}
	vk.DestroyDescriptorSetLayout(h.d.dev, h.layout, nil)
	*h = DescHeap{}
}

// DescTable implements driver.DescTable: a VkPipelineLayout
// built from a fixed ordering of DescHeap layouts. Binding a
// specific heap copy (SetDescTableGraph/SetDescTableComp) does
// not touch the table itself; it is recorded directly into the
// command buffer against the heap's own descriptor sets.
type DescTable struct {
	d      *Driver
	heaps  []*DescHeap
	layout vk.PipelineLayout
}

// NewDescTable creates a new descriptor table.
func (d *Driver) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	heaps := make([]*DescHeap, len(dh))
	layouts := make([]vk.DescriptorSetLayout, len(dh))
	for i, h := range dh {
		heaps[i] = h.(*DescHeap)
		layouts[i] = heaps[i].layout
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(layouts)),
		PSetLayouts:    layouts,
	}
	var layout vk.PipelineLayout
	if err := vkResult(vk.CreatePipelineLayout(d.dev, &info, nil, &layout)); err != nil {
		return nil, err
	}
	return &DescTable{d: d, heaps: heaps, layout: layout}, nil
}

func (t *DescTable) handle() vk.PipelineLayout { return t.layout }

func (t *DescTable) Destroy() {
	if t == nil {
		return
	}
	vk.DestroyPipelineLayout(t.d.dev, t.layout, nil)
	*t = DescTable{}
}
