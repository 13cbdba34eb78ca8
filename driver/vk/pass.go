// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

// RenderPass implements driver.RenderPass.
type RenderPass struct {
	d    *Driver
	pass vk.RenderPass
	natt int
	isDS []bool
}

// Framebuf implements driver.Framebuf.
type Framebuf struct {
	d  *Driver
	fb vk.Framebuffer
}

func toVkLoadOp(l driver.LoadOp) vk.AttachmentLoadOp {
	switch l {
	case driver.LClear:
		return vk.AttachmentLoadOpClear
	case driver.LLoad:
		return vk.AttachmentLoadOpLoad
	default:
		return vk.AttachmentLoadOpDontCare
	}
}

func toVkStoreOp(s driver.StoreOp) vk.AttachmentStoreOp {
	if s == driver.SStore {
		return vk.AttachmentStoreOpStore
	}
	return vk.AttachmentStoreOpDontCare
}

func isDSAttachment(format vk.Format) bool {
	switch format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return true
	default:
		return false
	}
}

// NewRenderPass creates a new render pass.
func (d *Driver) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	vatt := make([]vk.AttachmentDescription, len(att))
	isDS := make([]bool, len(att))
	for i, a := range att {
		format := toVkFormat(a.Format)
		isDS[i] = isDSAttachment(format)
		finalLayout := vk.ImageLayoutShaderReadOnlyOptimal
		if isDS[i] {
			finalLayout = vk.ImageLayoutDepthStencilAttachmentOptimal
		} else {
			finalLayout = vk.ImageLayoutColorAttachmentOptimal
		}
		vatt[i] = vk.AttachmentDescription{
			Format:         format,
			Samples:        sampleCountFlag(a.Samples),
			LoadOp:         toVkLoadOp(a.Load[0]),
			StoreOp:        toVkStoreOp(a.Store[0]),
			StencilLoadOp:  toVkLoadOp(a.Load[1]),
			StencilStoreOp: toVkStoreOp(a.Store[1]),
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    finalLayout,
		}
	}

	vsub := make([]vk.SubpassDescription, len(sub))
	// Keep attachment-reference slices alive for the duration of
	// vk.CreateRenderPass: vulkan-go copies slice headers into C
	// arrays at call time, not their backing storage.
	var keepAlive [][]vk.AttachmentReference
	for i, s := range sub {
		colorRefs := make([]vk.AttachmentReference, len(s.Color))
		for j, c := range s.Color {
			colorRefs[j] = vk.AttachmentReference{Attachment: uint32(c), Layout: vk.ImageLayoutColorAttachmentOptimal}
		}
		keepAlive = append(keepAlive, colorRefs)
		vsub[i] = vk.SubpassDescription{
			PipelineBindPoint:    vk.PipelineBindPointGraphics,
			ColorAttachmentCount: uint32(len(colorRefs)),
			PColorAttachments:    colorRefs,
		}
		if s.DS >= 0 {
			ds := &vk.AttachmentReference{Attachment: uint32(s.DS), Layout: vk.ImageLayoutDepthStencilAttachmentOptimal}
			vsub[i].PDepthStencilAttachment = ds
		}
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(vatt)),
		PAttachments:    vatt,
		SubpassCount:    uint32(len(vsub)),
		PSubpasses:      vsub,
	}
	var pass vk.RenderPass
	if err := vkResult(vk.CreateRenderPass(d.dev, &info, nil, &pass)); err != nil {
		return nil, err
	}
	_ = keepAlive
	return &RenderPass{d: d, pass: pass, natt: len(att), isDS: isDS}, nil
}

// NewFB creates a new framebuffer.
func (rp *RenderPass) NewFB(iv []driver.ImageView, width, height, layers int) (driver.Framebuf, error) {
	views := make([]vk.ImageView, len(iv))
	for i := range iv {
		views[i] = iv[i].(*ImageView).handle()
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(width),
		Height:          uint32(height),
		Layers:          uint32(layers),
	}
	var fb vk.Framebuffer
	if err := vkResult(vk.CreateFramebuffer(rp.d.dev, &info, nil, &fb)); err != nil {
		return nil, err
	}
	return &Framebuf{d: rp.d, fb: fb}, nil
}

func (rp *RenderPass) handle() vk.RenderPass { return rp.pass }

func (rp *RenderPass) Destroy() {
	if rp == nil {
		return
	}
	vk.DestroyRenderPass(rp.d.dev, rp.pass, nil)
	*rp = RenderPass{}
}

func (fb *Framebuf) handle() vk.Framebuffer { return fb.fb }

func (fb *Framebuf) Destroy() {
	if fb == nil {
		return
	}
	vk.DestroyFramebuffer(fb.d.dev, fb.fb, nil)
	*fb = Framebuf{}
}
