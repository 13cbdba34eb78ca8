// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

// CmdBuffer implements driver.CmdBuffer.
type CmdBuffer struct {
	d     *Driver
	pool  vk.CommandPool
	cb    vk.CommandBuffer
	fence vk.Fence

	curPass vk.RenderPass

	// Swapchain tags, set by swapchain.Next/Present (same
	// package) so Commit knows to wait on an acquire
	// semaphore and/or present an image once the submission
	// this buffer belongs to completes.
	scWaitSem   vk.Semaphore
	scSignalSem vk.Semaphore
	scPresent   *swapchain
	scImage     int
}

// NewCmdBuffer creates a new command buffer, each backed by
// its own VkCommandPool so that Reset (vkResetCommandBuffer) does
// not race a pool shared with other in-flight command buffers.
func (d *Driver) NewCmdBuffer() (driver.CmdBuffer, error) {
	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.qfam,
	}
	var pool vk.CommandPool
	if err := vkResult(vk.CreateCommandPool(d.dev, &poolInfo, nil, &pool)); err != nil {
		return nil, err
	}
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if err := vkResult(vk.AllocateCommandBuffers(d.dev, &allocInfo, cbs)); err != nil {
		vk.DestroyCommandPool(d.dev, pool, nil)
		return nil, err
	}
	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var fence vk.Fence
	if err := vkResult(vk.CreateFence(d.dev, &fenceInfo, nil, &fence)); err != nil {
		vk.DestroyCommandPool(d.dev, pool, nil)
		return nil, err
	}
	return &CmdBuffer{d: d, pool: pool, cb: cbs[0], fence: fence}, nil
}

func (c *CmdBuffer) Begin() error {
	info := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	return vkResult(vk.BeginCommandBuffer(c.cb, &info))
}

func (c *CmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	rp := pass.(*RenderPass)
	vclear := make([]vk.ClearValue, len(clear))
	for i, cl := range clear {
		if i < len(rp.isDS) && rp.isDS[i] {
			vclear[i] = vk.NewClearDepthStencil(cl.Depth, cl.Stencil)
		} else {
			vclear[i] = vk.NewClearValue(cl.Color[:])
		}
	}
	info := vk.RenderPassBeginInfo{
		SType:           vk.StructureTypeRenderPassBeginInfo,
		RenderPass:      rp.pass,
		Framebuffer:     fb.(*Framebuf).handle(),
		ClearValueCount: uint32(len(vclear)),
		PClearValues:    vclear,
	}
	c.curPass = rp.pass
	vk.CmdBeginRenderPass(c.cb, &info, vk.SubpassContentsInline)
}

func (c *CmdBuffer) NextSubpass() { vk.CmdNextSubpass(c.cb, vk.SubpassContentsInline) }

func (c *CmdBuffer) EndPass() {
	vk.CmdEndRenderPass(c.cb)
	c.curPass = vk.NullRenderPass
}

func (c *CmdBuffer) BeginWork(wait bool)  {}
func (c *CmdBuffer) EndWork()             {}
func (c *CmdBuffer) BeginBlit(wait bool)  {}
func (c *CmdBuffer) EndBlit()             {}

func (c *CmdBuffer) SetPipeline(pl driver.Pipeline) {
	p := pl.(*Pipeline)
	vk.CmdBindPipeline(c.cb, p.bindPoint(), p.handle())
}

func (c *CmdBuffer) SetViewport(vp []driver.Viewport) {
	vvp := make([]vk.Viewport, len(vp))
	for i, v := range vp {
		vvp[i] = vk.Viewport{X: v.X, Y: v.Y, Width: v.Width, Height: v.Height, MinDepth: v.Znear, MaxDepth: v.Zfar}
	}
	vk.CmdSetViewport(c.cb, 0, uint32(len(vvp)), vvp)
}

func (c *CmdBuffer) SetScissor(sciss []driver.Scissor) {
	vsc := make([]vk.Rect2D, len(sciss))
	for i, s := range sciss {
		vsc[i] = vk.Rect2D{Offset: vk.Offset2D{X: int32(s.X), Y: int32(s.Y)}, Extent: vk.Extent2D{Width: uint32(s.Width), Height: uint32(s.Height)}}
	}
	vk.CmdSetScissor(c.cb, 0, uint32(len(vsc)), vsc)
}

func (c *CmdBuffer) SetBlendColor(r, g, b, a float32) {
	vk.CmdSetBlendConstants(c.cb, [4]float32{r, g, b, a})
}

func (c *CmdBuffer) SetStencilRef(value uint32) {
	vk.CmdSetStencilReference(c.cb, vk.StencilFaceFlags(vk.StencilFrontAndBack), value)
}

func (c *CmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	bufs := make([]vk.Buffer, len(buf))
	offs := make([]vk.DeviceSize, len(buf))
	for i := range buf {
		bufs[i] = buf[i].(*Buffer).handle()
		offs[i] = vk.DeviceSize(off[i])
	}
	vk.CmdBindVertexBuffers(c.cb, uint32(start), uint32(len(bufs)), bufs, offs)
}

func (c *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	idxType := vk.IndexTypeUint16
	if format == driver.Index32 {
		idxType = vk.IndexTypeUint32
	}
	vk.CmdBindIndexBuffer(c.cb, buf.(*Buffer).handle(), vk.DeviceSize(off), idxType)
}

func descSets(table driver.DescTable, heapCopy []int) []vk.DescriptorSet {
	t := table.(*DescTable)
	sets := make([]vk.DescriptorSet, len(t.heaps))
	for i, h := range t.heaps {
		cpy := 0
		if i < len(heapCopy) {
			cpy = heapCopy[i]
		}
		sets[i] = h.set(cpy)
	}
	return sets
}

func (c *CmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {
	sets := descSets(table, heapCopy)
	vk.CmdBindDescriptorSets(c.cb, vk.PipelineBindPointGraphics, table.(*DescTable).handle(), uint32(start), uint32(len(sets)), sets, 0, nil)
}

func (c *CmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {
	sets := descSets(table, heapCopy)
	vk.CmdBindDescriptorSets(c.cb, vk.PipelineBindPointCompute, table.(*DescTable).handle(), uint32(start), uint32(len(sets)), sets, 0, nil)
}

func (c *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	vk.CmdDraw(c.cb, uint32(vertCount), uint32(instCount), uint32(baseVert), uint32(baseInst))
}

func (c *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	vk.CmdDrawIndexed(c.cb, uint32(idxCount), uint32(instCount), uint32(baseIdx), int32(vertOff), uint32(baseInst))
}

func (c *CmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	vk.CmdDispatch(c.cb, uint32(grpCountX), uint32(grpCountY), uint32(grpCountZ))
}

func (c *CmdBuffer) CopyBuffer(p *driver.BufferCopy) {
	region := vk.BufferCopy{SrcOffset: vk.DeviceSize(p.FromOff), DstOffset: vk.DeviceSize(p.ToOff), Size: vk.DeviceSize(p.Size)}
	vk.CmdCopyBuffer(c.cb, p.From.(*Buffer).handle(), p.To.(*Buffer).handle(), 1, []vk.BufferCopy{region})
}

func (c *CmdBuffer) CopyImage(p *driver.ImageCopy) {
	region := vk.ImageCopy{
		SrcSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), MipLevel: uint32(p.FromLevel), BaseArrayLayer: uint32(p.FromLayer), LayerCount: uint32(p.Layers)},
		SrcOffset:      vk.Offset3D{X: int32(p.FromOff.X), Y: int32(p.FromOff.Y), Z: int32(p.FromOff.Z)},
		DstSubresource: vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), MipLevel: uint32(p.ToLevel), BaseArrayLayer: uint32(p.ToLayer), LayerCount: uint32(p.Layers)},
		DstOffset:      vk.Offset3D{X: int32(p.ToOff.X), Y: int32(p.ToOff.Y), Z: int32(p.ToOff.Z)},
		Extent:         vk.Extent3D{Width: uint32(p.Size.Width), Height: uint32(p.Size.Height), Depth: uint32(p.Size.Depth)},
	}
	vk.CmdCopyImage(c.cb, p.From.(*Image).handle(), vk.ImageLayoutTransferSrcOptimal, p.To.(*Image).handle(), vk.ImageLayoutTransferDstOptimal, 1, []vk.ImageCopy{region})
}

func bufImgAspect(depthCopy bool) vk.ImageAspectFlags {
	if depthCopy {
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	}
	return vk.ImageAspectFlags(vk.ImageAspectColorBit)
}

func (c *CmdBuffer) CopyBufToImg(p *driver.BufImgCopy) {
	region := vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(p.BufOff),
		BufferRowLength:   uint32(p.Stride[0]),
		BufferImageHeight: uint32(p.Stride[1]),
		ImageSubresource:  vk.ImageSubresourceLayers{AspectMask: bufImgAspect(p.DepthCopy), MipLevel: uint32(p.Level), BaseArrayLayer: uint32(p.Layer), LayerCount: 1},
		ImageOffset:       vk.Offset3D{X: int32(p.ImgOff.X), Y: int32(p.ImgOff.Y), Z: int32(p.ImgOff.Z)},
		ImageExtent:       vk.Extent3D{Width: uint32(p.Size.Width), Height: uint32(p.Size.Height), Depth: uint32(p.Size.Depth)},
	}
	vk.CmdCopyBufferToImage(c.cb, p.Buf.(*Buffer).handle(), p.Img.(*Image).handle(), vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (c *CmdBuffer) CopyImgToBuf(p *driver.BufImgCopy) {
	region := vk.BufferImageCopy{
		BufferOffset:      vk.DeviceSize(p.BufOff),
		BufferRowLength:   uint32(p.Stride[0]),
		BufferImageHeight: uint32(p.Stride[1]),
		ImageSubresource:  vk.ImageSubresourceLayers{AspectMask: bufImgAspect(p.DepthCopy), MipLevel: uint32(p.Level), BaseArrayLayer: uint32(p.Layer), LayerCount: 1},
		ImageOffset:       vk.Offset3D{X: int32(p.ImgOff.X), Y: int32(p.ImgOff.Y), Z: int32(p.ImgOff.Z)},
		ImageExtent:       vk.Extent3D{Width: uint32(p.Size.Width), Height: uint32(p.Size.Height), Depth: uint32(p.Size.Depth)},
	}
	vk.CmdCopyImageToBuffer(c.cb, p.Img.(*Image).handle(), vk.ImageLayoutTransferSrcOptimal, p.Buf.(*Buffer).handle(), 1, []vk.BufferImageCopy{region})
}

func (c *CmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	data := uint32(value) | uint32(value)<<8 | uint32(value)<<16 | uint32(value)<<24
	vk.CmdFillBuffer(c.cb, buf.(*Buffer).handle(), vk.DeviceSize(off), vk.DeviceSize(size), data)
}

// BuildAccelStructs records nothing: this package does not
// build acceleration structures (raytracing.go defines only the
// AccelStruct type). Driver.HasRayTracing reports only whether
// the device advertises the ray-tracing extensions.
func (c *CmdBuffer) BuildAccelStructs(as []driver.AccelStruct) {}

func toVkAccessFlags(a driver.Access) vk.AccessFlags {
	var f vk.AccessFlagBits
	if a&driver.AVertexBufRead != 0 {
		f |= vk.AccessVertexAttributeReadBit
	}
	if a&driver.AIndexBufRead != 0 {
		f |= vk.AccessIndexReadBit
	}
	if a&driver.AColorRead != 0 {
		f |= vk.AccessColorAttachmentReadBit
	}
	if a&driver.AColorWrite != 0 {
		f |= vk.AccessColorAttachmentWriteBit
	}
	if a&driver.ADSRead != 0 {
		f |= vk.AccessDepthStencilAttachmentReadBit
	}
	if a&driver.ADSWrite != 0 {
		f |= vk.AccessDepthStencilAttachmentWriteBit
	}
	if a&driver.ACopyRead != 0 {
		f |= vk.AccessTransferReadBit
	}
	if a&driver.ACopyWrite != 0 {
		f |= vk.AccessTransferWriteBit
	}
	if a&driver.AShaderRead != 0 {
		f |= vk.AccessShaderReadBit
	}
	if a&driver.AShaderWrite != 0 {
		f |= vk.AccessShaderWriteBit
	}
	return vk.AccessFlags(f)
}

func toVkPipelineStageFlags(s driver.Sync) vk.PipelineStageFlags {
	var f vk.PipelineStageFlagBits
	if s&driver.SVertexInput != 0 {
		f |= vk.PipelineStageVertexInputBit
	}
	if s&driver.SVertexShading != 0 {
		f |= vk.PipelineStageVertexShaderBit
	}
	if s&driver.SFragmentShading != 0 {
		f |= vk.PipelineStageFragmentShaderBit
	}
	if s&driver.SComputeShading != 0 {
		f |= vk.PipelineStageComputeShaderBit
	}
	if s&driver.SColorOutput != 0 {
		f |= vk.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.SDSOutput != 0 {
		f |= vk.PipelineStageEarlyFragmentTestsBit | vk.PipelineStageLateFragmentTestsBit
	}
	if s&driver.SDraw != 0 {
		f |= vk.PipelineStageDrawIndirectBit
	}
	if s&driver.SCopy != 0 {
		f |= vk.PipelineStageTransferBit
	}
	if s&driver.SAll != 0 {
		f |= vk.PipelineStageAllCommandsBit
	}
	if f == 0 {
		f = vk.PipelineStageTopOfPipeBit
	}
	return vk.PipelineStageFlags(f)
}

func (c *CmdBuffer) Barrier(b []driver.Barrier) {
	for _, x := range b {
		mb := vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: toVkAccessFlags(x.AccessBefore),
			DstAccessMask: toVkAccessFlags(x.AccessAfter),
		}
		vk.CmdPipelineBarrier(c.cb, toVkPipelineStageFlags(x.SyncBefore), toVkPipelineStageFlags(x.SyncAfter), 0, 1, []vk.MemoryBarrier{mb}, 0, nil, 0, nil)
	}
}

func toVkImageLayout(l driver.Layout) vk.ImageLayout {
	switch l {
	case driver.LColorTarget:
		return vk.ImageLayoutColorAttachmentOptimal
	case driver.LDSTarget:
		return vk.ImageLayoutDepthStencilAttachmentOptimal
	case driver.LDSRead:
		return vk.ImageLayoutDepthStencilReadOnlyOptimal
	case driver.LResolveSrc, driver.LCopySrc:
		return vk.ImageLayoutTransferSrcOptimal
	case driver.LResolveDst, driver.LCopyDst:
		return vk.ImageLayoutTransferDstOptimal
	case driver.LShaderRead:
		return vk.ImageLayoutShaderReadOnlyOptimal
	case driver.LPresent:
		return vk.ImageLayoutPresentSrc
	case driver.LCommon:
		return vk.ImageLayoutGeneral
	default:
		return vk.ImageLayoutUndefined
	}
}

func (c *CmdBuffer) Transition(t []driver.Transition) {
	for _, x := range t {
		img := x.Img.(*Image)
		barrier := vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       toVkAccessFlags(x.AccessBefore),
			DstAccessMask:       toVkAccessFlags(x.AccessAfter),
			OldLayout:           toVkImageLayout(x.LayoutBefore),
			NewLayout:           toVkImageLayout(x.LayoutAfter),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               img.handle(),
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     aspectMask(img.format),
				BaseMipLevel:   uint32(x.Level),
				LevelCount:     uint32(x.Levels),
				BaseArrayLayer: uint32(x.Layer),
				LayerCount:     uint32(x.Layers),
			},
		}
		vk.CmdPipelineBarrier(c.cb, toVkPipelineStageFlags(x.SyncBefore), toVkPipelineStageFlags(x.SyncAfter), 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
	}
}

func (c *CmdBuffer) End() error {
	if err := vkResult(vk.EndCommandBuffer(c.cb)); err != nil {
		vk.ResetCommandBuffer(c.cb, vk.CommandBufferResetFlags(0))
		return err
	}
	return nil
}

func (c *CmdBuffer) Reset() error {
	c.scWaitSem = vk.NullSemaphore
	c.scSignalSem = vk.NullSemaphore
	c.scPresent = nil
	c.scImage = 0
	return vkResult(vk.ResetCommandBuffer(c.cb, vk.CommandBufferResetFlags(0)))
}

func (c *CmdBuffer) Destroy() {
	if c == nil {
		return
	}
	vk.DestroyFence(c.d.dev, c.fence, nil)
	vk.DestroyCommandPool(c.d.dev, c.pool, nil)
	*c = CmdBuffer{}
}

// Commit commits a work item to the GPU for execution.
// Submission uses qfam's first queue; real concurrent
// submission across multiple queues from the family is left
// for a future revision (see Driver.qmus). Any command buffer
// tagged by swapchain.Next/Present contributes its semaphores
// to the submission's wait/signal lists, and its presentation
// is issued after the fence signals.
func (d *Driver) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error {
	cbs := make([]vk.CommandBuffer, len(wk.Work))
	fences := make([]vk.Fence, len(wk.Work))
	var waitSems, signalSems []vk.Semaphore
	var waitStages []vk.PipelineStageFlags
	type pendingPresent struct {
		sc  *swapchain
		img int
		sem vk.Semaphore
	}
	var pres []pendingPresent
	for i, w := range wk.Work {
		cb := w.(*CmdBuffer)
		cbs[i] = cb.cb
		fences[i] = cb.fence
		if err := vkResult(vk.ResetFences(d.dev, 1, []vk.Fence{cb.fence})); err != nil {
			return err
		}
		if cb.scWaitSem != vk.NullSemaphore {
			waitSems = append(waitSems, cb.scWaitSem)
			waitStages = append(waitStages, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
		}
		if cb.scPresent != nil {
			signalSems = append(signalSems, cb.scSignalSem)
			pres = append(pres, pendingPresent{sc: cb.scPresent, img: cb.scImage, sem: cb.scSignalSem})
		}
	}
	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      cbs,
		WaitSemaphoreCount:   uint32(len(waitSems)),
		PWaitSemaphores:      waitSems,
		PWaitDstStageMask:    waitStages,
		SignalSemaphoreCount: uint32(len(signalSems)),
		PSignalSemaphores:    signalSems,
	}
	d.qmus[0].Lock()
	err := vkResult(vk.QueueSubmit(d.ques[0], 1, []vk.SubmitInfo{info}, fences[len(fences)-1]))
	d.qmus[0].Unlock()
	if err != nil {
		return err
	}
	go func() {
		vk.WaitForFences(d.dev, 1, fences[len(fences)-1:], vk.True, ^uint64(0))
		for _, p := range pres {
			if perr := p.sc.present(p.img, p.sem); perr != nil && wk.Err == nil {
				wk.Err = perr
			}
		}
		ch <- wk
	}()
	return nil
}
