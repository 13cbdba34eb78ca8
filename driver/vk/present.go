// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"sync"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/wsi"
)

// surfacer is implemented by wsi.Window backends that can hand
// out a driver.SurfaceFunc (currently only wsi's GLFW backend).
type surfacer interface {
	Surface() driver.SurfaceFunc
}

// swapchain implements driver.Swapchain.
type swapchain struct {
	d      *Driver
	win    wsi.Window
	surf   vk.Surface
	sc     vk.Swapchain
	pf     driver.PixelFmt
	extent vk.Extent2D
	mode   driver.PresentMode
	vsync  driver.VSyncMode

	imgs      []vk.Image
	views     []*ImageView
	viewIfaces []driver.ImageView // cached driver.ImageView slice, rebuilt alongside views

	// One acquire/render-finished semaphore pair per frame
	// slot (len(imgs) of them); imgSlot maps an acquired
	// image index back to the slot that acquired it, so
	// Present can signal the matching render-finished
	// semaphore (acquisition and presentation do not share
	// an index: an image can be acquired out of order).
	acquireSems []vk.Semaphore
	renderSems  []vk.Semaphore
	imgSlot     []int
	curSlot     int

	mu     sync.Mutex
	broken bool
}

func fromVkPresentMode(m vk.PresentMode) driver.PresentMode {
	switch m {
	case vk.PresentModeMailbox:
		return driver.PMailbox
	case vk.PresentModeImmediate:
		return driver.PImmediate
	default:
		return driver.PFifo
	}
}

// NewSwapchain creates a new swapchain.
func (d *Driver) NewSwapchain(win wsi.Window, vsync driver.VSyncMode) (driver.Swapchain, error) {
	if !d.exts[extSwapchain] {
		return nil, driver.ErrCannotPresent
	}
	sf, ok := win.(surfacer)
	if !ok {
		return nil, driver.ErrCannotPresent
	}
	sh, err := sf.Surface()(driver.InstanceHandle(uintptr(unsafe.Pointer(d.inst))))
	if err != nil {
		return nil, err
	}
	surf := vk.SurfaceFromPointer(uintptr(sh))
	var supported vk.Bool32
	if err := vkResult(vk.GetPhysicalDeviceSurfaceSupport(d.pdev, d.qfam, surf, &supported)); err != nil {
		vk.DestroySurface(d.inst, surf, nil)
		return nil, err
	}
	if supported != vk.True {
		vk.DestroySurface(d.inst, surf, nil)
		return nil, driver.ErrCannotPresent
	}
	s := &swapchain{d: d, win: win, surf: surf, vsync: vsync}
	if err := s.create(vk.NullSwapchain); err != nil {
		vk.DestroySurface(d.inst, surf, nil)
		return nil, err
	}
	return s, nil
}

// imageCountFor derives the (count, mode) pair a
// VSyncMode maps to, picking the closest mode the device
// actually advertises.
func imageCountFor(vsync driver.VSyncMode, avail []vk.PresentMode) (int, vk.PresentMode) {
	has := func(m vk.PresentMode) bool {
		for _, x := range avail {
			if x == m {
				return true
			}
		}
		return false
	}
	switch vsync {
	case driver.Disabled:
		if has(vk.PresentModeMailbox) {
			return 3, vk.PresentModeMailbox
		}
		return 3, vk.PresentModeFifo
	case driver.DoubleBuffering:
		return 2, vk.PresentModeFifo
	default:
		return 3, vk.PresentModeFifo
	}
}

// create builds (or rebuilds, from old) the VkSwapchainKHR,
// its images/views and synchronization semaphores.
func (s *swapchain) create(old vk.Swapchain) error {
	d := s.d
	var capab vk.SurfaceCapabilities
	if err := vkResult(vk.GetPhysicalDeviceSurfaceCapabilities(d.pdev, s.surf, &capab)); err != nil {
		return err
	}
	capab.Deref()
	capab.CurrentExtent.Deref()

	extent := capab.CurrentExtent
	if extent.Width == vk.MaxUint32 {
		extent.Width = uint32(s.win.Width())
		extent.Height = uint32(s.win.Height())
	}
	if extent == (vk.Extent2D{}) {
		return driver.ErrWindow
	}

	var nfmt uint32
	if err := vkResult(vk.GetPhysicalDeviceSurfaceFormats(d.pdev, s.surf, &nfmt, nil)); err != nil {
		return err
	}
	fmts := make([]vk.SurfaceFormat, nfmt)
	if err := vkResult(vk.GetPhysicalDeviceSurfaceFormats(d.pdev, s.surf, &nfmt, fmts)); err != nil {
		return err
	}
	prefFmts := []struct {
		pf  driver.PixelFmt
		fmt vk.Format
	}{
		{driver.BGRA8sRGB, vk.FormatB8g8r8a8Srgb},
		{driver.RGBA8sRGB, vk.FormatR8g8b8a8Srgb},
		{driver.BGRA8un, vk.FormatB8g8r8a8Unorm},
		{driver.RGBA8un, vk.FormatR8g8b8a8Unorm},
	}
	ifmt := -1
	var colorSpace vk.ColorSpace
fmtLoop:
	for i := range prefFmts {
		for j := range fmts {
			fmts[j].Deref()
			if fmts[j].Format == prefFmts[i].fmt {
				s.pf = prefFmts[i].pf
				colorSpace = fmts[j].ColorSpace
				ifmt = j
				break fmtLoop
			}
		}
	}
	if ifmt < 0 {
		if nfmt == 0 {
			return driver.ErrCannotPresent
		}
		fmts[0].Deref()
		s.pf = driver.BGRA8un
		colorSpace = fmts[0].ColorSpace
	}

	var nmode uint32
	if err := vkResult(vk.GetPhysicalDeviceSurfacePresentModes(d.pdev, s.surf, &nmode, nil)); err != nil {
		return err
	}
	modes := make([]vk.PresentMode, nmode)
	if err := vkResult(vk.GetPhysicalDeviceSurfacePresentModes(d.pdev, s.surf, &nmode, modes)); err != nil {
		return err
	}
	wantN, mode := imageCountFor(s.vsync, modes)
	nimg := uint32(wantN)
	if capab.MinImageCount > nimg {
		nimg = capab.MinImageCount
	}
	if capab.MaxImageCount != 0 && capab.MaxImageCount < nimg {
		nimg = capab.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          s.surf,
		MinImageCount:    nimg,
		ImageFormat:      toVkFormat(s.pf),
		ImageColorSpace:  colorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     capab.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      mode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}
	var sc vk.Swapchain
	if err := vkResult(vk.CreateSwapchain(d.dev, &info, nil, &sc)); err != nil {
		return err
	}
	if old != vk.NullSwapchain {
		vk.DeviceWaitIdle(d.dev)
		vk.DestroySwapchain(d.dev, old, nil)
	}
	s.sc = sc
	s.extent = extent
	s.mode = fromVkPresentMode(mode)

	var n uint32
	vk.GetSwapchainImages(d.dev, sc, &n, nil)
	imgs := make([]vk.Image, n)
	if err := vkResult(vk.GetSwapchainImages(d.dev, sc, &n, imgs)); err != nil {
		return err
	}
	s.imgs = imgs

	for _, v := range s.views {
		vk.DestroyImageView(d.dev, v.view, nil)
	}
	views := make([]*ImageView, n)
	viewIfaces := make([]driver.ImageView, n)
	vfmt := toVkFormat(s.pf)
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		ViewType: vk.ImageViewType2d,
		Format:   vfmt,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	for i := range imgs {
		viewInfo.Image = imgs[i]
		var view vk.ImageView
		if err := vkResult(vk.CreateImageView(d.dev, &viewInfo, nil, &view)); err != nil {
			return err
		}
		img := &Image{d: d, img: imgs[i], format: vfmt, layers: 1, levels: 1, samples: 1, owned: false}
		iv := &ImageView{d: d, img: img, view: view}
		views[i] = iv
		viewIfaces[i] = iv
	}
	s.views = views
	s.viewIfaces = viewIfaces

	for _, sem := range s.acquireSems {
		vk.DestroySemaphore(d.dev, sem, nil)
	}
	for _, sem := range s.renderSems {
		vk.DestroySemaphore(d.dev, sem, nil)
	}
	s.acquireSems = make([]vk.Semaphore, n)
	s.renderSems = make([]vk.Semaphore, n)
	semInfo := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	for i := range s.acquireSems {
		if err := vkResult(vk.CreateSemaphore(d.dev, &semInfo, nil, &s.acquireSems[i])); err != nil {
			return err
		}
		if err := vkResult(vk.CreateSemaphore(d.dev, &semInfo, nil, &s.renderSems[i])); err != nil {
			return err
		}
	}
	s.imgSlot = make([]int, n)
	s.curSlot = 0
	s.broken = false
	return nil
}

// Views returns the list of image views that comprises the
// swapchain.
func (s *swapchain) Views() []driver.ImageView {
	return append([]driver.ImageView(nil), s.viewIfaces...)
}

// Next returns the index of the next writable image view. The
// acquire semaphore for the chosen frame slot is stashed on cb
// so that Driver.Commit knows to wait on it.
func (s *swapchain) Next(cb driver.CmdBuffer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return -1, driver.ErrSwapchain
	}
	c, ok := cb.(*CmdBuffer)
	if !ok {
		return -1, errors.New("vk: cb does not belong to this GPU")
	}
	slot := s.curSlot
	s.curSlot = (s.curSlot + 1) % len(s.acquireSems)
	var idx uint32
	res := vk.AcquireNextImage(s.d.dev, s.sc, ^uint64(0), s.acquireSems[slot], vk.NullFence, &idx)
	switch res {
	case vk.Success, vk.Suboptimal:
		s.imgSlot[idx] = slot
		c.scWaitSem = s.acquireSems[slot]
		return int(idx), nil
	case vk.ErrorOutOfDate:
		s.broken = true
		return -1, driver.ErrSwapchain
	default:
		return -1, vkResult(res)
	}
}

// Present presents the image view identified by index. cb is
// tagged so that Driver.Commit signals the matching
// render-finished semaphore and enqueues the present request
// once submission completes.
func (s *swapchain) Present(index int, cb driver.CmdBuffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return driver.ErrSwapchain
	}
	c, ok := cb.(*CmdBuffer)
	if !ok {
		return errors.New("vk: cb does not belong to this GPU")
	}
	slot := s.imgSlot[index]
	c.scSignalSem = s.renderSems[slot]
	c.scPresent = s
	c.scImage = index
	return nil
}

// present enqueues an image for presentation, waiting on the
// render-finished semaphore for the frame slot that acquired
// it. Driver.Commit calls it from the goroutine that waits on
// the submission's fence, once that fence has signaled.
func (s *swapchain) present(index int, wait vk.Semaphore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken {
		return driver.ErrSwapchain
	}
	info := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.sc},
		PImageIndices:      []uint32{uint32(index)},
	}
	res := vk.QueuePresent(s.d.ques[0], &info)
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal, vk.ErrorOutOfDate:
		s.broken = true
		return driver.ErrSwapchain
	default:
		return vkResult(res)
	}
}

// Recreate recreates the swapchain, preserving its VSyncMode.
func (s *swapchain) Recreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	vk.DeviceWaitIdle(s.d.dev)
	return s.create(s.sc)
}

// Format returns the image views' PixelFmt.
func (s *swapchain) Format() driver.PixelFmt { return s.pf }

// Desc returns the swapchain's current configuration.
func (s *swapchain) Desc() driver.SwapchainDesc {
	return driver.SwapchainDesc{
		Format:      s.pf,
		Extent:      driver.Dim3D{Width: int(s.extent.Width), Height: int(s.extent.Height), Depth: 1},
		ImageCount:  len(s.imgs),
		PresentMode: s.mode,
	}
}

func (s *swapchain) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vk.DeviceWaitIdle(s.d.dev)
	for _, sem := range s.acquireSems {
		vk.DestroySemaphore(s.d.dev, sem, nil)
	}
	for _, sem := range s.renderSems {
		vk.DestroySemaphore(s.d.dev, sem, nil)
	}
	for _, v := range s.views {
		vk.DestroyImageView(s.d.dev, v.view, nil)
	}
	vk.DestroySwapchain(s.d.dev, s.sc, nil)
	vk.DestroySurface(s.d.inst, s.surf, nil)
	*s = swapchain{}
}
