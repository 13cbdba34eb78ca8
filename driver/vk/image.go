// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

// Image implements driver.Image.
type Image struct {
	d       *Driver
	img     vk.Image
	mem     vk.DeviceMemory
	heap    int
	size    int64
	format  vk.Format
	layers  int
	levels  int
	samples int
	// owned is false for images borrowed from a swapchain,
	// whose VkImage handles are destroyed by
	// vkDestroySwapchainKHR rather than by this type.
	owned bool
}

// ImageView implements driver.ImageView.
type ImageView struct {
	d    *Driver
	img  *Image
	view vk.ImageView
}

func toVkFormat(pf driver.PixelFmt) vk.Format {
	switch pf {
	case driver.RGBA8un:
		return vk.FormatR8g8b8a8Unorm
	case driver.RGBA8n:
		return vk.FormatR8g8b8a8Snorm
	case driver.RGBA8sRGB:
		return vk.FormatR8g8b8a8Srgb
	case driver.BGRA8un:
		return vk.FormatB8g8r8a8Unorm
	case driver.BGRA8sRGB:
		return vk.FormatB8g8r8a8Srgb
	case driver.RG8un:
		return vk.FormatR8g8Unorm
	case driver.RG8n:
		return vk.FormatR8g8Snorm
	case driver.R8un:
		return vk.FormatR8Unorm
	case driver.R8n:
		return vk.FormatR8Snorm
	case driver.RGBA16f:
		return vk.FormatR16g16b16a16Sfloat
	case driver.RG16f:
		return vk.FormatR16g16Sfloat
	case driver.R16f:
		return vk.FormatR16Sfloat
	case driver.RGBA32f:
		return vk.FormatR32g32b32a32Sfloat
	case driver.RG32f:
		return vk.FormatR32g32Sfloat
	case driver.R32f:
		return vk.FormatR32Sfloat
	case driver.D16un:
		return vk.FormatD16Unorm
	case driver.D32f:
		return vk.FormatD32Sfloat
	case driver.S8ui:
		return vk.FormatS8Uint
	case driver.D24unS8ui:
		return vk.FormatD24UnormS8Uint
	case driver.D32fS8ui:
		return vk.FormatD32SfloatS8Uint
	default:
		return vk.FormatUndefined
	}
}

func usageToImageUsage(usg driver.Usage, isDS bool) vk.ImageUsageFlags {
	var f vk.ImageUsageFlagBits
	if usg&driver.UShaderRead != 0 || usg&driver.UShaderWrite != 0 {
		f |= vk.ImageUsageStorageBit
	}
	if usg&driver.UShaderSample != 0 {
		f |= vk.ImageUsageSampledBit
	}
	if usg&driver.URenderTarget != 0 {
		if isDS {
			f |= vk.ImageUsageDepthStencilAttachmentBit
		} else {
			f |= vk.ImageUsageColorAttachmentBit
		}
	}
	return vk.ImageUsageFlags(f) | vk.ImageUsageFlags(vk.ImageUsageTransferSrcBit) | vk.ImageUsageFlags(vk.ImageUsageTransferDstBit)
}

func isDepthStencil(pf driver.PixelFmt) bool {
	switch pf {
	case driver.D16un, driver.D32f, driver.S8ui, driver.D24unS8ui, driver.D32fS8ui:
		return true
	default:
		return false
	}
}

// NewImage creates a new image.
func (d *Driver) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	imgType := vk.ImageType2d
	if size.Depth > 1 {
		imgType = vk.ImageType3d
	}
	format := toVkFormat(pf)
	isDS := isDepthStencil(pf)
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imgType,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  uint32(size.Width),
			Height: uint32(size.Height),
			Depth:  uint32(size.Depth),
		},
		MipLevels:     uint32(levels),
		ArrayLayers:   uint32(layers),
		Samples:       sampleCountFlag(samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usageToImageUsage(usg, isDS),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if err := vkResult(vk.CreateImage(d.dev, &info, nil, &img)); err != nil {
		return nil, err
	}
	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.dev, img, &req)
	mem, heap, err := d.allocMemory(req, false)
	if err != nil {
		vk.DestroyImage(d.dev, img, nil)
		return nil, err
	}
	if err := vkResult(vk.BindImageMemory(d.dev, img, mem, 0)); err != nil {
		d.freeMemory(mem, heap, int64(req.Size))
		vk.DestroyImage(d.dev, img, nil)
		return nil, err
	}
	return &Image{d: d, img: img, mem: mem, heap: heap, size: int64(req.Size), format: format, layers: layers, levels: levels, samples: samples, owned: true}, nil
}

func sampleCountFlag(samples int) vk.SampleCountFlagBits {
	switch samples {
	case 2:
		return vk.SampleCount2Bit
	case 4:
		return vk.SampleCount4Bit
	case 8:
		return vk.SampleCount8Bit
	case 16:
		return vk.SampleCount16Bit
	default:
		return vk.SampleCount1Bit
	}
}

func toVkViewType(t driver.ViewType) vk.ImageViewType {
	switch t {
	case driver.IView1D:
		return vk.ImageViewType1d
	case driver.IView3D:
		return vk.ImageViewType3d
	case driver.IViewCube:
		return vk.ImageViewTypeCube
	case driver.IView1DArray:
		return vk.ImageViewType1dArray
	case driver.IView2DArray, driver.IView2DMSArray:
		return vk.ImageViewType2dArray
	case driver.IViewCubeArray:
		return vk.ImageViewTypeCubeArray
	default:
		return vk.ImageViewType2d
	}
}

func aspectMask(format vk.Format) vk.ImageAspectFlags {
	switch format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case vk.FormatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	case vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit) | vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}

// NewView creates a new image view.
func (img *Image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img.img,
		ViewType: toVkViewType(typ),
		Format:   img.format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectMask(img.format),
			BaseMipLevel:   uint32(level),
			LevelCount:     uint32(levels),
			BaseArrayLayer: uint32(layer),
			LayerCount:     uint32(layers),
		},
	}
	var view vk.ImageView
	if err := vkResult(vk.CreateImageView(img.d.dev, &info, nil, &view)); err != nil {
		return nil, err
	}
	return &ImageView{d: img.d, img: img, view: view}, nil
}

func (img *Image) handle() vk.Image { return img.img }

func (img *Image) Destroy() {
	if img == nil {
		return
	}
	if img.owned {
		vk.DestroyImage(img.d.dev, img.img, nil)
		img.d.freeMemory(img.mem, img.heap, img.size)
	}
	*img = Image{}
}

func (v *ImageView) Image() driver.Image { return v.img }
func (v *ImageView) handle() vk.ImageView { return v.view }

func (v *ImageView) Destroy() {
	if v == nil {
		return
	}
	vk.DestroyImageView(v.d.dev, v.view, nil)
	*v = ImageView{}
}
