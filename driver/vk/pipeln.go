// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

// Pipeline implements driver.Pipeline.
type Pipeline struct {
	d    *Driver
	pl   vk.Pipeline
	bind vk.PipelineBindPoint
}

// PipelineCache implements driver.PipelineCache.
type PipelineCache struct {
	d     *Driver
	cache vk.PipelineCache
}

// NewPipelineCache creates a new pipeline cache, optionally
// initialized from data previously returned by
// PipelineCache.Data.
func (d *Driver) NewPipelineCache(data []byte) (driver.PipelineCache, error) {
	info := vk.PipelineCacheCreateInfo{SType: vk.StructureTypePipelineCacheCreateInfo}
	if len(data) > 0 {
		info.InitialDataSize = uint(len(data))
		info.PInitialData = unsafe.Pointer(&data[0])
	}
	var cache vk.PipelineCache
	if err := vkResult(vk.CreatePipelineCache(d.dev, &info, nil, &cache)); err != nil {
		return nil, err
	}
	return &PipelineCache{d: d, cache: cache}, nil
}

// Data returns the cache's contents, suitable for reuse in a
// later call to NewPipelineCache.
func (c *PipelineCache) Data() ([]byte, error) {
	var n uint
	if err := vkResult(vk.GetPipelineCacheData(c.d.dev, c.cache, &n, nil)); err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if n > 0 {
		if err := vkResult(vk.GetPipelineCacheData(c.d.dev, c.cache, &n, unsafe.Pointer(&data[0]))); err != nil {
			return nil, err
		}
	}
	return data[:n], nil
}

func (c *PipelineCache) Destroy() {
	if c == nil {
		return
	}
	vk.DestroyPipelineCache(c.d.dev, c.cache, nil)
	*c = PipelineCache{}
}

func toVkTopology(t driver.Topology) vk.PrimitiveTopology {
	switch t {
	case driver.TPoint:
		return vk.PrimitiveTopologyPointList
	case driver.TLine:
		return vk.PrimitiveTopologyLineList
	case driver.TLnStrip:
		return vk.PrimitiveTopologyLineStrip
	case driver.TTriStrip:
		return vk.PrimitiveTopologyTriangleStrip
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func toVkCullMode(c driver.CullMode) vk.CullModeFlags {
	switch c {
	case driver.CFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case driver.CBack:
		return vk.CullModeFlags(vk.CullModeBackBit)
	default:
		return vk.CullModeFlags(vk.CullModeNone)
	}
}

func toVkPolygonMode(f driver.FillMode) vk.PolygonMode {
	if f == driver.FLines {
		return vk.PolygonModeLine
	}
	return vk.PolygonModeFill
}

func vertFmtSize(f driver.VertexFmt) (vk.Format, int) {
	switch f {
	case driver.Int8:
		return vk.FormatR8Sint, 1
	case driver.Int8x2:
		return vk.FormatR8g8Sint, 2
	case driver.Int8x3:
		return vk.FormatR8g8b8Sint, 3
	case driver.Int8x4:
		return vk.FormatR8g8b8a8Sint, 4
	case driver.Int16:
		return vk.FormatR16Sint, 2
	case driver.Int16x2:
		return vk.FormatR16g16Sint, 4
	case driver.Int16x3:
		return vk.FormatR16g16b16Sint, 6
	case driver.Int16x4:
		return vk.FormatR16g16b16a16Sint, 8
	case driver.Int32:
		return vk.FormatR32Sint, 4
	case driver.Int32x2:
		return vk.FormatR32g32Sint, 8
	case driver.Int32x3:
		return vk.FormatR32g32b32Sint, 12
	case driver.Int32x4:
		return vk.FormatR32g32b32a32Sint, 16
	case driver.UInt8:
		return vk.FormatR8Uint, 1
	case driver.UInt8x2:
		return vk.FormatR8g8Uint, 2
	case driver.UInt8x3:
		return vk.FormatR8g8b8Uint, 3
	case driver.UInt8x4:
		return vk.FormatR8g8b8a8Uint, 4
	case driver.UInt16:
		return vk.FormatR16Uint, 2
	case driver.UInt16x2:
		return vk.FormatR16g16Uint, 4
	case driver.UInt16x3:
		return vk.FormatR16g16b16Uint, 6
	case driver.UInt16x4:
		return vk.FormatR16g16b16a16Uint, 8
	case driver.UInt32:
		return vk.FormatR32Uint, 4
	case driver.UInt32x2:
		return vk.FormatR32g32Uint, 8
	case driver.UInt32x3:
		return vk.FormatR32g32b32Uint, 12
	case driver.UInt32x4:
		return vk.FormatR32g32b32a32Uint, 16
	case driver.Float32:
		return vk.FormatR32Sfloat, 4
	case driver.Float32x2:
		return vk.FormatR32g32Sfloat, 8
	case driver.Float32x3:
		return vk.FormatR32g32b32Sfloat, 12
	default:
		return vk.FormatR32g32b32a32Sfloat, 16
	}
}

func toVkBlendOp(b driver.BlendOp) vk.BlendOp {
	switch b {
	case driver.BSubtract:
		return vk.BlendOpSubtract
	case driver.BRevSubtract:
		return vk.BlendOpReverseSubtract
	case driver.BMin:
		return vk.BlendOpMin
	case driver.BMax:
		return vk.BlendOpMax
	default:
		return vk.BlendOpAdd
	}
}

func toVkBlendFactor(b driver.BlendFac) vk.BlendFactor {
	switch b {
	case driver.BOne:
		return vk.BlendFactorOne
	case driver.BSrcColor:
		return vk.BlendFactorSrcColor
	case driver.BInvSrcColor:
		return vk.BlendFactorOneMinusSrcColor
	case driver.BSrcAlpha:
		return vk.BlendFactorSrcAlpha
	case driver.BInvSrcAlpha:
		return vk.BlendFactorOneMinusSrcAlpha
	case driver.BDstColor:
		return vk.BlendFactorDstColor
	case driver.BInvDstColor:
		return vk.BlendFactorOneMinusDstColor
	case driver.BDstAlpha:
		return vk.BlendFactorDstAlpha
	case driver.BInvDstAlpha:
		return vk.BlendFactorOneMinusDstAlpha
	case driver.BSrcAlphaSaturated:
		return vk.BlendFactorSrcAlphaSaturate
	case driver.BBlendColor:
		return vk.BlendFactorConstantColor
	case driver.BInvBlendColor:
		return vk.BlendFactorOneMinusConstantColor
	default:
		return vk.BlendFactorZero
	}
}

// newGraphicsPipeline builds a VkGraphicsPipelineCreateInfo
// from a driver.GraphState and creates the pipeline.
func (d *Driver) newGraphicsPipeline(s *driver.GraphState) (driver.Pipeline, error) {
	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: s.VertFunc.Code.(*ShaderCode).handle(),
			PName:  cString(s.VertFunc.Name),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: s.FragFunc.Code.(*ShaderCode).handle(),
			PName:  cString(s.FragFunc.Name),
		},
	}

	binds := make([]vk.VertexInputBindingDescription, len(s.Input))
	attrs := make([]vk.VertexInputAttributeDescription, len(s.Input))
	for i, in := range s.Input {
		format, _ := vertFmtSize(in.Format)
		binds[i] = vk.VertexInputBindingDescription{Binding: uint32(i), Stride: uint32(in.Stride), InputRate: vk.VertexInputRateVertex}
		attrs[i] = vk.VertexInputAttributeDescription{Location: uint32(in.Nr), Binding: uint32(i), Format: format}
	}
	vertInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(binds)),
		PVertexBindingDescriptions:      binds,
		VertexAttributeDescriptionCount: uint32(len(attrs)),
		PVertexAttributeDescriptions:    attrs,
	}

	assembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: toVkTopology(s.Topology),
	}

	viewport := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	raster := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode:             toVkPolygonMode(s.Raster.Fill),
		CullMode:                toVkCullMode(s.Raster.Cull),
		FrontFace:               frontFace(s.Raster.Clockwise),
		DepthBiasEnable:         vk.Bool32(boolToVk(s.Raster.DepthBias)),
		DepthBiasConstantFactor: s.Raster.BiasValue,
		DepthBiasSlopeFactor:    s.Raster.BiasSlope,
		DepthBiasClamp:          s.Raster.BiasClamp,
		LineWidth:               1,
	}

	multi := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: sampleCountFlag(s.Samples),
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  vk.Bool32(boolToVk(s.DS.DepthTest)),
		DepthWriteEnable: vk.Bool32(boolToVk(s.DS.DepthWrite)),
		DepthCompareOp:   toVkCmpOp(s.DS.DepthCmp),
		StencilTestEnable: vk.Bool32(boolToVk(s.DS.StencilTest)),
		Front:            toVkStencilOpState(s.DS.Front),
		Back:             toVkStencilOpState(s.DS.Back),
	}

	var colorBlends []vk.PipelineColorBlendAttachmentState
	if len(s.Blend.Color) == 0 {
		colorBlends = []vk.PipelineColorBlendAttachmentState{{ColorWriteMask: vk.ColorComponentFlags(0xf)}}
	} else {
		colorBlends = make([]vk.PipelineColorBlendAttachmentState, len(s.Blend.Color))
		for i, cb := range s.Blend.Color {
			src := cb
			if !s.Blend.IndependentBlend {
				src = s.Blend.Color[0]
			}
			colorBlends[i] = vk.PipelineColorBlendAttachmentState{
				BlendEnable:         vk.Bool32(boolToVk(src.Blend)),
				SrcColorBlendFactor: toVkBlendFactor(src.SrcFac[0]),
				DstColorBlendFactor: toVkBlendFactor(src.DstFac[0]),
				ColorBlendOp:        toVkBlendOp(src.Op[0]),
				SrcAlphaBlendFactor: toVkBlendFactor(src.SrcFac[1]),
				DstAlphaBlendFactor: toVkBlendFactor(src.DstFac[1]),
				AlphaBlendOp:        toVkBlendOp(src.Op[1]),
				ColorWriteMask:      vk.ColorComponentFlags(src.WriteMask),
			}
		}
	}
	blend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(colorBlends)),
		PAttachments:    colorBlends,
	}

	dynStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor, vk.DynamicStateBlendConstants, vk.DynamicStateStencilReference}
	dyn := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynStates)),
		PDynamicStates:    dynStates,
	}

	info := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:           uint32(len(stages)),
		PStages:               stages,
		PVertexInputState:     &vertInput,
		PInputAssemblyState:   &assembly,
		PViewportState:        &viewport,
		PRasterizationState:   &raster,
		PMultisampleState:     &multi,
		PDepthStencilState:    &depthStencil,
		PColorBlendState:      &blend,
		PDynamicState:         &dyn,
		Layout:                s.Desc.(*DescTable).handle(),
		RenderPass:            s.Pass.(*RenderPass).handle(),
		Subpass:               uint32(s.Subpass),
	}
	pls := make([]vk.Pipeline, 1)
	if err := vkResult(vk.CreateGraphicsPipelines(d.dev, vk.NullPipelineCache, 1, []vk.GraphicsPipelineCreateInfo{info}, nil, pls)); err != nil {
		return nil, err
	}
	return &Pipeline{d: d, pl: pls[0], bind: vk.PipelineBindPointGraphics}, nil
}

func frontFace(clockwise bool) vk.FrontFace {
	if clockwise {
		return vk.FrontFaceClockwise
	}
	return vk.FrontFaceCounterClockwise
}

func toVkStencilOp(s driver.StencilOp) vk.StencilOp {
	switch s {
	case driver.SZero:
		return vk.StencilOpZero
	case driver.SReplace:
		return vk.StencilOpReplace
	case driver.SIncClamp:
		return vk.StencilOpIncrementAndClamp
	case driver.SDecClamp:
		return vk.StencilOpDecrementAndClamp
	case driver.SInvert:
		return vk.StencilOpInvert
	case driver.SIncWrap:
		return vk.StencilOpIncrementAndWrap
	case driver.SDecWrap:
		return vk.StencilOpDecrementAndWrap
	default:
		return vk.StencilOpKeep
	}
}

func toVkStencilOpState(s driver.StencilT) vk.StencilOpState {
	return vk.StencilOpState{
		FailOp:      toVkStencilOp(s.DSFail[0]),
		DepthFailOp: toVkStencilOp(s.DSFail[1]),
		PassOp:      toVkStencilOp(s.Pass),
		CompareOp:   toVkCmpOp(s.Cmp),
		CompareMask: s.ReadMask,
		WriteMask:   s.WriteMask,
	}
}

// newComputePipeline builds a VkComputePipelineCreateInfo from
// a driver.CompState and creates the pipeline.
func (d *Driver) newComputePipeline(s *driver.CompState) (driver.Pipeline, error) {
	info := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: s.Func.Code.(*ShaderCode).handle(),
			PName:  cString(s.Func.Name),
		},
		Layout: s.Desc.(*DescTable).handle(),
	}
	pls := make([]vk.Pipeline, 1)
	if err := vkResult(vk.CreateComputePipelines(d.dev, vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{info}, nil, pls)); err != nil {
		return nil, err
	}
	return &Pipeline{d: d, pl: pls[0], bind: vk.PipelineBindPointCompute}, nil
}

// NewPipeline creates a new pipeline. state must be a pointer
// to a driver.GraphState or a driver.CompState.
func (d *Driver) NewPipeline(state any) (driver.Pipeline, error) {
	switch s := state.(type) {
	case *driver.GraphState:
		return d.newGraphicsPipeline(s)
	case *driver.CompState:
		return d.newComputePipeline(s)
	default:
		return nil, errUnknownPipelineState
	}
}

func cString(s string) string {
	// vulkan-go's PName field accepts a plain Go string and
	// null-terminates it internally.
	return s
}

func (p *Pipeline) handle() vk.Pipeline           { return p.pl }
func (p *Pipeline) bindPoint() vk.PipelineBindPoint { return p.bind }

func (p *Pipeline) Destroy() {
	if p == nil {
		return
	}
	vk.DestroyPipeline(p.d.dev, p.pl, nil)
	*p = Pipeline{}
}
