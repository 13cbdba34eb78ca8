// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import vk "github.com/vulkan-go/vulkan"

// Device extension names this driver understands. extSwapchain
// is required; the rest are optional and only change what
// Driver.Features/HasRayTracing report.
const (
	extSwapchain            = "VK_KHR_swapchain"
	extDynamicRendering     = "VK_KHR_dynamic_rendering"
	extSynchronization2     = "VK_KHR_synchronization2"
	extAccelStruct          = "VK_KHR_acceleration_structure"
	extRTPipeline           = "VK_KHR_ray_tracing_pipeline"
	extDeferredHostOps      = "VK_KHR_deferred_host_operations"
	extBufferDeviceAddress  = "VK_KHR_buffer_device_address"
	extDescriptorIndexing   = "VK_EXT_descriptor_indexing"
	extSpirv14              = "VK_KHR_spirv_1_4"
)

// wantDeviceExts lists, in the order they should be enabled
// when present, every device extension this package ever
// requests. Ray tracing support pulls in three extensions at
// once: VK_KHR_acceleration_structure needs
// VK_KHR_buffer_device_address and VK_KHR_deferred_host_operations,
// and VK_KHR_ray_tracing_pipeline needs VK_KHR_spirv_1_4 in turn.
var wantDeviceExts = []string{
	extSwapchain,
	extDynamicRendering,
	extSynchronization2,
	extBufferDeviceAddress,
	extDeferredHostOps,
	extDescriptorIndexing,
	extSpirv14,
	extAccelStruct,
	extRTPipeline,
}

// instanceExtNames returns the instance extensions needed for
// presentation: the generic surface extension plus whichever
// platform-surface extension wsi's backend requires. Only the
// generic one is listed here; platform-specific ones come from
// platformSurfaceExtNames in the ext_*.go file matching the
// build's GOOS.
func instanceExtNames() []string {
	names := append([]string{vk.KhrSurfaceExtensionName}, platformSurfaceExtNames()...)
	return toCStrings(names)
}

// deviceExtNames enumerates pd's supported device extensions
// and returns both the subset of wantDeviceExts it can satisfy
// (as a set, keyed by name) and the raw list, for diagnostics.
func deviceExtNames(pd vk.PhysicalDevice) ([]string, map[string]bool) {
	var n uint32
	vk.EnumerateDeviceExtensionProperties(pd, "", &n, nil)
	props := make([]vk.ExtensionProperties, n)
	vk.EnumerateDeviceExtensionProperties(pd, "", &n, props)

	have := make(map[string]bool, n)
	for i := range props {
		props[i].Deref()
		have[vk.ToString(props[i].ExtensionName[:])] = true
	}

	avail := make(map[string]bool, len(wantDeviceExts))
	names := make([]string, 0, len(wantDeviceExts))
	for _, name := range wantDeviceExts {
		if have[name] {
			avail[name] = true
			names = append(names, name)
		}
	}
	return names, avail
}

// enabledDeviceExtNames returns the C-string-ready extension
// name list to pass in VkDeviceCreateInfo, following
// wantDeviceExts's order and skipping whatever avail lacks.
// Dependent extensions are skipped if their dependency is
// absent, rather than enabled in a way the driver would reject.
func enabledDeviceExtNames(avail map[string]bool) []string {
	deps := map[string][]string{
		extAccelStruct: {extBufferDeviceAddress, extDeferredHostOps},
		extRTPipeline:  {extAccelStruct, extSpirv14},
	}
	enabled := make(map[string]bool, len(wantDeviceExts))
	names := make([]string, 0, len(wantDeviceExts))
	for _, name := range wantDeviceExts {
		ok := avail[name]
		for _, dep := range deps[name] {
			ok = ok && enabled[dep]
		}
		if ok {
			enabled[name] = true
			names = append(names, name)
		}
	}
	return toCStrings(names)
}

func toCStrings(names []string) []string {
	// vulkan-go's PpEnabledExtensionNames field accepts a plain
	// []string and handles the C string conversion internally.
	out := make([]string, len(names))
	copy(out, names)
	return out
}
