// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

// AccelStruct implements driver.AccelStruct.
//
// Building acceleration structures requires the
// VK_KHR_acceleration_structure function pointers
// (vkCreateAccelerationStructureKHR, vkCmdBuildAccelerationStructuresKHR,
// vkGetAccelerationStructureBuildSizesKHR and friends), which this
// binding does not expose as generated wrappers. Driver.HasRayTracing
// reports whether the device and its extensions are present, but
// AccelStructBuilder/RTPipeliner are intentionally not implemented by
// Driver yet: doing so correctly requires resolving those functions
// dynamically through vk.GetDeviceProcAddr, mirroring how the
// VK_KHR_ray_tracing_pipeline entry points are resolved on platforms
// that load Vulkan at runtime. Until that loader is written, buf and
// handle stay unset and BuildAccelStructs (cmd.go) is a no-op.
type AccelStruct struct {
	d    *Driver
	vkas vk.AccelerationStructureKHR
	buf  *Buffer
	typ  driver.AccelStructType
}

func (as *AccelStruct) Type() driver.AccelStructType { return as.typ }

func (as *AccelStruct) handle() vk.AccelerationStructureKHR { return as.vkas }

func (as *AccelStruct) Destroy() {
	if as == nil {
		return
	}
	if as.buf != nil {
		as.buf.Destroy()
	}
	*as = AccelStruct{}
}
