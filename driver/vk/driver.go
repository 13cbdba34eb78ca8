// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package vk implements driver interfaces using the Vulkan API,
// through the github.com/vulkan-go/vulkan bindings.
package vk

import (
	"errors"
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
)

const driverName = "vulkan"

// Driver implements driver.Driver and driver.GPU.
type Driver struct {
	inst  vk.Instance
	pdev  vk.PhysicalDevice
	dname string
	dvers uint32
	dev   vk.Device
	ques  []vk.Queue
	qfam  uint32

	// Mutexes for ques synchronization: queue submission
	// requires the queue handle be externally
	// synchronized, so Commit calls for different queues
	// can still run concurrently.
	qmus []sync.Mutex

	// Enabled device extensions, by name.
	exts map[string]bool

	mprop vk.PhysicalDeviceMemoryProperties
	mused []int64

	lim  driver.Limits
	feat driver.Features
}

func init() {
	driver.Register(&Driver{})
}

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	if d.dev != vk.NullDevice {
		return d, nil
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vk: loader init: %w", err)
	}
	if err := d.initInstance(); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.initDevice(); err != nil {
		d.Close()
		return nil, err
	}
	d.qmus = make([]sync.Mutex, len(d.ques))
	return d, nil
}

// Name returns the driver name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	if d == nil {
		return
	}
	if d.dev != vk.NullDevice {
		vk.DeviceWaitIdle(d.dev)
		// TODO: ensure every resource created from d.dev
		// was destroyed first.
		vk.DestroyDevice(d.dev, nil)
	}
	if d.inst != vk.NullInstance {
		vk.DestroyInstance(d.inst, nil)
	}
	*d = Driver{}
}

// Driver returns the receiver (for driver.GPU conformance).
func (d *Driver) Driver() driver.Driver { return d }

// Limits returns the implementation limits.
func (d *Driver) Limits() driver.Limits { return d.lim }

// Features returns the implementation features.
func (d *Driver) Features() driver.Features { return d.feat }

// DeviceName returns the name of the VkPhysicalDevice the
// driver selected.
func (d *Driver) DeviceName() string { return d.dname }

// DeviceVersion returns the Vulkan version the selected
// VkPhysicalDevice reports support for, encoded the same way
// VkPhysicalDeviceProperties.apiVersion is.
func (d *Driver) DeviceVersion() uint32 { return d.dvers }

// initInstance creates the VkInstance, enabling every instance
// extension wsi's platform backend needs for surface creation
// (see ext.go).
func (d *Driver) initInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:      vk.StructureTypeApplicationInfo,
		ApiVersion: vk.ApiVersion10,
	}
	names := instanceExtNames()
	info := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(names)),
		PpEnabledExtensionNames: names,
	}
	var inst vk.Instance
	if err := vkResult(vk.CreateInstance(&info, nil, &inst)); err != nil {
		return err
	}
	d.inst = inst
	vk.InitInstance(inst)
	return nil
}

// initDevice selects a physical device, creates the logical
// device and fetches its queues.
func (d *Driver) initDevice() error {
	var n uint32
	if err := vkResult(vk.EnumeratePhysicalDevices(d.inst, &n, nil)); err != nil {
		return err
	}
	if n == 0 {
		return driver.ErrNoDevice
	}
	pdevs := make([]vk.PhysicalDevice, n)
	if err := vkResult(vk.EnumeratePhysicalDevices(d.inst, &n, pdevs)); err != nil {
		return err
	}

	weight := 0
	for _, pd := range pdevs {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(pd, &props)
		props.Deref()

		var qn uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &qn, nil)
		qprops := make([]vk.QueueFamilyProperties, qn)
		vk.GetPhysicalDeviceQueueFamilyProperties(pd, &qn, qprops)

		fam := -1
		need := vk.QueueFlags(vk.QueueGraphicsBit) | vk.QueueFlags(vk.QueueComputeBit)
		for i := range qprops {
			qprops[i].Deref()
			if vk.QueueFlags(qprops[i].QueueFlags)&need == need {
				fam = i
				break
			}
		}
		if fam < 0 {
			continue
		}

		wgt := 1
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu || props.DeviceType == vk.PhysicalDeviceTypeIntegratedGpu {
			wgt++
		}
		_, avail := deviceExtNames(pd)
		if avail[extSwapchain] {
			wgt += 2
		}
		if avail[extAccelStruct] && avail[extRTPipeline] {
			wgt += 4
		}
		if wgt <= weight {
			continue
		}
		weight = wgt
		d.pdev = pd
		props.DeviceName[len(props.DeviceName)-1] = 0
		d.dname = vk.ToString(props.DeviceName[:])
		d.dvers = props.ApiVersion
		d.qfam = uint32(fam)
		nque := qprops[fam].QueueCount
		if nque > 4 {
			nque = 4 // one for each command-buffer kind this package records
		}
		d.ques = make([]vk.Queue, nque)
		d.exts = avail
		d.setLimits(&props.Limits)
		d.setFeatures(avail)
	}
	if weight == 0 {
		return driver.ErrNoDevice
	}

	vk.GetPhysicalDeviceMemoryProperties(d.pdev, &d.mprop)
	d.mprop.Deref()
	d.mused = make([]int64, d.mprop.MemoryHeapCount)

	prio := make([]float32, len(d.ques))
	for i := range prio {
		prio[i] = 1
	}
	queInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: d.qfam,
		QueueCount:       uint32(len(d.ques)),
		PQueuePriorities: prio,
	}
	names := enabledDeviceExtNames(d.exts)
	info := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queInfo},
		EnabledExtensionCount:   uint32(len(names)),
		PpEnabledExtensionNames: names,
	}
	var dev vk.Device
	if err := vkResult(vk.CreateDevice(d.pdev, &info, nil, &dev)); err != nil {
		return err
	}
	d.dev = dev
	for i := range d.ques {
		var q vk.Queue
		vk.GetDeviceQueue(dev, d.qfam, uint32(i), &q)
		d.ques[i] = q
	}
	return nil
}

// setLimits sets d.lim from the selected device's properties.
func (d *Driver) setLimits(lim *vk.PhysicalDeviceLimits) {
	lim.Deref()
	d.lim = driver.Limits{
		MaxImage1D:   int(lim.MaxImageDimension1D),
		MaxImage2D:   int(lim.MaxImageDimension2D),
		MaxImageCube: int(lim.MaxImageDimensionCube),
		MaxImage3D:   int(lim.MaxImageDimension3D),
		MaxLayers:    int(lim.MaxImageArrayLayers),

		MaxDescHeaps:      int(lim.MaxBoundDescriptorSets),
		MaxDBuffer:        int(lim.MaxPerStageDescriptorStorageBuffers),
		MaxDImage:         int(lim.MaxPerStageDescriptorStorageImages),
		MaxDConstant:      int(lim.MaxPerStageDescriptorUniformBuffers),
		MaxDTexture:       int(lim.MaxPerStageDescriptorSampledImages),
		MaxDSampler:       int(lim.MaxPerStageDescriptorSamplers),
		MaxDBufferRange:   int64(lim.MaxStorageBufferRange),
		MaxDConstantRange: int64(lim.MaxUniformBufferRange),

		MaxColorTargets: int(lim.MaxColorAttachments),
		MaxFBSize:       [2]int{int(lim.MaxFramebufferWidth), int(lim.MaxFramebufferHeight)},
		MaxFBLayers:     int(lim.MaxFramebufferLayers),
		MaxViewports:    int(lim.MaxViewports),

		MaxVertexIn:   int(lim.MaxVertexInputBindings),
		MaxFragmentIn: int(lim.MaxFragmentInputComponents / 4),

		MaxDispatch: [3]int{
			int(lim.MaxComputeWorkGroupCount[0]),
			int(lim.MaxComputeWorkGroupCount[1]),
			int(lim.MaxComputeWorkGroupCount[2]),
		},
	}
}

// setFeatures sets d.feat from which optional extensions the
// selected device advertised.
func (d *Driver) setFeatures(avail map[string]bool) {
	var fq vk.PhysicalDeviceFeatures
	vk.GetPhysicalDeviceFeatures(d.pdev, &fq)
	fq.Deref()
	d.feat = driver.Features{
		CubeArray: fq.ImageCubeArray == vk.True,
	}
}

// HasRayTracing reports whether the selected device exposes
// both VK_KHR_acceleration_structure and
// VK_KHR_ray_tracing_pipeline. engine/internal/ctxt surfaces
// this indirectly: Renderer.newRenderer fails with a clear
// error instead of panicking deep in a pass constructor when
// it does not.
func (d *Driver) HasRayTracing() bool {
	return d.exts[extAccelStruct] && d.exts[extRTPipeline]
}

// selectMemoryType returns the index of a memory type
// satisfying typeBits and every flag in prop, or -1 if the
// device exposes none.
func (d *Driver) selectMemoryType(typeBits uint32, prop vk.MemoryPropertyFlags) int {
	for i := 0; i < int(d.mprop.MemoryTypeCount); i++ {
		if typeBits&(1<<uint(i)) == 0 {
			continue
		}
		d.mprop.MemoryTypes[i].Deref()
		if vk.MemoryPropertyFlags(d.mprop.MemoryTypes[i].PropertyFlags)&prop == prop {
			return i
		}
	}
	return -1
}

// allocMemory allocates size bytes of device memory satisfying
// req, preferring device-local memory and falling back to
// whatever the device actually exposes when visible is
// requested (UMA devices commonly expose a single
// host-visible, device-local heap).
func (d *Driver) allocMemory(req vk.MemoryRequirements, visible bool) (vk.DeviceMemory, int, error) {
	req.Deref()
	prop := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if visible {
		prop |= vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) | vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	}
	typ := d.selectMemoryType(req.MemoryTypeBits, prop)
	if typ < 0 {
		prop &^= vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
		typ = d.selectMemoryType(req.MemoryTypeBits, prop)
	}
	if typ < 0 {
		return vk.NullDeviceMemory, 0, errors.New("vk: no suitable memory type found")
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(typ),
	}
	var mem vk.DeviceMemory
	if err := vkResult(vk.AllocateMemory(d.dev, &info, nil, &mem)); err != nil {
		return vk.NullDeviceMemory, 0, err
	}
	d.mprop.MemoryTypes[typ].Deref()
	heap := int(d.mprop.MemoryTypes[typ].HeapIndex)
	d.mused[heap] += int64(req.Size)
	return mem, heap, nil
}

func (d *Driver) freeMemory(mem vk.DeviceMemory, heap int, size int64) {
	vk.FreeMemory(d.dev, mem, nil)
	d.mused[heap] -= size
}

// vkResult converts a vk.Result into an error, following the
// same VK_ERROR_*-to-sentinel mapping regardless of which
// call produced it.
func vkResult(res vk.Result) error {
	switch res {
	case vk.Success, vk.Incomplete, vk.Suboptimal:
		return nil
	case vk.ErrorOutOfHostMemory:
		return driver.ErrNoHostMemory
	case vk.ErrorOutOfDeviceMemory:
		return driver.ErrNoDeviceMemory
	case vk.ErrorDeviceLost:
		return driver.ErrFatal
	case vk.ErrorOutOfDate:
		return driver.ErrSwapchain
	case vk.ErrorInitializationFailed:
		return errors.New("vk: initialization failed")
	case vk.ErrorExtensionNotPresent:
		return errors.New("vk: extension not present")
	case vk.ErrorFeatureNotPresent:
		return errors.New("vk: feature not present")
	case vk.ErrorIncompatibleDriver:
		return errors.New("vk: incompatible driver")
	case vk.ErrorTooManyObjects:
		return errors.New("vk: too many objects")
	case vk.ErrorFormatNotSupported:
		return errors.New("vk: format not supported")
	case vk.ErrorSurfaceLost:
		return errors.New("vk: surface lost")
	case vk.ErrorNativeWindowInUse:
		return errors.New("vk: native window in use")
	default:
		return fmt.Errorf("vk: result %d", int(res))
	}
}
