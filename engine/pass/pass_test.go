// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package pass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/driver/drivertest"
)

func newTestGPU(t *testing.T) *drivertest.GPU {
	t.Helper()
	drv := &drivertest.Driver{}
	gpu, err := drv.Open()
	require.NoError(t, err)
	return gpu.(*drivertest.GPU)
}

func TestOffscreenRecreatePreservesRenderPass(t *testing.T) {
	gpu := newTestGPU(t)
	att := []driver.Attachment{{Samples: 1, Store: [2]driver.StoreOp{driver.SStore, driver.SDontCare}}}
	sub := []driver.Subpass{{Color: []int{0}, DS: -1}}
	cfgs := []AttachmentConfig{{Format: driver.RGBA8un, Usage: driver.URenderTarget | driver.UShaderSample}}

	off, err := NewOffscreen(gpu, att, sub, cfgs, driver.Dim3D{Width: 640, Height: 480, Depth: 1})
	require.NoError(t, err)
	defer off.Destroy()

	rp := off.RenderPass()
	view1 := off.View(0)
	require.NotNil(t, view1)

	require.NoError(t, off.Recreate(driver.Dim3D{Width: 1920, Height: 1080, Depth: 1}))
	assert.Same(t, rp, off.RenderPass(), "Recreate must preserve the render pass, per the resize contract")
	assert.NotNil(t, off.View(0))
}

func TestNewRngGenBuildsOutput(t *testing.T) {
	gpu := newTestGPU(t)
	seedHeap, err := gpu.NewDescHeap([]driver.Descriptor{{Type: driver.DConstant, Stages: driver.SCompute, Nr: 0, Len: 1}})
	require.NoError(t, err)
	outHeap, err := gpu.NewDescHeap([]driver.Descriptor{{Type: driver.DImage, Stages: driver.SCompute, Nr: 0, Len: 1}})
	require.NoError(t, err)

	extent := driver.Dim3D{Width: 256, Height: 256, Depth: 1}
	r, err := NewRngGen(gpu, 2, seedHeap, outHeap, extent)
	require.NoError(t, err)
	defer r.Destroy()

	assert.Equal(t, KindRngGen, r.Kind())
	assert.NotNil(t, r.Output())
}

func TestKindStringCoversEveryKind(t *testing.T) {
	for k := KindRngGen; k <= KindUI; k++ {
		assert.NotContains(t, k.String(), "pass.Kind(")
	}
}
