// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package descset

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

func TestQueueDoesNotReachHeapBeforeFlush(t *testing.T) {
	gpu := newTestGPU(t)
	dh, err := gpu.NewDescHeap([]driver.Descriptor{{Type: driver.DConstant, Stages: driver.SFragment, Nr: 0, Len: 1}})
	require.NoError(t, err)

	m, err := New(gpu, 3, dh)
	require.NoError(t, err)
	defer m.Destroy()

	buf, err := gpu.NewBuffer(256, true, driver.UShaderConst)
	require.NoError(t, err)
	defer buf.Destroy()

	m.QueueBuffer(0, 0, 0, []driver.Buffer{buf}, []int64{0}, []int64{256})
	assert.Equal(t, 1, m.Pending())
	assert.Empty(t, dh.(*drivertest.DescHeap).Writes)

	m.Flush(1)
	assert.Equal(t, 0, m.Pending())
	writes := dh.(*drivertest.DescHeap).Writes
	require.Len(t, writes, 1)
	assert.Equal(t, 1, writes[0].Cpy)
	assert.Equal(t, "SetBuffer", writes[0].Method)
}

func TestFlushAppliesToRequestedCopyOnly(t *testing.T) {
	gpu := newTestGPU(t)
	dh, err := gpu.NewDescHeap([]driver.Descriptor{{Type: driver.DImage, Stages: driver.SCompute, Nr: 0, Len: 1}})
	require.NoError(t, err)

	m, err := New(gpu, 2, dh)
	require.NoError(t, err)
	defer m.Destroy()

	img, err := gpu.NewImage(driver.RGBA8un, driver.Dim3D{Width: 1, Height: 1, Depth: 1}, 1, 1, 1, driver.UShaderWrite)
	require.NoError(t, err)
	defer img.Destroy()
	iv, err := img.NewView(driver.IView2D, 0, 1, 0, 1)
	require.NoError(t, err)
	defer iv.Destroy()

	m.QueueImage(0, 0, 0, []driver.ImageView{iv})
	m.Flush(0)
	m.QueueImage(0, 0, 0, []driver.ImageView{iv})
	m.Flush(1)

	writes := dh.(*drivertest.DescHeap).Writes
	require.Len(t, writes, 2)
	assert.Equal(t, 0, writes[0].Cpy)
	assert.Equal(t, 1, writes[1].Cpy)
}
