// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrender.dev/hri/driver/drivertest"
	"hybridrender.dev/hri/engine/scene"
	"hybridrender.dev/hri/engine/shaderdb"
)

func newTest(t *testing.T) (*drivertest.GPU, *shaderdb.DB, *scene.Scene) {
	t.Helper()
	drv := &drivertest.Driver{}
	u, err := drv.Open()
	require.NoError(t, err)
	gpu := u.(*drivertest.GPU)
	db, err := shaderdb.Open(gpu, "")
	require.NoError(t, err)
	return gpu, db, &scene.Scene{}
}

func TestNewAllocatesBuffers(t *testing.T) {
	gpu, db, sc := newTest(t)
	defer db.Close()

	c, err := New(gpu, db, sc)
	require.NoError(t, err)
	defer c.Destroy()

	assert.NotNil(t, c.CameraBuffer())
	assert.NotNil(t, c.InstanceBuffer())
	assert.NotNil(t, c.MaterialBuffer())
	assert.GreaterOrEqual(t, c.InstanceBuffer().Cap(), int64(minInstanceCapacity))
	assert.GreaterOrEqual(t, c.MaterialBuffer().Cap(), int64(minMaterialCapacity))
}

func TestUpdateCameraWritesLayout(t *testing.T) {
	gpu, db, sc := newTest(t)
	defer db.Close()

	c, err := New(gpu, db, sc)
	require.NoError(t, err)
	defer c.Destroy()

	c.FrameIndex = 7
	c.Seed = 0.5
	c.UpdateCamera()

	before := c.CameraBuffer().Bytes()
	all := true
	for _, b := range before {
		if b != 0 {
			all = false
			break
		}
	}
	assert.False(t, all, "expected UpdateCamera to write non-zero bytes into the camera buffer")
}

func TestUpdateSceneGrowsInstanceBuffer(t *testing.T) {
	gpu, db, sc := newTest(t)
	defer db.Close()

	c, err := New(gpu, db, sc)
	require.NoError(t, err)
	defer c.Destroy()

	initialCap := c.InstanceBuffer().Cap()

	for i := 0; i < minInstanceCapacity+1; i++ {
		sc.AddInstance(scene.Instance{})
	}

	require.NoError(t, c.UpdateScene())
	assert.Greater(t, c.InstanceBuffer().Cap(), initialCap)
}
