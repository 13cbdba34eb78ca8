// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package shaderdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrender.dev/hri/driver/drivertest"
)

func newTestGPU(t *testing.T) *drivertest.GPU {
	t.Helper()
	drv := &drivertest.Driver{}
	gpu, err := drv.Open()
	require.NoError(t, err)
	return gpu.(*drivertest.GPU)
}

func TestOpenEmptyCache(t *testing.T) {
	gpu := newTestGPU(t)
	db, err := Open(gpu, "")
	require.NoError(t, err)
	defer db.Close()
	assert.NotNil(t, db.cache)
}

func TestRegisterShaderReplacesPrior(t *testing.T) {
	gpu := newTestGPU(t)
	db, err := Open(gpu, "")
	require.NoError(t, err)
	defer db.Close()

	first, err := db.RegisterShader("vs.main", []byte{1, 2, 3})
	require.NoError(t, err)
	second, err := db.RegisterShader("vs.main", []byte{4, 5, 6})
	require.NoError(t, err)

	got, ok := db.Shader("vs.main")
	require.True(t, ok)
	assert.Same(t, second, got)
	assert.NotSame(t, first, got)
}

func TestFuncUnregisteredShader(t *testing.T) {
	gpu := newTestGPU(t)
	db, err := Open(gpu, "")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Func("missing", "main")
	assert.Error(t, err)
}

func TestPersistRoundTrip(t *testing.T) {
	gpu := newTestGPU(t)
	path := filepath.Join(t.TempDir(), "cache.bin")

	db, err := Open(gpu, path)
	require.NoError(t, err)
	require.NoError(t, db.Persist())
	db.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)

	db2, err := Open(gpu, path)
	require.NoError(t, err)
	defer db2.Close()
}
