// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hybridrender.dev/hri/engine/scene"
	"hybridrender.dev/hri/engine/shaderdb"
	"hybridrender.dev/hri/internal/config"
	"hybridrender.dev/hri/wsi"
)

// newTestDB opens a shaderdb.DB against the package's selected
// GPU, with no persisted pipeline cache (an empty path disables
// persistence, matching engine/common's own test helper).
func newTestDB(t *testing.T) *shaderdb.DB {
	t.Helper()
	db, err := shaderdb.Open(GPU(), "")
	require.NoError(t, err)
	return db
}

// checkInit asserts the invariants newRenderer's construction
// must leave in place, regardless of onscreen/offscreen mode:
// every core pass is present, and exactly one of the mutually
// exclusive direct-illumination/path-tracing passes was built
// for the requested config.RenderMode.
func (r *Renderer) checkInit(cfg config.Config, t *testing.T) {
	t.Helper()
	require.NotNil(t, r.rng)
	require.NotNil(t, r.gbuf)
	require.NotNil(t, r.smpl)
	require.NotNil(t, r.deferred)
	switch cfg.RenderMode {
	case config.ModeReference:
		assert.NotNil(t, r.pt)
		assert.Nil(t, r.di)
	default:
		assert.NotNil(t, r.di)
		assert.Nil(t, r.pt)
	}
	assert.NotEmpty(t, r.passes)
}

func TestNewOffscreen(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	cfg := config.Default()
	scn := &scene.Scene{}
	width, height := 320, 240

	rend, err := NewOffscreen(width, height, cfg, db, scn)
	require.NoError(t, err)
	defer rend.Destroy()

	rend.checkInit(cfg, t)
	assert.Nil(t, rend.present)
	assert.Nil(t, rend.ui)
	require.NotNil(t, rend.Target())
}

func TestOffscreenDrawFrame(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	cfg := config.Default()
	scn := &scene.Scene{}
	rend, err := NewOffscreen(320, 240, cfg, db, scn)
	require.NoError(t, err)
	defer rend.Destroy()

	for i := 0; i < cfg.FramesInFlight+1; i++ {
		assert.NoError(t, rend.DrawFrame(nil))
	}
}

func TestOffscreenResize(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	cfg := config.Default()
	scn := &scene.Scene{}
	rend, err := NewOffscreen(320, 240, cfg, db, scn)
	require.NoError(t, err)
	defer rend.Destroy()

	require.NoError(t, rend.Resize(640, 480))
	require.NotNil(t, rend.Target())
	assert.NoError(t, rend.DrawFrame(nil))
}

func TestNewOnscreen(t *testing.T) {
	win, err := wsi.NewWindow(480, 270, "TestNewOnscreen")
	require.NoError(t, err)
	defer win.Close()

	db := newTestDB(t)
	defer db.Close()

	cfg := config.Default()
	scn := &scene.Scene{}
	rend, err := NewOnscreen(win, cfg, db, scn)
	require.NoError(t, err)
	defer rend.Destroy()

	assert.Equal(t, win, rend.Window())
	rend.checkInit(cfg, t)
	assert.NotNil(t, rend.present)
	assert.NotNil(t, rend.ui)
}

func TestNewOnscreenNilWindow(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	_, err := NewOnscreen(nil, config.Default(), db, &scene.Scene{})
	assert.Error(t, err)
}

func TestOnscreenDrawFrame(t *testing.T) {
	win, err := wsi.NewWindow(480, 270, "TestOnscreenDrawFrame")
	require.NoError(t, err)
	defer win.Close()

	db := newTestDB(t)
	defer db.Close()

	cfg := config.Default()
	rend, err := NewOnscreen(win, cfg, db, &scene.Scene{})
	require.NoError(t, err)
	defer rend.Destroy()

	for i := 0; i < cfg.FramesInFlight+1; i++ {
		assert.NoError(t, rend.DrawFrame(nil))
	}
}

func TestDestroyNil(t *testing.T) {
	var rend *Renderer
	assert.NotPanics(t, func() { rend.Destroy() })
	var ons *Onscreen
	assert.NotPanics(t, func() { ons.Destroy() })
}
