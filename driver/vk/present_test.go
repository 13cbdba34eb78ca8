// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"fmt"
	"testing"

	vk "github.com/vulkan-go/vulkan"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/wsi"
)

func TestSwapchain(t *testing.T) {
	dim := [...][2]int{{480, 360}, {256, 256}, {600, 800}}
	vsync := [...]driver.VSyncMode{driver.Disabled, driver.DoubleBuffering, driver.TripleBuffering}
	win := [len(dim)]wsi.Window{}
	var err error
	for i := range dim {
		win[i], err = wsi.NewWindow(dim[i][0], dim[i][1], "My window")
		if err != nil {
			t.Fatalf("wsi.NewWindow() failed, cannot test swapchain\n%v", err)
		}
		if err := win[i].Map(); err != nil {
			t.Fatalf("Window.Map() failed, cannot test swapchain\n%v", err)
		}
		defer win[i].Close()
	}
	zs := swapchain{}
	for i := range win {
		for j := range vsync {
			call := fmt.Sprintf("tDrv.NewSwapchain(%v, %d)", win[i], vsync[j])
			sc, err := tDrv.NewSwapchain(win[i], vsync[j])
			if err != nil {
				t.Errorf("(error) %s: %v", call, err)
				continue
			}
			s := sc.(*swapchain)
			if s.d != &tDrv {
				t.Errorf("%s: s.d\nhave %p\nwant %p", call, s.d, &tDrv)
			}
			if s.surf == zs.surf {
				t.Errorf("%s: s.surf\nhave %v\nwant valid handle", call, s.surf)
			}
			if s.sc == zs.sc {
				t.Errorf("%s: s.sc\nhave %v\nwant valid handle", call, s.sc)
			}
			if len(s.views) == 0 {
				t.Errorf("%s: len(s.views)\nhave 0\nwant > 0", call)
			}
			iv := sc.Views()
			if len(iv) != len(s.views) {
				t.Errorf("%s: len(sc.Views())\nhave %d\nwant %d", call, len(iv), len(s.views))
			}
			for i := range iv {
				if iv[i] != s.viewIfaces[i] {
					t.Errorf("sc.Views()[%d]\nhave %v\nwant %v", i, iv[i], s.viewIfaces[i])
				}
			}
			pf := sc.Format()
			if pf != s.pf {
				t.Errorf("sc.Format()\nhave %d\nwant %d", pf, s.pf)
			}
			desc := sc.Desc()
			if desc.ImageCount != len(s.imgs) {
				t.Errorf("%s: sc.Desc().ImageCount\nhave %d\nwant %d", call, desc.ImageCount, len(s.imgs))
			}
			call = "sc.Destroy()"
			sc.Destroy()
			if s.d != nil {
				t.Errorf("%s: s.d\nhave %p\nwant nil", call, s.d)
			}
			if s.sc != zs.sc {
				t.Errorf("%s: s.sc\nhave %v\nwant null handle", call, s.sc)
			}
			if len(s.views) != 0 {
				t.Errorf("%s: len(s.views)\nhave %d\nwant 0", call, len(s.views))
			}
		}
	}
}

func TestSwapchainCannotPresent(t *testing.T) {
	if tDrv.exts[extSwapchain] {
		t.Skip("device supports VK_KHR_swapchain; nothing to test here")
	}
	win, err := wsi.NewWindow(480, 360, "")
	if err != nil {
		t.Fatalf("wsi.NewWindow() failed, cannot test swapchain\n%v", err)
	}
	defer win.Close()
	_, err = tDrv.NewSwapchain(win, driver.TripleBuffering)
	if !isError(err, driver.ErrCannotPresent) {
		t.Errorf("tDrv.NewSwapchain(): have %v, want driver.ErrCannotPresent", err)
	}
}

func TestSwapchainNextPresent(t *testing.T) {
	win, err := wsi.NewWindow(640, 480, "TestSwapchainNextPresent")
	if err != nil {
		t.Fatalf("wsi.NewWindow() failed, cannot test swapchain\n%v", err)
	}
	defer win.Close()
	win.Map()
	sc, err := tDrv.NewSwapchain(win, driver.TripleBuffering)
	if err != nil {
		t.Fatalf("tDrv.NewSwapchain() failed, cannot test swapchain.Next/Present\n%v", err)
	}
	defer sc.Destroy()

	cb, err := tDrv.NewCmdBuffer()
	if err != nil {
		t.Fatalf("tDrv.NewCmdBuffer() failed\n%v", err)
	}
	defer cb.Destroy()

	idx, err := sc.Next(cb)
	if err != nil {
		t.Fatalf("sc.Next() failed: %v", err)
	}
	if idx < 0 || idx >= sc.Desc().ImageCount {
		t.Errorf("sc.Next(): have %d, want 0 <= idx < %d", idx, sc.Desc().ImageCount)
	}
	c := cb.(*CmdBuffer)
	if c.scWaitSem == vk.NullSemaphore {
		t.Error("sc.Next(): cb.scWaitSem was not set")
	}
	if err := sc.Present(idx, cb); err != nil {
		t.Fatalf("sc.Present() failed: %v", err)
	}
	if c.scSignalSem == vk.NullSemaphore {
		t.Error("sc.Present(): cb.scSignalSem was not set")
	}
	if c.scPresent != sc.(*swapchain) {
		t.Error("sc.Present(): cb.scPresent was not set to the swapchain")
	}
	if c.scImage != idx {
		t.Errorf("sc.Present(): cb.scImage\nhave %d\nwant %d", c.scImage, idx)
	}
}

func TestSwapchainRecreate(t *testing.T) {
	win, err := wsi.NewWindow(800, 600, "")
	if err != nil {
		t.Fatalf("wsi.NewWindow() failed, cannot test swapchain\n%v", err)
	}
	defer win.Close()
	win.Map()
	sc, err := tDrv.NewSwapchain(win, driver.TripleBuffering)
	if err != nil {
		t.Fatalf("tDrv.NewSwapchain() failed, cannot test swapchain.Recreate()\n%v", err)
	}
	defer sc.Destroy()
	s := sc.(*swapchain)
	prevSc := s.sc
	win.Resize(480, 360)
	if err := sc.Recreate(); err != nil {
		t.Fatalf("sc.Recreate() failed: %v", err)
	}
	if s.sc == prevSc {
		t.Error("sc.Recreate(): s.sc was not replaced")
	}
	if s.broken {
		t.Error("sc.Recreate(): s.broken\nhave true\nwant false")
	}
	if len(s.views) == 0 {
		t.Error("sc.Recreate(): len(s.views)\nhave 0\nwant > 0")
	}
}
