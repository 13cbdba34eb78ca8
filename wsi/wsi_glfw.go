// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/go-gl/glfw/v3.3/glfw"

	"hybridrender.dev/hri/driver"
)

func init() {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		// wsi falls back to the None platform; NewWindow
		// will fail and Dispatch becomes a no-op.
		return
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	newWindow = newGlfwWindow
	dispatch = glfw.PollEvents
	setAppName = func(string) {}
	platform = Glfw
}

// glfwWindow implements Window over a *glfw.Window, the
// window system backend used by the renderer's command-line
// front end.
type glfwWindow struct {
	mu    sync.Mutex
	h     *glfw.Window
	title string
}

func newGlfwWindow(width, height int, title string) (Window, error) {
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	h, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("wsi: glfw.CreateWindow: %w", err)
	}
	win := &glfwWindow{h: h, title: title}
	h.SetCloseCallback(func(*glfw.Window) {})
	return win, nil
}

func (w *glfwWindow) Map() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.h.Show()
	return nil
}

func (w *glfwWindow) Unmap() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.h.Hide()
	return nil
}

func (w *glfwWindow) Resize(width, height int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.h.SetSize(width, height)
	return nil
}

func (w *glfwWindow) SetTitle(title string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.h.SetTitle(title)
	w.title = title
	return nil
}

func (w *glfwWindow) Close() {
	w.mu.Lock()
	w.h.Destroy()
	w.mu.Unlock()
	closeWindow(w)
}

func (w *glfwWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	width, _ := w.h.GetSize()
	return width
}

func (w *glfwWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, height := w.h.GetSize()
	return height
}

func (w *glfwWindow) Title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}

func (w *glfwWindow) ShouldClose() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.h.ShouldClose()
}

// Surface returns a driver.SurfaceFunc bound to this window,
// suitable for passing to a driver.Presenter implementation
// backed by Vulkan. The GLFW window was created with
// glfw.NoAPI, so no OpenGL/ES context competes for the
// surface.
func (w *glfwWindow) Surface() driver.SurfaceFunc {
	return func(instance driver.InstanceHandle) (driver.SurfaceHandle, error) {
		w.mu.Lock()
		defer w.mu.Unlock()
		surface, err := w.h.CreateWindowSurface(uintptr(instance), nil)
		if err != nil {
			return 0, fmt.Errorf("wsi: CreateWindowSurface: %w", err)
		}
		return driver.SurfaceHandle(surface), nil
	}
}

// RequiredInstanceExtensions returns the Vulkan instance
// extensions GLFW needs in order to create a surface, e.g.
// VK_KHR_surface and a platform-specific one.
func RequiredInstanceExtensions() []string {
	if platform != Glfw {
		return nil
	}
	return glfw.GetRequiredInstanceExtensions()
}
