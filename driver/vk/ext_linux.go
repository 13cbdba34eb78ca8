// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build linux

package vk

import vk "github.com/vulkan-go/vulkan"

// platformSurfaceExtNames returns the instance extension
// wsi's GLFW-backed window needs for native surface creation
// on Linux (Xlib; GLFW defaults to X11 unless built with
// wayland support).
func platformSurfaceExtNames() []string {
	return []string{vk.KhrXlibSurfaceExtensionName}
}
