// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build windows

package vk

import vk "github.com/vulkan-go/vulkan"

// platformSurfaceExtNames returns the instance extension
// wsi's GLFW-backed window needs for native surface creation
// on Windows.
func platformSurfaceExtNames() []string {
	return []string{vk.KhrWin32SurfaceExtensionName}
}
