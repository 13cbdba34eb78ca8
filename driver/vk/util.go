// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"unsafe"
)

var errUnknownPipelineState = errors.New("vk: state must be a *driver.GraphState or a *driver.CompState")

// ptrToBytes reinterprets the n bytes at p as a byte slice,
// for host-visible memory mapped by vk.MapMemory. The slice is
// only valid for as long as the mapping is kept alive.
func ptrToBytes(p unsafe.Pointer, n int) []byte {
	return unsafe.Slice((*byte)(p), n)
}
