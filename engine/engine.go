// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements the core of a hybrid real-time
// renderer: rasterized and ray-traced G-buffer passes, ray
// traced direct illumination, an offline-quality path-traced
// reference mode, deferred shading and presentation.
//
// Engine-wide tuning knobs (frames in flight, ray recursion
// depth, descriptor pool growth, render mode selection) live
// in package config, not here.
package engine

import (
	"hybridrender.dev/hri/engine/common"
	"hybridrender.dev/hri/engine/descset"
)

// Common is the per-frame state engine/pass.Pass implementations
// read and write. It is defined in engine/common, a leaf package
// both this package and engine/pass can depend on without the two
// importing each other.
type Common = common.Common

// DescSetManager accumulates descriptor writes against a pass's
// heaps and flushes them to a single frame slot's copy at a time.
// It is defined in engine/descset for the same reason Common is
// defined in engine/common.
type DescSetManager = descset.Manager
