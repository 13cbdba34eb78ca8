// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package drivertest provides an in-memory driver.GPU
// implementation with no real GPU behind it.
// It exists so that engine/frame and engine/pass can be
// exercised deterministically in tests, following the
// pattern of a software test harness recommended for the
// frame-slot and barrier-completeness invariants.
package drivertest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"hybridrender.dev/hri/driver"
	"hybridrender.dev/hri/wsi"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver. It never fails to open
// and always returns the same *GPU instance.
type Driver struct {
	mu  sync.Mutex
	gpu *GPU
}

// Name implements driver.Driver.
func (d *Driver) Name() string { return "mock" }

// Open implements driver.Driver.
func (d *Driver) Open() (driver.GPU, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gpu == nil {
		d.gpu = &GPU{drv: d}
	}
	return d.gpu, nil
}

// Close implements driver.Driver.
func (d *Driver) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gpu = nil
}

// GPU implements driver.GPU, driver.Presenter,
// driver.AccelStructBuilder and driver.RTPipeliner entirely
// in host memory.
type GPU struct {
	drv    *Driver
	commit int64
}

// Driver implements driver.GPU.
func (g *GPU) Driver() driver.Driver { return g.drv }

// CommitCount returns how many work items have been
// committed so far. Tests use it to check that exactly one
// submission happens per StartFrame/EndFrame cycle.
func (g *GPU) CommitCount() int64 { return atomic.LoadInt64(&g.commit) }

// Commit implements driver.GPU.
// It runs commands synchronously (there is no real device
// timeline to race against) and delivers wk on ch once
// "execution" completes, matching the asynchronous contract
// that real backends expose.
func (g *GPU) Commit(wk *driver.WorkItem, ch chan<- *driver.WorkItem) error {
	if wk == nil || len(wk.Work) == 0 || ch == nil {
		panic("drivertest: invalid call to GPU.Commit")
	}
	atomic.AddInt64(&g.commit, 1)
	for _, cb := range wk.Work {
		mcb := cb.(*CmdBuffer)
		if !mcb.ended {
			wk.Err = fmt.Errorf("drivertest: command buffer committed without End")
			ch <- wk
			return nil
		}
		mcb.executed = true
	}
	wk.Err = nil
	ch <- wk
	return nil
}

// NewCmdBuffer implements driver.GPU.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	return &CmdBuffer{gpu: g}, nil
}

// NewRenderPass implements driver.GPU.
func (g *GPU) NewRenderPass(att []driver.Attachment, sub []driver.Subpass) (driver.RenderPass, error) {
	a := make([]driver.Attachment, len(att))
	copy(a, att)
	s := make([]driver.Subpass, len(sub))
	copy(s, sub)
	return &RenderPass{att: a, sub: s}, nil
}

// NewShaderCode implements driver.GPU.
func (g *GPU) NewShaderCode(data []byte) (driver.ShaderCode, error) {
	cpy := make([]byte, len(data))
	copy(cpy, data)
	return &ShaderCode{data: cpy}, nil
}

// NewDescHeap implements driver.GPU.
func (g *GPU) NewDescHeap(ds []driver.Descriptor) (driver.DescHeap, error) {
	seen := map[int]bool{}
	for i := range ds {
		if seen[ds[i].Nr] {
			return nil, fmt.Errorf("drivertest: descriptor number %d not unique", ds[i].Nr)
		}
		seen[ds[i].Nr] = true
	}
	d := make([]driver.Descriptor, len(ds))
	copy(d, ds)
	return &DescHeap{ds: d}, nil
}

// NewDescTable implements driver.GPU.
func (g *GPU) NewDescTable(dh []driver.DescHeap) (driver.DescTable, error) {
	h := make([]driver.DescHeap, len(dh))
	copy(h, dh)
	return &DescTable{heaps: h}, nil
}

// NewPipeline implements driver.GPU.
func (g *GPU) NewPipeline(state any) (driver.Pipeline, error) {
	switch t := state.(type) {
	case *driver.GraphState:
		return &Pipeline{bindPoint: "graphics", state: *t}, nil
	case *driver.CompState:
		return &Pipeline{bindPoint: "compute", state: *t}, nil
	default:
		return nil, fmt.Errorf("drivertest: unknown pipeline state type %T", state)
	}
}

// NewBuffer implements driver.GPU.
func (g *GPU) NewBuffer(size int64, visible bool, usg driver.Usage) (driver.Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("drivertest: invalid buffer size %d", size)
	}
	b := &Buffer{size: size, visible: visible, usage: usg}
	if visible {
		b.data = make([]byte, size)
	}
	return b, nil
}

// NewImage implements driver.GPU.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, layers, levels, samples int, usg driver.Usage) (driver.Image, error) {
	return &Image{format: pf, dim: size, layers: layers, levels: levels, samples: samples, usage: usg}, nil
}

// NewSampler implements driver.GPU.
func (g *GPU) NewSampler(spln *driver.Sampling) (driver.Sampler, error) {
	s := *spln
	return &Sampler{param: s}, nil
}

// NewPipelineCache implements driver.GPU.
func (g *GPU) NewPipelineCache(data []byte) (driver.PipelineCache, error) {
	pc := &PipelineCache{}
	if len(data) > len(mockCacheHeader) && string(data[:len(mockCacheHeader)]) == mockCacheHeader {
		pc.entries = append(pc.entries, string(data[len(mockCacheHeader):]))
	}
	return pc, nil
}

// Limits implements driver.GPU.
func (g *GPU) Limits() driver.Limits {
	return driver.Limits{
		MaxImage2D:        16384,
		MaxImageCube:      16384,
		MaxImage3D:        2048,
		MaxLayers:         2048,
		MaxDescHeaps:      4,
		MaxDBuffer:        4,
		MaxDImage:         4,
		MaxDConstant:      12,
		MaxDTexture:       16,
		MaxDSampler:       16,
		MaxDBufferRange:   1 << 27,
		MaxDConstantRange: 1 << 14,
		MaxColorTargets:   8,
		MaxFBSize:         [2]int{16384, 16384},
		MaxFBLayers:       2048,
		MaxViewports:      16,
		MaxVertexIn:       16,
		MaxFragmentIn:     16,
		MaxDispatch:       [3]int{65535, 65535, 65535},
	}
}

// Features implements driver.GPU.
func (g *GPU) Features() driver.Features {
	return driver.Features{CubeArray: true}
}

// NewSwapchain implements driver.Presenter.
// width/height describe the simulated surface extent; tests
// drive resize/minimize scenarios through Swapchain.SetExtent
// and Swapchain.ForceInvalid.
func (g *GPU) NewSwapchain(win wsi.Window, vsync driver.VSyncMode) (driver.Swapchain, error) {
	count, mode := vsyncParams(vsync)
	sc := &Swapchain{
		gpu:   g,
		vsync: vsync,
		desc: driver.SwapchainDesc{
			Format:      driver.RGBA8un,
			Extent:      driver.Dim3D{Width: 1280, Height: 720, Depth: 1},
			ImageCount:  count,
			PresentMode: mode,
		},
	}
	sc.rebuildViews()
	return sc, nil
}

func vsyncParams(v driver.VSyncMode) (int, driver.PresentMode) {
	switch v {
	case driver.Disabled:
		return 3, driver.PMailbox
	case driver.DoubleBuffering:
		return 2, driver.PFifo
	case driver.TripleBuffering:
		return 3, driver.PFifo
	default:
		return 2, driver.PFifo
	}
}

// NewBLAS implements driver.AccelStructBuilder.
func (g *GPU) NewBLAS(geom []driver.GeometryTriangles) (driver.AccelStruct, error) {
	return &AccelStruct{typ: driver.ABottomLevel, geom: append([]driver.GeometryTriangles{}, geom...)}, nil
}

// NewTLAS implements driver.AccelStructBuilder.
func (g *GPU) NewTLAS(inst []driver.Instance) (driver.AccelStruct, error) {
	return &AccelStruct{typ: driver.ATopLevel, inst: append([]driver.Instance{}, inst...)}, nil
}

// NewRTPipeline implements driver.RTPipeliner.
func (g *GPU) NewRTPipeline(state *driver.RTState) (driver.RTPipeline, error) {
	if state.MaxRecursion <= 0 {
		return nil, fmt.Errorf("drivertest: MaxRecursion must be positive")
	}
	return &RTPipeline{Pipeline: Pipeline{bindPoint: "raytracing"}, groups: append([]driver.ShaderGroup{}, state.Groups...)}, nil
}

// NewShaderTable implements driver.RTPipeliner.
func (g *GPU) NewShaderTable(pl driver.RTPipeline, rgen, miss, hit, call []int) (driver.ShaderTable, error) {
	if len(rgen) != 1 {
		return nil, fmt.Errorf("drivertest: shader table needs exactly one ray-generation group")
	}
	const stride = 64
	tbl := &ShaderTable{}
	off := int64(0)
	place := func(kind driver.ShaderTableKind, n int) {
		tbl.regions[kind] = [3]int64{off, stride, int64(n) * stride}
		off += int64(n) * stride
	}
	place(driver.TableRayGen, len(rgen))
	place(driver.TableMiss, len(miss))
	place(driver.TableHit, len(hit))
	place(driver.TableCall, len(call))
	return tbl, nil
}

// TraceRays implements driver.RTPipeliner.
func (g *GPU) TraceRays(cb driver.CmdBuffer, tbl driver.ShaderTable, width, height, depth int) {
	mcb := cb.(*CmdBuffer)
	mcb.traces = append(mcb.traces, TraceCall{Table: tbl, Width: width, Height: height, Depth: depth})
}

const mockCacheHeader = "drivertest-pipeline-cache-v1:"
