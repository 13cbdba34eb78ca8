// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"errors"

	"hybridrender.dev/hri/driver"
)

// Buffer implements driver.Buffer.
type Buffer struct {
	size    int64
	visible bool
	usage   driver.Usage
	data    []byte
}

func (b *Buffer) Destroy()         {}
func (b *Buffer) Visible() bool    { return b.visible }
func (b *Buffer) Cap() int64       { return b.size }
func (b *Buffer) Bytes() []byte    { return b.data }

// Image implements driver.Image.
type Image struct {
	format  driver.PixelFmt
	dim     driver.Dim3D
	layers  int
	levels  int
	samples int
	usage   driver.Usage
	views   []*ImageView
}

func (img *Image) Destroy() {}

func (img *Image) NewView(typ driver.ViewType, layer, layers, level, levels int) (driver.ImageView, error) {
	if layer+layers > img.layers || level+levels > img.levels {
		return nil, errors.New("drivertest: view subresource out of range")
	}
	v := &ImageView{img: img, typ: typ, layer: layer, layers: layers, level: level, levels: levels}
	img.views = append(img.views, v)
	return v, nil
}

// ImageView implements driver.ImageView.
type ImageView struct {
	img                    *Image
	typ                    driver.ViewType
	layer, layers          int
	level, levels          int
	destroyed              bool
}

func (v *ImageView) Destroy() { v.destroyed = true }

func (v *ImageView) Image() driver.Image { return v.img }

// Sampler implements driver.Sampler.
type Sampler struct{ param driver.Sampling }

func (s *Sampler) Destroy() {}

// DescHeap implements driver.DescHeap.
type DescHeap struct {
	ds    []driver.Descriptor
	count int
	buf   map[int][][]Buffer
	img   map[int][][]*ImageView
	splr  map[int][][]Sampler
	as    map[int][][]driver.AccelStruct

	// Writes records every SetBuffer/SetImage/SetSampler/
	// SetAccelStruct call, in order, so descriptor-flush tests
	// can assert exactly which heap copy a write landed on.
	Writes []DescWrite
}

// DescWrite is one recorded SetBuffer/SetImage/SetSampler/
// SetAccelStruct call against a DescHeap.
type DescWrite struct {
	Method string // "SetBuffer", "SetImage", "SetSampler" or "SetAccelStruct"
	Cpy    int
	Nr     int
	Start  int
}

func (h *DescHeap) Destroy() {}

func (h *DescHeap) New(n int) error {
	if n == h.count {
		return nil
	}
	h.count = n
	h.buf = make(map[int][][]Buffer)
	h.img = make(map[int][][]*ImageView)
	h.splr = make(map[int][][]Sampler)
	h.as = make(map[int][][]driver.AccelStruct)
	return nil
}

func (h *DescHeap) SetBuffer(cpy, nr, start int, buf []driver.Buffer, off, size []int64) {
	h.Writes = append(h.Writes, DescWrite{Method: "SetBuffer", Cpy: cpy, Nr: nr, Start: start})
}

func (h *DescHeap) SetImage(cpy, nr, start int, iv []driver.ImageView) {
	h.Writes = append(h.Writes, DescWrite{Method: "SetImage", Cpy: cpy, Nr: nr, Start: start})
}

func (h *DescHeap) SetSampler(cpy, nr, start int, splr []driver.Sampler) {
	h.Writes = append(h.Writes, DescWrite{Method: "SetSampler", Cpy: cpy, Nr: nr, Start: start})
}

func (h *DescHeap) SetAccelStruct(cpy, nr, start int, as []driver.AccelStruct) {
	h.Writes = append(h.Writes, DescWrite{Method: "SetAccelStruct", Cpy: cpy, Nr: nr, Start: start})
}

func (h *DescHeap) Count() int { return h.count }

// DescTable implements driver.DescTable.
type DescTable struct{ heaps []driver.DescHeap }

func (t *DescTable) Destroy() {}

// RenderPass implements driver.RenderPass.
type RenderPass struct {
	att []driver.Attachment
	sub []driver.Subpass
}

func (p *RenderPass) Destroy() {}

func (p *RenderPass) NewFB(iv []driver.ImageView, width, height, layers int) (driver.Framebuf, error) {
	if len(iv) != len(p.att) {
		return nil, errors.New("drivertest: framebuffer view count mismatch")
	}
	v := make([]driver.ImageView, len(iv))
	copy(v, iv)
	return &Framebuf{views: v, width: width, height: height, layers: layers}, nil
}

// Framebuf implements driver.Framebuf.
type Framebuf struct {
	views                 []driver.ImageView
	width, height, layers int
}

func (f *Framebuf) Destroy() {}

// ShaderCode implements driver.ShaderCode.
type ShaderCode struct{ data []byte }

func (s *ShaderCode) Destroy() {}

// Pipeline implements driver.Pipeline.
type Pipeline struct {
	bindPoint string
	state     any
}

func (p *Pipeline) Destroy() {}

// RTPipeline implements driver.RTPipeline.
type RTPipeline struct {
	Pipeline
	groups []driver.ShaderGroup
}

func (p *RTPipeline) GroupHandles() ([]byte, error) {
	b := make([]byte, len(p.groups)*64)
	for i := range b {
		b[i] = byte(i)
	}
	return b, nil
}

// AccelStruct implements driver.AccelStruct.
type AccelStruct struct {
	typ  driver.AccelStructType
	geom []driver.GeometryTriangles
	inst []driver.Instance
}

func (a *AccelStruct) Destroy()                        {}
func (a *AccelStruct) Type() driver.AccelStructType     { return a.typ }

// ShaderTable implements driver.ShaderTable.
type ShaderTable struct {
	regions [4][3]int64 // [kind] = {offset, stride, size}
}

func (t *ShaderTable) Destroy() {}

func (t *ShaderTable) Region(kind driver.ShaderTableKind) (offset, stride, size int64) {
	r := t.regions[kind]
	return r[0], r[1], r[2]
}

// PipelineCache implements driver.PipelineCache.
type PipelineCache struct{ entries []string }

func (c *PipelineCache) Destroy() {}

func (c *PipelineCache) Data() ([]byte, error) {
	data := []byte(mockCacheHeader)
	for _, e := range c.entries {
		data = append(data, []byte(e)...)
	}
	return data, nil
}

// TraceCall records a single TraceRays invocation for
// assertions in tests.
type TraceCall struct {
	Table                  driver.ShaderTable
	Width, Height, Depth   int
}
