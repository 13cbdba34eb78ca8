// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package descset implements the pending-write/flush
// descriptor set manager passes use to update their bindings
// once per frame.
package descset

import (
	"hybridrender.dev/hri/driver"
)

// pendingWrite records a single descriptor update queued
// against a Manager, to be applied in Flush.
type pendingWrite struct {
	heap  int
	nr    int
	start int
	buf   []driver.Buffer
	off   []int64
	size  []int64
	img   []driver.ImageView
	splr  []driver.Sampler
	as    []driver.AccelStruct
}

// Manager owns one driver.DescTable and accumulates
// descriptor writes against its heaps, applying them to a
// single heap copy only when Flush is called. This is the
// pending-write/flush split spec.md §4.3/§4.6 requires: a
// pass must never rewrite a descriptor copy the GPU may
// still be reading from a frame in flight, so writes queue
// up and get applied to the copy index the caller hands to
// Flush (normally the current frame slot).
type Manager struct {
	table   driver.DescTable
	heaps   []driver.DescHeap
	pending []pendingWrite
}

// New creates a manager over the given heaps, allocating a
// driver.DescTable from gpu and sizing every heap for copies
// copies (normally config.FramesInFlight).
func New(gpu driver.GPU, copies int, heaps ...driver.DescHeap) (*Manager, error) {
	for _, h := range heaps {
		if err := h.New(copies); err != nil {
			return nil, err
		}
	}
	table, err := gpu.NewDescTable(heaps)
	if err != nil {
		return nil, err
	}
	return &Manager{table: table, heaps: heaps}, nil
}

// Table returns the underlying driver.DescTable, for binding
// into a command buffer via SetDescTableGraph/SetDescTableComp.
func (m *Manager) Table() driver.DescTable { return m.table }

// QueueBuffer queues a buffer-range write against heap index
// heap, descriptor number nr, starting at index start. The
// write is not visible to the GPU until Flush.
func (m *Manager) QueueBuffer(heap, nr, start int, buf []driver.Buffer, off, size []int64) {
	m.pending = append(m.pending, pendingWrite{heap: heap, nr: nr, start: start, buf: buf, off: off, size: size})
}

// QueueImage queues an image-view write.
func (m *Manager) QueueImage(heap, nr, start int, iv []driver.ImageView) {
	m.pending = append(m.pending, pendingWrite{heap: heap, nr: nr, start: start, img: iv})
}

// QueueSampler queues a sampler write.
func (m *Manager) QueueSampler(heap, nr, start int, splr []driver.Sampler) {
	m.pending = append(m.pending, pendingWrite{heap: heap, nr: nr, start: start, splr: splr})
}

// QueueAccelStruct queues a top-level acceleration structure
// write, the binding DirectIllum/PathTrace use for the
// scene's TLAS.
func (m *Manager) QueueAccelStruct(heap, nr, start int, as []driver.AccelStruct) {
	m.pending = append(m.pending, pendingWrite{heap: heap, nr: nr, start: start, as: as})
}

// Flush applies every queued write to heap copy cpy and
// clears the queue. cpy is normally the current frame slot
// index, so that writes land on the copy the GPU is not
// currently reading.
func (m *Manager) Flush(cpy int) {
	for _, w := range m.pending {
		h := m.heaps[w.heap]
		switch {
		case w.buf != nil:
			h.SetBuffer(cpy, w.nr, w.start, w.buf, w.off, w.size)
		case w.img != nil:
			h.SetImage(cpy, w.nr, w.start, w.img)
		case w.splr != nil:
			h.SetSampler(cpy, w.nr, w.start, w.splr)
		case w.as != nil:
			h.SetAccelStruct(cpy, w.nr, w.start, w.as)
		}
	}
	m.pending = m.pending[:0]
}

// Pending reports how many writes are queued and not yet
// flushed. Tests use it to check invariant 4 (no write
// reaches the GPU outside of Flush).
func (m *Manager) Pending() int { return len(m.pending) }

// Destroy releases the table and every heap it was built
// from.
func (m *Manager) Destroy() {
	if m == nil {
		return
	}
	m.table.Destroy()
	for _, h := range m.heaps {
		h.Destroy()
	}
	*m = Manager{}
}
