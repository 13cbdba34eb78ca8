// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package frame implements the per-frame scheduler: it walks
// a fixed number of frame slots through the acquire/record/
// submit/present cycle and rotates among them, honoring a
// Swapchain's Recreate contract when presentation goes stale.
//
// It generalizes the work-item rotation in the teacher's
// engine.Renderer (cb/ch fields) into an explicit state
// machine, since a hybrid rasterize+ray-trace pass graph has
// more to coordinate per frame than a single command buffer.
package frame

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"hybridrender.dev/hri/driver"
)

// state identifies where a Slot sits in its frame cycle.
type state int

const (
	idle state = iota
	waitingFence
	acquiring
	acquired
	recording
	submitted
	presenting
)

// Slot is one frame's worth of scheduling state: a command
// buffer and the channel round trip that stands in for a
// fence (the driver delivers the WorkItem back once the GPU
// has finished executing it).
type Slot struct {
	cb    driver.CmdBuffer
	state state

	// scIndex is the swapchain image index acquired for this
	// slot's current frame, valid from acquired to presenting.
	scIndex int
}

// Frame is the handle StartFrame returns. Callers record into
// CmdBuffer and must call EndFrame exactly once before
// starting the next frame on the same Core.
type Frame struct {
	core    *Core
	slot    int
	CmdBuffer driver.CmdBuffer
	// ImageIndex is the swapchain image acquired for this
	// frame, or -1 when the Core has no swapchain (offscreen
	// use: engine/pass's Offscreen manager instead of
	// engine/pass's Swapchain manager).
	ImageIndex int
	// Slot is the frame-in-flight slot this Frame occupies,
	// the same value common.Common.SlotIndex carries to
	// Pass.PrepareFrame so a descset.Manager flushes against
	// the heap copy the GPU is not currently reading.
	Slot int
	// Extent is the current swapchain/target extent, sampled
	// at acquire time so passes can size viewports without a
	// second round trip through Core.
	Extent driver.Dim3D
}

// Core is the frame-in-flight scheduler.
// It is the frame.Core that spec §4.5 calls for, built around
// N frame slots each carrying a command buffer and a
// submission channel shared by the whole Core (the driver
// hands work items back as they complete, in completion
// order, not submission order).
type Core struct {
	gpu driver.GPU
	sc  driver.Swapchain

	mu           sync.Mutex
	slots        []Slot
	ch           chan *driver.WorkItem
	next         int // next slot to start a frame on
	active       *Frame
	onInvalidate driver.InvalidateFunc
}

// NewCore creates a frame scheduler with the given number of
// frames in flight. sc may be nil for an offscreen Core (no
// acquire/present phase; EndFrame only submits).
func NewCore(gpu driver.GPU, sc driver.Swapchain, framesInFlight int) (*Core, error) {
	if framesInFlight < 1 {
		return nil, fmt.Errorf("frame: framesInFlight must be positive, got %d", framesInFlight)
	}
	c := &Core{
		gpu:   gpu,
		sc:    sc,
		slots: make([]Slot, framesInFlight),
		ch:    make(chan *driver.WorkItem, framesInFlight),
	}
	for i := range c.slots {
		cb, err := gpu.NewCmdBuffer()
		if err != nil {
			c.destroySlots()
			return nil, err
		}
		c.slots[i].cb = cb
		c.ch <- &driver.WorkItem{Work: []driver.CmdBuffer{cb}, Custom: i}
	}
	return c, nil
}

func (c *Core) destroySlots() {
	for i := range c.slots {
		if c.slots[i].cb != nil {
			c.slots[i].cb.Destroy()
		}
	}
}

// FramesInFlight returns the number of frame slots.
func (c *Core) FramesInFlight() int { return len(c.slots) }

// SetOnSwapchainInvalidate registers fn to be called whenever
// the swapchain is recreated, so pass resource managers can
// resize their attachments.
func (c *Core) SetOnSwapchainInvalidate(fn driver.InvalidateFunc) {
	c.mu.Lock()
	c.onInvalidate = fn
	c.mu.Unlock()
}

// ActiveFrame returns the Frame currently being recorded, or
// nil if StartFrame has not been called (or the previous
// Frame has already been ended).
func (c *Core) ActiveFrame() *Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// AwaitFrameFinished blocks until the command buffer bound to
// the given slot index has completed execution on the GPU.
// slot is the value returned as Frame.slot (engine callers
// normally do not need this; it exists for tests that must
// synchronize with the mock driver's channel delivery).
func (c *Core) AwaitFrameFinished(slot int) error {
	for {
		wk := <-c.ch
		c.ch <- wk // not ours; hand it back for StartFrame to pick up
		if wk.Custom == slot {
			return wk.Err
		}
	}
}

// StartFrame begins recording the next frame: it waits for
// the target slot's previous submission to finish (the
// fence-equivalent wait), acquires a swapchain image if one
// is configured, and recreates the swapchain transparently on
// driver.ErrSwapchain before retrying once.
func (c *Core) StartFrame() (*Frame, error) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("frame: StartFrame called before previous EndFrame")
	}
	slotIdx := c.next
	c.next = (c.next + 1) % len(c.slots)
	c.slots[slotIdx].state = waitingFence
	c.mu.Unlock()

	wk := <-c.ch
	for wk.Custom != slotIdx {
		// Another slot's work completed first; recycle it and
		// keep waiting for ours, since WorkItems come back in
		// completion order rather than submission order.
		c.ch <- wk
		wk = <-c.ch
	}
	if wk.Err != nil {
		log.Warn().Err(wk.Err).Int("slot", slotIdx).Msg("frame: previous submission reported an error")
	}

	cb := c.slots[slotIdx].cb
	if err := cb.Begin(); err != nil {
		return nil, err
	}

	f := &Frame{core: c, slot: slotIdx, Slot: slotIdx, CmdBuffer: cb, ImageIndex: -1}

	if c.sc != nil {
		c.slots[slotIdx].state = acquiring
		idx, err := c.sc.Next(cb)
		if err == driver.ErrSwapchain {
			if rerr := c.recreate(); rerr != nil {
				return nil, rerr
			}
			idx, err = c.sc.Next(cb)
		}
		if err != nil {
			return nil, err
		}
		c.slots[slotIdx].state = acquired
		c.slots[slotIdx].scIndex = idx
		f.ImageIndex = idx
		f.Extent = c.sc.Desc().Extent
	}

	c.mu.Lock()
	c.active = f
	c.slots[slotIdx].state = recording
	c.mu.Unlock()
	return f, nil
}

// recreate rebuilds the swapchain and notifies the registered
// InvalidateFunc, if any. The caller must hold no lock.
func (c *Core) recreate() error {
	if err := c.sc.Recreate(); err != nil {
		return err
	}
	c.mu.Lock()
	fn := c.onInvalidate
	c.mu.Unlock()
	if fn != nil {
		fn(c.sc.Desc())
	}
	return nil
}

// EndFrame ends recording, submits the frame's command buffer
// and, if a swapchain is configured, presents the acquired
// image. A driver.ErrSwapchain returned by Present is treated
// the same way as one from Next: the swapchain is recreated
// and the frame is considered dropped (the caller should
// start a new frame rather than retry presenting stale work).
func (c *Core) EndFrame(f *Frame) error {
	if f == nil || f.core != c {
		return fmt.Errorf("frame: EndFrame called with a foreign or nil Frame")
	}
	c.mu.Lock()
	if c.active != f {
		c.mu.Unlock()
		return fmt.Errorf("frame: EndFrame called out of order")
	}
	c.mu.Unlock()

	if err := f.CmdBuffer.End(); err != nil {
		return err
	}

	c.mu.Lock()
	c.slots[f.slot].state = submitted
	c.mu.Unlock()

	wk := &driver.WorkItem{Work: []driver.CmdBuffer{f.CmdBuffer}, Custom: f.slot}
	if err := c.gpu.Commit(wk, c.ch); err != nil {
		return err
	}

	if c.sc != nil {
		c.mu.Lock()
		c.slots[f.slot].state = presenting
		c.mu.Unlock()
		if err := c.sc.Present(f.ImageIndex, f.CmdBuffer); err == driver.ErrSwapchain {
			if rerr := c.recreate(); rerr != nil {
				return rerr
			}
		} else if err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.slots[f.slot].state = idle
	c.active = nil
	c.mu.Unlock()
	return nil
}

// Destroy drains any in-flight work and releases every frame
// slot's command buffer.
func (c *Core) Destroy() {
	for range cap(c.ch) {
		<-c.ch
	}
	c.destroySlots()
	*c = Core{}
}
