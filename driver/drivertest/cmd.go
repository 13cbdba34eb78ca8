// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package drivertest

import (
	"errors"

	"hybridrender.dev/hri/driver"
)

// CmdBuffer implements driver.CmdBuffer by recording every
// call into an ordered log instead of talking to a device.
// Tests inspect the log (Recorded, Transitions) to check the
// invariants in spec §8 without a real GPU.
type CmdBuffer struct {
	gpu *GPU

	began, ended, executed bool

	Recorded    []string
	Transitions []driver.Transition
	Barriers    []driver.Barrier
	traces      []TraceCall
	pipeline    driver.Pipeline
}

func (cb *CmdBuffer) Destroy() {}

func (cb *CmdBuffer) Begin() error {
	if cb.began && !cb.executed {
		return errors.New("drivertest: Begin called while still recording/pending")
	}
	*cb = CmdBuffer{gpu: cb.gpu, began: true}
	return nil
}

func (cb *CmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	cb.Recorded = append(cb.Recorded, "BeginPass")
}

func (cb *CmdBuffer) NextSubpass() { cb.Recorded = append(cb.Recorded, "NextSubpass") }

func (cb *CmdBuffer) EndPass() { cb.Recorded = append(cb.Recorded, "EndPass") }

func (cb *CmdBuffer) BeginWork(wait bool) { cb.Recorded = append(cb.Recorded, "BeginWork") }

func (cb *CmdBuffer) EndWork() { cb.Recorded = append(cb.Recorded, "EndWork") }

func (cb *CmdBuffer) BeginBlit(wait bool) { cb.Recorded = append(cb.Recorded, "BeginBlit") }

func (cb *CmdBuffer) EndBlit() { cb.Recorded = append(cb.Recorded, "EndBlit") }

func (cb *CmdBuffer) SetPipeline(pl driver.Pipeline) {
	cb.pipeline = pl
	cb.Recorded = append(cb.Recorded, "SetPipeline")
}

func (cb *CmdBuffer) SetViewport(vp []driver.Viewport) { cb.Recorded = append(cb.Recorded, "SetViewport") }

func (cb *CmdBuffer) SetScissor(sciss []driver.Scissor) { cb.Recorded = append(cb.Recorded, "SetScissor") }

func (cb *CmdBuffer) SetBlendColor(r, g, b, a float32) {}

func (cb *CmdBuffer) SetStencilRef(value uint32) {}

func (cb *CmdBuffer) SetVertexBuf(start int, buf []driver.Buffer, off []int64) {
	cb.Recorded = append(cb.Recorded, "SetVertexBuf")
}

func (cb *CmdBuffer) SetIndexBuf(format driver.IndexFmt, buf driver.Buffer, off int64) {
	cb.Recorded = append(cb.Recorded, "SetIndexBuf")
}

func (cb *CmdBuffer) SetDescTableGraph(table driver.DescTable, start int, heapCopy []int) {
	cb.Recorded = append(cb.Recorded, "SetDescTableGraph")
}

func (cb *CmdBuffer) SetDescTableComp(table driver.DescTable, start int, heapCopy []int) {
	cb.Recorded = append(cb.Recorded, "SetDescTableComp")
}

func (cb *CmdBuffer) Draw(vertCount, instCount, baseVert, baseInst int) {
	cb.Recorded = append(cb.Recorded, "Draw")
}

func (cb *CmdBuffer) DrawIndexed(idxCount, instCount, baseIdx, vertOff, baseInst int) {
	cb.Recorded = append(cb.Recorded, "DrawIndexed")
}

func (cb *CmdBuffer) Dispatch(grpCountX, grpCountY, grpCountZ int) {
	cb.Recorded = append(cb.Recorded, "Dispatch")
}

func (cb *CmdBuffer) CopyBuffer(param *driver.BufferCopy) { cb.Recorded = append(cb.Recorded, "CopyBuffer") }

func (cb *CmdBuffer) CopyImage(param *driver.ImageCopy) { cb.Recorded = append(cb.Recorded, "CopyImage") }

func (cb *CmdBuffer) CopyBufToImg(param *driver.BufImgCopy) {
	cb.Recorded = append(cb.Recorded, "CopyBufToImg")
}

func (cb *CmdBuffer) CopyImgToBuf(param *driver.BufImgCopy) {
	cb.Recorded = append(cb.Recorded, "CopyImgToBuf")
}

func (cb *CmdBuffer) Fill(buf driver.Buffer, off int64, value byte, size int64) {
	cb.Recorded = append(cb.Recorded, "Fill")
}

func (cb *CmdBuffer) BuildAccelStructs(as []driver.AccelStruct) {
	cb.Recorded = append(cb.Recorded, "BuildAccelStructs")
}

func (cb *CmdBuffer) Barrier(b []driver.Barrier) {
	cb.Barriers = append(cb.Barriers, b...)
	cb.Recorded = append(cb.Recorded, "Barrier")
}

func (cb *CmdBuffer) Transition(t []driver.Transition) {
	cb.Transitions = append(cb.Transitions, t...)
	cb.Recorded = append(cb.Recorded, "Transition")
}

func (cb *CmdBuffer) End() error {
	if !cb.began {
		return errors.New("drivertest: End called without Begin")
	}
	cb.ended = true
	return nil
}

func (cb *CmdBuffer) Reset() error {
	*cb = CmdBuffer{gpu: cb.gpu}
	return nil
}

// Traces returns every TraceRays call recorded since Begin.
func (cb *CmdBuffer) Traces() []TraceCall { return cb.traces }
