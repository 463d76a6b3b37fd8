// Package raster implements the Rasterizer Slot and the scoped closure
// loan discipline: a shared, interrupt-safe container that lets
// thread-mode code lend a pixel-producing closure (and any stack
// state it captures) to the rasterization ISR for the lifetime of one
// scoped call, with a release/acquire handshake guaranteeing the ISR never
// sees a half-constructed closure and the lender never returns while an
// ISR invocation is still in flight.
package raster

// Range is a half-open pixel range within the scanout buffer.
type Range struct {
	Start, End int
}

// Len returns End-Start, clamped to 0.
func (r Range) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Context is the per-call scratch record a rasterizer fills in. The
// engine resets it before each call:
// TargetRange defaults to the full buffer width and RepeatLines to 1, so a
// rasterizer that only cares about pixel values can leave both untouched.
type Context struct {
	// TargetRange is the half-open pixel range within the scanout buffer
	// that is valid this line. Only buffer[TargetRange.Start:TargetRange.End]
	// is transferred by DMA.
	TargetRange Range

	// RepeatLines is how many upcoming scanlines (including this one) the
	// output is valid for. Must be >= 1; the engine treats 0 as 1.
	RepeatLines uint32

	// CyclesPerPixelOverride, if non-nil, requests the engine retune the
	// pixel clock divisor before the next line's DMA is armed. Used for
	// subsampled (pixel-doubled) modes.
	CyclesPerPixelOverride *uint32
}

// Reset restores a Context to the default of "whole buffer, one line, no
// clock override", the state the engine gives a rasterizer before each
// call.
func (c *Context) Reset(fullWidth int) {
	c.TargetRange = Range{0, fullWidth}
	c.RepeatLines = 1
	c.CyclesPerPixelOverride = nil
}

// Func is the rasterizer closure signature: given the current line
// number and the working scanline buffer, fill in pixel
// bytes and declare this line's Context. Func must not block, must not
// acquire the hardware mutex except through driver-mediated calls, and
// must not allocate — it runs on the rasterization ISR and may be
// preempted by SAV and EAV at any instruction boundary.
type Func func(line uint32, buf []byte, ctx *Context)
