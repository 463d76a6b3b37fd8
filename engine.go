package m4vga

import (
	"fmt"
	"sync/atomic"

	"github.com/cbiffle/m4vga-go/dma"
	"github.com/cbiffle/m4vga-go/hwmutex"
	"github.com/cbiffle/m4vga-go/raster"
	"github.com/cbiffle/m4vga-go/timing"
	"github.com/cbiffle/m4vga-go/vblank"
)

// rasterSource abstracts over a single Rasterizer Slot and an optional
// Band Scheduler: EAV only needs to know which slot serves
// the current line and whether a band boundary was crossed.
type rasterSource interface {
	// Select returns the slot that should rasterize line and whether a
	// band boundary was crossed since the previous line (always false
	// for a single-slot source).
	Select(line uint32) (slot *raster.Slot, bandCrossed bool)
	// ResetFrame is called by EAV when the line counter wraps to 0, so a
	// band source's cursor — which only ever advances forward within a
	// frame — starts over at band 0 for the new frame.
	ResetFrame()
}

type singleSlotSource struct {
	slot raster.Slot
}

func (s *singleSlotSource) Select(line uint32) (*raster.Slot, bool) {
	return &s.slot, false
}

func (s *singleSlotSource) ResetFrame() {}

type bandSource struct {
	sched  *raster.Scheduler
	cursor *raster.Cursor
}

func (b *bandSource) Select(line uint32) (*raster.Slot, bool) {
	idx, crossed := b.cursor.Advance(line)
	return b.sched.Slot(idx), crossed
}

func (b *bandSource) ResetFrame() {
	b.cursor = b.sched.Cursor()
}

// engine is the Scan-Out Engine: it owns the two
// scanline buffers, the DMA hand-off, the line/band bookkeeping, and the
// three-ISR chain (SAV, EAV, rasterization trigger).
type engine struct {
	desc timing.Descriptor
	per  Peripherals
	hw   *hwmutex.Mutex
	vb   *vblank.Semaphore

	region *dma.Region

	// bufs[0] and bufs[1] are the two scanline buffers; scanoutIdx names
	// which one the DMA is currently allowed to read. The rasterizer
	// always writes bufs[1-scanoutIdx] ("working").
	bufs       [2][]byte
	scanoutIdx int

	line            uint32
	repeatRemaining uint32
	ctx             raster.Context
	cyclesPerPixel  uint32

	source rasterSource

	rasterBusy atomic.Bool
}

func newEngine(desc timing.Descriptor, per Peripherals, hw *hwmutex.Mutex, vb *vblank.Semaphore) *engine {
	e := &engine{
		desc:           desc,
		per:            per,
		hw:             hw,
		vb:             vb,
		cyclesPerPixel: desc.ClocksPerPixel,
		// An empty slot until the first with_raster/with_bands scope, so
		// EAV can advance lines and vblank in SyncGen without a rasterizer.
		source: &singleSlotSource{},
	}

	// Two scanline buffers sized for this mode's widest line, reserved
	// once and never freed for the lifetime of the engine — there is no
	// dynamic (re-)allocation once scan-out begins.
	e.region = dma.NewRegion(0, uint(2*desc.VideoPixels()))
	for i := range e.bufs {
		addr := e.region.Reserve(uint(desc.VideoPixels()), 4)
		e.bufs[i] = simBackingSlice(addr, int(desc.VideoPixels()))
	}

	return e
}

// setSource installs the rasterizer source for an upcoming with_raster or
// with_bands scope. Called only while the line timer's SAV/EAV interrupts
// are masked (between scopes), so there is no concurrent ISR access to
// race against.
func (e *engine) setSource(source rasterSource) {
	e.source = source
	// Start on the last line of the frame, so the first EAV wraps to line
	// 0 and rasterizes it.
	e.line = e.desc.FrameLines() - 1
	e.repeatRemaining = 0
	e.scanoutIdx = 0
}

func (e *engine) working() []byte { return e.bufs[1-e.scanoutIdx] }
func (e *engine) scanout() []byte { return e.bufs[e.scanoutIdx] }

// isrSAV is the Start-of-Active-Video ISR (highest
// priority): swap buffer roles (unless a repeat-line is in progress, in
// which case the scanout buffer is reused untouched), arm and start DMA
// over the declared target range.
func (e *engine) isrSAV() {
	e.hw.Acquire(hwmutex.LevelSAV)
	defer e.hw.Release(hwmutex.LevelSAV)

	if e.rasterBusy.Load() {
		e.per.Video.Blank()
		panic("m4vga: deadline miss — rasterization ISR still running when SAV fired")
	}

	// Swap only on the first line of the latest rasterizer output: every
	// repeated line since then has consumed one count of repeatRemaining.
	if e.repeatRemaining+1 >= e.ctx.RepeatLines {
		e.scanoutIdx = 1 - e.scanoutIdx
	}

	tr := e.ctx.TargetRange
	length := tr.Len()
	if length > len(e.scanout()) {
		length = len(e.scanout())
	}

	e.per.DMA.Arm(e.scanout()[tr.Start : tr.Start+length])
}

// isrEAV is the End-of-Active-Video ISR (middle priority):
// stop DMA defensively, blank the video port, advance the line counter
// and band cursor, and trigger rasterization for the next line unless
// currently in vertical blanking.
func (e *engine) isrEAV() {
	e.hw.Acquire(hwmutex.LevelEAV)

	if e.per.DMA.Busy() {
		e.per.DMA.Stop()
	}
	e.per.Video.Blank()

	e.hw.Release(hwmutex.LevelEAV)

	repeating := e.repeatRemaining > 0
	if repeating {
		e.repeatRemaining--
	}

	e.line++
	if e.line >= e.desc.FrameLines() {
		e.line = 0
	}

	if e.line == 0 {
		e.vb.Raise()
		e.source.ResetFrame()
	}

	inVBlank := e.line >= e.desc.VideoLines()
	if inVBlank && e.line == e.desc.VideoLines() {
		e.vb.EnterVBlank()
	}

	if inVBlank {
		return
	}

	slot, crossed := e.source.Select(e.line)
	if crossed {
		e.repeatRemaining = 0
		repeating = false
	}

	if repeating {
		// Output is still valid for this line; no rasterization needed.
		return
	}

	e.isrRasterize(slot, e.line)
}

// isrRasterize is the lowest-priority ISR: it fills the
// working buffer via the currently-armed rasterizer slot. It runs
// asynchronously with respect to the simulated SAV/EAV clock so that a
// rasterizer which overruns its line budget is observably still running
// when the next SAV fires, triggering a deadline-miss panic.
func (e *engine) isrRasterize(slot *raster.Slot, line uint32) {
	e.rasterBusy.Store(true)

	go func() {
		defer e.rasterBusy.Store(false)
		defer e.blankOnPanic()

		e.ctx.Reset(len(e.working()))
		slot.Invoke(line, e.working(), &e.ctx)

		if e.ctx.RepeatLines == 0 {
			e.ctx.RepeatLines = 1
		}
		e.repeatRemaining = e.ctx.RepeatLines - 1

		if e.ctx.CyclesPerPixelOverride != nil && *e.ctx.CyclesPerPixelOverride != e.cyclesPerPixel {
			e.retunePixelClock(*e.ctx.CyclesPerPixelOverride)
		}
	}()
}

func (e *engine) blankOnPanic() {
	if r := recover(); r != nil {
		e.per.Video.Blank()
		panic(r)
	}
}

func (e *engine) retunePixelClock(clocksPerPixel uint32) {
	if clocksPerPixel == 0 || clocksPerPixel > 16 {
		panic(fmt.Sprintf("m4vga: invalid cycles_per_pixel override %d", clocksPerPixel))
	}

	e.hw.Acquire(hwmutex.LevelRasterize)
	defer e.hw.Release(hwmutex.LevelRasterize)

	e.cyclesPerPixel = clocksPerPixel
	e.per.Line.ProgramPeriod(clocksPerPixel * e.desc.LinePixels())
	e.per.Line.ArmMatches(clocksPerPixel*e.desc.SAVOffset(), clocksPerPixel*e.desc.EAVOffset())
}

// simBackingSlice backs a dma.Region reservation with a freshly allocated
// Go slice of the requested length; addr is not used to locate the memory.
var simBackingSlice = func(addr uint, length int) []byte {
	return make([]byte, length)
}
