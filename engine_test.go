package m4vga

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/cbiffle/m4vga-go/hwmutex"
	"github.com/cbiffle/m4vga-go/raster"
	"github.com/cbiffle/m4vga-go/simhw"
	"github.com/cbiffle/m4vga-go/vblank"
)

func testEngine(t *testing.T) (*engine, *singleSlotSource, *simhw.DMAChannel, *simhw.VideoPort, *simhw.LineTimer) {
	t.Helper()
	desc := smallDescriptor(t)

	per, _, line, dmaCh, video, _ := testPeripherals()

	vb := &vblank.Semaphore{}
	hw := hwmutex.New(vb)

	e := newEngine(desc, per, hw, vb)
	source := &singleSlotSource{}
	e.setSource(source)

	return e, source, dmaCh, video, line
}

// waitForRasterIdle spins until the rasterization ISR's background
// goroutine (spawned by isrEAV) has finished, so the test can inspect
// buffer/line state without racing it.
func waitForRasterIdle(e *engine) {
	for e.rasterBusy.Load() {
		time.Sleep(time.Microsecond)
	}
}

// TestBufferRoleAlternation checks that over N scanlines with a no-op
// rasterizer, working and scanout strictly alternate.
func TestBufferRoleAlternation(t *testing.T) {
	e, source, _, _, _ := testEngine(t)

	var roles []int
	fn := func(line uint32, buf []byte, ctx *raster.Context) {}
	err := raster.WithRaster(&source.slot, fn, func() error {
		for i := 0; i < 10; i++ {
			roles = append(roles, e.scanoutIdx)
			e.isrSAV()
			waitForRasterIdle(e)
			e.isrEAV()
			waitForRasterIdle(e)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i < len(roles); i++ {
		if roles[i] == roles[i-1] {
			t.Fatalf("scanoutIdx did not alternate at step %d: %v", i, roles)
		}
	}
}

// TestMonotoneLineNumbers checks that within a frame the rasterizer
// sees 0,1,2,...,video_lines-1, and the first line of every frame is 0.
func TestMonotoneLineNumbers(t *testing.T) {
	e, source, _, _, _ := testEngine(t)

	var lines []uint32
	var mu int32 // 0 = unlocked, cheap guard against concurrent append
	fn := func(line uint32, buf []byte, ctx *raster.Context) {
		for !atomic.CompareAndSwapInt32(&mu, 0, 1) {
		}
		lines = append(lines, line)
		atomic.StoreInt32(&mu, 0)
	}

	videoLines := int(e.desc.VideoLines())
	frameLines := int(e.desc.FrameLines())

	err := raster.WithRaster(&source.slot, fn, func() error {
		for frame := 0; frame < 2; frame++ {
			for i := 0; i < frameLines; i++ {
				e.isrSAV()
				waitForRasterIdle(e)
				e.isrEAV()
				waitForRasterIdle(e)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(lines) != 2*videoLines {
		t.Fatalf("got %d rasterizer calls, want %d", len(lines), 2*videoLines)
	}

	for frame := 0; frame < 2; frame++ {
		base := frame * videoLines
		if lines[base] != 0 {
			t.Fatalf("frame %d did not start at line 0: got %d", frame, lines[base])
		}
		for i := 1; i < videoLines; i++ {
			want := uint32(i)
			if lines[base+i] != want {
				t.Fatalf("frame %d line index %d: got %d, want %d", frame, i, lines[base+i], want)
			}
		}
	}
}

// TestTargetRangeTransferLength confirms only target_range is handed to
// DMA, not the full buffer width.
func TestTargetRangeTransferLength(t *testing.T) {
	e, source, dmaCh, _, _ := testEngine(t)

	fn := func(line uint32, buf []byte, ctx *raster.Context) {
		ctx.TargetRange = raster.Range{Start: 1, End: 3}
	}

	err := raster.WithRaster(&source.slot, fn, func() error {
		e.isrSAV()
		waitForRasterIdle(e)
		e.isrEAV()
		waitForRasterIdle(e)
		e.isrSAV() // second SAV arms DMA with the line-0 context just produced
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if got := len(dmaCh.LastTransfer()); got != 2 {
		t.Fatalf("DMA transfer length = %d, want 2 (target_range 1..3)", got)
	}
}

// TestPanicOnDeadlineMiss checks that, at the engine level, SAV firing
// while rasterBusy is still set panics immediately.
func TestPanicOnDeadlineMiss(t *testing.T) {
	e, _, _, _, _ := testEngine(t)
	e.rasterBusy.Store(true)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when SAV fires during an in-flight rasterization")
		}
	}()
	e.isrSAV()
}

// TestCyclesPerPixelOverrideRetunesLineTimer checks that a rasterizer
// setting a valid CyclesPerPixelOverride reprograms the line timer's
// period and the engine's cycles-per-pixel before the next SAV re-arms DMA.
func TestCyclesPerPixelOverrideRetunesLineTimer(t *testing.T) {
	e, source, _, _, line := testEngine(t)

	const override = uint32(2)
	fn := func(lineNum uint32, buf []byte, ctx *raster.Context) {
		if lineNum == 0 {
			ctx.CyclesPerPixelOverride = new(uint32)
			*ctx.CyclesPerPixelOverride = override
		}
	}

	err := raster.WithRaster(&source.slot, fn, func() error {
		e.isrSAV()
		waitForRasterIdle(e)
		e.isrEAV()
		waitForRasterIdle(e)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	wantPeriod := override * e.desc.LinePixels()
	if got := line.Period(); got != wantPeriod {
		t.Fatalf("line timer period = %d, want %d", got, wantPeriod)
	}
	if e.cyclesPerPixel != override {
		t.Fatalf("engine cyclesPerPixel = %d, want %d", e.cyclesPerPixel, override)
	}
}

// TestCyclesPerPixelOverrideOutOfRangePanics checks that an override of 0
// or greater than 16 panics instead of silently reprogramming the timer.
// Called directly on the engine (rather than through a rasterizer
// closure) because the real path runs retunePixelClock inside the
// rasterization ISR's own goroutine, where an unrecovered panic is by
// design fatal to the whole process, not something a test in a
// different goroutine could recover from.
func TestCyclesPerPixelOverrideOutOfRangePanics(t *testing.T) {
	e, _, _, _, _ := testEngine(t)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic retuning to an out-of-range cycles_per_pixel override")
		}
	}()
	e.retunePixelClock(17)
}
