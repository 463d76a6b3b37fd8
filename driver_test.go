package m4vga

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/cbiffle/m4vga-go/raster"
	"github.com/cbiffle/m4vga-go/simhw"
	"github.com/cbiffle/m4vga-go/timing"
)

func testPeripherals() (Peripherals, *simhw.HSyncTimer, *simhw.LineTimer, *simhw.DMAChannel, *simhw.VideoPort, *simhw.SyncPort) {
	hsync := &simhw.HSyncTimer{}
	line := &simhw.LineTimer{}
	dmaCh := &simhw.DMAChannel{}
	video := &simhw.VideoPort{}
	sync := &simhw.SyncPort{}

	return Peripherals{
		HSync: hsync,
		Line:  line,
		DMA:   dmaCh,
		Video: video,
		Sync:  sync,
	}, hsync, line, dmaCh, video, sync
}

// smallDescriptor is a tiny made-up mode (not a real VESA timing) used to
// keep simulated-clock tests fast: 8 visible lines, 4 visible pixels.
func smallDescriptor(t *testing.T) timing.Descriptor {
	t.Helper()
	d, err := timing.New(
		1,
		timing.Axis{SyncPulse: 2, BackPorch: 2, Active: 4, FrontPorch: 2},
		timing.Axis{SyncPulse: 1, BackPorch: 1, Active: 8, FrontPorch: 1},
		timing.PolarityPositive, timing.PolarityPositive,
		0,
	)
	if err != nil {
		t.Fatalf("smallDescriptor: %v", err)
	}
	return d
}

func TestConfigureTimingTransitionsIdleToSyncGen(t *testing.T) {
	per, hsync, line, _, _, _ := testPeripherals()
	d := New(per)

	d.ConfigureTiming(smallDescriptor(t))

	if driverState(d.state.Load()) != stateSyncGen {
		t.Fatalf("state = %s, want sync-gen", driverState(d.state.Load()))
	}
	if !hsync.Running() {
		t.Fatal("expected HSync timer to be programmed and running")
	}
	if line.InterruptsEnabled() {
		t.Fatal("expected line timer interrupts masked until with_raster")
	}
}

func TestConfigureTimingFromNonIdlePanics(t *testing.T) {
	per, _, _, _, _, _ := testPeripherals()
	d := New(per)
	d.ConfigureTiming(smallDescriptor(t))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic configuring timing twice without stop_sync")
		}
	}()
	d.ConfigureTiming(smallDescriptor(t))
}

func TestStopSyncReturnsToIdle(t *testing.T) {
	per, hsync, line, _, _, _ := testPeripherals()
	d := New(per)
	d.ConfigureTiming(smallDescriptor(t))

	d.StopSync()

	if driverState(d.state.Load()) != stateIdle {
		t.Fatalf("state = %s, want idle", driverState(d.state.Load()))
	}
	if hsync.Running() {
		t.Fatal("expected HSync timer stopped")
	}
	if line.InterruptsEnabled() {
		t.Fatal("expected line interrupts masked after stop_sync")
	}
}

func TestWithRasterOutsideSyncGenPanics(t *testing.T) {
	per, _, _, _, _, _ := testPeripherals()
	d := New(per)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling with_raster from Idle")
		}
	}()
	d.WithRaster(func(uint32, []byte, *raster.Context) {}, func(*Driver) error { return nil })
}

// driveClock starts a simhw.Clock against d's ISR entry points in its own
// goroutine and returns it; the caller stops it. period is kept in the low
// milliseconds so tests run quickly while still giving the rasterization
// goroutine a real scheduling quantum to either finish in time or not.
func driveClock(d *Driver, period time.Duration) *simhw.Clock {
	c := simhw.NewClock(period, d.ISRSAV, d.ISREAV)
	go c.Run()
	return c
}

// TestScopedClosureCapture checks the "scoped closure capture" scenario:
// WithRaster captures a stack-local frame counter, incremented once per
// SyncToVblank return, and must equal the target count with no dangling
// reference once scope returns.
func TestScopedClosureCapture(t *testing.T) {
	per, _, _, _, _, _ := testPeripherals()
	d := New(per)
	d.ConfigureTiming(smallDescriptor(t))

	clk := driveClock(d, 200*time.Microsecond)
	defer clk.Stop()

	const target = 10
	frameCounter := 0

	err := d.WithRaster(func(line uint32, buf []byte, ctx *raster.Context) {
		for i := range buf {
			buf[i] = 0xAA
		}
	}, func(drv *Driver) error {
		for frameCounter < target {
			drv.SyncToVblank()
			frameCounter++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRaster: %v", err)
	}
	if frameCounter != target {
		t.Fatalf("frameCounter = %d, want %d", frameCounter, target)
	}
}

// TestVerticalStripesCalibration checks the "vertical stripes"
// calibration scenario, with smallDescriptor's 4-pixel line standing in
// for a full-width mode (the property under test — content and transfer
// length match the rasterizer's declared target range — is independent
// of line width).
func TestVerticalStripesCalibration(t *testing.T) {
	per, _, _, dmaCh, _, _ := testPeripherals()
	d := New(per)
	desc := smallDescriptor(t)
	d.ConfigureTiming(desc)

	clk := driveClock(d, 200*time.Microsecond)
	defer clk.Stop()

	err := d.WithRaster(func(line uint32, buf []byte, ctx *raster.Context) {
		for x := range buf {
			if x%2 == 0 {
				buf[x] = 0xFF
			} else {
				buf[x] = 0x00
			}
		}
	}, func(drv *Driver) error {
		drv.SyncToVblank()
		drv.SyncToVblank()
		return nil
	})
	if err != nil {
		t.Fatalf("WithRaster: %v", err)
	}

	xfer := dmaCh.LastTransfer()
	if len(xfer) != int(desc.VideoPixels()) {
		t.Fatalf("transfer length = %d, want %d", len(xfer), desc.VideoPixels())
	}
	for x, b := range xfer {
		want := byte(0x00)
		if x%2 == 0 {
			want = 0xFF
		}
		if b != want {
			t.Fatalf("xfer[%d] = %#x, want %#x", x, b, want)
		}
	}
}

// TestRepeatLinesHonored checks that RepeatLines=4 results in
// ceil(video_lines/4) rasterizer calls per frame.
func TestRepeatLinesHonored(t *testing.T) {
	per, _, _, _, _, _ := testPeripherals()
	d := New(per)
	desc := smallDescriptor(t)
	d.ConfigureTiming(desc)

	clk := driveClock(d, 200*time.Microsecond)
	defer clk.Stop()

	var calls int32

	err := d.WithRaster(func(line uint32, buf []byte, ctx *raster.Context) {
		atomic.AddInt32(&calls, 1)
		ctx.RepeatLines = 4
	}, func(drv *Driver) error {
		drv.SyncToVblank()
		drv.SyncToVblank()
		return nil
	})
	if err != nil {
		t.Fatalf("WithRaster: %v", err)
	}

	videoLines := desc.VideoLines()
	want := int32((videoLines + 3) / 4)
	got := atomic.LoadInt32(&calls)
	// Two frames elapsed; each frame independently calls the rasterizer
	// `want` times, so tolerate either one or two frames' worth having
	// been observed depending on exactly when the goroutine stopped.
	if got < want || got > 2*want+1 {
		t.Fatalf("calls = %d, want roughly %d per frame (videoLines=%d)", got, want, videoLines)
	}
}

// TestVideoGateGlitchFree checks the "video gate glitch-free" scenario:
// calling VideoOn/VideoOff repeatedly never
// panics (i.e. never fires outside a vblank window) because both
// operations themselves block until the window opens.
func TestVideoGateGlitchFree(t *testing.T) {
	per, _, _, _, video, _ := testPeripherals()
	d := New(per)
	d.ConfigureTiming(smallDescriptor(t))

	clk := driveClock(d, 100*time.Microsecond)
	defer clk.Stop()

	for i := 0; i < 50; i++ {
		d.VideoOn()
		if !video.Driven() {
			t.Fatal("expected video port driven after VideoOn")
		}
		d.VideoOff()
		if video.Driven() {
			t.Fatal("expected video port high-Z after VideoOff")
		}
	}
}

// TestDeadlineMissPanics checks the "deadline-miss panic" scenario: a
// rasterizer that sleeps past the next SAV triggers a panic,
// and the panic path has driven the video port to blanking first.
func TestDeadlineMissPanics(t *testing.T) {
	per, _, _, _, video, _ := testPeripherals()
	d := New(per)
	d.ConfigureTiming(smallDescriptor(t))

	linePeriod := 2 * time.Millisecond
	clk := simhw.NewClock(linePeriod, d.ISRSAV, d.ISREAV)

	panicked := make(chan any, 1)
	go func() {
		defer func() { panicked <- recover() }()
		clk.Run()
	}()

	err := d.WithRaster(func(line uint32, buf []byte, ctx *raster.Context) {
		time.Sleep(4 * linePeriod)
	}, func(drv *Driver) error {
		time.Sleep(20 * linePeriod)
		return nil
	})

	select {
	case r := <-panicked:
		if r == nil {
			t.Fatal("expected the simulated clock goroutine to panic on deadline miss")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deadline-miss panic")
	}

	if err != nil {
		t.Fatalf("WithRaster itself should not return an error: %v", err)
	}
	if video.BlankCount() == 0 {
		t.Fatal("expected at least one Blank() call on the panic path")
	}
}

// TestBandListTransitionNoRepeatBleed checks the "band list" scenario:
// bands [(0,4,A),(4,8,B)] over smallDescriptor's 8 video
// lines; A serves lines 0-3, B serves 4-7, and A's repeat counter does
// not bleed into B's region: A's 3-line repeat from line 3 would cover
// line 4, so B must still rasterize line 4.
func TestBandListTransitionNoRepeatBleed(t *testing.T) {
	per, _, _, _, _, _ := testPeripherals()
	d := New(per)
	desc := smallDescriptor(t)
	d.ConfigureTiming(desc)

	sched, err := raster.NewScheduler([]raster.Band{{Start: 0, End: 4}, {Start: 4, End: 8}}, desc.VideoLines())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	var aLines, bLines []uint32

	fns := []raster.Func{
		func(line uint32, buf []byte, ctx *raster.Context) {
			aLines = append(aLines, line)
			ctx.RepeatLines = 3
		},
		func(line uint32, buf []byte, ctx *raster.Context) {
			bLines = append(bLines, line)
		},
	}

	clk := driveClock(d, 200*time.Microsecond)
	defer clk.Stop()

	err = d.WithBands(sched, fns, func(drv *Driver) error {
		drv.SyncToVblank()
		drv.SyncToVblank()
		return nil
	})
	if err != nil {
		t.Fatalf("WithBands: %v", err)
	}

	for _, l := range aLines {
		if l >= 4 {
			t.Fatalf("band A rasterized line %d, outside its [0,4) range", l)
		}
	}
	sawLine4 := false
	for _, l := range bLines {
		if l < 4 {
			t.Fatalf("band B rasterized line %d, outside its [4,8) range", l)
		}
		if l == 4 {
			sawLine4 = true
		}
	}
	if !sawLine4 {
		t.Fatalf("band B never rasterized line 4; A's repeat counter bled across the boundary (bLines=%v)", bLines)
	}
}
