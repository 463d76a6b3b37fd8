package m4vga

import "github.com/cbiffle/m4vga-go/timing"

// HSyncTimer programs the timer that emits the free-running H-sync pulse
// on its GPIO pin. It is a relocated counterpart
// of usbarmory-tamago's per-SoC timer bring-up (imx6/timer.go,
// arm/timer.go): a tiny struct the board file owns, configured once.
type HSyncTimer interface {
	// ProgramPWM configures the timer for free-running PWM with the given
	// total period and active-pulse width (both in CPU-clock ticks,
	// ClocksPerPixel per pixel) and
	// output polarity, then starts it.
	ProgramPWM(periodTicks, pulseTicks uint32, polarity timing.Polarity)
	// Stop halts the timer and drives its output pin inactive.
	Stop()
}

// LineTimer programs the per-line match events that trigger the SAV and
// EAV interrupts.
type LineTimer interface {
	// ProgramPeriod sets the per-line timer period (one line's worth of
	// CPU-clock ticks, ClocksPerPixel per pixel).
	ProgramPeriod(periodTicks uint32)
	// ArmMatches sets the two intra-line compare values that fire SAV and
	// EAV, in CPU-clock ticks from the start of the line.
	ArmMatches(savTicks, eavTicks uint32)
	// SetInterruptsEnabled masks or unmasks the SAV/EAV match interrupts
	// without touching the timer's running state (ConfigureTiming arms
	// but masks them; the first call to WithRaster unmasks).
	SetInterruptsEnabled(enabled bool)
	// Stop halts the timer.
	Stop()
}

// DMAChannel is the one-shot byte-stream transfer from a scanline buffer
// to the video GPIO's output register.
type DMAChannel interface {
	// Arm programs a one-shot transfer of src (already sliced to the
	// rasterizer's declared target range) to the fixed video GPIO
	// destination and starts it immediately. Arm must return within a
	// bounded, deterministic latency — it is called from the
	// highest-priority ISR. The real board implementation takes src's
	// address via unsafe.Pointer; the host simulation reads src directly.
	Arm(src []byte)
	// Stop halts any in-progress transfer. Called defensively by EAV.
	Stop()
	// Busy reports whether a transfer is still in flight.
	Busy() bool
}

// VideoPort is the GPIO port carrying the packed R/G/B byte.
type VideoPort interface {
	// Blank drives the port to its inactive (black) level. Called by EAV
	// between every line's active video and by the panic-recovery path.
	Blank()
	// ODRAddress returns the address of the port's output data register,
	// the DMA engine's fixed destination.
	ODRAddress() uintptr
	// EnableDriven / EnableHighZ retune the port's GPIO pin mode between
	// "driven RGB" and "high-impedance/pulled-low". Only
	// ever called with the hardware mutex held inside a vblank window.
	EnableDriven()
	EnableHighZ()
}

// SyncPort is the pair of GPIO pins carrying H-sync/V-sync when they are
// not driven directly by HSyncTimer's PWM output.
type SyncPort interface {
	SetVSync(active bool)
	Idle()
}

// Peripherals bundles everything the Hardware-Resource Mutex guards
// and everything ConfigureTiming needs. The application's
// board file constructs one from concrete register addresses (real
// hardware) or simhw fakes (tests) and passes it to New.
type Peripherals struct {
	HSync     HSyncTimer
	Line      LineTimer
	DMA       DMAChannel
	Video     VideoPort
	Sync      SyncPort
	ClocksMax uint32 // line timer period register width, for timing.New's bounds check
}
