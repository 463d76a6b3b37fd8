// Package m4vga is the root package: the Driver Handle assembling the
// Timing Descriptor, Scan-Out Engine, Rasterizer Slot(s), Hardware-
// Resource Mutex and Vblank Semaphore into the typestate-gated lifecycle
// Idle -> SyncGen -> RasterLoaded.
//
// Go has no move-only types, so this state DAG cannot be enforced purely
// at compile time the way an affine-typed language would (a stale Driver
// value could, syntactically, be reused after its state has moved on).
// Instead the state is carried as a runtime-checked tag: when the target
// language lacks the expressivity for a real typestate, a runtime-checked
// tag that treats illegal transitions as a program error, not a
// recoverable result, is the fallback — every operation CASes the tag
// and panics on a mismatch, the same fail-loud discipline hwmutex uses
// for priority contention.
package m4vga

import (
	"fmt"
	"sync/atomic"

	"github.com/cbiffle/m4vga-go/hwmutex"
	"github.com/cbiffle/m4vga-go/raster"
	"github.com/cbiffle/m4vga-go/timing"
	"github.com/cbiffle/m4vga-go/vblank"
)

type driverState int32

const (
	stateIdle driverState = iota
	stateSyncGen
	stateRasterLoaded
)

func (s driverState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateSyncGen:
		return "sync-gen"
	case stateRasterLoaded:
		return "raster-loaded"
	default:
		return "invalid"
	}
}

// Driver is the user-facing handle. The zero value
// is not usable; construct with New.
type Driver struct {
	state atomic.Int32

	per Peripherals
	hw  *hwmutex.Mutex
	vb  *vblank.Semaphore

	desc timing.Descriptor
	eng  *engine
}

// New builds a Driver@Idle over per, the peripheral bundle a board file
// assembles from concrete register addresses (board/stm32f407.New) or a
// simhw fake. It performs no register writes: per stays untouched until
// ConfigureTiming.
func New(per Peripherals) *Driver {
	vb := &vblank.Semaphore{}
	return &Driver{
		per: per,
		hw:  hwmutex.New(vb),
		vb:  vb,
	}
}

func (d *Driver) transition(from, to driverState) {
	if !d.state.CompareAndSwap(int32(from), int32(to)) {
		panic(fmt.Sprintf("m4vga: illegal transition to %s from state %s (expected %s)", to, driverState(d.state.Load()), from))
	}
}

func (d *Driver) requireSyncGenerated() {
	if got := driverState(d.state.Load()); got != stateSyncGen && got != stateRasterLoaded {
		panic(fmt.Sprintf("m4vga: operation requires sync to be generated, driver is %s", got))
	}
}

// ConfigureTiming is legal only from Idle. It programs the
// H-sync timer for free-running PWM at desc's polarity, arms the line
// timer's SAV/EAV match channels (masked — the first WithRaster/
// WithBands call unmasks them), and transitions to SyncGen.
//
// desc is assumed already validated by timing.New/timing.SVGA800x600x60;
// the configuration-error contract (failing at the state-transition
// boundary, with the offending handle remaining Idle) is satisfied by that
// constructor refusing to produce a bad Descriptor in the first place, so
// ConfigureTiming itself cannot fail.
func (d *Driver) ConfigureTiming(desc timing.Descriptor) {
	d.transition(stateIdle, stateSyncGen)

	d.desc = desc
	d.eng = newEngine(desc, d.per, d.hw, d.vb)

	d.per.HSync.ProgramPWM(desc.ClocksPerPixel*desc.Horizontal.Total(), desc.ClocksPerPixel*desc.Horizontal.SyncPulse, desc.HSyncPolarity)
	d.per.Line.ProgramPeriod(desc.LineTimerPeriod())
	d.per.Line.ArmMatches(desc.ClocksPerPixel*desc.SAVOffset(), desc.ClocksPerPixel*desc.EAVOffset())
	d.per.Line.SetInterruptsEnabled(false)
}

// StopSync is legal only from SyncGen: masks interrupts,
// halts both timers, drives the sync pins inactive, and returns to Idle.
func (d *Driver) StopSync() {
	d.transition(stateSyncGen, stateIdle)

	d.per.Line.SetInterruptsEnabled(false)
	d.per.Line.Stop()
	d.per.HSync.Stop()
	d.per.Sync.Idle()

	d.eng = nil
}

// WithRaster is the scoped closure loan: fn is loaned to
// the Scan-Out Engine's single rasterizer slot for the duration of scope.
// Legal only from SyncGen; the driver is RasterLoaded for the duration of
// the call and returns to SyncGen before WithRaster returns (even if
// scope panics).
func (d *Driver) WithRaster(fn raster.Func, scope func(*Driver) error) error {
	d.transition(stateSyncGen, stateRasterLoaded)
	defer d.transition(stateRasterLoaded, stateSyncGen)

	source := &singleSlotSource{}
	d.eng.setSource(source)
	d.per.Line.SetInterruptsEnabled(true)
	defer d.per.Line.SetInterruptsEnabled(false)

	return raster.WithRaster(&source.slot, fn, func() error {
		return scope(d)
	})
}

// WithBands is the Band Scheduler variant of WithRaster: bands has
// already been validated into a *raster.Scheduler by raster.NewScheduler,
// and fns supplies one closure per band in order.
func (d *Driver) WithBands(sched *raster.Scheduler, fns []raster.Func, scope func(*Driver) error) error {
	d.transition(stateSyncGen, stateRasterLoaded)
	defer d.transition(stateRasterLoaded, stateSyncGen)

	d.eng.setSource(&bandSource{sched: sched, cursor: sched.Cursor()})
	d.per.Line.SetInterruptsEnabled(true)
	defer d.per.Line.SetInterruptsEnabled(false)

	return raster.WithBands(sched, fns, func() error {
		return scope(d)
	})
}

// SyncToVblank blocks the calling thread-mode context until at least one
// end-of-frame boundary has passed since entry. Legal in
// SyncGen or RasterLoaded.
func (d *Driver) SyncToVblank() {
	d.requireSyncGenerated()
	d.vb.Wait()
}

// VideoOn retunes the video GPIO port to driven RGB, glitch-free: it
// blocks until a vblank window opens, acquires the hardware mutex for
// the duration of the retune, and releases it before the window closes
// (an overrun panics, via hwmutex.Mutex.Release).
func (d *Driver) VideoOn() {
	d.requireSyncGenerated()

	d.vb.WaitForVBlankWindow()
	d.hw.Acquire(hwmutex.LevelThread)
	defer d.hw.Release(hwmutex.LevelThread)

	d.per.Video.EnableDriven()
}

// VideoOff is VideoOn's inverse: retunes the video port to high
// impedance / pulled-low.
func (d *Driver) VideoOff() {
	d.requireSyncGenerated()

	d.vb.WaitForVBlankWindow()
	d.hw.Acquire(hwmutex.LevelThread)
	defer d.hw.Release(hwmutex.LevelThread)

	d.per.Video.EnableHighZ()
}

// ISRSAV, ISREAV expose the engine's ISR entry points for a board's real
// interrupt vectors (or a test's simulated clock) to call: a board's
// NVIC vector table installs these directly, the way usbarmory-tamago's
// board files install handlers onto `arm/gic`. Outside a WithRaster/
// WithBands scope the engine's rasterizer slot is empty, so they still
// advance the line counter and vblank but run no rasterizer. Before
// ConfigureTiming and after StopSync there is no engine, and calling them
// dereferences a nil engine, which is itself a program error — the same
// category of misuse as the other panics in this package.
func (d *Driver) ISRSAV() { d.eng.isrSAV() }
func (d *Driver) ISREAV() { d.eng.isrEAV() }
