// Package simhw is the host-side stand-in for board/stm32f407: fakes of
// HSyncTimer, LineTimer, DMAChannel, VideoPort and SyncPort that record
// what was asked of them instead of touching silicon, so the engine and
// driver's ISR chain can run — and be driven by a test's own simulated
// clock — under `go test`.
//
// Grounded on periph's host-testable peripheral fakes pattern
// (bcm283x fakes registers behind the same driver.Conn
// interfaces its real DMA/SPI/I2C code uses); here each fake implements
// one of this repo's HAL interfaces (hal.go) directly rather than a
// register-level memory map, since the properties under test are about
// ISR ordering and buffer content, not register encodings.
package simhw

import (
	"sync"
	"sync/atomic"

	"github.com/cbiffle/m4vga-go/timing"
)

// HSyncTimer records the last PWM program it was given.
type HSyncTimer struct {
	mu               sync.Mutex
	running          bool
	periodTicks      uint32
	pulseTicks       uint32
	polarity         timing.Polarity
	programCallCount int
}

func (t *HSyncTimer) ProgramPWM(periodTicks, pulseTicks uint32, polarity timing.Polarity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.periodTicks = periodTicks
	t.pulseTicks = pulseTicks
	t.polarity = polarity
	t.running = true
	t.programCallCount++
}

func (t *HSyncTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
}

func (t *HSyncTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// LineTimer records the period, matches and interrupt-enable state a
// configure_timing/with_raster sequence programs into it.
type LineTimer struct {
	mu                  sync.Mutex
	periodTicks         uint32
	savTicks, eavTicks  uint32
	interruptsEnabled   bool
	programPeriodCalls  int
	armMatchesCalls     int
}

func (t *LineTimer) ProgramPeriod(periodTicks uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.periodTicks = periodTicks
	t.programPeriodCalls++
}

func (t *LineTimer) ArmMatches(savTicks, eavTicks uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.savTicks, t.eavTicks = savTicks, eavTicks
	t.armMatchesCalls++
}

func (t *LineTimer) SetInterruptsEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interruptsEnabled = enabled
}

func (t *LineTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interruptsEnabled = false
}

func (t *LineTimer) InterruptsEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interruptsEnabled
}

func (t *LineTimer) Period() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.periodTicks
}

// DMAChannel captures every armed transfer's content by copying src, so
// a test can assert on the bytes actually handed to "hardware" without
// racing the buffer the engine reuses for the next line. busy is set by
// Arm and cleared by Stop or Complete. Clock never calls Complete, so in
// the simulated ISR chain EAV's defensive Stop is what clears it — real
// hardware clears it on its own DMA-complete interrupt.
type DMAChannel struct {
	busy atomic.Bool

	mu       sync.Mutex
	lastXfer []byte
	armCount int
	stopCount int
}

func (d *DMAChannel) Arm(src []byte) {
	cp := make([]byte, len(src))
	copy(cp, src)

	d.mu.Lock()
	d.lastXfer = cp
	d.armCount++
	d.mu.Unlock()

	d.busy.Store(true)
}

func (d *DMAChannel) Stop() {
	d.mu.Lock()
	d.stopCount++
	d.mu.Unlock()
	d.busy.Store(false)
}

func (d *DMAChannel) Busy() bool { return d.busy.Load() }

// Complete marks the in-flight transfer finished, as the real DMA
// channel's completion interrupt would.
func (d *DMAChannel) Complete() { d.busy.Store(false) }

func (d *DMAChannel) LastTransfer() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastXfer
}

func (d *DMAChannel) ArmCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armCount
}

// VideoPort records blank calls and the driven/high-Z gate state.
type VideoPort struct {
	mu         sync.Mutex
	blankCount int
	driven     bool
}

func (v *VideoPort) Blank() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.blankCount++
}

func (v *VideoPort) ODRAddress() uintptr { return 0 }

func (v *VideoPort) EnableDriven() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.driven = true
}

func (v *VideoPort) EnableHighZ() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.driven = false
}

func (v *VideoPort) Driven() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.driven
}

func (v *VideoPort) BlankCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.blankCount
}

// SyncPort records the V-sync line's last driven level.
type SyncPort struct {
	mu     sync.Mutex
	active bool
}

func (s *SyncPort) SetVSync(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

func (s *SyncPort) Idle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
}

func (s *SyncPort) VSyncActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}
