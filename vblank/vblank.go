// Package vblank implements the Vblank Semaphore: a
// monotonic, non-wrapping frame counter raised by the end-of-frame ISR
// transition (line counter wrapping back to 0) and a window flag thread
// mode uses to know when it is safe to touch ISR-owned peripherals.
//
// The blocking primitive is a busy spin on an atomic counter, in the
// spirit of usbarmory-tamago's internal/reg.Wait/WaitFor (spin with
// runtime.Gosched between polls) rather than a channel or condition
// variable: there is no OS scheduler here to park a goroutine on, and
// spinning (or WFE) is the only option for this exact wait.
package vblank

import (
	"runtime"
	"sync/atomic"
)

// Semaphore is the vblank signal. The zero value is ready to use.
type Semaphore struct {
	counter  atomic.Uint64
	inVBlank atomic.Bool
}

// EnterVBlank marks the start of the vertical blanking interval: called by
// the end-of-active-video ISR when the line counter advances past the
// last visible line. It does not itself wake sync_to_vblank waiters —
// only Raise, at the far (line-0) edge of the interval, does that.
func (s *Semaphore) EnterVBlank() {
	s.inVBlank.Store(true)
}

// Raise signals the end of a vertical blanking interval (the line counter
// having wrapped back to 0), incrementing the
// monotonic frame counter and waking any SyncToVblank callers. Must be
// called from the EAV ISR and only from there.
func (s *Semaphore) Raise() {
	s.inVBlank.Store(false)
	s.counter.Add(1)
}

// InVBlank reports whether a vertical blanking interval is currently open,
// along with the current frame counter value — satisfies hwmutex.VBlankGate.
func (s *Semaphore) InVBlank() (inside bool, generation uint64) {
	return s.inVBlank.Load(), s.counter.Load()
}

// Count returns the current monotonic frame counter value.
func (s *Semaphore) Count() uint64 {
	return s.counter.Load()
}

// Wait blocks thread-mode until the frame counter strictly advances past
// its value on entry, i.e. until at least one end-of-frame boundary has
// passed since the call began.
func (s *Semaphore) Wait() {
	start := s.counter.Load()
	for s.counter.Load() == start {
		runtime.Gosched()
	}
}

// WaitForVBlankWindow blocks thread-mode until a vblank interval is open
// (InVBlank() returns true), for use by VideoOn/VideoOff,
// which must acquire the hardware mutex only inside that window.
func (s *Semaphore) WaitForVBlankWindow() {
	for !s.inVBlank.Load() {
		runtime.Gosched()
	}
}
