// Package hwmutex implements the Hardware-Resource Mutex:
// a priority-aware spinlock guarding the bundle of peripherals
// (H-sync timer, line timer, DMA channel, video GPIO, sync GPIO) shared
// between the three ISR priorities and thread-mode.
//
// On a single core whose ISRs preempt strictly by fixed priority, true
// contention between two of them is never supposed to happen: a lower
// priority ISR holding the lock cannot resume and release it while a
// higher one spins waiting, so spinning on contention would deadlock
// rather than serialize. Contention between ISRs, or between an ISR and
// thread-mode outside vblank, is therefore treated as a design error,
// and panics rather than waits.
// Acquire is therefore always non-blocking: on contention it panics
// immediately instead of looping, matching usbarmory-tamago's own style of
// failing loudly on a broken invariant rather than hanging
// (arm/gic/gic.go's `panic("invalid GIC instance")`,
// dma/region.go's `panic("dma: region exhausted")`).
package hwmutex

import (
	"fmt"
	"sync/atomic"
)

// Level identifies who is attempting to hold the mutex. Values are ordered
// low to high by interrupt priority; Thread is not an interrupt priority
// at all; it is gated separately by the vblank window.
type Level int32

const (
	// LevelNone marks the mutex unlocked.
	LevelNone Level = iota
	// LevelRasterize is the lowest-priority ISR (the rasterization
	// trigger), cooperatively entered from EAV.
	LevelRasterize
	// LevelEAV is the middle-priority ISR (end-of-active-video).
	LevelEAV
	// LevelSAV is the highest-priority ISR (start-of-active-video).
	LevelSAV
	// LevelThread is thread-mode application code. Only VBlankGate
	// permits a LevelThread acquire to succeed outside of a panic.
	LevelThread
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelRasterize:
		return "rasterize"
	case LevelEAV:
		return "eav"
	case LevelSAV:
		return "sav"
	case LevelThread:
		return "thread"
	default:
		return "invalid"
	}
}

// VBlankGate is satisfied by the vblank package's Semaphore. It lets
// hwmutex confirm a thread-mode acquire is happening inside a vblank
// window, and lets it detect a thread-mode holder that outran the window:
// holding past the end of vblank panics.
type VBlankGate interface {
	// InVBlank reports whether the scan-out engine is currently inside a
	// vertical blanking interval, and a generation counter that advances
	// every time the interval ends.
	InVBlank() (inside bool, generation uint64)
}

// Mutex is the Hardware-Resource Mutex. The zero value serves the ISR
// levels only: a LevelThread acquire needs a VBlankGate, so construct with
// New.
type Mutex struct {
	holder atomic.Int32

	gate    VBlankGate
	genHeld uint64
}

// New returns a Mutex whose thread-mode acquisitions are checked against
// gate's vblank window.
func New(gate VBlankGate) *Mutex {
	return &Mutex{gate: gate}
}

// Acquire claims the mutex for the given level. It never blocks: if the
// mutex is already held, or a thread-mode caller is outside vblank, it
// panics rather than spin, because on this single-core priority-preemptive
// system spinning could only mean a priority-ordering bug or driver
// misuse, never a transient condition that resolves itself.
func (m *Mutex) Acquire(level Level) {
	if level == LevelThread {
		inside, gen := m.gate.InVBlank()
		if !inside {
			panic("hwmutex: thread-mode acquire outside vblank")
		}
		m.genHeld = gen
	}

	if !m.holder.CompareAndSwap(int32(LevelNone), int32(level)) {
		held := Level(m.holder.Load())
		panic(fmt.Sprintf("hwmutex: contention: %s tried to acquire while held by %s", level, held))
	}
}

// Release returns the mutex to the unlocked state. level must match the
// level that last acquired it. A thread-mode release that outlived the
// vblank window it acquired in is a design error and
// panics.
func (m *Mutex) Release(level Level) {
	if level == LevelThread {
		if inside, gen := m.gate.InVBlank(); !inside || gen != m.genHeld {
			panic("hwmutex: thread-mode release after vblank window ended")
		}
	}

	if !m.holder.CompareAndSwap(int32(level), int32(LevelNone)) {
		held := Level(m.holder.Load())
		panic(fmt.Sprintf("hwmutex: release by %s did not match holder %s", level, held))
	}
}

// Held reports the current holder, or LevelNone if unlocked. Intended for
// tests and diagnostics, not for control flow.
func (m *Mutex) Held() Level {
	return Level(m.holder.Load())
}
