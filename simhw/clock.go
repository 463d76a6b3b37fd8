package simhw

import (
	"sync/atomic"
	"time"
)

// Clock fires a per-line callback pair (SAV then EAV) on a fixed wall-
// clock period, standing in for the real LineTimer's two compare
// interrupts. Using a real ticker rather than calling both ISRs back to
// back in a single-threaded loop is deliberate: the deadline-miss
// property only exercises anything if the rasterization trigger
// genuinely runs concurrently with the next line's timer matches, the
// same way the board's NVIC would preempt thread-mode/lower-priority
// work with a real interrupt while it is still running.
type Clock struct {
	linePeriod time.Duration
	sav        func()
	eav        func()

	stop chan struct{}
	done chan struct{}

	lines atomic.Uint64
}

// NewClock builds a Clock that calls sav then eav, linePeriod apart,
// until Stop is called.
func NewClock(linePeriod time.Duration, sav, eav func()) *Clock {
	return &Clock{
		linePeriod: linePeriod,
		sav:        sav,
		eav:        eav,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run drives the clock until Stop is called. Intended to be run in its
// own goroutine.
func (c *Clock) Run() {
	defer close(c.done)

	ticker := time.NewTicker(c.linePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sav()
			c.eav()
			c.lines.Add(1)
		}
	}
}

// Stop halts the clock and waits for Run to return.
func (c *Clock) Stop() {
	close(c.stop)
	<-c.done
}

// Lines reports how many SAV/EAV pairs have fired so far.
func (c *Clock) Lines() uint64 {
	return c.lines.Load()
}
