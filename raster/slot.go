package raster

import (
	"sync/atomic"
)

type entry struct {
	fn Func
}

// Slot holds at most one borrowed rasterizer closure. The zero value is
// Empty and ready to use.
//
// Publication uses an atomic.Pointer swap rather than a separate
// tag+pointer pair: under the Go memory model atomic stores/loads are
// sequentially consistent, so everything the publisher wrote while
// constructing the entry (in particular the closure's captured
// environment) happens-before any ISR that observes the published
// pointer — the ISR must never observe a Loaded slot whose closure's
// environment is not yet fully constructed.
type Slot struct {
	ptr     atomic.Pointer[entry]
	running atomic.Uint32
}

// Loaded reports whether a closure is currently published.
func (s *Slot) Loaded() bool {
	return s.ptr.Load() != nil
}

// publish installs fn as the slot's closure with release ordering.
func (s *Slot) publish(fn Func) {
	s.ptr.Store(&entry{fn: fn})
}

// revoke removes the slot's closure with acquire ordering and waits for
// any rasterization-ISR invocation already in flight to finish: the
// scoped-loan containment guarantee means the publisher cannot return
// until the ISR has released its borrow.
func (s *Slot) revoke() {
	s.ptr.Store(nil)

	for s.running.Load() != 0 {
		spinWait()
	}
}

// Invoke is called by the rasterization ISR. If a closure is published it
// is run with the given line number, working buffer, and ctx (Invoke does
// not reset ctx; callers reset it beforehand); Invoke reports whether a
// closure ran.
//
// The running counter is set before the published pointer is sampled and
// cleared only after any invocation returns, regardless of whether the
// pointer was nil at sample time. This is what makes revoke's drain loop
// correct: revoke always observes running != 0 for the full duration of
// any invocation that was in flight, or about to start, when it stored
// nil.
func (s *Slot) Invoke(line uint32, buf []byte, ctx *Context) (invoked bool) {
	s.running.Store(1)
	defer s.running.Store(0)

	e := s.ptr.Load()
	if e == nil {
		return false
	}

	e.fn(line, buf, ctx)
	return true
}

// WithRaster implements the scoped closure loan: it publishes fn to
// slot, runs scope, and — whether scope returns
// normally or panics — revokes the slot and waits for ISR drain before
// returning (or re-panicking). This is what bounds the lifetime of any
// stack state fn captures to the scope call: scope cannot return, and
// WithRaster cannot return to its caller, while an ISR might still be
// inside fn.
func WithRaster(slot *Slot, fn Func, scope func() error) error {
	slot.publish(fn)
	defer slot.revoke()

	return scope()
}
