package raster

import "fmt"

// Band is one entry of the optional Band List: a contiguous, half-open
// line range mapped to its own rasterizer slot.
type Band struct {
	Start, End uint32
}

// Len returns End-Start, clamped to 0.
func (b Band) Len() uint32 {
	if b.End <= b.Start {
		return 0
	}
	return b.End - b.Start
}

// Scheduler holds one Slot per band and the band metadata the EAV ISR
// walks with a monotone cursor: a pointer into the ordered band list
// that advances in lockstep with the line counter, never searching.
type Scheduler struct {
	bands []Band
	slots []Slot
}

// NewScheduler validates bands (must be sorted, non-overlapping, and
// jointly cover [0, videoLines)) and returns a Scheduler with one Slot per
// band. Malformed lists are rejected here, at publish time.
func NewScheduler(bands []Band, videoLines uint32) (*Scheduler, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("raster: band list must not be empty")
	}

	var cursor uint32
	for i, b := range bands {
		if b.End <= b.Start {
			return nil, fmt.Errorf("raster: band %d is empty or inverted (%d..%d)", i, b.Start, b.End)
		}
		if b.Start != cursor {
			return nil, fmt.Errorf("raster: band %d starts at %d, expected %d (gap or overlap)", i, b.Start, cursor)
		}
		cursor = b.End
	}

	if cursor != videoLines {
		return nil, fmt.Errorf("raster: bands cover [0,%d), expected [0,%d)", cursor, videoLines)
	}

	return &Scheduler{
		bands: append([]Band(nil), bands...),
		slots: make([]Slot, len(bands)),
	}, nil
}

// NumBands returns the number of bands (and slots) in the scheduler.
func (s *Scheduler) NumBands() int { return len(s.bands) }

// Slot returns the i'th band's rasterizer slot.
func (s *Scheduler) Slot(i int) *Slot { return &s.slots[i] }

// WithBands loans fns[i] to band i's slot for the duration of scope,
// exactly as WithRaster does for a single slot: each band's closure is
// loaned under the same scoped discipline. All bands are published
// before scope runs and all are revoked, in reverse publish order,
// after scope returns or panics.
func WithBands(s *Scheduler, fns []Func, scope func() error) error {
	if len(fns) != len(s.slots) {
		return fmt.Errorf("raster: with_bands got %d closures for %d bands", len(fns), len(s.slots))
	}

	for i, fn := range fns {
		s.slots[i].publish(fn)
	}

	defer func() {
		for i := len(s.slots) - 1; i >= 0; i-- {
			s.slots[i].revoke()
		}
	}()

	return scope()
}

// Cursor walks the band list in lockstep with the scan-out line counter,
// advancing forward only — it never searches back to front.
type Cursor struct {
	s   *Scheduler
	idx int
}

// Cursor returns a fresh Cursor positioned at band 0. The engine resets
// to a fresh Cursor at the start of every frame (line 0).
func (s *Scheduler) Cursor() *Cursor {
	return &Cursor{s: s}
}

// Advance moves the cursor forward to the band containing line, if
// necessary, and reports the band's slot index and whether a band
// boundary was crossed. A crossing invalidates any stored repeat
// counter, which is the caller's responsibility to act on.
func (c *Cursor) Advance(line uint32) (slotIndex int, crossed bool) {
	for c.idx < len(c.s.bands)-1 && line >= c.s.bands[c.idx].End {
		c.idx++
		crossed = true
	}

	return c.idx, crossed
}
