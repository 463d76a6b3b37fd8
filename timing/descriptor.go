// Package timing implements the Timing Descriptor: an immutable record
// of the pixel clock, sync pulse widths, porches, and
// active pixel/line counts for one scan-out mode, plus the arithmetic that
// turns it into hardware timer periods.
//
// Grounded on usbarmory-tamago's board-descriptor style (struct literal,
// validated once at construction, never mutated after) as seen in
// usbarmory-tamago's soc/nxp/gpio.GPIO{Base, CCGR, CG} and
// arm/gic.GIC{Base}: a small value type the board file builds once and
// hands to the driver.
package timing

import "fmt"

// Polarity of a sync pulse.
type Polarity bool

const (
	// PolarityNegative drives the pulse low during the sync interval.
	PolarityNegative Polarity = false
	// PolarityPositive drives the pulse high during the sync interval.
	PolarityPositive Polarity = true
)

// Axis holds the four timing fields that partition one scanline or one
// frame: sync pulse width, back porch, active (visible) extent, and front
// porch, in pixel or line units respectively.
type Axis struct {
	SyncPulse  uint32
	BackPorch  uint32
	Active     uint32
	FrontPorch uint32
}

// Total returns sync + back porch + active + front porch.
func (a Axis) Total() uint32 {
	return a.SyncPulse + a.BackPorch + a.Active + a.FrontPorch
}

// Descriptor is an immutable timing descriptor. Construct with New, which
// validates it; the zero value is not a valid Descriptor.
type Descriptor struct {
	// ClocksPerPixel is the CPU-clock divisor giving the scan-out shift
	// rate: one output pixel is latched every ClocksPerPixel CPU cycles.
	ClocksPerPixel uint32

	Horizontal Axis
	Vertical   Axis

	HSyncPolarity Polarity
	VSyncPolarity Polarity

	// maxTimerPeriod bounds ClocksPerPixel*Horizontal.Total() against the
	// hardware timer's period register width; 0 means "unbounded",
	// which only a host-side simulation should ever pass.
	maxTimerPeriod uint32
}

// New validates and returns a Descriptor. maxTimerPeriod is the largest
// value the target's line timer period register can hold (e.g. 0xffff for
// a 16-bit timer); pass 0 only for host simulation with no register width
// limit.
func New(clocksPerPixel uint32, h, v Axis, hPol, vPol Polarity, maxTimerPeriod uint32) (Descriptor, error) {
	d := Descriptor{
		ClocksPerPixel: clocksPerPixel,
		Horizontal:     h,
		Vertical:       v,
		HSyncPolarity:  hPol,
		VSyncPolarity:  vPol,
		maxTimerPeriod: maxTimerPeriod,
	}

	if err := d.validate(); err != nil {
		return Descriptor{}, err
	}

	return d, nil
}

func (d Descriptor) validate() error {
	if d.ClocksPerPixel == 0 {
		return fmt.Errorf("timing: clocks_per_pixel must be nonzero")
	}

	for _, a := range []struct {
		name string
		axis Axis
	}{{"horizontal", d.Horizontal}, {"vertical", d.Vertical}} {
		if a.axis.SyncPulse == 0 {
			return fmt.Errorf("timing: %s sync pulse width must be nonzero", a.name)
		}
		if a.axis.BackPorch == 0 {
			return fmt.Errorf("timing: %s back porch must be nonzero", a.name)
		}
		if a.axis.Active == 0 {
			return fmt.Errorf("timing: %s active extent must be nonzero", a.name)
		}
		if a.axis.FrontPorch == 0 {
			return fmt.Errorf("timing: %s front porch must be nonzero", a.name)
		}
	}

	if d.maxTimerPeriod != 0 {
		period := uint64(d.ClocksPerPixel) * uint64(d.Horizontal.Total())
		if period > uint64(d.maxTimerPeriod) {
			return fmt.Errorf("timing: line period %d exceeds timer register width %d", period, d.maxTimerPeriod)
		}
	}

	return nil
}

// LinePixels is the total pixel count of one scanline (sync+bp+video+fp).
func (d Descriptor) LinePixels() uint32 { return d.Horizontal.Total() }

// FrameLines is the total line count of one frame.
func (d Descriptor) FrameLines() uint32 { return d.Vertical.Total() }

// VideoPixels is the number of visible pixels per line.
func (d Descriptor) VideoPixels() uint32 { return d.Horizontal.Active }

// VideoLines is the number of visible lines per frame.
func (d Descriptor) VideoLines() uint32 { return d.Vertical.Active }

// SAVOffset is the pixel offset, from the start of the line, at which the
// start-of-active-video boundary falls.
func (d Descriptor) SAVOffset() uint32 {
	return d.Horizontal.SyncPulse + d.Horizontal.BackPorch
}

// EAVOffset is the pixel offset, from the start of the line, at which the
// end-of-active-video boundary falls.
func (d Descriptor) EAVOffset() uint32 {
	return d.SAVOffset() + d.Horizontal.Active
}

// LineTimerPeriod is the value to program into the line timer's period
// (auto-reload) register: ClocksPerPixel ticks per pixel, LinePixels
// pixels per line.
func (d Descriptor) LineTimerPeriod() uint32 {
	return d.ClocksPerPixel * d.LinePixels()
}

// RefreshHz computes the resulting refresh rate given a CPU clock.
func (d Descriptor) RefreshHz(cpuHz uint32) float64 {
	total := uint64(d.LineTimerPeriod()) * uint64(d.FrameLines())
	if total == 0 {
		return 0
	}
	return float64(cpuHz) / float64(total)
}

// SVGA800x600x60 is the standard SuperVGA descriptor: 800x600 @ 60Hz,
// positive sync polarity, with the standard CVT pixel/line counts.
func SVGA800x600x60(clocksPerPixel uint32, maxTimerPeriod uint32) (Descriptor, error) {
	return New(
		clocksPerPixel,
		Axis{SyncPulse: 128, BackPorch: 88, Active: 800, FrontPorch: 40},
		Axis{SyncPulse: 4, BackPorch: 23, Active: 600, FrontPorch: 1},
		PolarityPositive,
		PolarityPositive,
		maxTimerPeriod,
	)
}
