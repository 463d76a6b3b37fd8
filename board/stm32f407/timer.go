package stm32f407

import "github.com/cbiffle/m4vga-go/timing"

// General-purpose timer register offsets (RM0090 §13.4), the subset this
// package touches: control register 1, DMA/interrupt enable, status,
// event generation, capture/compare mode register 1, capture/compare
// enable, counter, auto-reload, and capture/compare register 1.
const (
	TIM_CR1   = 0x00
	TIM_DIER  = 0x0C
	TIM_SR    = 0x10
	TIM_EGR   = 0x14
	TIM_CCMR1 = 0x18
	TIM_CCER  = 0x20
	TIM_CNT   = 0x24
	TIM_ARR   = 0x2C
	TIM_CCR1  = 0x34
	TIM_CCR2  = 0x38
)

const (
	cr1CEN = 1 << 0

	dierUIE  = 1 << 0
	dierCC1E = 1 << 1
	dierCC2E = 1 << 2

	ccerCC1E = 1 << 0
	ccerCC1P = 1 << 1

	// CCMR1 output-compare mode field for channel 1 (bits 6:4), PWM mode 1.
	ccmr1OC1M    = 0b110 << 4
	ccmr1OC1PE   = 1 << 3
	egrUG        = 1 << 0
)

// HSyncTimer drives the free-running H-sync pulse off a single PWM
// channel of a general-purpose timer. Grounded on the
// teacher's register-block-plus-accessor style (board/stm32f407/gpio.go
// in this tree); the PWM mode/polarity bring-up sequence follows
// RM0090's "PWM mode" walkthrough (§13.4.7).
type HSyncTimer struct {
	Base *uint32
}

func (t HSyncTimer) reg(offset uintptr) *uint32 { return offsetPtr(t.Base, offset) }

func (t HSyncTimer) ProgramPWM(periodTicks, pulseTicks uint32, polarity timing.Polarity) {
	regWrite(t.reg(TIM_CR1), 0)
	regWrite(t.reg(TIM_ARR), periodTicks-1)
	regWrite(t.reg(TIM_CCR1), pulseTicks)

	ccmr1 := uint32(ccmr1OC1M | ccmr1OC1PE)
	regWrite(t.reg(TIM_CCMR1), ccmr1)

	ccer := uint32(ccerCC1E)
	if polarity == timing.PolarityNegative {
		ccer |= ccerCC1P
	}
	regWrite(t.reg(TIM_CCER), ccer)

	regWrite(t.reg(TIM_EGR), egrUG)
	regSetN(t.reg(TIM_CR1), 0, 1, cr1CEN)
}

func (t HSyncTimer) Stop() {
	regSetN(t.reg(TIM_CR1), 0, 1, 0)
}

// LineTimer programs the per-line match events that trigger SAV and EAV
// from a second timer's two compare channels, each masked independently
// at DIER so ConfigureTiming can arm the matches before WithRaster
// unmasks the interrupts.
type LineTimer struct {
	Base *uint32
}

func (t LineTimer) reg(offset uintptr) *uint32 { return offsetPtr(t.Base, offset) }

func (t LineTimer) ProgramPeriod(periodTicks uint32) {
	regWrite(t.reg(TIM_ARR), periodTicks-1)
	regWrite(t.reg(TIM_EGR), egrUG)
	regSetN(t.reg(TIM_CR1), 0, 1, cr1CEN)
}

func (t LineTimer) ArmMatches(savTicks, eavTicks uint32) {
	regWrite(t.reg(TIM_CCR1), savTicks)
	regWrite(t.reg(TIM_CCR2), eavTicks)
}

func (t LineTimer) SetInterruptsEnabled(enabled bool) {
	val := uint32(0)
	if enabled {
		val = dierCC1E | dierCC2E
	}
	regWrite(t.reg(TIM_DIER), val)
}

func (t LineTimer) Stop() {
	regSetN(t.reg(TIM_CR1), 0, 1, 0)
	regWrite(t.reg(TIM_DIER), 0)
}
