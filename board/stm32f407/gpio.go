// Package stm32f407 implements the concrete peripheral register layer:
// GPIO, the two timers driving H-sync/V-sync and the SAV/EAV match
// events, and the DMA channel that streams the scanout buffer to the
// video GPIO's output data register.
//
// Grounded on usbarmory-tamago's NXP GPIO driver
// (soc/nxp/gpio/gpio.go): a small struct of register base addresses,
// initialized once, exposing typed accessors over internal/reg rather
// than raw pointer arithmetic at every call site. Where that driver
// tracks one pin per Init() call, a video port here drives all 8 bits of
// one GPIO register at once (the packed R/G/B output byte), so the
// accessors operate on the whole ODR (output data register) rather than
// a single bit.
//
// This file (and the rest of this package) is only meant to be built
// with `GOOS=tamago GOARCH=arm` — the TamaGo bare-metal runtime — or
// cross-compiled firmware toolchains that place these register addresses
// at the addresses the STM32F407 reference manual documents. Host tests
// use simhw instead, whose fakes implement the driver's HAL interfaces
// directly without register access.
package stm32f407

// GPIO register offsets (RM0090 §8.4): mode, output type, output speed,
// pull-up/down, input data, output data, bit-set/reset, locking, alt
// function low/high.
const (
	GPIO_MODER   = 0x00
	GPIO_OTYPER  = 0x04
	GPIO_OSPEEDR = 0x08
	GPIO_PUPDR   = 0x0C
	GPIO_IDR     = 0x10
	GPIO_ODR     = 0x14
	GPIO_BSRR    = 0x18
	GPIO_LCKR    = 0x1C
	GPIO_AFRL    = 0x20
	GPIO_AFRH    = 0x24
)

// Pin mode field values (GPIO_MODER, 2 bits per pin).
const (
	ModeInput  = 0b00
	ModeOutput = 0b01
	ModeAF     = 0b10
	ModeAnalog = 0b11
)

// Port is one GPIO port (A..K), addressed by its AHB1 base register.
type Port struct {
	// Base is the port's register base address (e.g. 0x40020000 for
	// GPIOA on STM32F407).
	Base *uint32
}

// reg returns the address of a register at the given offset within the
// port's block. internal/reg takes *uint32, so this does pointer
// arithmetic over the same backing array/MMIO range the port's Base
// points into.
func (p Port) reg(offset uintptr) *uint32 {
	return offsetPtr(p.Base, offset)
}

// SetMode configures the 2-bit mode field for a single pin (0-15).
func (p Port) SetMode(pin int, mode uint32) {
	regSetN(p.reg(GPIO_MODER), pin*2, 0b11, mode)
}

// High drives a single output bit high via the atomic bit-set/reset
// register (BSRR), so it never races a concurrent ODR read-modify-write
// of a different bit from another priority level.
func (p Port) High(pin int) {
	regWrite(p.reg(GPIO_BSRR), 1<<uint(pin))
}

// Low drives a single output bit low via BSRR's reset half (bits 16-31).
func (p Port) Low(pin int) {
	regWrite(p.reg(GPIO_BSRR), 1<<uint(pin+16))
}

// WriteByte drives the low 8 bits of the output data register in one
// write — the packed R/G/B video byte. Using ODR directly (not BSRR) is
// safe here because the video port's low byte is owned exclusively by
// the DMA engine and the EAV blanking write, which are mutually
// exclusive by construction.
func (p Port) WriteByte(b uint8) {
	reg := p.reg(GPIO_ODR)
	regSetN(reg, 0, 0xFF, uint32(b))
}

// ODR returns the address of the output data register, for handing to
// the DMA engine as a fixed destination address.
func (p Port) ODR() *uint32 {
	return p.reg(GPIO_ODR)
}
