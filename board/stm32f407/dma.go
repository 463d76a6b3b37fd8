package stm32f407

import "unsafe"

// DMA stream register offsets (RM0090 §10.5), relative to one stream's
// block within a DMA controller (DMA2 Stream 1, in this design, since it
// is the stream wired to TIM1's update/trigger on the STM32F407's DMA
// request mapping table).
const (
	DMA_SCR  = 0x00
	DMA_SNDTR = 0x04
	DMA_SPAR = 0x08
	DMA_SM0AR = 0x0C
)

const (
	scrEN  = 1 << 0
	scrDIR = 0b01 << 6 // memory-to-peripheral
	scrMINC = 1 << 10
	scrPSIZE8 = 0b00 << 11
	scrMSIZE8 = 0b00 << 13
)

// DMAChannel streams a scanline buffer to the video GPIO's output data
// register in one shot. Grounded on usbarmory-tamago's DMA bring-up
// style (imx6/dma.go: a small struct over a fixed register
// block, configured by a handful of field writes) rather than
// usbarmory-tamago's dynamic allocator, which has no place on the
// steady-state scan-out path.
type DMAChannel struct {
	Base    *uint32
	DestODR *uint32
}

func (d DMAChannel) reg(offset uintptr) *uint32 { return offsetPtr(d.Base, offset) }

// Arm programs a one-shot memory-to-peripheral transfer of src to the
// video port's output data register and starts it immediately. src's
// address is taken with unsafe.Pointer, which is safe here because src
// is always a sub-slice of one of the engine's two statically-reserved
// scanline buffers, never a stack- or heap-movable value during the
// transfer (the buffers live for the lifetime of the engine).
func (d DMAChannel) Arm(src []byte) {
	regSetN(d.reg(DMA_SCR), 0, 1, 0) // disable before reprogramming

	regWrite(d.reg(DMA_SPAR), uint32(uintptr(unsafe.Pointer(d.DestODR))))
	regWrite(d.reg(DMA_SM0AR), uint32(uintptr(unsafe.Pointer(&src[0]))))
	regWrite(d.reg(DMA_SNDTR), uint32(len(src)))

	regSetN(d.reg(DMA_SCR), 0, 0xFFFF, scrDIR|scrMINC|scrPSIZE8|scrMSIZE8)
	regSetN(d.reg(DMA_SCR), 0, 1, scrEN)
}

func (d DMAChannel) Stop() {
	regSetN(d.reg(DMA_SCR), 0, 1, 0)
}

func (d DMAChannel) Busy() bool {
	return regRead(d.reg(DMA_SCR))&scrEN != 0
}
