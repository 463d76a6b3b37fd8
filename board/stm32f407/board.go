package stm32f407

import m4vga "github.com/cbiffle/m4vga-go"

// Addresses collects the register base addresses a concrete STM32F407
// board file has to know to bring up the scan-out engine: the two
// timers (§4.1), the DMA stream (§4.2), the video port, and the V-sync
// GPIO pin. Grounded on usbarmory-tamago's small-bring-up-struct convention
// (usbarmory-tamago's gic.GIC{Base: ...}, imx6.SetDMA(start, size)):
// one flat struct of concrete addresses, built once by the application
// and handed to New.
type Addresses struct {
	HSyncTimerBase *uint32
	LineTimerBase  *uint32
	DMABase        *uint32
	VideoPortBase  *uint32
	SyncPortBase   *uint32
	VSyncPin       int
	ClocksMax      uint32
}

// New builds an m4vga.Peripherals bundle over the concrete STM32F407
// register blocks named by a. It performs no register writes itself —
// every peripheral stays untouched until the driver's configure_timing
// step programs it, so building Addresses is safe at any time, including
// before interrupts are enabled.
func New(a Addresses) m4vga.Peripherals {
	videoPort := VideoPort{Port{Base: a.VideoPortBase}}

	return m4vga.Peripherals{
		HSync: HSyncTimer{Base: a.HSyncTimerBase},
		Line:  LineTimer{Base: a.LineTimerBase},
		DMA: DMAChannel{
			Base:    a.DMABase,
			DestODR: videoPort.ODR(),
		},
		Video:     videoPort,
		Sync:      SyncPort{Port: Port{Base: a.SyncPortBase}, VSyncPin: a.VSyncPin},
		ClocksMax: a.ClocksMax,
	}
}
