package stm32f407

import "unsafe"

// VideoPort drives the 8 video GPIO pins as a single packed R/G/B byte.
// It is Port restricted to the driven/high-Z mode retune:
// EnableDriven pushes all 8 pins into push-pull output, EnableHighZ
// pulls them back to input with pull-down so a disconnected or
// mid-retune bus never floats to an arbitrary color.
type VideoPort struct {
	Port
}

func (v VideoPort) Blank() {
	v.WriteByte(0)
}

func (v VideoPort) ODRAddress() uintptr {
	return uintptr(unsafe.Pointer(v.ODR()))
}

func (v VideoPort) EnableDriven() {
	for pin := 0; pin < 8; pin++ {
		v.SetMode(pin, ModeOutput)
	}
}

func (v VideoPort) EnableHighZ() {
	for pin := 0; pin < 8; pin++ {
		v.SetMode(pin, ModeInput)
	}
	regSetN(v.reg(GPIO_PUPDR), 0, 0xFFFF, pullDownAll)
}

const pullDownAll = 0xAAAA // 2 bits per pin, 0b10 = pull-down, all 8 pins

// SyncPort carries V-sync (and, on boards where it is not driven
// directly by HSyncTimer's PWM output, H-sync) on ordinary GPIO pins.
type SyncPort struct {
	Port
	VSyncPin int
}

func (s SyncPort) SetVSync(active bool) {
	if active {
		s.High(s.VSyncPin)
	} else {
		s.Low(s.VSyncPin)
	}
}

func (s SyncPort) Idle() {
	s.Low(s.VSyncPin)
}
