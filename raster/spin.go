package raster

import "runtime"

// spinWait yields to other goroutines while waiting for an ISR-driven
// condition, matching usbarmory-tamago's internal/reg.Wait idiom.
func spinWait() {
	runtime.Gosched()
}
