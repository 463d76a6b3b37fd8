package m4vga

import "github.com/cbiffle/m4vga-go/internal/bits"

// PixelFormat names where each color channel's bits sit within the
// packed video byte DMA streams to the GPIO port: R/G/B bits packed
// into one byte, with a configurable mapping. Mask is the channel's bit
// width expressed as an all-ones value (e.g. 0x7 for 3 bits), not a
// pre-shifted bitmask.
type PixelFormat struct {
	RPos, GPos, BPos    int
	RMask, GMask, BMask int
}

// DefaultPixelFormat is the wire-level layout: blue in the low bits,
// green in the middle, red in the high bits. Three channels don't
// divide evenly into one byte's two nibbles, so this repo's default
// gives red the narrowest field: 3 bits blue, 3 bits green, 2 bits red.
var DefaultPixelFormat = PixelFormat{
	BPos: 0, BMask: 0x7,
	GPos: 3, GMask: 0x7,
	RPos: 6, RMask: 0x3,
}

// PackPixel assembles one video output byte from independent per-channel
// samples under format. Rasterizer closures call this once per output
// pixel; it performs no I/O and is safe to call from the rasterization
// ISR.
func PackPixel(format PixelFormat, r, g, b uint8) byte {
	return bits.Pack(r, g, b, format.RPos, format.GPos, format.BPos, format.RMask, format.GMask, format.BMask)
}
