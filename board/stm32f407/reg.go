package stm32f407

import (
	"unsafe"

	"github.com/cbiffle/m4vga-go/internal/reg"
)

// offsetPtr returns the address byteOffset bytes past base, within the
// same backing allocation (a real MMIO range on hardware builds). Every
// register block this package exposes
// is word-aligned, so byteOffset is always a multiple of 4.
func offsetPtr(base *uint32, byteOffset uintptr) *uint32 {
	return (*uint32)(unsafe.Add(unsafe.Pointer(base), byteOffset))
}

func regSetN(addr *uint32, pos int, mask int, val uint32) {
	reg.SetN(addr, pos, mask, val)
}

func regWrite(addr *uint32, val uint32) {
	reg.Write(addr, val)
}

func regRead(addr *uint32) uint32 {
	return reg.Read(addr)
}
