//go:build n64hw

package n64core

import "unsafe"

// hardwareRegisterFile implements RegisterFile by addressing the uncached
// segment of the CPU's address space directly. There is no OS and no MMU
// remapping on the real target, so a fixed physical base plus offset is a
// valid, stable address for the lifetime of the process — the same
// assumption bare-metal Go runtimes for other SoCs make (see e.g.
// tamago-style reg.Read/reg.Write helpers). This file only builds under
// the n64hw tag; every other build (tests, the simulator, and plain
// `go vet`/`go build` on a workstation) uses busSim in bus_sim.go instead.
type hardwareRegisterFile struct {
	base uintptr
}

// NewHardwareRegisterFile returns a RegisterFile addressing the fixed
// physical base given (one of the *RegBase constants in registers.go).
func NewHardwareRegisterFile(base uint32) RegisterFile {
	return hardwareRegisterFile{base: uintptr(base)}
}

func (h hardwareRegisterFile) Peek32(offset uint32) uint32 {
	barrier()
	v := *(*uint32)(unsafe.Pointer(h.base + uintptr(offset)))
	barrier()
	return v
}

func (h hardwareRegisterFile) Poke32(offset uint32, value uint32) {
	barrier()
	*(*uint32)(unsafe.Pointer(h.base + uintptr(offset))) = value
	barrier()
}
