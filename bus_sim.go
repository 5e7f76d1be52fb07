package n64core

import "encoding/binary"

// busSim is a software-only RegisterFile: a fixed-size big-endian byte
// array standing in for one MMIO block. It has no hardware behavior of its
// own — no IRQ generation, no busy-bit timing — it is just storage with the
// same addressing discipline as the real register file. Subsystem code
// (audio.go, video.go, dma.go) layers the actual hardware semantics (queued
// counts, busy bits, scan-out timing) on top by reading and writing through
// this interface exactly as it would against real silicon; tests that need
// to model hardware *behavior* (not just storage) wrap busSim in a
// per-subsystem fake (see *_test.go).
type busSim struct {
	mem []byte
}

// NewSimRegisterFile returns a software RegisterFile of the given byte
// size, used by the simulator and by tests in place of real silicon.
func NewSimRegisterFile(size int) RegisterFile {
	return &busSim{mem: make([]byte, size)}
}

func (b *busSim) Peek32(offset uint32) uint32 {
	barrier()
	v := binary.BigEndian.Uint32(b.mem[offset : offset+4])
	barrier()
	return v
}

func (b *busSim) Poke32(offset uint32, value uint32) {
	barrier()
	binary.BigEndian.PutUint32(b.mem[offset:offset+4], value)
	barrier()
}
