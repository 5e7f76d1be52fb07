package n64core

// Fixed physical base addresses for the SoC's register files, accessed
// through the uncached segment of the CPU's address space. These are the
// only addresses the core hard-codes; everything else is offsets within one
// of these blocks. Real hardware fixes these; the simulator's RegisterFile
// implementation (bus_sim.go) uses the same offsets against a plain byte
// array, so register-layout bugs show up the same way in both.
const (
	AIRegBase = 0x0450_0000 // Audio Interface
	VIRegBase = 0x0440_0000 // Video Interface
	PIRegBase = 0x0460_0000 // Peripheral Interface
	SIRegBase = 0x0480_0000 // Serial Interface
	SPRegBase = 0x0404_0000 // Signal Processor
	MIRegBase = 0x0430_0000 // MIPS Interface (interrupt aggregator)
	DPRegBase = 0x0410_0000 // Display Processor / rasterizer (external collaborator)
)

// Byte offsets within the Audio Interface block actually touched by this
// core. AI_LEN doubles as the busy/full indicator: writing it starts a
// transfer, and AI_STATUS bit 0 reports whether the two-deep hardware queue
// still has room.
const (
	aiDRAM   = 0x00 // AI_DRAM_ADDR: source address for the next DMA
	aiLEN    = 0x04 // AI_LEN: transfer length in bytes, write starts DMA
	aiCTRL   = 0x08 // AI_CONTROL: DMA enable
	aiSTATUS = 0x0C // AI_STATUS: bit0 full, bit31 busy; any write acks IRQ
	aiDACRATE = 0x10 // AI_DACRATE: clock divisor
	aiBITRATE = 0x14 // AI_BITRATE: bit-clock divisor
)

// Byte offsets within the Video Interface block.
const (
	viCTRL     = 0x00 // VI_CONTROL: bit depth, gamma, AA/filter mode
	viORIGIN   = 0x04 // VI_ORIGIN: scan-out framebuffer address
	viWIDTH    = 0x08 // VI_WIDTH: pixels per scanline
	viINTR     = 0x0C // VI_V_INTR: scanline at which vblank fires
	viCURRENT  = 0x10 // VI_CURRENT: current scanline, bit0 is field parity
	viBURST    = 0x14
	viVSYNC    = 0x18
	viHSYNC    = 0x1C
	viLEAP     = 0x20
	viHSTART   = 0x24
	viVSTART   = 0x28
	viVBURST   = 0x2C
	viXSCALE   = 0x30
	viYSCALE   = 0x34
)

// Byte offsets within the Peripheral Interface block.
const (
	piDRAM    = 0x00 // PI_DRAM_ADDR
	piCART    = 0x04 // PI_CART_ADDR
	piRDLEN   = 0x08 // PI_RD_LEN: starts a cart->RAM transfer
	piWRLEN   = 0x0C // PI_WR_LEN: starts a RAM->cart transfer
	piSTATUS  = 0x10 // PI_STATUS: bit0 busy, bit3 IO busy
)

// Byte offsets within the MIPS Interface (interrupt aggregator) block.
const (
	miMODE    = 0x00
	miVERSION = 0x04
	miINTR    = 0x08 // MI_INTR: pending device bits, read-only
	miMASK    = 0x0C // MI_INTR_MASK: per-device enable, write with set/clear bit pairs
)

// RegisterFile is a thin typed abstraction in place of volatile MMIO
// through cast pointers: it forces big-endian 32-bit access and brackets
// every access with a barrier so the compiler cannot reorder one register
// touch past another. Every concrete register block (AI, VI, PI, SI, SP,
// MI) is accessed only through this interface from irq.go, dma.go, audio.go
// and video.go — none of them does pointer arithmetic directly.
type RegisterFile interface {
	Peek32(offset uint32) uint32
	Poke32(offset uint32, value uint32)
}

// barrier is the memory-barrier hook wrapped around every PIO access: emits
// a memory barrier, performs the volatile load/store, and emits a memory
// barrier after. On the real target this compiles to a SYNC instruction;
// here it is a compiler-ordering fence only, which is all a
// single-threaded cooperative-with-interrupts model needs once the IRQ
// dispatcher itself runs with interrupts masked.
//
//go:noinline
func barrier() {}
