package n64core

// Allocator is the memory-allocation collaborator the core asks for buffers
// that must be visible to a DMA engine with no cache maintenance. Real
// hardware targets back AllocUncached with a mapping into the uncached
// segment of the CPU address space; Free/FreeUncached release the same
// block. No chip module does ad hoc uncached pointer arithmetic directly;
// uncached buffers are a distinct owning type instead.
type Allocator interface {
	Malloc(size int) []byte
	Free(buf []byte)

	// AllocUncached returns a buffer of the requested size, plus its
	// original (unshifted) backing slice for later Free. Callers that need
	// an address-alignment workaround allocate extra padding and slice the
	// result themselves; AllocUncached never rounds size up on their
	// behalf.
	AllocUncached(size int) UncachedBuffer
	FreeUncached(buf UncachedBuffer)
}

// UncachedBuffer is a distinct owning type for memory reachable from DMA
// without cache write-back. It carries both the usable view (which may be
// shifted from the start of the backing allocation to route around a
// hardware alignment bug) and the original backing slice needed to free the
// allocation.
type UncachedBuffer struct {
	Bytes    []byte // usable region, producer writes land here
	backing  []byte // original allocation, used only by FreeUncached
	physBase uint32 // PI-bus-visible base address of Bytes, 0 if unknown
}

// PhysAddr returns the PI bus address of the buffer's first byte. Video and
// audio use this to program DMA source/destination registers.
func (b UncachedBuffer) PhysAddr() uint32 { return b.physBase }

// Len reports the usable length of the buffer.
func (b UncachedBuffer) Len() int { return len(b.Bytes) }

// hostAllocator is a plain-heap Allocator used by tests, the simulator, and
// any host-side development build. It has no real uncached segment to hand
// out, so it fabricates addresses by incrementing a counter — good enough
// for the alignment-workaround logic in audio.go and video.go to exercise,
// but never used on the real target.
type hostAllocator struct {
	nextAddr uint32
}

// NewHostAllocator returns an Allocator suitable for tests and the
// simulator: ordinary Go heap memory tagged with synthetic, monotonically
// increasing PI addresses so alignment-sensitive code paths still have
// something real to check.
func NewHostAllocator() Allocator {
	return &hostAllocator{nextAddr: 0x10000000}
}

func (a *hostAllocator) Malloc(size int) []byte { return make([]byte, size) }

func (a *hostAllocator) Free(buf []byte) {}

func (a *hostAllocator) AllocUncached(size int) UncachedBuffer {
	backing := make([]byte, size)
	addr := a.nextAddr
	// Keep every allocation 8-aligned, as the real uncached segment does.
	a.nextAddr = (a.nextAddr + uint32(size) + 7) &^ 7
	return UncachedBuffer{Bytes: backing, backing: backing, physBase: addr}
}

func (a *hostAllocator) FreeUncached(buf UncachedBuffer) {}
