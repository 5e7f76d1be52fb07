package n64core

import (
	"encoding/binary"
	"testing"
)

// fakeCart is a test RegisterFile standing in for the cartridge domain: a
// flat byte array addressed the same way busSim addresses an MMIO block,
// plus simCartridgeSource so rawDMARead's bulk path has real bytes to
// deliver instead of leaving dst untouched. It also counts bytes delivered
// through each path, so a test can tell a raw-DMA chunk apart from a PIO
// byte peel even though both read identical content from mem.
type fakeCart struct {
	mem []byte

	dmaBytes int // bytes delivered via ReadCartridge (the raw DMA path)
	pioReads int // Peek32 calls (each backs one pioReadByte)
}

func newFakeCart(size int) *fakeCart { return &fakeCart{mem: make([]byte, size)} }

func (f *fakeCart) Peek32(offset uint32) uint32 {
	f.pioReads++
	return binary.BigEndian.Uint32(f.mem[offset : offset+4])
}

func (f *fakeCart) Poke32(offset uint32, v uint32) {
	binary.BigEndian.PutUint32(f.mem[offset:offset+4], v)
}

func (f *fakeCart) ReadCartridge(dst []byte, piAddr uint32) {
	offset := piAddr - cartDomainBase
	copy(dst, f.mem[offset:int(offset)+len(dst)])
	f.dmaBytes += len(dst)
}

func newTestPI(t *testing.T, cartSize int) (*PI, *fakeCart) {
	t.Helper()
	ticks := NewManualTickSource()
	mi := NewSimRegisterFile(0x20)
	ctrl := NewController(mi, NewSimStatusRegister(), ticks)
	ctrl.Init()

	regs := NewSimRegisterFile(0x20)
	cart := newFakeCart(cartSize)
	return NewPI(regs, cart, ctrl), cart
}

func TestPI_IOAccessible(t *testing.T) {
	pi, _ := newTestPI(t, 0x1000)
	cases := []struct {
		addr uint32
		want bool
	}{
		{0x0000_0100, false}, // RDRAM / RCP space
		{0x03FF_FFFF, false}, // just below the RCP ceiling
		{uint32(SIRegBase), false},
		{uint32(SIRegBase) + 0x50, false},
		{uint32(SIRegBase) + 0x100, true}, // just past the excluded SI window
		{CartDomainBase, true},
		{CartDomainBase + 0x10, true},
		{ioAccessibleCeiling, true},
		{ioAccessibleCeiling + 1, false},
	}
	for _, c := range cases {
		if got := pi.IOAccessible(c.addr); got != c.want {
			t.Errorf("IOAccessible(0x%08X) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestPI_CartDomainBaseExported(t *testing.T) {
	if CartDomainBase != 0x1000_0000 {
		t.Fatalf("CartDomainBase = 0x%08X, want 0x10000000", CartDomainBase)
	}
}

func TestPI_IOReadWrite32RoundTrip(t *testing.T) {
	pi, _ := newTestPI(t, 0x1000)
	pi.IOWrite32(CartDomainBase+0x20, 0xCAFEF00D)
	if got := pi.IORead32(CartDomainBase + 0x20); got != 0xCAFEF00D {
		t.Fatalf("IORead32 after IOWrite32 = 0x%08X, want 0xCAFEF00D", got)
	}
}

// TestPI_IOReadNotAccessibleAsserts uses the default panicking assertor: the
// precondition it guards is checked before the address is used to index the
// cart register file, so a RecordingAssertor would let execution continue
// into an out-of-range offset computed from the rejected address.
func TestPI_IOReadNotAccessibleAsserts(t *testing.T) {
	pi, _ := newTestPI(t, 0x1000)
	defer func() {
		if recover() == nil {
			t.Fatal("IORead32 of a non-PIO-accessible address should panic via the default assertor")
		}
	}()
	pi.IORead32(0x0000_0004)
}

func TestPI_AlignmentParityMismatchAsserts(t *testing.T) {
	pi, _ := newTestPI(t, 0x1000)
	defer func() {
		if recover() == nil {
			t.Fatal("ReadAsync with mismatched ram/pi parity should panic via the default assertor")
		}
	}()
	ram := make([]byte, 16)
	pi.ReadAsync(ram, 0, CartDomainBase+1, 8) // ram even, pi odd: parity mismatch
}

func TestPI_RawDMALimitBounds(t *testing.T) {
	if got := rawDMALimit(0); got != 127 {
		t.Fatalf("rawDMALimit(0) = %d, want 127 (row has plenty of room)", got)
	}
	// 10 bytes from the end of a 2048-byte row: the row boundary caps it.
	addr := uint32(rdramRowSize - 10)
	if got := rawDMALimit(addr); got != 10 {
		t.Fatalf("rawDMALimit(%d) = %d, want 10 (capped by row boundary)", addr, got)
	}
}

func TestPI_ReadAsyncAlignedBulkGoesThroughRawEngine(t *testing.T) {
	pi, cart := newTestPI(t, 0x1000)
	for i := range cart.mem {
		cart.mem[i] = byte(i)
	}

	const piOffset = 0x40
	ram := make([]byte, 16)
	pi.ReadAsync(ram, 0, CartDomainBase+piOffset, 16)

	for i, b := range ram {
		if want := cart.mem[piOffset+i]; b != want {
			t.Fatalf("ram[%d] = %d, want %d (cart content at the same pi offset)", i, b, want)
		}
	}
}

func TestPI_ReadAsyncUnalignedHeadPIOPeels(t *testing.T) {
	pi, cart := newTestPI(t, 0x1000)
	for i := range cart.mem {
		cart.mem[i] = byte(0x80 + i)
	}

	// ramAddr=3, piAddr odd too: same parity, but neither aligned, so the
	// whole short transfer is peeled byte-by-byte via PIO.
	const piOffset = 0x13
	ram := make([]byte, 8)
	pi.ReadAsync(ram[:5], 3, CartDomainBase+piOffset, 5)

	for i := 0; i < 5; i++ {
		if want := cart.mem[piOffset+i]; ram[i] != want {
			t.Fatalf("ram[%d] = %d, want %d", i, ram[i], want)
		}
	}
}

// TestPI_WriteAsyncRoundTripsThroughReadAsync uses an unaligned, short
// transfer so the whole thing goes through the PIO byte-peel path on both
// sides: the bulk raw-DMA path has no write-side cartridge drain in the
// simulator (real hardware moves the bytes itself; there is nothing behind
// PI_CART_ADDR here to move them for a write), so only PIO writes are
// observable through cart.mem.
func TestPI_WriteAsyncRoundTripsThroughReadAsync(t *testing.T) {
	pi, cart := newTestPI(t, 0x1000)
	src := []byte{201, 202, 203, 204, 205}

	const piOffset = 0x13
	pi.WriteAsync(src, 3, CartDomainBase+piOffset, len(src))
	for i, b := range src {
		if cart.mem[piOffset+i] != b {
			t.Fatalf("cart.mem[%d] = %d after WriteAsync, want %d", piOffset+i, cart.mem[piOffset+i], b)
		}
	}

	ram := make([]byte, len(src))
	pi.ReadAsync(ram, 3, CartDomainBase+piOffset, len(src))
	for i, b := range ram {
		if b != src[i] {
			t.Fatalf("ram[%d] = %d after round trip, want %d", i, b, src[i])
		}
	}
}

// TestPI_ReadAsyncCrossesRowBoundaryDMABulkNotTruncated mirrors the worked
// example of a transfer that starts near the top of an RDRAM row: len=129
// from an 8-aligned ramAddr must move exactly 128 bytes through the raw DMA
// engine and peel exactly the final byte via PIO, even though rawDMALimit
// bounds any single chunk to 127 bytes. A prior version of ReadAsync treated
// that 127/row bound as a cap on the whole transfer and wrongly routed 9
// trailing bytes through PIO instead of 1.
func TestPI_ReadAsyncCrossesRowBoundaryDMABulkNotTruncated(t *testing.T) {
	pi, cart := newTestPI(t, 4096)
	for i := range cart.mem {
		cart.mem[i] = byte(i)
	}

	const (
		ramAddr  = 0
		piOffset = 0x10
		length   = 129
	)
	ram := make([]byte, length)
	pi.ReadAsync(ram, ramAddr, CartDomainBase+piOffset, length)

	for i, b := range ram {
		if want := cart.mem[piOffset+i]; b != want {
			t.Fatalf("ram[%d] = %d, want %d (cart content at the same pi offset)", i, b, want)
		}
	}

	if cart.dmaBytes != 128 {
		t.Fatalf("bytes delivered via the raw DMA engine = %d, want 128", cart.dmaBytes)
	}
	if cart.pioReads != 1 {
		t.Fatalf("PIO byte reads = %d, want 1 (the trailing byte only)", cart.pioReads)
	}
}

func TestPI_IsBusyAndWait(t *testing.T) {
	pi, _ := newTestPI(t, 0x1000)
	if pi.IsBusy() {
		t.Fatal("freshly constructed PI should not report busy")
	}
	pi.Wait() // must return immediately, not hang
}
