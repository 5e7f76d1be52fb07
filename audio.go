package n64core

import (
	"runtime"
	"sync"
)

// AIStatus bits this core actually inspects. The real register carries more
// (DAC counters, DMA address echoes); only the full/busy bit matters to the
// feeder.
const (
	aiStatusFull = 1 << 0
	aiStatusBusy = 1 << 31
)

// audioBufferEndAlignmentBug is the forbidden end-address alignment that
// triggers the documented hardware carry bug: buffers whose end address (one
// past the last byte) would fall on this alignment are shifted by four
// bytes. 8192-byte alignment, i.e. the low 13 bits all zero.
const audioBufferEndAlignmentBug = 1 << 13

// AudioFillFunc synthesizes num interleaved stereo 16-bit samples into dst
// (len(dst) == 2*num) when the producer has not supplied any. It runs from
// IRQ context.
type AudioFillFunc func(dst []int16)

type fillKind int

const (
	fillNone fillKind = iota
	fillUser
	fillSilencePaused
)

// fillState models the effective callback as a variant over {none,
// user(fn), silence-while-paused(saved=fn)}, replacing an in-place
// callback swap with an explicit state value.
type fillState struct {
	kind fillKind
	fn   AudioFillFunc // active callback (fillUser) or nil (fillNone/fillSilencePaused)
	saved AudioFillFunc // original user callback, restored on unpause
}

func silenceFill(dst []int16) {
	for i := range dst {
		dst[i] = 0
	}
}

// Audio is the process-wide audio playback manager. Exactly one instance
// exists per running application; it owns the N
// uncached ring buffers and is driven entirely by the audio IRQ once
// Init has programmed the AI divisors.
type Audio struct {
	regs  RegisterFile
	irq   *Controller
	alloc Allocator
	ticks TickSource

	mu sync.Mutex

	freq    uint32
	n       int
	bufLen  int // L, stereo sample pairs per buffer
	buffers []UncachedBuffer

	writing int
	playing int
	empty   int
	full    uint32 // bit i set iff buffer i is producer-released, not yet DMA-retired
	queued  int    // 0..2, buffers currently resident in the hardware's 2-deep queue

	fill fillState

	bufferPeriodTicks uint64

	// pushRemaining/pushSlot retain an in-progress ring slot and how much of
	// it is still unwritten across Push calls. Kept as fields on the single
	// process-wide Audio instance rather than a free-standing global, the
	// idiomatic Go equivalent of carrying per-call static state.
	pushRemaining []int16
	pushSlot      int

	initialized bool
	closed      bool
}

// NewAudio constructs an audio manager. regs is the AI register file; the
// manager does not touch hardware until Init is called.
func NewAudio(regs RegisterFile, irq *Controller, alloc Allocator, ticks TickSource) *Audio {
	return &Audio{regs: regs, irq: irq, alloc: alloc, ticks: ticks}
}

// pixelClockForStandard returns the nominal master clock (Hz) the AI
// DAC/bit-rate divisors are derived from, by TV standard.
func pixelClockForStandard(std TVStandard) uint32 {
	switch std {
	case TVStandardPAL:
		return 49_656_530
	case TVStandardMPAL:
		return 48_628_316
	default:
		return 48_681_812
	}
}

// Init sizes the ring and programs the DAC/bit-rate divisors from the TV
// standard's pixel clock. n must be in [1,32]. bufLen is L, the
// per-buffer stereo sample capacity.
func (a *Audio) Init(hw HardwareInfo, freqHz uint32, n int, bufLen int) {
	assertf(!a.initialized, "Audio.Init: already initialized")
	assertf(n >= 1 && n <= 32, "Audio.Init: n_buffers %d out of range [1,32]", n)
	assertf(bufLen > 0, "Audio.Init: buffer_length must be positive")

	clock := pixelClockForStandard(hw.Standard())
	divisor := clock / freqHz
	if divisor == 0 {
		divisor = 1
	}
	a.freq = clock / divisor

	a.n = n
	a.bufLen = bufLen
	a.buffers = make([]UncachedBuffer, n)
	byteLen := bufLen * 4 // stereo, 16-bit samples: 2 channels * 2 bytes
	for i := range a.buffers {
		a.buffers[i] = a.allocAudioBuffer(byteLen)
	}

	a.writing, a.playing, a.empty = 0, -1, 0
	a.full = 0
	a.queued = 0
	a.fill = fillState{kind: fillNone}

	// Convert before dividing so buffers shorter than 1ms keep a non-zero period.
	a.bufferPeriodTicks = a.ticks.MillisToTicks(uint64(bufLen)*1000) / uint64(a.freq)

	a.regs.Poke32(aiDACRATE, divisor-1)
	a.regs.Poke32(aiBITRATE, 15)
	a.regs.Poke32(aiCTRL, 1)

	a.irq.Register(SourceAudio, a.handleIRQ)
	a.irq.SetEnabled(SourceAudio, true)
	a.initialized = true
}

// allocAudioBuffer allocates an 8-byte-aligned buffer of byteLen bytes,
// applying the four-byte shift workaround when the unshifted end address
// would land on the forbidden 8192-byte alignment.
func (a *Audio) allocAudioBuffer(byteLen int) UncachedBuffer {
	raw := a.alloc.AllocUncached(byteLen + 4)
	buf := UncachedBuffer{Bytes: raw.Bytes[:byteLen], backing: raw.backing, physBase: raw.physBase}
	if (buf.physBase+uint32(byteLen))%audioBufferEndAlignmentBug == 0 {
		buf = UncachedBuffer{Bytes: raw.Bytes[4 : 4+byteLen], backing: raw.backing, physBase: raw.physBase + 4}
	}
	return buf
}

// Close tears down the audio manager, freeing all buffers and masking the
// source. Safe to call once; calling again is a no-op, mirroring Video's
// Close semantics.
func (a *Audio) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.initialized {
		return
	}
	a.irq.SetEnabled(SourceAudio, false)
	a.irq.Unregister(SourceAudio, a.handleIRQ)
	for _, b := range a.buffers {
		a.alloc.FreeUncached(UncachedBuffer{Bytes: b.backing, backing: b.backing, physBase: b.physBase})
	}
	a.buffers = nil
	a.closed = true
}

// SetFillCallback installs or clears the pull-style producer. Passing nil
// disables synthesized fill; the feeder will simply fall silent on
// underrun.
func (a *Audio) SetFillCallback(fn AudioFillFunc) {
	a.irq.Disable()
	defer a.irq.Enable()
	if fn == nil {
		a.fill = fillState{kind: fillNone}
		return
	}
	a.fill = fillState{kind: fillUser, fn: fn}
}

// Pause swaps the live fill callback with a silence generator while
// preserving the user's original callback verbatim; unpausing restores it.
// If no callback is installed, Pause has no effect.
func (a *Audio) Pause(pause bool) {
	a.irq.Disable()
	defer a.irq.Enable()

	if pause {
		if a.fill.kind != fillUser {
			return
		}
		a.fill = fillState{kind: fillSilencePaused, saved: a.fill.fn}
		return
	}
	if a.fill.kind != fillSilencePaused {
		return
	}
	a.fill = fillState{kind: fillUser, fn: a.fill.saved}
}

// activeFill returns the callback the feeder should invoke right now, or
// nil if none is installed.
func (a *Audio) activeFill() AudioFillFunc {
	switch a.fill.kind {
	case fillUser:
		return a.fill.fn
	case fillSilencePaused:
		return silenceFill
	default:
		return nil
	}
}

// samplesAsBytes reinterprets an int16 slice as the interleaved-stereo byte
// buffer the AI DMA engine reads. Samples are stored little-endian, the
// format the host audio sink plays; this is not the big-endian target's
// native byte order.
func samplesAsBytes(samples []int16, dst []byte) {
	for i, s := range samples {
		putSampleLE(dst, i, s)
	}
}

func putSampleLE(dst []byte, i int, s int16) {
	dst[2*i] = byte(uint16(s))
	dst[2*i+1] = byte(uint16(s) >> 8)
}

// CanWrite reports whether the producer could acquire the next ring slot
// without blocking.
func (a *Audio) CanWrite() bool {
	a.irq.Disable()
	defer a.irq.Enable()
	return a.full&(1<<uint(a.writing)) == 0
}

// WriteBegin acquires the next ring slot for zero-copy producer writes,
// blocking via a bounded spin that briefly re-enables interrupts until a
// slot is free.
func (a *Audio) WriteBegin() int {
	for {
		a.irq.Disable()
		if a.full&(1<<uint(a.writing)) == 0 {
			slot := a.writing
			a.irq.Enable()
			return slot
		}
		a.irq.Enable()
		runtime.Gosched()
	}
}

// WriteEnd releases the slot WriteBegin returned back to the feeder.
func (a *Audio) WriteEnd() {
	a.irq.Disable()
	defer a.irq.Enable()
	a.full |= 1 << uint(a.writing)
	a.writing = (a.writing + 1) % a.n
}

// Write is the blocking producer copy: it acquires a slot, copies buf (must
// be exactly 2*buffer_length samples), and releases it.
func (a *Audio) Write(buf []int16) {
	assertf(len(buf) == 2*a.bufLen, "Audio.Write: expected %d samples, got %d", 2*a.bufLen, len(buf))
	slot := a.WriteBegin()
	samplesAsBytes(buf, a.buffers[slot].Bytes)
	a.WriteEnd()
}

// WriteSilence is a blocking zero-fill write, used to prime the ring before
// playback starts.
func (a *Audio) WriteSilence() {
	slot := a.WriteBegin()
	for i := range a.buffers[slot].Bytes {
		a.buffers[slot].Bytes[i] = 0
	}
	a.WriteEnd()
}

// Push fragments samples across buffer boundaries, writing as much as it
// can. If blocking, it writes everything and always returns len(samples);
// otherwise it stops at the first full buffer and returns the count
// actually written. Retained state lets a caller stream samples across
// many calls without re-deriving its position in the current partially
// filled buffer.
func (a *Audio) Push(samples []int16, blocking bool) int {
	written := 0
	remaining := samples

	if len(a.pushRemaining) > 0 {
		offset := 2*a.bufLen - len(a.pushRemaining)
		n := len(a.pushRemaining)
		if n > len(remaining) {
			n = len(remaining)
		}
		for i := 0; i < n; i++ {
			putSampleLE(a.buffers[a.pushSlot].Bytes, offset+i, remaining[i])
		}
		a.pushRemaining = a.pushRemaining[n:]
		remaining = remaining[n:]
		written += n
		if len(a.pushRemaining) == 0 {
			a.WriteEnd()
		}
	}

	for len(remaining) > 0 {
		if !blocking && !a.CanWrite() {
			break
		}
		slot := a.WriteBegin()
		n := len(remaining)
		if n > 2*a.bufLen {
			n = 2 * a.bufLen
		}
		for i := 0; i < n; i++ {
			putSampleLE(a.buffers[slot].Bytes, i, remaining[i])
		}
		for i := n; i < 2*a.bufLen; i++ {
			putSampleLE(a.buffers[slot].Bytes, i, 0)
		}
		remaining = remaining[n:]
		written += n
		if n == 2*a.bufLen {
			a.WriteEnd()
		} else {
			// Partial buffer: keep the slot open for the next Push call
			// instead of releasing it now. It is only handed to the
			// feeder once fully populated.
			a.pushRemaining = make([]int16, 2*a.bufLen-n)
			a.pushSlot = slot
			break
		}
	}
	return written
}

// BufferLength returns L, the per-buffer stereo sample capacity.
func (a *Audio) BufferLength() int { return a.bufLen }

// Frequency returns the actual negotiated sample rate.
func (a *Audio) Frequency() uint32 { return a.freq }

// handleIRQ is the audio IRQ feeder. It
// acknowledges the interrupt, retires a finished hardware slot if one is
// observed, and tops the two-deep DMA queue back up from producer-released
// buffers or the fill callback.
func (a *Audio) handleIRQ() {
	status := a.regs.Peek32(aiSTATUS)
	a.regs.Poke32(aiSTATUS, status) // any write acks the AI interrupt; the full bit is read-only to software

	if a.queued == 2 && status&aiStatusFull == 0 {
		a.full &^= 1 << uint(a.empty)
		a.empty = (a.empty + 1) % a.n
		a.queued--
	}

	if a.queued >= 2 {
		return
	}
	if a.irq.ResetGraceRemaining(a.bufferPeriodTicks) < a.bufferPeriodTicks {
		return
	}

	next := (a.playing + 1) % a.n
	if a.full&(1<<uint(next)) == 0 {
		fn := a.activeFill()
		if fn == nil {
			return
		}
		dst := make([]int16, 2*a.bufLen)
		fn(dst)
		samplesAsBytes(dst, a.buffers[next].Bytes)
		a.full |= 1 << uint(next)
	}
	a.enqueue(next)
}

func (a *Audio) enqueue(slot int) {
	a.regs.Poke32(aiDRAM, a.buffers[slot].PhysAddr())
	a.regs.Poke32(aiLEN, uint32(len(a.buffers[slot].Bytes)))
	a.regs.Poke32(aiSTATUS, a.regs.Peek32(aiSTATUS)|aiStatusFull)
	a.playing = slot
	a.queued++
}

// BufferByPhysAddr returns the byte slice backing the ring buffer whose
// PI-bus address is addr, or nil if no buffer has that address. It exists
// for a hardware-sink collaborator (hostsim) that has to turn the raw
// AI_DRAM_ADDR value the feeder just programmed back into real sample
// bytes to play, since this implementation's "DMA engine" is software and
// has no bus of its own to read.
func (a *Audio) BufferByPhysAddr(addr uint32) []byte {
	for i := range a.buffers {
		if a.buffers[i].physBase == addr {
			return a.buffers[i].Bytes
		}
	}
	return nil
}

// AckStatus acknowledges the AI interrupt and reports the hardware status
// word, for a sink that wants to mirror the register-level acknowledgement
// protocol rather than calling handleIRQ's effects directly.
func (a *Audio) AckStatus() uint32 {
	status := a.regs.Peek32(aiSTATUS)
	a.regs.Poke32(aiSTATUS, status) // any write acks the AI interrupt
	return status
}

// CurrentDMA returns the physical address and byte length the feeder most
// recently programmed into AI_DRAM_ADDR/AI_LEN — the buffer a hardware sink
// should currently be draining.
func (a *Audio) CurrentDMA() (addr uint32, length uint32) {
	return a.regs.Peek32(aiDRAM), a.regs.Peek32(aiLEN)
}

// MarkSlotDrained clears the AI_STATUS full bit, the signal the feeder
// looks for on the next dispatch to retire the oldest queued buffer and
// top the hardware queue back up. A hardware sink calls this once it has
// consumed every byte of the buffer at the head of the queue.
func (a *Audio) MarkSlotDrained() {
	a.regs.Poke32(aiSTATUS, a.regs.Peek32(aiSTATUS)&^aiStatusFull)
}
