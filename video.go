package n64core

import "sync"

// BitDepth is the framebuffer pixel format: 16 or 32 bits per pixel.
type BitDepth int

const (
	BitDepth16 BitDepth = 16
	BitDepth32 BitDepth = 32
)

// bytesPerPixel returns the storage width of one pixel at this depth.
func (b BitDepth) bytesPerPixel() int {
	if b == BitDepth32 {
		return 4
	}
	return 2
}

// Interlace is the scan-out field mode: off, half-height, or full-frame.
type Interlace int

const (
	InterlaceOff Interlace = iota
	InterlaceHalf
	InterlaceFull
)

// Filters bundles the optional post-processing stages the VI mode register
// controls. Resample off at narrow 16bpp widths is a documented hardware
// bug.
type Filters struct {
	AntiAlias bool
	Resample  bool
	Dither    bool
}

// VideoConfig is the argument to Video.Init: resolution plus the mode
// choices merged against the per-standard register preset table.
type VideoConfig struct {
	Width, Height int
	BitDepth      BitDepth
	Interlace     Interlace
	Gamma         bool
	Filters       Filters
	NumBuffers    int // M, 1..32
}

const fpsRingSize = 32

// Video is the process-wide multi-buffered frame presentation manager.
// Exactly one instance exists per running application, driven entirely by
// the vertical-blank IRQ once Init has programmed the VI mode registers.
type Video struct {
	regs  RegisterFile
	irq   *Controller
	alloc Allocator
	ticks TickSource
	hw    HardwareInfo

	mu sync.Mutex

	cfg        VideoConfig
	stride     int // bytes per scanline
	surfaceLen int // bytes per framebuffer, including the 2-row over-read slack

	buffers []UncachedBuffer

	drawing    uint32
	ready      uint32
	nowShowing int

	fpsRing     [fpsRingSize]uint64
	fpsRingHead int
	fpsRingLen  int

	lastPresentTick uint64
	havePresented   bool
	kalmanDelta     *kalman1D
	kalmanFPS       *kalman1D

	refreshHz    float64
	targetFPS    float64 // 0 disables virtual refresh
	skipAccum    float64

	haltedForReset bool
	initialized    bool
	closed         bool
}

// NewVideo constructs a video manager. regs is the VI register file; the
// manager does not touch hardware until Init is called.
func NewVideo(regs RegisterFile, irq *Controller, alloc Allocator, ticks TickSource, hw HardwareInfo) *Video {
	return &Video{regs: regs, irq: irq, alloc: alloc, ticks: ticks, hw: hw}
}

// refreshHzForStandard returns the nominal field/frame rate the hardware
// scans out at, by TV standard (progressive rate; interlace halves the
// rate at which a given field repeats but not the VI IRQ rate itself).
func refreshHzForStandard(std TVStandard) float64 {
	switch std {
	case TVStandardPAL:
		return 50.0
	default:
		return 59.94
	}
}

// Init sizes the framebuffer ring, validates the requested mode against the
// known hardware-buggy combinations, and programs the VI control registers.
func (v *Video) Init(cfg VideoConfig) {
	assertf(!v.initialized, "Video.Init: already initialized")
	assertf(cfg.NumBuffers >= 1 && cfg.NumBuffers <= 32, "Video.Init: n_buffers %d out of range [1,32]", cfg.NumBuffers)
	assertf(cfg.Width > 0 && cfg.Height > 0, "Video.Init: resolution must be positive")
	assertf(!(cfg.BitDepth == BitDepth16 && cfg.Width <= 320 && !cfg.Filters.Resample),
		"Video.Init: 16bpp at width %d requires the resample filter (known hardware bug); enable Filters.Resample or choose a wider mode", cfg.Width)

	v.cfg = cfg
	v.stride = cfg.Width * cfg.BitDepth.bytesPerPixel()
	v.surfaceLen = v.stride * (cfg.Height + 2)

	v.buffers = make([]UncachedBuffer, cfg.NumBuffers)
	for i := range v.buffers {
		v.buffers[i] = v.alloc.AllocUncached(v.surfaceLen)
	}

	v.drawing = 0
	v.ready = 0
	v.nowShowing = -1
	v.fpsRingHead = 0
	v.fpsRingLen = 0
	v.havePresented = false
	v.kalmanDelta = newKalman1D(1e-3, 1e-1)
	v.kalmanFPS = newKalman1D(1e-4, 5e-1)

	v.refreshHz = refreshHzForStandard(v.hw.Standard())
	v.targetFPS = 0
	v.skipAccum = 0
	v.haltedForReset = false

	v.programModeRegisters()

	v.irq.Register(SourceVideo, v.handleIRQ)
	v.irq.SetEnabled(SourceVideo, true)
	v.initialized = true
}

// programModeRegisters writes the VI control/timing registers for the
// current configuration, merging the per-standard preset with the user's
// bit-depth, gamma, filter and scale choices.
func (v *Video) programModeRegisters() {
	ctrl := uint32(0)
	switch v.cfg.BitDepth {
	case BitDepth16:
		ctrl |= 2
	case BitDepth32:
		ctrl |= 3
	}
	if v.cfg.Gamma {
		ctrl |= 1 << 3
	}
	if v.cfg.Filters.AntiAlias {
		ctrl |= 1 << 4
	}
	if v.cfg.Filters.Resample {
		ctrl |= 1 << 5
	}
	if v.cfg.Filters.Dither {
		ctrl |= 1 << 6
	}
	if v.cfg.Interlace != InterlaceOff {
		ctrl |= 1 << 7
	}

	v.irq.Disable()
	defer v.irq.Enable()
	v.regs.Poke32(viCTRL, ctrl)
	v.regs.Poke32(viWIDTH, uint32(v.cfg.Width))
	v.regs.Poke32(viXSCALE, uint32(v.cfg.Width))
	v.regs.Poke32(viYSCALE, uint32(v.cfg.Height))
}

// Close tears down the video manager, freeing all framebuffers and masking
// the source. Calling it more than once is a no-op.
func (v *Video) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || !v.initialized {
		return
	}
	v.irq.SetEnabled(SourceVideo, false)
	v.irq.Unregister(SourceVideo, v.handleIRQ)
	for _, b := range v.buffers {
		v.alloc.FreeUncached(UncachedBuffer{Bytes: b.backing, backing: b.backing, physBase: b.physBase})
	}
	v.buffers = nil
	v.nowShowing = -1
	v.closed = true
}

// eligibleLocked reports whether slot is currently acquirable: in neither
// drawing nor ready.
func (v *Video) eligibleLocked(slot int) bool {
	bit := uint32(1) << uint(slot)
	return v.drawing&bit == 0 && v.ready&bit == 0
}

// TryGet performs a non-blocking acquire, scanning slot indices starting
// one past now_showing and wrapping, returning the first eligible slot.
func (v *Video) TryGet() (int, bool) {
	v.irq.Disable()
	defer v.irq.Enable()

	m := len(v.buffers)
	if m == 0 {
		return 0, false
	}
	start := v.nowShowing + 1
	for i := 0; i < m; i++ {
		slot := (start + i) % m
		if v.eligibleLocked(slot) {
			v.drawing |= 1 << uint(slot)
			return slot, true
		}
	}
	return 0, false
}

// getSpinIterations bounds Get's retry loop, long enough to cooperate with
// an external queued rasterizer completing asynchronously.
const getSpinIterations = 200

// Get is TryGet in a bounded spin, returning ok=false if Video was never
// initialized or no slot became available within the spin window.
func (v *Video) Get() (int, bool) {
	for i := 0; i < getSpinIterations; i++ {
		if slot, ok := v.TryGet(); ok {
			return slot, true
		}
	}
	return 0, false
}

// Show releases slot from drawing to ready and records the release
// timestamp in the FPS ring. Releasing a slot not currently owned by the
// caller is a fatal assertion.
func (v *Video) Show(slot int) {
	v.irq.Disable()
	defer v.irq.Enable()

	bit := uint32(1) << uint(slot)
	assertf(v.drawing&bit != 0 && v.ready&bit == 0,
		"Video.Show: slot %d is not owned by the caller (drawing=%#x ready=%#x)", slot, v.drawing, v.ready)

	v.drawing &^= bit
	v.ready |= bit
	v.pushFPSRing(v.ticks.Ticks())
}

func (v *Video) pushFPSRing(tick uint64) {
	v.fpsRing[v.fpsRingHead] = tick
	v.fpsRingHead = (v.fpsRingHead + 1) % fpsRingSize
	if v.fpsRingLen < fpsRingSize {
		v.fpsRingLen++
	}
}

// ringDurationSeconds returns the span between the oldest and newest FPS
// ring entries, or 0 if fewer than two samples are recorded.
func (v *Video) ringDurationSeconds() (float64, int) {
	if v.fpsRingLen < 2 {
		return 0, v.fpsRingLen
	}
	oldestIdx := (v.fpsRingHead - v.fpsRingLen + fpsRingSize) % fpsRingSize
	newestIdx := (v.fpsRingHead - 1 + fpsRingSize) % fpsRingSize
	oldest := v.fpsRing[oldestIdx]
	newest := v.fpsRing[newestIdx]
	millis := v.ticks.TicksToMillis(newest - oldest)
	return float64(millis) / 1000.0, v.fpsRingLen
}

// videoFramePeriodTicks is the grace-window yardstick the reset cooperation
// check compares against: the ticks one more scan-out cycle would consume
// at the nominal refresh rate.
func (v *Video) videoFramePeriodTicks() uint64 {
	millis := uint64(1000.0 / v.refreshHz)
	return v.ticks.MillisToTicks(millis)
}

// SetFPSLimit configures virtual refresh: pretending the hardware runs at
// target Hz instead of its native rate by skipping presentation on a
// fractional accumulator. Passing 0 disables virtual refresh.
func (v *Video) SetFPSLimit(target float64) {
	v.irq.Disable()
	defer v.irq.Enable()
	v.targetFPS = target
	v.skipAccum = 0
}

// handleIRQ is the vertical-blank presentation handler.
func (v *Video) handleIRQ() {
	current := v.regs.Peek32(viCURRENT)
	v.regs.Poke32(viCURRENT, current) // ack: write the current-line register back to itself

	if v.irq.ResetPending() && v.irq.ResetGraceRemaining(v.videoFramePeriodTicks()) <= v.videoFramePeriodTicks() {
		v.haltedForReset = true
		return
	}
	if v.haltedForReset {
		return
	}

	fieldOdd := current&1 != 0

	if v.cfg.Interlace == InterlaceFull && fieldOdd {
		return
	}
	if v.targetFPS > 0 {
		v.skipAccum += v.refreshHz / v.targetFPS
		if v.skipAccum < 1.0 {
			return
		}
		v.skipAccum -= 1.0
	}

	presented := false
	if m := len(v.buffers); m > 0 {
		next := (v.nowShowing + 1) % m
		bit := uint32(1) << uint(next)
		if v.ready&bit != 0 {
			v.ready &^= bit
			v.nowShowing = next
			presented = true
		}
	}

	if v.nowShowing >= 0 {
		origin := v.buffers[v.nowShowing].PhysAddr()
		if v.cfg.Interlace != InterlaceOff && !fieldOdd {
			origin += uint32(v.stride / 2)
		}
		v.regs.Poke32(viORIGIN, origin)
	}

	now := v.ticks.Ticks()
	if presented {
		if v.havePresented {
			deltaMillis := v.ticks.TicksToMillis(now - v.lastPresentTick)
			v.kalmanDelta.Update(float64(deltaMillis) / 1000.0)

			if secs, n := v.ringDurationSeconds(); n >= 2 && secs > 0 {
				instantaneous := float64(n-1) / secs
				v.kalmanFPS.Update(instantaneous)
			}
		}
		v.lastPresentTick = now
		v.havePresented = true
	}
}

// Width returns the configured framebuffer width in pixels.
func (v *Video) Width() int { return v.cfg.Width }

// Height returns the configured framebuffer height in pixels.
func (v *Video) Height() int { return v.cfg.Height }

// BitDepthOf returns the configured pixel depth.
func (v *Video) BitDepthOf() BitDepth { return v.cfg.BitDepth }

// BufferCount returns M, the number of framebuffers.
func (v *Video) BufferCount() int { return len(v.buffers) }

// FPS returns the Kalman-smoothed displayed frame rate.
func (v *Video) FPS() float64 {
	v.irq.Disable()
	defer v.irq.Enable()
	return v.kalmanFPS.Value()
}

// RefreshRate returns the nominal hardware scan-out rate in Hz.
func (v *Video) RefreshRate() float64 { return v.refreshHz }

// DeltaTime returns the Kalman-smoothed inter-present interval in seconds.
func (v *Video) DeltaTime() float64 {
	v.irq.Disable()
	defer v.irq.Enable()
	return v.kalmanDelta.Value()
}

// FramebufferAddr returns the PI-bus address of slot's backing surface, for
// the rasterizer collaborator to use as its color image target.
func (v *Video) FramebufferAddr(slot int) uint32 {
	return v.buffers[slot].PhysAddr()
}

// FramebufferBytes returns the raw pixel bytes backing slot, stride bytes per
// scanline, for a host sink that has no bus of its own to read the surface
// the rasterizer collaborator just wrote (mirrors Audio.BufferByPhysAddr's
// reasoning).
func (v *Video) FramebufferBytes(slot int) ([]byte, int) {
	return v.buffers[slot].Bytes, v.stride
}

// NowShowing returns the slot currently scanned out, or -1 if none has
// presented yet or the manager is closed.
func (v *Video) NowShowing() int {
	v.irq.Disable()
	defer v.irq.Enable()
	return v.nowShowing
}
