package n64core

import "time"

// TicksPerMillisecond is the nominal frequency of the tick counter
// collaborator. Real hardware derives this from the CPU's fixed clock; the
// host-backed implementation below scales time.Since to match so that
// duration-based reasoning in audio.go and video.go (buffer periods, reset
// grace windows) behaves the same on both.
const TicksPerMillisecond = 93750 // matches the target CPU's COP0 Count rate / 1000

// TickSource is a tick counter monotonically increasing at a known
// frequency, plus conversion helpers between ticks and milliseconds.
// Handlers read it to decide how much of the reset grace window remains;
// it is never written to by application code.
type TickSource interface {
	Ticks() uint64
	TicksToMillis(ticks uint64) uint64
	MillisToTicks(ms uint64) uint64
}

// wallClockTicks implements TickSource by deriving a tick count from the
// monotonic wall clock. This stands in for the real target's COP0 Count
// register, which free-runs at a fixed frequency independent of any OS.
type wallClockTicks struct {
	start time.Time
}

// NewWallClockTickSource returns a TickSource appropriate for the simulator
// and for tests that care about real elapsed time.
func NewWallClockTickSource() TickSource {
	return &wallClockTicks{start: time.Now()}
}

func (w *wallClockTicks) Ticks() uint64 {
	return uint64(time.Since(w.start)) * TicksPerMillisecond / uint64(time.Millisecond)
}

func (w *wallClockTicks) TicksToMillis(ticks uint64) uint64 {
	return ticks / TicksPerMillisecond
}

func (w *wallClockTicks) MillisToTicks(ms uint64) uint64 {
	return ms * TicksPerMillisecond
}

// manualTicks is a TickSource a test can advance by hand, standing in for
// the headless/deterministic backend every hardware-driven collaborator
// pairs with for testing.
type manualTicks struct {
	now uint64
}

// NewManualTickSource returns a TickSource with no relation to real time,
// for deterministic tests of reset-grace-window and buffer-period logic.
func NewManualTickSource() *manualTicksHandle {
	return &manualTicksHandle{t: &manualTicks{}}
}

// manualTicksHandle exposes Advance in addition to the TickSource methods.
type manualTicksHandle struct{ t *manualTicks }

func (h *manualTicksHandle) Advance(ticks uint64)        { h.t.now += ticks }
func (h *manualTicksHandle) Ticks() uint64                { return h.t.now }
func (h *manualTicksHandle) TicksToMillis(t uint64) uint64 { return t / TicksPerMillisecond }
func (h *manualTicksHandle) MillisToTicks(ms uint64) uint64 {
	return ms * TicksPerMillisecond
}
