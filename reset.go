package n64core

import "sync"

// maxResetHandlers is the bounded reset-handler array size: at least 4
// slots.
const maxResetHandlers = 4

// ResetController owns the bounded reset-handler array and the one-shot
// pre-NMI latch. Controller holds exactly one instance and calls into it
// from Dispatch; it is split out as its own type, rather than inlined into
// Controller, so each hardware collaborator gets its own dedicated
// reset/lifecycle surface instead of one monolithic reset switch.
type ResetController struct {
	mu    sync.Mutex
	ticks TickSource

	handlers [maxResetHandlers]HandlerFunc
	handlerN int

	fired    bool
	fireTick uint64
}

// NewResetController constructs a reset controller. ticks supplies the
// monotonic clock used to stamp when the pre-NMI edge fired, so audio and
// video can measure their remaining grace window.
func NewResetController(ticks TickSource) *ResetController {
	return &ResetController{ticks: ticks}
}

// Register adds fn to the bounded reset-handler array. Registering a fifth
// handler is a programmer error.
func (r *ResetController) Register(fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	assertf(r.handlerN < len(r.handlers), "too many reset handlers registered (max %d)", len(r.handlers))
	r.handlers[r.handlerN] = fn
	r.handlerN++
}

// Pending reports whether the pre-NMI signal has latched.
func (r *ResetController) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fired
}

// GraceRemaining returns how many ticks remain before the system must
// yield to reset, out of a graceTicks-long window, or the maximum uint64
// if no reset is pending.
func (r *ResetController) GraceRemaining(graceTicks uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.fired {
		return ^uint64(0)
	}
	elapsed := r.ticks.Ticks() - r.fireTick
	if elapsed >= graceTicks {
		return 0
	}
	return graceTicks - elapsed
}

// Signal latches the pre-NMI edge and fires every registered handler,
// exactly once per reset: the hardware holds the line high continuously
// until the actual NMI, so software must suppress re-entry itself via the
// stamp. A second Signal call before ClearLatch is a no-op.
func (r *ResetController) Signal() {
	r.mu.Lock()
	if r.fired {
		r.mu.Unlock()
		return
	}
	r.fired = true
	r.fireTick = r.ticks.Ticks()
	handlers := r.handlers
	n := r.handlerN
	r.mu.Unlock()

	for i := 0; i < n; i++ {
		handlers[i]()
	}
}

// ClearLatch is called once the system has actually restarted (or, in the
// simulator, once a test scenario wants to model a fresh boot) so a
// subsequent pre-NMI edge can fire the handlers again.
func (r *ResetController) ClearLatch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = false
}

// Reset restores the controller to its just-constructed state: no
// handlers, latch cleared.
func (r *ResetController) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = [maxResetHandlers]HandlerFunc{}
	r.handlerN = 0
	r.fired = false
	r.fireTick = 0
}
