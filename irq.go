package n64core

import (
	"reflect"
	"sync"
)

// State is the lifecycle of the interrupt controller.
type State int

const (
	StateUninitialized State = iota
	StateEnabled
	StateDisabled
)

// HandlerFunc is a registered IRQ callback. It is trusted not to panic or
// otherwise escape; a handler that needs to signal a fatal condition should
// call the package assertion facility itself.
type HandlerFunc func()

// StatusRegister models the CPU status word the nesting counter snapshots
// and restores. On the real target this is COP0 Status; the sim backend
// (NewSimStatusRegister) is a plain in-memory word.
type StatusRegister interface {
	Read() uint32
	Write(uint32)
}

const statusIE uint32 = 1 // global interrupt-enable bit

type simStatusRegister struct{ word uint32 }

func (s *simStatusRegister) Read() uint32   { return s.word }
func (s *simStatusRegister) Write(v uint32) { s.word = v }

// NewSimStatusRegister returns a StatusRegister for the simulator and
// tests, initialized with interrupts enabled, matching the state the real
// CPU is left in by boot ROM before application code runs.
func NewSimStatusRegister() StatusRegister {
	return &simStatusRegister{word: statusIE}
}

type handlerEntry struct {
	fn  HandlerFunc
	key uintptr // identity is the function pointer itself
}

func handlerKey(fn HandlerFunc) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// Controller is the process-wide interrupt dispatcher. There is
// exactly one per running application, exposed as a *Controller value the
// application constructs once at startup and shares with Video, Audio and
// DMA.
//
// The nesting counter and handler lists are guarded by an internal mutex.
// On real hardware the single CPU core and the masking discipline make this
// unnecessary; in this Go implementation, handlers can run on a goroutine
// distinct from the application goroutine (the simulator pumps IRQs on
// their own goroutine, see cmd/simulator), so the mutex is what actually gives
// the disable/enable critical sections the atomicity hardware gets for
// free.
type Controller struct {
	mu     sync.Mutex
	state  State
	depth  int // -1 uninitialized, 0 enabled, >=1 nesting disabled
	saved  uint32
	status StatusRegister
	mi     RegisterFile

	handlers [sourceCount][]handlerEntry

	reset            *ResetController
	reentrancyGuard  int
	reentrancyTripAt int
	ticks            TickSource
}

// NewController constructs an interrupt controller in the uninitialized
// state. mi is the RegisterFile for the MIPS Interface block (MI_INTR /
// MI_INTR_MASK); status is the CPU status word collaborator. Pass
// NewSimStatusRegister() and a busSim-backed MI register file for tests and
// the simulator.
func NewController(mi RegisterFile, status StatusRegister, ticks TickSource) *Controller {
	return &Controller{
		state:            StateUninitialized,
		depth:            -1,
		status:           status,
		mi:               mi,
		ticks:            ticks,
		reset:            NewResetController(ticks),
		reentrancyTripAt: 128,
	}
}

// Init brings the controller from uninitialized to enabled. Safe to call
// more than once: the first call wins, later calls are no-ops.
func (c *Controller) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateUninitialized {
		return
	}
	c.depth = 0
	c.state = StateEnabled
	w := c.status.Read()
	c.status.Write(w | statusIE)
}

// State reports the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Disable masks the global interrupt-enable bit on the 0->1 nesting
// transition, snapshotting the status word first; nested calls just
// increment the counter.
func (c *Controller) Disable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disableLocked()
}

func (c *Controller) disableLocked() {
	if c.depth == 0 {
		c.saved = c.status.Read()
		c.status.Write(c.saved &^ statusIE)
	}
	c.depth++
	c.state = StateDisabled
}

// Enable decrements the nesting counter, restoring the saved status word
// from the snapshot on the 1->0 transition. Calling Enable more times than
// Disable is a programmer error and asserts.
func (c *Controller) Enable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enableLocked()
}

func (c *Controller) enableLocked() {
	assertf(c.depth > 0, "interrupt enable without matching disable (depth=%d)", c.depth)
	c.depth--
	if c.depth == 0 {
		c.status.Write(c.saved)
		c.state = StateEnabled
	}
}

// Depth returns the current nesting depth, exposed for tests verifying
// the disable/enable balance directly rather than through State().
func (c *Controller) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}

// Register adds fn to the handler list for source, at the head, so it is
// invoked before previously-registered handlers on the next dispatch: most
// recently registered first, since the list is singly linked with
// push-at-head. Mutation happens under Disable/Enable, so handler list
// mutations occur only while interrupts are disabled even when Register
// itself is called with interrupts enabled.
func (c *Controller) Register(source Source, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disableLocked()
	defer c.enableLocked()

	entry := handlerEntry{fn: fn, key: handlerKey(fn)}
	c.handlers[source] = append([]handlerEntry{entry}, c.handlers[source]...)
}

// Unregister removes the first list entry whose function identity matches
// fn. O(n). If fn was registered twice, one Unregister call leaves exactly
// one occurrence.
func (c *Controller) Unregister(source Source, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disableLocked()
	defer c.enableLocked()

	key := handlerKey(fn)
	list := c.handlers[source]
	for i, e := range list {
		if e.key == key {
			c.handlers[source] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// SetEnabled toggles the hardware mask bit for source in MI_INTR_MASK.
func (c *Controller) SetEnabled(source Source, on bool) {
	bit := miIntrBit(source)
	if bit == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// MI_INTR_MASK is a write-1-to-set / write-1-to-clear-in-upper-half
	// register on this SoC family; the low word sets, a shifted write
	// clears. Modeled here as a plain read-modify-write since the
	// RegisterFile abstraction already serializes access.
	mask := c.mi.Peek32(miMASK)
	if on {
		mask |= bit
	} else {
		mask &^= bit
	}
	c.mi.Poke32(miMASK, mask)
}

// Raise sets source's pending bit in MI_INTR, as the hardware block owning
// that source would on its own triggering condition (vblank, AI buffer
// drained, and so on). A host-side pump drives this in the simulator, in
// place of the real block's own edge.
func (c *Controller) Raise(source Source) {
	bit := miIntrBit(source)
	if bit == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mi.Poke32(miINTR, c.mi.Peek32(miINTR)|bit)
}

// Acknowledge clears source's pending bit in MI_INTR. Dispatch's ack map is
// the usual place to call this: the device-specific register write that
// acks a source's own status (AI_STATUS, VI_CURRENT) also deasserts that
// block's line into MI on real hardware, which this stands in for since the
// simulator keeps MI_INTR and each block's status register as separate
// storage.
func (c *Controller) Acknowledge(source Source) {
	bit := miIntrBit(source)
	if bit == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mi.Poke32(miINTR, c.mi.Peek32(miINTR)&^bit)
}

// RegisterReset adds a reset (pre-NMI) handler to the bounded 4-slot array.
// Registering a fifth handler is a programmer error.
func (c *Controller) RegisterReset(fn HandlerFunc) {
	c.reset.Register(fn)
}

// ResetPending reports whether the pre-NMI signal has latched. Audio and
// video IRQ paths consult this (via ResetGraceRemaining) to wind down
// cleanly before the actual NMI.
func (c *Controller) ResetPending() bool {
	return c.reset.Pending()
}

// ResetGraceRemaining returns how many ticks remain before the system must
// yield to reset, or a very large value if no reset is pending. graceTicks
// is the total grace window length in ticks.
func (c *Controller) ResetGraceRemaining(graceTicks uint64) uint64 {
	return c.reset.GraceRemaining(graceTicks)
}

// ClearResetLatch is called once the system has actually restarted (or, in
// the simulator, once a test scenario wants to model a fresh boot) so a
// subsequent pre-NMI edge can fire the handlers again.
func (c *Controller) ClearResetLatch() {
	c.reset.ClearLatch()
}

// Dispatch is the top-level handler: it reads the masked interrupt status
// from MI_INTR, and for each pending source in SourceDispatchOrder performs
// the source's acknowledgement, then walks its handler list head-first.
// ack supplies the source-specific acknowledgement write; callers
// (Video, Audio, DMA wiring) pass closures
// that touch their own register file, since Controller itself owns none of
// the device register blocks beyond MI.
//
// pendingReset, if true, signals that the hardware's pre-NMI line is
// currently asserted; Dispatch handles it before anything else so a reset
// edge always takes priority over ordinary device IRQs in the same
// dispatch pass.
//
// pendingTimer, if true, signals that the CP0 timer interrupt (cause bit,
// not an MI_INTR bit) is asserted; SourceTimer's handler list is walked
// directly here rather than through the MI_INTR scan below, since the
// timer line never reaches the MIPS Interface.
func (c *Controller) Dispatch(pendingReset, pendingTimer bool, ack map[Source]func()) {
	if pendingReset {
		c.reset.Signal()
	}

	if pendingTimer {
		c.mu.Lock()
		handlers := append([]handlerEntry(nil), c.handlers[SourceTimer]...)
		c.mu.Unlock()
		for _, h := range handlers {
			h.fn()
		}
	}

	c.mu.Lock()
	status := c.mi.Peek32(miINTR)
	mask := c.mi.Peek32(miMASK)
	pending := status & mask

	for _, src := range SourceDispatchOrder {
		if src == SourceReset {
			continue
		}
		bit := miIntrBit(src)
		if bit == 0 || pending&bit == 0 {
			continue
		}
		handlers := append([]handlerEntry(nil), c.handlers[src]...)
		c.mu.Unlock()
		if fn, ok := ack[src]; ok && fn != nil {
			fn()
		}
		for _, h := range handlers {
			h.fn()
		}
		c.mu.Lock()

		if src == SourceCartridge {
			c.reentrancyGuard++
			assertf(c.reentrancyGuard < c.reentrancyTripAt,
				"cartridge IRQ handler failed to acknowledge a level-triggered source after %d re-entries", c.reentrancyGuard)
		} else {
			c.reentrancyGuard = 0
		}
	}
	c.mu.Unlock()
}
