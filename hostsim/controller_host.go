package hostsim

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	n64core "github.com/coldboot-systems/n64core"
)

// Joypad button bits, matching the real N64 controller's data-byte layout
// closely enough for a keyboard-driven demo: A/B/Start, the four C-buttons,
// the D-pad, and the two shoulder triggers packed into one 32-bit word.
const (
	ButtonA uint32 = 1 << iota
	ButtonB
	ButtonZ
	ButtonStart
	ButtonDUp
	ButtonDDown
	ButtonDLeft
	ButtonDRight
	ButtonL
	ButtonR
	ButtonCUp
	ButtonCDown
	ButtonCLeft
	ButtonCRight
)

// joypadShadowAddr is the PI-bus address ControllerHost pokes the current
// button word into. It lives in the cartridge domain's direct-view window,
// standing in for the PIF-RAM command/response buffer a real SI transfer
// would target; SI's own protocol is out of scope here, so the DMA
// engine's ordinary cart IO path carries it instead.
const joypadShadowAddr = n64core.CartDomainBase

// keyBindings maps a host keystroke to a button bit. Raw stdin gives
// presses, not a held/released signal, so each press toggles its button:
// the first press sets the bit and the next press of the same key clears
// it.
var keyBindings = map[byte]uint32{
	'z': ButtonA,
	'x': ButtonB,
	'c': ButtonZ,
	'\r': ButtonStart,
	'\n': ButtonStart,
	'w': ButtonDUp,
	's': ButtonDDown,
	'a': ButtonDLeft,
	'd': ButtonDRight,
	'q': ButtonL,
	'e': ButtonR,
	'i': ButtonCUp,
	'k': ButtonCDown,
	'j': ButtonCLeft,
	'l': ButtonCRight,
}

// ControllerHost reads raw stdin and turns keystrokes into simulated PI/SI
// controller-bus pokes, feeding the DMA engine's IOWrite32 path exactly as
// the application would if a real SI transfer had just completed.
type ControllerHost struct {
	pi     *n64core.PI
	stopCh chan struct{}
	done   chan struct{}
	stopped      sync.Once
	fd           int
	nonblockSet  bool
	oldTermState *term.State

	mu    sync.Mutex
	state uint32
}

// NewControllerHost creates a host adapter that publishes decoded keystrokes
// onto pi's IO path.
func NewControllerHost(pi *n64core.PI) *ControllerHost {
	return &ControllerHost{
		pi:     pi,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start puts stdin into raw, non-blocking mode and begins translating
// keystrokes into joypad pokes on a dedicated goroutine. Call Stop to
// restore stdin.
func (h *ControllerHost) Start() {
	h.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "controller_host: failed to set raw mode: %v\n", err)
		close(h.done)
		return
	}
	h.oldTermState = oldState

	if err := syscall.SetNonblock(h.fd, true); err != nil {
		fmt.Fprintf(os.Stderr, "controller_host: failed to set nonblocking stdin: %v\n", err)
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
		close(h.done)
		return
	}
	h.nonblockSet = true

	go func() {
		defer close(h.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-h.stopCh:
				return
			default:
			}

			n, err := syscall.Read(h.fd, buf)
			if n > 0 {
				h.routeKey(buf[0])
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
}

func (h *ControllerHost) routeKey(b byte) {
	bit, ok := keyBindings[b]
	if !ok {
		return
	}

	h.mu.Lock()
	h.state ^= bit
	state := h.state
	h.mu.Unlock()

	h.pi.IOWrite32(joypadShadowAddr, state)
}

// State returns the most recently published joypad word without going
// through the PI bus, for a caller that wants to read it directly rather
// than re-deriving it from an IORead32.
func (h *ControllerHost) State() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Stop terminates the stdin-reading goroutine and restores stdin to
// blocking, cooked mode.
func (h *ControllerHost) Stop() {
	h.stopped.Do(func() {
		close(h.stopCh)
	})
	<-h.done
	if h.nonblockSet {
		_ = syscall.SetNonblock(h.fd, false)
		h.nonblockSet = false
	}
	if h.oldTermState != nil {
		_ = term.Restore(h.fd, h.oldTermState)
		h.oldTermState = nil
	}
}
