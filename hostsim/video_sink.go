//go:build !headless

package hostsim

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"golang.design/x/clipboard"
	"golang.org/x/image/draw"

	n64core "github.com/coldboot-systems/n64core"
)

// clampScale bounds the integer window-scale factor the way the source's
// ClampScale does for its own video backends.
func clampScale(s int) int {
	if s < 1 {
		return 1
	}
	if s > 4 {
		return 4
	}
	return s
}

// VideoSink presents a Video manager's current framebuffer through ebiten.
// It has no knowledge of the presentation state machine beyond NowShowing
// and FramebufferBytes; every other decision (which slot is ready, when to
// advance) is Video's.
type VideoSink struct {
	video *n64core.Video
	scale int

	mu          sync.RWMutex
	img         *ebiten.Image
	rgba        []byte
	scaled      *image.RGBA
	running     bool
	fullscreen  bool
	windowedW   int
	windowedH   int
	vsyncChan   chan struct{}
	keyHandler  func(byte)
	closeSignal func()

	clipboardOnce sync.Once
	clipboardOK   bool

	lastFrame *image.RGBA // the straight-RGBA8888 conversion Draw produced most recently
}

// NewVideoSink constructs a sink for video, presenting at the given integer
// window scale factor.
func NewVideoSink(video *n64core.Video, scale int) *VideoSink {
	scale = clampScale(scale)
	return &VideoSink{
		video:     video,
		scale:     scale,
		windowedW: video.Width() * scale,
		windowedH: video.Height() * scale,
		vsyncChan: make(chan struct{}, 1),
	}
}

// OnClose registers a callback invoked when the host window is closed, so
// the caller can drive its own reset/shutdown path (mirrors the source's
// CPU-reset-on-close wiring, generalized since this sink has no CPU of its
// own to reset).
func (vs *VideoSink) OnClose(fn func()) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.closeSignal = fn
}

// Start opens the host window and runs the ebiten game loop on its own
// goroutine, blocking until the first Draw call so callers don't race the
// window's readiness.
func (vs *VideoSink) Start() error {
	vs.mu.Lock()
	if vs.running {
		vs.mu.Unlock()
		return nil
	}
	vs.running = true
	vs.mu.Unlock()

	ebiten.SetWindowSize(vs.windowedW, vs.windowedH)
	ebiten.SetWindowTitle("n64core simulator")
	ebiten.SetWindowResizable(true)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(true)

	go func() {
		if err := ebiten.RunGame(vs); err != nil {
			fmt.Printf("video sink: %v\n", err)
		}
	}()

	<-vs.vsyncChan
	return nil
}

// Stop marks the sink as no longer running; the next Update call returns
// ebiten.Termination.
func (vs *VideoSink) Stop() error {
	vs.mu.Lock()
	vs.running = false
	vs.mu.Unlock()
	return nil
}

// WaitForVSync blocks until the next Draw call has presented a frame.
func (vs *VideoSink) WaitForVSync() error {
	<-vs.vsyncChan
	return nil
}

// SetKeyHandler installs the callback that receives decoded keyboard bytes,
// for wiring into a simulated serial/controller input path.
func (vs *VideoSink) SetKeyHandler(fn func(byte)) {
	vs.mu.Lock()
	vs.keyHandler = fn
	vs.mu.Unlock()
}

func (vs *VideoSink) emitByte(b byte) {
	vs.mu.RLock()
	handler := vs.keyHandler
	vs.mu.RUnlock()
	if handler != nil {
		handler(b)
	}
}

// Update implements ebiten.Game. It polls window-close and fullscreen-toggle
// state and forwards keyboard/clipboard input to the registered handler.
func (vs *VideoSink) Update() error {
	if ebiten.IsWindowBeingClosed() {
		vs.mu.RLock()
		onClose := vs.closeSignal
		vs.mu.RUnlock()
		if onClose != nil {
			onClose()
		}
		return ebiten.Termination
	}

	vs.mu.RLock()
	running := vs.running
	vs.mu.RUnlock()
	if !running {
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		vs.mu.Lock()
		vs.fullscreen = !vs.fullscreen
		ebiten.SetFullscreen(vs.fullscreen)
		if !vs.fullscreen {
			ebiten.SetWindowSize(vs.windowedW, vs.windowedH)
		}
		vs.mu.Unlock()
	}

	ctrl := ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight)
	shift := ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight)
	if ctrl && shift && inpututil.IsKeyJustPressed(ebiten.KeyV) {
		vs.handleClipboardPaste()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF9) {
		vs.handleScreenshotHotkey()
	}
	for _, r := range ebiten.AppendInputChars(nil) {
		if r > 0 && r <= 0xFF {
			vs.emitByte(byte(r))
		}
	}
	return nil
}

func (vs *VideoSink) handleClipboardPaste() {
	vs.clipboardOnce.Do(func() {
		vs.clipboardOK = clipboard.Init() == nil
	})
	if !vs.clipboardOK {
		return
	}
	data := clipboard.Read(clipboard.FmtText)
	for _, b := range data {
		vs.emitByte(b)
	}
}

// handleScreenshotHotkey copies the currently-presented framebuffer to the
// clipboard as a "data:image/png;base64,..." URI, a dev convenience for
// grabbing a frame out of a headful run without a separate capture tool.
func (vs *VideoSink) handleScreenshotHotkey() {
	vs.clipboardOnce.Do(func() {
		vs.clipboardOK = clipboard.Init() == nil
	})
	if !vs.clipboardOK {
		return
	}

	vs.mu.Lock()
	frame := vs.lastFrame
	vs.mu.Unlock()
	if frame == nil {
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	clipboard.Write(clipboard.FmtText, []byte(uri))
}

// Draw implements ebiten.Game, converting Video's current framebuffer from
// its native N64 pixel packing (RGBA 5-5-5-1 at 16bpp, RGBA 8-8-8-8 at
// 32bpp) into the straight RGBA8888 ebiten.Image.WritePixels expects.
func (vs *VideoSink) Draw(screen *ebiten.Image) {
	w, h := vs.video.Width(), vs.video.Height()

	slot := vs.video.NowShowing()
	if slot < 0 {
		screen.Clear()
		vs.signalVSync()
		return
	}

	pixels, stride := vs.video.FramebufferBytes(slot)

	vs.mu.Lock()
	if len(vs.rgba) != w*h*4 {
		vs.rgba = make([]byte, w*h*4)
	}
	switch vs.video.BitDepthOf() {
	case n64core.BitDepth32:
		convertRGBA8888(pixels, stride, w, h, vs.rgba)
	default:
		convertRGBA5551(pixels, stride, w, h, vs.rgba)
	}
	native := &image.RGBA{Pix: vs.rgba, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}

	vs.lastFrame = &image.RGBA{
		Pix:    append([]byte(nil), native.Pix...),
		Stride: native.Stride,
		Rect:   native.Rect,
	}

	if vs.img == nil || vs.scaled == nil {
		vs.img = ebiten.NewImage(vs.windowedW, vs.windowedH)
		vs.scaled = image.NewRGBA(image.Rect(0, 0, vs.windowedW, vs.windowedH))
	}
	draw.BiLinear.Scale(vs.scaled, vs.scaled.Bounds(), native, native.Bounds(), draw.Src, nil)
	vs.img.WritePixels(vs.scaled.Pix)
	vs.mu.Unlock()

	screen.DrawImage(vs.img, nil)
	vs.signalVSync()
}

func (vs *VideoSink) signalVSync() {
	select {
	case vs.vsyncChan <- struct{}{}:
	default:
	}
}

// Layout implements ebiten.Game.
func (vs *VideoSink) Layout(_, _ int) (int, int) {
	return vs.video.Width(), vs.video.Height()
}

func convertRGBA8888(src []byte, stride, w, h int, dst []byte) {
	for y := 0; y < h; y++ {
		row := src[y*stride : y*stride+w*4]
		copy(dst[y*w*4:(y+1)*w*4], row)
	}
}

func convertRGBA5551(src []byte, stride, w, h int, dst []byte) {
	for y := 0; y < h; y++ {
		row := src[y*stride : y*stride+w*2]
		for x := 0; x < w; x++ {
			word := uint16(row[2*x])<<8 | uint16(row[2*x+1])
			r := uint8(word>>11) & 0x1F
			g := uint8(word>>6) & 0x1F
			b := uint8(word>>1) & 0x1F
			a := uint8(word & 0x1)

			di := (y*w + x) * 4
			dst[di+0] = expand5to8(r)
			dst[di+1] = expand5to8(g)
			dst[di+2] = expand5to8(b)
			if a != 0 {
				dst[di+3] = 0xFF
			} else {
				dst[di+3] = 0x00
			}
		}
	}
}

func expand5to8(v uint8) byte {
	return byte(v<<3 | v>>2)
}
