// Command simulator runs the n64core subsystems against host backends:
// real audio through oto, a window through ebiten, and keyboard input
// standing in for a joypad, so the interrupt controller, audio manager,
// video manager, and peripheral DMA engine can all be exercised without
// target hardware.
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	n64core "github.com/coldboot-systems/n64core"
	"github.com/coldboot-systems/n64core/hostsim"
)

func main() {
	var (
		width     = flag.Int("width", 320, "framebuffer width")
		height    = flag.Int("height", 240, "framebuffer height")
		scale     = flag.Int("scale", 2, "window scale factor")
		bitdepth  = flag.Int("bitdepth", 16, "framebuffer bit depth (16 or 32)")
		freq      = flag.Int("freq", 44100, "audio sample rate in Hz")
		standard  = flag.String("standard", "ntsc", "TV standard: ntsc, pal, mpal")
	)
	flag.Parse()

	hw := n64core.NewStaticHardwareInfo(parseStandard(*standard), n64core.PlatformVariantBase)
	ticks := n64core.NewWallClockTickSource()
	status := n64core.NewSimStatusRegister()
	mi := n64core.NewSimRegisterFile(0x20)

	ctrl := n64core.NewController(mi, status, ticks)
	ctrl.Init()

	alloc := n64core.NewHostAllocator()

	aiRegs := n64core.NewSimRegisterFile(0x20)
	audio := n64core.NewAudio(aiRegs, ctrl, alloc, ticks)
	audio.Init(hw, uint32(*freq), 4, 544)
	audio.SetFillCallback(sineWaveFiller(audio.Frequency()))

	bd := n64core.BitDepth16
	if *bitdepth == 32 {
		bd = n64core.BitDepth32
	}
	viRegs := n64core.NewSimRegisterFile(0x40)
	video := n64core.NewVideo(viRegs, ctrl, alloc, ticks, hw)
	video.Init(n64core.VideoConfig{
		Width:      *width,
		Height:     *height,
		BitDepth:   bd,
		Interlace:  n64core.InterlaceOff,
		NumBuffers: 2,
		Filters:    n64core.Filters{Resample: true},
	})

	piRegs := n64core.NewSimRegisterFile(0x20)
	cartRegs := n64core.NewSimRegisterFile(1 << 20)
	pi := n64core.NewPI(piRegs, cartRegs, ctrl)

	session, err := hostsim.NewSession(audio, video, pi, *scale)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ctrl.RegisterReset(func() {
		fmt.Println("simulator: reset signaled, winding down")
	})

	stop := make(chan struct{})
	var stopOnce sync.Once
	closeStop := func() { stopOnce.Do(func() { close(stop) }) }
	session.Video.OnClose(closeStop)

	if err := session.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		os.Exit(1)
	}

	go pumpVideo(video, ctrl, stop)
	go pumpAudio(audio, ctrl, stop)
	go drawLoop(video, stop)

	select {
	case <-sigCh:
		ctrl.Dispatch(true, false, nil)
		closeStop()
	case <-stop:
	}

	session.Stop()
}

func parseStandard(s string) n64core.TVStandard {
	switch s {
	case "pal":
		return n64core.TVStandardPAL
	case "mpal":
		return n64core.TVStandardMPAL
	default:
		return n64core.TVStandardNTSC
	}
}

// pumpVideo stands in for the VI hardware's own vblank edge: it fires at the
// configured refresh rate, raising SourceVideo and dispatching it through
// the same path a real vblank interrupt would take.
func pumpVideo(video *n64core.Video, ctrl *n64core.Controller, stop <-chan struct{}) error {
	period := time.Duration(float64(time.Second) / video.RefreshRate())
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	ack := map[n64core.Source]func(){
		n64core.SourceVideo: func() { ctrl.Acknowledge(n64core.SourceVideo) },
	}

	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			ctrl.Raise(n64core.SourceVideo)
			ctrl.Dispatch(false, false, ack)
		}
	}
}

// pumpAudio stands in for the AI hardware's buffer-drained edge.
func pumpAudio(audio *n64core.Audio, ctrl *n64core.Controller, stop <-chan struct{}) error {
	periodMillis := float64(audio.BufferLength()) * 1000 / float64(audio.Frequency())
	ticker := time.NewTicker(time.Duration(periodMillis * float64(time.Millisecond)))
	defer ticker.Stop()

	ack := map[n64core.Source]func(){
		n64core.SourceAudio: func() { ctrl.Acknowledge(n64core.SourceAudio) },
	}

	for {
		select {
		case <-stop:
			return nil
		case <-ticker.C:
			ctrl.Raise(n64core.SourceAudio)
			ctrl.Dispatch(false, false, ack)
		}
	}
}

// drawLoop is the rasterizer collaborator's stand-in: it acquires the next
// presentable slot, paints a moving test pattern into it, and hands it back.
func drawLoop(video *n64core.Video, stop <-chan struct{}) error {
	var frame int
	for {
		select {
		case <-stop:
			return nil
		default:
		}

		slot, ok := video.Get()
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		paintTestPattern(video, slot, frame)
		video.Show(slot)
		frame++
	}
}

func paintTestPattern(video *n64core.Video, slot int, frame int) {
	pixels, stride := video.FramebufferBytes(slot)
	w, h := video.Width(), video.Height()
	bpp := 2
	if video.BitDepthOf() == n64core.BitDepth32 {
		bpp = 4
	}
	for y := 0; y < h; y++ {
		row := pixels[y*stride : y*stride+w*bpp]
		for x := 0; x < w; x++ {
			r := byte((x + frame) % 256)
			g := byte((y + frame) % 256)
			b := byte(frame % 256)
			if bpp == 4 {
				off := x * 4
				row[off], row[off+1], row[off+2], row[off+3] = r, g, b, 0xFF
				continue
			}
			off := x * 2
			word := uint16(r>>3)<<11 | uint16(g>>3)<<6 | uint16(b>>3)<<1 | 1
			row[off], row[off+1] = byte(word>>8), byte(word)
		}
	}
}

// sineWaveFiller returns an AudioFillFunc producing a fixed 440Hz tone, used
// when no real producer has supplied samples.
func sineWaveFiller(sampleRate uint32) n64core.AudioFillFunc {
	const toneHz = 440.0
	var phase float64
	step := 2 * math.Pi * toneHz / float64(sampleRate)

	return func(dst []int16) {
		for i := 0; i < len(dst); i += 2 {
			s := int16(math.Sin(phase) * 8000)
			dst[i] = s
			dst[i+1] = s
			phase += step
			if phase > 2*math.Pi {
				phase -= 2 * math.Pi
			}
		}
	}
}
