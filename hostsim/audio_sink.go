//go:build !headless

package hostsim

import (
	"sync"

	"github.com/ebitengine/oto/v3"

	n64core "github.com/coldboot-systems/n64core"
)

// AudioSink plays an Audio manager's output through the host's real sound
// card. It has no concept of the ring buffer's internal bookkeeping: it only
// ever looks at whatever address and length the feeder most recently
// programmed into AI_DRAM_ADDR/AI_LEN (Audio.CurrentDMA), streams those bytes
// out as oto pulls them, and signals MarkSlotDrained once it has played every
// byte of the current buffer so the feeder's next dispatch can retire and
// refill the hardware queue.
type AudioSink struct {
	ctx    *oto.Context
	player *oto.Player
	audio  *n64core.Audio

	mu     sync.Mutex
	addr   uint32
	length uint32
	offset uint32
}

// NewAudioSink opens a host audio context at audio's negotiated sample rate
// and wires it to play audio's output. The returned sink owns a real oto
// player; call Start to begin pulling bytes.
func NewAudioSink(audio *n64core.Audio) (*AudioSink, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   int(audio.Frequency()),
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   0,
	}
	ctx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, err
	}
	<-ready

	sink := &AudioSink{ctx: ctx, audio: audio}
	sink.player = ctx.NewPlayer(sink)
	return sink, nil
}

// Read implements io.Reader for oto.Player. It is called from oto's own
// playback goroutine, never from the application. It reaches Audio's state
// only through CurrentDMA, BufferByPhysAddr and MarkSlotDrained, which take
// no lock of their own.
func (s *AudioSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for n < len(p) {
		if s.length > 0 && s.offset >= s.length {
			s.audio.MarkSlotDrained()
			s.length = 0
		}
		if s.length == 0 {
			addr, length := s.audio.CurrentDMA()
			if length == 0 {
				for ; n < len(p); n++ {
					p[n] = 0
				}
				return n, nil
			}
			s.addr, s.length, s.offset = addr, length, 0
		}

		buf := s.audio.BufferByPhysAddr(s.addr)
		if buf == nil {
			for ; n < len(p); n++ {
				p[n] = 0
			}
			return n, nil
		}

		avail := int(s.length - s.offset)
		want := len(p) - n
		if want > avail {
			want = avail
		}
		copy(p[n:n+want], buf[s.offset:int(s.offset)+want])
		n += want
		s.offset += uint32(want)
	}
	return n, nil
}

// Start begins pulling audio from Read and playing it on the host device.
func (s *AudioSink) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Play()
	}
}

// Stop halts playback without releasing the host audio context.
func (s *AudioSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player != nil {
		s.player.Pause()
	}
}

// Close releases the host player. The sink is unusable afterward.
func (s *AudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	err := s.player.Close()
	s.player = nil
	return err
}

// IsPlaying reports whether the host player is currently running.
func (s *AudioSink) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil && s.player.IsPlaying()
}
