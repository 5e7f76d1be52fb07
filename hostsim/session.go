//go:build !headless

package hostsim

import (
	"golang.org/x/sync/errgroup"

	n64core "github.com/coldboot-systems/n64core"
)

// Session bundles the three host collaborators — real audio output, a
// window, and keyboard-driven joypad input — and starts or stops them as
// one unit.
type Session struct {
	Audio *AudioSink
	Video *VideoSink
	Input *ControllerHost
}

// NewSession constructs fresh host backends wired to the given managers.
// scale is the integer window-scale factor passed to NewVideoSink.
func NewSession(audio *n64core.Audio, video *n64core.Video, pi *n64core.PI, scale int) (*Session, error) {
	audioSink, err := NewAudioSink(audio)
	if err != nil {
		return nil, err
	}
	return &Session{
		Audio: audioSink,
		Video: NewVideoSink(video, scale),
		Input: NewControllerHost(pi),
	}, nil
}

// Start launches the video window, audio playback and joypad reader
// concurrently via an errgroup and returns the first error (most likely
// the window failing to open). It does not stop the backends that did
// start; call Stop for that.
func (s *Session) Start() error {
	var eg errgroup.Group
	eg.Go(func() error {
		return s.Video.Start()
	})
	eg.Go(func() error {
		s.Audio.Start()
		return nil
	})
	eg.Go(func() error {
		s.Input.Start()
		return nil
	})
	return eg.Wait()
}

// Stop tears down all three backends. Safe to call once Start has returned,
// successfully or not.
func (s *Session) Stop() {
	_ = s.Video.Stop()
	s.Audio.Stop()
	s.Input.Stop()
	_ = s.Audio.Close()
}
