//go:build oto

// Package oto provides a speaker device backed by ebitengine/oto. Build with
// -tags oto; without the tag the package compiles to a stub.
package oto

import (
	"fmt"
	"sync"
	"time"

	"github.com/alakbarr/Interview-Matrix/pkg/audio"
	"github.com/ebitengine/oto/v3"
)

var _ audio.OutputDevice = (*Device)(nil)

// oto allows a single context per process.
var (
	sharedCtx     *oto.Context
	sharedCfg     audio.OutputConfig
	sharedCtxErr  error
	sharedCtxOnce sync.Once
)

// Device opens oto players on the process-wide oto context.
type Device struct{}

// New returns an oto device.
func New() (*Device, error) {
	return &Device{}, nil
}

func sharedContext(cfg audio.OutputConfig) (*oto.Context, error) {
	sharedCtxOnce.Do(func() {
		c, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			sharedCtxErr = fmt.Errorf("oto: new context: %w", err)
			return
		}
		<-ready
		sharedCtx = c
		sharedCfg = cfg
	})
	if sharedCtxErr != nil {
		return nil, sharedCtxErr
	}
	if sharedCfg != cfg {
		return nil, fmt.Errorf("oto: context already opened at %d Hz/%d ch, cannot reopen at %d Hz/%d ch",
			sharedCfg.SampleRate, sharedCfg.Channels, cfg.SampleRate, cfg.Channels)
	}
	return sharedCtx, nil
}

// OpenOutput implements [audio.OutputDevice].
func (d *Device) OpenOutput(cfg audio.OutputConfig) (audio.OutputStream, error) {
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	c, err := sharedContext(cfg)
	if err != nil {
		return nil, err
	}
	s := &outputStream{bytesPerSecond: int64(cfg.SampleRate * cfg.Channels * 2)}
	s.player = c.NewPlayer(s)
	s.player.Play()
	return s, nil
}

// outputStream is the io.Reader the oto player pulls from. It yields silence
// when nothing is pending so the player, and therefore the clock, keeps running.
type outputStream struct {
	player         *oto.Player
	bytesPerSecond int64

	mu      sync.Mutex
	pending []byte
	read    int64
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

func (s *outputStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	clear(p[n:])
	s.read += int64(len(p))
	return len(p), nil
}

func (s *outputStream) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("oto: write on closed stream")
	}
	s.pending = append(s.pending, pcm...)
	return nil
}

// Now subtracts what the player has read but not yet handed to the hardware.
func (s *outputStream) Now() time.Duration {
	s.mu.Lock()
	read := s.read
	s.mu.Unlock()
	played := read - int64(s.player.BufferedSize())
	if played < 0 {
		played = 0
	}
	return time.Duration(played) * time.Second / time.Duration(s.bytesPerSecond)
}

func (s *outputStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		s.player.Pause()
		s.closeErr = s.player.Close()
	})
	return s.closeErr
}
