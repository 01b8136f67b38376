//go:build portaudio

// Package portaudio provides microphone and speaker devices backed by the
// PortAudio C library. Build with -tags portaudio; without the tag the
// package compiles to a stub whose constructors fail with
// [audio.ErrBackendUnavailable].
package portaudio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alakbarr/Interview-Matrix/pkg/audio"
	"github.com/gordonklaus/portaudio"
)

// Compile-time interface assertions.
var (
	_ audio.InputDevice  = (*Device)(nil)
	_ audio.OutputDevice = (*Device)(nil)
)

// Device opens default PortAudio input and output streams.
type Device struct{}

// New returns a PortAudio device.
func New() (*Device, error) {
	return &Device{}, nil
}

// OpenInput implements [audio.InputDevice]. PortAudio has no echo cancellation
// or noise suppression of its own; those requests are logged and ignored.
func (d *Device) OpenInput(cfg audio.InputConfig, process func([]float32)) (audio.Stream, error) {
	if cfg.EchoCancellation || cfg.NoiseSuppression {
		slog.Debug("portaudio: echo cancellation and noise suppression are not available, using raw input")
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, func(in []float32) {
		process(in)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open input: %w", err)
	}
	return &inputStream{stream: stream}, nil
}

type inputStream struct {
	stream    *portaudio.Stream
	closeOnce sync.Once
	closeErr  error
}

func (s *inputStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: start input: %w", err)
	}
	return nil
}

func (s *inputStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stream.Abort()
		s.closeErr = s.stream.Close()
		_ = portaudio.Terminate()
	})
	return s.closeErr
}

// OpenOutput implements [audio.OutputDevice]. The stream is callback driven:
// Write appends to a pending buffer that the callback drains, filling with
// silence when nothing is queued. Now counts samples the callback has handed
// to the hardware.
func (d *Device) OpenOutput(cfg audio.OutputConfig) (audio.OutputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	out := &outputStream{rate: cfg.SampleRate}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(cfg.SampleRate), 0, out.fill)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: open output: %w", err)
	}
	out.stream = stream
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("portaudio: start output: %w", err)
	}
	return out, nil
}

type outputStream struct {
	stream *portaudio.Stream
	rate   int

	mu      sync.Mutex
	pending []int16
	played  int64
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

// fill runs on the PortAudio callback thread.
func (s *outputStream) fill(out []int16) {
	s.mu.Lock()
	n := copy(out, s.pending)
	s.pending = s.pending[n:]
	s.played += int64(len(out))
	s.mu.Unlock()
	clear(out[n:])
}

func (s *outputStream) Write(pcm []byte) error {
	samples := audio.PCM16ToInt16(pcm)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("portaudio: write on closed stream")
	}
	s.pending = append(s.pending, samples...)
	return nil
}

func (s *outputStream) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.played) * time.Second / time.Duration(s.rate)
}

func (s *outputStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		s.mu.Unlock()
		_ = s.stream.Abort()
		s.closeErr = s.stream.Close()
		_ = portaudio.Terminate()
	})
	return s.closeErr
}
