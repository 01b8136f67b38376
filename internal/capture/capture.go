// Package capture turns the real-time callbacks of an [audio.InputDevice]
// into a stream of fixed-size PCM16 [audio.AudioFrame] values.
//
// Sample conversion happens on the device callback. Finished frames cross to
// an ordinary goroutine through a bounded channel; when the consumer falls
// behind, the newest frame is dropped and counted instead of blocking the
// device.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alakbarr/Interview-Matrix/internal/observe"
	"github.com/alakbarr/Interview-Matrix/pkg/audio"
)

// ErrPermissionDenied is returned by [Engine.Open] when the input device
// cannot be acquired, whether the user refused access or no device exists.
var ErrPermissionDenied = errors.New("capture: input device permission denied")

const (
	defaultFramesPerBuffer = 1024
	defaultBuffer          = 32
)

// Config controls an [Engine].
type Config struct {
	// SampleRate is the capture rate in Hz. Defaults to [audio.SessionSampleRate].
	SampleRate int

	// FramesPerBuffer is the number of samples per delivered frame.
	FramesPerBuffer int

	EchoCancellation bool
	NoiseSuppression bool

	// Buffer is the capacity of the hand-off channel in frames.
	Buffer int
}

// Option is a functional option for [New].
type Option func(*Engine)

// WithMetrics records dropped frames on m when the engine stops.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine captures one session's microphone audio. An Engine is single-use:
// Open, Start, then Stop.
type Engine struct {
	dev     audio.InputDevice
	cfg     Config
	metrics *observe.Metrics

	mu      sync.Mutex
	stream  audio.Stream
	started bool
	stopped bool
	stop    chan struct{}

	frames  chan audio.AudioFrame
	running atomic.Bool
	dropped atomic.Int64

	// Touched only from the device callback.
	pending []float32
	offset  int64
}

// New returns an Engine for dev. Zero config fields take their defaults.
func New(dev audio.InputDevice, cfg Config, opts ...Option) *Engine {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.SessionSampleRate
	}
	if cfg.FramesPerBuffer <= 0 {
		cfg.FramesPerBuffer = defaultFramesPerBuffer
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	e := &Engine{
		dev:    dev,
		cfg:    cfg,
		stop:   make(chan struct{}),
		frames: make(chan audio.AudioFrame, cfg.Buffer),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Open acquires the input device. Any failure is reported as a single error
// wrapping [ErrPermissionDenied]. If ctx ends while the device is being
// opened, the handle is released and ctx's error is returned.
func (e *Engine) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stream, err := e.dev.OpenInput(audio.InputConfig{
		SampleRate:       e.cfg.SampleRate,
		FramesPerBuffer:  e.cfg.FramesPerBuffer,
		EchoCancellation: e.cfg.EchoCancellation,
		NoiseSuppression: e.cfg.NoiseSuppression,
	}, e.process)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped || ctx.Err() != nil {
		_ = stream.Close()
		if err := ctx.Err(); err != nil {
			return err
		}
		return errors.New("capture: open: engine stopped")
	}
	e.stream = stream
	return nil
}

// Start begins delivering frames to onFrame from a dedicated goroutine. If the
// device stream fails to start, onError is called once from that goroutine and
// no frames are delivered. Start after Stop, or a second Start, does nothing.
func (e *Engine) Start(onFrame func(audio.AudioFrame), onError func(error)) {
	e.mu.Lock()
	if e.stopped || e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	var startErr error
	switch {
	case e.stream == nil:
		startErr = errors.New("capture: start: device not open")
	default:
		e.running.Store(true)
		if err := e.stream.Start(); err != nil {
			e.running.Store(false)
			startErr = fmt.Errorf("capture: start: %w", err)
		}
	}
	stop := e.stop
	e.mu.Unlock()

	go func() {
		if startErr != nil {
			if onError != nil {
				onError(startErr)
			}
			return
		}
		for {
			select {
			case <-stop:
				return
			case f := <-e.frames:
				select {
				case <-stop:
					return
				default:
				}
				onFrame(f)
			}
		}
	}()
}

// Stop halts delivery and releases the device. It does not wait for a
// callback already running in onFrame. Safe to call more than once and
// before Start.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true
	e.running.Store(false)
	close(e.stop)

	if n := e.dropped.Load(); n > 0 {
		slog.Debug("capture: frames dropped", "frames", n)
		if e.metrics != nil {
			e.metrics.RecordFramesDropped(context.Background(), "capture", n)
		}
	}
	if e.stream == nil {
		return nil
	}
	if err := e.stream.Close(); err != nil {
		return fmt.Errorf("capture: stop: %w", err)
	}
	return nil
}

// Dropped returns how many frames were discarded because the consumer was
// not keeping up.
func (e *Engine) Dropped() int64 {
	return e.dropped.Load()
}

// process runs on the device's real-time callback.
func (e *Engine) process(in []float32) {
	if !e.running.Load() {
		return
	}
	size := e.cfg.FramesPerBuffer
	if len(e.pending) == 0 && len(in) == size {
		e.emit(in)
		return
	}
	e.pending = append(e.pending, in...)
	for len(e.pending) >= size {
		e.emit(e.pending[:size])
		e.pending = e.pending[size:]
	}
	if len(e.pending) == 0 {
		e.pending = nil
	}
}

func (e *Engine) emit(samples []float32) {
	frame := audio.AudioFrame{
		Data:       audio.Float32ToPCM16(samples),
		SampleRate: e.cfg.SampleRate,
		Channels:   1,
		Timestamp:  time.Duration(e.offset) * time.Second / time.Duration(e.cfg.SampleRate),
	}
	e.offset += int64(len(samples))
	select {
	case e.frames <- frame:
	default:
		e.dropped.Add(1)
	}
}
