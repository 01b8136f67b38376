// Package mock provides in-memory mock implementations of the [audio.InputDevice],
// [audio.Stream], [audio.OutputDevice], and [audio.OutputStream] interfaces for
// use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	in := &mock.InputDevice{}
//	out := &mock.OutputDevice{}
//	// ... start a session ...
//	in.Emit(make([]float32, 1024)) // simulate one real-time callback
//	stream := out.Last()
//	stream.SetNow(250 * time.Millisecond)
package mock

import (
	"errors"
	"sync"
	"time"

	"github.com/alakbarr/Interview-Matrix/pkg/audio"
)

// ErrClosed is returned by [OutputStream.Write] after Close.
var ErrClosed = errors.New("mock: stream closed")

// Compile-time interface assertions.
var (
	_ audio.InputDevice  = (*InputDevice)(nil)
	_ audio.Stream       = (*Stream)(nil)
	_ audio.OutputDevice = (*OutputDevice)(nil)
	_ audio.OutputStream = (*OutputStream)(nil)
)

// ─── Input ────────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream].
type Stream struct {
	mu sync.Mutex

	// StartError is returned by [Stream.Start].
	StartError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	process func([]float32)
}

// Start implements [audio.Stream].
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	return s.StartError
}

// Close implements [audio.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return nil
}

// Started reports whether Start succeeded and Close has not been called.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountStart > 0 && s.StartError == nil && s.CallCountClose == 0
}

// Closed reports whether Close has been called at least once.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CallCountClose > 0
}

// InputDevice is a mock implementation of [audio.InputDevice].
// Set the exported fields before use; inspect OpenCalls and Streams after.
type InputDevice struct {
	mu sync.Mutex

	// OpenError is returned by OpenInput when non-nil.
	OpenError error

	// OpenGate, when non-nil, makes OpenInput block until the channel is
	// closed or receives a value. Use it to hold a session in Connecting.
	OpenGate chan struct{}

	// OpenCalls records the config passed to every OpenInput call.
	OpenCalls []audio.InputConfig

	// Streams holds every successfully opened stream in order.
	Streams []*Stream
}

// OpenInput implements [audio.InputDevice].
func (d *InputDevice) OpenInput(cfg audio.InputConfig, process func([]float32)) (audio.Stream, error) {
	d.mu.Lock()
	d.OpenCalls = append(d.OpenCalls, cfg)
	gate := d.OpenGate
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	s := &Stream{process: process}
	d.Streams = append(d.Streams, s)
	return s, nil
}

// CallCountOpen returns how many times OpenInput was called.
func (d *InputDevice) CallCountOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.OpenCalls)
}

// Last returns the most recently opened stream, or nil.
func (d *InputDevice) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Streams) == 0 {
		return nil
	}
	return d.Streams[len(d.Streams)-1]
}

// Emit simulates one real-time callback on the most recently opened stream.
// It reports false when no stream is currently started.
func (d *InputDevice) Emit(samples []float32) bool {
	s := d.Last()
	if s == nil || !s.Started() {
		return false
	}
	s.process(samples)
	return true
}

// ─── Output ───────────────────────────────────────────────────────────────────

// OutputStream is a mock implementation of [audio.OutputStream] with a
// manually driven clock.
type OutputStream struct {
	mu sync.Mutex

	// WriteError is returned by Write when non-nil.
	WriteError error

	// Config is the config the stream was opened with.
	Config audio.OutputConfig

	now              time.Duration
	writes           [][]byte
	closed           bool
	callCountClose   int
	writesAfterClose int
}

// Write implements [audio.OutputStream]. Writes after Close are counted
// separately and return [ErrClosed].
func (s *OutputStream) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.writesAfterClose++
		return ErrClosed
	}
	if s.WriteError != nil {
		return s.WriteError
	}
	s.writes = append(s.writes, append([]byte(nil), pcm...))
	return nil
}

// Now implements [audio.OutputStream].
func (s *OutputStream) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Close implements [audio.OutputStream].
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.callCountClose++
	return nil
}

// SetNow moves the playback clock. Moving it backwards is ignored.
func (s *OutputStream) SetNow(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d > s.now {
		s.now = d
	}
}

// Writes returns a copy of every buffer written before Close.
func (s *OutputStream) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.writes))
	copy(out, s.writes)
	return out
}

// WritesAfterClose returns how many writes arrived after Close.
func (s *OutputStream) WritesAfterClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writesAfterClose
}

// CallCountClose returns how many times Close was called.
func (s *OutputStream) CallCountClose() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCountClose
}

// OutputDevice is a mock implementation of [audio.OutputDevice].
type OutputDevice struct {
	mu sync.Mutex

	// OpenError is returned by OpenOutput when non-nil.
	OpenError error

	// Streams holds every successfully opened stream in order.
	Streams []*OutputStream

	callCountOpen int
}

// OpenOutput implements [audio.OutputDevice].
func (d *OutputDevice) OpenOutput(cfg audio.OutputConfig) (audio.OutputStream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.callCountOpen++
	if d.OpenError != nil {
		return nil, d.OpenError
	}
	s := &OutputStream{Config: cfg}
	d.Streams = append(d.Streams, s)
	return s, nil
}

// CallCountOpen returns how many times OpenOutput was called.
func (d *OutputDevice) CallCountOpen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.callCountOpen
}

// Last returns the most recently opened stream, or nil.
func (d *OutputDevice) Last() *OutputStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Streams) == 0 {
		return nil
	}
	return d.Streams[len(d.Streams)-1]
}
