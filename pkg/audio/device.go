// Package audio defines the audio frame type, the PCM/transport codec, and the
// device interfaces that the capture engine and playback scheduler run on.
//
// The two device abstractions are:
//
//   - [InputDevice] opens a microphone stream that hands normalised float
//     samples to a callback on the host's real-time audio thread.
//   - [OutputDevice] opens a speaker stream that accepts PCM16 bytes and
//     exposes the hardware playback clock.
//
// Implementations live in backend packages (audio/portaudio, audio/oto) and in
// audio/mock for tests.
package audio

import (
	"errors"
	"time"
)

// ErrBackendUnavailable is returned by device backends that were compiled
// without their native library.
var ErrBackendUnavailable = errors.New("audio: backend not available in this build")

// InputConfig describes how an input stream should be opened.
type InputConfig struct {
	// SampleRate in Hz.
	SampleRate int

	// FramesPerBuffer is the number of samples delivered per callback.
	FramesPerBuffer int

	// EchoCancellation and NoiseSuppression are requests; backends that
	// cannot honour them log the fact and continue.
	EchoCancellation bool
	NoiseSuppression bool
}

// OutputConfig describes how an output stream should be opened.
type OutputConfig struct {
	SampleRate int
	Channels   int
}

// Stream is an opened input stream. Samples are not delivered until Start.
type Stream interface {
	Start() error

	// Close stops delivery and releases the device. Safe to call more than once.
	Close() error
}

// InputDevice opens microphone streams.
//
// process is invoked on the backend's real-time thread with exactly
// FramesPerBuffer samples. It must not block, and it must not retain the
// slice after returning.
type InputDevice interface {
	OpenInput(cfg InputConfig, process func(samples []float32)) (Stream, error)
}

// OutputStream is an opened speaker stream.
type OutputStream interface {
	// Write queues PCM16 mono bytes behind any audio already written.
	Write(pcm []byte) error

	// Now returns the playback clock: how much audio the hardware has
	// consumed since the stream was opened. It never decreases.
	Now() time.Duration

	// Close stops output immediately, discarding anything not yet played.
	// Safe to call more than once.
	Close() error
}

// OutputDevice opens speaker streams.
type OutputDevice interface {
	OpenOutput(cfg OutputConfig) (OutputStream, error)
}
