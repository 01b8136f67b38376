package audio

import "time"

// AudioFrame represents a single frame of audio data flowing through a session.
// Frames are the unit moved between capture, transport, and playback. A frame
// is never mutated after it is created; producers hand it off by value.
type AudioFrame struct {
	// PCM audio data, little-endian signed 16-bit.
	Data []byte

	// SampleRate in Hz (16000 for every live session).
	SampleRate int

	// Channels: 1 for mono.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of sample frames (one sample per channel) held in f.
func (f AudioFrame) Samples() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return len(f.Data) / (2 * ch)
}

// Duration returns how long f takes to play at its sample rate.
// A frame without a sample rate has zero duration.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}
