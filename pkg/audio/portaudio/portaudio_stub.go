//go:build !portaudio

// Package portaudio provides microphone and speaker devices backed by the
// PortAudio C library. This build was compiled without -tags portaudio.
package portaudio

import "github.com/alakbarr/Interview-Matrix/pkg/audio"

// Device is unavailable in this build.
type Device struct{}

// New always fails with [audio.ErrBackendUnavailable].
func New() (*Device, error) {
	return nil, audio.ErrBackendUnavailable
}

// OpenInput implements [audio.InputDevice].
func (d *Device) OpenInput(audio.InputConfig, func([]float32)) (audio.Stream, error) {
	return nil, audio.ErrBackendUnavailable
}

// OpenOutput implements [audio.OutputDevice].
func (d *Device) OpenOutput(audio.OutputConfig) (audio.OutputStream, error) {
	return nil, audio.ErrBackendUnavailable
}
