//go:build !oto

// Package oto provides a speaker device backed by ebitengine/oto. This build
// was compiled without -tags oto.
package oto

import "github.com/alakbarr/Interview-Matrix/pkg/audio"

// Device is unavailable in this build.
type Device struct{}

// New always fails with [audio.ErrBackendUnavailable].
func New() (*Device, error) {
	return nil, audio.ErrBackendUnavailable
}

// OpenOutput implements [audio.OutputDevice].
func (d *Device) OpenOutput(audio.OutputConfig) (audio.OutputStream, error) {
	return nil, audio.ErrBackendUnavailable
}
