package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be applied without restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LiveChanged is true when any endpoint, model, voice or prompt setting
	// differs. The new values take effect on the next session.
	LiveChanged bool

	// AudioChanged covers capture and playback parameters. Output backend
	// changes are excluded because the device is opened once at startup.
	AudioChanged bool

	// SeedChanged is true when the seed source or its static content differs.
	SeedChanged bool
}

// Changed reports whether anything tracked differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LiveChanged || d.AudioChanged || d.SeedChanged
}

// SessionChanged reports whether the session controller needs to be
// reconfigured.
func (d ConfigDiff) SessionChanged() bool {
	return d.LiveChanged || d.AudioChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.LiveChanged = !liveEqual(old.Live, new.Live)
	d.AudioChanged = !audioEqual(old.Audio, new.Audio)
	d.SeedChanged = !seedEqual(old.Seed, new.Seed)

	return d
}

func liveEqual(a, b LiveConfig) bool {
	return a.APIKey == b.APIKey &&
		a.BaseURL == b.BaseURL &&
		a.Model == b.Model &&
		a.Voice == b.Voice &&
		slices.Equal(a.ResponseModalities, b.ResponseModalities) &&
		a.AwaitsSetupAck() == b.AwaitsSetupAck() &&
		a.DialTimeout == b.DialTimeout &&
		a.Keepalive == b.Keepalive &&
		a.WriteTimeout == b.WriteTimeout &&
		a.SendQueue == b.SendQueue &&
		a.InstructionTemplate == b.InstructionTemplate &&
		a.GreetingTemplate == b.GreetingTemplate
}

func audioEqual(a, b AudioConfig) bool {
	return a.SampleRate == b.SampleRate &&
		a.FramesPerBuffer == b.FramesPerBuffer &&
		boolEqual(a.EchoCancellation, b.EchoCancellation) &&
		boolEqual(a.NoiseSuppression, b.NoiseSuppression) &&
		a.PlaybackLead == b.PlaybackLead &&
		a.PlaybackTick == b.PlaybackTick &&
		a.CaptureBuffer == b.CaptureBuffer
}

func seedEqual(a, b SeedConfig) bool {
	return a.Source == b.Source &&
		a.Path == b.Path &&
		a.PostgresDSN == b.PostgresDSN &&
		a.TopicID == b.TopicID &&
		a.Topic == b.Topic &&
		a.Summary == b.Summary &&
		slices.Equal(a.KeyPoints, b.KeyPoints) &&
		a.MaxKeyPoints == b.MaxKeyPoints
}

func boolEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
