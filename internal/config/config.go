// Package config provides the configuration schema and loader for the
// matrixvoice session manager.
package config

import (
	"time"

	"github.com/alakbarr/Interview-Matrix/internal/transport"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// OutputBackend selects the audio library used for playback.
type OutputBackend string

const (
	// OutputPortAudio plays through the same PortAudio host API as capture.
	OutputPortAudio OutputBackend = "portaudio"

	// OutputOto plays through ebitengine/oto.
	OutputOto OutputBackend = "oto"
)

// IsValid reports whether b is a recognised output backend.
func (b OutputBackend) IsValid() bool {
	return b == OutputPortAudio || b == OutputOto
}

// SeedSource selects where the session seed comes from.
type SeedSource string

const (
	// SeedStatic uses the topic, summary and key points written in the config.
	SeedStatic SeedSource = "static"

	// SeedFile reads a matrix document from seed.path before each session.
	SeedFile SeedSource = "file"

	// SeedPostgres loads the matrix document seed.topic_id from PostgreSQL.
	SeedPostgres SeedSource = "postgres"
)

// IsValid reports whether s is a recognised seed source.
func (s SeedSource) IsValid() bool {
	switch s {
	case SeedStatic, SeedFile, SeedPostgres:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Live   LiveConfig   `yaml:"live"`
	Audio  AudioConfig  `yaml:"audio"`
	Seed   SeedConfig   `yaml:"seed"`
}

// ServerConfig holds the control API and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the control API (e.g. "127.0.0.1:8089").
	// Empty disables the API.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Changes are applied without restart.
	LogLevel LogLevel `yaml:"log_level"`
}

// LiveConfig describes the Gemini Live endpoint and the model's behaviour.
type LiveConfig struct {
	// APIKey authenticates against the endpoint. Usually supplied through
	// the GEMINI_API_KEY environment variable rather than the file.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the WebSocket root. Empty uses the public endpoint.
	BaseURL string `yaml:"base_url"`

	Model              string   `yaml:"model"`
	Voice              string   `yaml:"voice"`
	ResponseModalities []string `yaml:"response_modalities"`

	// AwaitSetupAck holds sessions in connecting until setupComplete
	// arrives. Defaults to true.
	AwaitSetupAck *bool `yaml:"await_setup_ack"`

	DialTimeout time.Duration `yaml:"dial_timeout"`

	// Keepalive is the ping interval on an open session. A ping left
	// unanswered ends the session with a transport error.
	Keepalive time.Duration `yaml:"keepalive"`

	// WriteTimeout bounds a single outbound frame. A peer that stops
	// reading for longer ends the session.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// SendQueue is the number of outbound messages buffered ahead of the
	// socket. Microphone chunks beyond it are dropped and counted.
	SendQueue int `yaml:"send_queue"`

	// InstructionTemplate and GreetingTemplate are text/template sources
	// executed with the session seed. Empty selects the built-in prompts.
	InstructionTemplate string `yaml:"instruction_template"`
	GreetingTemplate    string `yaml:"greeting_template"`
}

// AwaitsSetupAck reports the effective value of AwaitSetupAck.
func (l LiveConfig) AwaitsSetupAck() bool {
	return l.AwaitSetupAck == nil || *l.AwaitSetupAck
}

// AudioConfig holds device and scheduling settings.
type AudioConfig struct {
	// SampleRate is the session rate for both capture and playback.
	SampleRate int `yaml:"sample_rate"`

	// FramesPerBuffer is the capture frame size in samples.
	FramesPerBuffer int `yaml:"frames_per_buffer"`

	EchoCancellation *bool `yaml:"echo_cancellation"`
	NoiseSuppression *bool `yaml:"noise_suppression"`

	OutputBackend OutputBackend `yaml:"output_backend"`

	// PlaybackLead is how far ahead of the device clock frames are written.
	PlaybackLead time.Duration `yaml:"playback_lead"`
	PlaybackTick time.Duration `yaml:"playback_tick"`

	// CaptureBuffer is the number of frames queued between the device
	// callback and the session before frames are dropped.
	CaptureBuffer int `yaml:"capture_buffer"`
}

// SeedConfig selects and configures the session seed source.
type SeedConfig struct {
	Source SeedSource `yaml:"source"`

	// Path is the matrix document read by the file source.
	Path string `yaml:"path"`

	// PostgresDSN and TopicID configure the postgres source.
	PostgresDSN string `yaml:"postgres_dsn"`
	TopicID     string `yaml:"topic_id"`

	// Topic, Summary and KeyPoints are used by the static source.
	Topic     string   `yaml:"topic"`
	Summary   string   `yaml:"summary"`
	KeyPoints []string `yaml:"key_points"`

	// MaxKeyPoints caps the key points passed into a session.
	MaxKeyPoints int `yaml:"max_key_points"`
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr      = "127.0.0.1:8089"
	DefaultModel           = "gemini-2.0-flash-live-001"
	DefaultVoice           = "Puck"
	DefaultSampleRate      = 16000
	DefaultFramesPerBuffer = 1024
	DefaultCaptureBuffer   = 32
	DefaultDialTimeout     = 10 * time.Second
	DefaultKeepalive       = transport.DefaultKeepalive
	DefaultWriteTimeout    = transport.DefaultWriteTimeout
	DefaultSendQueue       = transport.DefaultSendQueue
	DefaultPlaybackLead    = 50 * time.Millisecond
	DefaultPlaybackTick    = 10 * time.Millisecond
	DefaultMaxKeyPoints    = 5
)

// KnownVoices lists the prebuilt voices the endpoint is known to offer.
// Other names are accepted with a warning.
var KnownVoices = []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck"}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Live.Model == "" {
		cfg.Live.Model = DefaultModel
	}
	if cfg.Live.Voice == "" {
		cfg.Live.Voice = DefaultVoice
	}
	if len(cfg.Live.ResponseModalities) == 0 {
		cfg.Live.ResponseModalities = []string{"audio"}
	}
	if cfg.Live.DialTimeout <= 0 {
		cfg.Live.DialTimeout = DefaultDialTimeout
	}
	if cfg.Live.Keepalive == 0 {
		cfg.Live.Keepalive = DefaultKeepalive
	}
	if cfg.Live.WriteTimeout == 0 {
		cfg.Live.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Live.SendQueue == 0 {
		cfg.Live.SendQueue = DefaultSendQueue
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.FramesPerBuffer == 0 {
		cfg.Audio.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if cfg.Audio.EchoCancellation == nil {
		cfg.Audio.EchoCancellation = ptr(true)
	}
	if cfg.Audio.NoiseSuppression == nil {
		cfg.Audio.NoiseSuppression = ptr(true)
	}
	if cfg.Audio.OutputBackend == "" {
		cfg.Audio.OutputBackend = OutputPortAudio
	}
	if cfg.Audio.PlaybackLead == 0 {
		cfg.Audio.PlaybackLead = DefaultPlaybackLead
	}
	if cfg.Audio.PlaybackTick == 0 {
		cfg.Audio.PlaybackTick = DefaultPlaybackTick
	}
	if cfg.Audio.CaptureBuffer == 0 {
		cfg.Audio.CaptureBuffer = DefaultCaptureBuffer
	}
	if cfg.Seed.Source == "" {
		cfg.Seed.Source = SeedStatic
	}
	if cfg.Seed.MaxKeyPoints == 0 {
		cfg.Seed.MaxKeyPoints = DefaultMaxKeyPoints
	}
}

func ptr[T any](v T) *T { return &v }
