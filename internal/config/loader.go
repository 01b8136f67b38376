package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/alakbarr/Interview-Matrix/internal/seed"
)

// Load reads the YAML configuration file at path, overlays environment
// variables (see [ApplyEnv]) and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := parse(f, true)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. The environment is not consulted, which keeps tests
// hermetic.
func LoadFromReader(r io.Reader) (*Config, error) {
	return parse(r, false)
}

func parse(r io.Reader, withEnv bool) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if withEnv {
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envOverlay lists the environment variables that override file values.
// Nil fields were not set.
type envOverlay struct {
	ListenAddr  *string `envconfig:"MATRIXVOICE_LISTEN_ADDR"`
	LogLevel    *string `envconfig:"MATRIXVOICE_LOG_LEVEL"`
	APIKey      *string `envconfig:"GEMINI_API_KEY"`
	BaseURL     *string `envconfig:"GEMINI_BASE_URL"`
	Model       *string `envconfig:"GEMINI_MODEL"`
	Voice       *string `envconfig:"GEMINI_VOICE"`
	SeedSource  *string `envconfig:"MATRIXVOICE_SEED_SOURCE"`
	SeedPath    *string `envconfig:"MATRIXVOICE_SEED_PATH"`
	PostgresDSN *string `envconfig:"MATRIXVOICE_POSTGRES_DSN"`
	TopicID     *string `envconfig:"MATRIXVOICE_TOPIC_ID"`
}

// ApplyEnv overrides cfg with any of the following environment variables
// that are set: MATRIXVOICE_LISTEN_ADDR, MATRIXVOICE_LOG_LEVEL,
// GEMINI_API_KEY, GEMINI_BASE_URL, GEMINI_MODEL, GEMINI_VOICE,
// MATRIXVOICE_SEED_SOURCE, MATRIXVOICE_SEED_PATH, MATRIXVOICE_POSTGRES_DSN
// and MATRIXVOICE_TOPIC_ID.
func ApplyEnv(cfg *Config) error {
	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.Server.ListenAddr, env.ListenAddr)
	if env.LogLevel != nil {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(*env.LogLevel))
	}
	set(&cfg.Live.APIKey, env.APIKey)
	set(&cfg.Live.BaseURL, env.BaseURL)
	set(&cfg.Live.Model, env.Model)
	set(&cfg.Live.Voice, env.Voice)
	if env.SeedSource != nil {
		cfg.Seed.Source = SeedSource(*env.SeedSource)
	}
	set(&cfg.Seed.Path, env.SeedPath)
	set(&cfg.Seed.PostgresDSN, env.PostgresDSN)
	set(&cfg.Seed.TopicID, env.TopicID)
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Live
	if cfg.Live.APIKey == "" {
		slog.Warn("live.api_key is empty; set GEMINI_API_KEY or sessions will be rejected by the endpoint")
	}
	if cfg.Live.Voice != "" && !slices.Contains(KnownVoices, cfg.Live.Voice) {
		slog.Warn("unknown voice name; may be a typo or a newly released voice",
			"voice", cfg.Live.Voice,
			"known", KnownVoices,
		)
	}
	for i, m := range cfg.Live.ResponseModalities {
		if m != "audio" && m != "text" {
			errs = append(errs, fmt.Errorf("live.response_modalities[%d] %q is invalid; valid values: audio, text", i, m))
		}
	}
	if len(cfg.Live.ResponseModalities) > 0 && !slices.Contains(cfg.Live.ResponseModalities, "audio") {
		errs = append(errs, errors.New("live.response_modalities must include audio"))
	}
	if cfg.Live.DialTimeout < 0 {
		errs = append(errs, fmt.Errorf("live.dial_timeout %s must not be negative", cfg.Live.DialTimeout))
	}
	if cfg.Live.Keepalive < 0 {
		errs = append(errs, fmt.Errorf("live.keepalive %s must not be negative", cfg.Live.Keepalive))
	}
	if cfg.Live.WriteTimeout < 0 {
		errs = append(errs, fmt.Errorf("live.write_timeout %s must not be negative", cfg.Live.WriteTimeout))
	}
	if cfg.Live.SendQueue < 0 {
		errs = append(errs, fmt.Errorf("live.send_queue %d must not be negative", cfg.Live.SendQueue))
	}
	if _, err := seed.NewPrompter(cfg.Live.InstructionTemplate, cfg.Live.GreetingTemplate); err != nil {
		errs = append(errs, fmt.Errorf("live prompt templates: %w", err))
	}

	// Audio
	if cfg.Audio.SampleRate != 0 && (cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 48000) {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 48000]", cfg.Audio.SampleRate))
	}
	if cfg.Audio.FramesPerBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d must not be negative", cfg.Audio.FramesPerBuffer))
	}
	if cfg.Audio.CaptureBuffer < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_buffer %d must not be negative", cfg.Audio.CaptureBuffer))
	}
	if cfg.Audio.OutputBackend != "" && !cfg.Audio.OutputBackend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.output_backend %q is invalid; valid values: portaudio, oto", cfg.Audio.OutputBackend))
	}
	if cfg.Audio.PlaybackLead < 0 || cfg.Audio.PlaybackTick < 0 {
		errs = append(errs, errors.New("audio.playback_lead and audio.playback_tick must not be negative"))
	}

	// Seed
	switch cfg.Seed.Source {
	case "", SeedStatic:
	case SeedFile:
		if cfg.Seed.Path == "" {
			errs = append(errs, errors.New("seed.path is required when seed.source is file"))
		}
	case SeedPostgres:
		if cfg.Seed.PostgresDSN == "" {
			errs = append(errs, errors.New("seed.postgres_dsn is required when seed.source is postgres"))
		}
		if cfg.Seed.TopicID == "" {
			errs = append(errs, errors.New("seed.topic_id is required when seed.source is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("seed.source %q is invalid; valid values: static, file, postgres", cfg.Seed.Source))
	}
	if cfg.Seed.MaxKeyPoints < 0 {
		errs = append(errs, fmt.Errorf("seed.max_key_points %d must not be negative", cfg.Seed.MaxKeyPoints))
	}

	return errors.Join(errs...)
}
