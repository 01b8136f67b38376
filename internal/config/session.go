package config

import (
	"fmt"
	"slices"

	"github.com/alakbarr/Interview-Matrix/internal/capture"
	"github.com/alakbarr/Interview-Matrix/internal/playback"
	"github.com/alakbarr/Interview-Matrix/internal/seed"
	"github.com/alakbarr/Interview-Matrix/internal/transport"
	"github.com/alakbarr/Interview-Matrix/internal/voice"
)

// SessionConfig translates cfg into the settings of the session controller.
// cfg is expected to have passed through [ApplyDefaults].
func (cfg *Config) SessionConfig() (voice.Config, error) {
	prompter, err := seed.NewPrompter(cfg.Live.InstructionTemplate, cfg.Live.GreetingTemplate)
	if err != nil {
		return voice.Config{}, fmt.Errorf("config: session: %w", err)
	}
	return voice.Config{
		APIKey:             cfg.Live.APIKey,
		BaseURL:            cfg.Live.BaseURL,
		Model:              cfg.Live.Model,
		Voice:              cfg.Live.Voice,
		ResponseModalities: slices.Clone(cfg.Live.ResponseModalities),
		AwaitSetupAck:      cfg.Live.AwaitsSetupAck(),
		DialTimeout:        cfg.Live.DialTimeout,
		Transport:          cfg.DialOptions(),
		Prompter:           prompter,
		MaxKeyPoints:       cfg.Seed.MaxKeyPoints,
		Capture: capture.Config{
			SampleRate:       cfg.Audio.SampleRate,
			FramesPerBuffer:  cfg.Audio.FramesPerBuffer,
			EchoCancellation: derefOr(cfg.Audio.EchoCancellation, true),
			NoiseSuppression: derefOr(cfg.Audio.NoiseSuppression, true),
			Buffer:           cfg.Audio.CaptureBuffer,
		},
		Playback: playback.Config{
			SampleRate: cfg.Audio.SampleRate,
			Lead:       cfg.Audio.PlaybackLead,
			Tick:       cfg.Audio.PlaybackTick,
		},
	}, nil
}

// DialOptions returns the transport settings under live:.
func (cfg *Config) DialOptions() []transport.Option {
	return []transport.Option{
		transport.WithKeepalive(cfg.Live.Keepalive),
		transport.WithWriteTimeout(cfg.Live.WriteTimeout),
		transport.WithSendQueue(cfg.Live.SendQueue),
	}
}

// StaticSeed returns the seed written inline under seed:.
func (cfg *Config) StaticSeed() seed.Seed {
	return seed.Seed{
		Topic:     cfg.Seed.Topic,
		Summary:   cfg.Seed.Summary,
		KeyPoints: slices.Clone(cfg.Seed.KeyPoints),
	}
}

func derefOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
