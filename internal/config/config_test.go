package config_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alakbarr/Interview-Matrix/internal/config"
	"github.com/alakbarr/Interview-Matrix/internal/transport"
	"github.com/alakbarr/Interview-Matrix/internal/transport/transporttest"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

live:
  api_key: test-key
  model: gemini-2.0-flash-live-001
  voice: Kore
  response_modalities: [audio]
  await_setup_ack: false
  dial_timeout: 3s
  keepalive: 15s
  send_queue: 64

audio:
  sample_rate: 16000
  frames_per_buffer: 512
  echo_cancellation: false
  output_backend: oto
  playback_lead: 80ms

seed:
  source: static
  topic: Distributed systems
  summary: Consensus and replication.
  key_points:
    - Raft elects a leader
    - Quorums overlap
  max_key_points: 3
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Live.Voice != "Kore" {
		t.Errorf("live.voice: got %q, want Kore", cfg.Live.Voice)
	}
	if cfg.Live.AwaitsSetupAck() {
		t.Error("live.await_setup_ack: got true, want false")
	}
	if cfg.Live.DialTimeout != 3*time.Second {
		t.Errorf("live.dial_timeout: got %s, want 3s", cfg.Live.DialTimeout)
	}
	if cfg.Live.Keepalive != 15*time.Second {
		t.Errorf("live.keepalive: got %s, want 15s", cfg.Live.Keepalive)
	}
	if cfg.Live.SendQueue != 64 {
		t.Errorf("live.send_queue: got %d, want 64", cfg.Live.SendQueue)
	}
	if cfg.Live.WriteTimeout != config.DefaultWriteTimeout {
		t.Errorf("live.write_timeout: got %s, want default", cfg.Live.WriteTimeout)
	}
	if cfg.Audio.FramesPerBuffer != 512 {
		t.Errorf("audio.frames_per_buffer: got %d, want 512", cfg.Audio.FramesPerBuffer)
	}
	if *cfg.Audio.EchoCancellation {
		t.Error("audio.echo_cancellation: got true, want false")
	}
	if !*cfg.Audio.NoiseSuppression {
		t.Error("audio.noise_suppression should default to true")
	}
	if cfg.Audio.OutputBackend != config.OutputOto {
		t.Errorf("audio.output_backend: got %q, want oto", cfg.Audio.OutputBackend)
	}
	if cfg.Audio.PlaybackLead != 80*time.Millisecond {
		t.Errorf("audio.playback_lead: got %s, want 80ms", cfg.Audio.PlaybackLead)
	}
	if len(cfg.Seed.KeyPoints) != 2 {
		t.Fatalf("seed.key_points: got %d, want 2", len(cfg.Seed.KeyPoints))
	}
}

func TestLoadFromReader_EmptyAppliesDefaults(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Live.Model != config.DefaultModel {
		t.Errorf("model: got %q, want %q", cfg.Live.Model, config.DefaultModel)
	}
	if cfg.Live.Voice != config.DefaultVoice {
		t.Errorf("voice: got %q, want %q", cfg.Live.Voice, config.DefaultVoice)
	}
	if !cfg.Live.AwaitsSetupAck() {
		t.Error("await_setup_ack should default to true")
	}
	if cfg.Live.DialTimeout != config.DefaultDialTimeout {
		t.Errorf("dial_timeout: got %s", cfg.Live.DialTimeout)
	}
	if cfg.Live.Keepalive != config.DefaultKeepalive || cfg.Live.WriteTimeout != config.DefaultWriteTimeout || cfg.Live.SendQueue != config.DefaultSendQueue {
		t.Errorf("transport defaults: keepalive %s, write_timeout %s, send_queue %d",
			cfg.Live.Keepalive, cfg.Live.WriteTimeout, cfg.Live.SendQueue)
	}
	if cfg.Audio.SampleRate != config.DefaultSampleRate {
		t.Errorf("sample_rate: got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.OutputBackend != config.OutputPortAudio {
		t.Errorf("output_backend: got %q", cfg.Audio.OutputBackend)
	}
	if cfg.Seed.Source != config.SeedStatic {
		t.Errorf("seed.source: got %q", cfg.Seed.Source)
	}
	if got := cfg.Live.ResponseModalities; len(got) != 1 || got[0] != "audio" {
		t.Errorf("response_modalities: got %v", got)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("live:\n  temperature: 0.5\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_InvalidOutputBackend(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("audio:\n  output_backend: alsa\n"))
	if err == nil || !strings.Contains(err.Error(), "output_backend") {
		t.Fatalf("expected output_backend error, got %v", err)
	}
}

func TestValidate_SampleRateOutOfRange(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("audio:\n  sample_rate: 96000\n"))
	if err == nil || !strings.Contains(err.Error(), "sample_rate") {
		t.Fatalf("expected sample_rate error, got %v", err)
	}
}

func TestValidate_ModalitiesMustIncludeAudio(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("live:\n  response_modalities: [text]\n"))
	if err == nil || !strings.Contains(err.Error(), "audio") {
		t.Fatalf("expected modalities error, got %v", err)
	}
}

func TestValidate_InvalidModality(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("live:\n  response_modalities: [audio, video]\n"))
	if err == nil || !strings.Contains(err.Error(), "video") {
		t.Fatalf("expected modality error, got %v", err)
	}
}

func TestValidate_BadTemplate(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("live:\n  greeting_template: \"Hi {{.Topic\"\n"))
	if err == nil || !strings.Contains(err.Error(), "template") {
		t.Fatalf("expected template error, got %v", err)
	}
}

func TestValidate_NegativeTransportSettings(t *testing.T) {
	for _, key := range []string{"keepalive: -1s", "write_timeout: -1s", "send_queue: -1"} {
		_, err := config.LoadFromReader(strings.NewReader("live:\n  " + key + "\n"))
		name := strings.SplitN(key, ":", 2)[0]
		if err == nil || !strings.Contains(err.Error(), "live."+name) {
			t.Errorf("%s: expected validation error, got %v", key, err)
		}
	}
}

func TestLogLevel_IsValid(t *testing.T) {
	t.Parallel()
	for _, l := range []config.LogLevel{config.LogDebug, config.LogInfo, config.LogWarn, config.LogError} {
		if !l.IsValid() {
			t.Errorf("%q should be valid", l)
		}
	}
	if config.LogLevel("trace").IsValid() {
		t.Error("trace should be invalid")
	}
}

// ── SessionConfig ─────────────────────────────────────────────────────────────

func TestSessionConfig(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	vc, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("SessionConfig: %v", err)
	}
	if vc.APIKey != "test-key" || vc.Voice != "Kore" {
		t.Errorf("live fields not copied: %+v", vc)
	}
	if vc.AwaitSetupAck {
		t.Error("AwaitSetupAck: got true, want false")
	}
	if vc.Prompter == nil {
		t.Fatal("Prompter is nil")
	}
	if vc.MaxKeyPoints != 3 {
		t.Errorf("MaxKeyPoints: got %d, want 3", vc.MaxKeyPoints)
	}
	if vc.Capture.FramesPerBuffer != 512 || vc.Capture.EchoCancellation || !vc.Capture.NoiseSuppression {
		t.Errorf("capture config: %+v", vc.Capture)
	}
	if vc.Playback.SampleRate != 16000 || vc.Playback.Lead != 80*time.Millisecond {
		t.Errorf("playback config: %+v", vc.Playback)
	}

	greeting, err := vc.Prompter.Greeting(cfg.StaticSeed())
	if err != nil {
		t.Fatalf("Greeting: %v", err)
	}
	if !strings.Contains(greeting, "Distributed systems") {
		t.Errorf("greeting should name the topic, got %q", greeting)
	}
}

// The keepalive under live: must reach the connection: a peer that never
// answers pings is dropped within the configured interval.
func TestDialOptions_ApplyToConnection(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := transporttest.NewServer(t, func(*transporttest.Peer) { <-release })
	t.Cleanup(func() { close(release) })

	cfg := &config.Config{Live: config.LiveConfig{Keepalive: 50 * time.Millisecond}}
	config.ApplyDefaults(cfg)

	closed := make(chan error, 1)
	conn, err := transport.Open(context.Background(), srv.URL(), transport.Handlers{
		OnEnvelope: func(transport.Envelope) {},
		OnClose:    func(err error) { closed <- err },
	}, cfg.DialOptions()...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	select {
	case err := <-closed:
		if err == nil {
			t.Error("OnClose err = nil, want keepalive failure")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("configured keepalive was not applied")
	}
}

func TestStaticSeed_CopiesKeyPoints(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Seed: config.SeedConfig{Topic: "Go", KeyPoints: []string{"a"}}}
	s := cfg.StaticSeed()
	s.KeyPoints[0] = "changed"
	if cfg.Seed.KeyPoints[0] != "a" {
		t.Error("StaticSeed must not alias the config slice")
	}
}
