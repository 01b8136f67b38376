package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alakbarr/Interview-Matrix/internal/config"
	"github.com/alakbarr/Interview-Matrix/internal/resilience"
	"github.com/alakbarr/Interview-Matrix/internal/seed"
	"github.com/alakbarr/Interview-Matrix/internal/ui"
	"github.com/alakbarr/Interview-Matrix/internal/voice"
	"github.com/alakbarr/Interview-Matrix/pkg/audio"
	"github.com/alakbarr/Interview-Matrix/pkg/audio/oto"
	"github.com/alakbarr/Interview-Matrix/pkg/audio/portaudio"
)

// openDevices picks the capture and playback backends. Capture always uses
// PortAudio.
func openDevices(output config.OutputBackend) (voice.Devices, error) {
	in, err := portaudio.New()
	if err != nil {
		return voice.Devices{}, fmt.Errorf("portaudio input: %w (build with -tags portaudio)", err)
	}
	var out audio.OutputDevice = in
	if output == config.OutputOto {
		o, err := oto.New()
		if err != nil {
			return voice.Devices{}, fmt.Errorf("oto output: %w (build with -tags oto)", err)
		}
		out = o
	}
	return voice.Devices{Input: in, Output: out}, nil
}

// seedHolder is the [seed.Source] handed to the API and the screen. The
// underlying source can be swapped on config reload.
type seedHolder struct {
	mu   sync.RWMutex
	src  seed.Source
	pool *pgxpool.Pool
	dsn  string
}

var _ seed.Source = (*seedHolder)(nil)

func newSeedHolder(ctx context.Context, cfg *config.Config) (*seedHolder, error) {
	h := &seedHolder{}
	if err := h.Reload(ctx, cfg); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Load implements [seed.Source].
func (h *seedHolder) Load(ctx context.Context) (seed.Seed, error) {
	h.mu.RLock()
	src := h.src
	h.mu.RUnlock()
	return src.Load(ctx)
}

// Preview loads the current seed for display. Failures are logged and give
// the zero seed.
func (h *seedHolder) Preview(ctx context.Context) seed.Seed {
	s, err := h.Load(ctx)
	if err != nil {
		slog.Warn("seed: preview failed", "err", err)
		return seed.Seed{}
	}
	return s
}

// Reload switches to the source described by cfg. A PostgreSQL pool is
// opened once; a different DSN requires a restart.
func (h *seedHolder) Reload(ctx context.Context, cfg *config.Config) error {
	var src seed.Source
	switch cfg.Seed.Source {
	case config.SeedFile:
		src = withFallback(cfg, "file", &seed.FileSource{Path: cfg.Seed.Path})
	case config.SeedPostgres:
		pool, err := h.postgres(ctx, cfg.Seed.PostgresDSN)
		if err != nil {
			return err
		}
		src = withFallback(cfg, "postgres", seed.NewPostgresStore(pool, cfg.Seed.TopicID))
	default:
		src = seed.Static(cfg.StaticSeed())
	}

	h.mu.Lock()
	h.src = src
	h.mu.Unlock()
	slog.Info("seed source ready", "source", cfg.Seed.Source)
	return nil
}

// withFallback guards src with a circuit breaker. When the config also
// carries an inline topic, that seed is used while src is failing.
func withFallback(cfg *config.Config, name string, src seed.Source) seed.Source {
	f := seed.NewFallback(name, src, resilience.Config{})
	if cfg.Seed.Topic != "" {
		f.Add("static", seed.Static(cfg.StaticSeed()))
	}
	return f
}

func (h *seedHolder) postgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	h.mu.RLock()
	pool, cur := h.pool, h.dsn
	h.mu.RUnlock()
	if pool != nil {
		if cur != dsn {
			return nil, errors.New("seed: postgres dsn changed, restart to apply")
		}
		return pool, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("seed: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("seed: ping postgres: %w", err)
	}
	if err := seed.NewPostgresStore(pool, "").Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	h.mu.Lock()
	h.pool, h.dsn = pool, dsn
	h.mu.Unlock()
	return pool, nil
}

// Close releases the PostgreSQL pool, if any.
func (h *seedHolder) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pool != nil {
		h.pool.Close()
		h.pool = nil
	}
}

// importSeed stores the matrix document at path in PostgreSQL under
// seed.topic_id.
func importSeed(ctx context.Context, cfg *config.Config, path string) error {
	if cfg.Seed.PostgresDSN == "" || cfg.Seed.TopicID == "" {
		return errors.New("seed import needs seed.postgres_dsn and seed.topic_id")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed import: %w", err)
	}
	m, err := seed.ParseMatrix(data)
	if err != nil {
		return fmt.Errorf("seed import: %w", err)
	}

	h := &seedHolder{}
	defer h.Close()
	pool, err := h.postgres(ctx, cfg.Seed.PostgresDSN)
	if err != nil {
		return err
	}
	if err := seed.NewPostgresStore(pool, cfg.Seed.TopicID).Put(ctx, cfg.Seed.TopicID, m); err != nil {
		return err
	}
	slog.Info("seed imported", "topic_id", cfg.Seed.TopicID, "topic", m.Topic, "rows", len(m.Rows))
	fmt.Printf("imported %q as %s\n", m.Topic, cfg.Seed.TopicID)
	return nil
}

// sessionDriver is the part of [voice.Controller] the keyboard toggle uses.
type sessionDriver interface {
	State() voice.State
	Start(s seed.Seed)
	Stop()
}

// newToggle returns the TUI toggle. The direction is decided from the state
// read here and sent as an explicit Stop or Start, so a session that changed
// state in between is left alone instead of being flipped back.
func newToggle(ctx context.Context, ctrl sessionDriver, seeds seed.Source, maxKeyPoints int) ui.ToggleFunc {
	return func() (seed.Seed, error) {
		if ctrl.State() != voice.StateIdle {
			ctrl.Stop()
			return seed.Seed{}, nil
		}
		s, err := seeds.Load(ctx)
		if err != nil {
			return seed.Seed{}, err
		}
		ctrl.Start(s)
		return s.Normalize(maxKeyPoints), nil
	}
}
