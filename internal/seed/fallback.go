package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alakbarr/Interview-Matrix/internal/resilience"
)

var _ Source = (*Fallback)(nil)

// ErrNoSource is returned by [Fallback.Load] when every source failed or
// was skipped by its breaker.
var ErrNoSource = errors.New("seed: no source available")

type fallbackEntry struct {
	name    string
	src     Source
	breaker *resilience.Breaker
}

// Fallback loads from the first healthy source in registration order. Each
// source has its own circuit breaker, so a database that is down is skipped
// quickly instead of stalling every session start.
type Fallback struct {
	cfg     resilience.Config
	entries []fallbackEntry
}

// NewFallback creates a Fallback with primary as its first source. cfg
// tunes the breaker created for each source; its Name is replaced by the
// source name.
func NewFallback(name string, primary Source, cfg resilience.Config) *Fallback {
	f := &Fallback{cfg: cfg}
	f.Add(name, primary)
	return f
}

// Add registers another source tried after the existing ones.
func (f *Fallback) Add(name string, src Source) {
	cfg := f.cfg
	cfg.Name = "seed:" + name
	f.entries = append(f.entries, fallbackEntry{name: name, src: src, breaker: resilience.New(cfg)})
}

// Load implements [Source].
func (f *Fallback) Load(ctx context.Context) (Seed, error) {
	var errs []error
	for _, e := range f.entries {
		var (
			s        Seed
			notFound error
		)
		err := e.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			s, err = e.src.Load(ctx)
			// A missing topic means the backend answered.
			if errors.Is(err, ErrTopicNotFound) {
				notFound = err
				return nil
			}
			return err
		})
		if notFound != nil {
			return Seed{}, notFound
		}
		if err == nil {
			return s, nil
		}
		if ctx.Err() != nil {
			return Seed{}, ctx.Err()
		}
		if errors.Is(err, resilience.ErrOpen) {
			slog.Debug("seed: source skipped, breaker open", "source", e.name)
		} else {
			slog.Warn("seed: source failed, trying next", "source", e.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
	}
	return Seed{}, fmt.Errorf("%w: %w", ErrNoSource, errors.Join(errs...))
}
