// Package resilience guards calls to slow or flaky backends with a
// three-state circuit breaker (closed, open, half-open).
//
// A [Breaker] is safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrOpen] until the cool-down elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trials through. A failed trial
	// reopens the breaker; enough successful trials close it.
	StateHalfOpen
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero fields take their defaults.
type Config struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// CoolDown is how long the breaker stays open. Default: 30s.
	CoolDown time.Duration

	// Trials is the number of successful half-open calls needed to close.
	// Default: 1.
	Trials int
}

// Breaker trips after repeated failures so that callers fail fast instead
// of waiting on a backend that is down.
type Breaker struct {
	name        string
	maxFailures int
	coolDown    time.Duration
	trials      int
	now         func() time.Time

	mu           sync.Mutex
	state        State
	failures     int
	openedAt     time.Time
	inFlight     int
	trialSuccess int
}

// New creates a [Breaker].
func New(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.Trials <= 0 {
		cfg.Trials = 1
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		coolDown:    cfg.CoolDown,
		trials:      cfg.Trials,
		now:         time.Now,
	}
}

// Do runs fn unless the breaker is open. Errors caused by ctx ending are
// returned without being counted, since they say nothing about the backend.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.inFlight--
	}
	switch {
	case err == nil:
		b.success(trial)
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
	default:
		b.failure(trial)
	}
	return err
}

// admit decides whether a call may proceed and whether it is a trial.
func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.coolDown {
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		b.trialSuccess = 0
		slog.Info("resilience: breaker half-open", "name", b.name)
	}
	if b.state == StateHalfOpen {
		if b.inFlight >= b.trials {
			return false, ErrOpen
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

// failure must be called with b.mu held.
func (b *Breaker) failure(trial bool) {
	if trial {
		b.trip()
		slog.Warn("resilience: trial failed, breaker reopened", "name", b.name)
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.maxFailures {
		b.trip()
		slog.Warn("resilience: breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// success must be called with b.mu held.
func (b *Breaker) success(trial bool) {
	if !trial {
		b.failures = 0
		return
	}
	if b.state != StateHalfOpen {
		return
	}
	b.trialSuccess++
	if b.trialSuccess >= b.trials {
		b.state = StateClosed
		b.failures = 0
		slog.Info("resilience: breaker closed", "name", b.name)
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.trialSuccess = 0
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen]; the transition itself happens on the
// next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.coolDown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.trialSuccess = 0
}
