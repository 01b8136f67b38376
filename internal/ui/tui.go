package ui

import (
	"context"
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alakbarr/Interview-Matrix/internal/seed"
	"github.com/alakbarr/Interview-Matrix/internal/voice"
)

// statusBuffer is how many status changes may queue before the screen
// starts skipping them.
const statusBuffer = 64

// Program wraps the bubbletea program that renders [Model].
type Program struct {
	p        *tea.Program
	statuses chan voice.Status
}

// New creates a program for the status screen. opts are passed to
// [tea.NewProgram] after the defaults.
func New(s seed.Seed, toggle ToggleFunc, opts ...tea.ProgramOption) *Program {
	all := append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return &Program{
		p:        tea.NewProgram(NewModel(s, toggle), all...),
		statuses: make(chan voice.Status, statusBuffer),
	}
}

// Observe queues a controller status for the screen. It has the signature
// of a voice observer and does not block.
func (p *Program) Observe(s voice.Status) {
	select {
	case p.statuses <- s:
	default:
		slog.Debug("ui: status dropped", "status", s.Kind)
	}
}

// Run blocks until the user quits or ctx is cancelled.
func (p *Program) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(ctx, p.p.Quit)
	defer stop()

	// Statuses are forwarded in order by a single goroutine.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-p.statuses:
				p.p.Send(StatusMsg(s))
			}
		}
	}()

	if _, err := p.p.Run(); err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}
