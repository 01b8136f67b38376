package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alakbarr/Interview-Matrix/internal/observe"
	"github.com/alakbarr/Interview-Matrix/pkg/audio"
)

// ErrOutputUnavailable is returned when the output device cannot be opened.
var ErrOutputUnavailable = errors.New("playback: output device unavailable")

const (
	defaultLead = 50 * time.Millisecond
	defaultTick = 10 * time.Millisecond
)

// Config controls a [Player].
type Config struct {
	// SampleRate of the output stream in Hz.
	SampleRate int

	// Lead is how far ahead of the clock a frame is handed to the device.
	Lead time.Duration

	// Tick is the pump interval.
	Tick time.Duration
}

// Option is a functional option for [Open] and [NewPlayer].
type Option func(*Player)

// WithMetrics records playback counters on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Player) { p.metrics = m }
}

// Player owns one output stream for the lifetime of a session and pumps due
// frames from its [Scheduler] into it.
type Player struct {
	out     audio.OutputStream
	sched   *Scheduler
	cfg     Config
	metrics *observe.Metrics

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	warnWrite sync.Once
}

// Open opens a mono output stream on dev and starts a [Player] on it. Open
// failures wrap [ErrOutputUnavailable].
func Open(dev audio.OutputDevice, cfg Config, opts ...Option) (*Player, error) {
	out, err := dev.OpenOutput(audio.OutputConfig{SampleRate: cfg.SampleRate, Channels: 1})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOutputUnavailable, err)
	}
	return NewPlayer(out, cfg, opts...), nil
}

// NewPlayer starts pumping frames into out. The stream's clock drives the
// schedule.
func NewPlayer(out audio.OutputStream, cfg Config, opts ...Option) *Player {
	if cfg.Lead <= 0 {
		cfg.Lead = defaultLead
	}
	if cfg.Tick <= 0 {
		cfg.Tick = defaultTick
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		out:    out,
		sched:  NewScheduler(out),
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	go p.pump()
	return p
}

// Enqueue schedules frame behind everything already queued.
func (p *Player) Enqueue(frame audio.AudioFrame) Entry {
	e := p.sched.Enqueue(frame)
	if p.metrics != nil {
		p.metrics.FramesEnqueued.Add(p.ctx, 1)
	}
	return e
}

// Flush discards frames that have not reached the device yet and rewinds the
// schedule. Audio already handed to the device finishes playing.
func (p *Player) Flush() int {
	n := p.sched.Reset()
	if n > 0 && p.metrics != nil {
		p.metrics.FramesDiscarded.Add(p.ctx, int64(n))
	}
	return n
}

// Pending returns how many frames are waiting for their start time.
func (p *Player) Pending() int {
	return p.sched.Pending()
}

// Scheduler exposes the underlying schedule.
func (p *Player) Scheduler() *Scheduler {
	return p.sched
}

// Close stops the pump, discards the queue, resets the schedule and closes
// the output stream so nothing further is heard. Idempotent.
func (p *Player) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.done
		if n := p.sched.Reset(); n > 0 {
			slog.Debug("playback: discarded pending frames", "frames", n)
			if p.metrics != nil {
				p.metrics.FramesDiscarded.Add(context.Background(), int64(n))
			}
		}
		p.closeErr = p.out.Close()
	})
	return p.closeErr
}

func (p *Player) pump() {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.writeDue()
		}
	}
}

func (p *Player) writeDue() {
	for _, e := range p.sched.PopDue(p.out.Now() + p.cfg.Lead) {
		if p.ctx.Err() != nil {
			return
		}
		if err := p.out.Write(e.Frame.Data); err != nil {
			p.warnWrite.Do(func() {
				slog.Warn("playback: output write failed", "seq", e.Seq, "err", err)
			})
			continue
		}
		if p.metrics != nil {
			p.metrics.FramesPlayed.Add(p.ctx, 1)
		}
	}
}
