package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/alakbarr/Interview-Matrix/internal/capture"
	"github.com/alakbarr/Interview-Matrix/internal/observe"
	"github.com/alakbarr/Interview-Matrix/internal/playback"
	"github.com/alakbarr/Interview-Matrix/internal/seed"
	"github.com/alakbarr/Interview-Matrix/internal/transport"
	"github.com/alakbarr/Interview-Matrix/pkg/audio"
)

const (
	defaultDialTimeout = 10 * time.Second
	eventBuffer        = 256
)

// Devices are the audio endpoints a session acquires.
type Devices struct {
	Input  audio.InputDevice
	Output audio.OutputDevice
}

// Config describes the sessions a [Controller] starts. Changes made with
// [Controller.Reconfigure] apply from the next session on.
type Config struct {
	APIKey string

	// BaseURL defaults to [transport.DefaultBaseURL].
	BaseURL string

	Model              string
	Voice              string
	ResponseModalities []string

	// AwaitSetupAck holds the session in Connecting until the server's
	// setupComplete. When false the session goes Active as soon as the
	// greeting has been queued.
	AwaitSetupAck bool

	DialTimeout time.Duration

	// Transport tunes every connection the session opens: keepalive,
	// per-write timeout and outbound queue depth.
	Transport []transport.Option

	// Prompter renders the system instruction and greeting. Nil uses the
	// seed package defaults.
	Prompter *seed.Prompter

	// MaxKeyPoints caps the key points taken from the seed.
	MaxKeyPoints int

	Capture  capture.Config
	Playback playback.Config
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithObserver registers fn to receive every [Status] change. fn is called
// from the controller's loop and must not block.
func WithObserver(fn func(Status)) Option {
	return func(c *Controller) { c.observer = fn }
}

// WithMetrics records session and frame metrics on m. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller is the session state machine. All exported methods are safe for
// concurrent use; requests are processed in order by [Controller.Run].
type Controller struct {
	dev      Devices
	dialer   Dialer
	observer func(Status)
	metrics  *observe.Metrics

	events  chan event
	done    chan struct{}
	running atomic.Bool

	state atomic.Int32

	mu     sync.Mutex
	status Status

	// Owned by the loop.
	cfg      Config
	prompter *seed.Prompter
	runCtx   context.Context
	sess     *session
	lastGen  uint64
}

// New creates a controller. Call [Controller.Run] to start processing.
func New(dev Devices, dialer Dialer, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		dev:    dev,
		dialer: dialer,
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.applyConfig(cfg)
	return c
}

// ── Public API ────────────────────────────────────────────────────────────────

// Toggle starts a session seeded with s when idle and stops the current one
// otherwise.
func (c *Controller) Toggle(s seed.Seed) {
	c.request(toggleRequest{seed: s})
}

// Start starts a session seeded with s. It is a no-op unless the controller
// is idle when the request is processed.
func (c *Controller) Start(s seed.Seed) {
	c.request(startRequest{seed: s})
}

// Stop ends the current session immediately. It is a no-op while idle.
func (c *Controller) Stop() {
	c.request(stopRequest{})
}

// Reconfigure replaces the session config. A session already running keeps
// the settings it started with.
func (c *Controller) Reconfigure(cfg Config) {
	c.request(reconfigureRequest{cfg: cfg})
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Status returns the most recent status delivered to the observer.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SessionID returns the id of the current session, or "" when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State() == StateIdle {
		return ""
	}
	return c.status.SessionID
}

// Run processes requests until ctx ends, then tears down any open session.
// It returns nil on cancellation.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("voice: controller already running")
	}
	defer close(c.done)
	c.runCtx = ctx

	for {
		select {
		case <-ctx.Done():
			c.teardown(nil)
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// ── Events ────────────────────────────────────────────────────────────────────

type event interface{ isEvent() }

type (
	toggleRequest      struct{ seed seed.Seed }
	startRequest       struct{ seed seed.Seed }
	stopRequest        struct{}
	reconfigureRequest struct{ cfg Config }

	devicesReady struct {
		gen    uint64
		engine *capture.Engine
		player *playback.Player
		err    error
	}
	dialed struct {
		gen uint64
		ch  Channel
		err error
	}
	inbound struct {
		gen uint64
		env transport.Envelope
	}
	channelClosed struct {
		gen uint64
		err error
	}
	captured struct {
		gen   uint64
		frame audio.AudioFrame
	}
	captureFailed struct {
		gen uint64
		err error
	}
)

func (toggleRequest) isEvent()      {}
func (startRequest) isEvent()       {}
func (stopRequest) isEvent()        {}
func (reconfigureRequest) isEvent() {}
func (devicesReady) isEvent()       {}
func (dialed) isEvent()             {}
func (inbound) isEvent()            {}
func (channelClosed) isEvent()      {}
func (captured) isEvent()           {}
func (captureFailed) isEvent()      {}

// request posts a caller request. It gives up once Run has returned.
func (c *Controller) request(ev event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// post delivers an event from one of a session's goroutines. It reports
// false when the session ended first; the caller then owns any resource the
// event carried.
func (c *Controller) post(ctx context.Context, ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case toggleRequest:
		if c.sess == nil {
			c.start(ev.seed)
		} else {
			c.teardown(nil)
		}
	case startRequest:
		c.start(ev.seed)
	case stopRequest:
		c.teardown(nil)
	case reconfigureRequest:
		c.applyConfig(ev.cfg)
	case devicesReady:
		c.onDevicesReady(ev)
	case dialed:
		c.onDialed(ev)
	case inbound:
		c.onInbound(ev)
	case channelClosed:
		c.onChannelClosed(ev)
	case captured:
		c.onCaptured(ev)
	case captureFailed:
		if c.current(ev.gen) != nil {
			c.fail(fmt.Errorf("voice: capture: %w", ev.err))
		}
	}
}

// current returns the session for gen, or nil if gen is stale.
func (c *Controller) current(gen uint64) *session {
	if c.sess == nil || c.sess.gen != gen {
		return nil
	}
	return c.sess
}

func (c *Controller) applyConfig(cfg Config) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Capture.SampleRate <= 0 {
		cfg.Capture.SampleRate = audio.SessionSampleRate
	}
	if cfg.Playback.SampleRate <= 0 {
		cfg.Playback.SampleRate = audio.SessionSampleRate
	}
	prompter := cfg.Prompter
	if prompter == nil {
		// The built-in templates always parse.
		prompter, _ = seed.NewPrompter("", "")
	}
	c.cfg = cfg
	c.prompter = prompter
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func (c *Controller) start(s seed.Seed) {
	if c.sess != nil {
		slog.Debug("voice: start ignored", "state", c.State(), "session_id", c.sess.id)
		return
	}
	c.lastGen++
	sess := newSession(c.runCtx, c.lastGen, s.Normalize(c.cfg.MaxKeyPoints), c.cfg, c.prompter)
	c.sess = sess

	c.metrics.SessionsStarted.Add(sess.ctx, 1)
	c.metrics.ActiveSessions.Add(sess.ctx, 1)
	sess.log().Info("voice: session starting",
		"topic", sess.seed.Topic,
		"key_points", len(sess.seed.KeyPoints),
	)
	c.setState(StateConnecting)
	c.emit(Status{Kind: StatusConnecting, SessionID: sess.id})

	go c.acquireDevices(sess)
}

func (c *Controller) acquireDevices(sess *session) {
	engine := capture.New(c.dev.Input, sess.cfg.Capture, capture.WithMetrics(c.metrics))
	if err := engine.Open(sess.ctx); err != nil {
		c.post(sess.ctx, devicesReady{gen: sess.gen, err: err})
		return
	}
	player, err := playback.Open(c.dev.Output, sess.cfg.Playback, playback.WithMetrics(c.metrics))
	if err != nil {
		_ = engine.Stop()
		c.post(sess.ctx, devicesReady{gen: sess.gen, err: err})
		return
	}
	if !c.post(sess.ctx, devicesReady{gen: sess.gen, engine: engine, player: player}) {
		_ = engine.Stop()
		_ = player.Close()
	}
}

func (c *Controller) onDevicesReady(ev devicesReady) {
	sess := c.current(ev.gen)
	if sess == nil || c.State() != StateConnecting {
		ev.release()
		return
	}
	if ev.err != nil {
		c.fail(ev.err)
		return
	}
	sess.engine, sess.player = ev.engine, ev.player
	go c.dial(sess)
}

func (c *Controller) dial(sess *session) {
	ctx, cancel := context.WithTimeout(sess.ctx, sess.cfg.DialTimeout)
	defer cancel()

	gen := sess.gen
	url := transport.EndpointURL(sess.cfg.BaseURL, sess.cfg.APIKey)
	ch, err := c.dialer.Dial(ctx, url, transport.Handlers{
		OnEnvelope: func(env transport.Envelope) {
			c.post(sess.ctx, inbound{gen: gen, env: env})
		},
		OnClose: func(err error) {
			c.post(sess.ctx, channelClosed{gen: gen, err: err})
		},
	}, sess.cfg.Transport...)
	if err != nil {
		c.post(sess.ctx, dialed{gen: gen, err: fmt.Errorf("%w: %w", ErrTransport, err)})
		return
	}
	if !c.post(sess.ctx, dialed{gen: gen, ch: ch}) {
		_ = ch.Close()
	}
}

func (c *Controller) onDialed(ev dialed) {
	sess := c.current(ev.gen)
	if sess == nil || c.State() != StateConnecting {
		if ev.ch != nil {
			_ = ev.ch.Close()
		}
		return
	}
	if ev.err != nil {
		c.fail(ev.err)
		return
	}
	sess.ch = ev.ch

	if err := sess.sendOpening(); err != nil {
		c.fail(err)
		return
	}
	if !sess.cfg.AwaitSetupAck {
		c.activate(sess)
	}
}

func (c *Controller) activate(sess *session) {
	sess.activeAt = time.Now()
	c.metrics.SetupDuration.Record(sess.ctx, sess.activeAt.Sub(sess.startedAt).Seconds())
	c.setState(StateActive)

	gen, ctx := sess.gen, sess.ctx
	sess.engine.Start(
		func(f audio.AudioFrame) { c.post(ctx, captured{gen: gen, frame: f}) },
		func(err error) { c.post(ctx, captureFailed{gen: gen, err: err}) },
	)
	sess.log().Info("voice: session active")
	c.emit(Status{Kind: StatusListening, SessionID: sess.id})
}

func (c *Controller) onCaptured(ev captured) {
	sess := c.current(ev.gen)
	if sess == nil || c.State() != StateActive {
		c.metrics.RecordFramesDropped(context.Background(), "stale", 1)
		return
	}
	if err := sess.ch.Send(transport.NewAudioChunk(ev.frame)); err != nil {
		if errors.Is(err, transport.ErrSendQueueFull) {
			c.metrics.RecordFramesDropped(sess.ctx, "transport", 1)
			return
		}
		sess.log().Warn("voice: send audio chunk", "err", err)
		return
	}
	c.metrics.FramesSent.Add(sess.ctx, 1)
}

func (c *Controller) onInbound(ev inbound) {
	sess := c.current(ev.gen)
	if sess == nil {
		return
	}
	switch env := ev.env.(type) {
	case transport.SetupAck:
		if c.State() == StateConnecting {
			c.activate(sess)
		}
	case transport.ServerTurn:
		c.playTurn(sess, env)
	case transport.ServerError:
		c.metrics.ServerErrors.Add(sess.ctx, 1)
		sess.log().Warn("voice: server reported an error",
			"code", env.Code,
			"status", env.Status,
			"message", env.Message,
		)
	default:
		sess.log().Debug("voice: ignoring inbound envelope", "kind", ev.env.Kind())
	}
}

// playTurn enqueues every audio part of turn in order. Text parts are not
// played.
func (c *Controller) playTurn(sess *session, turn transport.ServerTurn) {
	if sess.player == nil {
		return
	}
	if turn.Interrupted {
		if n := sess.player.Flush(); n > 0 {
			sess.log().Debug("voice: playback interrupted", "discarded", n)
		}
	}
	for i, p := range turn.Parts {
		switch {
		case p.IsAudio():
			frame, reason, err := sess.decodePart(p)
			if err != nil {
				c.metrics.RecordDecodeError(sess.ctx, reason)
				sess.log().Warn("voice: discarding audio part", "index", i, "mime_type", p.MIMEType, "err", err)
				continue
			}
			sess.player.Enqueue(frame)
		case p.Text != "":
			sess.log().Debug("voice: model text", "text", p.Text)
		}
	}
}

func (c *Controller) onChannelClosed(ev channelClosed) {
	sess := c.current(ev.gen)
	if sess == nil {
		return
	}
	switch {
	case ev.err != nil:
		c.fail(fmt.Errorf("%w: %w", ErrTransport, ev.err))
	case c.State() == StateConnecting:
		c.fail(fmt.Errorf("%w: closed before setup completed", ErrTransport))
	default:
		sess.log().Info("voice: remote closed the session")
		c.teardown(nil)
	}
}

func (c *Controller) fail(err error) {
	if c.sess == nil {
		return
	}
	reason := failureReason(err)
	c.metrics.RecordSessionFailure(c.sess.ctx, reason)
	c.sess.log().Error("voice: session failed", "reason", reason, "err", err)
	c.teardown(err)
}

// teardown releases everything the session holds. Each step runs whether or
// not the previous one succeeded. With no session it does nothing.
func (c *Controller) teardown(cause error) {
	sess := c.sess
	if sess == nil {
		return
	}
	c.setState(StateClosing)
	c.sess = nil

	errs := sess.close()
	if len(errs) > 0 {
		sess.log().Warn("voice: teardown", "err", errors.Join(errs...))
	}

	c.metrics.ActiveSessions.Add(context.Background(), -1)
	if !sess.activeAt.IsZero() {
		c.metrics.SessionDuration.Record(context.Background(), time.Since(sess.activeAt).Seconds())
	}
	sess.endSpan(cause)
	sess.log().Info("voice: session closed")

	c.setState(StateIdle)
	if cause != nil {
		c.emit(Status{Kind: StatusError, Err: cause, SessionID: sess.id})
		return
	}
	c.emit(Status{Kind: StatusIdle, SessionID: sess.id})
}

func (c *Controller) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		slog.Debug("voice: state", "from", prev, "to", s)
	}
}

func (c *Controller) emit(st Status) {
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
	if c.observer != nil {
		c.observer(st)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrOutputUnavailable):
		return "output_unavailable"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, errPrompt):
		return "prompt"
	default:
		return "capture"
	}
}

func (ev devicesReady) release() {
	if ev.engine != nil {
		_ = ev.engine.Stop()
	}
	if ev.player != nil {
		_ = ev.player.Close()
	}
}

// ── Session ───────────────────────────────────────────────────────────────────

var errPrompt = errors.New("voice: render prompt")

// session is one voice interaction. Only the controller loop touches it.
type session struct {
	id        string
	gen       uint64
	seed      seed.Seed
	cfg       Config
	prompter  *seed.Prompter
	startedAt time.Time
	activeAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	span   trace.Span
	logger *slog.Logger

	engine *capture.Engine
	player *playback.Player
	ch     Channel
	conv   *audio.FormatConverter
}

func newSession(parent context.Context, gen uint64, s seed.Seed, cfg Config, p *seed.Prompter) *session {
	if parent == nil {
		parent = context.Background()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	ctx, span := observe.StartSessionSpan(ctx, id, s.Topic, cfg.Model)
	return &session{
		id:        id,
		gen:       gen,
		seed:      s,
		cfg:       cfg,
		prompter:  p,
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		span:      span,
		logger:    observe.Logger(ctx).With("session_id", id),
		conv:      &audio.FormatConverter{TargetRate: cfg.Playback.SampleRate},
	}
}

func (s *session) log() *slog.Logger { return s.logger }

// sendOpening queues the setup message followed by the greeting turn.
func (s *session) sendOpening() error {
	instruction, err := s.prompter.Instruction(s.seed)
	if err != nil {
		return fmt.Errorf("%w: %w", errPrompt, err)
	}
	greeting, err := s.prompter.Greeting(s.seed)
	if err != nil {
		return fmt.Errorf("%w: %w", errPrompt, err)
	}
	setup := transport.Setup{
		Model:              s.cfg.Model,
		Voice:              s.cfg.Voice,
		ResponseModalities: s.cfg.ResponseModalities,
		SystemInstruction:  instruction,
	}
	if err := s.ch.Send(setup); err != nil {
		return fmt.Errorf("%w: send setup: %w", ErrTransport, err)
	}
	turn := transport.ClientTurn{Role: "user", Text: greeting, TurnComplete: true}
	if err := s.ch.Send(turn); err != nil {
		return fmt.Errorf("%w: send greeting: %w", ErrTransport, err)
	}
	return nil
}

// decodePart turns an inline audio part into a playable frame at the session
// rate. reason labels the failure for metrics.
func (s *session) decodePart(p transport.Part) (frame audio.AudioFrame, reason string, err error) {
	pcm, err := audio.DecodeBase64(p.Data)
	if err != nil {
		return audio.AudioFrame{}, "base64", fmt.Errorf("%w: %w", ErrProtocolDecode, err)
	}
	if len(pcm) == 0 || len(pcm)%2 != 0 {
		return audio.AudioFrame{}, "pcm_alignment", fmt.Errorf("%w: %d byte payload is not whole PCM16 samples", ErrProtocolDecode, len(pcm))
	}
	rate := audio.ParseRate(p.MIMEType, s.cfg.Playback.SampleRate)
	frame = s.conv.Convert(audio.AudioFrame{Data: pcm, SampleRate: rate, Channels: 1})
	if len(frame.Data) == 0 {
		return audio.AudioFrame{}, "resample_empty", fmt.Errorf("%w: %d samples at %d Hz resample to nothing at %d Hz",
			ErrProtocolDecode, len(pcm)/2, rate, s.cfg.Playback.SampleRate)
	}
	return frame, "", nil
}

// close runs every release step and collects their errors. The seed is
// cleared last.
func (s *session) close() []error {
	s.cancel()

	var errs []error
	if s.engine != nil {
		if err := s.engine.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.ch != nil {
		if err := s.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("voice: close channel: %w", err))
		}
	}
	if s.player != nil {
		if err := s.player.Close(); err != nil {
			errs = append(errs, fmt.Errorf("voice: close playback: %w", err))
		}
	}
	s.seed = seed.Seed{}
	return errs
}

func (s *session) endSpan(cause error) { observe.EndSessionSpan(s.span, cause) }
