// Package transport owns the duplex WebSocket channel to a Gemini Live
// BidiGenerateContent endpoint.
//
// A [Conn] frames [Envelope] values to and from the JSON wire protocol. Writes
// go through a single writer goroutine so outbound order is preserved; inbound
// messages are decoded on the read goroutine and handed to [Handlers.OnEnvelope]
// in arrival order. Malformed inbound messages are logged and dropped without
// affecting the connection.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// DefaultBaseURL is the public Gemini Live WebSocket root.
	DefaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	DefaultKeepalive    = 20 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultSendQueue    = 256

	keepaliveTimeout = 5 * time.Second
	readLimit        = 8 << 20
)

// ErrSendQueueFull is returned by [Conn.Send] when the outbound queue has no
// room. The message is dropped; the connection stays open.
var ErrSendQueueFull = errors.New("transport: send queue full")

// EndpointURL builds the BidiGenerateContent URL for baseURL and apiKey.
func EndpointURL(baseURL, apiKey string) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		baseURL, url.QueryEscape(apiKey),
	)
}

// Handlers receive inbound traffic. Both are called from the connection's
// read goroutine and must not block for long.
type Handlers struct {
	// OnEnvelope receives every successfully decoded inbound message.
	OnEnvelope func(Envelope)

	// OnClose is called at most once, when the channel closes for any reason
	// other than a call to [Conn.Close]. err is nil for a normal remote close.
	OnClose func(err error)
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for [Open].
type Option func(*options)

type options struct {
	keepalive    time.Duration
	writeTimeout time.Duration
	sendQueue    int
}

// WithKeepalive overrides the ping interval. Zero or negative disables pings.
// A ping that gets no pong within min(d, 5s) ends the connection.
func WithKeepalive(d time.Duration) Option {
	return func(o *options) { o.keepalive = d }
}

// WithWriteTimeout bounds each socket write. A peer that stops reading for
// longer ends the connection. Non-positive values are ignored.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithSendQueue sets how many outbound messages may be buffered.
func WithSendQueue(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.sendQueue = n
		}
	}
}

// ── Conn ───────────────────────────────────────────────────────────────────────

// Conn is an open duplex channel. All methods are safe for concurrent use.
type Conn struct {
	ws           *websocket.Conn
	handlers     Handlers
	out          chan []byte
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Open dials url and starts dispatching inbound messages to h. ctx bounds the
// dial only; the returned Conn lives until [Conn.Close] or a remote close.
func Open(ctx context.Context, url string, h Handlers, opts ...Option) (*Conn, error) {
	o := options{
		keepalive:    DefaultKeepalive,
		writeTimeout: DefaultWriteTimeout,
		sendQueue:    DefaultSendQueue,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	ws.SetReadLimit(readLimit)

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:           ws,
		handlers:     h,
		out:          make(chan []byte, o.sendQueue),
		writeTimeout: o.writeTimeout,
		ctx:          connCtx,
		cancel:       cancel,
	}

	go c.readLoop()
	go c.writeLoop()
	if o.keepalive > 0 {
		go c.keepaliveLoop(o.keepalive)
	}
	return c, nil
}

// Send encodes env and queues it behind earlier sends. It never blocks: when
// the queue is full the message is dropped and [ErrSendQueueFull] returned.
// Sending on a closed channel is a silent no-op.
func (c *Conn) Send(env Envelope) error {
	if c.isClosed() {
		return nil
	}
	data, err := Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.out <- data:
		return nil
	case <-c.ctx.Done():
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close closes the channel without waiting for queued sends or the closing
// handshake. It is idempotent and never triggers [Handlers.OnClose].
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	go func() {
		_ = c.ws.Close(websocket.StatusNormalClosure, "session closed")
		c.cancel()
	}()
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readLoop decodes inbound messages until the connection ends.
func (c *Conn) readLoop() {
	for {
		typ, data, err := c.ws.Read(c.ctx)
		if err != nil {
			c.finish(err)
			return
		}

		env, err := Decode(data)
		if err != nil {
			slog.Warn("transport: discarding malformed message",
				"message_type", typ.String(),
				"bytes", len(data),
				"err", err,
			)
			continue
		}
		if c.handlers.OnEnvelope != nil {
			c.handlers.OnEnvelope(env)
		}
	}
}

// writeLoop is the only writer on the socket.
func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.out:
			ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
			err := c.ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.finish(fmt.Errorf("transport: write: %w", err))
				return
			}
		}
	}
}

// keepaliveLoop pings the peer. An unanswered ping means the socket is
// half-open and ends the connection.
func (c *Conn) keepaliveLoop(interval time.Duration) {
	timeout := min(interval, keepaliveTimeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, timeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil && c.ctx.Err() == nil {
				c.finish(fmt.Errorf("transport: keepalive: %w", err))
				return
			}
		}
	}
}

// finish handles the end of the connection as seen by one of the loops.
// Local closes are silent; the first remote failure reports through OnClose.
func (c *Conn) finish(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	_ = c.ws.CloseNow()

	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		err = nil
	default:
		err = fmt.Errorf("transport: connection lost: %w", err)
	}
	if c.handlers.OnClose != nil {
		c.handlers.OnClose(err)
	}
}
