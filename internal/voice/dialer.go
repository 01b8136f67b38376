package voice

import (
	"context"
	"slices"

	"github.com/alakbarr/Interview-Matrix/internal/transport"
)

// Channel is an open duplex channel to the model.
type Channel interface {
	// Send queues env. It is a no-op once the channel has closed.
	Send(env transport.Envelope) error

	// Close closes the channel without waiting for the remote side. The
	// channel's OnClose handler is not called for this closure.
	Close() error
}

// Dialer opens channels. It exists so tests and alternative transports can
// stand in for the WebSocket implementation.
type Dialer interface {
	Dial(ctx context.Context, url string, h transport.Handlers, opts ...transport.Option) (Channel, error)
}

// Compile-time interface assertions.
var (
	_ Dialer  = WebSocketDialer{}
	_ Channel = (*transport.Conn)(nil)
)

// WebSocketDialer dials with [transport.Open]. Options apply to every
// connection; per-dial options passed to Dial are applied after them.
type WebSocketDialer struct {
	Options []transport.Option
}

// Dial implements [Dialer].
func (d WebSocketDialer) Dial(ctx context.Context, url string, h transport.Handlers, opts ...transport.Option) (Channel, error) {
	conn, err := transport.Open(ctx, url, h, slices.Concat(d.Options, opts)...)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
