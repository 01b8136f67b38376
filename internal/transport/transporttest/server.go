// Package transporttest provides a scripted in-process Gemini Live server for
// tests of code built on package transport.
package transporttest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// ioTimeout bounds every helper read and write.
const ioTimeout = 3 * time.Second

// Server is a WebSocket test server. Each accepted connection is handed to the
// handler as a [Peer]; the server is closed automatically when the test ends.
type Server struct {
	srv     *httptest.Server
	accepts atomic.Int32
}

// NewServer starts a server that runs handler for every connection.
func NewServer(t *testing.T, handler func(p *Peer)) *Server {
	t.Helper()
	s := &Server{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		s.accepts.Add(1)
		conn.SetReadLimit(8 << 20)
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(&Peer{t: t, Conn: conn, Request: r})
	}))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the ws:// URL of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Accepts returns how many connections the server has accepted.
func (s *Server) Accepts() int {
	return int(s.accepts.Load())
}

// Peer is the server side of one connection.
type Peer struct {
	t       *testing.T
	Conn    *websocket.Conn
	Request *http.Request
}

// Message is one decoded client message, keyed by its top-level field
// ("setup", "clientContent", "realtimeInput").
type Message struct {
	Kind string
	Body json.RawMessage
}

// Read reads the next client message. ok is false when the connection ended.
func (p *Peer) Read() (msg Message, ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	_, data, err := p.Conn.Read(ctx)
	if err != nil {
		return Message{}, false
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		p.t.Errorf("transporttest: client sent invalid JSON: %v", err)
		return Message{}, false
	}
	for k, v := range raw {
		return Message{Kind: k, Body: v}, true
	}
	return Message{}, true
}

// Pump reads client messages into the returned channel until the connection
// ends, then closes it.
func (p *Peer) Pump() <-chan Message {
	ch := make(chan Message, 256)
	go func() {
		defer close(ch)
		for {
			_, data, err := p.Conn.Read(context.Background())
			if err != nil {
				return
			}
			var raw map[string]json.RawMessage
			if json.Unmarshal(data, &raw) != nil {
				continue
			}
			for k, v := range raw {
				ch <- Message{Kind: k, Body: v}
			}
		}
	}()
	return ch
}

// WriteJSON marshals v and sends it as a text frame.
func (p *Peer) WriteJSON(v any) {
	data, _ := json.Marshal(v)
	p.WriteRaw(websocket.MessageText, data)
}

// WriteRaw sends data unchanged with the given message type.
func (p *Peer) WriteRaw(typ websocket.MessageType, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := p.Conn.Write(ctx, typ, data); err != nil {
		p.t.Logf("transporttest: write: %v (may be expected on close)", err)
	}
}

// SendSetupComplete sends the setupComplete acknowledgement.
func (p *Peer) SendSetupComplete() {
	p.WriteJSON(map[string]any{"setupComplete": map[string]any{}})
}

// AudioPart builds an inlineData part.
func AudioPart(mimeType, data string) map[string]any {
	return map[string]any{"inlineData": map[string]any{"mimeType": mimeType, "data": data}}
}

// TextPart builds a text part.
func TextPart(text string) map[string]any {
	return map[string]any{"text": text}
}

// SendModelTurn sends a serverContent message with the given parts.
func (p *Peer) SendModelTurn(parts ...map[string]any) {
	p.WriteJSON(map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": parts},
		},
	})
}

// WaitClosed blocks until the client closes the connection or the test
// timeout elapses.
func (p *Peer) WaitClosed() {
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	<-p.Conn.CloseRead(ctx).Done()
}
