package transport

import "github.com/alakbarr/Interview-Matrix/pkg/audio"

// Kind discriminates the [Envelope] variants.
type Kind int

const (
	KindSetup Kind = iota + 1
	KindClientTurn
	KindRealtimeAudio
	KindSetupAck
	KindServerTurn
	KindServerError
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindClientTurn:
		return "client_turn"
	case KindRealtimeAudio:
		return "realtime_audio"
	case KindSetupAck:
		return "setup_ack"
	case KindServerTurn:
		return "server_turn"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Envelope is one message on the duplex channel. The concrete types in this
// package are the only implementations.
type Envelope interface {
	Kind() Kind
}

// Setup configures the remote model. Exactly one is sent per session, first.
type Setup struct {
	// Model is the model name; a "models/" prefix is added when missing.
	Model string

	// Voice selects a prebuilt voice. Empty keeps the server default.
	Voice string

	// ResponseModalities defaults to ["audio"] when empty.
	ResponseModalities []string

	// SystemInstruction is omitted from the wire when empty.
	SystemInstruction string
}

// ClientTurn is a text turn from the client, used for the greeting trigger.
type ClientTurn struct {
	Role         string
	Text         string
	TurnComplete bool
}

// RealtimeAudioChunk carries one encoded capture frame.
type RealtimeAudioChunk struct {
	MIMEType string
	// Data is the base64 encoded PCM16 payload.
	Data string
}

// NewAudioChunk encodes frame for the realtimeInput stream.
func NewAudioChunk(frame audio.AudioFrame) RealtimeAudioChunk {
	return RealtimeAudioChunk{
		MIMEType: audio.PCMMIMEType(frame.SampleRate),
		Data:     audio.EncodeBase64(frame.Data),
	}
}

// SetupAck confirms the setup message. It has no payload.
type SetupAck struct{}

// Part is one piece of a model turn: either text or inline data.
type Part struct {
	Text     string
	MIMEType string
	// Data is the base64 encoded inline payload.
	Data string
}

// IsAudio reports whether p carries audio.
func (p Part) IsAudio() bool {
	return p.Data != "" && audio.IsAudioMIME(p.MIMEType)
}

// ServerTurn is model output.
type ServerTurn struct {
	Parts        []Part
	TurnComplete bool

	// Interrupted is set when the server cut its own turn short because the
	// user started speaking.
	Interrupted bool
}

// ServerError is an error reported in-band by the server.
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (Setup) Kind() Kind              { return KindSetup }
func (ClientTurn) Kind() Kind         { return KindClientTurn }
func (RealtimeAudioChunk) Kind() Kind { return KindRealtimeAudio }
func (SetupAck) Kind() Kind           { return KindSetupAck }
func (ServerTurn) Kind() Kind         { return KindServerTurn }
func (ServerError) Kind() Kind        { return KindServerError }
