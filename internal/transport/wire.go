package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrProtocolDecode marks an inbound message that could not be parsed or had
// an unexpected shape.
var ErrProtocolDecode = errors.New("transport: protocol decode error")

// clientFrame is the outbound JSON object. Exactly one field is set.
type clientFrame struct {
	Setup         *wireSetup    `json:"setup,omitempty"`
	ClientContent *wireTurns    `json:"clientContent,omitempty"`
	RealtimeInput *wireRealtime `json:"realtimeInput,omitempty"`
}

type wireSetup struct {
	Model             string       `json:"model"`
	GenerationConfig  wireGen      `json:"generationConfig"`
	SystemInstruction *wireContent `json:"systemInstruction,omitempty"`
}

type wireGen struct {
	ResponseModalities []string    `json:"responseModalities"`
	SpeechConfig       *wireSpeech `json:"speechConfig,omitempty"`
}

// wireSpeech selects a prebuilt voice:
// {"voiceConfig":{"prebuiltVoiceConfig":{"voiceName":...}}}.
type wireSpeech struct {
	VoiceConfig struct {
		Prebuilt struct {
			VoiceName string `json:"voiceName"`
		} `json:"prebuiltVoiceConfig"`
	} `json:"voiceConfig"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireTurns struct {
	Turns        []wireContent `json:"turns"`
	TurnComplete bool          `json:"turnComplete"`
}

type wireRealtime struct {
	MediaChunks []wireBlob `json:"mediaChunks"`
}

// serverFrame is the inbound JSON object. Precedence when several fields are
// present: error, then setupComplete, then serverContent.
type serverFrame struct {
	SetupComplete *json.RawMessage `json:"setupComplete"`
	ServerContent *struct {
		ModelTurn    *wireContent `json:"modelTurn"`
		TurnComplete bool         `json:"turnComplete"`
		Interrupted  bool         `json:"interrupted"`
	} `json:"serverContent"`
	Error *ServerError `json:"error"`
}

// Marshal encodes an outbound envelope as one JSON message.
func Marshal(env Envelope) ([]byte, error) {
	var f clientFrame
	switch e := env.(type) {
	case Setup:
		f.Setup = wireSetupFrom(e)
	case ClientTurn:
		role := e.Role
		if role == "" {
			role = "user"
		}
		f.ClientContent = &wireTurns{
			Turns:        []wireContent{{Role: role, Parts: []wirePart{{Text: e.Text}}}},
			TurnComplete: e.TurnComplete,
		}
	case RealtimeAudioChunk:
		f.RealtimeInput = &wireRealtime{MediaChunks: []wireBlob{{MIMEType: e.MIMEType, Data: e.Data}}}
	default:
		return nil, fmt.Errorf("transport: %T is not an outbound envelope", env)
	}

	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal: %w", err)
	}
	return b, nil
}

func wireSetupFrom(s Setup) *wireSetup {
	ws := &wireSetup{
		Model: s.Model,
		GenerationConfig: wireGen{
			ResponseModalities: s.ResponseModalities,
		},
	}
	if !strings.HasPrefix(ws.Model, "models/") {
		ws.Model = "models/" + ws.Model
	}
	if len(ws.GenerationConfig.ResponseModalities) == 0 {
		ws.GenerationConfig.ResponseModalities = []string{"audio"}
	}
	if s.SystemInstruction != "" {
		ws.SystemInstruction = &wireContent{Parts: []wirePart{{Text: s.SystemInstruction}}}
	}
	if s.Voice != "" {
		sp := &wireSpeech{}
		sp.VoiceConfig.Prebuilt.VoiceName = s.Voice
		ws.GenerationConfig.SpeechConfig = sp
	}
	return ws
}

// Decode parses one inbound message. Every failure wraps [ErrProtocolDecode].
func Decode(data []byte) (Envelope, error) {
	var f serverFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocolDecode, err)
	}

	if f.Error != nil {
		return *f.Error, nil
	}
	if f.SetupComplete != nil {
		return SetupAck{}, nil
	}
	sc := f.ServerContent
	if sc == nil {
		return nil, fmt.Errorf("%w: no recognised top-level field", ErrProtocolDecode)
	}
	turn := ServerTurn{TurnComplete: sc.TurnComplete, Interrupted: sc.Interrupted}
	if sc.ModelTurn != nil {
		turn.Parts = make([]Part, len(sc.ModelTurn.Parts))
		for i, p := range sc.ModelTurn.Parts {
			turn.Parts[i].Text = p.Text
			if p.InlineData != nil {
				turn.Parts[i].MIMEType = p.InlineData.MIMEType
				turn.Parts[i].Data = p.InlineData.Data
			}
		}
	}
	return turn, nil
}
