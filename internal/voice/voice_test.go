package voice_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/alakbarr/Interview-Matrix/internal/capture"
	"github.com/alakbarr/Interview-Matrix/internal/voice"
)

func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		s    voice.State
		want string
	}{
		{voice.StateIdle, "idle"},
		{voice.StateConnecting, "connecting"},
		{voice.StateActive, "active"},
		{voice.StateClosing, "closing"},
		{voice.State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestStatusMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		st   voice.Status
		want string
	}{
		{voice.Status{Kind: voice.StatusConnecting}, "connecting"},
		{voice.Status{Kind: voice.StatusListening}, "listening"},
		{voice.Status{Kind: voice.StatusIdle}, "idle"},
		{voice.Status{Kind: voice.StatusError, Err: errors.New("mic busy")}, "error: mic busy"},
		{voice.Status{Kind: voice.StatusError}, "error"},
	}
	for _, tt := range tests {
		if got := tt.st.Message(); got != tt.want {
			t.Errorf("Message() = %q, want %q", got, tt.want)
		}
	}
}

func TestErrPermissionDenied_MatchesCapture(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("%w: %w", capture.ErrPermissionDenied, errors.New("NotAllowedError"))
	if !errors.Is(err, voice.ErrPermissionDenied) {
		t.Error("capture permission error does not match voice.ErrPermissionDenied")
	}
}
