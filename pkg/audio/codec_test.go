package audio_test

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/alakbarr/Interview-Matrix/pkg/audio"
)

func TestBase64_RoundTrip(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(1, 2))
	for n := range 64 {
		b := make([]byte, n*7)
		for i := range b {
			b[i] = byte(r.UintN(256))
		}
		got, err := audio.DecodeBase64(audio.EncodeBase64(b))
		if err != nil {
			t.Fatalf("DecodeBase64: %v", err)
		}
		if !bytes.Equal(got, b) {
			t.Fatalf("round trip of %d bytes changed the data", len(b))
		}
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := audio.DecodeBase64("!!not base64!!"); err == nil {
		t.Fatal("expected error for invalid input")
	}
}

func TestToInt16_Extremes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want int16
	}{
		{-1, math.MinInt16},
		{1, math.MaxInt16},
		{0, 0},
		{-2.5, math.MinInt16},
		{7, math.MaxInt16},
		{0.5, 16383},
		{-0.5, -16384},
	}
	for _, tt := range tests {
		if got := audio.ToInt16(tt.in); got != tt.want {
			t.Errorf("ToInt16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestToFloat_Symmetric(t *testing.T) {
	t.Parallel()
	if got := audio.ToFloat(math.MinInt16); got != -1 {
		t.Errorf("ToFloat(-32768) = %v, want -1", got)
	}
	if got := audio.ToFloat(16384); got != 0.5 {
		t.Errorf("ToFloat(16384) = %v, want 0.5", got)
	}
}

func TestQuantizationBound(t *testing.T) {
	t.Parallel()
	for s := math.MinInt16; s <= math.MaxInt16; s++ {
		back := audio.ToInt16(audio.ToFloat(int16(s)))
		diff := int(back) - s
		if diff < -1 || diff > 1 {
			t.Fatalf("sample %d round-tripped to %d", s, back)
		}
	}
}

func TestFloat32ToPCM16_ClampsBeforeScaling(t *testing.T) {
	t.Parallel()
	pcm := audio.Float32ToPCM16([]float32{-3, -1, 0, 1, 3})
	got := audio.PCM16ToInt16(pcm)
	want := []int16{-32768, -32768, 0, 32767, 32767}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCM16ToFloat32(t *testing.T) {
	t.Parallel()
	got := audio.PCM16ToFloat32(audio.Int16ToPCM16([]int16{-32768, 0, 16384}))
	want := []float32{-1, 0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseRate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mime string
		want int
	}{
		{"audio/pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/pcm", 16000},
		{"audio/pcm;rate=abc", 16000},
		{"audio/pcm;channels=1;RATE=8000", 8000},
	}
	for _, tt := range tests {
		if got := audio.ParseRate(tt.mime, 16000); got != tt.want {
			t.Errorf("ParseRate(%q) = %d, want %d", tt.mime, got, tt.want)
		}
	}
}

func TestIsAudioMIME(t *testing.T) {
	t.Parallel()
	if !audio.IsAudioMIME("audio/pcm;rate=24000") {
		t.Error("audio/pcm should be audio")
	}
	if audio.IsAudioMIME("text/plain") {
		t.Error("text/plain should not be audio")
	}
	if audio.PCMMIMEType(16000) != "audio/pcm;rate=16000" {
		t.Errorf("PCMMIMEType = %q", audio.PCMMIMEType(16000))
	}
}
