package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// SessionSampleRate is the fixed rate used for both capture and playback.
const SessionSampleRate = 16000

// PCMMIMEType returns the MIME type announced for raw PCM16 audio at rate.
func PCMMIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// EncodeBase64 encodes raw bytes into the text-safe transport form.
// DecodeBase64(EncodeBase64(b)) returns b for every input.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 reverses [EncodeBase64].
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("audio: decode base64: %w", err)
	}
	return b, nil
}

// ToFloat converts a signed 16-bit sample to a normalised float in [-1, 1).
func ToFloat(s int16) float32 {
	return float32(s) / 32768
}

// ToInt16 clamps v to [-1, 1] and scales it into the int16 range. Negative
// values are scaled by 32768 and non-negative values by 32767 so that neither
// end can overflow. ToInt16(ToFloat(s)) differs from s by at most one unit.
func ToInt16(v float32) int16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// PCM16ToInt16 decodes little-endian PCM16 bytes. A trailing odd byte is ignored.
func PCM16ToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

// Int16ToPCM16 encodes samples as little-endian PCM16 bytes.
func Int16ToPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Float32ToPCM16 converts normalised float samples directly to PCM16 bytes
// using [ToInt16]. It allocates exactly once and is safe to call from an
// audio callback.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(ToInt16(v)))
	}
	return out
}

// PCM16ToFloat32 converts PCM16 bytes to normalised float samples using [ToFloat].
func PCM16ToFloat32(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = ToFloat(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// IsAudioMIME reports whether mimeType names an audio payload.
func IsAudioMIME(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "audio/")
}

// ParseRate extracts the rate parameter from a MIME type such as
// "audio/pcm;rate=24000". It returns fallback when no valid rate is present.
func ParseRate(mimeType string, fallback int) int {
	_, params, found := strings.Cut(mimeType, ";")
	if !found {
		return fallback
	}
	for _, p := range strings.Split(params, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
