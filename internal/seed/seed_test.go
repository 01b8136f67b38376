package seed_test

import (
	"slices"
	"testing"

	"github.com/alakbarr/Interview-Matrix/internal/seed"
)

func TestStripMarkup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  photosynthesis\n converts light ", "photosynthesis converts light"},
		{"inline tags", "<b>Light</b> reactions in the <i>thylakoid</i>", "Light reactions in the thylakoid"},
		{"paragraphs do not merge", "<p>first</p><p>second</p>", "first second"},
		{"line breaks", "one<br>two<br/>three", "one two three"},
		{"entities", "salt &amp; pepper &lt;3", "salt & pepper <3"},
		{"script dropped", "keep<script>alert(1)</script> this", "keep this"},
		{"summary box", `<div class="summary-box"><span class="summary-title">Executive Summary</span><div class="summary-text">ATP is made.</div></div>`, "Executive Summary ATP is made."},
		{"empty", "", ""},
		{"only tags", "<div><br></div>", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := seed.StripMarkup(tt.in); got != tt.want {
				t.Errorf("StripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_CapsAndCleans(t *testing.T) {
	t.Parallel()

	s := seed.Seed{
		Topic:     " <b>Cells</b> ",
		Summary:   "<p>Cells are <em>small</em>.</p>",
		KeyPoints: []string{"one", "", "<br>", "two", "three", "four", "five", "six"},
	}
	got := s.Normalize(0)

	if got.Topic != "Cells" {
		t.Errorf("Topic = %q, want %q", got.Topic, "Cells")
	}
	if got.Summary != "Cells are small." {
		t.Errorf("Summary = %q, want %q", got.Summary, "Cells are small.")
	}
	want := []string{"one", "two", "three", "four", "five"}
	if !slices.Equal(got.KeyPoints, want) {
		t.Errorf("KeyPoints = %v, want %v", got.KeyPoints, want)
	}

	// The receiver is left untouched.
	if len(s.KeyPoints) != 8 {
		t.Errorf("original seed mutated: %v", s.KeyPoints)
	}
}

func TestNormalize_CustomLimit(t *testing.T) {
	t.Parallel()

	got := seed.Seed{KeyPoints: []string{"a", "b", "c"}}.Normalize(2)
	if !slices.Equal(got.KeyPoints, []string{"a", "b"}) {
		t.Errorf("KeyPoints = %v, want [a b]", got.KeyPoints)
	}
}

func TestSeed_IsZero(t *testing.T) {
	t.Parallel()

	if !(seed.Seed{}).IsZero() {
		t.Error("empty seed should be zero")
	}
	if (seed.Seed{Topic: "x"}).IsZero() {
		t.Error("seed with topic should not be zero")
	}
}
