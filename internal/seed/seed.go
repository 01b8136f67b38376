// Package seed holds the immutable context a voice session is started with
// (topic, summary, key points) and the sources it can be loaded from.
//
// Summaries and matrix cells are authored in a rich-text editor, so every
// string that enters a [Seed] is reduced to plain text by [StripMarkup].
package seed

import (
	"strings"

	"golang.org/x/net/html"
)

// DefaultMaxKeyPoints caps the key points passed into a session.
const DefaultMaxKeyPoints = 5

// Seed is the session context captured once at session start.
type Seed struct {
	Topic     string   `json:"topic" yaml:"topic"`
	Summary   string   `json:"summary" yaml:"summary"`
	KeyPoints []string `json:"key_points,omitempty" yaml:"key_points"`
}

// IsZero reports whether s carries no context at all.
func (s Seed) IsZero() bool {
	return s.Topic == "" && s.Summary == "" && len(s.KeyPoints) == 0
}

// Normalize returns a copy of s with markup stripped from every field, empty
// key points removed and at most limit key points kept. limit <= 0 selects
// [DefaultMaxKeyPoints].
func (s Seed) Normalize(limit int) Seed {
	if limit <= 0 {
		limit = DefaultMaxKeyPoints
	}
	out := Seed{
		Topic:   StripMarkup(s.Topic),
		Summary: StripMarkup(s.Summary),
	}
	for _, kp := range s.KeyPoints {
		if len(out.KeyPoints) == limit {
			break
		}
		if kp = StripMarkup(kp); kp != "" {
			out.KeyPoints = append(out.KeyPoints, kp)
		}
	}
	return out
}

// StripMarkup returns the text content of an HTML fragment with runs of
// whitespace collapsed to single spaces. Block-level breaks become spaces so
// adjacent paragraphs do not run together. Plain text passes through with
// only whitespace normalised.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				skip++
			case "br", "p", "div", "li", "tr", "td", "th", "h1", "h2", "h3", "h4":
				b.WriteByte(' ')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "tr", "td", "th", "h1", "h2", "h3", "h4":
				b.WriteByte(' ')
			}
		}
	}
}
