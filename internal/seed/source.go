package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source loads the seed for the next session.
type Source interface {
	Load(ctx context.Context) (Seed, error)
}

// Compile-time interface assertions.
var (
	_ Source = Static{}
	_ Source = (*FileSource)(nil)
	_ Source = (*PostgresStore)(nil)
)

// Static is a [Source] that always returns the same seed.
type Static Seed

// Load implements [Source].
func (s Static) Load(context.Context) (Seed, error) {
	return Seed(s), nil
}

// Row is one line of a matrix document.
type Row struct {
	ID    string   `json:"id" yaml:"id"`
	Cells []string `json:"cells" yaml:"cells"`
}

// Matrix is a study matrix as authored in the editor: a topic, named
// columns, rows of rich-text cells and an HTML summary.
type Matrix struct {
	Topic   string   `json:"topic" yaml:"topic"`
	Columns []string `json:"columns" yaml:"columns"`
	Rows    []Row    `json:"rows" yaml:"rows"`
	Summary string   `json:"summary" yaml:"summary"`
}

// Seed derives a session seed from m. Each row becomes one key point: its
// non-empty cells, stripped of markup, joined with " / ". The result is not
// capped; call [Seed.Normalize].
func (m Matrix) Seed() Seed {
	s := Seed{Topic: m.Topic, Summary: m.Summary}
	for _, r := range m.Rows {
		var cells []string
		for _, c := range r.Cells {
			if c = StripMarkup(c); c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) > 0 {
			s.KeyPoints = append(s.KeyPoints, strings.Join(cells, " / "))
		}
	}
	return s
}

// ParseMatrix decodes a matrix document. The format is YAML; since YAML is
// a superset of JSON, documents exported by the editor load unchanged.
func ParseMatrix(data []byte) (Matrix, error) {
	var m Matrix
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Matrix{}, fmt.Errorf("seed: parse matrix: %w", err)
	}
	if strings.TrimSpace(m.Topic) == "" {
		return Matrix{}, errors.New("seed: parse matrix: topic is required")
	}
	return m, nil
}

// FileSource reads a matrix document from disk on every Load, so edits made
// between sessions are picked up.
type FileSource struct {
	Path string
}

// Load implements [Source].
func (f *FileSource) Load(ctx context.Context) (Seed, error) {
	if err := ctx.Err(); err != nil {
		return Seed{}, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Seed{}, fmt.Errorf("seed: read %q: %w", f.Path, err)
	}
	m, err := ParseMatrix(data)
	if err != nil {
		return Seed{}, err
	}
	return m.Seed(), nil
}
