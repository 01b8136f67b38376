package seed

import (
	"fmt"
	"strings"
	"text/template"
)

// DefaultInstruction is the system instruction template used when none is
// configured. It is executed with a [Seed].
const DefaultInstruction = `You are a patient study partner helping the user review "{{.Topic}}".
Speak naturally and keep each answer short enough to say in one breath.
{{- if .Summary}}

Summary of the material:
{{.Summary}}
{{- end}}
{{- if .KeyPoints}}

Key points to cover:
{{- range .KeyPoints}}
- {{.}}
{{- end}}
{{- end}}

Quiz the user on the material, correct misunderstandings gently and stay on topic.`

// DefaultGreeting is the first user turn sent after setup. It asks the
// model to open the conversation.
const DefaultGreeting = `Hello! Please greet me and start our review of "{{.Topic}}".`

// Prompter renders the system instruction and greeting for a session.
type Prompter struct {
	instruction *template.Template
	greeting    *template.Template
}

// NewPrompter parses the two templates. Empty strings select
// [DefaultInstruction] and [DefaultGreeting].
func NewPrompter(instruction, greeting string) (*Prompter, error) {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	if strings.TrimSpace(greeting) == "" {
		greeting = DefaultGreeting
	}
	it, err := template.New("instruction").Option("missingkey=error").Parse(instruction)
	if err != nil {
		return nil, fmt.Errorf("seed: parse instruction template: %w", err)
	}
	gt, err := template.New("greeting").Option("missingkey=error").Parse(greeting)
	if err != nil {
		return nil, fmt.Errorf("seed: parse greeting template: %w", err)
	}
	return &Prompter{instruction: it, greeting: gt}, nil
}

// Instruction renders the system instruction for s.
func (p *Prompter) Instruction(s Seed) (string, error) {
	return render(p.instruction, s)
}

// Greeting renders the greeting turn for s.
func (p *Prompter) Greeting(s Seed) (string, error) {
	return render(p.greeting, s)
}

func render(t *template.Template, s Seed) (string, error) {
	if s.Topic == "" {
		s.Topic = "this topic"
	}
	var b strings.Builder
	if err := t.Execute(&b, s); err != nil {
		return "", fmt.Errorf("seed: render %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(b.String()), nil
}
