package guidance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
)

// ErrEmptyQuery is returned for a missing or blank query.
var ErrEmptyQuery = errors.New("query not found")

var promptTemplate = template.Must(template.New("prompt").Parse(`
You are a licensed medical doctor. Your role is to provide medical assistance based on the user's query: {{.Query}}

Analyze the user's symptoms or question and give a clear, medically-informed explanation.
If appropriate, recommend safe, over-the-counter medications or prescription drugs (mention if a doctor's visit is necessary for a prescription).
If self-care or home remedies are suitable, clearly recommend them with dosage/frequency (if applicable).
If the symptoms suggest something serious, advise immediate consultation with a medical professional or emergency care.
Always prioritize clarity, safety, and medical accuracy.

Use markdown formatting with the following headings:

### Analyzing the symptoms

### Recommending appropriate medications

### Recommending self-care treatments

Keep spacing between each heading and its content. Always use headings and subheadings.
`))

type Service struct {
	completer Completer
}

func NewService(c Completer) *Service {
	return &Service{completer: c}
}

// Prompt renders the fixed instructions around query.
func Prompt(query string) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, struct{ Query string }{Query: query}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// Guidance returns the provider's markdown answer for query unchanged.
func (s *Service) Guidance(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	prompt, err := Prompt(query)
	if err != nil {
		return "", err
	}
	return s.completer.Complete(ctx, prompt)
}
