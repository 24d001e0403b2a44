package service

import (
	"strings"
	"text/template"

	"docchat/internal/domain"
)

const defaultPromptTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{range $i, $r := .Results}}[{{inc $i}}] {{$r.Passage.Text}}
{{end}}
Question: {{.Question}}
Helpful Answer:`

type promptData struct {
	Question string
	Results  []domain.SearchResult
}

var promptFuncs = template.FuncMap{"inc": func(i int) int { return i + 1 }}

// PromptBuilder renders the grounded prompt sent to the completer.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder parses text as a text/template with .Question and .Results
// fields. An empty text selects the default template.
func NewPromptBuilder(text string) (*PromptBuilder, error) {
	if strings.TrimSpace(text) == "" {
		text = defaultPromptTemplate
	}
	tmpl, err := template.New("prompt").Funcs(promptFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, err
	}
	return &PromptBuilder{tmpl: tmpl}, nil
}

// Build renders the prompt for question grounded in results.
func (b *PromptBuilder) Build(question string, results []domain.SearchResult) (string, error) {
	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, promptData{Question: question, Results: results}); err != nil {
		return "", err
	}
	return sb.String(), nil
}
