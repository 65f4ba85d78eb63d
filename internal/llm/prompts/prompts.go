// Package prompts renders the lead brief prompts sent to the language model.
package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

// Templates holds the built-in prompt files.
//
//go:embed templates/*.txt
var Templates embed.FS

var (
	leadAnswerRegex         = regexp.MustCompile(`(?i)</?\s*lead-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxAnswerRunes caps a single free-text answer in the prompt.
const maxAnswerRunes = 2000

// Variant selects a brief prompt.
type Variant string

const (
	// VariantConcise asks for a short summary and a few talking points.
	VariantConcise Variant = "concise"
	// VariantDetailed asks for a full brief including risks and open points.
	VariantDetailed Variant = "detailed"
)

// Variants lists the known prompt variants.
var Variants = []Variant{VariantConcise, VariantDetailed}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range Variants {
		if Variant(v) == known {
			return true
		}
	}
	return false
}

// CategoryLine is one scoring category in the prompt.
type CategoryLine struct {
	Name  string
	Score int
	Max   int
}

// AnswerLine is one answered question in the prompt.
type AnswerLine struct {
	Title    string
	Category string
	Value    string
}

// BriefData holds template data for brief prompts.
type BriefData struct {
	Total       int
	Temperature string
	Categories  []CategoryLine
	Answers     []AnswerLine
	Unanswered  []string
}

// Load parses the prompt templates from fsys, normally Templates.
// Templates are loaded only once per process.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		parsed := make(map[Variant]*template.Template, len(Variants))
		for _, v := range Variants {
			file := "templates/brief_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			parsed[v] = tmpl
		}
		templates = parsed
	})
	return loadErr
}

// BuildBriefPrompt renders the brief prompt for variant. Answer values are
// sanitized before rendering.
func BuildBriefPrompt(variant Variant, data BriefData) (string, error) {
	if templates == nil {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := templates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	answers := make([]AnswerLine, len(data.Answers))
	for i, a := range data.Answers {
		a.Value = sanitizeAnswer(a.Value)
		answers[i] = a
	}
	data.Answers = answers

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func sanitizeAnswer(answer string) string {
	answer = leadAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + " [truncated]"
	}
	return answer
}
