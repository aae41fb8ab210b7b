// Package draft generates legal document drafts in SFDT form through an
// OpenAI-compatible language model.
package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

var ErrUnknownType = errors.New("unknown document type")

// MissingFieldsError lists required template details the caller left out.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required details: " + strings.Join(e.Fields, ", ")
}

// GenerationError wraps any failure between calling the model and holding a
// valid document. Message is safe to show to users.
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Completer is the language model call the generator depends on.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Request struct {
	DocumentType string
	Title        string
	Details      map[string]string
}

type Result struct {
	DocumentType string
	Title        string
	// SFDT is the validated document, compact JSON.
	SFDT string
}

type Generator struct {
	llm    Completer
	logger *zap.Logger
}

func NewGenerator(llm Completer, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{llm: llm, logger: logger.With(zap.String("component", "draft"))}
}

// Generate drafts one document. There is no retry: a malformed answer fails
// the request.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	tmpl, ok := Lookup(strings.TrimSpace(req.DocumentType))
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownType, req.DocumentType)
	}
	if missing := tmpl.MissingFields(req.Details); len(missing) > 0 {
		return Result{}, &MissingFieldsError{Fields: missing}
	}
	if g.llm == nil {
		return Result{}, &GenerationError{Message: "document generation is not configured", Err: ErrNoAPIKey}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = tmpl.Title
	}

	raw, err := g.llm.Complete(ctx, systemPrompt, buildUserPrompt(tmpl, title, req.Details))
	if err != nil {
		g.logger.Warn("completion failed", zap.String("document_type", tmpl.Type), zap.Error(err))
		return Result{}, &GenerationError{Message: "the drafting service is unavailable, please try again", Err: err}
	}

	cleaned := Sanitize(raw)
	tree, err := Validate(cleaned)
	if err != nil {
		g.logger.Warn("generated document rejected",
			zap.String("document_type", tmpl.Type),
			zap.Int("response_len", len(raw)),
			zap.Error(err),
		)
		return Result{}, &GenerationError{Message: "the generated draft was not a valid document, please try again", Err: err}
	}

	compact, err := json.Marshal(tree)
	if err != nil {
		return Result{}, &GenerationError{Message: "the generated draft could not be encoded", Err: err}
	}
	return Result{DocumentType: tmpl.Type, Title: title, SFDT: string(compact)}, nil
}

const systemPrompt = `You are a legal drafting assistant. You write complete, professional documents
and answer ONLY with one JSON object in Syncfusion SFDT form. No Markdown, no commentary.

Schema:
{
  "sections": [
    {
      "blocks": [
        {
          "paragraphFormat": {"styleName": "Normal" | "Heading 1" | "Heading 2", "textAlignment": "Left" | "Center" | "Justify"},
          "inlines": [
            {"text": "string", "characterFormat": {"bold": boolean, "italic": boolean, "fontSize": number}}
          ]
        }
      ]
    }
  ]
}

Rules:
- Every block has a paragraphFormat object and an inlines array.
- Every inline has a text string and a characterFormat object.
- Use one block per paragraph or heading. Do not embed line breaks inside text.
- Use straight double quotes for JSON strings.`

func buildUserPrompt(tmpl Template, title string, details map[string]string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Draft a %s titled %q.\n", tmpl.Title, title)
	fmt.Fprintf(&sb, "%s\n\n", tmpl.Description)

	sb.WriteString("Include these sections in order:\n")
	for i, section := range tmpl.Sections {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, section)
	}

	sb.WriteString("\nDetails:\n")
	keys := make([]string, 0, len(details))
	for key := range details {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if isBlank(details[key]) {
			continue
		}
		fmt.Fprintf(&sb, "- %s: %s\n", key, strings.TrimSpace(details[key]))
	}
	sb.WriteString("\nUse the details verbatim where they apply. Leave signature lines blank for the parties.")
	return sb.String()
}
