// Package sfdt reads the editor's SFDT document JSON. The format is not
// versioned in stored payloads, so every walker probes both the verbose key
// spellings ("sections", "blocks", "inlines") and the optimized ones ("sec",
// "b", "i").
package sfdt

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
)

// EmptyDocument is the payload stored for a document created without content.
const EmptyDocument = `{"sections":[{"blocks":[{"inlines":[]}]}]}`

// ErrNotDocument is returned by Validate for payloads that are not a JSON object.
var ErrNotDocument = errors.New("payload is not an SFDT document object")

var (
	// blockKeys hold arrays whose elements are separated by whitespace in
	// extracted text.
	blockKeys = []string{"sections", "sec", "blocks", "b", "rows", "r", "cells", "c", "childWidgets", "contents"}
	// runKeys hold arrays of inline runs that concatenate directly.
	runKeys  = []string{"inlines", "i"}
	textKeys = []string{"text", "tlp"}
	// headerKeys hold objects keyed by header/footer kind.
	headerKeys = []string{"headersFooters", "hf"}
)

// ExtractText flattens an SFDT tree into whitespace-normalized plain text.
// tree is either the decoded document or its serialized form as a string or
// raw JSON. Unknown shapes contribute nothing.
func ExtractText(tree any) string {
	switch raw := tree.(type) {
	case string:
		return ExtractTextFromString(raw)
	case json.RawMessage:
		return ExtractTextFromJSON(raw)
	case []byte:
		return ExtractTextFromJSON(raw)
	}
	var sb strings.Builder
	walkText(tree, &sb)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// ExtractTextFromJSON decodes data and extracts its text. Malformed JSON
// yields an empty string.
func ExtractTextFromJSON(data []byte) string {
	tree, err := Decode(data)
	if err != nil {
		return ""
	}
	return ExtractText(tree)
}

// ExtractTextFromString is ExtractTextFromJSON for string payloads.
func ExtractTextFromString(payload string) string {
	return ExtractTextFromJSON([]byte(payload))
}

// Decode parses an SFDT payload. A payload that decodes to a JSON string (a
// document serialized twice) is unwrapped once.
func Decode(data []byte) (any, error) {
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	if inner, ok := tree.(string); ok {
		var unwrapped any
		if err := json.Unmarshal([]byte(inner), &unwrapped); err != nil {
			return nil, err
		}
		return unwrapped, nil
	}
	return tree, nil
}

// Validate reports whether payload decodes to a JSON object, the only shape
// the editor produces.
func Validate(payload []byte) error {
	tree, err := Decode(payload)
	if err != nil {
		return ErrNotDocument
	}
	if _, ok := tree.(map[string]any); !ok {
		return ErrNotDocument
	}
	return nil
}

// Canonical returns the payload with a double-encoded wrapper removed and no
// insignificant whitespace, so equal documents hash equally.
func Canonical(payload []byte) ([]byte, error) {
	tree, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

func walkText(node any, sb *strings.Builder) {
	switch n := node.(type) {
	case []any:
		for _, item := range n {
			walkText(item, sb)
		}
	case map[string]any:
		for _, key := range textKeys {
			if text, ok := n[key].(string); ok {
				sb.WriteString(text)
			}
		}
		for _, key := range runKeys {
			if runs, ok := n[key].([]any); ok {
				for _, run := range runs {
					walkText(run, sb)
				}
				sb.WriteByte(' ')
			}
		}
		for _, key := range blockKeys {
			if children, ok := n[key].([]any); ok {
				for _, child := range children {
					walkText(child, sb)
					sb.WriteByte(' ')
				}
			}
		}
		for _, key := range headerKeys {
			parts, ok := n[key].(map[string]any)
			if !ok {
				continue
			}
			names := make([]string, 0, len(parts))
			for name := range parts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				walkText(parts[name], sb)
				sb.WriteByte(' ')
			}
		}
	}
}

// Preview returns at most limit runes of the extracted text, with an ellipsis
// when truncated.
func Preview(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
