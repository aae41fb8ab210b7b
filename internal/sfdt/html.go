package sfdt

import (
	"fmt"
	"html"
	"strings"
)

// RenderHTML converts a decoded SFDT tree into simple HTML for export.
// Paragraph styles named "Heading N" become <hN>; bold, italic, and underline
// character formats become <strong>, <em>, and <u>.
func RenderHTML(tree any) string {
	root, ok := tree.(map[string]any)
	if !ok {
		return ""
	}
	var sb strings.Builder
	for _, section := range childArray(root, "sections", "sec") {
		sectionMap, ok := section.(map[string]any)
		if !ok {
			continue
		}
		renderBlocks(childArray(sectionMap, "blocks", "b"), &sb)
	}
	return sb.String()
}

func childArray(node map[string]any, keys ...string) []any {
	for _, key := range keys {
		if items, ok := node[key].([]any); ok {
			return items
		}
	}
	return nil
}

func childObject(node map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if obj, ok := node[key].(map[string]any); ok {
			return obj
		}
	}
	return nil
}

func renderBlocks(blocks []any, sb *strings.Builder) {
	for _, block := range blocks {
		blockMap, ok := block.(map[string]any)
		if !ok {
			continue
		}
		if rows := childArray(blockMap, "rows", "r"); rows != nil {
			renderTable(rows, sb)
			continue
		}
		renderParagraph(blockMap, sb)
	}
}

func renderTable(rows []any, sb *strings.Builder) {
	sb.WriteString("<table>\n")
	for _, row := range rows {
		rowMap, ok := row.(map[string]any)
		if !ok {
			continue
		}
		sb.WriteString("<tr>\n")
		for _, cell := range childArray(rowMap, "cells", "c") {
			cellMap, ok := cell.(map[string]any)
			if !ok {
				continue
			}
			sb.WriteString("<td>")
			renderBlocks(childArray(cellMap, "blocks", "b"), sb)
			sb.WriteString("</td>\n")
		}
		sb.WriteString("</tr>\n")
	}
	sb.WriteString("</table>\n")
}

func renderParagraph(block map[string]any, sb *strings.Builder) {
	tag := "p"
	if format := childObject(block, "paragraphFormat", "pf"); format != nil {
		style, _ := format["styleName"].(string)
		if style == "" {
			style, _ = format["stn"].(string)
		}
		var level int
		if _, err := fmt.Sscanf(style, "Heading %d", &level); err == nil && level >= 1 && level <= 6 {
			tag = fmt.Sprintf("h%d", level)
		}
	}

	var content strings.Builder
	for _, run := range childArray(block, "inlines", "i") {
		runMap, ok := run.(map[string]any)
		if !ok {
			continue
		}
		content.WriteString(renderRun(runMap))
	}
	fmt.Fprintf(sb, "<%s>%s</%s>\n", tag, content.String(), tag)
}

func renderRun(run map[string]any) string {
	text, _ := run["text"].(string)
	if text == "" {
		text, _ = run["tlp"].(string)
	}
	if text == "" {
		return ""
	}
	out := html.EscapeString(text)

	format := childObject(run, "characterFormat", "cf")
	if format == nil {
		return out
	}
	if isUnderlined(format) {
		out = "<u>" + out + "</u>"
	}
	if truthy(format, "italic", "i") {
		out = "<em>" + out + "</em>"
	}
	if truthy(format, "bold", "b") {
		out = "<strong>" + out + "</strong>"
	}
	return out
}

func truthy(format map[string]any, keys ...string) bool {
	for _, key := range keys {
		switch v := format[key].(type) {
		case bool:
			if v {
				return true
			}
		case float64:
			if v != 0 {
				return true
			}
		}
	}
	return false
}

func isUnderlined(format map[string]any) bool {
	if value, ok := format["underline"].(string); ok {
		return value != "" && value != "None"
	}
	return truthy(format, "u")
}
