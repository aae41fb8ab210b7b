package draft

import "strings"

var quoteReplacer = strings.NewReplacer(
	"“", `"`,
	"”", `"`,
	"„", `"`,
	"‘", "'",
	"’", "'",
)

var lineBreakReplacer = strings.NewReplacer(
	"\r", "",
	"\n", "",
	"\t", "",
)

// Sanitize turns model output into a parseable JSON object string: code
// fences are dropped, typographic quotes are straightened, raw line breaks
// are removed, and anything outside the outermost braces is trimmed.
func Sanitize(raw string) string {
	out := strings.TrimSpace(raw)
	out = stripFences(out)
	out = quoteReplacer.Replace(out)
	out = lineBreakReplacer.Replace(out)

	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start == -1 || end == -1 || end < start {
		return strings.TrimSpace(out)
	}
	return out[start : end+1]
}

// stripFences removes Markdown code fence markers, keeping whatever they
// enclose, including JSON that shares a line with the fence.
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop the info string ("json", "JSON") up to the first brace or newline.
		if cut := strings.IndexAny(s, "{\n"); cut >= 0 {
			s = s[cut:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.ReplaceAll(s, "```", "")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
