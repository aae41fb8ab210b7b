package export

import (
	"context"
	"errors"
	"html/template"
	"strings"
	"testing"
	"time"
)

const samplePayload = `{"sections":[{"blocks":[
	{"paragraphFormat":{"styleName":"Heading 1"},"inlines":[{"text":"Lease Agreement"}]},
	{"inlines":[{"text":"Rent is ","characterFormat":{}},{"text":"due monthly","characterFormat":{"bold":true}}]}
]}]}`

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"Lease v1.2", "Lease-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(" PDF "); err != nil || f != FormatPDF {
		t.Fatalf("ParseFormat(PDF) = %q, %v", f, err)
	}
	if f, err := ParseFormat("docx"); err != nil || f != FormatDOCX {
		t.Fatalf("ParseFormat(docx) = %q, %v", f, err)
	}
	if _, err := ParseFormat("odt"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestRenderDocumentHTML(t *testing.T) {
	data := TemplateData{
		Title:         "Test Document",
		Status:        "signed",
		Version:       4,
		Author:        "Test Author",
		SignatureName: "Jane Signer",
		ContentHash:   "abc123",
		TxHash:        "0xfeed",
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ContentHTML:   template.HTML("<p>This is the content.</p>"),
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}

	for _, want := range []string{"Test Document", "SIGNED", "Version 4", "March 1, 2026", "Jane Signer", "abc123", "0xfeed"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("HTML content was escaped - should be rendered as raw HTML")
	}
	if !strings.Contains(html, "<p>This is the content.</p>") {
		t.Error("HTML content should contain unescaped <p> tags")
	}
}

func TestRenderVersionHTML(t *testing.T) {
	html, err := RenderVersionHTML(Request{Title: "Lease", Version: 1, Payload: []byte(samplePayload)})
	if err != nil {
		t.Fatalf("RenderVersionHTML() error = %v", err)
	}
	if !strings.Contains(html, "<h1>Lease Agreement</h1>") {
		t.Error("heading not rendered")
	}
	if !strings.Contains(html, "<strong>due monthly</strong>") {
		t.Error("bold run not rendered")
	}
	if strings.Contains(html, "provenance\">") {
		t.Error("provenance section should be omitted for unsigned drafts")
	}
}

func TestRenderVersionHTMLBadPayload(t *testing.T) {
	_, err := RenderVersionHTML(Request{Payload: []byte("{broken")})
	if !errors.Is(err, ErrContentUnavailable) {
		t.Fatalf("expected ErrContentUnavailable, got %v", err)
	}
}

func TestServiceExportDispatchesByFormat(t *testing.T) {
	svc := NewService(nil)
	var gotHTML, gotTitle string
	svc.pdf = func(_ context.Context, html, title string) (*Result, error) {
		gotHTML, gotTitle = html, title
		return &Result{Data: []byte("%PDF"), Filename: sanitizeFilename(title) + ".pdf", MimeType: "application/pdf"}, nil
	}
	svc.docx = func(context.Context, string, string) (*Result, error) {
		return nil, ErrDOCXDependencyMissing
	}

	result, err := svc.Export(context.Background(), Request{Title: "My Lease", Payload: []byte(samplePayload), Format: FormatPDF})
	if err != nil {
		t.Fatalf("Export(pdf) error = %v", err)
	}
	if result.Filename != "My-Lease.pdf" || gotTitle != "My Lease" {
		t.Fatalf("unexpected result %+v title=%q", result, gotTitle)
	}
	if !strings.Contains(gotHTML, "Lease Agreement") {
		t.Error("converter did not receive rendered HTML")
	}

	if _, err := svc.Export(context.Background(), Request{Payload: []byte(samplePayload), Format: FormatDOCX}); !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Fatalf("expected ErrDOCXDependencyMissing, got %v", err)
	}
	if _, err := svc.Export(context.Background(), Request{Payload: []byte(samplePayload), Format: "odt"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
