// Package compare produces a character-level diff between the plain text of
// two document versions.
package compare

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	OpEqual  = "equal"
	OpInsert = "insert"
	OpDelete = "delete"
)

type Segment struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

type Result struct {
	Segments []Segment `json:"segments"`
	Added    int       `json:"added"`
	Removed  int       `json:"removed"`
}

// Text diffs from against to. Adjacent edits are merged into human-readable
// chunks before segments are emitted.
func Text(from, to string) Result {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(from, to, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	result := Result{Segments: make([]Segment, 0, len(diffs))}
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		segment := Segment{Text: d.Text}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			segment.Op = OpInsert
			result.Added += utf8.RuneCountInString(d.Text)
		case diffmatchpatch.DiffDelete:
			segment.Op = OpDelete
			result.Removed += utf8.RuneCountInString(d.Text)
		default:
			segment.Op = OpEqual
		}
		result.Segments = append(result.Segments, segment)
	}
	return result
}

// Changed reports whether the diff contains any insertion or deletion.
func (r Result) Changed() bool {
	return r.Added > 0 || r.Removed > 0
}
