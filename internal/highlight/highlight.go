// Package highlight splits an answer into plain and issue-attributed
// segments and renders them for a terminal.
package highlight

import (
	"sort"

	"github.com/Aman-CERP/trialscope/internal/verify"
)

// Segment is a run of answer text. Issue is nil for plain text.
type Segment struct {
	Text  string        `json:"text"`
	Issue *verify.Issue `json:"issue,omitempty"`
}

// Segments splits text at the spans of issues. Issues without a span are
// skipped; overridden issues still get their own segment. Concatenating the
// segment texts yields text.
//
// Issue spans must not overlap. A span that starts inside an earlier one, or
// lies outside text, is treated as spanless.
func Segments(text string, issues []verify.Issue) []Segment {
	located := make([]*verify.Issue, 0, len(issues))
	for i := range issues {
		if issues[i].Span != nil {
			located = append(located, &issues[i])
		}
	}
	sort.SliceStable(located, func(i, j int) bool {
		return located[i].Span.Start < located[j].Span.Start
	})

	segments := make([]Segment, 0, 2*len(located)+1)
	cursor := 0
	for _, is := range located {
		start, end := is.Span.Start, is.Span.End
		if start < cursor || start >= end || end > len(text) {
			continue
		}
		if start > cursor {
			segments = append(segments, Segment{Text: text[cursor:start]})
		}
		segments = append(segments, Segment{Text: text[start:end], Issue: is})
		cursor = end
	}
	if cursor < len(text) {
		segments = append(segments, Segment{Text: text[cursor:]})
	}
	return segments
}
