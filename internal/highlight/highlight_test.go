package highlight

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trialscope/internal/verify"
)

func issueAt(id string, start, end int, sev verify.Severity) verify.Issue {
	return verify.Issue{ID: id, Severity: sev, Claim: "c", Span: &verify.Span{Start: start, End: end}}
}

func joined(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

func TestSegments_RoundTrip(t *testing.T) {
	text := "NCT00000001 enrolled 1000 participants in Boston."
	tests := []struct {
		name   string
		issues []verify.Issue
		count  int
	}{
		{"no issues", nil, 1},
		{"spanless only", []verify.Issue{{ID: "a"}}, 1},
		{"one in middle", []verify.Issue{issueAt("a", 12, 25, verify.SeverityWarning)}, 3},
		{"at start", []verify.Issue{issueAt("a", 0, 11, verify.SeverityCritical)}, 2},
		{"at end", []verify.Issue{issueAt("a", 42, len(text), verify.SeverityInfo)}, 2},
		{"whole text", []verify.Issue{issueAt("a", 0, len(text), verify.SeverityInfo)}, 1},
		{"adjacent unsorted", []verify.Issue{
			issueAt("b", 12, 25, verify.SeverityWarning),
			issueAt("a", 0, 12, verify.SeverityCritical),
		}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := Segments(text, tt.issues)
			assert.Equal(t, text, joined(segs))
			assert.Len(t, segs, tt.count)
		})
	}
}

func TestSegments_EmptyText(t *testing.T) {
	assert.Empty(t, Segments("", nil))
}

func TestSegments_Attribution(t *testing.T) {
	// Given: one overridden and one open issue
	text := "alpha beta gamma"
	issues := []verify.Issue{
		issueAt("g", 11, 16, verify.SeverityInfo),
		issueAt("a", 0, 5, verify.SeverityCritical),
	}
	issues[0].Overridden = true

	// When: the text is segmented
	segs := Segments(text, issues)

	// Then: segments follow text order with their issues attached
	require.Len(t, segs, 3)
	assert.Equal(t, "alpha", segs[0].Text)
	assert.Equal(t, "a", segs[0].Issue.ID)
	assert.Equal(t, " beta ", segs[1].Text)
	assert.Nil(t, segs[1].Issue)
	assert.Equal(t, "gamma", segs[2].Text)
	require.NotNil(t, segs[2].Issue)
	assert.True(t, segs[2].Issue.Overridden)
}

func TestSegments_InvalidSpansIgnored(t *testing.T) {
	text := "short text"
	issues := []verify.Issue{
		issueAt("ok", 0, 5, verify.SeverityWarning),
		issueAt("overlap", 3, 8, verify.SeverityWarning),
		issueAt("outside", 6, 99, verify.SeverityWarning),
		issueAt("empty", 7, 7, verify.SeverityWarning),
	}

	segs := Segments(text, issues)

	assert.Equal(t, text, joined(segs))
	require.Len(t, segs, 2)
	assert.Equal(t, "ok", segs[0].Issue.ID)
}

func TestRenderer_PlainMarkers(t *testing.T) {
	// Given: a non-terminal writer
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)
	text := "See NCT99999999 now, found 40 trials"
	issues := []verify.Issue{
		issueAt("one", 4, 15, verify.SeverityCritical),
		issueAt("two", 21, 36, verify.SeverityInfo),
	}
	issues[1].Overridden = true

	// When: the segments are rendered
	out := r.Render(Segments(text, issues), issues)

	// Then: open issues are bracketed with their number, overridden struck
	assert.Equal(t, "See [[NCT99999999]]^1 now, ~~found 40 trials~~", out)
}

func TestRenderer_Issues(t *testing.T) {
	r := NewRenderer(&bytes.Buffer{}, true)
	issues := []verify.Issue{{
		ID: "x1", Severity: verify.SeverityWarning, Claim: "enrolled 1000",
		Explanation: "off by 100%", SourceData: "Actual enrollment: 500", Source: verify.SourceField,
	}}

	out := r.Issues(issues)

	assert.Contains(t, out, "1 issue(s)")
	assert.Contains(t, out, `1. [warning] "enrolled 1000": off by 100% (Actual enrollment: 500)`)
	assert.Contains(t, out, "id=x1 source=field")
	assert.Equal(t, "No issues found", r.Issues(nil))
}
