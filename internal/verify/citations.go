package verify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

var nctPattern = regexp.MustCompile(`(?i)\bNCT\d{8}\b`)

// ValidateCitations partitions citations into those present in the
// retrieved set and those that are not. Duplicates are dropped; order is
// kept. Comparison ignores case.
func ValidateCitations(citations []string, trials []trial.Trial) (valid, invalid []string) {
	known := make(map[string]bool, len(trials))
	for i := range trials {
		known[strings.ToUpper(trials[i].NCTID)] = true
	}
	seen := make(map[string]bool, len(citations))
	valid, invalid = []string{}, []string{}
	for _, c := range citations {
		id := strings.ToUpper(strings.TrimSpace(c))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if known[id] {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid
}

// CitedIDs extracts NCT identifiers mentioned in text, in order of first
// mention.
func CitedIDs(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range nctPattern.FindAllString(text, -1) {
		id := strings.ToUpper(m)
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func citationIssues(answer string, invalid []string, retrieved int) []Issue {
	issues := make([]Issue, 0, len(invalid))
	for _, id := range invalid {
		is := Issue{
			Severity:    SeverityCritical,
			Claim:       id,
			SourceData:  fmt.Sprintf("Not found among %d retrieved trials", retrieved),
			Explanation: "Fabricated reference: the cited trial is not in the search results",
			TrialID:     id,
			Source:      SourceCitation,
		}
		if start := indexFold(answer, id, 0); start >= 0 {
			is.Span = &Span{Start: start, End: start + len(id)}
		}
		issues = append(issues, is)
	}
	return issues
}

// indexFold returns the byte offset of the first case-insensitive match of
// needle in s at or after from, or -1.
func indexFold(s, needle string, from int) int {
	if needle == "" {
		return -1
	}
	for i := from; i+len(needle) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(needle)], needle) {
			return i
		}
	}
	return -1
}

// mentions returns the start offsets of every case-insensitive occurrence.
func mentions(s, needle string) []int {
	var out []int
	for i := indexFold(s, needle, 0); i >= 0; i = indexFold(s, needle, i+len(needle)) {
		out = append(out, i)
	}
	return out
}
