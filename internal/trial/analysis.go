package trial

import "strings"

// QueryAnalysis holds the structured hints extracted from a free-text query.
// Empty fields mean the hint is absent. A QueryAnalysis is produced once per
// query and never modified afterwards.
type QueryAnalysis struct {
	Condition      string   `json:"condition,omitempty"`
	Phase          Phase    `json:"phase,omitempty"`
	Status         Status   `json:"status,omitempty"`
	Location       string   `json:"location,omitempty"`
	Sponsor        string   `json:"sponsor,omitempty"`
	Intervention   string   `json:"intervention,omitempty"`
	AgeGroup       string   `json:"ageGroup,omitempty"`
	EnrollmentSize string   `json:"enrollmentSize,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// IsEmpty reports whether no structured hint was extracted.
func (a *QueryAnalysis) IsEmpty() bool {
	if a == nil {
		return true
	}
	return a.Condition == "" && a.Phase == "" && a.Status == "" &&
		a.Location == "" && a.Sponsor == "" && a.Intervention == "" &&
		a.AgeGroup == "" && a.EnrollmentSize == "" && len(a.Keywords) == 0
}

// Normalized returns a copy with phase and status in stored form and
// keywords trimmed. Callers hand the copy downstream.
func (a QueryAnalysis) Normalized() QueryAnalysis {
	out := a
	out.Condition = strings.TrimSpace(a.Condition)
	out.Intervention = strings.TrimSpace(a.Intervention)
	out.Location = strings.TrimSpace(a.Location)
	out.Sponsor = strings.TrimSpace(a.Sponsor)
	out.Phase = NormalizePhase(string(a.Phase))
	out.Status = NormalizeStatus(string(a.Status))
	out.Keywords = nil
	seen := make(map[string]bool, len(a.Keywords))
	for _, kw := range a.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" || seen[strings.ToLower(kw)] {
			continue
		}
		seen[strings.ToLower(kw)] = true
		out.Keywords = append(out.Keywords, kw)
	}
	return out
}

// stopWords are dropped when building a keyword-only analysis.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"for": true, "in": true, "on": true, "with": true, "to": true, "by": true,
	"is": true, "are": true, "was": true, "were": true, "what": true,
	"which": true, "who": true, "how": true, "show": true, "me": true,
	"find": true, "trials": true, "trial": true, "studies": true, "study": true,
	"any": true, "there": true, "about": true, "clinical": true, "list": true,
}

// KeywordAnalysis is the deterministic fallback analysis: the query's
// non-stop-word tokens as keywords and no structured hints.
func KeywordAnalysis(query string) QueryAnalysis {
	var keywords []string
	seen := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(query), isSeparator) {
		if len(tok) < 2 || stopWords[tok] || seen[tok] {
			continue
		}
		seen[tok] = true
		keywords = append(keywords, tok)
	}
	return QueryAnalysis{Keywords: keywords}
}

func isSeparator(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		return false
	case r > 127:
		return false
	}
	return true
}
