package search

import (
	"sort"
	"strings"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

// DomainExpander augments a query with medical synonyms so lexical retrieval
// bridges lay and clinical vocabulary ("heart attack" finds "myocardial
// infarction").
type DomainExpander struct {
	synonyms map[string][]string
}

// ExpanderOption configures the expander.
type ExpanderOption func(*DomainExpander)

// WithCustomSynonyms merges extra synonym mappings into the table.
func WithCustomSynonyms(synonyms map[string][]string) ExpanderOption {
	return func(e *DomainExpander) {
		for k, v := range synonyms {
			key := strings.ToLower(strings.TrimSpace(k))
			if key == "" {
				continue
			}
			for _, syn := range v {
				syn = strings.ToLower(strings.TrimSpace(syn))
				if syn != "" {
					e.synonyms[key] = append(e.synonyms[key], syn)
				}
			}
		}
	}
}

// WithSynonymTable replaces the default table.
func WithSynonymTable(synonyms map[string][]string) ExpanderOption {
	return func(e *DomainExpander) {
		e.synonyms = make(map[string][]string, len(synonyms))
		WithCustomSynonyms(synonyms)(e)
	}
}

// NewDomainExpander creates an expander over MedicalSynonyms.
func NewDomainExpander(opts ...ExpanderOption) *DomainExpander {
	e := &DomainExpander{synonyms: make(map[string][]string, len(MedicalSynonyms))}
	for k, v := range MedicalSynonyms {
		e.synonyms[k] = append([]string(nil), v...)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the sorted, de-duplicated search terms for a query: the
// lowercased raw query, the analysis condition and intervention, every
// synonym of a table key the query mentions, and every key whose synonym the
// query mentions. A key or synonym is contained in the query when its words
// appear in order starting at a word boundary, the last one optionally
// pluralized ("breast cancers" mentions "breast cancer"). "ms" does not
// fire inside "symptoms", nor "flu" inside "fluid".
func (e *DomainExpander) Expand(rawQuery string, analysis *trial.QueryAnalysis) []string {
	terms := make(map[string]struct{})
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			terms[s] = struct{}{}
		}
	}

	add(rawQuery)
	if analysis != nil {
		add(analysis.Condition)
		add(analysis.Intervention)
	}

	query := Tokens(rawQuery)
	for key, synonyms := range e.synonyms {
		if containsPhrase(query, key) {
			for _, syn := range synonyms {
				add(syn)
			}
		}
		for _, syn := range synonyms {
			if containsPhrase(query, syn) {
				add(key)
				break
			}
		}
	}

	out := make([]string, 0, len(terms))
	for t := range terms {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Merge adds the analysis condition and intervention to terms produced by
// Expand without an analysis. Expand(q, a) equals Merge(Expand(q, nil), a).
func (e *DomainExpander) Merge(terms []string, analysis *trial.QueryAnalysis) []string {
	out := append([]string(nil), terms...)
	if analysis == nil {
		return out
	}
	for _, extra := range []string{analysis.Condition, analysis.Intervention} {
		extra = strings.ToLower(strings.TrimSpace(extra))
		if extra == "" {
			continue
		}
		i := sort.SearchStrings(out, extra)
		if i < len(out) && out[i] == extra {
			continue
		}
		out = append(out, "")
		copy(out[i+1:], out[i:])
		out[i] = extra
	}
	return out
}

// containsPhrase reports whether phrase occurs in the query tokens as a run
// of tokens, allowing a plural suffix on the final one.
func containsPhrase(query []string, phrase string) bool {
	toks := Tokens(phrase)
	if len(toks) == 0 || len(toks) > len(query) {
		return false
	}
	last := len(toks) - 1
	for i := 0; i+last < len(query); i++ {
		match := true
		for j := 0; j < last; j++ {
			if query[i+j] != toks[j] {
				match = false
				break
			}
		}
		if match && wordForm(query[i+last], toks[last]) {
			return true
		}
	}
	return false
}

// wordForm reports whether tok is word or its plural.
func wordForm(tok, word string) bool {
	if tok == word {
		return true
	}
	suffix, ok := strings.CutPrefix(tok, word)
	return ok && (suffix == "s" || suffix == "es")
}

// JoinTerms renders expanded terms as lexical query text.
func JoinTerms(terms []string) string {
	return strings.Join(terms, " ")
}
