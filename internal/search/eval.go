package search

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

// Stores that cannot execute Elasticsearch DSL evaluate the same request in
// Go with the functions below. They follow the index mapping: keyword fields
// compare exactly, text fields match on any shared token.

// FieldValues returns the values of an index field for a trial.
func FieldValues(t *trial.Trial, field string) []string {
	switch field {
	case FieldNCTID:
		return []string{t.NCTID}
	case FieldBriefTitle:
		return nonEmpty(t.BriefTitle)
	case FieldOfficialTitle:
		return nonEmpty(t.OfficialTitle)
	case FieldSummary:
		return nonEmpty(t.Summary)
	case FieldDetailed:
		return nonEmpty(t.DetailedDescription)
	case FieldKeywords:
		return t.Keywords
	case FieldPhase:
		return nonEmpty(string(t.Phase))
	case FieldStatus:
		return nonEmpty(string(t.Status))
	case FieldSource:
		return nonEmpty(t.Source)
	case FieldEnrollment:
		return []string{strconv.Itoa(t.Enrollment)}
	case FieldStartDate:
		return nonEmpty(t.StartDate)
	case FieldQualityScore:
		if t.QualityScore == 0 {
			return nil
		}
		return []string{strconv.FormatFloat(t.QualityScore, 'f', -1, 64)}
	case FieldConditionName:
		return t.ConditionNames()
	case FieldInterventionName:
		return t.InterventionNames()
	}

	var out []string
	switch field {
	case FieldAgencyClass:
		for _, s := range t.Sponsors {
			out = append(out, s.AgencyClass)
		}
	case "sponsors.agency":
		for _, s := range t.Sponsors {
			out = append(out, s.Agency)
		}
	case FieldFacilityCity:
		for _, f := range t.Facilities {
			out = append(out, f.City)
		}
	case FieldFacilityState:
		for _, f := range t.Facilities {
			out = append(out, f.State)
		}
	case FieldFacilityCountry:
		for _, f := range t.Facilities {
			out = append(out, f.Country)
		}
	case "facilities.name":
		for _, f := range t.Facilities {
			out = append(out, f.Name)
		}
	}
	return out
}

// Matches reports whether the trial satisfies the clause.
func (c Clause) Matches(t *trial.Trial) bool {
	switch c.Kind {
	case ClauseTerms:
		for _, v := range FieldValues(t, c.Field) {
			for _, want := range c.Values {
				if v == want {
					return true
				}
			}
		}
		return false

	case ClauseRange:
		for _, v := range FieldValues(t, c.Field) {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			if (c.Gte == nil || n >= *c.Gte) && (c.Lte == nil || n <= *c.Lte) {
				return true
			}
		}
		return false

	case ClauseDateRange:
		started, ok := t.Started()
		if c.Field != FieldStartDate || !ok {
			return false
		}
		if from, ok := parseDay(c.From); ok && started.Before(from) {
			return false
		}
		if to, ok := parseDay(c.To); ok && started.After(to) {
			return false
		}
		return true

	case ClauseContains:
		needle := strings.ToLower(c.Text)
		for _, v := range FieldValues(t, c.Field) {
			if strings.Contains(strings.ToLower(v), needle) {
				return true
			}
		}
		return false

	case ClauseMatch:
		fields := c.Fields
		if len(fields) == 0 {
			fields = []string{c.Field}
		}
		want := Tokens(c.Text)
		for _, f := range fields {
			for _, v := range FieldValues(t, f) {
				if sharesToken(want, Tokens(v)) {
					return true
				}
			}
		}
		return false
	}
	return false
}

// ShouldScore sums the boosts of matching optional clauses and reports how
// many matched.
func (r *Request) ShouldScore(t *trial.Trial) (score float64, matched int) {
	for _, c := range r.Boosts {
		if c.Matches(t) {
			matched++
			boost := c.Boost
			if boost == 0 {
				boost = 1
			}
			score += boost
		}
	}
	return score, matched
}

// Admits reports whether the trial passes every mandatory filter and the
// minimum number of optional clauses.
func (r *Request) Admits(t *trial.Trial) bool {
	for _, c := range r.Filters {
		if !c.Matches(t) {
			return false
		}
	}
	if r.MinimumShouldMatch > 0 {
		if _, matched := r.ShouldScore(t); matched < r.MinimumShouldMatch {
			return false
		}
	}
	return true
}

// BoostFactor is the product of the boost functions for a trial, capped at
// MaxBoost. Returns 1 when the request has no functions.
func (r *Request) BoostFactor(t *trial.Trial) float64 {
	if len(r.Functions) == 0 {
		return 1
	}
	factor := 1.0
	for _, fn := range r.Functions {
		factor *= fn.factor(t)
	}
	if r.MaxBoost > 0 && factor > r.MaxBoost {
		factor = r.MaxBoost
	}
	return factor
}

func (f BoostFunction) factor(t *trial.Trial) float64 {
	if fv := f.FieldValue; fv != nil {
		value := fv.Missing
		if vals := FieldValues(t, fv.Field); len(vals) > 0 {
			if n, err := strconv.ParseFloat(vals[0], 64); err == nil {
				value = n
			}
		}
		return applyModifier(fv.Modifier, fv.Factor*value)
	}
	if f.Filter == nil || f.Filter.Matches(t) {
		return f.Weight
	}
	return 1
}

// applyModifier follows Elasticsearch's field_value_factor modifiers, which
// use base-10 logarithms.
func applyModifier(modifier string, v float64) float64 {
	switch modifier {
	case "log1p":
		return math.Log10(1 + v)
	case "log2p":
		return math.Log10(2 + v)
	case "ln1p":
		return math.Log1p(v)
	case "sqrt":
		return math.Sqrt(v)
	case "square":
		return v * v
	}
	return v
}

// Tokens lowercases text and splits it on anything but letters and digits.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func sharesToken(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, tok := range b {
		set[tok] = struct{}{}
	}
	for _, tok := range a {
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}

func parseDay(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	return t, err == nil
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
