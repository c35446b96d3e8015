package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

func TestDomainExpander_AddsSynonymsForKey(t *testing.T) {
	// Given: the default medical table
	e := NewDomainExpander()

	// When: the query names a key
	terms := e.Expand("Heart attack prevention", nil)

	// Then: its synonyms and the raw query are present
	assert.Contains(t, terms, "heart attack prevention")
	assert.Contains(t, terms, "myocardial infarction")
	assert.Contains(t, terms, "acute coronary syndrome")
	assert.IsIncreasing(t, terms)
}

func TestDomainExpander_AddsKeyForSynonym(t *testing.T) {
	e := NewDomainExpander()

	terms := e.Expand("myocardial infarction outcomes", nil)

	assert.Contains(t, terms, "heart attack")
}

func TestDomainExpander_WholeWordMatching(t *testing.T) {
	e := NewDomainExpander()

	terms := e.Expand("symptoms of fatigue", nil)

	assert.NotContains(t, terms, "multiple sclerosis", `"ms" must not match inside "symptoms"`)
}

func TestDomainExpander_MatchesPluralForms(t *testing.T) {
	// Given: queries using plural forms of table phrases
	e := NewDomainExpander()

	// When: expanding them
	cancers := e.Expand("breast cancers", nil)
	attacks := e.Expand("heart attacks", nil)

	// Then: the singular entries still fire
	assert.Contains(t, cancers, "breast carcinoma")
	assert.Contains(t, attacks, "myocardial infarction")
}

func TestDomainExpander_NoMatchInsideWords(t *testing.T) {
	e := NewDomainExpander(WithCustomSynonyms(map[string][]string{"flu": {"influenza"}}))

	assert.NotContains(t, e.Expand("fluid overload", nil), "influenza")
	assert.Contains(t, e.Expand("flu vaccines", nil), "influenza")
	assert.NotContains(t, e.Expand("symptoms", nil), "multiple sclerosis")
}

func TestDomainExpander_IncludesAnalysisTerms(t *testing.T) {
	e := NewDomainExpander(WithSynonymTable(nil))
	analysis := &trial.QueryAnalysis{Condition: "Asthma", Intervention: "Albuterol"}

	terms := e.Expand("Inhaler study", analysis)

	assert.Equal(t, []string{"albuterol", "asthma", "inhaler study"}, terms)
}

func TestDomainExpander_EmptyTableYieldsRawTerms(t *testing.T) {
	e := NewDomainExpander(WithSynonymTable(map[string][]string{}))

	assert.Equal(t, []string{"heart attack"}, e.Expand("Heart attack", nil))
}

func TestDomainExpander_CustomSynonyms(t *testing.T) {
	e := NewDomainExpander(WithCustomSynonyms(map[string][]string{
		" Long COVID ": {"Post-acute sequelae of SARS-CoV-2", " "},
	}))

	terms := e.Expand("long covid fatigue", nil)

	assert.Contains(t, terms, "post-acute sequelae of sars-cov-2")
	assert.NotContains(t, terms, "")
}

func TestDomainExpander_MergeMatchesExpand(t *testing.T) {
	e := NewDomainExpander()
	analysis := &trial.QueryAnalysis{Condition: "Type 2 Diabetes", Intervention: "diabetes"}
	query := "phase 3 diabetes trials"

	merged := e.Merge(e.Expand(query, nil), analysis)

	assert.Equal(t, e.Expand(query, analysis), merged)
	assert.Equal(t, e.Expand(query, nil), e.Merge(e.Expand(query, nil), nil))
}

func TestJoinTerms(t *testing.T) {
	assert.Equal(t, "a b c", JoinTerms([]string{"a", "b", "c"}))
	assert.Empty(t, JoinTerms(nil))
}
