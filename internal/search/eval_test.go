package search

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

func TestClause_Matches(t *testing.T) {
	trials := sampleTrials()
	metformin := &trials[0]

	tests := []struct {
		name   string
		clause Clause
		want   bool
	}{
		{"terms hit", Clause{Kind: ClauseTerms, Field: FieldPhase, Values: []string{"PHASE2", "PHASE3"}}, true},
		{"terms miss", Clause{Kind: ClauseTerms, Field: FieldPhase, Values: []string{"PHASE1"}}, false},
		{"nested terms", Clause{Kind: ClauseTerms, Path: PathSponsors, Field: FieldAgencyClass, Values: []string{"INDUSTRY"}}, true},
		{"range inside", Clause{Kind: ClauseRange, Field: FieldEnrollment, Gte: floatPtr(500), Lte: floatPtr(1000)}, true},
		{"range outside", Clause{Kind: ClauseRange, Field: FieldEnrollment, Lte: floatPtr(100)}, false},
		{"date after", Clause{Kind: ClauseDateRange, Field: FieldStartDate, From: "2025-10-17"}, true},
		{"date before", Clause{Kind: ClauseDateRange, Field: FieldStartDate, To: "2020-01-01"}, false},
		{"contains", Clause{Kind: ClauseContains, Field: FieldSource, Text: "NOVART"}, true},
		{"match shares token", Clause{Kind: ClauseMatch, Field: FieldConditionName, Text: "diabetes"}, true},
		{"match multi field", Clause{Kind: ClauseMatch, Fields: []string{FieldFacilityCity, FieldFacilityState}, Text: "boston area"}, true},
		{"match miss", Clause{Kind: ClauseMatch, Field: FieldConditionName, Text: "asthma"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.clause.Matches(metformin))
		})
	}
}

func TestRequest_BoostFactor(t *testing.T) {
	b := newTestBuilder()
	req, err := b.Build(BuildInput{Query: "diabetes"})
	require.NoError(t, err)
	trials := sampleTrials()

	// Given: a recruiting, recent, large, industry, high-quality phase 3 trial
	// Then: the product exceeds the cap and is clamped
	assert.Equal(t, DefaultMaxBoost, req.BoostFactor(&trials[0]))

	// Given: a trial matching only the quality function
	// Then: the factor is log10(1 + 0.1*60)
	assert.InDelta(t, math.Log10(7), req.BoostFactor(&trials[1]), 1e-9)

	assert.Equal(t, 1.0, (&Request{}).BoostFactor(&trials[0]))
}

func TestRequest_Admits(t *testing.T) {
	trials := sampleTrials()
	req := &Request{
		Filters:            []Clause{{Kind: ClauseTerms, Field: FieldPhase, Values: []string{"PHASE3"}}},
		Boosts:             []Clause{{Kind: ClauseMatch, Field: FieldConditionName, Text: "diabetes", Boost: 2}},
		MinimumShouldMatch: 1,
	}

	assert.True(t, req.Admits(&trials[0]))
	assert.False(t, req.Admits(&trials[1]), "phase filter")
	assert.False(t, req.Admits(&trials[2]), "no optional clause matched")

	score, matched := req.ShouldScore(&trials[0])
	assert.Equal(t, 2.0, score)
	assert.Equal(t, 1, matched)
}

func TestFieldValues(t *testing.T) {
	trials := sampleTrials()

	assert.Equal(t, []string{"Type 2 Diabetes"}, FieldValues(&trials[0], FieldConditionName))
	assert.Equal(t, []string{"800"}, FieldValues(&trials[0], FieldEnrollment))
	assert.Empty(t, FieldValues(&trial.Trial{}, FieldSource))
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"type", "2", "diabetes"}, Tokens("Type-2 Diabetes!"))
}
