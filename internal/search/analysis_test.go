package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trialscope/internal/cache"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

func newAnalysisCache(t *testing.T) *cache.TTL[string, trial.QueryAnalysis] {
	t.Helper()
	c, err := cache.New[string, trial.QueryAnalysis]("analysis", 256, time.Hour, cache.WithClock(testClock()))
	require.NoError(t, err)
	return c
}

func TestOracleAnalyzer_ParsesAndNormalizes(t *testing.T) {
	// Given: a model reply wrapped in prose
	completer := &scriptedCompleter{reply: "Sure! " + `{"condition":" diabetes ","phase":"Phase III","status":"recruiting","keywords":["diabetes","diabetes"]}`}
	a := NewOracleAnalyzer(completer, nil)

	// When: analyzing
	res := a.Analyze(context.Background(), "Phase 3 diabetes trials")

	// Then: the analysis is normalized
	require.False(t, res.IsDegraded())
	got := res.Value()
	assert.Equal(t, "diabetes", got.Condition)
	assert.Equal(t, trial.Phase3, got.Phase)
	assert.Equal(t, trial.StatusRecruiting, got.Status)
	assert.Equal(t, []string{"diabetes"}, got.Keywords)
}

func TestOracleAnalyzer_CachesByNormalizedQuery(t *testing.T) {
	completer := &scriptedCompleter{reply: `{"condition":"asthma"}`}
	a := NewOracleAnalyzer(completer, newAnalysisCache(t))

	first := a.Analyze(context.Background(), "Asthma  trials")
	second := a.Analyze(context.Background(), "  asthma TRIALS ")

	assert.Equal(t, first.Value(), second.Value())
	assert.Equal(t, 1, completer.calls)
	assert.NotEmpty(t, first.Value().Keywords, "keywords fall back to the query words")
}

func TestOracleAnalyzer_DegradesOnFailure(t *testing.T) {
	tests := []struct {
		name      string
		completer *scriptedCompleter
	}{
		{"oracle error", &scriptedCompleter{err: errors.New("connection refused")}},
		{"not json", &scriptedCompleter{reply: "I cannot help with that"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newAnalysisCache(t)
			a := NewOracleAnalyzer(tt.completer, c)

			res := a.Analyze(context.Background(), "the best asthma trials")

			require.True(t, res.IsDegraded())
			assert.NotEmpty(t, res.Reason())
			assert.Equal(t, trial.KeywordAnalysis("the best asthma trials"), res.Value())
			assert.Equal(t, 0, c.Len(), "degraded analyses are not cached")
		})
	}
}

func TestOracleAnalyzer_NilCompleter(t *testing.T) {
	res := NewOracleAnalyzer(nil, nil).Analyze(context.Background(), "asthma")

	assert.True(t, res.IsDegraded())
}

func TestKeywordAnalyzer(t *testing.T) {
	res := KeywordAnalyzer{}.Analyze(context.Background(), "asthma inhalers")

	assert.False(t, res.IsDegraded())
	assert.Equal(t, trial.KeywordAnalysis("asthma inhalers"), res.Value())
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "phase 3 diabetes", CacheKey("  Phase 3\tDIABETES "))
}
