package search

import (
	"context"
	"strings"

	"github.com/Aman-CERP/trialscope/internal/cache"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// Analyzer extracts structured hints from a query. It never fails: when the
// language model cannot be used the result is degraded and carries the
// keyword-only analysis.
type Analyzer interface {
	Analyze(ctx context.Context, query string) oracle.Result[trial.QueryAnalysis]
}

// OracleAnalyzer asks the language model for a QueryAnalysis and caches
// successful analyses by normalized query.
type OracleAnalyzer struct {
	completer oracle.Completer
	cache     *cache.TTL[string, trial.QueryAnalysis]
}

// NewOracleAnalyzer creates an analyzer. A nil cache disables caching.
func NewOracleAnalyzer(completer oracle.Completer, c *cache.TTL[string, trial.QueryAnalysis]) *OracleAnalyzer {
	return &OracleAnalyzer{completer: completer, cache: c}
}

// Analyze implements Analyzer.
func (a *OracleAnalyzer) Analyze(ctx context.Context, query string) oracle.Result[trial.QueryAnalysis] {
	key := CacheKey(query)
	if a.cache != nil {
		if cached, ok := a.cache.Get(key); ok {
			return oracle.Ok(cached)
		}
	}

	fallback := trial.KeywordAnalysis(query)
	if a.completer == nil {
		return oracle.Degraded(fallback, "no language model configured")
	}

	reply, err := a.completer.Complete(ctx, oracle.AnalyzePrompt(query), true)
	if err != nil {
		return oracle.Degraded(fallback, "query analysis failed: "+err.Error())
	}
	parsed, err := oracle.DecodeJSON[trial.QueryAnalysis](reply)
	if err != nil {
		return oracle.Degraded(fallback, "query analysis unparseable: "+err.Error())
	}

	analysis := parsed.Normalized()
	if len(analysis.Keywords) == 0 {
		analysis.Keywords = fallback.Keywords
	}
	if a.cache != nil {
		a.cache.Set(key, analysis)
	}
	return oracle.Ok(analysis)
}

// KeywordAnalyzer always returns the keyword-only analysis. Used when the
// caller wants no language model involvement at all.
type KeywordAnalyzer struct{}

// Analyze implements Analyzer.
func (KeywordAnalyzer) Analyze(_ context.Context, query string) oracle.Result[trial.QueryAnalysis] {
	return oracle.Ok(trial.KeywordAnalysis(query))
}

// CacheKey normalizes a query for cache lookups: lowercased with collapsed
// whitespace.
func CacheKey(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
