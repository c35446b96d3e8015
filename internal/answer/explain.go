package answer

import (
	"context"
	"strings"

	"github.com/Aman-CERP/trialscope/internal/cache"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

const noReasons = "Matched on general relevance to the query."

// Explainer writes a short paragraph on why a trial matched a query.
type Explainer struct {
	completer oracle.Completer
	cache     *cache.TTL[string, string]
}

// NewExplainer creates an explainer. Either argument may be nil.
func NewExplainer(completer oracle.Completer, c *cache.TTL[string, string]) *Explainer {
	return &Explainer{completer: completer, cache: c}
}

// Explain returns the oracle explanation, or the match reasons joined into
// a sentence.
func (e *Explainer) Explain(ctx context.Context, query string, t *trial.ScoredTrial) oracle.Result[string] {
	key := normalize(query) + "|" + t.NCTID
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			return oracle.Ok(cached)
		}
	}

	fallback := joinReasons(t.MatchReasons)
	if e.completer == nil {
		return oracle.Degraded(fallback, "no language model configured")
	}
	reply, err := e.completer.Complete(ctx, oracle.ExplainPrompt(query, &t.Trial, t.MatchReasons), false)
	if err != nil {
		return oracle.Degraded(fallback, "explanation failed: "+err.Error())
	}
	text := strings.TrimSpace(reply)
	if text == "" {
		return oracle.Degraded(fallback, "explanation was empty")
	}
	if e.cache != nil {
		e.cache.Set(key, text)
	}
	return oracle.Ok(text)
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return noReasons
	}
	return strings.Join(reasons, "; ") + "."
}
