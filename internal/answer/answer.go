// Package answer produces the narrative answer for question-shaped queries
// and the per-trial match explanations. Both fall back to deterministic
// text when the language model cannot be used.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/trialscope/internal/cache"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// FallbackTopResults is how many IDs the templated answer lists.
const FallbackTopResults = 3

// Answer is a narrative answer with the trials it cites.
type Answer struct {
	Text      string   `json:"answer"`
	Citations []string `json:"citations"`
}

// Generator writes narrative answers over retrieved trials.
type Generator struct {
	completer oracle.Completer
	cache     *cache.TTL[string, Answer]
}

// NewGenerator creates a generator. A nil completer always falls back; a
// nil cache disables caching.
func NewGenerator(completer oracle.Completer, c *cache.TTL[string, Answer]) *Generator {
	return &Generator{completer: completer, cache: c}
}

// Generate answers query from trials, one page of total search matches.
// Only oracle answers are cached.
func (g *Generator) Generate(ctx context.Context, query string, trials []trial.Trial, total int) oracle.Result[Answer] {
	key := answerKey(query, trials)
	if g.cache != nil {
		if cached, ok := g.cache.Get(key); ok {
			return oracle.Ok(cached)
		}
	}

	fallback := Fallback(query, trials, total)
	if g.completer == nil {
		return oracle.Degraded(fallback, "no language model configured")
	}
	if len(trials) == 0 {
		return oracle.Degraded(fallback, "no trials to answer from")
	}

	reply, err := g.completer.Complete(ctx, oracle.AnswerPrompt(query, trials), true)
	if err != nil {
		return oracle.Degraded(fallback, "answer generation failed: "+err.Error())
	}
	parsed, err := oracle.DecodeJSON[Answer](reply)
	if err != nil {
		return oracle.Degraded(fallback, "answer unparseable: "+err.Error())
	}
	parsed.Text = strings.TrimSpace(parsed.Text)
	if parsed.Text == "" {
		return oracle.Degraded(fallback, "answer was empty")
	}
	parsed.Citations = cleanCitations(parsed.Citations)

	if g.cache != nil {
		g.cache.Set(key, parsed)
	}
	return oracle.Ok(parsed)
}

// Fallback is the templated answer used without a language model. It
// reports total matches; a total below len(trials) counts trials instead.
func Fallback(query string, trials []trial.Trial, total int) Answer {
	if len(trials) == 0 {
		return Answer{
			Text:      fmt.Sprintf("No clinical trials found matching %q.", query),
			Citations: []string{},
		}
	}
	top := make([]string, 0, FallbackTopResults)
	for i := 0; i < len(trials) && len(top) < FallbackTopResults; i++ {
		if trials[i].NCTID != "" {
			top = append(top, trials[i].NCTID)
		}
	}
	return Answer{
		Text: fmt.Sprintf("Found %d clinical trials matching %q. Top results: %s.",
			max(total, len(trials)), query, strings.Join(top, ", ")),
		Citations: top,
	}
}

// cleanCitations uppercases, trims and deduplicates citations. Malformed
// IDs are kept so verification reports them as invalid.
func cleanCitations(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, c := range in {
		id := strings.ToUpper(strings.TrimSpace(c))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func answerKey(query string, trials []trial.Trial) string {
	var sb strings.Builder
	sb.WriteString(normalize(query))
	for i := range trials {
		sb.WriteByte('|')
		sb.WriteString(trials[i].NCTID)
	}
	return sb.String()
}

func normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
