package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// judgeItem is one element of the judge's JSON array.
type judgeItem struct {
	Severity    string `json:"severity"`
	Claim       string `json:"claim"`
	SourceData  string `json:"sourceData"`
	Explanation string `json:"explanation"`
	Field       string `json:"field"`
}

// judge asks the language model to fact-check the answer. Any failure
// yields no issues and a degraded result.
func judge(ctx context.Context, c oracle.Completer, answer string, cited []trial.Trial, stats StatisticalChecks) oracle.Result[[]Issue] {
	raw, err := c.Complete(ctx, oracle.JudgePrompt(answer, cited, statsSummary(stats)), true)
	if err != nil {
		return oracle.Degraded[[]Issue](nil, err.Error())
	}
	items, err := oracle.DecodeJSON[[]judgeItem](raw)
	if err != nil {
		return oracle.Degraded[[]Issue](nil, err.Error())
	}

	issues := make([]Issue, 0, len(items))
	for _, it := range items {
		claim := strings.TrimSpace(it.Claim)
		if claim == "" {
			continue
		}
		is := Issue{
			Severity:    ParseSeverity(strings.ToLower(strings.TrimSpace(it.Severity))),
			Claim:       claim,
			SourceData:  it.SourceData,
			Explanation: it.Explanation,
			Field:       it.Field,
			Source:      SourceJudge,
		}
		if start := indexFold(answer, claim, 0); start >= 0 {
			is.Span = &Span{Start: start, End: start + len(claim)}
			if ids := CitedIDs(claim); len(ids) == 1 {
				is.TrialID = ids[0]
			}
		}
		issues = append(issues, is)
	}
	return oracle.Ok(issues)
}

// statsSummary renders the aggregate statistics for the judge prompt.
func statsSummary(s StatisticalChecks) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Total trials: %d\n", s.TotalTrials)
	sb.WriteString("Phases: ")
	sb.WriteString(distribution(s.PhaseDistribution))
	sb.WriteString("\nStatuses: ")
	sb.WriteString(distribution(s.StatusDistribution))
	return sb.String()
}

func distribution(counts map[string]int) string {
	if len(counts) == 0 {
		return "(none)"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, ", ")
}
