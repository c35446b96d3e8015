package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/service"
	"github.com/Aman-CERP/trialscope/internal/trial"
	"github.com/Aman-CERP/trialscope/internal/verify"
)

// ToSearchOutput converts a search result to the tool output.
func ToSearchOutput(res *search.SearchResult) SearchOutput {
	out := SearchOutput{
		Total:        res.Total,
		Strategy:     string(res.Strategy),
		Results:      make([]TrialResult, 0, len(res.Trials)),
		Aggregations: res.Aggregations,
		Degradations: res.Degradations,
		Request:      res.Request,
		Analysis:     res.Analysis,
	}
	for i := range res.Trials {
		out.Results = append(out.Results, ToTrialResult(&res.Trials[i]))
	}
	return out
}

// ToTrialResult converts one scored trial.
func ToTrialResult(st *trial.ScoredTrial) TrialResult {
	return TrialResult{
		NCTID:          st.NCTID,
		Title:          st.BriefTitle,
		Phase:          string(st.Phase),
		Status:         string(st.Status),
		Sponsor:        st.SponsorName(),
		Enrollment:     st.Enrollment,
		RelevanceScore: st.RelevanceScore,
		MatchReasons:   st.MatchReasons,
	}
}

// ToAskOutput converts an ask result.
func ToAskOutput(res *service.AskResult) AskOutput {
	out := AskOutput{
		Search:            ToSearchOutput(res.Search),
		AnswerDegraded:    res.AnswerDegraded,
		VerificationState: string(res.VerificationState),
		Verification:      ToVerificationOutput(res.Verification),
		Segments:          res.Segments,
	}
	if res.Answer != nil {
		out.Answer = res.Answer.Text
		out.Citations = res.Answer.Citations
	}
	return out
}

// ToVerificationOutput converts a verification result. nil stays nil.
func ToVerificationOutput(res *verify.Result) *VerificationOutput {
	if res == nil {
		return nil
	}
	return &VerificationOutput{
		State:             string(res.State()),
		Issues:            res.Issues,
		ValidCitations:    res.ValidCitations,
		InvalidCitations:  res.InvalidCitations,
		StatisticalChecks: res.StatisticalChecks,
		JudgeStatus:       string(res.JudgeStatus),
		JudgeReason:       res.JudgeReason,
		VerifiedAt:        res.VerifiedAt.Format(time.RFC3339),
	}
}

// FormatSearchResults formats search results as markdown.
func FormatSearchResults(query string, out SearchOutput) string {
	if len(out.Results) == 0 {
		return fmt.Sprintf("No clinical trials found for \"%s\"", query)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Trials for \"%s\"\n\n", query))
	sb.WriteString(fmt.Sprintf("Showing %d of %d trial", len(out.Results), out.Total))
	if out.Total != 1 {
		sb.WriteString("s")
	}
	sb.WriteString(fmt.Sprintf(" (%s search)\n\n", out.Strategy))

	for i, r := range out.Results {
		sb.WriteString(fmt.Sprintf("### %d. %s: %s\n", i+1, r.NCTID, r.Title))
		var facts []string
		if r.Phase != "" {
			facts = append(facts, "Phase: "+r.Phase)
		}
		if r.Status != "" {
			facts = append(facts, "Status: "+r.Status)
		}
		if r.Sponsor != "" {
			facts = append(facts, "Sponsor: "+r.Sponsor)
		}
		if r.Enrollment > 0 {
			facts = append(facts, fmt.Sprintf("Enrollment: %d", r.Enrollment))
		}
		facts = append(facts, fmt.Sprintf("Relevance: %d", r.RelevanceScore))
		sb.WriteString(strings.Join(facts, " | "))
		sb.WriteString("\n")
		if len(r.MatchReasons) > 0 {
			sb.WriteString("*" + strings.Join(r.MatchReasons, "; ") + "*\n")
		}
		sb.WriteString("\n")
	}
	for _, d := range out.Degradations {
		sb.WriteString("> Note: " + d + "\n")
	}
	return sb.String()
}

// FormatVerification formats issues as a markdown list.
func FormatVerification(v *VerificationOutput) string {
	if v == nil {
		return "Answer not verified."
	}
	if len(v.Issues) == 0 {
		return "Verified: no issues found."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d issue", len(v.Issues)))
	if len(v.Issues) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString(":\n\n")
	for _, is := range v.Issues {
		mark := ""
		if is.Overridden {
			mark = " (overridden)"
		}
		sb.WriteString(fmt.Sprintf("- **%s**%s `%s`: %s", is.Severity, mark, is.Claim, is.Explanation))
		if is.SourceData != "" {
			sb.WriteString(" Source: " + is.SourceData + ".")
		}
		sb.WriteString(fmt.Sprintf(" [id: %s]\n", is.ID))
	}
	if v.JudgeStatus == string(verify.JudgeDegraded) {
		sb.WriteString("\n> Judge unavailable: " + v.JudgeReason + "\n")
	}
	return sb.String()
}
