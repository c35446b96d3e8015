package mcp

import (
	"github.com/Aman-CERP/trialscope/internal/highlight"
	"github.com/Aman-CERP/trialscope/internal/trial"
	"github.com/Aman-CERP/trialscope/internal/verify"
)

// Tool names.
const (
	ToolSearch    = "search_trials"
	ToolAsk       = "ask"
	ToolVerify    = "verify_answer"
	ToolHighlight = "highlight_answer"
	ToolOverride  = "override_issue"
)

// SearchInput defines the input schema for the search_trials and ask tools.
type SearchInput struct {
	Query    string               `json:"query" jsonschema:"the clinical trial search query or question"`
	Mode     string               `json:"mode,omitempty" jsonschema:"retrieval strategy: hybrid, keyword or semantic"`
	Limit    int                  `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Page     int                  `json:"page,omitempty" jsonschema:"1-based result page"`
	Filters  *trial.SearchFilters `json:"filters,omitempty" jsonschema:"structured filters: phase, status, location, sponsor, enrollment, dates"`
	Explain  bool                 `json:"explain,omitempty" jsonschema:"include the rendered store request"`
	Markdown bool                 `json:"markdown,omitempty" jsonschema:"also return a markdown summary"`
}

// SearchOutput defines the output schema for the search_trials tool.
type SearchOutput struct {
	Total        int                 `json:"total" jsonschema:"number of matching trials"`
	Strategy     string              `json:"strategy" jsonschema:"retrieval strategy actually used"`
	Results      []TrialResult       `json:"results" jsonschema:"ranked trials"`
	Aggregations trial.Aggregations  `json:"aggregations" jsonschema:"facet counts by phase, status and sponsor"`
	Degradations []string            `json:"degradations,omitempty" jsonschema:"features that fell back"`
	Request      map[string]any      `json:"request,omitempty" jsonschema:"rendered store request when explain is set"`
	Analysis     trial.QueryAnalysis `json:"analysis" jsonschema:"structured hints extracted from the query"`
}

// TrialResult is one ranked trial.
type TrialResult struct {
	NCTID          string   `json:"nct_id"`
	Title          string   `json:"title"`
	Phase          string   `json:"phase,omitempty"`
	Status         string   `json:"status,omitempty"`
	Sponsor        string   `json:"sponsor,omitempty"`
	Enrollment     int      `json:"enrollment,omitempty"`
	RelevanceScore int      `json:"relevance_score" jsonschema:"relevance from 0 to 100"`
	MatchReasons   []string `json:"match_reasons,omitempty"`
}

// AskOutput defines the output schema for the ask tool.
type AskOutput struct {
	Search            SearchOutput        `json:"search"`
	Answer            string              `json:"answer,omitempty" jsonschema:"narrative answer, empty for non-questions"`
	Citations         []string            `json:"citations,omitempty"`
	AnswerDegraded    string              `json:"answer_degraded,omitempty" jsonschema:"why the templated answer was used"`
	VerificationState string              `json:"verification_state" jsonschema:"not_verified, verified or issues_found"`
	Verification      *VerificationOutput `json:"verification,omitempty"`
	Segments          []highlight.Segment `json:"segments,omitempty"`
}

// VerificationOutput is a verification result with the timestamp as text.
type VerificationOutput struct {
	State             string                   `json:"state" jsonschema:"verified or issues_found"`
	Issues            []verify.Issue           `json:"issues"`
	ValidCitations    []string                 `json:"valid_citations"`
	InvalidCitations  []string                 `json:"invalid_citations"`
	StatisticalChecks verify.StatisticalChecks `json:"statistical_checks"`
	JudgeStatus       string                   `json:"judge_status" jsonschema:"ok, degraded or skipped"`
	JudgeReason       string                   `json:"judge_reason,omitempty"`
	VerifiedAt        string                   `json:"verified_at"`
}

// VerifyInput defines the input schema for the verify_answer tool.
type VerifyInput struct {
	Answer    string        `json:"answer" jsonschema:"the narrative answer to fact-check"`
	Citations []string      `json:"citations,omitempty" jsonschema:"NCT IDs the answer cites; extracted from the answer when omitted"`
	Trials    []trial.Trial `json:"trials" jsonschema:"the retrieved trial records the answer was written from"`
	Total     int           `json:"total,omitempty" jsonschema:"total search hits when trials is one page"`
}

// HighlightInput defines the input schema for the highlight_answer tool.
type HighlightInput struct {
	Text   string         `json:"text,omitempty" jsonschema:"text to segment; the session's latest answer when empty"`
	Issues []verify.Issue `json:"issues,omitempty" jsonschema:"verification issues with spans"`
}

// HighlightOutput defines the output schema for the highlight_answer tool.
type HighlightOutput struct {
	Segments []highlight.Segment `json:"segments"`
}

// OverrideInput defines the input schema for the override_issue tool.
type OverrideInput struct {
	IssueID string `json:"issue_id" jsonschema:"ID of the issue to acknowledge in the session's latest answer"`
}

// OverrideOutput defines the output schema for the override_issue tool.
type OverrideOutput struct {
	Verification *VerificationOutput `json:"verification"`
	Segments     []highlight.Segment `json:"segments,omitempty"`
}
