// Package verify fact-checks a narrative answer against the trials it was
// generated from. Citation, statistical and field checks are local and
// authoritative; the language-model judge adds issues when available and
// degrades to none when it is not.
package verify

import (
	"fmt"
	"maps"
	"slices"
	"time"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// Severity ranks an issue. Lower rank sorts first.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// ParseSeverity maps judge output onto a Severity. Unknown values are info.
func ParseSeverity(s string) Severity {
	switch Severity(s) {
	case SeverityCritical, SeverityWarning:
		return Severity(s)
	case "high", "error":
		return SeverityCritical
	case "medium":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// Source names the check that produced an issue.
type Source string

const (
	SourceCitation   Source = "citation"
	SourceStatistics Source = "statistics"
	SourceField      Source = "field"
	SourceJudge      Source = "judge"
)

// Span is a half-open byte range [Start, End) in the answer text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Issue is one problem found in an answer. Overridden is the only field
// that changes after creation.
type Issue struct {
	ID          string   `json:"id"`
	Severity    Severity `json:"severity"`
	Claim       string   `json:"claim"`
	SourceData  string   `json:"sourceData"`
	Explanation string   `json:"explanation"`
	Field       string   `json:"field,omitempty"`
	TrialID     string   `json:"trialId,omitempty"`
	Span        *Span    `json:"span,omitempty"`
	Overridden  bool     `json:"isOverridden"`
	Source      Source   `json:"source"`
}

// JudgeStatus reports how the judge stage ended.
type JudgeStatus string

const (
	JudgeOK       JudgeStatus = "ok"
	JudgeDegraded JudgeStatus = "degraded"
	JudgeSkipped  JudgeStatus = "skipped"
)

// StatisticalChecks summarises the retrieved set and the local claim checks.
type StatisticalChecks struct {
	TotalTrials        int            `json:"totalTrials"`
	PhaseDistribution  map[string]int `json:"phaseDistribution"`
	StatusDistribution map[string]int `json:"statusDistribution"`
	ClaimsVerified     int            `json:"claimsVerified"`
	ClaimsFailed       int            `json:"claimsFailed"`
}

// Result is the outcome of one verification.
type Result struct {
	Issues            []Issue           `json:"issues"`
	ValidCitations    []string          `json:"validCitations"`
	InvalidCitations  []string          `json:"invalidCitations"`
	StatisticalChecks StatisticalChecks `json:"statisticalChecks"`
	JudgeStatus       JudgeStatus       `json:"judgeStatus"`
	JudgeReason       string            `json:"judgeReason,omitempty"`
	VerifiedAt        time.Time         `json:"verifiedAt"`
}

// State is Verified when no issue was found, else IssuesFound.
func (r *Result) State() State {
	if len(r.Issues) == 0 {
		return StateVerified
	}
	return StateIssuesFound
}

// Counts returns the number of issues per severity.
func (r *Result) Counts() map[Severity]int {
	out := map[Severity]int{}
	for _, is := range r.Issues {
		out[is.Severity]++
	}
	return out
}

// Open returns the issues that have not been overridden.
func (r *Result) Open() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if !is.Overridden {
			out = append(out, is)
		}
	}
	return out
}

// Override marks one issue as acknowledged. The issue stays in the list
// and keeps its position.
func (r *Result) Override(issueID string) error {
	for i := range r.Issues {
		if r.Issues[i].ID == issueID {
			r.Issues[i].Overridden = true
			return nil
		}
	}
	return trialerrors.New(trialerrors.ErrCodeIssueNotFound,
		fmt.Sprintf("no issue with id %q", issueID), nil)
}

// Clone returns a deep copy of r. Overriding an issue on the copy leaves r
// unchanged.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Issues = slices.Clone(r.Issues)
	for i := range out.Issues {
		if sp := out.Issues[i].Span; sp != nil {
			cp := *sp
			out.Issues[i].Span = &cp
		}
	}
	out.ValidCitations = slices.Clone(r.ValidCitations)
	out.InvalidCitations = slices.Clone(r.InvalidCitations)
	out.StatisticalChecks.PhaseDistribution = maps.Clone(r.StatisticalChecks.PhaseDistribution)
	out.StatisticalChecks.StatusDistribution = maps.Clone(r.StatisticalChecks.StatusDistribution)
	return &out
}

// Input is everything a verification needs. Trials is the retrieved set the
// answer was generated from.
type Input struct {
	Answer    string        `json:"answer"`
	Citations []string      `json:"citations"`
	Trials    []trial.Trial `json:"trials"`
	// Total is the search total when Trials is one page of it.
	Total int `json:"total,omitempty"`
}

// Config tunes the checks.
type Config struct {
	JudgeEnabled bool `yaml:"judge_enabled" json:"judge_enabled"`
	// TotalTolerance is the absolute slack for "found N trials" claims.
	TotalTolerance int `yaml:"total_tolerance" json:"total_tolerance"`
	// ApproxTolerance is the relative slack for "about N trials" claims.
	ApproxTolerance float64 `yaml:"approx_tolerance" json:"approx_tolerance"`
	// EnrollmentTolerance is the relative slack for enrollment claims.
	EnrollmentTolerance float64 `yaml:"enrollment_tolerance" json:"enrollment_tolerance"`
	// FieldWindow is how many bytes after a citation are scanned for claims.
	FieldWindow  int           `yaml:"field_window" json:"field_window"`
	JudgeTimeout time.Duration `yaml:"judge_timeout" json:"judge_timeout"`
}

// DefaultConfig returns the standard tolerances.
func DefaultConfig() Config {
	return Config{
		JudgeEnabled:        true,
		TotalTolerance:      5,
		ApproxTolerance:     0.5,
		EnrollmentTolerance: 0.10,
		FieldWindow:         300,
		JudgeTimeout:        30 * time.Second,
	}
}
