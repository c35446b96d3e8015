package verify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trialscope/internal/cache"
	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

// tenTrials has five PHASE3 and five PHASE2 trials. NCT00000001 enrolled
// 500 and is sponsored by Novartis.
func tenTrials() []trial.Trial {
	out := make([]trial.Trial, 10)
	for i := range out {
		out[i] = trial.Trial{
			NCTID:      fmt.Sprintf("NCT%08d", i+1),
			BriefTitle: fmt.Sprintf("Trial %d", i+1),
			Phase:      trial.Phase3,
			Status:     trial.StatusCompleted,
			Enrollment: 100,
			Source:     "University Hospital",
		}
		if i >= 5 {
			out[i].Phase = trial.Phase2
			out[i].Status = trial.StatusRecruiting
		}
	}
	out[0].Enrollment = 500
	out[0].Source = "Novartis Pharmaceuticals"
	return out
}

type fakeJudge struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeJudge) Complete(_ context.Context, prompt string, _ bool) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("issue-%d", n)
	}
}

func newTestEngine(opts ...Option) *Engine {
	opts = append([]Option{WithIDs(sequentialIDs()), WithClock(cache.NewManualClock(testNow))}, opts...)
	return NewEngine(DefaultConfig(), opts...)
}

func verifyText(t *testing.T, e *Engine, answer string) *Result {
	t.Helper()
	res, err := e.Verify(context.Background(), Input{Answer: answer, Trials: tenTrials()})
	require.NoError(t, err)
	return res
}

func TestValidateCitations_Partitions(t *testing.T) {
	trials := tenTrials()
	tests := []struct {
		name      string
		citations []string
		valid     []string
		invalid   []string
	}{
		{"empty", nil, []string{}, []string{}},
		{"all valid", []string{"NCT00000001", "NCT00000002"}, []string{"NCT00000001", "NCT00000002"}, []string{}},
		{"mixed", []string{"NCT00000001", "NCT99999999"}, []string{"NCT00000001"}, []string{"NCT99999999"}},
		{"case and duplicates", []string{"nct00000003", "NCT00000003", " NCT99999999 "}, []string{"NCT00000003"}, []string{"NCT99999999"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, invalid := ValidateCitations(tt.citations, trials)
			assert.Equal(t, tt.valid, valid)
			assert.Equal(t, tt.invalid, invalid)

			for _, id := range invalid {
				assert.NotContains(t, valid, id)
			}
		})
	}
}

func TestVerify_FabricatedCitationIsCritical(t *testing.T) {
	// Given: an answer citing a trial that was not retrieved
	answer := "See NCT00000001 and NCT12345678 for details."
	e := newTestEngine()

	// When: it is verified
	res := verifyText(t, e, answer)

	// Then: one critical citation issue spans the fabricated ID
	require.Len(t, res.Issues, 1)
	is := res.Issues[0]
	assert.Equal(t, SeverityCritical, is.Severity)
	assert.Equal(t, SourceCitation, is.Source)
	assert.Equal(t, "NCT12345678", is.TrialID)
	require.NotNil(t, is.Span)
	assert.Equal(t, "NCT12345678", answer[is.Span.Start:is.Span.End])

	assert.Equal(t, []string{"NCT00000001"}, res.ValidCitations)
	assert.Equal(t, []string{"NCT12345678"}, res.InvalidCitations)
	assert.Equal(t, StateIssuesFound, res.State())
}

func TestVerify_PhaseCountClaim(t *testing.T) {
	// Given: 10 trials of which 5 are PHASE2
	e := newTestEngine()

	// When: the answer claims 3 of 10 are Phase 2
	res := verifyText(t, e, "Overall, 3 of 10 trials are Phase 2.")

	// Then: a warning cites the real count
	require.Len(t, res.Issues, 1)
	assert.Equal(t, SeverityWarning, res.Issues[0].Severity)
	assert.Equal(t, "Actual: 5 of 10 trials are PHASE2", res.Issues[0].SourceData)
	assert.Equal(t, "3 of 10 trials are Phase 2", res.Issues[0].Claim)
	assert.Equal(t, 0, res.StatisticalChecks.ClaimsVerified)
	assert.Equal(t, 1, res.StatisticalChecks.ClaimsFailed)
}

func TestVerify_CorrectPhaseCountPasses(t *testing.T) {
	res := verifyText(t, newTestEngine(), "In total 5 of 10 studies were phase II.")

	assert.Empty(t, res.Issues)
	assert.Equal(t, 1, res.StatisticalChecks.ClaimsVerified)
	assert.Equal(t, StateVerified, res.State())
}

func TestVerify_CombinedPhaseCount(t *testing.T) {
	// Given: two of the ten trials are PHASE2/PHASE3
	trials := tenTrials()
	trials[8].Phase = trial.Phase2And3
	trials[9].Phase = trial.Phase2And3
	e := newTestEngine()

	// When: the answer states the combined phase count correctly
	res, err := e.Verify(context.Background(), Input{Answer: "Only 2 of 10 trials are Phase 2/3.", Trials: trials})

	// Then: the claim is checked against PHASE2/PHASE3, not PHASE2
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
	assert.Equal(t, 1, res.StatisticalChecks.ClaimsVerified)

	// When: the combined count is wrong
	res, err = e.Verify(context.Background(), Input{Answer: "Only 3 of 10 trials are Phase 2 / 3.", Trials: trials})

	// Then: the warning names the combined phase
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "3 of 10 trials are Phase 2 / 3", res.Issues[0].Claim)
	assert.Equal(t, "Actual: 2 of 10 trials are PHASE2/PHASE3", res.Issues[0].SourceData)
}

func TestVerify_TotalClaims(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		issues int
	}{
		{"exact", "We found 10 trials.", 0},
		{"within tolerance", "We found 15 trials.", 0},
		{"beyond tolerance", "We found 16 trials.", 1},
		{"approximate close", "There are about 14 studies on this.", 0},
		{"approximate far", "Nearly 40 trials match.", 1},
		{"more than", "more than 3 clinical trials were returned", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := verifyText(t, newTestEngine(), tt.answer)
			require.Len(t, res.Issues, tt.issues)
			for _, is := range res.Issues {
				assert.Equal(t, SeverityInfo, is.Severity)
				assert.Equal(t, SourceStatistics, is.Source)
				assert.Equal(t, "Actual: 10 trials", is.SourceData)
			}
		})
	}
}

func TestVerify_TotalUsesSearchTotal(t *testing.T) {
	res, err := newTestEngine().Verify(context.Background(), Input{
		Answer: "I found 240 trials.",
		Trials: tenTrials(),
		Total:  238,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Issues)
	assert.Equal(t, 238, res.StatisticalChecks.TotalTrials)
}

func TestVerify_EnrollmentClaim(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		issues int
	}{
		{"double", "NCT00000001 enrolled 1000 participants.", 1},
		{"four percent", "NCT00000001 enrolled 520 participants.", 0},
		{"with commas", "NCT00000001, with 1,000 patients, ran for two years.", 1},
		{"exact", "NCT00000001 had an enrollment of 500 subjects.", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := verifyText(t, newTestEngine(), tt.answer)
			require.Len(t, res.Issues, tt.issues)
			if tt.issues == 1 {
				is := res.Issues[0]
				assert.Equal(t, SeverityWarning, is.Severity)
				assert.Equal(t, "enrollment", is.Field)
				assert.Equal(t, "NCT00000001", is.TrialID)
				assert.Equal(t, "Actual enrollment: 500", is.SourceData)
				require.NotNil(t, is.Span)
				assert.Equal(t, is.Claim, tt.answer[is.Span.Start:is.Span.End])
			}
		})
	}
}

func TestVerify_FieldPhaseAndSponsor(t *testing.T) {
	// Given: NCT00000001 is PHASE3 and sponsored by Novartis Pharmaceuticals
	answer := "NCT00000001 is a Phase 2 trial sponsored by Pfizer. NCT00000002 is a phase 3 study sponsored by University Hospital."

	// When: it is verified
	res := verifyText(t, newTestEngine(), answer)

	// Then: the phase mismatch is a warning and the sponsor mismatch info
	require.Len(t, res.Issues, 2)
	assert.Equal(t, SeverityWarning, res.Issues[0].Severity)
	assert.Equal(t, "phase", res.Issues[0].Field)
	assert.Equal(t, "Actual phase: PHASE3", res.Issues[0].SourceData)
	assert.Equal(t, SeverityInfo, res.Issues[1].Severity)
	assert.Equal(t, "sponsor", res.Issues[1].Field)
	assert.Equal(t, "sponsored by Pfizer", res.Issues[1].Claim)

	// And: the claims about NCT00000002 passed
	assert.Equal(t, 2, res.StatisticalChecks.ClaimsVerified)
	assert.Equal(t, 2, res.StatisticalChecks.ClaimsFailed)
}

func TestVerify_SponsorSubstringPasses(t *testing.T) {
	res := verifyText(t, newTestEngine(), "NCT00000001 was sponsored by Novartis.")
	assert.Empty(t, res.Issues)
}

func TestVerify_FieldWindowStopsAtNextCitation(t *testing.T) {
	// The enrollment claim belongs to NCT00000002 (true 100), not NCT00000001.
	res := verifyText(t, newTestEngine(), "NCT00000001 and NCT00000002 enrolled 100 patients.")
	assert.Empty(t, res.Issues)
}

func TestVerify_JudgeIssuesLocated(t *testing.T) {
	// Given: a judge that flags one claim
	answer := "Metformin lowered HbA1c by 3 points in NCT00000001."
	j := &fakeJudge{reply: "Here you go:\n" +
		`[{"severity":"WARNING","claim":"lowered hba1c by 3 points","sourceData":"no outcome data","explanation":"unsupported","field":"outcome"},` +
		`{"severity":"info","claim":"not in the text","sourceData":"","explanation":"x"}]`}
	e := newTestEngine(WithJudge(j))

	// When: it is verified
	res := verifyText(t, e, answer)

	// Then: the judge ran with the cited trial and statistics
	require.Len(t, j.prompts, 1)
	assert.Contains(t, j.prompts[0], "NCT00000001: Trial 1")
	assert.Contains(t, j.prompts[0], "PHASE2=5, PHASE3=5")
	assert.Equal(t, JudgeOK, res.JudgeStatus)

	// And: the located claim has a span, the other none
	require.Len(t, res.Issues, 2)
	located := res.Issues[0]
	assert.Equal(t, SeverityWarning, located.Severity)
	assert.Equal(t, SourceJudge, located.Source)
	require.NotNil(t, located.Span)
	assert.Equal(t, "lowered HbA1c by 3 points", answer[located.Span.Start:located.Span.End])
	assert.Nil(t, res.Issues[1].Span)
}

func TestVerify_JudgeFailureKeepsLocalIssues(t *testing.T) {
	// Given: a judge that always fails
	j := &fakeJudge{err: errors.New("connection refused")}
	e := newTestEngine(WithJudge(j))

	// When: an answer with a fabricated citation is verified
	res := verifyText(t, e, "Try NCT87654321.")

	// Then: the local issue stands and the judge is degraded
	require.Len(t, res.Issues, 1)
	assert.Equal(t, SourceCitation, res.Issues[0].Source)
	assert.Equal(t, JudgeDegraded, res.JudgeStatus)
	assert.Contains(t, res.JudgeReason, "connection refused")
}

func TestVerify_MalformedJudgeOutputDegrades(t *testing.T) {
	j := &fakeJudge{reply: "I could not decide."}
	res := verifyText(t, newTestEngine(WithJudge(j)), "Nothing to see.")

	assert.Empty(t, res.Issues)
	assert.Equal(t, JudgeDegraded, res.JudgeStatus)
}

func TestVerify_JudgeDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JudgeEnabled = false
	j := &fakeJudge{reply: "[]"}
	e := NewEngine(cfg, WithJudge(j))

	res, err := e.Verify(context.Background(), Input{Answer: "Fine.", Trials: tenTrials()})
	require.NoError(t, err)
	assert.Equal(t, JudgeSkipped, res.JudgeStatus)
	assert.Empty(t, j.prompts)
}

func TestVerify_OverlappingSpansKeepFirst(t *testing.T) {
	// Given: the judge flags text that overlaps a field issue
	answer := "NCT00000001 enrolled 1000 participants."
	j := &fakeJudge{reply: `[{"severity":"critical","claim":"1000 participants","sourceData":"500","explanation":"wrong"}]`}

	// When: it is verified
	res := verifyText(t, newTestEngine(WithJudge(j)), answer)

	// Then: both issues are kept, sorted by severity
	require.Len(t, res.Issues, 2)
	assert.Equal(t, SourceJudge, res.Issues[0].Source)
	assert.Equal(t, SourceField, res.Issues[1].Source)

	// And: only the earlier stage keeps its span
	assert.Nil(t, res.Issues[0].Span)
	require.NotNil(t, res.Issues[1].Span)

	// And: remaining spans never overlap and stay inside the text
	assertSpansValid(t, answer, res.Issues)
}

func TestVerify_SeverityOrderIsStable(t *testing.T) {
	answer := "We found 40 trials. NCT00000001 is Phase 2. See NCT99999999. Also 1 of 10 trials are Phase 3."
	res := verifyText(t, newTestEngine(), answer)

	var severities []Severity
	for _, is := range res.Issues {
		severities = append(severities, is.Severity)
	}
	assert.Equal(t, []Severity{SeverityCritical, SeverityWarning, SeverityWarning, SeverityInfo}, severities)
	// Within a severity, stage order is kept: statistics before fields.
	assert.Equal(t, SourceStatistics, res.Issues[1].Source)
	assert.Equal(t, SourceField, res.Issues[2].Source)
	assertSpansValid(t, answer, res.Issues)
}

func TestVerify_Distributions(t *testing.T) {
	res := verifyText(t, newTestEngine(), "Nothing to check.")
	assert.Equal(t, map[string]int{"PHASE2": 5, "PHASE3": 5}, res.StatisticalChecks.PhaseDistribution)
	assert.Equal(t, map[string]int{"COMPLETED": 5, "RECRUITING": 5}, res.StatisticalChecks.StatusDistribution)
	assert.Equal(t, 10, res.StatisticalChecks.TotalTrials)
	assert.Equal(t, testNow, res.VerifiedAt)
}

func TestVerify_RejectsEmptyAnswer(t *testing.T) {
	_, err := newTestEngine().Verify(context.Background(), Input{Answer: "  "})
	require.Error(t, err)
	assert.True(t, trialerrors.IsValidation(err))

	_, err = newTestEngine().Verify(context.Background(), Input{Answer: strings.Repeat("a", MaxAnswerLength+1)})
	assert.True(t, trialerrors.IsValidation(err))
}

func TestVerify_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Verify(ctx, Input{Answer: "text", Trials: tenTrials()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResult_Override(t *testing.T) {
	// Given: a result with two issues
	res := verifyText(t, newTestEngine(), "See NCT99999999. We found 50 trials.")
	require.Len(t, res.Issues, 2)
	before := append([]Issue(nil), res.Issues...)

	// When: the second issue is overridden
	require.NoError(t, res.Override(before[1].ID))

	// Then: only its flag changed
	assert.True(t, res.Issues[1].Overridden)
	assert.False(t, res.Issues[0].Overridden)
	before[1].Overridden = true
	assert.Equal(t, before, res.Issues)
	assert.Len(t, res.Open(), 1)

	// And: unknown IDs are reported
	err := res.Override("nope")
	assert.Equal(t, trialerrors.ErrCodeIssueNotFound, trialerrors.GetCode(err))
}

func TestResult_CloneIsIndependent(t *testing.T) {
	// Given: a result with one issue
	res := verifyText(t, newTestEngine(), "See NCT99999999.")
	require.Len(t, res.Issues, 1)

	// When: the clone is overridden and edited
	cp := res.Clone()
	require.NoError(t, cp.Override(res.Issues[0].ID))
	cp.Issues[0].Span.Start = 99
	cp.StatisticalChecks.PhaseDistribution["PHASE3"] = 0

	// Then: the original is unchanged
	assert.False(t, res.Issues[0].Overridden)
	assert.NotEqual(t, 99, res.Issues[0].Span.Start)
	assert.Equal(t, 5, res.StatisticalChecks.PhaseDistribution["PHASE3"])
	assert.Nil(t, (*Result)(nil).Clone())
}

func TestTracker_States(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, StateNotVerified, tr.State())
	e := newTestEngine()

	_, err := tr.Run(context.Background(), e, Input{Answer: "Fine.", Trials: tenTrials()})
	require.NoError(t, err)
	assert.Equal(t, StateVerified, tr.State())

	res, err := tr.Run(context.Background(), e, Input{Answer: "See NCT99999999.", Trials: tenTrials()})
	require.NoError(t, err)
	assert.Equal(t, StateIssuesFound, tr.State())
	require.NoError(t, tr.Override(res.Issues[0].ID))
	assert.Equal(t, StateIssuesFound, tr.State())
	assert.True(t, tr.Result().Issues[0].Overridden)

	_, err = tr.Run(context.Background(), e, Input{Answer: ""})
	require.Error(t, err)
	assert.Equal(t, StateNotVerified, tr.State())
	assert.Nil(t, tr.Result())
	assert.Equal(t, err, tr.Err())
}

func assertSpansValid(t *testing.T, text string, issues []Issue) {
	t.Helper()
	var spans []Span
	for _, is := range issues {
		if is.Span == nil {
			continue
		}
		s := *is.Span
		assert.GreaterOrEqual(t, s.Start, 0)
		assert.Less(t, s.Start, s.End)
		assert.LessOrEqual(t, s.End, len(text))
		for _, o := range spans {
			assert.False(t, s.overlaps(o), "spans %v and %v overlap", s, o)
		}
		spans = append(spans, s)
	}
}
