package verify

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

var (
	enrollmentPattern = regexp.MustCompile(
		`(?i)\b(?:enrolled|enrolling|enrollment\s+of|with)\s+(\d[\d,]*)\s+(?:participants|patients|subjects)\b`)
	fieldPhasePattern = regexp.MustCompile(
		`(?i)\bphase\s+(\d(?:\s*/\s*\d)?|iv|i{1,3})\b`)
	sponsorPattern = regexp.MustCompile(
		`(?i:sponsored\s+by)\s+(?:the\s+)?([A-Z][\w&'-]*(?:\s+(?:of\s+|for\s+|&\s+)?[A-Z][\w&'-]*)*)`)
)

// checkFields scans the text after each mention of a valid citation for
// enrollment, phase and sponsor assertions about that trial. A window ends
// early at the next NCT identifier.
func checkFields(answer string, valid []string, byID map[string]*trial.Trial, cfg Config) checkOutcome {
	var out checkOutcome
	for _, id := range valid {
		t := byID[id]
		if t == nil {
			continue
		}
		for _, at := range mentions(answer, id) {
			start := at + len(id)
			end := min(start+cfg.FieldWindow, len(answer))
			if next := nctPattern.FindStringIndex(answer[start:end]); next != nil {
				end = start + next[0]
			}
			window := answer[start:end]
			checkEnrollment(&out, window, start, t, cfg)
			checkPhase(&out, window, start, t)
			checkSponsor(&out, window, start, t)
		}
	}
	return out
}

func checkEnrollment(out *checkOutcome, window string, offset int, t *trial.Trial, cfg Config) {
	if t.Enrollment <= 0 {
		return
	}
	for _, m := range enrollmentPattern.FindAllStringSubmatchIndex(window, -1) {
		claimed, err := strconv.Atoi(strings.ReplaceAll(window[m[2]:m[3]], ",", ""))
		if err != nil {
			continue
		}
		out.checked++
		if withinRelative(float64(claimed), float64(t.Enrollment), cfg.EnrollmentTolerance) {
			continue
		}
		out.issues = append(out.issues, Issue{
			Severity:   SeverityWarning,
			Claim:      window[m[0]:m[1]],
			SourceData: fmt.Sprintf("Actual enrollment: %d", t.Enrollment),
			Explanation: fmt.Sprintf("%s enrolled %d participants, not %d",
				t.NCTID, t.Enrollment, claimed),
			Field:   "enrollment",
			TrialID: t.NCTID,
			Span:    &Span{Start: offset + m[0], End: offset + m[1]},
			Source:  SourceField,
		})
	}
}

func checkPhase(out *checkOutcome, window string, offset int, t *trial.Trial) {
	if t.Phase == "" {
		return
	}
	for _, m := range fieldPhasePattern.FindAllStringSubmatchIndex(window, -1) {
		asserted := trial.NormalizePhase("Phase " + window[m[2]:m[3]])
		out.checked++
		if asserted == t.Phase || t.Phase.Includes(asserted) {
			continue
		}
		out.issues = append(out.issues, Issue{
			Severity:    SeverityWarning,
			Claim:       window[m[0]:m[1]],
			SourceData:  fmt.Sprintf("Actual phase: %s", t.Phase),
			Explanation: fmt.Sprintf("%s is %s, not %s", t.NCTID, t.Phase, asserted),
			Field:       "phase",
			TrialID:     t.NCTID,
			Span:        &Span{Start: offset + m[0], End: offset + m[1]},
			Source:      SourceField,
		})
	}
}

func checkSponsor(out *checkOutcome, window string, offset int, t *trial.Trial) {
	sponsor := t.SponsorName()
	if sponsor == "" {
		return
	}
	for _, m := range sponsorPattern.FindAllStringSubmatchIndex(window, -1) {
		asserted := strings.TrimRight(window[m[2]:m[3]], ".-&'")
		out.checked++
		if strings.Contains(strings.ToLower(sponsor), strings.ToLower(asserted)) {
			continue
		}
		out.issues = append(out.issues, Issue{
			Severity:    SeverityInfo,
			Claim:       window[m[0]:m[1]],
			SourceData:  fmt.Sprintf("Actual sponsor: %s", sponsor),
			Explanation: fmt.Sprintf("%s is sponsored by %s", t.NCTID, sponsor),
			Field:       "sponsor",
			TrialID:     t.NCTID,
			Span:        &Span{Start: offset + m[0], End: offset + m[1]},
			Source:      SourceField,
		})
	}
}
