package verify

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

var (
	phaseCountPattern = regexp.MustCompile(
		`(?i)\b(\d+)\s+(?:out\s+)?of\s+(?:the\s+)?(\d+)\s+(?:clinical\s+)?(?:trials|studies)\s+(?:are|were|is|was)\s+(?:in\s+)?phase\s+(\d(?:\s*/\s*\d)?|iv|i{1,3})\b`)
	totalPattern = regexp.MustCompile(
		`(?i)\b(?:found|identified|retrieved|returned|are|were)\s+(\d+)\s+(?:clinical\s+)?(?:trials|studies)\b`)
	approxPattern = regexp.MustCompile(
		`(?i)\b(?:about|around|approximately|nearly|over|more\s+than)\s+(\d+)\s+(?:clinical\s+)?(?:trials|studies)\b`)
)

// checkOutcome is what one local stage found.
type checkOutcome struct {
	issues  []Issue
	checked int
}

func (o *checkOutcome) failed() int { return len(o.issues) }

// Distributions counts phases and statuses over trials. Trials without a
// value are not counted.
func Distributions(trials []trial.Trial) (phases, statuses map[string]int) {
	phases, statuses = map[string]int{}, map[string]int{}
	for i := range trials {
		if p := trials[i].Phase; p != "" {
			phases[string(p)]++
		}
		if s := trials[i].Status; s != "" {
			statuses[string(s)]++
		}
	}
	return phases, statuses
}

func checkStatistics(answer string, trials []trial.Trial, total int, cfg Config) checkOutcome {
	var out checkOutcome
	phases, _ := Distributions(trials)
	retrieved := len(trials)

	for _, m := range phaseCountPattern.FindAllStringSubmatchIndex(answer, -1) {
		claimed, _ := strconv.Atoi(answer[m[2]:m[3]])
		phase := trial.NormalizePhase("Phase " + answer[m[6]:m[7]])
		actual := phases[string(phase)]
		out.checked++
		if claimed == actual {
			continue
		}
		out.issues = append(out.issues, Issue{
			Severity:    SeverityWarning,
			Claim:       answer[m[0]:m[1]],
			SourceData:  fmt.Sprintf("Actual: %d of %d trials are %s", actual, retrieved, phase),
			Explanation: fmt.Sprintf("The answer claims %d %s trials but the results contain %d", claimed, phase, actual),
			Field:       "phase",
			Span:        &Span{Start: m[0], End: m[1]},
			Source:      SourceStatistics,
		})
	}

	for _, m := range totalPattern.FindAllStringSubmatchIndex(answer, -1) {
		claimed, _ := strconv.Atoi(answer[m[2]:m[3]])
		out.checked++
		if abs(claimed-total) <= cfg.TotalTolerance {
			continue
		}
		out.issues = append(out.issues, Issue{
			Severity:    SeverityInfo,
			Claim:       answer[m[0]:m[1]],
			SourceData:  fmt.Sprintf("Actual: %d trials", total),
			Explanation: fmt.Sprintf("The answer states %d trials; the search returned %d", claimed, total),
			Field:       "total",
			Span:        &Span{Start: m[0], End: m[1]},
			Source:      SourceStatistics,
		})
	}

	for _, m := range approxPattern.FindAllStringSubmatchIndex(answer, -1) {
		claimed, _ := strconv.Atoi(answer[m[2]:m[3]])
		out.checked++
		if withinRelative(float64(claimed), float64(total), cfg.ApproxTolerance) {
			continue
		}
		out.issues = append(out.issues, Issue{
			Severity:    SeverityInfo,
			Claim:       answer[m[0]:m[1]],
			SourceData:  fmt.Sprintf("Actual: %d trials", total),
			Explanation: fmt.Sprintf("The approximate count %d is more than %.0f%% away from %d", claimed, cfg.ApproxTolerance*100, total),
			Field:       "total",
			Span:        &Span{Start: m[0], End: m[1]},
			Source:      SourceStatistics,
		})
	}
	return out
}

// withinRelative reports whether |claimed-actual|/actual <= tol. With a zero
// actual value only an exact claim passes.
func withinRelative(claimed, actual, tol float64) bool {
	if actual == 0 {
		return claimed == 0
	}
	return math.Abs(claimed-actual)/actual <= tol
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
