package trial

import (
	"math"
	"strings"
	"time"
)

// HighQualityThreshold is the quality score above which a trial is labelled
// high quality.
const HighQualityThreshold = 80

// industrySponsors are sponsor name fragments that earn the full sponsor score.
var industrySponsors = []string{
	"pfizer", "novartis", "roche", "merck", "astrazeneca",
	"bristol", "johnson", "abbvie", "gilead", "amgen",
	"sanofi", "gsk", "bayer", "eli lilly", "takeda",
}

// QualityScore rates a record's completeness and evidential weight on a
// 0-100 scale. Weights:
//
//	completeness       40  (share of title, official title, summary, phase,
//	                        status, enrollment, source that are filled)
//	detailed text      10
//	sponsor            15 known industry / 12 industry class / 8 other
//	design             15  (randomized, double+ masking, DMC: 5 each)
//	enrollment size    10  (>=1000: 10, >=500: 8, >=100: 5, >=50: 3)
//	recency            10  (start year vs now: 10/8/5/3 for 0/1/2/5 years)
func QualityScore(t *Trial, now time.Time) float64 {
	score := 0.0

	required := []bool{
		t.BriefTitle != "",
		t.OfficialTitle != "",
		t.Summary != "",
		t.Phase != "",
		t.Status != "",
		t.Enrollment != 0,
		t.Source != "",
	}
	filled := 0
	for _, ok := range required {
		if ok {
			filled++
		}
	}
	score += float64(filled) / float64(len(required)) * 40

	if t.DetailedDescription != "" {
		score += 10
	}

	source := strings.ToLower(t.Source)
	switch {
	case containsAny(source, industrySponsors):
		score += 15
	case len(t.Sponsors) > 0 && t.Sponsors[0].AgencyClass == AgencyClassIndustry:
		score += 12
	case len(t.Sponsors) > 0:
		score += 8
	}

	if strings.EqualFold(t.Allocation, "RANDOMIZED") {
		score += 5
	}
	switch strings.ToUpper(t.Masking) {
	case "DOUBLE", "TRIPLE", "QUADRUPLE":
		score += 5
	}
	if t.HasDMC {
		score += 5
	}

	switch {
	case t.Enrollment >= 1000:
		score += 10
	case t.Enrollment >= 500:
		score += 8
	case t.Enrollment >= 100:
		score += 5
	case t.Enrollment >= 50:
		score += 3
	}

	if started, ok := t.Started(); ok {
		year, current := started.Year(), now.Year()
		switch {
		case year >= current:
			score += 10
		case year >= current-1:
			score += 8
		case year >= current-2:
			score += 5
		case year >= current-5:
			score += 3
		}
	}

	return math.Min(100, score)
}

func containsAny(s string, fragments []string) bool {
	if s == "" {
		return false
	}
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
