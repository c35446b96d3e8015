package trial

import (
	"fmt"
	"time"

	"github.com/Aman-CERP/trialscope/internal/errors"
)

// EnrollmentRange bounds enrollment counts. A nil bound is open.
type EnrollmentRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// DateRange bounds trial start dates. A nil bound is open.
type DateRange struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// SearchFilters are constraints the user chose explicitly. The core reads
// them but never modifies them.
type SearchFilters struct {
	Phases     []Phase          `json:"phases,omitempty"`
	Statuses   []Status         `json:"statuses,omitempty"`
	Sponsors   []string         `json:"sponsors,omitempty"`
	Enrollment *EnrollmentRange `json:"enrollment,omitempty"`
	StartDate  *DateRange       `json:"startDate,omitempty"`
}

// IsEmpty reports whether no constraint is set.
func (f *SearchFilters) IsEmpty() bool {
	if f == nil {
		return true
	}
	return len(f.Phases) == 0 && len(f.Statuses) == 0 && len(f.Sponsors) == 0 &&
		f.Enrollment == nil && f.StartDate == nil
}

// Validate rejects structurally invalid filters before any query is built.
func (f *SearchFilters) Validate() error {
	if f == nil {
		return nil
	}
	if r := f.Enrollment; r != nil {
		if r.Min != nil && *r.Min < 0 {
			return invalidFilter("enrollment.min", fmt.Sprintf("must be non-negative, got %d", *r.Min))
		}
		if r.Max != nil && *r.Max < 0 {
			return invalidFilter("enrollment.max", fmt.Sprintf("must be non-negative, got %d", *r.Max))
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			return invalidFilter("enrollment", fmt.Sprintf("min %d exceeds max %d", *r.Min, *r.Max))
		}
	}
	if r := f.StartDate; r != nil && r.From != nil && r.To != nil && r.From.After(*r.To) {
		return invalidFilter("startDate", fmt.Sprintf("from %s is after to %s",
			r.From.Format("2006-01-02"), r.To.Format("2006-01-02")))
	}
	for _, p := range f.Phases {
		if p == "" {
			return invalidFilter("phases", "empty phase value")
		}
	}
	for _, s := range f.Statuses {
		if s == "" {
			return invalidFilter("statuses", "empty status value")
		}
	}
	return nil
}

// Normalized returns a copy with phase and status values in stored form.
func (f *SearchFilters) Normalized() *SearchFilters {
	if f == nil {
		return nil
	}
	out := *f
	out.Phases = make([]Phase, 0, len(f.Phases))
	for _, p := range f.Phases {
		out.Phases = append(out.Phases, NormalizePhase(string(p)))
	}
	out.Statuses = make([]Status, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		out.Statuses = append(out.Statuses, NormalizeStatus(string(s)))
	}
	return &out
}

func invalidFilter(field, msg string) error {
	return errors.New(errors.ErrCodeInvalidFilter, "invalid filter "+field+": "+msg, nil).
		WithDetail("field", field).
		WithSuggestion("Fix the filter value and retry the search")
}
