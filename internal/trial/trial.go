// Package trial defines the clinical-trial record and the value objects that
// flow through retrieval, ranking and answer verification.
package trial

import (
	"strconv"
	"strings"
	"time"
)

// Condition is a nested condition entry.
type Condition struct {
	Name string `json:"condition_name"`
}

// Intervention is a nested intervention entry.
type Intervention struct {
	Name string `json:"intervention_name"`
	Type string `json:"intervention_type,omitempty"`
}

// Sponsor is a nested sponsor entry. AgencyClass is INDUSTRY, NIH, OTHER...
type Sponsor struct {
	Agency       string `json:"agency"`
	AgencyClass  string `json:"agency_class,omitempty"`
	LeadOrCollab string `json:"lead_or_collaborator,omitempty"`
}

// Facility is a nested trial site.
type Facility struct {
	Name    string `json:"name,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Country string `json:"country,omitempty"`
}

// AgencyClassIndustry marks an industry-funded sponsor.
const AgencyClassIndustry = "INDUSTRY"

// Trial is a clinical-trial record as stored in the index.
// Field names follow the clinical_trials index mapping.
type Trial struct {
	NCTID               string         `json:"nct_id"`
	BriefTitle          string         `json:"brief_title"`
	OfficialTitle       string         `json:"official_title,omitempty"`
	Summary             string         `json:"brief_summaries_description,omitempty"`
	DetailedDescription string         `json:"detailed_description,omitempty"`
	Phase               Phase          `json:"phase,omitempty"`
	Status              Status         `json:"overall_status,omitempty"`
	Enrollment          int            `json:"enrollment,omitempty"`
	Source              string         `json:"source,omitempty"`
	StudyType           string         `json:"study_type,omitempty"`
	Gender              string         `json:"gender,omitempty"`
	MinimumAge          string         `json:"minimum_age,omitempty"`
	MaximumAge          string         `json:"maximum_age,omitempty"`
	StartDate           string         `json:"start_date,omitempty"`
	CompletionDate      string         `json:"completion_date,omitempty"`
	Conditions          []Condition    `json:"conditions,omitempty"`
	Interventions       []Intervention `json:"interventions,omitempty"`
	Sponsors            []Sponsor      `json:"sponsors,omitempty"`
	Facilities          []Facility     `json:"facilities,omitempty"`
	Keywords            []string       `json:"keywords,omitempty"`
	Allocation          string         `json:"allocation,omitempty"`
	Masking             string         `json:"masking,omitempty"`
	HasDMC              bool           `json:"has_dmc,omitempty"`
	QualityScore        float64        `json:"quality_score,omitempty"`
	IndexedAt           string         `json:"indexed_at,omitempty"`
	Embedding           []float32      `json:"description_embedding,omitempty"`
}

// SponsorName returns the lead sponsor: the source field, or the first
// nested sponsor agency when source is empty.
func (t *Trial) SponsorName() string {
	if t.Source != "" {
		return t.Source
	}
	if len(t.Sponsors) > 0 {
		return t.Sponsors[0].Agency
	}
	return ""
}

// IsIndustry reports whether any sponsor is industry-class.
func (t *Trial) IsIndustry() bool {
	for _, s := range t.Sponsors {
		if strings.EqualFold(s.AgencyClass, AgencyClassIndustry) {
			return true
		}
	}
	return false
}

// IsRecruiting reports whether the trial is currently recruiting.
func (t *Trial) IsRecruiting() bool {
	return t.Status == StatusRecruiting
}

// ConditionNames returns the nested condition names in order.
func (t *Trial) ConditionNames() []string {
	names := make([]string, 0, len(t.Conditions))
	for _, c := range t.Conditions {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}

// InterventionNames returns the nested intervention names in order.
func (t *Trial) InterventionNames() []string {
	names := make([]string, 0, len(t.Interventions))
	for _, i := range t.Interventions {
		if i.Name != "" {
			names = append(names, i.Name)
		}
	}
	return names
}

// dateLayouts are the precisions registry dates arrive in.
var dateLayouts = []string{time.RFC3339, "2006-01-02", "2006-01", "2006"}

// Started returns the parsed start date. ok is false when the field is
// empty or unparseable.
func (t *Trial) Started() (time.Time, bool) {
	return parseDate(t.StartDate)
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Digest returns a compact one-line description used in oracle prompts.
func (t *Trial) Digest() string {
	var sb strings.Builder
	sb.WriteString(t.NCTID)
	sb.WriteString(": ")
	sb.WriteString(t.BriefTitle)
	if t.Phase != "" {
		sb.WriteString(" | phase=")
		sb.WriteString(string(t.Phase))
	}
	if t.Status != "" {
		sb.WriteString(" | status=")
		sb.WriteString(string(t.Status))
	}
	if t.Enrollment > 0 {
		sb.WriteString(" | enrollment=")
		sb.WriteString(strconv.Itoa(t.Enrollment))
	}
	if sponsor := t.SponsorName(); sponsor != "" {
		sb.WriteString(" | sponsor=")
		sb.WriteString(sponsor)
	}
	if names := t.ConditionNames(); len(names) > 0 {
		sb.WriteString(" | conditions=")
		sb.WriteString(strings.Join(names, ", "))
	}
	if names := t.InterventionNames(); len(names) > 0 {
		sb.WriteString(" | interventions=")
		sb.WriteString(strings.Join(names, ", "))
	}
	return sb.String()
}

// SearchableText joins the fields used to compute a record's embedding.
func (t *Trial) SearchableText() string {
	parts := make([]string, 0, 5)
	if t.BriefTitle != "" {
		parts = append(parts, t.BriefTitle)
	}
	if t.Summary != "" {
		parts = append(parts, t.Summary)
	}
	if names := t.ConditionNames(); len(names) > 0 {
		parts = append(parts, "Conditions: "+strings.Join(names, ", "))
	}
	if names := t.InterventionNames(); len(names) > 0 {
		parts = append(parts, "Interventions: "+strings.Join(names, ", "))
	}
	if len(t.Keywords) > 0 {
		parts = append(parts, "Keywords: "+strings.Join(t.Keywords, ", "))
	}
	return strings.Join(parts, " ")
}
