package trial

import (
	"strings"
)

// Phase is a normalized trial phase such as PHASE3.
type Phase string

// Phases as stored in the index.
const (
	PhaseEarly1 Phase = "EARLY_PHASE1"
	Phase1      Phase = "PHASE1"
	Phase2      Phase = "PHASE2"
	Phase3      Phase = "PHASE3"
	Phase4      Phase = "PHASE4"
	Phase1And2  Phase = "PHASE1/PHASE2"
	Phase2And3  Phase = "PHASE2/PHASE3"
	PhaseNA     Phase = "NA"
)

// Status is a normalized overall recruitment status.
type Status string

// Statuses as stored in the index.
const (
	StatusRecruiting            Status = "RECRUITING"
	StatusNotYetRecruiting      Status = "NOT_YET_RECRUITING"
	StatusActiveNotRecruiting   Status = "ACTIVE_NOT_RECRUITING"
	StatusEnrollingByInvitation Status = "ENROLLING_BY_INVITATION"
	StatusCompleted             Status = "COMPLETED"
	StatusSuspended             Status = "SUSPENDED"
	StatusTerminated            Status = "TERMINATED"
	StatusWithdrawn             Status = "WITHDRAWN"
	StatusUnknown               Status = "UNKNOWN"
)

var romanPhases = map[string]string{
	"I":   "1",
	"II":  "2",
	"III": "3",
	"IV":  "4",
}

// NormalizePhase maps free-form phase spellings ("Phase 3", "phase III",
// "3", "Phase 2/3", "early phase 1") onto the stored form. Unrecognised
// input is returned upper-cased and trimmed so it can still match exactly.
func NormalizePhase(s string) Phase {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return ""
	}
	switch raw {
	case "NA", "N/A", "NOT APPLICABLE":
		return PhaseNA
	}
	if strings.Contains(raw, "EARLY") {
		return PhaseEarly1
	}

	compact := strings.NewReplacer("PHASE", " ", "_", " ", "-", " ", ",", "/", "&", "/", " AND ", "/").Replace(" " + raw + " ")
	parts := strings.Split(compact, "/")
	var nums []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if r, ok := romanPhases[p]; ok {
			p = r
		}
		if len(p) == 1 && p[0] >= '1' && p[0] <= '4' {
			nums = append(nums, p)
		}
	}
	switch len(nums) {
	case 1:
		return Phase("PHASE" + nums[0])
	case 2:
		return Phase("PHASE" + nums[0] + "/PHASE" + nums[1])
	}
	return Phase(raw)
}

// Includes reports whether p covers other, so PHASE2/PHASE3 includes PHASE3.
func (p Phase) Includes(other Phase) bool {
	if p == other {
		return true
	}
	for _, part := range strings.Split(string(p), "/") {
		if Phase(part) == other {
			return true
		}
	}
	return false
}

// NormalizeStatus maps "Active, not recruiting" style labels to the stored form.
func NormalizeStatus(s string) Status {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return ""
	}
	raw = strings.NewReplacer(",", " ", "-", " ").Replace(raw)
	return Status(strings.Join(strings.Fields(raw), "_"))
}
