package search

import (
	"math"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

// plainScoreCeiling is the raw score that maps to relevance 100 for unfused
// hits.
const plainScoreCeiling = 10.0

// Normalizer turns store hits into caller-facing scored trials.
type Normalizer struct {
	fusion FusionSpec
}

// NewNormalizer creates a normalizer whose fused scores are scaled against
// the maximum reachable under fusion.
func NewNormalizer(fusion FusionSpec) *Normalizer {
	return &Normalizer{fusion: normalizeFusion(fusion)}
}

// Normalize scores hits and attaches match reasons. req may be nil, in which
// case no filter boost is reported. Reasons derive from the analysis only.
func (n *Normalizer) Normalize(resp *Response, req *Request, analysis *trial.QueryAnalysis) []trial.ScoredTrial {
	if resp == nil {
		return []trial.ScoredTrial{}
	}

	ceiling := plainScoreCeiling
	if resp.Fused {
		ceiling = n.fusion.MaxScore()
	}

	out := make([]trial.ScoredTrial, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		t := h.Trial
		if t.NCTID == "" {
			t.NCTID = h.ID
		}
		t.Embedding = nil

		st := trial.ScoredTrial{
			Trial:          t,
			RawScore:       h.Score,
			RelevanceScore: Relevance(h.Score, ceiling),
			MatchReasons:   MatchReasons(&t, analysis),
			MatchDetails:   n.details(h, resp.Fused, req),
		}
		out = append(out, st)
	}
	return out
}

func (n *Normalizer) details(h Hit, fused bool, req *Request) trial.MatchDetails {
	d := trial.MatchDetails{
		BM25Score:     h.LexicalScore,
		SemanticScore: h.VectorScore,
	}
	if !fused && req != nil {
		switch req.Strategy {
		case ModeSemantic:
			if d.SemanticScore == 0 {
				d.SemanticScore = h.Score
			}
		default:
			if d.BM25Score == 0 {
				d.BM25Score = h.Score
			}
		}
	}
	if req != nil {
		d.FilterBoost = req.BoostFactor(&h.Trial)
	}
	return d
}

// Relevance maps a raw score onto 0..100 against ceiling.
func Relevance(raw, ceiling float64) int {
	if ceiling <= 0 || math.IsNaN(raw) {
		return 0
	}
	v := math.Round(raw / ceiling * 100)
	return int(math.Max(0, math.Min(100, v)))
}

// MatchReasons explains a hit in terms of the query analysis.
func MatchReasons(t *trial.Trial, analysis *trial.QueryAnalysis) []string {
	reasons := []string{}
	if analysis != nil {
		if analysis.Condition != "" {
			reasons = append(reasons, "Matches condition: "+analysis.Condition)
		}
		if analysis.Intervention != "" {
			reasons = append(reasons, "Matches intervention: "+analysis.Intervention)
		}
		if analysis.Phase != "" {
			reasons = append(reasons, "Phase: "+string(analysis.Phase))
		}
		if analysis.Status != "" {
			reasons = append(reasons, "Status: "+string(analysis.Status))
		}
	}
	if t.IsRecruiting() {
		reasons = append(reasons, "Currently recruiting")
	}
	if t.QualityScore > trial.HighQualityThreshold {
		reasons = append(reasons, "High quality data")
	}
	return reasons
}
