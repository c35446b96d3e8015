package trial

// MatchDetails breaks a score down by retriever.
type MatchDetails struct {
	BM25Score     float64 `json:"bm25Score"`
	SemanticScore float64 `json:"semanticScore"`
	FilterBoost   float64 `json:"filterBoost"`
}

// ScoredTrial is a retrieved record with its normalized relevance and the
// reasons it matched. Read-only once produced.
type ScoredTrial struct {
	Trial
	RawScore       float64      `json:"rawScore"`
	RelevanceScore int          `json:"relevanceScore"`
	MatchReasons   []string     `json:"matchReasons"`
	MatchDetails   MatchDetails `json:"matchDetails"`
}

// Bucket is one aggregation bucket.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Aggregations are the facet counts returned alongside a search.
type Aggregations struct {
	Phases   []Bucket `json:"byPhase,omitempty"`
	Statuses []Bucket `json:"byStatus,omitempty"`
	Sponsors []Bucket `json:"bySponsor,omitempty"`
}

// IDs returns the NCT identifiers of trials in order.
func IDs(trials []ScoredTrial) []string {
	ids := make([]string, len(trials))
	for i := range trials {
		ids[i] = trials[i].NCTID
	}
	return ids
}
