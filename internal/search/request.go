package search

import "slices"

// Retrieval defaults.
const (
	DefaultRankConstant    = 60
	DefaultWindowSize      = 100
	DefaultPageSize        = 10
	MaxPageSize            = 100
	DefaultSimilarityFloor = 0.5
	DefaultDimensions      = 768
	DefaultMaxBoost        = 3.0
	AggregationSize        = 10
)

// Index field names.
const (
	FieldNCTID            = "nct_id"
	FieldBriefTitle       = "brief_title"
	FieldOfficialTitle    = "official_title"
	FieldSummary          = "brief_summaries_description"
	FieldDetailed         = "detailed_description"
	FieldKeywords         = "keywords"
	FieldPhase            = "phase"
	FieldStatus           = "overall_status"
	FieldSource           = "source"
	FieldEnrollment       = "enrollment"
	FieldStartDate        = "start_date"
	FieldQualityScore     = "quality_score"
	FieldEmbedding        = "description_embedding"
	FieldConditionName    = "conditions.condition_name"
	FieldInterventionName = "interventions.intervention_name"
	FieldAgencyClass      = "sponsors.agency_class"
	FieldFacilityCity     = "facilities.city"
	FieldFacilityState    = "facilities.state"
	FieldFacilityCountry  = "facilities.country"
)

// Nested document paths.
const (
	PathConditions    = "conditions"
	PathInterventions = "interventions"
	PathSponsors      = "sponsors"
	PathFacilities    = "facilities"
)

// ClauseKind selects how a Clause is evaluated.
type ClauseKind string

const (
	// ClauseTerms matches when the field equals one of Values.
	ClauseTerms ClauseKind = "terms"
	// ClauseRange bounds a numeric field.
	ClauseRange ClauseKind = "range"
	// ClauseDateRange bounds a date field with yyyy-MM-dd bounds.
	ClauseDateRange ClauseKind = "date_range"
	// ClauseMatch is a full-text match of Text over Fields.
	ClauseMatch ClauseKind = "match"
	// ClauseContains is a case-insensitive substring test on a keyword field.
	ClauseContains ClauseKind = "contains"
)

// Clause is a single filter or boost condition. Path wraps it in a nested
// query over that document path.
type Clause struct {
	Name   string     `json:"name,omitempty"`
	Kind   ClauseKind `json:"kind"`
	Path   string     `json:"path,omitempty"`
	Field  string     `json:"field,omitempty"`
	Fields []string   `json:"fields,omitempty"`
	Values []string   `json:"values,omitempty"`
	Text   string     `json:"text,omitempty"`
	Gte    *float64   `json:"gte,omitempty"`
	Lte    *float64   `json:"lte,omitempty"`
	From   string     `json:"from,omitempty"`
	To     string     `json:"to,omitempty"`
	Boost  float64    `json:"boost,omitempty"`
}

// FieldBoost is a lexical field and its weight.
type FieldBoost struct {
	Field string  `json:"field"`
	Boost float64 `json:"boost"`
}

// LexicalClause is the keyword retrieval clause.
type LexicalClause struct {
	Query     string       `json:"query"`
	Fields    []FieldBoost `json:"fields"`
	Fuzziness string       `json:"fuzziness,omitempty"`
	// Nested are additional optional matches on nested entity names.
	Nested []Clause `json:"nested,omitempty"`
}

// VectorClause is the approximate nearest neighbour clause. It shares the
// request's mandatory filters.
type VectorClause struct {
	Field         string    `json:"field"`
	Vector        []float32 `json:"-"`
	K             int       `json:"k"`
	NumCandidates int       `json:"numCandidates"`
	Similarity    float64   `json:"similarity"`
}

// FieldValueFactor scales a score by a numeric document field.
type FieldValueFactor struct {
	Field    string  `json:"field"`
	Modifier string  `json:"modifier"`
	Factor   float64 `json:"factor"`
	Missing  float64 `json:"missing"`
}

// BoostFunction multiplies the score of matching documents. Exactly one of
// Filter (with Weight) or FieldValue is set.
type BoostFunction struct {
	Name       string            `json:"name"`
	Filter     *Clause           `json:"filter,omitempty"`
	Weight     float64           `json:"weight,omitempty"`
	FieldValue *FieldValueFactor `json:"fieldValue,omitempty"`
}

// FusionSpec parameterizes reciprocal rank fusion.
type FusionSpec struct {
	RankConstant  int     `json:"rankConstant"`
	WindowSize    int     `json:"windowSize"`
	LexicalWeight float64 `json:"lexicalWeight"`
	VectorWeight  float64 `json:"vectorWeight"`
}

// DefaultFusion returns k=60, window=100 with equal weights.
func DefaultFusion() FusionSpec {
	return FusionSpec{
		RankConstant:  DefaultRankConstant,
		WindowSize:    DefaultWindowSize,
		LexicalWeight: 1,
		VectorWeight:  1,
	}
}

// Weighted reports whether the retrievers carry non-default weights.
func (f FusionSpec) Weighted() bool {
	return f.LexicalWeight != 1 || f.VectorWeight != 1
}

// MaxScore is the largest fused score a document can reach: rank 1 in
// both lists.
func (f FusionSpec) MaxScore() float64 {
	return (f.LexicalWeight + f.VectorWeight) / float64(f.RankConstant+1)
}

// Request is a store-agnostic retrieval request. It is built fresh for every
// search and rendered to Elasticsearch DSL by Body.
type Request struct {
	Strategy           Mode            `json:"strategy"`
	Lexical            *LexicalClause  `json:"lexical,omitempty"`
	Vector             *VectorClause   `json:"vector,omitempty"`
	Filters            []Clause        `json:"filters,omitempty"`
	Boosts             []Clause        `json:"boosts,omitempty"`
	MinimumShouldMatch int             `json:"minimumShouldMatch"`
	Functions          []BoostFunction `json:"functions,omitempty"`
	MaxBoost           float64         `json:"maxBoost"`
	Fusion             FusionSpec      `json:"fusion"`
	From               int             `json:"from"`
	Size               int             `json:"size"`
	Aggregations       bool            `json:"aggregations"`
	// Fallback explains why the requested strategy was not used.
	Fallback string `json:"fallback,omitempty"`
}

// IsHybrid reports whether the request carries both retrieval clauses.
func (r *Request) IsHybrid() bool {
	return r.Lexical != nil && r.Vector != nil
}

// Split turns a hybrid request into a lexical-only and a vector-only request
// for stores without native fusion. Each half fetches from the top of its
// ranking; pagination applies to the fused list. Non-hybrid requests are
// returned unchanged with a nil second half.
func (r *Request) Split() (lexical, vector *Request) {
	if !r.IsHybrid() {
		return r, nil
	}

	lex := r.clone()
	lex.Vector = nil
	lex.Strategy = ModeKeyword
	lex.From = 0
	lex.Size = r.Fusion.WindowSize

	vec := r.clone()
	vec.Lexical = nil
	vec.Strategy = ModeSemantic
	vec.Boosts = nil
	vec.MinimumShouldMatch = 0
	vec.Functions = nil
	vec.Aggregations = false
	vec.From = 0
	vec.Size = r.Vector.K

	return lex, vec
}

func (r *Request) clone() *Request {
	out := *r
	if r.Lexical != nil {
		lex := *r.Lexical
		lex.Fields = slices.Clone(r.Lexical.Fields)
		lex.Nested = slices.Clone(r.Lexical.Nested)
		out.Lexical = &lex
	}
	if r.Vector != nil {
		vec := *r.Vector
		out.Vector = &vec
	}
	out.Filters = slices.Clone(r.Filters)
	out.Boosts = slices.Clone(r.Boosts)
	out.Functions = slices.Clone(r.Functions)
	return &out
}

func floatPtr(v float64) *float64 { return &v }

