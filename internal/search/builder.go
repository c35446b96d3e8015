package search

import (
	"strings"

	"github.com/Aman-CERP/trialscope/internal/cache"
	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// Boost weights applied by the builder.
const (
	boostCondition    = 2.0
	boostIntervention = 1.5
	boostPhase        = 1.5
	boostStatus       = 1.5
	boostSponsor      = 1.2
	boostLocation     = 1.2

	weightRecruiting = 1.5
	weightRecent     = 1.3
	weightLarge      = 1.2
	weightIndustry   = 1.2
	weightPhase3     = 1.1

	largeEnrollment = 500
)

// lexicalFields are the multi_match fields and their weights.
var lexicalFields = []FieldBoost{
	{Field: FieldBriefTitle, Boost: 3},
	{Field: FieldOfficialTitle, Boost: 2},
	{Field: FieldSummary, Boost: 1.5},
	{Field: FieldKeywords, Boost: 1.5},
	{Field: FieldDetailed, Boost: 1},
}

// BuilderConfig tunes request construction.
type BuilderConfig struct {
	Dimensions      int        `yaml:"embedding_dims" json:"embedding_dims"`
	SimilarityFloor float64    `yaml:"similarity_floor" json:"similarity_floor"`
	MaxBoost        float64    `yaml:"max_boost" json:"max_boost"`
	PageSize        int        `yaml:"page_size" json:"page_size"`
	Fusion          FusionSpec `yaml:"-" json:"-"`
}

// DefaultBuilderConfig returns the standard retrieval parameters.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		Dimensions:      DefaultDimensions,
		SimilarityFloor: DefaultSimilarityFloor,
		MaxBoost:        DefaultMaxBoost,
		PageSize:        DefaultPageSize,
		Fusion:          DefaultFusion(),
	}
}

// BuildInput carries everything known about one search.
type BuildInput struct {
	Query     string
	Terms     []string
	Analysis  *trial.QueryAnalysis
	Filters   *trial.SearchFilters
	Embedding []float32
	Strategy  Mode
	Page      int
	PageSize  int
}

// Builder constructs retrieval requests.
type Builder struct {
	cfg   BuilderConfig
	clock cache.Clock
}

// NewBuilder creates a builder. Zero config fields take defaults; a nil clock
// uses the system clock.
func NewBuilder(cfg BuilderConfig, clock cache.Clock) *Builder {
	def := DefaultBuilderConfig()
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = def.Dimensions
	}
	if cfg.SimilarityFloor <= 0 {
		cfg.SimilarityFloor = def.SimilarityFloor
	}
	if cfg.MaxBoost <= 0 {
		cfg.MaxBoost = def.MaxBoost
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	cfg.Fusion = normalizeFusion(cfg.Fusion)
	if clock == nil {
		clock = cache.SystemClock{}
	}
	return &Builder{cfg: cfg, clock: clock}
}

// Config returns the effective configuration.
func (b *Builder) Config() BuilderConfig {
	return b.cfg
}

// Build creates the request for one search. Only an empty query or invalid
// explicit filters are rejected; a missing or wrongly sized embedding makes
// the request lexical.
func (b *Builder) Build(in BuildInput) (*Request, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, trialerrors.New(trialerrors.ErrCodeQueryEmpty, "search query is empty", nil).
			WithSuggestion("Enter a condition, intervention or question to search for")
	}
	if err := in.Filters.Validate(); err != nil {
		return nil, err
	}
	filters := in.Filters.Normalized()

	page := max(in.Page, 0)
	pageSize := in.PageSize
	if pageSize <= 0 {
		pageSize = b.cfg.PageSize
	}
	pageSize = min(pageSize, MaxPageSize)

	strategy := in.Strategy
	if strategy == "" {
		strategy = ModeHybrid
	}
	hasEmbedding := len(in.Embedding) == b.cfg.Dimensions

	req := &Request{
		Strategy:     strategy,
		Fusion:       b.cfg.Fusion,
		MaxBoost:     b.cfg.MaxBoost,
		From:         page * pageSize,
		Size:         pageSize,
		Aggregations: true,
		Filters:      filterClauses(filters),
	}

	switch {
	case strategy == ModeSemantic && !hasEmbedding:
		req.Strategy = ModeKeyword
		req.Fallback = "semantic search needs a query embedding; used keyword retrieval"
	case strategy == ModeHybrid && !hasEmbedding:
		req.Strategy = ModeKeyword
	}

	if req.Strategy != ModeSemantic {
		req.Lexical = lexicalClause(query, in.Terms, in.Analysis)
		req.Boosts = hintClauses(in.Analysis)
		if len(req.Boosts) > 0 {
			req.MinimumShouldMatch = 1
		}
		req.Functions = b.boostFunctions(filters, in.Analysis)
	}

	if req.Strategy != ModeKeyword {
		k := min(pageSize*(page+1), b.cfg.Fusion.WindowSize)
		req.Vector = &VectorClause{
			Field:         FieldEmbedding,
			Vector:        in.Embedding,
			K:             k,
			NumCandidates: max(b.cfg.Fusion.WindowSize, k),
			Similarity:    b.cfg.SimilarityFloor,
		}
	}

	return req, nil
}

func lexicalClause(query string, terms []string, analysis *trial.QueryAnalysis) *LexicalClause {
	text := query
	if len(terms) > 0 {
		text = JoinTerms(terms)
	}
	lex := &LexicalClause{
		Query:     text,
		Fields:    append([]FieldBoost(nil), lexicalFields...),
		Fuzziness: "AUTO",
	}
	if analysis == nil {
		return lex
	}
	if analysis.Condition != "" {
		lex.Nested = append(lex.Nested, Clause{
			Name: "condition", Kind: ClauseMatch, Path: PathConditions,
			Field: FieldConditionName, Text: analysis.Condition, Boost: boostCondition,
		})
	}
	if analysis.Intervention != "" {
		lex.Nested = append(lex.Nested, Clause{
			Name: "intervention", Kind: ClauseMatch, Path: PathInterventions,
			Field: FieldInterventionName, Text: analysis.Intervention, Boost: boostCondition,
		})
	}
	return lex
}

func filterClauses(f *trial.SearchFilters) []Clause {
	if f.IsEmpty() {
		return nil
	}
	var out []Clause
	if len(f.Phases) > 0 {
		values := make([]string, len(f.Phases))
		for i, p := range f.Phases {
			values[i] = string(p)
		}
		out = append(out, Clause{Name: "phase", Kind: ClauseTerms, Field: FieldPhase, Values: values})
	}
	if len(f.Statuses) > 0 {
		values := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			values[i] = string(s)
		}
		out = append(out, Clause{Name: "status", Kind: ClauseTerms, Field: FieldStatus, Values: values})
	}
	if len(f.Sponsors) > 0 {
		out = append(out, Clause{Name: "sponsor", Kind: ClauseTerms, Field: FieldSource, Values: append([]string(nil), f.Sponsors...)})
	}
	if r := f.Enrollment; r != nil && (r.Min != nil || r.Max != nil) {
		c := Clause{Name: "enrollment", Kind: ClauseRange, Field: FieldEnrollment}
		if r.Min != nil {
			c.Gte = floatPtr(float64(*r.Min))
		}
		if r.Max != nil {
			c.Lte = floatPtr(float64(*r.Max))
		}
		out = append(out, c)
	}
	if r := f.StartDate; r != nil && (r.From != nil || r.To != nil) {
		c := Clause{Name: "start_date", Kind: ClauseDateRange, Field: FieldStartDate}
		if r.From != nil {
			c.From = r.From.Format("2006-01-02")
		}
		if r.To != nil {
			c.To = r.To.Format("2006-01-02")
		}
		out = append(out, c)
	}
	return out
}

// hintClauses turns analysis hints into optional clauses.
func hintClauses(a *trial.QueryAnalysis) []Clause {
	if a == nil {
		return nil
	}
	var out []Clause
	if a.Phase != "" {
		out = append(out, Clause{Name: "phase", Kind: ClauseTerms, Field: FieldPhase, Values: []string{string(a.Phase)}, Boost: boostPhase})
	}
	if a.Status != "" {
		out = append(out, Clause{Name: "status", Kind: ClauseTerms, Field: FieldStatus, Values: []string{string(a.Status)}, Boost: boostStatus})
	}
	if a.Sponsor != "" {
		out = append(out, Clause{Name: "sponsor", Kind: ClauseContains, Field: FieldSource, Text: a.Sponsor, Boost: boostSponsor})
	}
	if a.Location != "" {
		out = append(out, Clause{
			Name: "location", Kind: ClauseMatch, Path: PathFacilities,
			Fields: []string{FieldFacilityCity, FieldFacilityState, FieldFacilityCountry},
			Text:   a.Location, Boost: boostLocation,
		})
	}
	if a.Condition != "" {
		out = append(out, Clause{
			Name: "condition", Kind: ClauseMatch, Path: PathConditions,
			Field: FieldConditionName, Text: a.Condition, Boost: boostCondition,
		})
	}
	if a.Intervention != "" {
		out = append(out, Clause{
			Name: "intervention", Kind: ClauseMatch, Path: PathInterventions,
			Field: FieldInterventionName, Text: a.Intervention, Boost: boostIntervention,
		})
	}
	return out
}

func (b *Builder) boostFunctions(f *trial.SearchFilters, a *trial.QueryAnalysis) []BoostFunction {
	yearAgo := b.clock.Now().AddDate(-1, 0, 0).Format("2006-01-02")

	fns := []BoostFunction{
		{
			Name:   "recruiting",
			Filter: &Clause{Kind: ClauseTerms, Field: FieldStatus, Values: []string{string(trial.StatusRecruiting)}},
			Weight: weightRecruiting,
		},
		{
			Name:   "recent",
			Filter: &Clause{Kind: ClauseDateRange, Field: FieldStartDate, From: yearAgo},
			Weight: weightRecent,
		},
		{
			Name:   "large_enrollment",
			Filter: &Clause{Kind: ClauseRange, Field: FieldEnrollment, Gte: floatPtr(largeEnrollment)},
			Weight: weightLarge,
		},
		{
			Name:   "industry_sponsor",
			Filter: &Clause{Kind: ClauseTerms, Path: PathSponsors, Field: FieldAgencyClass, Values: []string{trial.AgencyClassIndustry}},
			Weight: weightIndustry,
		},
		{
			Name: "quality",
			FieldValue: &FieldValueFactor{
				Field:    FieldQualityScore,
				Modifier: "log1p",
				Factor:   0.1,
				Missing:  50,
			},
		},
	}

	phaseRequested := (f != nil && len(f.Phases) > 0) || (a != nil && a.Phase != "")
	if !phaseRequested {
		fns = append(fns, BoostFunction{
			Name:   "mature_evidence",
			Filter: &Clause{Kind: ClauseTerms, Field: FieldPhase, Values: []string{string(trial.Phase3)}},
			Weight: weightPhase3,
		})
	}
	return fns
}

func normalizeFusion(f FusionSpec) FusionSpec {
	def := DefaultFusion()
	if f.RankConstant <= 0 {
		f.RankConstant = def.RankConstant
	}
	if f.WindowSize <= 0 {
		f.WindowSize = def.WindowSize
	}
	if f.LexicalWeight <= 0 {
		f.LexicalWeight = def.LexicalWeight
	}
	if f.VectorWeight <= 0 {
		f.VectorWeight = def.VectorWeight
	}
	return f
}
