package search

import (
	"strconv"
	"strings"
)

// Body renders the request as an Elasticsearch _search body. Hybrid
// requests use the rrf retriever; semantic requests a top-level knn section;
// keyword requests a function_score query.
func (r *Request) Body() map[string]any {
	body := map[string]any{
		"from":             r.From,
		"size":             r.Size,
		"track_total_hits": true,
		"_source": map[string]any{
			"excludes": []string{FieldEmbedding},
		},
	}
	if r.Aggregations {
		body["aggs"] = aggregationsDSL()
	}

	switch {
	case r.IsHybrid():
		body["retriever"] = map[string]any{
			"rrf": map[string]any{
				"retrievers": []any{
					map[string]any{"standard": map[string]any{"query": r.queryDSL()}},
					map[string]any{"knn": r.knnDSL()},
				},
				"rank_constant":    r.Fusion.RankConstant,
				"rank_window_size": r.Fusion.WindowSize,
			},
		}
	case r.Vector != nil:
		body["knn"] = r.knnDSL()
	default:
		body["query"] = r.queryDSL()
	}
	return body
}

func (r *Request) queryDSL() map[string]any {
	must := map[string]any{"match_all": map[string]any{}}
	if r.Lexical != nil {
		must = r.Lexical.dsl()
	}

	boolQuery := map[string]any{
		"must": []any{must},
	}
	if len(r.Filters) > 0 {
		boolQuery["filter"] = clausesDSL(r.Filters)
	}
	if len(r.Boosts) > 0 {
		boolQuery["should"] = clausesDSL(r.Boosts)
		boolQuery["minimum_should_match"] = r.MinimumShouldMatch
	}
	query := map[string]any{"bool": boolQuery}

	if len(r.Functions) == 0 {
		return query
	}
	functions := make([]any, 0, len(r.Functions))
	for _, fn := range r.Functions {
		functions = append(functions, fn.dsl())
	}
	return map[string]any{
		"function_score": map[string]any{
			"query":      query,
			"functions":  functions,
			"score_mode": "multiply",
			"boost_mode": "multiply",
			"max_boost":  r.MaxBoost,
		},
	}
}

func (r *Request) knnDSL() map[string]any {
	knn := map[string]any{
		"field":          r.Vector.Field,
		"query_vector":   r.Vector.Vector,
		"k":              r.Vector.K,
		"num_candidates": r.Vector.NumCandidates,
		"similarity":     r.Vector.Similarity,
	}
	if len(r.Filters) > 0 {
		knn["filter"] = map[string]any{
			"bool": map[string]any{"filter": clausesDSL(r.Filters)},
		}
	}
	return knn
}

func (l *LexicalClause) dsl() map[string]any {
	fields := make([]string, 0, len(l.Fields))
	for _, f := range l.Fields {
		fields = append(fields, boostedField(f.Field, f.Boost))
	}
	multiMatch := map[string]any{
		"query":  l.Query,
		"fields": fields,
		"type":   "best_fields",
	}
	if l.Fuzziness != "" {
		multiMatch["fuzziness"] = l.Fuzziness
	}
	mm := map[string]any{"multi_match": multiMatch}
	if len(l.Nested) == 0 {
		return mm
	}

	should := []any{mm}
	should = append(should, clausesDSL(l.Nested)...)
	return map[string]any{
		"bool": map[string]any{
			"should":               should,
			"minimum_should_match": 1,
		},
	}
}

func (f BoostFunction) dsl() map[string]any {
	if f.FieldValue != nil {
		return map[string]any{
			"field_value_factor": map[string]any{
				"field":    f.FieldValue.Field,
				"modifier": f.FieldValue.Modifier,
				"factor":   f.FieldValue.Factor,
				"missing":  f.FieldValue.Missing,
			},
		}
	}
	out := map[string]any{"weight": f.Weight}
	if f.Filter != nil {
		out["filter"] = f.Filter.DSL()
	}
	return out
}

func clausesDSL(clauses []Clause) []any {
	out := make([]any, 0, len(clauses))
	for _, c := range clauses {
		out = append(out, c.DSL())
	}
	return out
}

// DSL renders the clause as an Elasticsearch query.
func (c Clause) DSL() map[string]any {
	var q map[string]any
	switch c.Kind {
	case ClauseTerms:
		terms := map[string]any{c.Field: c.Values}
		if c.Boost > 0 {
			terms["boost"] = c.Boost
		}
		q = map[string]any{"terms": terms}
	case ClauseRange:
		bounds := map[string]any{}
		if c.Gte != nil {
			bounds["gte"] = *c.Gte
		}
		if c.Lte != nil {
			bounds["lte"] = *c.Lte
		}
		q = map[string]any{"range": map[string]any{c.Field: bounds}}
	case ClauseDateRange:
		bounds := map[string]any{"format": "yyyy-MM-dd"}
		if c.From != "" {
			bounds["gte"] = c.From
		}
		if c.To != "" {
			bounds["lte"] = c.To
		}
		q = map[string]any{"range": map[string]any{c.Field: bounds}}
	case ClauseContains:
		wildcard := map[string]any{
			"value":            "*" + escapeWildcard(c.Text) + "*",
			"case_insensitive": true,
		}
		if c.Boost > 0 {
			wildcard["boost"] = c.Boost
		}
		q = map[string]any{"wildcard": map[string]any{c.Field: wildcard}}
	default:
		q = matchDSL(c)
	}

	if c.Path == "" {
		return q
	}
	return map[string]any{
		"nested": map[string]any{
			"path":       c.Path,
			"query":      q,
			"score_mode": "max",
		},
	}
}

func matchDSL(c Clause) map[string]any {
	fields := c.Fields
	if len(fields) == 0 && c.Field != "" {
		fields = []string{c.Field}
	}
	if len(fields) == 1 {
		match := map[string]any{"query": c.Text}
		if c.Boost > 0 {
			match["boost"] = c.Boost
		}
		return map[string]any{"match": map[string]any{fields[0]: match}}
	}
	mm := map[string]any{"query": c.Text, "fields": fields}
	if c.Boost > 0 {
		mm["boost"] = c.Boost
	}
	return map[string]any{"multi_match": mm}
}

func aggregationsDSL() map[string]any {
	return map[string]any{
		"by_phase":   map[string]any{"terms": map[string]any{"field": FieldPhase, "size": AggregationSize}},
		"by_status":  map[string]any{"terms": map[string]any{"field": FieldStatus, "size": AggregationSize}},
		"by_sponsor": map[string]any{"terms": map[string]any{"field": FieldSource, "size": AggregationSize}},
	}
}

func boostedField(field string, boost float64) string {
	if boost == 0 || boost == 1 {
		return field
	}
	return field + "^" + strconv.FormatFloat(boost, 'f', -1, 64)
}

func escapeWildcard(s string) string {
	return strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`).Replace(s)
}
