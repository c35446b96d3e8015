// Package search turns a free-text clinical trial query into a hybrid
// lexical and vector retrieval request, runs it against a search store, and
// fuses and normalizes the results into scored trials.
package search

import (
	"context"
	"fmt"
	"strings"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// Mode is the requested retrieval strategy.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// ParseMode parses a strategy name. Empty input means hybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeKeyword, "lexical", "bm25":
		return ModeKeyword, nil
	case ModeSemantic, "vector":
		return ModeSemantic, nil
	}
	return "", trialerrors.New(trialerrors.ErrCodeInvalidInput, fmt.Sprintf("unknown search mode %q", s), nil).
		WithSuggestion("Use keyword, semantic or hybrid")
}

// Hit is one document returned by a store. For fused results Score is the
// fused score and the per-retriever fields record where the hit came from;
// a zero rank means the retriever did not return it.
type Hit struct {
	ID           string
	Score        float64
	Trial        trial.Trial
	LexicalScore float64
	LexicalRank  int
	VectorScore  float64
	VectorRank   int
}

// Response is a store's answer to a Request.
type Response struct {
	Hits         []Hit
	Total        int
	Aggregations trial.Aggregations
	// Fused is set when Hits are ordered by a rank fusion score.
	Fused bool
}

// Capabilities describes what a store can evaluate itself.
type Capabilities struct {
	Name string
	// NativeRRF stores accept hybrid requests and fuse internally.
	NativeRRF bool
}

// Store executes retrieval requests.
type Store interface {
	Search(ctx context.Context, req *Request) (*Response, error)
	Capabilities() Capabilities
	Close() error
}

// SearchRequest is the caller-facing search input.
type SearchRequest struct {
	Query    string               `json:"query"`
	Mode     Mode                 `json:"mode,omitempty"`
	Filters  *trial.SearchFilters `json:"filters,omitempty"`
	Page     int                  `json:"page,omitempty"`
	PageSize int                  `json:"pageSize,omitempty"`
	// Explain attaches the rendered store request to the result.
	Explain bool `json:"explain,omitempty"`
}

// SearchResult is the outcome of Engine.Search.
type SearchResult struct {
	Trials       []trial.ScoredTrial `json:"trials"`
	Total        int                 `json:"total"`
	Aggregations trial.Aggregations  `json:"aggregations"`
	Strategy     Mode                `json:"strategy"`
	Analysis     trial.QueryAnalysis `json:"analysis"`
	Terms        []string            `json:"expandedTerms,omitempty"`
	Degradations []string            `json:"degradations,omitempty"`
	Request      map[string]any      `json:"request,omitempty"`
}
