package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// MedicalAnalyzerName is the analyzer applied to every text field: unicode
// tokens, lowercased, English stop words removed, Porter stemmed.
const MedicalAnalyzerName = "medical"

// Bleve field names for the nested text the index flattens.
const (
	lexConditions    = "conditions"
	lexInterventions = "interventions"
)

// nestedFields maps request fields onto the flattened bleve fields.
var nestedFields = map[string]string{
	search.FieldConditionName:    lexConditions,
	search.FieldInterventionName: lexInterventions,
}

// lexicalDoc is what bleve indexes for a trial.
type lexicalDoc struct {
	BriefTitle    string   `json:"brief_title"`
	OfficialTitle string   `json:"official_title"`
	Summary       string   `json:"brief_summaries_description"`
	Detailed      string   `json:"detailed_description"`
	Keywords      []string `json:"keywords"`
	Conditions    []string `json:"conditions"`
	Interventions []string `json:"interventions"`
}

func newLexicalDoc(t *trial.Trial) lexicalDoc {
	return lexicalDoc{
		BriefTitle:    t.BriefTitle,
		OfficialTitle: t.OfficialTitle,
		Summary:       t.Summary,
		Detailed:      t.DetailedDescription,
		Keywords:      t.Keywords,
		Conditions:    t.ConditionNames(),
		Interventions: t.InterventionNames(),
	}
}

// LexicalResult is one BM25 hit.
type LexicalResult struct {
	ID    string
	Score float64
}

// LexicalIndex is a bleve BM25 index over trial text fields.
type LexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// NewLexicalIndex opens or creates the index at path. An empty path creates
// an in-memory index. A corrupted on-disk index is cleared and recreated.
func NewLexicalIndex(path string) (*LexicalIndex, error) {
	indexMapping, err := newIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = openOrCreate(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}
	return &LexicalIndex{index: idx, path: path}, nil
}

func openOrCreate(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("lexical_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("lexical index corrupted at %s and cannot remove: %w", path, err)
		}
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		return bleve.New(path, indexMapping)
	case err != nil && isCorruptionError(err):
		slog.Warn("lexical_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("lexical index corrupted, cannot clear: %w (original: %v)", rmErr, err)
		}
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

// validateIndexIntegrity checks index_meta.json before bleve opens the
// index. A missing directory is valid: the index will be created.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

func newIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(MedicalAnalyzerName, map[string]any{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			en.StopName,
			porter.Name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add medical analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = MedicalAnalyzerName
	return indexMapping, nil
}

// Index adds or replaces trials.
func (l *LexicalIndex) Index(ctx context.Context, trials []trial.Trial) error {
	if len(trials) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("lexical index is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := l.index.NewBatch()
	for i := range trials {
		if err := batch.Index(trials[i].NCTID, newLexicalDoc(&trials[i])); err != nil {
			return fmt.Errorf("index %s: %w", trials[i].NCTID, err)
		}
	}
	if err := l.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}
	return nil
}

// Search scores documents matching the lexical clause with BM25. Field
// boosts and nested condition/intervention matches apply; fuzziness does not.
func (l *LexicalIndex) Search(ctx context.Context, clause *search.LexicalClause, limit int) ([]LexicalResult, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	q := lexicalQuery(clause)
	if q == nil || limit <= 0 {
		return []LexicalResult{}, nil
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	out := make([]LexicalResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, LexicalResult{ID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

func lexicalQuery(clause *search.LexicalClause) query.Query {
	if clause == nil || strings.TrimSpace(clause.Query) == "" {
		return nil
	}
	var parts []query.Query
	for _, f := range clause.Fields {
		mq := bleve.NewMatchQuery(clause.Query)
		mq.SetField(f.Field)
		if f.Boost > 0 {
			mq.SetBoost(f.Boost)
		}
		parts = append(parts, mq)
	}
	for _, nested := range clause.Nested {
		field, ok := nestedFields[nested.Field]
		if !ok || nested.Text == "" {
			continue
		}
		mq := bleve.NewMatchQuery(nested.Text)
		mq.SetField(field)
		if nested.Boost > 0 {
			mq.SetBoost(nested.Boost)
		}
		parts = append(parts, mq)
	}
	if len(parts) == 0 {
		return nil
	}
	return bleve.NewDisjunctionQuery(parts...)
}

// Count returns the number of indexed documents.
func (l *LexicalIndex) Count() (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}
	n, err := l.index.DocCount()
	return int(n), err
}

// Close closes the index. Safe to call twice.
func (l *LexicalIndex) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.index.Close()
}
