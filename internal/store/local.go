package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Aman-CERP/trialscope/internal/cache"
	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// Files inside a local store directory.
const (
	lexicalDir  = "lexical.bleve"
	vectorFile  = "vectors.hnsw"
	trialsFile  = "trials.jsonl"
	localName   = "local"
	matchAllRaw = 1.0
)

// LocalConfig configures a LocalStore.
type LocalConfig struct {
	// Path is the store directory. Empty keeps everything in memory.
	Path       string
	Dimensions int
	// Writable takes the directory lock so Add and Save are allowed.
	Writable bool
	// Recreate discards persisted data once the lock is held. Requires Writable.
	Recreate bool
	// Clock dates quality scores computed at load time.
	Clock cache.Clock
}

// LocalStore answers search requests from a bleve BM25 index and an HNSW
// graph, evaluating filters, boosts and functions in Go. It fuses hybrid
// requests itself with the same RRF law the engine uses.
type LocalStore struct {
	mu      sync.RWMutex
	cfg     LocalConfig
	lexical *LexicalIndex
	vectors *VectorIndex
	trials  map[string]trial.Trial
	lock    *DirLock
	closed  bool
}

var _ search.Store = (*LocalStore)(nil)

// OpenLocal opens or creates a local store.
func OpenLocal(cfg LocalConfig) (*LocalStore, error) {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = search.DefaultDimensions
	}
	if cfg.Clock == nil {
		cfg.Clock = cache.SystemClock{}
	}

	s := &LocalStore{cfg: cfg, trials: make(map[string]trial.Trial)}

	if cfg.Path != "" && cfg.Writable {
		s.lock = NewDirLock(cfg.Path)
		if err := s.lock.TryLock(); err != nil {
			return nil, err
		}
		if cfg.Recreate {
			if err := s.reset(); err != nil {
				s.release()
				return nil, err
			}
		}
	}

	lexPath := ""
	if cfg.Path != "" {
		lexPath = filepath.Join(cfg.Path, lexicalDir)
	}
	lex, err := NewLexicalIndex(lexPath)
	if err != nil {
		s.release()
		return nil, trialerrors.IOError("open local lexical index", err)
	}
	s.lexical = lex

	vec, err := NewVectorIndex(DefaultVectorConfig(cfg.Dimensions))
	if err != nil {
		s.release()
		return nil, trialerrors.ConfigError("invalid local vector settings", err)
	}
	s.vectors = vec

	if cfg.Path != "" {
		if err := s.load(); err != nil {
			s.release()
			return nil, err
		}
	}
	return s, nil
}

// reset removes the persisted index files, keeping the lock file.
func (s *LocalStore) reset() error {
	for _, name := range []string{lexicalDir, trialsFile, vectorFile, vectorFile + ".meta"} {
		if err := os.RemoveAll(filepath.Join(s.cfg.Path, name)); err != nil {
			return trialerrors.IOError("reset local store", err)
		}
	}
	slog.Info("local_store_reset", slog.String("path", s.cfg.Path))
	return nil
}

func (s *LocalStore) load() error {
	records, err := os.Open(filepath.Join(s.cfg.Path, trialsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return trialerrors.IOError("open local trial records", err)
	}
	defer records.Close()

	_, err = ReadJSONL(records, func(t trial.Trial) error {
		s.trials[t.NCTID] = t
		return nil
	})
	if err != nil {
		return trialerrors.New(trialerrors.ErrCodeCorruptIndex, "read local trial records", err).
			WithSuggestion("Rebuild the store with 'trialscope index --recreate'")
	}

	vecPath := filepath.Join(s.cfg.Path, vectorFile)
	if _, err := os.Stat(vecPath); err == nil {
		if err := s.vectors.Load(vecPath); err != nil {
			return trialerrors.New(trialerrors.ErrCodeCorruptIndex, "load local vectors", err).
				WithSuggestion("Rebuild the store with 'trialscope index --recreate'")
		}
	}

	slog.Debug("local_store_loaded",
		slog.String("path", s.cfg.Path),
		slog.Int("trials", len(s.trials)),
		slog.Int("vectors", s.vectors.Len()))
	return nil
}

// AddResult reports what Add did.
type AddResult struct {
	Indexed  int
	Vectors  int
	Rejected int
}

// Add indexes trials. Records without an NCT ID are rejected, missing
// quality scores are computed, and embeddings of the configured dimension
// go into the vector graph.
func (s *LocalStore) Add(ctx context.Context, trials []trial.Trial) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res AddResult
	if s.closed {
		return res, trialerrors.StoreUnavailable("local store is closed", nil)
	}
	if s.cfg.Path != "" && s.lock == nil {
		return res, trialerrors.New(trialerrors.ErrCodeIndexLocked, "local store was opened read-only", nil)
	}

	accepted := make([]trial.Trial, 0, len(trials))
	var ids []string
	var vectors [][]float32
	now := s.cfg.Clock.Now()
	for _, t := range trials {
		if t.NCTID == "" {
			res.Rejected++
			continue
		}
		if t.QualityScore == 0 {
			t.QualityScore = trial.QualityScore(&t, now)
		}
		if len(t.Embedding) == s.cfg.Dimensions {
			ids = append(ids, t.NCTID)
			vectors = append(vectors, t.Embedding)
		}
		accepted = append(accepted, t)
	}

	if err := s.lexical.Index(ctx, accepted); err != nil {
		return res, trialerrors.Wrap(trialerrors.ErrCodeIndexFailed, err)
	}
	if err := s.vectors.Add(ctx, ids, vectors); err != nil {
		return res, trialerrors.Wrap(trialerrors.ErrCodeIndexFailed, err)
	}
	for _, t := range accepted {
		t.Embedding = nil
		s.trials[t.NCTID] = t
	}

	res.Indexed = len(accepted)
	res.Vectors = len(ids)
	return res, nil
}

// Save writes trial records and the vector graph. The bleve index persists
// itself. No-op for in-memory stores.
func (s *LocalStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.cfg.Path == "" {
		return nil
	}
	ids := make([]string, 0, len(s.trials))
	for id := range s.trials {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	err := writeAtomic(filepath.Join(s.cfg.Path, trialsFile), func(f *os.File) error {
		return WriteJSONL(f, len(ids), func(i int) trial.Trial { return s.trials[ids[i]] })
	})
	if err != nil {
		return trialerrors.IOError("write local trial records", err)
	}
	if s.vectors.Len() > 0 {
		if err := s.vectors.Save(filepath.Join(s.cfg.Path, vectorFile)); err != nil {
			return trialerrors.IOError("write local vectors", err)
		}
	}
	return nil
}

// Get returns one trial by NCT ID.
func (s *LocalStore) Get(id string) (trial.Trial, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trials[id]
	return t, ok
}

// Count returns the number of trials.
func (s *LocalStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trials)
}

// Capabilities implements search.Store.
func (s *LocalStore) Capabilities() search.Capabilities {
	return search.Capabilities{Name: localName, NativeRRF: true}
}

// Search implements search.Store.
func (s *LocalStore) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, trialerrors.StoreUnavailable("local store is closed", nil)
	}

	var (
		hits  []search.Hit
		fused bool
		err   error
	)
	switch {
	case req.IsHybrid():
		lexReq, vecReq := req.Split()
		lex, lexErr := s.lexicalHits(ctx, lexReq)
		if lexErr != nil {
			return nil, lexErr
		}
		vec, vecErr := s.vectorHits(ctx, vecReq)
		if vecErr != nil {
			return nil, vecErr
		}
		hits = search.NewRRFFusion(req.Fusion).Fuse(lex, vec)
		fused = true
	case req.Lexical != nil:
		hits, err = s.lexicalHits(ctx, req)
	case req.Vector != nil:
		hits, err = s.vectorHits(ctx, req)
	default:
		hits = s.matchAll(req)
	}
	if err != nil {
		return nil, err
	}

	resp := &search.Response{
		Hits:  search.Page(hits, req.From, req.Size),
		Total: len(hits),
		Fused: fused,
	}
	if req.Aggregations {
		resp.Aggregations = aggregate(hits)
	}
	return resp, nil
}

func (s *LocalStore) lexicalHits(ctx context.Context, req *search.Request) ([]search.Hit, error) {
	results, err := s.lexical.Search(ctx, req.Lexical, max(len(s.trials), 1))
	if err != nil {
		return nil, trialerrors.StoreUnavailable("local lexical search failed", err)
	}

	hits := make([]search.Hit, 0, len(results))
	for _, r := range results {
		t, ok := s.trials[r.ID]
		if !ok || !req.Admits(&t) {
			continue
		}
		should, _ := req.ShouldScore(&t)
		hits = append(hits, search.Hit{
			ID:    r.ID,
			Score: (r.Score + should) * req.BoostFactor(&t),
			Trial: t,
		})
	}
	sortHits(hits)
	return hits, nil
}

func (s *LocalStore) vectorHits(ctx context.Context, req *search.Request) ([]search.Hit, error) {
	v := req.Vector
	if len(v.Vector) != s.cfg.Dimensions {
		return []search.Hit{}, nil
	}

	// Filtered kNN must see every candidate to return K admitted hits.
	fetch := max(v.NumCandidates, v.K)
	if len(req.Filters) > 0 {
		fetch = s.vectors.Len()
	}
	results, err := s.vectors.Search(ctx, v.Vector, fetch)
	if err != nil {
		return nil, trialerrors.StoreUnavailable("local vector search failed", err)
	}

	hits := make([]search.Hit, 0, min(v.K, len(results)))
	for _, r := range results {
		if float64(r.Similarity) < v.Similarity {
			continue
		}
		t, ok := s.trials[r.ID]
		if !ok || !req.Admits(&t) {
			continue
		}
		hits = append(hits, search.Hit{ID: r.ID, Score: float64(r.Score), Trial: t})
	}
	sortHits(hits)
	if len(hits) > v.K {
		hits = hits[:v.K]
	}
	return hits, nil
}

func (s *LocalStore) matchAll(req *search.Request) []search.Hit {
	hits := make([]search.Hit, 0, len(s.trials))
	for id, t := range s.trials {
		if !req.Admits(&t) {
			continue
		}
		should, _ := req.ShouldScore(&t)
		hits = append(hits, search.Hit{ID: id, Score: (matchAllRaw + should) * req.BoostFactor(&t), Trial: t})
	}
	sortHits(hits)
	return hits
}

// Close releases the indexes and the directory lock.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.release()
}

func (s *LocalStore) release() error {
	var errs []error
	if s.lexical != nil {
		errs = append(errs, s.lexical.Close())
	}
	if s.vectors != nil {
		errs = append(errs, s.vectors.Close())
	}
	if s.lock != nil {
		errs = append(errs, s.lock.Unlock())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close local store: %w", err)
	}
	return nil
}

func sortHits(hits []search.Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

// aggregate counts phase, status and sponsor buckets the way the terms
// aggregations do: by count desc, then key, capped at AggregationSize.
func aggregate(hits []search.Hit) trial.Aggregations {
	phases := map[string]int{}
	statuses := map[string]int{}
	sponsors := map[string]int{}
	for _, h := range hits {
		if h.Trial.Phase != "" {
			phases[string(h.Trial.Phase)]++
		}
		if h.Trial.Status != "" {
			statuses[string(h.Trial.Status)]++
		}
		if h.Trial.Source != "" {
			sponsors[h.Trial.Source]++
		}
	}
	return trial.Aggregations{
		Phases:   buckets(phases),
		Statuses: buckets(statuses),
		Sponsors: buckets(sponsors),
	}
}

func buckets(counts map[string]int) []trial.Bucket {
	out := make([]trial.Bucket, 0, len(counts))
	for k, c := range counts {
		out = append(out, trial.Bucket{Key: k, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > search.AggregationSize {
		out = out[:search.AggregationSize]
	}
	return out
}
