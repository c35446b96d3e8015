package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// VectorIndex is a cosine HNSW graph over trial embeddings.
type VectorIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	// string <-> uint64 key mapping
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64

	closed bool
}

// vectorMetadata stores the ID mapping for persistence.
type vectorMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorConfig
}

// NewVectorIndex creates an empty graph.
func NewVectorIndex(cfg VectorConfig) (*VectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index needs positive dimensions, got %d", cfg.Dimensions)
	}
	def := DefaultVectorConfig(cfg.Dimensions)
	if cfg.M == 0 {
		cfg.M = def.M
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = def.EfSearch
	}

	return &VectorIndex{
		graph:  newGraph(cfg),
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

func newGraph(cfg VectorConfig) *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25
	return graph
}

// Add inserts vectors. An existing ID is replaced.
func (v *VectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}
	for _, vec := range vectors {
		if len(vec) != v.config.Dimensions {
			return ErrDimensionMismatch{Expected: v.config.Dimensions, Got: len(vec)}
		}
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		// coder/hnsw breaks when the last node is deleted, so replaced
		// nodes are orphaned instead of removed.
		if old, ok := v.idMap[id]; ok {
			delete(v.keyMap, old)
		}

		key := v.nextKey
		v.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)
		v.graph.Add(hnsw.MakeNode(key, vec))

		v.idMap[id] = key
		v.keyMap[key] = id
	}
	return nil
}

// Search returns up to k neighbours of query, best first.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != v.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: v.config.Dimensions, Got: len(query)}
	}
	if v.graph.Len() == 0 || k <= 0 {
		return []VectorResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalizeInPlace(q)

	// Orphaned nodes take slots, so over-fetch by their count.
	orphans := v.graph.Len() - len(v.idMap)
	nodes := v.graph.Search(q, k+orphans)

	out := make([]VectorResult, 0, min(k, len(nodes)))
	for _, node := range nodes {
		id, ok := v.keyMap[node.Key]
		if !ok {
			continue
		}
		sim := 1 - v.graph.Distance(q, node.Value)
		out = append(out, VectorResult{ID: id, Similarity: sim, Score: (1 + sim) / 2})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// Len returns the number of live vectors.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// Save writes the graph to path and the ID mapping to path.meta, each via a
// temp file and rename.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create vector directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error { return v.graph.Export(f) }); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	meta := vectorMetadata{IDMap: v.idMap, NextKey: v.nextKey, Config: v.config}
	if err := writeAtomic(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return fmt.Errorf("save vector metadata: %w", err)
	}
	return nil
}

// Load replaces the index contents with a saved graph.
func (v *VectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	meta, err := readVectorMetadata(path + ".meta")
	if err != nil {
		return err
	}
	if meta.Config.Dimensions != v.config.Dimensions {
		return ErrDimensionMismatch{Expected: v.config.Dimensions, Got: meta.Config.Dimensions}
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector file: %w", err)
	}
	defer file.Close()

	graph := newGraph(meta.Config)
	// Import needs an io.ByteReader.
	if err := graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	v.graph = graph
	v.config = meta.Config
	v.idMap = meta.IDMap
	v.nextKey = meta.NextKey
	v.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range v.idMap {
		v.keyMap[key] = id
	}
	return nil
}

// Close releases the graph.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.graph = nil
	return nil
}

func readVectorMetadata(path string) (vectorMetadata, error) {
	var meta vectorMetadata
	file, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open vector metadata: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Warn("vector_metadata_close_failed", slog.String("error", err.Error()))
		}
	}()
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return meta, fmt.Errorf("decode vector metadata: %w", err)
	}
	return meta, nil
}

// writeAtomic writes through a temp file renamed over path.
func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
