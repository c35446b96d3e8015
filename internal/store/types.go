// Package store provides the search backends behind search.Store: an
// Elasticsearch adapter and a local bleve + HNSW store for offline use.
package store

import (
	"fmt"
	"time"
)

// Backend names accepted by New.
const (
	BackendElasticsearch = "elasticsearch"
	BackendLocal         = "local"
)

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend" json:"backend"`

	// Elasticsearch
	Addresses []string `yaml:"addresses" json:"addresses"`
	Index     string   `yaml:"index" json:"index"`
	APIKey    string   `yaml:"api_key" json:"-"`
	Username  string   `yaml:"username" json:"username,omitempty"`
	Password  string   `yaml:"password" json:"-"`
	// NativeRRF lets the cluster fuse hybrid requests itself. The rrf
	// retriever needs a licence tier that not every cluster has.
	NativeRRF bool `yaml:"native_rrf" json:"native_rrf"`

	// Local
	LocalPath  string `yaml:"local_path" json:"local_path"`
	Dimensions int    `yaml:"embedding_dims" json:"embedding_dims"`

	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns the settings for a local Elasticsearch node.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendElasticsearch,
		Addresses:  []string{"http://localhost:9200"},
		Index:      DefaultIndex,
		Dimensions: 768,
		Timeout:    10 * time.Second,
	}
}

// DefaultIndex is the clinical trials index name.
const DefaultIndex = "clinical_trials"

// VectorResult is one nearest neighbour.
type VectorResult struct {
	ID string
	// Similarity is the raw cosine similarity (-1..1).
	Similarity float32
	// Score is Elasticsearch's cosine _score, (1 + similarity) / 2.
	Score float32
}

// VectorConfig configures the HNSW graph.
type VectorConfig struct {
	Dimensions int
	// M is max connections per layer (default: 16)
	M int
	// EfSearch is query-time search width (default: 64)
	EfSearch int
}

// DefaultVectorConfig returns defaults for a graph of the given dimension.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   64,
	}
}

// ErrDimensionMismatch indicates a vector of the wrong length.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild with 'trialscope index --recreate')", e.Expected, e.Got)
}
