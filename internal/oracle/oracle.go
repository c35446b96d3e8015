// Package oracle provides clients for the external language and embedding
// models: completion for query analysis, narrative answers and judging, and
// text embeddings for vector retrieval.
//
// Every caller of this package has a deterministic fallback, so clients
// report failures as errors and leave degradation to the caller (see Result).
package oracle

import (
	"context"
	"strings"
	"time"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/resilience"
)

// Operation names an oracle call shape. Used for breakers and metrics.
type Operation string

const (
	OpAnalyze Operation = "analyze"
	OpAnswer  Operation = "answer"
	OpJudge   Operation = "judge"
	OpExplain Operation = "explain"
	OpEmbed   Operation = "embed"
)

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
	ProviderStatic = "static"
	ProviderNone   = "none"
)

// Defaults.
const (
	DefaultOllamaHost       = "http://localhost:11434"
	DefaultOllamaModel      = "llama3.1"
	DefaultOllamaEmbedModel = "nomic-embed-text"
	DefaultGeminiModel      = "gemini-1.5-flash"
	DefaultGeminiEmbedModel = "text-embedding-004"
	DefaultDimensions       = 768
	DefaultTimeout          = 20 * time.Second
	DefaultRateLimit        = 5.0
	DefaultBurst            = 10
	DefaultEmbedCacheSize   = 1000
)

// Completer produces text from a prompt. With jsonMode set the model is asked
// to answer with a JSON document.
type Completer interface {
	Complete(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// Embedder produces a dense vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Config selects and tunes the oracle provider.
type Config struct {
	Provider      string            `yaml:"provider" json:"provider"`
	EmbedProvider string            `yaml:"embed_provider,omitempty" json:"embed_provider,omitempty"`
	Host          string            `yaml:"host,omitempty" json:"host,omitempty"`
	Model         string            `yaml:"model,omitempty" json:"model,omitempty"`
	EmbedModel    string            `yaml:"embed_model,omitempty" json:"embed_model,omitempty"`
	APIKey        string            `yaml:"api_key,omitempty" json:"-"`
	Dimensions    int               `yaml:"dimensions" json:"dimensions"`
	Timeout       time.Duration     `yaml:"timeout" json:"timeout"`
	RateLimit     float64           `yaml:"rate_limit" json:"rate_limit"`
	Burst         int               `yaml:"burst" json:"burst"`
	CacheSize     int               `yaml:"embed_cache_size" json:"embed_cache_size"`
	Resilience    resilience.Config `yaml:"-" json:"-"`
}

// EmbedProviderName returns the provider that serves embeddings.
func (c Config) EmbedProviderName() string {
	if c.EmbedProvider != "" {
		return strings.ToLower(c.EmbedProvider)
	}
	return strings.ToLower(c.Provider)
}

// DefaultConfig returns a local Ollama setup.
func DefaultConfig() Config {
	return Config{
		Provider:   ProviderOllama,
		Host:       DefaultOllamaHost,
		Model:      DefaultOllamaModel,
		EmbedModel: DefaultOllamaEmbedModel,
		Dimensions: DefaultDimensions,
		Timeout:    DefaultTimeout,
		RateLimit:  DefaultRateLimit,
		Burst:      DefaultBurst,
		CacheSize:  DefaultEmbedCacheSize,
		Resilience: resilience.DefaultConfig(),
	}
}

// Disabled is the provider used when no oracle is configured. Every call
// fails, so callers take their fallback path.
type Disabled struct {
	Dims int
}

// Complete always fails.
func (Disabled) Complete(context.Context, string, bool) (string, error) {
	return "", trialerrors.OracleUnavailable("no language model configured", nil).
		WithSuggestion("Set oracle.provider to ollama or gemini")
}

// Embed always fails.
func (Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, trialerrors.OracleUnavailable("no embedding model configured", nil)
}

// Dimensions returns the configured vector size.
func (d Disabled) Dimensions() int {
	if d.Dims <= 0 {
		return DefaultDimensions
	}
	return d.Dims
}
