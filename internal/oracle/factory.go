package oracle

import (
	"context"
	"fmt"
	"io"
	"strings"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
)

// Clients is the set of provider clients built from configuration.
type Clients struct {
	Completer Completer
	Embedder  Embedder
	closers   []io.Closer
}

// Close releases provider connections.
func (c *Clients) Close() error {
	var first error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewClients builds the completion and embedding providers named by cfg.
// EmbedProvider defaults to Provider. The embedder is wrapped in a
// CachedEmbedder.
func NewClients(ctx context.Context, cfg Config) (*Clients, error) {
	name := strings.ToLower(cfg.Provider)
	main, closer, err := buildProvider(ctx, name, cfg)
	if err != nil {
		return nil, err
	}
	out := &Clients{Completer: main}
	if closer != nil {
		out.closers = append(out.closers, closer)
	}

	var embedder Embedder = main
	if embedName := strings.ToLower(cfg.EmbedProvider); embedName != "" && embedName != name {
		other, closer, err := buildProvider(ctx, embedName, cfg)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		if closer != nil {
			out.closers = append(out.closers, closer)
		}
		embedder = other
	}
	out.Embedder = NewCachedEmbedder(embedder, cfg.CacheSize)

	return out, nil
}

type provider interface {
	Completer
	Embedder
}

func buildProvider(ctx context.Context, name string, cfg Config) (provider, io.Closer, error) {
	switch name {
	case ProviderOllama, "":
		c, err := NewOllamaClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	case ProviderGemini:
		c, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, c, nil
	case ProviderStatic:
		return staticProvider{NewStaticEmbedder(cfg.Dimensions)}, nil, nil
	case ProviderNone:
		return Disabled{Dims: cfg.Dimensions}, nil, nil
	default:
		return nil, nil, trialerrors.ConfigError(fmt.Sprintf("unknown oracle provider %q", name), nil).
			WithSuggestion("Use one of: ollama, gemini, static, none")
	}
}

// staticProvider pairs the static embedder with a disabled completer.
type staticProvider struct {
	*StaticEmbedder
}

func (staticProvider) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	return Disabled{}.Complete(ctx, prompt, jsonMode)
}
