package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	olla "github.com/ollama/ollama/api"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
)

// OllamaClient talks to a local or remote Ollama server for both
// completions and embeddings.
type OllamaClient struct {
	client     *olla.Client
	model      string
	embedModel string
	dims       int
}

// Verify interface implementation at compile time
var (
	_ Completer = (*OllamaClient)(nil)
	_ Embedder  = (*OllamaClient)(nil)
)

// NewOllamaClient creates a client for the server at cfg.Host.
func NewOllamaClient(cfg Config) (*OllamaClient, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultOllamaHost
	}
	parsed, err := url.Parse(host)
	if err != nil {
		return nil, trialerrors.ConfigError(fmt.Sprintf("invalid ollama host %q", host), err)
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = DefaultOllamaEmbedModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	// No transport timeout: deadlines come from the caller's context.
	hc := &http.Client{}

	return &OllamaClient{
		client:     olla.NewClient(parsed, hc),
		model:      model,
		embedModel: embedModel,
		dims:       dims,
	}, nil
}

// Complete runs a non-streaming generation.
func (o *OllamaClient) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	stream := false
	req := &olla.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": 0,
		},
	}
	if jsonMode {
		req.Format = json.RawMessage(`"json"`)
	}

	var out strings.Builder
	err := o.client.Generate(ctx, req, func(resp olla.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", wrapProviderError("ollama generate", err)
	}
	return out.String(), nil
}

// Embed returns the embedding of text.
func (o *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.Embed(ctx, &olla.EmbedRequest{
		Model: o.embedModel,
		Input: text,
	})
	if err != nil {
		return nil, wrapProviderError("ollama embed", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, trialerrors.New(trialerrors.ErrCodeEmbeddingFailed, "ollama returned no embedding", nil)
	}
	return resp.Embeddings[0], nil
}

// Dimensions returns the configured vector size.
func (o *OllamaClient) Dimensions() int {
	return o.dims
}

// Available pings the server.
func (o *OllamaClient) Available(ctx context.Context) bool {
	return o.client.Heartbeat(ctx) == nil
}

// wrapProviderError keeps context errors intact so the resilience layer can
// tell cancellation from an unreachable provider.
func wrapProviderError(op string, err error) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return trialerrors.OracleUnavailable(op+" failed", err)
}

func contextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	return nil
}
