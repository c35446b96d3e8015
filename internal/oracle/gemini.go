package oracle

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
)

// GeminiClient uses the Google Generative AI API.
type GeminiClient struct {
	client *genai.Client
	model  *genai.GenerativeModel
	json   *genai.GenerativeModel
	embed  *genai.EmbeddingModel
	dims   int
}

// Verify interface implementation at compile time
var (
	_ Completer = (*GeminiClient)(nil)
	_ Embedder  = (*GeminiClient)(nil)
)

// NewGeminiClient creates a client authenticated with cfg.APIKey.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, trialerrors.ConfigError("gemini provider requires an API key", nil).
			WithSuggestion("Set oracle.api_key or TRIALSCOPE_ORACLE_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, trialerrors.OracleUnavailable("create gemini client", err)
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultGeminiModel
	}
	embedName := cfg.EmbedModel
	if embedName == "" {
		embedName = DefaultGeminiEmbedModel
	}
	dims := cfg.Dimensions
	if dims <= 0 {
		dims = DefaultDimensions
	}

	text := client.GenerativeModel(modelName)
	text.SetTemperature(0)

	jsonModel := client.GenerativeModel(modelName)
	jsonModel.SetTemperature(0)
	jsonModel.ResponseMIMEType = "application/json"

	return &GeminiClient{
		client: client,
		model:  text,
		json:   jsonModel,
		embed:  client.EmbeddingModel(embedName),
		dims:   dims,
	}, nil
}

// Complete generates a single candidate and returns its text parts.
func (g *GeminiClient) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	model := g.model
	if jsonMode {
		model = g.json
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", wrapProviderError("gemini generate", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", trialerrors.OracleUnavailable("gemini returned no candidates", nil)
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out.WriteString(string(text))
		}
	}
	return out.String(), nil
}

// Embed returns the embedding of text.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := g.embed.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, wrapProviderError("gemini embed", err)
	}
	if res == nil || res.Embedding == nil {
		return nil, trialerrors.New(trialerrors.ErrCodeEmbeddingFailed, "gemini returned no embedding", nil)
	}
	return res.Embedding.Values, nil
}

// Dimensions returns the configured vector size.
func (g *GeminiClient) Dimensions() int {
	return g.dims
}

// Close releases the underlying gRPC connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}
