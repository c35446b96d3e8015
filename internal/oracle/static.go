package oracle

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

// StaticEmbedder produces hash-based vectors without a model: each token and
// character trigram is hashed into a fixed-size vector which is then
// L2-normalized. It lets the local store run vector retrieval offline and is
// deterministic, which makes it the embedder of choice in tests.
type StaticEmbedder struct {
	dims int
}

var _ Embedder = (*StaticEmbedder)(nil)

// NewStaticEmbedder creates a static embedder with the given dimensions.
func NewStaticEmbedder(dims int) *StaticEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &StaticEmbedder{dims: dims}
}

// Embed returns the hashed vector for text. Blank text yields a zero vector.
func (e *StaticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vector := make([]float32, e.dims)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vector, nil
	}

	for _, token := range staticTokens(trimmed) {
		vector[hashToIndex(token, e.dims)] += staticTokenWeight
	}

	normalized := letterDigits(trimmed)
	for i := 0; i+staticNgramSize <= len(normalized); i++ {
		vector[hashToIndex(normalized[i:i+staticNgramSize], e.dims)] += staticNgramWeight
	}

	return normalizeVector(vector), nil
}

// Dimensions returns the vector size.
func (e *StaticEmbedder) Dimensions() int {
	return e.dims
}

func staticTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func letterDigits(text string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalizeVector(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}
