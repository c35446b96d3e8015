package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/resilience"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// fakeCompleter returns canned replies or a fixed error.
type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.reply, f.err
}

// countingEmbedder counts calls to detect cache hits.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

func (c *countingEmbedder) Dimensions() int { return 3 }

type recordedCall struct {
	op, outcome string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (r *fakeRecorder) ObserveOracle(op, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recordedCall{op, outcome})
}

func TestResult_OkAndDegraded(t *testing.T) {
	ok := Ok(42)
	assert.Equal(t, 42, ok.Value())
	assert.False(t, ok.IsDegraded())
	assert.Empty(t, ok.Reason())

	deg := Degraded("fallback", "timeout")
	assert.Equal(t, "fallback", deg.Value())
	assert.True(t, deg.IsDegraded())
	assert.Equal(t, "timeout", deg.Reason())

	assert.Equal(t, "oracle unavailable", Degraded(0, "").Reason())
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around", `Sure! Here it is: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`, false},
		{"array", `Issues: [{"claim":"x"}]`, `[{"claim":"x"}]`, false},
		{"object containing array", `{"citations":["NCT1"]}`, `{"citations":["NCT1"]}`, false},
		{"empty", "  ", "", true},
		{"no json", "nothing here", "", true},
		{"unterminated", `{"a":`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSON_QueryAnalysis(t *testing.T) {
	// Given: a model reply with a fenced analysis
	reply := "```json\n{\"condition\":\"diabetes\",\"phase\":\"Phase 3\",\"keywords\":[\"insulin\"]}\n```"

	// When: decoding it
	got, err := DecodeJSON[trial.QueryAnalysis](reply)

	// Then: fields are populated
	require.NoError(t, err)
	assert.Equal(t, "diabetes", got.Condition)
	assert.Equal(t, trial.Phase("Phase 3"), got.Phase)
	assert.Equal(t, []string{"insulin"}, got.Keywords)
}

func TestDecodeJSON_Malformed(t *testing.T) {
	_, err := DecodeJSON[map[string]any](`{"a": nope}`)
	assert.Error(t, err)
}

func TestStaticEmbedder(t *testing.T) {
	e := NewStaticEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "type 2 diabetes insulin")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "type 2 diabetes insulin")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "breast cancer radiotherapy")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b, "static embeddings are deterministic")
	assert.NotEqual(t, a, c)

	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	blank, err := e.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 64), blank)
}

func TestCachedEmbedder_HitsAndMisses(t *testing.T) {
	// Given: a cached embedder over a counting embedder
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	// When: embedding the same text twice and a new text once
	v1, err := c.Embed(ctx, "asthma")
	require.NoError(t, err)
	v2, err := c.Embed(ctx, "asthma")
	require.NoError(t, err)
	_, err = c.Embed(ctx, "copd")
	require.NoError(t, err)

	// Then: the repeated text is served from cache
	assert.Equal(t, v1, v2)
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, 3, c.Dimensions())
}

func TestCachedEmbedder_DoesNotCacheFailures(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("down")}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.Embed(context.Background(), "asthma")
	require.Error(t, err)
	_, err = c.Embed(context.Background(), "asthma")
	require.Error(t, err)

	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, c.Len())
}

func fastResilience() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = time.Millisecond
	return cfg
}

func TestGuarded_SuccessRecordsOk(t *testing.T) {
	// Given: a guarded healthy completer
	fc := &fakeCompleter{reply: `{"condition":"asthma"}`}
	rec := &fakeRecorder{}
	g := NewGuarded(fc, nil, Config{Timeout: time.Second, Resilience: fastResilience()}, WithRecorder(rec))

	// When: completing
	out, err := g.Completer(OpAnalyze).Complete(context.Background(), "p", true)

	// Then: the reply passes through and an ok call is recorded
	require.NoError(t, err)
	assert.Equal(t, `{"condition":"asthma"}`, out)
	assert.Equal(t, []recordedCall{{"analyze", "ok"}}, rec.calls)
}

func TestGuarded_RetriesRetryableFailures(t *testing.T) {
	// Given: a completer that is unreachable
	fc := &fakeCompleter{err: trialerrors.OracleUnavailable("down", nil)}
	rec := &fakeRecorder{}
	g := NewGuarded(fc, nil, Config{Timeout: time.Second, Resilience: fastResilience()}, WithRecorder(rec))

	// When: completing
	_, err := g.Completer(OpAnswer).Complete(context.Background(), "p", false)

	// Then: the call is retried once and reported degraded
	require.Error(t, err)
	assert.Equal(t, 2, fc.calls)
	assert.Equal(t, []recordedCall{{"answer", "degraded"}}, rec.calls)
}

func TestGuarded_OpensCircuit(t *testing.T) {
	// Given: a breaker that trips after two failed calls
	cfg := fastResilience()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	fc := &fakeCompleter{err: trialerrors.OracleUnavailable("down", nil)}
	g := NewGuarded(fc, nil, Config{Timeout: time.Second, Resilience: cfg})
	c := g.Completer(OpJudge)

	// When: calling three times
	for i := 0; i < 3; i++ {
		_, _ = c.Complete(context.Background(), "p", true)
	}

	// Then: the third call never reaches the provider
	assert.Equal(t, 2, fc.calls)
	assert.Equal(t, "open", g.BreakerState(OpJudge))
}

func TestGuarded_NilProvidersAreDisabled(t *testing.T) {
	g := NewGuarded(nil, nil, Config{Dimensions: 16, Resilience: fastResilience()})

	_, err := g.Completer(OpAnalyze).Complete(context.Background(), "p", true)
	assert.Error(t, err)

	_, err = g.Embedder().Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.Equal(t, 16, g.Embedder().Dimensions())
}

func TestNewClients(t *testing.T) {
	ctx := context.Background()

	t.Run("static embeds offline", func(t *testing.T) {
		clients, err := NewClients(ctx, Config{Provider: ProviderStatic, Dimensions: 32})
		require.NoError(t, err)
		defer clients.Close()

		v, err := clients.Embedder.Embed(ctx, "melanoma")
		require.NoError(t, err)
		assert.Len(t, v, 32)

		_, err = clients.Completer.Complete(ctx, "p", false)
		assert.Error(t, err)
	})

	t.Run("none disables everything", func(t *testing.T) {
		clients, err := NewClients(ctx, Config{Provider: ProviderNone})
		require.NoError(t, err)
		_, err = clients.Embedder.Embed(ctx, "x")
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewClients(ctx, Config{Provider: "openai"})
		require.Error(t, err)
		assert.Equal(t, trialerrors.ErrCodeConfigInvalid, trialerrors.GetCode(err))
	})

	t.Run("gemini without key", func(t *testing.T) {
		_, err := NewClients(ctx, Config{Provider: ProviderGemini})
		assert.Error(t, err)
	})
}

func TestOllamaClient_CompleteAndEmbed(t *testing.T) {
	// Given: a fake Ollama server
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/generate":
			var req map[string]any
			_ = json.NewDecoder(r.Body).Decode(&req)
			assert.Equal(t, "json", req["format"])
			_, _ = w.Write([]byte(`{"model":"m","response":"{\"phase\":\"PHASE3\"}","done":true}` + "\n"))
		case "/api/embed":
			_, _ = w.Write([]byte(`{"model":"e","embeddings":[[0.1,0.2,0.3]]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := NewOllamaClient(Config{Host: srv.URL, Model: "m", EmbedModel: "e", Dimensions: 3})
	require.NoError(t, err)

	// When: completing in JSON mode and embedding
	out, err := c.Complete(context.Background(), "prompt", true)
	require.NoError(t, err)
	vec, err := c.Embed(context.Background(), "text")
	require.NoError(t, err)

	// Then: the server replies are returned
	assert.Equal(t, `{"phase":"PHASE3"}`, out)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, 3, c.Dimensions())
}

func TestOllamaClient_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not loaded"}`))
	}))
	defer srv.Close()

	c, err := NewOllamaClient(Config{Host: srv.URL})
	require.NoError(t, err)

	_, err = c.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.True(t, trialerrors.IsRetryable(err))
}

func TestPrompts(t *testing.T) {
	trials := make([]trial.Trial, 12)
	for i := range trials {
		trials[i] = trial.Trial{NCTID: "NCT0000000" + string(rune('A'+i)), BriefTitle: "Trial"}
	}

	p := AnswerPrompt("what diabetes trials exist?", trials)
	assert.Contains(t, p, "what diabetes trials exist?")
	assert.Contains(t, p, "12 retrieved, showing 10")
	assert.NotContains(t, p, trials[11].NCTID)

	assert.Contains(t, AnalyzePrompt("asthma in kids"), "asthma in kids")
	assert.Contains(t, JudgePrompt("answer text", trials[:1], "total=1"), "total=1")
	assert.Contains(t, ExplainPrompt("q", &trials[0], nil), "general relevance")
}

func TestConfig_EmbedProviderName(t *testing.T) {
	assert.Equal(t, ProviderOllama, Config{Provider: "Ollama"}.EmbedProviderName())
	assert.Equal(t, ProviderStatic, Config{Provider: ProviderGemini, EmbedProvider: "STATIC"}.EmbedProviderName())
}
