package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trialscope/internal/answer"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/service"
	"github.com/Aman-CERP/trialscope/internal/telemetry"
	"github.com/Aman-CERP/trialscope/internal/trial"
	"github.com/Aman-CERP/trialscope/internal/verify"
)

type fakeStore struct{ hits []search.Hit }

func (f *fakeStore) Search(context.Context, *search.Request) (*search.Response, error) {
	return &search.Response{Hits: f.hits, Total: len(f.hits)}, nil
}
func (f *fakeStore) Capabilities() search.Capabilities { return search.Capabilities{Name: "fake"} }
func (f *fakeStore) Close() error                      { return nil }

type fakeCompleter struct{ reply string }

func (f fakeCompleter) Complete(context.Context, string, bool) (string, error) {
	return f.reply, nil
}

const fabricated = `{"answer": "NCT00000001 is a phase 3 trial. NCT99999999 is another.", "citations": ["NCT00000001", "NCT99999999"]}`

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	hits := []search.Hit{
		{ID: "NCT00000001", Score: 8, Trial: trial.Trial{NCTID: "NCT00000001", BriefTitle: "Pembrolizumab in Melanoma", Phase: trial.Phase3}},
		{ID: "NCT00000002", Score: 6, Trial: trial.Trial{NCTID: "NCT00000002", BriefTitle: "Nivolumab in Melanoma", Phase: trial.Phase2}},
	}
	engine, err := search.NewEngine(&fakeStore{hits: hits}, search.DefaultEngineConfig())
	require.NoError(t, err)
	cfg := verify.DefaultConfig()
	cfg.JudgeEnabled = false
	svc, err := service.New(engine, verify.NewEngine(cfg),
		service.WithGenerator(answer.NewGenerator(fakeCompleter{reply: fabricated}, nil)))
	require.NoError(t, err)
	return NewServer(svc, opts...)
}

func do(t *testing.T, s *Server, method, path, body, session string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	down := newTestServer(t, WithHealth(func(context.Context) error { return assert.AnError }))
	rec = do(t, down, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/search", `{"query":"melanoma","mode":"keyword"}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var res search.SearchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"NCT00000001", "NCT00000002"}, trial.IDs(res.Trials))
	assert.Equal(t, search.ModeKeyword, res.Strategy)
}

func TestErrorStatus(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name    string
		path    string
		body    string
		session string
		code    string
	}{
		{"bad json", "/api/search", `{`, "", "ERR_401_INVALID_INPUT"},
		{"empty query", "/api/search", `{"query":" "}`, "", "ERR_404_QUERY_EMPTY"},
		{"bad mode", "/api/ask", `{"query":"x","mode":"fuzzy"}`, "", "ERR_401_INVALID_INPUT"},
		{"bad session", "/api/search", `{"query":"x"}`, "not valid!", "ERR_401_INVALID_INPUT"},
		{"empty answer", "/api/verify", `{"answer":""}`, "", "ERR_401_INVALID_INPUT"},
		{"no issue id", "/api/override", `{}`, "", "ERR_401_INVALID_INPUT"},
		{"nothing verified", "/api/override", `{"issueId":"x"}`, "fresh", "ERR_407_ISSUE_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, tt.path, tt.body, tt.session)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestStatusFor_Superseded(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(service.ErrSuperseded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}

func TestAskOverrideHighlightFlow(t *testing.T) {
	// Given: a session that asked a question with a fabricated citation
	s := newTestServer(t)
	rec := do(t, s, http.MethodPost, "/api/ask", `{"query":"What melanoma trials exist?","mode":"keyword"}`, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var asked service.AskResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &asked))
	require.NotNil(t, asked.Verification)
	require.Len(t, asked.Verification.Issues, 1)
	issueID := asked.Verification.Issues[0].ID

	// When: the issue is overridden in that session
	rec = do(t, s, http.MethodPost, "/api/override", `{"issueId":"`+issueID+`"}`, "alice")

	// Then: it is marked and still highlighted
	require.Equal(t, http.StatusOK, rec.Code)
	var overridden OverrideResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &overridden))
	assert.True(t, overridden.Verification.Issues[0].Overridden)

	rec = do(t, s, http.MethodPost, "/api/highlight", `{}`, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	var hl HighlightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hl))
	var joined strings.Builder
	for _, seg := range hl.Segments {
		joined.WriteString(seg.Text)
		if seg.Issue != nil {
			assert.True(t, seg.Issue.Overridden)
		}
	}
	assert.Equal(t, asked.Answer.Text, joined.String())

	// And: another session sees nothing to highlight
	rec = do(t, s, http.MethodPost, "/api/highlight", `{}`, "bob")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyAndHighlightStateless(t *testing.T) {
	s := newTestServer(t)
	body := `{"answer":"See NCT12345678.","trials":[{"nct_id":"NCT00000001","brief_title":"x"}]}`

	rec := do(t, s, http.MethodPost, "/api/verify", body, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var res verify.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, []string{"NCT12345678"}, res.InvalidCitations)

	hlBody, err := json.Marshal(HighlightRequest{Text: "See NCT12345678.", Issues: res.Issues})
	require.NoError(t, err)
	rec = do(t, s, http.MethodPost, "/api/highlight", string(hlBody), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hl HighlightResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hl))
	require.Len(t, hl.Segments, 3)
	assert.Equal(t, "NCT12345678", hl.Segments[1].Text)
}

func TestExplain(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/trials/NCT00000002/explain?query=melanoma", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var exp service.Explanation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exp))
	assert.Equal(t, "NCT00000002", exp.NCTID)

	rec = do(t, s, http.MethodGet, "/api/trials/NCT00000009/explain?query=melanoma", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := telemetry.NewMetrics()
	s := newTestServer(t, WithMetrics(m))
	do(t, s, http.MethodPost, "/api/search", `{"query":"melanoma"}`, "")

	rec := do(t, s, http.MethodGet, "/metrics", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trialscope_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/api/search"`)
}

func TestWithMount(t *testing.T) {
	// Given: a handler mounted beside the API
	mounted := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	s := newTestServer(t, WithMount("/mcp", mounted))

	// When: the mount is requested
	rec := do(t, s, http.MethodPost, "/mcp", "{}", "")

	// Then: the mounted handler answers
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
