package store

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// fakeCluster records requests and answers with canned bodies.
type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request, body []byte)
}

type recordedRequest struct {
	Method string
	Path   string
	Body   []byte
}

func newFakeCluster(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, body []byte)) (*fakeCluster, *ElasticStore) {
	t.Helper()
	fc := &fakeCluster{handler: handler}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fc.mu.Lock()
		fc.requests = append(fc.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
		fc.mu.Unlock()
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		fc.handler(w, r, body)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Addresses = []string{srv.URL}
	cfg.Dimensions = testDims
	cfg.NativeRRF = true
	es, err := NewElasticStore(cfg, nil)
	require.NoError(t, err)
	return fc, es
}

func (fc *fakeCluster) last() recordedRequest {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.requests[len(fc.requests)-1]
}

const searchReply = `{
  "hits": {
    "total": {"value": 42, "relation": "eq"},
    "hits": [
      {"_id": "a", "_score": 7.5, "_source": {"nct_id": "NCT10000001", "brief_title": "Metformin in Type 2 Diabetes", "phase": "PHASE3"}},
      {"_id": "b", "_score": null, "_source": {"nct_id": "NCT10000002", "brief_title": "Insulin Glargine"}}
    ]
  },
  "aggregations": {
    "by_phase": {"buckets": [{"key": "PHASE3", "doc_count": 30}, {"key": "PHASE2", "doc_count": 12}]},
    "by_status": {"buckets": [{"key": "RECRUITING", "doc_count": 20}]},
    "by_sponsor": {"buckets": []}
  }
}`

func TestElasticStore_Search(t *testing.T) {
	// Given: a cluster that answers a search
	fc, es := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		_, _ = io.WriteString(w, searchReply)
	})
	req := buildRequest(t, search.BuildInput{Query: "diabetes", Strategy: search.ModeKeyword})

	// When: a keyword request runs
	resp, err := es.Search(context.Background(), req)
	require.NoError(t, err)

	// Then: the body goes to the trials index
	sent := fc.last()
	assert.Equal(t, http.MethodPost, sent.Method)
	assert.Equal(t, "/clinical_trials/_search", sent.Path)
	var body map[string]any
	require.NoError(t, json.Unmarshal(sent.Body, &body))
	assert.Contains(t, body, "query")
	assert.Contains(t, body, "aggs")

	// And: hits are keyed by NCT ID, with a null score read as zero
	assert.Equal(t, []string{"NCT10000001", "NCT10000002"}, hitIDs(resp.Hits))
	assert.Equal(t, 7.5, resp.Hits[0].Score)
	assert.Equal(t, 0.0, resp.Hits[1].Score)
	assert.Equal(t, trial.Phase3, resp.Hits[0].Trial.Phase)
	assert.Equal(t, 42, resp.Total)
	assert.False(t, resp.Fused)

	// And: aggregations are read
	assert.Equal(t, []trial.Bucket{{Key: "PHASE3", Count: 30}, {Key: "PHASE2", Count: 12}}, resp.Aggregations.Phases)
	assert.Equal(t, []trial.Bucket{{Key: "RECRUITING", Count: 20}}, resp.Aggregations.Statuses)
	assert.Empty(t, resp.Aggregations.Sponsors)
}

func TestElasticStore_HybridUsesRetriever(t *testing.T) {
	fc, es := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		_, _ = io.WriteString(w, searchReply)
	})
	req := buildRequest(t, search.BuildInput{
		Query:     "diabetes",
		Embedding: []float32{1, 0, 0, 0},
	})

	resp, err := es.Search(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, resp.Fused)
	assert.Contains(t, string(fc.last().Body), `"rrf"`)
	assert.True(t, es.Capabilities().NativeRRF)
}

func TestElasticStore_HitWithoutNCTID(t *testing.T) {
	_, es := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		_, _ = io.WriteString(w, `{"hits":{"total":{"value":1},"hits":[{"_id":"x","_score":1,"_source":{"brief_title":"orphan"}}]}}`)
	})

	_, err := es.Search(context.Background(), &search.Request{Size: 10})

	require.Error(t, err)
	assert.Equal(t, trialerrors.ErrCodeStoreUnavailable, trialerrors.GetCode(err))
}

func TestElasticStore_ErrorStatus(t *testing.T) {
	_, es := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"parsing_exception"}}`)
	})

	_, err := es.Search(context.Background(), &search.Request{Size: 10})

	require.Error(t, err)
	assert.Equal(t, trialerrors.ErrCodeStoreUnavailable, trialerrors.GetCode(err))
	assert.Contains(t, err.Error(), "400")
}

func TestElasticStore_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addresses = []string{"http://127.0.0.1:1"}
	es, err := NewElasticStore(cfg, nil)
	require.NoError(t, err)

	_, err = es.Search(context.Background(), &search.Request{Size: 10})

	assert.Equal(t, trialerrors.ErrCodeStoreUnavailable, trialerrors.GetCode(err))
}

func TestElasticStore_EnsureIndexCreatesMapping(t *testing.T) {
	// Given: a cluster without the index
	fc, es := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	})

	// When: the index is ensured
	require.NoError(t, es.EnsureIndex(context.Background(), false))

	// Then: it is created with a dense_vector of the configured size
	sent := fc.last()
	assert.Equal(t, http.MethodPut, sent.Method)
	assert.Equal(t, "/clinical_trials", sent.Path)
	var body struct {
		Mappings struct {
			Properties map[string]map[string]any `json:"properties"`
		} `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(sent.Body, &body))
	emb := body.Mappings.Properties[search.FieldEmbedding]
	assert.Equal(t, "dense_vector", emb["type"])
	assert.EqualValues(t, testDims, emb["dims"])
	assert.Equal(t, "nested", body.Mappings.Properties[search.PathConditions]["type"])
}

func TestElasticStore_AddBulk(t *testing.T) {
	// Given: a cluster that rejects one bulk item
	fc, es := newFakeCluster(t, func(w http.ResponseWriter, r *http.Request, body []byte) {
		_, _ = io.WriteString(w, `{"errors":true,"items":[
			{"index":{"status":201}},{"index":{"status":201}},
			{"index":{"status":400}},{"index":{"status":201}}]}`)
	})
	trials := append(storeTrials(), trial.Trial{BriefTitle: "missing id"})
	trials[1].Embedding = []float32{1, 0}

	// When: trials are added
	res, err := es.Add(context.Background(), trials)
	require.NoError(t, err)

	// Then: counts reflect local rejects and cluster rejects
	assert.Equal(t, AddResult{Indexed: 3, Vectors: 3, Rejected: 2}, res)

	// And: the bulk body pairs an action with each document
	sent := fc.last()
	assert.Equal(t, "/_bulk", sent.Path)
	lines := strings.Split(strings.TrimSpace(string(sent.Body)), "\n")
	require.Len(t, lines, 8)
	assert.Contains(t, lines[0], `"_id":"NCT10000001"`)
	assert.NotContains(t, lines[3], search.FieldEmbedding)
}

func TestNewElasticStore_RequiresAddresses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addresses = nil
	_, err := NewElasticStore(cfg, nil)
	assert.Equal(t, trialerrors.ErrCodeConfigInvalid, trialerrors.GetCode(err))
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "redis"
	_, err := New(context.Background(), cfg, Options{})
	require.Error(t, err)
	assert.Equal(t, trialerrors.ErrCodeConfigInvalid, trialerrors.GetCode(err))
}

func TestNew_Local(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendLocal
	cfg.LocalPath = t.TempDir()
	cfg.Dimensions = testDims

	b, err := New(context.Background(), cfg, Options{Writable: true})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	assert.Equal(t, "local", b.Capabilities().Name)
}
