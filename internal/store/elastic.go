package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/Aman-CERP/trialscope/internal/cache"
	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/trial"
	"github.com/Aman-CERP/trialscope/pkg/version"
)

const elasticName = "elasticsearch"

// ElasticStore executes requests against an Elasticsearch index holding the
// clinical trial documents.
type ElasticStore struct {
	client *elasticsearch.Client
	cfg    Config
	clock  cache.Clock
}

var _ search.Store = (*ElasticStore)(nil)

// NewElasticStore creates a client for cfg. It does not contact the cluster.
func NewElasticStore(cfg Config, transport http.RoundTripper) (*ElasticStore, error) {
	if len(cfg.Addresses) == 0 {
		return nil, trialerrors.ConfigError("store.addresses is empty", nil)
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		APIKey:    cfg.APIKey,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Header:    http.Header{"User-Agent": []string{version.UserAgent()}},
		Transport: transport,
	})
	if err != nil {
		return nil, trialerrors.ConfigError("invalid elasticsearch settings", err)
	}
	return &ElasticStore{client: client, cfg: cfg, clock: cache.SystemClock{}}, nil
}

// Capabilities implements search.Store.
func (s *ElasticStore) Capabilities() search.Capabilities {
	return search.Capabilities{Name: elasticName, NativeRRF: s.cfg.NativeRRF}
}

// Search implements search.Store.
func (s *ElasticStore) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	body, err := json.Marshal(req.Body())
	if err != nil {
		return nil, trialerrors.InternalError("encode search body", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.cfg.Index),
		s.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, trialerrors.StoreUnavailable("elasticsearch request failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("search", res)
	}

	var raw searchResponse
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, trialerrors.StoreUnavailable("decode elasticsearch response", err)
	}
	return raw.toResponse(req.IsHybrid())
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string          `json:"_id"`
			Score  *float64        `json:"_score"`
			Source json.RawMessage `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key      string `json:"key"`
			DocCount int    `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

func (r *searchResponse) toResponse(fused bool) (*search.Response, error) {
	resp := &search.Response{
		Hits:  make([]search.Hit, 0, len(r.Hits.Hits)),
		Total: r.Hits.Total.Value,
		Fused: fused,
	}
	for i, h := range r.Hits.Hits {
		var t trial.Trial
		if err := json.Unmarshal(h.Source, &t); err != nil {
			return nil, trialerrors.StoreUnavailable(fmt.Sprintf("decode hit %d", i), err)
		}
		if t.NCTID == "" {
			return nil, trialerrors.StoreUnavailable(
				fmt.Sprintf("hit %q has no %s", h.ID, search.FieldNCTID), nil)
		}
		t.Embedding = nil
		hit := search.Hit{ID: t.NCTID, Trial: t}
		if h.Score != nil {
			hit.Score = *h.Score
		}
		resp.Hits = append(resp.Hits, hit)
	}
	resp.Aggregations = trial.Aggregations{
		Phases:   r.buckets("by_phase"),
		Statuses: r.buckets("by_status"),
		Sponsors: r.buckets("by_sponsor"),
	}
	return resp, nil
}

func (r *searchResponse) buckets(name string) []trial.Bucket {
	agg, ok := r.Aggregations[name]
	if !ok {
		return nil
	}
	out := make([]trial.Bucket, 0, len(agg.Buckets))
	for _, b := range agg.Buckets {
		out = append(out, trial.Bucket{Key: b.Key, Count: b.DocCount})
	}
	return out
}

// Ping reports whether the cluster answers.
func (s *ElasticStore) Ping(ctx context.Context) error {
	res, err := s.client.Ping(s.client.Ping.WithContext(ctx))
	if err != nil {
		return trialerrors.StoreUnavailable("elasticsearch ping failed", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("ping", res)
	}
	return nil
}

// EnsureIndex creates the index with the trial mapping when it is missing.
// With recreate set an existing index is deleted first.
func (s *ElasticStore) EnsureIndex(ctx context.Context, recreate bool) error {
	exists, err := s.client.Indices.Exists([]string{s.cfg.Index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return trialerrors.StoreUnavailable("check index", err)
	}
	exists.Body.Close()

	if exists.StatusCode == http.StatusOK {
		if !recreate {
			return nil
		}
		del, err := s.client.Indices.Delete([]string{s.cfg.Index}, s.client.Indices.Delete.WithContext(ctx))
		if err != nil {
			return trialerrors.StoreUnavailable("delete index", err)
		}
		defer del.Body.Close()
		if del.IsError() {
			return responseError("delete index", del)
		}
		slog.Info("elastic_index_deleted", slog.String("index", s.cfg.Index))
	}

	mapping, err := json.Marshal(IndexMapping(s.cfg.Dimensions))
	if err != nil {
		return trialerrors.InternalError("encode index mapping", err)
	}
	res, err := s.client.Indices.Create(s.cfg.Index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(bytes.NewReader(mapping)))
	if err != nil {
		return trialerrors.StoreUnavailable("create index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("create index", res)
	}
	slog.Info("elastic_index_created",
		slog.String("index", s.cfg.Index),
		slog.Int("dims", s.cfg.Dimensions))
	return nil
}

// Add bulk-indexes trials keyed by NCT ID.
func (s *ElasticStore) Add(ctx context.Context, trials []trial.Trial) (AddResult, error) {
	var res AddResult
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	now := s.clock.Now()
	for _, t := range trials {
		if t.NCTID == "" {
			res.Rejected++
			continue
		}
		if t.QualityScore == 0 {
			t.QualityScore = trial.QualityScore(&t, now)
		}
		if len(t.Embedding) != s.cfg.Dimensions {
			t.Embedding = nil
		} else {
			res.Vectors++
		}
		meta := map[string]any{"index": map[string]any{"_index": s.cfg.Index, "_id": t.NCTID}}
		if err := enc.Encode(meta); err != nil {
			return res, trialerrors.InternalError("encode bulk action", err)
		}
		if err := enc.Encode(t); err != nil {
			return res, trialerrors.InternalError("encode trial", err)
		}
		res.Indexed++
	}
	if res.Indexed == 0 {
		return res, nil
	}

	bulk, err := s.client.Bulk(bytes.NewReader(buf.Bytes()), s.client.Bulk.WithContext(ctx))
	if err != nil {
		return res, trialerrors.StoreUnavailable("bulk index", err)
	}
	defer bulk.Body.Close()
	if bulk.IsError() {
		return res, responseError("bulk index", bulk)
	}

	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(bulk.Body).Decode(&out); err != nil {
		return res, trialerrors.StoreUnavailable("decode bulk response", err)
	}
	if out.Errors {
		for _, item := range out.Items {
			for _, action := range item {
				if action.Status >= 300 {
					res.Indexed--
					res.Rejected++
				}
			}
		}
	}
	return res, nil
}

// Save refreshes the index so added documents become searchable.
func (s *ElasticStore) Save() error {
	res, err := s.client.Indices.Refresh(s.client.Indices.Refresh.WithIndex(s.cfg.Index))
	if err != nil {
		return trialerrors.StoreUnavailable("refresh index", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("refresh index", res)
	}
	return nil
}

// Close implements search.Store. The client holds no resources.
func (s *ElasticStore) Close() error { return nil }

func responseError(op string, res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	msg := strings.TrimSpace(string(body))
	return trialerrors.StoreUnavailable(
		fmt.Sprintf("elasticsearch %s returned %s", op, res.Status()),
		fmt.Errorf("%s", msg)).
		WithDetail("status", fmt.Sprint(res.StatusCode))
}

// IndexMapping returns the index settings and mappings for trial documents.
func IndexMapping(dims int) map[string]any {
	text := map[string]any{"type": "text", "analyzer": MedicalAnalyzerName}
	keyword := map[string]any{"type": "keyword"}
	nested := func(props map[string]any) map[string]any {
		return map[string]any{"type": "nested", "properties": props}
	}
	return map[string]any{
		"settings": map[string]any{
			"analysis": map[string]any{
				"analyzer": map[string]any{
					MedicalAnalyzerName: map[string]any{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "stop", "porter_stem"},
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				search.FieldNCTID:         keyword,
				search.FieldBriefTitle:    text,
				search.FieldOfficialTitle: text,
				search.FieldSummary:       text,
				search.FieldDetailed:      text,
				search.FieldKeywords:      text,
				search.FieldPhase:         keyword,
				search.FieldStatus:        keyword,
				search.FieldSource:        keyword,
				search.FieldEnrollment:    map[string]any{"type": "integer"},
				search.FieldStartDate:     map[string]any{"type": "date", "format": "yyyy-MM-dd||yyyy-MM||yyyy"},
				"completion_date":         map[string]any{"type": "date", "format": "yyyy-MM-dd||yyyy-MM||yyyy"},
				search.FieldQualityScore:  map[string]any{"type": "float"},
				search.FieldEmbedding: map[string]any{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": "cosine",
				},
				search.PathConditions: nested(map[string]any{
					"condition_name": text,
				}),
				search.PathInterventions: nested(map[string]any{
					"intervention_name": text,
					"intervention_type": keyword,
				}),
				search.PathSponsors: nested(map[string]any{
					"agency":       keyword,
					"agency_class": keyword,
				}),
				search.PathFacilities: nested(map[string]any{
					"name":    text,
					"city":    text,
					"state":   text,
					"country": text,
				}),
			},
		},
	}
}
