package search

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/trialscope/internal/cache"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

const testDims = 64

var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func testClock() *cache.ManualClock {
	return cache.NewManualClock(testNow)
}

func sampleTrials() []trial.Trial {
	trials := []trial.Trial{
		{
			NCTID:         "NCT00000001",
			BriefTitle:    "Metformin in Type 2 Diabetes",
			Summary:       "A phase 3 study of metformin for adults with type 2 diabetes.",
			Phase:         trial.Phase3,
			Status:        trial.StatusRecruiting,
			Enrollment:    800,
			Source:        "Novartis",
			StartDate:     "2026-03-01",
			Conditions:    []trial.Condition{{Name: "Type 2 Diabetes"}},
			Interventions: []trial.Intervention{{Name: "Metformin", Type: "DRUG"}},
			Sponsors:      []trial.Sponsor{{Agency: "Novartis", AgencyClass: trial.AgencyClassIndustry}},
			Facilities:    []trial.Facility{{City: "Boston", State: "Massachusetts", Country: "United States"}},
			QualityScore:  90,
		},
		{
			NCTID:         "NCT00000002",
			BriefTitle:    "Insulin Glargine for Diabetes Mellitus",
			Summary:       "Insulin dosing in adults with diabetes mellitus.",
			Phase:         trial.Phase2,
			Status:        trial.StatusCompleted,
			Enrollment:    120,
			Source:        "University Hospital",
			StartDate:     "2019-05-01",
			Conditions:    []trial.Condition{{Name: "Diabetes Mellitus"}},
			Interventions: []trial.Intervention{{Name: "Insulin Glargine", Type: "DRUG"}},
			Sponsors:      []trial.Sponsor{{Agency: "University Hospital", AgencyClass: "OTHER"}},
			QualityScore:  60,
		},
		{
			NCTID:        "NCT00000003",
			BriefTitle:   "Lifestyle Change for Hypertension",
			Summary:      "Diet and exercise to lower blood pressure.",
			Phase:        trial.Phase3,
			Status:       trial.StatusRecruiting,
			Enrollment:   300,
			Source:       "NIH",
			StartDate:    "2025-01-15",
			Conditions:   []trial.Condition{{Name: "Hypertension"}},
			Sponsors:     []trial.Sponsor{{Agency: "NIH", AgencyClass: "NIH"}},
			QualityScore: 70,
		},
		{
			NCTID:        "NCT00000004",
			BriefTitle:   "Checkpoint Immunotherapy in Breast Cancer",
			Summary:      "Pembrolizumab for metastatic breast cancer.",
			Phase:        trial.Phase1,
			Status:       trial.StatusNotYetRecruiting,
			Enrollment:   40,
			Source:       "Merck",
			StartDate:    "2026-09-01",
			Conditions:   []trial.Condition{{Name: "Breast Cancer"}},
			Sponsors:     []trial.Sponsor{{Agency: "Merck", AgencyClass: trial.AgencyClassIndustry}},
			QualityScore: 50,
		},
		{
			NCTID:        "NCT00000005",
			BriefTitle:   "Pain Relief in Diabetic Neuropathy",
			Summary:      "Pregabalin for neuropathic pain.",
			Phase:        trial.Phase3,
			Status:       trial.StatusActiveNotRecruiting,
			Enrollment:   450,
			Source:       "Pfizer",
			StartDate:    "2022-06-01",
			Conditions:   []trial.Condition{{Name: "Diabetic Neuropathy"}},
			Sponsors:     []trial.Sponsor{{Agency: "Pfizer", AgencyClass: trial.AgencyClassIndustry}},
			QualityScore: 85,
		},
	}
	emb := oracle.NewStaticEmbedder(testDims)
	for i := range trials {
		trials[i].Embedding, _ = emb.Embed(context.Background(), trials[i].SearchableText())
	}
	return trials
}

// fakeStore evaluates requests in memory the way the local backend does.
type fakeStore struct {
	trials    []trial.Trial
	nativeRRF bool
	err       error

	mu       sync.Mutex
	requests []*Request
}

func newFakeStore(nativeRRF bool) *fakeStore {
	return &fakeStore{trials: sampleTrials(), nativeRRF: nativeRRF}
}

func (s *fakeStore) Search(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	if req.IsHybrid() {
		if !s.nativeRRF {
			return nil, errors.New("fake store cannot fuse")
		}
		lexReq, vecReq := req.Split()
		lex, vec := s.lexical(lexReq), s.vector(vecReq)
		fused := NewRRFFusion(req.Fusion).Fuse(lex, vec)
		return &Response{Hits: Page(fused, req.From, req.Size), Total: len(fused), Fused: true}, nil
	}

	var hits []Hit
	if req.Lexical != nil {
		hits = s.lexical(req)
	} else {
		hits = s.vector(req)
	}
	return &Response{Hits: Page(hits, req.From, req.Size), Total: len(hits)}, nil
}

func (s *fakeStore) lexical(req *Request) []Hit {
	queryTokens := Tokens(req.Lexical.Query)
	var hits []Hit
	for _, t := range s.trials {
		if !req.Admits(&t) {
			continue
		}
		overlap := 0
		docTokens := make(map[string]bool)
		for _, tok := range Tokens(t.SearchableText()) {
			docTokens[tok] = true
		}
		for _, tok := range queryTokens {
			if docTokens[tok] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		should, _ := req.ShouldScore(&t)
		score := (float64(overlap) + should) * req.BoostFactor(&t)
		hits = append(hits, Hit{ID: t.NCTID, Score: score, Trial: t})
	}
	sortHits(hits)
	return hits
}

func (s *fakeStore) vector(req *Request) []Hit {
	var hits []Hit
	for _, t := range s.trials {
		if !req.Admits(&t) {
			continue
		}
		sim := cosine(req.Vector.Vector, t.Embedding)
		if sim < req.Vector.Similarity {
			continue
		}
		hits = append(hits, Hit{ID: t.NCTID, Score: sim, Trial: t})
	}
	sortHits(hits)
	if len(hits) > req.Vector.K {
		hits = hits[:req.Vector.K]
	}
	return hits
}

func (s *fakeStore) Capabilities() Capabilities {
	return Capabilities{Name: "fake", NativeRRF: s.nativeRRF}
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// scriptedCompleter returns a fixed reply or error.
type scriptedCompleter struct {
	reply string
	err   error

	mu    sync.Mutex
	calls int
}

func (c *scriptedCompleter) Complete(_ context.Context, _ string, _ bool) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.reply, c.err
}

func hitsWithIDs(ids ...string) []Hit {
	hits := make([]Hit, len(ids))
	for i, id := range ids {
		hits[i] = Hit{ID: id, Score: float64(len(ids) - i)}
	}
	return hits
}

func ids(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}
