package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/trialscope/internal/cache"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

const testDims = 4

var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

func storeTrials() []trial.Trial {
	return []trial.Trial{
		{
			NCTID:         "NCT10000001",
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
			QualityScore:  90,
			Embedding:     []float32{1, 0, 0, 0},
		},
		{
			NCTID:         "NCT10000002",
			BriefTitle:    "Insulin Glargine for Diabetes Mellitus",
			Summary:       "Insulin dosing in adults with diabetes mellitus.",
			Phase:         trial.Phase2,
			Status:        trial.StatusCompleted,
			Enrollment:    120,
			Source:        "University Hospital",
			StartDate:     "2019-05-01",
			Conditions:    []trial.Condition{{Name: "Diabetes Mellitus"}},
			Interventions: []trial.Intervention{{Name: "Insulin Glargine", Type: "DRUG"}},
			QualityScore:  60,
			Embedding:     []float32{0.9, 0.3, 0, 0},
		},
		{
			NCTID:        "NCT10000003",
			BriefTitle:   "Lifestyle Change for Hypertension",
			Summary:      "Diet and exercise to lower blood pressure.",
			Phase:        trial.Phase3,
			Status:       trial.StatusRecruiting,
			Enrollment:   300,
			Source:       "NIH",
			StartDate:    "2025-01-15",
			Conditions:   []trial.Condition{{Name: "Hypertension"}},
			QualityScore: 70,
			Embedding:    []float32{0, 1, 0, 0},
		},
		{
			NCTID:        "NCT10000004",
			BriefTitle:   "Checkpoint Immunotherapy in Breast Cancer",
			Summary:      "Pembrolizumab for metastatic breast cancer.",
			Phase:        trial.Phase1,
			Status:       trial.StatusNotYetRecruiting,
			Enrollment:   40,
			Source:       "Merck",
			StartDate:    "2026-09-01",
			Conditions:   []trial.Condition{{Name: "Breast Cancer"}},
			QualityScore: 50,
			Embedding:    []float32{0, 0, 1, 0},
		},
	}
}

func testBuilder() *search.Builder {
	cfg := search.DefaultBuilderConfig()
	cfg.Dimensions = testDims
	return search.NewBuilder(cfg, cache.NewManualClock(testNow))
}

func buildRequest(t *testing.T, in search.BuildInput) *search.Request {
	t.Helper()
	req, err := testBuilder().Build(in)
	require.NoError(t, err)
	return req
}

func newMemoryStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := OpenLocal(LocalConfig{Dimensions: testDims, Clock: cache.NewManualClock(testNow)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func hitIDs(hits []search.Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ID
	}
	return out
}
