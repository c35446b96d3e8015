//go:build ignore

// Package main generates a synthetic clinical-trial export for benchmarking.
// Usage: go run scripts/generate-trials.go -n 10000 -output testdata/bench/trials.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/trialscope/internal/trial"
)

var (
	numTrials  = flag.Int("n", 10000, "Number of trials to generate")
	outputPath = flag.String("output", "testdata/bench/trials.jsonl", "Output file")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
	embedDims  = flag.Int("dims", 0, "Attach random embeddings of this size (0 leaves them to the indexer)")
)

var (
	conditions = []string{
		"Melanoma", "Non-Small Cell Lung Cancer", "Breast Cancer", "Type 2 Diabetes",
		"Asthma", "Heart Failure", "Alzheimer Disease", "Rheumatoid Arthritis",
		"Chronic Kidney Disease", "Major Depressive Disorder", "Hypertension", "COVID-19",
	}
	drugs = []string{
		"Pembrolizumab", "Nivolumab", "Metformin", "Semaglutide", "Dupilumab",
		"Sacubitril", "Lecanemab", "Adalimumab", "Dapagliflozin", "Esketamine",
	}
	sponsors = []string{
		"Merck Sharp & Dohme LLC", "Bristol-Myers Squibb", "Pfizer", "Novo Nordisk A/S",
		"Regeneron Pharmaceuticals", "National Cancer Institute (NCI)", "AstraZeneca", "Eli Lilly and Company",
	}
	phases = []trial.Phase{
		trial.PhaseEarly1, trial.Phase1, trial.Phase2, trial.Phase3, trial.Phase4,
		trial.Phase1And2, trial.Phase2And3, trial.PhaseNA,
	}
	statuses = []trial.Status{
		trial.StatusRecruiting, trial.StatusNotYetRecruiting, trial.StatusActiveNotRecruiting,
		trial.StatusCompleted, trial.StatusTerminated, trial.StatusWithdrawn,
	}
	designs = []string{"Randomized", "Open-Label", "Double-Blind", "Single-Arm", "Placebo-Controlled"}
	cities  = []string{"Boston", "Houston", "Toronto", "London", "Berlin", "Tokyo", "Sydney"}
)

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	fmt.Printf("Generating %d trials to %s (seed: %d)\n", *numTrials, *outputPath, *seed)

	if err := os.MkdirAll(filepath.Dir(*outputPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}
	f, err := os.Create(*outputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := 0; i < *numTrials; i++ {
		if err := enc.Encode(generateTrial(rng, i)); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing trial %d: %v\n", i, err)
			os.Exit(1)
		}
		if (i+1)%10000 == 0 {
			fmt.Printf("  %d trials...\n", i+1)
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d trials successfully.\n", *numTrials)
}

func pick[T any](rng *rand.Rand, pool []T) T {
	return pool[rng.Intn(len(pool))]
}

func generateTrial(rng *rand.Rand, index int) trial.Trial {
	condition := pick(rng, conditions)
	drug := pick(rng, drugs)
	design := pick(rng, designs)
	sponsor := pick(rng, sponsors)
	start := time.Date(2005, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, rng.Intn(20*365))

	t := trial.Trial{
		NCTID:      fmt.Sprintf("NCT%08d", 10000000+index),
		BriefTitle: fmt.Sprintf("%s %s Study of %s in %s", design, pick(rng, []string{"Efficacy", "Safety", "Dose-Finding"}), drug, condition),
		Summary: fmt.Sprintf("This %s study evaluates %s in adults with %s.",
			design, drug, condition),
		DetailedDescription: fmt.Sprintf("Participants with %s receive %s or standard of care. "+
			"The primary endpoint is response at 12 months.", condition, drug),
		Phase:          pick(rng, phases),
		Status:         pick(rng, statuses),
		Enrollment:     20 + rng.Intn(2000),
		Source:         sponsor,
		StudyType:      "INTERVENTIONAL",
		Gender:         "ALL",
		MinimumAge:     "18 Years",
		StartDate:      start.Format("2006-01-02"),
		CompletionDate: start.AddDate(0, 18+rng.Intn(48), 0).Format("2006-01-02"),
		Conditions:     []trial.Condition{{Name: condition}},
		Interventions:  []trial.Intervention{{Name: drug, Type: "DRUG"}},
		Sponsors:       []trial.Sponsor{{Agency: sponsor, AgencyClass: "INDUSTRY", LeadOrCollab: "lead"}},
		Facilities:     []trial.Facility{{City: pick(rng, cities)}},
	}
	if *embedDims > 0 {
		v := make([]float32, *embedDims)
		for i := range v {
			v[i] = rng.Float32()*2 - 1
		}
		t.Embedding = v
	}
	return t
}
