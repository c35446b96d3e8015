// Package index loads clinical-trial exports into a search backend,
// computing embeddings for records that do not carry one.
package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/store"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// Defaults for RunnerConfig.
const (
	DefaultBatchSize = 100
	DefaultWorkers   = 4
)

// Store is the write side of a backend.
type Store interface {
	Add(ctx context.Context, trials []trial.Trial) (store.AddResult, error)
	Save() error
}

// ProgressEvent reports records handled so far. Total is 0 when unknown.
type ProgressEvent struct {
	Done  int
	Total int
}

// RunnerConfig configures an indexing run.
type RunnerConfig struct {
	// BatchSize is the number of records sent to the store per Add.
	BatchSize int
	// Workers bounds concurrent embedding calls within a batch.
	Workers int
	// Total is the expected record count, used only for progress.
	Total int
	// SkipEmbeddings indexes records without computing missing vectors.
	SkipEmbeddings bool
}

// RunnerResult contains the outcome of an indexing run.
type RunnerResult struct {
	Read          int
	Indexed       int
	Vectors       int
	Rejected      int
	EmbedFailures int
	Duration      time.Duration
}

// RunnerDependencies contains the injected dependencies for Runner.
type RunnerDependencies struct {
	// Store receives the records (required).
	Store Store
	// Embedder computes missing embeddings. Nil skips them.
	Embedder oracle.Embedder
	// Progress is called after each batch. Optional.
	Progress func(ProgressEvent)
}

// Runner executes indexing runs.
type Runner struct {
	store    Store
	embedder oracle.Embedder
	progress func(ProgressEvent)
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	progress := deps.Progress
	if progress == nil {
		progress = func(ProgressEvent) {}
	}
	return &Runner{
		store:    deps.Store,
		embedder: deps.Embedder,
		progress: progress,
	}, nil
}

// Run reads JSONL trials from src and indexes them batch by batch, then
// saves the store. A failed embedding leaves that record lexical-only.
func (r *Runner) Run(ctx context.Context, src io.Reader, cfg RunnerConfig) (*RunnerResult, error) {
	start := time.Now()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	res := &RunnerResult{}
	batch := make([]trial.Trial, 0, cfg.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("indexing interrupted at %d records: %w", res.Indexed, err)
		}
		if !cfg.SkipEmbeddings && r.embedder != nil {
			res.EmbedFailures += r.embed(ctx, batch, cfg.Workers)
		}
		added, err := r.store.Add(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to index batch ending at record %d: %w", res.Read, err)
		}
		res.Indexed += added.Indexed
		res.Vectors += added.Vectors
		res.Rejected += added.Rejected
		r.progress(ProgressEvent{Done: res.Read, Total: cfg.Total})
		batch = make([]trial.Trial, 0, cfg.BatchSize)
		return nil
	}

	read, err := store.ReadJSONL(src, func(t trial.Trial) error {
		batch = append(batch, t)
		res.Read++
		if len(batch) >= cfg.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if err := flush(); err != nil {
		return res, err
	}
	res.Read = read

	if err := r.store.Save(); err != nil {
		return res, fmt.Errorf("failed to save index: %w", err)
	}
	res.Duration = time.Since(start)

	slog.Info("index_complete",
		slog.Int("read", res.Read),
		slog.Int("indexed", res.Indexed),
		slog.Int("vectors", res.Vectors),
		slog.Int("rejected", res.Rejected),
		slog.Int("embed_failures", res.EmbedFailures),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// embed fills missing embeddings in place and returns the failure count.
func (r *Runner) embed(ctx context.Context, batch []trial.Trial, workers int) int {
	dims := r.embedder.Dimensions()
	var failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range batch {
		t := &batch[i]
		if t.NCTID == "" || (dims > 0 && len(t.Embedding) == dims) {
			continue
		}
		g.Go(func() error {
			vec, err := r.embedder.Embed(gctx, t.SearchableText())
			if err != nil {
				failed.Add(1)
				slog.Debug("embed_failed", slog.String("nct_id", t.NCTID), slog.String("error", err.Error()))
				return nil
			}
			t.Embedding = vec
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		slog.Warn("oracle_degraded",
			slog.String("operation", string(oracle.OpEmbed)),
			slog.Int64("failures", n),
			slog.Int("batch", len(batch)))
	}
	return int(failed.Load())
}
