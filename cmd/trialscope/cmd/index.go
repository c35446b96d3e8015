package cmd

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/index"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/output"
	"github.com/Aman-CERP/trialscope/internal/store"
)

type indexOptions struct {
	recreate  bool
	noEmbed   bool
	batchSize int
	workers   int
}

func newIndexCmd(global *globalOptions) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index <trials.jsonl>",
		Short: "Load a JSONL trial export into the configured store",
		Long: `Index clinical-trial records, one JSON object per line, using the
clinical_trials field names (nct_id, brief_title, phase, overall_status,
conditions, interventions, sponsors, ...).

Records without description_embedding get one from the configured embedding
provider. Failed embeddings leave the record keyword-searchable only.

Examples:
  trialscope index trials.jsonl
  trialscope index trials.jsonl --recreate
  trialscope index trials.jsonl --no-embed --batch 500`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, global, args[0], opts)
		},
	}

	cmd.Flags().BoolVar(&opts.recreate, "recreate", false, "Drop existing store data first")
	cmd.Flags().BoolVar(&opts.noEmbed, "no-embed", false, "Skip computing missing embeddings")
	cmd.Flags().IntVar(&opts.batchSize, "batch", index.DefaultBatchSize, "Records per store write")
	cmd.Flags().IntVar(&opts.workers, "workers", index.DefaultWorkers, "Concurrent embedding calls")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, global *globalOptions, path string, opts indexOptions) error {
	cfg, _, err := loadConfig(global)
	if err != nil {
		return err
	}
	defer setupLogging(cfg, false)()

	total, err := countRecords(path)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return trialerrors.IOError("failed to open trials file", err)
	}
	defer func() { _ = f.Close() }()

	a, err := buildApp(ctx, cfg, appOptions{storeOpts: store.Options{Writable: true, Recreate: opts.recreate}})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	out := output.New(cmd.OutOrStdout(), useColor(cmd, global))
	deps := index.RunnerDependencies{
		Store: a.store,
		Progress: func(e index.ProgressEvent) {
			out.Progress(e.Done, e.Total, "indexing")
		},
	}
	skipEmbed := opts.noEmbed || cfg.OracleConfig().EmbedProviderName() == oracle.ProviderNone
	if !skipEmbed {
		deps.Embedder = a.guarded.Embedder()
	}
	runner, err := index.NewRunner(deps)
	if err != nil {
		return err
	}

	res, err := runner.Run(ctx, f, index.RunnerConfig{
		BatchSize:      opts.batchSize,
		Workers:        opts.workers,
		Total:          total,
		SkipEmbeddings: skipEmbed,
	})
	if err != nil {
		return err
	}

	out.Successf("Indexed %d trials (%d with vectors) in %s", res.Indexed, res.Vectors, res.Duration.Round(time.Millisecond))
	if res.Rejected > 0 {
		out.Warningf("%d records without an NCT ID were skipped", res.Rejected)
	}
	if res.EmbedFailures > 0 {
		out.Warningf("%d embeddings failed; those trials are keyword-only", res.EmbedFailures)
	}
	return nil
}

// countRecords counts non-empty lines for the progress bar.
func countRecords(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, trialerrors.IOError("failed to open trials file", err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 64*1024)
	n := 0
	for {
		line, err := r.ReadSlice('\n')
		if len(bytes.TrimSpace(line)) > 0 && (err == nil || err == io.EOF) {
			n++
		}
		switch {
		case err == io.EOF:
			return n, nil
		case err == bufio.ErrBufferFull:
			// Long record: count it once, skip the rest of the line.
			if _, err := r.ReadString('\n'); err != nil && err != io.EOF {
				return 0, fmt.Errorf("failed to scan %s: %w", path, err)
			}
			n++
		case err != nil:
			return 0, fmt.Errorf("failed to scan %s: %w", path, err)
		}
	}
}
