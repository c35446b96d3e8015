package store

import (
	"context"
	"fmt"
	"log/slog"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// Backend is a store that can also be written by the indexer.
type Backend interface {
	search.Store
	Add(ctx context.Context, trials []trial.Trial) (AddResult, error)
	Save() error
}

var (
	_ Backend = (*LocalStore)(nil)
	_ Backend = (*ElasticStore)(nil)
)

// Options tune how New opens a backend.
type Options struct {
	// Writable opens the local store for indexing.
	Writable bool
	// Recreate drops existing data before indexing.
	Recreate bool
}

// New opens the backend selected by cfg.Backend.
func New(ctx context.Context, cfg Config, opts Options) (Backend, error) {
	switch cfg.Backend {
	case BackendElasticsearch, "":
		es, err := NewElasticStore(cfg, nil)
		if err != nil {
			return nil, err
		}
		if opts.Writable {
			if err := es.EnsureIndex(ctx, opts.Recreate); err != nil {
				return nil, err
			}
		}
		slog.Debug("store_opened",
			slog.String("backend", BackendElasticsearch),
			slog.String("index", cfg.Index),
			slog.Bool("native_rrf", cfg.NativeRRF))
		return es, nil

	case BackendLocal:
		local, err := OpenLocal(LocalConfig{
			Path:       cfg.LocalPath,
			Dimensions: cfg.Dimensions,
			Writable:   opts.Writable,
			Recreate:   opts.Recreate,
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("store_opened",
			slog.String("backend", BackendLocal),
			slog.String("path", cfg.LocalPath),
			slog.Int("trials", local.Count()))
		return local, nil

	default:
		return nil, trialerrors.ConfigError(
			fmt.Sprintf("unknown store backend %q", cfg.Backend), nil).
			WithSuggestion("Set store.backend to 'elasticsearch' or 'local'")
	}
}
