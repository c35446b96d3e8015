package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/trialscope/internal/answer"
	"github.com/Aman-CERP/trialscope/internal/cache"
	"github.com/Aman-CERP/trialscope/internal/config"
	"github.com/Aman-CERP/trialscope/internal/logging"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/resilience"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/service"
	"github.com/Aman-CERP/trialscope/internal/store"
	"github.com/Aman-CERP/trialscope/internal/telemetry"
	"github.com/Aman-CERP/trialscope/internal/trial"
	"github.com/Aman-CERP/trialscope/internal/verify"
	"github.com/Aman-CERP/trialscope/pkg/version"
)

// app holds every component a command needs, built from one Config.
type app struct {
	cfg      *config.Config
	store    store.Backend
	clients  *oracle.Clients
	guarded  *oracle.Guarded
	engine   *search.Engine
	verifier *verify.Engine
	svc      *service.Service
	sessions *service.Sessions
	metrics  *telemetry.Metrics
	queries  *telemetry.QueryMetrics
	tracing  *telemetry.Tracing
}

// appOptions tune buildApp for a command.
type appOptions struct {
	storeOpts store.Options
}

// buildApp wires tracing, store, oracle, caches, search, verification and
// the service. Close flushes spans and releases the store and provider
// connections.
func buildApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{
		cfg:      cfg,
		queries:  telemetry.NewQueryMetrics(telemetry.DefaultQueryMetricsConfig()),
		sessions: service.NewSessions(cfg.Server.MaxSessions),
	}
	if cfg.Server.Metrics {
		a.metrics = telemetry.NewMetrics()
	}

	tracing, err := telemetry.SetupTracing(cfg.Tracing, logging.DefaultLogDir(), version.Version)
	if err != nil {
		return nil, err
	}
	a.tracing = tracing

	backend, err := store.New(ctx, cfg.StoreConfig(), opts.storeOpts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.store = backend

	oracleCfg := cfg.OracleConfig()
	clients, err := oracle.NewClients(ctx, oracleCfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.clients = clients

	executor := resilience.NewExecutor(cfg.Resilience)
	guardOpts := []oracle.GuardOption{oracle.WithExecutor(executor)}
	if a.metrics != nil {
		guardOpts = append(guardOpts, oracle.WithRecorder(a.metrics))
	}
	a.guarded = oracle.NewGuarded(clients.Completer, clients.Embedder, oracleCfg, guardOpts...)

	var cacheOpts []cache.Option
	if a.metrics != nil {
		cacheOpts = append(cacheOpts, cache.WithObserver(a.metrics.ObserveCache))
	}
	analyses, err := cache.New[string, trial.QueryAnalysis]("validation",
		cfg.Cache.ValidationSize, cfg.Cache.ValidationTTL, cacheOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	answers, err := cache.New[string, answer.Answer]("answer",
		cfg.Cache.AnswerSize, cfg.Cache.AnswerTTL, cacheOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	explanations, err := cache.New[string, string]("explanation",
		cfg.Cache.ExplanationSize, cfg.Cache.ExplanationTTL, cacheOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var expanderOpts []search.ExpanderOption
	if cfg.Search.SynonymsFile != "" {
		synonyms, err := config.LoadSynonyms(cfg.Search.SynonymsFile)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		expanderOpts = append(expanderOpts, search.WithCustomSynonyms(synonyms))
	}

	engineOpts := []search.EngineOption{
		search.WithAnalyzer(search.NewOracleAnalyzer(a.guarded.Completer(oracle.OpAnalyze), analyses)),
		search.WithEmbedder(a.guarded.Embedder()),
		search.WithExpander(search.NewDomainExpander(expanderOpts...)),
		search.WithExecutor(executor),
		search.WithQueryLog(a.queries),
	}
	verifyOpts := []verify.Option{verify.WithJudge(a.guarded.Completer(oracle.OpJudge))}
	serviceOpts := []service.Option{
		service.WithGenerator(answer.NewGenerator(a.guarded.Completer(oracle.OpAnswer), answers)),
		service.WithExplainer(answer.NewExplainer(a.guarded.Completer(oracle.OpExplain), explanations)),
	}
	if a.metrics != nil {
		engineOpts = append(engineOpts, search.WithMetrics(a.metrics))
		verifyOpts = append(verifyOpts, verify.WithMetrics(a.metrics))
		serviceOpts = append(serviceOpts, service.WithMetrics(a.metrics))
	}

	a.engine, err = search.NewEngine(backend, cfg.EngineConfig(), engineOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.verifier = verify.NewEngine(cfg.Verify, verifyOpts...)
	a.svc, err = service.New(a.engine, a.verifier, serviceOpts...)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	slog.Debug("app_ready",
		slog.String("store", cfg.Store.Backend),
		slog.String("oracle", cfg.Oracle.Provider),
		slog.String("mode", cfg.Search.Mode),
		slog.Bool("judge", cfg.Verify.JudgeEnabled),
		slog.Bool("tracing", a.tracing.Enabled()))
	return a, nil
}

// health reports store reachability for /healthz.
func (a *app) health(ctx context.Context) error {
	if p, ok := a.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the store and oracle clients, then flushes spans.
func (a *app) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.clients != nil {
		errs = append(errs, a.clients.Close())
	}
	if a.tracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.tracing.Shutdown(ctx))
		cancel()
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close: %w", err)
	}
	return nil
}
