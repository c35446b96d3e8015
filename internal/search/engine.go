package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/trialscope/internal/cache"
	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/resilience"
	"github.com/Aman-CERP/trialscope/internal/telemetry"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// MaxQueryLength bounds the query in runes.
const MaxQueryLength = 1000

var tracer = otel.Tracer("trialscope/search")

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Metrics receives search observations. *telemetry.Metrics satisfies it.
type Metrics interface {
	ObserveSearch(strategy string, d time.Duration, results int, err error)
	ObserveSearchDegraded(strategy string)
}

// EngineConfig configures the search engine.
type EngineConfig struct {
	// DefaultMode applies when a request names no mode.
	DefaultMode Mode
	Builder     BuilderConfig
	// StoreTimeout bounds each store call. Zero means no extra bound.
	StoreTimeout time.Duration
}

// DefaultEngineConfig returns hybrid search with standard parameters.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DefaultMode:  ModeHybrid,
		Builder:      DefaultBuilderConfig(),
		StoreTimeout: 10 * time.Second,
	}
}

// Engine runs clinical-trial searches against a Store.
type Engine struct {
	store      Store
	analyzer   Analyzer
	embedder   oracle.Embedder
	expander   *DomainExpander
	builder    *Builder
	fusion     *RRFFusion
	normalizer *Normalizer
	executor   *resilience.Executor
	metrics    Metrics
	queryLog   *telemetry.QueryMetrics
	config     EngineConfig
	clock      cache.Clock
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithAnalyzer sets the query analyzer. Without one, only keyword analysis
// is used.
func WithAnalyzer(a Analyzer) EngineOption {
	return func(e *Engine) {
		e.analyzer = a
	}
}

// WithEmbedder sets the query embedder. Without one, semantic and hybrid
// requests fall back to keyword retrieval.
func WithEmbedder(emb oracle.Embedder) EngineOption {
	return func(e *Engine) {
		e.embedder = emb
	}
}

// WithExpander replaces the default medical synonym expander.
func WithExpander(x *DomainExpander) EngineOption {
	return func(e *Engine) {
		e.expander = x
	}
}

// WithExecutor routes store calls through a retrying circuit breaker.
func WithExecutor(x *resilience.Executor) EngineOption {
	return func(e *Engine) {
		e.executor = x
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithQueryLog sets the query pattern collector.
func WithQueryLog(q *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.queryLog = q
	}
}

// WithClock sets the clock used for recency boosts and latency.
func WithClock(c cache.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// NewEngine creates a search engine over store.
func NewEngine(store Store, cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", ErrNilDependency)
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = ModeHybrid
	}
	e := &Engine{
		store:    store,
		analyzer: KeywordAnalyzer{},
		expander: NewDomainExpander(),
		config:   cfg,
		clock:    cache.SystemClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.builder = NewBuilder(cfg.Builder, e.clock)
	e.fusion = NewRRFFusion(e.builder.Config().Fusion)
	e.normalizer = NewNormalizer(e.builder.Config().Fusion)
	return e, nil
}

// Store returns the backing store.
func (e *Engine) Store() Store {
	return e.store
}

// Search runs one search. Invalid input is rejected before any network
// call. Oracle and store failures degrade the result instead of failing it.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	start := e.clock.Now()

	query := strings.TrimSpace(req.Query)
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	if err := req.Filters.Validate(); err != nil {
		return nil, err
	}
	mode := req.Mode
	if mode == "" {
		mode = e.config.DefaultMode
	}
	mode, err := ParseMode(string(mode))
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "search.Search",
		trace.WithAttributes(
			attribute.String("mode", string(mode)),
			attribute.Int("page", req.Page),
		),
	)
	defer span.End()

	slog.Debug("search_started",
		slog.String("query", query),
		slog.String("mode", string(mode)),
		slog.Int("page", req.Page))

	prep := e.prepare(ctx, query, mode)

	built, err := e.builder.Build(BuildInput{
		Query:     query,
		Terms:     prep.terms,
		Analysis:  &prep.analysis,
		Filters:   req.Filters,
		Embedding: prep.embedding,
		Strategy:  mode,
		Page:      req.Page,
		PageSize:  req.PageSize,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if built.Fallback != "" {
		slog.Info("search_strategy_fallback",
			slog.String("requested", string(mode)),
			slog.String("used", string(built.Strategy)),
			slog.String("reason", built.Fallback))
		prep.degradations = append(prep.degradations, built.Fallback)
	}

	result := &SearchResult{
		Trials:       []trial.ScoredTrial{},
		Strategy:     built.Strategy,
		Analysis:     prep.analysis,
		Terms:        prep.terms,
		Degradations: prep.degradations,
	}
	if req.Explain {
		result.Request = built.Body()
	}

	resp, err := e.execute(ctx, built)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
			return nil, ctxErr
		}
		slog.Warn("store_unavailable",
			slog.String("store", e.store.Capabilities().Name),
			slog.String("strategy", string(built.Strategy)),
			slog.String("error", err.Error()))
		span.RecordError(err)
		result.Degradations = append(result.Degradations, "search backend unavailable: "+err.Error())
		e.observe(query, built.Strategy, start, 0, err)
		e.degraded(built.Strategy)
		return result, nil
	}

	result.Trials = e.normalizer.Normalize(resp, built, &prep.analysis)
	result.Total = resp.Total
	result.Aggregations = resp.Aggregations
	if len(result.Degradations) > 0 {
		e.degraded(built.Strategy)
	}

	span.SetAttributes(
		attribute.String("strategy", string(built.Strategy)),
		attribute.Int("results", len(result.Trials)),
		attribute.Int("total", result.Total),
		attribute.Bool("fused", resp.Fused),
	)
	e.observe(query, built.Strategy, start, len(result.Trials), nil)
	return result, nil
}

// preparation is the output of the concurrent pre-retrieval stage.
type preparation struct {
	analysis     trial.QueryAnalysis
	terms        []string
	embedding    []float32
	degradations []string
}

// prepare runs analysis, expansion and embedding concurrently. None of them
// can fail the search.
func (e *Engine) prepare(ctx context.Context, query string, mode Mode) preparation {
	var (
		analysis  oracle.Result[trial.QueryAnalysis]
		baseTerms []string
		embedding []float32
		embedErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		analysis = e.analyzer.Analyze(gctx, query)
		return nil
	})
	g.Go(func() error {
		baseTerms = e.expander.Expand(query, nil)
		return nil
	})
	if mode != ModeKeyword && e.embedder != nil {
		g.Go(func() error {
			embedding, embedErr = e.embedder.Embed(gctx, query)
			return nil
		})
	}
	_ = g.Wait()

	prep := preparation{analysis: analysis.Value(), embedding: embedding}
	if analysis.IsDegraded() {
		prep.degradations = append(prep.degradations, analysis.Reason())
	}
	prep.terms = e.expander.Merge(baseTerms, &prep.analysis)

	switch {
	case embedErr != nil:
		slog.Warn("query_embedding_failed", slog.String("error", embedErr.Error()))
		prep.degradations = append(prep.degradations, "query embedding unavailable: "+embedErr.Error())
		prep.embedding = nil
	case mode != ModeKeyword && e.embedder == nil:
		prep.degradations = append(prep.degradations, "no embedding provider configured")
	}
	return prep
}

// execute runs the request with native or manual fusion.
func (e *Engine) execute(ctx context.Context, req *Request) (*Response, error) {
	if !req.IsHybrid() {
		return e.storeSearch(ctx, req)
	}
	if e.store.Capabilities().NativeRRF && !req.Fusion.Weighted() {
		return e.storeSearch(ctx, req)
	}
	return e.manualFusion(ctx, req)
}

// manualFusion splits a hybrid request, runs both halves concurrently and
// fuses them here. One failed half degrades to the other.
func (e *Engine) manualFusion(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "search.manualFusion")
	defer span.End()

	lexReq, vecReq := req.Split()

	var (
		lexResp, vecResp *Response
		lexErr, vecErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lexResp, lexErr = e.storeSearch(gctx, lexReq)
		return nil
	})
	g.Go(func() error {
		vecResp, vecErr = e.storeSearch(gctx, vecReq)
		return nil
	})
	_ = g.Wait()

	if lexErr != nil && vecErr != nil {
		return nil, lexErr
	}
	if lexErr != nil {
		slog.Warn("lexical_half_failed", slog.String("error", lexErr.Error()))
		lexResp = &Response{}
	}
	if vecErr != nil {
		slog.Warn("vector_half_failed", slog.String("error", vecErr.Error()))
		vecResp = &Response{}
	}

	fused := e.fusion.Fuse(lexResp.Hits, vecResp.Hits)
	span.SetAttributes(
		attribute.Int("lexical_hits", len(lexResp.Hits)),
		attribute.Int("vector_hits", len(vecResp.Hits)),
		attribute.Int("fused_hits", len(fused)),
	)

	aggs := lexResp.Aggregations
	if lexErr != nil {
		aggs = vecResp.Aggregations
	}
	return &Response{
		Hits:         Page(fused, req.From, req.Size),
		Total:        max(lexResp.Total, vecResp.Total, len(fused)),
		Aggregations: aggs,
		Fused:        true,
	}, nil
}

func (e *Engine) storeSearch(ctx context.Context, req *Request) (*Response, error) {
	if e.config.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.StoreTimeout)
		defer cancel()
	}
	if e.executor == nil {
		return e.store.Search(ctx, req)
	}
	return resilience.Do(ctx, e.executor, "store.search", func(ctx context.Context) (*Response, error) {
		return e.store.Search(ctx, req)
	}, nil)
}

func (e *Engine) observe(query string, strategy Mode, start time.Time, results int, err error) {
	latency := e.clock.Now().Sub(start)
	if e.metrics != nil {
		e.metrics.ObserveSearch(string(strategy), latency, results, err)
	}
	e.queryLog.Record(telemetry.QueryEvent{
		Query:       query,
		Strategy:    string(strategy),
		ResultCount: results,
		Latency:     latency,
		Timestamp:   e.clock.Now(),
	})
}

func (e *Engine) degraded(strategy Mode) {
	if e.metrics != nil {
		e.metrics.ObserveSearchDegraded(string(strategy))
	}
}

func validateQuery(query string) error {
	if query == "" {
		return trialerrors.New(trialerrors.ErrCodeQueryEmpty, "search query is empty", nil).
			WithSuggestion("Enter a condition, intervention or question to search for")
	}
	if n := utf8.RuneCountInString(query); n > MaxQueryLength {
		return trialerrors.New(trialerrors.ErrCodeQueryTooLong,
			fmt.Sprintf("search query is %d characters, limit is %d", n, MaxQueryLength), nil).
			WithSuggestion("Shorten the query")
	}
	return nil
}
