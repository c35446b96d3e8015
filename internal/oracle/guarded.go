package oracle

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/resilience"
)

// Recorder receives one observation per guarded oracle call.
type Recorder interface {
	ObserveOracle(operation, outcome string, d time.Duration)
}

// Guarded wraps a provider with a token-bucket rate limit, a per-call
// timeout, retries and a circuit breaker per operation. Failures are logged
// as oracle_degraded and returned; callers apply their own fallback.
type Guarded struct {
	completer Completer
	embedder  Embedder
	limiter   *rate.Limiter
	executor  *resilience.Executor
	timeout   time.Duration
	recorder  Recorder
}

// GuardOption configures a Guarded wrapper.
type GuardOption func(*Guarded)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) GuardOption {
	return func(g *Guarded) {
		g.recorder = r
	}
}

// WithExecutor shares a resilience executor with other components.
func WithExecutor(e *resilience.Executor) GuardOption {
	return func(g *Guarded) {
		g.executor = e
	}
}

// NewGuarded wraps completer and embedder. Either may be nil.
func NewGuarded(completer Completer, embedder Embedder, cfg Config, opts ...GuardOption) *Guarded {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	g := &Guarded{
		completer: completer,
		embedder:  embedder,
		limiter:   rate.NewLimiter(rate.Limit(limit), burst),
		timeout:   timeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.executor == nil {
		g.executor = resilience.NewExecutor(cfg.Resilience)
	}
	if g.completer == nil {
		g.completer = Disabled{}
	}
	if g.embedder == nil {
		g.embedder = Disabled{Dims: cfg.Dimensions}
	}
	return g
}

// Completer returns a Completer bound to one call shape.
func (g *Guarded) Completer(op Operation) Completer {
	return &guardedCompleter{g: g, op: op}
}

// Embedder returns the guarded embedder.
func (g *Guarded) Embedder() Embedder {
	return &guardedEmbedder{g: g}
}

// BreakerState reports the circuit breaker state for an operation.
func (g *Guarded) BreakerState(op Operation) string {
	return g.executor.State(breakerName(op))
}

type guardedCompleter struct {
	g  *Guarded
	op Operation
}

func (c *guardedCompleter) Complete(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	return guard(ctx, c.g, c.op, func(ctx context.Context) (string, error) {
		return c.g.completer.Complete(ctx, prompt, jsonMode)
	})
}

type guardedEmbedder struct {
	g *Guarded
}

func (e *guardedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return guard(ctx, e.g, OpEmbed, func(ctx context.Context) ([]float32, error) {
		return e.g.embedder.Embed(ctx, text)
	})
}

func (e *guardedEmbedder) Dimensions() int {
	return e.g.embedder.Dimensions()
}

func guard[T any](ctx context.Context, g *Guarded, op Operation, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()

	out, err := resilience.Do(ctx, g.executor, breakerName(op), func(ctx context.Context) (T, error) {
		if err := g.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, err
		}
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(callCtx)
	}, nil)

	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "degraded"
		if resilience.IsCircuitOpen(err) {
			err = trialerrors.OracleUnavailable("circuit open for oracle "+string(op), err)
		}
		slog.Warn("oracle_degraded",
			slog.String("operation", string(op)),
			slog.Duration("elapsed", elapsed),
			slog.String("breaker", g.executor.State(breakerName(op))),
			slog.String("error", err.Error()))
	}
	if g.recorder != nil {
		g.recorder.ObserveOracle(string(op), outcome, elapsed)
	}
	return out, err
}

func breakerName(op Operation) string {
	return "oracle." + string(op)
}
