package verify

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/trialscope/internal/cache"
	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// MaxAnswerLength bounds the answer text accepted for verification.
const MaxAnswerLength = 20000

var tracer = otel.Tracer("trialscope/verify")

// Metrics receives verification observations.
type Metrics interface {
	ObserveIssue(severity, source string)
	ObserveVerification(d time.Duration)
}

// Engine runs the verification pipeline.
type Engine struct {
	judge   oracle.Completer
	cfg     Config
	clock   cache.Clock
	newID   func() string
	metrics Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithJudge sets the language model used by the judge stage.
func WithJudge(c oracle.Completer) Option {
	return func(e *Engine) {
		e.judge = c
	}
}

// WithClock sets the clock stamping VerifiedAt.
func WithClock(c cache.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDs replaces the issue ID generator.
func WithIDs(fn func() string) Option {
	return func(e *Engine) {
		e.newID = fn
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a verification engine. Zero tolerances take defaults.
func NewEngine(cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.TotalTolerance <= 0 {
		cfg.TotalTolerance = def.TotalTolerance
	}
	if cfg.ApproxTolerance <= 0 {
		cfg.ApproxTolerance = def.ApproxTolerance
	}
	if cfg.EnrollmentTolerance <= 0 {
		cfg.EnrollmentTolerance = def.EnrollmentTolerance
	}
	if cfg.FieldWindow <= 0 {
		cfg.FieldWindow = def.FieldWindow
	}
	if cfg.JudgeTimeout <= 0 {
		cfg.JudgeTimeout = def.JudgeTimeout
	}

	e := &Engine{cfg: cfg, clock: cache.SystemClock{}, newID: uuid.NewString}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify checks an answer against the trials it was generated from. It
// fails only on invalid input or a cancelled context; a failing judge
// degrades to zero judge issues.
func (e *Engine) Verify(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.Answer) == "" {
		return nil, trialerrors.ValidationError("answer text is empty", nil)
	}
	if len(in.Answer) > MaxAnswerLength {
		return nil, trialerrors.ValidationError("answer text is too long to verify", nil)
	}

	ctx, span := tracer.Start(ctx, "verify.Verify")
	defer span.End()
	start := time.Now()

	citations := in.Citations
	if citations == nil {
		citations = CitedIDs(in.Answer)
	}
	valid, invalid := ValidateCitations(citations, in.Trials)

	byID := make(map[string]*trial.Trial, len(in.Trials))
	for i := range in.Trials {
		byID[strings.ToUpper(in.Trials[i].NCTID)] = &in.Trials[i]
	}
	cited := make([]trial.Trial, 0, len(valid))
	for _, id := range valid {
		cited = append(cited, *byID[id])
	}

	total := max(in.Total, len(in.Trials))
	phases, statuses := Distributions(in.Trials)
	checks := StatisticalChecks{
		TotalTrials:        total,
		PhaseDistribution:  phases,
		StatusDistribution: statuses,
	}

	var (
		citationOut []Issue
		statsOut    checkOutcome
		fieldsOut   checkOutcome
		judged      oracle.Result[[]Issue]
		judgeStatus = JudgeSkipped
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		citationOut = citationIssues(in.Answer, invalid, len(in.Trials))
		return nil
	})
	g.Go(func() error {
		statsOut = checkStatistics(in.Answer, in.Trials, total, e.cfg)
		return nil
	})
	g.Go(func() error {
		fieldsOut = checkFields(in.Answer, valid, byID, e.cfg)
		return nil
	})
	if e.judge != nil && e.cfg.JudgeEnabled {
		g.Go(func() error {
			jctx, cancel := context.WithTimeout(gctx, e.cfg.JudgeTimeout)
			defer cancel()
			judged = judge(jctx, e.judge, in.Answer, cited, checks)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := &Result{
		ValidCitations:   valid,
		InvalidCitations: invalid,
		JudgeStatus:      judgeStatus,
		VerifiedAt:       e.clock.Now(),
	}
	var judgeIssues []Issue
	if e.judge != nil && e.cfg.JudgeEnabled {
		if judged.IsDegraded() {
			res.JudgeStatus = JudgeDegraded
			res.JudgeReason = judged.Reason()
			slog.Warn("oracle_degraded",
				slog.String("operation", string(oracle.OpJudge)),
				slog.String("reason", judged.Reason()))
		} else {
			res.JudgeStatus = JudgeOK
			judgeIssues = judged.Value()
		}
	}

	checks.ClaimsVerified = statsOut.checked - statsOut.failed() + fieldsOut.checked - fieldsOut.failed()
	checks.ClaimsFailed = statsOut.failed() + fieldsOut.failed()
	res.StatisticalChecks = checks
	res.Issues = e.merge(citationOut, statsOut.issues, fieldsOut.issues, judgeIssues)

	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.ObserveVerification(elapsed)
		for _, is := range res.Issues {
			e.metrics.ObserveIssue(string(is.Severity), string(is.Source))
		}
	}
	span.SetAttributes(
		attribute.Int("issues", len(res.Issues)),
		attribute.Int("citations.invalid", len(invalid)),
		attribute.String("judge", string(res.JudgeStatus)),
	)
	slog.Info("verification_complete",
		slog.Int("issues", len(res.Issues)),
		slog.Int("valid_citations", len(valid)),
		slog.Int("invalid_citations", len(invalid)),
		slog.String("judge", string(res.JudgeStatus)),
		slog.Duration("duration", elapsed))
	return res, nil
}

// merge concatenates stage outputs in stage order, assigns IDs, clears the
// span of any issue overlapping an earlier one, and stable-sorts by severity.
func (e *Engine) merge(stages ...[]Issue) []Issue {
	out := []Issue{}
	var taken []Span
	for _, stage := range stages {
		ordered := make([]Issue, len(stage))
		copy(ordered, stage)
		sort.SliceStable(ordered, func(i, j int) bool {
			return spanStart(ordered[i]) < spanStart(ordered[j])
		})
		for _, is := range ordered {
			is.ID = e.newID()
			if is.Span != nil {
				if !validSpan(*is.Span) || overlapsAny(*is.Span, taken) {
					is.Span = nil
				} else {
					taken = append(taken, *is.Span)
				}
			}
			out = append(out, is)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Severity.rank() < out[j].Severity.rank()
	})
	return out
}

// spanStart orders spanless issues after located ones.
func spanStart(is Issue) int {
	if is.Span == nil {
		return int(^uint(0) >> 1)
	}
	return is.Span.Start
}

func validSpan(s Span) bool {
	return s.Start >= 0 && s.Start < s.End
}

func overlapsAny(s Span, taken []Span) bool {
	for _, t := range taken {
		if s.overlaps(t) {
			return true
		}
	}
	return false
}
