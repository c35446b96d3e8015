// Package service exposes the operations the UI layer calls: search, ask,
// verify, highlight, override and explain. Transports wrap a Service and keep
// one Session per client.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/trialscope/internal/answer"
	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/highlight"
	"github.com/Aman-CERP/trialscope/internal/oracle"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/trial"
	"github.com/Aman-CERP/trialscope/internal/verify"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// Metrics receives service observations. *telemetry.Metrics satisfies it.
type Metrics interface {
	ObserveSuperseded()
}

// Service runs the query pipeline.
type Service struct {
	engine    *search.Engine
	verifier  *verify.Engine
	generator *answer.Generator
	explainer *answer.Explainer
	metrics   Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithGenerator sets the narrative answer generator.
func WithGenerator(g *answer.Generator) Option {
	return func(s *Service) {
		s.generator = g
	}
}

// WithExplainer sets the match explainer.
func WithExplainer(e *answer.Explainer) Option {
	return func(s *Service) {
		s.explainer = e
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a Service. Without a generator or explainer the templated
// fallbacks are used.
func New(engine *search.Engine, verifier *verify.Engine, opts ...Option) (*Service, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: search engine is required", ErrNilDependency)
	}
	if verifier == nil {
		return nil, fmt.Errorf("%w: verifier is required", ErrNilDependency)
	}
	s := &Service{engine: engine, verifier: verifier}
	for _, opt := range opts {
		opt(s)
	}
	if s.generator == nil {
		s.generator = answer.NewGenerator(nil, nil)
	}
	if s.explainer == nil {
		s.explainer = answer.NewExplainer(nil, nil)
	}
	return s, nil
}

// AskResult is the full pipeline output for one query.
type AskResult struct {
	Search *search.SearchResult `json:"search"`
	// Answer is nil when the query is not question-shaped.
	Answer         *answer.Answer `json:"answer,omitempty"`
	AnswerDegraded string         `json:"answerDegraded,omitempty"`
	Verification   *verify.Result `json:"verification,omitempty"`
	// VerificationState is not_verified when no answer was produced or
	// verification failed.
	VerificationState verify.State        `json:"verificationState"`
	VerificationError string              `json:"verificationError,omitempty"`
	Segments          []highlight.Segment `json:"segments,omitempty"`
}

// Search runs one search.
func (s *Service) Search(ctx context.Context, req search.SearchRequest) (*search.SearchResult, error) {
	return s.engine.Search(ctx, req)
}

// Ask searches, writes a narrative answer when the query is a question, and
// verifies that answer against the retrieved trials.
func (s *Service) Ask(ctx context.Context, req search.SearchRequest) (*AskResult, error) {
	res, _, err := s.ask(ctx, req)
	return res, err
}

func (s *Service) ask(ctx context.Context, req search.SearchRequest) (*AskResult, *verify.Tracker, error) {
	found, err := s.engine.Search(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	out := &AskResult{Search: found, VerificationState: verify.StateNotVerified}
	tracker := verify.NewTracker()
	if !answer.IsQuestion(req.Query) {
		return out, tracker, nil
	}

	trials := plainTrials(found.Trials)
	generated := s.generator.Generate(ctx, req.Query, trials, found.Total)
	ans := generated.Value()
	out.Answer = &ans
	if generated.IsDegraded() {
		out.AnswerDegraded = generated.Reason()
		slog.Warn("oracle_degraded",
			slog.String("operation", string(oracle.OpAnswer)),
			slog.String("reason", generated.Reason()))
	}

	verified, err := tracker.Run(ctx, s.verifier, verify.Input{
		Answer:    ans.Text,
		Citations: ans.Citations,
		Trials:    trials,
		Total:     found.Total,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		out.VerificationError = err.Error()
		return out, tracker, nil
	}
	out.Verification = verified
	out.VerificationState = tracker.State()
	out.Segments = highlight.Segments(ans.Text, verified.Issues)
	return out, tracker, nil
}

// Verify checks an answer against trials.
func (s *Service) Verify(ctx context.Context, in verify.Input) (*verify.Result, error) {
	return s.verifier.Verify(ctx, in)
}

// Highlight splits text at the issue spans.
func (s *Service) Highlight(text string, issues []verify.Issue) []highlight.Segment {
	return highlight.Segments(text, issues)
}

// Override acknowledges one issue of res.
func (s *Service) Override(res *verify.Result, issueID string) error {
	if res == nil {
		return trialerrors.New(trialerrors.ErrCodeIssueNotFound, "nothing has been verified yet", nil)
	}
	return res.Override(issueID)
}

// Explanation is why one trial matched a query.
type Explanation struct {
	NCTID       string   `json:"nctId"`
	Query       string   `json:"query"`
	Text        string   `json:"explanation"`
	Reasons     []string `json:"matchReasons"`
	Degraded    bool     `json:"degraded,omitempty"`
	DegradedWhy string   `json:"degradedReason,omitempty"`
}

// Explain explains why nctID matched query. The trial is looked up in a
// fresh search for query.
func (s *Service) Explain(ctx context.Context, query, nctID string) (*Explanation, error) {
	found, err := s.engine.Search(ctx, search.SearchRequest{Query: query, PageSize: search.MaxPageSize})
	if err != nil {
		return nil, err
	}
	st, ok := findTrial(found.Trials, nctID)
	if !ok {
		return nil, trialerrors.ValidationError(
			fmt.Sprintf("trial %s is not among the results for %q", nctID, query), nil)
	}
	return s.explain(ctx, query, st), nil
}

func (s *Service) explain(ctx context.Context, query string, st *trial.ScoredTrial) *Explanation {
	res := s.explainer.Explain(ctx, query, st)
	return &Explanation{
		NCTID:       st.NCTID,
		Query:       query,
		Text:        res.Value(),
		Reasons:     st.MatchReasons,
		Degraded:    res.IsDegraded(),
		DegradedWhy: res.Reason(),
	}
}

func findTrial(trials []trial.ScoredTrial, nctID string) (*trial.ScoredTrial, bool) {
	for i := range trials {
		if strings.EqualFold(trials[i].NCTID, nctID) {
			return &trials[i], true
		}
	}
	return nil, false
}

func plainTrials(scored []trial.ScoredTrial) []trial.Trial {
	out := make([]trial.Trial, len(scored))
	for i := range scored {
		out[i] = scored[i].Trial
	}
	return out
}
