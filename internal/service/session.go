package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/highlight"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/verify"
)

// ErrSuperseded is returned for a query whose session has started a newer
// one. Its results were discarded.
var ErrSuperseded = trialerrors.New(trialerrors.ErrCodeSuperseded, "query superseded by a newer query", nil)

const (
	// DefaultSessionID is used when a client sends no session ID.
	DefaultSessionID = "default"
	// DefaultMaxSessions bounds the number of live sessions.
	DefaultMaxSessions = 1024
	maxSessionIDLength = 64
)

var validSessionID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateSessionID checks a client-supplied session ID.
func ValidateSessionID(id string) error {
	if len(id) > maxSessionIDLength {
		return trialerrors.ValidationError(fmt.Sprintf("session id too long (max %d chars)", maxSessionIDLength), nil)
	}
	if !validSessionID.MatchString(id) {
		return trialerrors.ValidationError("session id can only contain letters, numbers, hyphens, and underscores", nil)
	}
	return nil
}

// Session is one client's query stream. Each Begin starts a new generation;
// results from older generations are discarded when they arrive. In-flight
// calls are not aborted.
type Session struct {
	id         string
	generation atomic.Uint64

	mu      sync.Mutex
	query   string
	last    *AskResult
	tracker *verify.Tracker
}

// NewSession creates an empty session.
func NewSession(id string) *Session {
	return &Session{id: id, tracker: verify.NewTracker()}
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// Begin starts a new generation and returns it.
func (s *Session) Begin() uint64 {
	return s.generation.Add(1)
}

// IsCurrent reports whether gen is still the latest generation.
func (s *Session) IsCurrent(gen uint64) bool {
	return s.generation.Load() == gen
}

// Last returns the query and result of the latest committed ask.
func (s *Session) Last() (string, *AskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query, s.last
}

// Answer returns a copy of the latest committed answer text and its
// issues. ok is false when the latest query produced no answer.
func (s *Session) Answer() (text string, issues []verify.Issue, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.Answer == nil {
		return "", nil, false
	}
	if s.last.Verification != nil {
		issues = append([]verify.Issue(nil), s.last.Verification.Issues...)
	}
	return s.last.Answer.Text, issues, true
}

// VerificationState returns the state of the latest committed answer.
func (s *Session) VerificationState() verify.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.State()
}

func (s *Session) commit(gen uint64, query string, res *AskResult, tracker *verify.Tracker) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.IsCurrent(gen) {
		return false
	}
	cp := *res
	s.query = query
	s.last = &cp
	s.tracker = tracker
	return true
}

// Sessions keeps the live sessions. The least recently used session is
// dropped when the limit is reached.
type Sessions struct {
	mu       sync.Mutex
	sessions *lru.Cache[string, *Session]
}

// NewSessions creates a registry holding up to maxSessions sessions.
func NewSessions(maxSessions int) *Sessions {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	sessions, _ := lru.New[string, *Session](maxSessions)
	return &Sessions{sessions: sessions}
}

// Get returns the session for id, creating it when needed. An empty id
// selects DefaultSessionID.
func (m *Sessions) Get(id string) (*Session, error) {
	if id == "" {
		id = DefaultSessionID
	}
	if err := ValidateSessionID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions.Get(id); ok {
		return sess, nil
	}
	sess := NewSession(id)
	m.sessions.Add(id, sess)
	return sess, nil
}

// Len returns the number of live sessions.
func (m *Sessions) Len() int {
	return m.sessions.Len()
}

// SearchIn runs a search as the newest query of sess.
func (s *Service) SearchIn(ctx context.Context, sess *Session, req search.SearchRequest) (*search.SearchResult, error) {
	gen := sess.Begin()
	res, err := s.engine.Search(ctx, req)
	if !sess.IsCurrent(gen) {
		return nil, s.superseded(sess, req.Query)
	}
	if err != nil {
		return nil, err
	}
	if !sess.commit(gen, req.Query, &AskResult{Search: res, VerificationState: verify.StateNotVerified}, verify.NewTracker()) {
		return nil, s.superseded(sess, req.Query)
	}
	return res, nil
}

// AskIn runs Ask as the newest query of sess. A result that arrives after a
// newer query began is dropped and ErrSuperseded returned.
func (s *Service) AskIn(ctx context.Context, sess *Session, req search.SearchRequest) (*AskResult, error) {
	gen := sess.Begin()
	res, tracker, err := s.ask(ctx, req)
	if !sess.IsCurrent(gen) {
		return nil, s.superseded(sess, req.Query)
	}
	if err != nil {
		return nil, err
	}
	if !sess.commit(gen, req.Query, res, tracker) {
		return nil, s.superseded(sess, req.Query)
	}
	return res, nil
}

// OverrideIn acknowledges an issue of the session's latest answer and
// returns the updated verification and segments. Results handed out
// earlier by AskIn or Last are not modified.
func (s *Service) OverrideIn(sess *Session, issueID string) (*verify.Result, []highlight.Segment, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := sess.tracker.Override(issueID); err != nil {
		return nil, nil, err
	}
	res := sess.tracker.Result()
	var segments []highlight.Segment
	if sess.last != nil {
		next := *sess.last
		next.Verification = res.Clone()
		if next.Answer != nil {
			segments = highlight.Segments(next.Answer.Text, res.Issues)
			next.Segments = segments
		}
		sess.last = &next
	}
	return res, segments, nil
}

// ExplainIn explains a trial from the session's latest results, running a
// fresh search for query when the trial is not among them.
func (s *Service) ExplainIn(ctx context.Context, sess *Session, query, nctID string) (*Explanation, error) {
	lastQuery, last := sess.Last()
	if query == "" {
		query = lastQuery
	}
	if query == "" {
		return nil, trialerrors.New(trialerrors.ErrCodeQueryEmpty, "a query is required to explain a match", nil)
	}
	if last != nil && last.Search != nil && search.CacheKey(lastQuery) == search.CacheKey(query) {
		if st, ok := findTrial(last.Search.Trials, nctID); ok {
			return s.explain(ctx, query, st), nil
		}
	}
	return s.Explain(ctx, query, nctID)
}

func (s *Service) superseded(sess *Session, query string) error {
	slog.Info("query_superseded",
		slog.String("session", sess.ID()),
		slog.String("query", query))
	if s.metrics != nil {
		s.metrics.ObserveSuperseded()
	}
	return ErrSuperseded
}
