package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/highlight"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/service"
	"github.com/Aman-CERP/trialscope/internal/verify"
)

// HighlightRequest asks for segments. Without text the session's latest
// answer and issues are used.
type HighlightRequest struct {
	Text   string         `json:"text"`
	Issues []verify.Issue `json:"issues"`
}

// HighlightResponse carries the segments of one text.
type HighlightResponse struct {
	Segments []highlight.Segment `json:"segments"`
}

// OverrideRequest names the issue to acknowledge.
type OverrideRequest struct {
	IssueID string `json:"issueId"`
}

// OverrideResponse is the updated verification of the session's answer.
type OverrideResponse struct {
	Verification *verify.Result      `json:"verification"`
	Segments     []highlight.Segment `json:"segments"`
}

func (s *Server) session(r *http.Request) (*service.Session, error) {
	return s.sessions.Get(r.Header.Get(SessionHeader))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.SearchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.SearchIn(r.Context(), sess, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req search.SearchRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.AskIn(r.Context(), sess, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in verify.Input
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Verify(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	var req HighlightRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Text == "" {
		sess, err := s.session(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		text, issues, ok := sess.Answer()
		if !ok {
			writeError(w, r, trialerrors.ValidationError("no text given and the session has no answer", nil))
			return
		}
		req.Text, req.Issues = text, issues
	}
	writeJSON(w, http.StatusOK, HighlightResponse{Segments: s.svc.Highlight(req.Text, req.Issues)})
}

func (s *Server) handleOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.IssueID == "" {
		writeError(w, r, trialerrors.ValidationError("issueId is required", nil))
		return
	}
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, segments, err := s.svc.OverrideIn(sess, req.IssueID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, OverrideResponse{Verification: res, Segments: segments})
}

func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	exp, err := s.svc.ExplainIn(r.Context(), sess, r.URL.Query().Get("query"), chi.URLParam(r, "nctID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}
