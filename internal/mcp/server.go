package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/service"
	"github.com/Aman-CERP/trialscope/internal/telemetry"
	"github.com/Aman-CERP/trialscope/internal/verify"
	"github.com/Aman-CERP/trialscope/pkg/version"
)

// serverName is reported to MCP clients.
const serverName = "trialscope"

// Server is the MCP server for trialscope. It exposes the service
// operations as tools, one session per MCP client session.
type Server struct {
	mcp      *mcp.Server
	svc      *service.Service
	sessions *service.Sessions
	logger   *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolInfos = []ToolInfo{
	{
		Name:        ToolSearch,
		Description: "Search clinical trials with hybrid keyword and semantic retrieval. Accepts free text plus optional filters (phase, status, location, sponsor, enrollment). Returns ranked trials with relevance scores, match reasons and facet counts.",
	},
	{
		Name:        ToolAsk,
		Description: "Ask a question about clinical trials. Searches, writes a narrative answer citing NCT IDs, and fact-checks it against the retrieved records. Returns the answer, its verification issues and highlight segments.",
	},
	{
		Name:        ToolVerify,
		Description: "Fact-check an answer about clinical trials against trial records: fabricated citations, trial counts, phase distributions, enrollment, phase and sponsor claims.",
	},
	{
		Name:        ToolHighlight,
		Description: "Split an answer into plain and issue-attributed segments for display. Uses the session's latest answer when no text is given.",
	},
	{
		Name:        ToolOverride,
		Description: "Acknowledge one verification issue of the session's latest answer. The issue stays listed and is marked overridden.",
	},
}

// NewServer creates a new MCP server over svc. sessions may be shared with
// the HTTP API; nil creates a private registry.
func NewServer(svc *service.Service, sessions *service.Sessions) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service is required")
	}
	if sessions == nil {
		sessions = service.NewSessions(service.DefaultMaxSessions)
	}

	s := &Server{
		svc:      svc,
		sessions: sessions,
		logger:   slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// SetMetrics sets the query metrics collector. When set, a query_metrics
// resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolInfos))
	copy(out, toolInfos)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments in the default
// session. Used by the CLI and tests.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolSearch:
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpSearchHandler(ctx, nil, in)
		return out, err
	case ToolAsk:
		var in SearchInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpAskHandler(ctx, nil, in)
		return out, err
	case ToolVerify:
		var in VerifyInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpVerifyHandler(ctx, nil, in)
		return out, err
	case ToolHighlight:
		var in HighlightInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpHighlightHandler(ctx, nil, in)
		return out, err
	case ToolOverride:
		var in OverrideInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		_, out, err := s.mcpOverrideHandler(ctx, nil, in)
		return out, err
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, v any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError("arguments are not JSON: " + err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewInvalidParamsError("invalid arguments: " + err.Error())
	}
	return nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolSearch, Description: toolInfos[0].Description}, s.mcpSearchHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolAsk, Description: toolInfos[1].Description}, s.mcpAskHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolVerify, Description: toolInfos[2].Description}, s.mcpVerifyHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolHighlight, Description: toolInfos[3].Description}, s.mcpHighlightHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolOverride, Description: toolInfos[4].Description}, s.mcpOverrideHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(toolInfos)))
}

func (s *Server) session(req *mcp.CallToolRequest) (*service.Session, error) {
	id := ""
	if req != nil && req.Session != nil {
		id = req.Session.ID()
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, MapError(err)
	}
	return sess, nil
}

func searchRequest(in SearchInput) (search.SearchRequest, error) {
	if strings.TrimSpace(in.Query) == "" {
		return search.SearchRequest{}, NewInvalidParamsError("query parameter is required")
	}
	return search.SearchRequest{
		Query:    in.Query,
		Mode:     search.Mode(in.Mode),
		Filters:  in.Filters,
		Page:     max(in.Page-1, 0),
		PageSize: clampLimit(in.Limit, search.DefaultPageSize, 1, search.MaxPageSize),
		Explain:  in.Explain,
	}, nil
}

// mcpSearchHandler is the MCP SDK handler for the search_trials tool.
func (s *Server) mcpSearchHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	sreq, err := searchRequest(input)
	if err != nil {
		return nil, SearchOutput{}, err
	}
	sess, err := s.session(req)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	start := time.Now()
	requestID := uuid.NewString()
	s.logger.Info("search_trials started",
		slog.String("request_id", requestID),
		slog.String("session", sess.ID()),
		slog.String("query", input.Query))

	res, err := s.svc.SearchIn(ctx, sess, sreq)
	if err != nil {
		s.logger.Warn("search_trials failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}
	out := ToSearchOutput(res)
	s.logger.Info("search_trials completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(out.Results)))

	if input.Markdown {
		return textResult(FormatSearchResults(input.Query, out)), out, nil
	}
	return nil, out, nil
}

// mcpAskHandler is the MCP SDK handler for the ask tool.
func (s *Server) mcpAskHandler(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	sreq, err := searchRequest(input)
	if err != nil {
		return nil, AskOutput{}, err
	}
	sess, err := s.session(req)
	if err != nil {
		return nil, AskOutput{}, err
	}
	res, err := s.svc.AskIn(ctx, sess, sreq)
	if err != nil {
		return nil, AskOutput{}, MapError(err)
	}
	out := ToAskOutput(res)
	if input.Markdown {
		text := FormatSearchResults(input.Query, out.Search)
		if out.Answer != "" {
			text = "## Answer\n\n" + out.Answer + "\n\n" + FormatVerification(out.Verification) + "\n\n" + text
		}
		return textResult(text), out, nil
	}
	return nil, out, nil
}

// mcpVerifyHandler is the MCP SDK handler for the verify_answer tool.
func (s *Server) mcpVerifyHandler(ctx context.Context, _ *mcp.CallToolRequest, input VerifyInput) (
	*mcp.CallToolResult,
	*VerificationOutput,
	error,
) {
	res, err := s.svc.Verify(ctx, verify.Input{
		Answer:    input.Answer,
		Citations: input.Citations,
		Trials:    input.Trials,
		Total:     input.Total,
	})
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, ToVerificationOutput(res), nil
}

// mcpHighlightHandler is the MCP SDK handler for the highlight_answer tool.
func (s *Server) mcpHighlightHandler(_ context.Context, req *mcp.CallToolRequest, input HighlightInput) (
	*mcp.CallToolResult,
	HighlightOutput,
	error,
) {
	text, issues := input.Text, input.Issues
	if text == "" {
		sess, err := s.session(req)
		if err != nil {
			return nil, HighlightOutput{}, err
		}
		var ok bool
		text, issues, ok = sess.Answer()
		if !ok {
			return nil, HighlightOutput{}, NewInvalidParamsError("no text given and the session has no answer")
		}
	}
	return nil, HighlightOutput{Segments: s.svc.Highlight(text, issues)}, nil
}

// mcpOverrideHandler is the MCP SDK handler for the override_issue tool.
func (s *Server) mcpOverrideHandler(_ context.Context, req *mcp.CallToolRequest, input OverrideInput) (
	*mcp.CallToolResult,
	OverrideOutput,
	error,
) {
	if input.IssueID == "" {
		return nil, OverrideOutput{}, NewInvalidParamsError("issue_id parameter is required")
	}
	sess, err := s.session(req)
	if err != nil {
		return nil, OverrideOutput{}, err
	}
	res, segments, err := s.svc.OverrideIn(sess, input.IssueID)
	if err != nil {
		return nil, OverrideOutput{}, MapError(err)
	}
	return nil, OverrideOutput{Verification: ToVerificationOutput(res), Segments: segments}, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// HTTPHandler serves the tools over the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, nil)
}

// Serve runs the server on stdio until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("Starting MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error",
			slog.String("error", err.Error()))
	} else {
		s.logger.Info("MCP server stopped gracefully")
	}
	return err
}

// clampLimit returns def for non-positive values and bounds the rest.
func clampLimit(v, def, lo, hi int) int {
	if v <= 0 {
		return def
	}
	return min(max(v, lo), hi)
}
