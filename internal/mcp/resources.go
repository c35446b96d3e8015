package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/trialscope/internal/telemetry"
)

// QueryMetricsURI identifies the query pattern resource.
const QueryMetricsURI = "trialscope://query_metrics"

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	StrategyCounts      map[string]int64    `json:"strategy_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries  int64   `json:"total_queries"`
	Since         string  `json:"since"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	RepeatCount   int64   `json:"repeat_count"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// maxTopTerms caps the terms listed in the resource.
const maxTopTerms = 20

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Search pattern telemetry: strategies, top terms, zero-result queries and latency",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readQueryMetrics()
		},
	)
}

func (s *Server) readQueryMetrics() (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	data, err := json.MarshalIndent(BuildQueryMetricsOutput(metrics.Snapshot()), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal query metrics: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      QueryMetricsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// BuildQueryMetricsOutput converts a recorder snapshot to the resource shape.
func BuildQueryMetricsOutput(snapshot telemetry.QueryMetricsSnapshot) QueryMetricsOutput {
	output := QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:  snapshot.TotalQueries,
			Since:         snapshot.Since.UTC().Format(time.RFC3339),
			ZeroResultPct: snapshot.ZeroResultPercentage(),
			RepeatCount:   snapshot.ExactRepeatCount,
		},
		StrategyCounts:      make(map[string]int64, len(snapshot.StrategyCounts)),
		TopTerms:            make([]QueryTermCount, 0, min(len(snapshot.TopTerms), maxTopTerms)),
		ZeroResultQueries:   snapshot.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snapshot.LatencyDistribution)),
	}
	for k, v := range snapshot.StrategyCounts {
		output.StrategyCounts[k] = v
	}
	for i, t := range snapshot.TopTerms {
		if i >= maxTopTerms {
			break
		}
		output.TopTerms = append(output.TopTerms, QueryTermCount{Term: t.Term, Count: t.Count})
	}
	for k, v := range snapshot.LatencyDistribution {
		output.LatencyDistribution[string(k)] = v
	}
	if output.ZeroResultQueries == nil {
		output.ZeroResultQueries = []string{}
	}
	return output
}
