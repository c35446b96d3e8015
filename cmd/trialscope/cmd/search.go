package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/trialscope/internal/output"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/trial"
)

// queryOptions holds the flags shared by search and ask.
type queryOptions struct {
	mode          string
	limit         int
	page          int
	phases        []string
	statuses      []string
	sponsors      []string
	minEnrollment int
	maxEnrollment int
	startAfter    string
	startBefore   string
	format        string // "text", "json"
}

func (o *queryOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.mode, "mode", "m", "", "Retrieval mode: keyword, semantic, hybrid (default from config)")
	cmd.Flags().IntVarP(&o.limit, "limit", "n", search.DefaultPageSize, "Results per page")
	cmd.Flags().IntVar(&o.page, "page", 1, "Result page (1-based)")
	cmd.Flags().StringSliceVar(&o.phases, "phase", nil, "Filter by phase (repeatable, e.g. --phase 3 --phase 'phase 2/3')")
	cmd.Flags().StringSliceVar(&o.statuses, "status", nil, "Filter by overall status (repeatable, e.g. --status recruiting)")
	cmd.Flags().StringSliceVar(&o.sponsors, "sponsor", nil, "Filter by sponsor (repeatable)")
	cmd.Flags().IntVar(&o.minEnrollment, "min-enrollment", -1, "Minimum enrollment")
	cmd.Flags().IntVar(&o.maxEnrollment, "max-enrollment", -1, "Maximum enrollment")
	cmd.Flags().StringVar(&o.startAfter, "start-after", "", "Earliest start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&o.startBefore, "start-before", "", "Latest start date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&o.format, "format", "f", "text", "Output format: text, json")
}

// request turns the flags into a search request. Filter values are
// normalized and validated by the engine.
func (o *queryOptions) request(query string) (search.SearchRequest, error) {
	if o.format != "text" && o.format != "json" {
		return search.SearchRequest{}, fmt.Errorf("unknown format %q (want text or json)", o.format)
	}

	f := &trial.SearchFilters{Sponsors: o.sponsors}
	for _, p := range o.phases {
		f.Phases = append(f.Phases, trial.Phase(p))
	}
	for _, s := range o.statuses {
		f.Statuses = append(f.Statuses, trial.Status(s))
	}
	if o.minEnrollment >= 0 || o.maxEnrollment >= 0 {
		f.Enrollment = &trial.EnrollmentRange{}
		if o.minEnrollment >= 0 {
			f.Enrollment.Min = &o.minEnrollment
		}
		if o.maxEnrollment >= 0 {
			f.Enrollment.Max = &o.maxEnrollment
		}
	}
	if o.startAfter != "" || o.startBefore != "" {
		f.StartDate = &trial.DateRange{}
		var err error
		if f.StartDate.From, err = parseDate("start-after", o.startAfter); err != nil {
			return search.SearchRequest{}, err
		}
		if f.StartDate.To, err = parseDate("start-before", o.startBefore); err != nil {
			return search.SearchRequest{}, err
		}
	}

	req := search.SearchRequest{
		Query:    query,
		Mode:     search.Mode(strings.ToLower(o.mode)),
		Page:     max(o.page-1, 0),
		PageSize: o.limit,
	}
	if !f.IsEmpty() {
		req.Filters = f
	}
	return req, nil
}

func parseDate(flag, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", flag, v)
	}
	return &t, nil
}

type searchOptions struct {
	queryOptions
	explain bool
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search clinical trials",
		Long: `Search the trial index.

Hybrid mode runs keyword (BM25) and vector retrieval in parallel and fuses
them with Reciprocal Rank Fusion. The query is analysed for conditions,
interventions, phase, status and sponsor, which become boosts unless you
set them explicitly as filters.

Examples:
  trialscope search "pembrolizumab melanoma"
  trialscope search "phase 3 breast cancer trials by Pfizer" --limit 5
  trialscope search "diabetes" --status recruiting --phase 3
  trialscope search "CAR-T lymphoma" --mode semantic --format json
  trialscope search "asthma biologics" --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, global, strings.Join(args, " "), opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Print the store request built for the query")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, global *globalOptions, query string, opts searchOptions) error {
	cfg, _, err := loadConfig(global)
	if err != nil {
		return err
	}
	defer setupLogging(cfg, false)()

	req, err := opts.request(query)
	if err != nil {
		return err
	}
	req.Explain = opts.explain

	a, err := buildApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	slog.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))
	res, err := a.svc.Search(ctx, req)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	printSearchResult(output.New(cmd.OutOrStdout(), useColor(cmd, global)), query, res)
	return nil
}

func printSearchResult(out *output.Writer, query string, res *search.SearchResult) {
	out.Header(fmt.Sprintf("Found %d clinical trials matching %q (%s)", res.Total, query, res.Strategy))
	for _, d := range res.Degradations {
		out.Warningf("%s", d)
	}
	if len(res.Terms) > 0 {
		out.Status("", "Expanded: "+strings.Join(res.Terms, ", "))
	}
	out.Newline()
	out.Trials(res.Trials)
	if len(res.Trials) > 0 {
		out.Newline()
		out.Facets(res.Aggregations)
	}
	if res.Request != nil {
		body, err := json.MarshalIndent(res.Request, "", "  ")
		if err == nil {
			out.Newline()
			out.Header("Store request")
			out.Code(string(body))
		}
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
