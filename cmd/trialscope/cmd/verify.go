package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/highlight"
	"github.com/Aman-CERP/trialscope/internal/output"
	"github.com/Aman-CERP/trialscope/internal/search"
	"github.com/Aman-CERP/trialscope/internal/store"
	"github.com/Aman-CERP/trialscope/internal/trial"
	"github.com/Aman-CERP/trialscope/internal/verify"
)

type verifyOptions struct {
	answer     string
	answerFile string
	trialsFile string
	query      string
	citations  []string
	format     string
}

func newVerifyCmd(global *globalOptions) *cobra.Command {
	var opts verifyOptions

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check an answer against clinical-trial records",
		Long: `Verify an answer written elsewhere against a set of trials.

The trials come from a JSONL export (--trials) or from a search (--query).
Citations default to the NCT IDs mentioned in the answer.

Examples:
  trialscope verify --answer-file answer.txt --query "melanoma phase 3"
  trialscope verify --answer "NCT00000001 enrolled 500 patients." --trials trials.jsonl
  cat answer.txt | trialscope verify --answer-file - --query "asthma" --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd.Context(), cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.answer, "answer", "", "Answer text")
	cmd.Flags().StringVar(&opts.answerFile, "answer-file", "", "Read the answer from a file ('-' for stdin)")
	cmd.Flags().StringVar(&opts.trialsFile, "trials", "", "JSONL file of trials to verify against")
	cmd.Flags().StringVar(&opts.query, "query", "", "Search query whose results the answer is checked against")
	cmd.Flags().StringSliceVar(&opts.citations, "cite", nil, "Cited NCT ID (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runVerify(ctx context.Context, cmd *cobra.Command, global *globalOptions, opts verifyOptions) error {
	text, err := readAnswer(cmd.InOrStdin(), opts.answer, opts.answerFile)
	if err != nil {
		return err
	}
	if (opts.trialsFile == "") == (opts.query == "") {
		return trialerrors.ValidationError("exactly one of --trials or --query is required", nil)
	}

	cfg, _, err := loadConfig(global)
	if err != nil {
		return err
	}
	defer setupLogging(cfg, false)()

	a, err := buildApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	in := verify.Input{Answer: text, Citations: opts.citations}
	if opts.trialsFile != "" {
		in.Trials, err = readTrials(opts.trialsFile)
		if err != nil {
			return err
		}
	} else {
		found, err := a.svc.Search(ctx, search.SearchRequest{Query: opts.query, PageSize: search.MaxPageSize})
		if err != nil {
			return err
		}
		for i := range found.Trials {
			in.Trials = append(in.Trials, found.Trials[i].Trial)
		}
		in.Total = found.Total
	}

	res, err := a.svc.Verify(ctx, in)
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		return writeJSON(cmd.OutOrStdout(), res)
	case "text":
	default:
		return fmt.Errorf("unknown format %q (want text or json)", opts.format)
	}

	color := useColor(cmd, global)
	out := output.New(cmd.OutOrStdout(), color)
	r := highlight.NewRenderer(cmd.OutOrStdout(), !color)
	out.Text(r.Render(a.svc.Highlight(text, res.Issues), res.Issues))
	out.Newline()
	printVerification(out, r, res)
	out.Status("", fmt.Sprintf("Verification: %s", res.State()))
	return nil
}

// readAnswer takes the answer from --answer or --answer-file.
func readAnswer(stdin io.Reader, text, path string) (string, error) {
	switch {
	case text != "" && path != "":
		return "", trialerrors.ValidationError("use either --answer or --answer-file, not both", nil)
	case text != "":
		return text, nil
	case path == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read answer from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", trialerrors.IOError("failed to read answer file", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", trialerrors.ValidationError("an answer is required", nil).
			WithSuggestion("Pass --answer or --answer-file")
	}
}

func readTrials(path string) ([]trial.Trial, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, trialerrors.IOError("failed to open trials file", err)
	}
	defer func() { _ = f.Close() }()

	var trials []trial.Trial
	if _, err := store.ReadJSONL(f, func(t trial.Trial) error {
		trials = append(trials, t)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return trials, nil
}

type highlightOptions struct {
	answer     string
	answerFile string
	issuesFile string
}

func newHighlightCmd(global *globalOptions) *cobra.Command {
	var opts highlightOptions

	cmd := &cobra.Command{
		Use:   "highlight",
		Short: "Render an answer with its verification issues marked",
		Long: `Render an answer with issue spans highlighted, reading issues from the
JSON written by 'trialscope verify --format json' (or a bare issue array).

Examples:
  trialscope verify --answer-file a.txt --query "asthma" -f json > v.json
  trialscope highlight --answer-file a.txt --issues v.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHighlight(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.answer, "answer", "", "Answer text")
	cmd.Flags().StringVar(&opts.answerFile, "answer-file", "", "Read the answer from a file ('-' for stdin)")
	cmd.Flags().StringVar(&opts.issuesFile, "issues", "", "Verification result or issue list (JSON)")
	_ = cmd.MarkFlagRequired("issues")

	return cmd
}

func runHighlight(cmd *cobra.Command, global *globalOptions, opts highlightOptions) error {
	text, err := readAnswer(cmd.InOrStdin(), opts.answer, opts.answerFile)
	if err != nil {
		return err
	}
	issues, err := readIssues(opts.issuesFile)
	if err != nil {
		return err
	}

	color := useColor(cmd, global)
	out := output.New(cmd.OutOrStdout(), color)
	r := highlight.NewRenderer(cmd.OutOrStdout(), !color)
	out.Text(r.Render(highlight.Segments(text, issues), issues))
	out.Newline()
	out.Text(r.Issues(issues))
	return nil
}

// readIssues accepts a verify.Result object or a bare []verify.Issue.
func readIssues(path string) ([]verify.Issue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trialerrors.IOError("failed to read issues file", err)
	}
	data = []byte(strings.TrimSpace(string(data)))

	if len(data) > 0 && data[0] == '[' {
		var issues []verify.Issue
		if err := json.Unmarshal(data, &issues); err != nil {
			return nil, trialerrors.ValidationError("invalid issue list", err)
		}
		return issues, nil
	}
	var res verify.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, trialerrors.ValidationError("invalid verification result", err)
	}
	return res.Issues, nil
}
