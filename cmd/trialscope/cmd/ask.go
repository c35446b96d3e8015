package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/trialscope/internal/highlight"
	"github.com/Aman-CERP/trialscope/internal/output"
	"github.com/Aman-CERP/trialscope/internal/service"
	"github.com/Aman-CERP/trialscope/internal/verify"
)

type askOptions struct {
	queryOptions
	quiet bool
}

func newAskCmd(global *globalOptions) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question over the matching trials and verify the answer",
		Long: `Search, write a narrative answer over the retrieved trials, then check
the answer against them.

Citations, trial counts, phase and status distributions and per-trial facts
are checked locally. When verify.judge_enabled is set, a language model
reviews the answer as well; if it is unavailable the local checks still
apply. Problem spans are highlighted in the answer and listed below it.

Queries that are not phrased as a question return search results only.

Examples:
  trialscope ask "How many phase 3 melanoma trials are recruiting?"
  trialscope ask "What does Merck sponsor in lung cancer?" --quiet
  trialscope ask "Which trials test semaglutide?" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), cmd, global, strings.Join(args, " "), opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Print the answer and issues without the trial list")

	return cmd
}

func runAsk(ctx context.Context, cmd *cobra.Command, global *globalOptions, query string, opts askOptions) error {
	cfg, _, err := loadConfig(global)
	if err != nil {
		return err
	}
	defer setupLogging(cfg, false)()

	req, err := opts.request(query)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	slog.Info("ask_started", slog.String("query", query))
	res, err := a.svc.Ask(ctx, req)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return writeJSON(cmd.OutOrStdout(), res)
	}

	color := useColor(cmd, global)
	out := output.New(cmd.OutOrStdout(), color)
	if !opts.quiet || res.Answer == nil {
		printSearchResult(out, query, res.Search)
	}
	if res.Answer == nil {
		return nil
	}

	out.Newline()
	printAnswer(out, highlight.NewRenderer(cmd.OutOrStdout(), !color), res)
	return nil
}

func printAnswer(out *output.Writer, r *highlight.Renderer, res *service.AskResult) {
	out.Header("Answer")
	if res.AnswerDegraded != "" {
		out.Warningf("answer generator unavailable: %s", res.AnswerDegraded)
	}

	var issues []verify.Issue
	if res.Verification != nil {
		issues = res.Verification.Issues
	}
	segments := res.Segments
	if segments == nil {
		segments = highlight.Segments(res.Answer.Text, issues)
	}
	out.Text(r.Render(segments, issues))
	out.Newline()

	switch {
	case res.VerificationError != "":
		out.Errorf("verification failed: %s", res.VerificationError)
	case res.Verification != nil:
		printVerification(out, r, res.Verification)
	}
	out.Status("", fmt.Sprintf("Verification: %s", res.VerificationState))
}

func printVerification(out *output.Writer, r *highlight.Renderer, v *verify.Result) {
	out.Text(r.Issues(v.Issues))
	if len(v.InvalidCitations) > 0 {
		out.Warningf("Citations not in the retrieved set: %s", strings.Join(v.InvalidCitations, ", "))
	}
	checks := v.StatisticalChecks
	out.Status("", fmt.Sprintf("Checked against %d trials: %d claims verified, %d failed",
		checks.TotalTrials, checks.ClaimsVerified, checks.ClaimsFailed))
	switch v.JudgeStatus {
	case verify.JudgeDegraded:
		out.Warningf("Judge unavailable (%s); local checks only", v.JudgeReason)
	case verify.JudgeSkipped:
		out.Status("", "Judge skipped")
	}
}
