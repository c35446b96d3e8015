// Package cmd provides the CLI commands for trialscope.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/trialscope/internal/config"
	trialerrors "github.com/Aman-CERP/trialscope/internal/errors"
	"github.com/Aman-CERP/trialscope/internal/highlight"
	"github.com/Aman-CERP/trialscope/internal/logging"
	"github.com/Aman-CERP/trialscope/internal/profiling"
	"github.com/Aman-CERP/trialscope/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	dir      string
	logLevel string
	noColor  bool
	profile  profiling.Options
}

// NewRootCmd creates the root command for the trialscope CLI.
func NewRootCmd() *cobra.Command {
	var (
		opts     globalOptions
		profiler *profiling.Session
	)

	cmd := &cobra.Command{
		Use:   "trialscope",
		Short: "Search clinical trials and verify answers about them",
		Long: `trialscope searches a clinical-trial index with keyword, semantic or
hybrid retrieval, writes answers over the results and checks every answer
against the retrieved records before it is shown.

It serves the same operations to AI assistants over MCP (stdio or HTTP)
and to web clients over a JSON API.

Configuration is read from ~/.config/trialscope/config.yaml and
.trialscope.yaml in the project directory. Run 'trialscope config example'
for every key.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if !opts.profile.Enabled() {
				return nil
			}
			var err error
			profiler, err = profiling.Start(opts.profile)
			return err
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if profiler == nil {
				return nil
			}
			err := profiler.Stop()
			profiler = nil
			return err
		},
	}

	cmd.SetVersionTemplate("trialscope version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Project directory holding .trialscope.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override (debug|info|warn|error)")
	cmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newSearchCmd(&opts))
	cmd.AddCommand(newAskCmd(&opts))
	cmd.AddCommand(newVerifyCmd(&opts))
	cmd.AddCommand(newHighlightCmd(&opts))
	cmd.AddCommand(newIndexCmd(&opts))
	cmd.AddCommand(newServeCmd(&opts))
	cmd.AddCommand(newConfigCmd(&opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints failures with their hint.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, trialerrors.FormatForCLI(err))
	}
	return err
}

// loadConfig resolves the project root from --dir and loads the layered
// configuration.
func loadConfig(opts *globalOptions) (*config.Config, string, error) {
	root, err := config.FindProjectRoot(opts.dir)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, root, err
	}
	if opts.logLevel != "" {
		cfg.Server.LogLevel = opts.logLevel
	}
	return cfg, root, nil
}

// setupLogging installs the file logger. Stderr is only added for
// long-running commands that do not own stdout.
func setupLogging(cfg *config.Config, withStderr bool) func() {
	logCfg := logging.StdioConfig(cfg.Server.LogLevel)
	logCfg.WriteToStderr = withStderr
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		slog.Warn("logging_unavailable", slog.String("error", err.Error()))
		return func() {}
	}
	return cleanup
}

// useColor reports whether output to the command's stdout may be styled.
func useColor(cmd *cobra.Command, opts *globalOptions) bool {
	return !opts.noColor && !highlight.DetectNoColor() && highlight.IsTTY(cmd.OutOrStdout())
}
