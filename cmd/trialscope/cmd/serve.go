package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/trialscope/internal/api"
	"github.com/Aman-CERP/trialscope/internal/config"
	"github.com/Aman-CERP/trialscope/internal/mcp"
	"github.com/Aman-CERP/trialscope/pkg/version"
)

type serveOptions struct {
	transport string
	addr      string
	noWatch   bool
}

func (o serveOptions) apply(cfg *config.Config) {
	if o.transport != "" {
		cfg.Server.Transport = o.transport
	}
	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
}

func newServeCmd(global *globalOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search, ask and verification over MCP and HTTP",
		Long: `Start the server.

stdio (default) speaks MCP on stdin/stdout for AI assistants. Nothing but
JSON-RPC is written to stdout; logs go to ~/.trialscope/logs/server.log.

http serves the JSON API under /api, MCP (streamable HTTP) under /mcp,
/healthz and, when server.metrics is set, Prometheus metrics on /metrics.
The HTTP server restarts with the new settings when a config file changes.

Examples:
  trialscope serve
  trialscope serve --transport http --addr 127.0.0.1:8765`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "", "Transport: stdio or http (default from config)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not restart the HTTP server on config changes")

	return cmd
}

func runServe(ctx context.Context, global *globalOptions, opts serveOptions) error {
	cfg, root, err := loadConfig(global)
	if err != nil {
		return err
	}
	opts.apply(cfg)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Server.Transport {
	case "stdio":
		defer setupLogging(cfg, false)()
		return serveStdio(ctx, cfg)
	case "http":
		defer setupLogging(cfg, true)()
		var reloads <-chan *config.Config
		if !opts.noWatch {
			reloads = watchConfig(ctx, root, global, opts)
		}
		return serveHTTP(ctx, cfg, reloads)
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", cfg.Server.Transport)
	}
}

func serveStdio(ctx context.Context, cfg *config.Config) error {
	a, err := buildApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := mcp.NewServer(a.svc, a.sessions)
	if err != nil {
		return err
	}
	srv.SetMetrics(a.queries)

	slog.Info("server_started",
		slog.String("transport", "stdio"),
		slog.String("version", version.Version))
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// watchConfig delivers each valid reloaded config, with the serve flags
// applied again. Invalid edits are logged by config.Watch and skipped.
func watchConfig(ctx context.Context, root string, global *globalOptions, opts serveOptions) <-chan *config.Config {
	reloads := make(chan *config.Config, 1)
	err := config.Watch(ctx, root, func(cfg *config.Config, err error) {
		if err != nil {
			return
		}
		opts.apply(cfg)
		if global.logLevel != "" {
			cfg.Server.LogLevel = global.logLevel
		}
		select {
		case reloads <- cfg:
		default:
		}
	})
	if err != nil {
		slog.Warn("config_watch_unavailable", slog.String("error", err.Error()))
		return nil
	}
	return reloads
}

// serveHTTP runs the API until ctx ends, rebuilding every component when
// a new config arrives on reloads. Sessions do not survive a restart.
func serveHTTP(ctx context.Context, cfg *config.Config, reloads <-chan *config.Config) error {
	for {
		runCtx, cancel := context.WithCancel(ctx)
		a, err := buildApp(runCtx, cfg, appOptions{})
		if err != nil {
			cancel()
			return err
		}

		handler, err := httpServer(a)
		if err != nil {
			cancel()
			_ = a.Close()
			return err
		}

		done := make(chan error, 1)
		addr := cfg.Server.Addr
		go func() {
			done <- handler.ListenAndServe(runCtx, addr)
		}()

		select {
		case err := <-done:
			cancel()
			_ = a.Close()
			return err
		case next := <-reloads:
			slog.Info("server_restarting", slog.String("reason", "config_changed"))
			cancel()
			if err := <-done; err != nil {
				slog.Warn("server_shutdown_failed", slog.String("error", err.Error()))
			}
			_ = a.Close()
			cfg = next
		}
	}
}

func httpServer(a *app) (*api.Server, error) {
	mcpSrv, err := mcp.NewServer(a.svc, a.sessions)
	if err != nil {
		return nil, err
	}
	mcpSrv.SetMetrics(a.queries)

	opts := []api.Option{
		api.WithSessions(a.sessions),
		api.WithHealth(a.health),
		api.WithMount("/mcp", mcpSrv.HTTPHandler()),
	}
	if a.metrics != nil {
		opts = append(opts, api.WithMetrics(a.metrics))
	}
	return api.NewServer(a.svc, opts...), nil
}
