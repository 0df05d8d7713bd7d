package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hearthside/scullery/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server and the rule engine.

Every route is a POST of a JSON body to {base}/{Concept}/{action}.
Allowlisted routes pass straight through to the named concept; the
guarded routes are recorded as requests and answered by the rule set.

Examples:
  scullery serve
  scullery serve --config scullery.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML config file")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	srvCfg := server.DefaultConfig()
	srvCfg.BasePath = cfg.Server.BasePath
	if len(cfg.Routes.Inclusions) > 0 {
		srvCfg.Inclusions = cfg.Routes.Inclusions
	}
	if len(cfg.Routes.Exclusions) > 0 {
		srvCfg.Exclusions = cfg.Routes.Exclusions
	}
	srv := server.New(application.registry, application.eng, application.req, srvCfg)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- application.eng.Run(ctx)
	}()

	httpDone := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", httpServer.Addr, "base_path", cfg.Server.BasePath)
		httpDone <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-httpDone:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			application.eng.Stop()
			<-engineDone
			return WrapExitError(ExitCommandError, "http server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "error", err)
	}

	application.eng.Stop()
	if err := <-engineDone; err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "engine failed", err)
	}
	return nil
}
