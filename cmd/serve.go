package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/api"
	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/progress"
	"github.com/JakeFAU/docwatch/internal/progress/sinks"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API",
		Long: `Serves health, readiness and Prometheus metrics, and lets operators start
launch scans and inspect their results over HTTP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), appInstance, nil)
		},
	}
}

// serve runs the API until ctx is cancelled. When ln is nil it listens on the
// configured port.
func serve(ctx context.Context, a App, ln net.Listener) error {
	cfg := a.Config()
	logger := a.Logger()

	var resolver docs.AvailabilityResolver
	if p := a.Poller(); p != nil {
		resolver = p
	}
	// Runs outlive the request that started them but stop with the process.
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()
	runs := a.Runs()
	hub := progress.NewHub(progress.Config{Logger: logger},
		sinks.NewRunSink(runs, logger.Named("progress")),
		sinks.NewLogSink(logger.Named("progress")),
	)
	apiServer := api.NewServer(runCtx, api.Options{
		Runner:   a.Orchestrator(),
		Runs:     runs,
		Resolver: resolver,
		Ready:    a.Ready,
		APIKey:   cfg.Server.APIKey,
		Progress: hub,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		var err error
		if ln != nil {
			logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
			err = srv.Serve(ln)
		} else {
			logger.Info("starting HTTP server", zap.String("addr", srv.Addr))
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	cancelRuns()
	apiServer.Wait()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Warn("progress hub close failed", zap.Error(err))
	}
	logger.Info("HTTP server stopped")
	return nil
}
