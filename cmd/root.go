// Package cmd defines and implements the CLI commands for the docwatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/app"
	"github.com/JakeFAU/docwatch/internal/config"
	"github.com/JakeFAU/docwatch/internal/logging"
	"github.com/JakeFAU/docwatch/internal/pipeline"
	"github.com/JakeFAU/docwatch/internal/store"
	"github.com/JakeFAU/docwatch/internal/wayback"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Orchestrator() *pipeline.Orchestrator
	Poller() *wayback.Poller
	Runs() store.RunRepository
	Ready(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "docwatch",
		Short: "Discovers documents in crawl logs and publishes them to the catalog.",
		Long: `docwatch scans the crawl logs of completed crawl launches for documents
found on watched targets, confirms they were captured by the wayback index,
and publishes each new document to the catalog exactly once.`,
		SilenceUsage: true,

		// Build the application once and hand it to the subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./docwatch.yaml, /etc/docwatch, $HOME/.docwatch)")

	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newScanAllCmd())
	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newPollCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	// A missing .env file is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps incomplete runs to 2 so a scheduler can tell them from
// outright failures.
func exitCode(err error) int {
	if errors.Is(err, pipeline.ErrIncomplete) {
		return 2
	}
	return 1
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
