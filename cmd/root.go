// Package cmd wires the search-crawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-search-crawler/internal/config"
	"github.com/JakeFAU/realtime-search-crawler/internal/logging"
	"github.com/JakeFAU/realtime-search-crawler/internal/server"
)

// Runner is the part of the application the subcommands drive.
type Runner interface {
	Migrate(ctx context.Context) error
	Seed(ctx context.Context) (int64, error)
	RunCrawler(ctx context.Context, once bool) error
	RunAPI(ctx context.Context) error
	RunAll(ctx context.Context) error
	Close() error
}

// newApp is the application factory. Tests swap it for a fake.
var newApp = func(ctx context.Context, cfgFile string) (Runner, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewWithOptions(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	return app, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "search-crawler",
		Short: "Frontier crawler and ranked search over the crawled pages.",
		Long: `search-crawler walks a ranked list of origins, renders each home page,
indexes its text and serves relevance-ranked queries over the result.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	// withApp builds the application for one command and always closes it.
	withApp := func(fn func(ctx context.Context, app Runner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) (err error) {
			app, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, app.Close())
			}()
			return fn(cmd.Context(), app)
		}
	}

	root.AddCommand(
		newServeCmd(withApp),
		newCrawlCmd(withApp),
		newAPICmd(withApp),
		newSeedCmd(withApp),
		newMigrateCmd(withApp),
	)
	return root
}

// Execute runs the root command until it returns or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "search-crawler:", err)
		os.Exit(1)
	}
}
