package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type appRunE func(fn func(ctx context.Context, app Runner) error) func(*cobra.Command, []string) error

func newServeCmd(withApp appRunE) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Seed if needed, then run the crawler and the query API together",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app Runner) error {
			return app.RunAll(ctx)
		}),
	}
}

func newCrawlCmd(withApp appRunE) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run the frontier scheduler",
		Long: `Crawl selects due origins from the frontier in batches, renders and
indexes each one, and records the outcome back on the origin row.`,
		Args: cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app Runner) error {
			return app.RunCrawler(ctx, once)
		}),
	}
	cmd.Flags().BoolVar(&once, "once", false, "crawl a single batch and exit")
	return cmd
}

func newAPICmd(withApp appRunE) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the query API only",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app Runner) error {
			return app.RunAPI(ctx)
		}),
	}
}

func newSeedCmd(withApp appRunE) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the seed file into an empty frontier",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app Runner) error {
			n, err := app.Seed(ctx)
			if err != nil {
				return err
			}
			zap.L().Info("seed finished", zap.Int64("inserted", n))
			return nil
		}),
	}
}

func newMigrateCmd(withApp appRunE) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: withApp(func(ctx context.Context, app Runner) error {
			return app.Migrate(ctx)
		}),
	}
}
