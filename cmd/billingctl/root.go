package main

import (
	"context"
	"io"

	"github.com/notaria/backend/internal/bootstrap"
	"github.com/notaria/backend/internal/infrastructure/config"
	"github.com/notaria/backend/internal/infrastructure/logger"
	"github.com/notaria/backend/internal/interfaces/http/handler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

// services is what the subcommands drive; the HTTP handler needs the same pair
type services struct {
	sync    handler.SyncUseCase
	imports handler.ImportRunner
	close   func() error
}

// serviceFactory builds services for one command invocation
type serviceFactory func(ctx context.Context, verbose bool) (*services, error)

func defaultServices(ctx context.Context, verbose bool) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	log, err := logger.New(&logger.Config{
		Level:      level,
		Format:     "console",
		Output:     "stderr",
		TimeFormat: "15:04:05.000",
	})
	if err != nil {
		return nil, err
	}
	app, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{Migrate: false})
	if err != nil {
		return nil, err
	}
	return &services{
		sync:    app.Sync,
		imports: app.Orchestrator,
		close: func() error {
			defer func() { _ = logger.Sync(log) }()
			if err := app.Close(); err != nil {
				log.Warn("Error closing resources", zap.Error(err))
				return err
			}
			return nil
		},
	}, nil
}

func newRootCmd(factory serviceFactory) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:   "billingctl",
		Short: "Koinor billing ingestion tool",
		Long: `billingctl imports Koinor XML exports (ledger, movement, snapshot)
and reports sync health using the same configuration as the server
(config.toml or NOTARIA_* environment variables).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")

	withServices := func(run func(cmd *cobra.Command, args []string, svc *services) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			svc, err := factory(cmd.Context(), verbose)
			if err != nil {
				return err
			}
			defer func() { _ = svc.close() }()
			return run(cmd, args, svc)
		}
	}

	root.AddCommand(
		newImportCmd(withServices),
		newStatusCmd(withServices),
		newHistoryCmd(withServices),
	)
	return root
}

type runWithServices func(run func(cmd *cobra.Command, args []string, svc *services) error) func(*cobra.Command, []string) error

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
