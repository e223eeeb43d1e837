package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"cellfate/adapters/postgres"
	"cellfate/adapters/rbridge"
	"cellfate/internal"
	"cellfate/internal/api"
	"cellfate/internal/config"
)

var logger = internal.DefaultLogger.With("cellfate")

func newServeCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve lineage reduction and trend fitting over HTTP",
		Long: `Start the HTTP API. Run history is stored in PostgreSQL when DATABASE_URL
is set, and the mgcv model is enabled when Rscript is available.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			gin.SetMode(a.cfg.Server.GinMode)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var opts []api.Option
			if a.cfg.Database.URL != "" {
				db, repo, err := openRunStore(ctx, a.cfg)
				if err != nil {
					return err
				}
				defer db.Close()
				opts = append(opts, api.WithRunStore(repo))
			}
			rt, err := rbridge.New(rbridge.Config{Path: a.cfg.Runtime.RscriptPath, Timeout: a.cfg.Runtime.RTimeout})
			if err != nil {
				logger.Warn("mgcv model disabled: %v", err)
			} else {
				opts = append(opts, api.WithRRuntime(rt))
			}

			return api.NewServer(a.cfg, opts...).Run(ctx)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (default from PORT)")
	return cmd
}

// openRunStore connects to the configured database and creates the run tables.
func openRunStore(ctx context.Context, cfg *config.Config) (*sqlx.DB, *postgres.RunRepository, error) {
	db, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

	repo := postgres.NewRunRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("recording runs in PostgreSQL")
	return db, repo, nil
}
