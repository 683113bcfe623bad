// Package bootstrap assembles the billing stack from configuration so the
// server and the CLI run the same pipeline.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	appbilling "github.com/notaria/backend/internal/application/billing"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/notaria/backend/internal/infrastructure/cache"
	"github.com/notaria/backend/internal/infrastructure/config"
	"github.com/notaria/backend/internal/infrastructure/feed"
	"github.com/notaria/backend/internal/infrastructure/logger"
	"github.com/notaria/backend/internal/infrastructure/migration"
	"github.com/notaria/backend/internal/infrastructure/persistence"
	"github.com/notaria/backend/internal/infrastructure/storage"
	"github.com/notaria/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

const meterName = "notaria/billing"

// Options selects the optional parts of the stack
type Options struct {
	// Migrate applies the embedded migrations before anything else runs
	Migrate bool
	// Meter receives the run metrics. Nil uses the global meter provider,
	// which is a no-op unless the server installed one.
	Meter metric.Meter
}

// App holds the wired billing services and what must be closed on exit
type App struct {
	Config       *config.Config
	DB           *persistence.Database
	Orchestrator *appbilling.Orchestrator
	Sync         *appbilling.SyncService
	Idempotency  shared.IdempotencyStore

	logger *zap.Logger
}

// Build connects to the database and wires repositories, the reconciler and
// both ingestion entry points.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	db, err := persistence.NewDatabase(&cfg.Database, persistence.DatabaseOptions{
		Logger:   log,
		LogLevel: logger.MapGormLogLevel(cfg.Log.Level),
		Tracing: telemetry.DBTracingConfig{
			Enabled:         cfg.Telemetry.DBTraceEnabled,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        "postgresql",
		},
	})
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, DB: db, logger: log}

	if opts.Migrate {
		if err := app.migrate(); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	// production must not silently lose duplicate detection across replicas
	idem, err := cache.NewIdempotencyStore(ctx, cfg.Redis, cfg.App.Env != "production", log)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("idempotency store: %w", err)
	}
	app.Idempotency = idem

	var archive appbilling.ArchiveStore
	if cfg.Storage.Bucket != "" {
		s3, err := storage.NewS3ArchiveStore(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("archive store: %w", err)
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			log.Warn("Archive bucket not reachable, files will not be archived", zap.Error(err))
		} else {
			archive = s3
		}
	}

	repos := db.Repositories()
	canon := billing.NewCanonicalizer(log)
	reconciler := appbilling.NewReconciler(repos.Scope, canon, appbilling.NewLinker(canon, log), log)

	app.Orchestrator = appbilling.NewOrchestrator(
		feed.NewParser(log),
		reconciler,
		repos.SyncLogs,
		archive,
		appbilling.OrchestratorConfig{
			ChunkSize:       cfg.Import.ChunkSize,
			Concurrency:     cfg.Import.Concurrency,
			RunTimeout:      cfg.Import.RunTimeout,
			ErrorSampleSize: cfg.Import.ErrorSampleSize,
		},
		log,
	)
	app.Sync = appbilling.NewSyncService(reconciler, repos.SyncLogs, idem, appbilling.SyncConfig{
		MaxRecords:      cfg.Sync.MaxRecords,
		ChunkSize:       cfg.Import.ChunkSize,
		Concurrency:     cfg.Import.Concurrency,
		RunTimeout:      cfg.Import.RunTimeout,
		StatusWindow:    cfg.Sync.StatusWindow,
		ErrorSampleSize: cfg.Import.ErrorSampleSize,
		IdempotencyTTL:  cfg.Sync.IdempotencyTTL,
		DefaultHistory:  cfg.Sync.DefaultHistory,
		MaxHistory:      cfg.Sync.MaxHistory,
	}, log)

	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	metrics, err := telemetry.NewIngestMetrics(meter)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("ingest metrics: %w", err)
	}
	app.Orchestrator.SetMetrics(metrics)
	app.Sync.SetMetrics(metrics)
	return app, nil
}

// migrate runs on its own connection; closing the migrator closes it
func (a *App) migrate() error {
	sqlDB, err := sql.Open("postgres", a.Config.Database.DSN())
	if err != nil {
		return err
	}
	m, err := migration.NewEmbedded(sqlDB, a.logger)
	if err != nil {
		_ = sqlDB.Close()
		return fmt.Errorf("migrator: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the idempotency store and the database
func (a *App) Close() error {
	var errs []error
	if a.Idempotency != nil {
		errs = append(errs, a.Idempotency.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
