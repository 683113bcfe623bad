package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/notaria/backend/internal/bootstrap"
	"github.com/notaria/backend/internal/infrastructure/config"
	"github.com/notaria/backend/internal/infrastructure/logger"
	"github.com/notaria/backend/internal/infrastructure/persistence"
	"github.com/notaria/backend/internal/infrastructure/scheduler"
	"github.com/notaria/backend/internal/infrastructure/telemetry"
	"github.com/notaria/backend/internal/interfaces/http/handler"
	"github.com/notaria/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Notaria billing backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		_ = tp.Shutdown(context.Background())
	}()

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	defer func() {
		_ = mp.Shutdown(context.Background())
	}()

	lp, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	defer func() {
		_ = lp.Shutdown(context.Background())
	}()
	log = telemetry.Bridge(log, lp, cfg.Telemetry.ServiceName)

	app, err := bootstrap.Build(ctx, cfg, log, bootstrap.Options{
		Migrate: true,
		Meter:   mp.Meter("notaria/billing"),
	})
	if err != nil {
		log.Fatal("Failed to build billing stack", zap.Error(err))
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("Error closing resources", zap.Error(err))
		}
	}()

	var watcher *scheduler.FolderWatcher
	if cfg.Watcher.Enabled {
		watcher, err = scheduler.NewFolderWatcher(scheduler.WatcherConfig{
			Schedule:     cfg.Watcher.CronSchedule,
			InboxDir:     cfg.Watcher.InboxDir,
			ProcessedDir: cfg.Watcher.ProcessedDir,
			FailedDir:    cfg.Watcher.FailedDir,
			MaxFileSize:  cfg.Import.MaxUploadSize,
		}, app.Orchestrator, log)
		if err != nil {
			log.Fatal("Failed to create folder watcher", zap.Error(err))
		}
		if err := watcher.Start(ctx); err != nil {
			log.Fatal("Failed to start folder watcher", zap.Error(err))
		}
	}

	mode := gin.ReleaseMode
	if cfg.App.Env == "development" {
		mode = gin.DebugMode
	}
	engine, err := router.NewEngine(router.EngineConfig{
		Mode:           mode,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: cfg.Telemetry.Enabled,
		TrustedProxies: cfg.HTTP.TrustedProxies,
	}, log)
	if err != nil {
		log.Fatal("Failed to create HTTP engine", zap.Error(err))
	}
	engine.GET("/health/ready", readinessHandler(app.DB))

	billingHandler := handler.NewBillingHandler(app.Sync, app.Orchestrator, cfg.Import.MaxUploadSize)
	router.NewRouter(engine).
		Register(router.BillingRoutes(billingHandler, router.BillingConfig{
			SyncSecret:    cfg.Sync.Secret,
			MaxBodySize:   cfg.HTTP.MaxBodySize,
			MaxUploadSize: cfg.Import.MaxUploadSize,
		})).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(shutdownCtx); err != nil {
			log.Warn("Folder watcher did not stop cleanly", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited gracefully")
}

// readinessHandler reports whether the database answers
func readinessHandler(db *persistence.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			logger.GetGinLogger(c).Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
