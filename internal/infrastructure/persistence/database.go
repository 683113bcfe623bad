package persistence

import (
	"fmt"
	"time"

	"github.com/notaria/backend/internal/infrastructure/config"
	"github.com/notaria/backend/internal/infrastructure/logger"
	"github.com/notaria/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database holds the database connection and the capabilities detected on it
type Database struct {
	DB   *gorm.DB
	Caps Capabilities
}

// DatabaseOptions tunes logging and tracing of a connection
type DatabaseOptions struct {
	Logger   *zap.Logger
	LogLevel gormlogger.LogLevel
	Tracing  telemetry.DBTracingConfig
}

// NewDatabase opens a PostgreSQL connection with the given configuration
func NewDatabase(cfg *config.DatabaseConfig, opts DatabaseOptions) (*Database, error) {
	return Open(postgres.Open(cfg.DSN()), cfg, opts)
}

// Open connects through any GORM dialector. cfg may be nil to keep the
// driver's pool defaults.
func Open(dialector gorm.Dialector, cfg *config.DatabaseConfig, opts DatabaseOptions) (*Database, error) {
	zl := opts.Logger
	if zl == nil {
		zl = zap.NewNop()
	}
	level := opts.LogLevel
	if level == 0 {
		level = gormlogger.Warn
	}

	var logOpts []logger.GormLoggerOption
	if opts.Tracing.SlowQueryThresh > 0 {
		logOpts = append(logOpts, logger.WithSlowThreshold(opts.Tracing.SlowQueryThresh))
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(zl, level, logOpts...),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg != nil {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
		sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := telemetry.RegisterDBTracing(db, opts.Tracing, zl); err != nil {
		return nil, fmt.Errorf("failed to register database tracing: %w", err)
	}

	caps := DetectCapabilities(db)
	zl.Info("Database connected", zap.String("dialect", caps.Dialect), zap.Bool("on_conflict", caps.OnConflict))
	return &Database{DB: db, Caps: caps}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// Stats returns connection pool statistics
func (d *Database) Stats() (ConnectionStats, error) {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return ConnectionStats{}, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	stats := sqlDB.Stats()
	return ConnectionStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
	}, nil
}

// ConnectionStats holds database connection pool statistics
type ConnectionStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration
}

// Repositories bundles the non-transactional repositories and the
// transaction scope built over one connection
type Repositories struct {
	Scope     *GormTransactionScope
	SyncLogs  *GormSyncLogRepository
	Invoices  *GormInvoiceRepository
	Payments  *GormPaymentRepository
	Documents *GormDocumentStore
}

// Repositories wires every billing repository against d
func (d *Database) Repositories() Repositories {
	return Repositories{
		Scope:     NewGormTransactionScope(d.DB, d.Caps),
		SyncLogs:  NewGormSyncLogRepository(d.DB),
		Invoices:  NewGormInvoiceRepository(d.DB, d.Caps),
		Payments:  NewGormPaymentRepository(d.DB, d.Caps),
		Documents: NewGormDocumentStore(d.DB, d.Caps),
	}
}
