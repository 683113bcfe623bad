// Package integration runs the billing stack against a real PostgreSQL
// started with testcontainers.
package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/notaria/backend/internal/infrastructure/migration"
	"github.com/notaria/backend/internal/infrastructure/persistence"
	"github.com/notaria/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	gormlogger "gorm.io/gorm/logger"
)

var (
	sharedContainer    testcontainers.Container
	sharedContainerMu  sync.Mutex
	sharedContainerDSN string
)

// TestDB is a migrated database for one test
type TestDB struct {
	*persistence.Database
	DSN string
	t   *testing.T
}

// NewSharedTestDB connects to the package-wide container, starting and
// migrating it on first use. Tables are truncated before returning.
func NewSharedTestDB(t *testing.T) *TestDB {
	t.Helper()

	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	ctx := context.Background()
	if sharedContainer == nil {
		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("notaria_test"),
			tcpostgres.WithUsername("postgres"),
			tcpostgres.WithPassword("admin123"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
		require.NoError(t, err, "Failed to start PostgreSQL container")

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err, "Failed to get connection string")

		sharedContainer = container
		sharedContainerDSN = dsn

		db := connect(t, dsn)
		sqlDB, err := db.DB.DB()
		require.NoError(t, err)
		m, err := migration.NewEmbedded(sqlDB, nil)
		require.NoError(t, err, "Failed to create migrator")
		require.NoError(t, m.Up(), "Failed to run migrations")
		_ = db.Close()
	}

	tdb := &TestDB{Database: connect(t, sharedContainerDSN), DSN: sharedContainerDSN, t: t}
	tdb.CleanTables()
	t.Cleanup(func() { _ = tdb.Close() })
	return tdb
}

func connect(t *testing.T, dsn string) *persistence.Database {
	t.Helper()
	db, err := persistence.Open(gormpostgres.Open(dsn), nil, persistence.DatabaseOptions{
		LogLevel: gormlogger.Silent,
	})
	require.NoError(t, err, "Failed to connect to database")
	return db
}

// CleanTables truncates every billing table
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	for _, table := range []string{"document_payment_events", "payments", "invoices", "sync_logs", "documents"} {
		require.NoError(tdb.t, tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error)
	}
}

// CreateTestDocument inserts a document row and returns its ID
func (tdb *TestDB) CreateTestDocument(protocol, clientName, invoiceNumber string) uuid.UUID {
	tdb.t.Helper()
	now := time.Now()
	doc := models.DocumentModel{
		ProtocolNumber: protocol,
		ClientName:     clientName,
		InvoiceNumber:  invoiceNumber,
		Status:         "EN_FIRMA",
	}
	doc.ID = uuid.New()
	doc.CreatedAt, doc.UpdatedAt = now, now
	require.NoError(tdb.t, tdb.DB.Create(&doc).Error, "Failed to create test document")
	return doc.ID
}

// CleanupSharedContainer terminates the shared container; call it from TestMain
func CleanupSharedContainer() {
	sharedContainerMu.Lock()
	defer sharedContainerMu.Unlock()

	if sharedContainer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = sharedContainer.Terminate(ctx)
		sharedContainer = nil
		sharedContainerDSN = ""
	}
}
