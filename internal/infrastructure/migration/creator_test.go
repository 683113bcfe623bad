package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/notaria/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add invoices table", "add_invoices_table"},
		{"Add-Sync-Logs", "add_sync_logs"},
		{"add__payment__index", "add_payment_index"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"_leading_and_trailing_", "leading_and_trailing"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "create invoices", "Koinor invoices")
	require.NoError(t, err)
	assert.Equal(t, "000001", first.Version)
	assert.Equal(t, "000001_create_invoices.up.sql", filepath.Base(first.UpPath))

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: create_invoices")
	assert.Contains(t, string(up), "-- Description: Koinor invoices")

	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(Rollback)")

	second, err := CreateMigration(dir, "add index", "")
	require.NoError(t, err)
	assert.Equal(t, "000002", second.Version)
	content, err := os.ReadFile(second.UpPath)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "Description")
}

func TestCreateMigration_CreatesDirectory(t *testing.T) {
	nested := filepath.Join(t.TempDir(), "nested", "migrations")

	_, err := CreateMigration(nested, "init", "")
	require.NoError(t, err)

	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{
		"000002_add_payments.up.sql",
		"000002_add_payments.down.sql",
		"000001_init.up.sql",
		"000001_init.down.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("-- test"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "subdir.up.sql"), 0o755))

	list, err := ListMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init", "000002_add_payments"}, list)
}

func TestListMigrations_NonexistentDirectory(t *testing.T) {
	list, err := ListMigrations("/nonexistent/path/to/migrations")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListMigrationsFS_Embedded(t *testing.T) {
	list, err := ListMigrationsFS(migrations.FS, ".")
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.True(t, strings.HasPrefix(list[0], "000001_"))

	for _, name := range list {
		_, err := migrations.FS.Open(name + ".down.sql")
		assert.NoError(t, err, "missing rollback for %s", name)
	}
}
