package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	appbilling "github.com/notaria/backend/internal/application/billing"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubRunner struct {
	mu    sync.Mutex
	seen  []string
	fails map[string]error
}

func (r *stubRunner) Run(_ context.Context, file appbilling.FeedFile) (*appbilling.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, file.Name)
	if err := r.fails[file.Name]; err != nil {
		return nil, err
	}
	return &appbilling.RunSummary{SyncID: uuid.New(), FileName: file.Name, Status: billing.RunStatusSuccess}, nil
}

func newTestWatcher(t *testing.T, runner FeedRunner, mutate func(*WatcherConfig)) (*FolderWatcher, WatcherConfig) {
	t.Helper()
	root := t.TempDir()
	cfg := WatcherConfig{
		Schedule:     "*/5 * * * *",
		InboxDir:     filepath.Join(root, "inbox"),
		ProcessedDir: filepath.Join(root, "processed"),
		FailedDir:    filepath.Join(root, "failed"),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := NewFolderWatcher(cfg, runner, zaptest.NewLogger(t))
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2026, 1, 28, 10, 0, 0, 0, time.Local) }
	return w, cfg
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestNewFolderWatcher_Validation(t *testing.T) {
	runner := &stubRunner{}

	_, err := NewFolderWatcher(WatcherConfig{Schedule: "not a cron", InboxDir: "a", ProcessedDir: "b", FailedDir: "c"}, runner, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewFolderWatcher(WatcherConfig{Schedule: "* * * * *", ProcessedDir: "b", FailedDir: "c"}, runner, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewFolderWatcher(WatcherConfig{Schedule: "* * * * *"}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestFolderWatcher_Scan(t *testing.T) {
	runner := &stubRunner{fails: map[string]error{
		"broken.xml": billing.ErrStructural,
	}}
	w, cfg := newTestWatcher(t, runner, nil)

	writeFile(t, cfg.InboxDir, "b_estado.xml", "<x/>")
	writeFile(t, cfg.InboxDir, "a_cxc.XML", "<x/>")
	writeFile(t, cfg.InboxDir, "broken.xml", "garbage")
	writeFile(t, cfg.InboxDir, "notes.txt", "ignored")

	res, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Processed: 2, Failed: 1}, res)
	assert.Equal(t, []string{"a_cxc.XML", "b_estado.xml", "broken.xml"}, runner.seen)

	day := "2026-01-28"
	assert.FileExists(t, filepath.Join(cfg.ProcessedDir, day, "a_cxc.XML"))
	assert.FileExists(t, filepath.Join(cfg.ProcessedDir, day, "b_estado.xml"))
	assert.FileExists(t, filepath.Join(cfg.FailedDir, day, "broken.xml"))
	assert.FileExists(t, filepath.Join(cfg.InboxDir, "notes.txt"))

	t.Run("empty inbox is a no-op", func(t *testing.T) {
		res, err := w.Scan(context.Background())
		require.NoError(t, err)
		assert.Zero(t, res)
	})

	t.Run("same name processed twice is not overwritten", func(t *testing.T) {
		writeFile(t, cfg.InboxDir, "b_estado.xml", "<y/>")
		_, err := w.Scan(context.Background())
		require.NoError(t, err)
		entries, err := os.ReadDir(filepath.Join(cfg.ProcessedDir, day))
		require.NoError(t, err)
		assert.Len(t, entries, 3)
	})
}

func TestFolderWatcher_Limits(t *testing.T) {
	runner := &stubRunner{}
	w, cfg := newTestWatcher(t, runner, func(c *WatcherConfig) {
		c.MaxFileSize = 8
		c.MinFileAge = time.Minute
	})

	writeFile(t, cfg.InboxDir, "big.xml", "<a>0123456789</a>")
	writeFile(t, cfg.InboxDir, "fresh.xml", "<a/>")
	old := w.now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(cfg.InboxDir, "big.xml"), old, old))

	res, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Failed: 1, Deferred: 1}, res)
	assert.Empty(t, runner.seen, "oversized and fresh files never reach the runner")
	assert.FileExists(t, filepath.Join(cfg.InboxDir, "fresh.xml"))
}

func TestFolderWatcher_CancelledRunStaysInInbox(t *testing.T) {
	runner := &stubRunner{fails: map[string]error{"a.xml": context.Canceled}}
	w, cfg := newTestWatcher(t, runner, nil)
	writeFile(t, cfg.InboxDir, "a.xml", "<x/>")

	res, err := w.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deferred)
	assert.FileExists(t, filepath.Join(cfg.InboxDir, "a.xml"))
}

func TestFolderWatcher_StartStop(t *testing.T) {
	w, _ := newTestWatcher(t, &stubRunner{}, nil)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	assert.True(t, errors.Is(w.Start(ctx), ErrAlreadyRunning))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	assert.NoError(t, w.Stop(stopCtx), "stopping twice is harmless")
}
