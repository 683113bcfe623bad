package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	appbilling "github.com/notaria/backend/internal/application/billing"
	"github.com/notaria/backend/internal/infrastructure/telemetry"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// FeedRunner ingests one feed file
type FeedRunner interface {
	Run(ctx context.Context, file appbilling.FeedFile) (*appbilling.RunSummary, error)
}

// WatcherConfig configures a FolderWatcher
type WatcherConfig struct {
	// Schedule is a standard five-field cron expression
	Schedule     string
	InboxDir     string
	ProcessedDir string
	FailedDir    string
	// MaxFileSize rejects larger files; zero disables the check
	MaxFileSize int64
	// MinFileAge skips files modified more recently, so exports still
	// being copied are left for the next tick
	MinFileAge time.Duration
}

// ScanResult counts what one pass over the inbox did
type ScanResult struct {
	Processed int
	Failed    int
	Deferred  int
}

// FolderWatcher periodically drains an inbox directory of Koinor exports.
// Completed runs (SUCCESS or PARTIAL) move the file to ProcessedDir;
// runs that never completed move it to FailedDir. Both use a
// yyyy-mm-dd subfolder.
type FolderWatcher struct {
	cfg    WatcherConfig
	runner FeedRunner
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	scanMu  sync.Mutex
	running bool
}

// NewFolderWatcher validates cfg and creates the directories
func NewFolderWatcher(cfg WatcherConfig, runner FeedRunner, logger *zap.Logger) (*FolderWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		return nil, fmt.Errorf("%w: runner is required", ErrInvalidConfig)
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, cfg.Schedule, err)
	}
	for name, dir := range map[string]string{"inbox": cfg.InboxDir, "processed": cfg.ProcessedDir, "failed": cfg.FailedDir} {
		if dir == "" {
			return nil, fmt.Errorf("%w: %s directory is required", ErrInvalidConfig, name)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", name, err)
		}
	}
	return &FolderWatcher{
		cfg:    cfg,
		runner: runner,
		logger: logger.Named("folder_watcher"),
		now:    time.Now,
	}, nil
}

// Start schedules scans until Stop. Overlapping ticks are skipped.
func (w *FolderWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return ErrAlreadyRunning
	}

	cl := cronLogger{w.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(w.cfg.Schedule, func() {
		if _, err := w.Scan(ctx); err != nil {
			w.logger.Error("Inbox scan failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Start()
	w.cron = c
	w.running = true

	w.logger.Info("Folder watcher started",
		zap.String("schedule", w.cfg.Schedule),
		zap.String("inbox", w.cfg.InboxDir))
	return nil
}

// Stop halts scheduling and waits for an in-flight scan, bounded by ctx
func (w *FolderWatcher) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	done := w.cron.Stop()
	w.mu.Unlock()

	select {
	case <-done.Done():
		w.logger.Info("Folder watcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scan processes every *.xml file currently in the inbox, oldest name first
func (w *FolderWatcher) Scan(ctx context.Context) (ScanResult, error) {
	w.scanMu.Lock()
	defer w.scanMu.Unlock()

	var res ScanResult
	files, err := w.inboxFiles()
	if err != nil {
		return res, err
	}
	if len(files) == 0 {
		return res, nil
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "folder_watcher", "scan",
		telemetry.WithAttribute("inbox.files", len(files)))
	defer span.End()

	for _, path := range files {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		switch w.ingest(ctx, path) {
		case outcomeProcessed:
			res.Processed++
		case outcomeFailed:
			res.Failed++
		default:
			res.Deferred++
		}
	}
	telemetry.SetAttributes(span, "inbox.processed", res.Processed, "inbox.failed", res.Failed)
	return res, nil
}

type fileOutcome int

const (
	outcomeDeferred fileOutcome = iota
	outcomeProcessed
	outcomeFailed
)

func (w *FolderWatcher) ingest(ctx context.Context, path string) fileOutcome {
	name := filepath.Base(path)
	log := w.logger.With(zap.String("file", name))

	info, err := os.Stat(path)
	if err != nil {
		log.Warn("Inbox file vanished", zap.Error(err))
		return outcomeDeferred
	}
	if w.cfg.MinFileAge > 0 && w.now().Sub(info.ModTime()) < w.cfg.MinFileAge {
		return outcomeDeferred
	}
	if w.cfg.MaxFileSize > 0 && info.Size() > w.cfg.MaxFileSize {
		log.Warn("Rejecting oversized feed file", zap.Int64("size", info.Size()), zap.Error(ErrFileTooLarge))
		return w.moveTo(path, w.cfg.FailedDir, outcomeFailed)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Error("Failed to read inbox file", zap.Error(err))
		return outcomeDeferred
	}

	summary, err := w.runner.Run(ctx, appbilling.FeedFile{Name: name, Data: data})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return outcomeDeferred
		}
		log.Error("Feed file run did not complete", zap.Error(err))
		return w.moveTo(path, w.cfg.FailedDir, outcomeFailed)
	}
	log.Info("Feed file ingested",
		zap.String("sync_id", summary.SyncID.String()),
		zap.String("status", string(summary.Status)),
		zap.Int("errors", summary.Errors))
	return w.moveTo(path, w.cfg.ProcessedDir, outcomeProcessed)
}

func (w *FolderWatcher) inboxFiles() ([]string, error) {
	entries, err := os.ReadDir(w.cfg.InboxDir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
			files = append(files, filepath.Join(w.cfg.InboxDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// moveTo renames path into a dated subfolder of dir, never overwriting
func (w *FolderWatcher) moveTo(path, dir string, outcome fileOutcome) fileOutcome {
	dest := filepath.Join(dir, w.now().Format("2006-01-02"))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		w.logger.Error("Failed to create destination", zap.String("dir", dest), zap.Error(err))
		return outcomeDeferred
	}

	name := filepath.Base(path)
	target := filepath.Join(dest, name)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(name)
		target = filepath.Join(dest, fmt.Sprintf("%s_%s%s", strings.TrimSuffix(name, ext), w.now().Format("150405.000000000"), ext))
	}
	if err := os.Rename(path, target); err != nil {
		w.logger.Error("Failed to move feed file", zap.String("target", target), zap.Error(err))
		return outcomeDeferred
	}
	return outcome
}

// cronLogger routes robfig/cron's logging into zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
