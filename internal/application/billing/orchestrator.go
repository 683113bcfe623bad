package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/infrastructure/feed"
	"github.com/notaria/backend/internal/infrastructure/logger"
	"github.com/notaria/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Orchestrator defaults
const (
	DefaultChunkSize   = 50
	DefaultConcurrency = 4
	DefaultRunTimeout  = 10 * time.Minute
)

// ErrCodeRunTimeout marks records the watchdog cut off
const ErrCodeRunTimeout = "RUN_TIMEOUT"

// ArchiveStore keeps the raw bytes of every ingested file
type ArchiveStore interface {
	Archive(ctx context.Context, fileName string, data []byte) (string, error)
}

// OrchestratorConfig tunes batch dispatch
type OrchestratorConfig struct {
	ChunkSize       int
	Concurrency     int
	RunTimeout      time.Duration
	ErrorSampleSize int
}

func (c OrchestratorConfig) withDefaults() OrchestratorConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.ErrorSampleSize <= 0 || c.ErrorSampleSize > billing.MaxErrorSampleSize {
		c.ErrorSampleSize = billing.MaxErrorSampleSize
	}
	return c
}

// FeedFile is one uploaded or watched export. An empty Kind is sniffed.
type FeedFile struct {
	Name string
	Data []byte
	Kind feed.Kind
}

// Orchestrator runs one feed file end to end: audit log, archive, parse,
// chunked reconciliation under a watchdog, supersede, finalize.
type Orchestrator struct {
	parser     *feed.Parser
	reconciler *Reconciler
	logs       billing.SyncLogRepository
	archive    ArchiveStore
	cfg        OrchestratorConfig
	dispatcher *dispatcher
	metrics    *telemetry.IngestMetrics
	logger     *zap.Logger
}

// NewOrchestrator creates an Orchestrator. archive may be nil.
func NewOrchestrator(
	parser *feed.Parser,
	reconciler *Reconciler,
	logs billing.SyncLogRepository,
	archive ArchiveStore,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	logger = logger.Named("orchestrator")
	return &Orchestrator{
		parser:     parser,
		reconciler: reconciler,
		logs:       logs,
		archive:    archive,
		cfg:        cfg,
		dispatcher: newDispatcher(cfg.ChunkSize, cfg.Concurrency, logger),
		logger:     logger,
	}
}

// Run ingests one file. A structural failure returns an error wrapping
// billing.ErrStructural; record-level failures are reported in the summary.
// The SyncLog is persisted in every case.
func (o *Orchestrator) Run(ctx context.Context, file FeedFile) (*RunSummary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "billing_import", "run",
		telemetry.WithAttribute("file.name", file.Name),
		telemetry.WithAttribute("file.size", len(file.Data)),
	)
	defer span.End()

	fileType := billing.FileTypeUnknown
	if file.Kind != "" {
		fileType = billing.FileType(file.Kind)
	}
	syncLog, err := billing.NewSyncLog(file.Name, fileType)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	ctx = logger.WithSyncID(ctx, syncLog.ID.String())
	telemetry.SetAttribute(span, "sync.id", syncLog.ID.String())
	if err := o.logs.Save(ctx, syncLog); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: save sync log: %w", billing.ErrStorage, err)
	}

	if o.archive != nil {
		key, err := o.archive.Archive(ctx, file.Name, file.Data)
		if err != nil {
			o.logger.Warn("Failed to archive feed file", zap.String("file", file.Name), zap.Error(err))
		} else {
			syncLog.ArchiveKey = key
		}
	}

	batch, err := o.parser.Parse(file.Data, file.Name, file.Kind)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, o.abort(ctx, syncLog, err)
	}
	syncLog.SetFileType(billing.FileType(batch.Kind()))
	telemetry.SetAttribute(span, "file.kind", string(batch.Kind()))

	t := &tally{limit: o.cfg.ErrorSampleSize}
	for _, ge := range batch.Summary().Errors {
		t.addError(fmt.Sprintf("group %d", ge.Group), ge.Code, ge.Error())
	}
	// errors past the parser's own cap are still counted
	t.counters.Errors += batch.Summary().TotalErrors - len(batch.Summary().Errors)
	t.counters.TotalRows = batch.Summary().TotalErrors

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	var cut bool
	switch b := batch.(type) {
	case *feed.LedgerBatch:
		cut = o.dispatcher.run(runCtx, t, o.ledgerJobs(b, file.Name))
	case *feed.MovementBatch:
		cut = o.dispatcher.run(runCtx, t, o.movementJobs(b, file.Name))
	case *feed.SnapshotBatch:
		cut = o.dispatcher.run(runCtx, t, o.snapshotJobs(b, file.Name))
		if !cut {
			o.supersede(runCtx, t, b)
		}
	}

	if err := finishRun(ctx, o.logs, syncLog, t, o.logger); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	o.metrics.RecordRun(ctx, observeRun(string(syncLog.FileType), syncLog, t, cut))

	logger.L(ctx, o.logger).Info("Feed file reconciled",
		zap.String("file", file.Name),
		zap.String("kind", string(syncLog.FileType)),
		zap.String("status", string(syncLog.Status)),
		zap.Int("total", t.counters.TotalRows),
		zap.Int("created", t.counters.Created),
		zap.Int("updated", t.counters.Updated),
		zap.Int("errors", t.counters.Errors),
		zap.Int64("duration_ms", syncLog.DurationMs),
		zap.Bool("watchdog_fired", cut),
	)
	telemetry.SetAttributes(span, "run.status", string(syncLog.Status), "run.errors", t.counters.Errors)
	return summaryFromLog(syncLog), nil
}

// SetMetrics enables per-run metrics. Nil disables them.
func (o *Orchestrator) SetMetrics(m *telemetry.IngestMetrics) {
	o.metrics = m
}

// finishRun finalizes syncLog from t and persists it. A log that refuses to
// complete is failed instead, and it is saved either way.
func finishRun(ctx context.Context, logs billing.SyncLogRepository, syncLog *billing.SyncLog, t *tally, log *zap.Logger) error {
	finalizeErr := syncLog.Complete(t.counters, t.sample)
	if finalizeErr != nil {
		log.Error("Failed to complete sync log",
			zap.String("sync_id", syncLog.ID.String()),
			zap.String("status", string(syncLog.Status)),
			zap.Error(finalizeErr),
		)
		if err := syncLog.Fail(t.counters, t.sample); err != nil {
			log.Warn("Sync log already finalized, saving as is", zap.Error(err))
		}
	}
	if err := logs.Save(ctx, syncLog); err != nil {
		return errors.Join(finalizeErr, fmt.Errorf("%w: save sync log: %w", billing.ErrStorage, err))
	}
	return finalizeErr
}

func observeRun(source string, syncLog *billing.SyncLog, t *tally, cut bool) telemetry.RunObservation {
	obs := telemetry.RunObservation{
		Source:        source,
		Status:        string(syncLog.Status),
		Duration:      time.Duration(syncLog.DurationMs) * time.Millisecond,
		Created:       t.counters.Created,
		Updated:       t.counters.Updated,
		Unchanged:     t.counters.Unchanged,
		Skipped:       t.counters.Skipped,
		Errors:        t.counters.Errors,
		Superseded:    t.counters.Superseded,
		WatchdogFired: cut,
	}
	if len(t.links) > 0 {
		obs.LinksByTier = make(map[string]int, len(t.links))
		for tier, n := range t.links {
			obs.LinksByTier[string(tier)] = n
		}
	}
	return obs
}

// abort finalizes a run that never reached reconciliation
func (o *Orchestrator) abort(ctx context.Context, syncLog *billing.SyncLog, cause error) error {
	code := billing.ErrCodeStorage
	if feed.IsStructural(cause) || errors.Is(cause, feed.ErrEmptyFile) {
		code = billing.ErrCodeStructural
		cause = fmt.Errorf("%w: %w", billing.ErrStructural, cause)
	}
	sample := []billing.ErrorDetail{{Record: syncLog.FileName, Code: code, Message: cause.Error()}}
	if err := syncLog.Fail(billing.RunCounters{}, sample); err != nil {
		return err
	}
	if err := o.logs.Save(ctx, syncLog); err != nil {
		o.logger.Error("Failed to persist failed sync log", zap.String("file", syncLog.FileName), zap.Error(err))
	}
	o.logger.Error("Feed file rejected", zap.String("file", syncLog.FileName), zap.Error(cause))
	return cause
}

func (o *Orchestrator) ledgerJobs(b *feed.LedgerBatch, sourceFile string) []job {
	jobs := make([]job, 0, len(b.Payments)+len(b.CreditNotes))
	for _, p := range b.Payments {
		jobs = append(jobs, job{
			label:   p.ReceiptNumber,
			records: len(p.Allocations),
			run: func(ctx context.Context) []RecordResult {
				return o.reconciler.ReconcileLedgerPayment(ctx, p, sourceFile)
			},
		})
	}
	for _, note := range b.CreditNotes {
		jobs = append(jobs, job{
			label:   note.ReceiptNumber,
			records: 1,
			run: func(ctx context.Context) []RecordResult {
				return []RecordResult{o.reconciler.ApplyCreditNote(ctx, note)}
			},
		})
	}
	return jobs
}

func (o *Orchestrator) movementJobs(b *feed.MovementBatch, sourceFile string) []job {
	jobs := make([]job, 0, len(b.Invoices))
	for _, inv := range b.Invoices {
		jobs = append(jobs, job{
			label:   inv.Code,
			records: 1,
			run: func(ctx context.Context) []RecordResult {
				return []RecordResult{o.reconciler.ReconcileMovementInvoice(ctx, inv, sourceFile)}
			},
		})
	}
	return jobs
}

func (o *Orchestrator) snapshotJobs(b *feed.SnapshotBatch, sourceFile string) []job {
	jobs := make([]job, 0, len(b.Invoices))
	for _, inv := range b.Invoices {
		jobs = append(jobs, job{
			label:   inv.InvoiceNumberRaw,
			records: 1,
			run: func(ctx context.Context) []RecordResult {
				return []RecordResult{o.reconciler.ReconcileSnapshotInvoice(ctx, inv, sourceFile)}
			},
		})
	}
	return jobs
}

// supersede retires snapshot invoices absent from b. A snapshot that yielded
// no invoices is treated as unreliable and supersedes nothing.
func (o *Orchestrator) supersede(ctx context.Context, t *tally, b *feed.SnapshotBatch) {
	if len(b.Invoices) == 0 {
		o.logger.Warn("Snapshot yielded no invoices, skipping supersede", zap.String("file", b.Report.FileName))
		return
	}
	canon := o.reconciler.canon
	seen := make(map[string]struct{}, len(b.Invoices))
	for _, inv := range b.Invoices {
		seen[canon.Normalize(inv.InvoiceNumberRaw)] = struct{}{}
	}
	failedNumbers := make(map[string]struct{}, len(b.FailedNumbers))
	for _, n := range b.FailedNumbers {
		failedNumbers[canon.Normalize(n)] = struct{}{}
	}

	count, failures := o.reconciler.SupersedeAbsent(ctx, seen, failedNumbers, time.Now())
	t.counters.Superseded += count
	for _, f := range failures {
		t.addError(f.Record, errorCode(f.Err), errorMessage(f.Err))
	}
}
