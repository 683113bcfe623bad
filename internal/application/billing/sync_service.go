package billing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/notaria/backend/internal/infrastructure/logger"
	"github.com/notaria/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	agentSyncFileName = "koinor-sync-agent"

	// DefaultStatusWindow is how recent a good run must be to report healthy
	DefaultStatusWindow = 20 * time.Minute
	// DefaultIdempotencyTTL bounds how long a submission key is remembered
	DefaultIdempotencyTTL = 24 * time.Hour
)

// ErrDuplicateSubmission is returned when an Idempotency-Key was already processed
var ErrDuplicateSubmission = shared.NewDomainError("DUPLICATE_SUBMISSION", "Submission already processed")

// SyncConfig tunes the agent sync endpoint
type SyncConfig struct {
	MaxRecords      int
	ChunkSize       int
	Concurrency     int
	RunTimeout      time.Duration
	StatusWindow    time.Duration
	ErrorSampleSize int
	IdempotencyTTL  time.Duration
	DefaultHistory  int
	MaxHistory      int
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.MaxRecords <= 0 {
		c.MaxRecords = MaxRecordsPerRequest
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = DefaultRunTimeout
	}
	if c.StatusWindow <= 0 {
		c.StatusWindow = DefaultStatusWindow
	}
	if c.ErrorSampleSize <= 0 || c.ErrorSampleSize > billing.MaxErrorSampleSize {
		c.ErrorSampleSize = billing.MaxErrorSampleSize
	}
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = DefaultIdempotencyTTL
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = MaxHistoryLimit
	}
	if c.DefaultHistory <= 0 || c.DefaultHistory > c.MaxHistory {
		c.DefaultHistory = min(DefaultHistoryLimit, c.MaxHistory)
	}
	return c
}

// SyncService receives pushes from the Koinor sync agent and reports run health
type SyncService struct {
	reconciler  *Reconciler
	logs        billing.SyncLogRepository
	idempotency shared.IdempotencyStore
	validate    *validator.Validate
	dispatcher  *dispatcher
	cfg         SyncConfig
	metrics     *telemetry.IngestMetrics
	logger      *zap.Logger
}

// NewSyncService creates a SyncService. idempotency may be nil.
func NewSyncService(
	reconciler *Reconciler,
	logs billing.SyncLogRepository,
	idempotency shared.IdempotencyStore,
	cfg SyncConfig,
	logger *zap.Logger,
) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	logger = logger.Named("sync")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &SyncService{
		reconciler:  reconciler,
		logs:        logs,
		idempotency: idempotency,
		validate:    v,
		dispatcher:  newDispatcher(cfg.ChunkSize, cfg.Concurrency, logger),
		cfg:         cfg,
		logger:      logger,
	}
}

// Sync reconciles one agent submission. Invalid records are counted as
// errors; they never reject the submission as a whole.
func (s *SyncService) Sync(ctx context.Context, req SyncRequest, idempotencyKey string) (*RunSummary, error) {
	records := req.AllRecords()
	if len(records) > s.cfg.MaxRecords {
		return nil, shared.NewDomainErrorf(billing.ErrCodeValidation,
			"At most %d records per request, got %d", s.cfg.MaxRecords, len(records))
	}

	if key := strings.TrimSpace(idempotencyKey); key != "" && s.idempotency != nil {
		fresh, err := s.idempotency.MarkProcessed(ctx, "billing:sync:"+key, s.cfg.IdempotencyTTL)
		if err != nil {
			s.logger.Warn("Idempotency store unavailable, processing anyway", zap.Error(err))
		} else if !fresh {
			return nil, ErrDuplicateSubmission
		}
	}

	syncLog, err := billing.NewSyncLog(agentSyncFileName, billing.FileTypeAgent)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithSyncID(ctx, syncLog.ID.String())
	syncLog.AgentVersion = req.AgentVersion
	if started := parseAgentTime(req.SyncStartedAt); started != nil {
		syncLog.StartedAt = *started
	}
	if err := s.logs.Save(ctx, syncLog); err != nil {
		return nil, fmt.Errorf("%w: save sync log: %w", billing.ErrStorage, err)
	}

	jobs := make([]job, 0, len(records))
	for _, rec := range records {
		jobs = append(jobs, job{
			label:   rec.InvoiceNumber,
			records: 1,
			run: func(ctx context.Context) []RecordResult {
				if err := s.validateRecord(rec); err != nil {
					return []RecordResult{failed(rec.InvoiceNumber, err)}
				}
				return []RecordResult{s.reconciler.ReconcileAgentRecord(ctx, rec)}
			},
		})
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	t := &tally{limit: s.cfg.ErrorSampleSize}
	cut := s.dispatcher.run(runCtx, t, jobs)

	if err := finishRun(ctx, s.logs, syncLog, t, s.logger); err != nil {
		return nil, err
	}
	s.metrics.RecordRun(ctx, observeRun(string(billing.FileTypeAgent), syncLog, t, cut))

	logger.L(ctx, s.logger).Info("Agent sync completed",
		zap.String("agent_version", req.AgentVersion),
		zap.String("status", string(syncLog.Status)),
		zap.Int("received", len(records)),
		zap.Int("created", t.counters.Created),
		zap.Int("updated", t.counters.Updated),
		zap.Int("errors", t.counters.Errors),
		zap.Int64("duration_ms", syncLog.DurationMs),
		zap.Bool("watchdog_fired", cut),
	)
	return summaryFromLog(syncLog), nil
}

// SetMetrics enables per-run metrics. Nil disables them.
func (s *SyncService) SetMetrics(m *telemetry.IngestMetrics) {
	s.metrics = m
}

func (s *SyncService) validateRecord(rec AgentRecord) error {
	err := s.validate.Struct(rec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return shared.NewDomainError(billing.ErrCodeValidation, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return shared.NewDomainError(billing.ErrCodeValidation, strings.Join(msgs, "; "))
}

// Status reports the most recent run and whether ingestion looks healthy
func (s *SyncService) Status(ctx context.Context, now time.Time) (*SyncStatus, error) {
	last, err := s.logs.FindLatest(ctx)
	if errors.Is(err, shared.ErrNotFound) {
		return &SyncStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	resp := ToSyncLogResponse(last)
	minutes := last.MinutesSince(now)
	return &SyncStatus{
		LastSync:             &resp,
		MinutesSinceLastSync: &minutes,
		Healthy:              now.Sub(completedOrStarted(last)) < s.cfg.StatusWindow && last.Status.IsHealthy(),
	}, nil
}

// History returns the newest runs, limit clamped to [1, MaxHistory]
func (s *SyncService) History(ctx context.Context, limit int) ([]SyncLogResponse, error) {
	if limit <= 0 {
		limit = s.cfg.DefaultHistory
	}
	limit = min(limit, s.cfg.MaxHistory)
	logs, err := s.logs.FindRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SyncLogResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, ToSyncLogResponse(l))
	}
	return out, nil
}

func completedOrStarted(l *billing.SyncLog) time.Time {
	if l.CompletedAt != nil {
		return *l.CompletedAt
	}
	return l.StartedAt
}
