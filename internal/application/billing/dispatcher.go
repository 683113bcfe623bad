package billing

import (
	"context"
	"errors"

	"github.com/notaria/backend/internal/domain/billing"
	"github.com/notaria/backend/internal/domain/shared"
	"github.com/notaria/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// job settles a unit of records and reports one result per record
type job struct {
	label   string
	records int
	run     func(ctx context.Context) []RecordResult
}

// tally accumulates counters and the error sample for one run
type tally struct {
	counters billing.RunCounters
	sample   []billing.ErrorDetail
	limit    int
	links    map[billing.LinkConfidence]int
}

func (t *tally) addError(record, code, message string) {
	t.counters.Errors++
	if len(t.sample) < t.limit {
		t.sample = append(t.sample, billing.ErrorDetail{Record: record, Code: code, Message: message})
	}
}

func (t *tally) add(r RecordResult) {
	t.counters.TotalRows++
	if r.Linked {
		t.counters.DocumentsLinked++
		if r.LinkTier != billing.LinkConfidenceNone {
			if t.links == nil {
				t.links = make(map[billing.LinkConfidence]int)
			}
			t.links[r.LinkTier]++
		}
	}
	switch r.Outcome {
	case OutcomeCreated:
		t.counters.Created++
	case OutcomeUpdated:
		t.counters.Updated++
	case OutcomeUnchanged:
		t.counters.Unchanged++
	case OutcomeSkipped:
		t.counters.Skipped++
	default:
		t.addError(r.Record, errorCode(r.Err), errorMessage(r.Err))
	}
}

func errorCode(err error) string {
	var de *shared.DomainError
	switch {
	case err == nil:
		return billing.ErrCodeStorage
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrCodeRunTimeout
	case errors.Is(err, billing.ErrStorage):
		return billing.ErrCodeStorage
	case errors.As(err, &de):
		return de.Code
	}
	return billing.ErrCodeStorage
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown failure"
	}
	return err.Error()
}

// dispatcher runs jobs in fixed-size chunks. Jobs inside a chunk run
// concurrently up to the concurrency limit and settle independently.
type dispatcher struct {
	chunkSize   int
	concurrency int
	logger      *zap.Logger
}

func newDispatcher(chunkSize, concurrency int, logger *zap.Logger) *dispatcher {
	return &dispatcher{chunkSize: chunkSize, concurrency: concurrency, logger: logger}
}

// run returns true when ctx expired before every job was reached.
// Records of unreached jobs are counted as errors.
func (d *dispatcher) run(ctx context.Context, t *tally, jobs []job) bool {
	for start := 0; start < len(jobs); start += d.chunkSize {
		end := min(start+d.chunkSize, len(jobs))

		if err := ctx.Err(); err != nil {
			for _, j := range jobs[start:] {
				for range j.records {
					t.counters.TotalRows++
					t.addError(j.label, ErrCodeRunTimeout, "run timed out before the record was processed")
				}
			}
			d.logger.Warn("Run watchdog fired", zap.Int("jobs_not_reached", len(jobs)-start))
			telemetry.AddEvent(trace.SpanFromContext(ctx), "watchdog_fired", "jobs_not_reached", len(jobs)-start)
			return true
		}

		chunkCtx, span := telemetry.StartServiceSpan(ctx, "billing_import", "chunk",
			telemetry.WithAttribute("chunk.start", start),
			telemetry.WithAttribute("chunk.size", end-start),
		)
		results := make([][]RecordResult, end-start)
		var g errgroup.Group
		g.SetLimit(d.concurrency)
		for i, j := range jobs[start:end] {
			g.Go(func() error {
				results[i] = j.run(chunkCtx)
				return nil
			})
		}
		_ = g.Wait()
		span.End()

		for _, rs := range results {
			for _, r := range rs {
				t.add(r)
			}
		}
	}
	return ctx.Err() != nil
}
