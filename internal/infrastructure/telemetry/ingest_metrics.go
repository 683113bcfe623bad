package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics set is built without a meter
var ErrMeterNil = errors.New("NewIngestMetrics: meter cannot be nil")

// IngestMetrics counts what billing runs did to the ledger. One
// observation is recorded per finished run, after its sync log is stored.
type IngestMetrics struct {
	records    *Counter
	runs       *Counter
	duration   *Histogram
	watchdog   *Counter
	links      *Counter
	superseded *Counter
}

// RunObservation summarizes one finished run
type RunObservation struct {
	Source        string
	Status        string
	Duration      time.Duration
	Created       int
	Updated       int
	Unchanged     int
	Skipped       int
	Errors        int
	Superseded    int
	WatchdogFired bool
	// LinksByTier counts documents linked during the run per confidence tier
	LinksByTier map[string]int
}

// NewIngestMetrics registers the billing run instruments on meter
func NewIngestMetrics(meter metric.Meter) (*IngestMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	m := &IngestMetrics{}
	var err error

	if m.records, err = NewCounter(meter, "notaria_billing_records_total",
		"Billing records settled, by source and outcome", "{record}"); err != nil {
		return nil, err
	}
	if m.runs, err = NewCounter(meter, "notaria_billing_runs_total",
		"Finished billing runs, by source and final status", "{run}"); err != nil {
		return nil, err
	}
	if m.duration, err = NewHistogram(meter, HistogramOpts{
		Name:        "notaria_billing_run_duration_seconds",
		Description: "Wall time of a billing run",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.watchdog, err = NewCounter(meter, "notaria_billing_watchdog_fired_total",
		"Runs cut short by the run timeout", "{run}"); err != nil {
		return nil, err
	}
	if m.links, err = NewCounter(meter, "notaria_billing_documents_linked_total",
		"Invoices linked to a notarial document, by confidence tier", "{link}"); err != nil {
		return nil, err
	}
	if m.superseded, err = NewCounter(meter, "notaria_billing_superseded_total",
		"Snapshot invoices superseded by a fresher feed", "{invoice}"); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRun records obs. A nil receiver records nothing.
func (m *IngestMetrics) RecordRun(ctx context.Context, obs RunObservation) {
	if m == nil {
		return
	}
	source := AttrSource.String(obs.Source)

	m.runs.Inc(ctx, source, AttrRunStatus.String(obs.Status))
	m.duration.RecordDuration(ctx, obs.Duration, source, AttrRunStatus.String(obs.Status))

	for outcome, n := range map[string]int{
		"created":   obs.Created,
		"updated":   obs.Updated,
		"unchanged": obs.Unchanged,
		"skipped":   obs.Skipped,
		"failed":    obs.Errors,
	} {
		m.records.Add(ctx, int64(n), source, AttrOutcome.String(outcome))
	}
	for tier, n := range obs.LinksByTier {
		m.links.Add(ctx, int64(n), source, AttrLinkTier.String(tier))
	}
	m.superseded.Add(ctx, int64(obs.Superseded), source)
	if obs.WatchdogFired {
		m.watchdog.Inc(ctx, source)
	}
}
