package tracing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records the dispatcher's operational metrics through an
// OpenTelemetry meter, exported in production via the Prometheus reader
// wired up in Provider. It implements dispatch.Metrics structurally; the
// dispatch package has no import-time dependency on this one.
type MetricsCollector struct {
	meter metric.Meter

	submitted         metric.Int64Counter
	outcomes          metric.Int64Counter
	salvages          metric.Int64Counter
	placementFailures metric.Int64Counter
	taskDuration      metric.Float64Histogram

	mu           sync.RWMutex
	activeCount  int64
	standbyCount int64
	avgLoadPct   float64
	queueDepth   int64
}

// NewMetricsCollector creates a new metrics collector using the given meter provider
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("mcpdispatch")

	mc := &MetricsCollector{meter: meter}

	var err error

	mc.submitted, err = meter.Int64Counter(
		"mcpdispatch_tasks_submitted_total",
		metric.WithDescription("Total number of tasks submitted to the dispatcher"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	mc.outcomes, err = meter.Int64Counter(
		"mcpdispatch_tasks_completed_total",
		metric.WithDescription("Total number of tasks resolved, by outcome"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	mc.salvages, err = meter.Int64Counter(
		"mcpdispatch_salvages_total",
		metric.WithDescription("Total number of workers the health probe found dead and salvaged"),
		metric.WithUnit("{worker}"),
	)
	if err != nil {
		return nil, err
	}

	mc.placementFailures, err = meter.Int64Counter(
		"mcpdispatch_placement_failures_total",
		metric.WithDescription("Total number of submissions that could not be placed on any worker"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	mc.taskDuration, err = meter.Float64Histogram(
		"mcpdispatch_task_duration_seconds",
		metric.WithDescription("Time spent executing a task on a worker's session"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	if _, err = meter.Int64ObservableGauge(
		"mcpdispatch_active_workers",
		metric.WithDescription("Number of active workers across both lanes"),
		metric.WithUnit("{worker}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			mc.mu.RLock()
			defer mc.mu.RUnlock()
			observer.Observe(mc.activeCount)
			return nil
		}),
	); err != nil {
		return nil, err
	}

	if _, err = meter.Int64ObservableGauge(
		"mcpdispatch_standby_workers",
		metric.WithDescription("Number of standby workers"),
		metric.WithUnit("{worker}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			mc.mu.RLock()
			defer mc.mu.RUnlock()
			observer.Observe(mc.standbyCount)
			return nil
		}),
	); err != nil {
		return nil, err
	}

	if _, err = meter.Float64ObservableGauge(
		"mcpdispatch_avg_load_pct",
		metric.WithDescription("Average active-worker load as a percentage of max_load_per_worker"),
		metric.WithUnit("%"),
		metric.WithFloat64Callback(func(_ context.Context, observer metric.Float64Observer) error {
			mc.mu.RLock()
			defer mc.mu.RUnlock()
			observer.Observe(mc.avgLoadPct)
			return nil
		}),
	); err != nil {
		return nil, err
	}

	if _, err = meter.Int64ObservableGauge(
		"mcpdispatch_salvage_queue_depth",
		metric.WithDescription("Number of tasks waiting for salvage re-placement"),
		metric.WithUnit("{task}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			mc.mu.RLock()
			defer mc.mu.RUnlock()
			observer.Observe(mc.queueDepth)
			return nil
		}),
	); err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordSubmitted implements dispatch.Metrics.
func (mc *MetricsCollector) RecordSubmitted() {
	mc.submitted.Add(context.Background(), 1)
}

// RecordOutcome implements dispatch.Metrics.
func (mc *MetricsCollector) RecordOutcome(outcome string) {
	mc.outcomes.Add(context.Background(), 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordSalvage implements dispatch.Metrics.
func (mc *MetricsCollector) RecordSalvage() {
	mc.salvages.Add(context.Background(), 1)
}

// RecordPlacementFailure implements dispatch.Metrics.
func (mc *MetricsCollector) RecordPlacementFailure() {
	mc.placementFailures.Add(context.Background(), 1)
}

// RecordTaskDuration implements dispatch.Metrics.
func (mc *MetricsCollector) RecordTaskDuration(seconds float64) {
	mc.taskDuration.Record(context.Background(), seconds)
}

// SetGauges implements dispatch.Metrics.
func (mc *MetricsCollector) SetGauges(activeCount, standbyCount int, avgLoadPct float64, queueDepth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.activeCount = int64(activeCount)
	mc.standbyCount = int64(standbyCount)
	mc.avgLoadPct = avgLoadPct
	mc.queueDepth = int64(queueDepth)
}
