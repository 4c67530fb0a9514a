package scheduler

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type syncMetrics struct {
	runs     metric.Int64Counter
	duration metric.Float64Histogram
}

func newSyncMetrics() syncMetrics {
	meter := otel.Meter("github.com/fr0stylo/synclink/internal/scheduler")
	runs, _ := meter.Int64Counter("synclink.sync.runs")
	duration, _ := meter.Float64Histogram("synclink.sync.duration_ms")
	return syncMetrics{runs: runs, duration: duration}
}

func (m syncMetrics) record(ctx context.Context, run SyncRun) {
	attrs := metric.WithAttributes(
		attribute.String("provider", run.Ref.IntegrationID),
		attribute.String("outcome", string(run.Outcome)),
	)
	m.runs.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(run.FinishedAt.Sub(run.StartedAt).Microseconds())/1000, attrs)
}
