package webhooks

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type ingestionMetrics struct {
	requests metric.Int64Counter
	accepted metric.Int64Counter
	rejected metric.Int64Counter
	mapping  metric.Int64Counter
}

func newIngestionMetrics() ingestionMetrics {
	meter := otel.Meter("github.com/fr0stylo/synclink/internal/webhooks")
	requests, _ := meter.Int64Counter("synclink.webhooks.requests")
	accepted, _ := meter.Int64Counter("synclink.webhooks.accepted")
	rejected, _ := meter.Int64Counter("synclink.webhooks.rejected")
	mapping, _ := meter.Int64Counter("synclink.webhooks.mapping")
	return ingestionMetrics{
		requests: requests,
		accepted: accepted,
		rejected: rejected,
		mapping:  mapping,
	}
}

func (m ingestionMetrics) recordRequest(ctx context.Context, provider string) {
	m.requests.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

func (m ingestionMetrics) recordAccepted(ctx context.Context, provider string) {
	m.accepted.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

func (m ingestionMetrics) recordRejected(ctx context.Context, provider, reason string) {
	m.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("reason", reason),
	))
}

func (m ingestionMetrics) recordMapping(ctx context.Context, provider, outcome string) {
	m.mapping.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}
