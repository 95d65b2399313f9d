// Package telemetry provides OpenTelemetry instrumentation for the publisher.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the synchronization meter
const SyncMetricsMeterName = "chronicle/docsync/sync"

// SyncMetrics holds the OpenTelemetry instruments for publish sessions
type SyncMetrics struct {
	registrations metric.Int64Counter
	nodesCreated  metric.Int64Counter
	conflicts     metric.Int64Counter
	duration      metric.Float64Histogram
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	registrations, err := meter.Int64Counter(
		"docsync_registrations_total",
		metric.WithDescription("Documents registered against the published store, by outcome"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, err
	}

	nodesCreated, err := meter.Int64Counter(
		"docsync_nodes_created_total",
		metric.WithDescription("Nodes created in the published store"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, err
	}

	conflicts, err := meter.Int64Counter(
		"docsync_conflicts_total",
		metric.WithDescription("Publish sessions aborted by an identifier/path conflict"),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"docsync_registration_duration_seconds",
		metric.WithDescription("Duration of RegisterDocument calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		registrations: registrations,
		nodesCreated:  nodesCreated,
		conflicts:     conflicts,
		duration:      duration,
	}, nil
}

// RecordRegistration counts one document registration with its outcome
func (m *SyncMetrics) RecordRegistration(ctx context.Context, locale, outcome string) {
	if m == nil || m.registrations == nil {
		return
	}
	m.registrations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("locale", locale),
		attribute.String("outcome", outcome),
	))
}

// RecordNodesCreated counts published nodes created for a document or its ancestors
func (m *SyncMetrics) RecordNodesCreated(ctx context.Context, source string, count int) {
	if m == nil || m.nodesCreated == nil || count <= 0 {
		return
	}
	m.nodesCreated.Add(ctx, int64(count), metric.WithAttributes(attribute.String("source", source)))
}

// RecordConflict counts a conflict that aborted a registration
func (m *SyncMetrics) RecordConflict(ctx context.Context, locale string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("locale", locale)))
}

// RecordDuration records how long a RegisterDocument call took
func (m *SyncMetrics) RecordDuration(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}
