package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/klokku/calaudit/internal/event_bus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrMode      = "mode"
	attrResult    = "result"
	attrRetried   = "retried"
	attrOutcome   = "outcome"
	attrOperation = "operation"
	attrStatus    = "status"
)

// Metrics records sync and provider metrics. The zero value is a no-op recorder.
type Metrics struct {
	syncRunsTotal         metric.Int64Counter
	syncDuration          metric.Float64Histogram
	eventsReconciledTotal metric.Int64Counter
	channelsCreatedTotal  metric.Int64Counter

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.syncRunsTotal, err = meter.Int64Counter(
		"calaudit.sync.runs",
		metric.WithDescription("Number of calendar sync attempts"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync runs counter: %w", err)
	}

	m.syncDuration, err = meter.Float64Histogram(
		"calaudit.sync.duration",
		metric.WithDescription("Calendar sync duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync duration histogram: %w", err)
	}

	m.eventsReconciledTotal, err = meter.Int64Counter(
		"calaudit.events.reconciled",
		metric.WithDescription("Number of event records reconciled, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events reconciled counter: %w", err)
	}

	m.channelsCreatedTotal, err = meter.Int64Counter(
		"calaudit.watch_channels.created",
		metric.WithDescription("Number of push notification channels created"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create channels counter: %w", err)
	}

	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations",
		metric.WithDescription("Number of Google Calendar API calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google api counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration",
		metric.WithDescription("Google Calendar API call duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google api histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordSync(ctx context.Context, s event_bus.SyncCompleted) {
	if m == nil || m.syncRunsTotal == nil {
		return
	}

	mode := "incremental"
	if s.Full {
		mode = "full"
	}
	result := "success"
	if s.Err != nil {
		result = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String(attrMode, mode),
		attribute.String(attrResult, result),
		attribute.String(attrRetried, strconv.FormatBool(s.Retried)),
	)
	m.syncRunsTotal.Add(ctx, 1, attrs)
	m.syncDuration.Record(ctx, s.Duration.Seconds(), attrs)

	outcomes := map[string]int{
		"created":    s.Created,
		"updated":    s.Updated,
		"associated": s.Associated,
		"deleted":    s.Deleted,
		"skipped":    s.Skipped,
		"failed":     s.Failed,
	}
	for outcome, count := range outcomes {
		if count == 0 {
			continue
		}
		m.eventsReconciledTotal.Add(ctx, int64(count), metric.WithAttributes(attribute.String(attrOutcome, outcome)))
	}
}

func (m *Metrics) RecordChannelCreated(ctx context.Context) {
	if m == nil || m.channelsCreatedTotal == nil {
		return
	}
	m.channelsCreatedTotal.Add(ctx, 1)
}

// RecordGoogleAPIOperation records one provider call. Status is "success" or "error".
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// Subscribe feeds sync and channel events from the bus into the recorder.
func (m *Metrics) Subscribe(bus *event_bus.EventBus) {
	event_bus.SubscribeTyped(bus, event_bus.SyncCompletedEvent, func(e event_bus.EventT[event_bus.SyncCompleted]) error {
		m.RecordSync(e.Context(), e.Data)
		return nil
	})
	event_bus.SubscribeTyped(bus, event_bus.ChannelCreatedEvent, func(e event_bus.EventT[event_bus.ChannelCreated]) error {
		m.RecordChannelCreated(e.Context())
		return nil
	})
}
