package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds OTel metric instruments for the generative UI engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	RenderCount          metric.Int64Counter
	GenerationsStarted   metric.Int64Counter
	GenerationsCompleted metric.Int64Counter
	GenerationsFailed    metric.Int64Counter
	GenerationDuration   metric.Float64Histogram
	ActiveStreams        metric.Int64UpDownCounter
	ActivityCalls        metric.Int64Counter
}

// NewMetrics creates the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("genui")

	renderCount, err := meter.Int64Counter("genui.render.count",
		metric.WithDescription("Number of render passes"),
	)
	if err != nil {
		return nil, err
	}

	started, err := meter.Int64Counter("genui.generation.started",
		metric.WithDescription("Generation tasks started or reconnected"),
	)
	if err != nil {
		return nil, err
	}

	completed, err := meter.Int64Counter("genui.generation.completed",
		metric.WithDescription("Generation tasks that produced a result"),
	)
	if err != nil {
		return nil, err
	}

	failed, err := meter.Int64Counter("genui.generation.failed",
		metric.WithDescription("Generation tasks that ended in error"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("genui.generation.duration_seconds",
		metric.WithDescription("Time from task start to completion"),
	)
	if err != nil {
		return nil, err
	}

	streams, err := meter.Int64UpDownCounter("genui.stream.active",
		metric.WithDescription("Open task event subscriptions"),
	)
	if err != nil {
		return nil, err
	}

	activityCalls, err := meter.Int64Counter("genui.activity.calls",
		metric.WithDescription("Number of activity invocations"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RenderCount:          renderCount,
		GenerationsStarted:   started,
		GenerationsCompleted: completed,
		GenerationsFailed:    failed,
		GenerationDuration:   duration,
		ActiveStreams:        streams,
		ActivityCalls:        activityCalls,
	}, nil
}

// RecordRender records one render pass.
func (m *Metrics) RecordRender(ctx context.Context) {
	if m == nil {
		return
	}
	m.RenderCount.Add(ctx, 1)
}

func (m *Metrics) GenerationStarted(ctx context.Context, provider, actionType string) {
	if m == nil {
		return
	}
	m.GenerationsStarted.Add(ctx, 1, generationAttrs(provider, actionType))
}

// GenerationCompleted records a successful task and its duration.
func (m *Metrics) GenerationCompleted(ctx context.Context, provider, actionType string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := generationAttrs(provider, actionType)
	m.GenerationsCompleted.Add(ctx, 1, attrs)
	m.GenerationDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) GenerationFailed(ctx context.Context, provider, actionType string) {
	if m == nil {
		return
	}
	m.GenerationsFailed.Add(ctx, 1, generationAttrs(provider, actionType))
}

func (m *Metrics) StreamOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveStreams.Add(ctx, 1)
}

func (m *Metrics) StreamClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.ActiveStreams.Add(ctx, -1)
}

// RecordActivity records an activity invocation.
func (m *Metrics) RecordActivity(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.ActivityCalls.Add(ctx, 1,
		metric.WithAttributes(attribute.String("activity", name)),
	)
}

func generationAttrs(provider, actionType string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("action_type", actionType),
	)
}
