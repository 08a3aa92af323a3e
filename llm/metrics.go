package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "patient-rag-assistant/llm"

// Metrics holds the OpenAI request instruments.
type Metrics struct {
	RequestCount    metric.Int64Counter
	RequestDuration metric.Float64Histogram
	ErrorCount      metric.Int64Counter
}

// NewMetrics creates the request instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	requestCount, err := meter.Int64Counter(
		"ai.openai.request.count",
		metric.WithDescription("Number of OpenAI requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"ai.openai.request.duration",
		metric.WithDescription("OpenAI request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"ai.openai.request.errors",
		metric.WithDescription("Number of OpenAI request errors"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCount:    requestCount,
		RequestDuration: requestDuration,
		ErrorCount:      errorCount,
	}, nil
}

// record is a no-op on a nil receiver.
func (m *Metrics) record(ctx context.Context, endpoint, model string, took time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.endpoint", endpoint),
		attribute.String("ai.model", model),
	)
	m.RequestCount.Add(ctx, 1, attrs)
	m.RequestDuration.Record(ctx, float64(took.Milliseconds()), attrs)
	if err != nil {
		m.ErrorCount.Add(ctx, 1, attrs)
	}
}
