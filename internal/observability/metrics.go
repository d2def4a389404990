package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/apresai/newsletter-podcaster"

// Metrics are the pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	jobs     metric.Int64Counter
	units    metric.Int64Counter
	duration metric.Float64Histogram
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	jobs, err := m.Int64Counter("podcast.jobs",
		metric.WithDescription("Jobs that reached a terminal state"))
	if err != nil {
		return nil, fmt.Errorf("create jobs counter: %w", err)
	}
	units, err := m.Int64Counter("podcast.stage.units",
		metric.WithDescription("Script and audio units processed"))
	if err != nil {
		return nil, fmt.Errorf("create units counter: %w", err)
	}
	duration, err := m.Float64Histogram("podcast.stage.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent per stage unit"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return &Metrics{jobs: jobs, units: units, duration: duration}, nil
}

// JobFinished counts a terminal job.
func (m *Metrics) JobFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// UnitDone records one stage unit and its latency.
func (m *Metrics) UnitDone(ctx context.Context, stage string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.units.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome)))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("stage", stage)))
}
