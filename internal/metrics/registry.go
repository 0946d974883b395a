package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Registry holds all domain-specific metrics for the application
type Registry struct {
	meter metric.Meter

	// Pipeline metrics
	RunDuration metric.Float64Histogram
	RunCounter  metric.Int64Counter
	ActiveRuns  metric.Int64ObservableGauge
	SkippedRuns metric.Int64Counter

	// Detection metrics
	FlaggedPixels       metric.Int64Histogram
	DetectionConfidence metric.Float64Histogram
	AdvisoryCounter     metric.Int64Counter

	// Violation metrics
	ViolationEventCounter metric.Int64Counter
	OpenViolations        metric.Int64ObservableGauge

	// Alert delivery metrics
	AlertDeliveryCounter metric.Int64Counter

	// State for observable metrics
	mu             sync.RWMutex
	activeRuns     int64
	openViolations int64
}

// NewRegistry creates a new metrics registry with all domain metrics
func NewRegistry(meterName string) (*Registry, error) {
	r := &Registry{
		meter: otel.Meter(meterName),
	}

	if err := r.initPipelineMetrics(); err != nil {
		return nil, err
	}
	if err := r.initDetectionMetrics(); err != nil {
		return nil, err
	}
	if err := r.initViolationMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) initPipelineMetrics() error {
	var err error

	r.RunDuration, err = r.meter.Float64Histogram(
		"exmon.pipeline.run_duration",
		metric.WithDescription("End-to-end duration of a pipeline run in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return err
	}

	r.RunCounter, err = r.meter.Int64Counter(
		"exmon.pipeline.runs_total",
		metric.WithDescription("Total number of pipeline runs by outcome"),
	)
	if err != nil {
		return err
	}

	r.SkippedRuns, err = r.meter.Int64Counter(
		"exmon.pipeline.skipped_total",
		metric.WithDescription("Total number of runs skipped for lack of a usable scene"),
	)
	if err != nil {
		return err
	}

	r.ActiveRuns, err = r.meter.Int64ObservableGauge(
		"exmon.pipeline.active_runs",
		metric.WithDescription("Number of pipeline runs currently in flight"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.activeRuns)
			return nil
		}),
	)

	return err
}

func (r *Registry) initDetectionMetrics() error {
	var err error

	r.FlaggedPixels, err = r.meter.Int64Histogram(
		"exmon.detection.flagged_pixels",
		metric.WithDescription("Consensus-flagged pixel count per run"),
		metric.WithExplicitBucketBoundaries(0, 1, 10, 50, 100, 500, 1000, 5000, 10000),
	)
	if err != nil {
		return err
	}

	r.DetectionConfidence, err = r.meter.Float64Histogram(
		"exmon.detection.confidence",
		metric.WithDescription("Detection confidence per run"),
		metric.WithExplicitBucketBoundaries(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9),
	)
	if err != nil {
		return err
	}

	r.AdvisoryCounter, err = r.meter.Int64Counter(
		"exmon.detection.advisory_total",
		metric.WithDescription("Total number of runs below the confidence minimum"),
	)

	return err
}

func (r *Registry) initViolationMetrics() error {
	var err error

	r.ViolationEventCounter, err = r.meter.Int64Counter(
		"exmon.violation.events_total",
		metric.WithDescription("Total number of violation lifecycle events by kind and severity"),
	)
	if err != nil {
		return err
	}

	r.OpenViolations, err = r.meter.Int64ObservableGauge(
		"exmon.violation.open_total",
		metric.WithDescription("Number of currently open violations"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.openViolations)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.AlertDeliveryCounter, err = r.meter.Int64Counter(
		"exmon.alerts.deliveries_total",
		metric.WithDescription("Total number of alert deliveries by channel and result"),
	)

	return err
}

// RecordRun records a completed pipeline run with its outcome label.
func (r *Registry) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	r.RunCounter.Add(ctx, 1, attrs)
	r.RunDuration.Record(ctx, duration.Seconds(), attrs)
	if outcome == "skipped" {
		r.SkippedRuns.Add(ctx, 1)
	}
}

// RecordDetection records a run's flagged pixel count and confidence.
func (r *Registry) RecordDetection(ctx context.Context, areaID uuid.UUID, flaggedPixels int, confidence float64) {
	attrs := metric.WithAttributes(attribute.String("area_id", areaID.String()))
	r.FlaggedPixels.Record(ctx, int64(flaggedPixels), attrs)
	r.DetectionConfidence.Record(ctx, confidence, attrs)
}

// RecordAdvisory counts a run whose confidence fell below the minimum.
func (r *Registry) RecordAdvisory(ctx context.Context) {
	r.AdvisoryCounter.Add(ctx, 1)
}

// RecordViolationEvent counts one lifecycle event.
func (r *Registry) RecordViolationEvent(ctx context.Context, kind, severity string) {
	r.ViolationEventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("severity", severity),
	))
}

// RecordAlertDelivery counts one alert delivery attempt.
func (r *Registry) RecordAlertDelivery(ctx context.Context, channel string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	r.AlertDeliveryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("result", result),
	))
}

// RunStarted increments the in-flight run gauge.
func (r *Registry) RunStarted() {
	r.mu.Lock()
	r.activeRuns++
	r.mu.Unlock()
}

// RunFinished decrements the in-flight run gauge.
func (r *Registry) RunFinished() {
	r.mu.Lock()
	r.activeRuns--
	r.mu.Unlock()
}

// SetOpenViolations updates the open violation gauge from the store.
func (r *Registry) SetOpenViolations(count int64) {
	r.mu.Lock()
	r.openViolations = count
	r.mu.Unlock()
}
