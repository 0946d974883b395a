package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/baseline"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
)

// Service runs the detection pipeline for monitored areas.
type Service interface {
	// ProcessArea ingests the next usable observation for an area and runs
	// the full detection pass. At most one run per area executes at a time;
	// a concurrent call for the same area fails fast with a conflict error.
	ProcessArea(ctx context.Context, areaID uuid.UUID) (*RunResult, error)
}

// ObservationProvider supplies atmospherically corrected scenes.
type ObservationProvider interface {
	// NextObservation returns the next usable scene for the area strictly
	// after the given timestamp. A no-data error means no usable scene is
	// available; external errors may be retryable.
	NextObservation(ctx context.Context, areaID uuid.UUID, after time.Time) (*imagery.Observation, error)
}

// HistoryProvider reads the per-area spectral index history the baseline
// is computed from. New samples are appended through the Store so they
// commit with the rest of the run.
type HistoryProvider interface {
	// IndexHistory returns the stored index sets for the area within the
	// window, oldest first.
	IndexHistory(ctx context.Context, areaID uuid.UUID, from, to time.Time) ([]*imagery.IndexSet, error)
}

// BoundaryProvider supplies an area's georeferencing and boundary polygons.
type BoundaryProvider interface {
	// TransformForArea returns the pixel-to-ground transform for the area.
	TransformForArea(ctx context.Context, areaID uuid.UUID) (geo.Transform, error)
	// BoundariesForArea returns the area's legal and no-go boundaries.
	BoundariesForArea(ctx context.Context, areaID uuid.UUID) ([]*geo.Boundary, error)
}

// BaselineCache caches computed per-area baseline statistics.
type BaselineCache interface {
	// Get returns the cached baseline, or (nil, nil) on a miss.
	Get(ctx context.Context, areaID uuid.UUID) (*baseline.Stats, error)
	// Put stores the baseline with a TTL.
	Put(ctx context.Context, areaID uuid.UUID, stats *baseline.Stats, ttl time.Duration) error
	// Invalidate drops the cached baseline after the history changes.
	Invalidate(ctx context.Context, areaID uuid.UUID) error
}

// Store persists the artifacts of a run.
type Store interface {
	// LatestPoint returns the area's newest time-series point, or
	// (nil, nil) when the series is empty.
	LatestPoint(ctx context.Context, areaID uuid.UUID) (*timeseries.Point, error)
	// RecentPoints returns up to limit points for the area, oldest first.
	RecentPoints(ctx context.Context, areaID uuid.UUID, limit int) ([]*timeseries.Point, error)
	// LatestEvent returns the newest violation event for the pair, or
	// (nil, nil) when the pair has no history.
	LatestEvent(ctx context.Context, areaID, zoneID uuid.UUID) (*violation.Event, error)
	// CommitRun persists the run's mask, point, events, and any baseline
	// sample atomically: a failure persists nothing.
	CommitRun(ctx context.Context, result *RunResult) error
}

// AlertPublisher delivers violation alerts to subscribers.
type AlertPublisher interface {
	// Publish sends one alert. Delivery failures do not affect the
	// committed run.
	Publish(ctx context.Context, alert violation.Alert) error
}

// MetricsCollector records pipeline observability metrics.
type MetricsCollector interface {
	// RecordRun records a completed run with its outcome label.
	RecordRun(ctx context.Context, outcome string, duration time.Duration)
	// RecordDetection records a run's flagged pixel count and confidence.
	RecordDetection(ctx context.Context, areaID uuid.UUID, flaggedPixels int, confidence float64)
}

// Run outcomes reported to the metrics collector.
const (
	OutcomeCommitted = "committed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// RunResult is everything one pipeline pass produced.
type RunResult struct {
	AreaID          uuid.UUID            `json:"area_id"`
	Observation     *imagery.Observation `json:"-"`
	ObservedAt      time.Time            `json:"observed_at"`
	Skipped         bool                 `json:"skipped"`
	SkipReason      string               `json:"skip_reason,omitempty"`
	Baseline        *baseline.Stats      `json:"-"`
	BaselineSample  *imagery.IndexSet    `json:"-"`
	Mask            *geo.ExcavationMask  `json:"mask,omitempty"`
	Aggregation     *geo.Aggregation     `json:"aggregation,omitempty"`
	Point           *timeseries.Point    `json:"point,omitempty"`
	Events          []*violation.Event   `json:"events,omitempty"`
	Advisory        bool                 `json:"advisory"`
	BaselineUpdated bool                 `json:"baseline_updated"`
}
