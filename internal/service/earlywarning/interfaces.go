package earlywarning

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
)

// Service produces early warning reports: risk of a no-go boundary
// violation before the violation state machine would fire.
type Service interface {
	// Report assembles the full early warning assessment for an area over
	// the trailing window.
	Report(ctx context.Context, areaID uuid.UUID, window time.Duration) (*Report, error)
}

// HistoryReader reads the committed time series.
type HistoryReader interface {
	// PointsSince returns the area's points observed at or after from,
	// oldest first.
	PointsSince(ctx context.Context, areaID uuid.UUID, from time.Time) ([]*timeseries.Point, error)
}

// GeometryReader reads the area's latest detection footprint and zones.
type GeometryReader interface {
	// LatestMask returns the area's newest excavation mask, or (nil, nil)
	// when no run has committed one.
	LatestMask(ctx context.Context, areaID uuid.UUID) (*geo.ExcavationMask, error)
	// NoGoZones returns the area's no-go boundaries.
	NoGoZones(ctx context.Context, areaID uuid.UUID) ([]*geo.Boundary, error)
}

// Trend labels the direction of the smoothed excavation series.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// RiskLevel grades the combined risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// ShiftSeverity grades vegetation stress found before excavation is
// visible in the consensus mask.
type ShiftSeverity string

const (
	ShiftNone   ShiftSeverity = "none"
	ShiftLow    ShiftSeverity = "low"
	ShiftMedium ShiftSeverity = "medium"
	ShiftHigh   ShiftSeverity = "high"
)

// TrendAnalysis is a least-squares fit over the smoothed area series.
type TrendAnalysis struct {
	Trend      Trend   `json:"trend"`
	Slope      float64 `json:"slope_ha_per_day"`
	RSquared   float64 `json:"r_squared"`
	Sufficient bool    `json:"sufficient"`
}

// SpectralShift summarizes NDVI degradation over the window.
type SpectralShift struct {
	Severity         ShiftSeverity `json:"severity"`
	Degradation      float64       `json:"degradation"`
	MeanChange       float64       `json:"mean_change"`
	AnomalousPeriods int           `json:"anomalous_periods"`
	Sufficient       bool          `json:"sufficient"`
}

// Proximity measures how close the latest excavation footprint sits to
// the area's no-go zones.
type Proximity struct {
	BufferDistanceM  float64 `json:"buffer_distance_m"`
	PixelsInBuffer   int     `json:"pixels_in_buffer"`
	PixelsInCritical int     `json:"pixels_in_critical"`
	BufferCoverage   float64 `json:"buffer_coverage"` // fraction of flagged pixels in buffer
	ZoneCount        int     `json:"zone_count"`
}

// RiskScore is the weighted combination of the component risks, 0-100.
type RiskScore struct {
	Total     float64   `json:"total"`
	Level     RiskLevel `json:"level"`
	Boundary  float64   `json:"boundary"`
	Spectral  float64   `json:"spectral"`
	Rate      float64   `json:"rate"`
	TrendRisk float64   `json:"trend"`
}

// Projection is the two-week look-ahead.
type Projection struct {
	Days                 int     `json:"days"`
	ProjectedRateHaDay   float64 `json:"projected_rate_ha_day"`
	ProjectedAreaHa      float64 `json:"projected_area_ha"`
	ViolationProbability float64 `json:"violation_probability"`
	AlertTriggered       bool    `json:"alert_triggered"`
	AlertType            string  `json:"alert_type"`
	AlertSeverity        string  `json:"alert_severity"`
	DaysToViolation      int     `json:"days_to_violation,omitempty"`
}

// Report is the full early warning assessment for one area.
type Report struct {
	AreaID      uuid.UUID     `json:"area_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	WindowStart time.Time     `json:"window_start"`
	PointCount  int           `json:"point_count"`
	Sufficient  bool          `json:"sufficient"`
	Trend       TrendAnalysis `json:"trend"`
	Shift       SpectralShift `json:"spectral_shift"`
	Proximity   Proximity     `json:"proximity"`
	Risk        RiskScore     `json:"risk"`
	Projection  Projection    `json:"projection"`
}
