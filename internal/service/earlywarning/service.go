package earlywarning

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
)

// Config carries the proximity tuning.
type Config struct {
	BufferDistanceM   float64 `json:"buffer_distance_m"`
	CriticalDistanceM float64 `json:"critical_distance_m"`
}

// DefaultConfig returns the production proximity tuning.
func DefaultConfig() Config {
	return Config{
		BufferDistanceM:   DefaultBufferDistanceM,
		CriticalDistanceM: DefaultCriticalDistanceM,
	}
}

// service implements the Service interface
type service struct {
	history  HistoryReader
	geometry GeometryReader
	logger   *slog.Logger
	cfg      Config
}

// NewService creates the early warning service.
func NewService(history HistoryReader, geometry GeometryReader, logger *slog.Logger, cfg Config) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferDistanceM <= 0 {
		cfg.BufferDistanceM = DefaultBufferDistanceM
	}
	if cfg.CriticalDistanceM <= 0 {
		cfg.CriticalDistanceM = DefaultCriticalDistanceM
	}
	return &service{history: history, geometry: geometry, logger: logger, cfg: cfg}
}

// Report assembles the full early warning assessment for an area.
func (s *service) Report(ctx context.Context, areaID uuid.UUID, window time.Duration) (*Report, error) {
	if window <= 0 {
		window = 90 * 24 * time.Hour
	}
	now := time.Now().UTC()
	from := now.Add(-window)

	points, err := s.history.PointsSince(ctx, areaID, from)
	if err != nil {
		return nil, errors.Wrap(err, "loading time series")
	}

	report := &Report{
		AreaID:      areaID,
		GeneratedAt: now,
		WindowStart: from,
		PointCount:  len(points),
	}

	if len(points) < 2 {
		report.Trend = TrendAnalysis{Trend: TrendStable}
		report.Shift = SpectralShift{Severity: ShiftNone}
		return report, nil
	}
	report.Sufficient = true

	report.Trend = analyzeTrend(points)
	report.Shift = detectSpectralShift(points)

	mask, err := s.geometry.LatestMask(ctx, areaID)
	if err != nil {
		return nil, errors.Wrap(err, "loading latest mask")
	}
	zones, err := s.geometry.NoGoZones(ctx, areaID)
	if err != nil {
		return nil, errors.Wrap(err, "loading no-go zones")
	}
	report.Proximity = analyzeProximity(mask, zones, s.cfg.BufferDistanceM, s.cfg.CriticalDistanceM)

	rate := points[len(points)-1].RateHaPerDay
	report.Risk = scoreRisk(report.Proximity, report.Shift, rate, report.Trend)
	report.Projection = project(rate, report.Trend, report.Risk)

	s.logger.InfoContext(ctx, "early warning report generated",
		slog.String("area_id", areaID.String()),
		slog.Int("points", len(points)),
		slog.Float64("risk_score", report.Risk.Total),
		slog.String("risk_level", string(report.Risk.Level)),
		slog.Bool("alert_triggered", report.Projection.AlertTriggered))

	return report, nil
}
