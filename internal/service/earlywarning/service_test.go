package earlywarning

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/detection"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
	"github.com/twpayne/go-geom"
)

type MockHistoryReader struct {
	mock.Mock
}

func (m *MockHistoryReader) PointsSince(ctx context.Context, areaID uuid.UUID, from time.Time) ([]*timeseries.Point, error) {
	args := m.Called(ctx, areaID, from)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*timeseries.Point), args.Error(1)
}

type MockGeometryReader struct {
	mock.Mock
}

func (m *MockGeometryReader) LatestMask(ctx context.Context, areaID uuid.UUID) (*geo.ExcavationMask, error) {
	args := m.Called(ctx, areaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geo.ExcavationMask), args.Error(1)
}

func (m *MockGeometryReader) NoGoZones(ctx context.Context, areaID uuid.UUID) ([]*geo.Boundary, error) {
	args := m.Called(ctx, areaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*geo.Boundary), args.Error(1)
}

func seriesPoint(t *testing.T, areaID uuid.UUID, ts time.Time, areaHa, meanNDVI, rate float64) *timeseries.Point {
	t.Helper()
	p, err := timeseries.NewPoint(areaID, ts, areaHa, 0, 0.9)
	require.NoError(t, err)
	p.MeanNDVI = meanNDVI
	p.RateHaPerDay = rate
	return p
}

func rectZone(t *testing.T, areaID uuid.UUID, x0, y0, x1, y1 float64) *geo.Boundary {
	t.Helper()
	p := geom.NewPolygon(geom.XY)
	_, err := p.SetCoords([][]geom.Coord{{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	}})
	require.NoError(t, err)
	b, err := geo.NewBoundary(areaID, "zone", false, p)
	require.NoError(t, err)
	return b
}

// maskAt builds a 2x1 excavation mask whose two flagged pixel centers sit
// at y = originY - 5 with 10 m resolution.
func maskAt(t *testing.T, areaID uuid.UUID, originY float64) *geo.ExcavationMask {
	t.Helper()
	m, err := detection.NewMask(2, 1)
	require.NoError(t, err)
	m.Set(0)
	m.Set(1)
	tr := geo.Transform{OriginX: 0, OriginY: originY, ResolutionM: 10}
	return geo.NewExcavationMask(areaID, time.Now(), m, tr)
}

func TestAnalyzeTrend(t *testing.T) {
	areaID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("growing series", func(t *testing.T) {
		var points []*timeseries.Point
		for i := 0; i < 6; i++ {
			points = append(points, seriesPoint(t, areaID,
				base.AddDate(0, 0, 14*i), 0.1*float64(i+1), 0.6, 0))
		}
		tr := analyzeTrend(points)
		assert.True(t, tr.Sufficient)
		assert.Equal(t, TrendIncreasing, tr.Trend)
		// 0.1 ha per 14 days.
		assert.InDelta(t, 0.1/14, tr.Slope, 1e-9)
		assert.InDelta(t, 1.0, tr.RSquared, 1e-9)
	})

	t.Run("flat series", func(t *testing.T) {
		var points []*timeseries.Point
		for i := 0; i < 6; i++ {
			points = append(points, seriesPoint(t, areaID,
				base.AddDate(0, 0, 14*i), 0.5, 0.6, 0))
		}
		tr := analyzeTrend(points)
		assert.Equal(t, TrendStable, tr.Trend)
	})

	t.Run("shrinking series", func(t *testing.T) {
		var points []*timeseries.Point
		for i := 0; i < 6; i++ {
			points = append(points, seriesPoint(t, areaID,
				base.AddDate(0, 0, 14*i), 1.0-0.1*float64(i), 0.6, 0))
		}
		tr := analyzeTrend(points)
		assert.Equal(t, TrendDecreasing, tr.Trend)
	})

	t.Run("too few points", func(t *testing.T) {
		points := []*timeseries.Point{
			seriesPoint(t, areaID, base, 0.1, 0.6, 0),
			seriesPoint(t, areaID, base.AddDate(0, 0, 14), 0.2, 0.6, 0),
		}
		tr := analyzeTrend(points)
		assert.False(t, tr.Sufficient)
	})
}

func TestDetectSpectralShift(t *testing.T) {
	areaID := uuid.New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mkSeries := func(ndvi []float64) []*timeseries.Point {
		var points []*timeseries.Point
		for i, v := range ndvi {
			points = append(points, seriesPoint(t, areaID,
				base.AddDate(0, 0, 14*i), 0.1, v, 0))
		}
		return points
	}

	t.Run("steep degradation is high severity", func(t *testing.T) {
		shift := detectSpectralShift(mkSeries([]float64{0.70, 0.68, 0.66, 0.55, 0.50, 0.45}))
		assert.True(t, shift.Sufficient)
		assert.Equal(t, ShiftHigh, shift.Severity)
		assert.InDelta(t, 0.21, shift.Degradation, 1e-9)
	})

	t.Run("mild degradation is medium severity", func(t *testing.T) {
		shift := detectSpectralShift(mkSeries([]float64{0.70, 0.70, 0.70, 0.70, 0.68, 0.67}))
		assert.Equal(t, ShiftMedium, shift.Severity)
	})

	t.Run("healthy vegetation has no shift", func(t *testing.T) {
		shift := detectSpectralShift(mkSeries([]float64{0.70, 0.71, 0.70, 0.70, 0.71, 0.70}))
		assert.Equal(t, ShiftNone, shift.Severity)
	})

	t.Run("too few points", func(t *testing.T) {
		shift := detectSpectralShift(mkSeries([]float64{0.70, 0.50}))
		assert.False(t, shift.Sufficient)
	})
}

func TestAnalyzeProximity(t *testing.T) {
	areaID := uuid.New()

	t.Run("footprint pressing on the zone", func(t *testing.T) {
		// Pixel centers at y=995; zone top edge at y=940 is 55 m away.
		mask := maskAt(t, areaID, 1000)
		zone := rectZone(t, areaID, 0, 900, 20, 940)

		prox := analyzeProximity(mask, []*geo.Boundary{zone}, 500, 100)
		assert.Equal(t, 2, prox.PixelsInBuffer)
		assert.Equal(t, 2, prox.PixelsInCritical)
		assert.InDelta(t, 1.0, prox.BufferCoverage, 1e-9)
	})

	t.Run("distant footprint", func(t *testing.T) {
		mask := maskAt(t, areaID, 1000)
		zone := rectZone(t, areaID, 0, 0, 20, 100)

		prox := analyzeProximity(mask, []*geo.Boundary{zone}, 500, 100)
		assert.Zero(t, prox.PixelsInBuffer)
		assert.Zero(t, prox.PixelsInCritical)
		assert.Zero(t, prox.BufferCoverage)
	})

	t.Run("footprint inside the zone", func(t *testing.T) {
		mask := maskAt(t, areaID, 1000)
		zone := rectZone(t, areaID, 0, 900, 20, 1000)

		prox := analyzeProximity(mask, []*geo.Boundary{zone}, 500, 100)
		assert.Equal(t, 2, prox.PixelsInCritical)
	})

	t.Run("no mask", func(t *testing.T) {
		zone := rectZone(t, areaID, 0, 900, 20, 940)
		prox := analyzeProximity(nil, []*geo.Boundary{zone}, 500, 100)
		assert.Zero(t, prox.PixelsInBuffer)
	})
}

func TestScoreRisk(t *testing.T) {
	t.Run("all components hot", func(t *testing.T) {
		risk := scoreRisk(
			Proximity{BufferCoverage: 1.0},
			SpectralShift{Severity: ShiftHigh},
			0.25,
			TrendAnalysis{Trend: TrendIncreasing},
		)
		// 100*0.35 + 40*0.25 + 35*0.25 + 25*0.15 = 57.5
		assert.InDelta(t, 57.5, risk.Total, 1e-9)
		assert.Equal(t, RiskHigh, risk.Level)
	})

	t.Run("quiet area", func(t *testing.T) {
		risk := scoreRisk(Proximity{}, SpectralShift{Severity: ShiftNone}, 0, TrendAnalysis{Trend: TrendStable})
		assert.Zero(t, risk.Total)
		assert.Equal(t, RiskLow, risk.Level)
	})

	t.Run("decreasing trend earns credit", func(t *testing.T) {
		hot := scoreRisk(Proximity{BufferCoverage: 0.5}, SpectralShift{}, 0.05, TrendAnalysis{Trend: TrendStable})
		cooling := scoreRisk(Proximity{BufferCoverage: 0.5}, SpectralShift{}, 0.05, TrendAnalysis{Trend: TrendDecreasing})
		assert.Less(t, cooling.Total, hot.Total)
	})

	t.Run("score never goes negative", func(t *testing.T) {
		risk := scoreRisk(Proximity{}, SpectralShift{}, 0, TrendAnalysis{Trend: TrendDecreasing})
		assert.Zero(t, risk.Total)
	})
}

func TestProject(t *testing.T) {
	t.Run("critical risk triggers violation warning", func(t *testing.T) {
		p := project(0.3, TrendAnalysis{Trend: TrendIncreasing}, RiskScore{Level: RiskCritical})
		// 0.3 * 1.1 * 14 = 4.62 ha projected.
		assert.InDelta(t, 4.62, p.ProjectedAreaHa, 1e-9)
		assert.InDelta(t, 0.85, p.ViolationProbability, 1e-9)
		assert.True(t, p.AlertTriggered)
		assert.Equal(t, AlertPredictiveViolation, p.AlertType)
		assert.Equal(t, "CRITICAL", p.AlertSeverity)
		assert.Equal(t, 2, p.DaysToViolation)
	})

	t.Run("large projection boosts probability", func(t *testing.T) {
		p := project(0.5, TrendAnalysis{Trend: TrendStable}, RiskScore{Level: RiskMedium})
		// 7 ha projected pushes 0.30 up by 0.25.
		assert.InDelta(t, 0.55, p.ViolationProbability, 1e-9)
		assert.Equal(t, AlertPredictive, p.AlertType)
		assert.Equal(t, "HIGH", p.AlertSeverity)
	})

	t.Run("idle area stays quiet", func(t *testing.T) {
		p := project(0, TrendAnalysis{Trend: TrendStable}, RiskScore{Level: RiskLow})
		// Tiny projection drops 0.10 to 0.
		assert.InDelta(t, 0.0, p.ViolationProbability, 1e-9)
		assert.False(t, p.AlertTriggered)
		assert.Equal(t, AlertNone, p.AlertType)
	})
}

func TestService_Report(t *testing.T) {
	history := new(MockHistoryReader)
	geometry := new(MockGeometryReader)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(history, geometry, logger, DefaultConfig())

	ctx := context.Background()
	areaID := uuid.New()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	var points []*timeseries.Point
	for i := 0; i < 10; i++ {
		points = append(points, seriesPoint(t, areaID,
			base.AddDate(0, 0, 14*i), 0.1*float64(i+1), 0.70-0.03*float64(i), 0.15))
	}

	history.On("PointsSince", ctx, areaID, mock.Anything).Return(points, nil)
	geometry.On("LatestMask", ctx, areaID).Return(maskAt(t, areaID, 1000), nil)
	geometry.On("NoGoZones", ctx, areaID).Return([]*geo.Boundary{rectZone(t, areaID, 0, 900, 20, 940)}, nil)

	report, err := svc.Report(ctx, areaID, 0)
	require.NoError(t, err)

	assert.True(t, report.Sufficient)
	assert.Equal(t, 10, report.PointCount)
	assert.Equal(t, TrendIncreasing, report.Trend.Trend)
	assert.Equal(t, ShiftHigh, report.Shift.Severity)
	assert.InDelta(t, 1.0, report.Proximity.BufferCoverage, 1e-9)

	// 100*0.35 + 40*0.25 + 20*0.25 + 25*0.15 = 53.75
	assert.InDelta(t, 53.75, report.Risk.Total, 1e-9)
	assert.Equal(t, RiskHigh, report.Risk.Level)

	assert.True(t, report.Projection.AlertTriggered)
	assert.Equal(t, AlertPredictive, report.Projection.AlertType)
	assert.Equal(t, "HIGH", report.Projection.AlertSeverity)
}

func TestService_Report_InsufficientHistory(t *testing.T) {
	history := new(MockHistoryReader)
	geometry := new(MockGeometryReader)
	svc := NewService(history, geometry, nil, DefaultConfig())

	ctx := context.Background()
	areaID := uuid.New()

	history.On("PointsSince", ctx, areaID, mock.Anything).Return([]*timeseries.Point{}, nil)

	report, err := svc.Report(ctx, areaID, 30*24*time.Hour)
	require.NoError(t, err)
	assert.False(t, report.Sufficient)
	assert.Zero(t, report.PointCount)
	geometry.AssertNotCalled(t, "LatestMask", mock.Anything, mock.Anything)
}
