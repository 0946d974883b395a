package pipeline

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
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
	"github.com/twpayne/go-geom"
)

type pipelineMocks struct {
	observations *MockObservationProvider
	history      *MockHistoryProvider
	boundaries   *MockBoundaryProvider
	cache        *MockBaselineCache
	store        *MockStore
	alerts       *MockAlertPublisher
}

func newTestService(t *testing.T, cfg Config) (Service, *pipelineMocks) {
	t.Helper()
	m := &pipelineMocks{
		observations: new(MockObservationProvider),
		history:      new(MockHistoryProvider),
		boundaries:   new(MockBoundaryProvider),
		cache:        new(MockBaselineCache),
		store:        new(MockStore),
		alerts:       new(MockAlertPublisher),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := NewService(m.observations, m.history, m.boundaries, m.cache, m.store, m.alerts, nil, logger, cfg)
	require.NoError(t, err)
	return svc, m
}

func gridFrom(t *testing.T, values []float64) *imagery.Grid {
	t.Helper()
	g, err := imagery.NewGrid(2, 2)
	require.NoError(t, err)
	for i, v := range values {
		g.Set(i, v)
	}
	return g
}

func uniform(v float64) []float64 {
	return []float64{v, v, v, v}
}

func observationOf(t *testing.T, areaID uuid.UUID, ts time.Time, green, red, nir, swir2 []float64, cloud float64) *imagery.Observation {
	t.Helper()
	obs, err := imagery.NewObservation(areaID, ts, map[imagery.Band]*imagery.Grid{
		imagery.BandGreen: gridFrom(t, green),
		imagery.BandRed:   gridFrom(t, red),
		imagery.BandNIR:   gridFrom(t, nir),
		imagery.BandSWIR2: gridFrom(t, swir2),
	}, cloud, 10)
	require.NoError(t, err)
	return obs
}

// cleanHistory builds five vegetated index sets with slight jitter so the
// per-pixel dispersion is nonzero.
func cleanHistory(t *testing.T, areaID uuid.UUID, ts time.Time) []*imagery.IndexSet {
	t.Helper()
	jitter := []float64{0, 0.005, -0.005, 0.01, -0.01}
	sets := make([]*imagery.IndexSet, 0, len(jitter))
	for i, j := range jitter {
		obs := observationOf(t, areaID, ts.AddDate(0, -i-1, 0),
			uniform(0.2), uniform(0.2), uniform(0.8+j), uniform(0.2), 0.02)
		set, err := imagery.ComputeIndices(obs)
		require.NoError(t, err)
		sets = append(sets, set)
	}
	return sets
}

func rectPoly(t *testing.T, x0, y0, x1, y1 float64) *geom.Polygon {
	t.Helper()
	p := geom.NewPolygon(geom.XY)
	_, err := p.SetCoords([][]geom.Coord{{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	}})
	require.NoError(t, err)
	return p
}

func testBoundaries(t *testing.T, areaID uuid.UUID) (legal, zone *geo.Boundary) {
	t.Helper()
	legal, err := geo.NewBoundary(areaID, "concession", true, rectPoly(t, 0, 80, 20, 100))
	require.NoError(t, err)
	zone, err = geo.NewBoundary(areaID, "river buffer", false, rectPoly(t, 0, 80, 20, 90))
	require.NoError(t, err)
	return legal, zone
}

var testTransform = geo.Transform{OriginX: 0, OriginY: 100, ResolutionM: 10}

func TestProcessArea_DetectsAndOpensViolation(t *testing.T) {
	svc, m := newTestService(t, DefaultConfig())
	ctx := context.Background()
	areaID := uuid.New()
	observedAt := time.Date(2026, 4, 10, 10, 30, 0, 0, time.UTC)

	// Bottom row of the 2x2 scene is freshly excavated: NDVI collapses,
	// SWIR reflectance rises.
	obs := observationOf(t, areaID, observedAt,
		uniform(0.2),
		[]float64{0.2, 0.2, 0.35, 0.35},
		[]float64{0.8, 0.8, 0.45, 0.45},
		[]float64{0.2, 0.2, 0.6, 0.6},
		0.05)

	legal, zone := testBoundaries(t, areaID)

	m.store.On("LatestPoint", ctx, areaID).Return(nil, nil)
	m.observations.On("NextObservation", ctx, areaID, time.Time{}).Return(obs, nil)
	m.cache.On("Get", ctx, areaID).Return(nil, nil)
	m.cache.On("Put", ctx, areaID, mock.Anything, mock.Anything).Return(nil)
	m.history.On("IndexHistory", ctx, areaID, mock.Anything, observedAt).
		Return(cleanHistory(t, areaID, observedAt), nil)
	m.boundaries.On("TransformForArea", ctx, areaID).Return(testTransform, nil)
	m.boundaries.On("BoundariesForArea", ctx, areaID).Return([]*geo.Boundary{legal, zone}, nil)
	m.store.On("RecentPoints", ctx, areaID, mock.Anything).Return([]*timeseries.Point{}, nil)
	m.store.On("LatestEvent", ctx, areaID, zone.ID).Return(nil, nil)
	m.store.On("CommitRun", ctx, mock.Anything).Return(nil)
	m.alerts.On("Publish", ctx, mock.Anything).Return(nil)

	result, err := svc.ProcessArea(ctx, areaID)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Skipped)
	assert.False(t, result.Advisory)
	assert.False(t, result.BaselineUpdated)

	// Two 10 m pixels flagged: 0.02 ha total.
	require.NotNil(t, result.Point)
	assert.InDelta(t, 0.02, result.Point.RawAreaHa, 1e-9)
	assert.False(t, result.Point.Advisory)
	assert.Greater(t, result.Point.Confidence, 0.6)

	require.NotNil(t, result.Mask)
	assert.Equal(t, 2, result.Mask.FlaggedPixels)

	require.Len(t, result.Events, 1)
	ev := result.Events[0]
	assert.Equal(t, violation.EventStart, ev.Kind)
	assert.Equal(t, violation.SeverityLow, ev.Severity)
	assert.Equal(t, zone.ID, ev.ZoneID)
	assert.InDelta(t, 0.02, ev.AreaHa, 1e-9)

	m.store.AssertCalled(t, "CommitRun", ctx, mock.Anything)
	m.alerts.AssertNumberOfCalls(t, "Publish", 1)
	assert.Nil(t, result.BaselineSample)
}

func TestProcessArea_CleanSceneUpdatesBaseline(t *testing.T) {
	svc, m := newTestService(t, DefaultConfig())
	ctx := context.Background()
	areaID := uuid.New()
	observedAt := time.Date(2026, 4, 10, 10, 30, 0, 0, time.UTC)

	obs := observationOf(t, areaID, observedAt,
		uniform(0.2), uniform(0.2), uniform(0.8), uniform(0.2), 0.03)
	legal, zone := testBoundaries(t, areaID)

	m.store.On("LatestPoint", ctx, areaID).Return(nil, nil)
	m.observations.On("NextObservation", ctx, areaID, time.Time{}).Return(obs, nil)
	m.cache.On("Get", ctx, areaID).Return(nil, nil)
	m.cache.On("Put", ctx, areaID, mock.Anything, mock.Anything).Return(nil)
	m.cache.On("Invalidate", ctx, areaID).Return(nil)
	m.history.On("IndexHistory", ctx, areaID, mock.Anything, observedAt).
		Return(cleanHistory(t, areaID, observedAt), nil)
	m.boundaries.On("TransformForArea", ctx, areaID).Return(testTransform, nil)
	m.boundaries.On("BoundariesForArea", ctx, areaID).Return([]*geo.Boundary{legal, zone}, nil)
	m.store.On("RecentPoints", ctx, areaID, mock.Anything).Return([]*timeseries.Point{}, nil)
	m.store.On("LatestEvent", ctx, areaID, zone.ID).Return(nil, nil)

	var committed *RunResult
	m.store.On("CommitRun", ctx, mock.Anything).
		Run(func(args mock.Arguments) {
			committed = args.Get(1).(*RunResult)
		}).
		Return(nil)

	result, err := svc.ProcessArea(ctx, areaID)
	require.NoError(t, err)

	// Nothing flagged, so the scene's indices ride the run's commit into
	// the baseline history and the cached stats are dropped.
	assert.True(t, result.BaselineUpdated)
	assert.False(t, result.Advisory)
	assert.Zero(t, result.Point.RawAreaHa)
	assert.Empty(t, result.Events)
	require.NotNil(t, committed)
	require.NotNil(t, committed.BaselineSample)
	assert.True(t, committed.BaselineUpdated)
	m.cache.AssertCalled(t, "Invalidate", ctx, areaID)
	m.alerts.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestProcessArea_NoUsableScene(t *testing.T) {
	svc, m := newTestService(t, DefaultConfig())
	ctx := context.Background()
	areaID := uuid.New()

	m.store.On("LatestPoint", ctx, areaID).Return(nil, nil)
	m.observations.On("NextObservation", ctx, areaID, time.Time{}).
		Return(nil, errors.NewNoDataError("all scenes exceed cloud limit"))

	result, err := svc.ProcessArea(ctx, areaID)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "no usable scene", result.SkipReason)
	m.store.AssertNotCalled(t, "CommitRun", mock.Anything, mock.Anything)
}

func TestProcessArea_RetriesTransientProviderFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	svc, m := newTestService(t, cfg)
	ctx := context.Background()
	areaID := uuid.New()
	observedAt := time.Date(2026, 4, 10, 10, 30, 0, 0, time.UTC)

	obs := observationOf(t, areaID, observedAt,
		uniform(0.2), uniform(0.2), uniform(0.8), uniform(0.2), 0.03)
	legal, zone := testBoundaries(t, areaID)

	m.store.On("LatestPoint", ctx, areaID).Return(nil, nil)
	m.observations.On("NextObservation", ctx, areaID, time.Time{}).
		Return(nil, errors.NewExternalError("imagery", "timeout")).Once()
	m.observations.On("NextObservation", ctx, areaID, time.Time{}).Return(obs, nil).Once()
	m.cache.On("Get", ctx, areaID).Return(nil, nil)
	m.cache.On("Put", ctx, areaID, mock.Anything, mock.Anything).Return(nil)
	m.cache.On("Invalidate", ctx, areaID).Return(nil)
	m.history.On("IndexHistory", ctx, areaID, mock.Anything, observedAt).
		Return(cleanHistory(t, areaID, observedAt), nil)
	m.boundaries.On("TransformForArea", ctx, areaID).Return(testTransform, nil)
	m.boundaries.On("BoundariesForArea", ctx, areaID).Return([]*geo.Boundary{legal, zone}, nil)
	m.store.On("RecentPoints", ctx, areaID, mock.Anything).Return([]*timeseries.Point{}, nil)
	m.store.On("LatestEvent", ctx, areaID, zone.ID).Return(nil, nil)
	m.store.On("CommitRun", ctx, mock.Anything).Return(nil)

	result, err := svc.ProcessArea(ctx, areaID)
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	m.observations.AssertNumberOfCalls(t, "NextObservation", 2)
}

func TestProcessArea_NonRetryableFailureIsNotRetried(t *testing.T) {
	svc, m := newTestService(t, DefaultConfig())
	ctx := context.Background()
	areaID := uuid.New()

	m.store.On("LatestPoint", ctx, areaID).Return(nil, nil)
	m.observations.On("NextObservation", ctx, areaID, time.Time{}).
		Return(nil, errors.NewValidationError("BAD_AREA", "unknown area"))

	_, err := svc.ProcessArea(ctx, areaID)
	require.Error(t, err)
	m.observations.AssertNumberOfCalls(t, "NextObservation", 1)
}

func TestProcessArea_RejectsOutOfOrderObservation(t *testing.T) {
	svc, m := newTestService(t, DefaultConfig())
	ctx := context.Background()
	areaID := uuid.New()
	committed := time.Date(2026, 4, 10, 10, 30, 0, 0, time.UTC)

	latest, err := timeseries.NewPoint(areaID, committed, 0.1, 0, 0.9)
	require.NoError(t, err)

	stale := observationOf(t, areaID, committed.Add(-48*time.Hour),
		uniform(0.2), uniform(0.2), uniform(0.8), uniform(0.2), 0.03)

	m.store.On("LatestPoint", ctx, areaID).Return(latest, nil)
	m.observations.On("NextObservation", ctx, areaID, committed).Return(stale, nil)

	_, err = svc.ProcessArea(ctx, areaID)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
	m.store.AssertNotCalled(t, "CommitRun", mock.Anything, mock.Anything)
}

func TestProcessArea_SingleFlightPerArea(t *testing.T) {
	svc, m := newTestService(t, DefaultConfig())
	ctx := context.Background()
	areaID := uuid.New()

	started := make(chan struct{})
	release := make(chan struct{})

	m.store.On("LatestPoint", ctx, areaID).Return(nil, nil)
	m.observations.On("NextObservation", ctx, areaID, time.Time{}).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil, errors.NewNoDataError("nothing yet"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.ProcessArea(ctx, areaID)
		assert.NoError(t, err)
	}()

	<-started
	_, err := svc.ProcessArea(ctx, areaID)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConflict))

	close(release)
	<-done

	// A different area is unaffected by the first area's run.
	otherID := uuid.New()
	m.store.On("LatestPoint", ctx, otherID).Return(nil, nil)
	m.observations.On("NextObservation", ctx, otherID, time.Time{}).
		Return(nil, errors.NewNoDataError("nothing yet"))
	result, err := svc.ProcessArea(ctx, otherID)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestProcessArea_WeakConsensusIsAdvisory(t *testing.T) {
	svc, m := newTestService(t, DefaultConfig())
	ctx := context.Background()
	areaID := uuid.New()
	observedAt := time.Date(2026, 4, 10, 10, 30, 0, 0, time.UTC)

	// Same excavation signature as the happy path, but with an empty
	// history the baseline is unusable: only the threshold detector
	// fires, consensus quality is 0, and confidence collapses.
	obs := observationOf(t, areaID, observedAt,
		uniform(0.2),
		[]float64{0.2, 0.2, 0.35, 0.35},
		[]float64{0.8, 0.8, 0.45, 0.45},
		[]float64{0.2, 0.2, 0.6, 0.6},
		0.05)
	legal, zone := testBoundaries(t, areaID)

	m.store.On("LatestPoint", ctx, areaID).Return(nil, nil)
	m.observations.On("NextObservation", ctx, areaID, time.Time{}).Return(obs, nil)
	m.cache.On("Get", ctx, areaID).Return(nil, nil)
	m.history.On("IndexHistory", ctx, areaID, mock.Anything, observedAt).
		Return([]*imagery.IndexSet{}, nil)
	m.boundaries.On("TransformForArea", ctx, areaID).Return(testTransform, nil)
	m.boundaries.On("BoundariesForArea", ctx, areaID).Return([]*geo.Boundary{legal, zone}, nil)
	m.store.On("RecentPoints", ctx, areaID, mock.Anything).Return([]*timeseries.Point{}, nil)
	m.store.On("LatestEvent", ctx, areaID, zone.ID).Return(nil, nil)
	m.store.On("CommitRun", ctx, mock.Anything).Return(nil)

	result, err := svc.ProcessArea(ctx, areaID)
	require.NoError(t, err)

	// The advisory point is still committed for the record, but nothing
	// transitions and the baseline is left alone.
	assert.True(t, result.Advisory)
	assert.True(t, result.Point.Advisory)
	assert.Empty(t, result.Events)
	assert.False(t, result.BaselineUpdated)
	assert.Nil(t, result.BaselineSample)
	m.alerts.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestProcessArea_CommitFailureSurfaces(t *testing.T) {
	svc, m := newTestService(t, DefaultConfig())
	ctx := context.Background()
	areaID := uuid.New()
	observedAt := time.Date(2026, 4, 10, 10, 30, 0, 0, time.UTC)

	obs := observationOf(t, areaID, observedAt,
		uniform(0.2), uniform(0.2), uniform(0.8), uniform(0.2), 0.03)
	legal, zone := testBoundaries(t, areaID)

	m.store.On("LatestPoint", ctx, areaID).Return(nil, nil)
	m.observations.On("NextObservation", ctx, areaID, time.Time{}).Return(obs, nil)
	m.cache.On("Get", ctx, areaID).Return(nil, nil)
	m.cache.On("Put", ctx, areaID, mock.Anything, mock.Anything).Return(nil)
	m.history.On("IndexHistory", ctx, areaID, mock.Anything, observedAt).
		Return(cleanHistory(t, areaID, observedAt), nil)
	m.boundaries.On("TransformForArea", ctx, areaID).Return(testTransform, nil)
	m.boundaries.On("BoundariesForArea", ctx, areaID).Return([]*geo.Boundary{legal, zone}, nil)
	m.store.On("RecentPoints", ctx, areaID, mock.Anything).Return([]*timeseries.Point{}, nil)
	m.store.On("LatestEvent", ctx, areaID, zone.ID).Return(nil, nil)
	m.store.On("CommitRun", ctx, mock.Anything).Return(errors.NewInternalError("tx aborted"))

	_, err := svc.ProcessArea(ctx, areaID)
	require.Error(t, err)

	// Nothing downstream of the failed commit runs: the cached baseline
	// stays put because no sample reached the history.
	m.cache.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
	m.alerts.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}
