package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/baseline"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
)

type MockObservationProvider struct {
	mock.Mock
}

func (m *MockObservationProvider) NextObservation(ctx context.Context, areaID uuid.UUID, after time.Time) (*imagery.Observation, error) {
	args := m.Called(ctx, areaID, after)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*imagery.Observation), args.Error(1)
}

type MockHistoryProvider struct {
	mock.Mock
}

func (m *MockHistoryProvider) IndexHistory(ctx context.Context, areaID uuid.UUID, from, to time.Time) ([]*imagery.IndexSet, error) {
	args := m.Called(ctx, areaID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*imagery.IndexSet), args.Error(1)
}

type MockBoundaryProvider struct {
	mock.Mock
}

func (m *MockBoundaryProvider) TransformForArea(ctx context.Context, areaID uuid.UUID) (geo.Transform, error) {
	args := m.Called(ctx, areaID)
	return args.Get(0).(geo.Transform), args.Error(1)
}

func (m *MockBoundaryProvider) BoundariesForArea(ctx context.Context, areaID uuid.UUID) ([]*geo.Boundary, error) {
	args := m.Called(ctx, areaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*geo.Boundary), args.Error(1)
}

type MockBaselineCache struct {
	mock.Mock
}

func (m *MockBaselineCache) Get(ctx context.Context, areaID uuid.UUID) (*baseline.Stats, error) {
	args := m.Called(ctx, areaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*baseline.Stats), args.Error(1)
}

func (m *MockBaselineCache) Put(ctx context.Context, areaID uuid.UUID, stats *baseline.Stats, ttl time.Duration) error {
	args := m.Called(ctx, areaID, stats, ttl)
	return args.Error(0)
}

func (m *MockBaselineCache) Invalidate(ctx context.Context, areaID uuid.UUID) error {
	args := m.Called(ctx, areaID)
	return args.Error(0)
}

type MockStore struct {
	mock.Mock
}

func (m *MockStore) LatestPoint(ctx context.Context, areaID uuid.UUID) (*timeseries.Point, error) {
	args := m.Called(ctx, areaID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*timeseries.Point), args.Error(1)
}

func (m *MockStore) RecentPoints(ctx context.Context, areaID uuid.UUID, limit int) ([]*timeseries.Point, error) {
	args := m.Called(ctx, areaID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*timeseries.Point), args.Error(1)
}

func (m *MockStore) LatestEvent(ctx context.Context, areaID, zoneID uuid.UUID) (*violation.Event, error) {
	args := m.Called(ctx, areaID, zoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*violation.Event), args.Error(1)
}

func (m *MockStore) CommitRun(ctx context.Context, result *RunResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

type MockAlertPublisher struct {
	mock.Mock
}

func (m *MockAlertPublisher) Publish(ctx context.Context, alert violation.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

type MockMetricsCollector struct {
	mock.Mock
}

func (m *MockMetricsCollector) RecordRun(ctx context.Context, outcome string, duration time.Duration) {
	m.Called(ctx, outcome, duration)
}

func (m *MockMetricsCollector) RecordDetection(ctx context.Context, areaID uuid.UUID, flaggedPixels int, confidence float64) {
	m.Called(ctx, areaID, flaggedPixels, confidence)
}
