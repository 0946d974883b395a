package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/database"
	"github.com/terrawatch/excavation-monitor-backend/internal/service/pipeline"
)

// PipelineStore composes the run-artifact repositories behind the pipeline's
// Store contract and the early warning readers. CommitRun writes the mask,
// the time-series point, any violation events, and the clean-scene baseline
// sample in one transaction.
type PipelineStore struct {
	db         *pgxpool.Pool
	points     *TimeSeriesRepository
	events     *ViolationRepository
	masks      *MaskRepository
	boundaries *BoundaryRepository
	samples    *IndexSampleRepository
}

// NewPipelineStore creates a store over one connection pool.
func NewPipelineStore(db *pgxpool.Pool) *PipelineStore {
	return &PipelineStore{
		db:         db,
		points:     NewTimeSeriesRepository(db),
		events:     NewViolationRepository(db),
		masks:      NewMaskRepository(db),
		boundaries: NewBoundaryRepository(db),
		samples:    NewIndexSampleRepository(db),
	}
}

// LatestPoint returns the area's newest time-series point.
func (s *PipelineStore) LatestPoint(ctx context.Context, areaID uuid.UUID) (*timeseries.Point, error) {
	return s.points.LatestPoint(ctx, areaID)
}

// RecentPoints returns up to limit points for the area, oldest first.
func (s *PipelineStore) RecentPoints(ctx context.Context, areaID uuid.UUID, limit int) ([]*timeseries.Point, error) {
	return s.points.RecentPoints(ctx, areaID, limit)
}

// PointsSince returns the area's points observed at or after from.
func (s *PipelineStore) PointsSince(ctx context.Context, areaID uuid.UUID, from time.Time) ([]*timeseries.Point, error) {
	return s.points.PointsSince(ctx, areaID, from)
}

// LatestEvent returns the newest violation event for an area/zone pair.
func (s *PipelineStore) LatestEvent(ctx context.Context, areaID, zoneID uuid.UUID) (*violation.Event, error) {
	return s.events.LatestEvent(ctx, areaID, zoneID)
}

// LatestMask returns the area's newest excavation mask.
func (s *PipelineStore) LatestMask(ctx context.Context, areaID uuid.UUID) (*geo.ExcavationMask, error) {
	return s.masks.LatestMask(ctx, areaID)
}

// NoGoZones returns the area's no-go boundaries.
func (s *PipelineStore) NoGoZones(ctx context.Context, areaID uuid.UUID) ([]*geo.Boundary, error) {
	return s.boundaries.NoGoZones(ctx, areaID)
}

// CommitRun persists everything one pipeline pass produced. The writes share
// a transaction: a failure anywhere rolls back the whole run.
func (s *PipelineStore) CommitRun(ctx context.Context, result *pipeline.RunResult) error {
	if result == nil || result.Point == nil {
		return errors.NewValidationError("EMPTY_RUN", "run result has no time-series point to commit")
	}
	return database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if result.Mask != nil {
			if err := s.masks.InsertTx(ctx, tx, result.Mask); err != nil {
				return err
			}
		}
		if err := s.points.InsertTx(ctx, tx, result.Point); err != nil {
			return err
		}
		for _, e := range result.Events {
			if err := s.events.InsertTx(ctx, tx, e); err != nil {
				return err
			}
		}
		if result.BaselineSample != nil {
			if err := s.samples.InsertTx(ctx, tx, result.AreaID, result.ObservedAt, result.BaselineSample); err != nil {
				return err
			}
		}
		return nil
	})
}
