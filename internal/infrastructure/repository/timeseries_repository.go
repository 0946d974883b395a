package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
)

// TimeSeriesRepository persists the append-only excavation time series.
type TimeSeriesRepository struct {
	db *pgxpool.Pool
}

// NewTimeSeriesRepository creates a PostgreSQL time-series repository.
func NewTimeSeriesRepository(db *pgxpool.Pool) *TimeSeriesRepository {
	return &TimeSeriesRepository{db: db}
}

const insertPointSQL = `
	INSERT INTO timeseries_points (
		id, area_id, mask_id, observed_at, raw_area_ha, smoothed_area_ha,
		rate_ha_per_day, mean_ndvi, anomaly_score, confidence, advisory, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// Insert appends one point. Points are never updated.
func (r *TimeSeriesRepository) Insert(ctx context.Context, p *timeseries.Point) error {
	return insertPoint(ctx, r.db, p)
}

// InsertTx appends one point inside an open transaction.
func (r *TimeSeriesRepository) InsertTx(ctx context.Context, tx pgx.Tx, p *timeseries.Point) error {
	return insertPoint(ctx, tx, p)
}

func insertPoint(ctx context.Context, db execer, p *timeseries.Point) error {
	_, err := db.Exec(ctx, insertPointSQL,
		p.ID, p.AreaID, nullableUUID(p.MaskID), p.Timestamp, p.RawAreaHa, p.SmoothedAreaHa,
		p.RateHaPerDay, p.MeanNDVI, p.AnomalyScore, p.Confidence, p.Advisory, p.CreatedAt)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return errors.NewConflictError("a point for this observation is already committed").WithCause(err)
		}
		if IsForeignKeyViolation(err) {
			return errors.ErrAreaNotFound
		}
		return errors.NewInternalError("failed to insert time-series point").WithCause(err)
	}
	return nil
}

// LatestPoint returns the area's newest point, or (nil, nil) when the
// series is empty.
func (r *TimeSeriesRepository) LatestPoint(ctx context.Context, areaID uuid.UUID) (*timeseries.Point, error) {
	row := r.db.QueryRow(ctx, selectPointSQL+`
		WHERE area_id = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`, areaID)

	p, err := scanPoint(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to load latest point").WithCause(err)
	}
	return p, nil
}

// RecentPoints returns up to limit points for the area, oldest first.
func (r *TimeSeriesRepository) RecentPoints(ctx context.Context, areaID uuid.UUID, limit int) ([]*timeseries.Point, error) {
	rows, err := r.db.Query(ctx, selectPointSQL+`
		WHERE area_id = $1
		ORDER BY observed_at DESC
		LIMIT $2
	`, areaID, limit)
	if err != nil {
		return nil, errors.NewInternalError("failed to query recent points").WithCause(err)
	}
	defer rows.Close()

	points, err := collectPoints(rows)
	if err != nil {
		return nil, err
	}
	// Reverse newest-first into chronological order.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}

// PointsSince returns the area's points observed at or after from, oldest
// first.
func (r *TimeSeriesRepository) PointsSince(ctx context.Context, areaID uuid.UUID, from time.Time) ([]*timeseries.Point, error) {
	rows, err := r.db.Query(ctx, selectPointSQL+`
		WHERE area_id = $1 AND observed_at >= $2
		ORDER BY observed_at ASC
	`, areaID, from)
	if err != nil {
		return nil, errors.NewInternalError("failed to query points").WithCause(err)
	}
	defer rows.Close()

	return collectPoints(rows)
}

const selectPointSQL = `
	SELECT id, area_id, mask_id, observed_at, raw_area_ha, smoothed_area_ha,
	       rate_ha_per_day, mean_ndvi, anomaly_score, confidence, advisory, created_at
	FROM timeseries_points
`

func scanPoint(row pgx.Row) (*timeseries.Point, error) {
	var p timeseries.Point
	var maskID *uuid.UUID
	if err := row.Scan(
		&p.ID, &p.AreaID, &maskID, &p.Timestamp, &p.RawAreaHa, &p.SmoothedAreaHa,
		&p.RateHaPerDay, &p.MeanNDVI, &p.AnomalyScore, &p.Confidence, &p.Advisory, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	if maskID != nil {
		p.MaskID = *maskID
	}
	return &p, nil
}

func collectPoints(rows pgx.Rows) ([]*timeseries.Point, error) {
	var points []*timeseries.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan point").WithCause(err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to read points").WithCause(err)
	}
	return points, nil
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
