package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
)

// ViolationRepository persists the append-only violation event log.
type ViolationRepository struct {
	db *pgxpool.Pool
}

// NewViolationRepository creates a PostgreSQL violation repository.
func NewViolationRepository(db *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{db: db}
}

const insertEventSQL = `
	INSERT INTO violation_events (
		id, area_id, zone_id, kind, detected_at, area_ha, severity,
		confidence, resolved, resolved_at, metadata, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

// Insert appends one lifecycle event. Events are never updated.
func (r *ViolationRepository) Insert(ctx context.Context, e *violation.Event) error {
	return insertEvent(ctx, r.db, e)
}

// InsertTx appends one lifecycle event inside an open transaction.
func (r *ViolationRepository) InsertTx(ctx context.Context, tx pgx.Tx, e *violation.Event) error {
	return insertEvent(ctx, tx, e)
}

func insertEvent(ctx context.Context, db execer, e *violation.Event) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return errors.NewInternalError("failed to marshal event metadata").WithCause(err)
	}
	_, err = db.Exec(ctx, insertEventSQL,
		e.ID, e.AreaID, e.ZoneID, string(e.Kind), e.DetectedAt, e.AreaHa, e.Severity.String(),
		e.Confidence, e.Resolved, e.ResolvedAt, metadata, e.CreatedAt)
	if err != nil {
		return errors.NewInternalError("failed to insert violation event").WithCause(err)
	}
	return nil
}

const selectEventSQL = `
	SELECT id, area_id, zone_id, kind, detected_at, area_ha, severity,
	       confidence, resolved, resolved_at, metadata, created_at
	FROM violation_events
`

// LatestEvent returns the newest event for the (area, zone) pair, or
// (nil, nil) when the pair has no history.
func (r *ViolationRepository) LatestEvent(ctx context.Context, areaID, zoneID uuid.UUID) (*violation.Event, error) {
	row := r.db.QueryRow(ctx, selectEventSQL+`
		WHERE area_id = $1 AND zone_id = $2
		ORDER BY detected_at DESC, created_at DESC
		LIMIT 1
	`, areaID, zoneID)

	e, err := scanEvent(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to load latest event").WithCause(err)
	}
	return e, nil
}

// EventsForArea returns the area's events detected at or after from,
// newest first.
func (r *ViolationRepository) EventsForArea(ctx context.Context, areaID uuid.UUID, from time.Time) ([]*violation.Event, error) {
	rows, err := r.db.Query(ctx, selectEventSQL+`
		WHERE area_id = $1 AND detected_at >= $2
		ORDER BY detected_at DESC
	`, areaID, from)
	if err != nil {
		return nil, errors.NewInternalError("failed to query events").WithCause(err)
	}
	defer rows.Close()

	var events []*violation.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan event").WithCause(err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to read events").WithCause(err)
	}
	return events, nil
}

// OpenEvents returns the newest event for every (area, zone) pair whose
// violation is currently open.
func (r *ViolationRepository) OpenEvents(ctx context.Context, areaID uuid.UUID) ([]*violation.Event, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (zone_id)
		       id, area_id, zone_id, kind, detected_at, area_ha, severity,
		       confidence, resolved, resolved_at, metadata, created_at
		FROM violation_events
		WHERE area_id = $1
		ORDER BY zone_id, detected_at DESC, created_at DESC
	`, areaID)
	if err != nil {
		return nil, errors.NewInternalError("failed to query open events").WithCause(err)
	}
	defer rows.Close()

	var events []*violation.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, errors.NewInternalError("failed to scan event").WithCause(err)
		}
		if e.Open() {
			events = append(events, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to read open events").WithCause(err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*violation.Event, error) {
	var e violation.Event
	var kind, severity string
	var metadata []byte
	if err := row.Scan(
		&e.ID, &e.AreaID, &e.ZoneID, &kind, &e.DetectedAt, &e.AreaHa, &severity,
		&e.Confidence, &e.Resolved, &e.ResolvedAt, &metadata, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	e.Kind = violation.EventKind(kind)
	sev, err := violation.ParseSeverity(severity)
	if err != nil {
		return nil, err
	}
	e.Severity = sev
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return nil, err
		}
	}
	return &e, nil
}
