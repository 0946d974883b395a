package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
)

// MaskRepository persists the per-run excavation masks.
type MaskRepository struct {
	db *pgxpool.Pool
}

// NewMaskRepository creates a PostgreSQL mask repository.
func NewMaskRepository(db *pgxpool.Pool) *MaskRepository {
	return &MaskRepository{db: db}
}

const insertMaskSQL = `
	INSERT INTO excavation_masks (
		id, area_id, observed_at, geometry, total_pixels, flagged_pixels, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// Insert stores one mask. Masks are immutable.
func (r *MaskRepository) Insert(ctx context.Context, m *geo.ExcavationMask) error {
	return insertMask(ctx, r.db, m)
}

// InsertTx stores one mask inside an open transaction.
func (r *MaskRepository) InsertTx(ctx context.Context, tx pgx.Tx, m *geo.ExcavationMask) error {
	return insertMask(ctx, tx, m)
}

func insertMask(ctx context.Context, db execer, m *geo.ExcavationMask) error {
	var geometry []byte
	if m.Geometry != nil {
		var err error
		geometry, err = wkb.Marshal(m.Geometry, wkb.NDR)
		if err != nil {
			return errors.NewInternalError("failed to encode mask geometry").WithCause(err)
		}
	}
	_, err := db.Exec(ctx, insertMaskSQL,
		m.ID, m.AreaID, m.Timestamp, geometry, m.TotalPixels, m.FlaggedPixels, m.CreatedAt)
	if err != nil {
		return errors.NewInternalError("failed to insert excavation mask").WithCause(err)
	}
	return nil
}

// LatestMask returns the area's newest mask, or (nil, nil) when no run has
// committed one.
func (r *MaskRepository) LatestMask(ctx context.Context, areaID uuid.UUID) (*geo.ExcavationMask, error) {
	var m geo.ExcavationMask
	var geometry []byte
	err := r.db.QueryRow(ctx, `
		SELECT id, area_id, observed_at, geometry, total_pixels, flagged_pixels, created_at
		FROM excavation_masks
		WHERE area_id = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`, areaID).Scan(&m.ID, &m.AreaID, &m.Timestamp, &geometry, &m.TotalPixels, &m.FlaggedPixels, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewInternalError("failed to load latest mask").WithCause(err)
	}

	if len(geometry) > 0 {
		g, err := wkb.Unmarshal(geometry)
		if err != nil {
			return nil, errors.NewInternalError("failed to decode mask geometry").WithCause(err)
		}
		mp, ok := g.(*geom.MultiPolygon)
		if !ok {
			return nil, errors.NewGeometryError(m.ID.String(), "stored mask geometry is not a multipolygon")
		}
		m.Geometry = mp
	}
	return &m, nil
}
