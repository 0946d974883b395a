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

// BoundaryRepository persists monitored areas' georeferencing and boundary
// polygons. Geometry is stored as WKB.
type BoundaryRepository struct {
	db *pgxpool.Pool
}

// NewBoundaryRepository creates a PostgreSQL boundary repository.
func NewBoundaryRepository(db *pgxpool.Pool) *BoundaryRepository {
	return &BoundaryRepository{db: db}
}

// Save creates or replaces a boundary.
func (r *BoundaryRepository) Save(ctx context.Context, b *geo.Boundary) error {
	geometry, err := wkb.Marshal(b.Polygon, wkb.NDR)
	if err != nil {
		return errors.NewInternalError("failed to encode boundary geometry").WithCause(err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO boundaries (id, area_id, name, is_legal, geometry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_legal = EXCLUDED.is_legal,
			geometry = EXCLUDED.geometry,
			updated_at = EXCLUDED.updated_at
	`, b.ID, b.AreaID, b.Name, b.IsLegal, geometry, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return errors.NewInternalError("failed to save boundary").WithCause(err)
	}
	return nil
}

// BoundariesForArea returns all of the area's boundaries.
func (r *BoundaryRepository) BoundariesForArea(ctx context.Context, areaID uuid.UUID) ([]*geo.Boundary, error) {
	return r.queryBoundaries(ctx, `
		SELECT id, area_id, name, is_legal, geometry, created_at, updated_at
		FROM boundaries
		WHERE area_id = $1
		ORDER BY name
	`, areaID)
}

// NoGoZones returns the area's no-go boundaries only.
func (r *BoundaryRepository) NoGoZones(ctx context.Context, areaID uuid.UUID) ([]*geo.Boundary, error) {
	return r.queryBoundaries(ctx, `
		SELECT id, area_id, name, is_legal, geometry, created_at, updated_at
		FROM boundaries
		WHERE area_id = $1 AND is_legal = false
		ORDER BY name
	`, areaID)
}

// TransformForArea returns the area's pixel-to-ground transform.
func (r *BoundaryRepository) TransformForArea(ctx context.Context, areaID uuid.UUID) (geo.Transform, error) {
	var tr geo.Transform
	err := r.db.QueryRow(ctx, `
		SELECT origin_x, origin_y, resolution_m
		FROM monitored_areas
		WHERE id = $1
	`, areaID).Scan(&tr.OriginX, &tr.OriginY, &tr.ResolutionM)
	if err == pgx.ErrNoRows {
		return geo.Transform{}, errors.ErrAreaNotFound
	}
	if err != nil {
		return geo.Transform{}, errors.NewInternalError("failed to load area transform").WithCause(err)
	}
	return tr, nil
}

func (r *BoundaryRepository) queryBoundaries(ctx context.Context, sql string, areaID uuid.UUID) ([]*geo.Boundary, error) {
	rows, err := r.db.Query(ctx, sql, areaID)
	if err != nil {
		return nil, errors.NewInternalError("failed to query boundaries").WithCause(err)
	}
	defer rows.Close()

	var boundaries []*geo.Boundary
	for rows.Next() {
		var b geo.Boundary
		var geometry []byte
		if err := rows.Scan(&b.ID, &b.AreaID, &b.Name, &b.IsLegal, &geometry, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, errors.NewInternalError("failed to scan boundary").WithCause(err)
		}
		g, err := wkb.Unmarshal(geometry)
		if err != nil {
			return nil, errors.NewInternalError("failed to decode boundary geometry").WithCause(err)
		}
		polygon, ok := g.(*geom.Polygon)
		if !ok {
			return nil, errors.NewGeometryError(b.ID.String(), "stored geometry is not a polygon")
		}
		b.Polygon = polygon
		boundaries = append(boundaries, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to read boundaries").WithCause(err)
	}
	return boundaries, nil
}
