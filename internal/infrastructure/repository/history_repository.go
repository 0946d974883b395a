package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
)

// IndexSampleRepository stores the clean-scene index sets that feed baseline
// computation. The grids are kept as jsonb: baseline lookbacks read whole
// rows, never individual pixels, so a relational band layout buys nothing.
type IndexSampleRepository struct {
	db *pgxpool.Pool
}

// NewIndexSampleRepository creates a PostgreSQL index-sample repository.
func NewIndexSampleRepository(db *pgxpool.Pool) *IndexSampleRepository {
	return &IndexSampleRepository{db: db}
}

// InsertTx records one clean observation's indices inside a run's
// transaction. Re-appending the same observation is an idempotent no-op,
// handled with ON CONFLICT so it cannot abort the enclosing transaction.
func (r *IndexSampleRepository) InsertTx(ctx context.Context, tx pgx.Tx, areaID uuid.UUID, at time.Time, set *imagery.IndexSet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return errors.NewInternalError("failed to encode index sample").WithCause(err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO index_samples (id, area_id, observed_at, indices)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (area_id, observed_at) DO NOTHING
	`, uuid.New(), areaID, at, payload)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return errors.ErrAreaNotFound
		}
		return errors.NewInternalError("failed to insert index sample").WithCause(err)
	}
	return nil
}

// IndexHistory returns the area's stored index sets within [from, to],
// oldest first.
func (r *IndexSampleRepository) IndexHistory(ctx context.Context, areaID uuid.UUID, from, to time.Time) ([]*imagery.IndexSet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT indices
		FROM index_samples
		WHERE area_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at ASC
	`, areaID, from, to)
	if err != nil {
		return nil, errors.NewInternalError("failed to query index history").WithCause(err)
	}
	defer rows.Close()

	var sets []*imagery.IndexSet
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.NewInternalError("failed to scan index sample").WithCause(err)
		}
		var set imagery.IndexSet
		if err := json.Unmarshal(payload, &set); err != nil {
			return nil, errors.NewInternalError("failed to decode index sample").WithCause(err)
		}
		sets = append(sets, &set)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to read index history").WithCause(err)
	}
	return sets, nil
}
