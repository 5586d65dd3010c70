package audit

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgRepository reads audit_logs from PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Window returns the rows matching q, newest first.
func (r *PgRepository) Window(ctx context.Context, q windowQuery) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT occurred_at, actor, COALESCE(location, ''), action, entity, entity_id, meta
		FROM audit_logs
		WHERE location = $1
		  AND ($2::timestamptz IS NULL OR occurred_at >= $2)
		  AND ($3::timestamptz IS NULL OR occurred_at <= $3)
		  AND (NULLIF($4, '') IS NULL OR actor = $4)
		  AND (NULLIF($5, '') IS NULL OR entity = $5)
		  AND (NULLIF($6, '') IS NULL OR action = $6)
		ORDER BY occurred_at DESC, id DESC
		OFFSET $7 LIMIT $8`,
		string(q.Location), q.From, q.To, q.Actor, q.Entity, q.Action, q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.At, &row.Actor, &row.Location, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
