package turns

import (
	"context"
	"fmt"

	"github.com/akimychev/converse/internal/dbx"
	"github.com/akimychev/converse/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append assigns seq inside the statement so concurrent appends to different
// sessions never contend. Appends within one session are already serialized
// by the coordinator's per-session lock.
func (r *PostgresRepository) Append(ctx context.Context, turn *models.Turn) error {
	query :=
		`INSERT INTO turns (id, session_id, seq, utterance, reply)
		 VALUES ($1, $2, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = $2), $3, $4)
		 RETURNING seq, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		turn.ID, turn.SessionID, turn.Utterance, turn.Reply).Scan(&turn.Seq, &turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]*models.Turn, error) {
	query :=
		`SELECT id, session_id, seq, utterance, reply, created_at FROM turns
		 WHERE session_id = $1
		 ORDER BY seq
		 `

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.Turn
	for rows.Next() {
		t := &models.Turn{}
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Seq, &t.Utterance, &t.Reply, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	query :=
		`SELECT COUNT(*) FROM turns
		 WHERE session_id = $1
		 `

	var n int64
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
