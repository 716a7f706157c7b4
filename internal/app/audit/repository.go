package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Append-only by design: this package contains no UPDATE or DELETE statement
// for audit_entries.
const createAuditEntriesSQL = `
CREATE TABLE IF NOT EXISTS audit_entries (
  id text PRIMARY KEY,
  event_type text NOT NULL,
  task_id text NOT NULL,
  user_id text NOT NULL,
  event_data jsonb NOT NULL,
  ts timestamptz NOT NULL
)`

const createAuditUserIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_audit_entries_user ON audit_entries (user_id, ts DESC)`

const createAuditTaskIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_audit_entries_task ON audit_entries (task_id)`

const insertEntrySQL = `
INSERT INTO audit_entries (id, event_type, task_id, user_id, event_data, ts)
VALUES ($1, $2, $3, $4, $5, $6)
`

const listEntriesByUserSQL = `
SELECT id, event_type, task_id, user_id, event_data, ts
FROM audit_entries
WHERE user_id = $1
ORDER BY ts DESC
LIMIT $2
`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createAuditEntriesSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createAuditUserIndexSQL); err != nil {
		return err
	}
	if _, err := r.Pool.Exec(ctx, createAuditTaskIndexSQL); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepository) InsertEntry(ctx context.Context, tx pgx.Tx, entry Entry) error {
	_, err := tx.Exec(ctx, insertEntrySQL,
		entry.ID,
		entry.EventType,
		entry.TaskID,
		entry.UserID,
		entry.EventData,
		entry.Timestamp,
	)
	return err
}

// ListByUser returns a user's trail, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.Pool.Query(ctx, listEntriesByUserSQL, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var ts time.Time
		if err := rows.Scan(&entry.ID, &entry.EventType, &entry.TaskID, &entry.UserID, &entry.EventData, &ts); err != nil {
			return nil, err
		}
		entry.Timestamp = ts
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
