package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrReminderNotFound = errors.New("reminder not found")

// Reminder is a scheduled notification for a task. remind_at is strictly
// future at creation time.
type Reminder struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	RemindAt  time.Time `json:"remind_at"`
	CreatedAt time.Time `json:"created_at"`
}

const createRemindersTableSQL = `
CREATE TABLE IF NOT EXISTS reminders (
  id text PRIMARY KEY,
  task_id text NOT NULL,
  user_id text NOT NULL,
  remind_at timestamptz NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
)`

const createRemindersTaskIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_reminders_task ON reminders (task_id, user_id)`

const insertReminderSQL = `
INSERT INTO reminders (id, task_id, user_id, remind_at, created_at)
VALUES ($1, $2, $3, $4, $5)
`

const getReminderSQL = `
SELECT id, task_id, user_id, remind_at, created_at FROM reminders WHERE id = $1
`

const getOwnedReminderSQL = `
SELECT id, task_id, user_id, remind_at, created_at
FROM reminders
WHERE id = $1 AND task_id = $2 AND user_id = $3
`

const listRemindersByTaskSQL = `
SELECT id, task_id, user_id, remind_at, created_at
FROM reminders
WHERE task_id = $1 AND user_id = $2
ORDER BY remind_at
`

const deleteReminderSQL = `
DELETE FROM reminders WHERE id = $1
`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, createRemindersTableSQL); err != nil {
		return err
	}
	_, err := r.Pool.Exec(ctx, createRemindersTaskIndexSQL)
	return err
}

func (r *PostgresRepository) Insert(ctx context.Context, rem Reminder) error {
	_, err := r.Pool.Exec(ctx, insertReminderSQL,
		rem.ID, rem.TaskID, rem.UserID, rem.RemindAt, rem.CreatedAt)
	return err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Reminder, error) {
	return r.scanOne(r.Pool.QueryRow(ctx, getReminderSQL, id))
}

func (r *PostgresRepository) GetOwned(ctx context.Context, id, taskID, userID string) (Reminder, error) {
	return r.scanOne(r.Pool.QueryRow(ctx, getOwnedReminderSQL, id, taskID, userID))
}

func (r *PostgresRepository) ListByTask(ctx context.Context, taskID, userID string) ([]Reminder, error) {
	rows, err := r.Pool.Query(ctx, listRemindersByTaskSQL, taskID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.ID, &rem.TaskID, &rem.UserID, &rem.RemindAt, &rem.CreatedAt); err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.Pool.Exec(ctx, deleteReminderSQL, id)
	return err
}

func (r *PostgresRepository) scanOne(row pgx.Row) (Reminder, error) {
	var rem Reminder
	err := row.Scan(&rem.ID, &rem.TaskID, &rem.UserID, &rem.RemindAt, &rem.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reminder{}, ErrReminderNotFound
		}
		return Reminder{}, err
	}
	return rem, nil
}
