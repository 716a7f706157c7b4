// Package query reads the task table owned by the external CRUD path. The
// lifecycle core never writes it; the reader exists so the scheduler can
// validate ownership and build fire-time snapshots.
package query

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tasklife/project/internal/contracts"
)

var ErrTaskNotFound = errors.New("task not found")

type TaskView struct {
	TaskID         string                   `json:"task_id"`
	UserID         string                   `json:"user_id"`
	Title          string                   `json:"title"`
	Description    string                   `json:"description,omitempty"`
	Completed      bool                     `json:"completed"`
	Priority       contracts.Priority       `json:"priority"`
	Tags           []string                 `json:"tags"`
	DueAt          *time.Time               `json:"due_at,omitempty"`
	IsRecurring    bool                     `json:"is_recurring"`
	RecurrenceRule contracts.RecurrenceRule `json:"recurrence_rule"`
}

type TaskRepository struct {
	Pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{Pool: pool}
}

// GetTaskByID returns the task only when it belongs to userID; a foreign
// user's task reads as not found.
func (r *TaskRepository) GetTaskByID(ctx context.Context, taskID, userID string) (TaskView, error) {
	var t TaskView
	var priority, rule *string
	err := r.Pool.QueryRow(ctx,
		`SELECT id, user_id, title, COALESCE(description, ''), completed,
		        priority, tags, due_at, is_recurring, recurrence_rule
		 FROM tasks
		 WHERE id = $1 AND user_id = $2`,
		taskID, userID,
	).Scan(
		&t.TaskID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Completed,
		&priority,
		&t.Tags,
		&t.DueAt,
		&t.IsRecurring,
		&rule,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TaskView{}, ErrTaskNotFound
		}
		return TaskView{}, err
	}

	t.Priority = contracts.PriorityNone
	if priority != nil && *priority != "" {
		t.Priority = contracts.Priority(*priority)
	}
	t.RecurrenceRule = contracts.RecurrenceNone
	if rule != nil && *rule != "" {
		t.RecurrenceRule = contracts.RecurrenceRule(*rule)
	}
	return t, nil
}
