// Package recurring consumes task-events and regenerates the next occurrence
// of completed recurring tasks through the task-mutation collaborator.
package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
	"github.com/tasklife/project/internal/contracts"
)

// ServiceName keys this consumer's rows in the idempotency ledger.
const ServiceName = "recurring-service"

var ErrInvalidEventPayload = errors.New("invalid event payload")
var ErrUnsupportedEventType = errors.New("unsupported event type")

// CreateTaskRequest is the body of the collaborator's create-task operation.
type CreateTaskRequest struct {
	Title          string                   `json:"title"`
	Description    string                   `json:"description,omitempty"`
	Priority       contracts.Priority       `json:"priority"`
	Tags           []string                 `json:"tags"`
	DueAt          time.Time                `json:"due_at"`
	IsRecurring    bool                     `json:"is_recurring"`
	RecurrenceRule contracts.RecurrenceRule `json:"recurrence_rule"`
}

// TaskCreator is the call back into the task-mutation path. It must behave as
// an idempotent remote procedure when given the same idempotency key.
type TaskCreator interface {
	CreateTask(ctx context.Context, userID string, req CreateTaskRequest, idempotencyKey string) error
}

// Guard is the idempotency ledger surface this consumer needs.
type Guard interface {
	Run(ctx context.Context, eventID string, effect func(context.Context, pgx.Tx) error) (bool, error)
}

type Service struct {
	Ledger Guard
	Tasks  TaskCreator
	Now    func() time.Time
}

func NewService(guard Guard, tasks TaskCreator) *Service {
	return &Service{
		Ledger: guard,
		Tasks:  tasks,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one task-events message. Irrelevant events (anything but a
// completed recurring task) are acked without touching the ledger. For
// relevant ones the create-task call and the ledger mark commit atomically:
// a failed remote call rolls both back so redelivery retries.
func (s *Service) Handle(ctx context.Context, payload []byte) error {
	env, snap, err := contracts.DecodeTaskEvent(payload)
	if err != nil {
		if errors.Is(err, contracts.ErrUnknownEventType) {
			return ErrUnsupportedEventType
		}
		return ErrInvalidEventPayload
	}

	if env.EventType != contracts.TaskCompleted || !snap.IsRecurring {
		return nil
	}

	rule := snap.RecurrenceRule
	if rule == contracts.RecurrenceNone || !rule.Valid() {
		log.Warnf("recurring task %s has rule %q, defaulting to daily", env.TaskID, rule)
		rule = contracts.RecurrenceDaily
	}

	processed, err := s.Ledger.Run(ctx, env.EventID, func(ctx context.Context, _ pgx.Tx) error {
		base := s.Now()
		if snap.DueAt != nil {
			base = *snap.DueAt
		}
		req := CreateTaskRequest{
			Title:          snap.Title,
			Description:    snap.Description,
			Priority:       snap.Priority,
			Tags:           snap.Tags,
			DueAt:          NextDueAt(base, rule),
			IsRecurring:    true,
			RecurrenceRule: rule,
		}
		return s.Tasks.CreateTask(ctx, env.UserID, req, IdempotencyKey(env.TaskID, env.Timestamp))
	})
	if err != nil {
		return err
	}
	if !processed {
		log.Infof("event %s already processed, skipping", env.EventID)
		return nil
	}

	log.Infof("created next occurrence for task %s (user %s)", env.TaskID, env.UserID)
	return nil
}

// IdempotencyKey derives a stable key for one completion of one task, so a
// retried create-task call after a lost acknowledgment cannot duplicate.
func IdempotencyKey(taskID string, completedAt time.Time) string {
	return taskID + ":" + completedAt.UTC().Format(time.RFC3339Nano)
}
