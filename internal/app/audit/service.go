// Package audit consumes every task lifecycle event and appends immutable,
// user-scoped audit records. The idempotency ledger is the only duplicate
// guard here, so it runs in the same transaction as the insert.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nats-io/nuid"
	log "github.com/sirupsen/logrus"
	"github.com/tasklife/project/internal/contracts"
)

// ServiceName keys this consumer's rows in the idempotency ledger.
const ServiceName = "audit-service"

var ErrInvalidEventPayload = errors.New("invalid event payload")
var ErrUnsupportedEventType = errors.New("unsupported event type")

// Entry is one append-only audit record. TaskID is a reference, not a foreign
// key: the task may be deleted later while the trail persists.
type Entry struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	TaskID    string    `json:"task_id"`
	UserID    string    `json:"user_id"`
	EventData []byte    `json:"event_data"`
	Timestamp time.Time `json:"timestamp"`
}

type Repository interface {
	InsertEntry(ctx context.Context, tx pgx.Tx, entry Entry) error
}

// Guard is the idempotency ledger surface this consumer needs.
type Guard interface {
	Run(ctx context.Context, eventID string, effect func(context.Context, pgx.Tx) error) (bool, error)
}

type Service struct {
	Ledger     Guard
	Repository Repository
	NewID      func() string
}

func NewService(guard Guard, repository Repository) *Service {
	return &Service{
		Ledger:     guard,
		Repository: repository,
		NewID:      nuid.Next,
	}
}

// Handle processes one task-events message: every event type is recorded, no
// filtering. The entry insert and the ledger mark commit atomically.
func (s *Service) Handle(ctx context.Context, payload []byte) error {
	env, _, err := contracts.DecodeTaskEvent(payload)
	if err != nil {
		if errors.Is(err, contracts.ErrUnknownEventType) {
			return ErrUnsupportedEventType
		}
		return ErrInvalidEventPayload
	}

	entry := Entry{
		ID:        s.NewID(),
		EventType: string(env.EventType),
		TaskID:    env.TaskID,
		UserID:    env.UserID,
		EventData: payload,
		Timestamp: env.Timestamp,
	}

	processed, err := s.Ledger.Run(ctx, env.EventID, func(ctx context.Context, tx pgx.Tx) error {
		return s.Repository.InsertEntry(ctx, tx, entry)
	})
	if err != nil {
		return err
	}
	if !processed {
		log.Infof("event %s already processed, skipping", env.EventID)
	}
	return nil
}
