// Package notification consumes reminder events and performs the
// notification side effect. It is the template consumer: decode, run the
// idempotency-guarded effect, ack.
package notification

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
	"github.com/tasklife/project/internal/contracts"
)

// ServiceName keys this consumer's rows in the idempotency ledger.
const ServiceName = "notification-service"

var ErrInvalidEventPayload = errors.New("invalid event payload")
var ErrUnsupportedEventType = errors.New("unsupported event type")

// Notifier performs the delivery side effect for one fired reminder.
type Notifier interface {
	Notify(ctx context.Context, reminder contracts.ReminderPayload) error
}

// LogNotifier stands in for a delivery channel integration.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, reminder contracts.ReminderPayload) error {
	log.WithFields(log.Fields{
		"reminder_id": reminder.ReminderID,
		"task_id":     reminder.TaskID,
		"user_id":     reminder.UserID,
		"title":       reminder.Title,
		"remind_at":   reminder.RemindAt,
	}).Info("reminder notification")
	return nil
}

// Guard is the idempotency ledger surface this consumer needs.
type Guard interface {
	Run(ctx context.Context, eventID string, effect func(context.Context, pgx.Tx) error) (bool, error)
}

type Service struct {
	Ledger   Guard
	Notifier Notifier
}

func NewService(guard Guard, notifier Notifier) *Service {
	return &Service{Ledger: guard, Notifier: notifier}
}

// Handle processes one reminders message.
func (s *Service) Handle(ctx context.Context, payload []byte) error {
	env, reminder, err := contracts.DecodeReminderEvent(payload)
	if err != nil {
		if errors.Is(err, contracts.ErrUnknownEventType) {
			return ErrUnsupportedEventType
		}
		return ErrInvalidEventPayload
	}

	processed, err := s.Ledger.Run(ctx, env.EventID, func(ctx context.Context, _ pgx.Tx) error {
		return s.Notifier.Notify(ctx, reminder)
	})
	if err != nil {
		return err
	}
	if !processed {
		log.Infof("event %s already processed, skipping", env.EventID)
	}
	return nil
}
