// Package scheduler owns reminders: their persistence, the one-shot jobs
// that fire them, and the ReminderEvent published when a fire callback
// arrives from the external job runtime.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
	"github.com/tasklife/project/internal/app/query"
	"github.com/tasklife/project/internal/contracts"
	"github.com/tasklife/project/internal/platform/metrics"
	"github.com/tasklife/project/internal/sharding"
)

// ServiceName keys the fire guard's rows in the idempotency ledger.
const ServiceName = "reminder-scheduler"

var ErrInvalidSchedule = errors.New("remind_at must be in the future")
var ErrTaskNotFound = errors.New("task not found")

var remindersScheduledTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "lifecycle_reminders_scheduled_total",
	Help: "Reminder jobs handed to the job runtime.",
}, nil)

var remindersFiredTotal = metrics.NewCounterVec(metrics.Opts{
	Name: "lifecycle_reminders_fired_total",
	Help: "Fire callbacks that published a ReminderEvent, by outcome.",
}, []string{"outcome"})

func init() {
	metrics.Default.MustRegister(remindersScheduledTotal, remindersFiredTotal)
}

type Repository interface {
	Insert(ctx context.Context, rem Reminder) error
	Get(ctx context.Context, id string) (Reminder, error)
	GetOwned(ctx context.Context, id, taskID, userID string) (Reminder, error)
	ListByTask(ctx context.Context, taskID, userID string) ([]Reminder, error)
	Delete(ctx context.Context, id string) error
}

type TaskReader interface {
	GetTaskByID(ctx context.Context, taskID, userID string) (query.TaskView, error)
}

// JobRunner is the black-box external scheduler: schedule a one-shot job,
// cancel one. Cancelling an unknown or already-fired job is a no-op.
type JobRunner interface {
	Schedule(ctx context.Context, jobID string, fireAt time.Time) error
	Cancel(ctx context.Context, jobID string) error
}

// Guard is the idempotency ledger surface the fire handler needs. Release
// compensates a claim whose follow-up publish failed synchronously.
type Guard interface {
	Run(ctx context.Context, eventID string, effect func(context.Context, pgx.Tx) error) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type PublishFunc func(subject string, payload []byte) error

type Service struct {
	Reminders Repository
	Tasks     TaskReader
	Jobs      JobRunner
	Publish   PublishFunc
	Ledger    Guard
	Now       func() time.Time
	NewID     func() string
}

func NewService(reminders Repository, tasks TaskReader, jobs JobRunner, publish PublishFunc, guard Guard) *Service {
	return &Service{
		Reminders: reminders,
		Tasks:     tasks,
		Jobs:      jobs,
		Publish:   publish,
		Ledger:    guard,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     uuid.NewString,
	}
}

// JobID keys the one-shot job by its reminder.
func JobID(reminderID string) string {
	return "reminder-" + reminderID
}

// ReminderIDFromJob is the inverse of JobID, applied to fire callbacks.
func ReminderIDFromJob(jobID string) string {
	return strings.TrimPrefix(jobID, "reminder-")
}

var fireNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("tasklife/reminder-fire"))

// FireEventID derives the deterministic event id for a reminder's firing, so
// a redelivered fire callback claims the same ledger row and cannot
// double-publish.
func FireEventID(reminderID string) string {
	return uuid.NewSHA1(fireNamespace, []byte(reminderID)).String()
}

// CreateReminder validates, persists, then schedules. The job is scheduled
// only after the row is durably committed; a scheduling failure is surfaced
// to the caller as retryable and leaves the committed row as a recoverable
// orphan.
func (s *Service) CreateReminder(ctx context.Context, taskID, userID string, remindAt time.Time) (Reminder, error) {
	if !remindAt.After(s.Now()) {
		return Reminder{}, ErrInvalidSchedule
	}
	if _, err := s.Tasks.GetTaskByID(ctx, taskID, userID); err != nil {
		if errors.Is(err, query.ErrTaskNotFound) {
			return Reminder{}, ErrTaskNotFound
		}
		return Reminder{}, err
	}

	rem := Reminder{
		ID:        s.NewID(),
		TaskID:    taskID,
		UserID:    userID,
		RemindAt:  remindAt.UTC(),
		CreatedAt: s.Now(),
	}
	if err := s.Reminders.Insert(ctx, rem); err != nil {
		return Reminder{}, fmt.Errorf("persist reminder: %w", err)
	}

	if err := s.Jobs.Schedule(ctx, JobID(rem.ID), rem.RemindAt); err != nil {
		return Reminder{}, fmt.Errorf("schedule reminder job: %w", err)
	}
	remindersScheduledTotal.WithLabelValues().Inc()
	return rem, nil
}

// ListReminders returns a task's reminders for its owner.
func (s *Service) ListReminders(ctx context.Context, taskID, userID string) ([]Reminder, error) {
	if _, err := s.Tasks.GetTaskByID(ctx, taskID, userID); err != nil {
		if errors.Is(err, query.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return s.Reminders.ListByTask(ctx, taskID, userID)
}

// DeleteReminder cancels the job before deleting the row, so a reminder
// reported as deleted can never subsequently fire.
func (s *Service) DeleteReminder(ctx context.Context, reminderID, taskID, userID string) error {
	rem, err := s.Reminders.GetOwned(ctx, reminderID, taskID, userID)
	if err != nil {
		return err
	}
	if err := s.Jobs.Cancel(ctx, JobID(rem.ID)); err != nil {
		return fmt.Errorf("cancel reminder job: %w", err)
	}
	return s.Reminders.Delete(ctx, rem.ID)
}

// CascadeTaskDeleted cancels and removes every reminder owned by a deleted
// task. Called by the external task-mutation path during task deletion.
func (s *Service) CascadeTaskDeleted(ctx context.Context, taskID, userID string) error {
	reminders, err := s.Reminders.ListByTask(ctx, taskID, userID)
	if err != nil {
		return err
	}
	for _, rem := range reminders {
		if err := s.Jobs.Cancel(ctx, JobID(rem.ID)); err != nil {
			return fmt.Errorf("cancel reminder job %s: %w", rem.ID, err)
		}
		if err := s.Reminders.Delete(ctx, rem.ID); err != nil {
			return err
		}
	}
	return nil
}

// OnJobFire handles the job runtime's callback. A missing reminder or task
// (deleted after scheduling, before cancellation propagated) is logged and
// skipped. The deterministic fire event id is claimed in the ledger before
// publishing; the claim is released if the publish itself fails, so the
// runtime's redelivery retries. The ledger transaction is never held open
// across the bus call.
func (s *Service) OnJobFire(ctx context.Context, reminderID string) error {
	rem, err := s.Reminders.Get(ctx, reminderID)
	if err != nil {
		if errors.Is(err, ErrReminderNotFound) {
			log.Warnf("fire callback for unknown reminder %s, skipping", reminderID)
			remindersFiredTotal.WithLabelValues("orphaned").Inc()
			return nil
		}
		return err
	}
	task, err := s.Tasks.GetTaskByID(ctx, rem.TaskID, rem.UserID)
	if err != nil {
		if errors.Is(err, query.ErrTaskNotFound) {
			log.Warnf("reminder %s fired for deleted task %s, skipping", reminderID, rem.TaskID)
			remindersFiredTotal.WithLabelValues("orphaned").Inc()
			return nil
		}
		return err
	}

	eventID := FireEventID(reminderID)
	claimed, err := s.Ledger.Run(ctx, eventID, nil)
	if err != nil {
		return err
	}
	if !claimed {
		log.Infof("reminder %s already fired, skipping", reminderID)
		remindersFiredTotal.WithLabelValues("duplicate").Inc()
		return nil
	}

	now := s.Now()
	payload, err := json.Marshal(contracts.ReminderPayload{
		ReminderID: rem.ID,
		TaskID:     rem.TaskID,
		Title:      task.Title,
		UserID:     rem.UserID,
		DueAt:      task.DueAt,
		RemindAt:   rem.RemindAt,
		Timestamp:  now,
	})
	if err != nil {
		return fmt.Errorf("marshal reminder payload: %w", err)
	}
	env := contracts.Envelope{
		EventID:   eventID,
		EventType: contracts.ReminderTriggered,
		TaskID:    rem.TaskID,
		UserID:    rem.UserID,
		Payload:   payload,
		Timestamp: now,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal reminder envelope: %w", err)
	}

	if err := s.Publish(sharding.Subject(contracts.TopicReminders, rem.UserID), body); err != nil {
		if releaseErr := s.Ledger.Release(ctx, eventID); releaseErr != nil {
			log.Errorf("release fire claim %s: %v", eventID, releaseErr)
		}
		remindersFiredTotal.WithLabelValues("publish_failed").Inc()
		return fmt.Errorf("publish reminder event: %w", err)
	}
	remindersFiredTotal.WithLabelValues("published").Inc()
	return nil
}
