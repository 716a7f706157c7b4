package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Topic names are stable across environments; payload shape changes require a
// new topic, never a retyped field.
const (
	TopicTaskEvents  = "task-events"
	TopicTaskUpdates = "task-updates"
	TopicReminders   = "reminders"
)

// EventType discriminates task lifecycle events and update change types.
type EventType string

const (
	TaskCreated   EventType = "created"
	TaskUpdated   EventType = "updated"
	TaskCompleted EventType = "completed"
	TaskDeleted   EventType = "deleted"
)

// ReminderTriggered is the only event type carried on the reminders topic.
const ReminderTriggered EventType = "reminder.triggered"

var ErrUnknownEventType = errors.New("unknown event type")
var ErrInvalidEnvelope = errors.New("invalid event envelope")

// Valid reports whether t is a task lifecycle event type.
func (t EventType) Valid() bool {
	switch t {
	case TaskCreated, TaskUpdated, TaskCompleted, TaskDeleted:
		return true
	default:
		return false
	}
}

// Priority of a task snapshot. PriorityNone marks the absence of a priority.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
	PriorityNone     Priority = "none"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical, PriorityNone:
		return true
	default:
		return false
	}
}

// RecurrenceRule of a recurring task. RecurrenceNone marks a one-off task.
type RecurrenceRule string

const (
	RecurrenceDaily   RecurrenceRule = "daily"
	RecurrenceWeekly  RecurrenceRule = "weekly"
	RecurrenceMonthly RecurrenceRule = "monthly"
	RecurrenceNone    RecurrenceRule = "none"
)

func (r RecurrenceRule) Valid() bool {
	switch r {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceNone:
		return true
	default:
		return false
	}
}

// Envelope is the topic-agnostic wire shape for every published event.
type Envelope struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	TaskID    string          `json:"task_id"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// TaskSnapshot is the task state carried inside task-events payloads. It is a
// point-in-time copy, not the persisted entity.
type TaskSnapshot struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Completed      bool           `json:"completed"`
	Priority       Priority       `json:"priority"`
	Tags           []string       `json:"tags"`
	DueAt          *time.Time     `json:"due_at,omitempty"`
	IsRecurring    bool           `json:"is_recurring"`
	RecurrenceRule RecurrenceRule `json:"recurrence_rule"`
}

var ErrTitleRequired = errors.New("title is required")
var ErrInvalidPriority = errors.New("invalid priority")
var ErrInvalidRecurrence = errors.New("is_recurring and recurrence_rule must agree")
var ErrInvalidTags = errors.New("tags must be unique non-empty strings")

// Validate enforces the snapshot invariants, in particular
// is_recurring <=> recurrence_rule != none.
func (s TaskSnapshot) Validate() error {
	if s.Title == "" {
		return ErrTitleRequired
	}
	if !s.Priority.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPriority, s.Priority)
	}
	if !s.RecurrenceRule.Valid() {
		return fmt.Errorf("%w: rule %q", ErrInvalidRecurrence, s.RecurrenceRule)
	}
	if s.IsRecurring != (s.RecurrenceRule != RecurrenceNone) {
		return ErrInvalidRecurrence
	}
	seen := make(map[string]struct{}, len(s.Tags))
	for _, tag := range s.Tags {
		if tag == "" {
			return ErrInvalidTags
		}
		if _, dup := seen[tag]; dup {
			return ErrInvalidTags
		}
		seen[tag] = struct{}{}
	}
	return nil
}

// TaskUpdatePayload is the lighter-weight signal published on task-updates for
// future real-time sync consumers.
type TaskUpdatePayload struct {
	TaskID     string    `json:"task_id"`
	UserID     string    `json:"user_id"`
	ChangeType EventType `json:"change_type"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReminderPayload is the payload published on the reminders topic when a
// scheduled reminder fires.
type ReminderPayload struct {
	ReminderID string     `json:"reminder_id"`
	TaskID     string     `json:"task_id"`
	Title      string     `json:"title"`
	UserID     string     `json:"user_id"`
	DueAt      *time.Time `json:"due_at,omitempty"`
	RemindAt   time.Time  `json:"remind_at"`
	Timestamp  time.Time  `json:"timestamp"`
}

// DecodeTaskEvent parses a task-events message into its envelope and snapshot.
// Unknown event types are rejected so consumers can log and skip instead of
// mishandling a new variant.
func DecodeTaskEvent(data []byte) (Envelope, TaskSnapshot, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, TaskSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.EventID == "" || env.TaskID == "" || env.UserID == "" {
		return Envelope{}, TaskSnapshot{}, ErrInvalidEnvelope
	}
	if !env.EventType.Valid() {
		return Envelope{}, TaskSnapshot{}, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	var snap TaskSnapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil {
		return Envelope{}, TaskSnapshot{}, fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
	}
	return env, snap, nil
}

// DecodeReminderEvent parses a reminders message.
func DecodeReminderEvent(data []byte) (Envelope, ReminderPayload, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, ReminderPayload{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if env.EventID == "" {
		return Envelope{}, ReminderPayload{}, ErrInvalidEnvelope
	}
	if env.EventType != ReminderTriggered {
		return Envelope{}, ReminderPayload{}, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
	var payload ReminderPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return Envelope{}, ReminderPayload{}, fmt.Errorf("%w: payload: %v", ErrInvalidEnvelope, err)
	}
	if payload.ReminderID == "" || payload.TaskID == "" {
		return Envelope{}, ReminderPayload{}, ErrInvalidEnvelope
	}
	return env, payload, nil
}
