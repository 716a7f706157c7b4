package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	taskEventsStream  = "TASK_EVENTS"
	taskUpdatesStream = "TASK_UPDATES"
	remindersStream   = "REMINDERS"
)

// EnsureStreams creates (or validates) the three streams backing the topics:
// - todo.task-events.>
// - todo.task-updates.>
// - todo.reminders.>
func EnsureStreams(js nats.JetStreamContext) error {
	streams := []struct {
		name    string
		subject string
	}{
		{taskEventsStream, "todo.task-events.>"},
		{taskUpdatesStream, "todo.task-updates.>"},
		{remindersStream, "todo.reminders.>"},
	}

	for _, stream := range streams {
		if _, err := js.StreamInfo(stream.name); err != nil {
			if errors.Is(err, nats.ErrStreamNotFound) {
				if _, addErr := js.AddStream(&nats.StreamConfig{
					Name:      stream.name,
					Subjects:  []string{stream.subject},
					Retention: nats.LimitsPolicy,
					Storage:   nats.FileStorage,
					Replicas:  1,
				}); addErr != nil {
					return addErr
				}
			} else {
				return err
			}
		}
	}

	return nil
}
