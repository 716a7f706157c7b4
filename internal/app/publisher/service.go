// Package publisher turns task state changes into envelopes on the
// task-events and task-updates topics. Publishing is fire-and-forget: the
// task mutation that triggered it has already committed and must never fail
// or roll back because a broadcast did.
package publisher

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tasklife/project/internal/contracts"
	"github.com/tasklife/project/internal/sharding"
)

type Service struct {
	Dispatcher *Dispatcher
	Now        func() time.Time
	NewID      func() string
}

func NewService(dispatcher *Dispatcher) *Service {
	return &Service{
		Dispatcher: dispatcher,
		Now:        func() time.Time { return time.Now().UTC() },
		NewID:      uuid.NewString,
	}
}

// PublishTaskEvent broadcasts a full-snapshot lifecycle event on task-events.
// One outbound message on success, zero on failure, never a partial envelope.
func (s *Service) PublishTaskEvent(eventType contracts.EventType, snap contracts.TaskSnapshot, userID string) {
	payload, err := json.Marshal(snap)
	if err != nil {
		log.Errorf("marshal task snapshot %s: %v", snap.ID, err)
		return
	}
	env := contracts.Envelope{
		EventID:   s.NewID(),
		EventType: eventType,
		TaskID:    snap.ID,
		UserID:    userID,
		Payload:   payload,
		Timestamp: s.Now(),
	}
	s.enqueue(contracts.TopicTaskEvents, env, userID)
}

// PublishTaskUpdateEvent broadcasts the lighter-weight change signal on
// task-updates. The two topic sends for one mutation are independent: neither
// blocks the caller and neither failure affects the other.
func (s *Service) PublishTaskUpdateEvent(changeType contracts.EventType, taskID, userID string) {
	now := s.Now()
	payload, err := json.Marshal(contracts.TaskUpdatePayload{
		TaskID:     taskID,
		UserID:     userID,
		ChangeType: changeType,
		Timestamp:  now,
	})
	if err != nil {
		log.Errorf("marshal task update %s: %v", taskID, err)
		return
	}
	env := contracts.Envelope{
		EventID:   s.NewID(),
		EventType: changeType,
		TaskID:    taskID,
		UserID:    userID,
		Payload:   payload,
		Timestamp: now,
	}
	s.enqueue(contracts.TopicTaskUpdates, env, userID)
}

func (s *Service) enqueue(topic string, env contracts.Envelope, userID string) {
	body, err := json.Marshal(env)
	if err != nil {
		log.Errorf("marshal %s envelope %s: %v", topic, env.EventID, err)
		return
	}
	s.Dispatcher.Enqueue(topic, sharding.Subject(topic, userID), body)
}
