package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/tasklife/project/internal/app/audit"
	"github.com/tasklife/project/internal/app/notification"
	"github.com/tasklife/project/internal/app/publisher"
	"github.com/tasklife/project/internal/app/query"
	"github.com/tasklife/project/internal/app/recurring"
	"github.com/tasklife/project/internal/app/scheduler"
	"github.com/tasklife/project/internal/contracts"
	"github.com/tasklife/project/internal/messaging"
	"github.com/tasklife/project/internal/sharding"
)

// memGuard is an in-memory stand-in for one service's idempotency ledger.
type memGuard struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newMemGuard() *memGuard {
	return &memGuard{claimed: make(map[string]bool)}
}

func (g *memGuard) Run(ctx context.Context, eventID string, effect func(context.Context, pgx.Tx) error) (bool, error) {
	g.mu.Lock()
	if g.claimed[eventID] {
		g.mu.Unlock()
		return false, nil
	}
	g.claimed[eventID] = true
	g.mu.Unlock()
	if effect != nil {
		if err := effect(ctx, nil); err != nil {
			g.mu.Lock()
			delete(g.claimed, eventID)
			g.mu.Unlock()
			return false, err
		}
	}
	return true, nil
}

func (g *memGuard) Release(_ context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, eventID)
	return nil
}

type memCreator struct {
	mu       sync.Mutex
	created  []recurring.CreateTaskRequest
	keys     map[string]bool
	lastUser string
}

func (c *memCreator) CreateTask(_ context.Context, userID string, req recurring.CreateTaskRequest, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys == nil {
		c.keys = make(map[string]bool)
	}
	if c.keys[key] {
		return nil
	}
	c.keys[key] = true
	c.created = append(c.created, req)
	c.lastUser = userID
	return nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (r *memAuditRepo) InsertEntry(_ context.Context, _ pgx.Tx, entry audit.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

type memReminderRepo struct {
	mu        sync.Mutex
	reminders map[string]scheduler.Reminder
}

func (r *memReminderRepo) Insert(_ context.Context, rem scheduler.Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reminders[rem.ID] = rem
	return nil
}

func (r *memReminderRepo) Get(_ context.Context, id string) (scheduler.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return scheduler.Reminder{}, scheduler.ErrReminderNotFound
	}
	return rem, nil
}

func (r *memReminderRepo) GetOwned(_ context.Context, id, taskID, userID string) (scheduler.Reminder, error) {
	rem, err := r.Get(context.Background(), id)
	if err != nil || rem.TaskID != taskID || rem.UserID != userID {
		return scheduler.Reminder{}, scheduler.ErrReminderNotFound
	}
	return rem, nil
}

func (r *memReminderRepo) ListByTask(_ context.Context, taskID, userID string) ([]scheduler.Reminder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []scheduler.Reminder
	for _, rem := range r.reminders {
		if rem.TaskID == taskID && rem.UserID == userID {
			out = append(out, rem)
		}
	}
	return out, nil
}

func (r *memReminderRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.reminders, id)
	return nil
}

type memTaskReader struct {
	tasks map[string]query.TaskView
}

func (r *memTaskReader) GetTaskByID(_ context.Context, taskID, userID string) (query.TaskView, error) {
	t, ok := r.tasks[taskID]
	if !ok || t.UserID != userID {
		return query.TaskView{}, query.ErrTaskNotFound
	}
	return t, nil
}

type memJobs struct{}

func (memJobs) Schedule(context.Context, string, time.Time) error { return nil }
func (memJobs) Cancel(context.Context, string) error              { return nil }

type recordingNotifier struct {
	mu        sync.Mutex
	delivered []contracts.ReminderPayload
}

func (n *recordingNotifier) Notify(_ context.Context, reminder contracts.ReminderPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, reminder)
	return nil
}

// TestRecurringCompletionEndToEnd runs the full consumer fan-out for a
// completed recurring task over the in-process bus: the recurring consumer
// must create exactly one next occurrence and the audit consumer must record
// exactly one entry, redeliveries included.
func TestRecurringCompletionEndToEnd(t *testing.T) {
	ctx := context.Background()
	bus := messaging.NewMemoryBus()

	creator := &memCreator{}
	recurringSvc := recurring.NewService(newMemGuard(), creator)
	auditRepo := &memAuditRepo{}
	auditSvc := audit.NewService(newMemGuard(), auditRepo)

	var mu sync.Mutex
	var taskEventPayloads [][]byte
	bus.Subscribe(sharding.TopicFilter(contracts.TopicTaskEvents), func(_ string, payload []byte) {
		mu.Lock()
		taskEventPayloads = append(taskEventPayloads, payload)
		mu.Unlock()
		if err := recurringSvc.Handle(ctx, payload); err != nil {
			t.Errorf("recurring handle failed: %v", err)
		}
		if err := auditSvc.Handle(ctx, payload); err != nil {
			t.Errorf("audit handle failed: %v", err)
		}
	})

	dispatcher := publisher.NewDispatcher(bus.Publish, 1, 16)
	pubSvc := publisher.NewService(dispatcher)

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	pubSvc.Now = func() time.Time { return now }
	due := now.Add(24 * time.Hour)
	snap := contracts.TaskSnapshot{
		ID:             "task-1",
		UserID:         "user-1",
		Title:          "water the plants",
		Completed:      true,
		Priority:       contracts.PriorityHigh,
		Tags:           []string{"home"},
		DueAt:          &due,
		IsRecurring:    true,
		RecurrenceRule: contracts.RecurrenceDaily,
	}

	pubSvc.PublishTaskEvent(contracts.TaskCompleted, snap, "user-1")
	pubSvc.PublishTaskUpdateEvent(contracts.TaskCompleted, "task-1", "user-1")
	dispatcher.Stop()

	if len(creator.created) != 1 {
		t.Fatalf("expected 1 created occurrence, got %d", len(creator.created))
	}
	next := creator.created[0]
	if !next.DueAt.Equal(due.Add(24 * time.Hour)) {
		t.Fatalf("next due_at must advance one day from the old due_at, got %v", next.DueAt)
	}
	if next.Title != "water the plants" || next.Priority != contracts.PriorityHigh {
		t.Fatalf("next occurrence must preserve attributes: %+v", next)
	}
	if len(next.Tags) != 1 || next.Tags[0] != "home" {
		t.Fatalf("next occurrence must preserve tags: %v", next.Tags)
	}
	if !next.IsRecurring || next.RecurrenceRule != contracts.RecurrenceDaily {
		t.Fatalf("next occurrence must remain recurring: %+v", next)
	}
	if creator.lastUser != "user-1" {
		t.Fatalf("occurrence created for wrong user: %q", creator.lastUser)
	}

	if len(auditRepo.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(auditRepo.entries))
	}
	if auditRepo.entries[0].EventType != string(contracts.TaskCompleted) {
		t.Fatalf("unexpected audit event type: %q", auditRepo.entries[0].EventType)
	}

	// Redeliver the captured task-events payload; both ledgers must absorb it.
	for _, payload := range taskEventPayloads {
		if err := recurringSvc.Handle(ctx, payload); err != nil {
			t.Fatalf("redelivered handle failed: %v", err)
		}
		if err := auditSvc.Handle(ctx, payload); err != nil {
			t.Fatalf("redelivered handle failed: %v", err)
		}
	}
	if len(creator.created) != 1 {
		t.Fatalf("redelivery must not duplicate the occurrence, got %d", len(creator.created))
	}
	if len(auditRepo.entries) != 1 {
		t.Fatalf("redelivery must not duplicate the audit entry, got %d", len(auditRepo.entries))
	}
}

// TestReminderFireEndToEnd runs create-reminder through a fire callback to
// the notification consumer, including a duplicate callback.
func TestReminderFireEndToEnd(t *testing.T) {
	ctx := context.Background()
	bus := messaging.NewMemoryBus()

	notifier := &recordingNotifier{}
	notifySvc := notification.NewService(newMemGuard(), notifier)
	bus.Subscribe(sharding.TopicFilter(contracts.TopicReminders), func(_ string, payload []byte) {
		if err := notifySvc.Handle(ctx, payload); err != nil {
			t.Errorf("notification handle failed: %v", err)
		}
	})

	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	due := now.Add(24 * time.Hour)
	tasks := &memTaskReader{tasks: map[string]query.TaskView{
		"task-1": {TaskID: "task-1", UserID: "user-1", Title: "water the plants", DueAt: &due},
	}}
	repo := &memReminderRepo{reminders: make(map[string]scheduler.Reminder)}
	schedSvc := scheduler.NewService(repo, tasks, memJobs{}, bus.Publish, newMemGuard())
	schedSvc.Now = func() time.Time { return now }

	rem, err := schedSvc.CreateReminder(ctx, "task-1", "user-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("CreateReminder returned error: %v", err)
	}

	if err := schedSvc.OnJobFire(ctx, rem.ID); err != nil {
		t.Fatalf("OnJobFire returned error: %v", err)
	}
	if err := schedSvc.OnJobFire(ctx, rem.ID); err != nil {
		t.Fatalf("duplicate OnJobFire returned error: %v", err)
	}

	if len(notifier.delivered) != 1 {
		t.Fatalf("expected 1 delivered notification, got %d", len(notifier.delivered))
	}
	got := notifier.delivered[0]
	if got.ReminderID != rem.ID || got.TaskID != "task-1" || got.Title != "water the plants" {
		t.Fatalf("unexpected notification payload: %+v", got)
	}
	if got.DueAt == nil || !got.DueAt.Equal(due) {
		t.Fatalf("notification must carry the task due_at, got %v", got.DueAt)
	}
}
