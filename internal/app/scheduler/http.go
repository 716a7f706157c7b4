package scheduler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

// Handler exposes reminder CRUD to users and two internal endpoints: the job
// runtime's fire callback and the task-deletion cascade hook. The acting user
// comes from the X-User-Id header set by the upstream auth layer.
type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/tasks/{taskID}/reminders", h.handleCreate)
	r.Get("/api/v1/tasks/{taskID}/reminders", h.handleList)
	r.Delete("/api/v1/tasks/{taskID}/reminders/{reminderID}", h.handleDelete)
	r.Delete("/internal/tasks/{taskID}/reminders", h.handleCascade)
	r.Post("/internal/jobs/reminder-trigger", h.handleJobFire)
	return r
}

type createReminderRequest struct {
	RemindAt time.Time `json:"remind_at"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing X-User-Id header")
		return
	}
	var req createReminderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RemindAt.IsZero() {
		h.writeError(w, http.StatusBadRequest, "remind_at is required")
		return
	}

	rem, err := h.Service.CreateReminder(r.Context(), chi.URLParam(r, "taskID"), userID, req.RemindAt)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rem)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing X-User-Id header")
		return
	}

	reminders, err := h.Service.ListReminders(r.Context(), chi.URLParam(r, "taskID"), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if reminders == nil {
		reminders = []Reminder{}
	}
	h.writeJSON(w, http.StatusOK, reminders)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing X-User-Id header")
		return
	}

	err := h.Service.DeleteReminder(r.Context(),
		chi.URLParam(r, "reminderID"), chi.URLParam(r, "taskID"), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCascade(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing X-User-Id header")
		return
	}

	if err := h.Service.CascadeTaskDeleted(r.Context(), chi.URLParam(r, "taskID"), userID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type jobFireRequest struct {
	JobID string `json:"job_id"`
}

// handleJobFire is the callback the job runtime POSTs at fire time. A non-2xx
// response makes the runtime redeliver, so transient failures return 500 and
// the ledger absorbs the retries.
func (h *Handler) handleJobFire(w http.ResponseWriter, r *http.Request) {
	var req jobFireRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid job callback body")
		return
	}

	if err := h.Service.OnJobFire(r.Context(), ReminderIDFromJob(req.JobID)); err != nil {
		log.Errorf("fire callback for %s failed: %v", req.JobID, err)
		h.writeError(w, http.StatusInternalServerError, "reminder fire failed")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidSchedule):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrReminderNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		log.Errorf("reminder request failed: %v", err)
		h.writeError(w, http.StatusServiceUnavailable, "reminder operation failed")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
