package publisher

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tasklife/project/internal/contracts"
)

// Handler accepts lifecycle notifications from the external task-mutation
// path. The mutation has already committed when this endpoint is hit, so the
// response is 202 as soon as the events are queued.
type Handler struct {
	Service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/internal/events/tasks", h.handleTaskEvent)
	return r
}

type taskEventRequest struct {
	EventType contracts.EventType    `json:"event_type"`
	Task      contracts.TaskSnapshot `json:"task"`
}

func (h *Handler) handleTaskEvent(w http.ResponseWriter, r *http.Request) {
	var req taskEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.EventType.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown event type")
		return
	}
	if req.Task.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := req.Task.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.Service.PublishTaskEvent(req.EventType, req.Task, req.Task.UserID)
	h.Service.PublishTaskUpdateEvent(req.EventType, req.Task.ID, req.Task.UserID)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
