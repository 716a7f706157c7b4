package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type Lister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// Handler serves the read side of the audit trail. The acting user comes from
// the X-User-Id header set by the upstream auth layer.
type Handler struct {
	Entries Lister
}

func NewHandler(entries Lister) *Handler {
	return &Handler{Entries: entries}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/audit", h.handleList)
	return r
}

type entryResponse struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	TaskID    string          `json:"task_id"`
	UserID    string          `json:"user_id"`
	EventData json.RawMessage `json:"event_data"`
	Timestamp string          `json:"timestamp"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		h.writeError(w, http.StatusUnauthorized, "missing X-User-Id header")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.Entries.ListByUser(r.Context(), userID, limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, entryResponse{
			ID:        entry.ID,
			EventType: entry.EventType,
			TaskID:    entry.TaskID,
			UserID:    entry.UserID,
			EventData: json.RawMessage(entry.EventData),
			Timestamp: entry.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
