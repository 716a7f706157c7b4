// Package taskgateway calls back into the task-mutation collaborator to
// create tasks. The call is treated as an idempotent remote procedure: the
// Idempotency-Key header makes a retry after a lost acknowledgment safe.
package taskgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tasklife/project/internal/app/recurring"
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateTask posts the next occurrence to the collaborator. 409 Conflict
// means the key was already used, which is the lost-acknowledgment retry
// case; it counts as success.
func (c *Client) CreateTask(ctx context.Context, userID string, req recurring.CreateTaskRequest, idempotencyKey string) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal create-task request: %w", err)
	}

	url := fmt.Sprintf("%s/api/%s/tasks", c.BaseURL, userID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build create-task request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("create-task call: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("create-task call returned %d: %s", resp.StatusCode, msg)
	}
}
