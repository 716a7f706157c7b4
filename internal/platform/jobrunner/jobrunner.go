// Package jobrunner is the client for the external one-shot job scheduling
// runtime. The runtime is a black box with a fixed API: schedule a job, cancel
// a job, and it POSTs the registered callback at or after the fire time,
// at-least-once. There is no polling loop on our side.
package jobrunner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	BaseURL     string
	CallbackURL string
	HTTPClient  *http.Client
}

func NewClient(baseURL, callbackURL string) *Client {
	return &Client{
		BaseURL:     baseURL,
		CallbackURL: callbackURL,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

type scheduleRequest struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Callback string `json:"callback"`
	Repeats  int    `json:"repeats"`
}

// Schedule registers a one-shot job. The runtime will POST
// {"job_id": "<name>"} to the callback URL at or after fireAt.
func (c *Client) Schedule(ctx context.Context, jobID string, fireAt time.Time) error {
	body, err := json.Marshal(scheduleRequest{
		Name:     jobID,
		Schedule: fireAt.UTC().Format(time.RFC3339),
		Callback: c.CallbackURL,
		Repeats:  1,
	})
	if err != nil {
		return fmt.Errorf("marshal schedule request: %w", err)
	}

	url := fmt.Sprintf("%s/v1.0/jobs/%s", c.BaseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build schedule request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("schedule job %s returned %d: %s", jobID, resp.StatusCode, msg)
	}
	return nil
}

// Cancel removes a scheduled job. Cancelling a job the runtime no longer
// knows (already fired, already cancelled) is a no-op, not an error.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	url := fmt.Sprintf("%s/v1.0/jobs/%s", c.BaseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("cancel job %s returned %d: %s", jobID, resp.StatusCode, msg)
	}
}
