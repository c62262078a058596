package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/noahxzhu/plantcare-notify/internal/lifecycle"
	"github.com/noahxzhu/plantcare-notify/internal/model"
	"github.com/noahxzhu/plantcare-notify/internal/storage"
)

// Client talks to a running server. The CLI goes through it so that the
// serving process stays the only writer of the state file.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	Lifecycle    lifecycle.State         `json:"lifecycle"`
	Notification model.NotificationState `json:"notification"`
}

func (c *Client) State(ctx context.Context) (StateResponse, error) {
	var out StateResponse
	err := c.do(ctx, http.MethodGet, "/api/state", http.StatusOK, &out)
	return out, err
}

func (c *Client) Logs(ctx context.Context) ([]storage.JournalEntry, error) {
	var out []storage.JournalEntry
	err := c.do(ctx, http.MethodGet, "/api/logs", http.StatusOK, &out)
	return out, err
}

// Notifications lists scheduled reminders. A plantID of zero lists all.
func (c *Client) Notifications(ctx context.Context, plantID int64) ([]NotificationView, error) {
	path := "/api/notifications"
	if plantID > 0 {
		path += "?plant_id=" + strconv.FormatInt(plantID, 10)
	}
	var out []NotificationView
	err := c.do(ctx, http.MethodGet, path, http.StatusOK, &out)
	return out, err
}

// Reschedule rebuilds every plant's reminders and returns how many plants
// were considered.
func (c *Client) Reschedule(ctx context.Context) (int, error) {
	var out struct {
		Plants int `json:"plants"`
	}
	err := c.do(ctx, http.MethodPost, "/api/reschedule", http.StatusOK, &out)
	return out.Plants, err
}

func (c *Client) Cleanup(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/cleanup", http.StatusNoContent, nil)
}

func (c *Client) do(ctx context.Context, method, path string, want int, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %s", method, path, resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
