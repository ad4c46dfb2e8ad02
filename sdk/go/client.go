package taskmastersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskmaster HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID               string  `json:"id"`
	RawInput         string  `json:"raw_input"`
	ProcessedText    *string `json:"processed_text,omitempty"`
	Status           string  `json:"status"`
	PriorityScore    float64 `json:"priority_score"`
	Category         *string `json:"category,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	IsLifeCritical   bool    `json:"is_life_critical"`
	IsQuickWin       bool    `json:"is_quick_win"`
	IsInteresting    bool    `json:"is_interesting"`
	Pinned           bool    `json:"pinned"`
	Recurring        bool    `json:"recurring"`
	RecurringPattern *string `json:"recurring_pattern,omitempty"`
	CreatedAt        string  `json:"created_at"`
	TouchedAt        string  `json:"touched_at"`
	DueBy            *string `json:"due_by,omitempty"`
}

// Stats mirrors the overview stats response.
type Stats struct {
	Total              int            `json:"total"`
	ByStatus           map[string]int `json:"by_status"`
	LifeCriticalActive int            `json:"life_critical_active"`
	QuickWins          int            `json:"quick_wins"`
	HighPriority       int            `json:"high_priority"`
}

// TaskUpdate holds the mutable task fields. Nil fields are left unchanged.
type TaskUpdate struct {
	Status           *string  `json:"status,omitempty"`
	PriorityScore    *float64 `json:"priority_score,omitempty"`
	Category         *string  `json:"category,omitempty"`
	Notes            *string  `json:"notes,omitempty"`
	DueBy            *string  `json:"due_by,omitempty"`
	Pinned           *bool    `json:"pinned,omitempty"`
	Recurring        *bool    `json:"recurring,omitempty"`
	RecurringPattern *string  `json:"recurring_pattern,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Capture saves a raw note. The server enriches it asynchronously.
func (c *Client) Capture(ctx context.Context, rawInput string) (Task, error) {
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	err := c.do(ctx, http.MethodPost, "tasks/capture", map[string]any{"raw_input": rawInput}, &resp)
	return Task{ID: resp.ID, RawInput: rawInput, Status: resp.Status}, err
}

// ListTasks returns tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string, limit int) ([]Task, error) {
	endpoint := "tasks"
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tasks, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateTask patches a task.
func (c *Client) UpdateTask(ctx context.Context, id string, update TaskUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "tasks/"+url.PathEscape(id), update, &resp)
	return resp, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "tasks/"+url.PathEscape(id), nil, nil)
}

// Process triggers one enrichment pass and returns the processed count.
func (c *Client) Process(ctx context.Context) (int, error) {
	var resp struct {
		Count int `json:"count"`
	}
	err := c.do(ctx, http.MethodPost, "tasks/process", nil, &resp)
	return resp.Count, err
}

// Reprocess re-enriches a single task.
func (c *Client) Reprocess(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(id)+"/reprocess", nil, &resp)
	return resp, err
}

// Suggestions asks what to work on next.
func (c *Client) Suggestions(ctx context.Context, userState string) (string, error) {
	endpoint := "tasks/suggestions"
	if userState != "" {
		endpoint += "?user_state=" + url.QueryEscape(userState)
	}
	var resp struct {
		Suggestions string `json:"suggestions"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Suggestions, err
}

// Chat sends a free-form message, optionally grounded in active tasks.
func (c *Client) Chat(ctx context.Context, message string, includeContext bool) (string, error) {
	var resp struct {
		Reply string `json:"reply"`
	}
	body := map[string]any{"message": message, "include_context": includeContext}
	err := c.do(ctx, http.MethodPost, "chat", body, &resp)
	return resp.Reply, err
}

// Stats returns the overview counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "tasks/stats/overview", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/api/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
