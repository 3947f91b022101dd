package taskboardsdk

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

// Client is a minimal taskboard HTTP API client.
type Client struct {
	BaseURL    string
	Passphrase string
	Token      string
	Actor      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Task struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Assignee        string  `json:"assignee"`
	WorkDate        string  `json:"work_date"`
	DueDate         *string `json:"due_date,omitempty"`
	Priority        *int    `json:"priority,omitempty"`
	Completed       bool    `json:"completed"`
	Notes           string  `json:"notes"`
	RecurTemplateID *string `json:"recur_template_id,omitempty"`
}

type Column struct {
	Assignee string `json:"assignee"`
	Title    string `json:"title"`
	Tasks    []Task `json:"tasks"`
	Hidden   int    `json:"hidden_completed,omitempty"`
}

type Board struct {
	Date    string   `json:"date"`
	Weekday string   `json:"weekday"`
	Columns []Column `json:"columns"`
}

type NewTask struct {
	Title    string `json:"title"`
	Assignee string `json:"assignee,omitempty"`
	WorkDate string `json:"work_date"`
	DueDate  string `json:"due_date,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type EndRecurringResult struct {
	Cutoff           string   `json:"cutoff"`
	DeletedTasks     []string `json:"deleted_tasks"`
	DeletedTemplates []string `json:"deleted_templates"`
}

type AuditEntry struct {
	Action  string         `json:"action"`
	At      string         `json:"at"`
	Details map[string]any `json:"details,omitempty"`
}

// Change is one row of the change feed.
type Change struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	WorkDate   string `json:"work_date,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

type ChangesPage struct {
	Items      []Change `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

// Assignment is version 1 of the notification contract.
type Assignment struct {
	Version  int    `json:"version,omitempty"`
	Assignee string `json:"assignee"`
	Title    string `json:"title"`
	Date     string `json:"date"`
}

type NotifyResult struct {
	Status   string   `json:"status"`
	Channels []string `json:"channels,omitempty"`
	Reason   string   `json:"reason,omitempty"`
	ID       string   `json:"id,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Unlock trades the passphrase for a session token and keeps it on the client.
func (c *Client) Unlock(ctx context.Context, passphrase string) (Session, error) {
	var resp Session
	if err := c.do(ctx, http.MethodPost, "gate/unlock", map[string]any{"passphrase": passphrase}, &resp); err != nil {
		return resp, err
	}
	c.Token = resp.Token
	return resp, nil
}

// Board returns the board for date ("today" or YYYY-MM-DD).
func (c *Client) Board(ctx context.Context, date string, hide ...string) (Board, error) {
	if date == "" {
		date = "today"
	}
	endpoint := "board/" + url.PathEscape(date)
	if len(hide) > 0 {
		endpoint += "?hide=" + url.QueryEscape(strings.Join(hide, ","))
	}
	var resp Board
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) CreateTask(ctx context.Context, t NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", t, &resp)
	return resp, err
}

func (c *Client) AssignTask(ctx context.Context, id, assignee string) (Task, error) {
	return c.taskAction(ctx, id, "assign", map[string]any{"assignee": assignee})
}

func (c *Client) MoveTask(ctx context.Context, id, workDate string) (Task, error) {
	return c.taskAction(ctx, id, "move", map[string]any{"work_date": workDate})
}

// ShiftTask swaps the task with its neighbour; direction is "up" or "down".
func (c *Client) ShiftTask(ctx context.Context, id, direction string) (Task, error) {
	return c.taskAction(ctx, id, "shift", map[string]any{"direction": direction})
}

func (c *Client) SetPriority(ctx context.Context, id string, priority int) (Task, error) {
	return c.taskAction(ctx, id, "priority", map[string]any{"priority": priority})
}

func (c *Client) EndRecurring(ctx context.Context, id string) (EndRecurringResult, error) {
	var resp EndRecurringResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/end-recurring", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Audit returns the newest audit entries first.
func (c *Client) Audit(ctx context.Context, limit int) ([]AuditEntry, error) {
	endpoint := "audit"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []AuditEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Changes polls the change feed after cursor. An empty cursor returns the latest rows.
func (c *Client) Changes(ctx context.Context, cursor string, limit int) (ChangesPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("after", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	endpoint := "changes"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp ChangesPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) NotifyAssignment(ctx context.Context, a Assignment) (NotifyResult, error) {
	if a.Version == 0 {
		a.Version = 1
	}
	var resp NotifyResult
	err := c.do(ctx, http.MethodPost, "notifications/assignment", a, &resp)
	return resp, err
}

func (c *Client) taskAction(ctx context.Context, id, action string, body any) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%s/%s", url.PathEscape(id), action), body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
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
	switch {
	case c.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.Token)
	case c.Passphrase != "":
		req.Header.Set("X-Board-Passphrase", c.Passphrase)
	}
	if c.Actor != "" {
		req.Header.Set("X-Actor-Id", c.Actor)
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
