package etraxissdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal eTraxis HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api",
		Timeout:  10 * time.Second,
	}
}

type State struct {
	ID          int64  `json:"id"`
	TemplateID  int64  `json:"template_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Responsible string `json:"responsible"`
}

// Issue is the API issue model with its derived flags and, where the server
// evaluated them, the caller's actions and reachable states.
type Issue struct {
	ID            int64           `json:"id"`
	Subject       string          `json:"subject"`
	StateID       int64           `json:"state_id"`
	AuthorID      int64           `json:"author_id"`
	ResponsibleID *int64          `json:"responsible_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ChangedAt     time.Time       `json:"changed_at"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty"`
	ResumesAt     *time.Time      `json:"resumes_at,omitempty"`
	State         State           `json:"state"`
	Closed        bool            `json:"closed"`
	Suspended     bool            `json:"suspended"`
	Frozen        bool            `json:"frozen"`
	Critical      bool            `json:"critical"`
	Age           int             `json:"age"`
	Actions       map[string]bool `json:"actions,omitempty"`
	States        []State         `json:"states,omitempty"`
}

type Decision struct {
	Action  string `json:"action"`
	Granted bool   `json:"granted"`
}

type Transitions struct {
	FromStateID int64    `json:"from_state_id"`
	ToStateID   int64    `json:"to_state_id"`
	Roles       []string `json:"roles"`
	Groups      []int64  `json:"groups"`
}

type FieldPermission struct {
	FieldID    int64  `json:"field_id"`
	IssueID    *int64 `json:"issue_id,omitempty"`
	Permission string `json:"permission"`
	CanRead    bool   `json:"can_read"`
	CanWrite   bool   `json:"can_write"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  *int64         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   int64          `json:"entity_id"`
	ActorID    int64          `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsDenied reports whether err is a 403 from the server.
func IsDenied(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
}

// CreateIssue opens an issue from a template.
func (c *Client) CreateIssue(ctx context.Context, templateID int64, subject string, responsibleID *int64) (Issue, error) {
	body := map[string]any{
		"template_id": templateID,
		"subject":     subject,
	}
	if responsibleID != nil {
		body["responsible_id"] = *responsibleID
	}
	var resp Issue
	err := c.do(ctx, http.MethodPost, "issues", body, &resp)
	return resp, err
}

func (c *Client) GetIssue(ctx context.Context, id int64) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("issues/%d", id), nil, &resp)
	return resp, err
}

// ReachableStates lists the states the caller may move the issue to.
func (c *Client) ReachableStates(ctx context.Context, id int64) ([]State, error) {
	var resp []State
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("issues/%d/states", id), nil, &resp)
	return resp, err
}

// ChangeState moves the issue; responsibleID is required when the target
// state assigns.
func (c *Client) ChangeState(ctx context.Context, id, stateID int64, responsibleID *int64) (Issue, error) {
	body := map[string]any{"state_id": stateID}
	if responsibleID != nil {
		body["responsible_id"] = *responsibleID
	}
	var resp Issue
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("issues/%d/state", id), body, &resp)
	return resp, err
}

// IssueAction evaluates a single action such as "change_state" or
// "add_private_comment".
func (c *Client) IssueAction(ctx context.Context, id int64, action string) (bool, error) {
	var resp Decision
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("issues/%d/actions/%s", id, url.PathEscape(action)), nil, &resp)
	return resp.Granted, err
}

func (c *Client) Transitions(ctx context.Context, fromID, toID int64) (Transitions, error) {
	var resp Transitions
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("states/%d/transitions?to_state_id=%d", fromID, toID), nil, &resp)
	return resp, err
}

// SetRoleTransitions replaces the system roles allowed on an edge.
func (c *Client) SetRoleTransitions(ctx context.Context, fromID, toID int64, roles []string) (Transitions, error) {
	body := map[string]any{"to_state_id": toID, "roles": nonNil(roles)}
	var resp Transitions
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("states/%d/transitions/roles", fromID), body, &resp)
	return resp, err
}

// SetGroupTransitions replaces the groups allowed on an edge.
func (c *Client) SetGroupTransitions(ctx context.Context, fromID, toID int64, groups []int64) (Transitions, error) {
	body := map[string]any{"to_state_id": toID, "groups": nonNil(groups)}
	var resp Transitions
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("states/%d/transitions/groups", fromID), body, &resp)
	return resp, err
}

// FieldPermission returns the caller's access to a field; issueID may be 0.
func (c *Client) FieldPermission(ctx context.Context, fieldID, issueID int64) (FieldPermission, error) {
	endpoint := fmt.Sprintf("fields/%d/permission", fieldID)
	if issueID != 0 {
		endpoint = fmt.Sprintf("%s?issue_id=%d", endpoint, issueID)
	}
	var resp FieldPermission
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
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
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
