package server

import (
	"encoding/json"
	"time"

	"etraxis/internal/domain"
	"etraxis/internal/engine"
)

// Request payloads

type CreateIssueRequest struct {
	TemplateID    int64  `json:"template_id"`
	Subject       string `json:"subject" maxLength:"250"`
	ResponsibleID *int64 `json:"responsible_id,omitempty"`
}

type ChangeStateRequest struct {
	StateID       int64  `json:"state_id"`
	ResponsibleID *int64 `json:"responsible_id,omitempty"`
}

type ReassignRequest struct {
	ResponsibleID int64 `json:"responsible_id"`
}

type SuspendRequest struct {
	Until time.Time `json:"until" format:"date-time"`
}

type LinkRequest struct {
	IssueID int64 `json:"issue_id"`
}

type FieldValueRequest struct {
	Value string `json:"value"`
}

type RoleTransitionsRequest struct {
	ToStateID int64    `json:"to_state_id"`
	Roles     []string `json:"roles" enum:"anyone,author,responsible"`
}

type GroupTransitionsRequest struct {
	ToStateID int64   `json:"to_state_id"`
	Groups    []int64 `json:"groups"`
}

type GroupsRequest struct {
	Groups []int64 `json:"groups"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type IssueResponse struct {
	ID            int64           `json:"id"`
	Subject       string          `json:"subject"`
	StateID       int64           `json:"state_id"`
	AuthorID      int64           `json:"author_id"`
	ResponsibleID *int64          `json:"responsible_id,omitempty"`
	OriginID      *int64          `json:"origin_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at" format:"date-time"`
	ChangedAt     time.Time       `json:"changed_at" format:"date-time"`
	ClosedAt      *time.Time      `json:"closed_at,omitempty" format:"date-time"`
	ResumesAt     *time.Time      `json:"resumes_at,omitempty" format:"date-time"`
	State         domain.State    `json:"state"`
	Closed        bool            `json:"closed"`
	Suspended     bool            `json:"suspended"`
	Frozen        bool            `json:"frozen"`
	Critical      bool            `json:"critical"`
	Age           int             `json:"age"`
	Actions       map[string]bool `json:"actions,omitempty"`
	States        []domain.State  `json:"states,omitempty"`
}

type DecisionResponse struct {
	Action  string `json:"action"`
	Granted bool   `json:"granted"`
}

type TemplateActionsResponse struct {
	TemplateID int64           `json:"template_id"`
	Actions    map[string]bool `json:"actions"`
}

type FieldPermissionResponse struct {
	FieldID    int64  `json:"field_id"`
	IssueID    *int64 `json:"issue_id,omitempty"`
	Permission string `json:"permission" enum:"none,R,RW"`
	CanRead    bool   `json:"can_read"`
	CanWrite   bool   `json:"can_write"`
}

type TransitionsResponse struct {
	FromStateID int64    `json:"from_state_id"`
	ToStateID   int64    `json:"to_state_id"`
	Roles       []string `json:"roles"`
	Groups      []int64  `json:"groups"`
}

type WhoAmIResponse struct {
	User   domain.User `json:"user"`
	Source string      `json:"source"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	// Key is only present in the response that created it.
	Key string `json:"key,omitempty"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  *int64         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   int64          `json:"entity_id"`
	ActorID    int64          `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func issueResponse(ic domain.IssueContext, now time.Time) IssueResponse {
	return IssueResponse{
		ID:            ic.Issue.ID,
		Subject:       ic.Issue.Subject,
		StateID:       ic.Issue.StateID,
		AuthorID:      ic.Issue.AuthorID,
		ResponsibleID: ic.Issue.ResponsibleID,
		OriginID:      ic.Issue.OriginID,
		CreatedAt:     ic.Issue.CreatedAt,
		ChangedAt:     ic.Issue.ChangedAt,
		ClosedAt:      ic.Issue.ClosedAt,
		ResumesAt:     ic.Issue.ResumesAt,
		State:         ic.State,
		Closed:        ic.IsClosed(),
		Suspended:     ic.IsSuspended(now),
		Frozen:        ic.IsFrozen(now),
		Critical:      ic.IsCritical(now),
		Age:           ic.Age(now),
	}
}

func actionsResponse(actions map[engine.IssueAction]bool) map[string]bool {
	res := make(map[string]bool, len(actions))
	for a, ok := range actions {
		res[a.String()] = ok
	}
	return res
}

func apiKeyResponse(k domain.APIKey, secret string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt, Key: secret}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func rolesToStrings(roles []domain.SystemRole) []string {
	res := make([]string, 0, len(roles))
	for _, r := range roles {
		res = append(res, string(r))
	}
	return res
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
