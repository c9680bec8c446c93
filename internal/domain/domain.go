package domain

import "time"

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at" format:"date-time"`
	Suspended   bool      `json:"suspended"`
}

type Template struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	Name        string `json:"name"`
	Prefix      string `json:"prefix"`
	Description string `json:"description,omitempty"`
	CriticalAge *int   `json:"critical_age,omitempty"`
	FrozenTime  *int   `json:"frozen_time,omitempty"`
	Locked      bool   `json:"locked"`
}

// TemplateContext is a template loaded together with everything the gates
// read from it, so evaluation never goes back to storage mid-decision.
type TemplateContext struct {
	Template       Template `json:"template"`
	Project        Project  `json:"project"`
	InitialStateID *int64   `json:"initial_state_id,omitempty"`
}

type State struct {
	ID          int64            `json:"id"`
	TemplateID  int64            `json:"template_id"`
	Name        string           `json:"name"`
	Type        StateType        `json:"type" enum:"initial,intermediate,final"`
	Responsible StateResponsible `json:"responsible" enum:"keep,assign,remove"`
}

func (s State) IsFinal() bool {
	return s.Type == StateFinal
}

type StateRoleTransition struct {
	FromStateID int64      `json:"from_state_id"`
	ToStateID   int64      `json:"to_state_id"`
	Role        SystemRole `json:"role"`
}

type StateGroupTransition struct {
	FromStateID int64 `json:"from_state_id"`
	ToStateID   int64 `json:"to_state_id"`
	GroupID     int64 `json:"group_id"`
}

type Field struct {
	ID          int64      `json:"id"`
	StateID     int64      `json:"state_id"`
	Name        string     `json:"name"`
	Type        FieldType  `json:"type"`
	Description string     `json:"description,omitempty"`
	Position    int        `json:"position"`
	Required    bool       `json:"required"`
	RemovedAt   *time.Time `json:"removed_at,omitempty" format:"date-time"`
}

func (f Field) IsRemoved() bool {
	return f.RemovedAt != nil
}

type ListItem struct {
	ID      int64  `json:"id"`
	FieldID int64  `json:"field_id"`
	Value   int    `json:"value"`
	Text    string `json:"text"`
}

type FieldRolePermission struct {
	FieldID    int64           `json:"field_id"`
	Role       SystemRole      `json:"role"`
	Permission FieldPermission `json:"permission"`
}

type FieldGroupPermission struct {
	FieldID    int64           `json:"field_id"`
	GroupID    int64           `json:"group_id"`
	Permission FieldPermission `json:"permission"`
}

type TemplateRolePermission struct {
	TemplateID int64              `json:"template_id"`
	Role       SystemRole         `json:"role"`
	Permission TemplatePermission `json:"permission"`
}

type TemplateGroupPermission struct {
	TemplateID int64              `json:"template_id"`
	GroupID    int64              `json:"group_id"`
	Permission TemplatePermission `json:"permission"`
}

type Group struct {
	ID          int64  `json:"id"`
	ProjectID   *int64 `json:"project_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (g Group) IsGlobal() bool {
	return g.ProjectID == nil
}

type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Fullname string `json:"fullname"`
	Admin    bool   `json:"admin"`
	Disabled bool   `json:"disabled"`
}

type Issue struct {
	ID            int64      `json:"id"`
	Subject       string     `json:"subject"`
	StateID       int64      `json:"state_id"`
	AuthorID      int64      `json:"author_id"`
	ResponsibleID *int64     `json:"responsible_id,omitempty"`
	OriginID      *int64     `json:"origin_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at" format:"date-time"`
	ChangedAt     time.Time  `json:"changed_at" format:"date-time"`
	ClosedAt      *time.Time `json:"closed_at,omitempty" format:"date-time"`
	ResumesAt     *time.Time `json:"resumes_at,omitempty" format:"date-time"`
}

type FieldValue struct {
	IssueID    int64  `json:"issue_id"`
	FieldID    int64  `json:"field_id"`
	Value      string `json:"value"`
	ListItemID *int64 `json:"list_item_id,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  *int64 `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   int64  `json:"entity_id"`
	ActorID    int64  `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    int64  `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
