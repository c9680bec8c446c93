package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"etraxis/internal/domain"
	"etraxis/internal/events"
	"etraxis/internal/repo"
)

const (
	maxProjectName  = 25
	maxTemplateName = 50
	maxPrefix       = 5
	maxStateName    = 50
	maxFieldName    = 50
	maxGroupName    = 25
	maxListItemText = 50
	maxDescription  = 100
	maxSubject      = 250
	maxEmail        = 254
	maxFullname     = 50
)

func conflict(err error, entity, format string, args ...any) error {
	if repo.IsUniqueViolation(err) {
		return ConflictError{Entity: entity, Message: fmt.Sprintf(format, args...)}
	}
	return err
}

func (s *Session) requireAdmin(ctx context.Context, action, message string) error {
	if !s.Actor.Admin {
		return s.denied(ctx, action, "%s", message)
	}
	return nil
}

func (s *Session) CreateProject(ctx context.Context, name, description string) (domain.Project, error) {
	if err := s.requireAdmin(ctx, "project.create", "You are not allowed to create projects."); err != nil {
		return domain.Project{}, err
	}
	v := violations{}
	v.require("name", name, maxProjectName)
	if len([]rune(description)) > maxDescription {
		v["description"] = fmt.Sprintf("This value is too long. It should have %d characters or less.", maxDescription)
	}
	if err := v.err(); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{Name: strings.TrimSpace(name), Description: description, CreatedAt: s.now()}
	err := s.commit(ctx, "project.created", func(tx *sql.Tx) (events.Entry, error) {
		id, err := s.Repo.InsertProject(ctx, tx, p)
		if err != nil {
			return events.Entry{}, conflict(err, "project", "Project with entered name already exists.")
		}
		p.ID = id
		return events.Entry{ProjectID: id, EntityKind: "project", EntityID: id, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"name": p.Name}}, nil
	})
	return p, err
}

func (s *Session) SetProjectSuspended(ctx context.Context, projectID int64, suspended bool) error {
	if err := s.requireAdmin(ctx, "project.update", "You are not allowed to update this project."); err != nil {
		return err
	}
	if _, err := s.Repo.GetProject(ctx, nil, projectID); err != nil {
		return fmt.Errorf("project %d: %w", projectID, err)
	}
	op := "project.resumed"
	if suspended {
		op = "project.suspended"
	}
	return s.commit(ctx, op, func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.SetProjectSuspended(ctx, tx, projectID, suspended); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: projectID, EntityKind: "project", EntityID: projectID, ActorID: s.Actor.ID}, nil
	})
}

type TemplateInput struct {
	ProjectID   int64
	Name        string
	Prefix      string
	Description string
	CriticalAge *int
	FrozenTime  *int
}

// CreateTemplate creates a template in the locked state, ready for its
// workflow to be defined.
func (s *Session) CreateTemplate(ctx context.Context, in TemplateInput) (domain.Template, error) {
	if err := s.requireAdmin(ctx, "template.create", "You are not allowed to create templates."); err != nil {
		return domain.Template{}, err
	}
	if _, err := s.Repo.GetProject(ctx, nil, in.ProjectID); err != nil {
		return domain.Template{}, fmt.Errorf("project %d: %w", in.ProjectID, err)
	}
	v := violations{}
	v.require("name", in.Name, maxTemplateName)
	v.require("prefix", in.Prefix, maxPrefix)
	if in.CriticalAge != nil && *in.CriticalAge < 1 {
		v["critical_age"] = "This value should be 1 or more."
	}
	if in.FrozenTime != nil && *in.FrozenTime < 1 {
		v["frozen_time"] = "This value should be 1 or more."
	}
	if err := v.err(); err != nil {
		return domain.Template{}, err
	}
	t := domain.Template{
		ProjectID:   in.ProjectID,
		Name:        strings.TrimSpace(in.Name),
		Prefix:      strings.TrimSpace(in.Prefix),
		Description: in.Description,
		CriticalAge: in.CriticalAge,
		FrozenTime:  in.FrozenTime,
		Locked:      true,
	}
	err := s.commit(ctx, "template.created", func(tx *sql.Tx) (events.Entry, error) {
		id, err := s.Repo.InsertTemplate(ctx, tx, t)
		if err != nil {
			return events.Entry{}, conflict(err, "template", "Template with entered name or prefix already exists.")
		}
		t.ID = id
		return events.Entry{ProjectID: t.ProjectID, EntityKind: "template", EntityID: id, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"name": t.Name, "prefix": t.Prefix}}, nil
	})
	return t, err
}

func (s *Session) LockTemplate(ctx context.Context, templateID int64) error {
	return s.setTemplateLocked(ctx, templateID, true)
}

func (s *Session) UnlockTemplate(ctx context.Context, templateID int64) error {
	return s.setTemplateLocked(ctx, templateID, false)
}

func (s *Session) setTemplateLocked(ctx context.Context, templateID int64, locked bool) error {
	subj, err := s.TemplateSubject(ctx, templateID)
	if err != nil {
		return err
	}
	action, op := SchemaUnlockTemplate, "template.unlocked"
	if locked {
		action, op = SchemaLockTemplate, "template.locked"
	}
	ok, err := s.IsSchemaGranted(ctx, action, subj, s.Actor)
	if err != nil {
		return err
	}
	if !ok {
		return s.denied(ctx, action.String(), "You are not allowed to %s this template.", strings.TrimPrefix(action.String(), "template."))
	}
	return s.commit(ctx, op, func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.SetTemplateLocked(ctx, tx, templateID, locked); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "template", EntityID: templateID, ActorID: s.Actor.ID}, nil
	})
}

func (s *Session) templatePermissionsGate(ctx context.Context, templateID int64) (SchemaSubject, error) {
	subj, err := s.TemplateSubject(ctx, templateID)
	if err != nil {
		return subj, err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaSetTemplatePermissions, subj, s.Actor)
	if err != nil {
		return subj, err
	}
	if !ok {
		return subj, s.denied(ctx, SchemaSetTemplatePermissions.String(), "You are not allowed to change permissions of this template.")
	}
	return subj, nil
}

// SetTemplateRolePermissions replaces the roles holding perm on the template.
func (s *Session) SetTemplateRolePermissions(ctx context.Context, templateID int64, perm domain.TemplatePermission, roles []domain.SystemRole) error {
	subj, err := s.templatePermissionsGate(ctx, templateID)
	if err != nil {
		return err
	}
	if _, err := domain.ParseTemplatePermission(string(perm)); err != nil {
		return ValidationError{Violations: map[string]string{"permission": err.Error()}}
	}
	seen := map[domain.SystemRole]bool{}
	var set []domain.SystemRole
	for _, r := range roles {
		if _, err := domain.ParseSystemRole(string(r)); err != nil {
			return ValidationError{Violations: map[string]string{"roles": err.Error()}}
		}
		if !seen[r] {
			seen[r] = true
			set = append(set, r)
		}
	}
	return s.commit(ctx, "template.permissions.roles", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.ReplaceTemplateRolePermission(ctx, tx, templateID, perm, set); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "template", EntityID: templateID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"permission": perm, "roles": set}}, nil
	})
}

// SetTemplateGroupPermissions replaces the groups holding perm on the template.
func (s *Session) SetTemplateGroupPermissions(ctx context.Context, templateID int64, perm domain.TemplatePermission, groupIDs []int64) error {
	subj, err := s.templatePermissionsGate(ctx, templateID)
	if err != nil {
		return err
	}
	if _, err := domain.ParseTemplatePermission(string(perm)); err != nil {
		return ValidationError{Violations: map[string]string{"permission": err.Error()}}
	}
	set := uniqueIDs(groupIDs)
	return s.commit(ctx, "template.permissions.groups", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.checkGroups(ctx, tx, subj.Template.Project.ID, set); err != nil {
			return events.Entry{}, err
		}
		if err := s.Repo.ReplaceTemplateGroupPermission(ctx, tx, templateID, perm, set); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "template", EntityID: templateID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"permission": perm, "groups": set}}, nil
	})
}

type StateInput struct {
	TemplateID  int64
	Name        string
	Type        domain.StateType
	Responsible domain.StateResponsible
}

// CreateState adds a state to a locked template. The first state of a
// template, or one created as initial, becomes the single initial state.
func (s *Session) CreateState(ctx context.Context, in StateInput) (domain.State, error) {
	subj, err := s.TemplateSubject(ctx, in.TemplateID)
	if err != nil {
		return domain.State{}, err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaCreateState, subj, s.Actor)
	if err != nil {
		return domain.State{}, err
	}
	if !ok {
		return domain.State{}, s.denied(ctx, SchemaCreateState.String(), "You are not allowed to create states in this template.")
	}
	v := violations{}
	v.require("name", in.Name, maxStateName)
	if in.Type == "" {
		in.Type = domain.StateIntermediate
	}
	if _, err := domain.ParseStateType(string(in.Type)); err != nil {
		v["type"] = err.Error()
	}
	if in.Responsible == "" {
		in.Responsible = domain.ResponsibleKeep
	}
	if _, err := domain.ParseStateResponsible(string(in.Responsible)); err != nil {
		v["responsible"] = err.Error()
	}
	if err := v.err(); err != nil {
		return domain.State{}, err
	}
	if in.Type == domain.StateFinal {
		in.Responsible = domain.ResponsibleRemove
	}
	if subj.Template.InitialStateID == nil && in.Type != domain.StateFinal {
		in.Type = domain.StateInitial
	}
	st := domain.State{TemplateID: in.TemplateID, Name: strings.TrimSpace(in.Name), Type: in.Type, Responsible: in.Responsible}
	err = s.commit(ctx, "state.created", func(tx *sql.Tx) (events.Entry, error) {
		id, err := s.Repo.InsertState(ctx, tx, st)
		if err != nil {
			return events.Entry{}, conflict(err, "state", "State with entered name already exists.")
		}
		st.ID = id
		if st.Type == domain.StateInitial {
			if err := s.Repo.DemoteInitialStates(ctx, tx, st.TemplateID, id); err != nil {
				return events.Entry{}, err
			}
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "state", EntityID: id, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"name": st.Name, "type": st.Type, "responsible": st.Responsible}}, nil
	})
	return st, err
}

// DeleteState removes a state nobody has ever used.
func (s *Session) DeleteState(ctx context.Context, stateID int64) error {
	subj, err := s.StateSubject(ctx, stateID)
	if err != nil {
		return err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaDeleteState, subj, s.Actor)
	if err != nil {
		return err
	}
	if !ok {
		return s.denied(ctx, SchemaDeleteState.String(), "You are not allowed to delete this state.")
	}
	return s.commit(ctx, "state.deleted", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.DeleteState(ctx, tx, stateID); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "state", EntityID: stateID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"name": subj.State.Name}}, nil
	})
}

type FieldInput struct {
	StateID     int64
	Name        string
	Type        domain.FieldType
	Description string
	Required    bool
}

func (s *Session) CreateField(ctx context.Context, in FieldInput) (domain.Field, error) {
	subj, err := s.StateSubject(ctx, in.StateID)
	if err != nil {
		return domain.Field{}, err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaCreateField, subj, s.Actor)
	if err != nil {
		return domain.Field{}, err
	}
	if !ok {
		return domain.Field{}, s.denied(ctx, SchemaCreateField.String(), "You are not allowed to create fields in this state.")
	}
	v := violations{}
	v.require("name", in.Name, maxFieldName)
	if _, err := domain.ParseFieldType(string(in.Type)); err != nil {
		v["type"] = err.Error()
	}
	if len([]rune(in.Description)) > maxDescription {
		v["description"] = fmt.Sprintf("This value is too long. It should have %d characters or less.", maxDescription)
	}
	if err := v.err(); err != nil {
		return domain.Field{}, err
	}
	f := domain.Field{StateID: in.StateID, Name: strings.TrimSpace(in.Name), Type: in.Type, Description: in.Description, Required: in.Required}
	err = s.commit(ctx, "field.created", func(tx *sql.Tx) (events.Entry, error) {
		pos, err := s.Repo.NextFieldPosition(ctx, tx, in.StateID)
		if err != nil {
			return events.Entry{}, err
		}
		f.Position = pos
		id, err := s.Repo.InsertField(ctx, tx, f)
		if err != nil {
			return events.Entry{}, conflict(err, "field", "Field with entered name already exists.")
		}
		f.ID = id
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "field", EntityID: id, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"name": f.Name, "type": f.Type, "state_id": f.StateID}}, nil
	})
	return f, err
}

// RemoveField hides the field from the workflow while keeping its values.
func (s *Session) RemoveField(ctx context.Context, fieldID int64) error {
	subj, err := s.FieldSubject(ctx, fieldID)
	if err != nil {
		return err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaRemoveField, subj, s.Actor)
	if err != nil {
		return err
	}
	if !ok {
		return s.denied(ctx, SchemaRemoveField.String(), "You are not allowed to remove this field.")
	}
	return s.commit(ctx, "field.removed", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.RemoveField(ctx, tx, fieldID, s.now()); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "field", EntityID: fieldID, ActorID: s.Actor.ID}, nil
	})
}

// DeleteField erases a field that no issue has ever filled in.
func (s *Session) DeleteField(ctx context.Context, fieldID int64) error {
	subj, err := s.FieldSubject(ctx, fieldID)
	if err != nil {
		return err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaDeleteField, subj, s.Actor)
	if err != nil {
		return err
	}
	if !ok {
		return s.denied(ctx, SchemaDeleteField.String(), "You are not allowed to delete this field.")
	}
	return s.commit(ctx, "field.deleted", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.DeleteField(ctx, tx, fieldID); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "field", EntityID: fieldID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"name": subj.Field.Name}}, nil
	})
}

func (s *Session) fieldPermissionsGate(ctx context.Context, fieldID int64, perm domain.FieldPermission) (SchemaSubject, error) {
	subj, err := s.FieldSubject(ctx, fieldID)
	if err != nil {
		return subj, err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaSetFieldPermissions, subj, s.Actor)
	if err != nil {
		return subj, err
	}
	if !ok {
		return subj, s.denied(ctx, SchemaSetFieldPermissions.String(), "You are not allowed to change permissions of this field.")
	}
	switch perm {
	case domain.FieldNone, domain.FieldReadOnly, domain.FieldReadWrite:
	default:
		return subj, ValidationError{Violations: map[string]string{"permission": fmt.Sprintf("unknown field permission %q", string(perm))}}
	}
	return subj, nil
}

// SetFieldRolePermission sets the access level of a role on the field.
// FieldNone revokes it.
func (s *Session) SetFieldRolePermission(ctx context.Context, fieldID int64, role domain.SystemRole, perm domain.FieldPermission) error {
	subj, err := s.fieldPermissionsGate(ctx, fieldID, perm)
	if err != nil {
		return err
	}
	if _, err := domain.ParseSystemRole(string(role)); err != nil {
		return ValidationError{Violations: map[string]string{"role": err.Error()}}
	}
	return s.commit(ctx, "field.permissions.role", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.SetFieldRolePermission(ctx, tx, fieldID, role, perm); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "field", EntityID: fieldID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"role": role, "permission": perm.String()}}, nil
	})
}

func (s *Session) SetFieldGroupPermission(ctx context.Context, fieldID, groupID int64, perm domain.FieldPermission) error {
	subj, err := s.fieldPermissionsGate(ctx, fieldID, perm)
	if err != nil {
		return err
	}
	return s.commit(ctx, "field.permissions.group", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.checkGroups(ctx, tx, subj.Template.Project.ID, []int64{groupID}); err != nil {
			return events.Entry{}, err
		}
		if err := s.Repo.SetFieldGroupPermission(ctx, tx, fieldID, groupID, perm); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "field", EntityID: fieldID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"group_id": groupID, "permission": perm.String()}}, nil
	})
}

func (s *Session) CreateListItem(ctx context.Context, fieldID int64, value int, text string) (domain.ListItem, error) {
	subj, err := s.FieldSubject(ctx, fieldID)
	if err != nil {
		return domain.ListItem{}, err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaCreateListItem, subj, s.Actor)
	if err != nil {
		return domain.ListItem{}, err
	}
	if !ok {
		return domain.ListItem{}, s.denied(ctx, SchemaCreateListItem.String(), "You are not allowed to add items to this field.")
	}
	v := violations{}
	v.require("text", text, maxListItemText)
	if value < 1 {
		v["value"] = "This value should be 1 or more."
	}
	if err := v.err(); err != nil {
		return domain.ListItem{}, err
	}
	li := domain.ListItem{FieldID: fieldID, Value: value, Text: strings.TrimSpace(text)}
	err = s.commit(ctx, "list_item.created", func(tx *sql.Tx) (events.Entry, error) {
		id, err := s.Repo.InsertListItem(ctx, tx, li)
		if err != nil {
			return events.Entry{}, conflict(err, "list_item", "Item with entered value or text already exists.")
		}
		li.ID = id
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "list_item", EntityID: id, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"field_id": fieldID, "value": value, "text": li.Text}}, nil
	})
	return li, err
}

// DeleteListItem erases an item no issue has ever picked.
func (s *Session) DeleteListItem(ctx context.Context, itemID int64) error {
	subj, err := s.ListItemSubject(ctx, itemID)
	if err != nil {
		return err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaDeleteListItem, subj, s.Actor)
	if err != nil {
		return err
	}
	if !ok {
		return s.denied(ctx, SchemaDeleteListItem.String(), "You are not allowed to delete this item.")
	}
	return s.commit(ctx, "list_item.deleted", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.DeleteListItem(ctx, tx, itemID); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: subj.Template.Project.ID, EntityKind: "list_item", EntityID: itemID, ActorID: s.Actor.ID}, nil
	})
}

// CreateGroup creates a global group when projectID is nil.
func (s *Session) CreateGroup(ctx context.Context, projectID *int64, name, description string) (domain.Group, error) {
	if err := s.requireAdmin(ctx, "group.create", "You are not allowed to create groups."); err != nil {
		return domain.Group{}, err
	}
	var pid int64
	if projectID != nil {
		if _, err := s.Repo.GetProject(ctx, nil, *projectID); err != nil {
			return domain.Group{}, fmt.Errorf("project %d: %w", *projectID, err)
		}
		pid = *projectID
	}
	v := violations{}
	v.require("name", name, maxGroupName)
	if err := v.err(); err != nil {
		return domain.Group{}, err
	}
	g := domain.Group{ProjectID: projectID, Name: strings.TrimSpace(name), Description: description}
	err := s.commit(ctx, "group.created", func(tx *sql.Tx) (events.Entry, error) {
		id, err := s.Repo.InsertGroup(ctx, tx, g)
		if err != nil {
			return events.Entry{}, conflict(err, "group", "Group with entered name already exists.")
		}
		g.ID = id
		return events.Entry{ProjectID: pid, EntityKind: "group", EntityID: id, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"name": g.Name}}, nil
	})
	return g, err
}

func (s *Session) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if err := s.requireAdmin(ctx, "user.create", "You are not allowed to create users."); err != nil {
		return domain.User{}, err
	}
	return s.Engine.createUser(ctx, u, s.Actor.ID)
}

// Bootstrap creates the first administrator of an empty installation.
func (e Engine) Bootstrap(ctx context.Context, email, fullname string) (domain.User, error) {
	users, err := e.Repo.ListUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if len(users) > 0 {
		return domain.User{}, ConflictError{Entity: "user", Message: "users already exist; create further accounts as an administrator"}
	}
	return e.createUser(ctx, domain.User{Email: email, Fullname: fullname, Admin: true}, 0)
}

func (e Engine) createUser(ctx context.Context, u domain.User, actorID int64) (domain.User, error) {
	v := violations{}
	v.require("email", u.Email, maxEmail)
	if u.Email != "" && !strings.Contains(u.Email, "@") {
		v["email"] = "This value is not a valid email address."
	}
	v.require("fullname", u.Fullname, maxFullname)
	if err := v.err(); err != nil {
		return domain.User{}, err
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Fullname = strings.TrimSpace(u.Fullname)
	err := e.commit(ctx, "user.created", func(tx *sql.Tx) (events.Entry, error) {
		id, err := e.Repo.InsertUser(ctx, tx, u)
		if err != nil {
			return events.Entry{}, conflict(err, "user", "Account with specified email already exists.")
		}
		u.ID = id
		if actorID == 0 {
			actorID = id
		}
		return events.Entry{EntityKind: "user", EntityID: id, ActorID: actorID,
			Payload: events.EventPayload{"email": u.Email, "admin": u.Admin}}, nil
	})
	return u, err
}

func (s *Session) AddMember(ctx context.Context, groupID, userID int64) error {
	if err := s.requireAdmin(ctx, "group.members", "You are not allowed to manage group members."); err != nil {
		return err
	}
	g, err := s.Repo.GetGroup(ctx, nil, groupID)
	if err != nil {
		return fmt.Errorf("group %d: %w", groupID, err)
	}
	if _, err := s.Repo.GetUser(ctx, nil, userID); err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	var pid int64
	if g.ProjectID != nil {
		pid = *g.ProjectID
	}
	return s.commit(ctx, "group.member.added", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.AddMember(ctx, tx, groupID, userID); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: pid, EntityKind: "group", EntityID: groupID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"user_id": userID}}, nil
	})
}
