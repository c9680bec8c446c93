package engine

import (
	"context"
	"fmt"

	"etraxis/internal/domain"
	"etraxis/internal/metrics"
)

// SchemaAction names an administrative edit of a template's workflow.
type SchemaAction int

const (
	SchemaCreateState SchemaAction = iota
	SchemaUpdateState
	SchemaDeleteState
	SchemaSetInitialState
	SchemaSetTransitions
	SchemaSetResponsibleGroups
	SchemaCreateField
	SchemaUpdateField
	SchemaRemoveField
	SchemaDeleteField
	SchemaSetFieldPermissions
	SchemaCreateListItem
	SchemaUpdateListItem
	SchemaDeleteListItem
	SchemaLockTemplate
	SchemaUnlockTemplate
	SchemaSetTemplatePermissions
)

var schemaActionNames = [...]string{
	SchemaCreateState:            "state.create",
	SchemaUpdateState:            "state.update",
	SchemaDeleteState:            "state.delete",
	SchemaSetInitialState:        "state.initial",
	SchemaSetTransitions:         "state.transitions",
	SchemaSetResponsibleGroups:   "state.responsible_groups",
	SchemaCreateField:            "field.create",
	SchemaUpdateField:            "field.update",
	SchemaRemoveField:            "field.remove",
	SchemaDeleteField:            "field.delete",
	SchemaSetFieldPermissions:    "field.permissions",
	SchemaCreateListItem:         "list_item.create",
	SchemaUpdateListItem:         "list_item.update",
	SchemaDeleteListItem:         "list_item.delete",
	SchemaLockTemplate:           "template.lock",
	SchemaUnlockTemplate:         "template.unlock",
	SchemaSetTemplatePermissions: "template.permissions",
}

func (a SchemaAction) String() string {
	if a >= 0 && int(a) < len(schemaActionNames) {
		return schemaActionNames[a]
	}
	return fmt.Sprintf("SchemaAction(%d)", int(a))
}

// SchemaSubject is the entity a schema action targets. Template is always
// set; State, Field and ListItem as the action requires.
type SchemaSubject struct {
	Template domain.TemplateContext
	State    *domain.State
	Field    *domain.Field
	ListItem *domain.ListItem
}

// IsSchemaGranted evaluates a schema gate. Schema edits need an admin and a
// locked template; some actions add a usage or shape check on the subject.
func (s *Session) IsSchemaGranted(ctx context.Context, action SchemaAction, subj SchemaSubject, user domain.User) (bool, error) {
	ok, err := s.evaluateSchema(ctx, action, subj, user)
	if err != nil {
		return false, err
	}
	metrics.RecordDecision(ctx, action.String(), ok)
	return ok, nil
}

func (s *Session) evaluateSchema(ctx context.Context, action SchemaAction, subj SchemaSubject, user domain.User) (bool, error) {
	tpl := subj.Template.Template
	switch action {
	case SchemaLockTemplate:
		return user.Admin && !tpl.Locked, nil
	case SchemaUnlockTemplate:
		return user.Admin && tpl.Locked && subj.Template.InitialStateID != nil, nil
	case SchemaSetTemplatePermissions:
		return user.Admin, nil
	}

	if !user.Admin || !tpl.Locked {
		return false, nil
	}
	switch action {
	case SchemaCreateState, SchemaCreateField, SchemaUpdateField, SchemaSetFieldPermissions, SchemaUpdateState:
		return true, nil
	case SchemaDeleteState:
		st, err := subj.state(action)
		if err != nil {
			return false, err
		}
		n, err := s.Repo.CountStateUsage(ctx, nil, st.ID)
		if err != nil {
			return false, err
		}
		return n == 0, nil
	case SchemaSetInitialState, SchemaSetTransitions:
		st, err := subj.state(action)
		if err != nil {
			return false, err
		}
		return !st.IsFinal(), nil
	case SchemaSetResponsibleGroups:
		st, err := subj.state(action)
		if err != nil {
			return false, err
		}
		return st.Responsible == domain.ResponsibleAssign, nil
	case SchemaRemoveField:
		f, err := subj.field(action)
		if err != nil {
			return false, err
		}
		return !f.IsRemoved(), nil
	case SchemaDeleteField:
		f, err := subj.field(action)
		if err != nil {
			return false, err
		}
		n, err := s.Repo.CountFieldValues(ctx, nil, f.ID)
		if err != nil {
			return false, err
		}
		return n == 0, nil
	case SchemaCreateListItem, SchemaUpdateListItem:
		f, err := subj.field(action)
		if err != nil {
			return false, err
		}
		return f.Type == domain.FieldList, nil
	case SchemaDeleteListItem:
		if subj.ListItem == nil {
			return false, fmt.Errorf("%s: list item subject required", action)
		}
		n, err := s.Repo.CountListItemUsage(ctx, nil, subj.ListItem.ID)
		if err != nil {
			return false, err
		}
		return n == 0, nil
	}
	return false, fmt.Errorf("unhandled schema action %s", action)
}

func (subj SchemaSubject) state(action SchemaAction) (domain.State, error) {
	if subj.State == nil {
		return domain.State{}, fmt.Errorf("%s: state subject required", action)
	}
	return *subj.State, nil
}

func (subj SchemaSubject) field(action SchemaAction) (domain.Field, error) {
	if subj.Field == nil {
		return domain.Field{}, fmt.Errorf("%s: field subject required", action)
	}
	return *subj.Field, nil
}

// StateSubject loads a state and its template for a schema gate.
func (e Engine) StateSubject(ctx context.Context, stateID int64) (SchemaSubject, error) {
	st, err := e.Repo.GetState(ctx, nil, stateID)
	if err != nil {
		return SchemaSubject{}, fmt.Errorf("state %d: %w", stateID, err)
	}
	tc, err := e.Repo.LoadTemplate(ctx, nil, st.TemplateID)
	if err != nil {
		return SchemaSubject{}, fmt.Errorf("template %d: %w", st.TemplateID, err)
	}
	return SchemaSubject{Template: tc, State: &st}, nil
}

// FieldSubject loads a field with its state and template.
func (e Engine) FieldSubject(ctx context.Context, fieldID int64) (SchemaSubject, error) {
	f, err := e.Repo.GetField(ctx, nil, fieldID)
	if err != nil {
		return SchemaSubject{}, fmt.Errorf("field %d: %w", fieldID, err)
	}
	subj, err := e.StateSubject(ctx, f.StateID)
	if err != nil {
		return SchemaSubject{}, err
	}
	subj.Field = &f
	return subj, nil
}

func (e Engine) ListItemSubject(ctx context.Context, itemID int64) (SchemaSubject, error) {
	li, err := e.Repo.GetListItem(ctx, nil, itemID)
	if err != nil {
		return SchemaSubject{}, fmt.Errorf("list item %d: %w", itemID, err)
	}
	subj, err := e.FieldSubject(ctx, li.FieldID)
	if err != nil {
		return SchemaSubject{}, err
	}
	subj.ListItem = &li
	return subj, nil
}

func (e Engine) TemplateSubject(ctx context.Context, templateID int64) (SchemaSubject, error) {
	tc, err := e.Repo.LoadTemplate(ctx, nil, templateID)
	if err != nil {
		return SchemaSubject{}, fmt.Errorf("template %d: %w", templateID, err)
	}
	return SchemaSubject{Template: tc}, nil
}
