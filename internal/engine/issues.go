package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"etraxis/internal/domain"
	"etraxis/internal/events"
	"etraxis/internal/repo"
)

// Issue loads the issue with everything its gates read.
func (e Engine) Issue(ctx context.Context, issueID int64) (domain.IssueContext, error) {
	ic, err := e.Repo.LoadIssue(ctx, nil, issueID)
	if err != nil {
		return ic, fmt.Errorf("issue %d: %w", issueID, err)
	}
	return ic, nil
}

// grantedIssue loads the issue and fails with AccessDenied unless the actor
// passes the gate of action.
func (s *Session) grantedIssue(ctx context.Context, issueID int64, action IssueAction, message string) (domain.IssueContext, error) {
	ic, err := s.Issue(ctx, issueID)
	if err != nil {
		return ic, err
	}
	ok, err := s.IsIssueGranted(ctx, action, ic, s.Actor)
	if err != nil {
		return ic, err
	}
	if !ok {
		return ic, s.denied(ctx, action.String(), "%s", message)
	}
	return ic, nil
}

// ViewIssue loads the issue if the actor may see it.
func (s *Session) ViewIssue(ctx context.Context, issueID int64) (domain.IssueContext, error) {
	return s.grantedIssue(ctx, issueID, ActionView, "You are not allowed to view this issue.")
}

// History lists the issue's state changes, oldest first.
func (s *Session) History(ctx context.Context, issueID int64) ([]repo.TransitionRecord, error) {
	if _, err := s.ViewIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return s.Repo.IssueTransitions(ctx, issueID)
}

// ReachableStates lists the states the actor may move the issue to.
func (s *Session) ReachableStates(ctx context.Context, ic domain.IssueContext) ([]domain.State, error) {
	return s.Graph.TransitionsFor(ctx, ic.Issue, s.Actor.ID)
}

type IssueInput struct {
	TemplateID    int64
	Subject       string
	ResponsibleID *int64
}

// CreateIssue opens an issue in the template's initial state, authored by
// the actor.
func (s *Session) CreateIssue(ctx context.Context, in IssueInput) (domain.Issue, error) {
	tc, err := s.Repo.LoadTemplate(ctx, nil, in.TemplateID)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("template %d: %w", in.TemplateID, err)
	}
	ok, err := s.CanCreateIssue(ctx, tc, s.Actor)
	if err != nil {
		return domain.Issue{}, err
	}
	if !ok {
		return domain.Issue{}, s.denied(ctx, "create", "You are not allowed to create issues of this template.")
	}
	v := violations{}
	v.require("subject", in.Subject, maxSubject)
	if err := v.err(); err != nil {
		return domain.Issue{}, err
	}
	initial, err := s.Repo.GetState(ctx, nil, *tc.InitialStateID)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("state %d: %w", *tc.InitialStateID, err)
	}
	responsible, err := s.applyResponsiblePolicy(ctx, initial, nil, in.ResponsibleID)
	if err != nil {
		return domain.Issue{}, err
	}
	now := s.now()
	issue := domain.Issue{
		Subject:       strings.TrimSpace(in.Subject),
		StateID:       initial.ID,
		AuthorID:      s.Actor.ID,
		ResponsibleID: responsible,
		CreatedAt:     now,
		ChangedAt:     now,
	}
	err = s.commit(ctx, "issue.created", func(tx *sql.Tx) (events.Entry, error) {
		id, err := s.Repo.InsertIssue(ctx, tx, issue)
		if err != nil {
			return events.Entry{}, err
		}
		issue.ID = id
		if err := s.Repo.InsertTransition(ctx, tx, id, initial.ID, s.Actor.ID, now); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: tc.Project.ID, EntityKind: "issue", EntityID: id, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"subject": issue.Subject, "state_id": initial.ID}}, nil
	})
	return issue, err
}

// applyResponsiblePolicy returns the responsible user an issue has after
// entering st.
func (s *Session) applyResponsiblePolicy(ctx context.Context, st domain.State, current, requested *int64) (*int64, error) {
	switch st.Responsible {
	case domain.ResponsibleRemove:
		return nil, nil
	case domain.ResponsibleKeep:
		return current, nil
	}
	if requested == nil {
		return nil, ValidationError{Violations: map[string]string{"responsible": "This value should not be blank."}}
	}
	if err := s.checkAssignee(ctx, st, *requested); err != nil {
		return nil, err
	}
	return requested, nil
}

// checkAssignee verifies the user belongs to one of the state's responsible
// groups.
func (s *Session) checkAssignee(ctx context.Context, st domain.State, userID int64) error {
	u, err := s.Repo.GetUser(ctx, nil, userID)
	if err != nil {
		return fmt.Errorf("user %d: %w", userID, err)
	}
	groups, err := s.Repo.ResponsibleGroups(ctx, nil, st.ID)
	if err != nil {
		return err
	}
	member, err := s.Repo.IsMemberOfAny(ctx, nil, userID, groups)
	if err != nil {
		return err
	}
	if !member || u.Disabled {
		return ValidationError{Violations: map[string]string{"responsible": "This user cannot be assigned to the issue."}}
	}
	return nil
}

// ChangeState moves the issue along one edge of the workflow graph.
func (s *Session) ChangeState(ctx context.Context, issueID, toStateID int64, responsibleID *int64) (domain.Issue, error) {
	ic, err := s.grantedIssue(ctx, issueID, ActionChangeState, "You are not allowed to change the state of this issue.")
	if err != nil {
		return domain.Issue{}, err
	}
	to, err := s.Repo.GetState(ctx, nil, toStateID)
	if err != nil {
		return domain.Issue{}, fmt.Errorf("state %d: %w", toStateID, err)
	}
	ok, err := s.Graph.IsValidTransition(ctx, ic.Issue, toStateID, s.Actor.ID)
	if err != nil {
		return domain.Issue{}, err
	}
	if !ok {
		return domain.Issue{}, s.denied(ctx, ActionChangeState.String(), "You are not allowed to move this issue to %q.", to.Name)
	}
	issue := ic.Issue
	if issue.ResponsibleID, err = s.applyResponsiblePolicy(ctx, to, issue.ResponsibleID, responsibleID); err != nil {
		return domain.Issue{}, err
	}
	now := s.now()
	issue.StateID = to.ID
	issue.ChangedAt = now
	if to.IsFinal() {
		issue.ClosedAt = &now
	} else {
		issue.ClosedAt = nil
	}
	err = s.commit(ctx, "issue.state.changed", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.UpdateIssue(ctx, tx, issue); err != nil {
			return events.Entry{}, err
		}
		if err := s.Repo.InsertTransition(ctx, tx, issue.ID, to.ID, s.Actor.ID, now); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: ic.Project.ID, EntityKind: "issue", EntityID: issue.ID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"from_state_id": ic.State.ID, "to_state_id": to.ID, "responsible_id": issue.ResponsibleID}}, nil
	})
	return issue, err
}

func (s *Session) Reassign(ctx context.Context, issueID, responsibleID int64) (domain.Issue, error) {
	ic, err := s.grantedIssue(ctx, issueID, ActionReassign, "You are not allowed to reassign this issue.")
	if err != nil {
		return domain.Issue{}, err
	}
	if err := s.checkAssignee(ctx, ic.State, responsibleID); err != nil {
		return domain.Issue{}, err
	}
	issue := ic.Issue
	issue.ResponsibleID = &responsibleID
	issue.ChangedAt = s.now()
	return issue, s.saveIssue(ctx, "issue.reassigned", ic, issue, events.EventPayload{"responsible_id": responsibleID})
}

// Suspend hides the issue from work until the given moment.
func (s *Session) Suspend(ctx context.Context, issueID int64, until time.Time) (domain.Issue, error) {
	ic, err := s.grantedIssue(ctx, issueID, ActionSuspend, "You are not allowed to suspend this issue.")
	if err != nil {
		return domain.Issue{}, err
	}
	now := s.now()
	if !until.After(now) {
		return domain.Issue{}, ValidationError{Violations: map[string]string{"until": "Date must be in future."}}
	}
	issue := ic.Issue
	until = until.UTC()
	issue.ResumesAt = &until
	issue.ChangedAt = now
	return issue, s.saveIssue(ctx, "issue.suspended", ic, issue, events.EventPayload{"resumes_at": until.Format(time.RFC3339)})
}

func (s *Session) Resume(ctx context.Context, issueID int64) (domain.Issue, error) {
	ic, err := s.grantedIssue(ctx, issueID, ActionResume, "You are not allowed to resume this issue.")
	if err != nil {
		return domain.Issue{}, err
	}
	issue := ic.Issue
	issue.ResumesAt = nil
	issue.ChangedAt = s.now()
	return issue, s.saveIssue(ctx, "issue.resumed", ic, issue, nil)
}

func (s *Session) saveIssue(ctx context.Context, op string, ic domain.IssueContext, issue domain.Issue, payload events.EventPayload) error {
	return s.commit(ctx, op, func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.UpdateIssue(ctx, tx, issue); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: ic.Project.ID, EntityKind: "issue", EntityID: issue.ID, ActorID: s.Actor.ID, Payload: payload}, nil
	})
}

// linkIssues validates a dependency or relation between two distinct issues.
func (s *Session) linkIssues(ctx context.Context, issueID, otherID int64, action IssueAction, message string) (domain.IssueContext, error) {
	ic, err := s.grantedIssue(ctx, issueID, action, message)
	if err != nil {
		return ic, err
	}
	if _, err := s.Issue(ctx, otherID); err != nil {
		return ic, err
	}
	if issueID == otherID {
		return ic, ValidationError{Violations: map[string]string{"issue": "An issue cannot be linked to itself."}}
	}
	return ic, nil
}

func (s *Session) AddDependency(ctx context.Context, issueID, dependencyID int64) error {
	ic, err := s.linkIssues(ctx, issueID, dependencyID, ActionAddDependency, "You are not allowed to add dependencies to this issue.")
	if err != nil {
		return err
	}
	return s.commit(ctx, "issue.dependency.added", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.AddDependency(ctx, tx, issueID, dependencyID); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: ic.Project.ID, EntityKind: "issue", EntityID: issueID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"dependency_id": dependencyID}}, nil
	})
}

func (s *Session) RemoveDependency(ctx context.Context, issueID, dependencyID int64) error {
	ic, err := s.linkIssues(ctx, issueID, dependencyID, ActionRemoveDependency, "You are not allowed to remove dependencies of this issue.")
	if err != nil {
		return err
	}
	return s.commit(ctx, "issue.dependency.removed", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.RemoveDependency(ctx, tx, issueID, dependencyID); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: ic.Project.ID, EntityKind: "issue", EntityID: issueID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"dependency_id": dependencyID}}, nil
	})
}

func (s *Session) AddRelated(ctx context.Context, issueID, relatedID int64) error {
	ic, err := s.linkIssues(ctx, issueID, relatedID, ActionAddRelated, "You are not allowed to add related issues.")
	if err != nil {
		return err
	}
	return s.commit(ctx, "issue.related.added", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.AddRelated(ctx, tx, issueID, relatedID); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: ic.Project.ID, EntityKind: "issue", EntityID: issueID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"related_id": relatedID}}, nil
	})
}

func (s *Session) RemoveRelated(ctx context.Context, issueID, relatedID int64) error {
	ic, err := s.linkIssues(ctx, issueID, relatedID, ActionRemoveRelated, "You are not allowed to remove related issues.")
	if err != nil {
		return err
	}
	return s.commit(ctx, "issue.related.removed", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.RemoveRelated(ctx, tx, issueID, relatedID); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: ic.Project.ID, EntityKind: "issue", EntityID: issueID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"related_id": relatedID}}, nil
	})
}

// FieldPermission resolves the actor's access to a field, optionally in the
// context of an issue the actor may view.
func (s *Session) FieldPermission(ctx context.Context, fieldID int64, issueID *int64) (domain.FieldPermission, error) {
	f, err := s.Repo.GetField(ctx, nil, fieldID)
	if err != nil {
		return domain.FieldNone, fmt.Errorf("field %d: %w", fieldID, err)
	}
	var issue *domain.Issue
	if issueID != nil {
		ic, err := s.ViewIssue(ctx, *issueID)
		if err != nil {
			return domain.FieldNone, err
		}
		issue = &ic.Issue
	}
	return s.Resolver.FieldPermission(ctx, f, issue, s.Actor.ID)
}

// SetFieldValue stores the issue's value of a field. List fields take the
// item's numeric value.
func (s *Session) SetFieldValue(ctx context.Context, issueID, fieldID int64, value string) error {
	ic, err := s.grantedIssue(ctx, issueID, ActionUpdate, "You are not allowed to edit this issue.")
	if err != nil {
		return err
	}
	f, err := s.Repo.GetField(ctx, nil, fieldID)
	if err != nil {
		return fmt.Errorf("field %d: %w", fieldID, err)
	}
	st, err := s.Repo.GetState(ctx, nil, f.StateID)
	if err != nil {
		return fmt.Errorf("state %d: %w", f.StateID, err)
	}
	if st.TemplateID != ic.Template.ID || f.IsRemoved() {
		return ValidationError{Violations: map[string]string{"field": "This field does not belong to the issue."}}
	}
	visited, err := s.Repo.IssueVisitedState(ctx, issueID, st.ID)
	if err != nil {
		return err
	}
	if !visited {
		return ValidationError{Violations: map[string]string{"field": "The issue has never been in the state of this field."}}
	}
	perm, err := s.Resolver.FieldPermission(ctx, f, &ic.Issue, s.Actor.ID)
	if err != nil {
		return err
	}
	if !perm.CanWrite() {
		return s.denied(ctx, "field.write", "You are not allowed to edit field %q.", f.Name)
	}
	fv, err := s.fieldValue(ctx, f, strings.TrimSpace(value))
	if err != nil {
		return err
	}
	fv.IssueID = issueID
	return s.commit(ctx, "issue.field.changed", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.UpsertFieldValue(ctx, tx, fv); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{ProjectID: ic.Project.ID, EntityKind: "issue", EntityID: issueID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"field_id": fieldID, "value": fv.Value}}, nil
	})
}

func (s *Session) fieldValue(ctx context.Context, f domain.Field, value string) (domain.FieldValue, error) {
	fv := domain.FieldValue{FieldID: f.ID, Value: value}
	invalid := func(msg string) (domain.FieldValue, error) {
		return fv, ValidationError{Violations: map[string]string{"value": msg}}
	}
	if value == "" {
		if f.Required {
			return invalid("This value should not be blank.")
		}
		return fv, nil
	}
	switch f.Type {
	case domain.FieldNumber, domain.FieldIssue:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return invalid("This value should be a valid number.")
		}
	case domain.FieldDecimal:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return invalid("This value should be a valid number.")
		}
	case domain.FieldCheckbox:
		if value != "0" && value != "1" {
			return invalid("This value should be 0 or 1.")
		}
	case domain.FieldDate:
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return invalid("This value is not a valid date.")
		}
	case domain.FieldList:
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalid("This value should be a list item value.")
		}
		items, err := s.Repo.ListListItems(ctx, f.ID)
		if err != nil {
			return fv, err
		}
		for _, li := range items {
			if li.Value == n {
				id := li.ID
				fv.ListItemID = &id
				return fv, nil
			}
		}
		return invalid("The value you selected is not a valid choice.")
	}
	return fv, nil
}
