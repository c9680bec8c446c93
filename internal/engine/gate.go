package engine

import (
	"context"
	"fmt"

	"etraxis/internal/domain"
	"etraxis/internal/metrics"
)

// IssueAction names a user action on an existing issue.
type IssueAction int

const (
	ActionView IssueAction = iota
	ActionUpdate
	ActionDelete
	ActionChangeState
	ActionReassign
	ActionSuspend
	ActionResume
	ActionAddPublicComment
	ActionAddPrivateComment
	ActionReadPrivateComment
	ActionAttachFile
	ActionDeleteFile
	ActionAddDependency
	ActionRemoveDependency
	ActionAddRelated
	ActionRemoveRelated
)

var issueActionNames = [...]string{
	ActionView:               "view",
	ActionUpdate:             "update",
	ActionDelete:             "delete",
	ActionChangeState:        "change_state",
	ActionReassign:           "reassign",
	ActionSuspend:            "suspend",
	ActionResume:             "resume",
	ActionAddPublicComment:   "add_public_comment",
	ActionAddPrivateComment:  "add_private_comment",
	ActionReadPrivateComment: "read_private_comment",
	ActionAttachFile:         "attach_file",
	ActionDeleteFile:         "delete_file",
	ActionAddDependency:      "add_dependency",
	ActionRemoveDependency:   "remove_dependency",
	ActionAddRelated:         "add_related",
	ActionRemoveRelated:      "remove_related",
}

func (a IssueAction) String() string {
	if a >= 0 && int(a) < len(issueActionNames) {
		return issueActionNames[a]
	}
	return fmt.Sprintf("IssueAction(%d)", int(a))
}

// AllIssueActions lists every issue action in declaration order.
func AllIssueActions() []IssueAction {
	res := make([]IssueAction, len(issueActionNames))
	for i := range issueActionNames {
		res[i] = IssueAction(i)
	}
	return res
}

func ParseIssueAction(s string) (IssueAction, error) {
	for i, name := range issueActionNames {
		if name == s {
			return IssueAction(i), nil
		}
	}
	return 0, fmt.Errorf("unknown issue action %q", s)
}

// IsIssueGranted evaluates the gate sequence of action for the user. A
// denial is (false, nil); errors come only from persistence.
func (s *Session) IsIssueGranted(ctx context.Context, action IssueAction, ic domain.IssueContext, user domain.User) (bool, error) {
	ok, err := s.evaluateIssue(ctx, action, ic, user)
	if err != nil {
		return false, err
	}
	metrics.RecordDecision(ctx, action.String(), ok)
	return ok, nil
}

func (s *Session) evaluateIssue(ctx context.Context, action IssueAction, ic domain.IssueContext, user domain.User) (bool, error) {
	now := s.now()
	active := !ic.Template.Locked && !ic.Project.Suspended
	suspended := ic.IsSuspended(now)
	frozen := ic.IsFrozen(now)
	closed := ic.IsClosed()

	switch action {
	case ActionView:
		if ic.Issue.IsAuthor(user.ID) || ic.Issue.IsResponsible(user.ID) {
			return true, nil
		}
		return s.can(ctx, ic, user, domain.PermViewIssues)
	case ActionUpdate:
		if !active || suspended || frozen {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermEditIssues)
	case ActionDelete:
		if !active || suspended {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermDeleteIssues)
	case ActionChangeState:
		if !active || suspended || frozen {
			return false, nil
		}
		states, err := s.Graph.TransitionsFor(ctx, ic.Issue, user.ID)
		if err != nil {
			return false, err
		}
		return len(states) > 0, nil
	case ActionReassign:
		if !active || suspended || closed || ic.Issue.ResponsibleID == nil {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermReassignIssues)
	case ActionSuspend:
		if !active || suspended || closed {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermSuspendIssues)
	case ActionResume:
		if !active || !suspended || closed {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermResumeIssues)
	case ActionAddPublicComment:
		if !active || suspended || frozen {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermAddComments)
	case ActionAddPrivateComment:
		ok, err := s.evaluateIssue(ctx, ActionAddPublicComment, ic, user)
		if err != nil || !ok {
			return false, err
		}
		return s.can(ctx, ic, user, domain.PermPrivateComments)
	case ActionReadPrivateComment:
		return s.can(ctx, ic, user, domain.PermPrivateComments)
	case ActionAttachFile:
		if !active || !s.Config.AttachmentsEnabled() || suspended || frozen {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermAttachFiles)
	case ActionDeleteFile:
		if !active || suspended || frozen {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermDeleteFiles)
	case ActionAddDependency, ActionRemoveDependency:
		if !active || suspended || closed {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermManageDependencies)
	case ActionAddRelated, ActionRemoveRelated:
		if !active {
			return false, nil
		}
		return s.can(ctx, ic, user, domain.PermManageRelatedIssues)
	}
	return false, fmt.Errorf("unhandled issue action %s", action)
}

func (s *Session) can(ctx context.Context, ic domain.IssueContext, user domain.User, perm domain.TemplatePermission) (bool, error) {
	return s.Resolver.HasPermission(ctx, ic, user.ID, perm)
}

// CanCreateIssue reports whether the user may open a new issue from the
// template.
func (s *Session) CanCreateIssue(ctx context.Context, tc domain.TemplateContext, user domain.User) (bool, error) {
	ok, err := s.canCreateIssue(ctx, tc, user)
	if err != nil {
		return false, err
	}
	metrics.RecordDecision(ctx, "create", ok)
	return ok, nil
}

func (s *Session) canCreateIssue(ctx context.Context, tc domain.TemplateContext, user domain.User) (bool, error) {
	if tc.Template.Locked || tc.Project.Suspended || tc.InitialStateID == nil {
		return false, nil
	}
	ok, err := s.Resolver.HasRolePermission(ctx, tc.Template.ID, domain.RoleAnyone, domain.PermCreateIssues)
	if err != nil || ok {
		return ok, err
	}
	return s.Resolver.HasGroupPermission(ctx, tc.Template.ID, user.ID, domain.PermCreateIssues)
}

// IssueActions evaluates every issue action for the user.
func (s *Session) IssueActions(ctx context.Context, ic domain.IssueContext, user domain.User) (map[IssueAction]bool, error) {
	res := make(map[IssueAction]bool, len(issueActionNames))
	for _, a := range AllIssueActions() {
		ok, err := s.IsIssueGranted(ctx, a, ic, user)
		if err != nil {
			return nil, err
		}
		res[a] = ok
	}
	return res, nil
}
