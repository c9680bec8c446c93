package domain

import "fmt"

// SystemRole is a relationship between a user and an issue. It is derived
// on every check and never stored per issue.
type SystemRole string

const (
	RoleAnyone      SystemRole = "anyone"
	RoleAuthor      SystemRole = "author"
	RoleResponsible SystemRole = "responsible"
)

var systemRoles = []SystemRole{RoleAnyone, RoleAuthor, RoleResponsible}

func SystemRoles() []SystemRole {
	return append([]SystemRole(nil), systemRoles...)
}

func ParseSystemRole(s string) (SystemRole, error) {
	for _, r := range systemRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown system role %q", s)
}

type StateType string

const (
	StateInitial      StateType = "initial"
	StateIntermediate StateType = "intermediate"
	StateFinal        StateType = "final"
)

func ParseStateType(s string) (StateType, error) {
	switch StateType(s) {
	case StateInitial, StateIntermediate, StateFinal:
		return StateType(s), nil
	}
	return "", fmt.Errorf("unknown state type %q", s)
}

// StateResponsible describes what happens to the issue's responsible user
// when the issue enters a state.
type StateResponsible string

const (
	ResponsibleKeep   StateResponsible = "keep"
	ResponsibleAssign StateResponsible = "assign"
	ResponsibleRemove StateResponsible = "remove"
)

func ParseStateResponsible(s string) (StateResponsible, error) {
	switch StateResponsible(s) {
	case ResponsibleKeep, ResponsibleAssign, ResponsibleRemove:
		return StateResponsible(s), nil
	}
	return "", fmt.Errorf("unknown responsible policy %q", s)
}

type FieldType string

const (
	FieldNumber   FieldType = "number"
	FieldString   FieldType = "string"
	FieldText     FieldType = "text"
	FieldCheckbox FieldType = "checkbox"
	FieldList     FieldType = "list"
	FieldIssue    FieldType = "issue"
	FieldDate     FieldType = "date"
	FieldDuration FieldType = "duration"
	FieldDecimal  FieldType = "decimal"
)

func ParseFieldType(s string) (FieldType, error) {
	switch FieldType(s) {
	case FieldNumber, FieldString, FieldText, FieldCheckbox, FieldList,
		FieldIssue, FieldDate, FieldDuration, FieldDecimal:
		return FieldType(s), nil
	}
	return "", fmt.Errorf("unknown field type %q", s)
}

type TemplatePermission string

const (
	PermViewIssues          TemplatePermission = "issue.view"
	PermCreateIssues        TemplatePermission = "issue.create"
	PermEditIssues          TemplatePermission = "issue.edit"
	PermDeleteIssues        TemplatePermission = "issue.delete"
	PermReassignIssues      TemplatePermission = "issue.reassign"
	PermSuspendIssues       TemplatePermission = "issue.suspend"
	PermResumeIssues        TemplatePermission = "issue.resume"
	PermAddComments         TemplatePermission = "comment.add"
	PermPrivateComments     TemplatePermission = "comment.private"
	PermAttachFiles         TemplatePermission = "file.attach"
	PermDeleteFiles         TemplatePermission = "file.delete"
	PermManageDependencies  TemplatePermission = "dependency.manage"
	PermManageRelatedIssues TemplatePermission = "relatedissue.manage"
)

var templatePermissions = []TemplatePermission{
	PermViewIssues, PermCreateIssues, PermEditIssues, PermDeleteIssues,
	PermReassignIssues, PermSuspendIssues, PermResumeIssues,
	PermAddComments, PermPrivateComments, PermAttachFiles, PermDeleteFiles,
	PermManageDependencies, PermManageRelatedIssues,
}

func TemplatePermissions() []TemplatePermission {
	return append([]TemplatePermission(nil), templatePermissions...)
}

func ParseTemplatePermission(s string) (TemplatePermission, error) {
	for _, p := range templatePermissions {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown template permission %q", s)
}

// FieldPermission levels are ordered: FieldNone < FieldReadOnly < FieldReadWrite.
type FieldPermission string

const (
	FieldNone      FieldPermission = ""
	FieldReadOnly  FieldPermission = "R"
	FieldReadWrite FieldPermission = "RW"
)

func (p FieldPermission) rank() int {
	switch p {
	case FieldReadOnly:
		return 1
	case FieldReadWrite:
		return 2
	}
	return 0
}

// Max returns the higher of two levels.
func (p FieldPermission) Max(other FieldPermission) FieldPermission {
	if other.rank() > p.rank() {
		return other
	}
	return p
}

func (p FieldPermission) CanRead() bool  { return p.rank() >= 1 }
func (p FieldPermission) CanWrite() bool { return p == FieldReadWrite }

func (p FieldPermission) String() string {
	if p == FieldNone {
		return "none"
	}
	return string(p)
}

func ParseFieldPermission(s string) (FieldPermission, error) {
	switch s {
	case "", "none":
		return FieldNone, nil
	case "R":
		return FieldReadOnly, nil
	case "RW":
		return FieldReadWrite, nil
	}
	return FieldNone, fmt.Errorf("unknown field permission %q", s)
}
