package domain

import "time"

const day = 24 * time.Hour

// IssueContext is an issue with its state, template and project loaded
// eagerly by the persistence layer.
type IssueContext struct {
	Issue    Issue    `json:"issue"`
	State    State    `json:"state"`
	Template Template `json:"template"`
	Project  Project  `json:"project"`
}

func (c IssueContext) IsClosed() bool {
	return c.State.IsFinal()
}

func (c IssueContext) IsSuspended(now time.Time) bool {
	return c.Issue.ResumesAt != nil && c.Issue.ResumesAt.After(now)
}

// IsFrozen reports whether a closed issue has outlived the template's
// frozen window and can no longer be edited.
func (c IssueContext) IsFrozen(now time.Time) bool {
	if !c.IsClosed() || c.Issue.ClosedAt == nil || c.Template.FrozenTime == nil {
		return false
	}
	return now.After(c.Issue.ClosedAt.Add(time.Duration(*c.Template.FrozenTime) * day))
}

func (c IssueContext) IsCritical(now time.Time) bool {
	if c.IsClosed() || c.Template.CriticalAge == nil {
		return false
	}
	return now.After(c.Issue.CreatedAt.Add(time.Duration(*c.Template.CriticalAge) * day))
}

// Age is the number of whole days the issue has been open, or was open
// before it got closed.
func (c IssueContext) Age(now time.Time) int {
	end := now
	if c.Issue.ClosedAt != nil {
		end = *c.Issue.ClosedAt
	}
	return int(end.Sub(c.Issue.CreatedAt) / day)
}

func (i Issue) IsAuthor(userID int64) bool {
	return i.AuthorID == userID
}

func (i Issue) IsResponsible(userID int64) bool {
	return i.ResponsibleID != nil && *i.ResponsibleID == userID
}

// RolesFor derives the system roles the user holds towards the issue.
func RolesFor(i Issue, userID int64) []SystemRole {
	roles := []SystemRole{RoleAnyone}
	if i.IsAuthor(userID) {
		roles = append(roles, RoleAuthor)
	}
	if i.IsResponsible(userID) {
		roles = append(roles, RoleResponsible)
	}
	return roles
}
