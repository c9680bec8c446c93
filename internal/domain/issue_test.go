package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestIssuePredicates(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	closedAt := created.AddDate(0, 0, 3)
	resumes := created.AddDate(0, 0, 1)
	seven, five := 7, 5

	open := IssueContext{
		Issue:    Issue{ID: 1, CreatedAt: created},
		State:    State{Type: StateIntermediate},
		Template: Template{FrozenTime: &seven, CriticalAge: &five},
	}
	closed := open
	closed.State = State{Type: StateFinal}
	closed.Issue.ClosedAt = &closedAt
	suspended := open
	suspended.Issue.ResumesAt = &resumes

	cases := []struct {
		name string
		got  bool
		want bool
	}{
		{"open not closed", open.IsClosed(), false},
		{"final is closed", closed.IsClosed(), true},
		{"suspended before resume", suspended.IsSuspended(created), true},
		{"not suspended at resume", suspended.IsSuspended(resumes), false},
		{"closed within window", closed.IsFrozen(closedAt.AddDate(0, 0, 7)), false},
		{"closed past window", closed.IsFrozen(closedAt.AddDate(0, 0, 8)), true},
		{"open never frozen", open.IsFrozen(created.AddDate(1, 0, 0)), false},
		{"critical after age", open.IsCritical(created.AddDate(0, 0, 6)), true},
		{"closed never critical", closed.IsCritical(created.AddDate(0, 0, 6)), false},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, tc.got, tc.want)
		}
	}
	if got := closed.Age(created.AddDate(0, 1, 0)); got != 3 {
		t.Fatalf("closed issue age should stop at close, got %d", got)
	}
	if got := open.Age(created.AddDate(0, 0, 10)); got != 10 {
		t.Fatalf("open issue age: got %d", got)
	}
}

func TestRolesFor(t *testing.T) {
	responsible := int64(2)
	issue := Issue{AuthorID: 1, ResponsibleID: &responsible}
	cases := map[int64][]SystemRole{
		1: {RoleAnyone, RoleAuthor},
		2: {RoleAnyone, RoleResponsible},
		3: {RoleAnyone},
	}
	for user, want := range cases {
		if diff := cmp.Diff(want, RolesFor(issue, user)); diff != "" {
			t.Errorf("user %d roles mismatch (-want +got):\n%s", user, diff)
		}
	}
	self := Issue{AuthorID: 4, ResponsibleID: new(int64)}
	*self.ResponsibleID = 4
	if diff := cmp.Diff([]SystemRole{RoleAnyone, RoleAuthor, RoleResponsible}, RolesFor(self, 4)); diff != "" {
		t.Errorf("author and responsible (-want +got):\n%s", diff)
	}
}

func TestFieldPermissionOrder(t *testing.T) {
	if FieldNone.Max(FieldReadOnly) != FieldReadOnly || FieldReadWrite.Max(FieldReadOnly) != FieldReadWrite {
		t.Fatalf("Max must pick the higher level")
	}
	if FieldReadOnly.CanWrite() || !FieldReadOnly.CanRead() || FieldNone.CanRead() {
		t.Fatalf("unexpected capabilities")
	}
	for _, s := range []string{"R", "RW", "none"} {
		p, err := ParseFieldPermission(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if p.String() != s {
			t.Fatalf("round trip %q -> %q", s, p.String())
		}
	}
	if _, err := ParseFieldPermission("W"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
