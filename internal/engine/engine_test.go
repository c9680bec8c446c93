package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"etraxis/internal/config"
	"etraxis/internal/db"
	"etraxis/internal/domain"
	"etraxis/internal/engine"
	"etraxis/internal/engine/auth"
	"etraxis/internal/migrate"
	"etraxis/internal/repo"
)

var epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context

	Admin, Author, Dev, Outsider domain.User
	Project                      domain.Project
	Template                     domain.Template
	Devs, Managers               domain.Group
	Opened, Assigned             domain.State
	Resolved, Closed             domain.State
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return epoch }
	env := &testEnv{Engine: eng, Ctx: context.Background()}
	env.seed(t)
	return env
}

func check(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func (env *testEnv) as(u domain.User) *engine.Session {
	return env.Engine.NewSession(u)
}

// seed builds a small bug tracker: Opened -> Assigned -> Resolved -> Closed.
func (env *testEnv) seed(t *testing.T) {
	t.Helper()
	ctx := env.Ctx
	var err error
	env.Admin, err = env.Engine.Bootstrap(ctx, "admin@example.com", "Admin")
	check(t, err)
	as := env.as(env.Admin)

	env.Author, err = as.CreateUser(ctx, domain.User{Email: "author@example.com", Fullname: "Author"})
	check(t, err)
	env.Dev, err = as.CreateUser(ctx, domain.User{Email: "dev@example.com", Fullname: "Developer"})
	check(t, err)
	env.Outsider, err = as.CreateUser(ctx, domain.User{Email: "outsider@example.com", Fullname: "Outsider"})
	check(t, err)

	env.Project, err = as.CreateProject(ctx, "Alpha", "")
	check(t, err)
	env.Devs, err = as.CreateGroup(ctx, &env.Project.ID, "Developers", "")
	check(t, err)
	env.Managers, err = as.CreateGroup(ctx, nil, "Managers", "")
	check(t, err)
	check(t, as.AddMember(ctx, env.Devs.ID, env.Dev.ID))

	frozen := 7
	env.Template, err = as.CreateTemplate(ctx, engine.TemplateInput{ProjectID: env.Project.ID, Name: "Bug", Prefix: "bug", FrozenTime: &frozen})
	check(t, err)
	if !env.Template.Locked {
		t.Fatalf("new templates must be locked")
	}
	tid := env.Template.ID
	env.Opened, err = as.CreateState(ctx, engine.StateInput{TemplateID: tid, Name: "Opened"})
	check(t, err)
	if env.Opened.Type != domain.StateInitial {
		t.Fatalf("first state should become initial, got %s", env.Opened.Type)
	}
	env.Assigned, err = as.CreateState(ctx, engine.StateInput{TemplateID: tid, Name: "Assigned", Responsible: domain.ResponsibleAssign})
	check(t, err)
	env.Resolved, err = as.CreateState(ctx, engine.StateInput{TemplateID: tid, Name: "Resolved"})
	check(t, err)
	env.Closed, err = as.CreateState(ctx, engine.StateInput{TemplateID: tid, Name: "Closed", Type: domain.StateFinal})
	check(t, err)

	check(t, as.SetResponsibleGroups(ctx, env.Assigned.ID, []int64{env.Devs.ID}))
	check(t, as.SetRoleTransitions(ctx, env.Opened.ID, env.Assigned.ID, []domain.SystemRole{domain.RoleAuthor}))
	check(t, as.SetGroupTransitions(ctx, env.Assigned.ID, env.Resolved.ID, []int64{env.Devs.ID}))
	check(t, as.SetRoleTransitions(ctx, env.Resolved.ID, env.Closed.ID, []domain.SystemRole{domain.RoleAuthor}))

	for perm, roles := range map[domain.TemplatePermission][]domain.SystemRole{
		domain.PermCreateIssues:       {domain.RoleAnyone},
		domain.PermViewIssues:         {domain.RoleAnyone},
		domain.PermEditIssues:         {domain.RoleAuthor},
		domain.PermReassignIssues:     {domain.RoleAuthor},
		domain.PermSuspendIssues:      {domain.RoleAuthor},
		domain.PermResumeIssues:       {domain.RoleAuthor},
		domain.PermAddComments:        {domain.RoleAuthor, domain.RoleResponsible},
		domain.PermManageDependencies: {domain.RoleAuthor},
	} {
		check(t, as.SetTemplateRolePermissions(ctx, tid, perm, roles))
	}
	check(t, as.SetTemplateGroupPermissions(ctx, tid, domain.PermEditIssues, []int64{env.Devs.ID}))
	check(t, as.SetTemplateGroupPermissions(ctx, tid, domain.PermPrivateComments, []int64{env.Devs.ID}))
	check(t, as.UnlockTemplate(ctx, tid))
}

func (env *testEnv) lock(t *testing.T) {
	t.Helper()
	check(t, env.as(env.Admin).LockTemplate(env.Ctx, env.Template.ID))
}

func (env *testEnv) newIssue(t *testing.T, subject string) domain.Issue {
	t.Helper()
	issue, err := env.as(env.Author).CreateIssue(env.Ctx, engine.IssueInput{TemplateID: env.Template.ID, Subject: subject})
	check(t, err)
	return issue
}

// walk moves the issue to Resolved, assigning it to the developer.
func (env *testEnv) walk(t *testing.T, issueID int64) {
	t.Helper()
	_, err := env.as(env.Author).ChangeState(env.Ctx, issueID, env.Assigned.ID, &env.Dev.ID)
	check(t, err)
	_, err = env.as(env.Dev).ChangeState(env.Ctx, issueID, env.Resolved.ID, nil)
	check(t, err)
}

func (env *testEnv) issue(t *testing.T, id int64) domain.IssueContext {
	t.Helper()
	ic, err := env.Engine.Issue(env.Ctx, id)
	check(t, err)
	return ic
}

func isDenied(err error) bool {
	var denied auth.AccessDeniedError
	return errors.As(err, &denied)
}

func TestSetInitialStateDemotesPrevious(t *testing.T) {
	env := newTestEnv(t)
	env.lock(t)
	check(t, env.as(env.Admin).SetInitialState(env.Ctx, env.Resolved.ID))

	initial, err := env.Engine.Repo.InitialStates(env.Ctx, nil, env.Template.ID)
	check(t, err)
	if len(initial) != 1 || initial[0].ID != env.Resolved.ID {
		t.Fatalf("expected Resolved to be the only initial state, got %+v", initial)
	}
	opened, err := env.Engine.Repo.GetState(env.Ctx, nil, env.Opened.ID)
	check(t, err)
	if opened.Type != domain.StateIntermediate {
		t.Fatalf("previous initial state should be intermediate, got %s", opened.Type)
	}

	// Repeating the call is a successful no-op.
	check(t, env.as(env.Admin).SetInitialState(env.Ctx, env.Resolved.ID))
	initial, err = env.Engine.Repo.InitialStates(env.Ctx, nil, env.Template.ID)
	check(t, err)
	if len(initial) != 1 {
		t.Fatalf("expected one initial state, got %d", len(initial))
	}
}

func TestSetInitialStateRejectsFinalAndNonAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.lock(t)
	if err := env.as(env.Admin).SetInitialState(env.Ctx, env.Closed.ID); !isDenied(err) {
		t.Fatalf("final state cannot become initial, got %v", err)
	}
	if err := env.as(env.Author).SetInitialState(env.Ctx, env.Resolved.ID); !isDenied(err) {
		t.Fatalf("non-admin must be denied, got %v", err)
	}
}

func TestTransitionsFromFinalStateDenied(t *testing.T) {
	env := newTestEnv(t)
	env.lock(t)
	for _, u := range []domain.User{env.Admin, env.Outsider} {
		s := env.as(u)
		if err := s.SetRoleTransitions(env.Ctx, env.Closed.ID, env.Opened.ID, []domain.SystemRole{domain.RoleAuthor}); !isDenied(err) {
			t.Fatalf("%s: role transitions from final state: expected access denied, got %v", u.Email, err)
		}
		if err := s.SetGroupTransitions(env.Ctx, env.Closed.ID, env.Opened.ID, []int64{env.Devs.ID}); !isDenied(err) {
			t.Fatalf("%s: group transitions from final state: expected access denied, got %v", u.Email, err)
		}
	}
}

func TestCrossTemplateEdgeRejected(t *testing.T) {
	env := newTestEnv(t)
	env.lock(t)
	as := env.as(env.Admin)
	other, err := as.CreateTemplate(env.Ctx, engine.TemplateInput{ProjectID: env.Project.ID, Name: "Task", Prefix: "task"})
	check(t, err)
	foreign, err := as.CreateState(env.Ctx, engine.StateInput{TemplateID: other.ID, Name: "New"})
	check(t, err)

	err = as.SetGroupTransitions(env.Ctx, env.Opened.ID, foreign.ID, []int64{env.Devs.ID})
	var inv engine.InvariantError
	if !errors.As(err, &inv) {
		t.Fatalf("expected invariant error, got %v", err)
	}
	if inv.Message != "States must belong the same template." {
		t.Fatalf("unexpected message %q", inv.Message)
	}
}

func TestSetGroupTransitionsIsIdempotentReplace(t *testing.T) {
	env := newTestEnv(t)
	env.lock(t)
	as := env.as(env.Admin)
	want := []int64{env.Devs.ID, env.Managers.ID}
	for i := 0; i < 2; i++ {
		check(t, as.SetGroupTransitions(env.Ctx, env.Opened.ID, env.Resolved.ID, []int64{env.Managers.ID, env.Devs.ID, env.Devs.ID}))
		got, err := as.GroupTransitions(env.Ctx, env.Opened.ID, env.Resolved.ID)
		check(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("round %d edge set mismatch (-want +got):\n%s", i, diff)
		}
	}
	check(t, as.SetGroupTransitions(env.Ctx, env.Opened.ID, env.Resolved.ID, []int64{env.Managers.ID}))
	got, err := as.GroupTransitions(env.Ctx, env.Opened.ID, env.Resolved.ID)
	check(t, err)
	if diff := cmp.Diff([]int64{env.Managers.ID}, got); diff != "" {
		t.Fatalf("replace must not merge (-want +got):\n%s", diff)
	}
}

func TestUnknownGroupFailsWholeReplace(t *testing.T) {
	env := newTestEnv(t)
	env.lock(t)
	as := env.as(env.Admin)
	check(t, as.SetGroupTransitions(env.Ctx, env.Opened.ID, env.Resolved.ID, []int64{env.Devs.ID}))

	err := as.SetGroupTransitions(env.Ctx, env.Opened.ID, env.Resolved.ID, []int64{env.Managers.ID, 9999})
	var inv engine.InvariantError
	if !errors.As(err, &inv) || inv.Message != "unknown group 9999" {
		t.Fatalf("expected unknown group error, got %v", err)
	}
	got, err := as.GroupTransitions(env.Ctx, env.Opened.ID, env.Resolved.ID)
	check(t, err)
	if diff := cmp.Diff([]int64{env.Devs.ID}, got); diff != "" {
		t.Fatalf("failed replace must leave the edge untouched (-want +got):\n%s", diff)
	}

	beta, err := as.CreateProject(env.Ctx, "Beta", "")
	check(t, err)
	foreign, err := as.CreateGroup(env.Ctx, &beta.ID, "Beta devs", "")
	check(t, err)
	if err := as.SetResponsibleGroups(env.Ctx, env.Assigned.ID, []int64{foreign.ID}); !errors.As(err, &inv) {
		t.Fatalf("group of another project must be unknown, got %v", err)
	}
}

func TestSetResponsibleGroupsRequiresAssignPolicy(t *testing.T) {
	env := newTestEnv(t)
	env.lock(t)
	if err := env.as(env.Admin).SetResponsibleGroups(env.Ctx, env.Resolved.ID, []int64{env.Devs.ID}); !isDenied(err) {
		t.Fatalf("expected access denied for keep state, got %v", err)
	}
	got, err := env.as(env.Admin).ResponsibleGroups(env.Ctx, env.Assigned.ID)
	check(t, err)
	if diff := cmp.Diff([]int64{env.Devs.ID}, got); diff != "" {
		t.Fatalf("responsible groups mismatch (-want +got):\n%s", diff)
	}
}

func TestSchemaEditsNeedLockedTemplate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.as(env.Admin).CreateState(env.Ctx, engine.StateInput{TemplateID: env.Template.ID, Name: "Late"})
	if !isDenied(err) {
		t.Fatalf("unlocked template must reject schema edits, got %v", err)
	}
	env.lock(t)
	_, err = env.as(env.Admin).CreateState(env.Ctx, engine.StateInput{TemplateID: env.Template.ID, Name: "Opened"})
	var conflict engine.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("duplicate state name must conflict, got %v", err)
	}
	_, err = env.as(env.Admin).CreateState(env.Ctx, engine.StateInput{TemplateID: env.Template.ID, Name: " "})
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) || invalid.Violations["name"] == "" {
		t.Fatalf("blank name must fail validation, got %v", err)
	}
}

func TestIssueLifecycle(t *testing.T) {
	env := newTestEnv(t)
	issue := env.newIssue(t, "Crash on start")
	if issue.StateID != env.Opened.ID || issue.AuthorID != env.Author.ID {
		t.Fatalf("unexpected new issue %+v", issue)
	}

	_, err := env.as(env.Author).ChangeState(env.Ctx, issue.ID, env.Assigned.ID, &env.Outsider.ID)
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("assignee outside responsible groups must fail validation, got %v", err)
	}
	if _, err := env.as(env.Dev).ChangeState(env.Ctx, issue.ID, env.Assigned.ID, &env.Dev.ID); !isDenied(err) {
		t.Fatalf("developer holds no edge out of Opened, got %v", err)
	}

	env.walk(t, issue.ID)
	ic := env.issue(t, issue.ID)
	if ic.State.ID != env.Resolved.ID || !ic.Issue.IsResponsible(env.Dev.ID) {
		t.Fatalf("expected Resolved with developer responsible, got state %d responsible %v", ic.State.ID, ic.Issue.ResponsibleID)
	}

	closed, err := env.as(env.Author).ChangeState(env.Ctx, issue.ID, env.Closed.ID, nil)
	check(t, err)
	if closed.ClosedAt == nil || closed.ResponsibleID != nil {
		t.Fatalf("closing must stamp ClosedAt and drop responsible, got %+v", closed)
	}
	history, err := env.as(env.Outsider).History(env.Ctx, issue.ID)
	check(t, err)
	var states []int64
	for _, rec := range history {
		states = append(states, rec.StateID)
	}
	want := []int64{env.Opened.ID, env.Assigned.ID, env.Resolved.ID, env.Closed.ID}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenDependencyBlocksClosing(t *testing.T) {
	env := newTestEnv(t)
	issue := env.newIssue(t, "Main")
	dep := env.newIssue(t, "Blocker")
	env.walk(t, issue.ID)
	check(t, env.as(env.Author).AddDependency(env.Ctx, issue.ID, dep.ID))

	s := env.as(env.Author)
	states, err := s.ReachableStates(env.Ctx, env.issue(t, issue.ID))
	check(t, err)
	if len(states) != 0 {
		t.Fatalf("final state must be hidden while dependency is open, got %+v", states)
	}
	if _, err := s.ChangeState(env.Ctx, issue.ID, env.Closed.ID, nil); !isDenied(err) {
		t.Fatalf("expected access denied, got %v", err)
	}

	env.walk(t, dep.ID)
	_, err = env.as(env.Author).ChangeState(env.Ctx, dep.ID, env.Closed.ID, nil)
	check(t, err)

	states, err = env.as(env.Author).ReachableStates(env.Ctx, env.issue(t, issue.ID))
	check(t, err)
	if len(states) != 1 || states[0].ID != env.Closed.ID {
		t.Fatalf("closed dependency must unblock the final state, got %+v", states)
	}
}

func TestReassignNeedsCurrentResponsible(t *testing.T) {
	env := newTestEnv(t)
	issue := env.newIssue(t, "Unassigned")
	s := env.as(env.Author)
	ok, err := s.Resolver.HasPermission(env.Ctx, env.issue(t, issue.ID), env.Author.ID, domain.PermReassignIssues)
	check(t, err)
	if !ok {
		t.Fatalf("author should hold the reassign permission")
	}
	granted, err := s.IsIssueGranted(env.Ctx, engine.ActionReassign, env.issue(t, issue.ID), env.Author)
	check(t, err)
	if granted {
		t.Fatalf("reassign must be denied on an issue without responsible")
	}

	_, err = env.as(env.Author).ChangeState(env.Ctx, issue.ID, env.Assigned.ID, &env.Dev.ID)
	check(t, err)
	granted, err = env.as(env.Author).IsIssueGranted(env.Ctx, engine.ActionReassign, env.issue(t, issue.ID), env.Author)
	check(t, err)
	if !granted {
		t.Fatalf("reassign should be granted once the issue is assigned")
	}
	_, err = env.as(env.Author).Reassign(env.Ctx, issue.ID, env.Outsider.ID)
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("outsider is not in a responsible group, got %v", err)
	}
}

func TestSuspendAndResume(t *testing.T) {
	env := newTestEnv(t)
	issue := env.newIssue(t, "Later")
	s := env.as(env.Author)
	ok, err := s.IsIssueGranted(env.Ctx, engine.ActionResume, env.issue(t, issue.ID), env.Author)
	check(t, err)
	if ok {
		t.Fatalf("resume must be denied for an issue that is not suspended")
	}
	if _, err := s.Suspend(env.Ctx, issue.ID, epoch.Add(-time.Hour)); err == nil {
		t.Fatalf("suspending into the past must fail")
	}
	_, err = s.Suspend(env.Ctx, issue.ID, epoch.Add(48*time.Hour))
	check(t, err)

	ic := env.issue(t, issue.ID)
	actions, err := env.as(env.Author).IssueActions(env.Ctx, ic, env.Author)
	check(t, err)
	if !actions[engine.ActionResume] || actions[engine.ActionSuspend] || actions[engine.ActionUpdate] {
		t.Fatalf("unexpected actions for suspended issue: %v", actions)
	}
	resumed, err := env.as(env.Author).Resume(env.Ctx, issue.ID)
	check(t, err)
	if resumed.ResumesAt != nil {
		t.Fatalf("resume must clear the suspension")
	}
}

func TestFrozenIssueRejectsEdits(t *testing.T) {
	env := newTestEnv(t)
	issue := env.newIssue(t, "Old")
	env.walk(t, issue.ID)
	_, err := env.as(env.Author).ChangeState(env.Ctx, issue.ID, env.Closed.ID, nil)
	check(t, err)

	ok, err := env.as(env.Author).IsIssueGranted(env.Ctx, engine.ActionUpdate, env.issue(t, issue.ID), env.Author)
	check(t, err)
	if !ok {
		t.Fatalf("recently closed issue is still editable")
	}
	env.Engine.Now = func() time.Time { return epoch.AddDate(0, 0, 8) }
	ok, err = env.as(env.Author).IsIssueGranted(env.Ctx, engine.ActionUpdate, env.issue(t, issue.ID), env.Author)
	check(t, err)
	if ok {
		t.Fatalf("frozen issue must not be editable")
	}
}

func TestGateAgreesWithResolverAndGraph(t *testing.T) {
	env := newTestEnv(t)
	issue := env.newIssue(t, "Equivalence")
	ic := env.issue(t, issue.ID)
	byPermission := map[engine.IssueAction]domain.TemplatePermission{
		engine.ActionUpdate:             domain.PermEditIssues,
		engine.ActionDelete:             domain.PermDeleteIssues,
		engine.ActionSuspend:            domain.PermSuspendIssues,
		engine.ActionAddPublicComment:   domain.PermAddComments,
		engine.ActionReadPrivateComment: domain.PermPrivateComments,
		engine.ActionAttachFile:         domain.PermAttachFiles,
		engine.ActionDeleteFile:         domain.PermDeleteFiles,
		engine.ActionAddDependency:      domain.PermManageDependencies,
		engine.ActionAddRelated:         domain.PermManageRelatedIssues,
	}
	for _, u := range []domain.User{env.Author, env.Dev, env.Outsider} {
		gate := env.as(u)
		for action, perm := range byPermission {
			got, err := gate.IsIssueGranted(env.Ctx, action, ic, u)
			check(t, err)
			want, err := auth.NewResolver(env.Engine.Repo).HasPermission(env.Ctx, ic, u.ID, perm)
			check(t, err)
			if got != want {
				t.Fatalf("%s %s: gate=%v resolver=%v", u.Email, action, got, want)
			}
		}
		got, err := gate.IsIssueGranted(env.Ctx, engine.ActionChangeState, ic, u)
		check(t, err)
		states, err := env.Engine.NewSession(u).Graph.TransitionsFor(env.Ctx, ic.Issue, u.ID)
		check(t, err)
		if got != (len(states) > 0) {
			t.Fatalf("%s change_state: gate=%v graph=%d states", u.Email, got, len(states))
		}
	}
}

func TestCreateIssueGate(t *testing.T) {
	env := newTestEnv(t)
	tc, err := env.Engine.Repo.LoadTemplate(env.Ctx, nil, env.Template.ID)
	check(t, err)
	ok, err := env.as(env.Outsider).CanCreateIssue(env.Ctx, tc, env.Outsider)
	check(t, err)
	if !ok {
		t.Fatalf("anyone may create issues")
	}
	check(t, env.as(env.Admin).SetProjectSuspended(env.Ctx, env.Project.ID, true))
	tc, err = env.Engine.Repo.LoadTemplate(env.Ctx, nil, env.Template.ID)
	check(t, err)
	ok, err = env.as(env.Outsider).CanCreateIssue(env.Ctx, tc, env.Outsider)
	check(t, err)
	if ok {
		t.Fatalf("suspended project must not accept issues")
	}
}

func TestDeleteSafety(t *testing.T) {
	env := newTestEnv(t)
	issue := env.newIssue(t, "Prioritised")
	env.lock(t)
	as := env.as(env.Admin)
	field, err := as.CreateField(env.Ctx, engine.FieldInput{StateID: env.Opened.ID, Name: "Priority", Type: domain.FieldList})
	check(t, err)
	high, err := as.CreateListItem(env.Ctx, field.ID, 1, "High")
	check(t, err)
	low, err := as.CreateListItem(env.Ctx, field.ID, 2, "Low")
	check(t, err)
	check(t, as.SetFieldRolePermission(env.Ctx, field.ID, domain.RoleAuthor, domain.FieldReadWrite))
	check(t, as.UnlockTemplate(env.Ctx, env.Template.ID))

	check(t, env.as(env.Author).SetFieldValue(env.Ctx, issue.ID, field.ID, "1"))
	if err := env.as(env.Dev).SetFieldValue(env.Ctx, issue.ID, field.ID, "2"); !isDenied(err) {
		t.Fatalf("developer has no write access to the field, got %v", err)
	}
	env.lock(t)

	subj, err := env.Engine.ListItemSubject(env.Ctx, high.ID)
	check(t, err)
	ok, err := env.as(env.Admin).IsSchemaGranted(env.Ctx, engine.SchemaDeleteListItem, subj, env.Admin)
	check(t, err)
	if ok {
		t.Fatalf("used list item must not be deletable")
	}
	if err := env.as(env.Admin).DeleteListItem(env.Ctx, high.ID); !isDenied(err) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if err := env.as(env.Admin).DeleteField(env.Ctx, field.ID); !isDenied(err) {
		t.Fatalf("used field must not be deletable, got %v", err)
	}
	check(t, env.as(env.Admin).DeleteListItem(env.Ctx, low.ID))
	if _, err := env.Engine.ListItemSubject(env.Ctx, low.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted item should be gone, got %v", err)
	}

	check(t, env.as(env.Admin).RemoveField(env.Ctx, field.ID))
	if err := env.as(env.Admin).RemoveField(env.Ctx, field.ID); !isDenied(err) {
		t.Fatalf("removing twice must be denied, got %v", err)
	}
}

func TestDeleteStateOnlyWhenUnused(t *testing.T) {
	env := newTestEnv(t)
	env.newIssue(t, "Occupies Opened")
	env.lock(t)
	as := env.as(env.Admin)
	if err := as.DeleteState(env.Ctx, env.Opened.ID); !isDenied(err) {
		t.Fatalf("state holding issues must not be deletable, got %v", err)
	}
	check(t, as.DeleteState(env.Ctx, env.Resolved.ID))
	if err := as.DeleteState(env.Ctx, env.Resolved.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMutationsAreAudited(t *testing.T) {
	env := newTestEnv(t)
	env.lock(t)
	check(t, env.as(env.Admin).SetInitialState(env.Ctx, env.Resolved.ID))
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: "state.initial", Limit: 5})
	check(t, err)
	if len(evts) != 1 || evts[0].EntityID != env.Resolved.ID || evts[0].ActorID != env.Admin.ID {
		t.Fatalf("unexpected audit trail %+v", evts)
	}
}

func TestFieldValuesFollowVisitedStates(t *testing.T) {
	env := newTestEnv(t)
	issue := env.newIssue(t, "Estimate later")
	env.lock(t)
	as := env.as(env.Admin)
	field, err := as.CreateField(env.Ctx, engine.FieldInput{StateID: env.Resolved.ID, Name: "Effort", Type: domain.FieldNumber})
	check(t, err)
	check(t, as.SetFieldRolePermission(env.Ctx, field.ID, domain.RoleAuthor, domain.FieldReadWrite))
	check(t, as.UnlockTemplate(env.Ctx, env.Template.ID))

	err = env.as(env.Author).SetFieldValue(env.Ctx, issue.ID, field.ID, "3")
	var invalid engine.ValidationError
	if !errors.As(err, &invalid) || invalid.Violations["field"] == "" {
		t.Fatalf("field of a state the issue never reached must be rejected, got %v", err)
	}

	env.walk(t, issue.ID)
	check(t, env.as(env.Author).SetFieldValue(env.Ctx, issue.ID, field.ID, "3"))
	_, err = env.as(env.Author).ChangeState(env.Ctx, issue.ID, env.Closed.ID, nil)
	check(t, err)

	n, err := env.Engine.Repo.CountStateUsage(env.Ctx, nil, env.Resolved.ID)
	check(t, err)
	if n != 2 {
		t.Fatalf("expected transition and field value to count as usage, got %d", n)
	}
	env.lock(t)
	if err := env.as(env.Admin).DeleteState(env.Ctx, env.Resolved.ID); !isDenied(err) {
		t.Fatalf("state with stored field values must not be deletable, got %v", err)
	}
}

func TestIssueGateConditions(t *testing.T) {
	env := newTestEnv(t)
	issue := env.newIssue(t, "Conditions")
	env.lock(t)
	as := env.as(env.Admin)
	check(t, as.SetTemplateRolePermissions(env.Ctx, env.Template.ID, domain.PermViewIssues, []domain.SystemRole{}))
	check(t, as.SetTemplateRolePermissions(env.Ctx, env.Template.ID, domain.PermAttachFiles, []domain.SystemRole{domain.RoleAuthor}))
	check(t, as.UnlockTemplate(env.Ctx, env.Template.ID))

	opened := env.issue(t, issue.ID)
	env.walk(t, issue.ID)
	resolved := env.issue(t, issue.ID)

	locked := resolved
	locked.Template.Locked = true
	suspendedProject := resolved
	suspendedProject.Project.Suspended = true

	noFiles := env.Engine
	cfg := *config.Default()
	cfg.Files.MaxSize = 0
	noFiles.Config = &cfg

	tests := []struct {
		name   string
		engine engine.Engine
		ic     domain.IssueContext
		user   domain.User
		action engine.IssueAction
		want   bool
	}{
		{"author views without issue.view", env.Engine, opened, env.Author, engine.ActionView, true},
		{"responsible views without issue.view", env.Engine, resolved, env.Dev, engine.ActionView, true},
		{"outsider cannot view without issue.view", env.Engine, resolved, env.Outsider, engine.ActionView, false},

		{"author updates active template", env.Engine, resolved, env.Author, engine.ActionUpdate, true},
		{"locked template blocks update", env.Engine, locked, env.Author, engine.ActionUpdate, false},
		{"author changes state", env.Engine, resolved, env.Author, engine.ActionChangeState, true},
		{"locked template blocks change_state", env.Engine, locked, env.Author, engine.ActionChangeState, false},
		{"locked template blocks comments", env.Engine, locked, env.Author, engine.ActionAddPublicComment, false},
		{"locked template blocks attachments", env.Engine, locked, env.Author, engine.ActionAttachFile, false},
		{"locked template keeps view", env.Engine, locked, env.Author, engine.ActionView, true},

		{"suspended project blocks update", env.Engine, suspendedProject, env.Author, engine.ActionUpdate, false},
		{"suspended project blocks change_state", env.Engine, suspendedProject, env.Author, engine.ActionChangeState, false},
		{"suspended project blocks suspend", env.Engine, suspendedProject, env.Author, engine.ActionSuspend, false},
		{"suspended project keeps private reading", env.Engine, suspendedProject, env.Dev, engine.ActionReadPrivateComment, true},

		{"author attaches files", env.Engine, resolved, env.Author, engine.ActionAttachFile, true},
		{"zero max size disables attachments", noFiles, resolved, env.Author, engine.ActionAttachFile, false},

		{"author lacks comment.private", env.Engine, resolved, env.Author, engine.ActionAddPrivateComment, false},
		{"developer reads private before responsible", env.Engine, opened, env.Dev, engine.ActionReadPrivateComment, true},
		{"private comment needs public comment too", env.Engine, opened, env.Dev, engine.ActionAddPrivateComment, false},
		{"responsible developer adds private comment", env.Engine, resolved, env.Dev, engine.ActionAddPrivateComment, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.engine.NewSession(tt.user).IsIssueGranted(env.Ctx, tt.action, tt.ic, tt.user)
			check(t, err)
			if got != tt.want {
				t.Fatalf("%s: got %v want %v", tt.action, got, tt.want)
			}
		})
	}
}
