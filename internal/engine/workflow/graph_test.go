package workflow_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"etraxis/internal/domain"
	"etraxis/internal/engine/workflow"
)

type fakeSource struct {
	states      map[int64]domain.State
	roleEdges   []domain.StateRoleTransition
	groupEdges  []domain.StateGroupTransition
	memberships map[int64][]int64
	open        int

	groupCalls int
}

func (f *fakeSource) RoleTransitionsFrom(_ context.Context, stateID int64) ([]domain.StateRoleTransition, error) {
	var res []domain.StateRoleTransition
	for _, e := range f.roleEdges {
		if e.FromStateID == stateID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (f *fakeSource) GroupTransitionsFrom(_ context.Context, stateID int64) ([]domain.StateGroupTransition, error) {
	var res []domain.StateGroupTransition
	for _, e := range f.groupEdges {
		if e.FromStateID == stateID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (f *fakeSource) UserGroupIDs(_ context.Context, userID int64) ([]int64, error) {
	f.groupCalls++
	return f.memberships[userID], nil
}

func (f *fakeSource) CountOpenDependencies(context.Context, int64) (int, error) {
	return f.open, nil
}

func (f *fakeSource) GetStates(_ context.Context, ids []int64) ([]domain.State, error) {
	var res []domain.State
	for _, id := range ids {
		if s, ok := f.states[id]; ok {
			res = append(res, s)
		}
	}
	return res, nil
}

const (
	opened   int64 = 1
	resolved int64 = 2
	closed   int64 = 3
	reopened int64 = 4

	author int64 = 10
	dev    int64 = 20
	devs   int64 = 99
)

func newSource() *fakeSource {
	return &fakeSource{
		states: map[int64]domain.State{
			opened:   {ID: opened, Name: "Opened", Type: domain.StateInitial},
			resolved: {ID: resolved, Name: "Resolved", Type: domain.StateIntermediate},
			closed:   {ID: closed, Name: "Closed", Type: domain.StateFinal},
			reopened: {ID: reopened, Name: "Reopened", Type: domain.StateIntermediate},
		},
		roleEdges: []domain.StateRoleTransition{
			{FromStateID: resolved, ToStateID: closed, Role: domain.RoleAuthor},
			{FromStateID: resolved, ToStateID: reopened, Role: domain.RoleAuthor},
			{FromStateID: opened, ToStateID: resolved, Role: domain.RoleResponsible},
		},
		groupEdges: []domain.StateGroupTransition{
			{FromStateID: resolved, ToStateID: closed, GroupID: devs},
		},
		memberships: map[int64][]int64{dev: {devs}},
	}
}

func names(states []domain.State) []string {
	var res []string
	for _, s := range states {
		res = append(res, s.Name)
	}
	return res
}

func TestTransitionsForUnionOfRoleAndGroupEdges(t *testing.T) {
	src := newSource()
	g := workflow.NewGraph(src)
	issue := domain.Issue{ID: 1, StateID: resolved, AuthorID: author}

	got, err := g.TransitionsFor(context.Background(), issue, author)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Closed", "Reopened"}, names(got)); diff != "" {
		t.Fatalf("author states mismatch (-want +got):\n%s", diff)
	}

	got, err = g.TransitionsFor(context.Background(), issue, dev)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Closed"}, names(got)); diff != "" {
		t.Fatalf("group member states mismatch (-want +got):\n%s", diff)
	}

	got, err = g.TransitionsFor(context.Background(), issue, 77)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("stranger should reach nothing, got %v", names(got))
	}
}

func TestTransitionsForResponsibleRole(t *testing.T) {
	g := workflow.NewGraph(newSource())
	resp := dev
	issue := domain.Issue{ID: 1, StateID: opened, AuthorID: author, ResponsibleID: &resp}
	ok, err := g.IsValidTransition(context.Background(), issue, resolved, dev)
	if err != nil || !ok {
		t.Fatalf("responsible should resolve: ok=%v err=%v", ok, err)
	}
	ok, err = g.IsValidTransition(context.Background(), issue, resolved, author)
	if err != nil || ok {
		t.Fatalf("author holds no responsible edge: ok=%v err=%v", ok, err)
	}
}

func TestOpenDependencyHidesFinalStates(t *testing.T) {
	src := newSource()
	src.open = 1
	issue := domain.Issue{ID: 1, StateID: resolved, AuthorID: author}

	got, err := workflow.NewGraph(src).TransitionsFor(context.Background(), issue, author)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Reopened"}, names(got)); diff != "" {
		t.Fatalf("mismatch with open dependency (-want +got):\n%s", diff)
	}
	ok, err := workflow.NewGraph(src).IsValidTransition(context.Background(), issue, closed, author)
	if err != nil || ok {
		t.Fatalf("closing must be rejected while dependencies are open")
	}

	src.open = 0
	got, err = workflow.NewGraph(src).TransitionsFor(context.Background(), issue, author)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Closed", "Reopened"}, names(got)); diff != "" {
		t.Fatalf("mismatch after dependency closed (-want +got):\n%s", diff)
	}
}

func TestMembershipsLoadedOncePerGraph(t *testing.T) {
	src := newSource()
	g := workflow.NewGraph(src)
	issue := domain.Issue{ID: 1, StateID: resolved, AuthorID: author}
	for i := 0; i < 3; i++ {
		if _, err := g.TransitionsFor(context.Background(), issue, dev); err != nil {
			t.Fatal(err)
		}
	}
	if src.groupCalls != 1 {
		t.Fatalf("expected 1 membership query, got %d", src.groupCalls)
	}
}
