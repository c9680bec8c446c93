package workflow

import (
	"context"
	"fmt"
	"sort"

	"etraxis/internal/domain"
)

// Source is the subset of persistence the graph reads from.
type Source interface {
	RoleTransitionsFrom(ctx context.Context, stateID int64) ([]domain.StateRoleTransition, error)
	GroupTransitionsFrom(ctx context.Context, stateID int64) ([]domain.StateGroupTransition, error)
	UserGroupIDs(ctx context.Context, userID int64) ([]int64, error)
	CountOpenDependencies(ctx context.Context, issueID int64) (int, error)
	GetStates(ctx context.Context, ids []int64) ([]domain.State, error)
}

// Graph evaluates reachability in a template's state graph. Like the
// permission resolver it keeps the user's memberships for its lifetime and
// belongs to a single session.
type Graph struct {
	src    Source
	groups map[int64]map[int64]bool
}

func NewGraph(src Source) *Graph {
	return &Graph{src: src, groups: map[int64]map[int64]bool{}}
}

// TransitionsFor returns the states the user may move the issue to, ordered
// by id. Final states are left out while the issue has open dependencies.
func (g *Graph) TransitionsFor(ctx context.Context, issue domain.Issue, userID int64) ([]domain.State, error) {
	targets := map[int64]bool{}

	roleEdges, err := g.src.RoleTransitionsFrom(ctx, issue.StateID)
	if err != nil {
		return nil, fmt.Errorf("role transitions from state %d: %w", issue.StateID, err)
	}
	held := map[domain.SystemRole]bool{}
	for _, role := range domain.RolesFor(issue, userID) {
		held[role] = true
	}
	for _, e := range roleEdges {
		if held[e.Role] {
			targets[e.ToStateID] = true
		}
	}

	groupEdges, err := g.src.GroupTransitionsFrom(ctx, issue.StateID)
	if err != nil {
		return nil, fmt.Errorf("group transitions from state %d: %w", issue.StateID, err)
	}
	if len(groupEdges) > 0 {
		member, err := g.memberOf(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, e := range groupEdges {
			if member[e.GroupID] {
				targets[e.ToStateID] = true
			}
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	states, err := g.src.GetStates(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load target states: %w", err)
	}

	open, err := g.src.CountOpenDependencies(ctx, issue.ID)
	if err != nil {
		return nil, fmt.Errorf("count open dependencies of issue %d: %w", issue.ID, err)
	}
	if open == 0 {
		return states, nil
	}
	res := states[:0]
	for _, s := range states {
		if !s.IsFinal() {
			res = append(res, s)
		}
	}
	return res, nil
}

// IsValidTransition reports whether toStateID is among TransitionsFor.
func (g *Graph) IsValidTransition(ctx context.Context, issue domain.Issue, toStateID, userID int64) (bool, error) {
	states, err := g.TransitionsFor(ctx, issue, userID)
	if err != nil {
		return false, err
	}
	for _, s := range states {
		if s.ID == toStateID {
			return true, nil
		}
	}
	return false, nil
}

func (g *Graph) memberOf(ctx context.Context, userID int64) (map[int64]bool, error) {
	if set, ok := g.groups[userID]; ok {
		return set, nil
	}
	ids, err := g.src.UserGroupIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("groups of user %d: %w", userID, err)
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	g.groups[userID] = set
	return set, nil
}
