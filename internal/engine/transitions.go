package engine

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"etraxis/internal/domain"
	"etraxis/internal/events"
)

func (s *Session) loadEdge(ctx context.Context, fromID, toID int64) (SchemaSubject, domain.State, error) {
	subj, err := s.StateSubject(ctx, fromID)
	if err != nil {
		return SchemaSubject{}, domain.State{}, err
	}
	to, err := s.Repo.GetState(ctx, nil, toID)
	if err != nil {
		return SchemaSubject{}, domain.State{}, fmt.Errorf("state %d: %w", toID, err)
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaSetTransitions, subj, s.Actor)
	if err != nil {
		return SchemaSubject{}, domain.State{}, err
	}
	if !ok {
		return SchemaSubject{}, domain.State{}, s.denied(ctx, SchemaSetTransitions.String(), "You are not allowed to edit transitions of this state.")
	}
	if subj.State.TemplateID != to.TemplateID {
		return SchemaSubject{}, domain.State{}, InvariantError{Message: "States must belong the same template."}
	}
	return subj, to, nil
}

// SetRoleTransitions replaces the roles allowed to move issues from one state
// to another.
func (s *Session) SetRoleTransitions(ctx context.Context, fromID, toID int64, roles []domain.SystemRole) error {
	subj, to, err := s.loadEdge(ctx, fromID, toID)
	if err != nil {
		return err
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
	sort.Slice(set, func(i, j int) bool { return set[i] < set[j] })
	return s.commit(ctx, "state.transitions.roles", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.ReplaceRoleTransitions(ctx, tx, fromID, to.ID, set); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{
			ProjectID: subj.Template.Project.ID, EntityKind: "state", EntityID: fromID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"to_state_id": to.ID, "roles": set},
		}, nil
	})
}

// SetGroupTransitions replaces the groups allowed to move issues from one
// state to another. Every group must be global or local to the template's
// project.
func (s *Session) SetGroupTransitions(ctx context.Context, fromID, toID int64, groupIDs []int64) error {
	subj, to, err := s.loadEdge(ctx, fromID, toID)
	if err != nil {
		return err
	}
	set := uniqueIDs(groupIDs)
	return s.commit(ctx, "state.transitions.groups", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.checkGroups(ctx, tx, subj.Template.Project.ID, set); err != nil {
			return events.Entry{}, err
		}
		if err := s.Repo.ReplaceGroupTransitions(ctx, tx, fromID, to.ID, set); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{
			ProjectID: subj.Template.Project.ID, EntityKind: "state", EntityID: fromID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"to_state_id": to.ID, "groups": set},
		}, nil
	})
}

// SetInitialState makes the state the template's only initial state.
func (s *Session) SetInitialState(ctx context.Context, stateID int64) error {
	subj, err := s.StateSubject(ctx, stateID)
	if err != nil {
		return err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaSetInitialState, subj, s.Actor)
	if err != nil {
		return err
	}
	if !ok {
		return s.denied(ctx, SchemaSetInitialState.String(), "You are not allowed to make this state initial.")
	}
	if subj.State.Type == domain.StateInitial {
		return nil
	}
	st := *subj.State
	return s.commit(ctx, "state.initial", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.Repo.DemoteInitialStates(ctx, tx, st.TemplateID, st.ID); err != nil {
			return events.Entry{}, err
		}
		if err := s.Repo.SetStateType(ctx, tx, st.ID, domain.StateInitial); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{
			ProjectID: subj.Template.Project.ID, EntityKind: "state", EntityID: st.ID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"template_id": st.TemplateID},
		}, nil
	})
}

// SetResponsibleGroups replaces the groups whose members may be assigned
// when an issue enters the state.
func (s *Session) SetResponsibleGroups(ctx context.Context, stateID int64, groupIDs []int64) error {
	subj, err := s.StateSubject(ctx, stateID)
	if err != nil {
		return err
	}
	ok, err := s.IsSchemaGranted(ctx, SchemaSetResponsibleGroups, subj, s.Actor)
	if err != nil {
		return err
	}
	if !ok {
		return s.denied(ctx, SchemaSetResponsibleGroups.String(), "You are not allowed to set responsible groups of this state.")
	}
	set := uniqueIDs(groupIDs)
	return s.commit(ctx, "state.responsible_groups", func(tx *sql.Tx) (events.Entry, error) {
		if err := s.checkGroups(ctx, tx, subj.Template.Project.ID, set); err != nil {
			return events.Entry{}, err
		}
		if err := s.Repo.ReplaceResponsibleGroups(ctx, tx, stateID, set); err != nil {
			return events.Entry{}, err
		}
		return events.Entry{
			ProjectID: subj.Template.Project.ID, EntityKind: "state", EntityID: stateID, ActorID: s.Actor.ID,
			Payload: events.EventPayload{"groups": set},
		}, nil
	})
}

func (s *Session) checkGroups(ctx context.Context, tx *sql.Tx, projectID int64, ids []int64) error {
	missing, err := s.Repo.UnknownGroups(ctx, tx, projectID, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return InvariantError{Message: fmt.Sprintf("unknown group %d", missing[0])}
	}
	return nil
}

func (s *Session) RoleTransitions(ctx context.Context, fromID, toID int64) ([]domain.SystemRole, error) {
	rows, err := s.Repo.RoleTransitionsBetween(ctx, nil, fromID, toID)
	if err != nil {
		return nil, err
	}
	roles := make([]domain.SystemRole, 0, len(rows))
	for _, r := range rows {
		roles = append(roles, r.Role)
	}
	return roles, nil
}

func (s *Session) GroupTransitions(ctx context.Context, fromID, toID int64) ([]int64, error) {
	rows, err := s.Repo.GroupTransitionsBetween(ctx, nil, fromID, toID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.GroupID)
	}
	return ids, nil
}

func (s *Session) ResponsibleGroups(ctx context.Context, stateID int64) ([]int64, error) {
	if _, err := s.Repo.GetState(ctx, nil, stateID); err != nil {
		return nil, fmt.Errorf("state %d: %w", stateID, err)
	}
	return s.Repo.ResponsibleGroups(ctx, nil, stateID)
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
