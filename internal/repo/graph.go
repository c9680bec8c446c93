package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
)

func (r Repo) RoleTransitionsFrom(ctx context.Context, stateID int64) ([]domain.StateRoleTransition, error) {
	return r.roleTransitions(ctx, nil, `SELECT from_state_id,to_state_id,role FROM state_role_transitions WHERE from_state_id=? ORDER BY to_state_id,role`, stateID)
}

func (r Repo) RoleTransitionsBetween(ctx context.Context, tx *sql.Tx, fromID, toID int64) ([]domain.StateRoleTransition, error) {
	return r.roleTransitions(ctx, tx, `SELECT from_state_id,to_state_id,role FROM state_role_transitions WHERE from_state_id=? AND to_state_id=? ORDER BY role`, fromID, toID)
}

func (r Repo) roleTransitions(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.StateRoleTransition, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StateRoleTransition
	for rows.Next() {
		var t domain.StateRoleTransition
		var role string
		if err := rows.Scan(&t.FromStateID, &t.ToStateID, &role); err != nil {
			return nil, err
		}
		t.Role = domain.SystemRole(role)
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) GroupTransitionsFrom(ctx context.Context, stateID int64) ([]domain.StateGroupTransition, error) {
	return r.groupTransitions(ctx, nil, `SELECT from_state_id,to_state_id,group_id FROM state_group_transitions WHERE from_state_id=? ORDER BY to_state_id,group_id`, stateID)
}

func (r Repo) GroupTransitionsBetween(ctx context.Context, tx *sql.Tx, fromID, toID int64) ([]domain.StateGroupTransition, error) {
	return r.groupTransitions(ctx, tx, `SELECT from_state_id,to_state_id,group_id FROM state_group_transitions WHERE from_state_id=? AND to_state_id=? ORDER BY group_id`, fromID, toID)
}

func (r Repo) groupTransitions(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]domain.StateGroupTransition, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StateGroupTransition
	for rows.Next() {
		var t domain.StateGroupTransition
		if err := rows.Scan(&t.FromStateID, &t.ToStateID, &t.GroupID); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ReplaceRoleTransitions deletes every role label of the edge and inserts
// roles. Callers run it inside a transaction.
func (r Repo) ReplaceRoleTransitions(ctx context.Context, tx *sql.Tx, fromID, toID int64, roles []domain.SystemRole) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM state_role_transitions WHERE from_state_id=? AND to_state_id=?`, fromID, toID); err != nil {
		return err
	}
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state_role_transitions(from_state_id,to_state_id,role) VALUES (?,?,?)`, fromID, toID, string(role)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ReplaceGroupTransitions(ctx context.Context, tx *sql.Tx, fromID, toID int64, groupIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM state_group_transitions WHERE from_state_id=? AND to_state_id=?`, fromID, toID); err != nil {
		return err
	}
	for _, id := range groupIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state_group_transitions(from_state_id,to_state_id,group_id) VALUES (?,?,?)`, fromID, toID, id); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ResponsibleGroups(ctx context.Context, tx *sql.Tx, stateID int64) ([]int64, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT group_id FROM state_responsible_groups WHERE state_id=? ORDER BY group_id`, stateID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func (r Repo) ReplaceResponsibleGroups(ctx context.Context, tx *sql.Tx, stateID int64, groupIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM state_responsible_groups WHERE state_id=?`, stateID); err != nil {
		return err
	}
	for _, id := range groupIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state_responsible_groups(state_id,group_id) VALUES (?,?)`, stateID, id); err != nil {
			return err
		}
	}
	return nil
}
