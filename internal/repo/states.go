package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
)

const stateColumns = `id,template_id,name,type,responsible`

func scanState(s rowScanner) (domain.State, error) {
	var st domain.State
	var typ, resp string
	if err := s.Scan(&st.ID, &st.TemplateID, &st.Name, &typ, &resp); err != nil {
		return st, notFound(err)
	}
	st.Type = domain.StateType(typ)
	st.Responsible = domain.StateResponsible(resp)
	return st, nil
}

func (r Repo) InsertState(ctx context.Context, tx *sql.Tx, s domain.State) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO states(template_id,name,type,responsible) VALUES (?,?,?,?)`,
		s.TemplateID, s.Name, string(s.Type), string(s.Responsible))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetState(ctx context.Context, tx *sql.Tx, id int64) (domain.State, error) {
	return scanState(r.q(tx).QueryRowContext(ctx, `SELECT `+stateColumns+` FROM states WHERE id=?`, id))
}

func (r Repo) ListStates(ctx context.Context, tx *sql.Tx, templateID int64) ([]domain.State, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+stateColumns+` FROM states WHERE template_id=? ORDER BY id`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

// InitialStates returns every state of the template currently typed initial.
// A consistent template has exactly one.
func (r Repo) InitialStates(ctx context.Context, tx *sql.Tx, templateID int64) ([]domain.State, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+stateColumns+` FROM states WHERE template_id=? AND type='initial' ORDER BY id`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}

func (r Repo) SetStateType(ctx context.Context, tx *sql.Tx, id int64, typ domain.StateType) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE states SET type=? WHERE id=?`, string(typ), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DemoteInitialStates turns every initial state of the template except keep
// into an intermediate one.
func (r Repo) DemoteInitialStates(ctx context.Context, tx *sql.Tx, templateID, keep int64) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE states SET type='intermediate' WHERE template_id=? AND type='initial' AND id<>?`, templateID, keep)
	return err
}

func (r Repo) DeleteState(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM states WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountStateUsage counts issues currently in the state, recorded
// transitions into it and stored values of its fields.
func (r Repo) CountStateUsage(ctx context.Context, tx *sql.Tx, id int64) (int, error) {
	return countRow(ctx, r.q(tx), `SELECT (SELECT COUNT(*) FROM issues WHERE state_id=?)
		+ (SELECT COUNT(*) FROM transitions WHERE state_id=?)
		+ (SELECT COUNT(*) FROM field_values v JOIN fields f ON f.id=v.field_id WHERE f.state_id=?)`, id, id, id)
}

// IssueVisitedState reports whether the issue is in the state or has a
// recorded transition into it.
func (r Repo) IssueVisitedState(ctx context.Context, issueID, stateID int64) (bool, error) {
	n, err := countRow(ctx, r.DB, `SELECT (SELECT COUNT(*) FROM issues WHERE id=? AND state_id=?)
		+ (SELECT COUNT(*) FROM transitions WHERE issue_id=? AND state_id=?)`, issueID, stateID, issueID, stateID)
	return n > 0, err
}

// GetStates returns the states with the given ids ordered by id. Unknown ids
// are skipped.
func (r Repo) GetStates(ctx context.Context, ids []int64) ([]domain.State, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stateColumns+` FROM states WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`, idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, st)
	}
	return res, rows.Err()
}
