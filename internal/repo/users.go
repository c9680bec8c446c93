package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
)

const userColumns = `id, email, fullname, admin, disabled`

func scanUser(s rowScanner) (domain.User, error) {
	var u domain.User
	var admin, disabled int
	if err := s.Scan(&u.ID, &u.Email, &u.Fullname, &admin, &disabled); err != nil {
		return u, notFound(err)
	}
	u.Admin = admin != 0
	u.Disabled = disabled != 0
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(email, fullname, admin, disabled) VALUES (?,?,?,?)`,
		u.Email, u.Fullname, boolInt(u.Admin), boolInt(u.Disabled))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id int64) (domain.User, error) {
	return scanUser(r.q(tx).QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func scanGroup(s rowScanner) (domain.Group, error) {
	var g domain.Group
	var project sql.NullInt64
	if err := s.Scan(&g.ID, &project, &g.Name, &g.Description); err != nil {
		return g, notFound(err)
	}
	g.ProjectID = nullInt64Ptr(project)
	return g, nil
}

func (r Repo) InsertGroup(ctx context.Context, tx *sql.Tx, g domain.Group) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO security_groups(project_id, name, description) VALUES (?,?,?)`,
		nullableID(g.ProjectID), g.Name, nullable(g.Description))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetGroup(ctx context.Context, tx *sql.Tx, id int64) (domain.Group, error) {
	return scanGroup(r.q(tx).QueryRowContext(ctx, `SELECT id, project_id, name, COALESCE(description,'') FROM security_groups WHERE id=?`, id))
}

// ListGroups returns the global groups plus, when projectID is non-zero, the
// groups local to that project.
func (r Repo) ListGroups(ctx context.Context, projectID int64) ([]domain.Group, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, project_id, name, COALESCE(description,'') FROM security_groups
WHERE project_id IS NULL OR project_id=? ORDER BY name, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

func (r Repo) AddMember(ctx context.Context, tx *sql.Tx, groupID, userID int64) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO memberships(group_id, user_id) VALUES (?,?)`, groupID, userID)
	return err
}

func (r Repo) RemoveMember(ctx context.Context, tx *sql.Tx, groupID, userID int64) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM memberships WHERE group_id=? AND user_id=?`, groupID, userID)
	return err
}

func (r Repo) UserGroupIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT group_id FROM memberships WHERE user_id=? ORDER BY group_id`, userID)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

// UnknownGroups returns the ids from groupIDs that do not name a group usable
// within projectID: a global group or one local to the project.
func (r Repo) UnknownGroups(ctx context.Context, tx *sql.Tx, projectID int64, groupIDs []int64) ([]int64, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	args := append(idArgs(groupIDs), projectID)
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id FROM security_groups WHERE id IN (`+placeholders(len(groupIDs))+`) AND (project_id IS NULL OR project_id=?)`, args...)
	if err != nil {
		return nil, err
	}
	known, err := scanIDs(rows)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool, len(known))
	for _, id := range known {
		seen[id] = true
	}
	var missing []int64
	for _, id := range groupIDs {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

// IsMemberOfAny reports whether userID belongs to at least one of groupIDs.
func (r Repo) IsMemberOfAny(ctx context.Context, tx *sql.Tx, userID int64, groupIDs []int64) (bool, error) {
	if len(groupIDs) == 0 {
		return false, nil
	}
	args := append([]any{userID}, idArgs(groupIDs)...)
	n, err := countRow(ctx, r.q(tx), `SELECT COUNT(*) FROM memberships WHERE user_id=? AND group_id IN (`+placeholders(len(groupIDs))+`)`, args...)
	return n > 0, err
}
