package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
)

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	var created string
	var suspended int
	err := row.Scan(&p.ID, &p.Name, &desc, &created, &suspended)
	if err != nil {
		return p, notFound(err)
	}
	p.Description = desc.String
	p.Suspended = suspended != 0
	p.CreatedAt, err = parseTime(created)
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO projects(name,description,created_at,suspended) VALUES (?,?,?,?)`,
		p.Name, nullable(p.Description), formatTime(p.CreatedAt), boolInt(p.Suspended))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id int64) (domain.Project, error) {
	return scanProject(r.q(tx).QueryRowContext(ctx, `SELECT id,name,description,created_at,suspended FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectByName(ctx context.Context, name string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_at,suspended FROM projects WHERE name=?`, name))
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),created_at,suspended FROM projects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var created string
		var suspended int
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &created, &suspended); err != nil {
			return nil, err
		}
		if p.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		p.Suspended = suspended != 0
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) SetProjectSuspended(ctx context.Context, tx *sql.Tx, id int64, suspended bool) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE projects SET suspended=? WHERE id=?`, boolInt(suspended), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
