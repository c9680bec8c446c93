package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
)

const templateColumns = `t.id,t.project_id,t.name,t.prefix,COALESCE(t.description,''),t.critical_age,t.frozen_time,t.locked`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplateInto(s rowScanner, extra ...any) (domain.Template, error) {
	var t domain.Template
	var critical, frozen sql.NullInt64
	var locked int
	dest := append([]any{&t.ID, &t.ProjectID, &t.Name, &t.Prefix, &t.Description, &critical, &frozen, &locked}, extra...)
	if err := s.Scan(dest...); err != nil {
		return t, notFound(err)
	}
	t.CriticalAge = nullIntPtr(critical)
	t.FrozenTime = nullIntPtr(frozen)
	t.Locked = locked != 0
	return t, nil
}

func (r Repo) InsertTemplate(ctx context.Context, tx *sql.Tx, t domain.Template) (int64, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO templates(project_id,name,prefix,description,critical_age,frozen_time,locked) VALUES (?,?,?,?,?,?,?)`,
		t.ProjectID, t.Name, t.Prefix, nullable(t.Description), nullableInt(t.CriticalAge), nullableInt(t.FrozenTime), boolInt(t.Locked))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetTemplate(ctx context.Context, tx *sql.Tx, id int64) (domain.Template, error) {
	return scanTemplateInto(r.q(tx).QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates t WHERE t.id=?`, id))
}

// LoadTemplate loads a template with its project and initial state in one
// round trip.
func (r Repo) LoadTemplate(ctx context.Context, tx *sql.Tx, id int64) (domain.TemplateContext, error) {
	var tc domain.TemplateContext
	var pDesc sql.NullString
	var pCreated string
	var pSuspended int
	var initial sql.NullInt64
	t, err := scanTemplateInto(r.q(tx).QueryRowContext(ctx, `SELECT `+templateColumns+`,
  p.id,p.name,p.description,p.created_at,p.suspended,
  (SELECT s.id FROM states s WHERE s.template_id=t.id AND s.type='initial' LIMIT 1)
FROM templates t JOIN projects p ON p.id=t.project_id WHERE t.id=?`, id),
		&tc.Project.ID, &tc.Project.Name, &pDesc, &pCreated, &pSuspended, &initial)
	if err != nil {
		return tc, err
	}
	tc.Template = t
	tc.Project.Description = pDesc.String
	tc.Project.Suspended = pSuspended != 0
	if tc.Project.CreatedAt, err = parseTime(pCreated); err != nil {
		return tc, err
	}
	tc.InitialStateID = nullInt64Ptr(initial)
	return tc, nil
}

func (r Repo) ListTemplates(ctx context.Context, projectID int64) ([]domain.Template, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates t WHERE t.project_id=? ORDER BY t.name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Template
	for rows.Next() {
		t, err := scanTemplateInto(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) SetTemplateLocked(ctx context.Context, tx *sql.Tx, id int64, locked bool) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE templates SET locked=? WHERE id=?`, boolInt(locked), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountTemplateIssues(ctx context.Context, tx *sql.Tx, templateID int64) (int, error) {
	return countRow(ctx, r.q(tx), `SELECT COUNT(*) FROM issues i JOIN states s ON s.id=i.state_id WHERE s.template_id=?`, templateID)
}
