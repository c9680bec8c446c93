package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
)

func (r Repo) TemplateRolePermissions(ctx context.Context, templateID int64) ([]domain.TemplateRolePermission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT template_id, role, permission FROM template_role_permissions WHERE template_id=? ORDER BY role, permission`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TemplateRolePermission
	for rows.Next() {
		var p domain.TemplateRolePermission
		var role, perm string
		if err := rows.Scan(&p.TemplateID, &role, &perm); err != nil {
			return nil, err
		}
		p.Role = domain.SystemRole(role)
		p.Permission = domain.TemplatePermission(perm)
		res = append(res, p)
	}
	return res, rows.Err()
}

// TemplateGroupPermissionsFor returns the group permission rows of the
// template whose group has userID as a member.
func (r Repo) TemplateGroupPermissionsFor(ctx context.Context, templateID, userID int64) ([]domain.TemplateGroupPermission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT tgp.template_id, tgp.group_id, tgp.permission
FROM template_group_permissions tgp
JOIN memberships m ON m.group_id=tgp.group_id
WHERE tgp.template_id=? AND m.user_id=?
ORDER BY tgp.group_id, tgp.permission`, templateID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TemplateGroupPermission
	for rows.Next() {
		var p domain.TemplateGroupPermission
		var perm string
		if err := rows.Scan(&p.TemplateID, &p.GroupID, &perm); err != nil {
			return nil, err
		}
		p.Permission = domain.TemplatePermission(perm)
		res = append(res, p)
	}
	return res, rows.Err()
}

// ReplaceTemplateRolePermission sets which roles hold perm on the template.
func (r Repo) ReplaceTemplateRolePermission(ctx context.Context, tx *sql.Tx, templateID int64, perm domain.TemplatePermission, roles []domain.SystemRole) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM template_role_permissions WHERE template_id=? AND permission=?`, templateID, string(perm)); err != nil {
		return err
	}
	for _, role := range roles {
		if _, err := tx.ExecContext(ctx, `INSERT INTO template_role_permissions(template_id, role, permission) VALUES (?,?,?)`, templateID, string(role), string(perm)); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceTemplateGroupPermission sets which groups hold perm on the template.
func (r Repo) ReplaceTemplateGroupPermission(ctx context.Context, tx *sql.Tx, templateID int64, perm domain.TemplatePermission, groupIDs []int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM template_group_permissions WHERE template_id=? AND permission=?`, templateID, string(perm)); err != nil {
		return err
	}
	for _, id := range groupIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO template_group_permissions(template_id, group_id, permission) VALUES (?,?,?)`, templateID, id, string(perm)); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) FieldRolePermissions(ctx context.Context, fieldID int64) ([]domain.FieldRolePermission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT field_id, role, permission FROM field_role_permissions WHERE field_id=? ORDER BY role`, fieldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FieldRolePermission
	for rows.Next() {
		var p domain.FieldRolePermission
		var role, perm string
		if err := rows.Scan(&p.FieldID, &role, &perm); err != nil {
			return nil, err
		}
		p.Role = domain.SystemRole(role)
		p.Permission = domain.FieldPermission(perm)
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) FieldGroupPermissionsFor(ctx context.Context, fieldID, userID int64) ([]domain.FieldGroupPermission, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT fgp.field_id, fgp.group_id, fgp.permission
FROM field_group_permissions fgp
JOIN memberships m ON m.group_id=fgp.group_id
WHERE fgp.field_id=? AND m.user_id=?
ORDER BY fgp.group_id`, fieldID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.FieldGroupPermission
	for rows.Next() {
		var p domain.FieldGroupPermission
		var perm string
		if err := rows.Scan(&p.FieldID, &p.GroupID, &perm); err != nil {
			return nil, err
		}
		p.Permission = domain.FieldPermission(perm)
		res = append(res, p)
	}
	return res, rows.Err()
}

// SetFieldRolePermission stores perm for the role on the field. FieldNone
// removes the row.
func (r Repo) SetFieldRolePermission(ctx context.Context, tx *sql.Tx, fieldID int64, role domain.SystemRole, perm domain.FieldPermission) error {
	if perm == domain.FieldNone {
		_, err := r.q(tx).ExecContext(ctx, `DELETE FROM field_role_permissions WHERE field_id=? AND role=?`, fieldID, string(role))
		return err
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO field_role_permissions(field_id, role, permission) VALUES (?,?,?)
ON CONFLICT(field_id, role) DO UPDATE SET permission=excluded.permission`, fieldID, string(role), string(perm))
	return err
}

func (r Repo) SetFieldGroupPermission(ctx context.Context, tx *sql.Tx, fieldID, groupID int64, perm domain.FieldPermission) error {
	if perm == domain.FieldNone {
		_, err := r.q(tx).ExecContext(ctx, `DELETE FROM field_group_permissions WHERE field_id=? AND group_id=?`, fieldID, groupID)
		return err
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO field_group_permissions(field_id, group_id, permission) VALUES (?,?,?)
ON CONFLICT(field_id, group_id) DO UPDATE SET permission=excluded.permission`, fieldID, groupID, string(perm))
	return err
}
