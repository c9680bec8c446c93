package auth

import (
	"context"
	"fmt"

	"etraxis/internal/domain"
)

// AccessDeniedError indicates a gate evaluated to false for a mutation.
type AccessDeniedError struct {
	Message string
}

func (e AccessDeniedError) Error() string {
	if e.Message == "" {
		return "access denied"
	}
	return e.Message
}

func Denied(format string, args ...any) AccessDeniedError {
	return AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// Source is the subset of persistence the resolver reads from.
type Source interface {
	TemplateRolePermissions(ctx context.Context, templateID int64) ([]domain.TemplateRolePermission, error)
	TemplateGroupPermissionsFor(ctx context.Context, templateID, userID int64) ([]domain.TemplateGroupPermission, error)
	FieldRolePermissions(ctx context.Context, fieldID int64) ([]domain.FieldRolePermission, error)
	FieldGroupPermissionsFor(ctx context.Context, fieldID, userID int64) ([]domain.FieldGroupPermission, error)
}

type rolePerm struct {
	role domain.SystemRole
	perm domain.TemplatePermission
}

type pairKey struct {
	id     int64
	userID int64
}

// Resolver answers template and field permission questions for one session.
// Every row set it fetches is kept for the lifetime of the resolver, so it
// must be built fresh per request and never shared between goroutines.
type Resolver struct {
	src Source

	roles       map[int64]map[rolePerm]bool
	groups      map[pairKey]map[domain.TemplatePermission]bool
	fieldRoles  map[int64]map[domain.SystemRole]domain.FieldPermission
	fieldGroups map[pairKey]domain.FieldPermission
}

func NewResolver(src Source) *Resolver {
	return &Resolver{
		src:         src,
		roles:       map[int64]map[rolePerm]bool{},
		groups:      map[pairKey]map[domain.TemplatePermission]bool{},
		fieldRoles:  map[int64]map[domain.SystemRole]domain.FieldPermission{},
		fieldGroups: map[pairKey]domain.FieldPermission{},
	}
}

func (r *Resolver) HasRolePermission(ctx context.Context, templateID int64, role domain.SystemRole, perm domain.TemplatePermission) (bool, error) {
	set, ok := r.roles[templateID]
	if !ok {
		rows, err := r.src.TemplateRolePermissions(ctx, templateID)
		if err != nil {
			return false, fmt.Errorf("template %d role permissions: %w", templateID, err)
		}
		set = make(map[rolePerm]bool, len(rows))
		for _, row := range rows {
			set[rolePerm{row.Role, row.Permission}] = true
		}
		r.roles[templateID] = set
	}
	return set[rolePerm{role, perm}], nil
}

func (r *Resolver) HasGroupPermission(ctx context.Context, templateID, userID int64, perm domain.TemplatePermission) (bool, error) {
	key := pairKey{templateID, userID}
	set, ok := r.groups[key]
	if !ok {
		rows, err := r.src.TemplateGroupPermissionsFor(ctx, templateID, userID)
		if err != nil {
			return false, fmt.Errorf("template %d group permissions: %w", templateID, err)
		}
		set = make(map[domain.TemplatePermission]bool, len(rows))
		for _, row := range rows {
			set[row.Permission] = true
		}
		r.groups[key] = set
	}
	return set[perm], nil
}

// HasPermission checks the author, responsible and anyone roles first and
// only then the user's groups.
func (r *Resolver) HasPermission(ctx context.Context, issue domain.IssueContext, userID int64, perm domain.TemplatePermission) (bool, error) {
	templateID := issue.Template.ID
	if issue.Issue.IsAuthor(userID) {
		if ok, err := r.HasRolePermission(ctx, templateID, domain.RoleAuthor, perm); err != nil || ok {
			return ok, err
		}
	}
	if issue.Issue.IsResponsible(userID) {
		if ok, err := r.HasRolePermission(ctx, templateID, domain.RoleResponsible, perm); err != nil || ok {
			return ok, err
		}
	}
	if ok, err := r.HasRolePermission(ctx, templateID, domain.RoleAnyone, perm); err != nil || ok {
		return ok, err
	}
	return r.HasGroupPermission(ctx, templateID, userID, perm)
}

// FieldPermission returns the highest access level the user holds on the
// field. Without an issue only the anyone role and groups apply.
func (r *Resolver) FieldPermission(ctx context.Context, field domain.Field, issue *domain.Issue, userID int64) (domain.FieldPermission, error) {
	byRole, err := r.fieldRoleLevels(ctx, field.ID)
	if err != nil {
		return domain.FieldNone, err
	}
	roles := []domain.SystemRole{domain.RoleAnyone}
	if issue != nil {
		roles = domain.RolesFor(*issue, userID)
	}
	level := domain.FieldNone
	for _, role := range roles {
		level = level.Max(byRole[role])
		if level == domain.FieldReadWrite {
			return level, nil
		}
	}
	group, err := r.fieldGroupLevel(ctx, field.ID, userID)
	if err != nil {
		return domain.FieldNone, err
	}
	return level.Max(group), nil
}

func (r *Resolver) fieldRoleLevels(ctx context.Context, fieldID int64) (map[domain.SystemRole]domain.FieldPermission, error) {
	if levels, ok := r.fieldRoles[fieldID]; ok {
		return levels, nil
	}
	rows, err := r.src.FieldRolePermissions(ctx, fieldID)
	if err != nil {
		return nil, fmt.Errorf("field %d role permissions: %w", fieldID, err)
	}
	levels := make(map[domain.SystemRole]domain.FieldPermission, len(rows))
	for _, row := range rows {
		levels[row.Role] = levels[row.Role].Max(row.Permission)
	}
	r.fieldRoles[fieldID] = levels
	return levels, nil
}

func (r *Resolver) fieldGroupLevel(ctx context.Context, fieldID, userID int64) (domain.FieldPermission, error) {
	key := pairKey{fieldID, userID}
	if level, ok := r.fieldGroups[key]; ok {
		return level, nil
	}
	rows, err := r.src.FieldGroupPermissionsFor(ctx, fieldID, userID)
	if err != nil {
		return domain.FieldNone, fmt.Errorf("field %d group permissions: %w", fieldID, err)
	}
	level := domain.FieldNone
	for _, row := range rows {
		level = level.Max(row.Permission)
	}
	r.fieldGroups[key] = level
	return level, nil
}
