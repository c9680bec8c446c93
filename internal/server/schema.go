package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"etraxis/internal/domain"
	"etraxis/internal/engine"
)

var schemaErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

// templateActions are the schema actions whose gate needs nothing beyond
// the template itself.
var templateActions = []engine.SchemaAction{
	engine.SchemaLockTemplate,
	engine.SchemaUnlockTemplate,
	engine.SchemaSetTemplatePermissions,
	engine.SchemaCreateState,
}

func registerSchema(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "template-actions",
		Method:      http.MethodGet,
		Path:        "/templates/{id}/actions",
		Summary:     "Template-level actions available to the caller",
		Errors:      schemaErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body TemplateActionsResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		subj, err := s.TemplateSubject(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := TemplateActionsResponse{TemplateID: input.ID, Actions: map[string]bool{}}
		create, err := s.CanCreateIssue(ctx, subj.Template, s.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		res.Actions["issue.create"] = create
		for _, a := range templateActions {
			ok, err := s.IsSchemaGranted(ctx, a, subj, s.Actor)
			if err != nil {
				return nil, handleError(err)
			}
			res.Actions[a.String()] = ok
		}
		return &struct {
			Body TemplateActionsResponse `json:"body"`
		}{Body: res}, nil
	})

	for _, locked := range []bool{true, false} {
		locked := locked
		name := "unlock"
		if locked {
			name = "lock"
		}
		huma.Register(api, huma.Operation{
			OperationID:   name + "-template",
			Method:        http.MethodPost,
			Path:          "/templates/{id}/" + name,
			Summary:       "Template " + name,
			DefaultStatus: http.StatusNoContent,
			Errors:        schemaErrors,
		}, func(ctx context.Context, input *struct {
			ID int64 `path:"id"`
		}) (*struct{}, error) {
			s, err := sessionFromContext(ctx, e)
			if err != nil {
				return nil, err
			}
			if locked {
				err = s.LockTemplate(ctx, input.ID)
			} else {
				err = s.UnlockTemplate(ctx, input.ID)
			}
			if err != nil {
				return nil, handleError(err)
			}
			return &struct{}{}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "field-permission",
		Method:      http.MethodGet,
		Path:        "/fields/{id}/permission",
		Summary:     "Caller's access level to a field",
		Errors:      schemaErrors,
	}, func(ctx context.Context, input *struct {
		ID      int64 `path:"id"`
		IssueID int64 `query:"issue_id"`
	}) (*struct {
		Body FieldPermissionResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		var issueID *int64
		if input.IssueID != 0 {
			issueID = &input.IssueID
		}
		perm, err := s.FieldPermission(ctx, input.ID, issueID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body FieldPermissionResponse `json:"body"`
		}{Body: FieldPermissionResponse{
			FieldID:    input.ID,
			IssueID:    issueID,
			Permission: perm.String(),
			CanRead:    perm.CanRead(),
			CanWrite:   perm.CanWrite(),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-transitions",
		Method:      http.MethodGet,
		Path:        "/states/{id}/transitions",
		Summary:     "Roles and groups allowed on one edge",
		Errors:      schemaErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64 `path:"id"`
		ToID int64 `query:"to_state_id" required:"true"`
	}) (*struct {
		Body TransitionsResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		return transitionsResponse(ctx, s, input.ID, input.ToID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-role-transitions",
		Method:      http.MethodPut,
		Path:        "/states/{id}/transitions/roles",
		Summary:     "Replace the roles allowed on an edge",
		Errors:      schemaErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64                  `path:"id"`
		Body RoleTransitionsRequest `json:"body"`
	}) (*struct {
		Body TransitionsResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		roles := make([]domain.SystemRole, 0, len(input.Body.Roles))
		for _, r := range input.Body.Roles {
			roles = append(roles, domain.SystemRole(r))
		}
		if err := s.SetRoleTransitions(ctx, input.ID, input.Body.ToStateID, roles); err != nil {
			return nil, handleError(err)
		}
		return transitionsResponse(ctx, s, input.ID, input.Body.ToStateID)
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-group-transitions",
		Method:      http.MethodPut,
		Path:        "/states/{id}/transitions/groups",
		Summary:     "Replace the groups allowed on an edge",
		Errors:      schemaErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64                   `path:"id"`
		Body GroupTransitionsRequest `json:"body"`
	}) (*struct {
		Body TransitionsResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		if err := s.SetGroupTransitions(ctx, input.ID, input.Body.ToStateID, input.Body.Groups); err != nil {
			return nil, handleError(err)
		}
		return transitionsResponse(ctx, s, input.ID, input.Body.ToStateID)
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-initial-state",
		Method:        http.MethodPost,
		Path:          "/states/{id}/initial",
		Summary:       "Make the state the template's initial state",
		DefaultStatus: http.StatusNoContent,
		Errors:        schemaErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		if err := s.SetInitialState(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-responsible-groups",
		Method:      http.MethodGet,
		Path:        "/states/{id}/responsible_groups",
		Summary:     "Groups whose members may be assigned in the state",
		Errors:      schemaErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body GroupsRequest `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		ids, err := s.ResponsibleGroups(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GroupsRequest `json:"body"`
		}{Body: GroupsRequest{Groups: nonNilSlice(ids)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "set-responsible-groups",
		Method:        http.MethodPut,
		Path:          "/states/{id}/responsible_groups",
		Summary:       "Replace the responsible groups of the state",
		DefaultStatus: http.StatusNoContent,
		Errors:        schemaErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64         `path:"id"`
		Body GroupsRequest `json:"body"`
	}) (*struct{}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		if err := s.SetResponsibleGroups(ctx, input.ID, input.Body.Groups); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	deletes := []struct {
		path string
		op   func(*engine.Session, context.Context, int64) error
	}{
		{"states", (*engine.Session).DeleteState},
		{"fields", (*engine.Session).DeleteField},
		{"list_items", (*engine.Session).DeleteListItem},
	}
	for _, d := range deletes {
		d := d
		huma.Register(api, huma.Operation{
			OperationID:   "delete-" + d.path,
			Method:        http.MethodDelete,
			Path:          "/" + d.path + "/{id}",
			Summary:       "Delete unused " + d.path,
			DefaultStatus: http.StatusNoContent,
			Errors:        schemaErrors,
		}, func(ctx context.Context, input *struct {
			ID int64 `path:"id"`
		}) (*struct{}, error) {
			s, err := sessionFromContext(ctx, e)
			if err != nil {
				return nil, err
			}
			if err := d.op(s, ctx, input.ID); err != nil {
				return nil, handleError(err)
			}
			return &struct{}{}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID:   "remove-field",
		Method:        http.MethodPost,
		Path:          "/fields/{id}/remove",
		Summary:       "Soft-delete a field, keeping its values",
		DefaultStatus: http.StatusNoContent,
		Errors:        schemaErrors,
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct{}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		if err := s.RemoveField(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func transitionsResponse(ctx context.Context, s *engine.Session, fromID, toID int64) (*struct {
	Body TransitionsResponse `json:"body"`
}, error) {
	roles, err := s.RoleTransitions(ctx, fromID, toID)
	if err != nil {
		return nil, handleError(err)
	}
	groups, err := s.GroupTransitions(ctx, fromID, toID)
	if err != nil {
		return nil, handleError(err)
	}
	return &struct {
		Body TransitionsResponse `json:"body"`
	}{Body: TransitionsResponse{
		FromStateID: fromID,
		ToStateID:   toID,
		Roles:       rolesToStrings(roles),
		Groups:      nonNilSlice(groups),
	}}, nil
}
