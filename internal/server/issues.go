package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"etraxis/internal/domain"
	"etraxis/internal/engine"
	"etraxis/internal/repo"
)

var issueErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

type issuePath struct {
	ID int64 `path:"id"`
}

// issueView loads the issue for a viewer and fills the actions and states
// sections from the viewer's session.
func issueView(ctx context.Context, s *engine.Session, ic domain.IssueContext) (IssueResponse, error) {
	res := issueResponse(ic, s.CurrentTime())
	actions, err := s.IssueActions(ctx, ic, s.Actor)
	if err != nil {
		return res, err
	}
	res.Actions = actionsResponse(actions)
	states, err := s.ReachableStates(ctx, ic)
	if err != nil {
		return res, err
	}
	res.States = nonNilSlice(states)
	return res, nil
}

// reloadIssue returns the post-mutation view of the issue. A fresh session
// is used so decisions cached before the mutation are not reused.
func reloadIssue(ctx context.Context, e engine.Engine, s *engine.Session, issueID int64) (IssueResponse, error) {
	fresh := e.NewSession(s.Actor)
	ic, err := fresh.Issue(ctx, issueID)
	if err != nil {
		return IssueResponse{}, err
	}
	return issueView(ctx, fresh, ic)
}

func registerIssues(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/issues",
		Summary:       "Create issue",
		DefaultStatus: http.StatusCreated,
		Errors:        issueErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateIssueRequest `json:"body"`
	}) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		issue, err := s.CreateIssue(ctx, engine.IssueInput{
			TemplateID:    input.Body.TemplateID,
			Subject:       input.Body.Subject,
			ResponsibleID: input.Body.ResponsibleID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		res, err := reloadIssue(ctx, e, s, issue.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/issues/{id}",
		Summary:     "Get issue with permitted actions and reachable states",
		Errors:      issueErrors,
	}, func(ctx context.Context, input *issuePath) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		ic, err := s.ViewIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := issueView(ctx, s, ic)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-issue-states",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/states",
		Summary:     "States the caller may move the issue to",
		Errors:      issueErrors,
	}, func(ctx context.Context, input *issuePath) (*struct {
		Body []domain.State `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		ic, err := s.ViewIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		states, err := s.ReachableStates(ctx, ic)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.State `json:"body"`
		}{Body: nonNilSlice(states)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "issue-history",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/history",
		Summary:     "State changes of the issue",
		Errors:      issueErrors,
	}, func(ctx context.Context, input *issuePath) (*struct {
		Body []repo.TransitionRecord `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		history, err := s.History(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []repo.TransitionRecord `json:"body"`
		}{Body: nonNilSlice(history)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "change-issue-state",
		Method:      http.MethodPost,
		Path:        "/issues/{id}/state",
		Summary:     "Move the issue to another state",
		Errors:      issueErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64              `path:"id"`
		Body ChangeStateRequest `json:"body"`
	}) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		if _, err := s.ChangeState(ctx, input.ID, input.Body.StateID, input.Body.ResponsibleID); err != nil {
			return nil, handleError(err)
		}
		res, err := reloadIssue(ctx, e, s, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-issue-action",
		Method:      http.MethodGet,
		Path:        "/issues/{id}/actions/{action}",
		Summary:     "Evaluate a single issue action for the caller",
		Errors:      issueErrors,
	}, func(ctx context.Context, input *struct {
		ID     int64  `path:"id"`
		Action string `path:"action" enum:"view,update,delete,change_state,reassign,suspend,resume,add_public_comment,add_private_comment,read_private_comment,attach_file,delete_file,add_dependency,remove_dependency,add_related,remove_related"`
	}) (*struct {
		Body DecisionResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		action, err := engine.ParseIssueAction(input.Action)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		ic, err := s.ViewIssue(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		ok, err := s.IsIssueGranted(ctx, action, ic, s.Actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body DecisionResponse `json:"body"`
		}{Body: DecisionResponse{Action: action.String(), Granted: ok}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reassign-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{id}/reassign",
		Summary:     "Reassign issue",
		Errors:      issueErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64           `path:"id"`
		Body ReassignRequest `json:"body"`
	}) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		if _, err := s.Reassign(ctx, input.ID, input.Body.ResponsibleID); err != nil {
			return nil, handleError(err)
		}
		res, err := reloadIssue(ctx, e, s, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suspend-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{id}/suspend",
		Summary:     "Suspend issue until a date",
		Errors:      issueErrors,
	}, func(ctx context.Context, input *struct {
		ID   int64          `path:"id"`
		Body SuspendRequest `json:"body"`
	}) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		if _, err := s.Suspend(ctx, input.ID, input.Body.Until); err != nil {
			return nil, handleError(err)
		}
		res, err := reloadIssue(ctx, e, s, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resume-issue",
		Method:      http.MethodPost,
		Path:        "/issues/{id}/resume",
		Summary:     "Resume suspended issue",
		Errors:      issueErrors,
	}, func(ctx context.Context, input *issuePath) (*struct {
		Body IssueResponse `json:"body"`
	}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		if _, err := s.Resume(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		res, err := reloadIssue(ctx, e, s, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IssueResponse `json:"body"`
		}{Body: res}, nil
	})

	type linkPath struct {
		ID      int64 `path:"id"`
		OtherID int64 `path:"other_id"`
	}
	links := []struct {
		kind   string
		add    func(*engine.Session, context.Context, int64, int64) error
		remove func(*engine.Session, context.Context, int64, int64) error
	}{
		{"dependencies", (*engine.Session).AddDependency, (*engine.Session).RemoveDependency},
		{"related", (*engine.Session).AddRelated, (*engine.Session).RemoveRelated},
	}
	for _, l := range links {
		l := l
		huma.Register(api, huma.Operation{
			OperationID:   "add-issue-" + l.kind,
			Method:        http.MethodPost,
			Path:          "/issues/{id}/" + l.kind,
			Summary:       "Link issue (" + l.kind + ")",
			DefaultStatus: http.StatusNoContent,
			Errors:        issueErrors,
		}, func(ctx context.Context, input *struct {
			ID   int64       `path:"id"`
			Body LinkRequest `json:"body"`
		}) (*struct{}, error) {
			s, err := sessionFromContext(ctx, e)
			if err != nil {
				return nil, err
			}
			if err := l.add(s, ctx, input.ID, input.Body.IssueID); err != nil {
				return nil, handleError(err)
			}
			return &struct{}{}, nil
		})
		huma.Register(api, huma.Operation{
			OperationID:   "remove-issue-" + l.kind,
			Method:        http.MethodDelete,
			Path:          "/issues/{id}/" + l.kind + "/{other_id}",
			Summary:       "Unlink issue (" + l.kind + ")",
			DefaultStatus: http.StatusNoContent,
			Errors:        issueErrors,
		}, func(ctx context.Context, input *linkPath) (*struct{}, error) {
			s, err := sessionFromContext(ctx, e)
			if err != nil {
				return nil, err
			}
			if err := l.remove(s, ctx, input.ID, input.OtherID); err != nil {
				return nil, handleError(err)
			}
			return &struct{}{}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID:   "set-issue-field",
		Method:        http.MethodPut,
		Path:          "/issues/{id}/fields/{field_id}",
		Summary:       "Set the issue's value of a field",
		DefaultStatus: http.StatusNoContent,
		Errors:        issueErrors,
	}, func(ctx context.Context, input *struct {
		ID      int64             `path:"id"`
		FieldID int64             `path:"field_id"`
		Body    FieldValueRequest `json:"body"`
	}) (*struct{}, error) {
		s, err := sessionFromContext(ctx, e)
		if err != nil {
			return nil, err
		}
		if err := s.SetFieldValue(ctx, input.ID, input.FieldID, input.Body.Value); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
