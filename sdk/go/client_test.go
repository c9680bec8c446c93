package etraxissdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClientSendsCredentialsAndDecodes(t *testing.T) {
	var gotKey, gotPath, gotQuery string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotBody = nil
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/states/3/transitions/groups":
			json.NewEncoder(w).Encode(Transitions{FromStateID: 3, ToStateID: 4, Roles: []string{}, Groups: []int64{7}})
		case "/api/issues/9/actions/change_state":
			json.NewEncoder(w).Encode(Decision{Action: "change_state", Granted: true})
		case "/api/fields/5/permission":
			json.NewEncoder(w).Encode(FieldPermission{FieldID: 5, Permission: "RW", CanRead: true, CanWrite: true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "etx_secret"
	ctx := context.Background()

	edge, err := c.SetGroupTransitions(ctx, 3, 4, []int64{7})
	if err != nil {
		t.Fatalf("set group transitions: %v", err)
	}
	if gotKey != "etx_secret" {
		t.Fatalf("api key header not sent, got %q", gotKey)
	}
	if diff := cmp.Diff(map[string]any{"to_state_id": float64(4), "groups": []any{float64(7)}}, gotBody); diff != "" {
		t.Fatalf("request body mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{7}, edge.Groups); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}

	ok, err := c.IssueAction(ctx, 9, "change_state")
	if err != nil || !ok {
		t.Fatalf("issue action: ok=%v err=%v", ok, err)
	}
	if gotPath != "/api/issues/9/actions/change_state" {
		t.Fatalf("unexpected path %s", gotPath)
	}

	perm, err := c.FieldPermission(ctx, 5, 11)
	if err != nil {
		t.Fatalf("field permission: %v", err)
	}
	if gotQuery != "issue_id=11" || !perm.CanWrite {
		t.Fatalf("unexpected field permission call query=%q perm=%+v", gotQuery, perm)
	}
}

func TestClientParsesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":"forbidden","message":"You are not allowed to change the state of this issue."}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "tok"
	_, err := c.ChangeState(context.Background(), 1, 2, nil)
	if !IsDenied(err) {
		t.Fatalf("expected denial, got %v", err)
	}
	apiErr := err.(*APIError)
	if apiErr.Code != "forbidden" || apiErr.Message == "" {
		t.Fatalf("envelope not parsed: %+v", apiErr)
	}
}
