package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"etraxis/internal/config"
	"etraxis/internal/db"
	"etraxis/internal/domain"
	"etraxis/internal/engine"
	"etraxis/internal/metrics"
	"etraxis/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()

	Engine                   engine.Engine
	Admin, Author, Dev       domain.User
	Template                 domain.Template
	Opened, Assigned, Closed domain.State
	Devs                     domain.Group
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) token(t *testing.T, u domain.User) map[string]string {
	t.Helper()
	tok, err := SignToken(testSecret, u.ID, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok}
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	e := engine.New(conn, config.Default())
	ts := &testServer{Engine: e}

	ts.Admin, err = e.Bootstrap(ctx, "admin@example.com", "Admin")
	mustOK(t, err)
	as := e.NewSession(ts.Admin)
	ts.Author, err = as.CreateUser(ctx, domain.User{Email: "author@example.com", Fullname: "Author"})
	mustOK(t, err)
	ts.Dev, err = as.CreateUser(ctx, domain.User{Email: "dev@example.com", Fullname: "Dev"})
	mustOK(t, err)
	project, err := as.CreateProject(ctx, "Alpha", "")
	mustOK(t, err)
	ts.Devs, err = as.CreateGroup(ctx, &project.ID, "Developers", "")
	mustOK(t, err)
	mustOK(t, as.AddMember(ctx, ts.Devs.ID, ts.Dev.ID))
	ts.Template, err = as.CreateTemplate(ctx, engine.TemplateInput{ProjectID: project.ID, Name: "Bug", Prefix: "bug"})
	mustOK(t, err)
	ts.Opened, err = as.CreateState(ctx, engine.StateInput{TemplateID: ts.Template.ID, Name: "Opened"})
	mustOK(t, err)
	ts.Assigned, err = as.CreateState(ctx, engine.StateInput{TemplateID: ts.Template.ID, Name: "Assigned", Responsible: domain.ResponsibleAssign})
	mustOK(t, err)
	ts.Closed, err = as.CreateState(ctx, engine.StateInput{TemplateID: ts.Template.ID, Name: "Closed", Type: domain.StateFinal})
	mustOK(t, err)
	mustOK(t, as.SetResponsibleGroups(ctx, ts.Assigned.ID, []int64{ts.Devs.ID}))
	mustOK(t, as.SetRoleTransitions(ctx, ts.Opened.ID, ts.Assigned.ID, []domain.SystemRole{domain.RoleAuthor}))
	mustOK(t, as.SetRoleTransitions(ctx, ts.Assigned.ID, ts.Closed.ID, []domain.SystemRole{domain.RoleResponsible}))
	mustOK(t, as.SetTemplateRolePermissions(ctx, ts.Template.ID, domain.PermCreateIssues, []domain.SystemRole{domain.RoleAnyone}))
	mustOK(t, as.SetTemplateRolePermissions(ctx, ts.Template.ID, domain.PermEditIssues, []domain.SystemRole{domain.RoleAuthor}))
	mustOK(t, as.SetTemplateGroupPermissions(ctx, ts.Template.ID, domain.PermViewIssues, []int64{ts.Devs.ID}))
	mustOK(t, as.UnlockTemplate(ctx, ts.Template.ID))

	metricsHandler, err := metrics.Setup(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/api",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyUserHeader: true},
		Metrics:  metricsHandler,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts.URL = "http://" + ln.Addr().String()
	ts.client = &http.Client{}
	ts.close = func() {
		srv.Shutdown(context.Background())
		ln.Close()
		conn.Close()
	}
	return ts, func() { ts.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func (s *testServer) createIssue(t *testing.T, subject string) IssueResponse {
	t.Helper()
	res, data := doJSON(t, s.Client(), http.MethodPost, s.URL+"/api/issues", map[string]any{
		"template_id": s.Template.ID,
		"subject":     subject,
	}, s.token(t, s.Author))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create issue status %d: %s", res.StatusCode, string(data))
	}
	var issue IssueResponse
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatalf("unmarshal issue: %v", err)
	}
	return issue
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/api/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("expected 401 unauthorized, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected invalid credentials, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, srv.token(t, srv.Author))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.User.ID != srv.Author.ID || who.Source != "jwt" {
		t.Fatalf("unexpected principal %+v", who)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/api/me/api_keys", map[string]any{"name": "ci"}, srv.token(t, srv.Dev))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	_ = json.Unmarshal(data, &key)
	if key.Key == "" {
		t.Fatalf("new key must carry its secret")
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth status %d: %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &who)
	if who.User.ID != srv.Dev.ID || who.Source != "api_key" {
		t.Fatalf("unexpected api key principal %+v", who)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/me", nil, map[string]string{"X-User-Id": fmt.Sprint(srv.Admin.ID)})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("legacy header status %d: %s", res.StatusCode, string(data))
	}
}

func TestIssueWorkflowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	issue := srv.createIssue(t, "Broken login")
	if !issue.Actions["update"] || len(issue.States) != 1 || issue.States[0].ID != srv.Assigned.ID {
		t.Fatalf("author should edit and reach Assigned, got actions=%v states=%+v", issue.Actions, issue.States)
	}
	base := fmt.Sprintf("%s/api/issues/%d", srv.URL, issue.ID)

	res, data := doJSON(t, client, http.MethodGet, base, nil, srv.token(t, srv.Dev))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("developer views through group: %d %s", res.StatusCode, string(data))
	}
	var devView IssueResponse
	_ = json.Unmarshal(data, &devView)
	if devView.Actions["update"] || devView.Actions["change_state"] {
		t.Fatalf("developer must not edit or move the issue: %v", devView.Actions)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/actions/update", nil, srv.token(t, srv.Admin))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("action check on an issue the caller cannot view: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/state", map[string]any{"state_id": srv.Assigned.ID}, srv.token(t, srv.Author))
	if res.StatusCode != http.StatusUnprocessableEntity || errorCode(t, data) != "validation_failed" {
		t.Fatalf("assign state without responsible: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/state", map[string]any{"state_id": srv.Assigned.ID, "responsible_id": srv.Dev.ID}, srv.token(t, srv.Author))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("change state status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/actions/change_state", nil, srv.token(t, srv.Dev))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("action check status %d: %s", res.StatusCode, string(data))
	}
	var decision DecisionResponse
	_ = json.Unmarshal(data, &decision)
	if !decision.Granted {
		t.Fatalf("responsible developer should be able to close the issue")
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/state", map[string]any{"state_id": srv.Closed.ID}, srv.token(t, srv.Dev))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status %d: %s", res.StatusCode, string(data))
	}
	var closed IssueResponse
	_ = json.Unmarshal(data, &closed)
	if !closed.Closed || closed.ClosedAt == nil || closed.ResponsibleID != nil {
		t.Fatalf("unexpected closed issue %+v", closed)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/actions/teleport", nil, srv.token(t, srv.Dev))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown action should be a bad request, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/api/issues/999", nil, srv.token(t, srv.Dev))
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("expected not found, got %d %s", res.StatusCode, string(data))
	}
}

func TestSchemaErrorsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := srv.token(t, srv.Admin)
	mustOK(t, srv.Engine.NewSession(srv.Admin).LockTemplate(context.Background(), srv.Template.ID))

	res, data := doJSON(t, client, http.MethodPut, fmt.Sprintf("%s/api/states/%d/transitions/roles", srv.URL, srv.Closed.ID),
		map[string]any{"to_state_id": srv.Opened.ID, "roles": []string{"author"}}, admin)
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("final from-state must be forbidden, got %d %s", res.StatusCode, string(data))
	}

	other, err := srv.Engine.NewSession(srv.Admin).CreateTemplate(context.Background(), engine.TemplateInput{ProjectID: srv.Template.ProjectID, Name: "Task", Prefix: "task"})
	mustOK(t, err)
	foreign, err := srv.Engine.NewSession(srv.Admin).CreateState(context.Background(), engine.StateInput{TemplateID: other.ID, Name: "New"})
	mustOK(t, err)
	res, data = doJSON(t, client, http.MethodPut, fmt.Sprintf("%s/api/states/%d/transitions/groups", srv.URL, srv.Opened.ID),
		map[string]any{"to_state_id": foreign.ID, "groups": []int64{srv.Devs.ID}}, admin)
	if res.StatusCode != http.StatusInternalServerError || errorCode(t, data) != "invariant_violation" {
		t.Fatalf("cross-template edge: %d %s", res.StatusCode, string(data))
	}
	if !strings.Contains(string(data), "States must belong the same template.") {
		t.Fatalf("missing invariant message: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPut, fmt.Sprintf("%s/api/states/%d/transitions/groups", srv.URL, srv.Opened.ID),
		map[string]any{"to_state_id": srv.Closed.ID, "groups": []int64{srv.Devs.ID, srv.Devs.ID}}, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set group transitions: %d %s", res.StatusCode, string(data))
	}
	var edge TransitionsResponse
	_ = json.Unmarshal(data, &edge)
	if len(edge.Groups) != 1 || edge.Groups[0] != srv.Devs.ID {
		t.Fatalf("unexpected edge %+v", edge)
	}

	res, data = doJSON(t, client, http.MethodGet, fmt.Sprintf("%s/api/templates/%d/actions", srv.URL, srv.Template.ID), nil, admin)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("template actions: %d %s", res.StatusCode, string(data))
	}
	var actions TemplateActionsResponse
	_ = json.Unmarshal(data, &actions)
	if !actions.Actions["template.unlock"] || actions.Actions["template.lock"] || actions.Actions["issue.create"] {
		t.Fatalf("locked template actions: %v", actions.Actions)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/api/list_items/12345", nil, admin)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing list item: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/api/states/%d/initial", srv.URL, srv.Assigned.ID), nil, srv.token(t, srv.Author))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin initial state: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/api/states/%d/initial", srv.URL, srv.Assigned.ID), nil, admin)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("initial state: %d %s", res.StatusCode, string(data))
	}
}

func TestFieldPermissionEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	as := srv.Engine.NewSession(srv.Admin)
	mustOK(t, as.LockTemplate(ctx, srv.Template.ID))
	field, err := as.CreateField(ctx, engine.FieldInput{StateID: srv.Opened.ID, Name: "Severity", Type: domain.FieldNumber})
	mustOK(t, err)
	mustOK(t, as.SetFieldRolePermission(ctx, field.ID, domain.RoleAnyone, domain.FieldReadOnly))
	mustOK(t, as.SetFieldRolePermission(ctx, field.ID, domain.RoleAuthor, domain.FieldReadWrite))
	mustOK(t, as.UnlockTemplate(ctx, srv.Template.ID))
	issue := srv.createIssue(t, "Perms")

	url := fmt.Sprintf("%s/api/fields/%d/permission", srv.URL, field.ID)
	cases := []struct {
		user  domain.User
		query string
		want  string
	}{
		{srv.Author, fmt.Sprintf("?issue_id=%d", issue.ID), "RW"},
		{srv.Author, "", "R"},
		{srv.Dev, fmt.Sprintf("?issue_id=%d", issue.ID), "R"},
	}
	for _, tc := range cases {
		res, data := doJSON(t, srv.Client(), http.MethodGet, url+tc.query, nil, srv.token(t, tc.user))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("field permission status %d: %s", res.StatusCode, string(data))
		}
		var got FieldPermissionResponse
		_ = json.Unmarshal(data, &got)
		if got.Permission != tc.want {
			t.Fatalf("%s%s: got %s want %s", tc.user.Email, tc.query, got.Permission, tc.want)
		}
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, fmt.Sprintf("%s?issue_id=%d", url, issue.ID), nil, srv.token(t, srv.Admin))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("field permission on an issue the caller cannot view: %d %s", res.StatusCode, string(data))
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	const n = 8
	bodies := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/api/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			bodies[i], errs[i] = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("fetch openapi: %v", errs[i])
		}
		if !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("concurrent fetches returned different documents")
		}
	}

	var doc struct {
		Components struct {
			Schemas map[string]struct {
				Properties map[string]any `json:"properties"`
			} `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(bodies[0], &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	issue, ok := doc.Components.Schemas["IssueResponse"]
	if !ok {
		t.Fatalf("IssueResponse schema missing")
	}
	for _, prop := range []string{"id", "subject", "state_id", "state", "closed", "actions"} {
		if _, ok := issue.Properties[prop]; !ok {
			t.Fatalf("IssueResponse schema lacks %q", prop)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	srv.createIssue(t, "Counted")
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", res.StatusCode)
	}
	if !strings.Contains(string(data), "etraxis_decisions_total") {
		t.Fatalf("decision counter missing from metrics output")
	}
}
