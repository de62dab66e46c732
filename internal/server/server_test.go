package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"obraline/internal/config"
	"obraline/internal/db"
	"obraline/internal/domain"
	"obraline/internal/engine"
	"obraline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("obraline")
	cfg.Auth.JWTSecret = "test-secret"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	handler := New(Config{Engine: e, BasePath: "/v1", Auth: AuthConfig{JWTSecret: cfg.Auth.JWTSecret}})
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
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

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// signupAndLogin registers a user and returns their token and id.
func signupAndLogin(t *testing.T, srv *testServer, email, username string) (string, string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/signup", map[string]any{
		"email":    email,
		"username": username,
		"password": "secreto123",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("signup status %d: %s", res.StatusCode, string(data))
	}
	var u UserResponse
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    email,
		"password": "secreto123",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" {
		t.Fatal("login returned empty token")
	}
	return login.Token, u.ID
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var body struct {
		Err apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return body.Err.Code
}

func TestHealthIsOpen(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestRequestsWithoutCredentialsAreRejected(t *testing.T) {
	srv := newTestServer(t)
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("code = %s", code)
	}
}

func TestSignupLoginAndProfile(t *testing.T) {
	srv := newTestServer(t)
	token, _ := signupAndLogin(t, srv, "gerente@obra.mx", "Gerente")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, bearer(token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var u UserResponse
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.Email != "gerente@obra.mx" {
		t.Fatalf("email = %s", u.Email)
	}

	// wrong password is a 401 with the envelope code
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    "gerente@obra.mx",
		"password": "equivocada1",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("code = %s", code)
	}
}

func TestAPIKeyAuthenticates(t *testing.T) {
	srv := newTestServer(t)
	token, _ := signupAndLogin(t, srv, "gerente@obra.mx", "Gerente")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/me/api-keys", map[string]any{"name": "ci"}, bearer(token))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if key.Key == "" {
		t.Fatal("raw key not returned")
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with api key status %d: %s", res.StatusCode, string(data))
	}

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad api key status %d", res.StatusCode)
	}
}

func TestProjectAndTaskFlow(t *testing.T) {
	srv := newTestServer(t)
	gerente, _ := signupAndLogin(t, srv, "gerente@obra.mx", "Gerente")
	empleado, empleadoID := signupAndLogin(t, srv, "emp@obra.mx", "Emp")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":     "Torre Norte",
		"end_date": "2030-12-31",
	}, bearer(gerente))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/members", map[string]any{
		"email": "emp@obra.mx",
		"role":  "Empleado",
	}, bearer(gerente))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("invite status %d: %s", res.StatusCode, string(data))
	}
	var m domain.Membership
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal membership: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/invitations/"+m.ID+"/accept", nil, bearer(empleado))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", res.StatusCode, string(data))
	}

	// material inventory backs the task allocation
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/materials", map[string]any{
		"name":     "Cemento",
		"unit":     "sacos",
		"quantity": 10,
	}, bearer(gerente))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create material status %d: %s", res.StatusCode, string(data))
	}
	var mat domain.Material
	if err := json.Unmarshal(data, &mat); err != nil {
		t.Fatalf("unmarshal material: %v", err)
	}

	// a past due date is rejected with the validation code
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/tasks", map[string]any{
		"title":       "Colar losa",
		"assignee_id": empleadoID,
		"due_date":    "2020-01-01",
	}, bearer(gerente))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("past due date status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "validation_failed" {
		t.Fatalf("code = %s", code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/tasks", map[string]any{
		"title":       "Colar losa",
		"assignee_id": empleadoID,
		"due_date":    "2030-06-30",
		"materials":   []map[string]any{{"material_id": mat.ID, "quantity": 4}},
	}, bearer(gerente))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var task domain.Task
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}

	// stock was consumed in the same transaction
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+p.ID+"/materials", nil, bearer(gerente))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list materials status %d: %s", res.StatusCode, string(data))
	}
	var materials []domain.Material
	if err := json.Unmarshal(data, &materials); err != nil {
		t.Fatalf("unmarshal materials: %v", err)
	}
	if len(materials) != 1 || materials[0].Quantity != 6 {
		t.Fatalf("materials = %+v", materials)
	}

	// the empleado cannot invite
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/members", map[string]any{
		"email": "otra@obra.mx",
		"role":  "Empleado",
	}, bearer(empleado))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("empleado invite status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("code = %s", code)
	}

	// completion needs comment and evidence
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/complete", map[string]any{
		"comment":      "",
		"evidence_url": "",
	}, bearer(empleado))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("incomplete completion status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+task.ID+"/complete", map[string]any{
		"comment":      "listo",
		"evidence_url": "https://cdn.example.com/losa.jpg",
	}, bearer(empleado))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status %d: %s", res.StatusCode, string(data))
	}

	// statistics reflect the completion
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+p.ID+"/statistics", nil, bearer(gerente))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("statistics status %d: %s", res.StatusCode, string(data))
	}
	var stats engine.Statistics
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal statistics: %v", err)
	}
	if stats.Total != 1 || stats.Completadas != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestFinalizeLocksMutationsOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	gerente, _ := signupAndLogin(t, srv, "gerente@obra.mx", "Gerente")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "Bodega",
	}, bearer(gerente))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/finalize", nil, bearer(gerente))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finalize status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/members", map[string]any{
		"email": "x@obra.mx",
		"role":  "Empleado",
	}, bearer(gerente))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("invite on finalized status %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "project_finalized" {
		t.Fatalf("code = %s", code)
	}

	// reads stay open
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/projects/"+p.ID, nil, bearer(gerente))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get finalized status %d: %s", res.StatusCode, string(data))
	}
}

func TestNotificationsFeedOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	gerente, _ := signupAndLogin(t, srv, "gerente@obra.mx", "Gerente")
	empleado, _ := signupAndLogin(t, srv, "emp@obra.mx", "Emp")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "Nave industrial",
	}, bearer(gerente))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/members", map[string]any{
		"email": "emp@obra.mx",
		"role":  "Empleado",
	}, bearer(gerente))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("invite status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/notifications", nil, bearer(empleado))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("feed status %d: %s", res.StatusCode, string(data))
	}
	var feed []engine.FeedItem
	if err := json.Unmarshal(data, &feed); err != nil {
		t.Fatalf("unmarshal feed: %v", err)
	}
	if len(feed) != 1 || feed[0].Kind != "invitacion" {
		t.Fatalf("feed = %+v", feed)
	}
}
