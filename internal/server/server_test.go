package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"hrline/internal/config"
	"hrline/internal/db"
	"hrline/internal/engine"
	"hrline/internal/migrate"
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
	cfg := config.Default("org-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.InitOrg(ctx, "org-1", "Test Org", "tester"); err != nil {
		t.Fatalf("init org: %v", err)
	}
	seed := []struct {
		id, role string
	}{
		{"admin-1", "hr_admin"},
		{"mgr-1", "hr_manager"},
		{"fin-1", "finance_manager"},
		{"emp-1", "employee"},
	}
	for _, s := range seed {
		if _, err := e.CreateEmployee(ctx, engine.EmployeeCreateOptions{
			ID:        s.id,
			OrgID:     "org-1",
			FirstName: "First",
			LastName:  s.id,
			Email:     s.id + "@example.com",
			Roles:     []string{s.role},
			ActorID:   "tester",
		}); err != nil {
			t.Fatalf("seed %s: %v", s.id, err)
		}
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret", AllowLegacyActorHeader: true},
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
	return &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
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

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/approvals", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	// health stays open
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", res.StatusCode)
	}
}

func TestDevLoginAndBearer(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"employee_id": "admin-1",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("expected token, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with bearer: %d %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.EmployeeID != "admin-1" {
		t.Fatalf("expected admin-1, got %s", me.EmployeeID)
	}
}

func TestApprovalEndpointsAndErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/approvals", map[string]any{
		"entity_type":  "expense_claim",
		"entity_id":    "exp-1",
		"requester_id": "emp-1",
		"approver_ids": []string{"mgr-1", "fin-1"},
	}, asActor("admin-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create approval: %d %s", res.StatusCode, string(data))
	}
	var created ApprovalResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal approval: %v", err)
	}
	if created.TotalSteps != 2 || created.CurrentStep != 1 || len(created.Steps) != 2 {
		t.Fatalf("unexpected approval: %+v", created)
	}

	// duplicate entity
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/approvals", map[string]any{
		"entity_type":  "expense_claim",
		"entity_id":    "exp-1",
		"requester_id": "emp-1",
		"approver_ids": []string{"mgr-1"},
	}, asActor("admin-1"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "duplicate_approval" {
		t.Fatalf("expected 409 duplicate_approval, got %d %s", res.StatusCode, string(data))
	}

	// unknown id
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/approvals/nope", nil, asActor("admin-1"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}

	// wrong approver acts out of turn
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/approvals/"+created.ID+"/approve", map[string]any{}, asActor("fin-1"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "wrong_approver" {
		t.Fatalf("expected 403 wrong_approver, got %d %s", res.StatusCode, string(data))
	}

	// the chain in order
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/approvals/"+created.ID+"/approve", map[string]any{"comments": "ok"}, asActor("mgr-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve step 1: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/approvals/"+created.ID+"/approve", map[string]any{}, asActor("fin-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve step 2: %d %s", res.StatusCode, string(data))
	}
	var final ApprovalResponse
	_ = json.Unmarshal(data, &final)
	if final.Status != "approved" {
		t.Fatalf("expected approved, got %s", final.Status)
	}

	// closed records reject further decisions
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/approvals/"+created.ID+"/reject", map[string]any{}, asActor("fin-1"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_state" {
		t.Fatalf("expected 409 invalid_state, got %d %s", res.StatusCode, string(data))
	}

	// history by entity
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/approvals/history/expense_claim/exp-1", nil, asActor("admin-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history: %d %s", res.StatusCode, string(data))
	}
	var hist ApprovalResponse
	_ = json.Unmarshal(data, &hist)
	if hist.ID != created.ID || len(hist.Steps) != 2 {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestPermissionEnforcement(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	client := srv.Client()

	// plain employees cannot create employees
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/employees", map[string]any{
		"first_name": "New",
		"last_name":  "Hire",
		"email":      "new@example.com",
	}, asActor("emp-1"))
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected 403 forbidden, got %d %s", res.StatusCode, string(data))
	}

	// hr_manager can
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/employees", map[string]any{
		"first_name": "New",
		"last_name":  "Hire",
		"email":      "new@example.com",
	}, asActor("mgr-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create employee as manager: %d %s", res.StatusCode, string(data))
	}
}

func TestLeaveFlowHTTP(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/leave-requests", map[string]any{
		"leave_type": "annual",
		"start_date": "2024-06-03",
		"end_date":   "2024-06-05",
	}, asActor("emp-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit leave: %d %s", res.StatusCode, string(data))
	}
	var submitted LeaveSubmitResponse
	if err := json.Unmarshal(data, &submitted); err != nil {
		t.Fatalf("unmarshal submit: %v", err)
	}
	if submitted.Leave.Days != 3 || submitted.Approval.Status != "pending" {
		t.Fatalf("unexpected submit result: %+v", submitted)
	}

	// waiting in the manager's queue
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/approvals/pending/mgr-1", nil, asActor("mgr-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending: %d %s", res.StatusCode, string(data))
	}
	var pending []ApprovalResponse
	if err := json.Unmarshal(data, &pending); err != nil || len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/approvals/"+submitted.Approval.ID+"/reject", map[string]any{
		"comments": "coverage gap",
	}, asActor("mgr-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reject: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/leave-requests/"+submitted.Leave.ID, nil, asActor("emp-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get leave: %d %s", res.StatusCode, string(data))
	}
	var leave LeaveResponse
	_ = json.Unmarshal(data, &leave)
	if leave.Status != "rejected" {
		t.Fatalf("expected rejected leave, got %s", leave.Status)
	}

	// balances back to zero used after rejection
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/employees/emp-1/leave-balances?year=2024", nil, asActor("emp-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("balances: %d %s", res.StatusCode, string(data))
	}
	var balances []LeaveBalanceResponse
	if err := json.Unmarshal(data, &balances); err != nil {
		t.Fatalf("unmarshal balances: %v", err)
	}
	for _, b := range balances {
		if b.LeaveType == "annual" && b.Used != 0 {
			t.Fatalf("expected released balance, got %+v", b)
		}
	}

	// resubmit through a fresh chain
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/leave-requests/"+submitted.Leave.ID+"/resubmit", nil, asActor("emp-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resubmit: %d %s", res.StatusCode, string(data))
	}
	var resubmitted LeaveSubmitResponse
	_ = json.Unmarshal(data, &resubmitted)
	if resubmitted.Approval.ID == submitted.Approval.ID || resubmitted.Leave.Status != "pending" {
		t.Fatalf("expected fresh chain, got %+v", resubmitted)
	}
}

func TestValidationErrorsAreBadRequest(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/leave-requests", map[string]any{
		"leave_type": "annual",
		"start_date": "not-a-date",
		"end_date":   "2024-06-05",
	}, asActor("emp-1"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/employees/admin-1/api-keys", map[string]any{
		"name": "ci",
	}, asActor("admin-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create api key: %d %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	if err := json.Unmarshal(data, &key); err != nil || key.Key == "" {
		t.Fatalf("expected plaintext key, got %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with api key: %d %s", res.StatusCode, string(data))
	}
	var me WhoAmIResponse
	_ = json.Unmarshal(data, &me)
	if me.EmployeeID != "admin-1" {
		t.Fatalf("expected api key principal admin-1, got %s", me.EmployeeID)
	}

	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "bogus"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad key, got %d", res.StatusCode)
	}
}
