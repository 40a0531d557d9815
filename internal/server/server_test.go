package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"aegis/internal/config"
	"aegis/internal/db"
	"aegis/internal/domain"
	"aegis/internal/engine"
	"aegis/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("art-1"))
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
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
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(testSrv.close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
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
	req.Header.Set("X-Actor-Id", "tester")
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

func seedViaAPI(t *testing.T, srv *testServer) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts", map[string]any{
		"id":          "art-1",
		"title":       "Rollout plan",
		"domain_tags": []string{"security"},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create artifact: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/peers", map[string]any{
		"id":      "ada",
		"domains": []string{"security"},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create peer: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/lenses", map[string]any{
		"id":      "Security Review",
		"domains": []string{"security"},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create lens: %d %s", res.StatusCode, string(data))
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv := newTestServer(t)
	res, err := srv.Client().Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv := newTestServer(t)
	res, err := srv.Client().Get(srv.URL + "/v0/peers")
	if err != nil {
		t.Fatalf("get peers: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.StatusCode)
	}
}

func TestLockFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedViaAPI(t, srv)
	client := srv.Client()

	// Premature lock is refused with reasons in the envelope.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/art-1/lock", nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 before inclusion, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "lock_refused" {
		t.Fatalf("code = %q", envelope.Error.Code)
	}
	if envelope.Error.Details["reasons"] == nil {
		t.Fatalf("refusal must list reasons: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/art-1/events", map[string]any{
		"type":    "awareness_ack",
		"peer_id": "ada",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("ack: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/art-1/events", map[string]any{
		"type":    "contribution",
		"peer_id": "ada",
		"lens_id": "Security Review",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("contribute: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/artifacts/art-1/inclusion", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("inclusion: %d %s", res.StatusCode, string(data))
	}
	var state domain.InclusionState
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("unmarshal inclusion: %v", err)
	}
	if !state.LockAvailable {
		t.Fatalf("expected lock availability, reasons: %v", state.Reasons)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/art-1/lock", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("lock: %d %s", res.StatusCode, string(data))
	}
	var lock LockResponse
	if err := json.Unmarshal(data, &lock); err != nil {
		t.Fatalf("unmarshal lock: %v", err)
	}
	if !lock.Locked || lock.Ledger.AwarenessPercent != 1.0 {
		t.Fatalf("lock response = %+v", lock)
	}

	// The log is closed after locking.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/art-1/events", map[string]any{
		"type":    "awareness_ack",
		"peer_id": "ada",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("append after lock: %d %s", res.StatusCode, string(data))
	}
}

func TestOperationFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedViaAPI(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/art-1/operations", map[string]any{
		"tool_id":   "tool-read",
		"tool_name": "read_file",
		"allow":     []string{"docs/"},
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("propose: %d %s", res.StatusCode, string(data))
	}
	var op domain.GovernedOperation
	if err := json.Unmarshal(data, &op); err != nil {
		t.Fatalf("unmarshal op: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/operations/"+op.ID+"/accept", map[string]any{})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(data))
	}

	// Execution against a path outside the allowlist is forbidden.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/operations/"+op.ID+"/execute", map[string]any{
		"path": "../../etc/passwd",
	})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for traversal, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/artifacts/art-1/operations", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list ops: %d %s", res.StatusCode, string(data))
	}
	var list OperationListResponse
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("unmarshal ops: %v", err)
	}
	if len(list.Operations) != 1 || list.Operations[0].Status != domain.OpRequested {
		t.Fatalf("heads = %+v", list.Operations)
	}
}

func TestBoardOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	seedViaAPI(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/artifacts/art-1/board", map[string]any{
		"peer_id": "ada",
		"body":    "start with the threat model",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("post: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/artifacts/art-1/board", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list: %d %s", res.StatusCode, string(data))
	}
	var board BoardListResponse
	if err := json.Unmarshal(data, &board); err != nil {
		t.Fatalf("unmarshal board: %v", err)
	}
	if len(board.Messages) != 1 || board.Messages[0].Body != "start with the threat model" {
		t.Fatalf("messages = %+v", board.Messages)
	}
}
