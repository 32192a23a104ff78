package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"tenantledger/ledger"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

type noopPeerSet struct{}

func (noopPeerSet) Peers() []ledger.Peer { return nil }

func newTestServer(t *testing.T, userAuth, adminAuth Credentials) *Server {
	t.Helper()
	store := ledger.NewMemStore()
	reg, err := ledger.NewRegistry(store)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	keys, err := ledger.GenerateKeyring("node-a")
	if err != nil {
		t.Fatalf("GenerateKeyring: %v", err)
	}
	engine := ledger.NewEngine("node-a", store, reg, keys, noopPeerSet{}, ledger.EngineConfig{})
	return NewServer(engine, reg, testLogger(), userAuth, adminAuth, 1<<20)
}

func basicAuth(req *http.Request, user, pass string) {
	req.SetBasicAuth(user, pass)
}

func TestPostAndGetByOIDRoundTrip(t *testing.T) {
	creds := Credentials{AuthMode: "basic", Username: "alice", Password: "secret"}
	srv := newTestServer(t, creds, Credentials{})
	ts := httptest.NewServer(srv.UserRouter())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"type": "new", "data": map[string]any{"k": "v"}})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/post/byjson", bytes.NewReader(body))
	basicAuth(req, "alice", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /post/byjson: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, body = %s", resp.StatusCode, b)
	}
	var id string
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		t.Fatalf("decode id: %v", err)
	}
	if !ledger.IsValidObjectID(id) {
		t.Fatalf("returned id %q is not a valid object id", id)
	}

	req2, _ := http.NewRequest(http.MethodGet, ts.URL+"/get/byoid/"+id, nil)
	basicAuth(req2, "alice", "secret")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("GET /get/byoid: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp2.StatusCode)
	}
	var tx ledger.Tx
	if err := json.NewDecoder(resp2.Body).Decode(&tx); err != nil {
		t.Fatalf("decode tx: %v", err)
	}
	if tx.ID != id {
		t.Fatalf("tx.ID = %q, want %q", tx.ID, id)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	creds := Credentials{AuthMode: "basic", Username: "alice", Password: "secret"}
	srv := newTestServer(t, creds, Credentials{})
	ts := httptest.NewServer(srv.UserRouter())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/get/pooling")
	if err != nil {
		t.Fatalf("GET /get/pooling: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestLoginIssuesBearerToken(t *testing.T) {
	creds := Credentials{AuthMode: "bearer", Username: "alice", Password: "secret"}
	srv := newTestServer(t, creds, Credentials{})
	ts := httptest.NewServer(srv.UserRouter())
	defer ts.Close()

	body, _ := json.Marshal(loginRequest{User: "alice", Password: "secret"})
	resp, err := http.Post(ts.URL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil || lr.Token == "" {
		t.Fatalf("decode login response: %v (token=%q)", err, lr.Token)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/get/pooling", nil)
	req.Header.Set("Authorization", "Bearer "+lr.Token)
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /get/pooling: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp2.StatusCode)
	}
}

func TestMalformedIDReturns404(t *testing.T) {
	creds := Credentials{AuthMode: "basic", Username: "alice", Password: "secret"}
	srv := newTestServer(t, creds, Credentials{})
	ts := httptest.NewServer(srv.UserRouter())
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/get/byoid/not-a-valid-id", nil)
	basicAuth(req, "alice", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /get/byoid/not-a-valid-id: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestOversizePayloadReturns413(t *testing.T) {
	creds := Credentials{AuthMode: "basic", Username: "alice", Password: "secret"}
	store := ledger.NewMemStore()
	reg, _ := ledger.NewRegistry(store)
	keys, _ := ledger.GenerateKeyring("node-a")
	engine := ledger.NewEngine("node-a", store, reg, keys, noopPeerSet{}, ledger.EngineConfig{})
	srv := NewServer(engine, reg, testLogger(), creds, Credentials{}, 8)
	ts := httptest.NewServer(srv.UserRouter())
	defer ts.Close()

	body, _ := json.Marshal(map[string]any{"type": "new", "data": map[string]any{"k": "a value far longer than eight bytes"}})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/post/byjson", bytes.NewReader(body))
	basicAuth(req, "alice", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /post/byjson: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", resp.StatusCode)
	}
}

func TestAdminInitBCResetAndOpenTenant(t *testing.T) {
	creds := Credentials{AuthMode: "basic", Username: "admin", Password: "secret"}
	srv := newTestServer(t, Credentials{}, creds)
	ts := httptest.NewServer(srv.AdminRouter())
	defer ts.Close()

	body, _ := json.Marshal(map[string]bool{"trytoreset": true})
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/sys/initbc", bytes.NewReader(body))
	basicAuth(req, "admin", "secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /sys/initbc: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	openBody, _ := json.Marshal(openTenantRequest{AdminID: "admin-1", RecallPhrase: "phrase"})
	req2, _ := http.NewRequest(http.MethodPost, ts.URL+"/sys/opentenant", bytes.NewReader(openBody))
	basicAuth(req2, "admin", "secret")
	resp2, err := http.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("POST /sys/opentenant: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp2.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp2.Body).Decode(&out); err != nil || out["tenantId"] == "" {
		t.Fatalf("decode opentenant response: %v (%v)", err, out)
	}
}
