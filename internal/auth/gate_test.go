package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newGate(t *testing.T, mode Mode) (*Gate, string) {
	t.Helper()
	tokenFile := filepath.Join(t.TempDir(), "scope.token")
	g, err := NewGate(mode, tokenFile, zap.NewNop())
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	return g, tokenFile
}

func TestTokenGeneratedAndPersisted(t *testing.T) {
	g, tokenFile := newGate(t, ModeRemote)
	if g.Token() == "" {
		t.Fatal("expected non-empty token")
	}

	info, err := os.Stat(tokenFile)
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected 0600 token file, got %v", info.Mode().Perm())
	}

	// restart keeps the same token
	again, err := NewGate(ModeRemote, tokenFile, zap.NewNop())
	if err != nil {
		t.Fatalf("reload gate: %v", err)
	}
	if again.Token() != g.Token() {
		t.Error("expected token stable across restarts")
	}

	raw, _ := os.ReadFile(tokenFile)
	if strings.TrimSpace(string(raw)) != g.Token() {
		t.Error("file content does not match served token")
	}
}

func TestLocalModeAcceptsAnything(t *testing.T) {
	g, _ := newGate(t, ModeLocal)
	r := httptest.NewRequest("GET", "/api/agents", nil)
	if !g.Authorize(r) {
		t.Error("local mode must accept requests without credentials")
	}
}

func TestRemoteModeRequiresToken(t *testing.T) {
	g, _ := newGate(t, ModeRemote)

	r := httptest.NewRequest("GET", "/api/agents", nil)
	if g.Authorize(r) {
		t.Fatal("expected bare request rejected")
	}

	r = httptest.NewRequest("GET", "/api/agents", nil)
	r.Header.Set("Authorization", "Bearer "+g.Token())
	if !g.Authorize(r) {
		t.Error("expected bearer token accepted")
	}

	r = httptest.NewRequest("GET", "/api/stream?token="+g.Token(), nil)
	if !g.Authorize(r) {
		t.Error("expected query token accepted for EventSource clients")
	}

	r = httptest.NewRequest("GET", "/api/agents", nil)
	r.Header.Set("Authorization", "Bearer wrong")
	if g.Authorize(r) {
		t.Error("expected wrong token rejected")
	}
}

func TestMiddleware(t *testing.T) {
	g, _ := newGate(t, ModeRemote)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := httptest.NewServer(g.Middleware(next))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/agents")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", resp.StatusCode)
	}

	// health passes without credentials
	resp, err = http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected health exempt from auth, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", srv.URL+"/api/agents", nil)
	req.Header.Set("Authorization", "Bearer "+g.Token())
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authorized get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204 with token, got %d", resp.StatusCode)
	}
}

func TestLocalOnly(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := LocalOnly(next)

	r := httptest.NewRequest("GET", "/api/auth/token", nil)
	r.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected loopback allowed, got %d", rec.Code)
	}

	r = httptest.NewRequest("GET", "/api/auth/token", nil)
	r.RemoteAddr = "10.0.0.9:54321"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected off-box denied, got %d", rec.Code)
	}

	r = httptest.NewRequest("GET", "/api/auth/token", nil)
	r.RemoteAddr = "[::1]:54321"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected IPv6 loopback allowed, got %d", rec.Code)
	}
}
