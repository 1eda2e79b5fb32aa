package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Mode selects how strictly requests are authenticated.
type Mode string

const (
	// ModeLocal trusts loopback clients; the dashboard runs on the same
	// machine as the agents it observes.
	ModeLocal Mode = "local"

	// ModeRemote requires the shared token on every API request.
	ModeRemote Mode = "remote"
)

const tokenBytes = 32

// Gate authenticates API requests with a shared secret. The token is
// generated once and persisted so restarts keep existing dashboards
// connected.
type Gate struct {
	mode   Mode
	token  string
	logger *zap.Logger
}

// NewGate loads the token from tokenFile, creating it with a fresh random
// token when missing.
func NewGate(mode Mode, tokenFile string, logger *zap.Logger) (*Gate, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	token, err := loadOrCreateToken(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("auth token: %w", err)
	}
	return &Gate{mode: mode, token: token, logger: logger}, nil
}

func loadOrCreateToken(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		token := strings.TrimSpace(string(raw))
		if token != "" {
			return token, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", err
	}
	return token, nil
}

// Mode reports the configured mode.
func (g *Gate) Mode() Mode { return g.mode }

// Token returns the shared secret. Only exposed over the local-only
// token endpoint.
func (g *Gate) Token() string { return g.token }

// Authorize checks one request's credentials. Local mode accepts any
// request; remote mode requires the token as a Bearer header or a
// ?token= query parameter, which lets EventSource clients authenticate.
func (g *Gate) Authorize(r *http.Request) bool {
	if g.mode == ModeLocal {
		return true
	}
	presented := bearerToken(r)
	if presented == "" {
		presented = r.URL.Query().Get("token")
	}
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(g.token)) == 1
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return header[len(prefix):]
	}
	return ""
}

// Middleware rejects unauthorized requests with 401. Health checks pass
// through so probes work without credentials.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		if !g.Authorize(r) {
			g.logger.Debug("unauthorized request",
				zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LocalOnly guards endpoints that must never be reachable off-box, like
// the token handout. The check is on the connection's remote address, not
// any forwarded header.
func LocalOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.RemoteAddr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		host = strings.Trim(host, "[]")
		if host != "127.0.0.1" && host != "::1" && host != "localhost" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":"local access only"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
