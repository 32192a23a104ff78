package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// tokenStore issues and validates Bearer tokens minted by POST /login,
// after the login's password is checked against the listener's bcrypt hash.
type tokenStore struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry
}

type tokenEntry struct {
	username string
	expires  time.Time
}

func newTokenStore() *tokenStore { return &tokenStore{tokens: make(map[string]tokenEntry)} }

func (t *tokenStore) issue(username string) string {
	tok := uuid.NewString()
	t.mu.Lock()
	t.tokens[tok] = tokenEntry{username: username, expires: time.Now().Add(24 * time.Hour)}
	t.mu.Unlock()
	return tok
}

func (t *tokenStore) valid(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.tokens[token]
	if !ok {
		return false
	}
	if time.Now().After(e.expires) {
		delete(t.tokens, token)
		return false
	}
	return true
}

// hashPassword bcrypt-hashes password once at server construction time, so
// later requests compare against a precomputed hash instead of rehashing
// the configured credential on every call.
func hashPassword(password string) []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil
	}
	return hash
}

// checkPassword compares attempt against a hash produced by hashPassword.
// A nil hash (bcrypt rejected the configured password, e.g. over 72 bytes)
// always fails closed.
func checkPassword(hash []byte, attempt string) bool {
	if hash == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(attempt)) == nil
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleLogin(creds Credentials, passHash []byte, listener string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.User != creds.Username || !checkPassword(passHash, req.Password) {
			writeError(w, authFailure(listener))
			return
		}
		tok := s.tokens.issue(req.User)
		writeJSON(w, http.StatusOK, loginResponse{Token: tok})
	}
}

// authMiddleware enforces creds.AuthMode ("basic" or "bearer") on every
// request.
func (s *Server) authMiddleware(creds Credentials, passHash []byte, listener string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.authenticate(r, creds, passHash) {
				writeError(w, authFailure(listener))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) authenticate(r *http.Request, creds Credentials, passHash []byte) bool {
	if creds.AuthMode == "bearer" {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			return false
		}
		return s.tokens.valid(strings.TrimPrefix(auth, "Bearer "))
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	return user == creds.Username && checkPassword(passHash, pass)
}
