package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Sessions gates the operator console behind one shared passcode. Sessions
// live in memory: a restart logs every console out, which is acceptable for
// a single-venue deployment.
type Sessions struct {
	mu           sync.Mutex
	passcodeHash []byte
	ttl          time.Duration
	active       map[string]time.Time
	now          func() time.Time
}

func NewSessions(passcodeHash []byte, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Sessions{
		passcodeHash: passcodeHash,
		ttl:          ttl,
		active:       make(map[string]time.Time),
		now:          time.Now,
	}
}

// HashPasscode derives the stored hash from a plain passcode at boot.
func HashPasscode(passcode string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
}

type loginRequest struct {
	Passcode string `json:"passcode"`
}

type loginResponse struct {
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	req.Passcode = strings.TrimSpace(req.Passcode)
	if req.Passcode == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "passcode is required")
		return
	}

	sessionID, expiresAt, ok := h.sessions.Login(req.Passcode)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid_passcode", "invalid passcode")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		SessionID: sessionID,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	})
}

// Login checks the passcode and issues a session token.
func (s *Sessions) Login(passcode string) (string, time.Time, bool) {
	if err := bcrypt.CompareHashAndPassword(s.passcodeHash, []byte(passcode)); err != nil {
		return "", time.Time{}, false
	}

	sessionID := uuid.NewString()
	expiresAt := s.now().Add(s.ttl)

	s.mu.Lock()
	s.active[sessionID] = expiresAt
	s.mu.Unlock()

	return sessionID, expiresAt, true
}

// Valid reports whether the session exists and has not expired. Expired
// entries are dropped on sight.
func (s *Sessions) Valid(sessionID string) bool {
	if sessionID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.active[sessionID]
	if !ok {
		return false
	}
	if s.now().After(expiresAt) {
		delete(s.active, sessionID)
		return false
	}
	return true
}

// Middleware rejects operator actions without a live session. The health
// check, the login endpoint, and the public display snapshot stay open.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !s.Valid(sessionIDFromRequest(r)) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or expired session")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/login":
		return r.Method == http.MethodPost
	case "/api/state":
		return r.Method == http.MethodGet
	default:
		return r.Method == http.MethodOptions
	}
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
