package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newRequest(method, path string) (*http.Request, *httptest.ResponseRecorder) {
	return httptest.NewRequest(method, path, nil), httptest.NewRecorder()
}

func newTestSessions(t *testing.T, ttl time.Duration) *Sessions {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPasscode), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return NewSessions(hash, ttl)
}

func TestLoginEndpoint(t *testing.T) {
	handler, _ := newTestHandler(t, &fakeDispatcher{})

	rec := doJSON(t, handler, http.MethodPost, "/api/login", "", `{"passcode":"`+testPasscode+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/login", "", `{"passcode":"wrong"}`)
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "invalid_passcode" {
		t.Fatalf("wrong passcode: status = %d, code %q", rec.Code, errorCode(t, rec))
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/login", "", `{"passcode":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank passcode: status = %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/login", "", `{"passcode":`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "invalid_json" {
		t.Fatalf("truncated JSON: status = %d, code %q", rec.Code, errorCode(t, rec))
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestSessions(t, time.Hour)
	clock := time.Unix(1700000000, 0)
	s.now = func() time.Time { return clock }

	if _, _, ok := s.Login("wrong"); ok {
		t.Fatal("wrong passcode must not log in")
	}

	id, expiresAt, ok := s.Login(testPasscode)
	if !ok || id == "" {
		t.Fatal("login failed")
	}
	if want := clock.Add(time.Hour); !expiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", expiresAt, want)
	}
	if !s.Valid(id) {
		t.Fatal("fresh session must be valid")
	}
	if s.Valid("") || s.Valid("not-a-session") {
		t.Fatal("unknown sessions must be invalid")
	}

	clock = clock.Add(time.Hour + time.Second)
	if s.Valid(id) {
		t.Fatal("expired session must be invalid")
	}
	// Expiry pruned the entry, so it stays invalid even if the clock
	// rewinds.
	clock = clock.Add(-2 * time.Hour)
	if s.Valid(id) {
		t.Fatal("pruned session must stay invalid")
	}
}

func TestSessionHeaderForms(t *testing.T) {
	s := newTestSessions(t, time.Hour)
	id, _, ok := s.Login(testPasscode)
	if !ok {
		t.Fatal("login failed")
	}

	protected := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"bearer", "Authorization", "Bearer " + id, http.StatusOK},
		{"bearer case-insensitive", "Authorization", "bearer " + id, http.StatusOK},
		{"x-session-id", "X-Session-ID", id, http.StatusOK},
		{"malformed authorization", "Authorization", "Token " + id, http.StatusUnauthorized},
		{"missing", "", "", http.StatusUnauthorized},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/api/actions/undo")
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			protected.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestPublicEndpointsSkipAuth(t *testing.T) {
	s := newTestSessions(t, time.Hour)
	protected := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodPost, "/api/login", http.StatusOK},
		{http.MethodGet, "/api/state", http.StatusOK},
		{http.MethodPost, "/api/state", http.StatusUnauthorized},
		{http.MethodGet, "/api/login", http.StatusUnauthorized},
		{http.MethodOptions, "/api/tickets", http.StatusOK},
		{http.MethodPost, "/api/tickets", http.StatusUnauthorized},
	}
	for _, tt := range cases {
		req, rec := newRequest(tt.method, tt.path)
		protected.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Fatalf("%s %s: status = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
}
