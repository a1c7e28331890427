package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks the Twitch id and Helix
// endpoints. Handlers are keyed by URL path.
type MockTwitchServer struct {
	*httptest.Server

	mu       sync.Mutex
	Handlers map[string]http.HandlerFunc
	Requests []*http.Request
	Forms    []map[string]string
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		form := map[string]string{}
		if r.Method == http.MethodPost {
			_ = r.ParseForm()
			for k := range r.PostForm {
				form[k] = r.PostForm.Get(k)
			}
		}
		m.mu.Lock()
		m.Requests = append(m.Requests, r)
		m.Forms = append(m.Forms, form)
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers a handler for path.
func (m *MockTwitchServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

// LastForm returns the form of the most recent POST, or nil.
func (m *MockTwitchServer) LastForm() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Requests) - 1; i >= 0; i-- {
		if m.Requests[i].Method == http.MethodPost {
			return m.Forms[i]
		}
	}
	return nil
}

// MockUserResponse adds a handler for /helix/users that requires a bearer token.
func (m *MockTwitchServer) MockUserResponse(userID, login string) {
	m.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") || r.Header.Get("Client-Id") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": []map[string]string{
				{"id": userID, "login": login, "display_name": login},
			},
		})
	})
}

// MockOAuthTokenResponse adds a handler for /oauth2/token returning body as JSON.
func (m *MockTwitchServer) MockOAuthTokenResponse(status int, body any) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, body)
	})
}

// MockValidateResponse adds a handler for /oauth2/validate answering status
// for every token except those listed in valid, which get 200.
func (m *MockTwitchServer) MockValidateResponse(status int, valid ...string) {
	ok := make(map[string]bool, len(valid))
	for _, v := range valid {
		ok[v] = true
	}
	m.Handle("/oauth2/validate", func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "OAuth ")
		if ok[tok] {
			writeJSON(w, http.StatusOK, map[string]any{"client_id": "cid", "expires_in": 3600})
			return
		}
		w.WriteHeader(status)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
}
