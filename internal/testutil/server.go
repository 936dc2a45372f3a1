package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/flowrl/internal/model"
)

// FakeService is an HTTP twin of the FlowRL API for end-to-end tests.
//
// Routes:
//
//	GET  /get_config?user_id=...  configuration for the user (or the default)
//	POST /collect_event           records one event
//
// Requests without the expected Authorization header get 401.
type FakeService struct {
	server *httptest.Server
	apiKey string

	mu             sync.Mutex
	configs        map[string]*model.Configuration
	failStatus     int
	configRequests []string
	events         []model.Event
}

// NewFakeService starts a fake service expecting apiKey. The server is closed
// when the test finishes.
func NewFakeService(t testing.TB, apiKey string) *FakeService {
	t.Helper()

	s := &FakeService{
		apiKey:  apiKey,
		configs: make(map[string]*model.Configuration),
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.faultInjection)
		r.Get("/get_config", s.getConfig)
		r.Post("/collect_event", s.collectEvent)
	})

	s.server = httptest.NewServer(r)
	t.Cleanup(s.server.Close)
	return s
}

// URL returns the base URL of the fake service.
func (s *FakeService) URL() string {
	return s.server.URL + "/"
}

// SetConfiguration serves cfg for userID. An empty userID sets the default
// returned to every user without a specific configuration.
func (s *FakeService) SetConfiguration(userID string, cfg *model.Configuration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[userID] = cfg
}

// FailWith makes every authenticated request return status (0 restores).
func (s *FakeService) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failStatus = status
}

// ConfigRequests returns the user ids of configuration requests, in order.
func (s *FakeService) ConfigRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.configRequests...)
}

// Events returns the events received, in order.
func (s *FakeService) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

func (s *FakeService) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *FakeService) faultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.failStatus
		s.mu.Unlock()
		if status != 0 {
			writeJSON(w, status, map[string]any{"error": "injected fault"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *FakeService) getConfig(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	s.mu.Lock()
	s.configRequests = append(s.configRequests, userID)
	cfg, ok := s.configs[userID]
	if !ok {
		cfg, ok = s.configs[""]
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no configuration for user"})
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *FakeService) collectEvent(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Content-Type") != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]any{"error": "expected application/json"})
		return
	}

	var event model.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body: " + err.Error()})
		return
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"status": 1})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
